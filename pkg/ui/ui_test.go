package ui

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/samarth/pkg/client"
	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/go-go-golems/samarth/pkg/dispatcher"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBackend struct {
	mu      sync.Mutex
	queries []string
	fn      func(ctx context.Context, text string) (*client.QueryResponse, error)
}

func (f *fakeBackend) Query(ctx context.Context, text string) (*client.QueryResponse, error) {
	f.mu.Lock()
	f.queries = append(f.queries, text)
	f.mu.Unlock()
	return f.fn(ctx, text)
}

func (f *fakeBackend) Queries() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.queries...)
}

type fakeInfo struct {
	samples []string
	err     error
}

func (f fakeInfo) SampleQuestions(context.Context) ([]string, error) {
	return f.samples, f.err
}

func (f fakeInfo) Health(context.Context) (*client.HealthStatus, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &client.HealthStatus{Status: "healthy"}, nil
}

func rainfallBackend() *fakeBackend {
	records := int64(50)
	return &fakeBackend{fn: func(context.Context, string) (*client.QueryResponse, error) {
		return &client.QueryResponse{
			Answer: "Maharashtra averaged 1180mm.",
			Sources: []conversation.SourceCitation{
				{Dataset: "Rainfall", RecordsRetrieved: &records},
			},
		}, nil
	}}
}

func failingBackend(body string) *fakeBackend {
	return &fakeBackend{fn: func(context.Context, string) (*client.QueryResponse, error) {
		return nil, &client.HTTPError{StatusCode: 400, Body: []byte(body)}
	}}
}

func newTestModel(t *testing.T, backend dispatcher.Backend, options ...ModelOption) (Model, *conversation.Session) {
	session := conversation.NewSession()
	d := dispatcher.New(session, backend)
	options = append([]ModelOption{WithMarkdownStyle("notty")}, options...)
	m := NewModel(d, options...)
	m, _ = update(m, tea.WindowSizeMsg{Width: 160, Height: 50})
	return m, session
}

func update(m Model, msg tea.Msg) (Model, tea.Cmd) {
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func execute(cmd tea.Cmd) []tea.Msg {
	if cmd == nil {
		return nil
	}
	msg := cmd()
	if batch, ok := msg.(tea.BatchMsg); ok {
		var ret []tea.Msg
		for _, c := range batch {
			ret = append(ret, execute(c)...)
		}
		return ret
	}
	return []tea.Msg{msg}
}

func feed(m Model, msgs []tea.Msg) Model {
	for _, msg := range msgs {
		m, _ = update(m, msg)
	}
	return m
}

func typeText(m Model, text string) Model {
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(text)})
	return m
}

func TestTypingUpdatesPendingInput(t *testing.T) {
	m, session := newTestModel(t, rainfallBackend())

	m = typeText(m, "Rainfall in Konkan")
	assert.Equal(t, "Rainfall in Konkan", session.PendingInput())
	assert.Equal(t, StateUserInput, m.State())
}

func TestSubmitRendersAnswerAndCitations(t *testing.T) {
	backend := rainfallBackend()
	m, session := newTestModel(t, backend)

	m = typeText(m, "Compare rainfall")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyTab})
	require.NotNil(t, cmd)
	assert.Equal(t, StateLoading, m.State())

	m = feed(m, execute(cmd))

	assert.Equal(t, StateUserInput, m.State())
	assert.Equal(t, []string{"Compare rainfall"}, backend.Queries())
	assert.Equal(t, 2, session.Len())
	assert.Equal(t, "", session.PendingInput())

	view := m.View()
	assert.Contains(t, view, "Compare rainfall")
	assert.Contains(t, view, "1180mm")
	assert.Contains(t, view, "Dataset: Rainfall")
	assert.Contains(t, view, "Filters: —")
	assert.Contains(t, view, "Records: 50")
}

func TestSubmitDisabledWhileLoading(t *testing.T) {
	release := make(chan struct{})
	backend := &fakeBackend{fn: func(context.Context, string) (*client.QueryResponse, error) {
		<-release
		return &client.QueryResponse{Answer: "done"}, nil
	}}
	m, _ := newTestModel(t, backend)

	m = typeText(m, "first")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyTab})
	require.NotNil(t, cmd)

	done := make(chan []tea.Msg, 1)
	go func() {
		done <- execute(cmd)
	}()

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyTab})
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	assert.Equal(t, StateLoading, m.State())

	close(release)
	m = feed(m, <-done)

	assert.Equal(t, []string{"first"}, backend.Queries())
	assert.Equal(t, StateUserInput, m.State())
}

func TestEmptySubmitShowsValidationError(t *testing.T) {
	backend := rainfallBackend()
	m, session := newTestModel(t, backend)

	m = typeText(m, "   ")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyTab})
	m = feed(m, execute(cmd))

	assert.Equal(t, StateError, m.State())
	assert.Equal(t, dispatcher.MsgEmptyQuery, session.LastError())
	assert.Equal(t, 0, session.Len())
	assert.Empty(t, backend.Queries())
	assert.Contains(t, m.View(), dispatcher.MsgEmptyQuery)
}

func TestErrorBannerAndDismiss(t *testing.T) {
	m, session := newTestModel(t, failingBackend(`{"detail": {"message": "Invalid date range"}}`))

	m = typeText(m, "Rainfall from 2030")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyTab})
	m = feed(m, execute(cmd))

	assert.Equal(t, StateError, m.State())
	assert.Contains(t, m.View(), "Invalid date range")

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyEscape})
	assert.Equal(t, StateUserInput, m.State())
	assert.Equal(t, "", session.LastError())
	assert.Equal(t, 2, session.Len())
}

func TestRetryResubmitsLastMessage(t *testing.T) {
	backend := failingBackend(`{"message": "Server not initialized properly."}`)
	m, session := newTestModel(t, backend)

	m = typeText(m, "Wheat in Punjab")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyTab})
	m = feed(m, execute(cmd))
	require.Equal(t, StateError, m.State())

	m, cmd = update(m, tea.KeyMsg{Type: tea.KeyCtrlR})
	require.NotNil(t, cmd)
	m = feed(m, execute(cmd))

	assert.Equal(t, []string{"Wheat in Punjab", "Server not initialized properly."}, backend.Queries())
	assert.Equal(t, 4, session.Len())
	assert.Equal(t, StateError, m.State())
}

func TestSampleQuestionKeys(t *testing.T) {
	backend := rainfallBackend()
	m, _ := newTestModel(t, backend)

	m, _ = update(m, samplesMsg{questions: []string{"Rice in West Bengal?", "Millets in Karnataka?"}})
	assert.Contains(t, m.View(), "2. Millets in Karnataka?")

	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("2")})
	require.NotNil(t, cmd)
	assert.Equal(t, StateLoading, m.State())
	m = feed(m, execute(cmd))

	assert.Equal(t, []string{"Millets in Karnataka?"}, backend.Queries())

	m = typeText(m, "x")
	m, _ = update(m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("1")})
	assert.Equal(t, "x1", m.textArea.Value())
	assert.Len(t, backend.Queries(), 1)
}

func TestStaleSessionEventsAreIgnored(t *testing.T) {
	m, session := newTestModel(t, rainfallBackend())

	session.SetError("boom")
	stale := m.snapshot.Version
	m, _ = update(m, SessionChangedMsg{Event: conversation.ChangeEvent{Kind: conversation.ChangeError, Version: stale}})
	assert.Equal(t, StateUserInput, m.State())

	current := session.Snapshot().Version
	m, _ = update(m, SessionChangedMsg{Event: conversation.ChangeEvent{Kind: conversation.ChangeError, Version: current}})
	assert.Equal(t, StateError, m.State())
	assert.Contains(t, m.View(), "boom")
}

func TestNewConversation(t *testing.T) {
	m, session := newTestModel(t, rainfallBackend())
	m, _ = update(m, samplesMsg{questions: []string{"Rice in West Bengal?"}})

	m = typeText(m, "Compare rainfall")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyTab})
	m = feed(m, execute(cmd))
	require.Equal(t, 2, session.Len())

	m, _ = update(m, tea.KeyMsg{Type: tea.KeyCtrlN})
	assert.Equal(t, 0, session.Len())
	assert.Contains(t, m.View(), "1. Rice in West Bengal?")
}

func TestExportTranscript(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "transcript.yaml")
	m, _ := newTestModel(t, rainfallBackend(), WithTranscriptFile(path))

	m = typeText(m, "Compare rainfall")
	m, cmd := update(m, tea.KeyMsg{Type: tea.KeyTab})
	m = feed(m, execute(cmd))

	m, cmd = update(m, tea.KeyMsg{Type: tea.KeyCtrlS})
	m = feed(m, execute(cmd))

	assert.Contains(t, m.View(), "transcript saved to")
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "Compare rainfall")
	assert.Contains(t, string(b), "records_retrieved: 50")
}

func TestSamplesAndHealthFallback(t *testing.T) {
	m, _ := newTestModel(t, rainfallBackend(), WithServiceInfo(fakeInfo{err: &client.HTTPError{StatusCode: 503}}))

	m = feed(m, []tea.Msg{m.fetchSamples()(), m.checkHealth()()})

	assert.True(t, m.samplesFallback)
	assert.Equal(t, client.DefaultSampleQuestions, m.samples)
	assert.Contains(t, m.View(), "server: unreachable")
}

func TestSamplesAndHealthFromServer(t *testing.T) {
	m, _ := newTestModel(t, rainfallBackend(), WithServiceInfo(fakeInfo{samples: []string{"Only one?"}}))

	m = feed(m, []tea.Msg{m.fetchSamples()(), m.checkHealth()()})

	assert.False(t, m.samplesFallback)
	assert.Equal(t, []string{"Only one?"}, m.samples)
	assert.Contains(t, m.View(), "server: healthy")
}
