package dispatcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-go-golems/samarth/pkg/client"
	"github.com/go-go-golems/samarth/pkg/conversation"
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

func answering(answer string) *fakeBackend {
	return &fakeBackend{fn: func(context.Context, string) (*client.QueryResponse, error) {
		return &client.QueryResponse{Answer: answer, Data: map[string]interface{}{}}, nil
	}}
}

func failing(err error) *fakeBackend {
	return &fakeBackend{fn: func(context.Context, string) (*client.QueryResponse, error) {
		return nil, err
	}}
}

func TestSubmitEmptyTextShortCircuits(t *testing.T) {
	for _, text := range []string{"", "   ", "\n\t"} {
		backend := answering("unused")
		session := conversation.NewSession()
		d := New(session, backend)

		msg, err := d.SubmitText(context.Background(), text)

		assert.Nil(t, msg)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.Equal(t, 0, session.Len())
		assert.Equal(t, MsgEmptyQuery, session.LastError())
		assert.False(t, session.Loading())
		assert.Empty(t, backend.Queries())
	}
}

func TestSubmitPendingInput(t *testing.T) {
	backend := answering("Yes.")
	session := conversation.NewSession()
	d := New(session, backend)

	d.UpdatePendingInput("  Is it raining in Konkan?  ")
	msg, err := d.SubmitPending(context.Background())
	require.NoError(t, err)

	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	assert.Equal(t, []string{"Is it raining in Konkan?"}, backend.Queries())
	assert.Equal(t, "", session.PendingInput())

	snap := session.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "Is it raining in Konkan?", snap.Messages[0].Content)
	assert.Equal(t, conversation.RoleUser, snap.Messages[0].Role)
	assert.False(t, snap.Loading)
	assert.Equal(t, "", snap.LastError)
}

func TestExplicitTextIgnoresPendingInput(t *testing.T) {
	backend := answering("ok")
	session := conversation.NewSession()
	d := New(session, backend)

	d.UpdatePendingInput("draft")
	_, err := d.SubmitText(context.Background(), "sample question")
	require.NoError(t, err)

	assert.Equal(t, []string{"sample question"}, backend.Queries())
}

func TestEachAcceptedSubmissionAppendsTwoMessages(t *testing.T) {
	outcomes := []*fakeBackend{
		answering("fine"),
		answering(""),
		failing(client.ErrEmptyResponse),
		failing(&client.HTTPError{StatusCode: 500}),
	}

	session := conversation.NewSession()
	for i, backend := range outcomes {
		d := New(session, backend)
		before := session.Len()
		_, err := d.SubmitText(context.Background(), "question")
		require.NoError(t, err, "outcome %d", i)
		assert.Equal(t, before+2, session.Len(), "outcome %d", i)
		assert.False(t, session.Loading())
	}

	snap := session.Snapshot()
	assert.Equal(t, "fine", snap.Messages[1].Content)
	assert.Equal(t, conversation.NoAnswerPlaceholder, snap.Messages[3].Content)
	assert.Equal(t, MsgNoResponse, snap.Messages[5].Content)
	assert.Equal(t, conversation.RoleError, snap.Messages[5].Role)
	assert.Equal(t, MsgGeneric, snap.Messages[7].Content)
}

func TestEmptyResponseSetsLastError(t *testing.T) {
	session := conversation.NewSession()
	d := New(session, failing(client.ErrEmptyResponse))

	msg, err := d.SubmitText(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, MsgNoResponse, msg.Content)
	assert.Equal(t, MsgNoResponse, session.LastError())
	assert.Empty(t, msg.Sources)
	assert.Empty(t, msg.Data)
}

func TestNilResponseIsEmptyResponse(t *testing.T) {
	backend := &fakeBackend{fn: func(context.Context, string) (*client.QueryResponse, error) {
		return nil, nil
	}}
	msg, err := New(conversation.NewSession(), backend).SubmitText(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, MsgNoResponse, msg.Content)
}

func TestLastErrorClearedOnNextSubmission(t *testing.T) {
	session := conversation.NewSession()
	_, err := New(session, failing(&client.HTTPError{StatusCode: 502})).SubmitText(context.Background(), "q")
	require.NoError(t, err)
	require.Equal(t, MsgGeneric, session.LastError())

	_, err = New(session, answering("ok")).SubmitText(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, "", session.LastError())
}

func TestSingleFlight(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &fakeBackend{fn: func(ctx context.Context, text string) (*client.QueryResponse, error) {
		close(started)
		<-release
		return &client.QueryResponse{Answer: "done"}, nil
	}}
	session := conversation.NewSession()
	d := New(session, backend)

	done := make(chan error, 1)
	go func() {
		_, err := d.SubmitText(context.Background(), "first")
		done <- err
	}()
	<-started

	assert.True(t, d.Busy())
	assert.True(t, session.Loading())
	for i := 0; i < 10; i++ {
		_, err := d.SubmitText(context.Background(), "again")
		assert.ErrorIs(t, err, ErrBusy)
	}
	_, err := d.Retry(context.Background())
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	require.NoError(t, <-done)

	assert.False(t, d.Busy())
	assert.False(t, session.Loading())
	assert.Equal(t, []string{"first"}, backend.Queries())
	assert.Equal(t, 2, session.Len())
}

func TestLoadingTogglesExactlyOncePerSubmission(t *testing.T) {
	var mu sync.Mutex
	var loadingChanges []bool
	session := conversation.NewSession(conversation.WithObservers(conversation.ObserverFunc(func(ev conversation.ChangeEvent) {
		if ev.Kind == conversation.ChangeLoading {
			mu.Lock()
			loadingChanges = append(loadingChanges, ev.Loading)
			mu.Unlock()
		}
	})))
	d := New(session, failing(&client.HTTPError{StatusCode: 500}))

	_, _ = d.SubmitText(context.Background(), "")
	_, _ = d.SubmitText(context.Background(), "q")

	assert.Equal(t, []bool{true, false}, loadingChanges)
}

func TestRetryResubmitsLastMessageContent(t *testing.T) {
	session := conversation.NewSession()
	backend := failing(&client.HTTPError{StatusCode: 500, Body: []byte(`{"message": "Gemini quota exceeded"}`)})
	d := New(session, backend)

	_, err := d.SubmitText(context.Background(), "Wheat production in Punjab")
	require.NoError(t, err)
	last, _ := session.LastMessage()
	require.Equal(t, conversation.RoleError, last.Role)

	_, err = d.Retry(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Wheat production in Punjab", "Gemini quota exceeded"}, backend.Queries())
	assert.Equal(t, 4, session.Len())
}

func TestRetryLastUserMessageMode(t *testing.T) {
	session := conversation.NewSession()
	backend := failing(&client.HTTPError{StatusCode: 500})
	d := New(session, backend, WithRetryMode(RetryLastUserMessage))

	_, err := d.SubmitText(context.Background(), "Wheat production in Punjab")
	require.NoError(t, err)
	_, err = d.Retry(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"Wheat production in Punjab", "Wheat production in Punjab"}, backend.Queries())
}

func TestRetryWithEmptyHistory(t *testing.T) {
	session := conversation.NewSession()
	d := New(session, answering("unused"))

	_, err := d.Retry(context.Background())
	assert.ErrorIs(t, err, ErrEmptyQuery)
	assert.Equal(t, MsgEmptyQuery, session.LastError())
}

func TestDismissError(t *testing.T) {
	session := conversation.NewSession()
	d := New(session, answering("unused"))
	_, _ = d.SubmitText(context.Background(), " ")
	require.NotEmpty(t, session.LastError())

	d.DismissError()
	assert.Equal(t, "", session.LastError())
}

func TestResetWhileInFlightAbandonsResponse(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	backend := &fakeBackend{fn: func(ctx context.Context, text string) (*client.QueryResponse, error) {
		close(started)
		<-release
		return &client.QueryResponse{Answer: "stale"}, nil
	}}
	session := conversation.NewSession()
	d := New(session, backend)

	done := make(chan error, 1)
	go func() {
		_, err := d.SubmitText(context.Background(), "q")
		done <- err
	}()
	<-started
	session.Reset()
	close(release)

	assert.ErrorIs(t, <-done, ErrAbandoned)
	assert.Equal(t, 0, session.Len())
	assert.False(t, session.Loading())
	assert.False(t, d.Busy())
}

func TestTimeoutSettlesAsConnectivityFailure(t *testing.T) {
	backend := &fakeBackend{fn: func(ctx context.Context, text string) (*client.QueryResponse, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	session := conversation.NewSession()
	d := New(session, backend, WithTimeout(20*time.Millisecond))

	msg, err := d.SubmitText(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, MsgConnectFailed, msg.Content)
	assert.False(t, session.Loading())
}

func TestEndToEndRainfallComparison(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"answer": "Maharashtra averaged 1180mm, Gujarat 820mm.", "sources": [{"dataset": "Rainfall", "records_retrieved": 50}]}`))
	}))
	defer server.Close()

	c, err := client.New(server.URL, client.LocalDevelopment)
	require.NoError(t, err)
	session := conversation.NewSession()
	d := New(session, c)

	msg, err := d.SubmitText(context.Background(), "Compare rainfall in Maharashtra and Gujarat")
	require.NoError(t, err)

	snap := session.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, conversation.RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "Compare rainfall in Maharashtra and Gujarat", snap.Messages[0].Content)
	assert.Equal(t, conversation.RoleAssistant, msg.Role)
	assert.Equal(t, "Maharashtra averaged 1180mm, Gujarat 820mm.", msg.Content)
	require.Len(t, msg.Sources, 1)
	assert.Equal(t, "50", conversation.FormatRecords(msg.Sources[0].RecordsRetrieved))
	assert.Equal(t, "—", conversation.FormatFilters(msg.Sources[0].FiltersApplied))
	assert.NotNil(t, msg.Data)
	assert.False(t, snap.Loading)
	assert.False(t, msg.Timestamp.IsZero())
}

func TestEndToEndBackendDetailMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"detail": {"error": "Bad Request", "message": "Invalid date range", "timestamp": "2024-01-01T00:00:00"}}`))
	}))
	defer server.Close()

	c, err := client.New(server.URL, client.LocalDevelopment)
	require.NoError(t, err)
	session := conversation.NewSession()

	msg, err := New(session, c).SubmitText(context.Background(), "Rainfall from 2030 to 2020")
	require.NoError(t, err)
	assert.Equal(t, conversation.RoleError, msg.Role)
	assert.Equal(t, "Invalid date range", msg.Content)
	assert.Equal(t, "Invalid date range", session.LastError())
}

func TestEndToEndServerUnreachable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	c, err := client.New(url, client.LocalDevelopment)
	require.NoError(t, err)
	session := conversation.NewSession()

	msg, err := New(session, c).SubmitText(context.Background(), "q")
	require.NoError(t, err)
	assert.Equal(t, MsgConnectFailed, msg.Content)
	assert.Equal(t, MsgConnectFailed, session.LastError())
	assert.False(t, session.Loading())
}
