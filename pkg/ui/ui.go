package ui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/go-go-golems/samarth/pkg/client"
	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/go-go-golems/samarth/pkg/dispatcher"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// states:
// - user input
// - user moving around messages
// - waiting for the backend
// - showing error

type State string

const (
	StateUserInput    State = "user_input"
	StateMovingAround State = "moving_around"
	StateLoading      State = "loading"
	StateError        State = "error"
)

const DefaultTranscriptFile = "samarth-transcript.yaml"

// ServiceInfo is the part of the backend the UI queries outside of conversations.
type ServiceInfo interface {
	client.SampleQuestionSource
	Health(ctx context.Context) (*client.HealthStatus, error)
}

// SessionChangedMsg is sent into the program for every session notification.
type SessionChangedMsg struct {
	Event conversation.ChangeEvent
}

type queryDoneMsg struct {
	err error
}

type samplesMsg struct {
	questions []string
	fallback  bool
}

type healthMsg struct {
	status string
}

type exportedMsg struct {
	path string
	err  error
}

type Model struct {
	ctx        context.Context
	dispatcher *dispatcher.Dispatcher
	info       ServiceInfo

	snapshot conversation.Snapshot

	viewport viewport.Model
	textArea textarea.Model
	help     help.Model
	spinner  spinner.Model

	renderer      *glamour.TermRenderer
	rendererWidth int
	markdownStyle string

	keyMap KeyMap
	style  *Style
	width  int
	height int

	samples         []string
	samplesFallback bool
	health          string
	transcriptFile  string
	status          string

	state State
}

type ModelOption func(*Model)

func WithContext(ctx context.Context) ModelOption {
	return func(m *Model) {
		m.ctx = ctx
	}
}

func WithServiceInfo(info ServiceInfo) ModelOption {
	return func(m *Model) {
		m.info = info
	}
}

// WithTranscriptFile sets where ctrl+s exports the transcript.
func WithTranscriptFile(path string) ModelOption {
	return func(m *Model) {
		if path != "" {
			m.transcriptFile = path
		}
	}
}

// WithMarkdownStyle selects the glamour style used for answers. "auto" detects
// the terminal background.
func WithMarkdownStyle(style string) ModelOption {
	return func(m *Model) {
		m.markdownStyle = style
	}
}

func WithKeyMap(keyMap KeyMap) ModelOption {
	return func(m *Model) {
		m.keyMap = keyMap
	}
}

func NewModel(d *dispatcher.Dispatcher, options ...ModelOption) Model {
	ret := Model{
		ctx:            context.Background(),
		dispatcher:     d,
		style:          DefaultStyles(),
		keyMap:         DefaultKeyMap,
		viewport:       viewport.New(0, 0),
		help:           help.New(),
		markdownStyle:  "dark",
		transcriptFile: DefaultTranscriptFile,
		health:         "checking",
	}

	for _, o := range options {
		o(&ret)
	}

	ret.spinner = spinner.New()
	ret.spinner.Spinner = spinner.Dot

	ret.textArea = textarea.New()
	ret.textArea.Placeholder = "Ask about crops, rainfall or agricultural policy..."
	ret.textArea.ShowLineNumbers = false
	ret.textArea.SetHeight(3)
	ret.textArea.Focus()
	ret.state = StateUserInput

	ret.snapshot = d.Session().Snapshot()
	ret.textArea.SetValue(ret.snapshot.PendingInput)
	ret.syncState()

	ret.viewport.SetContent(ret.messageView())
	ret.viewport.YPosition = 0
	ret.viewport.GotoBottom()

	return ret
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		textarea.Blink,
		m.spinner.Tick,
		m.fetchSamples(),
		m.checkHealth(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keyMap.Quit):
			return m, tea.Quit

		case key.Matches(msg, m.keyMap.Help):
			m.help.ShowAll = !m.help.ShowAll
			m.recomputeSize()

		case key.Matches(msg, m.keyMap.DismissError):
			m.dispatcher.DismissError()
			cmds = append(cmds, m.refresh())

		case key.Matches(msg, m.keyMap.Retry):
			m.setLoading()
			cmds = append(cmds, m.run(m.dispatcher.Retry))

		case key.Matches(msg, m.keyMap.NewConversation):
			m.dispatcher.Session().Reset()
			m.textArea.Reset()
			m.status = ""
			cmds = append(cmds, m.refresh())

		case key.Matches(msg, m.keyMap.SaveToFile):
			cmds = append(cmds, m.export())

		case key.Matches(msg, m.keyMap.UnfocusMessage):
			m.textArea.Blur()
			m.state = StateMovingAround
			m.updateKeyBindings()

		case key.Matches(msg, m.keyMap.FocusMessage):
			cmds = append(cmds, m.textArea.Focus())
			m.state = StateUserInput
			m.updateKeyBindings()

		case key.Matches(msg, m.keyMap.SubmitMessage):
			cmds = append(cmds, m.submit())

		case m.sampleKeysActive() && key.Matches(msg, m.keyMap.AskSample):
			idx := int(msg.String()[0] - '1')
			if idx >= 0 && idx < len(m.samples) {
				cmds = append(cmds, m.ask(m.samples[idx]))
			}

		default:
			switch m.state {
			case StateUserInput:
				before := m.textArea.Value()
				m.textArea, cmd = m.textArea.Update(msg)
				cmds = append(cmds, cmd)
				if v := m.textArea.Value(); v != before {
					m.dispatcher.UpdatePendingInput(v)
				}
				m.updateKeyBindings()
			case StateMovingAround, StateLoading, StateError:
				m.viewport, cmd = m.viewport.Update(msg)
				cmds = append(cmds, cmd)
			}
			return m, tea.Batch(cmds...)
		}
		return m, tea.Batch(cmds...)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width
		m.recomputeSize()

	case SessionChangedMsg:
		// events can be delivered out of order, anything at or below the
		// rendered version is already on screen
		switch {
		case msg.Event.Version <= m.snapshot.Version:
		case msg.Event.Kind == conversation.ChangePendingInput:
			// the input box already shows what was typed
			m.snapshot.Version = msg.Event.Version
		default:
			cmds = append(cmds, m.refresh())
		}

	case queryDoneMsg:
		if msg.err != nil {
			log.Debug().Err(msg.err).Msg("query did not produce a message")
		}
		cmds = append(cmds, m.refresh())

	case samplesMsg:
		m.samples = msg.questions
		m.samplesFallback = msg.fallback
		m.updateKeyBindings()
		m.recomputeSize()

	case healthMsg:
		m.health = msg.status
		m.recomputeSize()

	case exportedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("could not save transcript: %s", msg.err)
		} else {
			m.status = fmt.Sprintf("transcript saved to %s", msg.path)
		}
		m.recomputeSize()

	case spinner.TickMsg:
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
		return m, tea.Batch(cmds...)
	}

	m.viewport, cmd = m.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return m, tea.Batch(cmds...)
}

func (m Model) State() State {
	return m.state
}

func (m *Model) updateKeyBindings() {
	idle := m.state == StateUserInput || m.state == StateMovingAround

	m.keyMap.SaveToFile.SetEnabled(true)
	m.keyMap.NewConversation.SetEnabled(true)

	m.keyMap.FocusMessage.SetEnabled(m.state == StateMovingAround)
	m.keyMap.UnfocusMessage.SetEnabled(m.state == StateUserInput)
	m.keyMap.SubmitMessage.SetEnabled(m.state == StateUserInput)
	m.keyMap.AskSample.SetEnabled(idle && len(m.samples) > 0)

	m.keyMap.DismissError.SetEnabled(m.state == StateError)
	m.keyMap.Retry.SetEnabled(m.state == StateError)
}

// sampleKeysActive reports whether digits pick a sample question rather than
// being typed into the input.
func (m Model) sampleKeysActive() bool {
	if len(m.samples) == 0 {
		return false
	}
	switch m.state {
	case StateMovingAround:
		return true
	case StateUserInput:
		return m.textArea.Value() == ""
	default:
		return false
	}
}

// syncState derives the UI state from the session. Loading and error states
// follow the session, the two idle states are chosen by the user.
func (m *Model) syncState() tea.Cmd {
	var cmd tea.Cmd
	switch {
	case m.snapshot.Loading:
		m.state = StateLoading
		m.textArea.Blur()
	case m.snapshot.LastError != "":
		m.state = StateError
		m.textArea.Blur()
	case m.state == StateLoading || m.state == StateError:
		m.state = StateUserInput
		cmd = m.textArea.Focus()
	}
	m.updateKeyBindings()
	return cmd
}

func (m *Model) refresh() tea.Cmd {
	m.snapshot = m.dispatcher.Session().Snapshot()
	cmd := m.syncState()
	m.recomputeSize()
	return cmd
}

func (m *Model) setLoading() {
	m.state = StateLoading
	m.textArea.Blur()
	m.updateKeyBindings()
}

func (m *Model) submit() tea.Cmd {
	if m.state != StateUserInput || m.dispatcher.Busy() {
		return nil
	}

	value := m.textArea.Value()
	m.dispatcher.UpdatePendingInput(value)
	if strings.TrimSpace(value) != "" {
		m.textArea.Reset()
		m.setLoading()
	}

	return m.run(m.dispatcher.SubmitPending)
}

func (m *Model) ask(question string) tea.Cmd {
	if m.dispatcher.Busy() {
		return nil
	}
	m.setLoading()
	d := m.dispatcher
	return m.run(func(ctx context.Context) (*conversation.Message, error) {
		return d.SubmitText(ctx, question)
	})
}

func (m Model) run(f func(ctx context.Context) (*conversation.Message, error)) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		_, err := f(ctx)
		return queryDoneMsg{err: err}
	}
}

func (m Model) fetchSamples() tea.Cmd {
	ctx := m.ctx
	info := m.info
	return func() tea.Msg {
		var src client.SampleQuestionSource
		if info != nil {
			src = info
		}
		questions, fallback := client.SampleQuestionsOrDefault(ctx, src)
		return samplesMsg{questions: questions, fallback: fallback}
	}
}

func (m Model) checkHealth() tea.Cmd {
	ctx := m.ctx
	info := m.info
	return func() tea.Msg {
		if info == nil {
			return healthMsg{status: "unknown"}
		}
		status, err := info.Health(ctx)
		if err != nil {
			log.Debug().Err(err).Msg("health check failed")
			return healthMsg{status: "unreachable"}
		}
		if status.Status == "" {
			return healthMsg{status: "unknown"}
		}
		return healthMsg{status: status.Status}
	}
}

func (m Model) export() tea.Cmd {
	snapshot := m.dispatcher.Session().Snapshot()
	path := m.transcriptFile
	return func() tea.Msg {
		err := snapshot.SaveToFile(path)
		if err != nil {
			err = errors.Wrap(err, "export")
		}
		return exportedMsg{path: path, err: err}
	}
}

func (m *Model) updateRenderer() {
	width := m.width - 8
	if width <= 0 || (m.renderer != nil && width == m.rendererWidth) {
		return
	}

	styleOption := glamour.WithStandardStyle(m.markdownStyle)
	if m.markdownStyle == "auto" {
		styleOption = glamour.WithAutoStyle()
	}
	r, err := glamour.NewTermRenderer(styleOption, glamour.WithWordWrap(width))
	if err != nil {
		log.Warn().Err(err).Str("style", m.markdownStyle).Msg("could not create markdown renderer")
		m.renderer = nil
		return
	}
	m.renderer = r
	m.rendererWidth = width
}

func (m *Model) recomputeSize() {
	headerHeight := lipgloss.Height(m.headerView())
	textAreaHeight := lipgloss.Height(m.textAreaView())
	helpViewHeight := lipgloss.Height(m.help.View(m.keyMap))

	newHeight := m.height - textAreaHeight - headerHeight - helpViewHeight
	if newHeight < 0 {
		newHeight = 0
	}
	m.viewport.Width = m.width
	m.viewport.Height = newHeight
	m.viewport.YPosition = headerHeight + 1

	h, _ := m.style.FocusedMessage.GetFrameSize()
	if m.width-h > 0 {
		m.textArea.SetWidth(m.width - h)
	}

	m.updateRenderer()
	m.viewport.SetContent(m.messageView())
	m.viewport.GotoBottom()
}

func (m Model) headerView() string {
	return m.style.Header.Render(fmt.Sprintf("SAMARTH · agri-climate Q&A · server: %s", m.health))
}

func (m Model) contentWidth() int {
	w, _ := m.style.UnselectedMessage.GetFrameSize()
	return m.width - w
}

func roleLabel(role conversation.Role) string {
	switch role {
	case conversation.RoleUser:
		return "You"
	case conversation.RoleAssistant:
		return "Samarth"
	case conversation.RoleError:
		return "Error"
	default:
		return string(role)
	}
}

func (m Model) renderMessage(msg *conversation.Message) string {
	width := m.contentWidth()

	var body string
	switch msg.Role {
	case conversation.RoleAssistant:
		body = m.renderMarkdown(msg.Content)
	case conversation.RoleError:
		body = m.style.ErrorBanner.Render(wrapWords(msg.Content, width-4))
	default:
		body = wrapWords(msg.Content, width)
	}

	var sb strings.Builder
	sb.WriteString(m.style.Role.Render(roleLabel(msg.Role)))
	sb.WriteString(" ")
	sb.WriteString(m.style.Muted.Render(msg.Timestamp.Local().Format("15:04:05")))
	sb.WriteString("\n")
	sb.WriteString(body)

	if len(msg.Sources) > 0 {
		sb.WriteString("\n")
		sb.WriteString(m.style.Role.Render("Sources"))
		for _, s := range msg.Sources {
			sb.WriteString("\n")
			sb.WriteString(m.style.Citation.Render(wrapWords("• "+conversation.FormatCitation(s), width)))
		}
	}

	return sb.String()
}

func (m Model) renderMarkdown(content string) string {
	if m.renderer == nil {
		return wrapWords(content, m.contentWidth())
	}
	out, err := m.renderer.Render(content)
	if err != nil {
		log.Debug().Err(err).Msg("could not render markdown")
		return wrapWords(content, m.contentWidth())
	}
	return strings.Trim(out, "\n")
}

func (m Model) samplesView() string {
	if len(m.samples) == 0 {
		return ""
	}
	width := m.contentWidth()

	var sb strings.Builder
	sb.WriteString(m.style.Role.Render("Try one of these questions:"))
	for i, q := range m.samples {
		if i >= 9 {
			break
		}
		sb.WriteString("\n")
		sb.WriteString(wrapWords(fmt.Sprintf("%d. %s", i+1, q), width))
	}
	if m.samplesFallback {
		sb.WriteString("\n")
		sb.WriteString(m.style.Muted.Render("(server did not provide sample questions)"))
	}
	return sb.String()
}

func (m Model) messageView() string {
	style := m.style.UnselectedMessage
	if m.width > 0 {
		style = style.Width(m.width - style.GetHorizontalBorderSize())
	}

	if len(m.snapshot.Messages) == 0 {
		v := m.samplesView()
		if v == "" {
			return ""
		}
		return style.Render(v) + "\n"
	}

	ret := ""
	for _, msg := range m.snapshot.Messages {
		ret += style.Render(m.renderMessage(msg))
		ret += "\n"
	}

	return ret
}

func (m Model) textAreaView() string {
	var v string

	switch m.state {
	case StateLoading:
		v = m.style.UnselectedMessage.Render(m.spinner.View() + " Fetching answer...")

	case StateError:
		w, _ := m.style.ErrorBanner.GetFrameSize()
		v = m.style.ErrorBanner.Render(wrapWords(m.snapshot.LastError, m.width-w))

	case StateUserInput:
		v = m.style.FocusedMessage.Render(m.textArea.View())

	case StateMovingAround:
		v = m.style.UnselectedMessage.Render(m.textArea.View())
	}

	if m.status != "" {
		v += "\n" + m.style.Muted.Render(m.status)
	}

	return v
}

func (m Model) View() string {
	return m.headerView() + "\n" + m.viewport.View() + "\n" + m.textAreaView() + "\n" + m.help.View(m.keyMap)
}
