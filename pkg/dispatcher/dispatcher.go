package dispatcher

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-go-golems/samarth/pkg/client"
	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var (
	// ErrBusy is returned when a query is submitted while another one is in flight.
	ErrBusy = errors.New("a query is already in flight")
	// ErrAbandoned is returned when the conversation was reset before the query settled.
	ErrAbandoned = errors.New("conversation was reset while the query was in flight")
)

// ValidationError is a local input error. It is reported through the session's
// last error and never produces a transcript message.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

var ErrEmptyQuery = &ValidationError{Message: MsgEmptyQuery}

// Backend is the query service as seen by the dispatcher.
type Backend interface {
	Query(ctx context.Context, text string) (*client.QueryResponse, error)
}

type RetryMode string

const (
	// RetryLastMessage resubmits the content of the newest message, whatever its role.
	RetryLastMessage RetryMode = "last-message"
	// RetryLastUserMessage resubmits the newest user question.
	RetryLastUserMessage RetryMode = "last-user-message"
)

func ParseRetryMode(s string) (RetryMode, error) {
	switch RetryMode(strings.TrimSpace(s)) {
	case "", RetryLastMessage:
		return RetryLastMessage, nil
	case RetryLastUserMessage:
		return RetryLastUserMessage, nil
	default:
		return "", errors.Errorf("unknown retry mode %q", s)
	}
}

// Dispatcher turns a question into exactly one request against the backend and
// exactly one resulting transcript message. Only one query runs at a time.
type Dispatcher struct {
	session    *conversation.Session
	backend    Backend
	extractors []ErrorExtractor
	timeout    time.Duration
	retryMode  RetryMode

	inFlight atomic.Bool
}

type Option func(*Dispatcher)

func WithExtractors(extractors ...ErrorExtractor) Option {
	return func(d *Dispatcher) {
		d.extractors = extractors
	}
}

// WithTimeout bounds each query. A query that exceeds it settles as a connectivity failure.
func WithTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		d.timeout = timeout
	}
}

func WithRetryMode(mode RetryMode) Option {
	return func(d *Dispatcher) {
		d.retryMode = mode
	}
}

func New(session *conversation.Session, backend Backend, options ...Option) *Dispatcher {
	ret := &Dispatcher{
		session:    session,
		backend:    backend,
		extractors: DefaultExtractors(),
		retryMode:  RetryLastMessage,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (d *Dispatcher) Session() *conversation.Session {
	return d.session
}

// Busy reports whether a query is in flight.
func (d *Dispatcher) Busy() bool {
	return d.inFlight.Load()
}

// SubmitPending submits the session's pending input.
func (d *Dispatcher) SubmitPending(ctx context.Context) (*conversation.Message, error) {
	return d.Submit(ctx, nil)
}

// SubmitText submits text, ignoring the pending input.
func (d *Dispatcher) SubmitText(ctx context.Context, text string) (*conversation.Message, error) {
	return d.Submit(ctx, &text)
}

// Submit runs one query. rawText overrides the pending input when non-nil.
//
// It blocks until the query settles and returns the appended assistant or error
// message. Backend and transport failures are never returned as errors: they
// become error messages in the transcript. The returned error is ErrBusy,
// ErrEmptyQuery or ErrAbandoned.
func (d *Dispatcher) Submit(ctx context.Context, rawText *string) (*conversation.Message, error) {
	if !d.inFlight.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	defer d.inFlight.Store(false)

	text := d.session.PendingInput()
	if rawText != nil {
		text = *rawText
	}
	text = strings.TrimSpace(text)

	d.session.SetError("")
	if text == "" {
		d.session.SetError(MsgEmptyQuery)
		return nil, ErrEmptyQuery
	}

	userMsg, generation := d.session.AppendTracked(conversation.NewUserMessage(text))
	d.session.SetPendingInput("")
	d.session.SetLoading(true)
	defer d.session.SetLoading(false)

	logger := log.With().
		Str("session", d.session.ID()).
		Str("message", userMsg.ID.String()).
		Logger()
	logger.Info().Str("query", text).Msg("submitting query")

	start := time.Now()
	result := d.dispatch(ctx, text)

	stored, ok := d.session.AppendToGeneration(generation, result)
	if !ok {
		logger.Info().Msg("conversation was reset, dropping response")
		return nil, ErrAbandoned
	}

	if stored.Role == conversation.RoleError {
		d.session.SetError(stored.Content)
		logger.Warn().Str("error", stored.Content).Dur("duration", time.Since(start)).Msg("query failed")
	} else {
		logger.Info().Int("sources", len(stored.Sources)).Dur("duration", time.Since(start)).Msg("query answered")
	}

	return stored, nil
}

func (d *Dispatcher) dispatch(ctx context.Context, text string) *conversation.Message {
	if d.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	resp, err := d.backend.Query(ctx, text)
	switch {
	case err == nil && resp != nil:
		return conversation.NewAssistantMessage(resp.Answer,
			conversation.WithSources(resp.Sources...),
			conversation.WithData(resp.Data),
			conversation.WithMetadata(resp.Metadata),
		)

	case err == nil, errors.Is(err, client.ErrEmptyResponse):
		return conversation.NewErrorMessage(MsgNoResponse)

	default:
		log.Debug().Err(err).Msg("query transport failure")
		return conversation.NewErrorMessage(Describe(NewFailure(err), d.extractors))
	}
}

// Retry resubmits according to the retry mode. With an empty history it behaves
// like submitting an empty question.
func (d *Dispatcher) Retry(ctx context.Context) (*conversation.Message, error) {
	var (
		last *conversation.Message
		ok   bool
	)
	switch d.retryMode {
	case RetryLastUserMessage:
		last, ok = d.session.LastUserMessage()
	default:
		last, ok = d.session.LastMessage()
	}

	text := ""
	if ok {
		text = last.Content
	}
	return d.Submit(ctx, &text)
}

func (d *Dispatcher) DismissError() {
	d.session.SetError("")
}

func (d *Dispatcher) UpdatePendingInput(text string) {
	d.session.SetPendingInput(text)
}
