package conversation

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type ChangeKind string

const (
	ChangeMessageAppended ChangeKind = "message-appended"
	ChangeLoading         ChangeKind = "loading"
	ChangeError           ChangeKind = "error"
	ChangePendingInput    ChangeKind = "pending-input"
	ChangeReset           ChangeKind = "reset"
)

// ChangeEvent is sent to observers after every mutation of a Session.
// Version increases by one per mutation, so observers receiving events
// out of order can tell which one is newest.
type ChangeEvent struct {
	Kind         ChangeKind `json:"kind"`
	SessionID    string     `json:"sessionID"`
	Generation   uint64     `json:"generation"`
	Version      uint64     `json:"version"`
	MessageID    string     `json:"messageID,omitempty"`
	MessageCount int        `json:"messageCount"`
	Loading      bool       `json:"loading"`
	LastError    string     `json:"lastError,omitempty"`
}

type Observer interface {
	SessionChanged(ev ChangeEvent)
}

type ObserverFunc func(ev ChangeEvent)

func (f ObserverFunc) SessionChanged(ev ChangeEvent) {
	f(ev)
}

// Snapshot is a consistent, deep-copied view of a Session.
type Snapshot struct {
	SessionID    string     `json:"sessionID" yaml:"sessionID"`
	Generation   uint64     `json:"generation" yaml:"generation"`
	Version      uint64     `json:"version" yaml:"version"`
	Messages     []*Message `json:"messages" yaml:"messages"`
	PendingInput string     `json:"pendingInput" yaml:"pendingInput"`
	Loading      bool       `json:"loading" yaml:"loading"`
	LastError    string     `json:"lastError" yaml:"lastError"`
}

func (s Snapshot) LastMessage() (*Message, bool) {
	if len(s.Messages) == 0 {
		return nil, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Session owns the transcript and the input/loading/error state of the single
// conversation. All mutations go through its methods.
type Session struct {
	mu sync.RWMutex

	id         uuid.UUID
	generation uint64
	version    uint64

	messages     []*Message
	pendingInput string
	loading      bool
	lastError    string

	observers []Observer
	now       func() time.Time
}

type SessionOption func(*Session)

func WithClock(now func() time.Time) SessionOption {
	return func(s *Session) {
		s.now = now
	}
}

func WithObservers(observers ...Observer) SessionOption {
	return func(s *Session) {
		s.observers = append(s.observers, observers...)
	}
}

func NewSession(options ...SessionOption) *Session {
	ret := &Session{
		id:       uuid.New(),
		messages: []*Message{},
		now:      time.Now,
	}
	for _, option := range options {
		option(ret)
	}
	return ret
}

func (s *Session) ID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.id.String()
}

// Subscribe registers an observer. Observers are called synchronously, after the
// session lock has been released, from the goroutine that performed the mutation.
func (s *Session) Subscribe(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// AppendMessage stamps msg with the current time and appends a copy of it to the
// transcript. It returns the stored copy.
func (s *Session) AppendMessage(msg *Message) *Message {
	s.mu.Lock()
	stored := s.appendLocked(msg)
	ev, observers := s.eventLocked(ChangeMessageAppended, stored.ID.String())
	s.mu.Unlock()

	s.notify(observers, ev)
	return stored.Clone()
}

// AppendTracked appends msg like AppendMessage and also returns the generation it
// was appended to, for use with AppendToGeneration.
func (s *Session) AppendTracked(msg *Message) (*Message, uint64) {
	s.mu.Lock()
	stored := s.appendLocked(msg)
	generation := s.generation
	ev, observers := s.eventLocked(ChangeMessageAppended, stored.ID.String())
	s.mu.Unlock()

	s.notify(observers, ev)
	return stored.Clone(), generation
}

// AppendToGeneration appends msg only if no Reset happened since generation was read.
// It reports whether the message was appended.
func (s *Session) AppendToGeneration(generation uint64, msg *Message) (*Message, bool) {
	s.mu.Lock()
	if s.generation != generation {
		s.mu.Unlock()
		log.Debug().
			Uint64("generation", generation).
			Str("role", string(msg.Role)).
			Msg("dropping message for a reset conversation")
		return nil, false
	}
	stored := s.appendLocked(msg)
	ev, observers := s.eventLocked(ChangeMessageAppended, stored.ID.String())
	s.mu.Unlock()

	s.notify(observers, ev)
	return stored.Clone(), true
}

func (s *Session) appendLocked(msg *Message) *Message {
	stored := msg.Clone()
	if stored.ID == uuid.Nil {
		stored.ID = uuid.New()
	}
	stored.Timestamp = s.now().UTC()
	if stored.Data == nil {
		stored.Data = map[string]interface{}{}
	}
	if stored.Sources == nil {
		stored.Sources = []SourceCitation{}
	}
	s.messages = append(s.messages, stored)
	return stored
}

func (s *Session) SetLoading(loading bool) {
	s.mu.Lock()
	if s.loading == loading {
		s.mu.Unlock()
		return
	}
	s.loading = loading
	ev, observers := s.eventLocked(ChangeLoading, "")
	s.mu.Unlock()

	s.notify(observers, ev)
}

// SetError replaces the last error. An empty string clears it.
func (s *Session) SetError(text string) {
	s.mu.Lock()
	if s.lastError == text {
		s.mu.Unlock()
		return
	}
	s.lastError = text
	ev, observers := s.eventLocked(ChangeError, "")
	s.mu.Unlock()

	s.notify(observers, ev)
}

func (s *Session) SetPendingInput(text string) {
	s.mu.Lock()
	if s.pendingInput == text {
		s.mu.Unlock()
		return
	}
	s.pendingInput = text
	ev, observers := s.eventLocked(ChangePendingInput, "")
	s.mu.Unlock()

	s.notify(observers, ev)
}

// Reset starts a new conversation: history, input and error are cleared and the
// generation is bumped so that responses to requests issued before the reset are
// dropped. The loading flag is left to the request that set it.
func (s *Session) Reset() {
	s.mu.Lock()
	s.id = uuid.New()
	s.generation++
	s.messages = []*Message{}
	s.pendingInput = ""
	s.lastError = ""
	ev, observers := s.eventLocked(ChangeReset, "")
	s.mu.Unlock()

	log.Debug().Str("session", ev.SessionID).Uint64("generation", ev.Generation).Msg("conversation reset")
	s.notify(observers, ev)
}

func (s *Session) PendingInput() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pendingInput
}

func (s *Session) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loading
}

func (s *Session) LastError() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastError
}

func (s *Session) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Session) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.messages)
}

// LastMessage returns a copy of the most recent message of any role.
func (s *Session) LastMessage() (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.messages) == 0 {
		return nil, false
	}
	return s.messages[len(s.messages)-1].Clone(), true
}

func (s *Session) LastUserMessage() (*Message, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].Role == RoleUser {
			return s.messages[i].Clone(), true
		}
	}
	return nil, false
}

func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	msgs := make([]*Message, len(s.messages))
	for i, m := range s.messages {
		msgs[i] = m.Clone()
	}

	return Snapshot{
		SessionID:    s.id.String(),
		Generation:   s.generation,
		Version:      s.version,
		Messages:     msgs,
		PendingInput: s.pendingInput,
		Loading:      s.loading,
		LastError:    s.lastError,
	}
}

func (s *Session) eventLocked(kind ChangeKind, messageID string) (ChangeEvent, []Observer) {
	s.version++
	ev := ChangeEvent{
		Kind:         kind,
		SessionID:    s.id.String(),
		Generation:   s.generation,
		Version:      s.version,
		MessageID:    messageID,
		MessageCount: len(s.messages),
		Loading:      s.loading,
		LastError:    s.lastError,
	}
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	return ev, observers
}

func (s *Session) notify(observers []Observer, ev ChangeEvent) {
	for _, o := range observers {
		o.SessionChanged(ev)
	}
}
