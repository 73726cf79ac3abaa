package conversation

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/huandu/go-clone"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleError     Role = "error"
)

// NoAnswerPlaceholder is the assistant content used when the backend sends no answer text.
const NoAnswerPlaceholder = "No answer generated."

func (r Role) Valid() bool {
	switch r {
	case RoleUser, RoleAssistant, RoleError:
		return true
	default:
		return false
	}
}

// Filters keeps the backend's filters_applied object in the order the keys were received.
type Filters = orderedmap.OrderedMap[string, interface{}]

// NewFilters builds a Filters mapping from alternating key/value pairs.
func NewFilters(kv ...interface{}) *Filters {
	f := orderedmap.New[string, interface{}]()
	for i := 0; i+1 < len(kv); i += 2 {
		f.Set(fmt.Sprint(kv[i]), kv[i+1])
	}
	return f
}

// SourceCitation describes which dataset and filters produced the data behind an answer.
type SourceCitation struct {
	Dataset          string   `json:"dataset,omitempty" yaml:"dataset,omitempty"`
	FiltersApplied   *Filters `json:"filters_applied,omitempty" yaml:"-"`
	RecordsRetrieved *int64   `json:"records_retrieved,omitempty" yaml:"records_retrieved,omitempty"`
	URL              string   `json:"url,omitempty" yaml:"url,omitempty"`
}

// UnmarshalJSON decodes a citation leniently: fields with an unexpected shape are
// dropped instead of failing the whole response, and a non-object citation
// decodes to the zero value.
func (c *SourceCitation) UnmarshalJSON(b []byte) error {
	*c = SourceCitation{}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return nil
	}

	if v, ok := raw["dataset"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			c.Dataset = s
		}
	}
	if v, ok := raw["url"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			c.URL = s
		}
	}
	if v, ok := raw["filters_applied"]; ok && bytes.HasPrefix(bytes.TrimSpace(v), []byte("{")) {
		f := orderedmap.New[string, interface{}]()
		if json.Unmarshal(v, f) == nil {
			c.FiltersApplied = f
		}
	}
	if v, ok := raw["records_retrieved"]; ok {
		var n float64
		// a count outside [0, MaxInt64) cannot be represented and renders as N/A
		if json.Unmarshal(v, &n) == nil && n == math.Trunc(n) && n >= 0 && n < math.MaxInt64 {
			records := int64(n)
			c.RecordsRetrieved = &records
		}
	}

	return nil
}

func (c SourceCitation) clone() SourceCitation {
	ret := c
	if c.RecordsRetrieved != nil {
		n := *c.RecordsRetrieved
		ret.RecordsRetrieved = &n
	}
	if c.FiltersApplied != nil {
		f := orderedmap.New[string, interface{}]()
		for pair := c.FiltersApplied.Oldest(); pair != nil; pair = pair.Next() {
			f.Set(pair.Key, clone.Clone(pair.Value))
		}
		ret.FiltersApplied = f
	}
	return ret
}

// Message is one entry of the transcript. Once appended to a Session it is never modified.
type Message struct {
	ID        uuid.UUID `json:"id" yaml:"id"`
	Role      Role      `json:"role" yaml:"role"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`

	Sources []SourceCitation `json:"sources" yaml:"sources"`
	// Data is the backend payload, passed through untouched.
	Data     map[string]interface{} `json:"data" yaml:"data"`
	Metadata map[string]interface{} `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

type MessageOption func(*Message)

func WithID(id uuid.UUID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithTimestamp(t time.Time) MessageOption {
	return func(m *Message) {
		m.Timestamp = t
	}
}

func WithSources(sources ...SourceCitation) MessageOption {
	return func(m *Message) {
		m.Sources = append(m.Sources, sources...)
	}
}

func WithData(data map[string]interface{}) MessageOption {
	return func(m *Message) {
		m.Data = data
	}
}

func WithMetadata(metadata map[string]interface{}) MessageOption {
	return func(m *Message) {
		m.Metadata = metadata
	}
}

func NewMessage(role Role, content string, options ...MessageOption) *Message {
	ret := &Message{
		ID:      uuid.New(),
		Role:    role,
		Content: content,
		Sources: []SourceCitation{},
		Data:    map[string]interface{}{},
	}

	for _, option := range options {
		option(ret)
	}

	if ret.Data == nil {
		ret.Data = map[string]interface{}{}
	}
	if ret.Sources == nil {
		ret.Sources = []SourceCitation{}
	}

	return ret
}

func NewUserMessage(text string) *Message {
	return NewMessage(RoleUser, text)
}

func NewErrorMessage(text string) *Message {
	return NewMessage(RoleError, text)
}

// NewAssistantMessage builds the assistant reply, substituting NoAnswerPlaceholder for a blank answer.
func NewAssistantMessage(answer string, options ...MessageOption) *Message {
	if answer == "" {
		answer = NoAnswerPlaceholder
	}
	return NewMessage(RoleAssistant, answer, options...)
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	ret := *m
	ret.Sources = make([]SourceCitation, len(m.Sources))
	for i, s := range m.Sources {
		ret.Sources[i] = s.clone()
	}
	if m.Data != nil {
		ret.Data = clone.Clone(m.Data).(map[string]interface{})
	}
	if m.Metadata != nil {
		ret.Metadata = clone.Clone(m.Metadata).(map[string]interface{})
	}
	return &ret
}

func (m *Message) String() string {
	return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
}
