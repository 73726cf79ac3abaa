package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/samarth/pkg/conversation"
	"github.com/go-go-golems/samarth/pkg/helpers"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// SessionTopic is the topic session change events are published on.
const SessionTopic = "session"

// SessionPublisher publishes every session change as a JSON encoded
// conversation.ChangeEvent. The session id is used as correlation id.
type SessionPublisher struct {
	publisher message.Publisher
	topic     string
}

var _ conversation.Observer = (*SessionPublisher)(nil)

type PublisherOption func(*SessionPublisher)

func WithTopic(topic string) PublisherOption {
	return func(p *SessionPublisher) {
		p.topic = topic
	}
}

func NewSessionPublisher(publisher message.Publisher, options ...PublisherOption) *SessionPublisher {
	ret := &SessionPublisher{
		publisher: publisher,
		topic:     SessionTopic,
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func (p *SessionPublisher) Publish(ev conversation.ChangeEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return errors.Wrap(err, "could not marshal session event")
	}

	msg := message.NewMessage(watermill.NewUUID(), b)
	msg.SetContext(helpers.ContextWithCorrelationID(context.Background(), ev.SessionID))
	msg.Metadata.Set("kind", string(ev.Kind))

	return p.publisher.Publish(p.topic, msg)
}

// SessionChanged publishes ev. Failures are logged, they never reach the mutating caller.
func (p *SessionPublisher) SessionChanged(ev conversation.ChangeEvent) {
	if err := p.Publish(ev); err != nil {
		log.Warn().Err(err).Str("kind", string(ev.Kind)).Msg("failed to publish session event")
	}
}

func ChangeEventFromJSON(b []byte) (conversation.ChangeEvent, error) {
	var ev conversation.ChangeEvent
	if err := json.Unmarshal(b, &ev); err != nil {
		return ev, errors.Wrap(err, "could not parse session event")
	}
	if ev.Kind == "" {
		return ev, errors.New("session event has no kind")
	}
	return ev, nil
}
