package ui

import (
	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/samarth/pkg/events"
	"github.com/rs/zerolog/log"
)

// SessionForwardFunc returns a router handler that forwards session change
// events to p. Malformed events are logged and acked.
func SessionForwardFunc(p *tea.Program) func(msg *message.Message) error {
	return func(msg *message.Message) error {
		msg.Ack()

		ev, err := events.ChangeEventFromJSON(msg.Payload)
		if err != nil {
			log.Warn().Err(err).Str("message_id", msg.UUID).Msg("dropping malformed session event")
			return nil
		}

		p.Send(SessionChangedMsg{Event: ev})
		return nil
	}
}
