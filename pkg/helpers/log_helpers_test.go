package helpers

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	published []*message.Message
}

func (r *recordingPublisher) Publish(topic string, messages ...*message.Message) error {
	r.published = append(r.published, messages...)
	return nil
}

func (r *recordingPublisher) Close() error {
	return nil
}

func TestCorrelationPublisherDecorator(t *testing.T) {
	rec := &recordingPublisher{}
	p := CorrelationPublisherDecorator{Publisher: rec}

	withID := message.NewMessage(watermill.NewUUID(), nil)
	withID.SetContext(ContextWithCorrelationID(context.Background(), "session-1"))

	preset := message.NewMessage(watermill.NewUUID(), nil)
	preset.Metadata.Set(CorrelationIDMetadataKey, "kept")

	generated := message.NewMessage(watermill.NewUUID(), nil)

	require.NoError(t, p.Publish("session", withID, preset, generated))

	assert.Equal(t, "session-1", rec.published[0].Metadata.Get(CorrelationIDMetadataKey))
	assert.Equal(t, "kept", rec.published[1].Metadata.Get(CorrelationIDMetadataKey))
	assert.True(t, strings.HasPrefix(rec.published[2].Metadata.Get(CorrelationIDMetadataKey), "gen_"))
}

func TestWatermillZerologAdapter(t *testing.T) {
	buf := &bytes.Buffer{}
	adapter := NewWatermill(zerolog.New(buf).Level(zerolog.DebugLevel))

	adapter.With(watermill.LogFields{"topic": "session"}).Info("subscribed", nil)
	adapter.Error("publish failed", errors.New("closed"), watermill.LogFields{"attempt": 1})

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, `"topic":"session"`)
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, `"error":"closed"`)
	assert.Contains(t, out, `"attempt":1`)
}
