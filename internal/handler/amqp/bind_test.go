package amqp

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gamenight/scheduler/internal/domain/event"
)

func handlerForTest() *AnnounceHandler {
	return &AnnounceHandler{logger: slog.New(slog.DiscardHandler)}
}

func wireMessage(t *testing.T, ev event.Event) *message.Message {
	t.Helper()
	payload, err := event.Wrap(ev, time.Now())
	require.NoError(t, err)
	return message.NewMessage("msg-1", payload)
}

func TestBindDeliversDecodedPayload(t *testing.T) {
	var got *event.SessionUpdated
	fn := Bind(handlerForTest(), func(_ context.Context, p *event.SessionUpdated) error {
		got = p
		return nil
	})

	err := fn(wireMessage(t, event.SessionUpdated{SessionID: "abc"}))
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "abc", got.SessionID)
}

func TestBindAcksPoisonPayloads(t *testing.T) {
	called := false
	fn := Bind(handlerForTest(), func(context.Context, *event.SessionUpdated) error {
		called = true
		return nil
	})

	assert.NoError(t, fn(message.NewMessage("msg-1", []byte("not json"))),
		"malformed payloads must ACK, redelivery cannot fix them")
	assert.NoError(t, fn(message.NewMessage("msg-2", []byte(`{"data":{}}`))),
		"envelopes without a type are poison too")
	assert.False(t, called)
}

func TestBindNacksHandlerFailures(t *testing.T) {
	boom := errors.New("platform 503")
	fn := Bind(handlerForTest(), func(context.Context, *event.SessionUpdated) error {
		return boom
	})

	err := fn(wireMessage(t, event.SessionUpdated{SessionID: "abc"}))
	assert.ErrorIs(t, err, boom)
}

func TestBindNacksPanickingHandler(t *testing.T) {
	fn := Bind(handlerForTest(), func(context.Context, *event.SessionUpdated) error {
		panic("nil map write")
	})

	err := fn(wireMessage(t, event.SessionUpdated{SessionID: "abc"}))
	require.Error(t, err, "a panic must dead-letter the message, not ACK it")
	assert.Contains(t, err.Error(), "nil map write")
}
