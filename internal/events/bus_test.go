package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"licbind/internal/infrastructure"
	"licbind/pkg/contracts/events"
)

func TestBusPublishFramesEvents(t *testing.T) {
	bus := NewBus(nil, nil)
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	ctx := infrastructure.WithTraceID(context.Background(), "trace-42")
	bus.Publish(ctx, events.EventLicenseMinted, map[string]interface{}{"token_id": 1})

	frame := <-ch
	assert.Equal(t, events.ProtocolVersion, frame.Version)
	assert.Equal(t, events.EventLicenseMinted, frame.Type)
	assert.Equal(t, uint64(1), frame.Sequence)
	assert.Equal(t, "trace-42", frame.TraceID)
	assert.NotEmpty(t, frame.ID)
	assert.False(t, frame.Timestamp.IsZero())

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(frame.Payload, &payload))
	assert.EqualValues(t, 1, payload["token_id"])
}

func TestBusSequenceIsStrictlyIncreasing(t *testing.T) {
	bus := NewBus(nil, nil)
	ch, cancel := bus.Subscribe(16)
	defer cancel()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		bus.Publish(ctx, events.EventOfferCreated, map[string]interface{}{"n": i})
	}

	var last uint64
	for i := 0; i < 5; i++ {
		frame := <-ch
		assert.Greater(t, frame.Sequence, last)
		last = frame.Sequence
	}
}

func TestBusUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus(nil, nil)
	ch, cancel := bus.Subscribe(8)
	cancel()

	// The channel is closed; publishing must not panic.
	bus.Publish(context.Background(), events.EventOpenMintingToggled, nil)

	_, open := <-ch
	assert.False(t, open)
}

func TestBusFullSubscriberDoesNotBlockPublish(t *testing.T) {
	bus := NewBus(nil, nil)
	_, cancel := bus.Subscribe(1)
	defer cancel()

	ctx := context.Background()
	// Second and third publishes overflow the buffer and are dropped, not
	// blocked on.
	bus.Publish(ctx, events.EventOfferCreated, nil)
	bus.Publish(ctx, events.EventOfferCreated, nil)
	bus.Publish(ctx, events.EventOfferCreated, nil)
}

func TestBusUnmarshalablePayloadIsDropped(t *testing.T) {
	bus := NewBus(nil, nil)
	ch, cancel := bus.Subscribe(8)
	defer cancel()

	bus.Publish(context.Background(), events.EventOpenMintingToggled, map[string]interface{}{
		"bad": func() {},
	})

	select {
	case frame := <-ch:
		t.Fatalf("expected no frame, got %v", frame.Type)
	default:
	}
}
