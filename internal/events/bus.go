package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"licbind/internal/infrastructure"
	"licbind/pkg/contracts/events"
)

// Bus frames registry events and delivers them to the websocket hub and any
// in-process subscribers. Sequence numbers are global and strictly
// increasing in publish order; indexers use them to detect gaps.
type Bus struct {
	hub    *Hub
	logger *slog.Logger
	seq    atomic.Uint64

	mu   sync.RWMutex
	subs map[int]chan events.Frame
	next int
}

// NewBus creates a bus feeding the given hub. A nil hub is allowed; the bus
// then serves in-process subscribers only.
func NewBus(hub *Hub, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = infrastructure.GetLogger()
	}
	return &Bus{
		hub:    hub,
		logger: logger.With(slog.String("component", "events.bus")),
		subs:   make(map[int]chan events.Frame),
	}
}

// Publish frames an event and fans it out. Delivery is best-effort and never
// blocks the publisher: a full in-process subscriber misses the frame.
func (b *Bus) Publish(ctx context.Context, eventType events.EventType, payload interface{}) {
	raw, err := json.Marshal(payload)
	if err != nil {
		b.logger.Error("event payload marshal failed",
			slog.String("type", string(eventType)),
			slog.String("error", err.Error()))
		return
	}

	frame := events.Frame{
		Version:   events.ProtocolVersion,
		ID:        uuid.New().String(),
		Type:      eventType,
		Payload:   raw,
		Timestamp: time.Now().UTC(),
		Sequence:  b.seq.Add(1),
		TraceID:   infrastructure.GetTraceID(ctx),
	}

	if b.hub != nil {
		data, err := json.Marshal(frame)
		if err != nil {
			b.logger.Error("frame marshal failed", slog.String("error", err.Error()))
		} else {
			b.hub.Broadcast(data)
		}
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- frame:
		default:
		}
	}
}

// Subscribe registers an in-process subscriber. The returned cancel function
// closes the channel and must be called exactly once.
func (b *Bus) Subscribe(buffer int) (<-chan events.Frame, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan events.Frame, buffer)

	b.mu.Lock()
	id := b.next
	b.next++
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, cancel
}
