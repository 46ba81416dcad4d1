package events

import (
	"context"
	"sync"

	"github.com/openbridge/gmp-relayer/pkg/types"
)

// EventBus fans observed RelayEvents out to per-destination-chain receivers.
// Monitors publish; one executor loop per configured chain subscribes.
type EventBus struct {
	mu       sync.RWMutex
	channels map[string][]chan *types.RelayEvent
	bufSize  int
	closed   bool
}

func NewEventBus(bufSize int) *EventBus {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &EventBus{
		channels: make(map[string][]chan *types.RelayEvent),
		bufSize:  bufSize,
	}
}

// Subscribe registers a receiver for events destined to the given chain.
func (eb *EventBus) Subscribe(destinationChain string) <-chan *types.RelayEvent {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	ch := make(chan *types.RelayEvent, eb.bufSize)
	eb.channels[destinationChain] = append(eb.channels[destinationChain], ch)
	return ch
}

// HasSubscriber reports whether any receiver handles the given destination.
func (eb *EventBus) HasSubscriber(destinationChain string) bool {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.channels[destinationChain]) > 0
}

// Publish routes the event by its destination chain. Returns false when no
// receiver is registered for that chain; the caller decides how to log the
// drop. A full receiver applies backpressure: the publisher blocks until the
// receiver drains or ctx is cancelled, so accepted events are never lost.
func (eb *EventBus) Publish(ctx context.Context, ev *types.RelayEvent) bool {
	eb.mu.RLock()
	channels := eb.channels[ev.DestinationChain]
	closed := eb.closed
	eb.mu.RUnlock()
	if closed || len(channels) == 0 {
		return false
	}
	for _, ch := range channels {
		select {
		case ch <- ev:
		case <-ctx.Done():
			return false
		}
	}
	return true
}

// Close closes all receiver channels. Publish after Close is a no-op.
func (eb *EventBus) Close() {
	eb.mu.Lock()
	defer eb.mu.Unlock()
	if eb.closed {
		return
	}
	eb.closed = true
	for _, channels := range eb.channels {
		for _, ch := range channels {
			close(ch)
		}
	}
}
