// Package pubsub decouples aggregation cadence from subscriber processing
// time with a buffered channel per topic.
package pubsub

import (
	"context"
	"sync"

	"github.com/cloudprobe/assure/telemetry"
)

// DefaultBuffer is the per-subscriber channel depth.
const DefaultBuffer = 16

// Broker fans messages out to topic subscribers. Publish never blocks: a
// subscriber whose buffer is full misses the update, which is acceptable
// because every certification update carries the full current state.
type Broker[T any] struct {
	mu     sync.RWMutex
	subs   map[string][]chan T
	buffer int
	closed bool

	logger *telemetry.Logger
}

// NewBroker creates a broker with the given per-subscriber buffer depth.
// A depth below one falls back to DefaultBuffer.
func NewBroker[T any](buffer int) *Broker[T] {
	if buffer < 1 {
		buffer = DefaultBuffer
	}
	return &Broker[T]{
		subs:   make(map[string][]chan T),
		buffer: buffer,
		logger: telemetry.NewLogger("pubsub"),
	}
}

// Subscribe returns a receive channel for the topic. The channel closes
// when the broker closes.
func (b *Broker[T]) Subscribe(topic string) <-chan T {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan T, b.buffer)
	if b.closed {
		close(ch)
		return ch
	}
	b.subs[topic] = append(b.subs[topic], ch)
	return ch
}

// Publish delivers msg to every subscriber of the topic without blocking.
func (b *Broker[T]) Publish(topic string, msg T) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	for _, ch := range b.subs[topic] {
		select {
		case ch <- msg:
		default:
			telemetry.PublishesDropped.Add(context.Background(), 1)
			b.logger.Warn().
				Str("topic", topic).
				Msg("subscriber buffer full, update dropped")
		}
	}
}

// Close closes all subscriber channels.
func (b *Broker[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true

	for _, subs := range b.subs {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.subs = nil
}
