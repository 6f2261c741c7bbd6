package feed

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 64

// DropRecorder is an optional callback invoked once per event dropped for a
// slow subscriber.
type DropRecorder func()

// Broker fans events out to in-process subscribers. Publish never blocks.
type Broker struct {
	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	buffer int
	onDrop DropRecorder
	logger *zap.Logger
}

// NewBroker creates a Broker. buffer <= 0 uses DefaultBuffer.
func NewBroker(buffer int, logger *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broker{
		subs:   make(map[uint64]*Subscription),
		buffer: buffer,
		logger: logger,
	}
}

// SetDropRecorder configures the dropped-event callback.
func (b *Broker) SetDropRecorder(fn DropRecorder) {
	b.onDrop = fn
}

// Publish delivers ev to every subscriber with room in its buffer. Subscribers
// that are full miss the event.
func (b *Broker) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, s := range b.subs {
		select {
		case s.ch <- ev:
		default:
			if b.onDrop != nil {
				b.onDrop()
			}
			b.logger.Debug("feed: dropped event for slow subscriber",
				zap.Uint64("subscriber", s.id),
				zap.String("type", ev.Type),
			)
		}
	}
}

// Subscribe registers a new subscriber. The subscription is closed when ctx
// is cancelled or Close is called, whichever happens first.
func (b *Broker) Subscribe(ctx context.Context) *Subscription {
	b.mu.Lock()
	b.nextID++
	s := &Subscription{
		id:     b.nextID,
		ch:     make(chan Event, b.buffer),
		broker: b,
		done:   make(chan struct{}),
	}
	b.subs[s.id] = s
	b.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-s.done:
		}
	}()
	return s
}

// Subscribers returns the number of live subscriptions.
func (b *Broker) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

func (b *Broker) remove(s *Subscription) {
	b.mu.Lock()
	delete(b.subs, s.id)
	close(s.ch)
	b.mu.Unlock()
}

// Subscription is a handle on a live event stream.
type Subscription struct {
	id     uint64
	ch     chan Event
	broker *Broker
	once   sync.Once
	done   chan struct{}
}

// C returns the event channel. It is closed after Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close stops delivery and releases the subscriber slot. Safe to call more
// than once.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.broker.remove(s)
		close(s.done)
	})
}
