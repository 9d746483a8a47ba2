package bus

import (
	"sync"

	"go.uber.org/zap"
)

// Handler consumes one event. A non-nil error is logged and does not affect
// delivery to other subscribers.
type Handler func(Event) error

// Bus is a single FIFO event queue with any number of subscribers.
//
// Publish only enqueues and never blocks on subscriber work. One dispatch
// goroutine dequeues events in order and invokes every subscriber in
// registration order, catching errors and panics so one bad handler cannot
// stall the loop. There is no priority, no replay, and no delivery to late
// subscribers.
type Bus struct {
	logger *zap.Logger

	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Event
	subs   []Handler
	closed bool

	done chan struct{}
}

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the bus logger.
func WithLogger(logger *zap.Logger) Option {
	return func(b *Bus) {
		b.logger = logger
	}
}

// New creates a bus and starts its dispatch loop.
func New(opts ...Option) *Bus {
	b := &Bus{
		logger: zap.NewNop(),
		done:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	b.cond = sync.NewCond(&b.mu)

	go b.dispatch()
	return b
}

// Subscribe registers a handler for all subsequent events. Handlers are
// invoked in registration order.
func (b *Bus) Subscribe(handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, handler)
}

// Publish enqueues an event. It never blocks on subscriber work and is a
// no-op after Close.
func (b *Bus) Publish(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		b.logger.Debug("event dropped, bus closed", zap.String("type", string(event.Type)))
		return
	}

	b.queue = append(b.queue, event)
	b.cond.Signal()
}

// Close drains the queue, stops the dispatch loop, and waits for it to exit.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		<-b.done
		return
	}
	b.closed = true
	b.cond.Signal()
	b.mu.Unlock()

	<-b.done
}

func (b *Bus) dispatch() {
	defer close(b.done)

	for {
		b.mu.Lock()
		for len(b.queue) == 0 && !b.closed {
			b.cond.Wait()
		}
		if len(b.queue) == 0 && b.closed {
			b.mu.Unlock()
			return
		}

		event := b.queue[0]
		b.queue = b.queue[1:]
		subs := make([]Handler, len(b.subs))
		copy(subs, b.subs)
		b.mu.Unlock()

		for i, handler := range subs {
			b.deliver(i, handler, event)
		}
	}
}

// deliver invokes one handler, isolating errors and panics.
func (b *Bus) deliver(index int, handler Handler, event Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				zap.Int("subscriber", index),
				zap.String("event_type", string(event.Type)),
				zap.Any("panic", r))
		}
	}()

	if err := handler(event); err != nil {
		b.logger.Warn("event handler failed",
			zap.Int("subscriber", index),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	}
}
