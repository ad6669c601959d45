package eventbus

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"respstream/internal/domain"
)

const defaultQueueSize = 256

type delivery struct {
	ctx   context.Context
	event domain.Event
}

// subscription owns one goroutine that runs its handler for each queued
// event in publish order.
type subscription struct {
	id        uint64
	eventType domain.EventType // empty for all-event subscribers
	handler   domain.EventHandler
	queue     chan delivery
}

// Option configures a Bus.
type Option func(*Bus)

// WithQueueSize sets how many undelivered events each subscriber buffers
// before Publish blocks.
func WithQueueSize(n int) Option {
	return func(b *Bus) {
		if n > 0 {
			b.queueSize = n
		}
	}
}

// Bus is an in-process, goroutine-safe event bus. Each subscriber sees
// events in the order they were published; a slow subscriber delays only
// its own queue until the queue fills.
type Bus struct {
	mu        sync.RWMutex
	subs      map[uint64]*subscription
	nextID    atomic.Uint64
	queueSize int
	logger    *slog.Logger
	wg        sync.WaitGroup
	closed    atomic.Bool
}

// New creates an event bus.
func New(logger *slog.Logger, opts ...Option) *Bus {
	b := &Bus{
		subs:      make(map[uint64]*subscription),
		queueSize: defaultQueueSize,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish queues an event for every matching subscriber. It returns once
// the event is queued, not when handlers have run. If a subscriber's queue
// is full, Publish waits until it drains or ctx is done; in the latter case
// the event is dropped for that subscriber and the rest are skipped.
func (b *Bus) Publish(ctx context.Context, event domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed.Load() {
		return
	}

	for _, sub := range b.subs {
		if sub.eventType != "" && sub.eventType != event.Type {
			continue
		}
		select {
		case sub.queue <- delivery{ctx: ctx, event: event}:
		case <-ctx.Done():
			b.logger.Warn("event dropped",
				"event", string(event.Type),
				"subscription", sub.id,
				"error", ctx.Err(),
			)
			return
		}
	}
}

func (b *Bus) run(sub *subscription) {
	defer b.wg.Done()
	for d := range sub.queue {
		b.deliver(sub, d)
	}
}

func (b *Bus) deliver(sub *subscription, d delivery) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked",
				"event", string(d.event.Type),
				"subscription", sub.id,
				"panic", r,
			)
		}
	}()
	sub.handler(d.ctx, d.event)
}

func (b *Bus) add(eventType domain.EventType, handler domain.EventHandler) func() {
	sub := &subscription{
		id:        b.nextID.Add(1),
		eventType: eventType,
		handler:   handler,
		queue:     make(chan delivery, b.queueSize),
	}

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		return func() {}
	}
	b.subs[sub.id] = sub
	b.wg.Add(1)
	b.mu.Unlock()

	go b.run(sub)

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if _, ok := b.subs[sub.id]; ok {
				delete(b.subs, sub.id)
				close(sub.queue)
			}
		})
	}
}

// Subscribe registers a handler for a specific event type.
// Returns an unsubscribe function; events already queued are still
// delivered.
func (b *Bus) Subscribe(eventType domain.EventType, handler domain.EventHandler) func() {
	return b.add(eventType, handler)
}

// SubscribeAll registers a handler that receives every event.
// Returns an unsubscribe function.
func (b *Bus) SubscribeAll(handler domain.EventHandler) func() {
	return b.add("", handler)
}

// Close prevents new publishes and waits for every queued event to be
// handled. Close is idempotent and safe to call multiple times.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed.Swap(true) {
		b.mu.Unlock()
		return
	}
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.queue)
	}
	b.mu.Unlock()
	b.wg.Wait()
}

var _ domain.EventBus = (*Bus)(nil)
