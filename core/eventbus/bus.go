package eventbus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrClosed is returned by Subscribe and Publish once Shutdown has started.
var ErrClosed = errors.New("event bus closed")

// Payload carries event data. It is owned by the publisher and must be
// treated as read-only by every subscriber.
type Payload map[string]any

// Handler receives a published event. The context is cancelled when the bus
// shuts down.
type Handler func(ctx context.Context, payload Payload)

type subscription struct {
	bus     *Bus
	kind    string
	handler Handler

	cancelOnce sync.Once
}

// Cancel removes the subscription from the bus. In-flight deliveries are
// not interrupted.
func (s *subscription) Cancel() {
	s.cancelOnce.Do(func() { s.bus.remove(s) })
}

// Bus is an in-process publish/subscribe hub. Publishing never blocks the
// caller: each handler runs as its own goroutine, tracked so Shutdown can
// cancel and await all of them.
type Bus struct {
	mu          sync.Mutex
	subscribers map[string][]*subscription
	closed      bool

	handlers sync.WaitGroup

	ctx    context.Context
	cancel context.CancelFunc

	shutdownOnce sync.Once
}

func New() *Bus {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bus{
		subscribers: map[string][]*subscription{},
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Subscribe registers a handler for an event kind. Handlers for the same
// kind are dispatched in subscription order, though completion order is
// unspecified since each delivery runs concurrently.
func (b *Bus) Subscribe(kind string, handler Handler) (*subscription, error) {
	if handler == nil {
		return nil, fmt.Errorf("nil handler for event %q", kind)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	sub := &subscription{bus: b, kind: kind, handler: handler}
	b.subscribers[kind] = append(b.subscribers[kind], sub)
	return sub, nil
}

func (b *Bus) remove(sub *subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := b.subscribers[sub.kind]
	for i := range subs {
		if subs[i] == sub {
			b.subscribers[sub.kind] = append(subs[:i:i], subs[i+1:]...)
			return
		}
	}
}

// Publish delivers the payload to every current subscriber of kind, one
// goroutine per handler. Publishing to a kind with no subscribers is a
// no-op. The payload must not be mutated after publishing.
func (b *Bus) Publish(kind string, payload Payload) error {
	subs, err := b.snapshot(kind)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		b.handlers.Add(1)
		go func(sub *subscription) {
			defer b.handlers.Done()
			b.invoke(sub, payload)
		}(sub)
	}

	return nil
}

// PublishSync delivers the payload to every current subscriber inline, in
// subscription order. It exists for call sites that must not cross an
// async boundary, such as device callbacks that need ordering with their
// caller.
func (b *Bus) PublishSync(kind string, payload Payload) error {
	subs, err := b.snapshot(kind)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		b.invoke(sub, payload)
	}

	return nil
}

func (b *Bus) snapshot(kind string) ([]*subscription, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	subs := b.subscribers[kind]
	out := make([]*subscription, len(subs))
	copy(out, subs)
	return out, nil
}

func (b *Bus) invoke(sub *subscription, payload Payload) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event handler panicked",
				"event", sub.kind,
				"panic", fmt.Sprint(r),
			)
		}
	}()

	if b.ctx.Err() != nil {
		// Shutdown raced the dispatch; cancellation is not an error.
		return
	}

	sub.handler(b.ctx, payload)
}

// Shutdown marks the bus closed, cancels the context seen by in-flight
// handlers, awaits them, then clears all subscriptions. Calling it more
// than once is safe.
func (b *Bus) Shutdown() {
	b.shutdownOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		b.mu.Unlock()

		b.cancel()
		b.handlers.Wait()

		b.mu.Lock()
		b.subscribers = map[string][]*subscription{}
		b.mu.Unlock()
	})
}
