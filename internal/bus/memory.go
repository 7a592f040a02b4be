package bus

import (
	"context"
	"sync"
	"time"

	"github.com/esinanturan/Acontext/internal/errors"
)

// queueCapacity bounds each in-memory queue. Publishing to a full queue
// blocks until a consumer drains it or the context is canceled.
const queueCapacity = 256

// MemoryBus is a channel-backed Bus for tests and single-process runs.
// Each queue is a shared buffered channel; every Consume call on a queue
// races to receive from it, which gives competing-consumer semantics.
type MemoryBus struct {
	mu        sync.Mutex
	queues    map[string]chan Envelope
	timers    []*time.Timer
	closed    bool
	closeOnce sync.Once
}

// NewMemoryBus creates an empty MemoryBus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		queues: make(map[string]chan Envelope),
	}
}

// queue returns the channel for the named queue, creating it on first use.
func (b *MemoryBus) queue(name string) (chan Envelope, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, errors.ErrBusClosed
	}
	ch, ok := b.queues[name]
	if !ok {
		ch = make(chan Envelope, queueCapacity)
		b.queues[name] = ch
	}
	return ch, nil
}

// Publish enqueues an envelope on the named queue.
func (b *MemoryBus) Publish(ctx context.Context, queue string, env Envelope) error {
	ch, err := b.queue(queue)
	if err != nil {
		return err
	}
	select {
	case ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishDelayed enqueues an envelope after the given delay.
func (b *MemoryBus) PublishDelayed(ctx context.Context, queue string, env Envelope, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, queue, env)
	}
	if _, err := b.queue(queue); err != nil {
		return err
	}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return errors.ErrBusClosed
	}
	timer := time.AfterFunc(delay, func() {
		// Delivery context is detached from the publish context: the
		// publisher has long since moved on when the delay fires.
		_ = b.Publish(context.Background(), queue, env)
	})
	b.timers = append(b.timers, timer)
	b.mu.Unlock()
	return nil
}

// Consume attaches a competing consumer to the named queue.
func (b *MemoryBus) Consume(ctx context.Context, queue string) (<-chan Delivery, func(), error) {
	ch, err := b.queue(queue)
	if err != nil {
		return nil, nil, err
	}

	out := make(chan Delivery)
	stop := make(chan struct{})
	var stopOnce sync.Once
	cancel := func() {
		stopOnce.Do(func() { close(stop) })
	}

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-stop:
				return
			case env, ok := <-ch:
				if !ok {
					return
				}
				d := Delivery{
					Envelope: env,
					ack:      func() {},
					nack: func() {
						// Redeliver to the shared queue. Attempt counting is
						// the worker pool's job, not the transport's.
						_ = b.Publish(context.Background(), queue, env)
					},
				}
				select {
				case out <- d:
				case <-ctx.Done():
					// Nobody consumed the delivery; put it back.
					d.Nack()
					return
				case <-stop:
					d.Nack()
					return
				}
			}
		}
	}()

	return out, cancel, nil
}

// Close shuts down the bus. Queued messages are discarded.
func (b *MemoryBus) Close() error {
	b.closeOnce.Do(func() {
		b.mu.Lock()
		b.closed = true
		for _, timer := range b.timers {
			timer.Stop()
		}
		b.timers = nil
		b.mu.Unlock()
	})
	return nil
}

// Depth reports the number of messages currently queued on the named queue.
// Test helper; not part of the Bus interface.
func (b *MemoryBus) Depth(queue string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.queues[queue]
	if !ok {
		return 0
	}
	return len(ch)
}
