package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// jetStream is the subset of nats.JetStreamContext the bus uses. Narrowed to
// an interface so tests can substitute a fake without a running server.
type jetStream interface {
	AddStream(cfg *nats.StreamConfig, opts ...nats.JSOpt) (*nats.StreamInfo, error)
	Publish(subj string, data []byte, opts ...nats.PubOpt) (*nats.PubAck, error)
	QueueSubscribe(subj, queue string, cb nats.MsgHandler, opts ...nats.SubOpt) (*nats.Subscription, error)
}

// NATSBus implements Bus on NATS JetStream. Each queue name maps to one
// stream with a single subject; consumers join a shared queue group, so
// JetStream distributes each message to exactly one worker and redelivers
// anything negatively acknowledged or past its ack deadline.
type NATSBus struct {
	conn *nats.Conn
	js   jetStream

	ackWait time.Duration

	mu      sync.Mutex
	streams map[string]bool
	timers  []*time.Timer
	closed  bool
}

// NATSOptions configures a NATSBus.
type NATSOptions struct {
	// URL is the server address; nats.DefaultURL when empty.
	URL string
	// AckWait is how long JetStream waits for an ack before redelivering.
	// Defaults to two minutes, which must exceed the longest handler run.
	AckWait time.Duration
}

// NewNATSBus connects to NATS and initializes a JetStream context.
func NewNATSBus(opts NATSOptions) (*NATSBus, error) {
	url := opts.URL
	if url == "" {
		url = nats.DefaultURL
	}
	conn, err := nats.Connect(url)
	if err != nil {
		return nil, fmt.Errorf("connect nats: %w", err)
	}
	js, err := conn.JetStream()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("jetstream context: %w", err)
	}
	b := &NATSBus{
		conn:    conn,
		js:      js,
		streams: make(map[string]bool),
	}
	if opts.AckWait > 0 {
		b.ackWait = opts.AckWait
	}
	return b, nil
}

// ackWait defaults to a value long enough for a full skill-agent run.
var defaultAckWait = 2 * time.Minute

// ensureStream creates the stream backing a queue on first use.
func (b *NATSBus) ensureStream(queue string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.streams[queue] {
		return nil
	}
	_, err := b.js.AddStream(&nats.StreamConfig{
		Name:      streamName(queue),
		Subjects:  []string{queue},
		Retention: nats.WorkQueuePolicy,
	})
	if err != nil {
		return fmt.Errorf("add stream for %s: %w", queue, err)
	}
	b.streams[queue] = true
	return nil
}

// streamName derives a JetStream-legal stream name from a dotted queue name.
func streamName(queue string) string {
	return strings.ToUpper(strings.ReplaceAll(queue, ".", "_"))
}

// Publish enqueues an envelope on the named queue.
func (b *NATSBus) Publish(ctx context.Context, queue string, env Envelope) error {
	if err := b.ensureStream(queue); err != nil {
		return err
	}
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}
	if _, err := b.js.Publish(queue, raw); err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}
	return nil
}

// PublishDelayed enqueues an envelope after the given delay. JetStream has
// no native per-message delay on publish, so the delay runs in-process; a
// crash during the window loses only a retry, and the original consumer's
// ack deadline still redelivers the source message.
func (b *NATSBus) PublishDelayed(ctx context.Context, queue string, env Envelope, delay time.Duration) error {
	if delay <= 0 {
		return b.Publish(ctx, queue, env)
	}
	if err := b.ensureStream(queue); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	timer := time.AfterFunc(delay, func() {
		_ = b.Publish(context.Background(), queue, env)
	})
	b.timers = append(b.timers, timer)
	return nil
}

// Consume attaches a competing consumer to the named queue via a durable
// queue-group subscription with manual acks.
func (b *NATSBus) Consume(ctx context.Context, queue string) (<-chan Delivery, func(), error) {
	if err := b.ensureStream(queue); err != nil {
		return nil, nil, err
	}

	out := make(chan Delivery, 16)
	stop := make(chan struct{})
	var stopOnce sync.Once
	var sub *nats.Subscription

	cancel := func() {
		stopOnce.Do(func() {
			if sub != nil {
				_ = sub.Drain()
			}
			close(stop)
		})
	}

	ackWait := b.ackWait
	if ackWait == 0 {
		ackWait = defaultAckWait
	}

	handler := func(msg *nats.Msg) {
		var env Envelope
		if err := json.Unmarshal(msg.Data, &env); err != nil {
			// Malformed frames can never succeed; drop them.
			_ = msg.Term()
			return
		}
		d := Delivery{
			Envelope: env,
			ack:      func() { _ = msg.Ack() },
			nack:     func() { _ = msg.Nak() },
		}
		select {
		case out <- d:
		case <-stop:
			_ = msg.Nak()
		case <-ctx.Done():
			_ = msg.Nak()
		}
	}

	sub, err := b.js.QueueSubscribe(queue, workerGroup(queue), handler,
		nats.ManualAck(),
		nats.AckWait(ackWait),
		nats.Durable(workerGroup(queue)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("subscribe %s: %w", queue, err)
	}

	// The out channel is deliberately left open after cancel: in-flight
	// handler callbacks may still be settling messages while the
	// subscription drains, and consumers select on their context anyway.
	go func() {
		select {
		case <-ctx.Done():
			cancel()
		case <-stop:
		}
	}()

	return out, cancel, nil
}

// workerGroup names the queue group (and durable consumer) for a queue.
func workerGroup(queue string) string {
	return streamName(queue) + "_WORKERS"
}

// Close drains the connection.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	for _, timer := range b.timers {
		timer.Stop()
	}
	b.timers = nil
	b.mu.Unlock()

	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}
