// Package bus provides the durable message queues that decouple the stages
// of the learning pipeline. Queues deliver each message to exactly one of
// the consumers attached to them (competing consumers); delivery is
// at-least-once, so handlers must be idempotent at the lock level.
//
// Two implementations exist: MemoryBus for tests and single-process use, and
// NATSBus backed by NATS JetStream for durable multi-process deployments.
package bus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Envelope is the wire frame for every message on the bus. The attempt
// counter is incremented by the worker pool on each requeue and drives
// backoff and dead-letter routing.
type Envelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Attempt   int             `json:"attempt"`
	Published time.Time       `json:"published"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

// NewEnvelope wraps a payload in a first-attempt envelope.
func NewEnvelope(kind string, payload json.RawMessage) Envelope {
	return Envelope{
		ID:        uuid.NewString(),
		Kind:      kind,
		Attempt:   1,
		Published: time.Now().UTC(),
		Payload:   payload,
	}
}

// NextAttempt returns a copy of the envelope with the attempt counter
// incremented, for republishing to a retry queue.
func (e Envelope) NextAttempt() Envelope {
	e.Attempt++
	e.Published = time.Now().UTC()
	return e
}

// Delivery is one received message plus its settlement callbacks. Exactly
// one of Ack or Nack must be called; Nack returns the message to the queue
// for redelivery.
type Delivery struct {
	Envelope Envelope

	ack  func()
	nack func()
}

// Ack settles the delivery as processed.
func (d Delivery) Ack() {
	if d.ack != nil {
		d.ack()
	}
}

// Nack returns the message to its queue for redelivery.
func (d Delivery) Nack() {
	if d.nack != nil {
		d.nack()
	}
}

// Bus is the abstract queue transport. Implementations must be safe for
// concurrent use; multiple Consume calls on the same queue form a group of
// competing consumers with no ordering guarantee between them.
type Bus interface {
	// Publish enqueues an envelope on the named queue.
	Publish(ctx context.Context, queue string, env Envelope) error

	// PublishDelayed enqueues an envelope after the given delay. Used by the
	// retry path to implement backoff without blocking a worker.
	PublishDelayed(ctx context.Context, queue string, env Envelope, delay time.Duration) error

	// Consume attaches a competing consumer to the named queue. The returned
	// stop function detaches the consumer and closes the channel.
	Consume(ctx context.Context, queue string) (<-chan Delivery, func(), error)

	// Close shuts the bus down. Pending unacknowledged deliveries on a
	// durable implementation are redelivered after restart.
	Close() error
}
