package bus

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/esinanturan/Acontext/internal/errors"
)

func TestMemoryBus_PublishConsume(t *testing.T) {
	b := NewMemoryBus()
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deliveries, stop, err := b.Consume(ctx, "q")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	defer stop()

	env := NewEnvelope("test", json.RawMessage(`{"n":1}`))
	if err := b.Publish(ctx, "q", env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case d := <-deliveries:
		if d.Envelope.ID != env.ID {
			t.Errorf("delivered wrong envelope: %s", d.Envelope.ID)
		}
		if d.Envelope.Attempt != 1 {
			t.Errorf("expected attempt 1, got %d", d.Envelope.Attempt)
		}
		d.Ack()
	case <-ctx.Done():
		t.Fatal("timed out waiting for delivery")
	}
}

func TestMemoryBus_NackRedelivers(t *testing.T) {
	b := NewMemoryBus()
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	deliveries, stop, err := b.Consume(ctx, "q")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	defer stop()

	env := NewEnvelope("test", nil)
	if err := b.Publish(ctx, "q", env); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	first := <-deliveries
	first.Nack()

	select {
	case second := <-deliveries:
		if second.Envelope.ID != env.ID {
			t.Errorf("redelivered wrong envelope: %s", second.Envelope.ID)
		}
		second.Ack()
	case <-ctx.Done():
		t.Fatal("nacked message was not redelivered")
	}
}

func TestMemoryBus_CompetingConsumers(t *testing.T) {
	b := NewMemoryBus()
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	d1, stop1, err := b.Consume(ctx, "q")
	if err != nil {
		t.Fatalf("Consume 1: %v", err)
	}
	defer stop1()
	d2, stop2, err := b.Consume(ctx, "q")
	if err != nil {
		t.Fatalf("Consume 2: %v", err)
	}
	defer stop2()

	const n = 10
	for i := 0; i < n; i++ {
		if err := b.Publish(ctx, "q", NewEnvelope("test", nil)); err != nil {
			t.Fatalf("Publish %d: %v", i, err)
		}
	}

	// Every message arrives exactly once across the two consumers.
	seen := make(map[string]int)
	for i := 0; i < n; i++ {
		select {
		case d := <-d1:
			seen[d.Envelope.ID]++
			d.Ack()
		case d := <-d2:
			seen[d.Envelope.ID]++
			d.Ack()
		case <-ctx.Done():
			t.Fatalf("timed out after %d deliveries", i)
		}
	}
	for id, count := range seen {
		if count != 1 {
			t.Errorf("envelope %s delivered %d times", id, count)
		}
	}
}

func TestMemoryBus_PublishDelayed(t *testing.T) {
	b := NewMemoryBus()
	defer func() { _ = b.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	env := NewEnvelope("test", nil)
	if err := b.PublishDelayed(ctx, "q", env, 20*time.Millisecond); err != nil {
		t.Fatalf("PublishDelayed: %v", err)
	}

	if got := b.Depth("q"); got != 0 {
		t.Errorf("message should not be visible before the delay, depth=%d", got)
	}

	deliveries, stop, err := b.Consume(ctx, "q")
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	defer stop()

	select {
	case d := <-deliveries:
		if d.Envelope.ID != env.ID {
			t.Errorf("unexpected envelope: %s", d.Envelope.ID)
		}
		d.Ack()
	case <-ctx.Done():
		t.Fatal("delayed message never arrived")
	}
}

func TestMemoryBus_ClosedRejectsPublish(t *testing.T) {
	b := NewMemoryBus()
	_ = b.Close()

	err := b.Publish(context.Background(), "q", NewEnvelope("test", nil))
	if !errors.Is(err, errors.ErrBusClosed) {
		t.Errorf("expected ErrBusClosed, got %v", err)
	}
}

func TestEnvelope_NextAttempt(t *testing.T) {
	env := NewEnvelope("test", nil)
	next := env.NextAttempt()

	if next.Attempt != 2 {
		t.Errorf("expected attempt 2, got %d", next.Attempt)
	}
	if next.ID != env.ID {
		t.Error("requeue must preserve the envelope identity")
	}
	if env.Attempt != 1 {
		t.Error("NextAttempt must not mutate the original")
	}
}
