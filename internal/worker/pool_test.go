package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/esinanturan/Acontext/internal/bus"
	"github.com/esinanturan/Acontext/internal/errors"
)

func testConfig() Config {
	return Config{
		Queue:           "q.entry",
		RetryQueue:      "q.entry.retry",
		DeadLetterQueue: "q.entry.dlq",
		Workers:         2,
		MaxAttempts:     3,
		BackoffBase:     time.Millisecond,
		BackoffMax:      5 * time.Millisecond,
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func TestPool_AcksSuccessfulMessages(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()

	var handled atomic.Int32
	pool := New(b, testConfig(), func(ctx context.Context, env bus.Envelope) error {
		handled.Add(1)
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	for i := 0; i < 5; i++ {
		if err := b.Publish(ctx, "q.entry", bus.NewEnvelope("test", nil)); err != nil {
			t.Fatalf("Publish: %v", err)
		}
	}

	waitFor(t, time.Second, func() bool { return handled.Load() == 5 })
}

func TestPool_SilentSkipAcks(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()

	var handled atomic.Int32
	pool := New(b, testConfig(), func(ctx context.Context, env bus.Envelope) error {
		handled.Add(1)
		return errors.ErrTaskNotTerminal
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	if err := b.Publish(ctx, "q.entry", bus.NewEnvelope("test", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, time.Second, func() bool { return handled.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if handled.Load() != 1 {
		t.Errorf("silent skip was redelivered: handled %d times", handled.Load())
	}
}

func TestPool_TransientModelErrorRedelivers(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()

	var mu sync.Mutex
	attempts := []int{}
	pool := New(b, testConfig(), func(ctx context.Context, env bus.Envelope) error {
		mu.Lock()
		attempts = append(attempts, env.Attempt)
		n := len(attempts)
		mu.Unlock()
		if n < 3 {
			return errors.NewModelError("rate limited", nil, true)
		}
		return nil
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	if err := b.Publish(ctx, "q.entry", bus.NewEnvelope("test", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, time.Second, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(attempts) == 3
	})

	// Redelivery must not consume the retry budget: the attempt counter
	// stays at 1 across redeliveries.
	mu.Lock()
	defer mu.Unlock()
	for i, attempt := range attempts {
		if attempt != 1 {
			t.Errorf("delivery %d had attempt %d, want 1", i, attempt)
		}
	}
}

func TestPool_RetryableErrorRequeuesWithAttempts(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()

	var mu sync.Mutex
	attempts := []int{}
	pool := New(b, testConfig(), func(ctx context.Context, env bus.Envelope) error {
		mu.Lock()
		attempts = append(attempts, env.Attempt)
		mu.Unlock()
		return errors.ErrLockDenied
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	if err := b.Publish(ctx, "q.entry", bus.NewEnvelope("test", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// MaxAttempts is 3: attempts 1 and 2 requeue, attempt 3 dead-letters.
	waitFor(t, 2*time.Second, func() bool { return b.Depth("q.entry.dlq") == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(attempts) != 3 {
		t.Fatalf("expected 3 handler invocations, got %d (%v)", len(attempts), attempts)
	}
	for i, attempt := range attempts {
		if attempt != i+1 {
			t.Errorf("invocation %d had attempt %d, want %d", i, attempt, i+1)
		}
	}
}

func TestPool_TimeoutDeadLettersDespiteTransientError(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()

	cfg := testConfig()
	cfg.MessageTimeout = 5 * time.Millisecond

	var handled atomic.Int32
	pool := New(b, cfg, func(ctx context.Context, env bus.Envelope) error {
		handled.Add(1)
		<-ctx.Done()
		// A model call cut off by the message budget surfaces as a
		// transient failure, the same shape the provider client returns.
		return errors.NewModelError("model call failed", ctx.Err(), true)
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	if err := b.Publish(ctx, "q.entry", bus.NewEnvelope("test", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// Each timeout consumes an attempt: 1 and 2 requeue, 3 dead-letters.
	// Redelivery without attempt counting would spin here forever.
	waitFor(t, 2*time.Second, func() bool { return b.Depth("q.entry.dlq") == 1 })

	time.Sleep(20 * time.Millisecond)
	if n := handled.Load(); n != 3 {
		t.Errorf("handler invoked %d times, want 3", n)
	}
}

// flakyBus fails the first delayed publish, then behaves normally.
type flakyBus struct {
	*bus.MemoryBus
	tripped atomic.Bool
}

func (f *flakyBus) PublishDelayed(ctx context.Context, queue string, env bus.Envelope, delay time.Duration) error {
	if f.tripped.CompareAndSwap(false, true) {
		return errors.New("transport glitch")
	}
	return f.MemoryBus.PublishDelayed(ctx, queue, env, delay)
}

func TestPool_FailedRequeuePublishKeepsMessageAlive(t *testing.T) {
	b := &flakyBus{MemoryBus: bus.NewMemoryBus()}
	defer func() { _ = b.Close() }()

	var mu sync.Mutex
	attempts := []int{}
	pool := New(b, testConfig(), func(ctx context.Context, env bus.Envelope) error {
		mu.Lock()
		attempts = append(attempts, env.Attempt)
		mu.Unlock()
		return errors.ErrLockDenied
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	if err := b.Publish(ctx, "q.entry", bus.NewEnvelope("test", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	// The first requeue publish fails, so the delivery is nacked and the
	// bus redelivers it at the same attempt instead of losing it.
	waitFor(t, 2*time.Second, func() bool { return b.Depth("q.entry.dlq") == 1 })

	mu.Lock()
	defer mu.Unlock()
	want := []int{1, 1, 2, 3}
	if len(attempts) != len(want) {
		t.Fatalf("expected %d handler invocations, got %d (%v)", len(want), len(attempts), attempts)
	}
	for i, attempt := range attempts {
		if attempt != want[i] {
			t.Errorf("invocation %d had attempt %d, want %d", i, attempt, want[i])
		}
	}
}

func TestPool_PermanentErrorDropsWithoutRetry(t *testing.T) {
	b := bus.NewMemoryBus()
	defer func() { _ = b.Close() }()

	var handled atomic.Int32
	pool := New(b, testConfig(), func(ctx context.Context, env bus.Envelope) error {
		handled.Add(1)
		return errors.New("schema validation failed")
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := pool.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer pool.Stop()

	if err := b.Publish(ctx, "q.entry", bus.NewEnvelope("test", nil)); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	waitFor(t, time.Second, func() bool { return handled.Load() == 1 })
	time.Sleep(20 * time.Millisecond)
	if handled.Load() != 1 {
		t.Errorf("permanent failure was retried: handled %d times", handled.Load())
	}
	if b.Depth("q.entry.dlq") != 0 {
		t.Error("permanent failure must not dead-letter, it is dropped with an error record")
	}
}

func TestBackoff(t *testing.T) {
	base := 500 * time.Millisecond
	max := 30 * time.Second

	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, 500 * time.Millisecond},
		{2, time.Second},
		{3, 2 * time.Second},
		{5, 8 * time.Second},
		{10, 30 * time.Second},
		{100, 30 * time.Second},
	}

	for _, tt := range tests {
		if got := Backoff(tt.attempt, base, max); got != tt.want {
			t.Errorf("Backoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}
