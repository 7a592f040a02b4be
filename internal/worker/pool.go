// Package worker runs pools of competing consumers against bus queues and
// applies the pipeline's shared failure policy: acknowledge-and-drop,
// redeliver, requeue-with-backoff, or dead-letter. A stuck or failing
// message never blocks progress on other messages.
package worker

import (
	"context"
	"sync"
	"time"

	"github.com/esinanturan/Acontext/internal/bus"
	"github.com/esinanturan/Acontext/internal/errors"
	"github.com/esinanturan/Acontext/internal/logging"
)

// Handler processes one envelope. The returned error is classified by the
// pool: nil and silent skips acknowledge, transient model errors redeliver,
// retryable errors requeue with backoff, everything else is recorded and
// dropped.
type Handler func(ctx context.Context, env bus.Envelope) error

// Config sizes a pool and its retry policy.
type Config struct {
	// Queue is the entry queue this pool consumes.
	Queue string
	// RetryQueue receives delayed requeues; the pool forwards it back into
	// Queue so backoff is observable as queue traffic.
	RetryQueue string
	// DeadLetterQueue receives messages that exhausted their retry budget.
	DeadLetterQueue string
	// Workers is the number of concurrent consumers. Defaults to 1.
	Workers int
	// MaxAttempts is the retry budget before dead-lettering. Defaults to 5.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per attempt.
	// Defaults to 500ms.
	BackoffBase time.Duration
	// BackoffMax caps the retry delay. Defaults to 30s.
	BackoffMax time.Duration
	// MessageTimeout bounds one handler invocation. Zero disables it.
	MessageTimeout time.Duration
}

// withDefaults fills zero-valued fields.
func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 500 * time.Millisecond
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 30 * time.Second
	}
	return c
}

// Pool consumes one queue with a fixed set of workers.
type Pool struct {
	bus     bus.Bus
	cfg     Config
	handler Handler
	log     *logging.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	started bool
	wg      sync.WaitGroup
}

// New creates a Pool. A nil logger falls back to the no-op logger.
func New(b bus.Bus, cfg Config, handler Handler, log *logging.Logger) *Pool {
	if log == nil {
		log = logging.NopLogger()
	}
	return &Pool{
		bus:     b,
		cfg:     cfg.withDefaults(),
		handler: handler,
		log:     log.With("queue", cfg.Queue),
	}
}

// Start launches the workers and the retry forwarder. It returns once all
// consumers are attached; processing continues until Stop or context cancel.
func (p *Pool) Start(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return errors.New("worker pool already started")
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.started = true

	for i := 0; i < p.cfg.Workers; i++ {
		deliveries, stop, err := p.bus.Consume(ctx, p.cfg.Queue)
		if err != nil {
			cancel()
			return err
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer stop()
			p.run(ctx, deliveries)
		}()
	}

	if p.cfg.RetryQueue != "" {
		deliveries, stop, err := p.bus.Consume(ctx, p.cfg.RetryQueue)
		if err != nil {
			cancel()
			return err
		}
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			defer stop()
			p.forwardRetries(ctx, deliveries)
		}()
	}

	return nil
}

// Stop cancels all workers and waits for in-flight messages to settle.
func (p *Pool) Stop() {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	p.started = false
	cancel := p.cancel
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	p.wg.Wait()
}

// run is one worker's consume loop.
func (p *Pool) run(ctx context.Context, deliveries <-chan bus.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			p.process(ctx, d)
		}
	}
}

// forwardRetries moves delayed requeues back onto the entry queue.
func (p *Pool) forwardRetries(ctx context.Context, deliveries <-chan bus.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			if err := p.bus.Publish(ctx, p.cfg.Queue, d.Envelope); err != nil {
				p.log.Error("retry forward failed", "error", err, "envelope_id", d.Envelope.ID)
				d.Nack()
				continue
			}
			d.Ack()
		}
	}
}

// process applies the failure policy to one delivery.
func (p *Pool) process(ctx context.Context, d bus.Delivery) {
	env := d.Envelope
	log := p.log.With("envelope_id", env.ID, "kind", env.Kind, "attempt", env.Attempt)

	msgCtx := ctx
	var cancel context.CancelFunc
	if p.cfg.MessageTimeout > 0 {
		msgCtx, cancel = context.WithTimeout(ctx, p.cfg.MessageTimeout)
		defer cancel()
	}

	err := p.handler(msgCtx, env)
	switch {
	case err == nil:
		d.Ack()

	case errors.IsSilentSkip(err):
		log.Debug("message skipped", "reason", err.Error())
		d.Ack()

	case errors.Is(msgCtx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		// The message budget elapsed. Timeouts consume an attempt even when
		// the handler surfaces them as a transient model failure: a handler
		// that always runs over must dead-letter, not redeliver forever.
		p.settle(d, p.requeue(ctx, env, err, log))

	case isTransientModelError(err):
		// Redelivery, not requeue: the bus re-presents the same envelope
		// so a transient model outage does not consume the retry budget.
		log.Warn("transient model failure, redelivering", "error", err)
		d.Nack()

	case errors.IsRetryable(err):
		p.settle(d, p.requeue(ctx, env, err, log))

	default:
		log.Error("message dropped after permanent failure", "error", err)
		d.Ack()
	}
}

// settle acknowledges a delivery whose requeue/dead-letter publish landed.
// A failed publish nacks instead, so the bus keeps the message alive.
func (p *Pool) settle(d bus.Delivery, publishErr error) {
	if publishErr != nil {
		d.Nack()
		return
	}
	d.Ack()
}

// requeue applies the backoff/dead-letter policy to a retryable failure.
// The returned error reports a failed publish; the delivery must then stay
// unacknowledged.
func (p *Pool) requeue(ctx context.Context, env bus.Envelope, cause error, log *logging.Logger) error {
	if env.Attempt >= p.cfg.MaxAttempts {
		log.Error("retry budget exhausted, dead-lettering", "error", cause, "max_attempts", p.cfg.MaxAttempts)
		if p.cfg.DeadLetterQueue == "" {
			return nil
		}
		if err := p.bus.Publish(ctx, p.cfg.DeadLetterQueue, env.NextAttempt()); err != nil {
			log.Error("dead-letter publish failed", "error", err)
			return err
		}
		return nil
	}

	delay := Backoff(env.Attempt, p.cfg.BackoffBase, p.cfg.BackoffMax)
	target := p.cfg.RetryQueue
	if target == "" {
		target = p.cfg.Queue
	}
	log.Warn("requeueing with backoff", "error", cause, "delay", delay.String())
	if err := p.bus.PublishDelayed(ctx, target, env.NextAttempt(), delay); err != nil {
		log.Error("requeue publish failed", "error", err)
		return err
	}
	return nil
}

// isTransientModelError reports whether err is a transient ModelError.
func isTransientModelError(err error) bool {
	var modelErr *errors.ModelError
	return errors.As(err, &modelErr) && modelErr.Transient()
}

// Backoff returns the exponential delay for the given attempt number
// (1-based), doubling from base and capped at max.
func Backoff(attempt int, base, max time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			return max
		}
	}
	if delay > max {
		return max
	}
	return delay
}
