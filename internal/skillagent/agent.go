// Package skillagent consumes distilled lessons and folds them into skill
// documents. All writes for one skill are serialized by a lease from the
// lock service; a denied lease requeues the message rather than blocking
// the worker.
package skillagent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/esinanturan/Acontext/internal/bus"
	"github.com/esinanturan/Acontext/internal/errors"
	"github.com/esinanturan/Acontext/internal/learning"
	"github.com/esinanturan/Acontext/internal/llm"
	"github.com/esinanturan/Acontext/internal/lock"
	"github.com/esinanturan/Acontext/internal/logging"
	"github.com/esinanturan/Acontext/internal/skillstore"
)

// Config bounds one skill update.
type Config struct {
	// LeaseTTL is the exclusive hold granted per update; renewed between
	// iterations.
	LeaseTTL time.Duration
	// MaxIterations caps model calls per update.
	MaxIterations int
	MaxTokens     int64
}

func (c *Config) applyDefaults() {
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = 2 * time.Minute
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = 8
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 8192
	}
}

// Agent consumes SkillLearnDistilled messages.
type Agent struct {
	gen   llm.Generator
	locks lock.Service
	store skillstore.Store
	log   *logging.Logger
	cfg   Config
}

func NewAgent(gen llm.Generator, locks lock.Service, store skillstore.Store, log *logging.Logger, cfg Config) *Agent {
	cfg.applyDefaults()
	return &Agent{
		gen:   gen,
		locks: locks,
		store: store,
		log:   log.WithConsumer("skill_agent"),
		cfg:   cfg,
	}
}

// Handle processes one distilled-context message. A denied lease returns
// ErrLockDenied so the worker requeues with backoff. On any failure the
// lease is released before the error propagates, so the retried message
// never waits out a dead worker's TTL.
func (a *Agent) Handle(ctx context.Context, env bus.Envelope) error {
	msg, err := learning.DecodeDistilled(env.Payload)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	skillID := msg.SkillID
	log := a.log.WithSkill(skillID.String())
	if msg.FromPreferences() {
		log = log.With("origin", "preferences")
	} else {
		log = log.WithTask(msg.TaskID.String())
	}

	lease, err := a.locks.Acquire(ctx, skillID.String(), a.cfg.LeaseTTL)
	if err != nil {
		if errors.Is(err, errors.ErrLockDenied) {
			log.Debug("skill lease held elsewhere, requeueing", "attempt", env.Attempt)
		}
		return err
	}
	defer func() {
		// The message context may already be dead when processing failed on
		// a timeout; the release must still reach the lock service or the
		// lease leaks for its full TTL and stalls every message for this
		// skill.
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if releaseErr := a.locks.Release(releaseCtx, lease); releaseErr != nil {
			log.Warn("lease release failed", "error", releaseErr)
		}
	}()

	current := ""
	skill, err := a.store.Read(ctx, skillID)
	switch {
	case err == nil:
		current = skill.Content
	case errors.Is(err, errors.ErrSkillNotFound):
		// First lesson for this skill; start from an empty document.
	default:
		return fmt.Errorf("read skill: %w", err)
	}

	return a.update(ctx, log, skillID, lease, current, msg.DistilledContext)
}

// update runs the bounded edit loop. At most one edit applies per
// iteration; each edit writes through the store under the lease token so an
// expired lease surfaces as ErrLeaseExpired instead of a stale commit.
func (a *Agent) update(ctx context.Context, log *logging.Logger, skillID uuid.UUID, lease lock.Lease, current, distilled string) error {
	messages := []llm.Message{llm.UserText(updatePrompt(current, distilled))}
	edits := 0

	for iteration := 0; iteration < a.cfg.MaxIterations; iteration++ {
		if iteration > 0 {
			if err := a.locks.Renew(ctx, lease); err != nil {
				log.Warn("lease lost between iterations", "iteration", iteration, "error", err)
				return err
			}
		}

		resp, err := a.gen.Complete(ctx, llm.Request{
			System:    systemPrompt,
			Messages:  messages,
			Tools:     agentTools(),
			MaxTokens: a.cfg.MaxTokens,
		})
		if err != nil {
			return err
		}
		messages = append(messages, llm.AssistantReply(resp))

		results, applied, done, err := a.applyCalls(ctx, log, skillID, lease, resp.ToolCalls)
		if err != nil {
			return err
		}
		if applied {
			edits++
		}
		if done {
			log.Info("skill update committed", "edits", edits)
			return nil
		}
		if len(resp.ToolCalls) == 0 {
			// Model stopped calling tools without finishing; treat the
			// update as complete.
			log.Info("skill update ended without finish", "edits", edits)
			return nil
		}
		messages = append(messages, llm.ResultsMessage(results...))
	}

	if edits > 0 {
		log.Warn("iteration ceiling hit after committed edits", "edits", edits)
		return nil
	}
	return errors.ErrIterationCeiling
}

// applyCalls executes one round of tool calls, applying at most one edit.
func (a *Agent) applyCalls(ctx context.Context, log *logging.Logger, skillID uuid.UUID, lease lock.Lease, calls []llm.ToolCall) (results []llm.ToolResult, applied, done bool, err error) {
	for _, call := range calls {
		switch call.Name {
		case toolFinish:
			done = true
			results = append(results, llm.ToolResult{ToolCallID: call.ID, Content: "finished"})
		case toolUpdateSkill:
			if applied {
				results = append(results, llm.ToolResult{
					ToolCallID: call.ID,
					Content:    "only one update per step is applied; call update_skill again next step",
					IsError:    true,
				})
				continue
			}
			var input struct {
				Content string `json:"content"`
			}
			if uerr := json.Unmarshal(call.Arguments, &input); uerr != nil {
				results = append(results, llm.ToolResult{
					ToolCallID: call.ID,
					Content:    fmt.Sprintf("invalid update_skill arguments: %v", uerr),
					IsError:    true,
				})
				continue
			}
			if werr := a.store.Write(ctx, skillID, input.Content, lease); werr != nil {
				if errors.Is(werr, errors.ErrLeaseExpired) {
					log.Warn("lease expired at commit, write rejected")
					return nil, applied, false, werr
				}
				return nil, applied, false, fmt.Errorf("write skill: %w", werr)
			}
			applied = true
			results = append(results, llm.ToolResult{ToolCallID: call.ID, Content: "skill updated"})
		default:
			results = append(results, llm.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("unknown tool %q", call.Name),
				IsError:    true,
			})
		}
	}
	return results, applied, done, nil
}
