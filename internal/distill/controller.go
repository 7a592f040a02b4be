// Package distill implements the admission gate between task completion and
// skill learning. For each terminal task it renders the transcript, asks the
// model for a verdict, and forwards worthwhile lessons to the skill agent.
//
// The gate fails open: a response that omits the verdict counts as worth
// learning, so a malformed model reply never silently discards a lesson.
package distill

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/esinanturan/Acontext/internal/bus"
	"github.com/esinanturan/Acontext/internal/collab"
	"github.com/esinanturan/Acontext/internal/errors"
	"github.com/esinanturan/Acontext/internal/learning"
	"github.com/esinanturan/Acontext/internal/llm"
	"github.com/esinanturan/Acontext/internal/logging"
)

// Outcome is the parsed verdict from one judging call.
type Outcome struct {
	// IsWorthLearning is the model's verdict; nil means the model omitted
	// it and the gate fails open.
	IsWorthLearning *bool  `json:"is_worth_learning"`
	SkipReason      string `json:"skip_reason"`
	DistilledText   string `json:"distilled_context"`
}

// WorthLearning resolves the verdict with the fail-open default.
func (o Outcome) WorthLearning() bool {
	return o.IsWorthLearning == nil || *o.IsWorthLearning
}

// Controller consumes SkillLearnTask messages and forwards distilled
// lessons as SkillLearnDistilled messages.
type Controller struct {
	gen       llm.Generator
	bus       bus.Bus
	store     collab.Store
	log       *logging.Logger
	maxTokens int64
}

func NewController(gen llm.Generator, b bus.Bus, store collab.Store, log *logging.Logger, maxTokens int64) *Controller {
	if maxTokens <= 0 {
		maxTokens = 4096
	}
	return &Controller{
		gen:       gen,
		bus:       b,
		store:     store,
		log:       log.WithConsumer("distill"),
		maxTokens: maxTokens,
	}
}

// Handle processes one task-completion message. Silent skips (non-terminal
// task, disabled session, not worth learning) return sentinels the worker
// acks without retry; model failures propagate for the worker's retry
// policy.
func (c *Controller) Handle(ctx context.Context, env bus.Envelope) error {
	msg, err := learning.DecodeTask(env.Payload)
	if err != nil {
		return err
	}
	if err := msg.Validate(); err != nil {
		return err
	}
	log := c.log.WithTask(msg.TaskID.String()).WithSession(msg.SessionID.String())

	task, err := c.store.FetchTask(ctx, msg.TaskID)
	if err != nil {
		return fmt.Errorf("fetch task: %w", err)
	}
	if !task.Terminal() {
		log.Debug("task not terminal, skipping", "status", task.Status)
		return errors.ErrTaskNotTerminal
	}

	dest, err := c.store.LearningDestination(ctx, msg.SessionID)
	if err != nil {
		return fmt.Errorf("resolve learning destination: %w", err)
	}
	if dest == nil {
		log.Debug("learning disabled for session, skipping")
		return errors.ErrNoLearningDestination
	}

	transcript, err := c.store.FetchTranscript(ctx, msg.TaskID)
	if err != nil {
		return fmt.Errorf("fetch transcript: %w", err)
	}

	outcome, err := c.judge(ctx, collab.RenderTranscript(transcript))
	if err != nil {
		return err
	}
	if !outcome.WorthLearning() {
		log.Info("transcript not worth learning", "skip_reason", outcome.SkipReason)
		return errors.ErrNotWorthLearning
	}
	if outcome.DistilledText == "" {
		// Fail-open verdict with nothing to forward. Treat as a skip
		// rather than publishing an invalid message.
		log.Warn("worth-learning verdict with empty distilled context, skipping")
		return errors.ErrNotWorthLearning
	}

	forward := learning.SkillLearnDistilled{
		TaskID:           msg.TaskID,
		SkillID:          *dest,
		DistilledContext: outcome.DistilledText,
	}
	raw, err := learning.Encode(forward)
	if err != nil {
		return err
	}
	if err := c.bus.Publish(ctx, learning.SkillQueue, bus.NewEnvelope(learning.KindDistilled, raw)); err != nil {
		return fmt.Errorf("forward distilled context: %w", err)
	}
	log.Info("forwarded distilled context", "skill_id", dest.String())
	return nil
}

// judge makes the single model call and parses the verdict.
func (c *Controller) judge(ctx context.Context, transcript string) (Outcome, error) {
	resp, err := c.gen.Complete(ctx, llm.Request{
		System:    systemPrompt,
		Messages:  []llm.Message{llm.UserText(transcript)},
		Tools:     []llm.ToolSchema{distillationTool()},
		ForceTool: toolSubmitDistillation,
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return Outcome{}, err
	}

	for _, call := range resp.ToolCalls {
		if call.Name != toolSubmitDistillation {
			continue
		}
		var outcome Outcome
		if err := json.Unmarshal(call.Arguments, &outcome); err != nil {
			// Unparseable arguments fail open like an omitted verdict,
			// but there is no distilled text to forward.
			c.log.Warn("unparseable distillation verdict", "error", err)
			return Outcome{}, nil
		}
		return outcome, nil
	}
	// No tool call at all; fail open with whatever text came back.
	return Outcome{DistilledText: resp.Text}, nil
}
