// Package agentloop drives one conversational turn of the task agent: a
// bounded sequence of model calls and tool executions, ending with the
// publication of learning candidates and captured preferences onto the bus.
package agentloop

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/esinanturan/Acontext/internal/bus"
	"github.com/esinanturan/Acontext/internal/collab"
	"github.com/esinanturan/Acontext/internal/errors"
	"github.com/esinanturan/Acontext/internal/learning"
	"github.com/esinanturan/Acontext/internal/llm"
	"github.com/esinanturan/Acontext/internal/logging"
	"github.com/esinanturan/Acontext/internal/taskctx"
)

// Config bounds a turn.
type Config struct {
	// MaxIterations caps model-call/tool-execution rounds per turn.
	MaxIterations int
	// MaxTokens is passed through to each model call.
	MaxTokens int64
	// System is the system prompt for the turn's model calls.
	System string
}

func (c *Config) applyDefaults() {
	if c.MaxIterations <= 0 {
		c.MaxIterations = 10
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = 4096
	}
}

// Loop runs agent turns. Tools are registered once at construction time;
// the loop is then safe for concurrent turns.
type Loop struct {
	gen   llm.Generator
	bus   bus.Bus
	store collab.Store
	log   *logging.Logger
	cfg   Config

	tools map[string]Tool
	order []llm.ToolSchema
}

// New builds a Loop with the built-in preference tool registered. Pass a
// non-nil update to also expose the task status tool.
func New(gen llm.Generator, b bus.Bus, store collab.Store, log *logging.Logger, update StatusUpdater, cfg Config) *Loop {
	cfg.applyDefaults()
	l := &Loop{
		gen:   gen,
		bus:   b,
		store: store,
		log:   log,
		cfg:   cfg,
		tools: make(map[string]Tool),
	}
	l.mustRegister(preferenceTool())
	if update != nil {
		l.mustRegister(statusTool(update))
	}
	return l
}

// Register adds a caller-provided tool. Names must be unique.
func (l *Loop) Register(t Tool) error {
	if _, exists := l.tools[t.Schema.Name]; exists {
		return fmt.Errorf("%w: duplicate tool %q", errors.ErrInvalidInput, t.Schema.Name)
	}
	l.tools[t.Schema.Name] = t
	l.order = append(l.order, t.Schema)
	return nil
}

func (l *Loop) mustRegister(t Tool) {
	if err := l.Register(t); err != nil {
		panic(err)
	}
}

// Result summarizes one completed turn.
type Result struct {
	// FinalText is the model's closing reply, empty when the iteration
	// ceiling cut the turn short.
	FinalText string
	// LearnTasks lists the task IDs published for distillation.
	LearnTasks []uuid.UUID
	// PreferencesPublished reports whether a coalesced preference block
	// went to the skill-update queue.
	PreferencesPublished bool
	// Iterations counts model calls made.
	Iterations int
	// CeilingHit reports that MaxIterations ended the turn.
	CeilingHit bool
}

// RunTurn executes one turn for the session. Model failures abort the turn
// before anything is published; tool failures clear accumulated learning
// candidates but captured preferences still publish at turn end.
func (l *Loop) RunTurn(ctx context.Context, sessionID uuid.UUID, input string) (Result, error) {
	log := l.log.WithSession(sessionID.String())
	acc := taskctx.NewAccumulator()
	tc := taskctx.New()

	messages := []llm.Message{llm.UserText(input)}
	var result Result

	for result.Iterations < l.cfg.MaxIterations {
		resp, err := l.gen.Complete(ctx, llm.Request{
			System:    l.cfg.System,
			Messages:  messages,
			Tools:     l.order,
			MaxTokens: l.cfg.MaxTokens,
		})
		if err != nil {
			return Result{}, err
		}
		result.Iterations++
		messages = append(messages, llm.AssistantReply(resp))

		if len(resp.ToolCalls) == 0 {
			result.FinalText = resp.Text
			break
		}

		results, mutated, failed := l.runBatch(ctx, log, tc, resp.ToolCalls)
		if mutated {
			// Drain before rebuilding; anything staged in the old context
			// would otherwise be lost with it.
			acc.Merge(tc.Drain())
			tc = taskctx.New()
		}
		if failed {
			acc.ClearLearningTasks()
		}
		messages = append(messages, llm.ResultsMessage(results...))
	}

	if result.FinalText == "" && result.Iterations == l.cfg.MaxIterations {
		result.CeilingHit = true
		log.Warn("turn ended at iteration ceiling", "iterations", result.Iterations)
	}

	acc.Merge(tc.Drain())
	if err := l.publish(ctx, log, sessionID, acc, &result); err != nil {
		return result, err
	}
	return result, nil
}

// runBatch executes one round of tool calls. Individual tool failures are
// reported back to the model as error results rather than aborting the turn.
func (l *Loop) runBatch(ctx context.Context, log *logging.Logger, tc *taskctx.TaskContext, calls []llm.ToolCall) (results []llm.ToolResult, mutated, failed bool) {
	for _, call := range calls {
		tool, known := l.tools[call.Name]
		if !known {
			failed = true
			results = append(results, llm.ToolResult{
				ToolCallID: call.ID,
				Content:    fmt.Sprintf("unknown tool %q", call.Name),
				IsError:    true,
			})
			continue
		}
		output, err := tool.Run(ctx, tc, call.Arguments)
		if err != nil {
			failed = true
			toolErr := errors.NewToolError(call.Name, err)
			log.Warn("tool execution failed", "tool", call.Name, "error", toolErr)
			results = append(results, llm.ToolResult{
				ToolCallID: call.ID,
				Content:    toolErr.Error(),
				IsError:    true,
			})
			continue
		}
		if tool.MutatesTaskState {
			mutated = true
		}
		results = append(results, llm.ToolResult{ToolCallID: call.ID, Content: output})
	}
	return results, mutated, failed
}

// publish flushes the turn's accumulated learning candidates and captured
// preferences onto the bus.
func (l *Loop) publish(ctx context.Context, log *logging.Logger, sessionID uuid.UUID, acc *taskctx.Accumulator, result *Result) error {
	for _, taskID := range acc.LearningTaskIDs() {
		msg := learning.SkillLearnTask{TaskID: taskID, SessionID: sessionID}
		if err := msg.Validate(); err != nil {
			log.Error("skipping invalid learn task", "task_id", taskID, "error", err)
			continue
		}
		raw, err := learning.Encode(msg)
		if err != nil {
			return err
		}
		if err := l.bus.Publish(ctx, learning.TaskQueue, bus.NewEnvelope(learning.KindTask, raw)); err != nil {
			return fmt.Errorf("publish learn task %s: %w", taskID, err)
		}
		result.LearnTasks = append(result.LearnTasks, taskID)
		log.Info("published learning candidate", "task_id", taskID)
	}

	prefs := acc.Preferences()
	if len(prefs) == 0 {
		return nil
	}
	dest, err := l.store.LearningDestination(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("resolve learning destination: %w", err)
	}
	if dest == nil {
		log.Debug("dropping captured preferences, learning disabled for session", "count", len(prefs))
		return nil
	}

	msg := learning.SkillLearnDistilled{
		TaskID:           learning.SentinelTaskID,
		SkillID:          learning.PreferenceSkillID,
		DistilledContext: learning.PreferenceBlock(prefs),
	}
	raw, err := learning.Encode(msg)
	if err != nil {
		return err
	}
	if err := l.bus.Publish(ctx, learning.SkillQueue, bus.NewEnvelope(learning.KindDistilled, raw)); err != nil {
		return fmt.Errorf("publish preferences: %w", err)
	}
	result.PreferencesPublished = true
	log.Info("published preference block", "count", len(prefs))
	return nil
}
