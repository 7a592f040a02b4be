package agentloop

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/esinanturan/Acontext/internal/collab"
	"github.com/esinanturan/Acontext/internal/errors"
	"github.com/esinanturan/Acontext/internal/llm"
	"github.com/esinanturan/Acontext/internal/taskctx"
)

// ToolFunc executes one tool call against the current task context and
// returns the text reported back to the model.
type ToolFunc func(ctx context.Context, tc *taskctx.TaskContext, args json.RawMessage) (string, error)

// Tool is one callable exposed to the model during a turn.
type Tool struct {
	Schema llm.ToolSchema

	// MutatesTaskState marks tools whose execution invalidates the current
	// task context. After such a tool runs, the loop drains the context
	// into the turn accumulator and then rebuilds it, in that order.
	MutatesTaskState bool

	Run ToolFunc
}

// StatusUpdater applies a task status change in the owning system.
type StatusUpdater func(ctx context.Context, taskID uuid.UUID, status string) error

const (
	toolSubmitPreference = "submit_user_preference"
	toolUpdateTaskStatus = "update_task_status"
)

// preferenceTool captures a durable user preference into the task context.
// Capturing a preference never forces a context reset.
func preferenceTool() Tool {
	return Tool{
		Schema: llm.ToolSchema{
			Name:        toolSubmitPreference,
			Description: "Record a durable preference the user expressed about how they want work done.",
			Properties: map[string]any{
				"preference": map[string]any{
					"type":        "string",
					"description": "The preference, stated as one standalone fact.",
				},
			},
			Required: []string{"preference"},
		},
		Run: func(_ context.Context, tc *taskctx.TaskContext, args json.RawMessage) (string, error) {
			var input struct {
				Preference string `json:"preference"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
			}
			if strings.TrimSpace(input.Preference) == "" {
				return "", fmt.Errorf("%w: preference must not be empty", errors.ErrInvalidInput)
			}
			tc.AddPreference(strings.TrimSpace(input.Preference))
			return "preference recorded", nil
		},
	}
}

// statusTool updates a task's status through the injected updater. A task
// reaching a terminal status becomes a learning candidate.
func statusTool(update StatusUpdater) Tool {
	return Tool{
		MutatesTaskState: true,
		Schema: llm.ToolSchema{
			Name:        toolUpdateTaskStatus,
			Description: "Set the status of a tracked task.",
			Properties: map[string]any{
				"task_id": map[string]any{
					"type":        "string",
					"description": "Task identifier (UUID).",
				},
				"status": map[string]any{
					"type": "string",
					"enum": []string{collab.StatusRunning, collab.StatusSuccess, collab.StatusFailed},
				},
			},
			Required: []string{"task_id", "status"},
		},
		Run: func(ctx context.Context, tc *taskctx.TaskContext, args json.RawMessage) (string, error) {
			var input struct {
				TaskID string `json:"task_id"`
				Status string `json:"status"`
			}
			if err := json.Unmarshal(args, &input); err != nil {
				return "", fmt.Errorf("%w: %v", errors.ErrInvalidInput, err)
			}
			taskID, err := uuid.Parse(input.TaskID)
			if err != nil {
				return "", fmt.Errorf("%w: task_id: %v", errors.ErrInvalidInput, err)
			}
			switch input.Status {
			case collab.StatusRunning, collab.StatusSuccess, collab.StatusFailed:
			default:
				return "", fmt.Errorf("%w: unknown status %q", errors.ErrInvalidInput, input.Status)
			}
			if err := update(ctx, taskID, input.Status); err != nil {
				return "", err
			}
			if (collab.Task{Status: input.Status}).Terminal() {
				tc.AddLearningTask(taskID)
			}
			return fmt.Sprintf("task %s set to %s", taskID, input.Status), nil
		},
	}
}
