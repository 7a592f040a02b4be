// Package collab defines the pipeline's view of the task/session subsystem.
// Tasks, sessions, and their message transcripts are owned by an external
// collaborator; this package holds the read-only client interface the
// pipeline consumes, the record types it reads, and the transcript rendering
// used to build model prompts.
package collab

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Task statuses. Only success and failed are terminal; learning never runs
// against a task that is still in flight.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Task is a read-only snapshot of one tracked task.
type Task struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	Status    string          `json:"status"`
	Data      json.RawMessage `json:"data,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// Terminal reports whether the task reached a final status.
func (t Task) Terminal() bool {
	return t.Status == StatusSuccess || t.Status == StatusFailed
}

// Part is one segment of a conversation message: text, a tool call, a tool
// result, or an attached media file.
type Part struct {
	// Type is one of "text", "tool-call", "tool-result", "image", "audio",
	// "video", "file", or "data".
	Type string `json:"type"`

	// Text carries the content for text-like parts.
	Text string `json:"text,omitempty"`

	// Filename names attached media parts.
	Filename string `json:"filename,omitempty"`

	// ToolName and ToolArguments describe tool-call parts.
	ToolName      string          `json:"tool_name,omitempty"`
	ToolArguments json.RawMessage `json:"tool_arguments,omitempty"`
}

// Message is one transcript entry.
type Message struct {
	ID    uuid.UUID `json:"id"`
	Role  string    `json:"role"`
	Parts []Part    `json:"parts"`
}

// Store is the read-only client for the task/session collaborator.
type Store interface {
	// FetchTask loads one task. Returns errors.ErrTaskNotFound for unknown IDs.
	FetchTask(ctx context.Context, id uuid.UUID) (Task, error)

	// FetchTranscript loads the ordered message transcript for a task.
	FetchTranscript(ctx context.Context, taskID uuid.UUID) ([]Message, error)

	// LearningDestination resolves the session's learning target skill, or
	// nil when learning is disabled for the session.
	LearningDestination(ctx context.Context, sessionID uuid.UUID) (*uuid.UUID, error)
}
