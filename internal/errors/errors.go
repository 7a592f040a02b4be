// Package errors provides centralized error definitions and error handling
// utilities for the Acontext learning pipeline. It defines the pipeline's
// failure taxonomy, error constructors with context wrapping, and
// classification helpers that decide between redelivery, requeue, and
// dead-lettering.
//
// # Failure Taxonomy
//
// Every failure in the pipeline resolves to one of a small set of outcomes,
// and the error types here carry enough information for consumers to pick
// the right one:
//
//   - ErrTaskNotTerminal: the task is still running. A deliberate silent
//     skip, not an error.
//   - ErrNotWorthLearning: the model declined to learn from the task. A
//     deliberate, logged skip, not an error.
//   - ModelError: a text-generation call failed. Transient failures are
//     redelivered; permanent ones are surfaced and dropped.
//   - ErrLockDenied: another worker holds the lease. Expected contention,
//     requeue with backoff.
//   - ErrLeaseExpired: a skill-store write was rejected because the lease
//     token no longer matches. Forces full reprocessing.
//   - ToolError: a tool invocation inside the task agent loop failed.
//
// # Usage
//
// Creating errors:
//
//	err := errors.NewModelError("distillation call failed", cause, true)
//	err := errors.NewToolError("update_task", cause)
//
// Checking errors:
//
//	if errors.Is(err, errors.ErrLockDenied) { ... }
//	if errors.IsRetryable(err) { ... }
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
// This allows callers to import only this package for all error handling.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	New    = errors.New
	Join   = errors.Join
)

// -----------------------------------------------------------------------------
// Sentinel Errors
// -----------------------------------------------------------------------------

// Distillation-related sentinel errors
var (
	// ErrTaskNotTerminal indicates that a task is neither success nor failed,
	// so there is nothing to distill yet. Consumers treat this as a silent skip.
	ErrTaskNotTerminal = New("task is not in a terminal status")
	// ErrNotWorthLearning indicates that the model declined to learn from a
	// task. Consumers log the skip reason and acknowledge the message.
	ErrNotWorthLearning = New("task not worth learning")
	// ErrTaskNotFound indicates that the task/session collaborator has no
	// record of the requested task.
	ErrTaskNotFound = New("task not found")
	// ErrNoLearningDestination indicates that the session has no learning
	// destination configured, so the learning path is inactive.
	ErrNoLearningDestination = New("session has no learning destination")
)

// Lock- and lease-related sentinel errors
var (
	// ErrLockDenied indicates that another worker currently holds the lease
	// for the requested skill identifier. Expected contention: requeue.
	ErrLockDenied = New("lock denied: lease held by another worker")
	// ErrLeaseExpired indicates that a lease is no longer held, either
	// because its TTL elapsed or a store write presented a stale token. The message must
	// be fully reprocessed.
	ErrLeaseExpired = New("lease expired")
)

// Skill-store sentinel errors
var (
	// ErrSkillNotFound indicates that no skill exists for the identifier.
	ErrSkillNotFound = New("skill not found")
)

// Bus-related sentinel errors
var (
	// ErrBusClosed indicates that the message bus has been shut down.
	ErrBusClosed = New("message bus closed")
	// ErrQueueUnknown indicates a publish or consume against an undeclared queue.
	ErrQueueUnknown = New("unknown queue")
)

// General sentinel errors
var (
	// ErrInvalidInput indicates that input validation failed.
	ErrInvalidInput = New("invalid input")
	// ErrIterationCeiling indicates that an agent loop reached its iteration
	// ceiling before the model signaled completion.
	ErrIterationCeiling = New("iteration ceiling reached")
)

// -----------------------------------------------------------------------------
// Model Errors
// -----------------------------------------------------------------------------

// ModelError represents a failure while calling the text-generation
// capability. Transient failures (rate limits, 5xx, timeouts) may succeed on
// retry; permanent failures (bad request, auth) must not be redelivered.
type ModelError struct {
	message   string
	cause     error
	transient bool
}

// NewModelError creates a ModelError. transient controls whether the failure
// should be retried by redelivery.
func NewModelError(message string, cause error, transient bool) *ModelError {
	return &ModelError{message: message, cause: cause, transient: transient}
}

// Error returns the formatted error message.
func (e *ModelError) Error() string {
	kind := "permanent"
	if e.transient {
		kind = "transient"
	}
	if e.cause != nil {
		return fmt.Sprintf("model call failed (%s): %s: %v", kind, e.message, e.cause)
	}
	return fmt.Sprintf("model call failed (%s): %s", kind, e.message)
}

// Unwrap returns the underlying error.
func (e *ModelError) Unwrap() error { return e.cause }

// Transient reports whether the failure is expected to clear on retry.
func (e *ModelError) Transient() bool { return e.transient }

// -----------------------------------------------------------------------------
// Tool Errors
// -----------------------------------------------------------------------------

// ToolError represents a failed tool invocation inside the task agent loop.
// A tool error clears the turn's accumulated learning-task identifiers (the
// task state may be inconsistent) but never discards captured preferences.
type ToolError struct {
	Tool  string
	cause error
}

// NewToolError creates a ToolError for the named tool.
func NewToolError(tool string, cause error) *ToolError {
	return &ToolError{Tool: tool, cause: cause}
}

// Error returns the formatted error message.
func (e *ToolError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("tool %s failed: %v", e.Tool, e.cause)
	}
	return fmt.Sprintf("tool %s failed", e.Tool)
}

// Unwrap returns the underlying error.
func (e *ToolError) Unwrap() error { return e.cause }

// -----------------------------------------------------------------------------
// Classification Helpers
// -----------------------------------------------------------------------------

// IsRetryable reports whether the operation that produced err may succeed if
// the message is requeued or redelivered. Lock denial and lease expiry are
// always retryable; model errors are retryable only when transient.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if Is(err, ErrLockDenied) || Is(err, ErrLeaseExpired) {
		return true
	}
	var modelErr *ModelError
	if As(err, &modelErr) {
		return modelErr.Transient()
	}
	return false
}

// IsSilentSkip reports whether err represents a deliberate non-error outcome:
// the message should be acknowledged without retry and without an error record.
func IsSilentSkip(err error) bool {
	return Is(err, ErrTaskNotTerminal) ||
		Is(err, ErrNotWorthLearning) ||
		Is(err, ErrNoLearningDestination)
}
