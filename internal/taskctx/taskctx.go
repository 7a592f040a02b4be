// Package taskctx holds the staging buffers the agent loop writes into
// while executing tools. A TaskContext lives for one tool-execution batch
// and is discarded whenever a tool mutates task state; its pending items
// must be drained into the turn-scoped Accumulator first, or they are lost
// with the context.
package taskctx

import "github.com/google/uuid"

// TaskContext stages items produced during one tool-execution batch.
// Not safe for concurrent use; each batch owns exactly one.
type TaskContext struct {
	pendingPreferences     []string
	pendingLearningTaskIDs map[uuid.UUID]struct{}
}

func New() *TaskContext {
	return &TaskContext{
		pendingLearningTaskIDs: make(map[uuid.UUID]struct{}),
	}
}

// AddPreference stages one user preference statement.
func (c *TaskContext) AddPreference(text string) {
	c.pendingPreferences = append(c.pendingPreferences, text)
}

// AddLearningTask stages a task whose terminal status makes it a learning
// candidate. Duplicate IDs collapse.
func (c *TaskContext) AddLearningTask(id uuid.UUID) {
	c.pendingLearningTaskIDs[id] = struct{}{}
}

// Drained is the snapshot Drain hands to the accumulator.
type Drained struct {
	Preferences     []string
	LearningTaskIDs []uuid.UUID
}

// Drain returns all staged items and clears the buffers. The context is
// reusable afterwards, though the loop normally replaces it.
func (c *TaskContext) Drain() Drained {
	d := Drained{Preferences: c.pendingPreferences}
	for id := range c.pendingLearningTaskIDs {
		d.LearningTaskIDs = append(d.LearningTaskIDs, id)
	}
	c.pendingPreferences = nil
	c.pendingLearningTaskIDs = make(map[uuid.UUID]struct{})
	return d
}

// Empty reports whether nothing is staged.
func (c *TaskContext) Empty() bool {
	return len(c.pendingPreferences) == 0 && len(c.pendingLearningTaskIDs) == 0
}

// Accumulator collects drained items across a whole turn. Learning task IDs
// can be cleared when a tool fails; preferences survive tool failures and
// are only consumed at turn end.
type Accumulator struct {
	preferences     []string
	learningTaskIDs map[uuid.UUID]struct{}
}

func NewAccumulator() *Accumulator {
	return &Accumulator{
		learningTaskIDs: make(map[uuid.UUID]struct{}),
	}
}

// Merge folds one drained snapshot into the turn totals.
func (a *Accumulator) Merge(d Drained) {
	a.preferences = append(a.preferences, d.Preferences...)
	for _, id := range d.LearningTaskIDs {
		a.learningTaskIDs[id] = struct{}{}
	}
}

// ClearLearningTasks discards the accumulated learning candidates. Called
// when a tool error invalidates the turn's task-state outcomes.
func (a *Accumulator) ClearLearningTasks() {
	a.learningTaskIDs = make(map[uuid.UUID]struct{})
}

// Preferences returns the accumulated preference statements in arrival order.
func (a *Accumulator) Preferences() []string {
	out := make([]string, len(a.preferences))
	copy(out, a.preferences)
	return out
}

// LearningTaskIDs returns the accumulated learning candidates.
func (a *Accumulator) LearningTaskIDs() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(a.learningTaskIDs))
	for id := range a.learningTaskIDs {
		out = append(out, id)
	}
	return out
}
