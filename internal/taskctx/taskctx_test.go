package taskctx

import (
	"testing"

	"github.com/google/uuid"
)

func TestTaskContextDrain(t *testing.T) {
	ctx := New()
	if !ctx.Empty() {
		t.Fatal("new context should be empty")
	}

	taskA, taskB := uuid.New(), uuid.New()
	ctx.AddPreference("prefers tabs")
	ctx.AddPreference("wants terse replies")
	ctx.AddLearningTask(taskA)
	ctx.AddLearningTask(taskB)
	ctx.AddLearningTask(taskA) // duplicate collapses

	d := ctx.Drain()
	if len(d.Preferences) != 2 {
		t.Errorf("drained %d preferences, want 2", len(d.Preferences))
	}
	if d.Preferences[0] != "prefers tabs" {
		t.Errorf("preference order broken: %v", d.Preferences)
	}
	if len(d.LearningTaskIDs) != 2 {
		t.Errorf("drained %d learning tasks, want 2", len(d.LearningTaskIDs))
	}

	if !ctx.Empty() {
		t.Error("context should be empty after drain")
	}
	if again := ctx.Drain(); len(again.Preferences) != 0 || len(again.LearningTaskIDs) != 0 {
		t.Errorf("second drain not empty: %+v", again)
	}
}

func TestAccumulatorMerge(t *testing.T) {
	acc := NewAccumulator()
	taskA, taskB := uuid.New(), uuid.New()

	acc.Merge(Drained{Preferences: []string{"one"}, LearningTaskIDs: []uuid.UUID{taskA}})
	acc.Merge(Drained{Preferences: []string{"two"}, LearningTaskIDs: []uuid.UUID{taskA, taskB}})

	if got := acc.Preferences(); len(got) != 2 || got[0] != "one" || got[1] != "two" {
		t.Errorf("Preferences() = %v", got)
	}
	if got := acc.LearningTaskIDs(); len(got) != 2 {
		t.Errorf("LearningTaskIDs() = %v, want 2 entries", got)
	}
}

func TestAccumulatorClearLearningTasksKeepsPreferences(t *testing.T) {
	acc := NewAccumulator()
	acc.Merge(Drained{
		Preferences:     []string{"keep me"},
		LearningTaskIDs: []uuid.UUID{uuid.New()},
	})

	acc.ClearLearningTasks()

	if got := acc.LearningTaskIDs(); len(got) != 0 {
		t.Errorf("learning tasks after clear = %v, want none", got)
	}
	if got := acc.Preferences(); len(got) != 1 || got[0] != "keep me" {
		t.Errorf("preferences after clear = %v, want [keep me]", got)
	}
}
