// Package learning defines the message types exchanged over the bus by the
// learning pipeline, together with the queue names that route them.
//
// There are exactly two message kinds: SkillLearnTask, published by the task
// agent loop when a task reaches a terminal status, and SkillLearnDistilled,
// produced either by the distillation controller (task-originated) or
// directly by the task agent loop for captured user preferences
// (preference-originated).
package learning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// Queue names for the pipeline's logical destinations. Retry and dead-letter
// queues are derived per consumer role with RetryQueue and DeadLetterQueue.
const (
	// TaskQueue receives SkillLearnTask messages for distillation.
	TaskQueue = "learning.skill.distill.entry"
	// SkillQueue receives SkillLearnDistilled messages for the skill agent.
	SkillQueue = "learning.skill.agent.entry"
)

// Envelope kinds for the two message types.
const (
	KindTask      = "skill_learn_task"
	KindDistilled = "skill_learn_distilled"
)

// RetryQueue returns the retry/delay queue name for a consumer entry queue.
func RetryQueue(queue string) string { return queue + ".retry" }

// DeadLetterQueue returns the dead-letter queue name for a consumer entry queue.
func DeadLetterQueue(queue string) string { return queue + ".dlq" }

// SentinelTaskID is the reserved all-zero task identifier carried by
// preference-originated SkillLearnDistilled messages, meaning "not tied to
// any task".
var SentinelTaskID = uuid.Nil

// PreferenceSkillID is the well-known skill identifier under which user
// preference facts accumulate. Preference-originated messages always target
// this skill.
var PreferenceSkillID = uuid.MustParse("11111111-1111-4111-8111-111111111111")

// SkillLearnTask announces that a task reached a terminal status and is a
// candidate for learning. Published once per terminal task.
type SkillLearnTask struct {
	TaskID    uuid.UUID `json:"task_id"`
	SessionID uuid.UUID `json:"session_id"`
}

// Validate checks that the message carries a real task identifier.
func (m SkillLearnTask) Validate() error {
	if m.TaskID == uuid.Nil {
		return fmt.Errorf("skill learn task: task_id must not be the sentinel")
	}
	if m.SessionID == uuid.Nil {
		return fmt.Errorf("skill learn task: session_id is required")
	}
	return nil
}

// SkillLearnDistilled carries a distilled learning context to the skill
// agent. Task-originated messages name the real task; preference-originated
// messages carry SentinelTaskID and target PreferenceSkillID.
type SkillLearnDistilled struct {
	TaskID           uuid.UUID `json:"task_id"`
	SkillID          uuid.UUID `json:"skill_id"`
	DistilledContext string    `json:"distilled_context"`
}

// Validate checks structural invariants on the message.
func (m SkillLearnDistilled) Validate() error {
	if m.SkillID == uuid.Nil {
		return fmt.Errorf("skill learn distilled: skill_id is required")
	}
	if strings.TrimSpace(m.DistilledContext) == "" {
		return fmt.Errorf("skill learn distilled: distilled_context is required")
	}
	return nil
}

// FromPreferences reports whether the message originated from the preference
// capture path rather than a distilled task.
func (m SkillLearnDistilled) FromPreferences() bool {
	return m.TaskID == SentinelTaskID
}

// PreferenceHeading labels coalesced preference blocks in distilled context.
const PreferenceHeading = "## User Preferences"

// PreferenceBlock coalesces captured preference statements into the single
// bulleted block published as a preference-originated distilled context.
func PreferenceBlock(preferences []string) string {
	var b strings.Builder
	b.WriteString(PreferenceHeading)
	for _, p := range preferences {
		b.WriteString("\n- ")
		b.WriteString(strings.TrimSpace(p))
	}
	return b.String()
}

// Encode marshals a message payload for an envelope.
func Encode(v any) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}
	return raw, nil
}

// DecodeTask unmarshals a SkillLearnTask payload.
func DecodeTask(raw json.RawMessage) (SkillLearnTask, error) {
	var m SkillLearnTask
	if err := json.Unmarshal(raw, &m); err != nil {
		return SkillLearnTask{}, fmt.Errorf("decode skill learn task: %w", err)
	}
	return m, nil
}

// DecodeDistilled unmarshals a SkillLearnDistilled payload.
func DecodeDistilled(raw json.RawMessage) (SkillLearnDistilled, error) {
	var m SkillLearnDistilled
	if err := json.Unmarshal(raw, &m); err != nil {
		return SkillLearnDistilled{}, fmt.Errorf("decode skill learn distilled: %w", err)
	}
	return m, nil
}
