package distill

import "github.com/esinanturan/Acontext/internal/llm"

const toolSubmitDistillation = "submit_distillation"

const systemPrompt = `You review completed agent task transcripts and decide
whether they contain reusable lessons.

A transcript is worth learning from when it shows a non-obvious approach,
a recoverable mistake, a user correction, or environment-specific knowledge
that would change how a similar task is done next time. Routine exchanges
with nothing transferable are not worth learning from.

When a transcript is worth learning from, distill it: keep only the facts
and decisions a future agent needs, written as short declarative statements.
Do not retell the conversation.

Always answer by calling submit_distillation exactly once.`

// distillationTool is the single tool offered to the judging call. The
// verdict field is required; the other two depend on its value.
func distillationTool() llm.ToolSchema {
	return llm.ToolSchema{
		Name:        toolSubmitDistillation,
		Description: "Submit the learning verdict for the reviewed transcript.",
		Properties: map[string]any{
			"is_worth_learning": map[string]any{
				"type":        "boolean",
				"description": "Whether the transcript contains reusable lessons.",
			},
			"skip_reason": map[string]any{
				"type":        "string",
				"description": "Why the transcript is not worth learning from. Only when is_worth_learning is false.",
			},
			"distilled_context": map[string]any{
				"type":        "string",
				"description": "The distilled lessons. Only when is_worth_learning is true.",
			},
		},
		Required: []string{"is_worth_learning"},
	}
}
