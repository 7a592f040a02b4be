package skillagent

import (
	"fmt"

	"github.com/esinanturan/Acontext/internal/llm"
)

const (
	toolUpdateSkill = "update_skill"
	toolFinish      = "finish"
)

const systemPrompt = `You maintain a skill document: a living reference that
future agents read before doing similar work.

You receive the current document and newly distilled lessons. Fold the
lessons in: merge duplicates, resolve contradictions in favor of the newer
lesson, and keep the document short and declarative. Preserve sections you
have no reason to touch.

Use update_skill to replace the document, then call finish. If the lessons
add nothing, call finish without updating.`

func agentTools() []llm.ToolSchema {
	return []llm.ToolSchema{
		{
			Name:        toolUpdateSkill,
			Description: "Replace the full skill document with new content.",
			Properties: map[string]any{
				"content": map[string]any{
					"type":        "string",
					"description": "The complete updated document.",
				},
			},
			Required: []string{"content"},
		},
		{
			Name:        toolFinish,
			Description: "Signal that the skill document is up to date.",
			Properties:  map[string]any{},
		},
	}
}

func updatePrompt(current, distilled string) string {
	if current == "" {
		current = "(empty document)"
	}
	return fmt.Sprintf("Current skill document:\n\n%s\n\nNew distilled lessons:\n\n%s", current, distilled)
}
