package collab

import (
	"fmt"
	"strings"
)

// Display names used when flattening a transcript for the model. The agent's
// own turns render as "agent" and tool output renders as a distinct
// "agent_action" speaker so the model can tell decisions from observations.
const (
	speakerAgent       = "agent"
	speakerAgentAction = "agent_action"
)

func speakerFor(role string) string {
	switch role {
	case "assistant":
		return speakerAgent
	case "tool":
		return speakerAgentAction
	default:
		return role
	}
}

// RenderPart flattens a single message part into one prompt line.
// Media parts render as placeholders; tool calls render the invocation so the
// model sees what the agent chose to do.
func RenderPart(role string, p Part) string {
	speaker := speakerFor(role)
	switch p.Type {
	case "text", "data":
		return fmt.Sprintf("<%s>: %s", speaker, p.Text)
	case "tool-call":
		return fmt.Sprintf("<%s>: USE TOOL %s, WITH PARAMS %s", speaker, p.ToolName, string(p.ToolArguments))
	case "tool-result":
		return fmt.Sprintf("<%s>: %s", speakerAgentAction, p.Text)
	case "image", "audio", "video", "file":
		name := p.Filename
		if name == "" {
			name = "untitled"
		}
		return fmt.Sprintf("<%s>: [%s file: %s]", speaker, p.Type, name)
	default:
		return fmt.Sprintf("<%s>: [unsupported part: %s]", speaker, p.Type)
	}
}

// RenderTranscript flattens an ordered transcript into the plain-text form
// fed to the distillation and skill-update prompts.
func RenderTranscript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		for _, p := range m.Parts {
			b.WriteString(RenderPart(m.Role, p))
			b.WriteByte('\n')
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
