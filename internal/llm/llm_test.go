package llm

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/esinanturan/Acontext/internal/errors"
)

func TestFakeGeneratorScript(t *testing.T) {
	fake := NewFakeGenerator().
		Respond(Response{Text: "first"}).
		Fail(errors.NewModelError("boom", nil, true)).
		Respond(Response{ToolCalls: []ToolCall{{Name: "finish", Arguments: json.RawMessage(`{}`)}}})

	resp, err := fake.Complete(context.Background(), Request{System: "sys"})
	if err != nil {
		t.Fatalf("first call error = %v", err)
	}
	if resp.Text != "first" {
		t.Errorf("first response text = %q", resp.Text)
	}

	_, err = fake.Complete(context.Background(), Request{})
	var modelErr *errors.ModelError
	if !errors.As(err, &modelErr) || !modelErr.Transient() {
		t.Fatalf("second call error = %v, want transient ModelError", err)
	}

	resp, err = fake.Complete(context.Background(), Request{})
	if err != nil {
		t.Fatalf("third call error = %v", err)
	}
	if len(resp.ToolCalls) != 1 || resp.ToolCalls[0].Name != "finish" {
		t.Errorf("third response tool calls = %+v", resp.ToolCalls)
	}

	if fake.Calls() != 3 {
		t.Errorf("Calls() = %d, want 3", fake.Calls())
	}
	if got := fake.Requests()[0].System; got != "sys" {
		t.Errorf("recorded system prompt = %q", got)
	}
}

func TestFakeGeneratorExhausted(t *testing.T) {
	fake := NewFakeGenerator()
	_, err := fake.Complete(context.Background(), Request{})
	var modelErr *errors.ModelError
	if !errors.As(err, &modelErr) {
		t.Fatalf("error = %v, want ModelError", err)
	}
	if modelErr.Transient() {
		t.Error("exhausted script should be a permanent failure")
	}
}

func TestConversationHelpers(t *testing.T) {
	resp := Response{
		Text:      "thinking",
		ToolCalls: []ToolCall{{ID: "tc1", Name: "update_skill", Arguments: json.RawMessage(`{"content":"x"}`)}},
	}

	turn := AssistantReply(resp)
	if turn.Role != RoleAssistant || turn.Text != "thinking" || len(turn.ToolCalls) != 1 {
		t.Errorf("AssistantReply() = %+v", turn)
	}

	results := ResultsMessage(ToolResult{ToolCallID: "tc1", Content: "done"})
	if results.Role != RoleUser || len(results.ToolResults) != 1 {
		t.Errorf("ResultsMessage() = %+v", results)
	}

	user := UserText("hello")
	if user.Role != RoleUser || user.Text != "hello" {
		t.Errorf("UserText() = %+v", user)
	}
}
