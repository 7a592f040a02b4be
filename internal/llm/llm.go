// Package llm abstracts the model provider behind a small completion
// interface so pipeline handlers can be tested against scripted fakes.
package llm

import (
	"context"
	"encoding/json"
)

// Roles for conversation messages.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ToolCall is a tool invocation requested by the model.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult carries the outcome of a tool call back to the model.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message is one turn of a model conversation. Assistant turns may carry
// tool calls; user turns may carry tool results.
type Message struct {
	Role        string       `json:"role"`
	Text        string       `json:"text,omitempty"`
	ToolCalls   []ToolCall   `json:"tool_calls,omitempty"`
	ToolResults []ToolResult `json:"tool_results,omitempty"`
}

// ToolSchema describes one tool offered to the model. Properties holds the
// JSON Schema property map for the tool's input object.
type ToolSchema struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Properties  map[string]any `json:"properties"`
	Required    []string       `json:"required,omitempty"`
}

// Request is one completion request.
type Request struct {
	System   string
	Messages []Message
	Tools    []ToolSchema

	// ForceTool, when set, requires the model to call the named tool.
	ForceTool string

	MaxTokens int64
}

// Response is the model's reply.
type Response struct {
	Text       string
	ToolCalls  []ToolCall
	StopReason string
}

// Generator produces completions. Implementations classify provider
// failures as transient or permanent via errors.ModelError so workers can
// decide between redelivery and dropping.
type Generator interface {
	Complete(ctx context.Context, req Request) (Response, error)
}

// UserText builds a single-part user message.
func UserText(text string) Message {
	return Message{Role: RoleUser, Text: text}
}

// AssistantReply records a model response as a conversation turn so the
// next request carries the full exchange.
func AssistantReply(resp Response) Message {
	return Message{Role: RoleAssistant, Text: resp.Text, ToolCalls: resp.ToolCalls}
}

// ResultsMessage wraps tool results into the user turn that follows an
// assistant tool call.
func ResultsMessage(results ...ToolResult) Message {
	return Message{Role: RoleUser, ToolResults: results}
}
