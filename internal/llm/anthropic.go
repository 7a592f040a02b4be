package llm

import (
	"context"
	"net"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/esinanturan/Acontext/internal/errors"
)

// AnthropicGenerator implements Generator over the Anthropic Messages API.
type AnthropicGenerator struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewAnthropic builds a generator for the given model. An empty apiKey
// defers to the SDK's environment lookup.
func NewAnthropic(apiKey, model string) *AnthropicGenerator {
	opts := []option.RequestOption{}
	if apiKey != "" {
		opts = append(opts, option.WithAPIKey(apiKey))
	}
	return &AnthropicGenerator{
		client: anthropic.NewClient(opts...),
		model:  anthropic.Model(model),
	}
}

func (g *AnthropicGenerator) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     g.model,
		MaxTokens: req.MaxTokens,
	}
	if params.MaxTokens == 0 {
		params.MaxTokens = 4096
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	for _, m := range req.Messages {
		params.Messages = append(params.Messages, toAnthropicMessage(m))
	}
	for _, t := range req.Tools {
		params.Tools = append(params.Tools, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name,
				Description: anthropic.String(t.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: t.Properties,
					Required:   t.Required,
				},
			},
		})
	}
	if req.ForceTool != "" {
		params.ToolChoice = anthropic.ToolChoiceUnionParam{
			OfTool: &anthropic.ToolChoiceToolParam{Name: req.ForceTool},
		}
	}

	msg, err := g.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, classify(err)
	}

	resp := Response{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			if resp.Text != "" {
				resp.Text += "\n"
			}
			resp.Text += b.Text
		case anthropic.ToolUseBlock:
			resp.ToolCalls = append(resp.ToolCalls, ToolCall{
				ID:        b.ID,
				Name:      b.Name,
				Arguments: []byte(b.JSON.Input.Raw()),
			})
		}
	}
	return resp, nil
}

func toAnthropicMessage(m Message) anthropic.MessageParam {
	var blocks []anthropic.ContentBlockParamUnion
	if m.Text != "" {
		blocks = append(blocks, anthropic.NewTextBlock(m.Text))
	}
	for _, tc := range m.ToolCalls {
		blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
	}
	for _, tr := range m.ToolResults {
		blocks = append(blocks, anthropic.NewToolResultBlock(tr.ToolCallID, tr.Content, tr.IsError))
	}
	if m.Role == RoleAssistant {
		return anthropic.NewAssistantMessage(blocks...)
	}
	return anthropic.NewUserMessage(blocks...)
}

// classify maps provider failures onto ModelError. Rate limits, server
// errors, and network faults are transient; everything else is permanent.
func classify(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == 429 || apiErr.StatusCode >= 500 {
			return errors.NewModelError("provider unavailable", err, true)
		}
		return errors.NewModelError("provider rejected request", err, false)
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return errors.NewModelError("network failure calling provider", err, true)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return errors.NewModelError("provider call timed out", err, true)
	}
	return errors.NewModelError("provider call failed", err, false)
}
