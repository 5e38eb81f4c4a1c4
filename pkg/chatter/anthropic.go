package chatter

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// defaultMaxTokens bounds each model reply.
const defaultMaxTokens = 4096

// AnthropicClient is the production ModelClient.
type AnthropicClient struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient builds a client for the given API key and model id.
func NewAnthropicClient(apiKey, model string) *AnthropicClient {
	return &AnthropicClient{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     anthropic.Model(model),
		maxTokens: defaultMaxTokens,
	}
}

// CreateTurn translates the vendor-neutral request into the Messages API,
// invokes it, and maps the reply back.
func (a *AnthropicClient) CreateTurn(ctx context.Context, req TurnRequest) (*ModelReply, error) {
	msg, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.System}},
		Messages:  buildMessages(req.Turns),
		Tools:     buildTools(req.Tools),
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic messages: %w", err)
	}

	reply := &ModelReply{StopReason: string(msg.StopReason)}
	for _, block := range msg.Content {
		switch v := block.AsAny().(type) {
		case anthropic.TextBlock:
			reply.Blocks = append(reply.Blocks, TextBlock(v.Text))
		case anthropic.ToolUseBlock:
			reply.Blocks = append(reply.Blocks, Block{
				Type:      BlockToolUse,
				ToolID:    v.ID,
				ToolName:  v.Name,
				ToolInput: json.RawMessage(v.Input),
			})
		}
	}
	return reply, nil
}

func buildMessages(turns []Turn) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(turns))
	for _, turn := range turns {
		blocks := make([]anthropic.ContentBlockParamUnion, 0, len(turn.Blocks))
		for _, b := range turn.Blocks {
			switch b.Type {
			case BlockText:
				blocks = append(blocks, anthropic.NewTextBlock(b.Text))
			case BlockToolUse:
				blocks = append(blocks, anthropic.NewToolUseBlock(b.ToolID, b.ToolInput, b.ToolName))
			case BlockToolResult:
				blocks = append(blocks, anthropic.NewToolResultBlock(b.ToolID, b.Content, b.IsError))
			}
		}
		if turn.Role == RoleAssistant {
			out = append(out, anthropic.NewAssistantMessage(blocks...))
		} else {
			out = append(out, anthropic.NewUserMessage(blocks...))
		}
	}
	return out
}

func buildTools(defs []ToolDef) []anthropic.ToolUnionParam {
	out := make([]anthropic.ToolUnionParam, 0, len(defs))
	for _, d := range defs {
		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        d.Name,
				Description: anthropic.String(d.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: d.Properties,
					Required:   d.Required,
				},
			},
		})
	}
	return out
}

var _ ModelClient = (*AnthropicClient)(nil)
