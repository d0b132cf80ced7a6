package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"raggate/internal/domain/entity"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

const anthropicMaxTokens = 4096

// AnthropicProvider adapts the Claude Messages API to the ChatProvider
// contract. System messages move to the dedicated system parameter and
// tool results become tool_result blocks inside user turns.
type AnthropicProvider struct {
	client *anthropic.Client
	name   string
}

func NewAnthropicProvider(name, baseURL, apiKey string) (*AnthropicProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: API key is required", name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	c := anthropic.NewClient(opts...)
	return &AnthropicProvider{client: &c, name: name}, nil
}

func (p *AnthropicProvider) Name() string { return p.name }

func (p *AnthropicProvider) Complete(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, p.classify(err)
	}
	return p.fromMessage(req.Model, msg), nil
}

func (p *AnthropicProvider) Stream(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))
	msg := anthropic.Message{}

	for stream.Next() {
		event := stream.Current()
		if err := msg.Accumulate(event); err != nil {
			return nil, classifyErr(p.name, err)
		}

		switch eventVariant := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := eventVariant.Delta.AsAny().(anthropic.TextDelta); ok {
				if err := onDelta(delta.Text); err != nil {
					return nil, err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, p.classify(err)
	}

	return p.fromMessage(req.Model, &msg), nil
}

func (p *AnthropicProvider) buildParams(req entity.ProviderRequest) anthropic.MessageNewParams {
	messages, system := toAnthropicMessages(req.Messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: anthropicMaxTokens,
	}
	if len(system) > 0 {
		params.System = system
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		params.Tools = toAnthropicTools(req.Tools)
	}
	return params
}

func (p *AnthropicProvider) fromMessage(model string, msg *anthropic.Message) *entity.Completion {
	out := &entity.Completion{
		Model:    model,
		Provider: p.name,
		Usage: entity.Usage{
			PromptTokens:     int(msg.Usage.InputTokens),
			CompletionTokens: int(msg.Usage.OutputTokens),
			TotalTokens:      int(msg.Usage.InputTokens + msg.Usage.OutputTokens),
		},
	}

	for _, block := range msg.Content {
		switch blockVariant := block.AsAny().(type) {
		case anthropic.TextBlock:
			out.Content += blockVariant.Text
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, entity.ToolCall{
				ID:        blockVariant.ID,
				Name:      blockVariant.Name,
				Arguments: json.RawMessage(blockVariant.Input),
			})
		}
	}
	return out
}

func (p *AnthropicProvider) classify(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return classifyStatus(p.name, apierr.StatusCode, err)
	}
	return classifyErr(p.name, err)
}

// toAnthropicMessages converts the conversation, pulling system turns
// out into system blocks as the Messages API requires.
func toAnthropicMessages(messages []entity.Message) ([]anthropic.MessageParam, []anthropic.TextBlockParam) {
	var system []anthropic.TextBlockParam
	result := make([]anthropic.MessageParam, 0, len(messages))

	for _, msg := range messages {
		switch msg.Role {
		case entity.RoleSystem:
			system = append(system, anthropic.TextBlockParam{Text: msg.Content})
		case entity.RoleAssistant:
			blocks := make([]anthropic.ContentBlockParamUnion, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				blocks = append(blocks, anthropic.NewToolUseBlock(tc.ID, tc.Arguments, tc.Name))
			}
			result = append(result, anthropic.NewAssistantMessage(blocks...))
		case entity.RoleTool:
			result = append(result, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.ToolCallID, msg.Content, false),
			))
		default:
			result = append(result, anthropic.NewUserMessage(anthropic.NewTextBlock(msg.Content)))
		}
	}
	return result, system
}

func toAnthropicTools(tools []entity.ToolDefinition) []anthropic.ToolUnionParam {
	result := make([]anthropic.ToolUnionParam, len(tools))
	for i, tool := range tools {
		inputSchema := anthropic.ToolInputSchemaParam{
			Properties: schemaProperties(tool.Parameters),
		}
		if len(tool.Parameters.Required) > 0 {
			inputSchema.Required = tool.Parameters.Required
		}

		result[i] = anthropic.ToolUnionParamOfTool(inputSchema, tool.Name)
		if tool.Description != "" {
			result[i].OfTool.Description = anthropic.String(tool.Description)
		}
	}
	return result
}
