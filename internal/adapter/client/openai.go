package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"raggate/internal/domain/entity"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAIProvider adapts any OpenAI-compatible chat completion endpoint
// (OpenAI itself, DeepSeek, OpenRouter and friends via base_url) to the
// ChatProvider contract.
type OpenAIProvider struct {
	client openai.Client
	name   string
}

func NewOpenAIProvider(name, baseURL, apiKey string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("provider %s: API key is required", name)
	}

	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &OpenAIProvider{
		client: openai.NewClient(opts...),
		name:   name,
	}, nil
}

func (p *OpenAIProvider) Name() string { return p.name }

func (p *OpenAIProvider) Complete(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
	resp, err := p.client.Chat.Completions.New(ctx, p.buildParams(req))
	if err != nil {
		return nil, p.classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, classifyStatus(p.name, 500, fmt.Errorf("empty choices in response"))
	}

	msg := resp.Choices[0].Message
	out := &entity.Completion{
		Content:  msg.Content,
		Model:    req.Model,
		Provider: p.name,
		Usage: entity.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
	}
	for _, tc := range msg.ToolCalls {
		out.ToolCalls = append(out.ToolCalls, entity.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(tc.Function.Arguments),
		})
	}
	return out, nil
}

func (p *OpenAIProvider) Stream(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
	params := p.buildParams(req)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	acc := openai.ChatCompletionAccumulator{}

	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := onDelta(chunk.Choices[0].Delta.Content); err != nil {
				return nil, err
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, p.classify(err)
	}

	out := &entity.Completion{
		Model:    req.Model,
		Provider: p.name,
		Usage: entity.Usage{
			PromptTokens:     int(acc.Usage.PromptTokens),
			CompletionTokens: int(acc.Usage.CompletionTokens),
			TotalTokens:      int(acc.Usage.TotalTokens),
		},
	}
	if len(acc.Choices) > 0 {
		out.Content = acc.Choices[0].Message.Content
		for _, tc := range acc.Choices[0].Message.ToolCalls {
			out.ToolCalls = append(out.ToolCalls, entity.ToolCall{
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: json.RawMessage(tc.Function.Arguments),
			})
		}
	}
	return out, nil
}

func (p *OpenAIProvider) buildParams(req entity.ProviderRequest) openai.ChatCompletionNewParams {
	params := openai.ChatCompletionNewParams{
		Messages: toOpenAIMessages(req.Messages),
		Model:    openai.ChatModel(req.Model),
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(float64(req.Temperature))
	}
	if len(req.Tools) > 0 {
		params.Tools = toOpenAITools(req.Tools)
	}
	return params
}

func (p *OpenAIProvider) classify(err error) error {
	var apierr *openai.Error
	if errors.As(err, &apierr) {
		return classifyStatus(p.name, apierr.StatusCode, err)
	}
	return classifyErr(p.name, err)
}

func toOpenAIMessages(messages []entity.Message) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case entity.RoleSystem:
			result = append(result, openai.SystemMessage(msg.Content))
		case entity.RoleAssistant:
			if len(msg.ToolCalls) == 0 {
				result = append(result, openai.AssistantMessage(msg.Content))
				continue
			}
			asst := openai.ChatCompletionAssistantMessageParam{}
			if msg.Content != "" {
				asst.Content.OfString = openai.String(msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				asst.ToolCalls = append(asst.ToolCalls, openai.ChatCompletionMessageToolCallUnionParam{
					OfFunction: &openai.ChatCompletionMessageFunctionToolCallParam{
						ID: tc.ID,
						Function: openai.ChatCompletionMessageFunctionToolCallFunctionParam{
							Name:      tc.Name,
							Arguments: string(tc.Arguments),
						},
					},
				})
			}
			result = append(result, openai.ChatCompletionMessageParamUnion{OfAssistant: &asst})
		case entity.RoleTool:
			result = append(result, openai.ToolMessage(msg.Content, msg.ToolCallID))
		default:
			result = append(result, openai.UserMessage(msg.Content))
		}
	}
	return result
}

func toOpenAITools(tools []entity.ToolDefinition) []openai.ChatCompletionToolUnionParam {
	result := make([]openai.ChatCompletionToolUnionParam, len(tools))
	for i, tool := range tools {
		params := openai.FunctionParameters{
			"type":       tool.Parameters.Type,
			"properties": schemaProperties(tool.Parameters),
		}
		if len(tool.Parameters.Required) > 0 {
			params["required"] = tool.Parameters.Required
		}
		result[i] = openai.ChatCompletionFunctionTool(
			openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  params,
			},
		)
	}
	return result
}

// schemaProperties renders a ToolSchema's properties as the plain
// JSON-schema map the OpenAI and Anthropic wire formats expect.
func schemaProperties(schema entity.ToolSchema) map[string]any {
	props := make(map[string]any, len(schema.Properties))
	for name, spec := range schema.Properties {
		prop := map[string]any{"type": spec.Type}
		if spec.Description != "" {
			prop["description"] = spec.Description
		}
		if spec.Minimum != nil {
			prop["minimum"] = *spec.Minimum
		}
		if spec.Maximum != nil {
			prop["maximum"] = *spec.Maximum
		}
		props[name] = prop
	}
	return props
}
