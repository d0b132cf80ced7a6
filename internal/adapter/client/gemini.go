package client

import (
	"context"
	"encoding/json"
	"fmt"

	"raggate/internal/domain/entity"

	"github.com/google/uuid"
	"google.golang.org/genai"
)

// GeminiProvider adapts the Gemini API (Vertex backend) to the
// ChatProvider contract. Tool results travel back as function response
// parts; Gemini wants the function name on those, so it is recovered
// from the assistant turn that issued the call.
type GeminiProvider struct {
	client *genai.Client
	name   string
}

func NewGeminiProvider(ctx context.Context, name, projectID, location string) (*GeminiProvider, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Project:  projectID,
		Location: location,
		Backend:  genai.BackendVertexAI,
	})
	if err != nil {
		return nil, err
	}
	return &GeminiProvider{client: client, name: name}, nil
}

func NewGeminiProviderFromClient(c *genai.Client, name string) *GeminiProvider {
	return &GeminiProvider{client: c, name: name}
}

func (g *GeminiProvider) Name() string { return g.name }

func (g *GeminiProvider) Complete(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
	contents, cfg := g.buildRequest(req)

	resp, err := g.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		return nil, classifyErr(g.name, err)
	}
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, classifyStatus(g.name, 500, fmt.Errorf("empty candidates in response"))
	}

	out := &entity.Completion{Model: req.Model, Provider: g.name}
	for _, part := range resp.Candidates[0].Content.Parts {
		if part.Text != "" {
			out.Content += part.Text
		}
		if part.FunctionCall != nil {
			out.ToolCalls = append(out.ToolCalls, fromFunctionCall(part.FunctionCall))
		}
	}
	if resp.UsageMetadata != nil {
		out.Usage = entity.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

func (g *GeminiProvider) Stream(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
	contents, cfg := g.buildRequest(req)

	out := &entity.Completion{Model: req.Model, Provider: g.name}
	for resp, err := range g.client.Models.GenerateContentStream(ctx, req.Model, contents, cfg) {
		if err != nil {
			return nil, classifyErr(g.name, err)
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}
		for _, part := range resp.Candidates[0].Content.Parts {
			if part.Text != "" {
				out.Content += part.Text
				if err := onDelta(part.Text); err != nil {
					return nil, err
				}
			}
			if part.FunctionCall != nil {
				out.ToolCalls = append(out.ToolCalls, fromFunctionCall(part.FunctionCall))
			}
		}
		if resp.UsageMetadata != nil {
			out.Usage = entity.Usage{
				PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
				TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
			}
		}
	}
	return out, nil
}

func (g *GeminiProvider) buildRequest(req entity.ProviderRequest) ([]*genai.Content, *genai.GenerateContentConfig) {
	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		cfg.Temperature = genai.Ptr(req.Temperature)
	}
	if len(req.Tools) > 0 {
		cfg.Tools = []*genai.Tool{{FunctionDeclarations: toGeminiDeclarations(req.Tools)}}
	}

	// Map tool_call_id back to function name for function responses.
	callNames := make(map[string]string)
	for _, msg := range req.Messages {
		for _, tc := range msg.ToolCalls {
			callNames[tc.ID] = tc.Name
		}
	}

	var contents []*genai.Content
	for _, msg := range req.Messages {
		switch msg.Role {
		case entity.RoleSystem:
			if cfg.SystemInstruction == nil {
				cfg.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: msg.Content}}}
			} else {
				cfg.SystemInstruction.Parts = append(cfg.SystemInstruction.Parts, &genai.Part{Text: msg.Content})
			}
		case entity.RoleAssistant:
			parts := make([]*genai.Part, 0, 1+len(msg.ToolCalls))
			if msg.Content != "" {
				parts = append(parts, &genai.Part{Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				var args map[string]any
				_ = json.Unmarshal(tc.Arguments, &args)
				parts = append(parts, &genai.Part{FunctionCall: &genai.FunctionCall{
					ID:   tc.ID,
					Name: tc.Name,
					Args: args,
				}})
			}
			contents = append(contents, &genai.Content{Role: genai.RoleModel, Parts: parts})
		case entity.RoleTool:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{
				FunctionResponse: &genai.FunctionResponse{
					ID:       msg.ToolCallID,
					Name:     callNames[msg.ToolCallID],
					Response: map[string]any{"result": msg.Content},
				},
			}}})
		default:
			contents = append(contents, &genai.Content{Role: genai.RoleUser, Parts: []*genai.Part{{Text: msg.Content}}})
		}
	}
	return contents, cfg
}

func fromFunctionCall(fc *genai.FunctionCall) entity.ToolCall {
	id := fc.ID
	if id == "" {
		// Gemini may omit call ids; synthesize one so results can be
		// bound back to their invocation.
		id = "call_" + uuid.NewString()
	}
	args, err := json.Marshal(fc.Args)
	if err != nil {
		args = []byte("{}")
	}
	return entity.ToolCall{ID: id, Name: fc.Name, Arguments: args}
}

func toGeminiDeclarations(tools []entity.ToolDefinition) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, len(tools))
	for i, tool := range tools {
		props := make(map[string]*genai.Schema, len(tool.Parameters.Properties))
		for name, spec := range tool.Parameters.Properties {
			s := &genai.Schema{Type: toGeminiType(spec.Type), Description: spec.Description}
			if spec.Minimum != nil {
				s.Minimum = genai.Ptr(*spec.Minimum)
			}
			if spec.Maximum != nil {
				s.Maximum = genai.Ptr(*spec.Maximum)
			}
			props[name] = s
		}
		decls[i] = &genai.FunctionDeclaration{
			Name:        tool.Name,
			Description: tool.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: props,
				Required:   tool.Parameters.Required,
			},
		}
	}
	return decls
}

func toGeminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}
