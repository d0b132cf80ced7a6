package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"raggate/internal/domain/entity"
	"raggate/internal/domain/repository"

	"github.com/rs/zerolog/log"
)

// Orchestrator drives the two-phase chat protocol: a non-streaming
// detection call decides whether the model wants tools; if so, the
// calls are executed and a second, streaming call produces the final
// answer over the extended conversation. At most one tool round per
// user turn.
type Orchestrator struct {
	gateway     *Gateway
	registry    *ToolRegistry
	history     repository.HistoryStore // optional
	turnTimeout time.Duration
}

func NewOrchestrator(gateway *Gateway, registry *ToolRegistry, history repository.HistoryStore, turnTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		gateway:     gateway,
		registry:    registry,
		history:     history,
		turnTimeout: turnTimeout,
	}
}

// Chat produces exactly one final assistant response for the turn,
// streaming its text through onDelta. The returned completion is the
// accumulated final answer. Not restartable: regenerate with a new
// call.
func (o *Orchestrator) Chat(ctx context.Context, req entity.ChatRequest, onDelta func(string) error) (*entity.Completion, error) {
	if len(req.Messages) == 0 {
		return nil, fmt.Errorf("%w: messages are required", entity.ErrInvalidRequest)
	}

	ctx, cancel := context.WithTimeout(ctx, o.turnTimeout)
	defer cancel()
	ctx = WithTenant(ctx, req.User)

	// Own the conversation buffer for this turn.
	messages := make([]entity.Message, len(req.Messages))
	copy(messages, req.Messages)

	tools := o.registry.Definitions()

	// No tools registered: a single streaming call answers directly.
	if len(tools) == 0 {
		final, err := o.gateway.Stream(ctx, req.User, entity.ProviderRequest{
			Model:       req.Model,
			Messages:    messages,
			Temperature: req.Temperature,
		}, onDelta)
		if err != nil {
			return nil, o.classifyTurnErr(ctx, err)
		}
		o.saveTurn(req, final)
		return final, nil
	}

	// Phase one: non-streaming detection with the full tool set
	// attached. Cache-eligible; content is only authoritative in the
	// sense that "no tool calls" means a direct answer exists.
	detect, err := o.gateway.Complete(ctx, req.User, entity.ProviderRequest{
		Model:       req.Model,
		Messages:    messages,
		Tools:       tools,
		Temperature: req.Temperature,
	})
	if err != nil {
		return nil, o.classifyTurnErr(ctx, err)
	}

	if len(detect.ToolCalls) > 0 {
		log.Info().Msgf("[ORCHESTRATOR] model requested %d tool call(s)", len(detect.ToolCalls))

		results := o.registry.ExecuteAll(ctx, detect.ToolCalls)
		if ctx.Err() != nil {
			return nil, o.classifyTurnErr(ctx, ctx.Err())
		}

		// Assistant tool-call turn, then one result message per call,
		// in the original request order.
		messages = append(messages, entity.Message{
			Role:      entity.RoleAssistant,
			Content:   detect.Content,
			ToolCalls: detect.ToolCalls,
		})
		for _, result := range results {
			messages = append(messages, entity.Message{
				Role:       entity.RoleTool,
				Content:    result.Content,
				ToolCallID: result.ToolCallID,
			})
		}
	}

	// Phase two: stream the final answer. Re-issuing (rather than
	// replaying phase one's content) is the policy: no provider here
	// declares deterministic output. Tools stay detached; a model that
	// asks for tools again is a fatal orchestration error.
	final, err := o.gateway.Stream(ctx, req.User, entity.ProviderRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
	}, onDelta)
	if err != nil {
		return nil, o.classifyTurnErr(ctx, err)
	}
	if len(final.ToolCalls) > 0 {
		return nil, entity.ErrToolLoopExceeded
	}

	final.Attempts = append(detect.Attempts, final.Attempts...)
	o.saveTurn(req, final)
	return final, nil
}

// classifyTurnErr distinguishes the turn budget expiring from an
// upstream failure that happens to carry a deadline error.
func (o *Orchestrator) classifyTurnErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w (budget %s)", entity.ErrTurnTimeout, o.turnTimeout)
	}
	return err
}

// saveTurn appends the user turn and the final answer to history in
// the background. History failures are logged, never surfaced: the
// answer has already been streamed.
func (o *Orchestrator) saveTurn(req entity.ChatRequest, final *entity.Completion) {
	if o.history == nil {
		return
	}

	last := req.Messages[len(req.Messages)-1]
	turn := []entity.Message{}
	if last.Role == entity.RoleUser {
		turn = append(turn, last)
	}
	turn = append(turn, entity.Message{Role: entity.RoleAssistant, Content: final.Content})

	go func() {
		// The request context may already be done; history writes get
		// their own budget.
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.history.Append(bgCtx, req.ConversationID, req.User, turn); err != nil {
			log.Warn().Msgf("[ORCHESTRATOR] history append failed: %v", err)
		}
	}()
}
