package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"raggate/internal/domain/entity"
)

func retryableErr(provider string) error {
	return &entity.ProviderError{
		Provider:  provider,
		Outcome:   entity.OutcomeRateLimited,
		Retryable: true,
		Err:       errors.New("429 too many requests"),
	}
}

func fatalErr(provider string) error {
	return &entity.ProviderError{
		Provider: provider,
		Outcome:  entity.OutcomeError,
		Err:      errors.New("401 invalid api key"),
	}
}

func routed(name string, priority int, fallback bool, p *fakeProvider) RoutedProvider {
	return RoutedProvider{
		Config: entity.ProviderConfig{
			Name:      name,
			Priority:  priority,
			Fallback:  fallback,
			TimeoutMS: 5000,
			Models:    []string{"test-model"},
		},
		Adapter: p,
	}
}

func okCompletion(content string) func(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
	return func(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
		return &entity.Completion{
			Content: content,
			Model:   req.Model,
			Usage:   entity.Usage{TotalTokens: 10},
		}, nil
	}
}

func failCompletion(err error) func(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
	return func(ctx context.Context, req entity.ProviderRequest) (*entity.Completion, error) {
		return nil, err
	}
}

func TestCompleteFallsBackOnRetryable(t *testing.T) {
	primary := &fakeProvider{name: "primary", completeFunc: failCompletion(retryableErr("primary"))}
	secondary := &fakeProvider{name: "secondary", completeFunc: okCompletion("answer")}

	g := NewGateway([]RoutedProvider{
		routed("primary", 1, true, primary),
		routed("secondary", 2, true, secondary),
	}, nil, nil, 0)

	resp, err := g.Complete(context.Background(), "u1", entity.ProviderRequest{Model: "test-model"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "secondary" {
		t.Errorf("attributed to %q, want secondary", resp.Provider)
	}
	if len(resp.Attempts) != 2 {
		t.Fatalf("got %d attempts, want 2", len(resp.Attempts))
	}
	if resp.Attempts[0].Provider != "primary" || resp.Attempts[0].Outcome != entity.OutcomeRateLimited {
		t.Errorf("first attempt = %+v", resp.Attempts[0])
	}
	if resp.Attempts[1].Outcome != entity.OutcomeSuccess {
		t.Errorf("second attempt = %+v", resp.Attempts[1])
	}
}

func TestCompleteAbortsOnFatal(t *testing.T) {
	primary := &fakeProvider{name: "primary", completeFunc: failCompletion(fatalErr("primary"))}
	secondary := &fakeProvider{name: "secondary", completeFunc: okCompletion("never")}

	g := NewGateway([]RoutedProvider{
		routed("primary", 1, true, primary),
		routed("secondary", 2, true, secondary),
	}, nil, nil, 0)

	_, err := g.Complete(context.Background(), "u1", entity.ProviderRequest{Model: "test-model"})
	if err == nil {
		t.Fatal("expected the fatal error to surface")
	}
	if secondary.completeCalls != 0 {
		t.Error("fatal failure must not fall through to the next provider")
	}
}

func TestCompleteSkipsNonFallbackProviders(t *testing.T) {
	primary := &fakeProvider{name: "primary", completeFunc: failCompletion(retryableErr("primary"))}
	excluded := &fakeProvider{name: "excluded", completeFunc: okCompletion("never")}
	tertiary := &fakeProvider{name: "tertiary", completeFunc: okCompletion("answer")}

	g := NewGateway([]RoutedProvider{
		routed("primary", 1, true, primary),
		routed("excluded", 2, false, excluded),
		routed("tertiary", 3, true, tertiary),
	}, nil, nil, 0)

	resp, err := g.Complete(context.Background(), "u1", entity.ProviderRequest{Model: "test-model"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "tertiary" {
		t.Errorf("attributed to %q, want tertiary", resp.Provider)
	}
	if excluded.completeCalls != 0 {
		t.Error("non-fallback provider must not be tried beyond the primary slot")
	}
}

func TestCompleteExhaustsProviders(t *testing.T) {
	a := &fakeProvider{name: "a", completeFunc: failCompletion(retryableErr("a"))}
	b := &fakeProvider{name: "b", completeFunc: failCompletion(retryableErr("b"))}

	g := NewGateway([]RoutedProvider{
		routed("a", 1, true, a),
		routed("b", 2, true, b),
	}, nil, nil, 0)

	_, err := g.Complete(context.Background(), "u1", entity.ProviderRequest{Model: "test-model"})
	if !errors.Is(err, entity.ErrProviderExhausted) {
		t.Fatalf("got %v, want ErrProviderExhausted", err)
	}
	if a.completeCalls != 1 || b.completeCalls != 1 {
		t.Errorf("each provider tried once: a=%d b=%d", a.completeCalls, b.completeCalls)
	}

	stats := g.Stats()
	if stats["a"].Failure != 1 || stats["b"].Failure != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestCompleteServesFromCache(t *testing.T) {
	provider := &fakeProvider{name: "p", completeFunc: okCompletion("cached answer")}
	cache := newFakeCache()

	g := NewGateway([]RoutedProvider{routed("p", 1, true, provider)}, cache, nil, time.Minute)

	req := entity.ProviderRequest{
		Model:    "test-model",
		Messages: []entity.Message{{Role: entity.RoleUser, Content: "hello"}},
	}

	first, err := g.Complete(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("first Complete: %v", err)
	}
	if first.Cached {
		t.Error("first response must not claim to be cached")
	}

	second, err := g.Complete(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("second Complete: %v", err)
	}
	if !second.Cached {
		t.Error("second response should come from the cache")
	}
	if provider.completeCalls != 1 {
		t.Errorf("provider called %d times, want 1", provider.completeCalls)
	}

	// A different message set misses.
	req.Messages = append(req.Messages, entity.Message{Role: entity.RoleUser, Content: "more"})
	third, err := g.Complete(context.Background(), "u1", req)
	if err != nil {
		t.Fatalf("third Complete: %v", err)
	}
	if third.Cached {
		t.Error("changed request must miss the cache")
	}
}

func TestStreamNeverCached(t *testing.T) {
	provider := &fakeProvider{
		name:         "p",
		completeFunc: okCompletion("x"),
		streamFunc: func(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
			for _, piece := range []string{"he", "llo"} {
				if err := onDelta(piece); err != nil {
					return nil, err
				}
			}
			return &entity.Completion{Content: "hello"}, nil
		},
	}
	cache := newFakeCache()
	g := NewGateway([]RoutedProvider{routed("p", 1, true, provider)}, cache, nil, time.Minute)

	var got string
	req := entity.ProviderRequest{Model: "test-model"}
	for i := 0; i < 2; i++ {
		resp, err := g.Stream(context.Background(), "u1", req, func(delta string) error {
			got += delta
			return nil
		})
		if err != nil {
			t.Fatalf("Stream: %v", err)
		}
		if resp.Content != "hello" {
			t.Errorf("accumulated %q, want hello", resp.Content)
		}
	}
	if got != "hellohello" {
		t.Errorf("deltas = %q", got)
	}
	if provider.streamCalls != 2 {
		t.Errorf("stream calls = %d, want 2 (no caching)", provider.streamCalls)
	}
	if cache.sets != 0 {
		t.Errorf("streaming call wrote %d cache entries", cache.sets)
	}
}

func TestStreamFallsBackBeforeFirstFragment(t *testing.T) {
	primary := &fakeProvider{
		name: "primary",
		streamFunc: func(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
			// Fails before emitting anything.
			return nil, retryableErr("primary")
		},
	}
	secondary := &fakeProvider{
		name: "secondary",
		streamFunc: func(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
			if err := onDelta("the answer is 4"); err != nil {
				return nil, err
			}
			return &entity.Completion{Content: "the answer is 4"}, nil
		},
	}

	g := NewGateway([]RoutedProvider{
		routed("primary", 1, true, primary),
		routed("secondary", 2, true, secondary),
	}, nil, nil, 0)

	var got string
	resp, err := g.Stream(context.Background(), "u1", entity.ProviderRequest{Model: "test-model"}, func(delta string) error {
		got += delta
		return nil
	})
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if resp.Provider != "secondary" {
		t.Errorf("attributed to %q, want secondary", resp.Provider)
	}
	if got != "the answer is 4" {
		t.Errorf("client saw %q", got)
	}
}

func TestStreamAbortsAfterMidStreamFailure(t *testing.T) {
	primary := &fakeProvider{
		name: "primary",
		streamFunc: func(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
			// Emits a fragment, then dies with a retryable error.
			if err := onDelta("the answer is "); err != nil {
				return nil, err
			}
			return nil, retryableErr("primary")
		},
	}
	secondary := &fakeProvider{
		name: "secondary",
		streamFunc: func(ctx context.Context, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
			if err := onDelta("the answer is 4"); err != nil {
				return nil, err
			}
			return &entity.Completion{Content: "the answer is 4"}, nil
		},
	}

	g := NewGateway([]RoutedProvider{
		routed("primary", 1, true, primary),
		routed("secondary", 2, true, secondary),
	}, nil, nil, 0)

	var got string
	_, err := g.Stream(context.Background(), "u1", entity.ProviderRequest{Model: "test-model"}, func(delta string) error {
		got += delta
		return nil
	})
	if err == nil {
		t.Fatal("mid-stream failure must surface, not fall back")
	}
	if secondary.streamCalls != 0 {
		t.Error("fallback after emitted output would replay the answer into the client stream")
	}
	if got != "the answer is " {
		t.Errorf("client saw %q, want only the primary's fragment", got)
	}
}

func TestCompleteRecordsUsage(t *testing.T) {
	provider := &fakeProvider{name: "p", completeFunc: okCompletion("answer")}
	usage := newFakeUsage()
	g := NewGateway([]RoutedProvider{routed("p", 1, true, provider)}, nil, usage, 0)

	if _, err := g.Complete(context.Background(), "alice", entity.ProviderRequest{Model: "test-model"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	total, _ := usage.Total(context.Background(), "alice")
	if total != 10 {
		t.Errorf("recorded %d tokens, want 10", total)
	}
}

func TestCandidatesUnknownModel(t *testing.T) {
	provider := &fakeProvider{name: "p", completeFunc: okCompletion("answer")}
	g := NewGateway([]RoutedProvider{routed("p", 1, true, provider)}, nil, nil, 0)

	resp, err := g.Complete(context.Background(), "u1", entity.ProviderRequest{Model: "unlisted-model"})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Provider != "p" {
		t.Errorf("unknown model should still route by priority, got %q", resp.Provider)
	}
}
