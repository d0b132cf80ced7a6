package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"raggate/internal/domain/entity"
	"raggate/internal/domain/repository"

	"github.com/rs/zerolog/log"
)

// RoutedProvider pairs a provider adapter with its static routing
// configuration.
type RoutedProvider struct {
	Config  entity.ProviderConfig
	Adapter repository.ChatProvider
}

// ProviderStats are the gateway's shared per-provider health counters.
type ProviderStats struct {
	Success int
	Failure int
}

// Gateway routes a logical completion call across a statically ordered
// provider list. Retryable failures fall through to the next eligible
// provider; fatal ones abort immediately. Non-streaming calls may be
// served from the response cache; streaming calls never are.
type Gateway struct {
	providers []RoutedProvider
	cache     repository.ResponseCache
	usage     repository.UsageTracker
	cacheTTL  time.Duration

	mu    sync.Mutex
	stats map[string]*ProviderStats
}

// NewGateway expects providers sorted by ascending priority rank.
// cache and usage may be nil to disable caching and accounting.
func NewGateway(providers []RoutedProvider, cache repository.ResponseCache, usage repository.UsageTracker, cacheTTL time.Duration) *Gateway {
	return &Gateway{
		providers: providers,
		cache:     cache,
		usage:     usage,
		cacheTTL:  cacheTTL,
		stats:     make(map[string]*ProviderStats),
	}
}

// Complete issues a non-streaming call. Deterministic and side-effect
// free, so the result is cache-eligible by exact request key.
func (g *Gateway) Complete(ctx context.Context, user string, req entity.ProviderRequest) (*entity.Completion, error) {
	key := cacheKey(req)
	if g.cache != nil {
		hit, err := g.cache.Get(ctx, key)
		if err != nil {
			log.Warn().Msgf("[GATEWAY] cache lookup failed: %v", err)
		}
		if hit != nil {
			hit.Cached = true
			return hit, nil
		}
	}

	resp, err := g.route(ctx, user, req.Model, func(callCtx context.Context, p repository.ChatProvider) (*entity.Completion, error) {
		return p.Complete(callCtx, req)
	})
	if err != nil {
		return nil, err
	}

	if g.cache != nil {
		if err := g.cache.Set(ctx, key, resp, g.cacheTTL); err != nil {
			log.Warn().Msgf("[GATEWAY] cache store failed: %v", err)
		}
	}
	return resp, nil
}

// Stream issues a streaming call. Fragments go to onDelta as they
// arrive; the accumulated completion is returned at the end. Fallback
// is only possible before the first fragment reaches the caller: after
// that, a second provider would replay the answer into the same
// stream, so a mid-stream failure aborts instead.
func (g *Gateway) Stream(ctx context.Context, user string, req entity.ProviderRequest, onDelta func(string) error) (*entity.Completion, error) {
	var emitted bool
	return g.route(ctx, user, req.Model, func(callCtx context.Context, p repository.ChatProvider) (*entity.Completion, error) {
		resp, err := p.Stream(callCtx, req, func(delta string) error {
			emitted = true
			return onDelta(delta)
		})
		if err != nil && emitted {
			err = fatalMidStream(err)
		}
		return resp, err
	})
}

// fatalMidStream reclassifies a retryable provider failure as fatal
// once output has already reached the client.
func fatalMidStream(err error) error {
	var pe *entity.ProviderError
	if errors.As(err, &pe) && pe.Retryable {
		return &entity.ProviderError{
			Provider: pe.Provider,
			Outcome:  pe.Outcome,
			Err:      pe.Err,
		}
	}
	return err
}

// Stats returns a copy of the shared per-provider counters.
func (g *Gateway) Stats() map[string]ProviderStats {
	g.mu.Lock()
	defer g.mu.Unlock()

	out := make(map[string]ProviderStats, len(g.stats))
	for name, s := range g.stats {
		out[name] = *s
	}
	return out
}

type providerCall func(ctx context.Context, p repository.ChatProvider) (*entity.Completion, error)

func (g *Gateway) route(ctx context.Context, user, model string, call providerCall) (*entity.Completion, error) {
	candidates := g.candidates(model)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: no provider configured for model %q", entity.ErrProviderExhausted, model)
	}

	var attempts []entity.RoutingAttempt
	for i, p := range candidates {
		// Beyond the primary, only fallback-eligible providers are tried.
		if i > 0 && !p.Config.Fallback {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, p.Config.Timeout())
		start := time.Now()
		resp, err := call(callCtx, p.Adapter)
		cancel()
		elapsed := time.Since(start)

		if err == nil {
			attempts = append(attempts, entity.RoutingAttempt{
				Provider: p.Config.Name,
				Outcome:  entity.OutcomeSuccess,
				Tokens:   resp.Usage.TotalTokens,
				Elapsed:  elapsed,
			})
			g.record(p.Config.Name, true)
			resp.Provider = p.Config.Name
			resp.Attempts = attempts

			if g.usage != nil && user != "" {
				if uerr := g.usage.Record(ctx, user, resp.Usage.TotalTokens); uerr != nil {
					log.Warn().Msgf("[GATEWAY] usage tracking failed: %v", uerr)
				}
			}
			return resp, nil
		}

		attempts = append(attempts, entity.RoutingAttempt{
			Provider: p.Config.Name,
			Outcome:  outcomeOf(err),
			Elapsed:  elapsed,
		})
		g.record(p.Config.Name, false)

		// The caller going away is not a provider failure to route around.
		if ctx.Err() != nil {
			return nil, err
		}
		if !entity.IsRetryable(err) {
			return nil, err
		}
		log.Warn().Msgf("[GATEWAY] provider %s failed (%s), falling back: %v", p.Config.Name, outcomeOf(err), err)
	}

	return nil, fmt.Errorf("%w: %d attempts for model %q", entity.ErrProviderExhausted, len(attempts), model)
}

// candidates returns providers serving the model first, then the
// remaining fallback-eligible ones, both in priority order.
func (g *Gateway) candidates(model string) []RoutedProvider {
	var serving, others []RoutedProvider
	for _, p := range g.providers {
		if p.Config.Serves(model) {
			serving = append(serving, p)
		} else if p.Config.Fallback {
			others = append(others, p)
		}
	}
	if len(serving) == 0 {
		// Unknown model: route by priority alone, as the upstream did.
		return g.providers
	}
	return append(serving, others...)
}

func (g *Gateway) record(provider string, success bool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.stats[provider]
	if !ok {
		s = &ProviderStats{}
		g.stats[provider] = s
	}
	if success {
		s.Success++
	} else {
		s.Failure++
	}
}

func outcomeOf(err error) string {
	var pe *entity.ProviderError
	if errors.As(err, &pe) {
		return pe.Outcome
	}
	return entity.OutcomeError
}

// cacheKey hashes the exact call shape: model, ordered messages and
// tool set. Temperature is included since it changes the response.
func cacheKey(req entity.ProviderRequest) string {
	toolNames := make([]string, len(req.Tools))
	for i, t := range req.Tools {
		toolNames[i] = t.Name
	}
	payload, _ := json.Marshal(struct {
		Model       string           `json:"model"`
		Messages    []entity.Message `json:"messages"`
		Tools       []string         `json:"tools"`
		Temperature float32          `json:"temperature"`
	}{req.Model, req.Messages, toolNames, req.Temperature})

	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
