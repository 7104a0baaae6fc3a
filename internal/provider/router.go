// ABOUTME: Routes named operations to configured upstream providers
// ABOUTME: Owns timeout enforcement, single-hop default fallback, and per-provider stats

package provider

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// DefaultTimeout is applied when a dispatch carries no explicit deadline.
const DefaultTimeout = 120 * time.Second

// Stats holds rolling call counters for one endpoint.
// TotalCalls == Successes + Failures after every settled call.
type Stats struct {
	Calls             int64   `json:"calls"`
	Successes         int64   `json:"successes"`
	Failures          int64   `json:"failures"`
	AvgResponseTimeMs float64 `json:"average_response_time_ms"`
}

// Endpoint is one configured upstream provider with its strategy and stats.
type Endpoint struct {
	name      string
	client    Client
	strategy  Strategy
	isDefault bool
	stats     Stats
}

// Name returns the endpoint's registered name.
func (e *Endpoint) Name() string { return e.name }

// Router dispatches named operations to interchangeable upstream providers.
type Router struct {
	mu        sync.RWMutex
	endpoints map[string]*Endpoint
	defName   string // exactly one default per router instance
	timeout   time.Duration
	logger    *slog.Logger
}

// RouterConfig contains construction options for the Router.
type RouterConfig struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewRouter creates a Router. Pass nil logger for default.
func NewRouter(cfg RouterConfig) *Router {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		endpoints: make(map[string]*Endpoint),
		timeout:   timeout,
		logger:    logger.With("component", "provider-router"),
	}
}

// Register adds an endpoint under the client's name with the given strategy.
// Registering an existing name replaces it.
func (r *Router) Register(client Client, strategy Strategy) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := client.Name()
	r.endpoints[name] = &Endpoint{
		name:     name,
		client:   client,
		strategy: strategy,
	}
	r.logger.Info("provider registered", "provider", name, "model", strategy.Model)
}

// SetDefault marks the named endpoint as the fallback target. Any previously
// marked default is unmarked.
func (r *Router) SetDefault(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return &Error{Kind: KindNotConfigured, Provider: name, Message: "cannot set unconfigured provider as default"}
	}
	if r.defName != "" {
		if prev, ok := r.endpoints[r.defName]; ok {
			prev.isDefault = false
		}
	}
	ep.isDefault = true
	r.defName = name
	r.logger.Info("default provider set", "provider", name)
	return nil
}

// DispatchOptions tunes one dispatch.
type DispatchOptions struct {
	// Timeout overrides the router default when >0.
	Timeout time.Duration
}

// Dispatch routes the request to the named provider. Unknown providers and
// upstream failures (including timeouts) are retried exactly once against the
// default provider when one is configured and is not the provider that
// already failed; the default's outcome then propagates as-is. Parse
// failures surface immediately without fallback.
func (r *Router) Dispatch(ctx context.Context, providerName string, req Request, opts DispatchOptions) (json.RawMessage, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = r.timeout
	}

	ep := r.endpoint(providerName)
	if ep == nil {
		def := r.defaultEndpoint()
		if def == nil {
			return nil, &Error{Kind: KindNotConfigured, Provider: providerName, Message: "provider not configured and no default available"}
		}
		r.logger.Warn("unknown provider, using default",
			"requested", providerName,
			"default", def.name,
		)
		return r.call(ctx, def, req, timeout)
	}

	result, err := r.call(ctx, ep, req, timeout)
	if err == nil {
		return result, nil
	}

	var perr *Error
	if errors.As(err, &perr) && perr.Kind == KindParse {
		// Parse failures are a caller-visible contract violation, not an
		// availability problem. Fallback would mask them.
		return nil, err
	}

	def := r.defaultEndpoint()
	if def == nil || def.name == ep.name {
		return nil, err
	}

	r.logger.Warn("provider failed, falling back to default",
		"provider", ep.name,
		"default", def.name,
		"error", err,
	)
	return r.call(ctx, def, req, timeout)
}

// call runs one shaped upstream request against an endpoint and settles its stats.
func (r *Router) call(ctx context.Context, ep *Endpoint, req Request, timeout time.Duration) (json.RawMessage, error) {
	creq := ep.strategy.Shape(req)

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	raw, err := ep.client.Complete(callCtx, creq)
	elapsed := time.Since(start)

	if err != nil {
		r.recordFailure(ep.name)
		// Only an expired deadline is a timeout. Inherited cancellation
		// (the caller went away mid-call) must not masquerade as one.
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, &Error{Kind: KindTimeout, Provider: ep.name, Message: "upstream call exceeded deadline", Err: err}
		}
		return nil, &Error{Kind: KindUpstream, Provider: ep.name, Message: "upstream call failed", Err: err}
	}

	out, err := ep.strategy.Unwrap(raw)
	if err != nil {
		r.recordFailure(ep.name)
		return nil, &Error{Kind: KindParse, Provider: ep.name, Message: "unwrapping response", Err: err}
	}

	r.recordSuccess(ep.name, elapsed)
	return out, nil
}

// recordSuccess settles a call as successful and folds its latency into the
// incremental average: avg' = (avg*(n-1) + new) / n over successful calls only.
func (r *Router) recordSuccess(name string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return
	}
	ep.stats.Calls++
	ep.stats.Successes++
	n := float64(ep.stats.Successes)
	ms := float64(elapsed.Milliseconds())
	ep.stats.AvgResponseTimeMs = (ep.stats.AvgResponseTimeMs*(n-1) + ms) / n
}

func (r *Router) recordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return
	}
	ep.stats.Calls++
	ep.stats.Failures++
}

func (r *Router) endpoint(name string) *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.endpoints[name]
}

func (r *Router) defaultEndpoint() *Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.defName == "" {
		return nil
	}
	return r.endpoints[r.defName]
}

// Stats returns a copy of the named endpoint's counters.
func (r *Router) Stats(name string) (Stats, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ep, ok := r.endpoints[name]
	if !ok {
		return Stats{}, false
	}
	return ep.stats, true
}

// GlobalStats sums counters across all endpoints.
func (r *Router) GlobalStats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var total Stats
	for _, ep := range r.endpoints {
		total.Calls += ep.stats.Calls
		total.Successes += ep.stats.Successes
		total.Failures += ep.stats.Failures
	}
	return total
}

// EndpointInfo describes a configured endpoint for capability listings.
type EndpointInfo struct {
	Name      string `json:"name"`
	Model     string `json:"model"`
	IsDefault bool   `json:"is_default"`
	Stats     Stats  `json:"stats"`
}

// ListEndpoints returns information about every configured endpoint.
func (r *Router) ListEndpoints() []EndpointInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]EndpointInfo, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		infos = append(infos, EndpointInfo{
			Name:      ep.name,
			Model:     ep.strategy.Model,
			IsDefault: ep.isDefault,
			Stats:     ep.stats,
		})
	}
	return infos
}

// HasProvider reports whether the named provider is configured.
func (r *Router) HasProvider(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.endpoints[name]
	return ok
}

// DefaultName returns the configured default provider name, or "".
func (r *Router) DefaultName() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defName
}
