// ABOUTME: Gateway orchestrator that coordinates the realtime and HTTP servers
// ABOUTME: Owns the provider router, tool registry, sessions, store, and lifecycle

package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/procurehub/ai-gateway/internal/auth"
	"github.com/procurehub/ai-gateway/internal/batch"
	"github.com/procurehub/ai-gateway/internal/config"
	"github.com/procurehub/ai-gateway/internal/events"
	"github.com/procurehub/ai-gateway/internal/provider"
	"github.com/procurehub/ai-gateway/internal/session"
	"github.com/procurehub/ai-gateway/internal/store"
	"github.com/procurehub/ai-gateway/internal/tools"
	"github.com/procurehub/ai-gateway/internal/workflow"
)

// ErrPortBindExhausted is returned when no realtime port could be bound
// within the configured attempt budget. The gateway then runs degraded.
var ErrPortBindExhausted = errors.New("port bind attempts exhausted")

// Gateway orchestrates the ai-gateway server components. It manages the
// realtime WebSocket server for dispatch connections and the HTTP server for
// health checks and direct tool invocation.
type Gateway struct {
	config        *config.Config
	authenticator *auth.Authenticator
	providers     *provider.Router
	tools         *tools.Registry
	sessions      *session.Manager
	broadcaster   *events.Broadcaster
	workflows     *workflow.Engine
	batches       *batch.Scheduler
	store         store.Store
	logger        *slog.Logger

	httpServer     *http.Server
	realtimeServer *http.Server

	// serverID identifies this gateway instance
	serverID  string
	startedAt time.Time

	// degraded is set when the realtime layer could not bind a port.
	degraded     atomic.Bool
	realtimePort atomic.Int32
}

// New constructs a Gateway from configuration. Providers without credentials
// are left unregistered; dispatches naming them fail with
// provider_not_configured rather than at startup.
func New(ctx context.Context, cfg *config.Config) (*Gateway, error) {
	logger := slog.Default().With("component", "gateway")

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifier = v
	}
	authenticator := auth.New(auth.Config{
		Verifier:     verifier,
		APIKeyHashes: cfg.Auth.APIKeyHashes,
		DevMinLen:    cfg.Auth.DevAcceptAnyMinLen,
	})

	router, err := buildProviderRouter(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	registry := tools.NewRegistry(nil)
	tools.RegisterBuiltins(registry, router)

	sessions := session.NewManager(session.ManagerConfig{
		SweepInterval:    cfg.Sessions.SweepInterval,
		InactivityWindow: cfg.Sessions.InactivityWindow,
	})

	engine := workflow.NewEngine(workflow.EngineConfig{Dispatcher: router})
	workflow.RegisterDefaults(engine)

	g := &Gateway{
		config:        cfg,
		authenticator: authenticator,
		providers:     router,
		tools:         registry,
		sessions:      sessions,
		broadcaster:   events.NewBroadcaster(sessions, nil),
		workflows:     engine,
		batches: batch.NewScheduler(batch.SchedulerConfig{
			Invoker:        registry,
			MaxConcurrency: cfg.Batch.MaxConcurrency,
		}),
		logger:    logger,
		serverID:  generateServerID(),
		startedAt: time.Now(),
	}

	if cfg.Database.Path != "" {
		s, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		g.store = s
	}

	return g, nil
}

// buildProviderRouter registers every provider the config carries credentials
// for and applies the configured default.
func buildProviderRouter(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*provider.Router, error) {
	router := provider.NewRouter(provider.RouterConfig{
		Timeout: cfg.Providers.RequestTimeout,
	})
	strategies := provider.DefaultStrategies()
	var registered []string

	if cfg.Providers.Anthropic.APIKey != "" {
		strat := strategies["anthropic"]
		if cfg.Providers.Anthropic.Model != "" {
			strat.Model = cfg.Providers.Anthropic.Model
		}
		router.Register(provider.NewAnthropicClient(cfg.Providers.Anthropic.APIKey), strat)
		registered = append(registered, "anthropic")
	}

	if cfg.Providers.Bedrock.Region != "" {
		client, err := provider.NewBedrockClient(ctx, provider.BedrockConfig{
			Region:          cfg.Providers.Bedrock.Region,
			AccessKeyID:     cfg.Providers.Bedrock.AccessKeyID,
			SecretAccessKey: cfg.Providers.Bedrock.SecretAccessKey,
			Profile:         cfg.Providers.Bedrock.Profile,
		})
		if err != nil {
			return nil, fmt.Errorf("creating bedrock client: %w", err)
		}
		strat := strategies["bedrock"]
		if cfg.Providers.Bedrock.ModelID != "" {
			strat.Model = cfg.Providers.Bedrock.ModelID
		}
		router.Register(client, strat)
		registered = append(registered, "bedrock")
	}

	if cfg.Providers.OpenAI.APIKey != "" || cfg.Providers.OpenAI.Endpoint != "" {
		strat := strategies["openai"]
		if cfg.Providers.OpenAI.Model != "" {
			strat.Model = cfg.Providers.OpenAI.Model
		}
		router.Register(provider.NewOpenAIClient(
			cfg.Providers.OpenAI.Endpoint, cfg.Providers.OpenAI.APIKey), strat)
		registered = append(registered, "openai")
	}

	defName := cfg.Providers.Default
	if defName == "" && len(registered) > 0 {
		defName = registered[0]
	}
	if defName != "" {
		if err := router.SetDefault(defName); err != nil {
			return nil, fmt.Errorf("setting default provider: %w", err)
		}
	}
	if len(registered) == 0 {
		logger.Warn("no upstream providers configured, AI-backed tools will fail")
	}
	return router, nil
}

// Run starts the gateway servers and blocks until the context is canceled.
// Realtime bind exhaustion degrades the gateway instead of failing Run.
func (g *Gateway) Run(ctx context.Context) error {
	g.sessions.StartSweeper(ctx)

	httpLn, err := net.Listen("tcp", g.config.Server.HTTPAddr)
	if err != nil {
		return fmt.Errorf("listening on HTTP address: %w", err)
	}

	realtimeLn := g.setupRealtimeListener()

	errCh := g.startServers(httpLn, realtimeLn)
	serverErr := g.waitForShutdownSignal(ctx, errCh)

	shutdownErr := g.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// setupRealtimeListener binds the realtime port, accepting degraded mode on
// exhaustion. Never fails Run.
func (g *Gateway) setupRealtimeListener() net.Listener {
	ln, port, err := g.bindRealtimeListener()
	if err != nil {
		g.degraded.Store(true)
		g.logger.Error("realtime layer disabled, continuing degraded",
			"error", err,
			"base_port", g.config.Server.BasePort,
			"attempts", g.config.Server.MaxPortAttempts,
		)
		return nil
	}
	g.realtimePort.Store(int32(port))
	return ln
}

// bindRealtimeListener walks ports upward from the configured base with
// exponential backoff between attempts.
func (g *Gateway) bindRealtimeListener() (net.Listener, int, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 100 * time.Millisecond
	bo.MaxInterval = 2 * time.Second

	attempts := g.config.Server.MaxPortAttempts
	if attempts <= 0 {
		attempts = config.DefaultMaxPortAttempts
	}

	var lastErr error
	for i := 0; i < attempts; i++ {
		port := g.config.Server.BasePort + i
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
		if err == nil {
			g.logger.Info("realtime listener bound", "port", port, "attempt", i+1)
			return ln, port, nil
		}
		lastErr = err
		g.logger.Warn("port bind failed, trying next", "port", port, "error", err)
		if i < attempts-1 {
			time.Sleep(bo.NextBackOff())
		}
	}
	return nil, 0, fmt.Errorf("%w after %d attempts: %v", ErrPortBindExhausted, attempts, lastErr)
}

// startServers starts the HTTP and (when bound) realtime servers in
// goroutines, returning the error channel.
func (g *Gateway) startServers(httpLn, realtimeLn net.Listener) chan error {
	errCh := make(chan error, 2)

	g.httpServer = &http.Server{Handler: g.httpMux()}
	go func() {
		g.logger.Info("HTTP server listening", "addr", httpLn.Addr().String())
		if err := g.httpServer.Serve(httpLn); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	if realtimeLn != nil {
		mux := http.NewServeMux()
		mux.HandleFunc("/ws", g.handleWS)
		g.realtimeServer = &http.Server{Handler: mux}
		go func() {
			g.logger.Info("realtime server listening", "addr", realtimeLn.Addr().String())
			if err := g.realtimeServer.Serve(realtimeLn); err != nil && err != http.ErrServerClosed {
				errCh <- fmt.Errorf("realtime server: %w", err)
			}
		}()
	}

	return errCh
}

// waitForShutdownSignal waits for context cancellation or server error.
func (g *Gateway) waitForShutdownSignal(ctx context.Context, errCh chan error) error {
	select {
	case <-ctx.Done():
		g.logger.Info("context canceled, initiating shutdown")
		return nil
	case err := <-errCh:
		g.logger.Error("server error", "error", err)
		return err
	}
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// Uses context.Background() intentionally since the original context is already canceled.
func (g *Gateway) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return g.Shutdown(ctx)
}

// appendCloseError appends an error with label if err is non-nil.
func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown gracefully stops all gateway servers and releases resources.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.logger.Info("shutting down gateway")

	var errs []error
	if g.httpServer != nil {
		errs = appendCloseError(errs, "HTTP shutdown", g.httpServer.Shutdown(ctx))
	}
	if g.realtimeServer != nil {
		errs = appendCloseError(errs, "realtime shutdown", g.realtimeServer.Shutdown(ctx))
	}

	g.sessions.CloseAll()

	if g.store != nil {
		errs = appendCloseError(errs, "store close", g.store.Close())
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Degraded reports whether the realtime layer failed to bind.
func (g *Gateway) Degraded() bool {
	return g.degraded.Load()
}

// capabilities returns the tool names the gateway can execute.
func (g *Gateway) capabilities() []string {
	listed := g.tools.List()
	names := make([]string, 0, len(listed))
	for _, t := range listed {
		names = append(names, t.Name)
	}
	return names
}

// generateServerID creates a unique identifier for this gateway instance.
func generateServerID() string {
	id := uuid.NewString()
	return "ai-gateway-" + strings.SplitN(id, "-", 2)[0]
}
