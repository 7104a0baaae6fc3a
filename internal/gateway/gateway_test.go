// ABOUTME: Tests for gateway construction, port binding, and the HTTP API
// ABOUTME: Port tests bind real listeners on high ports

package gateway

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/ai-gateway/internal/auth"
	"github.com/procurehub/ai-gateway/internal/config"
	"github.com/procurehub/ai-gateway/internal/provider"
	"github.com/procurehub/ai-gateway/internal/store"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			HTTPAddr:        "127.0.0.1:0",
			BasePort:        47310,
			MaxPortAttempts: 3,
		},
		Auth: config.AuthConfig{JWTSecret: "test-secret-test-secret"},
	}
}

func TestNew_BuildsRegistriesWithoutProviders(t *testing.T) {
	g, err := New(t.Context(), testConfig())
	require.NoError(t, err)

	assert.Contains(t, g.capabilities(), "system_health_check")
	assert.Contains(t, g.capabilities(), "generate_product_image")
	assert.Equal(t, []string{"document_analysis", "tender_review"}, g.workflows.ProcessNames())
	assert.Empty(t, g.providers.ListEndpoints())
	assert.False(t, g.Degraded())
}

func TestNew_WithStore(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Path = ":memory:"

	g, err := New(t.Context(), cfg)
	require.NoError(t, err)
	require.NotNil(t, g.store)

	g.recordInvocation(t.Context(), "client-x", "system_health_check", "", time.Now(), nil)
	sum, err := g.store.UsageSummary(t.Context())
	require.NoError(t, err)
	assert.Equal(t, int64(1), sum.TotalInvocations)
	require.NoError(t, g.store.Close())
}

func TestBindRealtimeListener_IncrementsOnConflict(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BasePort = 47320

	// Occupy the base port so the first attempt conflicts.
	blocker, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.BasePort))
	require.NoError(t, err)
	defer blocker.Close()

	g, err := New(t.Context(), cfg)
	require.NoError(t, err)

	ln, port, err := g.bindRealtimeListener()
	require.NoError(t, err)
	defer ln.Close()
	assert.Equal(t, cfg.Server.BasePort+1, port)
}

func TestBindRealtimeListener_ExhaustionDegrades(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BasePort = 47330
	cfg.Server.MaxPortAttempts = 2

	var blockers []net.Listener
	for i := 0; i < cfg.Server.MaxPortAttempts; i++ {
		ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.BasePort+i))
		require.NoError(t, err)
		blockers = append(blockers, ln)
	}
	defer func() {
		for _, ln := range blockers {
			_ = ln.Close()
		}
	}()

	g, err := New(t.Context(), cfg)
	require.NoError(t, err)

	_, _, err = g.bindRealtimeListener()
	require.ErrorIs(t, err, ErrPortBindExhausted)

	// setupRealtimeListener converts exhaustion to degraded mode, no error.
	ln := g.setupRealtimeListener()
	assert.Nil(t, ln)
	assert.True(t, g.Degraded())
}

func TestBindRealtimeListener_ExhaustionReturnsPromptly(t *testing.T) {
	cfg := testConfig()
	cfg.Server.BasePort = 47340
	cfg.Server.MaxPortAttempts = 1

	blocker, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.BasePort))
	require.NoError(t, err)
	defer blocker.Close()

	g, err := New(t.Context(), cfg)
	require.NoError(t, err)

	start := time.Now()
	_, _, err = g.bindRealtimeListener()
	require.ErrorIs(t, err, ErrPortBindExhausted)
	assert.Less(t, time.Since(start), 50*time.Millisecond,
		"the final failed attempt must not wait out a backoff interval")
}

func TestHTTPInvoke_RequiresCredentials(t *testing.T) {
	g, err := New(t.Context(), testConfig())
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/tools/invoke",
		strings.NewReader(`{"toolName":"system_health_check"}`))
	rec := httptest.NewRecorder()
	g.handleInvokeTool(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "auth_required")
}

func TestHTTPInvoke_HealthCheckWithToken(t *testing.T) {
	g, err := New(t.Context(), testConfig())
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier([]byte("test-secret-test-secret"))
	require.NoError(t, err)
	token, err := verifier.Generate("ops", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/tools/invoke",
		strings.NewReader(`{"toolName":"system_health_check","arguments":{}}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	g.handleInvokeTool(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"success":true`)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestHTTPInvoke_UnknownToolIs404(t *testing.T) {
	g, err := New(t.Context(), testConfig())
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier([]byte("test-secret-test-secret"))
	require.NoError(t, err)
	token, err := verifier.Generate("ops", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/tools/invoke",
		strings.NewReader(`{"toolName":"nope"}`))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	g.handleInvokeTool(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), "tool_not_found")
}

func TestHealthEndpoints(t *testing.T) {
	g, err := New(t.Context(), testConfig())
	require.NoError(t, err)
	mux := g.httpMux()

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"ready":true`)
}

func TestRecordInvocationCapturesErrorKind(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Path = ":memory:"
	g, err := New(t.Context(), cfg)
	require.NoError(t, err)
	defer g.store.Close()

	// An unconfigured provider dispatch yields provider_not_configured.
	_, invErr := g.tools.Invoke(t.Context(), "summarize_tender", []byte(`{"content":"x"}`))
	require.Error(t, invErr)
	g.recordInvocation(t.Context(), "client-y", "summarize_tender", "", time.Now(), invErr)

	invs, err := g.store.RecentInvocations(t.Context(), 1)
	require.NoError(t, err)
	require.Len(t, invs, 1)
	assert.Equal(t, store.OutcomeError, invs[0].Outcome)
	assert.Equal(t, "provider_not_configured", invs[0].ErrorKind)
}

func TestRecordInvocationAttributesProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Database.Path = ":memory:"
	g, err := New(t.Context(), cfg)
	require.NoError(t, err)
	defer g.store.Close()

	upstream := &echoClient{name: "openai"}
	g.providers.Register(upstream, provider.Strategy{Model: "test", MaxTokens: 64, Unwrap: provider.UnwrapFencedJSON})
	require.NoError(t, g.providers.SetDefault("openai"))

	// A tool that never dispatches stays unattributed.
	_, err = g.tools.Invoke(t.Context(), "system_health_check", nil)
	require.NoError(t, err)
	g.recordInvocation(t.Context(), "client-z", "system_health_check", "", time.Now(), nil)

	// An explicit provider request is attributed to that endpoint.
	args := json.RawMessage(`{"content":"x","provider":"openai"}`)
	_, err = g.tools.Invoke(t.Context(), "summarize_tender", args)
	require.NoError(t, err)
	g.recordInvocation(t.Context(), "client-z", "summarize_tender", requestedProvider(args), time.Now(), nil)

	invs, err := g.store.RecentInvocations(t.Context(), 10)
	require.NoError(t, err)
	require.Len(t, invs, 2)

	byTool := make(map[string]*store.Invocation, len(invs))
	for _, inv := range invs {
		byTool[inv.Tool] = inv
	}
	assert.Empty(t, byTool["system_health_check"].Provider)
	assert.Equal(t, "openai", byTool["summarize_tender"].Provider)
}
