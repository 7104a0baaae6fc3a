// ABOUTME: Tests for realtime message handling
// ABOUTME: Drives handleMessage directly with a capturing fake transport

package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/procurehub/ai-gateway/internal/auth"
	"github.com/procurehub/ai-gateway/internal/batch"
	"github.com/procurehub/ai-gateway/internal/events"
	"github.com/procurehub/ai-gateway/internal/provider"
	"github.com/procurehub/ai-gateway/internal/session"
	"github.com/procurehub/ai-gateway/internal/tools"
	"github.com/procurehub/ai-gateway/internal/workflow"
)

// fakeTransport records every message sent to the session as a decoded map.
type fakeTransport struct {
	mu   sync.Mutex
	sent []map[string]any
}

func (f *fakeTransport) Send(v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return err
	}
	f.mu.Lock()
	f.sent = append(f.sent, m)
	f.mu.Unlock()
	return nil
}

func (f *fakeTransport) Close() error { return nil }

func (f *fakeTransport) messages() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]map[string]any, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) byType(msgType string) []map[string]any {
	var out []map[string]any
	for _, m := range f.messages() {
		if m["type"] == msgType {
			out = append(out, m)
		}
	}
	return out
}

// waitForType blocks until at least one message of the type arrives.
func (f *fakeTransport) waitForType(t *testing.T, msgType string) map[string]any {
	t.Helper()
	var found map[string]any
	require.Eventually(t, func() bool {
		msgs := f.byType(msgType)
		if len(msgs) == 0 {
			return false
		}
		found = msgs[0]
		return true
	}, 2*time.Second, 5*time.Millisecond, "expected a %s message", msgType)
	return found
}

// echoClient is a stub provider returning fixed JSON.
type echoClient struct {
	name  string
	calls atomic.Int64
}

func (c *echoClient) Name() string { return c.name }
func (c *echoClient) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	c.calls.Add(1)
	return `{"echo":true}`, nil
}

// garbledClient is a stub provider returning non-JSON prose.
type garbledClient struct{}

func (c *garbledClient) Name() string { return "garbled" }
func (c *garbledClient) Complete(ctx context.Context, req provider.CompletionRequest) (string, error) {
	return "sorry, here is your answer in prose", nil
}

func newTestGateway(t *testing.T) (*Gateway, *echoClient) {
	t.Helper()

	verifier, err := auth.NewJWTVerifier([]byte("test-secret-test-secret"))
	require.NoError(t, err)

	upstream := &echoClient{name: "anthropic"}
	router := provider.NewRouter(provider.RouterConfig{Timeout: 5 * time.Second})
	router.Register(upstream, provider.Strategy{Model: "test", MaxTokens: 64, Unwrap: provider.UnwrapFencedJSON})
	require.NoError(t, router.SetDefault("anthropic"))

	registry := tools.NewRegistry(nil)
	tools.RegisterBuiltins(registry, router)

	sessions := session.NewManager(session.ManagerConfig{})
	engine := workflow.NewEngine(workflow.EngineConfig{Dispatcher: router})
	workflow.RegisterDefaults(engine)

	g := &Gateway{
		authenticator: auth.New(auth.Config{Verifier: verifier}),
		providers:     router,
		tools:         registry,
		sessions:      sessions,
		broadcaster:   events.NewBroadcaster(sessions, nil),
		workflows:     engine,
		batches:       batch.NewScheduler(batch.SchedulerConfig{Invoker: registry, MaxConcurrency: 2}),
		logger:        slog.Default(),
		serverID:      generateServerID(),
		startedAt:     time.Now(),
	}
	return g, upstream
}

func authedSession(t *testing.T, g *Gateway) (*session.Session, *fakeTransport) {
	t.Helper()
	transport := &fakeTransport{}
	sess := g.sessions.Add(transport)

	verifier, err := auth.NewJWTVerifier([]byte("test-secret-test-secret"))
	require.NoError(t, err)
	token, err := verifier.Generate("buyer-1", time.Hour)
	require.NoError(t, err)

	g.handleMessage(t.Context(), sess, []byte(fmt.Sprintf(`{"type":"authenticate","token":%q}`, token)))
	resp := transport.waitForType(t, "auth_response")
	require.Equal(t, true, resp["authenticated"])
	return sess, transport
}

func TestWelcomeCarriesUniqueClientIDs(t *testing.T) {
	g, _ := newTestGateway(t)

	t1, t2 := &fakeTransport{}, &fakeTransport{}
	s1 := g.sessions.Add(t1)
	s2 := g.sessions.Add(t2)
	g.sendWelcome(s1)
	g.sendWelcome(s2)

	w1 := t1.waitForType(t, "welcome")
	w2 := t2.waitForType(t, "welcome")
	assert.Equal(t, s1.ID, w1["clientId"])
	assert.Equal(t, s2.ID, w2["clientId"])
	assert.NotEqual(t, w1["clientId"], w2["clientId"])
	assert.Contains(t, w1["capabilities"], "system_health_check")
}

func TestProtectedOpBeforeAuthGetsAuthRequired(t *testing.T) {
	g, upstream := newTestGateway(t)
	transport := &fakeTransport{}
	sess := g.sessions.Add(transport)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"call_tool","toolName":"extract_product_data","arguments":{"content":"x"},"requestId":"r1"}`))

	errMsg := transport.waitForType(t, "error")
	payload := errMsg["error"].(map[string]any)
	assert.Equal(t, "auth_required", payload["code"])

	// The tool was never executed.
	assert.Empty(t, transport.byType("tool_started"))
	assert.Equal(t, int64(0), upstream.calls.Load())
}

func TestAuthenticateWithBadCredentialFails(t *testing.T) {
	g, _ := newTestGateway(t)
	transport := &fakeTransport{}
	sess := g.sessions.Add(transport)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"authenticate","token":"garbage"}`))

	resp := transport.waitForType(t, "auth_response")
	assert.Equal(t, false, resp["authenticated"])
	require.NotNil(t, resp["error"])
	assert.Equal(t, "auth_failed", resp["error"].(map[string]any)["code"])
}

func TestCallToolHappyPathSharesRequestID(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"call_tool","toolName":"system_health_check","arguments":{},"requestId":"req-42"}`))

	started := transport.waitForType(t, "tool_started")
	assert.Equal(t, "req-42", started["requestId"])
	assert.Equal(t, "system_health_check", started["toolName"])

	result := transport.waitForType(t, "tool_result")
	assert.Equal(t, "req-42", result["requestId"])
	assert.Equal(t, "ok", result["result"].(map[string]any)["status"])
}

func TestCallToolUnknownToolError(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"call_tool","toolName":"does_not_exist","requestId":"r9"}`))

	errMsg := transport.waitForType(t, "tool_error")
	assert.Equal(t, "r9", errMsg["requestId"])
	assert.Equal(t, "tool_not_found", errMsg["error"].(map[string]any)["code"])
}

func TestCallToolSurfacesProviderErrorCode(t *testing.T) {
	g, _ := newTestGateway(t)
	g.providers.Register(&garbledClient{}, provider.Strategy{Model: "test", MaxTokens: 64, Unwrap: provider.UnwrapFencedJSON})
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess,
		[]byte(`{"type":"call_tool","toolName":"summarize_tender","arguments":{"content":"x","provider":"garbled"},"requestId":"r7"}`))

	// The provider failure kind reaches the wire, not a generic execution code.
	errMsg := transport.waitForType(t, "tool_error")
	assert.Equal(t, "r7", errMsg["requestId"])
	assert.Equal(t, "provider_parse_error", errMsg["error"].(map[string]any)["code"])
}

func TestPingIsPublic(t *testing.T) {
	g, _ := newTestGateway(t)
	transport := &fakeTransport{}
	sess := g.sessions.Add(transport)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"ping"}`))

	pong := transport.waitForType(t, "pong")
	assert.NotZero(t, pong["timestamp"])
}

func TestUnknownMessageType(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"make_coffee"}`))

	errMsg := transport.waitForType(t, "error")
	assert.Equal(t, "unknown_message_type", errMsg["error"].(map[string]any)["code"])
}

func TestSubscribeConfirmsAndReceivesBroadcast(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"subscribe","events":["tender_updates"]}`))
	confirmed := transport.waitForType(t, "subscription_confirmed")
	assert.Contains(t, confirmed["events"], "tender_updates")

	delivered := g.broadcaster.Broadcast("tender_updates", map[string]any{"tender": "T-1"})
	assert.Equal(t, 1, delivered)
	event := transport.waitForType(t, "event")
	assert.Equal(t, "tender_updates", event["eventType"])

	g.handleMessage(t.Context(), sess, []byte(`{"type":"unsubscribe","eventType":"tender_updates"}`))
	transport.waitForType(t, "unsubscription_confirmed")
	assert.Equal(t, 0, g.broadcaster.Broadcast("tender_updates", nil))
}

func TestStreamProcessDocumentAnalysis(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"stream_process","processType":"document_analysis","content":"invoice text"}`))

	complete := transport.waitForType(t, "stream_complete")
	assert.Equal(t, "document_analysis", complete["processType"])
	results := complete["results"].(map[string]any)
	assert.Contains(t, results, "finalize")

	// Ten step updates: processing + completed per stage.
	updates := transport.byType("stream_update")
	assert.Len(t, updates, 10)
	assert.Empty(t, transport.byType("stream_error"))
}

func TestStreamProcessUnknownType(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"stream_process","processType":"alchemy"}`))

	errMsg := transport.waitForType(t, "stream_error")
	assert.Equal(t, "alchemy", errMsg["processType"])
}

func TestGenerateProductImageFlow(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"generate_product_image","requestId":"img-1","productName":"Desk Lamp","template":"studio"}`))

	started := transport.waitForType(t, "image_generation_started")
	assert.Equal(t, "Desk Lamp", started["productName"])

	complete := transport.waitForType(t, "image_generation_complete")
	assert.Equal(t, "img-1", complete["requestId"])
	result := complete["result"].(map[string]any)
	assert.Equal(t, "Desk Lamp", result["product_name"])
}

func TestBatchImageGenerationFlow(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{
		"type":"batch_image_generation",
		"batchId":"batch-7",
		"products":[
			{"product_name":"Chair"},
			{"product_name":"Desk"},
			{"product_name":"Lamp"}
		]
	}`))

	started := transport.waitForType(t, "batch_image_generation_started")
	assert.Equal(t, "batch-7", started["batchId"])
	assert.Equal(t, float64(3), started["total"])

	complete := transport.waitForType(t, "batch_image_generation_complete")
	summary := complete["summary"].(map[string]any)
	assert.Equal(t, float64(3), summary["total"])
	assert.Equal(t, float64(3), summary["successful"])

	results := complete["results"].([]any)
	require.Len(t, results, 3)
	assert.Equal(t, "Chair", results[0].(map[string]any)["itemId"])

	progress := transport.byType("batch_image_generation_progress")
	assert.Len(t, progress, 3)
}

func TestBatchImageGenerationEmptyProducts(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"batch_image_generation","products":[]}`))

	errMsg := transport.waitForType(t, "batch_image_generation_error")
	assert.NotEmpty(t, errMsg["batchId"])
}

func TestGetImageTemplates(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"get_image_templates"}`))

	msg := transport.waitForType(t, "image_templates")
	templates := msg["templates"].([]any)
	assert.Len(t, templates, 4)
}

func TestGetStatus(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"get_status"}`))

	status := transport.waitForType(t, "status")
	assert.Equal(t, g.serverID, status["server"])
	assert.Equal(t, false, status["degraded"])
	providers := status["providers"].([]any)
	require.Len(t, providers, 1)
	assert.Equal(t, "anthropic", providers[0].(map[string]any)["name"])
}

func TestGetCapabilitiesListsToolsAndProcesses(t *testing.T) {
	g, _ := newTestGateway(t)
	sess, transport := authedSession(t, g)

	g.handleMessage(t.Context(), sess, []byte(`{"type":"get_capabilities"}`))

	caps := transport.waitForType(t, "capabilities")
	assert.Contains(t, caps["processes"], "document_analysis")
	assert.Contains(t, caps["processes"], "tender_review")

	var names []string
	for _, ti := range caps["tools"].([]any) {
		names = append(names, ti.(map[string]any)["name"].(string))
	}
	assert.Contains(t, names, "generate_product_image")
	assert.Contains(t, names, "summarize_tender")
}

func TestMalformedMessage(t *testing.T) {
	g, _ := newTestGateway(t)
	transport := &fakeTransport{}
	sess := g.sessions.Add(transport)

	g.handleMessage(t.Context(), sess, []byte(`not json at all`))

	errMsg := transport.waitForType(t, "error")
	assert.Equal(t, "bad_message", errMsg["error"].(map[string]any)["code"])
}
