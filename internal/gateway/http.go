// ABOUTME: HTTP endpoints: health probes and direct tool invocation
// ABOUTME: Direct invocation keeps tools reachable when the realtime layer is degraded

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/procurehub/ai-gateway/internal/tools"
)

// httpMux wires the HTTP API routes.
func (g *Gateway) httpMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", g.handleHealth)
	mux.HandleFunc("/health/ready", g.handleReady)
	mux.HandleFunc("/api/tools/invoke", g.handleInvokeTool)
	return mux
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady reports readiness. A degraded gateway is still ready: direct
// invocation works without the realtime layer.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"ready":    true,
		"degraded": g.degraded.Load(),
		"sessions": g.sessions.Count(),
	})
}

type invokeRequest struct {
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments"`
}

type invokeResponse struct {
	Success bool            `json:"success"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *errorPayload   `json:"error,omitempty"`
}

// handleInvokeTool executes one tool synchronously over HTTP. It carries the
// same credential checks as the realtime authenticate message.
func (g *Gateway) handleInvokeTool(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if !g.authorizeHTTP(r) {
		writeInvokeError(w, http.StatusUnauthorized, codeAuthRequired, "valid bearer token or API key required")
		return
	}

	var req invokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvokeError(w, http.StatusBadRequest, codeBadMessage, "invalid JSON body")
		return
	}
	if req.ToolName == "" {
		writeInvokeError(w, http.StatusBadRequest, codeBadMessage, "toolName is required")
		return
	}

	started := time.Now()
	result, err := g.tools.Invoke(r.Context(), req.ToolName, req.Arguments)
	g.recordInvocation(r.Context(), "http", req.ToolName, requestedProvider(req.Arguments), started, err)

	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, tools.ErrToolNotFound) {
			status = http.StatusNotFound
		}
		writeInvokeError(w, status, errorCode(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(invokeResponse{Success: true, Result: result})
}

// authorizeHTTP accepts a bearer JWT in Authorization or an API key in
// X-API-Key.
func (g *Gateway) authorizeHTTP(r *http.Request) bool {
	if authz := r.Header.Get("Authorization"); strings.HasPrefix(authz, "Bearer ") {
		if _, _, err := g.authenticator.VerifyToken(strings.TrimPrefix(authz, "Bearer ")); err == nil {
			return true
		}
	}
	if key := r.Header.Get("X-API-Key"); key != "" {
		if _, err := g.authenticator.VerifyAPIKey(key); err == nil {
			return true
		}
	}
	return false
}

func writeInvokeError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(invokeResponse{
		Success: false,
		Error:   &errorPayload{Code: code, Message: message},
	})
}
