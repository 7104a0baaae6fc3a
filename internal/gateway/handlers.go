// ABOUTME: Realtime message handlers keyed by tagged message type
// ABOUTME: Long operations run in per-request goroutines; replies carry the requestId

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/procurehub/ai-gateway/internal/auth"
	"github.com/procurehub/ai-gateway/internal/batch"
	"github.com/procurehub/ai-gateway/internal/provider"
	"github.com/procurehub/ai-gateway/internal/session"
	"github.com/procurehub/ai-gateway/internal/store"
	"github.com/procurehub/ai-gateway/internal/tools"
	"github.com/procurehub/ai-gateway/internal/workflow"
)

// handleMessage decodes one inbound envelope and dispatches it. Protected
// operations on unauthenticated sessions get an explicit auth_required error,
// never silence.
func (g *Gateway) handleMessage(ctx context.Context, sess *session.Session, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil || env.Type == "" {
		g.sendError(sess, "", codeBadMessage, "message must be a JSON object with a type field")
		return
	}

	if !isPublicMessage(env.Type) {
		if ok, _ := sess.Authenticated(); !ok {
			g.sendError(sess, "", codeAuthRequired, "authenticate before using "+env.Type)
			return
		}
	}

	switch env.Type {
	case msgAuthenticate:
		var msg authenticateMsg
		if !g.decode(sess, data, &msg) {
			return
		}
		g.handleAuthenticate(sess, msg)
	case msgCallTool:
		var msg callToolMsg
		if !g.decode(sess, data, &msg) {
			return
		}
		g.handleCallTool(ctx, sess, msg)
	case msgGetCapabilities:
		g.handleGetCapabilities(sess)
	case msgSubscribe:
		var msg subscribeMsg
		if !g.decode(sess, data, &msg) {
			return
		}
		g.handleSubscribe(sess, msg, true)
	case msgUnsubscribe:
		var msg subscribeMsg
		if !g.decode(sess, data, &msg) {
			return
		}
		g.handleSubscribe(sess, msg, false)
	case msgStreamProcess:
		var msg streamProcessMsg
		if !g.decode(sess, data, &msg) {
			return
		}
		g.handleStreamProcess(ctx, sess, msg)
	case msgGenerateImage:
		var msg generateImageMsg
		if !g.decode(sess, data, &msg) {
			return
		}
		g.handleGenerateImage(ctx, sess, msg)
	case msgBatchImages:
		var msg batchImagesMsg
		if !g.decode(sess, data, &msg) {
			return
		}
		g.handleBatchImages(ctx, sess, msg)
	case msgGetTemplates:
		g.send(sess, imageTemplatesMsg{Type: msgImageTemplates, Templates: tools.ImageTemplates()})
	case msgPing:
		g.send(sess, pongMsg{Type: msgPong, Timestamp: time.Now().UnixMilli()})
	case msgGetStatus:
		g.handleGetStatus(ctx, sess)
	default:
		g.sendError(sess, "", codeUnknownMessageType, "unsupported message type: "+env.Type)
	}
}

// decode unmarshals the payload into the typed message, replying bad_message
// on failure.
func (g *Gateway) decode(sess *session.Session, data []byte, v any) bool {
	if err := json.Unmarshal(data, v); err != nil {
		g.sendError(sess, "", codeBadMessage, "malformed payload: "+err.Error())
		return false
	}
	return true
}

// isPublicMessage reports whether the type is usable before authentication.
func isPublicMessage(msgType string) bool {
	return msgType == msgAuthenticate || msgType == msgPing
}

func (g *Gateway) handleAuthenticate(sess *session.Session, msg authenticateMsg) {
	var (
		principal string
		method    auth.Method
		err       error
	)
	switch {
	case msg.Token != "":
		principal, method, err = g.authenticator.VerifyToken(msg.Token)
	case msg.APIKey != "":
		method, err = g.authenticator.VerifyAPIKey(msg.APIKey)
	default:
		err = errors.New("no credential supplied")
	}

	if err != nil {
		g.logger.Warn("authentication failed", "session_id", sess.ID, "error", err)
		g.send(sess, authResponseMsg{
			Type:          msgAuthResponse,
			Authenticated: false,
			Error:         &errorPayload{Code: codeAuthFailed, Message: "invalid credentials"},
		})
		return
	}

	sess.SetAuthenticated(string(method), principal)
	g.logger.Info("session authenticated", "session_id", sess.ID, "method", string(method))
	g.send(sess, authResponseMsg{
		Type:          msgAuthResponse,
		Authenticated: true,
		AuthMethod:    string(method),
		Capabilities:  g.capabilities(),
	})
}

func (g *Gateway) handleCallTool(ctx context.Context, sess *session.Session, msg callToolMsg) {
	if msg.ToolName == "" {
		g.sendError(sess, msg.RequestID, codeBadMessage, "toolName is required")
		return
	}
	g.send(sess, toolStartedMsg{Type: msgToolStarted, RequestID: msg.RequestID, ToolName: msg.ToolName})

	go func() {
		started := time.Now()
		result, err := g.tools.Invoke(ctx, msg.ToolName, msg.Arguments)
		g.recordInvocation(ctx, sess.ID, msg.ToolName, requestedProvider(msg.Arguments), started, err)

		if err != nil {
			g.send(sess, toolErrorMsg{
				Type:      msgToolError,
				RequestID: msg.RequestID,
				ToolName:  msg.ToolName,
				Error:     errorPayload{Code: errorCode(err), Message: err.Error()},
			})
			return
		}
		g.send(sess, toolResultMsg{
			Type:      msgToolResult,
			RequestID: msg.RequestID,
			ToolName:  msg.ToolName,
			Result:    result,
		})
	}()
}

func (g *Gateway) handleGetCapabilities(sess *session.Session) {
	listed := g.tools.List()
	infos := make([]toolInfo, 0, len(listed))
	for _, t := range listed {
		infos = append(infos, toolInfo{Name: t.Name, Description: t.Description})
	}
	g.send(sess, capabilitiesMsg{
		Type:      msgCapabilities,
		Tools:     infos,
		Processes: g.workflows.ProcessNames(),
	})
}

func (g *Gateway) handleSubscribe(sess *session.Session, msg subscribeMsg, subscribe bool) {
	for _, eventType := range msg.eventTypes() {
		if subscribe {
			sess.Subscribe(eventType)
		} else {
			sess.Unsubscribe(eventType)
		}
	}
	confirmType := msgSubConfirmed
	if !subscribe {
		confirmType = msgUnsubConfirmed
	}
	g.send(sess, subscriptionMsg{Type: confirmType, Events: sess.Subscriptions()})
}

func (g *Gateway) handleStreamProcess(ctx context.Context, sess *session.Session, msg streamProcessMsg) {
	go func() {
		results, err := g.workflows.Execute(ctx, workflow.Input{
			ProcessType: msg.ProcessType,
			Content:     msg.Content,
			Provider:    msg.Provider,
		}, func(u workflow.Update) {
			g.send(sess, streamUpdateMsg{
				Type:        msgStreamUpdate,
				ProcessType: msg.ProcessType,
				Step:        u.Step,
				TotalSteps:  u.TotalSteps,
				StepName:    u.StepName,
				Status:      u.Status,
				Message:     u.Message,
				Result:      u.Result,
			})
		})
		if err != nil {
			g.send(sess, streamErrorMsg{
				Type:        msgStreamError,
				ProcessType: msg.ProcessType,
				Error:       errorPayload{Code: errorCode(err), Message: err.Error()},
			})
			return
		}
		g.send(sess, streamCompleteMsg{
			Type:        msgStreamComplete,
			ProcessType: msg.ProcessType,
			Results:     results,
		})
	}()
}

func (g *Gateway) handleGenerateImage(ctx context.Context, sess *session.Session, msg generateImageMsg) {
	if msg.ProductName == "" {
		g.send(sess, imageErrorMsg{
			Type:      msgImageError,
			RequestID: msg.RequestID,
			Error:     errorPayload{Code: codeBadMessage, Message: "productName is required"},
		})
		return
	}
	g.send(sess, imageStartedMsg{Type: msgImageStarted, RequestID: msg.RequestID, ProductName: msg.ProductName})

	go func() {
		args, _ := json.Marshal(map[string]any{
			"product_name": msg.ProductName,
			"description":  msg.Description,
			"template":     msg.Template,
			"provider":     msg.Provider,
		})
		started := time.Now()
		result, err := g.tools.Invoke(ctx, "generate_product_image", args)
		g.recordInvocation(ctx, sess.ID, "generate_product_image", msg.Provider, started, err)

		if err != nil {
			g.send(sess, imageErrorMsg{
				Type:      msgImageError,
				RequestID: msg.RequestID,
				Error:     errorPayload{Code: errorCode(err), Message: err.Error()},
			})
			return
		}
		g.send(sess, imageCompleteMsg{Type: msgImageComplete, RequestID: msg.RequestID, Result: result})
	}()
}

func (g *Gateway) handleBatchImages(ctx context.Context, sess *session.Session, msg batchImagesMsg) {
	batchID := msg.BatchID
	if batchID == "" {
		batchID = "batch-" + uuid.NewString()
	}
	if len(msg.Products) == 0 {
		g.send(sess, batchErrorMsg{
			Type:    msgBatchError,
			BatchID: batchID,
			Error:   errorPayload{Code: codeBadMessage, Message: "products must be a non-empty array"},
		})
		return
	}

	items := make([]batch.Item, len(msg.Products))
	for i, product := range msg.Products {
		items[i] = batch.Item{
			ID:   batchItemID(product, i),
			Args: injectProvider(product, msg.Provider),
		}
	}

	g.send(sess, batchStartedMsg{Type: msgBatchStarted, BatchID: batchID, Total: len(items)})

	go func() {
		started := time.Now()
		results, summary := g.batches.Run(ctx, "generate_product_image", items, func(p batch.Progress) {
			g.send(sess, batchProgressMsg{Type: msgBatchProgress, BatchID: batchID, Progress: p})
		})
		g.recordInvocation(ctx, sess.ID, "batch_image_generation", msg.Provider, started, nil)

		g.send(sess, batchCompleteMsg{
			Type:    msgBatchComplete,
			BatchID: batchID,
			Summary: summary,
			Results: results,
		})
	}()
}

func (g *Gateway) handleGetStatus(ctx context.Context, sess *session.Session) {
	msg := statusMsg{
		Type:          msgStatus,
		Server:        g.serverID,
		UptimeSeconds: int64(time.Since(g.startedAt).Seconds()),
		Sessions:      g.sessions.Count(),
		Degraded:      g.degraded.Load(),
		RealtimePort:  int(g.realtimePort.Load()),
		Providers:     g.providers.ListEndpoints(),
	}
	if msg.Degraded {
		msg.DegradedCode = codePortBindExhausted
	}
	if g.store != nil {
		if usage, err := g.store.UsageSummary(ctx); err == nil {
			msg.Usage = usage
		} else {
			g.logger.Warn("usage summary failed", "error", err)
		}
	}
	g.send(sess, msg)
}

// batchItemID names a batch item from its product payload, falling back to
// the input position.
func batchItemID(product json.RawMessage, index int) string {
	var named struct {
		ProductName string `json:"product_name"`
	}
	if err := json.Unmarshal(product, &named); err == nil && named.ProductName != "" {
		return named.ProductName
	}
	return fmt.Sprintf("item-%d", index)
}

// injectProvider adds the batch-level provider to items that do not name one.
func injectProvider(product json.RawMessage, providerName string) json.RawMessage {
	if providerName == "" {
		return product
	}
	var m map[string]any
	if err := json.Unmarshal(product, &m); err != nil {
		return product
	}
	if _, ok := m["provider"]; !ok {
		m["provider"] = providerName
	}
	out, err := json.Marshal(m)
	if err != nil {
		return product
	}
	return out
}

// recordInvocation persists a settled invocation when a store is configured.
func (g *Gateway) recordInvocation(ctx context.Context, sessionID, tool, requested string, started time.Time, invErr error) {
	if g.store == nil {
		return
	}
	inv := &store.Invocation{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		Tool:       tool,
		Provider:   g.invocationProvider(requested, invErr),
		StartedAt:  started,
		DurationMs: time.Since(started).Milliseconds(),
		Outcome:    store.OutcomeSuccess,
	}
	if invErr != nil {
		inv.Outcome = store.OutcomeError
		inv.ErrorKind = errorCode(invErr)
	}
	if err := g.store.RecordInvocation(ctx, inv); err != nil {
		g.logger.Warn("recording invocation failed", "tool", tool, "error", err)
	}
}

// invocationProvider attributes a settled invocation to an upstream endpoint.
// Failures name the endpoint in the typed error; successes resolve the
// requested name the way dispatch does. Tools that never name a provider stay
// unattributed rather than being stamped with the default.
func (g *Gateway) invocationProvider(requested string, invErr error) string {
	var perr *provider.Error
	if errors.As(invErr, &perr) && perr.Provider != "" {
		return perr.Provider
	}
	if requested == "" {
		return ""
	}
	if g.providers.HasProvider(requested) {
		return requested
	}
	return g.providers.DefaultName()
}

// requestedProvider pulls the provider field out of tool arguments, if any.
func requestedProvider(args json.RawMessage) string {
	var named struct {
		Provider string `json:"provider"`
	}
	if err := json.Unmarshal(args, &named); err != nil {
		return ""
	}
	return named.Provider
}

// errorCode maps an error to its wire taxonomy code.
func errorCode(err error) string {
	var perr *provider.Error
	if errors.As(err, &perr) {
		return perr.Kind.Code()
	}
	if errors.Is(err, tools.ErrToolNotFound) {
		return codeToolNotFound
	}
	return codeToolExecution
}

// send delivers one message to the session, logging transport failures.
func (g *Gateway) send(sess *session.Session, v any) {
	if err := sess.Send(v); err != nil {
		g.logger.Debug("send failed", "session_id", sess.ID, "error", err)
	}
}

func (g *Gateway) sendError(sess *session.Session, requestID, code, message string) {
	g.send(sess, errorMsg{
		Type:      msgError,
		RequestID: requestID,
		Error:     errorPayload{Code: code, Message: message},
	})
}

// sendWelcome greets a freshly connected session.
func (g *Gateway) sendWelcome(sess *session.Session) {
	g.send(sess, welcomeMsg{
		Type:         msgWelcome,
		Server:       g.serverID,
		ClientID:     sess.ID,
		Capabilities: g.capabilities(),
	})
}
