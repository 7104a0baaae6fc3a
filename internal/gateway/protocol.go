// ABOUTME: Wire protocol for the realtime layer: tagged JSON message types
// ABOUTME: Every inbound envelope decodes into a typed message before dispatch

package gateway

import (
	"encoding/json"

	"github.com/procurehub/ai-gateway/internal/batch"
	"github.com/procurehub/ai-gateway/internal/provider"
	"github.com/procurehub/ai-gateway/internal/store"
	"github.com/procurehub/ai-gateway/internal/tools"
)

// Client to server message types.
const (
	msgAuthenticate    = "authenticate"
	msgCallTool        = "call_tool"
	msgGetCapabilities = "get_capabilities"
	msgSubscribe       = "subscribe"
	msgUnsubscribe     = "unsubscribe"
	msgStreamProcess   = "stream_process"
	msgGenerateImage   = "generate_product_image"
	msgBatchImages     = "batch_image_generation"
	msgGetTemplates    = "get_image_templates"
	msgPing            = "ping"
	msgGetStatus       = "get_status"
)

// Server to client message types.
const (
	msgWelcome        = "welcome"
	msgAuthResponse   = "auth_response"
	msgToolStarted    = "tool_started"
	msgToolResult     = "tool_result"
	msgToolError      = "tool_error"
	msgCapabilities   = "capabilities"
	msgSubConfirmed   = "subscription_confirmed"
	msgUnsubConfirmed = "unsubscription_confirmed"
	msgStreamUpdate   = "stream_update"
	msgStreamComplete = "stream_complete"
	msgStreamError    = "stream_error"
	msgImageStarted   = "image_generation_started"
	msgImageComplete  = "image_generation_complete"
	msgImageError     = "image_generation_error"
	msgBatchStarted   = "batch_image_generation_started"
	msgBatchProgress  = "batch_image_generation_progress"
	msgBatchComplete  = "batch_image_generation_complete"
	msgBatchError     = "batch_image_generation_error"
	msgImageTemplates = "image_templates"
	msgPong           = "pong"
	msgStatus         = "status"
	msgError          = "error"
)

// Error codes carried on error payloads.
const (
	codeAuthRequired       = "auth_required"
	codeAuthFailed         = "auth_failed"
	codeBadMessage         = "bad_message"
	codeUnknownMessageType = "unknown_message_type"
	codeToolNotFound       = "tool_not_found"
	codeToolExecution      = "tool_execution_error"
	codePortBindExhausted  = "port_bind_exhausted"
)

// envelope carries only the discriminator; the payload is re-decoded into
// the message type the discriminator names.
type envelope struct {
	Type string `json:"type"`
}

type authenticateMsg struct {
	Token  string `json:"token"`
	APIKey string `json:"apiKey"`
}

type callToolMsg struct {
	ToolName  string          `json:"toolName"`
	Arguments json.RawMessage `json:"arguments"`
	RequestID string          `json:"requestId"`
}

type subscribeMsg struct {
	Events    []string `json:"events"`
	EventType string   `json:"eventType"`
}

// eventTypes merges the list and the single-event forms.
func (m subscribeMsg) eventTypes() []string {
	if len(m.Events) > 0 {
		return m.Events
	}
	if m.EventType != "" {
		return []string{m.EventType}
	}
	return nil
}

type streamProcessMsg struct {
	ProcessType string `json:"processType"`
	Content     string `json:"content"`
	Provider    string `json:"provider"`
}

type generateImageMsg struct {
	RequestID   string `json:"requestId"`
	ProductName string `json:"productName"`
	Description string `json:"description"`
	Template    string `json:"template"`
	Provider    string `json:"provider"`
}

type batchImagesMsg struct {
	BatchID  string            `json:"batchId"`
	Products []json.RawMessage `json:"products"`
	Provider string            `json:"provider"`
}

// Outbound messages.

type errorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type errorMsg struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId,omitempty"`
	Error     errorPayload `json:"error"`
}

type welcomeMsg struct {
	Type         string   `json:"type"`
	Server       string   `json:"server"`
	ClientID     string   `json:"clientId"`
	Capabilities []string `json:"capabilities"`
}

type authResponseMsg struct {
	Type          string        `json:"type"`
	Authenticated bool          `json:"authenticated"`
	AuthMethod    string        `json:"authMethod,omitempty"`
	Capabilities  []string      `json:"capabilities,omitempty"`
	Error         *errorPayload `json:"error,omitempty"`
}

type toolStartedMsg struct {
	Type      string `json:"type"`
	RequestID string `json:"requestId"`
	ToolName  string `json:"toolName"`
}

type toolResultMsg struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId"`
	ToolName  string          `json:"toolName"`
	Result    json.RawMessage `json:"result"`
}

type toolErrorMsg struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId"`
	ToolName  string       `json:"toolName"`
	Error     errorPayload `json:"error"`
}

type toolInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type capabilitiesMsg struct {
	Type      string     `json:"type"`
	Tools     []toolInfo `json:"tools"`
	Processes []string   `json:"processes"`
}

type subscriptionMsg struct {
	Type   string   `json:"type"`
	Events []string `json:"events"`
}

type streamUpdateMsg struct {
	Type        string         `json:"type"`
	ProcessType string         `json:"processType"`
	Step        int            `json:"step"`
	TotalSteps  int            `json:"totalSteps"`
	StepName    string         `json:"stepName"`
	Status      string         `json:"status"`
	Message     string         `json:"message,omitempty"`
	Result      map[string]any `json:"result,omitempty"`
}

type streamCompleteMsg struct {
	Type        string         `json:"type"`
	ProcessType string         `json:"processType"`
	Results     map[string]any `json:"results"`
}

type streamErrorMsg struct {
	Type        string       `json:"type"`
	ProcessType string       `json:"processType"`
	Error       errorPayload `json:"error"`
}

type imageStartedMsg struct {
	Type        string `json:"type"`
	RequestID   string `json:"requestId,omitempty"`
	ProductName string `json:"productName"`
}

type imageCompleteMsg struct {
	Type      string          `json:"type"`
	RequestID string          `json:"requestId,omitempty"`
	Result    json.RawMessage `json:"result"`
}

type imageErrorMsg struct {
	Type      string       `json:"type"`
	RequestID string       `json:"requestId,omitempty"`
	Error     errorPayload `json:"error"`
}

type batchStartedMsg struct {
	Type    string `json:"type"`
	BatchID string `json:"batchId"`
	Total   int    `json:"total"`
}

type batchProgressMsg struct {
	Type    string `json:"type"`
	BatchID string `json:"batchId"`
	batch.Progress
}

type batchCompleteMsg struct {
	Type    string             `json:"type"`
	BatchID string             `json:"batchId"`
	Summary batch.Summary      `json:"summary"`
	Results []batch.ItemResult `json:"results"`
}

type batchErrorMsg struct {
	Type    string       `json:"type"`
	BatchID string       `json:"batchId"`
	Error   errorPayload `json:"error"`
}

type imageTemplatesMsg struct {
	Type      string                `json:"type"`
	Templates []tools.ImageTemplate `json:"templates"`
}

type pongMsg struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
}

type statusMsg struct {
	Type          string                  `json:"type"`
	Server        string                  `json:"server"`
	UptimeSeconds int64                   `json:"uptimeSeconds"`
	Sessions      int                     `json:"sessions"`
	Degraded      bool                    `json:"degraded"`
	DegradedCode  string                  `json:"degradedCode,omitempty"`
	RealtimePort  int                     `json:"realtimePort,omitempty"`
	Providers     []provider.EndpointInfo `json:"providers"`
	Usage         *store.UsageSummary     `json:"usage,omitempty"`
}
