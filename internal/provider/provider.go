// ABOUTME: Provider client interface and typed error taxonomy for upstream AI calls
// ABOUTME: Defines CompletionRequest and the four provider error kinds

package provider

import (
	"context"
	"fmt"
)

// Client is an interchangeable upstream AI endpoint behind a common call
// interface. Implementations must honor ctx cancellation so a timed-out
// dispatch actually aborts the in-flight call.
type Client interface {
	Name() string
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}

// CompletionRequest is a single shaped upstream call.
type CompletionRequest struct {
	System    string
	Prompt    string
	Model     string
	MaxTokens int64
}

// ErrorKind classifies provider failures.
type ErrorKind int

const (
	KindNotConfigured ErrorKind = iota
	KindTimeout
	KindUpstream
	KindParse
)

// Code returns the wire-level error code for the kind.
func (k ErrorKind) Code() string {
	switch k {
	case KindNotConfigured:
		return "provider_not_configured"
	case KindTimeout:
		return "provider_timeout"
	case KindUpstream:
		return "provider_upstream_error"
	case KindParse:
		return "provider_parse_error"
	default:
		return "provider_error"
	}
}

// Error is a typed provider failure carrying its kind and origin.
type Error struct {
	Kind     ErrorKind
	Provider string
	Message  string
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind.Code(), e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind.Code(), e.Provider, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
