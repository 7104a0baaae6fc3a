// ABOUTME: Package documentation for provider
// ABOUTME: Describes the router, strategy table, fallback, and stats model

// Package provider routes named extraction/analysis operations to
// interchangeable upstream AI providers.
//
// # Router
//
// The Router owns a registry of endpoints, each pairing a Client with a
// Strategy (system-prompt injection, model selection, response unwrapping).
// One endpoint may be marked as the default; a failed or unknown-provider
// dispatch is retried exactly once against it: a single hop, never a chain.
//
// # Timeouts
//
// Every dispatch runs under a context deadline (default 120s). The deadline
// context is passed into the upstream client, so a timed-out call is aborted
// rather than left running.
//
// # Error kinds
//
// Failures carry a typed kind: not-configured, timeout, upstream, or parse.
// Parse failures (the response is not valid JSON after unwrapping) surface
// directly to the caller and never trigger fallback.
//
// # Statistics
//
// Each endpoint tracks calls, successes, failures, and an incrementally
// updated average response time computed over successful calls only.
// The invariant calls == successes+failures holds after every settled call.
package provider
