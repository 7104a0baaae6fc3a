// ABOUTME: Package documentation for store
// ABOUTME: Describes the SQLite-backed invocation audit trail

// Package store persists settled tool invocations to SQLite. The audit
// trail powers the gateway's usage summary; writes are best effort from the
// caller's point of view and never block request completion.
package store
