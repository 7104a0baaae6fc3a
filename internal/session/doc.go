// ABOUTME: Package documentation for session
// ABOUTME: Describes the session state machine and liveness sweep

// Package session tracks connected realtime clients.
//
// A Session moves through Connected(unauthenticated) -> Authenticated ->
// Closed; Closed is terminal. Each session exclusively owns its transport
// handle, serializes writes, and carries a subscription set mutated by
// idempotent subscribe/unsubscribe operations.
//
// The Manager registers sessions under process-unique ids and runs a
// periodic liveness sweep: sessions idle beyond the inactivity window are
// force-closed and removed. Sessions whose transport has already failed are
// removed at the point of failure, not on the next sweep.
package session
