// ABOUTME: Package documentation for events
// ABOUTME: Describes the best-effort broadcast contract

// Package events fans events out to subscribed sessions. Delivery is best
// effort: no confirmation, no ordering across sessions, and no retry; a
// session whose transport rejects a send is removed from the registry.
package events
