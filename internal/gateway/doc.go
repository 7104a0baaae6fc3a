// ABOUTME: Package documentation for gateway
// ABOUTME: Describes the orchestrator, realtime protocol, and degraded mode

// Package gateway wires the provider router, tool registry, session manager,
// workflow engine, and batch scheduler into two servers: a WebSocket realtime
// layer speaking tagged JSON messages, and an HTTP API for health probes and
// direct tool invocation. When no realtime port can be bound within the
// attempt budget the gateway keeps running degraded; the HTTP surface stays
// up and get_status reports port_bind_exhausted.
package gateway
