// ABOUTME: Package documentation for tools
// ABOUTME: Describes the registry contract and the builtin procurement pack

// Package tools holds the registry of named, schema-described operations.
//
// Tools are registered once at startup; the last registration under a name
// replaces any prior one. A tool's handler is the single reused unit across
// direct invocation, workflow steps, and batch items. Invoke validates
// arguments against the tool's JSON schema, converts handler failures
// (including panics) into *ExecutionError, and never retries; retry policy
// belongs to the caller.
package tools
