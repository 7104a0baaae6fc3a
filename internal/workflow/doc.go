// ABOUTME: Package documentation for workflow
// ABOUTME: Describes named multi-step processes and their progress contract

// Package workflow runs named ordered step sequences against a single
// session, emitting a processing update when each step starts and a
// completed or error update when it settles. Step results already delivered
// to the client are never retracted; a failing step aborts the remainder of
// the run unless the step declares its failure contained.
package workflow
