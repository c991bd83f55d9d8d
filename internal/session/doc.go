// Package session implements the engine's per-session agent loop: a
// single-threaded actor that owns one session's transcript, drains
// its three priority queues, drives the provider stream, dispatches
// tool calls, and compacts context when it grows too large.
//
// Turns, tool batches, compaction and stop handling run on a
// session's single Actor goroutine; a few transcript appends (a
// prompt's user message, settings changes, retry telemetry) are made
// from the calling goroutine instead. Callers reach it through
// Manager, which creates actors lazily and keeps at most one live per
// session id.
package session
