// Package subscription implements the subscribe-then-backfill
// contract every transport-facing listener (HTTP SSE today, anything
// else tomorrow) rides on: register for a session's live event
// stream, and atomically receive a consistent initial_state snapshot
// with it, so no transcript entry, queue transition, or settings
// change can land in the gap between the two.
package subscription
