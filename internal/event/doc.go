/*
Package event implements the session engine's pub/sub fan-out.

The session actor (internal/session) is the publisher: it calls
PublishSync after each transcript append, queue mutation, settings
change, status transition, or stream lifecycle step while holding the
session lock (Bus.SessionLock) for reading. The Subscription Hub
(internal/subscription) only subscribes: it holds the same lock for
writing while it registers a subscriber and takes its backfill, so
registration and backfill can never race such a publish.

Event types split into two classes: the five replayable types
(transcript_appended, system_urgent_queue, user_queue,
settings_updated, status_updated) are always re-derivable from a
cursor-based read, and the three stream_* types are ephemeral partial
state that exists only while a turn is mid-flight.
*/
package event
