package types

import "encoding/json"

// Lane identifies one of the three per-session FIFO queues.
type Lane string

const (
	LaneSystemUrgent Lane = "system_urgent"
	LaneSteer        Lane = "steer"
	LaneFollowUp     Lane = "follow_up"
)

// QueueState is a queue item's lifecycle state. Transitions from
// Pending are monotonic: an item is pending, then exactly one of
// canceled or materialized, never both.
type QueueState string

const (
	QueuePending     QueueState = "pending"
	QueueCanceled    QueueState = "canceled"
	QueueMaterialized QueueState = "materialized"
)

// QueueItem is one enqueued payload in a lane.
type QueueItem struct {
	ItemID     int64           `json:"itemID"`
	Lane       Lane            `json:"lane"`
	EnqueuedAt int64           `json:"enqueuedAt"`
	Payload    json.RawMessage `json:"payload"`
	State      QueueState      `json:"state"`
}

// SystemUrgentSource tags the origin of a system-urgent payload.
type SystemUrgentSource string

const (
	SourceAsyncBashCallback   SystemUrgentSource = "async_bash_callback"
	SourceAsyncTaskNotif      SystemUrgentSource = "async_task_notification"
	SourceOther               SystemUrgentSource = "other"
)

// SystemUrgentPayload is the payload shape for the system_urgent lane.
type SystemUrgentPayload struct {
	Source SystemUrgentSource `json:"source"`
	Text   string              `json:"text"`
	Data   json.RawMessage     `json:"data,omitempty"`
}

// UserQueuePayload is the payload shape for the steer/follow_up lanes.
type UserQueuePayload struct {
	User    string      `json:"user"`
	Content ContentList `json:"content"`
}

// JournalRecordKind distinguishes queue journal entries.
type JournalRecordKind string

const (
	JournalEnqueued    JournalRecordKind = "enqueued"
	JournalCanceled    JournalRecordKind = "canceled"
	JournalMaterialized JournalRecordKind = "materialized"
)

// JournalRecord is one ordered event in a lane's append-only journal.
// The current pending set is derivable by replaying the journal.
type JournalRecord struct {
	Lane    Lane              `json:"lane"`
	Seq     int64             `json:"seq"`
	Kind    JournalRecordKind `json:"kind"`
	ItemID  int64             `json:"itemID"`
	EntryID *int64            `json:"entryID,omitempty"` // set on materialized
	At      int64             `json:"at"`
}

// Backfill is the response to a queue snapshot/delta request.
type Backfill struct {
	Cursor  int64           `json:"cursor"`
	Pending []QueueItem     `json:"pending"`
	Journal []JournalRecord `json:"journal"`
}
