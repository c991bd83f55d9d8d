package storage

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// QueueStore persists the three per-session FIFO lanes and their
// append-only journals.
type QueueStore struct {
	db         *sql.DB
	transcript *TranscriptStore
}

// NewQueueStore wraps an already-migrated database handle. transcript
// is shared so Materialize can commit the queue journal and the
// transcript append in one transaction.
func NewQueueStore(db *sql.DB, transcript *TranscriptStore) *QueueStore {
	return &QueueStore{db: db, transcript: transcript}
}

// Enqueue appends a pending item to lane and writes an `enqueued`
// journal record in the same transaction.
func (q *QueueStore) Enqueue(ctx context.Context, sessionID string, lane types.Lane, payload json.RawMessage, enqueuedAt int64) (types.QueueItem, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return types.QueueItem{}, wuhuerr.Wrap(wuhuerr.Storage, err, "begin enqueue tx")
	}
	defer tx.Rollback()

	itemID, err := nextItemID(ctx, tx, sessionID, lane)
	if err != nil {
		return types.QueueItem{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO queue_items (session_id, lane, item_id, enqueued_at, payload_json, state)
		VALUES (?, ?, ?, ?, ?, ?)`,
		sessionID, string(lane), itemID, enqueuedAt, string(payload), string(types.QueuePending),
	); err != nil {
		return types.QueueItem{}, wuhuerr.Wrap(wuhuerr.Storage, err, "insert queue item")
	}

	if err := appendJournal(ctx, tx, sessionID, lane, types.JournalEnqueued, itemID, nil, enqueuedAt); err != nil {
		return types.QueueItem{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.QueueItem{}, wuhuerr.Wrap(wuhuerr.Storage, err, "commit enqueue tx")
	}

	return types.QueueItem{
		ItemID:     itemID,
		Lane:       lane,
		EnqueuedAt: enqueuedAt,
		Payload:    payload,
		State:      types.QueuePending,
	}, nil
}

// Cancel removes a pending item from steer/follow_up and writes a
// `canceled` journal record. No-op (returns nil, no error) if the
// item is already canceled or materialized. system_urgent has no
// cancel operation by contract; callers must not invoke this for it.
func (q *QueueStore) Cancel(ctx context.Context, sessionID string, lane types.Lane, itemID int64, at int64) error {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Storage, err, "begin cancel tx")
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE queue_items SET state = ? WHERE session_id = ? AND lane = ? AND item_id = ? AND state = ?`,
		string(types.QueueCanceled), sessionID, string(lane), itemID, string(types.QueuePending),
	)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Storage, err, "update queue item state")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Storage, err, "rows affected")
	}
	if n == 0 {
		return nil // already canceled or materialized: no-op
	}

	if err := appendJournal(ctx, tx, sessionID, lane, types.JournalCanceled, itemID, nil, at); err != nil {
		return err
	}
	return wuhuerr.Wrap(wuhuerr.Storage, tx.Commit(), "commit cancel tx")
}

// Materialize marks a pending item materialized and, in the same
// transaction, appends its payload as a transcript entry (spec §9
// "Queue materialization atomicity"). Fails if the item is not
// pending.
func (q *QueueStore) Materialize(ctx context.Context, sessionID string, lane types.Lane, itemID int64, payload types.Payload, parentEntryID *int64, at int64) (types.Entry, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "begin materialize tx")
	}
	defer tx.Rollback()

	var state string
	err = tx.QueryRowContext(ctx, `SELECT state FROM queue_items WHERE session_id = ? AND lane = ? AND item_id = ?`,
		sessionID, string(lane), itemID).Scan(&state)
	if err != nil {
		if err == sql.ErrNoRows {
			return types.Entry{}, wuhuerr.New(wuhuerr.Storage, "materialize: queue item not found")
		}
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "read queue item state")
	}
	if state != string(types.QueuePending) {
		return types.Entry{}, wuhuerr.New(wuhuerr.Storage, "materialize: queue item not pending")
	}

	entry, err := q.transcript.appendTx(ctx, tx, sessionID, payload, parentEntryID, at)
	if err != nil {
		return types.Entry{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE queue_items SET state = ? WHERE session_id = ? AND lane = ? AND item_id = ?`,
		string(types.QueueMaterialized), sessionID, string(lane), itemID,
	); err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "update queue item materialized")
	}

	entryID := entry.EntryID
	if err := appendJournal(ctx, tx, sessionID, lane, types.JournalMaterialized, itemID, &entryID, at); err != nil {
		return types.Entry{}, err
	}

	if err := tx.Commit(); err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "commit materialize tx")
	}
	return entry, nil
}

// Snapshot returns the full pending set together with the whole
// journal when sinceCursor is nil, or with the journal delta since
// sinceCursor otherwise.
func (q *QueueStore) Snapshot(ctx context.Context, sessionID string, lane types.Lane, sinceCursor *int64) (types.Backfill, error) {
	var journalQuery string
	args := []any{sessionID, string(lane)}
	if sinceCursor == nil {
		journalQuery = `SELECT seq, kind, item_id, entry_id, at FROM queue_journal WHERE session_id = ? AND lane = ? ORDER BY seq ASC`
	} else {
		journalQuery = `SELECT seq, kind, item_id, entry_id, at FROM queue_journal WHERE session_id = ? AND lane = ? AND seq > ? ORDER BY seq ASC`
		args = append(args, *sinceCursor)
	}

	rows, err := q.db.QueryContext(ctx, journalQuery, args...)
	if err != nil {
		return types.Backfill{}, wuhuerr.Wrap(wuhuerr.Storage, err, "read queue journal")
	}
	defer rows.Close()

	var journal []types.JournalRecord
	var cursor int64
	for rows.Next() {
		var (
			seq     int64
			kind    string
			itemID  int64
			entryID sql.NullInt64
			at      int64
		)
		if err := rows.Scan(&seq, &kind, &itemID, &entryID, &at); err != nil {
			return types.Backfill{}, wuhuerr.Wrap(wuhuerr.Storage, err, "scan journal record")
		}
		journal = append(journal, types.JournalRecord{
			Lane: lane, Seq: seq, Kind: types.JournalRecordKind(kind), ItemID: itemID,
			EntryID: int64PtrFromNull(entryID), At: at,
		})
		cursor = seq
	}
	if err := rows.Err(); err != nil {
		return types.Backfill{}, wuhuerr.Wrap(wuhuerr.Storage, err, "iterate journal")
	}

	pendingRows, err := q.db.QueryContext(ctx, `
		SELECT item_id, enqueued_at, payload_json, state FROM queue_items
		WHERE session_id = ? AND lane = ? AND state = ? ORDER BY enqueued_at ASC`,
		sessionID, string(lane), string(types.QueuePending))
	if err != nil {
		return types.Backfill{}, wuhuerr.Wrap(wuhuerr.Storage, err, "read pending queue items")
	}
	defer pendingRows.Close()

	var pending []types.QueueItem
	for pendingRows.Next() {
		var (
			itemID     int64
			enqueuedAt int64
			payload    string
			state      string
		)
		if err := pendingRows.Scan(&itemID, &enqueuedAt, &payload, &state); err != nil {
			return types.Backfill{}, wuhuerr.Wrap(wuhuerr.Storage, err, "scan pending queue item")
		}
		pending = append(pending, types.QueueItem{
			ItemID: itemID, Lane: lane, EnqueuedAt: enqueuedAt,
			Payload: json.RawMessage(payload), State: types.QueueState(state),
		})
	}
	if err := pendingRows.Err(); err != nil {
		return types.Backfill{}, wuhuerr.Wrap(wuhuerr.Storage, err, "iterate pending queue items")
	}

	return types.Backfill{Cursor: cursor, Pending: pending, Journal: journal}, nil
}

// DrainCandidate returns the oldest pending item in lane, or ok=false
// if the lane is empty. The agent loop calls this in
// system_urgent > steer > follow_up priority order at each drain
// point (spec §4.5 "Scheduling model").
func (q *QueueStore) DrainCandidate(ctx context.Context, sessionID string, lane types.Lane) (types.QueueItem, bool, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT item_id, enqueued_at, payload_json, state FROM queue_items
		WHERE session_id = ? AND lane = ? AND state = ?
		ORDER BY enqueued_at ASC LIMIT 1`,
		sessionID, string(lane), string(types.QueuePending))

	var (
		itemID     int64
		enqueuedAt int64
		payload    string
		state      string
	)
	if err := row.Scan(&itemID, &enqueuedAt, &payload, &state); err != nil {
		if err == sql.ErrNoRows {
			return types.QueueItem{}, false, nil
		}
		return types.QueueItem{}, false, wuhuerr.Wrap(wuhuerr.Storage, err, "read drain candidate")
	}
	return types.QueueItem{
		ItemID: itemID, Lane: lane, EnqueuedAt: enqueuedAt,
		Payload: json.RawMessage(payload), State: types.QueueState(state),
	}, true, nil
}

func nextItemID(ctx context.Context, tx *sql.Tx, sessionID string, lane types.Lane) (int64, error) {
	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(item_id) FROM queue_items WHERE session_id = ? AND lane = ?`,
		sessionID, string(lane)).Scan(&maxID); err != nil {
		return 0, wuhuerr.Wrap(wuhuerr.Storage, err, "read max item id")
	}
	if maxID.Valid {
		return maxID.Int64 + 1, nil
	}
	return 1, nil
}

func appendJournal(ctx context.Context, tx *sql.Tx, sessionID string, lane types.Lane, kind types.JournalRecordKind, itemID int64, entryID *int64, at int64) error {
	var maxSeq sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(seq) FROM queue_journal WHERE session_id = ? AND lane = ?`,
		sessionID, string(lane)).Scan(&maxSeq); err != nil {
		return wuhuerr.Wrap(wuhuerr.Storage, err, "read max journal seq")
	}
	seq := int64(1)
	if maxSeq.Valid {
		seq = maxSeq.Int64 + 1
	}
	_, err := tx.ExecContext(ctx, `
		INSERT INTO queue_journal (session_id, lane, seq, kind, item_id, entry_id, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sessionID, string(lane), seq, string(kind), itemID, nullableInt64(entryID), at,
	)
	return wuhuerr.Wrap(wuhuerr.Storage, err, "insert journal record")
}
