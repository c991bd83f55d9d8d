package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/wuhu-dev/wuhu/internal/wuhuerr"
	"github.com/wuhu-dev/wuhu/pkg/types"
)

// TranscriptStore persists a session's append-only entry log.
type TranscriptStore struct {
	db *sql.DB
}

// NewTranscriptStore wraps an already-migrated database handle.
func NewTranscriptStore(db *sql.DB) *TranscriptStore {
	return &TranscriptStore{db: db}
}

// Append allocates the next per-session cursor, stamps createdAt, and
// persists the entry inside a single transaction. Concurrent appenders
// do not race on the cursor because the pool holds one connection
// (SetMaxOpenConns(1) in db.go).
func (s *TranscriptStore) Append(ctx context.Context, sessionID string, payload types.Payload, parentEntryID *int64, createdAt int64) (types.Entry, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "begin append tx")
	}
	defer tx.Rollback()

	entry, err := s.appendTx(ctx, tx, sessionID, payload, parentEntryID, createdAt)
	if err != nil {
		return types.Entry{}, err
	}
	if err := tx.Commit(); err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "commit append tx")
	}
	return entry, nil
}

// appendTx is the shared core used both by Append and by the queue
// store's Materialize, which needs the transcript insert and the
// queue journal write in the same transaction (spec §9 "Queue
// materialization atomicity").
func (s *TranscriptStore) appendTx(ctx context.Context, tx *sql.Tx, sessionID string, payload types.Payload, parentEntryID *int64, createdAt int64) (types.Entry, error) {
	var maxID sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(entry_id) FROM entries WHERE session_id = ?`, sessionID).Scan(&maxID); err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "read max entry id")
	}
	nextID := int64(1)
	if maxID.Valid {
		nextID = maxID.Int64 + 1
	}

	payloadJSON, err := types.MarshalPayload(payload)
	if err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Decoding, err, "marshal payload")
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO entries (session_id, entry_id, parent_entry_id, created_at, payload_json)
		VALUES (?, ?, ?, ?, ?)`,
		sessionID, nextID, nullableInt64(parentEntryID), createdAt, string(payloadJSON),
	); err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "insert entry")
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET tail_entry_id = ?, updated_at = ? WHERE id = ?`,
		nextID, createdAt, sessionID,
	); err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "update session tail")
	}
	if _, err := tx.ExecContext(ctx, `
		UPDATE sessions SET head_entry_id = ? WHERE id = ? AND head_entry_id = 0`,
		nextID, sessionID,
	); err != nil {
		return types.Entry{}, wuhuerr.Wrap(wuhuerr.Storage, err, "update session head")
	}

	return types.Entry{
		EntryID:       nextID,
		SessionID:     sessionID,
		ParentEntryID: parentEntryID,
		CreatedAt:     createdAt,
		Payload:       payload,
	}, nil
}

// Read returns entries strictly greater than sinceCursor (if non-nil)
// and strictly newer than sinceTime (if non-nil), intersected when
// both are supplied, in cursor order.
func (s *TranscriptStore) Read(ctx context.Context, sessionID string, sinceCursor, sinceTime *int64) ([]types.Entry, error) {
	query := `SELECT entry_id, parent_entry_id, created_at, payload_json FROM entries WHERE session_id = ?`
	args := []any{sessionID}
	if sinceCursor != nil {
		query += ` AND entry_id > ?`
		args = append(args, *sinceCursor)
	}
	if sinceTime != nil {
		query += ` AND created_at > ?`
		args = append(args, *sinceTime)
	}
	query += ` ORDER BY entry_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.Storage, err, "read entries")
	}
	defer rows.Close()

	var out []types.Entry
	for rows.Next() {
		var (
			entryID       int64
			parentEntryID sql.NullInt64
			createdAt     int64
			payloadJSON   string
		)
		if err := rows.Scan(&entryID, &parentEntryID, &createdAt, &payloadJSON); err != nil {
			return nil, wuhuerr.Wrap(wuhuerr.Storage, err, "scan entry")
		}
		payload, err := types.UnmarshalPayload(json.RawMessage(payloadJSON))
		if err != nil {
			return nil, wuhuerr.Wrap(wuhuerr.Decoding, err, "unmarshal payload")
		}
		out = append(out, types.Entry{
			EntryID:       entryID,
			SessionID:     sessionID,
			ParentEntryID: int64PtrFromNull(parentEntryID),
			CreatedAt:     createdAt,
			Payload:       payload,
		})
	}
	return out, rows.Err()
}

// Head and Tail return the first and last entry ids for a session, or
// 0 if the transcript is empty.
func (s *TranscriptStore) Head(ctx context.Context, sessionID string) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MIN(entry_id) FROM entries WHERE session_id = ?`, sessionID).Scan(&v)
	if err != nil {
		return 0, wuhuerr.Wrap(wuhuerr.Storage, err, "read head")
	}
	return v.Int64, nil
}

func (s *TranscriptStore) Tail(ctx context.Context, sessionID string) (int64, error) {
	var v sql.NullInt64
	err := s.db.QueryRowContext(ctx, `SELECT MAX(entry_id) FROM entries WHERE session_id = ?`, sessionID).Scan(&v)
	if err != nil {
		return 0, wuhuerr.Wrap(wuhuerr.Storage, err, "read tail")
	}
	return v.Int64, nil
}

// ListSessions returns at most limit sessions, most-recently-updated
// first. limit <= 0 means unbounded.
func (s *TranscriptStore) ListSessions(ctx context.Context, limit int) ([]types.Session, error) {
	query := `SELECT id, provider_id, model_id, reasoning_effort, environment_json, runner_name, directory,
		parent_session_id, created_at, updated_at, head_entry_id, tail_entry_id, status
		FROM sessions ORDER BY updated_at DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.Storage, err, "list sessions")
	}
	defer rows.Close()

	var out []types.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

// GetSession fetches a single session by id.
func (s *TranscriptStore) GetSession(ctx context.Context, sessionID string) (types.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, provider_id, model_id, reasoning_effort, environment_json, runner_name, directory,
		parent_session_id, created_at, updated_at, head_entry_id, tail_entry_id, status
		FROM sessions WHERE id = ?`, sessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Session{}, wuhuerr.New(wuhuerr.Storage, fmt.Sprintf("session %q not found", sessionID))
	}
	return sess, err
}

// CreateSession inserts a new session row.
func (s *TranscriptStore) CreateSession(ctx context.Context, sess types.Session) error {
	envJSON, err := json.Marshal(sess.Environment)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Decoding, err, "marshal environment")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO sessions (id, provider_id, model_id, reasoning_effort, environment_json, runner_name, directory,
			parent_session_id, created_at, updated_at, head_entry_id, tail_entry_id, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		sess.ID, sess.ProviderID, sess.ModelID, sess.ReasoningEffort, string(envJSON), sess.RunnerName, sess.Directory,
		nullableString(sess.ParentSessionID), sess.CreatedAt, sess.UpdatedAt, string(types.StatusIdle),
	)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Storage, err, "insert session")
	}
	return nil
}

// UpdateSettings journals a provider/model/reasoning-effort change by
// updating the sessions row; the caller is responsible for appending
// the corresponding SessionSettingsPayload entry.
func (s *TranscriptStore) UpdateSettings(ctx context.Context, sessionID, providerID, modelID, reasoningEffort string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sessions SET provider_id = ?, model_id = ?, reasoning_effort = ? WHERE id = ?`,
		providerID, modelID, reasoningEffort, sessionID)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Storage, err, "update session settings")
	}
	return nil
}

// UpdateStatus sets a session's execution-state field.
func (s *TranscriptStore) UpdateStatus(ctx context.Context, sessionID string, status types.Status) error {
	_, err := s.db.ExecContext(ctx, `UPDATE sessions SET status = ? WHERE id = ?`, string(status), sessionID)
	if err != nil {
		return wuhuerr.Wrap(wuhuerr.Storage, err, "update session status")
	}
	return nil
}

// Repair appends a tool_result entry with is_error=true for each
// unresolved tool call id, preserving pairing. Used by the stop
// sequence (spec §4.5 "Stop") to close out tool calls left dangling
// when execution is interrupted mid-batch.
func (s *TranscriptStore) Repair(ctx context.Context, sessionID string, toolCallIDs []string, toolNames map[string]string, createdAt int64) ([]types.Entry, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.Storage, err, "begin repair tx")
	}
	defer tx.Rollback()

	out := make([]types.Entry, 0, len(toolCallIDs))
	for _, callID := range toolCallIDs {
		payload := types.ToolResultMessage{
			ToolCallID: callID,
			ToolName:   toolNames[callID],
			Content:    types.ContentList{types.TextContent{Text: "Execution stopped by user"}},
			IsError:    true,
			Timestamp:  createdAt,
		}
		entry, err := s.appendTx(ctx, tx, sessionID, payload, nil, createdAt)
		if err != nil {
			return nil, err
		}
		out = append(out, entry)
	}
	if err := tx.Commit(); err != nil {
		return nil, wuhuerr.Wrap(wuhuerr.Storage, err, "commit repair tx")
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (types.Session, error) {
	var (
		sess            types.Session
		reasoningEffort sql.NullString
		envJSON         string
		parentSessionID sql.NullString
		status          string
	)
	err := row.Scan(&sess.ID, &sess.ProviderID, &sess.ModelID, &reasoningEffort, &envJSON, &sess.RunnerName, &sess.Directory,
		&parentSessionID, &sess.CreatedAt, &sess.UpdatedAt, &sess.HeadEntryID, &sess.TailEntryID, &status)
	if err != nil {
		return types.Session{}, wuhuerr.Wrap(wuhuerr.Storage, err, "scan session")
	}
	sess.ReasoningEffort = reasoningEffort.String
	if parentSessionID.Valid {
		v := parentSessionID.String
		sess.ParentSessionID = &v
	}
	if err := json.Unmarshal([]byte(envJSON), &sess.Environment); err != nil {
		return types.Session{}, wuhuerr.Wrap(wuhuerr.Decoding, err, "unmarshal environment")
	}
	_ = status
	return sess, nil
}

func nullableInt64(v *int64) any {
	if v == nil {
		return nil
	}
	return *v
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}

func int64PtrFromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	val := v.Int64
	return &val
}
