package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/safetrack/fieldsign/internal/client/models"
)

// AppendLogEntry appends one audit record for a sync lifecycle event.
// Entries are never mutated afterwards.
func (s *Store) AppendLogEntry(ctx context.Context, requestID string, event models.LogEvent, message, details string) (*models.LogEntry, error) {
	entry := &models.LogEntry{
		ID:        uuid.NewString(),
		RequestID: requestID,
		Event:     event,
		Message:   message,
		Details:   details,
		CreatedAt: s.now(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sync_log (id, request_id, event, message, details, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.RequestID, entry.Event, entry.Message, entry.Details, entry.CreatedAt.UnixNano())
	if err != nil {
		return nil, storageErr("insert log entry", err)
	}

	return entry, nil
}

// LogEntries returns audit records newest first, filtered to one request
// when requestID is non-empty.
func (s *Store) LogEntries(ctx context.Context, requestID string) ([]models.LogEntry, error) {
	query := `SELECT id, request_id, event, message, details, created_at FROM sync_log`
	var args []any
	if requestID != "" {
		query += ` WHERE request_id = ?`
		args = append(args, requestID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("select log entries", err)
	}
	defer rows.Close()

	var entries []models.LogEntry
	for rows.Next() {
		var e models.LogEntry
		var createdAt int64
		if err := rows.Scan(&e.ID, &e.RequestID, &e.Event, &e.Message, &e.Details, &createdAt); err != nil {
			return nil, storageErr("scan log entry", err)
		}
		e.CreatedAt = time.Unix(0, createdAt).UTC()
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("select log entries", err)
	}

	return entries, nil
}
