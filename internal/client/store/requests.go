package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/dbx"
)

// CreateRequest persists a new request with a fresh id, empty signature list
// and pending status, and returns the full record.
func (s *Store) CreateRequest(ctx context.Context, draft models.RequestDraft) (*models.Request, error) {
	if strings.TrimSpace(draft.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrorValidation)
	}
	if strings.TrimSpace(draft.RequesterID) == "" {
		return nil, fmt.Errorf("%w: requester is required", common.ErrorValidation)
	}

	req := &models.Request{
		ID:            uuid.NewString(),
		Kind:          draft.Kind,
		Title:         draft.Title,
		Description:   draft.Description,
		Location:      draft.Location,
		RequesterID:   draft.RequesterID,
		RequesterName: draft.RequesterName,
		Signatures:    []models.Signature{},
		CreatedAt:     s.now(),
		SyncStatus:    models.StatusPending,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO requests (id, kind, title, description, location, requester_id, requester_name, created_at, sync_status)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		req.ID, req.Kind, req.Title, req.Description, req.Location,
		req.RequesterID, req.RequesterName, req.CreatedAt.UnixNano(), req.SyncStatus)
	if err != nil {
		return nil, storageErr("insert request", err)
	}

	return req, nil
}

// GetRequest returns the request with its signatures in capture order, or
// ErrorNotFound.
func (s *Store) GetRequest(ctx context.Context, id string) (*models.Request, error) {
	return getRequest(ctx, s.db, id)
}

// ListRequests returns all requests, most recently created first.
func (s *Store) ListRequests(ctx context.Context) ([]*models.Request, error) {
	return s.listByStatus(ctx, nil, "DESC")
}

// ListPending returns the sync work queue: requests in pending or error
// state, in creation order, so a full sync pass submits oldest first.
func (s *Store) ListPending(ctx context.Context) ([]*models.Request, error) {
	return s.listByStatus(ctx, []models.SyncStatus{models.StatusPending, models.StatusError}, "ASC")
}

func (s *Store) listByStatus(ctx context.Context, statuses []models.SyncStatus, order string) ([]*models.Request, error) {
	query := `SELECT id, kind, title, description, location, requester_id, requester_name,
	                 created_at, sync_status, sync_error, synced_at, remote_request_id
	          FROM requests`
	var args []any
	if len(statuses) > 0 {
		placeholders := make([]string, len(statuses))
		for i, st := range statuses {
			placeholders[i] = "?"
			args = append(args, st)
		}
		query += ` WHERE sync_status IN (` + strings.Join(placeholders, ", ") + `)`
	}
	// rowid breaks ties between requests created within the same clock tick,
	// preserving insert order.
	query += ` ORDER BY created_at ` + order + `, rowid ` + order

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("select requests", err)
	}
	defer rows.Close()

	var result []*models.Request
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("select requests", err)
	}

	for _, req := range result {
		sigs, err := loadSignatures(ctx, s.db, req.ID)
		if err != nil {
			return nil, err
		}
		req.Signatures = sigs
	}

	return result, nil
}

// UpdateRequest replaces the request's descriptive metadata and sync fields
// in one atomic write. The caller must hold a freshly read record; the store
// re-checks the persisted status so a request that became synced in the
// meantime is never mutated.
func (s *Store) UpdateRequest(ctx context.Context, req *models.Request) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		current, err := requestStatus(ctx, tx, req.ID)
		if err != nil {
			return err
		}
		if current == models.StatusSynced {
			return common.ErrorRequestSynced
		}

		var syncedAt any
		if req.SyncedAt != nil {
			syncedAt = req.SyncedAt.UnixNano()
		}
		_, err = tx.ExecContext(ctx,
			`UPDATE requests SET kind = ?, title = ?, description = ?, location = ?,
			        requester_id = ?, requester_name = ?, sync_status = ?, sync_error = ?,
			        synced_at = ?, remote_request_id = ?
			 WHERE id = ?`,
			req.Kind, req.Title, req.Description, req.Location,
			req.RequesterID, req.RequesterName, req.SyncStatus, req.SyncError,
			syncedAt, req.RemoteRequestID, req.ID)
		if err != nil {
			return storageErr("update request", err)
		}
		return nil
	})
}

// DeleteRequest hard-deletes a request and its signatures. Deleting a
// request that is mid-flight or already recorded remotely is refused.
func (s *Store) DeleteRequest(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		status, err := requestStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		switch status {
		case models.StatusSyncing:
			return common.ErrorRequestSyncing
		case models.StatusSynced:
			return common.ErrorRequestSynced
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM requests WHERE id = ?`, id); err != nil {
			return storageErr("delete request", err)
		}
		return nil
	})
}

// MarkSyncing transitions a queued request into syncing. Only pending and
// error requests may start a sync attempt.
func (s *Store) MarkSyncing(ctx context.Context, id string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		status, err := requestStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		switch status {
		case models.StatusSyncing:
			return common.ErrorRequestSyncing
		case models.StatusSynced:
			return common.ErrorRequestSynced
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE requests SET sync_status = ?, sync_error = '' WHERE id = ?`,
			models.StatusSyncing, id)
		if err != nil {
			return storageErr("mark syncing", err)
		}
		return nil
	})
}

// MarkSynced finalizes a successful sync attempt: stamps synced_at, records
// the remote-assigned id and flags the individually accepted signatures as
// validated. The request must currently be syncing.
func (s *Store) MarkSynced(ctx context.Context, id, remoteRequestID string, validSubjects []string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		status, err := requestStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status != models.StatusSyncing {
			return fmt.Errorf("cannot mark %s request synced", status)
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE requests SET sync_status = ?, sync_error = '', synced_at = ?, remote_request_id = ? WHERE id = ?`,
			models.StatusSynced, s.now().UnixNano(), remoteRequestID, id)
		if err != nil {
			return storageErr("mark synced", err)
		}

		for _, subject := range validSubjects {
			if _, err := tx.ExecContext(ctx,
				`UPDATE signatures SET validated = 1 WHERE request_id = ? AND subject_id = ?`,
				id, subject); err != nil {
				return storageErr("mark signature validated", err)
			}
		}
		return nil
	})
}

// MarkSyncError records a failed sync attempt, returning the request to the
// retryable work queue with the failure message attached.
func (s *Store) MarkSyncError(ctx context.Context, id, message string) error {
	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		status, err := requestStatus(ctx, tx, id)
		if err != nil {
			return err
		}
		if status == models.StatusSynced {
			return common.ErrorRequestSynced
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE requests SET sync_status = ?, sync_error = ? WHERE id = ?`,
			models.StatusError, message, id)
		if err != nil {
			return storageErr("mark sync error", err)
		}
		return nil
	})
}

func requestStatus(ctx context.Context, db dbx.DBTX, id string) (models.SyncStatus, error) {
	var status models.SyncStatus
	err := db.QueryRowContext(ctx, `SELECT sync_status FROM requests WHERE id = ?`, id).Scan(&status)
	if err == sql.ErrNoRows {
		return "", common.ErrorNotFound
	}
	if err != nil {
		return "", storageErr("read request status", err)
	}
	return status, nil
}

func getRequest(ctx context.Context, db dbx.DBTX, id string) (*models.Request, error) {
	row := db.QueryRowContext(ctx,
		`SELECT id, kind, title, description, location, requester_id, requester_name,
		        created_at, sync_status, sync_error, synced_at, remote_request_id
		 FROM requests WHERE id = ?`, id)

	req, err := scanRequest(row)
	if err != nil {
		return nil, err
	}

	sigs, err := loadSignatures(ctx, db, id)
	if err != nil {
		return nil, err
	}
	req.Signatures = sigs

	return req, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var req models.Request
	var createdAt int64
	var syncedAt sql.NullInt64

	err := row.Scan(&req.ID, &req.Kind, &req.Title, &req.Description, &req.Location,
		&req.RequesterID, &req.RequesterName, &createdAt, &req.SyncStatus,
		&req.SyncError, &syncedAt, &req.RemoteRequestID)
	if err == sql.ErrNoRows {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, storageErr("scan request", err)
	}

	req.CreatedAt = time.Unix(0, createdAt).UTC()
	if syncedAt.Valid {
		t := time.Unix(0, syncedAt.Int64).UTC()
		req.SyncedAt = &t
	}
	req.Signatures = []models.Signature{}

	return &req, nil
}
