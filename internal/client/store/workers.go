package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/dbx"
	"github.com/safetrack/fieldsign/internal/rut"
)

// CacheWorkers upserts worker snapshots by normalized identifier, stamping
// cached_at. Entries with an unparseable identifier are skipped rather than
// failing the whole refresh.
func (s *Store) CacheWorkers(ctx context.Context, workers []models.CachedWorker) error {
	now := s.now().UnixNano()

	return dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		for _, w := range workers {
			subject, err := rut.Normalize(w.SubjectID)
			if err != nil {
				if s.logger != nil {
					s.logger.Warn(ctx, "skipping worker with invalid identifier", "subject_id", w.SubjectID)
				}
				continue
			}

			_, err = tx.ExecContext(ctx,
				`INSERT INTO cached_workers (subject_id, full_name, enrolled, cached_at)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT (subject_id)
				 DO UPDATE SET full_name = excluded.full_name, enrolled = excluded.enrolled, cached_at = excluded.cached_at`,
				subject, w.FullName, w.Enrolled, now)
			if err != nil {
				return storageErr("upsert cached worker", err)
			}
		}
		return nil
	})
}

// GetCachedWorker looks up a worker snapshot by identifier (any accepted RUT
// form). Returns ErrorNotFound when the roster has no matching entry.
func (s *Store) GetCachedWorker(ctx context.Context, subjectID string) (*models.CachedWorker, error) {
	subject, err := rut.Normalize(subjectID)
	if err != nil {
		return nil, err
	}

	var w models.CachedWorker
	var cachedAt int64
	err = s.db.QueryRowContext(ctx,
		`SELECT subject_id, full_name, enrolled, cached_at FROM cached_workers WHERE subject_id = ?`,
		subject).Scan(&w.SubjectID, &w.FullName, &w.Enrolled, &cachedAt)
	if err == sql.ErrNoRows {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, storageErr("select cached worker", err)
	}

	w.CachedAt = time.Unix(0, cachedAt).UTC()
	return &w, nil
}

// ClearCachedWorkers drops the whole local roster.
func (s *Store) ClearCachedWorkers(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM cached_workers`); err != nil {
		return storageErr("clear cached workers", err)
	}
	return nil
}
