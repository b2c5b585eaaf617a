// Package store implements the durable local database for offline signature
// capture: requests and their signatures, the cached worker roster and the
// append-only sync log. Backed by SQLite so captured data survives process
// restarts; every mutation re-reads the current row inside a transaction.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"

	"github.com/safetrack/fieldsign/internal/client/migrations"
	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/cryptox"
	"github.com/safetrack/fieldsign/internal/logging"
)

const credentialSaltKey = "credential_salt"

// Options configures Open.
type Options struct {
	// Path is the SQLite database file path.
	Path string
	// DeviceSecret protects captured credentials at rest. The store derives
	// an AES key from it with a per-store salt kept in store_meta.
	DeviceSecret []byte
	Logger       logging.Logger
}

// Store is the durable local store. It is safe for interleaved use from a
// single logical thread of control; atomicity of read-modify-write cycles
// comes from running them inside SQLite transactions.
type Store struct {
	db     *sql.DB
	cipher *cryptox.Cipher
	logger logging.Logger

	// now is a test seam for deterministic timestamps.
	now func() time.Time
}

// Open opens (creating if necessary) the store at opts.Path, runs pending
// migrations, derives the credential cipher and performs crash recovery:
// any request left in syncing by an interrupted process is demoted to error
// so it returns to the retryable work queue.
func Open(ctx context.Context, opts Options) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", opts.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	s := &Store{db: db, logger: opts.Logger, now: func() time.Time { return time.Now().UTC() }}

	cipher, err := s.initCipher(ctx, opts.DeviceSecret)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	s.cipher = cipher

	if err := s.recoverInterrupted(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	return goose.UpContext(ctx, db, ".")
}

// initCipher loads the per-store credential salt (creating it on first run)
// and derives the at-rest cipher from the device secret.
func (s *Store) initCipher(ctx context.Context, secret []byte) (*cryptox.Cipher, error) {
	var salt []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM store_meta WHERE key = ?`, credentialSaltKey).Scan(&salt)
	if err == sql.ErrNoRows {
		salt, err = cryptox.GenerateSalt(16)
		if err != nil {
			return nil, fmt.Errorf("salt generation error: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, `INSERT INTO store_meta (key, value) VALUES (?, ?)`, credentialSaltKey, salt); err != nil {
			return nil, storageErr("store salt", err)
		}
	} else if err != nil {
		return nil, storageErr("load salt", err)
	}

	return cryptox.NewCipher(cryptox.DeriveDeviceKey(secret, salt))
}

// recoverInterrupted demotes requests frozen in syncing by a crash mid-flight
// back to error, with an audit entry, so they rejoin the work queue instead
// of staying stuck or being silently resubmitted.
func (s *Store) recoverInterrupted(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM requests WHERE sync_status = ?`, models.StatusSyncing)
	if err != nil {
		return storageErr("scan interrupted requests", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return storageErr("scan interrupted request id", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return storageErr("scan interrupted requests", err)
	}

	for _, id := range ids {
		const msg = "sync interrupted by restart"
		if _, err := s.db.ExecContext(ctx,
			`UPDATE requests SET sync_status = ?, sync_error = ? WHERE id = ?`,
			models.StatusError, msg, id); err != nil {
			return storageErr("recover interrupted request", err)
		}
		if _, err := s.AppendLogEntry(ctx, id, models.EventSyncError, msg, ""); err != nil {
			return err
		}
		if s.logger != nil {
			s.logger.Warn(ctx, "recovered interrupted sync", "request_id", id)
		}
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Counts returns the number of requests in the work queue (pending or error)
// and the total signatures they carry.
func (s *Store) Counts(ctx context.Context) (pendingRequests, pendingSignatures int, err error) {
	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM requests WHERE sync_status IN (?, ?)`,
		models.StatusPending, models.StatusError).Scan(&pendingRequests)
	if err != nil {
		return 0, 0, storageErr("count pending requests", err)
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM signatures sig
		 JOIN requests r ON r.id = sig.request_id
		 WHERE r.sync_status IN (?, ?)`,
		models.StatusPending, models.StatusError).Scan(&pendingSignatures)
	if err != nil {
		return 0, 0, storageErr("count pending signatures", err)
	}

	return pendingRequests, pendingSignatures, nil
}

// PurgeSynced deletes synced requests whose sync completed before cutoff,
// together with their signatures and log entries. Requests still in the work
// queue are never touched. Returns the number of requests removed.
func (s *Store) PurgeSynced(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM requests WHERE sync_status = ? AND synced_at IS NOT NULL AND synced_at < ?`,
		models.StatusSynced, cutoff.UnixNano())
	if err != nil {
		return 0, storageErr("purge synced requests", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("purge rows affected", err)
	}

	// Log entries for removed requests age out on the same cutoff.
	if _, err := s.db.ExecContext(ctx,
		`DELETE FROM sync_log WHERE created_at < ? AND request_id NOT IN (SELECT id FROM requests)`,
		cutoff.UnixNano()); err != nil {
		return 0, storageErr("purge sync log", err)
	}

	return int(n), nil
}

// storageErr wraps a persistence-engine failure so callers can match the
// whole class with errors.Is(err, common.ErrorStorage).
func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrorStorage, op, err)
}
