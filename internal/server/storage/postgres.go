package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/dbx"
	"github.com/safetrack/fieldsign/internal/server/migrations"
	"github.com/safetrack/fieldsign/internal/server/models"
)

const pgUniqueViolation = "23505"

// Postgres implements Storage on PostgreSQL via the pgx stdlib driver.
type Postgres struct {
	db *sql.DB
}

// NewPostgres opens the database and runs pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := runMigrations(ctx, db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}

	return &Postgres{db: db}, nil
}

func runMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, db, ".")
}

func (p *Postgres) EnrollWorker(ctx context.Context, w *models.Worker) error {
	query := `INSERT INTO workers (subject_id, full_name, pin_hash, enrolled, created_at)
	          VALUES ($1, $2, $3, $4, $5)`

	_, err := p.db.ExecContext(ctx, query,
		w.SubjectID, w.FullName, w.PinHash, w.Enrolled, w.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return common.ErrorDuplicateWorker
		}
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (p *Postgres) GetWorker(ctx context.Context, subjectID string) (*models.Worker, error) {
	query := `SELECT subject_id, full_name, pin_hash, enrolled, created_at
	          FROM workers WHERE subject_id = $1`

	w := &models.Worker{}
	err := p.db.QueryRowContext(ctx, query, subjectID).
		Scan(&w.SubjectID, &w.FullName, &w.PinHash, &w.Enrolled, &w.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	return w, nil
}

func (p *Postgres) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	query := `SELECT subject_id, full_name, pin_hash, enrolled, created_at
	          FROM workers ORDER BY subject_id`

	rows, err := p.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var workers []models.Worker
	for rows.Next() {
		var w models.Worker
		if err := rows.Scan(&w.SubjectID, &w.FullName, &w.PinHash, &w.Enrolled, &w.CreatedAt); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		workers = append(workers, w)
	}
	return workers, rows.Err()
}

func (p *Postgres) CreateSignRequest(ctx context.Context, req *models.SignRequest) error {
	return dbx.WithTx(ctx, p.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		query := `INSERT INTO sign_requests
		          (id, device_id, kind, title, description, location,
		           requester_id, requester_name, created_at, received_at)
		          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

		_, err := tx.ExecContext(ctx, query,
			req.ID, req.DeviceID, req.Kind, req.Title, req.Description,
			req.Location, req.RequesterID, req.RequesterName,
			req.CreatedAt, req.ReceivedAt)
		if err != nil {
			return fmt.Errorf("error performing sql request: %w", err)
		}

		sigQuery := `INSERT INTO signatures
		             (id, request_id, subject_id, display_name, captured_at,
		              valid, reason, position)
		             VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

		for i, s := range req.Signatures {
			_, err := tx.ExecContext(ctx, sigQuery,
				s.ID, req.ID, s.SubjectID, s.DisplayName, s.CapturedAt,
				s.Valid, s.Reason, i+1)
			if err != nil {
				return fmt.Errorf("error performing sql request: %w", err)
			}
		}
		return nil
	})
}

func (p *Postgres) GetSignRequest(ctx context.Context, id string) (*models.SignRequest, error) {
	query := `SELECT id, device_id, kind, title, description, location,
	                 requester_id, requester_name, created_at, received_at
	          FROM sign_requests WHERE id = $1`

	req := &models.SignRequest{}
	err := p.db.QueryRowContext(ctx, query, id).Scan(
		&req.ID, &req.DeviceID, &req.Kind, &req.Title, &req.Description,
		&req.Location, &req.RequesterID, &req.RequesterName,
		&req.CreatedAt, &req.ReceivedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}

	sigQuery := `SELECT id, subject_id, display_name, captured_at, valid, reason
	             FROM signatures WHERE request_id = $1 ORDER BY position`

	rows, err := p.db.QueryContext(ctx, sigQuery, id)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var s models.SignatureRecord
		if err := rows.Scan(&s.ID, &s.SubjectID, &s.DisplayName, &s.CapturedAt, &s.Valid, &s.Reason); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		req.Signatures = append(req.Signatures, s)
	}
	return req, rows.Err()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close() error {
	return p.db.Close()
}
