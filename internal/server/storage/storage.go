// Package storage defines the persistence interface for the signature
// authority and its PostgreSQL and in-memory implementations.
package storage

import (
	"context"

	"github.com/safetrack/fieldsign/internal/server/models"
)

// Storage persists enrolled workers and recorded sign requests.
type Storage interface {
	// EnrollWorker inserts a worker. A worker with the same subject id
	// returns common.ErrorDuplicateWorker.
	EnrollWorker(ctx context.Context, w *models.Worker) error

	// GetWorker returns the worker with the given normalized subject id, or
	// common.ErrorNotFound.
	GetWorker(ctx context.Context, subjectID string) (*models.Worker, error)

	// ListWorkers returns all enrolled workers ordered by subject id.
	ListWorkers(ctx context.Context) ([]models.Worker, error)

	// CreateSignRequest records a request with its adjudicated signatures
	// atomically.
	CreateSignRequest(ctx context.Context, req *models.SignRequest) error

	// GetSignRequest returns a recorded request with its signatures, or
	// common.ErrorNotFound.
	GetSignRequest(ctx context.Context, id string) (*models.SignRequest, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	Close() error
}
