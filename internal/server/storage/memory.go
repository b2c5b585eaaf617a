package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/server/models"
)

// Memory implements Storage with in-process maps. Used in tests and when no
// database DSN is configured.
type Memory struct {
	mu       sync.RWMutex
	workers  map[string]models.Worker
	requests map[string]models.SignRequest
}

func NewMemory() *Memory {
	return &Memory{
		workers:  make(map[string]models.Worker),
		requests: make(map[string]models.SignRequest),
	}
}

func (m *Memory) EnrollWorker(ctx context.Context, w *models.Worker) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.workers[w.SubjectID]; ok {
		return common.ErrorDuplicateWorker
	}
	m.workers[w.SubjectID] = *w
	return nil
}

func (m *Memory) GetWorker(ctx context.Context, subjectID string) (*models.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	w, ok := m.workers[subjectID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return &w, nil
}

func (m *Memory) ListWorkers(ctx context.Context) ([]models.Worker, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	workers := make([]models.Worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	sort.Slice(workers, func(i, j int) bool {
		return workers[i].SubjectID < workers[j].SubjectID
	})
	return workers, nil
}

func (m *Memory) CreateSignRequest(ctx context.Context, req *models.SignRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *req
	cp.Signatures = append([]models.SignatureRecord(nil), req.Signatures...)
	m.requests[req.ID] = cp
	return nil
}

func (m *Memory) GetSignRequest(ctx context.Context, id string) (*models.SignRequest, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	req, ok := m.requests[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	cp := req
	cp.Signatures = append([]models.SignatureRecord(nil), req.Signatures...)
	return &cp, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return nil
}

func (m *Memory) Close() error {
	return nil
}
