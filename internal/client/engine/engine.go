// Package engine orchestrates synchronization of locally captured signature
// requests with the remote authority: one request at a time, pending work
// drained oldest first, every attempt resolving to synced or error before
// the next begins.
package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/client/remote"
	"github.com/safetrack/fieldsign/internal/client/store"
	"github.com/safetrack/fieldsign/internal/logging"
)

const (
	DefaultSettleDelay   = 2 * time.Second
	DefaultItemDelay     = 500 * time.Millisecond
	DefaultRetentionAge  = 30 * 24 * time.Hour
	DefaultSweepInterval = time.Hour
)

// Submitter is the remote authority surface the engine depends on.
type Submitter interface {
	SubmitRequest(ctx context.Context, payload remote.SubmitPayload) (*remote.SubmitResult, error)
	FetchWorkers(ctx context.Context) ([]remote.Worker, error)
}

// Connectivity is the verified-reachability surface the engine consumes.
type Connectivity interface {
	IsConnected() bool
	Reconnected() <-chan struct{}
	ClearWasOffline()
}

// Result describes the outcome of one sync attempt for one request.
type Result struct {
	RequestID       string
	Success         bool
	RemoteRequestID string
	SignatureCount  int
	ValidCount      int
	Message         string
}

// Options tunes the engine.
type Options struct {
	// SettleDelay is the pause between a reconnect signal and the automatic
	// sync it triggers, so a momentarily flapping connection is not acted on.
	SettleDelay time.Duration
	// ItemDelay is the pause between requests within one full sync pass.
	ItemDelay time.Duration
	// RetentionAge is how long synced requests are kept before the periodic
	// sweep removes them. Zero disables the sweep.
	RetentionAge  time.Duration
	SweepInterval time.Duration
	Logger        logging.Logger
}

// Engine drives sync passes over the store's pending queue.
type Engine struct {
	store  *store.Store
	remote Submitter
	conn   Connectivity
	logger logging.Logger

	settleDelay   time.Duration
	itemDelay     time.Duration
	retentionAge  time.Duration
	sweepInterval time.Duration

	// syncing guards SyncAll: at most one full pass runs process-wide.
	syncing atomic.Bool

	mu           sync.Mutex
	lastSyncTime time.Time
	syncError    string

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New builds an Engine over the given store, remote client and connectivity
// signal.
func New(s *store.Store, r Submitter, conn Connectivity, opts Options) *Engine {
	if opts.SettleDelay <= 0 {
		opts.SettleDelay = DefaultSettleDelay
	}
	if opts.ItemDelay <= 0 {
		opts.ItemDelay = DefaultItemDelay
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = DefaultSweepInterval
	}
	return &Engine{
		store:         s,
		remote:        r,
		conn:          conn,
		logger:        opts.Logger,
		settleDelay:   opts.SettleDelay,
		itemDelay:     opts.ItemDelay,
		retentionAge:  opts.RetentionAge,
		sweepInterval: opts.SweepInterval,
		stop:          make(chan struct{}),
	}
}

// SyncOne submits one request's whole signature batch to the remote
// authority and records the outcome. It never returns an error: local
// validation failures, transport failures and remote rejections all come
// back as a Result, keeping the sequential SyncAll loop exception-free.
//
// SyncOne does not take the full-pass guard; manual retry callers must
// check IsSyncing first.
func (e *Engine) SyncOne(ctx context.Context, requestID string) Result {
	req, err := e.store.GetRequest(ctx, requestID)
	if err != nil {
		return Result{RequestID: requestID, Message: fmt.Sprintf("request not found: %v", err)}
	}
	if req.SyncStatus == models.StatusSynced {
		return Result{RequestID: requestID, Message: "request already synced"}
	}
	if len(req.Signatures) == 0 {
		// an empty request is never submitted
		return Result{RequestID: requestID, Message: "request has no signatures"}
	}

	if err := e.store.MarkSyncing(ctx, requestID); err != nil {
		return Result{RequestID: requestID, Message: fmt.Sprintf("cannot start sync: %v", err)}
	}

	n := len(req.Signatures)
	e.appendLog(ctx, requestID, models.EventSyncStart,
		fmt.Sprintf("submitting %d signatures", n), "")

	payload, revealed, err := e.buildPayload(req)
	if err != nil {
		return e.fail(ctx, requestID, n, fmt.Sprintf("prepare submit payload: %v", err))
	}

	res, err := e.remote.SubmitRequest(ctx, payload)
	wipeAll(revealed)
	if err != nil {
		return e.fail(ctx, requestID, n, err.Error())
	}
	if !res.Success {
		msg := res.Error
		if msg == "" {
			msg = "rejected by remote authority"
		}
		return e.fail(ctx, requestID, n, msg)
	}

	validSubjects := make([]string, 0, len(res.Results))
	for _, sr := range res.Results {
		if sr.Success {
			validSubjects = append(validSubjects, sr.SubjectID)
		}
	}

	if err := e.store.MarkSynced(ctx, requestID, res.RemoteRequestID, validSubjects); err != nil {
		// the remote recorded the batch but local state could not be
		// updated; surface loudly, the next pass must not resubmit blindly
		if e.logger != nil {
			e.logger.Error(ctx, "failed to record synced state", "request_id", requestID, "error", err)
		}
		return Result{RequestID: requestID, SignatureCount: n, Message: fmt.Sprintf("record synced state: %v", err)}
	}

	e.appendLog(ctx, requestID, models.EventSyncSuccess,
		fmt.Sprintf("batch recorded: %d of %d signatures valid", res.ValidCount, n),
		res.RemoteRequestID)

	if e.logger != nil {
		e.logger.Info(ctx, "request synced", "request_id", requestID, "remote_id", res.RemoteRequestID, "valid", res.ValidCount, "total", n)
	}

	return Result{
		RequestID:       requestID,
		Success:         true,
		RemoteRequestID: res.RemoteRequestID,
		SignatureCount:  n,
		ValidCount:      res.ValidCount,
	}
}

// SyncAll drains the pending queue strictly sequentially. A second SyncAll
// while one is running is a coalescing no-op returning nil, as is a call
// while the remote is unreachable. Partial failure is the expected common
// case: failed requests stay queued, successes are finalized, and the
// aggregate error summary reports the failure count.
func (e *Engine) SyncAll(ctx context.Context) []Result {
	if !e.syncing.CompareAndSwap(false, true) {
		return nil
	}
	defer e.syncing.Store(false)

	if !e.conn.IsConnected() {
		return nil
	}

	// snapshot: requests created after this point wait for the next pass
	pending, err := e.store.ListPending(ctx)
	if err != nil {
		if e.logger != nil {
			e.logger.Error(ctx, "cannot read pending queue", "error", err)
		}
		e.setAggregate(time.Time{}, fmt.Sprintf("read pending queue: %v", err))
		return nil
	}

	results := make([]Result, 0, len(pending))
	for i, req := range pending {
		if i > 0 {
			select {
			case <-time.After(e.itemDelay):
			case <-ctx.Done():
				return results
			case <-e.stop:
				return results
			}
		}
		results = append(results, e.SyncOne(ctx, req.ID))
	}

	failures := 0
	for _, r := range results {
		if !r.Success {
			failures++
		}
	}

	summary := ""
	if failures > 0 {
		summary = fmt.Sprintf("%d of %d requests failed to sync", failures, len(results))
	}
	e.setAggregate(time.Now().UTC(), summary)

	if e.logger != nil {
		e.logger.Info(ctx, "sync pass finished", "total", len(results), "failed", failures)
	}

	return results
}

// Counts returns the aggregate queue counters for the UI: requests awaiting
// sync and the signatures they carry.
func (e *Engine) Counts(ctx context.Context) (pendingRequests, pendingSignatures int, err error) {
	return e.store.Counts(ctx)
}

// IsSyncing reports whether a full sync pass is in flight.
func (e *Engine) IsSyncing() bool {
	return e.syncing.Load()
}

// LastSyncTime returns when the last full pass finished.
func (e *Engine) LastSyncTime() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastSyncTime
}

// SyncError returns the aggregate failure summary of the last pass, empty
// when the pass was clean.
func (e *Engine) SyncError() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.syncError
}

// RefreshWorkers fetches the enrolled roster and refreshes the local cache.
func (e *Engine) RefreshWorkers(ctx context.Context) error {
	workers, err := e.remote.FetchWorkers(ctx)
	if err != nil {
		return err
	}

	cached := make([]models.CachedWorker, 0, len(workers))
	for _, w := range workers {
		cached = append(cached, models.CachedWorker{SubjectID: w.SubjectID, FullName: w.FullName, Enrolled: w.Enrolled})
	}
	return e.store.CacheWorkers(ctx, cached)
}

func (e *Engine) setAggregate(last time.Time, summary string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !last.IsZero() {
		e.lastSyncTime = last
	}
	e.syncError = summary
}

// fail resolves an attempt to the error state and returns the failure result.
func (e *Engine) fail(ctx context.Context, requestID string, sigCount int, message string) Result {
	if err := e.store.MarkSyncError(ctx, requestID, message); err != nil && e.logger != nil {
		e.logger.Error(ctx, "failed to record sync error", "request_id", requestID, "error", err)
	}
	e.appendLog(ctx, requestID, models.EventSyncError, message, "")

	if e.logger != nil {
		e.logger.Warn(ctx, "request sync failed", "request_id", requestID, "error", message)
	}

	return Result{RequestID: requestID, SignatureCount: sigCount, Message: message}
}

func (e *Engine) appendLog(ctx context.Context, requestID string, event models.LogEvent, message, details string) {
	if _, err := e.store.AppendLogEntry(ctx, requestID, event, message, details); err != nil && e.logger != nil {
		e.logger.Error(ctx, "failed to append sync log entry", "request_id", requestID, "error", err)
	}
}

// buildPayload assembles the submit payload, revealing each sealed
// credential. The revealed slices are returned so the caller can wipe them
// once the payload has been sent.
func (e *Engine) buildPayload(req *models.Request) (remote.SubmitPayload, [][]byte, error) {
	payload := remote.SubmitPayload{
		Kind:          req.Kind,
		Title:         req.Title,
		Description:   req.Description,
		Location:      req.Location,
		RequesterID:   req.RequesterID,
		RequesterName: req.RequesterName,
		CreatedAt:     req.CreatedAt,
		Signatures:    make([]remote.SignatureSubmission, 0, len(req.Signatures)),
	}

	revealed := make([][]byte, 0, len(req.Signatures))
	for i := range req.Signatures {
		sig := &req.Signatures[i]
		pin, err := e.store.RevealCredential(sig)
		if err != nil {
			wipeAll(revealed)
			return remote.SubmitPayload{}, nil, err
		}
		revealed = append(revealed, pin)
		payload.Signatures = append(payload.Signatures, remote.SignatureSubmission{
			SubjectID:   sig.SubjectID,
			Credential:  string(pin),
			DisplayName: sig.DisplayName,
			CapturedAt:  sig.CapturedAt,
		})
	}

	return payload, revealed, nil
}

func wipeAll(buffers [][]byte) {
	for _, b := range buffers {
		store.WipeCredential(b)
	}
}
