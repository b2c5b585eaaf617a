package cli

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack/fieldsign/internal/client/connectivity"
	"github.com/safetrack/fieldsign/internal/client/engine"
	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/client/remote"
	"github.com/safetrack/fieldsign/internal/client/store"
	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/logging"
)

type stubProber struct {
	mu sync.Mutex
	ok bool
}

func (p *stubProber) set(ok bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ok = ok
}

func (p *stubProber) Health(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.ok {
		return errors.New("unreachable")
	}
	return nil
}

type stubSubmitter struct {
	started chan struct{}
	release chan struct{}
}

func (s *stubSubmitter) SubmitRequest(ctx context.Context, payload remote.SubmitPayload) (*remote.SubmitResult, error) {
	if s.started != nil {
		s.started <- struct{}{}
		<-s.release
	}
	results := make([]remote.SignatureResult, 0, len(payload.Signatures))
	for _, sig := range payload.Signatures {
		results = append(results, remote.SignatureResult{SubjectID: sig.SubjectID, Success: true})
	}
	return &remote.SubmitResult{
		Success:         true,
		RemoteRequestID: "srv-1",
		ValidCount:      len(results),
		Results:         results,
	}, nil
}

func (s *stubSubmitter) FetchWorkers(ctx context.Context) ([]remote.Worker, error) {
	return nil, nil
}

func newTestApp(t *testing.T, prober *stubProber, sub *stubSubmitter) (*App, *bytes.Buffer) {
	t.Helper()
	ctx := context.Background()

	st, err := store.Open(ctx, store.Options{
		Path:         filepath.Join(t.TempDir(), "field.db"),
		DeviceSecret: []byte("test-secret"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	mon := connectivity.NewMonitor(prober, connectivity.Options{})
	eng := engine.New(st, sub, mon, engine.Options{ItemDelay: time.Millisecond})

	var out bytes.Buffer
	return &App{
		logger:  logging.NewSlogLogger(slog.New(slog.DiscardHandler)),
		store:   st,
		monitor: mon,
		engine:  eng,
		in:      bufio.NewReader(strings.NewReader("")),
		out:     &out,
	}, &out
}

func createPendingRequest(t *testing.T, a *App) *models.Request {
	t.Helper()
	ctx := context.Background()

	req, err := a.store.CreateRequest(ctx, models.RequestDraft{
		Kind:        "daily_talk",
		Title:       "Morning safety talk",
		RequesterID: "33333333-3",
	})
	require.NoError(t, err)

	_, err = a.store.AppendSignature(ctx, req.ID, models.SignatureDraft{
		SubjectID:  "11111111-1",
		Credential: "1234",
	})
	require.NoError(t, err)
	return req
}

func TestShutdown_ClosesStore(t *testing.T) {
	a, _ := newTestApp(t, &stubProber{ok: true}, &stubSubmitter{})
	a.shutdown()

	_, _, err := a.store.Counts(context.Background())
	assert.Error(t, err)
}

func TestStatus_ReportsVerifiedConnectivity(t *testing.T) {
	ctx := context.Background()
	prober := &stubProber{}
	a, out := newTestApp(t, prober, &stubSubmitter{})

	// before any probe nothing is verified, even though the link hint is up
	require.NoError(t, a.cmdStatus(ctx))
	assert.Contains(t, out.String(), "connectivity: offline")

	out.Reset()
	a.monitor.Check(ctx)
	require.NoError(t, a.cmdStatus(ctx))
	assert.Contains(t, out.String(), "connectivity: offline")

	out.Reset()
	prober.set(true)
	a.monitor.Check(ctx)
	require.NoError(t, a.cmdStatus(ctx))
	assert.Contains(t, out.String(), "connectivity: online")
}

func TestRetry_RefusedWhileSyncPassRunning(t *testing.T) {
	ctx := context.Background()
	sub := &stubSubmitter{
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	a, _ := newTestApp(t, &stubProber{ok: true}, sub)

	req := createPendingRequest(t, a)
	require.True(t, a.monitor.Check(ctx))

	done := make(chan []engine.Result, 1)
	go func() { done <- a.engine.SyncAll(ctx) }()

	<-sub.started
	err := a.cmdRetry(ctx, []string{req.ID})
	assert.ErrorIs(t, err, common.ErrorSyncInProgress)

	close(sub.release)
	results := <-done
	require.Len(t, results, 1)
	assert.True(t, results[0].Success)

	got, err := a.store.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)
}
