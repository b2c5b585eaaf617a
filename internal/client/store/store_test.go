package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/safetrack/fieldsign/internal/client/models"
	"github.com/safetrack/fieldsign/internal/common"
)

func openStore(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), Options{
		Path:         path,
		DeviceSecret: []byte("test-device-secret"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func newStore(t *testing.T) *Store {
	t.Helper()
	return openStore(t, filepath.Join(t.TempDir(), "field.db"))
}

func draft() models.RequestDraft {
	return models.RequestDraft{
		Kind:          "daily_talk",
		Title:         "Daily Talk — Fall Protection",
		Description:   "Morning safety briefing",
		Location:      "Site A",
		RequesterID:   "77.777.777-7",
		RequesterName: "J. Supervisor",
	}
}

func TestCreateRequest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	assert.NotEmpty(t, req.ID)
	assert.Equal(t, models.StatusPending, req.SyncStatus)
	assert.Empty(t, req.Signatures)
	assert.False(t, req.CreatedAt.IsZero())

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, req.ID, got.ID)
	assert.Equal(t, "Daily Talk — Fall Protection", got.Title)
	assert.Equal(t, models.StatusPending, got.SyncStatus)
}

func TestCreateRequest_Validation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	d := draft()
	d.Title = "  "
	_, err := s.CreateRequest(ctx, d)
	require.ErrorIs(t, err, common.ErrorValidation)

	d = draft()
	d.RequesterID = ""
	_, err = s.CreateRequest(ctx, d)
	require.ErrorIs(t, err, common.ErrorValidation)
}

func TestGetRequest_NotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.GetRequest(context.Background(), "missing")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestAppendSignature_PersistsAcrossRestart(t *testing.T) {
	path := filepath.Join(t.TempDir(), "field.db")
	ctx := context.Background()

	s := openStore(t, path)
	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	subjects := []string{"11.111.111-1", "22.222.222-2", "33.333.333-3"}
	for _, subject := range subjects {
		_, err := s.AppendSignature(ctx, req.ID, models.SignatureDraft{
			SubjectID:  subject,
			Credential: "1234",
		})
		require.NoError(t, err)
	}

	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "99.999.999-9", Credential: "4321"})
	require.NoError(t, err)
	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Signatures, 4)
	require.NoError(t, s.RemoveSignature(ctx, req.ID, got.Signatures[3].ID))

	require.NoError(t, s.Close())

	// simulated restart
	s2 := openStore(t, path)
	got, err = s2.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	require.Len(t, got.Signatures, 3)
	for i, subject := range []string{"11111111-1", "22222222-2", "33333333-3"} {
		assert.Equal(t, subject, got.Signatures[i].SubjectID)
		assert.False(t, got.Signatures[i].Validated)
	}

	// credentials stay recoverable with the same device secret
	pin, err := s2.RevealCredential(&got.Signatures[0])
	require.NoError(t, err)
	assert.Equal(t, "1234", string(pin))
}

func TestAppendSignature_CredentialSealedAtRest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	sig, err := s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "1234"})
	require.NoError(t, err)

	assert.NotContains(t, string(sig.SealedCredential), "1234")

	var stored []byte
	require.NoError(t, s.db.QueryRow(`SELECT sealed_credential FROM signatures WHERE id = ?`, sig.ID).Scan(&stored))
	assert.NotContains(t, string(stored), "1234")
}

func TestAppendSignature_DuplicateSubjectRejected(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "1234"})
	require.NoError(t, err)

	// same subject in a different surface form
	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "11111111-1", Credential: "9999"})
	require.ErrorIs(t, err, common.ErrorDuplicateSubject)

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Len(t, got.Signatures, 1)
}

func TestAppendSignature_Validation(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	tests := []struct {
		name    string
		draft   models.SignatureDraft
		wantErr error
	}{
		{name: "bad subject", draft: models.SignatureDraft{SubjectID: "not-a-rut!", Credential: "1234"}, wantErr: common.ErrorInvalidSubjectID},
		{name: "empty credential", draft: models.SignatureDraft{SubjectID: "11.111.111-1", Credential: ""}, wantErr: common.ErrorEmptyCredential},
		{name: "short credential", draft: models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "12"}, wantErr: common.ErrorValidation},
		{name: "non-digit credential", draft: models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "12a4"}, wantErr: common.ErrorValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.AppendSignature(ctx, req.ID, tt.draft)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, got.Signatures)
}

func TestAppendSignature_TerminalStateGuards(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)
	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "1234"})
	require.NoError(t, err)

	require.NoError(t, s.MarkSyncing(ctx, req.ID))
	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "22.222.222-2", Credential: "1234"})
	require.ErrorIs(t, err, common.ErrorRequestSyncing)

	require.NoError(t, s.MarkSynced(ctx, req.ID, "srv-1", nil))
	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "22.222.222-2", Credential: "1234"})
	require.ErrorIs(t, err, common.ErrorRequestSynced)

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	err = s.RemoveSignature(ctx, req.ID, got.Signatures[0].ID)
	require.ErrorIs(t, err, common.ErrorRequestSynced)
}

func TestDeleteRequest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	require.NoError(t, s.DeleteRequest(ctx, req.ID))
	_, err = s.GetRequest(ctx, req.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.ErrorIs(t, s.DeleteRequest(ctx, req.ID), common.ErrorNotFound)
}

func TestDeleteRequest_RefusedWhileSyncingOrSynced(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	require.NoError(t, s.MarkSyncing(ctx, req.ID))
	require.ErrorIs(t, s.DeleteRequest(ctx, req.ID), common.ErrorRequestSyncing)

	require.NoError(t, s.MarkSynced(ctx, req.ID, "srv-1", nil))
	require.ErrorIs(t, s.DeleteRequest(ctx, req.ID), common.ErrorRequestSynced)
}

func TestListPending_CreationOrder(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	var ids []string
	for i := 0; i < 3; i++ {
		i := i
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Minute) }
		req, err := s.CreateRequest(ctx, draft())
		require.NoError(t, err)
		ids = append(ids, req.ID)
	}

	// middle one failed once; still part of the queue, same order
	require.NoError(t, s.MarkSyncing(ctx, ids[1]))
	require.NoError(t, s.MarkSyncError(ctx, ids[1], "timeout"))

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i := range ids {
		assert.Equal(t, ids[i], pending[i].ID)
	}

	all, err := s.ListRequests(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, ids[2], all[0].ID) // newest first
}

func TestMarkTransitions(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)
	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "1234"})
	require.NoError(t, err)
	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "22.222.222-2", Credential: "1234"})
	require.NoError(t, err)

	require.NoError(t, s.MarkSyncing(ctx, req.ID))
	require.ErrorIs(t, s.MarkSyncing(ctx, req.ID), common.ErrorRequestSyncing)

	require.NoError(t, s.MarkSynced(ctx, req.ID, "srv-42", []string{"11111111-1"}))

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSynced, got.SyncStatus)
	assert.Equal(t, "srv-42", got.RemoteRequestID)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, got.Signatures[0].Validated)
	assert.False(t, got.Signatures[1].Validated)

	// terminal: no further transitions
	require.ErrorIs(t, s.MarkSyncing(ctx, req.ID), common.ErrorRequestSynced)
	require.ErrorIs(t, s.MarkSyncError(ctx, req.ID, "late failure"), common.ErrorRequestSynced)
}

func TestMarkSyncError_ReturnsToQueue(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	require.NoError(t, s.MarkSyncing(ctx, req.ID))
	require.NoError(t, s.MarkSyncError(ctx, req.ID, "connection refused"))

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.SyncStatus)
	assert.Equal(t, "connection refused", got.SyncError)

	pending, err := s.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)

	// a retry is allowed from error
	require.NoError(t, s.MarkSyncing(ctx, req.ID))
	got, err = s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Empty(t, got.SyncError)
}

func TestUpdateRequest(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	req.Title = "Daily Talk — Fall Protection (rev 2)"
	req.Location = "Site B"
	require.NoError(t, s.UpdateRequest(ctx, req))

	got, err := s.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, "Daily Talk — Fall Protection (rev 2)", got.Title)
	assert.Equal(t, "Site B", got.Location)

	require.NoError(t, s.MarkSyncing(ctx, req.ID))
	require.NoError(t, s.MarkSynced(ctx, req.ID, "srv-1", nil))
	got.Title = "too late"
	require.ErrorIs(t, s.UpdateRequest(ctx, got), common.ErrorRequestSynced)
}

func TestOpen_RecoversInterruptedSync(t *testing.T) {
	path := filepath.Join(t.TempDir(), "field.db")
	ctx := context.Background()

	s := openStore(t, path)
	req, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)
	_, err = s.AppendSignature(ctx, req.ID, models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "1234"})
	require.NoError(t, err)
	require.NoError(t, s.MarkSyncing(ctx, req.ID))

	// crash: the process dies mid network call, leaving syncing on disk
	require.NoError(t, s.Close())

	s2 := openStore(t, path)
	got, err := s2.GetRequest(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusError, got.SyncStatus)
	assert.Equal(t, "sync interrupted by restart", got.SyncError)

	entries, err := s2.LogEntries(ctx, req.ID)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	assert.Equal(t, models.EventSyncError, entries[0].Event)
	assert.Equal(t, "sync interrupted by restart", entries[0].Message)
}

func TestCounts(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	reqCount, sigCount, err := s.Counts(ctx)
	require.NoError(t, err)
	assert.Zero(t, reqCount)
	assert.Zero(t, sigCount)

	r1, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)
	r2, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	for _, subject := range []string{"11.111.111-1", "22.222.222-2", "33.333.333-3"} {
		_, err := s.AppendSignature(ctx, r1.ID, models.SignatureDraft{SubjectID: subject, Credential: "1234"})
		require.NoError(t, err)
	}
	_, err = s.AppendSignature(ctx, r2.ID, models.SignatureDraft{SubjectID: "11.111.111-1", Credential: "1234"})
	require.NoError(t, err)

	reqCount, sigCount, err = s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, reqCount)
	assert.Equal(t, 4, sigCount)

	require.NoError(t, s.MarkSyncing(ctx, r1.ID))
	require.NoError(t, s.MarkSynced(ctx, r1.ID, "srv-1", nil))

	reqCount, sigCount, err = s.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, reqCount)
	assert.Equal(t, 1, sigCount)
}

func TestPurgeSynced(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	old := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return old }

	synced, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)
	require.NoError(t, s.MarkSyncing(ctx, synced.ID))
	require.NoError(t, s.MarkSynced(ctx, synced.ID, "srv-1", nil))

	stillPending, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)

	s.now = func() time.Time { return old.AddDate(0, 2, 0) }

	recent, err := s.CreateRequest(ctx, draft())
	require.NoError(t, err)
	require.NoError(t, s.MarkSyncing(ctx, recent.ID))
	require.NoError(t, s.MarkSynced(ctx, recent.ID, "srv-2", nil))

	n, err := s.PurgeSynced(ctx, old.AddDate(0, 1, 0))
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.GetRequest(ctx, synced.ID)
	require.ErrorIs(t, err, common.ErrorNotFound)
	_, err = s.GetRequest(ctx, stillPending.ID)
	require.NoError(t, err)
	_, err = s.GetRequest(ctx, recent.ID)
	require.NoError(t, err)
}

func TestWorkerCache(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	err := s.CacheWorkers(ctx, []models.CachedWorker{
		{SubjectID: "11.111.111-1", FullName: "Ana Díaz", Enrolled: true},
		{SubjectID: "22222222-2", FullName: "Beto Rojas", Enrolled: false},
		{SubjectID: "garbage!!", FullName: "skipped"},
	})
	require.NoError(t, err)

	w, err := s.GetCachedWorker(ctx, "11111111-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Díaz", w.FullName)
	assert.True(t, w.Enrolled)
	assert.False(t, w.CachedAt.IsZero())

	// refresh upserts
	err = s.CacheWorkers(ctx, []models.CachedWorker{{SubjectID: "11.111.111-1", FullName: "Ana Díaz P.", Enrolled: true}})
	require.NoError(t, err)
	w, err = s.GetCachedWorker(ctx, "11.111.111-1")
	require.NoError(t, err)
	assert.Equal(t, "Ana Díaz P.", w.FullName)

	_, err = s.GetCachedWorker(ctx, "33.333.333-3")
	require.ErrorIs(t, err, common.ErrorNotFound)

	require.NoError(t, s.ClearCachedWorkers(ctx))
	_, err = s.GetCachedWorker(ctx, "11.111.111-1")
	require.ErrorIs(t, err, common.ErrorNotFound)
}

func TestLogEntries_NewestFirstAndFiltered(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, event := range []models.LogEvent{models.EventSyncStart, models.EventSyncError, models.EventSyncStart, models.EventSyncSuccess} {
		i := i
		s.now = func() time.Time { return base.Add(time.Duration(i) * time.Second) }
		requestID := "req-a"
		if i == 1 {
			requestID = "req-b"
		}
		_, err := s.AppendLogEntry(ctx, requestID, event, string(event), "")
		require.NoError(t, err)
	}

	all, err := s.LogEntries(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 4)
	assert.Equal(t, models.EventSyncSuccess, all[0].Event)
	assert.Equal(t, models.EventSyncStart, all[3].Event)

	forA, err := s.LogEntries(ctx, "req-a")
	require.NoError(t, err)
	require.Len(t, forA, 3)
	for _, e := range forA {
		assert.Equal(t, "req-a", e.RequestID)
	}
}
