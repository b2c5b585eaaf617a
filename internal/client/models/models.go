// Package models defines the records held by the local field store: signature
// collection requests, their captured signatures, cached worker snapshots and
// the sync audit log.
package models

import "time"

// SyncStatus is the per-request sync state machine:
//
//	pending -> syncing -> synced (terminal)
//	                   -> error  -> syncing (retry)
//
// syncing is transient: a completed engine pass always resolves it to synced
// or error. A row found in syncing at store open is the residue of a crash
// mid-flight and is demoted to error on recovery.
type SyncStatus string

const (
	StatusPending SyncStatus = "pending"
	StatusSyncing SyncStatus = "syncing"
	StatusSynced  SyncStatus = "synced"
	StatusError   SyncStatus = "error"
)

// Signature is one captured PIN-signature event, not yet confirmed by the
// remote authority. The credential is sealed at rest; plaintext exists only
// in the submit payload.
type Signature struct {
	ID               string
	SubjectID        string // normalized RUT
	SealedCredential []byte
	CredentialNonce  []byte
	DisplayName      string
	CapturedAt       time.Time
	// Validated is false until the remote authority adjudicates the owning
	// request; it is never set locally before the request is synced.
	Validated bool
}

// SignatureDraft is operator input for a new signature. Credential is the
// PIN as entered; the store seals it before persisting.
type SignatureDraft struct {
	SubjectID   string
	Credential  string
	DisplayName string
}

// Request is one unit of collected signatures sharing a common purpose,
// e.g. one daily-talk session.
type Request struct {
	ID            string
	Kind          string
	Title         string
	Description   string
	Location      string
	RequesterID   string
	RequesterName string
	// Signatures are ordered by capture; append/remove only.
	Signatures []Signature
	CreatedAt  time.Time

	SyncStatus SyncStatus
	SyncError  string
	SyncedAt   *time.Time
	// RemoteRequestID is assigned exactly once, by the remote authority,
	// when the batch is recorded.
	RemoteRequestID string
}

// Pending reports whether the request is in the sync work queue.
func (r *Request) Pending() bool {
	return r.SyncStatus == StatusPending || r.SyncStatus == StatusError
}

// RequestDraft is operator input for a new request. Metadata is copied at
// creation time and immutable afterwards.
type RequestDraft struct {
	Kind          string
	Title         string
	Description   string
	Location      string
	RequesterID   string
	RequesterName string
}

// CachedWorker is a denormalized snapshot of a worker's identity, held
// locally only so the field UI can show a friendly name before capture.
// Never authoritative, never involved in signature validation.
type CachedWorker struct {
	SubjectID string // normalized RUT
	FullName  string
	Enrolled  bool
	CachedAt  time.Time
}

// LogEvent classifies sync-log entries.
type LogEvent string

const (
	EventSyncStart   LogEvent = "sync_start"
	EventSyncSuccess LogEvent = "sync_success"
	EventSyncError   LogEvent = "sync_error"
)

// LogEntry is one append-only audit record of a sync attempt lifecycle
// event. Entries are never mutated; only the retention sweep removes them.
type LogEntry struct {
	ID        string
	RequestID string
	Event     LogEvent
	Message   string
	Details   string
	CreatedAt time.Time
}
