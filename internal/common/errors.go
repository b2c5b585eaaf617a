// Package common defines shared constants and sentinel errors used across
// client and server layers of fieldsign. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// ErrorStorage marks failures of the local persistence layer itself
	// (disk full, corruption, locked database). These are never retried
	// automatically: a storage failure means captured data may not be
	// durable, which is the one outcome this subsystem exists to prevent.
	ErrorStorage = errors.New("storage error")

	// Validation errors, rejected before any storage or network mutation.
	ErrorValidation       = errors.New("validation error")
	ErrorDuplicateSubject = errors.New("subject already signed")
	ErrorEmptyRequest     = errors.New("request has no signatures")
	ErrorEmptyCredential  = errors.New("empty credential")
	ErrorInvalidSubjectID = errors.New("invalid subject identifier")

	// Request lifecycle errors.
	ErrorRequestSynced  = errors.New("request already synced")
	ErrorRequestSyncing = errors.New("request is currently syncing")

	// Sync engine errors.
	ErrorSyncInProgress = errors.New("sync already in progress")
	ErrorOffline        = errors.New("device is offline")

	// ErrorTransport marks network-level failures (unreachable host,
	// timeout, non-success HTTP status) talking to the remote authority.
	ErrorTransport = errors.New("transport error")

	// Authority-side errors.
	ErrInvalidToken      = errors.New("invalid token")
	ErrorDuplicateWorker = errors.New("worker already enrolled")
)
