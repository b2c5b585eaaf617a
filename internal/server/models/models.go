// Package models defines the records held by the signature authority:
// enrolled workers and recorded sign requests with their adjudicated
// signatures.
package models

import "time"

// Worker is one enrolled worker. PinHash is a bcrypt hash of the worker's
// PIN; the plaintext PIN is never stored.
type Worker struct {
	SubjectID string // normalized RUT
	FullName  string
	PinHash   []byte
	Enrolled  bool
	CreatedAt time.Time
}

// SignRequest is one recorded batch of signatures. DeviceID identifies the
// submitting field device, taken from its token.
type SignRequest struct {
	ID            string
	DeviceID      string
	Kind          string
	Title         string
	Description   string
	Location      string
	RequesterID   string
	RequesterName string
	CreatedAt     time.Time // capture time on the device
	ReceivedAt    time.Time
	Signatures    []SignatureRecord
}

// SignatureRecord is one adjudicated signature inside a recorded request.
// Valid is the authority's verdict; the credential itself is discarded after
// verification.
type SignatureRecord struct {
	ID          string
	SubjectID   string
	DisplayName string
	CapturedAt  time.Time
	Valid       bool
	Reason      string // empty when Valid
}
