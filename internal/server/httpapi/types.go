package httpapi

import "time"

// The JSON shapes below are the wire contract with the field client. Keep
// them in step with internal/client/remote.

type signatureSubmission struct {
	SubjectID   string    `json:"subject_id"`
	Credential  string    `json:"credential"`
	DisplayName string    `json:"display_name,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

type submitPayload struct {
	Kind          string                `json:"kind"`
	Title         string                `json:"title"`
	Description   string                `json:"description,omitempty"`
	Location      string                `json:"location,omitempty"`
	RequesterID   string                `json:"requester_id"`
	RequesterName string                `json:"requester_name,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	Signatures    []signatureSubmission `json:"signatures"`
}

type signatureResult struct {
	SubjectID string `json:"subject_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

type submitResult struct {
	Success         bool              `json:"success"`
	RemoteRequestID string            `json:"request_id,omitempty"`
	ValidCount      int               `json:"valid_count"`
	Results         []signatureResult `json:"results,omitempty"`
	Error           string            `json:"error,omitempty"`
}

type workerView struct {
	SubjectID string `json:"subject_id"`
	FullName  string `json:"full_name"`
	Enrolled  bool   `json:"enrolled"`
}

type enrollRequest struct {
	SubjectID string `json:"subject_id"`
	FullName  string `json:"full_name"`
	Pin       string `json:"pin"`
}
