package remote

import "time"

// SignatureSubmission is one captured signature inside a batch submit.
// Credential is the PIN in the clear; it travels only in this payload.
type SignatureSubmission struct {
	SubjectID   string    `json:"subject_id"`
	Credential  string    `json:"credential"`
	DisplayName string    `json:"display_name,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// SubmitPayload is one whole request submitted to the remote authority in a
// single call.
type SubmitPayload struct {
	Kind          string                `json:"kind"`
	Title         string                `json:"title"`
	Description   string                `json:"description,omitempty"`
	Location      string                `json:"location,omitempty"`
	RequesterID   string                `json:"requester_id"`
	RequesterName string                `json:"requester_name,omitempty"`
	CreatedAt     time.Time             `json:"created_at"`
	Signatures    []SignatureSubmission `json:"signatures"`
}

// SignatureResult is the remote's per-signature adjudication.
type SignatureResult struct {
	SubjectID string `json:"subject_id"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// SubmitResult is the remote's answer to a batch submit. Success false means
// the batch as a whole was rejected; Success true means the batch was
// recorded and adjudicated, even if some signatures were individually
// invalid (ValidCount < len(Results)).
type SubmitResult struct {
	Success         bool              `json:"success"`
	RemoteRequestID string            `json:"request_id,omitempty"`
	ValidCount      int               `json:"valid_count"`
	Results         []SignatureResult `json:"results,omitempty"`
	Error           string            `json:"error,omitempty"`
}

// Worker is one enrolled-roster entry served by the remote authority.
type Worker struct {
	SubjectID string `json:"subject_id"`
	FullName  string `json:"full_name"`
	Enrolled  bool   `json:"enrolled"`
}
