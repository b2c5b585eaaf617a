package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/crypto/bcrypt"

	"github.com/safetrack/fieldsign/internal/common"
	"github.com/safetrack/fieldsign/internal/rut"
	"github.com/safetrack/fieldsign/internal/server/models"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.storage.Ping(r.Context()); err != nil {
		http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// handleSubmit records one batch of signatures. The batch is accepted or
// rejected as a whole; individual signatures are adjudicated against the
// enrolled roster and the verdict travels back per signature.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var payload submitPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, submitResult{Error: "malformed payload"})
		return
	}

	if payload.Title == "" || payload.RequesterID == "" {
		writeJSON(w, http.StatusBadRequest, submitResult{Error: "title and requester_id are required"})
		return
	}
	if len(payload.Signatures) == 0 {
		writeJSON(w, http.StatusBadRequest, submitResult{Error: "request has no signatures"})
		return
	}

	req := &models.SignRequest{
		ID:            uuid.NewString(),
		DeviceID:      deviceID(ctx),
		Kind:          payload.Kind,
		Title:         payload.Title,
		Description:   payload.Description,
		Location:      payload.Location,
		RequesterID:   payload.RequesterID,
		RequesterName: payload.RequesterName,
		CreatedAt:     payload.CreatedAt,
		ReceivedAt:    time.Now(),
	}

	results := make([]signatureResult, 0, len(payload.Signatures))
	validCount := 0
	for _, sub := range payload.Signatures {
		rec := s.adjudicate(ctx, sub)
		if rec.Valid {
			validCount++
		}
		req.Signatures = append(req.Signatures, rec)
		results = append(results, signatureResult{
			SubjectID: rec.SubjectID,
			Success:   rec.Valid,
			Error:     rec.Reason,
		})
	}

	if err := s.storage.CreateSignRequest(ctx, req); err != nil {
		s.logger.Error(ctx, "recording sign request", "error", err)
		writeJSON(w, http.StatusInternalServerError, submitResult{Error: "storage failure"})
		return
	}

	s.logger.Info(ctx, "sign request recorded",
		"request_id", req.ID, "device_id", req.DeviceID,
		"signatures", len(req.Signatures), "valid", validCount)

	writeJSON(w, http.StatusOK, submitResult{
		Success:         true,
		RemoteRequestID: req.ID,
		ValidCount:      validCount,
		Results:         results,
	})
}

// adjudicate checks one submitted signature against the enrolled roster.
func (s *Server) adjudicate(ctx context.Context, sub signatureSubmission) models.SignatureRecord {
	rec := models.SignatureRecord{
		ID:          uuid.NewString(),
		SubjectID:   sub.SubjectID,
		DisplayName: sub.DisplayName,
		CapturedAt:  sub.CapturedAt,
	}

	normalized, err := rut.Normalize(sub.SubjectID)
	if err != nil || !rut.Valid(normalized) {
		rec.Reason = "invalid subject id"
		return rec
	}
	rec.SubjectID = normalized

	worker, err := s.storage.GetWorker(ctx, normalized)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			rec.Reason = "unknown worker"
		} else {
			rec.Reason = "roster lookup failed"
		}
		return rec
	}
	if !worker.Enrolled {
		rec.Reason = "worker not enrolled"
		return rec
	}

	if bcrypt.CompareHashAndPassword(worker.PinHash, []byte(sub.Credential)) != nil {
		rec.Reason = "credential mismatch"
		return rec
	}

	rec.Valid = true
	return rec
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	req, err := s.storage.GetSignRequest(r.Context(), id)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			http.Error(w, "not found", http.StatusNotFound)
			return
		}
		s.logger.Error(r.Context(), "loading sign request", "error", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

func (s *Server) handleListWorkers(w http.ResponseWriter, r *http.Request) {
	workers, err := s.storage.ListWorkers(r.Context())
	if err != nil {
		s.logger.Error(r.Context(), "listing workers", "error", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	views := make([]workerView, 0, len(workers))
	for _, wk := range workers {
		views = append(views, workerView{
			SubjectID: wk.SubjectID,
			FullName:  wk.FullName,
			Enrolled:  wk.Enrolled,
		})
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleEnrollWorker(w http.ResponseWriter, r *http.Request) {
	var req enrollRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "malformed payload", http.StatusBadRequest)
		return
	}

	normalized, err := rut.Normalize(req.SubjectID)
	if err != nil || !rut.Valid(normalized) {
		http.Error(w, "invalid subject id", http.StatusBadRequest)
		return
	}
	if req.FullName == "" || req.Pin == "" {
		http.Error(w, "full_name and pin are required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Pin), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "hashing failure", http.StatusInternalServerError)
		return
	}

	worker := &models.Worker{
		SubjectID: normalized,
		FullName:  req.FullName,
		PinHash:   hash,
		Enrolled:  true,
		CreatedAt: time.Now(),
	}
	if err := s.storage.EnrollWorker(r.Context(), worker); err != nil {
		if errors.Is(err, common.ErrorDuplicateWorker) {
			http.Error(w, "worker already enrolled", http.StatusConflict)
			return
		}
		s.logger.Error(r.Context(), "enrolling worker", "error", err)
		http.Error(w, "storage failure", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusCreated, workerView{
		SubjectID: worker.SubjectID,
		FullName:  worker.FullName,
		Enrolled:  worker.Enrolled,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
