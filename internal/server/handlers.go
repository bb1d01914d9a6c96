package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/copyleftdev/uitest/internal/improve"
	"github.com/copyleftdev/uitest/internal/jobs"
	"github.com/copyleftdev/uitest/internal/uierr"
)

type APIHandler struct {
	jobs   *jobs.Manager
	logger *zap.Logger
}

func NewAPIHandler(jm *jobs.Manager, logger *zap.Logger) *APIHandler {
	return &APIHandler{
		jobs:   jm,
		logger: logger,
	}
}

// SubmitImproveRequest is an improvement run plus an optional URL notified
// when the job ends.
type SubmitImproveRequest struct {
	improve.Options
	CallbackURL string `json:"callbackUrl,omitempty"`
}

type SubmitImproveResponse struct {
	JobID string `json:"jobId"`
}

type errorResponse struct {
	Error string `json:"error"`
	Hint  string `json:"hint,omitempty"`
}

func (h *APIHandler) HandleSubmitImprove(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req SubmitImproveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		h.respondError(w, http.StatusBadRequest, "", "Invalid request body: %v", err)
		return
	}

	job, err := h.jobs.Submit(req.Options, req.CallbackURL)
	if err != nil {
		var ue *uierr.UserError
		switch {
		case errors.As(err, &ue):
			h.respondError(w, http.StatusBadRequest, ue.Hint, "%s", ue.Message)
		case errors.Is(err, jobs.ErrShuttingDown):
			h.respondError(w, http.StatusServiceUnavailable, "", "%s", err.Error())
		default:
			h.logger.Error("Error submitting job", zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "", "Failed to submit job: %v", err)
		}
		return
	}

	h.respondJSON(w, http.StatusAccepted, SubmitImproveResponse{JobID: job.ID.String()})
}

func (h *APIHandler) HandleGetJob(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "jobID")
	id, err := uuid.Parse(raw)
	if err != nil {
		h.respondError(w, http.StatusBadRequest, "", "Invalid job ID format: %v", err)
		return
	}

	job, err := h.jobs.Get(id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			h.respondError(w, http.StatusNotFound, "", "Job not found")
		} else {
			h.logger.Error("Error retrieving job", zap.String("job", raw), zap.Error(err))
			h.respondError(w, http.StatusInternalServerError, "", "Failed to retrieve job")
		}
		return
	}

	h.respondJSON(w, http.StatusOK, job)
}

func (h *APIHandler) respondJSON(w http.ResponseWriter, status int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("Error marshalling JSON response", zap.Error(err))
		h.respondError(w, http.StatusInternalServerError, "", "Failed to marshal JSON response")
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(response); err != nil {
		h.logger.Debug("Error writing JSON response", zap.Error(err))
	}
}

func (h *APIHandler) respondError(w http.ResponseWriter, status int, hint, format string, args ...any) {
	payload, err := json.Marshal(errorResponse{Error: fmt.Sprintf(format, args...), Hint: hint})
	if err != nil {
		payload = []byte(`{"error":"internal error"}`)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if _, err := w.Write(payload); err != nil {
		h.logger.Debug("Error writing error response", zap.Error(err))
	}
}
