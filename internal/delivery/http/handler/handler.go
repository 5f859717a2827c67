package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/user/fetch-pipeline/internal/delivery/http/response"
	"github.com/user/fetch-pipeline/internal/entity"
	"github.com/user/fetch-pipeline/internal/repository"
)

// ProgressSource exposes the state of the current run.
type ProgressSource interface {
	State() entity.State
	Progress() entity.Progress
}

type Handler struct {
	progress ProgressSource
	records  repository.RecordReader
	logger   *zap.Logger
}

// NewHandler builds the handler. records may be nil, in which case record
// lookups answer 404.
func NewHandler(progress ProgressSource, records repository.RecordReader, logger *zap.Logger) *Handler {
	return &Handler{progress: progress, records: records, logger: logger}
}

func (h *Handler) HandleHealthCheck(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, response.HealthResponse{Status: "ok", State: string(h.progress.State())})
}

func (h *Handler) HandleProgress(w http.ResponseWriter, r *http.Request) {
	p := h.progress.Progress()
	resp := response.ProgressResponse{
		RunID:   p.RunID,
		BatchID: p.BatchID,
		State:   string(h.progress.State()),
		Done:    p.Done,
		Total:   p.Total,
		OK:      p.OK,
		NG:      p.NG,
		At:      p.At,
	}
	if p.Total > 0 {
		resp.Percent = float64(p.Done) * 100 / float64(p.Total)
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) HandleGetRecord(w http.ResponseWriter, r *http.Request) {
	batchID, key := chi.URLParam(r, "batchID"), chi.URLParam(r, "key")
	if h.records == nil {
		h.writeJSONError(w, "Record lookup is not available", http.StatusNotFound)
		return
	}

	rec, err := h.records.FindRecord(r.Context(), batchID, key)
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			h.writeJSONError(w, "Record not found", http.StatusNotFound)
			return
		}
		h.logger.Error("failed to find record", zap.String("batch_id", batchID), zap.String("key", key), zap.Error(err))
		h.writeJSONError(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	h.writeJSON(w, http.StatusOK, response.RecordResponse{
		BatchID:   batchID,
		Key:       rec.Key,
		Kind:      rec.Kind,
		Version:   rec.Version,
		Fields:    rec.Fields,
		FetchedAt: rec.FetchedAt,
	})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write JSON response", zap.Error(err))
	}
}

func (h *Handler) writeJSONError(w http.ResponseWriter, message string, status int) {
	h.writeJSON(w, status, response.ErrorResponse{Error: message})
}
