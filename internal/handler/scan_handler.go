package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/queue"
	"github.com/unclebandit/mailflow/internal/service"
)

type ScanRunner interface {
	RunScheduled(ctx context.Context) (*service.ScheduledSummary, error)
	RunReengagement(ctx context.Context) (*service.ReengagementSummary, error)
}

// ScanHandler triggers the time-based and re-engagement scans, inline or through the queue.
type ScanHandler struct {
	Scans ScanRunner
	Queue queue.Queue
	Topic string
	Log   *zap.Logger
}

// RunScan handles POST /scans/{kind}.
func (h *ScanHandler) RunScan(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	if !queue.ValidScanKind(kind) {
		writeError(w, http.StatusNotFound, "unknown scan kind")
		return
	}

	if r.URL.Query().Get("async") == "true" {
		h.enqueue(w, r, kind)
		return
	}

	var (
		summary any
		err     error
	)
	switch kind {
	case queue.ScanScheduled:
		var s *service.ScheduledSummary
		s, err = h.Scans.RunScheduled(r.Context())
		if err == nil {
			summary = struct {
				Success bool `json:"success"`
				*service.ScheduledSummary
			}{true, s}
		}
	case queue.ScanReengagement:
		var s *service.ReengagementSummary
		s, err = h.Scans.RunReengagement(r.Context())
		if err == nil {
			summary = struct {
				Success bool `json:"success"`
				*service.ReengagementSummary
			}{true, s}
		}
	}

	if err != nil {
		if errors.Is(err, appErrors.ErrScanInProgress) {
			writeError(w, http.StatusConflict, err.Error())
			return
		}
		h.Log.Error("scan failed", zap.String("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "scan failed")
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

func (h *ScanHandler) enqueue(w http.ResponseWriter, r *http.Request, kind string) {
	if h.Queue == nil {
		writeError(w, http.StatusServiceUnavailable, "scan queue not configured")
		return
	}
	job := queue.ScanJob{Kind: kind, RequestedAt: time.Now().UTC()}
	if err := h.Queue.Publish(r.Context(), h.Topic, job); err != nil {
		h.Log.Error("failed to enqueue scan", zap.String("kind", kind), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to enqueue scan")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true, "queued": kind})
}
