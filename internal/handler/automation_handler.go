package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appErrors "github.com/unclebandit/mailflow/internal/errors"
	"github.com/unclebandit/mailflow/internal/model"
	"github.com/unclebandit/mailflow/internal/service"
)

type AutomationReader interface {
	GetAutomationWithStats(ctx context.Context, ownerID, id uuid.UUID) (*service.AutomationDetails, error)
	ListLogs(ctx context.Context, ownerID, id uuid.UUID, limit int) ([]*model.AutomationLog, error)
}

// AutomationHandler serves owner-scoped automation reads.
type AutomationHandler struct {
	Service AutomationReader
	Log     *zap.Logger
}

func (h *AutomationHandler) ids(w http.ResponseWriter, r *http.Request) (uuid.UUID, uuid.UUID, bool) {
	owner, err := uuid.Parse(r.Header.Get("X-User-ID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing or invalid X-User-ID header")
		return uuid.Nil, uuid.Nil, false
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid automation ID")
		return uuid.Nil, uuid.Nil, false
	}
	return owner, id, true
}

func (h *AutomationHandler) fail(w http.ResponseWriter, err error) {
	if appErrors.IsNotFound(err) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	h.Log.Error("automation read failed", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

// GetAutomation handles GET /automations/{id}.
func (h *AutomationHandler) GetAutomation(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	details, err := h.Service.GetAutomationWithStats(r.Context(), owner, id)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, details)
}

// ListLogs handles GET /automations/{id}/logs?limit=.
func (h *AutomationHandler) ListLogs(w http.ResponseWriter, r *http.Request) {
	owner, id, ok := h.ids(w, r)
	if !ok {
		return
	}
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if l, err := strconv.Atoi(raw); err == nil && l > 0 {
			limit = l
		}
	}
	logs, err := h.Service.ListLogs(r.Context(), owner, id, limit)
	if err != nil {
		h.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": logs})
}
