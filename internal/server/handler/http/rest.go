// Package http provides the HTTP handlers of the SiteKeeper remote store:
// the generic table API, realtime change feed, object storage, and
// account endpoints.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/atinyakov/SiteKeeper/internal/middleware"
	"github.com/atinyakov/SiteKeeper/internal/models"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// TableService defines the table operations required by the RestHandler.
type TableService interface {
	Select(ctx context.Context, userID string, table models.Table, filter models.Filter) ([]map[string]any, error)
	Insert(ctx context.Context, userID string, table models.Table, row map[string]any) (map[string]any, error)
	Upsert(ctx context.Context, userID string, table models.Table, row map[string]any, conflictKey string) (map[string]any, error)
	Update(ctx context.Context, userID string, table models.Table, filter models.Filter, patch map[string]any) error
	Delete(ctx context.Context, userID string, table models.Table, filter models.Filter) error
}

// RestHandler serves /rest/v1/{table}.
type RestHandler struct {
	Tables TableService
	Log    *zap.Logger
}

const onConflictParam = "on_conflict"

// Select handles GET: rows matching the query-string filter.
func (h *RestHandler) Select(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	rows, err := h.Tables.Select(r.Context(), middleware.GetUserIDFromContext(r.Context()), table(r), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// Insert handles POST. With ?on_conflict=col the write is an upsert.
func (h *RestHandler) Insert(w http.ResponseWriter, r *http.Request) {
	row, ok := decodeRow(w, r)
	if !ok {
		return
	}
	ctx := r.Context()
	userID := middleware.GetUserIDFromContext(ctx)

	var (
		out map[string]any
		err error
	)
	if r.URL.Query().Has(onConflictParam) {
		out, err = h.Tables.Upsert(ctx, userID, table(r), row, r.URL.Query().Get(onConflictParam))
	} else {
		out, err = h.Tables.Insert(ctx, userID, table(r), row)
	}
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, out)
}

// Update handles PATCH: applies the body to rows matching the filter.
func (h *RestHandler) Update(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	patch, ok := decodeRow(w, r)
	if !ok {
		return
	}
	if err := h.Tables.Update(r.Context(), middleware.GetUserIDFromContext(r.Context()), table(r), filter, patch); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Delete handles DELETE: permanently removes rows matching the filter.
func (h *RestHandler) Delete(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	if err := h.Tables.Delete(r.Context(), middleware.GetUserIDFromContext(r.Context()), table(r), filter); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *RestHandler) filter(w http.ResponseWriter, r *http.Request) (models.Filter, bool) {
	f, err := models.ParseFilter(r.URL.Query(), onConflictParam)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return nil, false
	}
	return f, true
}

func (h *RestHandler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrUnknownTable),
		errors.Is(err, models.ErrUnknownColumn),
		errors.Is(err, models.ErrMissingFilter),
		errors.Is(err, models.ErrInvalidValue):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, models.ErrDuplicate):
		http.Error(w, "duplicate key", http.StatusConflict)
	case errors.Is(err, models.ErrReference):
		http.Error(w, "referenced row does not exist", http.StatusUnprocessableEntity)
	default:
		if h.Log != nil {
			h.Log.Error("table operation failed", zap.Error(err))
		}
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func table(r *http.Request) models.Table {
	return models.Table(chi.URLParam(r, "table"))
}

func decodeRow(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var row map[string]any
	if err := dec.Decode(&row); err != nil || row == nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return nil, false
	}
	return row, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
