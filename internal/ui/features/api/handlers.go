// Package api serves the JSON endpoints remote table clients fetch through.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/leapstack-labs/certdesk/internal/refresh"
	"github.com/leapstack-labs/certdesk/internal/state"
	"github.com/leapstack-labs/certdesk/pkg/core"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 1 << 20

// Handlers provides the JSON API.
type Handlers struct {
	store  core.Store
	bus    *refresh.Bus
	logger *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(store core.Store, bus *refresh.Bus, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{store: store, bus: bus, logger: logger}
}

// Query answers a paginated fetch.
func (h *Handlers) Query(w http.ResponseWriter, r *http.Request) {
	var q core.PageQuery
	if !h.decode(w, r, &q) {
		return
	}
	page, err := h.store.ListCertificates(r.Context(), q)
	if err != nil {
		h.fail(w, err)
		return
	}
	if page.Data == nil {
		page.Data = []core.Row{}
	}
	h.respond(w, page)
}

// Export answers an export fetch with the entire matching set.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	var req core.ExportRequest
	if !h.decode(w, r, &req) {
		return
	}
	rows, err := h.store.ExportCertificates(r.Context(), req)
	if err != nil {
		h.fail(w, err)
		return
	}
	if rows == nil {
		rows = []core.Row{}
	}
	h.respond(w, core.ExportResponse{Data: rows})
}

// Refresh pulses the bus so every mounted view reloads.
func (h *Handlers) Refresh(w http.ResponseWriter, _ *http.Request) {
	h.bus.Pulse()
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func (h *Handlers) fail(w http.ResponseWriter, err error) {
	if errors.Is(err, state.ErrInvalidQuery) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.logger.Error("api request failed", slog.Any("error", err))
	http.Error(w, "internal error", http.StatusInternalServerError)
}

func (h *Handlers) respond(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", slog.Any("error", err))
	}
}
