package handlers

import (
	"net/http"

	"github.com/kozaktomas/face-id/internal/identity"
)

// StatsHandler handles statistics endpoints
type StatsHandler struct {
	store *identity.Store
}

// NewStatsHandler creates a new stats handler
func NewStatsHandler(store *identity.Store) *StatsHandler {
	return &StatsHandler{store: store}
}

// Get returns record count, index strategy and query counters.
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.store.Stats())
}
