package handlers

import (
	"log/slog"
	"net/http"

	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/identity"
)

// IdentifyRequest is the body of POST /identify.
type IdentifyRequest struct {
	Detection *facematch.Detection `json:"detection"`
}

// IdentifyResponse is the match result plus the detection geometry.
// Unknown faces have matched=false and null id, label and distance.
type IdentifyResponse struct {
	identity.MatchResult
	Box       *facematch.Box    `json:"box"`
	Landmarks []facematch.Point `json:"landmarks"`
}

// IdentifyHandler answers "who is this face".
type IdentifyHandler struct {
	store *identity.Store
}

// NewIdentifyHandler creates a new identify handler
func NewIdentifyHandler(store *identity.Store) *IdentifyHandler {
	return &IdentifyHandler{store: store}
}

// Identify finds the nearest enrolled identity for the detection.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	var req IdentifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	var query identity.Embedding
	if req.Detection.HasFace() {
		query = req.Detection.Embedding
	}

	res, err := h.store.FindNearest(r.Context(), query)
	if err != nil {
		if errorStatus(err) == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "identify failed", "error", err)
		}
		respondStoreError(w, err)
		return
	}

	box, landmarks := req.Detection.Geometry()
	respondJSON(w, http.StatusOK, IdentifyResponse{
		MatchResult: res,
		Box:         box,
		Landmarks:   landmarks,
	})
}
