package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-id/internal/facematch"
	"github.com/kozaktomas/face-id/internal/identity"
)

// EnrollRequest is the body of POST /identities.
type EnrollRequest struct {
	Label     string               `json:"label"`
	Detection *facematch.Detection `json:"detection"`
}

// EnrollResponse describes a newly enrolled identity together with the
// detection geometry it was enrolled from.
type EnrollResponse struct {
	ID         int64             `json:"id"`
	Label      string            `json:"label"`
	EnrolledAt time.Time         `json:"enrolled_at"`
	Box        *facematch.Box    `json:"box"`
	Landmarks  []facematch.Point `json:"landmarks"`
}

// IdentityListResponse is the body of GET /identities.
type IdentityListResponse struct {
	Identities []identity.Record `json:"identities"`
	Count      int               `json:"count"`
}

// IdentitiesHandler serves enrollment and identity lookups.
type IdentitiesHandler struct {
	store *identity.Store
}

// NewIdentitiesHandler creates a new identities handler
func NewIdentitiesHandler(store *identity.Store) *IdentitiesHandler {
	return &IdentitiesHandler{store: store}
}

// Create enrolls the face in the request under its label.
func (h *IdentitiesHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req EnrollRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if !req.Detection.HasFace() {
		respondError(w, http.StatusBadRequest, "no face detected")
		return
	}

	rec, err := h.store.Enroll(r.Context(), req.Label, req.Detection.Embedding)
	if err != nil {
		if errorStatus(err) == http.StatusInternalServerError {
			slog.ErrorContext(r.Context(), "enroll failed", "label", sanitizeForLog(req.Label), "error", err)
		}
		respondStoreError(w, err)
		return
	}

	box, landmarks := req.Detection.Geometry()
	respondJSON(w, http.StatusCreated, EnrollResponse{
		ID:         rec.ID,
		Label:      rec.Label,
		EnrolledAt: rec.EnrolledAt,
		Box:        box,
		Landmarks:  landmarks,
	})
}

// List returns enrolled identities in ID order, optionally filtered by ?q=.
func (h *IdentitiesHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")

	records := h.store.Records()
	out := make([]identity.Record, 0, len(records))
	for _, rec := range records {
		if facematch.MatchesQuery(rec.Label, query) {
			out = append(out, rec)
		}
	}

	respondJSON(w, http.StatusOK, IdentityListResponse{Identities: out, Count: len(out)})
}

// Get returns a single identity by ID.
func (h *IdentitiesHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid identity id")
		return
	}

	rec, ok := h.store.Get(id)
	if !ok {
		respondError(w, http.StatusNotFound, "identity not found")
		return
	}
	respondJSON(w, http.StatusOK, rec)
}
