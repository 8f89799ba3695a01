package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-id/internal/identity"
)

// testStore creates a memory-only store of dimension 2 with quiet logging.
func testStore(t *testing.T) *identity.Store {
	t.Helper()
	s, err := identity.New(2, identity.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

// enroll adds an identity directly through the store.
func enroll(t *testing.T, s *identity.Store, label string, emb ...float32) identity.Record {
	t.Helper()
	rec, err := s.Enroll(context.Background(), label, emb)
	if err != nil {
		t.Fatalf("failed to enroll %s: %v", label, err)
	}
	return rec
}

// jsonRequest creates a request with a raw JSON body.
func jsonRequest(method, path, body string) *http.Request {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

// requestWithChiParams creates a request with chi URL parameters
func requestWithChiParams(r *http.Request, params map[string]string) *http.Request {
	rctx := chi.NewRouteContext()
	for key, value := range params {
		rctx.URLParams.Add(key, value)
	}
	return r.WithContext(context.WithValue(r.Context(), chi.RouteCtxKey, rctx))
}

// decodeBody unmarshals the recorder body into a generic map.
func decodeBody(t *testing.T, recorder *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var result map[string]any
	if err := json.Unmarshal(recorder.Body.Bytes(), &result); err != nil {
		t.Fatalf("failed to unmarshal response %q: %v", recorder.Body.String(), err)
	}
	return result
}
