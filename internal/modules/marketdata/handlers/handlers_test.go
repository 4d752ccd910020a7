package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quanport/internal/modules/marketdata"
)

type stubLister struct {
	securities []marketdata.Security
	err        error
}

func (s *stubLister) ListSecurities(ctx context.Context) ([]marketdata.Security, error) {
	return s.securities, s.err
}

type stubImporter struct {
	summary marketdata.ImportSummary
	err     error
	calls   int
}

func (s *stubImporter) Run(ctx context.Context) (marketdata.ImportSummary, error) {
	s.calls++
	return s.summary, s.err
}

func newRouter(h *Handler) http.Handler {
	r := chi.NewRouter()
	r.Route("/api", h.RegisterRoutes)
	return r
}

func TestHandleListAssets(t *testing.T) {
	lister := &stubLister{securities: []marketdata.Security{
		{Symbol: "AAPL", Name: "Apple", Points: 60, FirstDate: time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)},
	}}
	router := newRouter(NewHandler(lister, nil, zerolog.Nop()))

	req := httptest.NewRequest(http.MethodGet, "/api/assets/", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Assets []marketdata.Security `json:"assets"`
		Count  int                   `json:"count"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Count)
	assert.Equal(t, "AAPL", body.Assets[0].Symbol)
	assert.Equal(t, 60, body.Assets[0].Points)
}

func TestHandleListAssets_Error(t *testing.T) {
	router := newRouter(NewHandler(&stubLister{err: errors.New("db closed")}, nil, zerolog.Nop()))

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/assets/", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "error")
}

func TestHandleImport(t *testing.T) {
	t.Run("not configured", func(t *testing.T) {
		router := newRouter(NewHandler(&stubLister{}, nil, zerolog.Nop()))
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/assets/import", nil))
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("runs importer", func(t *testing.T) {
		importer := &stubImporter{summary: marketdata.ImportSummary{Files: 2, Rows: 10, Symbols: []string{"A"}}}
		router := newRouter(NewHandler(&stubLister{}, importer, zerolog.Nop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/assets/import", nil))

		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1, importer.calls)
		assert.JSONEq(t, `{"files":2,"skipped":0,"failed":0,"rows":10,"symbols":["A"]}`, w.Body.String())
	})

	t.Run("source failure", func(t *testing.T) {
		importer := &stubImporter{err: errors.New("bucket not found")}
		router := newRouter(NewHandler(&stubLister{}, importer, zerolog.Nop()))

		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/assets/import", nil))
		assert.Equal(t, http.StatusBadGateway, w.Code)
	})
}
