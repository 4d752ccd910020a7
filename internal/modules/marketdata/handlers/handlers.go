// Package handlers provides HTTP handlers for the price history store.
package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/modules/marketdata"
	"github.com/aristath/quanport/internal/utils"
)

// SecurityLister lists the securities in the history store
type SecurityLister interface {
	ListSecurities(ctx context.Context) ([]marketdata.Security, error)
}

// ImportRunner runs one price import pass
type ImportRunner interface {
	Run(ctx context.Context) (marketdata.ImportSummary, error)
}

// Handler handles market data HTTP requests
type Handler struct {
	repo     SecurityLister
	importer ImportRunner // nil when no import source is configured
	log      zerolog.Logger
}

// NewHandler creates a new market data handler
func NewHandler(repo SecurityLister, importer ImportRunner, log zerolog.Logger) *Handler {
	return &Handler{
		repo:     repo,
		importer: importer,
		log:      log.With().Str("handler", "marketdata").Logger(),
	}
}

// RegisterRoutes registers market data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/assets", func(r chi.Router) {
		r.Get("/", h.HandleListAssets)
		r.Post("/import", h.HandleImport)
	})
}

// HandleListAssets handles GET /api/assets
func (h *Handler) HandleListAssets(w http.ResponseWriter, r *http.Request) {
	securities, err := h.repo.ListSecurities(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list securities")
		utils.WriteError(w, r, http.StatusInternalServerError, "Failed to list assets", h.log)
		return
	}

	utils.WriteResponse(w, r, http.StatusOK, map[string]interface{}{
		"assets": securities,
		"count":  len(securities),
	}, h.log)
}

// HandleImport handles POST /api/assets/import
func (h *Handler) HandleImport(w http.ResponseWriter, r *http.Request) {
	if h.importer == nil {
		utils.WriteError(w, r, http.StatusServiceUnavailable, "No price import source configured", h.log)
		return
	}

	summary, err := h.importer.Run(r.Context())
	if err != nil {
		h.log.Error().Err(err).Msg("Price import failed")
		utils.WriteError(w, r, http.StatusBadGateway, err.Error(), h.log)
		return
	}

	utils.WriteResponse(w, r, http.StatusOK, summary, h.log)
}
