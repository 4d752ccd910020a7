// Package handlers provides HTTP handlers for backtests.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/aristath/quanport/internal/modules/backtest"
	"github.com/aristath/quanport/internal/utils"
)

// Runner runs backtests. Implemented by backtest.Service.
type Runner interface {
	Run(ctx context.Context, req backtest.Request) (*backtest.Series, error)
}

// Handler handles backtest HTTP requests
type Handler struct {
	runner Runner
	log    zerolog.Logger
}

// NewHandler creates a new backtest handler
func NewHandler(runner Runner, log zerolog.Logger) *Handler {
	return &Handler{
		runner: runner,
		log:    log.With().Str("handler", "backtest").Logger(),
	}
}

// RegisterRoutes registers backtest routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/backtest", h.HandleBacktest)
}

// HandleBacktest handles POST /api/backtest
func (h *Handler) HandleBacktest(w http.ResponseWriter, r *http.Request) {
	var req backtest.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error(), h.log)
		return
	}

	series, err := h.runner.Run(r.Context(), req)
	if err != nil {
		status := utils.ErrorStatus(err)
		if status >= http.StatusInternalServerError {
			h.log.Error().Err(err).Msg("Backtest failed")
		}
		utils.WriteError(w, r, status, err.Error(), h.log)
		return
	}

	utils.WriteResponse(w, r, http.StatusOK, series, h.log)
}
