// Package handlers provides HTTP handlers for portfolio selection.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"nhooyr.io/websocket"

	"github.com/aristath/quanport/internal/modules/selection"
	"github.com/aristath/quanport/internal/utils"
)

// Optimizer runs selection requests. Implemented by selection.Service.
type Optimizer interface {
	Optimize(ctx context.Context, req selection.OptimizeRequest, progress func(selection.IterationUpdate)) (*selection.OptimizeResponse, error)
	RiskReturn(ctx context.Context, symbols []string) (*selection.RiskReturnResponse, error)
}

// Handler handles selection HTTP requests
type Handler struct {
	optimizer      Optimizer
	allowedOrigins []string
	log            zerolog.Logger
}

// NewHandler creates a new selection handler.
// allowedOrigins are websocket origin patterns; empty allows only same-origin clients.
func NewHandler(optimizer Optimizer, allowedOrigins []string, log zerolog.Logger) *Handler {
	return &Handler{
		optimizer:      optimizer,
		allowedOrigins: allowedOrigins,
		log:            log.With().Str("handler", "selection").Logger(),
	}
}

// HandleOptimize handles POST /api/optimize
func (h *Handler) HandleOptimize(w http.ResponseWriter, r *http.Request) {
	var req selection.OptimizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, r, http.StatusBadRequest, "Invalid request body: "+err.Error(), h.log)
		return
	}

	resp, err := h.optimizer.Optimize(r.Context(), req, nil)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	utils.WriteResponse(w, r, http.StatusOK, resp, h.log)
}

// HandleRiskReturn handles GET /api/risk-return?symbols=A,B,C
func (h *Handler) HandleRiskReturn(w http.ResponseWriter, r *http.Request) {
	symbols := utils.ParseCSV(r.URL.Query().Get("symbols"))

	resp, err := h.optimizer.RiskReturn(r.Context(), symbols)
	if err != nil {
		h.writeFailure(w, r, err)
		return
	}

	utils.WriteResponse(w, r, http.StatusOK, resp, h.log)
}

func (h *Handler) writeFailure(w http.ResponseWriter, r *http.Request, err error) {
	status := utils.ErrorStatus(err)
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", r.URL.Path).Msg("Selection request failed")
	} else {
		h.log.Debug().Err(err).Str("path", r.URL.Path).Msg("Selection request rejected")
	}
	utils.WriteError(w, r, status, err.Error(), h.log)
}

// streamMessage is one websocket frame of the optimize stream
type streamMessage struct {
	Type      string                      `json:"type"` // iteration | result | error
	Iteration *selection.IterationUpdate  `json:"iteration,omitempty"`
	Result    *selection.OptimizeResponse `json:"result,omitempty"`
	Error     string                      `json:"error,omitempty"`
	Status    int                         `json:"status,omitempty"`
}

// HandleOptimizeStream handles GET /api/optimize/stream.
// The client sends one optimize request; the server streams each sampler
// iteration and finishes with the full result.
func (h *Handler) HandleOptimizeStream(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: h.allowedOrigins,
	})
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to accept websocket")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "unexpected close")

	ctx := r.Context()

	readCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	msgType, data, err := conn.Read(readCtx)
	cancel()
	if err != nil {
		h.log.Debug().Err(err).Msg("No optimize request received")
		return
	}
	if msgType != websocket.MessageText {
		conn.Close(websocket.StatusUnsupportedData, "expected a JSON text message")
		return
	}

	var req selection.OptimizeRequest
	if err := json.Unmarshal(data, &req); err != nil {
		h.send(ctx, conn, streamMessage{Type: "error", Error: "Invalid request body: " + err.Error(), Status: http.StatusBadRequest})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	progress := func(u selection.IterationUpdate) {
		update := u
		h.send(ctx, conn, streamMessage{Type: "iteration", Iteration: &update})
	}

	resp, err := h.optimizer.Optimize(ctx, req, progress)
	if err != nil {
		h.send(ctx, conn, streamMessage{Type: "error", Error: err.Error(), Status: utils.ErrorStatus(err)})
		conn.Close(websocket.StatusNormalClosure, "")
		return
	}

	h.send(ctx, conn, streamMessage{Type: "result", Result: resp})
	conn.Close(websocket.StatusNormalClosure, "")
}

func (h *Handler) send(ctx context.Context, conn *websocket.Conn, msg streamMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to marshal stream message")
		return
	}

	writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.Write(writeCtx, websocket.MessageText, data); err != nil {
		h.log.Debug().Err(err).Str("type", msg.Type).Msg("Failed to write stream message")
	}
}
