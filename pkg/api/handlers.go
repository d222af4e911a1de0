package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/octopus-project/ipcm-indexer/internal/history"
	"github.com/octopus-project/ipcm-indexer/internal/logger"
	"github.com/octopus-project/ipcm-indexer/internal/query"
	"github.com/octopus-project/ipcm-indexer/pkg/config"
)

// PipelineStatusProvider exposes the ingestion pipeline's state to the
// health endpoint.
type PipelineStatusProvider interface {
	StateName() string
	Committed() uint64
}

// Handler handles HTTP requests for the API.
type Handler struct {
	engine   *query.Engine
	pipeline PipelineStatusProvider
	cfg      *config.APIConfig
	log      *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(engine *query.Engine, pipeline PipelineStatusProvider, cfg *config.APIConfig, log *logger.Logger) *Handler {
	return &Handler{
		engine:   engine,
		pipeline: pipeline,
		cfg:      cfg,
		log:      log,
	}
}

// GetLatest returns the newest visible CID mapping for a token.
// @Summary Get the latest CID for a token
// @Description Retrieve the most recent visible CID mapping for a token
// @Tags Tokens
// @Produce json
// @Param token_id path string true "Token identifier"
// @Param mode query string false "Visibility mode" Enums(confirmed, provisional) default(confirmed)
// @Success 200 {object} history.VersionRecord "The latest version record"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 404 {object} ErrorResponse "Token not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tokens/{token_id}/latest [get]
func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("token_id")
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	mode, err := parseMode(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := h.engine.Latest(r.Context(), tokenID, mode)
	if err != nil {
		h.respondQueryError(w, tokenID, err)
		return
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetHistory returns one page of a token's version history.
// @Summary Get a token's version history
// @Description Retrieve the token's version records in ascending sequence order with cursor pagination
// @Tags Tokens
// @Produce json
// @Param token_id path string true "Token identifier"
// @Param after_seq query integer false "Return records with sequence number strictly greater than this cursor"
// @Param limit query int false "Maximum number of records to return" default(100)
// @Param mode query string false "Visibility mode" Enums(confirmed, provisional) default(confirmed)
// @Success 200 {object} HistoryResponse "One history page"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 404 {object} ErrorResponse "Token not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tokens/{token_id}/history [get]
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("token_id")
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	mode, err := parseMode(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	afterSeq, err := parseUintParam(r, "after_seq", 0)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, err := h.parseLimit(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	page, err := h.engine.History(r.Context(), tokenID, afterSeq, limit, mode)
	if err != nil {
		h.respondQueryError(w, tokenID, err)
		return
	}

	records := page.Records
	if records == nil {
		records = []*history.VersionRecord{}
	}
	respondJSON(w, http.StatusOK, HistoryResponse{
		TokenID: tokenID,
		Records: records,
		Pagination: PaginationResult{
			Limit:        limit,
			HasMore:      page.NextAfterSeq > 0,
			NextAfterSeq: page.NextAfterSeq,
		},
	})
}

// GetAsOf returns the CID mapping that was current at a point in time.
// @Summary Get a token's CID as of a ledger or timestamp
// @Description Retrieve the version record current at the given ledger sequence or RFC3339 timestamp (exactly one of ledger/at)
// @Tags Tokens
// @Produce json
// @Param token_id path string true "Token identifier"
// @Param ledger query integer false "Ledger sequence"
// @Param at query string false "RFC3339 timestamp"
// @Param mode query string false "Visibility mode" Enums(confirmed, provisional) default(confirmed)
// @Success 200 {object} history.VersionRecord "The as-of version record"
// @Failure 400 {object} ErrorResponse "Invalid parameters"
// @Failure 404 {object} ErrorResponse "Token not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tokens/{token_id}/as-of [get]
func (h *Handler) GetAsOf(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("token_id")
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	mode, err := parseMode(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ledgerStr := r.URL.Query().Get("ledger")
	atStr := r.URL.Query().Get("at")
	if (ledgerStr == "") == (atStr == "") {
		respondError(w, http.StatusBadRequest, "exactly one of 'ledger' or 'at' is required")
		return
	}

	var rec *history.VersionRecord
	if ledgerStr != "" {
		ledger, err := strconv.ParseUint(ledgerStr, 10, 64)
		if err != nil || ledger == 0 {
			respondError(w, http.StatusBadRequest, "invalid 'ledger' parameter")
			return
		}
		rec, err = h.engine.AsOfLedger(r.Context(), tokenID, ledger, mode)
		if err != nil {
			h.respondQueryError(w, tokenID, err)
			return
		}
	} else {
		at, err := time.Parse(time.RFC3339, atStr)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid 'at' parameter, expected RFC3339 timestamp")
			return
		}
		rec, err = h.engine.AsOfTimestamp(r.Context(), tokenID, at, mode)
		if err != nil {
			h.respondQueryError(w, tokenID, err)
			return
		}
	}
	respondJSON(w, http.StatusOK, rec)
}

// GetToken returns the token's current state projection.
// @Summary Get a token's current state
// @Description Retrieve ownership, burn status and the latest visible CID for a token
// @Tags Tokens
// @Produce json
// @Param token_id path string true "Token identifier"
// @Param mode query string false "Visibility mode" Enums(confirmed, provisional) default(confirmed)
// @Success 200 {object} history.TokenInfo "The token's current state"
// @Failure 404 {object} ErrorResponse "Token not found"
// @Failure 500 {object} ErrorResponse "Internal server error"
// @Router /tokens/{token_id} [get]
func (h *Handler) GetToken(w http.ResponseWriter, r *http.Request) {
	tokenID := r.PathValue("token_id")
	if tokenID == "" {
		respondError(w, http.StatusBadRequest, "token_id is required")
		return
	}
	mode, err := parseMode(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	info, err := h.engine.Token(r.Context(), tokenID, mode)
	if err != nil {
		h.respondQueryError(w, tokenID, err)
		return
	}
	respondJSON(w, http.StatusOK, info)
}

// Health returns the service health and ingestion progress.
// @Summary Health check
// @Description Get service health status and ingestion pipeline progress
// @Tags Health
// @Produce json
// @Success 200 {object} HealthResponse "Health status"
// @Router /health [get]
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC(),
	}
	if h.pipeline != nil {
		resp.Pipeline = PipelineStatus{
			State:      h.pipeline.StateName(),
			LastLedger: h.pipeline.Committed(),
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *Handler) respondQueryError(w http.ResponseWriter, tokenID string, err error) {
	if errors.Is(err, history.ErrNotFound) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("token '%s' not found", tokenID))
		return
	}
	h.log.Errorw("query failed", "tokenID", tokenID, "error", err)
	respondError(w, http.StatusInternalServerError, "failed to execute query")
}

func (h *Handler) parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return h.cfg.DefaultPageSize, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return 0, fmt.Errorf("invalid 'limit' parameter")
	}
	if limit > h.cfg.MaxPageSize {
		limit = h.cfg.MaxPageSize
	}
	return limit, nil
}

func parseMode(r *http.Request) (query.Mode, error) {
	raw := r.URL.Query().Get("mode")
	if raw == "" {
		return query.ModeConfirmed, nil
	}
	mode := query.Mode(raw)
	if !mode.Valid() {
		return "", fmt.Errorf("invalid 'mode' parameter: %q", raw)
	}
	return mode, nil
}

func parseUintParam(r *http.Request, name string, def uint64) (uint64, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s' parameter", name)
	}
	return v, nil
}

// respondJSON writes data as a JSON response with the given status.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")

	encoded, err := json.Marshal(data)
	if err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	w.Write(encoded) //nolint:errcheck
}

// respondError writes a standard error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   http.StatusText(status),
		Message: message,
		Code:    status,
	})
}
