package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
)

// queryInt parses an optional positive integer query parameter
func queryInt(r *http.Request, name string, def int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, true
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// handleGetTokens handles GET /api/tokens - List tracked tokens
func (s *Server) handleGetTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.analytics.ActiveTokens(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondList(w, tokens, len(tokens))
}

// handleGetAnalysis handles GET /api/analysis/{address} - Latest analysis
func (s *Server) handleGetAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.analytics.Latest(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, analysis)
}

// handleGetHistory handles GET /api/analysis/{address}/history?limit=100
func (s *Server) handleGetHistory(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(r, "limit", 100)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidParameter, "limit must be a positive integer", nil)
		return
	}

	history, err := s.analytics.History(r.Context(), mux.Vars(r)["address"], limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondList(w, history, len(history))
}

// analyzeRequest is the body of POST /api/analyze
type analyzeRequest struct {
	TokenAddress string `json:"tokenAddress"`
}

// handleAnalyze handles POST /api/analyze and POST /api/analyze/{address}.
// Without an address every active token is analyzed.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := parseJSONBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Invalid request body", nil)
		return
	}
	if address := mux.Vars(r)["address"]; address != "" {
		req.TokenAddress = address
	}

	if req.TokenAddress != "" {
		analysis, err := s.analytics.AnalyzeToken(r.Context(), req.TokenAddress)
		if err != nil {
			respondServiceError(w, r, err)
			return
		}
		respondData(w, analysis)
		return
	}

	// A partial failure still returns the analyses that succeeded
	result, err := s.analytics.RunPass(r.Context())
	if result == nil {
		respondServiceError(w, r, err)
		return
	}
	respondList(w, result, len(result.Analyses))
}
