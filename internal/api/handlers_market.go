package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/token-analytics/internal/service"
)

// handleGetSignals handles GET /api/signals - Latest signal per token
func (s *Server) handleGetSignals(w http.ResponseWriter, r *http.Request) {
	signals, err := s.analytics.Signals(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondList(w, signals, len(signals))
}

// handleGetSignal handles GET /api/signals/{address}
func (s *Server) handleGetSignal(w http.ResponseWriter, r *http.Request) {
	detail, err := s.analytics.Signal(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, detail)
}

// handleMarketOverview handles GET /api/market/overview
func (s *Server) handleMarketOverview(w http.ResponseWriter, r *http.Request) {
	overview, err := s.analytics.MarketOverview(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, overview)
}

// handleTopPerformers handles GET /api/market/top-performers?metric=volume24h&limit=10
func (s *Server) handleTopPerformers(w http.ResponseWriter, r *http.Request) {
	metric := r.URL.Query().Get("metric")
	if metric == "" {
		metric = "volume24h"
	}
	limit, ok := queryInt(r, "limit", service.DefaultTopLimit)
	if !ok {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidParameter, "limit must be a positive integer", nil)
		return
	}

	performers, err := s.analytics.TopPerformers(r.Context(), metric, limit)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	count := len(performers)
	respondJSON(w, http.StatusOK, Envelope{
		Success:   true,
		Data:      performers,
		Count:     &count,
		Metric:    metric,
		Timestamp: time.Now().UnixMilli(),
	})
}

// handleGetRisk handles GET /api/risk/{address}
func (s *Server) handleGetRisk(w http.ResponseWriter, r *http.Request) {
	report, err := s.analytics.Risk(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondData(w, report)
}
