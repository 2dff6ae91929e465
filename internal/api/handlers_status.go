package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	apperrors "github.com/token-analytics/internal/errors"
	"github.com/token-analytics/internal/job"
	"github.com/token-analytics/internal/service"
)

// StatusResponse is returned by GET /api/status
type StatusResponse struct {
	Service   service.Status `json:"service"`
	Scheduler *job.Status    `json:"scheduler,omitempty"`
	Websocket *WebsocketInfo `json:"websocket,omitempty"`
	Uptime    string         `json:"uptime"`
}

// WebsocketInfo describes connected websocket clients
type WebsocketInfo struct {
	Clients       int            `json:"clients"`
	Subscriptions map[string]int `json:"subscriptions"`
}

// handleStatus handles GET /api/status
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Service: s.analytics.Status(r.Context()),
		Uptime:  time.Since(s.startedAt).Round(time.Second).String(),
	}
	if s.scheduler != nil {
		st := s.scheduler.Status()
		resp.Scheduler = &st
	}
	if s.hub != nil {
		resp.Websocket = &WebsocketInfo{
			Clients:       s.hub.ClientCount(),
			Subscriptions: s.hub.SubscriptionStats(),
		}
	}
	respondData(w, resp)
}

// handleGetJobs handles GET /api/jobs
func (s *Server) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Scheduler is not running", nil)
		return
	}
	jobs := s.scheduler.Status().Jobs
	respondList(w, jobs, len(jobs))
}

// handleUpdateJob handles PUT /api/jobs/{id} with {"isActive": bool}
func (s *Server) handleUpdateJob(w http.ResponseWriter, r *http.Request) {
	if s.scheduler == nil {
		respondError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "Scheduler is not running", nil)
		return
	}

	var req struct {
		IsActive *bool `json:"isActive"`
	}
	if err := parseJSONBody(r, &req); err != nil || req.IsActive == nil {
		respondError(w, http.StatusBadRequest, ErrCodeInvalidInput, "Body must be {\"isActive\": true|false}", nil)
		return
	}

	id := mux.Vars(r)["id"]
	if err := s.scheduler.SetActive(id, *req.IsActive); err != nil {
		respondServiceError(w, r, err)
		return
	}

	updated, ok := s.scheduler.Job(id)
	if !ok {
		respondServiceError(w, r, apperrors.NewNotFoundError("job", id))
		return
	}
	respondData(w, updated)
}
