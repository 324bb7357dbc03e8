package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/switchboard/internal/engine"
	"github.com/mattjoyce/switchboard/internal/events"
	"github.com/mattjoyce/switchboard/internal/handler"
)

// maxDispatchBody caps the request body accepted on the dispatch endpoint.
const maxDispatchBody = 1 << 20

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	resp := HealthzResponse{
		Status:         "ok",
		UptimeSeconds:  int64(time.Since(s.startedAt).Seconds()),
		Capabilities:   len(s.catalog.Capabilities()),
		HandlersLoaded: s.catalog.Size(),
	}

	respondJSON(w, http.StatusOK, resp)
}

// handleDispatch handles POST /v1/dispatch/{capability}.
func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	capability := chi.URLParam(r, "capability")
	if capability == "" {
		s.writeError(w, http.StatusBadRequest, "capability is required")
		return
	}

	var body DispatchRequest
	data, err := io.ReadAll(io.LimitReader(r.Body, maxDispatchBody))
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, &body); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
			return
		}
	}

	req := handler.NewRequest(r.Context(), capability, body.Params)
	result, err := s.dispatcher.Execute(req)
	if err != nil {
		var unsupported *engine.UnsupportedCapabilityError
		if errors.As(err, &unsupported) {
			s.publishEvent(events.TypeDispatchUnsupported, events.DispatchData{Capability: capability})
			s.writeError(w, http.StatusNotFound, err.Error())
			return
		}

		var exhausted *engine.ExhaustedError
		if errors.As(err, &exhausted) {
			data := events.DispatchData{Capability: capability}
			resp := ErrorResponse{Error: err.Error()}
			if exhausted.LastErr != nil {
				resp.Cause = exhausted.LastErr.Error()
				data.Error = exhausted.LastErr.Error()
			}
			s.publishEvent(events.TypeDispatchExhausted, data)
			respondJSON(w, http.StatusBadGateway, resp)
			return
		}

		s.logger.Error("dispatch failed", "capability", capability, "error", err)
		s.writeError(w, http.StatusInternalServerError, "dispatch failed")
		return
	}

	respondJSON(w, http.StatusOK, DispatchResponse{
		RequestID:  result.RequestID,
		Capability: result.Capability,
		Handler:    result.Handler,
		Attempts:   result.Attempts,
		ElapsedMS:  result.Elapsed.Milliseconds(),
	})
}

// handleCapabilities handles GET /v1/capabilities.
// Returns each capability with its candidate chain in dispatch order.
func (s *Server) handleCapabilities(w http.ResponseWriter, r *http.Request) {
	out := make(map[string][]string)
	for _, capability := range s.catalog.Capabilities() {
		candidates := s.catalog.Lookup(capability)
		names := make([]string, 0, len(candidates))
		for _, h := range candidates {
			names = append(names, h.Metadata().Name)
		}
		out[capability] = names
	}

	respondJSON(w, http.StatusOK, out)
}

// handleHandlers handles GET /v1/handlers.
func (s *Server) handleHandlers(w http.ResponseWriter, r *http.Request) {
	var out []HandlerInfo
	for _, capability := range s.catalog.Capabilities() {
		for _, h := range s.catalog.Lookup(capability) {
			meta := h.Metadata()
			out = append(out, HandlerInfo{
				Name:       meta.Name,
				Version:    meta.Version.String(),
				Capability: meta.Capability,
				Priority:   meta.Priority,
				Deprecated: meta.Deprecated,
			})
		}
	}

	respondJSON(w, http.StatusOK, out)
}

// handleJournal handles GET /v1/journal?limit=n.
func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if s.journal == nil {
		s.writeError(w, http.StatusNotFound, "dispatch journal not enabled")
		return
	}

	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	records, err := s.journal.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("failed to read journal", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}

	respondJSON(w, http.StatusOK, records)
}

// publishEvent sends a terminal dispatch outcome to the event stream. The
// engine's observer covers per-candidate events; the terminal failures
// surface here where the request ends.
func (s *Server) publishEvent(eventType string, data events.DispatchData) {
	if s.events == nil {
		return
	}
	s.events.Publish(eventType, data)
}

// respondJSON writes a JSON response with the given status code.
func respondJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
