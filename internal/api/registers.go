package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
	"github.com/nerrad567/gray-logic-heatpump/internal/history"
)

// refreshTimeout bounds a synchronous POST /refresh?wait=true.
const refreshTimeout = 30 * time.Second

// RegistersResponse is the coordinator's view of the device.
type RegistersResponse struct {
	Data       coordinator.Snapshot  `json:"data"`
	Interest   []string              `json:"interest"`
	Available  bool                  `json:"available"`
	LastUpdate *time.Time            `json:"last_update,omitempty"`
	LastError  string                `json:"last_error,omitempty"`
	WriteMode  coordinator.WriteMode `json:"write_mode"`
	Interval   string                `json:"interval"`
	Stats      coordinator.Stats     `json:"stats"`
}

// handleListRegisters returns the cached register values.
func (s *Server) handleListRegisters(w http.ResponseWriter, _ *http.Request) {
	coord := s.entry.Coordinator()
	resp := RegistersResponse{
		Data:      coord.Data(),
		Interest:  coord.Interest(),
		Available: coord.LastUpdateSuccess(),
		WriteMode: coord.WriteMode(),
		Interval:  coord.Interval().String(),
		Stats:     coord.Stats(),
	}
	if resp.Data == nil {
		resp.Data = coordinator.Snapshot{}
	}
	if last := coord.LastUpdate(); !last.IsZero() {
		utc := last.UTC()
		resp.LastUpdate = &utc
	}
	if err := coord.LastError(); err != nil {
		resp.LastError = err.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleRegisterHistory returns recorded samples for one register.
//
// Query parameters: limit, since and until (RFC 3339).
func (s *Server) handleRegisterHistory(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !genesis.Known(name) {
		writeNotFound(w, "unknown register")
		return
	}
	if s.history == nil {
		writeUnavailable(w, "register history not enabled")
		return
	}

	q := history.Query{Register: name}
	params := r.URL.Query()
	if v := params.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		q.Limit = n
	}
	for key, dst := range map[string]*time.Time{"since": &q.Since, "until": &q.Until} {
		v := params.Get(key)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, key+" must be an RFC 3339 timestamp")
			return
		}
		*dst = t
	}

	samples, err := s.history.History(r.Context(), q)
	if err != nil {
		if errors.Is(err, history.ErrInvalidQuery) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("register history query failed", "register", name, "error", err)
		writeInternalError(w, "history query failed")
		return
	}
	if samples == nil {
		samples = []history.Sample{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"register": name,
		"samples":  samples,
		"count":    len(samples),
	})
}

// handleListCommands returns the recorded entity commands, newest first.
func (s *Server) handleListCommands(w http.ResponseWriter, r *http.Request) {
	if s.commands == nil {
		writeUnavailable(w, "command log not enabled")
		return
	}

	params := r.URL.Query()
	f := history.CommandFilter{
		EntityID: params.Get("entity_id"),
		Source:   params.Get("source"),
	}
	for key, dst := range map[string]*int{"limit": &f.Limit, "offset": &f.Offset} {
		v := params.Get(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeBadRequest(w, key+" must be a non-negative integer")
			return
		}
		*dst = n
	}

	records, err := s.commands.List(r.Context(), f)
	if err != nil {
		s.logger.Error("command log query failed", "error", err)
		writeInternalError(w, "command log query failed")
		return
	}
	if records == nil {
		records = []history.CommandRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"commands": records,
		"count":    len(records),
	})
}

// handleRefresh requests a fetch. With ?wait=true the fetch runs before the
// response and its outcome is reported.
func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	coord := s.entry.Coordinator()
	if r.URL.Query().Get("wait") != "true" {
		coord.RequestRefresh()
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "requested"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), refreshTimeout)
	defer cancel()
	if err := coord.Refresh(ctx); err != nil {
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "refreshed",
		"last_update": coord.LastUpdate().UTC(),
	})
}
