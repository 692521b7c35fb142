package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-heatpump/internal/coordinator"
	"github.com/nerrad567/gray-logic-heatpump/internal/entity"
	"github.com/nerrad567/gray-logic-heatpump/internal/genesis"
	"github.com/nerrad567/gray-logic-heatpump/internal/history"
)

// commandTimeout bounds a single entity command including all its writes.
const commandTimeout = 15 * time.Second

// EntityView is the REST representation of an entity.
type EntityView struct {
	entity.State
	Key              string          `json:"key"`
	Category         entity.Category `json:"category,omitempty"`
	EnabledByDefault bool            `json:"enabled_by_default"`
	Writable         bool            `json:"writable"`
}

func newEntityView(a *entity.Adapter) EntityView {
	return EntityView{
		State:            a.State(),
		Key:              a.Key(),
		Category:         a.Category(),
		EnabledByDefault: a.EnabledByDefault(),
		Writable:         a.Platform().Writable(),
	}
}

// CommandRequest is the body of POST /entities/{id}/command.
type CommandRequest struct {
	Command    string         `json:"command"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// CommandResponse reports an accepted command.
type CommandResponse struct {
	RequestID string       `json:"request_id"`
	EntityID  string       `json:"entity_id"`
	Command   string       `json:"command"`
	Status    string       `json:"status"`
	State     entity.State `json:"state"`
}

// handleListEntities returns every entity of the configured heat pump.
// ?category= and ?platform= filter the list.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	category := r.URL.Query().Get("category")
	platform := r.URL.Query().Get("platform")

	adapters := s.entry.Entities()
	views := make([]EntityView, 0, len(adapters))
	for _, a := range adapters {
		if category != "" && string(a.Category()) != category {
			continue
		}
		if platform != "" && string(a.Platform()) != platform {
			continue
		}
		views = append(views, newEntityView(a))
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device":   s.entry.DeviceInfo(),
		"entities": views,
		"count":    len(views),
	})
}

// handleGetEntity returns one entity by unique id or key.
func (s *Server) handleGetEntity(w http.ResponseWriter, r *http.Request) {
	a, err := s.entry.Entity(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "entity not found")
		return
	}
	writeJSON(w, http.StatusOK, newEntityView(a))
}

// handleEntityCommand applies a command to one entity and records it.
func (s *Server) handleEntityCommand(w http.ResponseWriter, r *http.Request) {
	a, err := s.entry.Entity(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "entity not found")
		return
	}

	var req CommandRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Command == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "command is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	applyErr := entity.Apply(ctx, a, req.Command, req.Parameters)
	s.recordCommand(r, a, req, applyErr)

	if applyErr != nil {
		s.logger.Warn("entity command failed",
			"entity_id", a.UniqueID(),
			"command", req.Command,
			"error", applyErr,
		)
		writeCommandError(w, applyErr)
		return
	}

	writeJSON(w, http.StatusOK, CommandResponse{
		RequestID: requestID(r),
		EntityID:  a.UniqueID(),
		Command:   req.Command,
		Status:    "accepted",
		State:     a.State(),
	})
}

// recordCommand logs commands that reached the device. Refresh and
// validation failures are not recorded.
func (s *Server) recordCommand(r *http.Request, a *entity.Adapter, req CommandRequest, applyErr error) {
	if s.commands == nil || req.Command == entity.CommandRefresh || isValidationError(applyErr) {
		return
	}
	rec := &history.CommandRecord{
		RequestID: requestID(r),
		EntityID:  a.UniqueID(),
		Command:   req.Command,
		Params:    req.Parameters,
		Source:    history.SourceAPI,
	}
	if applyErr != nil {
		rec.Error = applyErr.Error()
	}
	// The request context may already be past its deadline.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 5*time.Second)
	defer cancel()
	if err := s.commands.Log(ctx, rec); err != nil {
		s.logger.Warn("failed to record entity command", "entity_id", a.UniqueID(), "error", err)
	}
}

func isValidationError(err error) bool {
	return errors.Is(err, entity.ErrNotWritable) ||
		errors.Is(err, entity.ErrUnsupportedCommand) ||
		errors.Is(err, entity.ErrInvalidParameters) ||
		errors.Is(err, entity.ErrOutOfRange) ||
		errors.Is(err, entity.ErrNotSupported)
}

// writeCommandError maps an entity command error onto an HTTP response.
func writeCommandError(w http.ResponseWriter, err error) {
	var partial *entity.PartialWriteError
	switch {
	case errors.As(err, &partial):
		writeJSON(w, http.StatusBadGateway, map[string]any{
			"status":  http.StatusBadGateway,
			"code":    ErrCodePartialWrite,
			"message": err.Error(),
			"applied": partial.Applied,
			"failed":  partial.Failed,
		})
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, ErrCodeTimeout, "heat pump did not respond in time")
	case isValidationError(err):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, entity.ErrNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, coordinator.ErrUpdateFailed), errors.Is(err, genesis.ErrConnectivity):
		writeError(w, http.StatusBadGateway, ErrCodeDeviceError, err.Error())
	default:
		writeInternalError(w, "command failed")
	}
}
