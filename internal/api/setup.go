package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/nerrad567/gray-logic-heatpump/internal/integration"
)

// handleSetupValidate checks a host/port/type form against a live device
// without creating an entry. A valid form answers 200, otherwise 422 with
// field error codes.
func (s *Server) handleSetupValidate(w http.ResponseWriter, r *http.Request) {
	var input integration.Input
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), commandTimeout)
	defer cancel()

	res := integration.ValidateInput(ctx, input, s.dialer)
	if !res.OK() {
		writeJSON(w, http.StatusUnprocessableEntity, res)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
