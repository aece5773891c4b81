package api

import (
	"encoding/json"
	"net/http"

	"github.com/madhouse/rconpanel/internal/domain"
)

// handleGetCommands lists all registered commands with their triggers
func (r *Router) handleGetCommands(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.registry.Commands())
}

// handleCreateCommand registers a new command
func (r *Router) handleCreateCommand(w http.ResponseWriter, req *http.Request) {
	var cmd domain.Command
	if err := json.NewDecoder(req.Body).Decode(&cmd); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	created, err := r.registry.Create(req.Context(), cmd)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	r.logger.Infof("api", "command %q registered with %d trigger(s)", created.Name, len(created.Triggers))
	writeJSON(w, http.StatusCreated, created)
}

// TriggersRequest is the request body for replacing a command's triggers
type TriggersRequest struct {
	Triggers []domain.ServerTrigger `json:"triggers"`
}

// handleUpdateTriggers replaces the whole trigger list of a command
func (r *Router) handleUpdateTriggers(w http.ResponseWriter, req *http.Request) {
	var body TriggersRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	updated, err := r.registry.UpdateTriggers(req.Context(), req.PathValue("name"), body.Triggers)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, updated)
}
