package api

import (
	"encoding/json"
	"net/http"

	"github.com/madhouse/rconpanel/internal/domain"
)

// handleGetIntegrations returns the status of every platform integration
func (r *Router) handleGetIntegrations(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.tracker.Statuses())
}

// handleConnectIntegration starts a platform integration
func (r *Router) handleConnectIntegration(w http.ResponseWriter, req *http.Request) {
	api, err := domain.ParseApi(req.PathValue("api"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	status, err := r.tracker.Connect(api)
	if err != nil {
		// The tracker records the failure in the status; return both.
		writeJSON(w, http.StatusBadGateway, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDisconnectIntegration stops a platform integration
func (r *Router) handleDisconnectIntegration(w http.ResponseWriter, req *http.Request) {
	api, err := domain.ParseApi(req.PathValue("api"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, r.tracker.Disconnect(api))
}

// handleIngestEvent accepts a platform event from the relay. The relay
// authenticates with its own token, not a panel session.
func (r *Router) handleIngestEvent(w http.ResponseWriter, req *http.Request) {
	if !r.tracker.VerifyRelayToken(req.Header.Get("X-Relay-Token")) {
		writeError(w, http.StatusUnauthorized, "invalid relay token")
		return
	}

	var ev domain.IntegrationEvent
	if err := json.NewDecoder(req.Body).Decode(&ev); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entries, err := r.dispatcher.HandleEvent(req.Context(), ev)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"matched":  len(entries),
		"commands": entries,
	})
}
