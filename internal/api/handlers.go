package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/madhouse/rconpanel/internal/domain"
	"github.com/madhouse/rconpanel/internal/storage"
)

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

// parseSince reads an optional RFC3339 "since" query parameter. A
// missing parameter means the zero time (everything).
func parseSince(req *http.Request) (time.Time, error) {
	raw := req.URL.Query().Get("since")
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, raw)
}

const settingDefaultServer = "default_server"

// ServerRequest is the request body for creating or updating a server
type ServerRequest struct {
	Name         string `json:"name"`
	Address      string `json:"address"`
	Port         int    `json:"port"`
	Password     string `json:"password"`
	Game         string `json:"game"`
	StartCommand string `json:"start_command"`
	StopCommand  string `json:"stop_command"`
}

func (sr *ServerRequest) toServer(id string) (*domain.Server, error) {
	game, err := domain.ParseGame(sr.Game)
	if err != nil {
		return nil, err
	}
	srv := &domain.Server{
		ID:       id,
		Name:     sr.Name,
		Address:  sr.Address,
		Port:     sr.Port,
		Password: sr.Password,
		Game:     game,
		Commands: domain.NewServerCommands(sr.StartCommand, sr.StopCommand),
	}
	if err := srv.Validate(); err != nil {
		return nil, err
	}
	return srv, nil
}

// handleGetServers returns all registered servers with their states
func (r *Router) handleGetServers(w http.ResponseWriter, req *http.Request) {
	servers, err := r.store.GetServers(req.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	type serverWithStatus struct {
		domain.Server
		Status domain.ServerStatus `json:"status"`
	}
	out := make([]serverWithStatus, 0, len(servers))
	for _, srv := range servers {
		out = append(out, serverWithStatus{Server: srv, Status: r.manager.Status(srv.ID)})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleGetServer returns a single server
func (r *Router) handleGetServer(w http.ResponseWriter, req *http.Request) {
	srv, err := r.store.GetServerByID(req.Context(), req.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

// handleCreateServer registers a new server
func (r *Router) handleCreateServer(w http.ResponseWriter, req *http.Request) {
	var body ServerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	srv, err := body.toServer(uuid.NewString())
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.store.CreateServer(req.Context(), srv); err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	r.logger.Infof("api", "server %q registered (%s)", srv.Name, srv.Addr())
	writeJSON(w, http.StatusCreated, srv)
}

// handleUpdateServer rewrites a server's settings. The id is stable
// across renames, so trigger bindings survive.
func (r *Router) handleUpdateServer(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	var body ServerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	srv, err := body.toServer(id)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := r.store.UpdateServer(req.Context(), srv); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

// handleDeleteServer disconnects and removes a server
func (r *Router) handleDeleteServer(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")

	r.manager.Disconnect(id)
	if err := r.store.DeleteServer(req.Context(), id); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "server not found")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleConnect establishes the server's RCON connection
func (r *Router) handleConnect(w http.ResponseWriter, req *http.Request) {
	status, err := r.manager.Connect(req.Context(), req.PathValue("id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err != nil {
		// The state machine already holds the failure; report it with
		// the status so the UI can show both.
		writeJSON(w, http.StatusBadGateway, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleCheck runs a live connection check
func (r *Router) handleCheck(w http.ResponseWriter, req *http.Request) {
	status, err := r.manager.Check(req.Context(), req.PathValue("id"))
	if err != nil {
		writeJSON(w, http.StatusBadGateway, status)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleDisconnect closes the server's RCON connection
func (r *Router) handleDisconnect(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.manager.Disconnect(req.PathValue("id")))
}

// handleServerStatus reports the current connection state
func (r *Router) handleServerStatus(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.manager.Status(req.PathValue("id")))
}

// SendRequest is the request body for a manual command send
type SendRequest struct {
	Command string `json:"command"`
}

// handleSendCommand dispatches a registered command to one server
func (r *Router) handleSendCommand(w http.ResponseWriter, req *http.Request) {
	var body SendRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if body.Command == "" {
		writeError(w, http.StatusBadRequest, "command is required")
		return
	}

	entry, err := r.dispatcher.SendManual(req.Context(), req.PathValue("id"), body.Command)
	if err != nil {
		writeJSON(w, http.StatusBadGateway, entry)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// handleServerTriggers lists the trigger bindings attached to a server
func (r *Router) handleServerTriggers(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, r.registry.ServerTriggerCommands(req.PathValue("id")))
}

// handleGameStatus returns the latest matchmaking heartbeat status,
// probing if no cached result exists yet
func (r *Router) handleGameStatus(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if status, ok := r.prober.Latest(id); ok && req.URL.Query().Get("refresh") == "" {
		writeJSON(w, http.StatusOK, status)
		return
	}

	srv, err := r.store.GetServerByID(req.Context(), id)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	status, err := r.prober.Probe(req.Context(), srv)
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, status)
}

// handleStartServer runs the server's configured start command
func (r *Router) handleStartServer(w http.ResponseWriter, req *http.Request) {
	if err := r.manager.StartStop(req.Context(), req.PathValue("id"), true); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "started"})
}

// handleStopServer runs the server's configured stop command
func (r *Router) handleStopServer(w http.ResponseWriter, req *http.Request) {
	if err := r.manager.StartStop(req.Context(), req.PathValue("id"), false); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "stopped"})
}

// handleGetDefaultServer returns the configured default server
func (r *Router) handleGetDefaultServer(w http.ResponseWriter, req *http.Request) {
	id, err := r.store.GetSetting(req.Context(), settingDefaultServer)
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no default server set")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	srv, err := r.store.GetServerByID(req.Context(), id)
	if err != nil {
		writeError(w, http.StatusNotFound, "default server no longer exists")
		return
	}
	writeJSON(w, http.StatusOK, srv)
}

// DefaultServerRequest is the request body for setting the default server
type DefaultServerRequest struct {
	ServerID string `json:"server_id"`
}

// handleSetDefaultServer stores the default server id
func (r *Router) handleSetDefaultServer(w http.ResponseWriter, req *http.Request) {
	var body DefaultServerRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if _, err := r.store.GetServerByID(req.Context(), body.ServerID); err != nil {
		writeError(w, http.StatusNotFound, "server not found")
		return
	}
	if err := r.store.SetSetting(req.Context(), settingDefaultServer, body.ServerID); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
