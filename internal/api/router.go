package api

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/madhouse/rconpanel/internal/applog"
	"github.com/madhouse/rconpanel/internal/auth"
	"github.com/madhouse/rconpanel/internal/bus"
	"github.com/madhouse/rconpanel/internal/dispatch"
	"github.com/madhouse/rconpanel/internal/game"
	"github.com/madhouse/rconpanel/internal/integration"
	"github.com/madhouse/rconpanel/internal/manager"
	"github.com/madhouse/rconpanel/internal/registry"
	"github.com/madhouse/rconpanel/internal/storage"
)

// Router holds the HTTP routes and dependencies
type Router struct {
	mux        *http.ServeMux
	store      *storage.Store
	manager    *manager.Manager
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	tracker    *integration.Tracker
	prober     *game.Prober
	logger     *applog.Logger
	bus        *bus.Bus
	auth       *auth.Service
	wsHub      *WebSocketHub
	staticDir  string
}

// Deps collects everything the router serves.
type Deps struct {
	Store      *storage.Store
	Manager    *manager.Manager
	Registry   *registry.Registry
	Dispatcher *dispatch.Dispatcher
	Tracker    *integration.Tracker
	Prober     *game.Prober
	Logger     *applog.Logger
	Bus        *bus.Bus
	Auth       *auth.Service
	StaticDir  string
}

// NewRouter creates a new HTTP router
func NewRouter(deps Deps) *Router {
	r := &Router{
		mux:        http.NewServeMux(),
		store:      deps.Store,
		manager:    deps.Manager,
		registry:   deps.Registry,
		dispatcher: deps.Dispatcher,
		tracker:    deps.Tracker,
		prober:     deps.Prober,
		logger:     deps.Logger,
		bus:        deps.Bus,
		auth:       deps.Auth,
		wsHub:      NewWebSocketHub(deps.Bus),
		staticDir:  deps.StaticDir,
	}

	// Server routes
	r.mux.HandleFunc("GET /api/servers", r.requireAuth(r.handleGetServers))
	r.mux.HandleFunc("POST /api/servers", r.requireAuth(r.handleCreateServer))
	r.mux.HandleFunc("GET /api/servers/default", r.requireAuth(r.handleGetDefaultServer))
	r.mux.HandleFunc("PUT /api/servers/default", r.requireAuth(r.handleSetDefaultServer))
	r.mux.HandleFunc("GET /api/servers/{id}", r.requireAuth(r.handleGetServer))
	r.mux.HandleFunc("PUT /api/servers/{id}", r.requireAuth(r.handleUpdateServer))
	r.mux.HandleFunc("DELETE /api/servers/{id}", r.requireAuth(r.handleDeleteServer))

	// Connection lifecycle
	r.mux.HandleFunc("POST /api/servers/{id}/connect", r.requireAuth(r.handleConnect))
	r.mux.HandleFunc("POST /api/servers/{id}/check", r.requireAuth(r.handleCheck))
	r.mux.HandleFunc("POST /api/servers/{id}/disconnect", r.requireAuth(r.handleDisconnect))
	r.mux.HandleFunc("GET /api/servers/{id}/status", r.requireAuth(r.handleServerStatus))
	r.mux.HandleFunc("POST /api/servers/{id}/send", r.requireAuth(r.handleSendCommand))
	r.mux.HandleFunc("GET /api/servers/{id}/triggers", r.requireAuth(r.handleServerTriggers))
	r.mux.HandleFunc("GET /api/servers/{id}/game-status", r.requireAuth(r.handleGameStatus))
	r.mux.HandleFunc("POST /api/servers/{id}/start", r.requireAuth(r.handleStartServer))
	r.mux.HandleFunc("POST /api/servers/{id}/stop", r.requireAuth(r.handleStopServer))

	// Command routes
	r.mux.HandleFunc("GET /api/commands", r.requireAuth(r.handleGetCommands))
	r.mux.HandleFunc("POST /api/commands", r.requireAuth(r.handleCreateCommand))
	r.mux.HandleFunc("PUT /api/commands/{name}/triggers", r.requireAuth(r.handleUpdateTriggers))

	// Command log routes
	r.mux.HandleFunc("GET /api/command-logs", r.requireAuth(r.handleGetCommandLogs))
	r.mux.HandleFunc("GET /api/command-logs/export", r.requireAuth(r.handleExportCommandLogs))
	r.mux.HandleFunc("POST /api/command-logs/{id}/resend", r.requireAuth(r.handleResendCommand))
	r.mux.HandleFunc("POST /api/command-logs/{id}/resend-event", r.requireAuth(r.handleResendEvent))

	// Integration routes
	r.mux.HandleFunc("GET /api/integrations", r.requireAuth(r.handleGetIntegrations))
	r.mux.HandleFunc("POST /api/integrations/{api}/connect", r.requireAuth(r.handleConnectIntegration))
	r.mux.HandleFunc("POST /api/integrations/{api}/disconnect", r.requireAuth(r.handleDisconnectIntegration))
	r.mux.HandleFunc("POST /api/integrations/events", r.handleIngestEvent)

	// App log routes
	r.mux.HandleFunc("GET /api/logs", r.requireAuth(r.handleGetAppLogs))

	// Auth routes
	r.mux.HandleFunc("POST /api/login", r.handleLogin)
	r.mux.HandleFunc("GET /api/auth/check", r.handleAuthCheck)

	// WebSocket endpoint
	r.mux.HandleFunc("GET /ws", r.handleWebSocket)

	// Health check
	r.mux.HandleFunc("GET /health", r.handleHealth)

	// Static files - only serve if staticDir is configured
	if deps.StaticDir != "" {
		r.mux.HandleFunc("GET /", r.handleStatic)
	}

	return r
}

// ServeHTTP implements http.Handler
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	// CORS headers for API
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Relay-Token")

	if req.Method == "OPTIONS" {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.mux.ServeHTTP(w, req)
}

// StartWebSocketHub starts broadcasting bus events to WebSocket clients
func (r *Router) StartWebSocketHub() error {
	return r.wsHub.Run()
}

// StopWebSocketHub stops the hub's bus subscription
func (r *Router) StopWebSocketHub() {
	r.wsHub.Stop()
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleStatic serves static files from the configured directory
// For SPA support, serves index.html for any path that doesn't match a file
func (r *Router) handleStatic(w http.ResponseWriter, req *http.Request) {
	path := filepath.Clean(req.URL.Path)
	if path == "/" {
		path = "/index.html"
	}

	fullPath := filepath.Join(r.staticDir, path)

	// Security: ensure the path is within staticDir
	absStaticDir, _ := filepath.Abs(r.staticDir)
	absPath, _ := filepath.Abs(fullPath)
	if !strings.HasPrefix(absPath, absStaticDir) {
		http.NotFound(w, req)
		return
	}

	info, err := os.Stat(fullPath)
	if err != nil || info.IsDir() {
		// SPA fallback: serve index.html for unknown paths
		fullPath = filepath.Join(r.staticDir, "index.html")
	}

	http.ServeFile(w, req, fullPath)
}
