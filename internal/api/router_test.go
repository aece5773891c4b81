package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

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

func newTestRouter(t *testing.T, passwordHash, relayToken string) *Router {
	t.Helper()

	store, err := storage.New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	eventBus, err := bus.New()
	if err != nil {
		t.Fatalf("bus.New: %v", err)
	}
	t.Cleanup(eventBus.Close)

	logger := applog.New(eventBus)

	reg, err := registry.New(t.Context(), store)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	mgr := manager.New(store, eventBus, logger, manager.Options{})
	dispatcher := dispatch.New(reg, mgr, store, eventBus, logger, t.TempDir())

	return NewRouter(Deps{
		Store:      store,
		Manager:    mgr,
		Registry:   reg,
		Dispatcher: dispatcher,
		Tracker:    integration.New(eventBus, logger, relayToken),
		Prober:     game.New(eventBus, "", ""),
		Logger:     logger,
		Bus:        eventBus,
		Auth:       auth.NewService("test-secret", passwordHash, time.Hour),
	})
}

func doJSON(t *testing.T, router *Router, method, path, token string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestOpenPanelSkipsAuth(t *testing.T) {
	router := newTestRouter(t, "", "")

	rec := doJSON(t, router, "GET", "/api/servers", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestAuthRequiredWithPassword(t *testing.T) {
	hash, err := auth.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	router := newTestRouter(t, hash, "")

	if rec := doJSON(t, router, "GET", "/api/servers", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	rec := doJSON(t, router, "POST", "/api/login", "", map[string]string{"password": "hunter2"})
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d: %s", rec.Code, rec.Body.String())
	}
	var login map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&login); err != nil {
		t.Fatalf("decoding login response: %v", err)
	}

	if rec := doJSON(t, router, "GET", "/api/servers", login["token"], nil); rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	hash, _ := auth.HashPassword("hunter2")
	router := newTestRouter(t, hash, "")

	rec := doJSON(t, router, "POST", "/api/login", "", map[string]string{"password": "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestServerCRUD(t *testing.T) {
	router := newTestRouter(t, "", "")

	create := ServerRequest{Name: "factory", Address: "10.0.0.5", Port: 27015, Password: "pw", Game: "factorio"}
	rec := doJSON(t, router, "POST", "/api/servers", "", create)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d: %s", rec.Code, rec.Body.String())
	}
	var created struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding created server: %v", err)
	}
	if created.ID == "" || created.Name != "factory" {
		t.Fatalf("created = %+v", created)
	}

	// Duplicate name is rejected
	if rec := doJSON(t, router, "POST", "/api/servers", "", create); rec.Code != http.StatusConflict {
		t.Fatalf("duplicate status = %d, want 409", rec.Code)
	}

	// Rename keeps the id
	create.Name = "megafactory"
	rec = doJSON(t, router, "PUT", "/api/servers/"+created.ID, "", create)
	if rec.Code != http.StatusOK {
		t.Fatalf("update status = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, router, "GET", "/api/servers/"+created.ID, "", nil)
	var got struct {
		Name string `json:"name"`
	}
	json.NewDecoder(rec.Body).Decode(&got)
	if got.Name != "megafactory" {
		t.Errorf("name after rename = %q", got.Name)
	}

	if rec := doJSON(t, router, "DELETE", "/api/servers/"+created.ID, "", nil); rec.Code != http.StatusOK {
		t.Fatalf("delete status = %d", rec.Code)
	}
	if rec := doJSON(t, router, "GET", "/api/servers/"+created.ID, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete = %d, want 404", rec.Code)
	}
}

func TestIngestRequiresRelayToken(t *testing.T) {
	router := newTestRouter(t, "", "relay-secret")

	event := map[string]string{"kind": "chat", "api": "twitch", "username": "bob", "message": "hi"}

	rec := doJSON(t, router, "POST", "/api/integrations/events", "", event)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no token status = %d, want 401", rec.Code)
	}

	var buf bytes.Buffer
	json.NewEncoder(&buf).Encode(event)
	req := httptest.NewRequest("POST", "/api/integrations/events", &buf)
	req.Header.Set("X-Relay-Token", "relay-secret")
	out := httptest.NewRecorder()
	router.ServeHTTP(out, req)
	if out.Code != http.StatusOK {
		t.Fatalf("with token status = %d: %s", out.Code, out.Body.String())
	}

	var result struct {
		Matched int `json:"matched"`
	}
	if err := json.NewDecoder(out.Body).Decode(&result); err != nil {
		t.Fatalf("decoding ingest response: %v", err)
	}
	if result.Matched != 0 {
		t.Errorf("matched = %d, want 0 with no commands registered", result.Matched)
	}
}

func TestHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, "", "")
	rec := doJSON(t, router, "GET", "/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
