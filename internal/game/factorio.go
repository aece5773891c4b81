// Package game looks up game-level liveness from the Factorio
// matchmaking API, independent of the RCON connection.
package game

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/madhouse/rconpanel/internal/bus"
	"github.com/madhouse/rconpanel/internal/domain"
)

const matchmakingURL = "https://multiplayer.factorio.com/get-games"

// Heartbeats older than this count as offline.
const heartbeatMaxAge = 2 * time.Minute

// Prober queries the matchmaking API and caches the latest result per
// server.
type Prober struct {
	client   *http.Client
	bus      *bus.Bus
	username string
	token    string

	mu     sync.Mutex
	latest map[string]domain.GameServerStatus
}

// New creates a prober. Username and token are the factorio.com
// credentials; without them probes fail fast.
func New(b *bus.Bus, username, token string) *Prober {
	return &Prober{
		client:   &http.Client{Timeout: 10 * time.Second},
		bus:      b,
		username: username,
		token:    token,
		latest:   make(map[string]domain.GameServerStatus),
	}
}

type matchmakingGame struct {
	Name          string   `json:"name"`
	LastHeartbeat float64  `json:"last_heartbeat"`
	Players       []string `json:"players"`
}

// Probe looks the server up by name, caches the result, and publishes
// it. Only Factorio servers can be probed.
func (p *Prober) Probe(ctx context.Context, srv *domain.Server) (domain.GameServerStatus, error) {
	if srv.Game != domain.GameFactorio {
		return domain.GameServerStatus{}, fmt.Errorf("game status lookup is not supported for %s", srv.Game)
	}
	if p.username == "" || p.token == "" {
		return domain.GameServerStatus{}, fmt.Errorf("factorio matchmaking credentials are not configured")
	}

	q := url.Values{}
	q.Set("username", p.username)
	q.Set("token", p.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, matchmakingURL+"?"+q.Encode(), nil)
	if err != nil {
		return domain.GameServerStatus{}, err
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.GameServerStatus{}, fmt.Errorf("querying matchmaking: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return domain.GameServerStatus{}, fmt.Errorf("matchmaking returned %s", resp.Status)
	}

	var games []matchmakingGame
	if err := json.NewDecoder(resp.Body).Decode(&games); err != nil {
		return domain.GameServerStatus{}, fmt.Errorf("decoding matchmaking response: %w", err)
	}

	status := domain.GameServerStatus{
		ServerID:  srv.ID,
		Name:      srv.Name,
		CheckedAt: time.Now().UTC(),
	}
	for _, g := range games {
		if g.Name != srv.Name {
			continue
		}
		status.LastHeartbeat = time.Unix(int64(g.LastHeartbeat), 0).UTC()
		status.Online = time.Since(status.LastHeartbeat) < heartbeatMaxAge
		status.Players = g.Players
		break
	}

	p.mu.Lock()
	p.latest[srv.ID] = status
	p.mu.Unlock()

	if p.bus != nil {
		p.bus.Publish(domain.NewEvent(domain.EventTypeGameStatus, srv.ID, status))
	}
	return status, nil
}

// Latest returns the cached status for a server, if any probe has run.
func (p *Prober) Latest(serverID string) (domain.GameServerStatus, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	status, ok := p.latest[serverID]
	return status, ok
}
