// Package integration tracks the status of external platform
// integrations. OAuth happens in a relay process; the panel verifies
// the relay's shared token and tracks connection state.
package integration

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"github.com/madhouse/rconpanel/internal/applog"
	"github.com/madhouse/rconpanel/internal/bus"
	"github.com/madhouse/rconpanel/internal/domain"
)

// ErrNotImplemented is returned for platforms without a relay
// implementation yet.
var ErrNotImplemented = errors.New("integration: not implemented")

var allApis = []domain.Api{
	domain.ApiTwitch,
	domain.ApiYouTube,
	domain.ApiPatreon,
	domain.ApiStreamLabs,
}

// Tracker holds one status per platform and publishes changes.
type Tracker struct {
	bus        *bus.Bus
	log        *applog.Logger
	relayToken string

	mu       sync.Mutex
	statuses map[domain.Api]domain.IntegrationStatus
}

// New creates a tracker with every platform in not_started.
func New(b *bus.Bus, log *applog.Logger, relayToken string) *Tracker {
	statuses := make(map[domain.Api]domain.IntegrationStatus, len(allApis))
	for _, api := range allApis {
		statuses[api] = domain.IntegrationStatus{Api: api, State: domain.IntegrationNotStarted}
	}
	return &Tracker{
		bus:        b,
		log:        log,
		relayToken: relayToken,
		statuses:   statuses,
	}
}

func (t *Tracker) setStatus(status domain.IntegrationStatus) {
	t.mu.Lock()
	prev := t.statuses[status.Api]
	t.statuses[status.Api] = status
	t.mu.Unlock()

	if prev.State == status.State && prev.Reason == status.Reason {
		return
	}
	if t.bus != nil {
		t.bus.Publish(domain.NewEvent(domain.EventTypeIntegration, "", status))
	}
}

// Connect marks a platform as connected when its relay is configured.
// Platforms without a relay implementation report an error status and
// ErrNotImplemented.
func (t *Tracker) Connect(api domain.Api) (domain.IntegrationStatus, error) {
	switch api {
	case domain.ApiTwitch:
		if t.relayToken == "" {
			status := domain.IntegrationStatus{
				Api:    api,
				State:  domain.IntegrationError,
				Reason: "no relay token configured",
			}
			t.setStatus(status)
			return status, fmt.Errorf("integration: no relay token configured for %s", api)
		}
		status := domain.IntegrationStatus{Api: api, State: domain.IntegrationConnected}
		t.setStatus(status)
		t.log.Infof("integration", "%s relay connected", api)
		return status, nil

	case domain.ApiYouTube, domain.ApiPatreon, domain.ApiStreamLabs:
		status := domain.IntegrationStatus{
			Api:    api,
			State:  domain.IntegrationError,
			Reason: "not implemented",
		}
		t.setStatus(status)
		return status, ErrNotImplemented

	default:
		return domain.IntegrationStatus{}, fmt.Errorf("integration: unknown api %q", api)
	}
}

// Disconnect marks a platform as disconnected.
func (t *Tracker) Disconnect(api domain.Api) domain.IntegrationStatus {
	status := domain.IntegrationStatus{Api: api, State: domain.IntegrationDisconnected}
	t.setStatus(status)
	return status
}

// Status returns one platform's current status.
func (t *Tracker) Status(api domain.Api) domain.IntegrationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	status, ok := t.statuses[api]
	if !ok {
		return domain.IntegrationStatus{Api: api, State: domain.IntegrationUnknown}
	}
	return status
}

// Statuses snapshots all platforms.
func (t *Tracker) Statuses() []domain.IntegrationStatus {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]domain.IntegrationStatus, 0, len(allApis))
	for _, api := range allApis {
		out = append(out, t.statuses[api])
	}
	return out
}

// VerifyRelayToken checks the shared token presented by the event
// relay, in constant time.
func (t *Tracker) VerifyRelayToken(token string) bool {
	if t.relayToken == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(token), []byte(t.relayToken)) == 1
}
