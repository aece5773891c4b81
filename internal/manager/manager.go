// Package manager owns the per-server RCON connection lifecycle:
// connect, health checks, serialized sends, disconnect. State changes
// are published on the bus only when the state actually changes.
package manager

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/madhouse/rconpanel/internal/applog"
	"github.com/madhouse/rconpanel/internal/bus"
	"github.com/madhouse/rconpanel/internal/domain"
	"github.com/madhouse/rconpanel/internal/rcon"
	"github.com/madhouse/rconpanel/internal/storage"
)

// ErrNotConnected is returned by Send when the server has no live
// connection.
var ErrNotConnected = errors.New("manager: server is not connected")

// client is the slice of rcon.Conn the manager uses; tests substitute
// their own.
type client interface {
	Execute(ctx context.Context, command string) (string, error)
	Close() error
}

type dialFunc func(addr, password string, opts rcon.Options) (client, error)

// serverConn tracks one server's connection. sendMu serializes
// commands to the server; state is guarded by the manager mutex.
type serverConn struct {
	sendMu sync.Mutex
	state  domain.ConnState
	client client
	reason string
}

// Options tune the manager.
type Options struct {
	// HealthInterval is how often connected servers are probed.
	HealthInterval time.Duration
	// Timeout bounds dials and command round trips.
	Timeout time.Duration
}

// Manager supervises all server connections.
type Manager struct {
	store *storage.Store
	bus   *bus.Bus
	log   *applog.Logger
	opts  Options
	dial  dialFunc

	mu    sync.Mutex
	conns map[string]*serverConn

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a manager. Run starts the health loop.
func New(store *storage.Store, b *bus.Bus, log *applog.Logger, opts Options) *Manager {
	if opts.HealthInterval == 0 {
		opts.HealthInterval = 5 * time.Second
	}
	if opts.Timeout == 0 {
		opts.Timeout = rcon.DefaultTimeout
	}
	return &Manager{
		store: store,
		bus:   b,
		log:   log,
		opts:  opts,
		dial: func(addr, password string, rconOpts rcon.Options) (client, error) {
			return rcon.Dial(addr, password, rconOpts)
		},
		conns: make(map[string]*serverConn),
		done:  make(chan struct{}),
	}
}

// Run starts the periodic health loop. Stop shuts it down.
func (m *Manager) Run() {
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		ticker := time.NewTicker(m.opts.HealthInterval)
		defer ticker.Stop()
		for {
			select {
			case <-m.done:
				return
			case <-ticker.C:
				m.healthSweep()
			}
		}
	}()
}

// Stop ends the health loop and closes every connection.
func (m *Manager) Stop() {
	close(m.done)
	m.wg.Wait()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, sc := range m.conns {
		if sc.client != nil {
			sc.client.Close()
			sc.client = nil
		}
		sc.state = domain.StateDisconnected
	}
}

func (m *Manager) conn(serverID string) *serverConn {
	if sc, ok := m.conns[serverID]; ok {
		return sc
	}
	sc := &serverConn{state: domain.StateDisconnected}
	m.conns[serverID] = sc
	return sc
}

// setState transitions a server and publishes the change. Returns
// false if the state (and reason) were already current, in which case
// nothing is published.
func (m *Manager) setState(serverID string, sc *serverConn, state domain.ConnState, reason string) bool {
	if sc.state == state && sc.reason == reason {
		return false
	}
	sc.state = state
	sc.reason = reason
	m.bus.Publish(domain.NewStatusEvent(domain.ServerStatus{
		ServerID: serverID,
		State:    state,
		Error:    reason,
	}))
	return true
}

func rconOptions(srv *domain.Server, timeout time.Duration) rcon.Options {
	return rcon.Options{
		DialTimeout:    timeout,
		ExecTimeout:    timeout,
		FactorioQuirks: srv.Game == domain.GameFactorio,
	}
}

// Connect establishes a connection. Connecting is entered before the
// dial, so at most one attempt is in flight per server; calling
// Connect on a connected or already-connecting server is a no-op that
// returns the current status.
func (m *Manager) Connect(ctx context.Context, serverID string) (domain.ServerStatus, error) {
	srv, err := m.store.GetServerByID(ctx, serverID)
	if err != nil {
		return domain.ServerStatus{}, err
	}

	m.mu.Lock()
	sc := m.conn(serverID)
	switch sc.state {
	case domain.StateConnected, domain.StateConnecting, domain.StateChecking:
		status := m.statusLocked(serverID, sc)
		m.mu.Unlock()
		return status, nil
	}
	m.setState(serverID, sc, domain.StateConnecting, "")
	m.mu.Unlock()

	c, dialErr := m.dial(srv.Addr(), srv.Password, rconOptions(srv, m.opts.Timeout))

	m.mu.Lock()
	defer m.mu.Unlock()
	if dialErr != nil {
		m.setState(serverID, sc, domain.StateError, dialErr.Error())
		m.log.Errorf("manager", "connect %s (%s): %v", srv.Name, srv.Addr(), dialErr)
		return m.statusLocked(serverID, sc), dialErr
	}
	sc.client = c
	m.setState(serverID, sc, domain.StateConnected, "")
	m.log.Infof("manager", "connected to %s (%s)", srv.Name, srv.Addr())
	return m.statusLocked(serverID, sc), nil
}

// Check runs a live round trip against the server right now. On
// failure the connection is torn down and the server transitions to
// error.
func (m *Manager) Check(ctx context.Context, serverID string) (domain.ServerStatus, error) {
	m.mu.Lock()
	sc := m.conn(serverID)
	if sc.client == nil {
		status := m.statusLocked(serverID, sc)
		m.mu.Unlock()
		return status, ErrNotConnected
	}
	c := sc.client
	m.setState(serverID, sc, domain.StateChecking, "")
	m.mu.Unlock()

	_, probeErr := c.Execute(ctx, "")

	m.mu.Lock()
	defer m.mu.Unlock()
	if probeErr != nil {
		c.Close()
		sc.client = nil
		m.setState(serverID, sc, domain.StateError, probeErr.Error())
		m.log.Warnf("manager", "health check failed for %s: %v", serverID, probeErr)
		return m.statusLocked(serverID, sc), probeErr
	}
	m.setState(serverID, sc, domain.StateConnected, "")
	return m.statusLocked(serverID, sc), nil
}

// Disconnect closes the connection. Idempotent; disconnecting an
// already-disconnected server publishes nothing. The close happens
// outside the manager lock so an in-flight send on this server fails
// fast without stalling operations on other servers.
func (m *Manager) Disconnect(serverID string) domain.ServerStatus {
	m.mu.Lock()
	sc := m.conn(serverID)
	c := sc.client
	sc.client = nil
	if m.setState(serverID, sc, domain.StateDisconnected, "") {
		m.log.Infof("manager", "disconnected from %s", serverID)
	}
	status := m.statusLocked(serverID, sc)
	m.mu.Unlock()

	if c != nil {
		c.Close()
	}
	return status
}

// Send executes one command on a connected server. Sends to the same
// server are serialized; a transport failure tears the connection down
// and surfaces the error unchanged.
func (m *Manager) Send(ctx context.Context, serverID, command string) (string, error) {
	m.mu.Lock()
	sc := m.conn(serverID)
	// A manual check in flight parks the state at checking but the
	// connection is live; only a missing client means not connected.
	live := sc.state == domain.StateConnected || sc.state == domain.StateChecking
	if !live || sc.client == nil {
		m.mu.Unlock()
		return "", ErrNotConnected
	}
	c := sc.client
	m.mu.Unlock()

	sc.sendMu.Lock()
	resp, err := c.Execute(ctx, command)
	sc.sendMu.Unlock()

	if err != nil {
		var netErr *rcon.NetError
		if errors.As(err, &netErr) || errors.Is(err, rcon.ErrClosed) {
			m.mu.Lock()
			if sc.client == c {
				c.Close()
				sc.client = nil
				m.setState(serverID, sc, domain.StateError, err.Error())
			}
			m.mu.Unlock()
		}
		return "", err
	}
	return resp, nil
}

func (m *Manager) statusLocked(serverID string, sc *serverConn) domain.ServerStatus {
	return domain.ServerStatus{ServerID: serverID, State: sc.state, Error: sc.reason}
}

// Status reports one server's current state. Servers never touched
// report disconnected.
func (m *Manager) Status(serverID string) domain.ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked(serverID, m.conn(serverID))
}

// Statuses snapshots every tracked server.
func (m *Manager) Statuses() map[string]domain.ServerStatus {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]domain.ServerStatus, len(m.conns))
	for id, sc := range m.conns {
		out[id] = m.statusLocked(id, sc)
	}
	return out
}

// healthSweep probes every connected server once. The sweep reuses
// Check's teardown semantics but keeps quiet while the state is
// unchanged.
func (m *Manager) healthSweep() {
	m.mu.Lock()
	type probe struct {
		id string
		sc *serverConn
		c  client
	}
	var probes []probe
	for id, sc := range m.conns {
		if sc.state == domain.StateConnected && sc.client != nil {
			probes = append(probes, probe{id: id, sc: sc, c: sc.client})
		}
	}
	m.mu.Unlock()

	for _, p := range probes {
		ctx, cancel := context.WithTimeout(context.Background(), m.opts.Timeout)
		_, err := p.c.Execute(ctx, "")
		cancel()

		if err == nil {
			continue
		}
		m.mu.Lock()
		if p.sc.client == p.c {
			p.c.Close()
			p.sc.client = nil
			m.setState(p.id, p.sc, domain.StateError, err.Error())
			m.log.Warnf("manager", "health check failed for %s: %v", p.id, err)
		}
		m.mu.Unlock()
	}
}

// StartStop runs the server's configured start or stop shell command.
func (m *Manager) StartStop(ctx context.Context, serverID string, start bool) error {
	srv, err := m.store.GetServerByID(ctx, serverID)
	if err != nil {
		return err
	}
	if srv.Commands == nil {
		if start {
			return fmt.Errorf("server %q has no start command", srv.Name)
		}
		return fmt.Errorf("server %q has no stop command", srv.Name)
	}
	return runServerCommand(ctx, srv, start, m.log)
}
