package domain

import (
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// Game identifies which game a server runs. The RCON dialect differs
// slightly between games (Factorio skips the empty auth preamble packet).
type Game string

const (
	GameFactorio     Game = "Factorio"
	GameSatisfactory Game = "Satisfactory"
)

// ParseGame converts a user-supplied game name, case-insensitively.
func ParseGame(s string) (Game, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "factorio":
		return GameFactorio, nil
	case "satisfactory":
		return GameSatisfactory, nil
	default:
		return "", fmt.Errorf("invalid game: %q", s)
	}
}

// Server is a registered game server. ID is assigned at creation and
// stays stable across renames.
type Server struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Address   string          `json:"address"`
	Port      int             `json:"port"`
	Password  string          `json:"password"`
	Game      Game            `json:"game"`
	Commands  *ServerCommands `json:"commands,omitempty"`
	CreatedAt time.Time       `json:"created_at,omitempty"`
}

// Addr returns the host:port dial target.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Address, strconv.Itoa(s.Port))
}

// Validate checks the fields a server needs before it can be stored.
func (s *Server) Validate() error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("server name is required")
	}
	if strings.TrimSpace(s.Address) == "" {
		return fmt.Errorf("server address is required")
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("server port must be 1-65535, got %d", s.Port)
	}
	if _, err := ParseGame(string(s.Game)); err != nil {
		return err
	}
	return nil
}

// ServerCommands holds optional shell commands to start and stop the
// game server process itself. Blank strings normalize to unset.
type ServerCommands struct {
	Start string `json:"start,omitempty"`
	Stop  string `json:"stop,omitempty"`
}

// NewServerCommands trims both commands and returns nil if neither is set.
func NewServerCommands(start, stop string) *ServerCommands {
	start = strings.TrimSpace(start)
	stop = strings.TrimSpace(stop)
	if start == "" && stop == "" {
		return nil
	}
	return &ServerCommands{Start: start, Stop: stop}
}

// ConnState is the connection lifecycle state of a managed server.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateChecking     ConnState = "checking"
	StateConnected    ConnState = "connected"
	StateError        ConnState = "error"
)

// ServerStatus is a point-in-time view of a server's connection state.
type ServerStatus struct {
	ServerID string    `json:"server_id"`
	State    ConnState `json:"state"`
	Error    string    `json:"error,omitempty"`
}

// GameServerStatus reports game-level liveness from the matchmaking
// heartbeat, independent of our RCON connection.
type GameServerStatus struct {
	ServerID      string    `json:"server_id"`
	Name          string    `json:"name"`
	Online        bool      `json:"online"`
	LastHeartbeat time.Time `json:"last_heartbeat,omitempty"`
	Players       []string  `json:"players,omitempty"`
	CheckedAt     time.Time `json:"checked_at"`
}
