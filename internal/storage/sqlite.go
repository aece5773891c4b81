package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/madhouse/rconpanel/internal/domain"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("storage: not found")

// formatTimestamp converts time.Time to SQLite-compatible UTC ISO8601 string.
// The Z suffix ensures the Go sqlite driver parses it back as UTC.
func formatTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// Store provides database access.
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON; PRAGMA journal_mode = WAL; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting pragmas: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// --- Server methods ---

// CreateServer inserts a new server. Names are unique case-insensitively.
func (s *Store) CreateServer(ctx context.Context, srv *domain.Server) error {
	if srv.CreatedAt.IsZero() {
		srv.CreatedAt = time.Now().UTC()
	}
	var start, stop sql.NullString
	if srv.Commands != nil {
		start = sql.NullString{String: srv.Commands.Start, Valid: srv.Commands.Start != ""}
		stop = sql.NullString{String: srv.Commands.Stop, Valid: srv.Commands.Stop != ""}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (id, name, address, port, password, game, start_command, stop_command, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, srv.ID, srv.Name, srv.Address, srv.Port, srv.Password, string(srv.Game), start, stop, formatTimestamp(srv.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE") {
		return fmt.Errorf("server named %q already exists", srv.Name)
	}
	return err
}

// UpdateServer rewrites a server row in place. The id never changes,
// so renames keep trigger bindings intact.
func (s *Store) UpdateServer(ctx context.Context, srv *domain.Server) error {
	var start, stop sql.NullString
	if srv.Commands != nil {
		start = sql.NullString{String: srv.Commands.Start, Valid: srv.Commands.Start != ""}
		stop = sql.NullString{String: srv.Commands.Stop, Valid: srv.Commands.Stop != ""}
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE servers SET name = ?, address = ?, port = ?, password = ?, game = ?, start_command = ?, stop_command = ?
		WHERE id = ?
	`, srv.Name, srv.Address, srv.Port, srv.Password, string(srv.Game), start, stop, srv.ID)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("server named %q already exists", srv.Name)
		}
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteServer removes a server and, via cascade, its trigger bindings.
func (s *Store) DeleteServer(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM servers WHERE id = ?", id)
	if err != nil {
		return err
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanServer(scan func(dest ...interface{}) error) (*domain.Server, error) {
	var srv domain.Server
	var game string
	var start, stop sql.NullString
	var createdAt time.Time
	if err := scan(&srv.ID, &srv.Name, &srv.Address, &srv.Port, &srv.Password, &game, &start, &stop, &createdAt); err != nil {
		return nil, err
	}
	srv.Game = domain.Game(game)
	srv.CreatedAt = createdAt
	srv.Commands = domain.NewServerCommands(start.String, stop.String)
	return &srv, nil
}

const serverColumns = "id, name, address, port, password, game, start_command, stop_command, created_at"

// GetServers returns all servers ordered by name.
func (s *Store) GetServers(ctx context.Context) ([]domain.Server, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+serverColumns+" FROM servers ORDER BY lower(name)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var servers []domain.Server
	for rows.Next() {
		srv, err := scanServer(rows.Scan)
		if err != nil {
			return nil, err
		}
		servers = append(servers, *srv)
	}
	return servers, rows.Err()
}

// GetServerByID returns a server by id.
func (s *Store) GetServerByID(ctx context.Context, id string) (*domain.Server, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+serverColumns+" FROM servers WHERE id = ?", id)
	srv, err := scanServer(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return srv, err
}

// --- Command methods ---

// CreateCommand inserts a command and its trigger bindings in one
// transaction. Names are unique case-insensitively.
func (s *Store) CreateCommand(ctx context.Context, cmd *domain.Command) error {
	if cmd.CreatedAt.IsZero() {
		cmd.CreatedAt = time.Now().UTC()
	}
	rcon, err := json.Marshal(cmd.Rcon)
	if err != nil {
		return fmt.Errorf("encoding rcon payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO commands (name, rcon, created_at) VALUES (?, ?, ?)
	`, cmd.Name, string(rcon), formatTimestamp(cmd.CreatedAt))
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE") {
			return fmt.Errorf("command named %q already exists", cmd.Name)
		}
		return err
	}
	if err := insertTriggers(ctx, tx, cmd.Name, cmd.Triggers); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceTriggers swaps a command's full trigger list atomically.
func (s *Store) ReplaceTriggers(ctx context.Context, name string, triggers []domain.ServerTrigger) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var stored string
	err = tx.QueryRowContext(ctx, "SELECT name FROM commands WHERE name = ?", name).Scan(&stored)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM command_triggers WHERE command_name = ?", stored); err != nil {
		return err
	}
	if err := insertTriggers(ctx, tx, stored, triggers); err != nil {
		return err
	}
	return tx.Commit()
}

func insertTriggers(ctx context.Context, tx *sql.Tx, name string, triggers []domain.ServerTrigger) error {
	for i, st := range triggers {
		trigger, err := json.Marshal(st.Trigger)
		if err != nil {
			return fmt.Errorf("encoding trigger: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO command_triggers (command_name, server_id, trigger, enabled, position)
			VALUES (?, ?, ?, ?, ?)
		`, name, st.ServerID, string(trigger), st.Enabled, i)
		if err != nil {
			return err
		}
	}
	return nil
}

// GetCommands returns all commands with their triggers, ordered by name.
func (s *Store) GetCommands(ctx context.Context) ([]domain.Command, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT name, rcon, created_at FROM commands ORDER BY lower(name)")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var commands []domain.Command
	for rows.Next() {
		var cmd domain.Command
		var rcon string
		var createdAt time.Time
		if err := rows.Scan(&cmd.Name, &rcon, &createdAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(rcon), &cmd.Rcon); err != nil {
			return nil, fmt.Errorf("decoding rcon payload for %q: %w", cmd.Name, err)
		}
		cmd.CreatedAt = createdAt
		commands = append(commands, cmd)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range commands {
		triggers, err := s.getTriggers(ctx, commands[i].Name)
		if err != nil {
			return nil, err
		}
		commands[i].Triggers = triggers
	}
	return commands, nil
}

func (s *Store) getTriggers(ctx context.Context, name string) ([]domain.ServerTrigger, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT server_id, trigger, enabled FROM command_triggers
		WHERE command_name = ? ORDER BY position
	`, name)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var triggers []domain.ServerTrigger
	for rows.Next() {
		var st domain.ServerTrigger
		var trigger string
		if err := rows.Scan(&st.ServerID, &trigger, &st.Enabled); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(trigger), &st.Trigger); err != nil {
			return nil, fmt.Errorf("decoding trigger for %q: %w", name, err)
		}
		triggers = append(triggers, st)
	}
	return triggers, rows.Err()
}

// --- Command log methods ---

// AppendCommandLog records one dispatch attempt. Entries are never
// updated afterwards.
func (s *Store) AppendCommandLog(ctx context.Context, entry *domain.CommandLog) error {
	trigger, err := json.Marshal(entry.Trigger)
	if err != nil {
		return fmt.Errorf("encoding trigger: %w", err)
	}
	event, err := json.Marshal(entry.Event)
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO command_logs (id, time, username, command_name, command, server_id, trigger, message, event, outcome, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, entry.ID, formatTimestamp(entry.Time), entry.Username, entry.CommandName, entry.Command,
		entry.ServerID, string(trigger), entry.Message, string(event), entry.Outcome, entry.Error)
	return err
}

// GetCommandLogs returns entries at or after since, oldest first.
// A zero since returns everything.
func (s *Store) GetCommandLogs(ctx context.Context, since time.Time) ([]domain.CommandLog, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, time, username, command_name, command, server_id, trigger, message, event, outcome, error
		FROM command_logs WHERE time >= ? ORDER BY time, id
	`, formatTimestamp(since))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []domain.CommandLog
	for rows.Next() {
		entry, err := scanCommandLog(rows.Scan)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

// GetCommandLog returns one entry by id.
func (s *Store) GetCommandLog(ctx context.Context, id string) (*domain.CommandLog, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, time, username, command_name, command, server_id, trigger, message, event, outcome, error
		FROM command_logs WHERE id = ?
	`, id)
	entry, err := scanCommandLog(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return entry, err
}

func scanCommandLog(scan func(dest ...interface{}) error) (*domain.CommandLog, error) {
	var entry domain.CommandLog
	var ts time.Time
	var trigger, event string
	var message, errText sql.NullString
	if err := scan(&entry.ID, &ts, &entry.Username, &entry.CommandName, &entry.Command,
		&entry.ServerID, &trigger, &message, &event, &entry.Outcome, &errText); err != nil {
		return nil, err
	}
	entry.Time = ts
	entry.Message = message.String
	entry.Error = errText.String
	if err := json.Unmarshal([]byte(trigger), &entry.Trigger); err != nil {
		return nil, fmt.Errorf("decoding trigger for log %s: %w", entry.ID, err)
	}
	if err := json.Unmarshal([]byte(event), &entry.Event); err != nil {
		return nil, fmt.Errorf("decoding event for log %s: %w", entry.ID, err)
	}
	return &entry, nil
}

// --- Settings methods ---

// GetSetting reads one settings key. Missing keys return ErrNotFound.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	return value, err
}

// SetSetting upserts one settings key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value)
	return err
}
