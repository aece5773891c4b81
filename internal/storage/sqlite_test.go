package storage

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/madhouse/rconpanel/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func testServer(id, name string) *domain.Server {
	return &domain.Server{
		ID: id, Name: name, Address: "127.0.0.1", Port: 27015,
		Password: "pw", Game: domain.GameFactorio,
	}
}

func TestServerRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := testServer("srv-1", "main")
	srv.Commands = domain.NewServerCommands("systemctl start factorio", "")
	if err := s.CreateServer(ctx, srv); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	got, err := s.GetServerByID(ctx, "srv-1")
	if err != nil {
		t.Fatalf("GetServerByID: %v", err)
	}
	if got.Name != "main" || got.Game != domain.GameFactorio || got.Port != 27015 {
		t.Errorf("got %+v", got)
	}
	if got.Commands == nil || got.Commands.Start != "systemctl start factorio" || got.Commands.Stop != "" {
		t.Errorf("commands = %+v", got.Commands)
	}
}

func TestServerNameUniqueCaseInsensitive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateServer(ctx, testServer("srv-1", "Main")); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	if err := s.CreateServer(ctx, testServer("srv-2", "main")); err == nil {
		t.Error("names differing only in case should collide")
	}
}

// Renaming rewrites the row under the same id, so trigger bindings
// keyed by server id survive.
func TestServerRenameKeepsID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	srv := testServer("srv-1", "old-name")
	if err := s.CreateServer(ctx, srv); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	srv.Name = "new-name"
	if err := s.UpdateServer(ctx, srv); err != nil {
		t.Fatalf("UpdateServer: %v", err)
	}

	got, err := s.GetServerByID(ctx, "srv-1")
	if err != nil {
		t.Fatalf("GetServerByID: %v", err)
	}
	if got.Name != "new-name" {
		t.Errorf("name = %q", got.Name)
	}
}

func TestUpdateServerNotFound(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpdateServer(context.Background(), testServer("ghost", "x")); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestDeleteServerCascadesTriggers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateServer(ctx, testServer("srv-1", "main")); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	cmd := &domain.Command{
		Name: "greet",
		Rcon: domain.RconCommand{
			Prefix: domain.Prefix{Kind: domain.PrefixSC},
			Lua:    domain.LuaCommand{Kind: domain.LuaInline, Body: "game.print(1)"},
		},
		Triggers: []domain.ServerTrigger{{
			ServerID: "srv-1",
			Trigger:  domain.Trigger{Kind: domain.TriggerChat, Pattern: "!hi"},
			Enabled:  true,
		}},
	}
	if err := s.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}

	if err := s.DeleteServer(ctx, "srv-1"); err != nil {
		t.Fatalf("DeleteServer: %v", err)
	}

	cmds, err := s.GetCommands(ctx)
	if err != nil {
		t.Fatalf("GetCommands: %v", err)
	}
	if len(cmds) != 1 || len(cmds[0].Triggers) != 0 {
		t.Errorf("triggers after server delete: %+v", cmds[0].Triggers)
	}
}

func TestCommandRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateServer(ctx, testServer("srv-1", "main")); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	cmd := &domain.Command{
		Name: "spawn",
		Rcon: domain.RconCommand{
			Prefix:    domain.Prefix{Kind: domain.PrefixSC},
			Lua:       domain.LuaCommand{Kind: domain.LuaInline, Body: "spawn(x)"},
			Variables: []domain.Variable{{Name: "x", Type: domain.VarInt, Default: "5"}},
		},
		Triggers: []domain.ServerTrigger{{
			ServerID: "srv-1",
			Trigger:  domain.Trigger{Kind: domain.TriggerGiftSub, Tier: domain.Tier1, TierCmp: domain.CmpGe, Count: 5, CountCmp: domain.CmpGe},
			Enabled:  true,
		}},
	}
	if err := s.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}

	cmds, err := s.GetCommands(ctx)
	if err != nil {
		t.Fatalf("GetCommands: %v", err)
	}
	if len(cmds) != 1 {
		t.Fatalf("got %d commands", len(cmds))
	}
	got := cmds[0]
	if got.Rcon.Lua.Body != "spawn(x)" || len(got.Rcon.Variables) != 1 {
		t.Errorf("rcon payload = %+v", got.Rcon)
	}
	if len(got.Triggers) != 1 || got.Triggers[0].Trigger.Kind != domain.TriggerGiftSub {
		t.Errorf("triggers = %+v", got.Triggers)
	}
}

func TestReplaceTriggers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.CreateServer(ctx, testServer("srv-1", "main")); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}
	if err := s.CreateServer(ctx, testServer("srv-2", "second")); err != nil {
		t.Fatalf("CreateServer: %v", err)
	}

	cmd := &domain.Command{
		Name: "greet",
		Rcon: domain.RconCommand{
			Prefix: domain.Prefix{Kind: domain.PrefixSC},
			Lua:    domain.LuaCommand{Kind: domain.LuaInline, Body: "game.print(1)"},
		},
		Triggers: []domain.ServerTrigger{{
			ServerID: "srv-1",
			Trigger:  domain.Trigger{Kind: domain.TriggerChat, Pattern: "!old"},
			Enabled:  true,
		}},
	}
	if err := s.CreateCommand(ctx, cmd); err != nil {
		t.Fatalf("CreateCommand: %v", err)
	}

	err := s.ReplaceTriggers(ctx, "greet", []domain.ServerTrigger{{
		ServerID: "srv-2",
		Trigger:  domain.Trigger{Kind: domain.TriggerChat, Pattern: "!new"},
		Enabled:  true,
	}})
	if err != nil {
		t.Fatalf("ReplaceTriggers: %v", err)
	}

	cmds, err := s.GetCommands(ctx)
	if err != nil {
		t.Fatalf("GetCommands: %v", err)
	}
	triggers := cmds[0].Triggers
	if len(triggers) != 1 || triggers[0].ServerID != "srv-2" || triggers[0].Trigger.Pattern != "!new" {
		t.Errorf("triggers = %+v", triggers)
	}
}

func TestReplaceTriggersUnknownCommand(t *testing.T) {
	s := newTestStore(t)
	if err := s.ReplaceTriggers(context.Background(), "ghost", nil); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestCommandLogsSurviveReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.db")
	ctx := context.Background()

	s, err := New(path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	entry := &domain.CommandLog{
		ID:          "log-1",
		Time:        time.Now().UTC(),
		Username:    "bob",
		CommandName: "greet",
		Command:     "/silent-command game.print('Hi bob')",
		ServerID:    "srv-1",
		Trigger:     domain.Trigger{Kind: domain.TriggerChat, Pattern: "!greet"},
		Message:     "!greet",
		Event:       domain.IntegrationEvent{Kind: domain.EventChat, Username: "bob", Message: "!greet"},
		Outcome:     domain.OutcomeSent,
	}
	if err := s.AppendCommandLog(ctx, entry); err != nil {
		t.Fatalf("AppendCommandLog: %v", err)
	}
	s.Close()

	s, err = New(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()

	got, err := s.GetCommandLog(ctx, "log-1")
	if err != nil {
		t.Fatalf("GetCommandLog: %v", err)
	}
	if got.Command != entry.Command || got.Username != "bob" || got.Event.Message != "!greet" {
		t.Errorf("got %+v", got)
	}
}

func TestCommandLogsSinceOrdering(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"log-1", "log-2", "log-3"} {
		entry := &domain.CommandLog{
			ID: id, Time: base.Add(time.Duration(i) * time.Minute),
			Username: "bob", CommandName: "greet", Command: "x", ServerID: "s1",
			Trigger: domain.Trigger{Kind: domain.TriggerChat, Pattern: "!x"},
			Event:   domain.IntegrationEvent{Kind: domain.EventChat, Message: "!x"},
			Outcome: domain.OutcomeSent,
		}
		if err := s.AppendCommandLog(ctx, entry); err != nil {
			t.Fatalf("AppendCommandLog: %v", err)
		}
	}

	got, err := s.GetCommandLogs(ctx, base.Add(30*time.Second))
	if err != nil {
		t.Fatalf("GetCommandLogs: %v", err)
	}
	if len(got) != 2 || got[0].ID != "log-2" || got[1].ID != "log-3" {
		ids := make([]string, len(got))
		for i, e := range got {
			ids[i] = e.ID
		}
		t.Errorf("since filter returned %v", ids)
	}
}

func TestSettings(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "default_server"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing key: got %v, want ErrNotFound", err)
	}
	if err := s.SetSetting(ctx, "default_server", "srv-1"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "default_server", "srv-2"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	got, err := s.GetSetting(ctx, "default_server")
	if err != nil || got != "srv-2" {
		t.Errorf("GetSetting = %q, %v", got, err)
	}
}
