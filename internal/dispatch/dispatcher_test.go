package dispatch

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/madhouse/rconpanel/internal/applog"
	"github.com/madhouse/rconpanel/internal/domain"
	"github.com/madhouse/rconpanel/internal/registry"
	"github.com/madhouse/rconpanel/internal/storage"
)

type fakeSender struct {
	mu   sync.Mutex
	sent map[string][]string
	fail map[string]error
}

func newFakeSender() *fakeSender {
	return &fakeSender{sent: make(map[string][]string), fail: make(map[string]error)}
}

func (f *fakeSender) Send(ctx context.Context, serverID, command string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail[serverID]; err != nil {
		return "", err
	}
	f.sent[serverID] = append(f.sent[serverID], command)
	return "", nil
}

func (f *fakeSender) sentTo(serverID string) []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.sent[serverID]...)
}

type testEnv struct {
	d      *Dispatcher
	reg    *registry.Registry
	sender *fakeSender
	store  *storage.Store
	dir    string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	dir := t.TempDir()
	store, err := storage.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	reg, err := registry.New(context.Background(), nil)
	if err != nil {
		t.Fatalf("registry.New: %v", err)
	}

	sender := newFakeSender()
	d := New(reg, sender, store, nil, applog.New(nil), dir)
	return &testEnv{d: d, reg: reg, sender: sender, store: store, dir: dir}
}

func (env *testEnv) create(t *testing.T, cmd domain.Command) {
	t.Helper()
	if _, err := env.reg.Create(context.Background(), cmd); err != nil {
		t.Fatalf("Create(%s): %v", cmd.Name, err)
	}
}

func chatCommand(name, body string, serverIDs ...string) domain.Command {
	cmd := domain.Command{
		Name: name,
		Rcon: domain.RconCommand{
			Prefix: domain.Prefix{Kind: domain.PrefixCustom},
			Lua:    domain.LuaCommand{Kind: domain.LuaInline, Body: body},
		},
	}
	for _, id := range serverIDs {
		cmd.Triggers = append(cmd.Triggers, domain.ServerTrigger{
			ServerID: id,
			Trigger:  domain.Trigger{Kind: domain.TriggerChat, Pattern: "!" + name},
			Enabled:  true,
		})
	}
	return cmd
}

func chatEvent(username, message string) domain.IntegrationEvent {
	return domain.IntegrationEvent{Kind: domain.EventChat, Username: username, Message: message}
}

func TestRenderSubstitutesUsername(t *testing.T) {
	env := newTestEnv(t)

	rc := domain.RconCommand{
		Prefix: domain.Prefix{Kind: domain.PrefixCustom},
		Lua:    domain.LuaCommand{Kind: domain.LuaInline, Body: "/sc game.print('Hi %%USERNAME%%')"},
	}
	got, err := env.d.Render(rc, chatEvent("bob", "!greet"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "/sc game.print('Hi bob')" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderVariableLocals(t *testing.T) {
	env := newTestEnv(t)

	rc := domain.RconCommand{
		Prefix:    domain.Prefix{Kind: domain.PrefixSC},
		Lua:       domain.LuaCommand{Kind: domain.LuaInline, Body: "game.print(x);"},
		Variables: []domain.Variable{{Name: "x", Type: domain.VarInt, Default: "5"}},
	}

	got, err := env.d.Render(rc, chatEvent("bob", "!print"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "/silent-command local x = 5;\ngame.print(x);" {
		t.Errorf("Render = %q", got)
	}

	// The chat message overrides the default.
	got, err = env.d.Render(rc, chatEvent("bob", "!print x=20"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "/silent-command local x = 20;\ngame.print(x);" {
		t.Errorf("Render with message value = %q", got)
	}
}

func TestRenderUsernameVariable(t *testing.T) {
	env := newTestEnv(t)

	rc := domain.RconCommand{
		Prefix:    domain.Prefix{Kind: domain.PrefixSC},
		Lua:       domain.LuaCommand{Kind: domain.LuaInline, Body: "game.print(USERNAME);"},
		Variables: []domain.Variable{{Name: "USERNAME", Type: domain.VarString}},
	}
	got, err := env.d.Render(rc, chatEvent("bob", "!who"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "/silent-command local USERNAME = \"bob\";\ngame.print(USERNAME);" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderUnresolvedPlaceholderStays(t *testing.T) {
	env := newTestEnv(t)

	rc := domain.RconCommand{
		Prefix: domain.Prefix{Kind: domain.PrefixCustom},
		Lua:    domain.LuaCommand{Kind: domain.LuaInline, Body: "say %%NOPE%%"},
	}
	got, err := env.d.Render(rc, chatEvent("bob", "hi"))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "say %%NOPE%%" {
		t.Errorf("unresolved placeholder rewritten: %q", got)
	}
}

func TestRenderMissingVariableValue(t *testing.T) {
	env := newTestEnv(t)

	rc := domain.RconCommand{
		Prefix:    domain.Prefix{Kind: domain.PrefixSC},
		Lua:       domain.LuaCommand{Kind: domain.LuaInline, Body: "game.print(x);"},
		Variables: []domain.Variable{{Name: "x", Type: domain.VarInt}},
	}
	if _, err := env.d.Render(rc, chatEvent("bob", "!print")); err == nil {
		t.Error("variable without value should fail the render")
	}
}

func TestRenderFileBody(t *testing.T) {
	env := newTestEnv(t)

	path := filepath.Join(env.dir, "hello.lua")
	if err := os.WriteFile(path, []byte("game.print('from file')\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	rc := domain.RconCommand{
		Prefix: domain.Prefix{Kind: domain.PrefixSC},
		Lua:    domain.LuaCommand{Kind: domain.LuaFile, Path: "hello.lua"},
	}
	got, err := env.d.Render(rc, chatEvent("bob", ""))
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	if got != "/silent-command game.print('from file')" {
		t.Errorf("Render = %q", got)
	}
}

func TestRenderMissingFileFailsDispatchOnly(t *testing.T) {
	env := newTestEnv(t)

	cmd := domain.Command{
		Name: "ghost",
		Rcon: domain.RconCommand{
			Prefix: domain.Prefix{Kind: domain.PrefixSC},
			Lua:    domain.LuaCommand{Kind: domain.LuaFile, Path: "missing.lua"},
		},
		Triggers: []domain.ServerTrigger{{
			ServerID: "s1",
			Trigger:  domain.Trigger{Kind: domain.TriggerChat, Pattern: "!ghost"},
			Enabled:  true,
		}},
	}
	// Registration succeeds; the file is only resolved at render time.
	env.create(t, cmd)

	entries, err := env.d.HandleEvent(context.Background(), chatEvent("bob", "!ghost"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(entries) != 1 || entries[0].Outcome != domain.OutcomeFailed {
		t.Errorf("entries = %+v", entries)
	}
}

func TestRenderDeterministic(t *testing.T) {
	env := newTestEnv(t)

	rc := domain.RconCommand{
		Prefix: domain.Prefix{Kind: domain.PrefixSC},
		Lua:    domain.LuaCommand{Kind: domain.LuaInline, Body: "game.print('%%USERNAME%% says %%MESSAGE%%');"},
		Variables: []domain.Variable{
			{Name: "x", Type: domain.VarInt, Default: "1"},
			{Name: "y", Type: domain.VarFloat, Default: "2.5"},
		},
	}
	ev := chatEvent("bob", "!run x=9")

	first, err := env.d.Render(rc, ev)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := env.d.Render(rc, ev)
		if err != nil {
			t.Fatalf("Render: %v", err)
		}
		if again != first {
			t.Fatalf("render not deterministic: %q vs %q", first, again)
		}
	}
}

// One server failing must not stop dispatch to the others, and both
// attempts are logged.
func TestHandleEventPerServerIsolation(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, chatCommand("cheer", "game.print('cheer')", "s1", "s2"))
	env.sender.fail["s2"] = errors.New("not connected")

	entries, err := env.d.HandleEvent(context.Background(), chatEvent("bob", "!cheer"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(entries))
	}

	outcomes := map[string]string{}
	for _, e := range entries {
		outcomes[e.ServerID] = e.Outcome
	}
	if outcomes["s1"] != domain.OutcomeSent || outcomes["s2"] != domain.OutcomeFailed {
		t.Errorf("outcomes = %v", outcomes)
	}
	if got := env.sender.sentTo("s1"); len(got) != 1 {
		t.Errorf("s1 received %d commands", len(got))
	}

	stored, err := env.d.Logs(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d log entries, want 2", len(stored))
	}
}

func TestHandleEventNoMatches(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, chatCommand("cheer", "game.print('cheer')", "s1"))

	entries, err := env.d.HandleEvent(context.Background(), chatEvent("bob", "nothing"))
	if err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("got %d entries, want 0", len(entries))
	}
}

func TestSendManual(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, chatCommand("cheer", "game.print('cheer')", "s1"))

	entry, err := env.d.SendManual(context.Background(), "s1", "cheer")
	if err != nil {
		t.Fatalf("SendManual: %v", err)
	}
	if entry.Username != ManualUsername {
		t.Errorf("username = %q, want %q", entry.Username, ManualUsername)
	}
	if entry.Trigger.Kind != domain.TriggerManual {
		t.Errorf("trigger kind = %q", entry.Trigger.Kind)
	}
	if got := env.sender.sentTo("s1"); len(got) != 1 || got[0] != "game.print('cheer')" {
		t.Errorf("sent = %v", got)
	}
}

func TestSendManualUnknownCommand(t *testing.T) {
	env := newTestEnv(t)
	if _, err := env.d.SendManual(context.Background(), "s1", "nope"); err == nil {
		t.Error("unknown command should fail")
	}
}

// ResendCommand must send the stored string byte for byte, even after
// the command's trigger list or template has moved on.
func TestResendCommandUsesStoredString(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, chatCommand("greet", "game.print('Hi %%USERNAME%%')", "s1"))

	entries, err := env.d.HandleEvent(context.Background(), chatEvent("bob", "!greet"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("HandleEvent: %v, %d entries", err, len(entries))
	}
	original := entries[0]

	// Rebind the command elsewhere; the stored entry must not care.
	if _, err := env.reg.UpdateTriggers(context.Background(), "greet", nil); err != nil {
		t.Fatalf("UpdateTriggers: %v", err)
	}

	resent, err := env.d.ResendCommand(context.Background(), original.ID)
	if err != nil {
		t.Fatalf("ResendCommand: %v", err)
	}
	if resent.Command != original.Command {
		t.Errorf("resent %q, stored %q", resent.Command, original.Command)
	}
	if resent.ID == original.ID {
		t.Error("resend must create a new log entry")
	}

	sent := env.sender.sentTo("s1")
	if len(sent) != 2 || sent[0] != sent[1] {
		t.Errorf("sent = %v", sent)
	}
}

func TestResendEventReplaysMatching(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, chatCommand("greet", "game.print('Hi %%USERNAME%%')", "s1"))

	entries, err := env.d.HandleEvent(context.Background(), chatEvent("bob", "!greet"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("HandleEvent: %v, %d entries", err, len(entries))
	}

	replayed, err := env.d.ResendEvent(context.Background(), entries[0].ID)
	if err != nil {
		t.Fatalf("ResendEvent: %v", err)
	}
	if len(replayed) != 1 || replayed[0].Username != "bob" {
		t.Errorf("replayed = %+v", replayed)
	}
	if got := env.sender.sentTo("s1"); len(got) != 2 {
		t.Errorf("s1 received %d commands, want 2", len(got))
	}
}

func TestResendEventRejectsManualEntries(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, chatCommand("cheer", "game.print('cheer')", "s1"))

	entry, err := env.d.SendManual(context.Background(), "s1", "cheer")
	if err != nil {
		t.Fatalf("SendManual: %v", err)
	}

	if _, err := env.d.ResendEvent(context.Background(), entry.ID); err == nil {
		t.Fatal("replaying a manual entry should fail, its event is synthetic")
	} else if !strings.Contains(err.Error(), "no replayable event") {
		t.Errorf("error = %v, want a no-replayable-event message", err)
	}
}

func TestLogsSinceFilter(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, chatCommand("greet", "game.print(1)", "s1"))

	if _, err := env.d.HandleEvent(context.Background(), chatEvent("bob", "!greet")); err != nil {
		t.Fatalf("HandleEvent: %v", err)
	}

	all, err := env.d.Logs(context.Background(), time.Time{})
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("got %d entries", len(all))
	}

	none, err := env.d.Logs(context.Background(), time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("Logs: %v", err)
	}
	if len(none) != 0 {
		t.Errorf("future bound returned %d entries", len(none))
	}
}
