package registry

import (
	"context"
	"testing"

	"github.com/madhouse/rconpanel/internal/domain"
)

func TestCreateRejectsDuplicateNames(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, inlineCommand("Greet"))

	if _, err := r.Create(context.Background(), inlineCommand("greet")); err == nil {
		t.Error("names differing only in case should collide")
	}
}

func TestCreateRejectsInvalidCommand(t *testing.T) {
	r := newTestRegistry(t)

	bad := domain.Command{
		Name: "broken",
		Rcon: domain.RconCommand{
			Prefix: domain.Prefix{Kind: domain.PrefixSC},
			Lua:    domain.LuaCommand{Kind: domain.LuaInline}, // no body
		},
	}
	if _, err := r.Create(context.Background(), bad); err == nil {
		t.Error("command without a body should be rejected")
	}
}

func TestGetIsCaseInsensitive(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, inlineCommand("Greet"))

	if _, ok := r.Get("gReEt"); !ok {
		t.Error("Get should be case-insensitive")
	}
}

func TestCreateDedupesTriggers(t *testing.T) {
	r := newTestRegistry(t)

	first := chatBinding("s1", "!go", true)
	duplicate := chatBinding("s1", "!go", false) // same identity, enabled differs
	other := chatBinding("s2", "!go", true)

	mustCreate(t, r, inlineCommand("go", first, duplicate, other))

	cmd, _ := r.Get("go")
	if len(cmd.Triggers) != 2 {
		t.Fatalf("got %d triggers, want 2", len(cmd.Triggers))
	}
	// First occurrence wins, so the binding stays enabled.
	if !cmd.Triggers[0].Enabled {
		t.Error("dedupe should keep the first occurrence")
	}
}

func TestUpdateTriggersReplacesWholeList(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, inlineCommand("go", chatBinding("s1", "!go", true)))

	updated, err := r.UpdateTriggers(context.Background(), "go", []domain.ServerTrigger{
		chatBinding("s2", "!run", true),
	})
	if err != nil {
		t.Fatalf("UpdateTriggers: %v", err)
	}
	if len(updated.Triggers) != 1 || updated.Triggers[0].ServerID != "s2" {
		t.Errorf("triggers after update: %+v", updated.Triggers)
	}

	// Old binding is gone.
	if m := r.Match(domain.IntegrationEvent{Kind: domain.EventChat, Message: "!go"}); len(m) != 0 {
		t.Errorf("replaced trigger still fires: %+v", m)
	}
}

func TestUpdateTriggersUnknownCommand(t *testing.T) {
	r := newTestRegistry(t)
	if _, err := r.UpdateTriggers(context.Background(), "ghost", nil); err == nil {
		t.Error("updating an unknown command should error")
	}
}

func TestUpdateTriggersRejectsInvalid(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, inlineCommand("go"))

	bad := []domain.ServerTrigger{{
		ServerID: "s1",
		Trigger:  domain.Trigger{Kind: domain.TriggerChatRegex, Pattern: "("},
		Enabled:  true,
	}}
	if _, err := r.UpdateTriggers(context.Background(), "go", bad); err == nil {
		t.Error("invalid regex should be rejected before the list is replaced")
	}

	cmd, _ := r.Get("go")
	if len(cmd.Triggers) != 0 {
		t.Errorf("failed update must not change triggers: %+v", cmd.Triggers)
	}
}

func TestServerTriggerCommands(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, inlineCommand("a", chatBinding("s1", "!a", true)))
	mustCreate(t, r, inlineCommand("b", chatBinding("s1", "!b", true), chatBinding("s2", "!b", true)))

	s1 := r.ServerTriggerCommands("s1")
	if len(s1) != 2 {
		t.Fatalf("s1 bindings = %d, want 2", len(s1))
	}
	s2 := r.ServerTriggerCommands("s2")
	if len(s2) != 1 || s2[0].Command.Name != "b" {
		t.Fatalf("s2 bindings = %+v", s2)
	}
	if got := r.ServerTriggerCommands("s3"); len(got) != 0 {
		t.Errorf("s3 should have no bindings, got %d", len(got))
	}
}

func TestCommandsSorted(t *testing.T) {
	r := newTestRegistry(t)
	mustCreate(t, r, inlineCommand("zeta"))
	mustCreate(t, r, inlineCommand("Alpha"))

	cmds := r.Commands()
	if len(cmds) != 2 || cmds[0].Name != "Alpha" || cmds[1].Name != "zeta" {
		t.Errorf("commands order: %+v", cmds)
	}
}
