// Package registry holds the named commands and their trigger
// bindings, and matches incoming platform events against them.
package registry

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/madhouse/rconpanel/internal/domain"
	"github.com/madhouse/rconpanel/internal/storage"
)

// Registry is the in-memory view of all commands, backed by the store.
// Reads are served from memory; writes go through the store first so a
// crash never leaves the cache ahead of disk.
type Registry struct {
	store *storage.Store

	mu       sync.RWMutex
	commands map[string]domain.Command // keyed by lowercase name
}

// New loads all commands from the store.
func New(ctx context.Context, store *storage.Store) (*Registry, error) {
	r := &Registry{
		store:    store,
		commands: make(map[string]domain.Command),
	}
	if store == nil {
		return r, nil
	}

	commands, err := store.GetCommands(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading commands: %w", err)
	}
	for _, cmd := range commands {
		r.commands[strings.ToLower(cmd.Name)] = cmd
	}
	return r, nil
}

// Create registers a new command. Names are unique case-insensitively
// and the trigger list is deduplicated, first occurrence winning.
func (r *Registry) Create(ctx context.Context, cmd domain.Command) (domain.Command, error) {
	if err := cmd.Validate(); err != nil {
		return domain.Command{}, err
	}
	cmd.Triggers = dedupeTriggers(cmd.Triggers)

	key := strings.ToLower(cmd.Name)
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.commands[key]; exists {
		return domain.Command{}, fmt.Errorf("command named %q already exists", cmd.Name)
	}
	if r.store != nil {
		if err := r.store.CreateCommand(ctx, &cmd); err != nil {
			return domain.Command{}, err
		}
	}
	r.commands[key] = cmd
	return cmd, nil
}

// Get returns a command by name, case-insensitively.
func (r *Registry) Get(name string) (domain.Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.commands[strings.ToLower(name)]
	return cmd, ok
}

// Commands returns all commands sorted by name.
func (r *Registry) Commands() []domain.Command {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sortedLocked()
}

// UpdateTriggers replaces a command's whole trigger list atomically.
// Readers see either the old list or the new one, never a mix.
func (r *Registry) UpdateTriggers(ctx context.Context, name string, triggers []domain.ServerTrigger) (domain.Command, error) {
	for _, st := range triggers {
		if st.ServerID == "" {
			return domain.Command{}, fmt.Errorf("trigger has no server")
		}
		if err := st.Trigger.Validate(); err != nil {
			return domain.Command{}, err
		}
	}
	triggers = dedupeTriggers(triggers)

	key := strings.ToLower(name)
	r.mu.Lock()
	defer r.mu.Unlock()

	cmd, ok := r.commands[key]
	if !ok {
		return domain.Command{}, fmt.Errorf("no command named %q", name)
	}
	if r.store != nil {
		if err := r.store.ReplaceTriggers(ctx, cmd.Name, triggers); err != nil {
			return domain.Command{}, err
		}
	}
	cmd.Triggers = triggers
	r.commands[key] = cmd
	return cmd, nil
}

// TriggerCommand pairs a binding with its command for listings.
type TriggerCommand struct {
	Trigger domain.ServerTrigger `json:"trigger"`
	Command domain.Command       `json:"command"`
}

// ServerTriggerCommands lists every binding attached to one server.
func (r *Registry) ServerTriggerCommands(serverID string) []TriggerCommand {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []TriggerCommand
	for _, cmd := range r.sortedLocked() {
		for _, st := range cmd.Triggers {
			if st.ServerID == serverID {
				out = append(out, TriggerCommand{Trigger: st, Command: cmd})
			}
		}
	}
	return out
}

func (r *Registry) sortedLocked() []domain.Command {
	out := make([]domain.Command, 0, len(r.commands))
	for _, cmd := range r.commands {
		out = append(out, cmd)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// dedupeTriggers drops later bindings with the same identity.
func dedupeTriggers(triggers []domain.ServerTrigger) []domain.ServerTrigger {
	seen := make(map[string]bool, len(triggers))
	out := triggers[:0:0]
	for _, st := range triggers {
		key := st.Key()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, st)
	}
	return out
}
