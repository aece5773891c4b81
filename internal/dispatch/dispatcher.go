// Package dispatch turns matched platform events into RCON sends and
// keeps the immutable command log.
package dispatch

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/madhouse/rconpanel/internal/applog"
	"github.com/madhouse/rconpanel/internal/bus"
	"github.com/madhouse/rconpanel/internal/domain"
	"github.com/madhouse/rconpanel/internal/registry"
	"github.com/madhouse/rconpanel/internal/storage"
)

// ManualUsername marks command-log entries produced by a direct send
// from the panel.
const ManualUsername = "<server>"

// Sender executes a command on a connected server. *manager.Manager
// implements it.
type Sender interface {
	Send(ctx context.Context, serverID, command string) (string, error)
}

// Dispatcher wires the registry, the connection manager, and the
// command log together.
type Dispatcher struct {
	reg        *registry.Registry
	sender     Sender
	store      *storage.Store
	bus        *bus.Bus
	log        *applog.Logger
	scriptsDir string
}

// New creates a dispatcher.
func New(reg *registry.Registry, sender Sender, store *storage.Store, b *bus.Bus, log *applog.Logger, scriptsDir string) *Dispatcher {
	return &Dispatcher{
		reg:        reg,
		sender:     sender,
		store:      store,
		bus:        b,
		log:        log,
		scriptsDir: scriptsDir,
	}
}

// HandleEvent matches an event and dispatches every hit. Each match is
// sent and logged independently: one server being down never blocks
// the others. The produced log entries are returned.
func (d *Dispatcher) HandleEvent(ctx context.Context, ev domain.IntegrationEvent) ([]domain.CommandLog, error) {
	if err := ev.Validate(); err != nil {
		return nil, err
	}

	matches := d.reg.Match(ev)
	entries := make([]domain.CommandLog, 0, len(matches))
	for _, match := range matches {
		entry := d.dispatchOne(ctx, match, ev)
		entries = append(entries, entry)
	}
	return entries, nil
}

func (d *Dispatcher) dispatchOne(ctx context.Context, match registry.Match, ev domain.IntegrationEvent) domain.CommandLog {
	entry := domain.CommandLog{
		ID:          uuid.NewString(),
		Time:        time.Now().UTC(),
		Username:    ev.Username,
		CommandName: match.Command.Name,
		ServerID:    match.Trigger.ServerID,
		Trigger:     match.Trigger.Trigger,
		Message:     ev.Message,
		Event:       ev,
	}

	rendered, err := d.Render(match.Command.Rcon, ev)
	if err != nil {
		entry.Outcome = domain.OutcomeFailed
		entry.Error = err.Error()
		d.record(ctx, entry)
		return entry
	}
	entry.Command = rendered

	if _, err := d.sender.Send(ctx, match.Trigger.ServerID, rendered); err != nil {
		entry.Outcome = domain.OutcomeFailed
		entry.Error = err.Error()
	} else {
		entry.Outcome = domain.OutcomeSent
	}
	d.record(ctx, entry)
	return entry
}

// record appends to the log store and broadcasts. The entry is
// immutable from here on.
func (d *Dispatcher) record(ctx context.Context, entry domain.CommandLog) {
	if d.store != nil {
		if err := d.store.AppendCommandLog(ctx, &entry); err != nil {
			d.log.Errorf("dispatch", "appending command log: %v", err)
		}
	}
	if entry.Outcome == domain.OutcomeSent {
		d.log.Infof("dispatch", "%s ran %q on %s (%s)", entry.Username, entry.CommandName, entry.ServerID, entry.Trigger.Describe())
	} else {
		d.log.Warnf("dispatch", "%s failed to run %q on %s: %s", entry.Username, entry.CommandName, entry.ServerID, entry.Error)
	}
	if d.bus != nil {
		d.bus.Publish(domain.NewEvent(domain.EventTypeCommandDispatched, entry.ServerID, entry))
	}
}

// SendManual dispatches a command to one server directly, outside any
// trigger. The log entry carries the synthetic server trigger and the
// panel username.
func (d *Dispatcher) SendManual(ctx context.Context, serverID, commandName string) (domain.CommandLog, error) {
	cmd, ok := d.reg.Get(commandName)
	if !ok {
		return domain.CommandLog{}, fmt.Errorf("no command named %q", commandName)
	}

	ev := domain.IntegrationEvent{Kind: domain.EventChat, Username: ManualUsername, Message: ""}
	entry := domain.CommandLog{
		ID:          uuid.NewString(),
		Time:        time.Now().UTC(),
		Username:    ManualUsername,
		CommandName: cmd.Name,
		ServerID:    serverID,
		Trigger:     domain.Trigger{Kind: domain.TriggerManual},
		Event:       ev,
	}

	rendered, err := d.Render(cmd.Rcon, ev)
	if err != nil {
		entry.Outcome = domain.OutcomeFailed
		entry.Error = err.Error()
		d.record(ctx, entry)
		return entry, err
	}
	entry.Command = rendered

	if _, err := d.sender.Send(ctx, serverID, rendered); err != nil {
		entry.Outcome = domain.OutcomeFailed
		entry.Error = err.Error()
		d.record(ctx, entry)
		return entry, err
	}
	entry.Outcome = domain.OutcomeSent
	d.record(ctx, entry)
	return entry, nil
}

// ResendCommand re-sends the exact string stored on a log entry. Later
// edits to the command template do not affect it.
func (d *Dispatcher) ResendCommand(ctx context.Context, logID string) (domain.CommandLog, error) {
	prev, err := d.store.GetCommandLog(ctx, logID)
	if err != nil {
		return domain.CommandLog{}, err
	}
	if prev.Command == "" {
		return domain.CommandLog{}, fmt.Errorf("log entry %s has no rendered command to resend", logID)
	}

	entry := *prev
	entry.ID = uuid.NewString()
	entry.Time = time.Now().UTC()

	if _, err := d.sender.Send(ctx, prev.ServerID, prev.Command); err != nil {
		entry.Outcome = domain.OutcomeFailed
		entry.Error = err.Error()
		d.record(ctx, entry)
		return entry, err
	}
	entry.Outcome = domain.OutcomeSent
	entry.Error = ""
	d.record(ctx, entry)
	return entry, nil
}

// ResendEvent replays the stored event through full matching, as if
// the platform had delivered it again. Manual sends carry a synthetic
// event and cannot be replayed this way; use ResendCommand instead.
func (d *Dispatcher) ResendEvent(ctx context.Context, logID string) ([]domain.CommandLog, error) {
	prev, err := d.store.GetCommandLog(ctx, logID)
	if err != nil {
		return nil, err
	}
	if prev.Trigger.Kind == domain.TriggerManual {
		return nil, fmt.Errorf("log entry %s has no replayable event", logID)
	}
	return d.HandleEvent(ctx, prev.Event)
}

// Logs returns command log entries at or after since, oldest first.
func (d *Dispatcher) Logs(ctx context.Context, since time.Time) ([]domain.CommandLog, error) {
	return d.store.GetCommandLogs(ctx, since)
}
