// Package bus is the in-process event fan-out, built on an embedded
// NATS server. Publishing never blocks; a subscriber that falls behind
// its buffer loses messages instead of stalling the rest of the app.
// Per-subject ordering is preserved for each subscriber.
package bus

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/madhouse/rconpanel/internal/domain"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
)

// Subjects carried on the bus. Status and game-status events get a
// per-server token appended so subscribers can filter.
const (
	SubjectAll         = "events.>"
	SubjectStatus      = "events.status"
	SubjectGameStatus  = "events.gamestatus"
	SubjectCommands    = "events.commands"
	SubjectIntegration = "events.integration"
	SubjectLogs        = "events.logs"
)

const subscriberBuffer = 256

// Bus wraps the embedded server, one in-process connection, and the
// bookkeeping for handed-out subscriptions.
type Bus struct {
	ns *server.Server
	nc *nats.Conn

	mu   sync.Mutex
	subs map[string]*Subscription
}

// Subscription delivers decoded events on C until Unsubscribe.
type Subscription struct {
	ID string
	C  <-chan domain.Event

	sub  *nats.Subscription
	msgs chan *nats.Msg
	out  chan domain.Event
	done chan struct{}
}

// New starts the embedded server and connects to it in process.
func New() (*Bus, error) {
	ns, err := server.NewServer(&server.Options{
		ServerName: "rconpanel-bus",
		DontListen: true,
	})
	if err != nil {
		return nil, fmt.Errorf("creating bus server: %w", err)
	}

	go ns.Start()
	if !ns.ReadyForConnections(5 * time.Second) {
		ns.Shutdown()
		return nil, fmt.Errorf("bus server did not become ready")
	}

	nc, err := nats.Connect("", nats.InProcessServer(ns))
	if err != nil {
		ns.Shutdown()
		return nil, fmt.Errorf("connecting to bus: %w", err)
	}

	return &Bus{
		ns:   ns,
		nc:   nc,
		subs: make(map[string]*Subscription),
	}, nil
}

// subjectFor routes an event to its subject.
func subjectFor(ev domain.Event) string {
	serverToken := func() string {
		if ev.ServerID == "" {
			return "_"
		}
		return ev.ServerID
	}

	switch ev.Type {
	case domain.EventTypeCommandDispatched:
		return SubjectCommands
	case domain.EventTypeIntegration:
		return SubjectIntegration
	case domain.EventTypeGameStatus:
		return SubjectGameStatus + "." + serverToken()
	case domain.EventTypeAppLog:
		return SubjectLogs
	default:
		// Connection state changes use the state name as the type.
		return SubjectStatus + "." + serverToken()
	}
}

// Publish fans an event out to all current subscribers.
func (b *Bus) Publish(ev domain.Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	data, err := json.Marshal(ev)
	if err != nil {
		log.Printf("bus: dropping unmarshalable event %q: %v", ev.Type, err)
		return
	}
	if err := b.nc.Publish(subjectFor(ev), data); err != nil {
		log.Printf("bus: publish %q: %v", ev.Type, err)
	}
}

// Subscribe registers for a subject pattern ("" means everything) and
// returns a subscription with a bounded buffer.
func (b *Bus) Subscribe(subject string) (*Subscription, error) {
	if subject == "" {
		subject = SubjectAll
	}

	msgs := make(chan *nats.Msg, subscriberBuffer)
	natsSub, err := b.nc.ChanSubscribe(subject, msgs)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %q: %w", subject, err)
	}

	sub := &Subscription{
		ID:   uuid.NewString(),
		sub:  natsSub,
		msgs: msgs,
		out:  make(chan domain.Event, subscriberBuffer),
		done: make(chan struct{}),
	}
	sub.C = sub.out

	go sub.pump()

	b.mu.Lock()
	b.subs[sub.ID] = sub
	b.mu.Unlock()
	return sub, nil
}

// pump decodes raw messages into events. If the out channel is full
// the event is dropped, matching the slow-consumer policy.
func (s *Subscription) pump() {
	defer close(s.out)
	for {
		select {
		case <-s.done:
			return
		case msg, ok := <-s.msgs:
			if !ok {
				return
			}
			var ev domain.Event
			if err := json.Unmarshal(msg.Data, &ev); err != nil {
				log.Printf("bus: dropping undecodable message on %s: %v", msg.Subject, err)
				continue
			}
			select {
			case s.out <- ev:
			default:
			}
		}
	}
}

// Unsubscribe tears down a subscription by id. Unknown ids error.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	sub, ok := b.subs[id]
	if ok {
		delete(b.subs, id)
	}
	b.mu.Unlock()

	if !ok {
		return fmt.Errorf("no subscription under id %q", id)
	}
	sub.sub.Unsubscribe()
	close(sub.done)
	return nil
}

// Flush waits for published events to reach the server. Used by tests
// to avoid racing the fan-out.
func (b *Bus) Flush() error {
	return b.nc.Flush()
}

// Close drops all subscriptions and stops the embedded server.
func (b *Bus) Close() {
	b.mu.Lock()
	ids := make([]string, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	b.mu.Unlock()

	for _, id := range ids {
		b.Unsubscribe(id)
	}
	b.nc.Close()
	b.ns.Shutdown()
	b.ns.WaitForShutdown()
}
