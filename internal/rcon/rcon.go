// Package rcon implements the Source RCON protocol: length-prefixed
// little-endian packets over TCP, an auth handshake, and request-id
// correlated command execution with multi-packet response reassembly.
package rcon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"
)

// ErrAuthFailed means the server answered the handshake and refused the
// password. Any other dial failure is a *NetError.
var ErrAuthFailed = errors.New("rcon: authentication failed")

// ErrClosed is returned by Execute after Close.
var ErrClosed = errors.New("rcon: connection closed")

// NetError wraps a transport-level failure (dial, read, write,
// timeout) so callers can tell it apart from an auth refusal.
type NetError struct {
	Op  string
	Err error
}

func (e *NetError) Error() string { return fmt.Sprintf("rcon: %s: %v", e.Op, e.Err) }
func (e *NetError) Unwrap() error { return e.Err }

// DefaultTimeout bounds the dial, the auth handshake, and each
// command round trip.
const DefaultTimeout = 5 * time.Second

// Options tune a connection.
type Options struct {
	// DialTimeout covers TCP connect plus the auth handshake.
	DialTimeout time.Duration
	// ExecTimeout bounds each Execute round trip.
	ExecTimeout time.Duration
	// FactorioQuirks adjusts for Factorio's dialect: no empty
	// response-value packet before the auth response, and no echo of
	// the reassembly sentinel (responses always arrive in one packet).
	FactorioQuirks bool
}

func (o *Options) fillDefaults() {
	if o.DialTimeout == 0 {
		o.DialTimeout = DefaultTimeout
	}
	if o.ExecTimeout == 0 {
		o.ExecTimeout = DefaultTimeout
	}
}

// Conn is an authenticated RCON connection. Execute calls are
// serialized internally; a Conn is safe for concurrent use.
type Conn struct {
	mu     sync.Mutex // serializes Execute round trips
	conn   net.Conn
	nextID int32
	opts   Options

	closeMu sync.Mutex
	closed  bool
}

// Dial connects, authenticates, and returns a ready connection.
// A refused password yields ErrAuthFailed; everything else that goes
// wrong yields a *NetError.
func Dial(addr, password string, opts Options) (*Conn, error) {
	opts.fillDefaults()

	tcp, err := net.DialTimeout("tcp", addr, opts.DialTimeout)
	if err != nil {
		return nil, &NetError{Op: "dial", Err: err}
	}

	c := &Conn{conn: tcp, nextID: 1, opts: opts}
	if err := c.authenticate(password); err != nil {
		tcp.Close()
		return nil, err
	}
	return c, nil
}

func (c *Conn) authenticate(password string) error {
	deadline := time.Now().Add(c.opts.DialTimeout)
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	authID := c.nextRequestID()
	if err := writePacket(c.conn, packet{ID: authID, Type: typeAuth, Body: password}); err != nil {
		return &NetError{Op: "auth write", Err: err}
	}

	// Source servers send an empty response-value packet before the
	// auth response; Factorio sends the auth response alone.
	for {
		p, err := readPacket(c.conn)
		if err != nil {
			return &NetError{Op: "auth read", Err: err}
		}
		if p.Type != typeAuthResponse {
			continue
		}
		if p.ID == -1 {
			return ErrAuthFailed
		}
		if p.ID != authID {
			return &NetError{Op: "auth", Err: fmt.Errorf("response id %d does not match request %d", p.ID, authID)}
		}
		return nil
	}
}

func (c *Conn) nextRequestID() int32 {
	id := c.nextID
	c.nextID++
	if c.nextID < 0 {
		c.nextID = 1
	}
	return id
}

// Execute sends one command and returns the full response body,
// reassembling multi-packet responses. The round trip is bounded by
// ExecTimeout or the context deadline, whichever is sooner.
func (c *Conn) Execute(ctx context.Context, command string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.isClosed() {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	deadline := time.Now().Add(c.opts.ExecTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetDeadline(deadline)
	defer c.conn.SetDeadline(time.Time{})

	execID := c.nextRequestID()
	if err := writePacket(c.conn, packet{ID: execID, Type: typeExecCommand, Body: command}); err != nil {
		return "", &NetError{Op: "write", Err: err}
	}

	if c.opts.FactorioQuirks {
		return c.readSingle(execID)
	}
	return c.readMulti(execID)
}

// readSingle reads exactly one response packet for execID. Factorio
// never splits responses and does not echo sentinels.
func (c *Conn) readSingle(execID int32) (string, error) {
	for {
		p, err := readPacket(c.conn)
		if err != nil {
			return "", &NetError{Op: "read", Err: err}
		}
		if p.ID == execID {
			return p.Body, nil
		}
		// Stale packet from an earlier timed-out call; skip it.
	}
}

// readMulti reassembles a possibly split response. A trailing empty
// response-value packet with a fresh id acts as the sentinel: the
// server processes requests in order, so once the sentinel id echoes
// back the command's response is complete.
func (c *Conn) readMulti(execID int32) (string, error) {
	sentinelID := c.nextRequestID()
	if err := writePacket(c.conn, packet{ID: sentinelID, Type: typeResponseValue, Body: ""}); err != nil {
		return "", &NetError{Op: "write sentinel", Err: err}
	}

	var body []byte
	for {
		p, err := readPacket(c.conn)
		if err != nil {
			return "", &NetError{Op: "read", Err: err}
		}
		switch p.ID {
		case execID:
			body = append(body, p.Body...)
		case sentinelID:
			return string(body), nil
		default:
			// Stale packet from an earlier timed-out call; skip it.
		}
	}
}

// Close tears down the connection. Safe to call more than once.
// It never waits on an in-flight Execute: closing the socket makes the
// pending read fail immediately with a *NetError instead of running
// out its deadline.
func (c *Conn) Close() error {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.conn.Close()
}

func (c *Conn) isClosed() bool {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	return c.closed
}

// RemoteAddr reports the peer address, for logs.
func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}
