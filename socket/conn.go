// Package socket multiplexes framed TCP connections for the chat and
// authentication services.
//
// A Server owns a listener and every connection it accepted or adopted,
// and drives them all from one event-loop goroutine: readiness comes from
// a Poller, received bytes are framed and decoded into wire messages, and
// a Handler reacts to them. A Stream is the client-side counterpart, with
// dedicated reader and writer goroutines.
package socket

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/Zereker/chatroom/wire"
)

// Errors returned by connection operations.
var (
	// ErrInvalidOnMessage is returned when no message handler is provided.
	ErrInvalidOnMessage = errors.New("invalid on message callback")
	// ErrConnectionClosed is returned when operating on a closed connection.
	ErrConnectionClosed = errors.New("connection closed")
	// ErrServerClosed is passed to Handler.OnClose for connections dropped
	// by server shutdown.
	ErrServerClosed = errors.New("server closed")
)

// ConnID identifies a connection within one Server. Identifiers increase
// monotonically and are never reused.
type ConnID uint64

// Role tells which side of the protocol a connection speaks for.
type Role int

const (
	// RoleClient is a connection accepted from a chat client or, on the
	// authentication service, from the chat service.
	RoleClient Role = iota
	// RoleUpstream is an outbound link adopted by the server.
	RoleUpstream
)

func (r Role) String() string {
	switch r {
	case RoleClient:
		return "client"
	case RoleUpstream:
		return "upstream"
	default:
		return fmt.Sprintf("Role(%d)", int(r))
	}
}

// Conn is a connection owned by a Server. Its methods must only be called
// from the server's loop goroutine, that is from Handler callbacks or
// before Serve starts.
type Conn struct {
	server *Server
	id     ConnID
	role   Role
	raw    net.Conn

	framer  *wire.Framer
	sendBuf *wire.Buffer

	alive bool
	err   error
}

func newConn(s *Server, id ConnID, raw net.Conn, role Role) *Conn {
	return &Conn{
		server:  s,
		id:      id,
		role:    role,
		raw:     raw,
		framer:  wire.NewFramer(s.opts.maxPacketSize),
		sendBuf: wire.NewBuffer(s.opts.bufferSize),
		alive:   true,
	}
}

// ID returns the connection identifier.
func (c *Conn) ID() ConnID {
	return c.id
}

// Role returns the role the connection was registered with.
func (c *Conn) Role() Role {
	return c.role
}

// Addr returns the remote address of the connection.
func (c *Conn) Addr() net.Addr {
	return c.raw.RemoteAddr()
}

// Alive reports whether the connection is still usable. A connection
// stops being alive as soon as a send fails or Close is called, even
// though the server tears it down only after the current callback.
func (c *Conn) Alive() bool {
	return c.alive
}

// Send encodes m into the connection's send buffer and writes it.
// A write failure marks the connection dead and schedules its teardown;
// the error is also returned to the caller.
func (c *Conn) Send(m wire.Message) error {
	if !c.alive {
		return ErrConnectionClosed
	}
	if _, err := wire.Encode(c.sendBuf, m); err != nil {
		return err
	}

	_ = c.raw.SetWriteDeadline(time.Now().Add(c.server.opts.writeTimeout))
	if _, err := c.raw.Write(c.sendBuf.Bytes()); err != nil {
		c.server.logger.Debug("write error", "conn", c.id, "addr", c.Addr(), "error", err)
		c.fail(err)
		return err
	}
	return nil
}

// Close schedules the connection for teardown. Handler.OnClose is invoked
// with ErrConnectionClosed once the current callback returns.
func (c *Conn) Close() error {
	if !c.alive {
		return nil
	}
	c.fail(ErrConnectionClosed)
	return nil
}

func (c *Conn) fail(err error) {
	if !c.alive {
		return
	}
	c.alive = false
	c.err = err
	c.server.failed = append(c.server.failed, c)
}
