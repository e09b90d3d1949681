package socket

import (
	"context"
	"errors"
	"io"
	"net"
	"sort"
	"sync"
	"time"

	"github.com/Zereker/chatroom/wire"
)

// Server represents a TCP server multiplexing its connections on a single
// event-loop goroutine.
type Server struct {
	listener *net.TCPListener
	logger   Logger
	opts     options
	poller   Poller

	// Owned by the loop goroutine.
	handler Handler
	conns   map[ConnID]*Conn
	nextID  ConnID
	failed  []*Conn

	mu       sync.Mutex
	serving  bool
	closed   bool
	done     chan struct{}
	stopOnce sync.Once
}

// New creates a new TCP server bound to the specified address.
// Returns an error if the address cannot be bound.
func New(addr *net.TCPAddr, opt ...Option) (*Server, error) {
	opts := applyOptions(opt)
	checkOptions(&opts)

	poller := opts.poller
	if poller == nil {
		poller = NewGoroutinePoller()
	}

	listener, err := net.ListenTCP(addr.Network(), addr)
	if err != nil {
		return nil, err
	}

	return &Server{
		listener: listener,
		logger:   opts.logger,
		opts:     opts,
		poller:   poller,
		conns:    make(map[ConnID]*Conn),
		done:     make(chan struct{}),
	}, nil
}

// Serve runs the event loop, dispatching to handler until the context is
// canceled or Close is called. Every wake of the loop, whether caused by
// readiness or by the poll interval elapsing, ends with handler.OnTick.
//
// On return the listener and every connection are closed, and OnClose has
// been called for each connection. Serve returns ctx.Err() when the
// context ended it and nil after Close.
func (s *Server) Serve(ctx context.Context, handler Handler) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.serving = true
	s.handler = handler
	s.mu.Unlock()

	defer s.shutdown()

	if err := s.poller.Listen(s.listener); err != nil {
		return err
	}
	s.logger.Info("server started", "addr", s.Addr(), "poll_interval", s.opts.pollInterval)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		default:
		}

		events, err := s.poller.Wait(s.opts.pollInterval)
		if err != nil {
			if s.isClosed() {
				return nil
			}
			s.logger.Error("poll error", "error", err)
			return err
		}

		for _, ev := range events {
			s.handle(ev)
			s.reap()
		}

		handler.OnTick(time.Now())
		s.reap()
	}
}

// Adopt registers an established connection, typically an outbound link,
// into the event loop. It must be called before Serve or from a Handler
// callback. OnOpen is not invoked for adopted connections.
func (s *Server) Adopt(raw net.Conn, role Role) (*Conn, error) {
	if s.isClosed() {
		_ = raw.Close()
		return nil, ErrServerClosed
	}
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}

	c, err := s.register(raw, role)
	if err != nil {
		return nil, err
	}
	s.logger.Info("adopted connection", "conn", c.id, "role", role, "remote_addr", raw.RemoteAddr())
	return c, nil
}

// Dial connects to addr and adopts the connection with the given role.
// The dial is bounded by the poll interval so a tick never stalls the
// loop for longer than one wake budget.
func (s *Server) Dial(addr string, role Role) (*Conn, error) {
	raw, err := net.DialTimeout("tcp", addr, s.opts.pollInterval)
	if err != nil {
		return nil, err
	}
	return s.Adopt(raw, role)
}

// Conn returns the live connection with the given id.
func (s *Server) Conn(id ConnID) (*Conn, bool) {
	c, ok := s.conns[id]
	if !ok || !c.alive {
		return nil, false
	}
	return c, true
}

// Len returns the number of registered connections.
func (s *Server) Len() int {
	return len(s.conns)
}

// Close stops the server. A running Serve returns nil once its current
// wake completes; a server that is not serving is shut down immediately.
// Safe to call multiple times and from any goroutine.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	serving := s.serving
	s.mu.Unlock()

	close(s.done)
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	if !serving {
		s.shutdown()
	}
	return err
}

// Addr returns the listener's network address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *Server) register(raw net.Conn, role Role) (*Conn, error) {
	s.nextID++
	c := newConn(s, s.nextID, raw, role)
	if err := s.poller.Add(c.id, raw); err != nil {
		_ = raw.Close()
		return nil, err
	}
	s.conns[c.id] = c
	return c, nil
}

func (s *Server) handle(ev Event) {
	switch ev.Kind {
	case EventAccept:
		if ev.Err != nil {
			if !errors.Is(ev.Err, net.ErrClosed) {
				s.logger.Warn("accept error", "error", ev.Err)
			}
			return
		}
		s.accept(ev.Conn)

	case EventData:
		c, ok := s.conns[ev.ID]
		if !ok || len(ev.Data) == 0 {
			return
		}
		s.receive(c, ev.Data)

	case EventClosed:
		if c, ok := s.conns[ev.ID]; ok {
			s.teardown(c, ev.Err)
		}
	}
}

func (s *Server) accept(raw net.Conn) {
	if tcp, ok := raw.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
	}
	c, err := s.register(raw, RoleClient)
	if err != nil {
		s.logger.Warn("register connection failed", "remote_addr", raw.RemoteAddr(), "error", err)
		return
	}
	s.logger.Debug("accepted connection", "conn", c.id, "remote_addr", raw.RemoteAddr())
	s.handler.OnOpen(c)
}

// receive feeds bytes to the connection's framer and dispatches every
// packet that is complete. Undecodable packets are logged and skipped; a
// framing error means the stream cannot be resynchronized.
func (s *Server) receive(c *Conn, data []byte) {
	c.framer.Feed(data)
	for c.alive {
		packet, err := c.framer.Next()
		if err != nil {
			s.logger.Warn("framing error", "conn", c.id, "addr", c.Addr(), "error", err)
			s.teardown(c, err)
			return
		}
		if packet == nil {
			return
		}

		m, err := wire.Decode(packet)
		if err != nil {
			s.logger.Warn("dropping packet", "conn", c.id, "addr", c.Addr(), "error", err)
			continue
		}
		s.handler.OnMessage(c, m)
	}
}

// reap tears down connections whose send failed or that were closed
// during a callback. Teardown may fail further sends, so it loops until
// nothing is left.
func (s *Server) reap() {
	for len(s.failed) > 0 {
		c := s.failed[0]
		s.failed = s.failed[1:]
		s.teardown(c, c.err)
	}
}

func (s *Server) teardown(c *Conn, err error) {
	if _, ok := s.conns[c.id]; !ok {
		return
	}
	delete(s.conns, c.id)
	c.alive = false
	s.poller.Remove(c.id)
	_ = c.raw.Close()

	if err == nil || errors.Is(err, io.EOF) {
		s.logger.Info("connection closed", "conn", c.id, "role", c.role, "addr", c.Addr())
	} else {
		s.logger.Info("connection closed with error", "conn", c.id, "role", c.role, "addr", c.Addr(), "error", err)
	}

	if s.handler != nil {
		s.handler.OnClose(c, err)
	}
}

func (s *Server) shutdown() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
		_ = s.listener.Close()

		ids := make([]ConnID, 0, len(s.conns))
		for id := range s.conns {
			ids = append(ids, id)
		}
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
		for _, id := range ids {
			if c, ok := s.conns[id]; ok {
				s.teardown(c, ErrServerClosed)
			}
		}
		s.failed = nil

		_ = s.poller.Close()
		s.logger.Info("server stopped", "addr", s.Addr())
	})
}
