// Package chatserver implements the chat-room service.
//
// Clients create accounts, authenticate, and join, leave and chat in the
// rooms of a fixed catalog. Room traffic is handled locally by a
// room.Manager. Account requests are delegated to the authentication
// service over a single upstream link: each forwarded request carries the
// id of the requesting connection, so the asynchronous reply can be routed
// back to it.
package chatserver

import (
	"log/slog"
	"time"

	"github.com/Zereker/chatroom/room"
	"github.com/Zereker/chatroom/socket"
	"github.com/Zereker/chatroom/wire"
)

const (
	// DefaultPendingTimeout bounds how long a client waits for the
	// authentication service.
	DefaultPendingTimeout = 10 * time.Second
	// DefaultUpstreamRetry is the minimum delay between redials of the
	// upstream link.
	DefaultUpstreamRetry = 2 * time.Second
)

// Transport is the part of socket.Server the service drives.
type Transport interface {
	Conn(id socket.ConnID) (*socket.Conn, bool)
	Dial(addr string, role socket.Role) (*socket.Conn, error)
}

type options struct {
	logger         socket.Logger
	rooms          []string
	pendingTimeout time.Duration
	upstreamRetry  time.Duration
}

// Option configures a Service.
type Option func(*options)

// LoggerOption sets the logger. Defaults to slog.Default.
func LoggerOption(l socket.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// RoomsOption sets the room catalog. Defaults to room.DefaultRooms.
func RoomsOption(rooms []string) Option {
	return func(o *options) {
		o.rooms = rooms
	}
}

// PendingTimeoutOption sets how long an account request may stay
// unanswered before the client is told it failed.
func PendingTimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.pendingTimeout = d
	}
}

// UpstreamRetryOption sets the minimum delay between upstream redials.
func UpstreamRetryOption(d time.Duration) Option {
	return func(o *options) {
		o.upstreamRetry = d
	}
}

// Service is the socket.Handler of the chat service. Like every handler
// it runs on the server's loop goroutine and keeps no locks.
type Service struct {
	transport    Transport
	upstreamAddr string
	logger       socket.Logger
	opts         options

	directory *Directory
	rooms     *room.Manager
	pending   *pendingTable

	upstream *socket.Conn
	nextDial time.Time
}

var _ socket.Handler = (*Service)(nil)

// New returns a service that serves clients through transport and
// delegates account requests to the authentication service at
// upstreamAddr.
func New(transport Transport, upstreamAddr string, opt ...Option) *Service {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.pendingTimeout <= 0 {
		opts.pendingTimeout = DefaultPendingTimeout
	}
	if opts.upstreamRetry <= 0 {
		opts.upstreamRetry = DefaultUpstreamRetry
	}

	s := &Service{
		transport:    transport,
		upstreamAddr: upstreamAddr,
		logger:       opts.logger,
		opts:         opts,
		directory:    NewDirectory(),
		pending:      newPendingTable(),
	}
	s.rooms = room.NewManager(opts.rooms, room.NotifierFunc(s.notify), opts.logger)
	return s
}

// Rooms returns the room manager.
func (s *Service) Rooms() *room.Manager {
	return s.rooms
}

// Directory returns the name directory.
func (s *Service) Directory() *Directory {
	return s.directory
}

// Pending returns the number of account requests awaiting a reply.
func (s *Service) Pending() int {
	return s.pending.len()
}

// UpstreamConnected reports whether the link to the authentication
// service is up.
func (s *Service) UpstreamConnected() bool {
	return s.upstream != nil && s.upstream.Alive()
}

// ConnectUpstream dials the authentication service. It must be called
// before Serve or from the loop goroutine. On failure the link is retried
// from OnTick.
func (s *Service) ConnectUpstream() error {
	if s.UpstreamConnected() {
		return nil
	}
	s.nextDial = time.Now().Add(s.opts.upstreamRetry)

	c, err := s.transport.Dial(s.upstreamAddr, socket.RoleUpstream)
	if err != nil {
		s.logger.Warn("upstream dial failed", "addr", s.upstreamAddr, "error", err)
		return err
	}
	s.upstream = c
	s.logger.Info("upstream connected", "addr", s.upstreamAddr, "conn", c.ID())
	return nil
}

func (s *Service) OnOpen(c *socket.Conn) {
	s.logger.Info("client connected", "conn", c.ID(), "addr", c.Addr())
}

func (s *Service) OnMessage(c *socket.Conn, m wire.Message) {
	if c.Role() == socket.RoleUpstream {
		s.handleUpstream(c, m)
		return
	}

	switch req := m.(type) {
	case *wire.CreateAccountReq:
		s.forward(c, kindCreate, req.Email, req.Password)
	case *wire.AuthenticateAccountReq:
		s.forward(c, kindAuthenticate, req.Email, req.Password)
	case *wire.JoinRoomReq:
		s.rooms.Join(req.User, req.Room, c)
	case *wire.LeaveRoomReq:
		s.rooms.Leave(req.User, req.Room, c)
	case *wire.ChatInRoomReq:
		s.rooms.Chat(req.User, req.Room, req.Chat, c)
	default:
		s.logger.Warn("ignoring client message", "conn", c.ID(), "type", m.Type())
	}
}

func (s *Service) OnClose(c *socket.Conn, err error) {
	if c.Role() == socket.RoleUpstream {
		s.upstreamLost(c, err)
		return
	}

	name, _ := s.directory.Unbind(c.ID())
	s.rooms.LeaveAll(c.ID())
	if p, ok := s.pending.take(wire.RequestID(c.ID())); ok {
		s.logger.Debug("dropped pending request of closed client", "conn", c.ID(), "kind", p.kind)
	}
	s.logger.Info("client disconnected", "conn", c.ID(), "user", name)
}

// OnTick expires overdue account requests and redials a lost upstream.
func (s *Service) OnTick(now time.Time) {
	for _, p := range s.pending.expire(now) {
		s.logger.Warn("account request timed out", "request_id", p.id, "kind", p.kind, "email", p.email)
		s.replyTo(p.id, p.failure())
	}

	if s.upstream == nil && !now.Before(s.nextDial) {
		_ = s.ConnectUpstream()
	}
}

// forward relays an account request upstream. The name is bound to the
// connection only once the request succeeds.
func (s *Service) forward(c *socket.Conn, kind requestKind, email, password string) {
	id := wire.RequestID(c.ID())

	if s.pending.has(id) {
		s.logger.Warn("request already outstanding", "conn", c.ID(), "kind", kind)
		s.reply(c, failureAck(kind, email))
		return
	}
	if !s.UpstreamConnected() {
		s.logger.Warn("upstream unavailable", "conn", c.ID(), "kind", kind)
		s.reply(c, failureAck(kind, email))
		return
	}

	var req wire.Message
	if kind == kindCreate {
		req = &wire.CreateAccountWebReq{RequestID: id, Email: email, PlaintextPassword: password}
	} else {
		req = &wire.AuthenticateWebReq{RequestID: id, Email: email, PlaintextPassword: password}
	}
	if err := s.upstream.Send(req); err != nil {
		s.logger.Warn("forward failed", "conn", c.ID(), "kind", kind, "error", err)
		s.reply(c, failureAck(kind, email))
		return
	}

	s.pending.add(pendingRequest{
		id:       id,
		kind:     kind,
		email:    email,
		deadline: time.Now().Add(s.opts.pendingTimeout),
	})
	s.logger.Debug("forwarded account request", "request_id", id, "kind", kind, "email", email)
}

func (s *Service) handleUpstream(c *socket.Conn, m wire.Message) {
	switch ack := m.(type) {
	case *wire.CreateAccountWebSuccessAck:
		if p, ok := s.complete(ack.RequestID, kindCreate); ok {
			s.bind(p)
			s.replyTo(p.id, &wire.CreateAccountSuccessAck{Email: p.email, UserID: ack.UserID})
		}
	case *wire.CreateAccountWebFailureAck:
		if p, ok := s.complete(ack.RequestID, kindCreate); ok {
			s.replyTo(p.id, &wire.CreateAccountFailureAck{Reason: ack.Reason, Email: p.email})
		}
	case *wire.AuthenticateWebSuccessAck:
		if p, ok := s.complete(ack.RequestID, kindAuthenticate); ok {
			s.bind(p)
			s.replyTo(p.id, &wire.AuthenticateAccountSuccessAck{Email: p.email, UserID: ack.UserID, Rooms: s.rooms.Rooms()})
		}
	case *wire.AuthenticateWebFailureAck:
		if p, ok := s.complete(ack.RequestID, kindAuthenticate); ok {
			s.replyTo(p.id, &wire.AuthenticateAccountFailureAck{Reason: ack.Reason, Email: p.email})
		}
	default:
		s.logger.Warn("ignoring upstream message", "conn", c.ID(), "type", m.Type())
	}
}

// complete removes the pending entry answered by an upstream reply. A
// reply for an unknown id, or of the wrong kind, is dropped.
func (s *Service) complete(id wire.RequestID, kind requestKind) (pendingRequest, bool) {
	p, ok := s.pending.take(id)
	if !ok {
		s.logger.Warn("no pending request for reply", "request_id", id, "kind", kind)
		return pendingRequest{}, false
	}
	if p.kind != kind {
		s.logger.Warn("reply kind mismatch", "request_id", id, "want", p.kind, "got", kind)
		s.pending.add(p)
		return pendingRequest{}, false
	}
	return p, true
}

// bind gives the requester of a successful account request its name.
func (s *Service) bind(p pendingRequest) {
	s.directory.Bind(p.email, socket.ConnID(p.id))
	s.logger.Debug("identity bound", "conn", p.id, "user", p.email)
}

func (s *Service) upstreamLost(c *socket.Conn, err error) {
	if s.upstream != c {
		return
	}
	s.upstream = nil
	s.nextDial = time.Now().Add(s.opts.upstreamRetry)
	s.logger.Warn("upstream lost", "conn", c.ID(), "error", err)

	for _, p := range s.pending.drain() {
		s.replyTo(p.id, p.failure())
	}
}

func (s *Service) reply(c *socket.Conn, m wire.Message) {
	if err := c.Send(m); err != nil {
		s.logger.Debug("reply failed", "conn", c.ID(), "type", m.Type(), "error", err)
	}
}

func (s *Service) replyTo(id wire.RequestID, m wire.Message) {
	c, ok := s.transport.Conn(socket.ConnID(id))
	if !ok {
		s.logger.Debug("requester gone", "request_id", id, "type", m.Type())
		return
	}
	s.reply(c, m)
}

// notify delivers room traffic to the connection holding user's name.
func (s *Service) notify(user string, m wire.Message) {
	id, ok := s.directory.Lookup(user)
	if !ok {
		return
	}
	if c, ok := s.transport.Conn(id); ok {
		s.reply(c, m)
	}
}
