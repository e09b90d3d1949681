// Package client is the client side of the chat protocol.
//
// A Session owns one connection to the chat service. Requests are queued
// to a writer goroutine; replies and notifications are decoded by a reader
// goroutine, folded into the session's view of its rooms, and delivered
// in arrival order on the Messages channel.
package client

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/Zereker/chatroom/socket"
	"github.com/Zereker/chatroom/wire"
)

// DefaultAddr is the chat service address used when none is given.
const DefaultAddr = "127.0.0.1:5555"

const defaultInbox = 64

type options struct {
	logger socket.Logger
	inbox  int
	stream []socket.Option
}

// Option configures a Session.
type Option func(*options)

// LoggerOption sets the logger. Defaults to slog.Default.
func LoggerOption(l socket.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// InboxOption sets the capacity of the Messages channel.
func InboxOption(n int) Option {
	return func(o *options) {
		o.inbox = n
	}
}

// StreamOption passes options through to the underlying socket.Stream.
func StreamOption(opt ...socket.Option) Option {
	return func(o *options) {
		o.stream = append(o.stream, opt...)
	}
}

// Session is a connection to the chat service.
type Session struct {
	stream   *socket.Stream
	logger   socket.Logger
	messages chan wire.Message
	done     chan struct{}
	stopOnce sync.Once

	mu      sync.Mutex
	user    string
	userID  uint64
	catalog []string
	joined  map[string]map[string]struct{}
}

// Dial connects to the chat service at addr.
func Dial(ctx context.Context, addr string, opt ...Option) (*Session, error) {
	s, streamOpts := newSession(opt)
	stream, err := socket.Dial(ctx, addr, streamOpts...)
	if err != nil {
		return nil, err
	}
	s.stream = stream
	return s, nil
}

// New wraps an established connection.
func New(conn net.Conn, opt ...Option) (*Session, error) {
	s, streamOpts := newSession(opt)
	stream, err := socket.NewStream(conn, streamOpts...)
	if err != nil {
		return nil, err
	}
	s.stream = stream
	return s, nil
}

// newSession builds a session without its stream and returns the stream
// options that route received messages into it.
func newSession(opt []Option) (*Session, []socket.Option) {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.inbox <= 0 {
		opts.inbox = defaultInbox
	}

	s := &Session{
		logger:   opts.logger,
		messages: make(chan wire.Message, opts.inbox),
		done:     make(chan struct{}),
		joined:   make(map[string]map[string]struct{}),
	}

	streamOpts := append([]socket.Option{
		socket.LoggerOption(opts.logger),
		socket.OnMessageOption(s.receive),
	}, opts.stream...)
	return s, streamOpts
}

// Run drives the connection until ctx is canceled, the server closes it
// or Close is called. Messages is closed when Run returns. Cancellation
// and Close yield nil; a server close yields io.EOF.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.messages)
	defer s.stop()

	err := s.stream.Run(ctx)
	if errors.Is(err, context.Canceled) || errors.Is(err, net.ErrClosed) || errors.Is(err, socket.ErrConnectionClosed) {
		return nil
	}
	return err
}

// Close closes the connection.
func (s *Session) Close() error {
	s.stop()
	return s.stream.Close()
}

// Messages delivers every message received from the server.
func (s *Session) Messages() <-chan wire.Message {
	return s.messages
}

// CreateAccount asks for a new account. The email becomes the session's
// user name.
func (s *Session) CreateAccount(ctx context.Context, email, password string) error {
	s.setUser(email)
	return s.stream.WriteBlocking(ctx, &wire.CreateAccountReq{Email: email, Password: password})
}

// Authenticate logs in. The email becomes the session's user name.
func (s *Session) Authenticate(ctx context.Context, email, password string) error {
	s.setUser(email)
	return s.stream.WriteBlocking(ctx, &wire.AuthenticateAccountReq{Email: email, Password: password})
}

// JoinRoom asks to join room as the session's user.
func (s *Session) JoinRoom(ctx context.Context, room string) error {
	return s.stream.WriteBlocking(ctx, &wire.JoinRoomReq{User: s.User(), Room: room})
}

// LeaveRoom asks to leave room.
func (s *Session) LeaveRoom(ctx context.Context, room string) error {
	return s.stream.WriteBlocking(ctx, &wire.LeaveRoomReq{Room: room, User: s.User()})
}

// Chat sends text to room.
func (s *Session) Chat(ctx context.Context, room, text string) error {
	return s.stream.WriteBlocking(ctx, &wire.ChatInRoomReq{Room: room, User: s.User(), Chat: text})
}

// User returns the name the session speaks as.
func (s *Session) User() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// UserID returns the id reported by the last successful create or
// authenticate, zero before that.
func (s *Session) UserID() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.userID
}

// Catalog returns the rooms announced at authentication.
func (s *Session) Catalog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.catalog...)
}

// JoinedRooms returns the rooms the session has joined, sorted.
func (s *Session) JoinedRooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.joined))
	for name := range s.joined {
		rooms = append(rooms, name)
	}
	sort.Strings(rooms)
	return rooms
}

// Members returns the known members of a joined room, sorted.
func (s *Session) Members(room string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedSet(s.joined[room])
}

func (s *Session) setUser(name string) {
	s.mu.Lock()
	s.user = name
	s.mu.Unlock()
}

func (s *Session) stop() {
	s.stopOnce.Do(func() { close(s.done) })
}

// receive runs on the stream's reader goroutine.
func (s *Session) receive(m wire.Message) error {
	s.apply(m)
	select {
	case s.messages <- m:
		return nil
	case <-s.done:
		return socket.ErrConnectionClosed
	}
}

// apply folds a server message into the room view.
func (s *Session) apply(m wire.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg := m.(type) {
	case *wire.CreateAccountSuccessAck:
		s.userID = msg.UserID
	case *wire.AuthenticateAccountSuccessAck:
		s.userID = msg.UserID
		s.catalog = append([]string(nil), msg.Rooms...)
	case *wire.JoinRoomAck:
		if msg.Status != wire.StatusSuccess {
			return
		}
		members := s.joined[msg.Room]
		if members == nil {
			members = make(map[string]struct{})
			s.joined[msg.Room] = members
		}
		for _, u := range msg.Users {
			members[u] = struct{}{}
		}
	case *wire.JoinRoomNtf:
		if members, ok := s.joined[msg.Room]; ok {
			members[msg.User] = struct{}{}
		}
	case *wire.LeaveRoomAck:
		if msg.Status == wire.StatusSuccess {
			delete(s.joined, msg.Room)
		}
	case *wire.LeaveRoomNtf:
		if members, ok := s.joined[msg.Room]; ok {
			delete(members, msg.User)
		}
	}
}

// Describe renders a server message as one line of console output.
func Describe(m wire.Message) string {
	switch msg := m.(type) {
	case *wire.CreateAccountSuccessAck:
		return fmt.Sprintf("create account OK for %s, user id: %d", msg.Email, msg.UserID)
	case *wire.CreateAccountFailureAck:
		return fmt.Sprintf("create account failed for %s, reason: %s", msg.Email, msg.Reason)
	case *wire.AuthenticateAccountSuccessAck:
		return fmt.Sprintf("auth OK for %s, user id: %d, rooms: %s", msg.Email, msg.UserID, strings.Join(msg.Rooms, " "))
	case *wire.AuthenticateAccountFailureAck:
		return fmt.Sprintf("auth failed for %s, reason: %s", msg.Email, msg.Reason)
	case *wire.JoinRoomAck:
		if msg.Status != wire.StatusSuccess {
			return fmt.Sprintf("join room #%s failed, status: %d", msg.Room, msg.Status)
		}
		return fmt.Sprintf("join room #%s OK, users: %s", msg.Room, strings.Join(msg.Users, " "))
	case *wire.JoinRoomNtf:
		return fmt.Sprintf("'%s' has joined room #%s", msg.User, msg.Room)
	case *wire.LeaveRoomAck:
		if msg.Status != wire.StatusSuccess {
			return fmt.Sprintf("leave room #%s failed, status: %d", msg.Room, msg.Status)
		}
		return fmt.Sprintf("left room #%s OK", msg.Room)
	case *wire.LeaveRoomNtf:
		return fmt.Sprintf("'%s' has left room #%s", msg.User, msg.Room)
	case *wire.ChatInRoomAck:
		if msg.Status != wire.StatusSuccess {
			return fmt.Sprintf("chat in #%s failed, status: %d", msg.Room, msg.Status)
		}
		return fmt.Sprintf("chat in #%s OK", msg.Room)
	case *wire.ChatInRoomNtf:
		return fmt.Sprintf("#%s %s: %s", msg.Room, msg.User, msg.Chat)
	default:
		return fmt.Sprintf("message %v", m.Type())
	}
}

func sortedSet(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}
