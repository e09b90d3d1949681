package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/errgroup"

	"github.com/Zereker/chatroom/account"
	"github.com/Zereker/chatroom/authserver"
	"github.com/Zereker/chatroom/chatserver"
	"github.com/Zereker/chatroom/socket"
	"github.com/Zereker/chatroom/wire"
)

var quietLogger = slog.New(slog.DiscardHandler)

// fakeServer accepts one connection and returns it to the test.
func fakeServer(t *testing.T) (string, <-chan net.Conn) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen failed: %v", err)
	}
	t.Cleanup(func() { l.Close() })

	accepted := make(chan net.Conn, 1)
	go func() {
		c, err := l.Accept()
		if err != nil {
			return
		}
		accepted <- c
	}()
	return l.Addr().String(), accepted
}

func runSession(t *testing.T, addr string) (*Session, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	s, err := Dial(ctx, addr, LoggerOption(quietLogger))
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	t.Cleanup(func() { s.Close() })
	return s, done
}

func next(t *testing.T, s *Session) wire.Message {
	t.Helper()
	select {
	case m, ok := <-s.Messages():
		if !ok {
			t.Fatal("messages closed")
		}
		return m
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func readRequest(t *testing.T, c net.Conn) wire.Message {
	t.Helper()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))
	packet, err := wire.ReadPacket(c, 0)
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	m, err := wire.Decode(packet)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return m
}

func writeReply(t *testing.T, c net.Conn, m wire.Message) {
	t.Helper()
	packet, err := wire.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := c.Write(packet); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func TestNew_Default(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	s, err := New(client)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if cap(s.messages) != defaultInbox {
		t.Errorf("inbox = %d, want %d", cap(s.messages), defaultInbox)
	}
	if s.User() != "" || s.UserID() != 0 {
		t.Errorf("fresh session has user %q id %d", s.User(), s.UserID())
	}
}

func TestSession_RequestsCarryUser(t *testing.T) {
	addr, accepted := fakeServer(t)
	s, _ := runSession(t, addr)
	conn := <-accepted
	defer conn.Close()
	ctx := context.Background()

	if err := s.Authenticate(ctx, "alice", "longenough1"); err != nil {
		t.Fatalf("Authenticate failed: %v", err)
	}
	if req, ok := readRequest(t, conn).(*wire.AuthenticateAccountReq); !ok || req.Email != "alice" || req.Password != "longenough1" {
		t.Fatalf("request = %#v", req)
	}

	if err := s.JoinRoom(ctx, "graphics"); err != nil {
		t.Fatalf("JoinRoom failed: %v", err)
	}
	if req, ok := readRequest(t, conn).(*wire.JoinRoomReq); !ok || req.User != "alice" || req.Room != "graphics" {
		t.Errorf("request = %#v", req)
	}

	if err := s.Chat(ctx, "graphics", "hi"); err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if req, ok := readRequest(t, conn).(*wire.ChatInRoomReq); !ok || req.User != "alice" || req.Chat != "hi" {
		t.Errorf("request = %#v", req)
	}

	if err := s.LeaveRoom(ctx, "graphics"); err != nil {
		t.Fatalf("LeaveRoom failed: %v", err)
	}
	if req, ok := readRequest(t, conn).(*wire.LeaveRoomReq); !ok || req.User != "alice" || req.Room != "graphics" {
		t.Errorf("request = %#v", req)
	}
}

func TestSession_TracksRooms(t *testing.T) {
	addr, accepted := fakeServer(t)
	s, _ := runSession(t, addr)
	conn := <-accepted
	defer conn.Close()

	writeReply(t, conn, &wire.AuthenticateAccountSuccessAck{Email: "alice", UserID: 9, Rooms: []string{"graphics", "network"}})
	writeReply(t, conn, &wire.JoinRoomAck{Status: wire.StatusSuccess, Room: "graphics", Users: []string{"alice", "bob"}})
	writeReply(t, conn, &wire.JoinRoomNtf{Room: "graphics", User: "carol"})
	writeReply(t, conn, &wire.LeaveRoomNtf{Room: "graphics", User: "bob"})
	writeReply(t, conn, &wire.JoinRoomAck{Status: wire.StatusFailure, Room: "kitchen", Users: []string{}})

	for i := 0; i < 5; i++ {
		next(t, s)
	}

	if s.UserID() != 9 {
		t.Errorf("UserID = %d, want 9", s.UserID())
	}
	if !reflect.DeepEqual(s.Catalog(), []string{"graphics", "network"}) {
		t.Errorf("Catalog = %v", s.Catalog())
	}
	if !reflect.DeepEqual(s.JoinedRooms(), []string{"graphics"}) {
		t.Errorf("JoinedRooms = %v", s.JoinedRooms())
	}
	if !reflect.DeepEqual(s.Members("graphics"), []string{"alice", "carol"}) {
		t.Errorf("Members = %v", s.Members("graphics"))
	}

	writeReply(t, conn, &wire.LeaveRoomAck{Status: wire.StatusSuccess, Room: "graphics", User: "alice"})
	next(t, s)
	if len(s.JoinedRooms()) != 0 {
		t.Errorf("JoinedRooms after leave = %v", s.JoinedRooms())
	}
}

func TestSession_ServerCloseEndsRun(t *testing.T) {
	addr, accepted := fakeServer(t)
	s, done := runSession(t, addr)
	conn := <-accepted
	conn.Close()

	select {
	case err := <-done:
		if !errors.Is(err, io.EOF) {
			t.Errorf("Run = %v, want EOF", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after server close")
	}
	if _, ok := <-s.Messages(); ok {
		t.Error("Messages still open")
	}
}

func TestDescribe(t *testing.T) {
	cases := []struct {
		m    wire.Message
		want string
	}{
		{&wire.CreateAccountFailureAck{Reason: wire.CreateAccountAlreadyExists, Email: "a"}, "create account failed for a, reason: Account already exists."},
		{&wire.JoinRoomNtf{Room: "network", User: "bob"}, "'bob' has joined room #network"},
		{&wire.ChatInRoomNtf{Room: "network", User: "bob", Chat: "The dog is cute"}, "#network bob: The dog is cute"},
		{&wire.LeaveRoomAck{Status: wire.StatusFailure, Room: "x"}, "leave room #x failed, status: 400"},
		{&wire.AuthenticateAccountFailureAck{Reason: wire.AuthenticateInternalServerError, Email: "b"}, "auth failed for b, reason: Internal server error."},
		{&wire.CreateAccountFailureAck{Reason: 42, Email: "c"}, "create account failed for c, reason: CreateAccountReason(42)"},
	}
	for _, tc := range cases {
		if got := Describe(tc.m); got != tc.want {
			t.Errorf("Describe(%T) = %q, want %q", tc.m, got, tc.want)
		}
	}
}

// startServices runs an authentication service and a chat service on
// loopback and returns the chat address.
func startServices(t *testing.T) string {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	addr := &net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0}

	authSrv, err := socket.New(addr, socket.LoggerOption(quietLogger), socket.PollIntervalOption(20*time.Millisecond))
	if err != nil {
		t.Fatalf("socket.New failed: %v", err)
	}
	accounts := account.NewService(account.NewMemoryStore(),
		account.HasherOption(account.BcryptHasher{Cost: bcrypt.MinCost}),
		account.LoggerOption(quietLogger))
	go authSrv.Serve(ctx, authserver.New(accounts, authserver.LoggerOption(quietLogger)))

	chatSrv, err := socket.New(addr, socket.LoggerOption(quietLogger), socket.PollIntervalOption(20*time.Millisecond))
	if err != nil {
		t.Fatalf("socket.New failed: %v", err)
	}
	svc := chatserver.New(chatSrv, authSrv.Addr().String(), chatserver.LoggerOption(quietLogger))
	if err := svc.ConnectUpstream(); err != nil {
		t.Fatalf("ConnectUpstream failed: %v", err)
	}
	go chatSrv.Serve(ctx, svc)

	return chatSrv.Addr().String()
}

// expect reads messages until one satisfies match.
func expect(ctx context.Context, s *Session, match func(wire.Message) bool) error {
	for {
		select {
		case m, ok := <-s.Messages():
			if !ok {
				return fmt.Errorf("%s: messages closed", s.User())
			}
			if match(m) {
				return nil
			}
		case <-ctx.Done():
			return fmt.Errorf("%s: %w", s.User(), ctx.Err())
		}
	}
}

func TestConcurrentClients(t *testing.T) {
	addr := startServices(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	names := []string{"alice", "bob"}
	sessions := make([]*Session, len(names))
	for i := range names {
		sessions[i], _ = runSession(t, addr)
	}

	// Both create and authenticate at the same time.
	var g errgroup.Group
	for i, name := range names {
		s := sessions[i]
		g.Go(func() error {
			if err := s.CreateAccount(ctx, name, "password-"+name); err != nil {
				return err
			}
			if err := expect(ctx, s, func(m wire.Message) bool {
				_, ok := m.(*wire.CreateAccountSuccessAck)
				return ok
			}); err != nil {
				return err
			}
			if err := s.Authenticate(ctx, name, "password-"+name); err != nil {
				return err
			}
			return expect(ctx, s, func(m wire.Message) bool {
				_, ok := m.(*wire.AuthenticateAccountSuccessAck)
				return ok
			})
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("login: %v", err)
	}

	alice, bob := sessions[0], sessions[1]
	if alice.UserID() == bob.UserID() {
		t.Errorf("both users got id %d", alice.UserID())
	}

	if err := alice.JoinRoom(ctx, "network"); err != nil {
		t.Fatal(err)
	}
	if err := expect(ctx, alice, isType(wire.TypeJoinRoomAck)); err != nil {
		t.Fatal(err)
	}
	if err := bob.JoinRoom(ctx, "network"); err != nil {
		t.Fatal(err)
	}
	if err := expect(ctx, bob, isType(wire.TypeJoinRoomAck)); err != nil {
		t.Fatal(err)
	}
	if err := expect(ctx, alice, isType(wire.TypeJoinRoomNtf)); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(alice.Members("network"), []string{"alice", "bob"}) {
		t.Errorf("alice sees %v", alice.Members("network"))
	}

	if err := bob.Chat(ctx, "network", "The bird is playful"); err != nil {
		t.Fatal(err)
	}
	err := expect(ctx, alice, func(m wire.Message) bool {
		ntf, ok := m.(*wire.ChatInRoomNtf)
		return ok && ntf.User == "bob" && strings.Contains(ntf.Chat, "bird")
	})
	if err != nil {
		t.Fatal(err)
	}

	bob.Close()
	err = expect(ctx, alice, func(m wire.Message) bool {
		ntf, ok := m.(*wire.LeaveRoomNtf)
		return ok && ntf.User == "bob"
	})
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(alice.Members("network"), []string{"alice"}) {
		t.Errorf("alice sees %v after bob left", alice.Members("network"))
	}
}

func isType(want wire.Type) func(wire.Message) bool {
	return func(m wire.Message) bool { return m.Type() == want }
}

func TestSession_CloseEndsRunCleanly(t *testing.T) {
	addr, accepted := fakeServer(t)
	s, done := runSession(t, addr)
	conn := <-accepted
	defer conn.Close()

	s.Close()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run = %v, want nil after Close", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after Close")
	}
}
