package authserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/Zereker/chatroom/account"
	"github.com/Zereker/chatroom/socket"
	"github.com/Zereker/chatroom/wire"
)

var quietLogger = slog.New(slog.DiscardHandler)

func startAuthServer(t *testing.T, accounts Accounts) net.Conn {
	t.Helper()

	server, err := socket.New(&net.TCPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
		socket.LoggerOption(quietLogger),
		socket.PollIntervalOption(20*time.Millisecond))
	if err != nil {
		t.Fatalf("socket.New failed: %v", err)
	}
	go server.Serve(context.Background(), New(accounts, LoggerOption(quietLogger)))
	t.Cleanup(func() { server.Close() })

	conn, err := net.DialTimeout("tcp", server.Addr().String(), 5*time.Second)
	if err != nil {
		t.Fatalf("dial failed: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func roundTrip(t *testing.T, conn net.Conn, req wire.Message) wire.Message {
	t.Helper()

	packet, err := wire.Marshal(req)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if _, err := conn.Write(packet); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	reply, err := wire.ReadPacket(conn, 0)
	if err != nil {
		t.Fatalf("ReadPacket failed: %v", err)
	}
	m, err := wire.Decode(reply)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return m
}

func newAccounts() *account.Service {
	return account.NewService(account.NewMemoryStore(),
		account.HasherOption(account.BcryptHasher{Cost: bcrypt.MinCost}),
		account.LoggerOption(quietLogger))
}

func TestHandler_CreateAndAuthenticate(t *testing.T) {
	conn := startAuthServer(t, newAccounts())

	m := roundTrip(t, conn, &wire.CreateAccountWebReq{RequestID: 11, Email: "a@x.com", PlaintextPassword: "longenough1"})
	created, ok := m.(*wire.CreateAccountWebSuccessAck)
	if !ok {
		t.Fatalf("reply = %#v, want CreateAccountWebSuccessAck", m)
	}
	if created.RequestID != 11 || created.UserID == 0 {
		t.Errorf("reply = %+v", created)
	}

	m = roundTrip(t, conn, &wire.AuthenticateWebReq{RequestID: 12, Email: "a@x.com", PlaintextPassword: "longenough1"})
	authed, ok := m.(*wire.AuthenticateWebSuccessAck)
	if !ok {
		t.Fatalf("reply = %#v, want AuthenticateWebSuccessAck", m)
	}
	if authed.RequestID != 12 || authed.UserID != created.UserID {
		t.Errorf("reply = %+v, want user %d", authed, created.UserID)
	}

	m = roundTrip(t, conn, &wire.AuthenticateWebReq{RequestID: 13, Email: "a@x.com", PlaintextPassword: "wrongpass1"})
	failed, ok := m.(*wire.AuthenticateWebFailureAck)
	if !ok || failed.RequestID != 13 || failed.Reason != wire.AuthenticateInvalidCredentials {
		t.Errorf("reply = %#v, want invalid credentials for 13", m)
	}
}

func TestHandler_CreateAccountFailures(t *testing.T) {
	conn := startAuthServer(t, newAccounts())

	m := roundTrip(t, conn, &wire.CreateAccountWebReq{RequestID: 1, Email: "a@x.com", PlaintextPassword: "short"})
	if f, ok := m.(*wire.CreateAccountWebFailureAck); !ok || f.Reason != wire.CreateAccountInvalidPassword || f.RequestID != 1 {
		t.Errorf("reply = %#v, want invalid password", m)
	}

	roundTrip(t, conn, &wire.CreateAccountWebReq{RequestID: 2, Email: "a@x.com", PlaintextPassword: "longenough1"})
	m = roundTrip(t, conn, &wire.CreateAccountWebReq{RequestID: 3, Email: "a@x.com", PlaintextPassword: "longenough1"})
	if f, ok := m.(*wire.CreateAccountWebFailureAck); !ok || f.Reason != wire.CreateAccountAlreadyExists || f.RequestID != 3 {
		t.Errorf("reply = %#v, want already exists", m)
	}
}

func TestHandler_StorageFailure(t *testing.T) {
	store := account.NewMemoryStore()
	store.FailWith(errors.New("unavailable"))
	svc := account.NewService(store, account.LoggerOption(quietLogger))
	conn := startAuthServer(t, svc)

	m := roundTrip(t, conn, &wire.CreateAccountWebReq{RequestID: 5, Email: "a@x.com", PlaintextPassword: "longenough1"})
	if f, ok := m.(*wire.CreateAccountWebFailureAck); !ok || f.Reason != wire.CreateAccountInternalServerError {
		t.Errorf("reply = %#v, want internal server error", m)
	}

	m = roundTrip(t, conn, &wire.AuthenticateWebReq{RequestID: 6, Email: "a@x.com", PlaintextPassword: "longenough1"})
	if f, ok := m.(*wire.AuthenticateWebFailureAck); !ok || f.Reason != wire.AuthenticateInternalServerError {
		t.Errorf("reply = %#v, want internal server error", m)
	}
}

func TestHandler_IgnoresClientDialect(t *testing.T) {
	conn := startAuthServer(t, newAccounts())

	stray, _ := wire.Marshal(&wire.JoinRoomReq{User: "alice", Room: "graphics"})
	if _, err := conn.Write(stray); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	// The connection survives and keeps answering.
	m := roundTrip(t, conn, &wire.AuthenticateWebReq{RequestID: 8, Email: "nobody@x.com", PlaintextPassword: "longenough1"})
	if f, ok := m.(*wire.AuthenticateWebFailureAck); !ok || f.RequestID != 8 {
		t.Errorf("reply = %#v", m)
	}
}

func TestReasonMapping(t *testing.T) {
	creates := map[account.CreateResult]wire.CreateAccountReason{
		account.CreateSuccess:              wire.CreateAccountSuccess,
		account.CreateAccountAlreadyExists: wire.CreateAccountAlreadyExists,
		account.CreateInvalidPassword:      wire.CreateAccountInvalidPassword,
		account.CreateInternalServerError:  wire.CreateAccountInternalServerError,
	}
	for in, want := range creates {
		if got := createReason(in); got != want {
			t.Errorf("createReason(%v) = %v, want %v", in, got, want)
		}
	}

	auths := map[account.AuthResult]wire.AuthenticateReason{
		account.AuthSuccess:             wire.AuthenticateSuccess,
		account.AuthInvalidCredentials:  wire.AuthenticateInvalidCredentials,
		account.AuthInternalServerError: wire.AuthenticateInternalServerError,
	}
	for in, want := range auths {
		if got := authReason(in); got != want {
			t.Errorf("authReason(%v) = %v, want %v", in, got, want)
		}
	}
}
