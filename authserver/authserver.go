// Package authserver answers account requests from the chat service.
//
// It speaks only the upstream dialect: every CreateAccountWebReq and
// AuthenticateWebReq is run against the account service and answered on
// the same connection with the request id echoed back.
package authserver

import (
	"context"
	"log/slog"
	"time"

	"github.com/Zereker/chatroom/account"
	"github.com/Zereker/chatroom/socket"
	"github.com/Zereker/chatroom/wire"
)

// defaultTimeout bounds the storage work of one request.
const defaultTimeout = 5 * time.Second

// Accounts is the account core as seen by the service.
type Accounts interface {
	CreateAccount(ctx context.Context, email, password string) (uint64, account.CreateResult, error)
	Authenticate(ctx context.Context, email, password string) (uint64, account.AuthResult, error)
}

type options struct {
	logger  socket.Logger
	timeout time.Duration
}

// Option configures a Handler.
type Option func(*options)

// LoggerOption sets the logger. Defaults to slog.Default.
func LoggerOption(l socket.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// TimeoutOption bounds each account operation.
func TimeoutOption(d time.Duration) Option {
	return func(o *options) {
		o.timeout = d
	}
}

// Handler is the socket.Handler of the authentication service.
type Handler struct {
	accounts Accounts
	logger   socket.Logger
	timeout  time.Duration
}

var _ socket.Handler = (*Handler)(nil)

// New returns a handler running requests against accounts.
func New(accounts Accounts, opt ...Option) *Handler {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.timeout <= 0 {
		opts.timeout = defaultTimeout
	}
	return &Handler{accounts: accounts, logger: opts.logger, timeout: opts.timeout}
}

func (h *Handler) OnOpen(c *socket.Conn) {
	h.logger.Info("chat service connected", "conn", c.ID(), "addr", c.Addr())
}

func (h *Handler) OnClose(c *socket.Conn, err error) {
	h.logger.Info("chat service disconnected", "conn", c.ID(), "error", err)
}

func (h *Handler) OnTick(time.Time) {}

func (h *Handler) OnMessage(c *socket.Conn, m wire.Message) {
	var reply wire.Message
	switch req := m.(type) {
	case *wire.CreateAccountWebReq:
		reply = h.createAccount(req)
	case *wire.AuthenticateWebReq:
		reply = h.authenticate(req)
	default:
		h.logger.Warn("ignoring message", "conn", c.ID(), "type", m.Type())
		return
	}

	if err := c.Send(reply); err != nil {
		h.logger.Warn("reply failed", "conn", c.ID(), "type", reply.Type(), "error", err)
	}
}

func (h *Handler) createAccount(req *wire.CreateAccountWebReq) wire.Message {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	userID, result, err := h.accounts.CreateAccount(ctx, req.Email, req.PlaintextPassword)
	if err != nil {
		h.logger.Error("create account failed", "request_id", req.RequestID, "email", req.Email, "error", err)
	}
	if result == account.CreateSuccess {
		return &wire.CreateAccountWebSuccessAck{RequestID: req.RequestID, UserID: userID}
	}

	h.logger.Info("create account rejected", "request_id", req.RequestID, "email", req.Email, "result", result)
	return &wire.CreateAccountWebFailureAck{RequestID: req.RequestID, Reason: createReason(result)}
}

func (h *Handler) authenticate(req *wire.AuthenticateWebReq) wire.Message {
	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	userID, result, err := h.accounts.Authenticate(ctx, req.Email, req.PlaintextPassword)
	if err != nil {
		h.logger.Error("authenticate failed", "request_id", req.RequestID, "email", req.Email, "error", err)
	}
	if result == account.AuthSuccess {
		return &wire.AuthenticateWebSuccessAck{RequestID: req.RequestID, UserID: userID}
	}

	h.logger.Info("authenticate rejected", "request_id", req.RequestID, "email", req.Email, "result", result)
	return &wire.AuthenticateWebFailureAck{RequestID: req.RequestID, Reason: authReason(result)}
}

func createReason(r account.CreateResult) wire.CreateAccountReason {
	switch r {
	case account.CreateSuccess:
		return wire.CreateAccountSuccess
	case account.CreateAccountAlreadyExists:
		return wire.CreateAccountAlreadyExists
	case account.CreateInvalidPassword:
		return wire.CreateAccountInvalidPassword
	default:
		return wire.CreateAccountInternalServerError
	}
}

func authReason(r account.AuthResult) wire.AuthenticateReason {
	switch r {
	case account.AuthSuccess:
		return wire.AuthenticateSuccess
	case account.AuthInvalidCredentials:
		return wire.AuthenticateInvalidCredentials
	default:
		return wire.AuthenticateInternalServerError
	}
}
