// Package account implements account creation and password
// authentication on top of a Store and a Hasher.
//
// Passwords are never stored: each credential keeps a random salt and the
// hash of password+salt.
package account

import (
	"context"
	"crypto/rand"
	"log/slog"
	"math/big"
	"time"

	"github.com/pkg/errors"

	"github.com/Zereker/chatroom/socket"
)

// MinPasswordLength is the shortest accepted password, in bytes.
const MinPasswordLength = 8

// saltLength and saltAlphabet describe generated salts.
const (
	saltLength   = 4
	saltAlphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

// ErrSecretTooLong is returned by a Hasher that cannot hash a secret of
// the given length.
var ErrSecretTooLong = errors.New("secret too long")

// CreateResult is the outcome of CreateAccount.
type CreateResult int

const (
	CreateSuccess CreateResult = iota
	CreateAccountAlreadyExists
	CreateInvalidPassword
	CreateInternalServerError
)

func (r CreateResult) String() string {
	switch r {
	case CreateSuccess:
		return "success"
	case CreateAccountAlreadyExists:
		return "account already exists"
	case CreateInvalidPassword:
		return "invalid password"
	case CreateInternalServerError:
		return "internal server error"
	default:
		return "unknown"
	}
}

// AuthResult is the outcome of Authenticate.
type AuthResult int

const (
	AuthSuccess AuthResult = iota
	AuthInvalidCredentials
	AuthInternalServerError
)

func (r AuthResult) String() string {
	switch r {
	case AuthSuccess:
		return "success"
	case AuthInvalidCredentials:
		return "invalid credentials"
	case AuthInternalServerError:
		return "internal server error"
	default:
		return "unknown"
	}
}

// Credential is one row of the credential table.
type Credential struct {
	Email          string
	Salt           string
	HashedPassword string
	UserID         uint64
}

// Store is the persistence boundary. Write operations return the number
// of affected rows.
type Store interface {
	// CreateUser inserts a user row.
	CreateUser(ctx context.Context, lastLogin, created time.Time) (int64, error)
	// FindCredentialByEmail returns the credential for email, if any.
	FindCredentialByEmail(ctx context.Context, email string) (Credential, bool, error)
	// CreateCredential inserts a credential row.
	CreateCredential(ctx context.Context, c Credential) (int64, error)
	// ReadMaxUserID returns the largest user id, or zero when there are
	// no users.
	ReadMaxUserID(ctx context.Context) (uint64, error)
	// UpdateLastLogin sets the last login time of a user.
	UpdateLastLogin(ctx context.Context, userID uint64, at time.Time) (int64, error)
}

// Hasher hashes and verifies salted passwords.
type Hasher interface {
	Hash(secret string) (string, error)
	// Verify reports whether secret matches hash. A mismatch is not an
	// error.
	Verify(secret, hash string) (bool, error)
}

type options struct {
	hasher Hasher
	logger socket.Logger
	now    func() time.Time
	salt   func() (string, error)
}

// Option configures a Service.
type Option func(*options)

// HasherOption sets the password hasher. Defaults to a BcryptHasher with
// the default cost.
func HasherOption(h Hasher) Option {
	return func(o *options) {
		o.hasher = h
	}
}

// LoggerOption sets the logger. Defaults to slog.Default.
func LoggerOption(l socket.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// ClockOption sets the time source used for creation and login times.
func ClockOption(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

// SaltOption sets the salt generator.
func SaltOption(salt func() (string, error)) Option {
	return func(o *options) {
		o.salt = salt
	}
}

// Service creates and authenticates accounts.
type Service struct {
	store  Store
	hasher Hasher
	logger socket.Logger
	now    func() time.Time
	salt   func() (string, error)
}

// NewService returns a service backed by store.
func NewService(store Store, opt ...Option) *Service {
	var opts options
	for _, o := range opt {
		o(&opts)
	}
	if opts.hasher == nil {
		opts.hasher = BcryptHasher{}
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
	if opts.now == nil {
		opts.now = time.Now
	}
	if opts.salt == nil {
		opts.salt = RandomSalt
	}

	return &Service{
		store:  store,
		hasher: opts.hasher,
		logger: opts.logger,
		now:    opts.now,
		salt:   opts.salt,
	}
}

// CreateAccount registers email with password and returns the new user
// id. A password shorter than MinPasswordLength is rejected before
// storage is consulted. The returned error, if any, accompanies
// CreateInternalServerError and describes the failure for logging.
func (s *Service) CreateAccount(ctx context.Context, email, password string) (uint64, CreateResult, error) {
	if len(password) < MinPasswordLength {
		return 0, CreateInvalidPassword, nil
	}

	_, exists, err := s.store.FindCredentialByEmail(ctx, email)
	if err != nil {
		return 0, CreateInternalServerError, errors.Wrap(err, "find credential")
	}
	if exists {
		return 0, CreateAccountAlreadyExists, nil
	}

	now := s.now()
	rows, err := s.store.CreateUser(ctx, now, now)
	if err != nil {
		return 0, CreateInternalServerError, errors.Wrap(err, "create user")
	}
	if rows == 0 {
		return 0, CreateInternalServerError, errors.New("create user: no row inserted")
	}

	userID, err := s.store.ReadMaxUserID(ctx)
	if err != nil {
		return 0, CreateInternalServerError, errors.Wrap(err, "read max user id")
	}
	if userID == 0 {
		return 0, CreateInternalServerError, errors.New("read max user id: no users")
	}

	salt, err := s.salt()
	if err != nil {
		return 0, CreateInternalServerError, errors.Wrap(err, "generate salt")
	}
	hashed, err := s.hasher.Hash(password + salt)
	if errors.Is(err, ErrSecretTooLong) {
		return 0, CreateInvalidPassword, nil
	}
	if err != nil {
		return 0, CreateInternalServerError, errors.Wrap(err, "hash password")
	}

	rows, err = s.store.CreateCredential(ctx, Credential{
		Email:          email,
		Salt:           salt,
		HashedPassword: hashed,
		UserID:         userID,
	})
	if err != nil {
		return 0, CreateInternalServerError, errors.Wrap(err, "create credential")
	}
	if rows == 0 {
		return 0, CreateInternalServerError, errors.New("create credential: no row inserted")
	}

	s.logger.Info("account created", "email", email, "user_id", userID)
	return userID, CreateSuccess, nil
}

// Authenticate checks password against the stored credential of email
// and returns the user id on success. Unknown emails and wrong passwords
// are both AuthInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (uint64, AuthResult, error) {
	if len(password) < MinPasswordLength {
		return 0, AuthInvalidCredentials, nil
	}

	cred, exists, err := s.store.FindCredentialByEmail(ctx, email)
	if err != nil {
		return 0, AuthInternalServerError, errors.Wrap(err, "find credential")
	}
	if !exists {
		return 0, AuthInvalidCredentials, nil
	}

	ok, err := s.hasher.Verify(password+cred.Salt, cred.HashedPassword)
	if err != nil {
		return 0, AuthInternalServerError, errors.Wrap(err, "verify password")
	}
	if !ok {
		return 0, AuthInvalidCredentials, nil
	}

	if _, err := s.store.UpdateLastLogin(ctx, cred.UserID, s.now()); err != nil {
		return 0, AuthInternalServerError, errors.Wrap(err, "update last login")
	}

	s.logger.Info("account authenticated", "email", email, "user_id", cred.UserID)
	return cred.UserID, AuthSuccess, nil
}

// RandomSalt returns a random alphanumeric salt from crypto/rand.
func RandomSalt() (string, error) {
	limit := big.NewInt(int64(len(saltAlphabet)))
	salt := make([]byte, saltLength)
	for i := range salt {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", err
		}
		salt[i] = saltAlphabet[n.Int64()]
	}
	return string(salt), nil
}
