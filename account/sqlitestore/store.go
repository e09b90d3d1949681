// Package sqlitestore implements account.Store on SQLite.
//
// The schema has two tables: user holds one row per account with its
// creation and last login times, web_auth maps an email to its salt,
// password hash and user id.
package sqlitestore

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"zombiezen.com/go/sqlite"
	"zombiezen.com/go/sqlite/sqlitex"

	"github.com/Zereker/chatroom/account"
)

// timeLayout is the text form of stored timestamps, always UTC.
const timeLayout = "2006-01-02 15:04:05"

const schema = `
CREATE TABLE IF NOT EXISTS user (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	last_login    TEXT NOT NULL,
	creation_date TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS web_auth (
	id              INTEGER PRIMARY KEY AUTOINCREMENT,
	email           TEXT NOT NULL UNIQUE,
	salt            TEXT NOT NULL,
	hashed_password TEXT NOT NULL,
	user_id         INTEGER NOT NULL REFERENCES user(id)
);
`

// Config holds the parameters for opening a Store.
type Config struct {
	// Path is the filesystem path to the database file. The file is
	// created if it does not exist.
	Path string

	// PoolSize is the number of connections in the pool. Defaults to 4.
	PoolSize int

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger
}

// Store is an account.Store backed by a pool of SQLite connections. It is
// safe for concurrent use.
type Store struct {
	pool   *sqlitex.Pool
	logger *slog.Logger
	path   string
}

var _ account.Store = (*Store)(nil)

// Open opens the database, creating the schema on first use.
func Open(cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("sqlitestore: Path is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 4
	}

	pool, err := sqlitex.NewPool(cfg.Path, sqlitex.PoolOptions{
		PoolSize:    poolSize,
		PrepareConn: prepareConnection,
	})
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: opening %s: %w", cfg.Path, err)
	}

	logger.Info("account store opened", "path", cfg.Path, "pool_size", poolSize)
	return &Store{pool: pool, logger: logger, path: cfg.Path}, nil
}

// Close closes all connections. Blocks until borrowed connections are
// returned.
func (s *Store) Close() error {
	if err := s.pool.Close(); err != nil {
		return fmt.Errorf("sqlitestore: closing %s: %w", s.path, err)
	}
	s.logger.Info("account store closed", "path", s.path)
	return nil
}

func prepareConnection(conn *sqlite.Conn) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if err := sqlitex.ExecuteTransient(conn, pragma, nil); err != nil {
			return fmt.Errorf("sqlitestore: %s: %w", pragma, err)
		}
	}
	if err := sqlitex.ExecuteScript(conn, schema, nil); err != nil {
		return fmt.Errorf("sqlitestore: creating schema: %w", err)
	}
	return nil
}

func (s *Store) take(ctx context.Context) (*sqlite.Conn, error) {
	conn, err := s.pool.Take(ctx)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: take: %w", err)
	}
	return conn, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

// CreateUser inserts a user row.
func (s *Store) CreateUser(ctx context.Context, lastLogin, created time.Time) (int64, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "INSERT INTO user (last_login, creation_date) VALUES (?, ?);", &sqlitex.ExecOptions{
		Args: []any{formatTime(lastLogin), formatTime(created)},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: create user: %w", err)
	}
	return int64(conn.Changes()), nil
}

// FindCredentialByEmail returns the web_auth row for email.
func (s *Store) FindCredentialByEmail(ctx context.Context, email string) (account.Credential, bool, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return account.Credential{}, false, err
	}
	defer s.pool.Put(conn)

	var (
		cred  account.Credential
		found bool
	)
	err = sqlitex.Execute(conn, "SELECT salt, hashed_password, user_id FROM web_auth WHERE email = ?;", &sqlitex.ExecOptions{
		Args: []any{email},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			cred = account.Credential{
				Email:          email,
				Salt:           stmt.ColumnText(0),
				HashedPassword: stmt.ColumnText(1),
				UserID:         uint64(stmt.ColumnInt64(2)),
			}
			found = true
			return nil
		},
	})
	if err != nil {
		return account.Credential{}, false, fmt.Errorf("sqlitestore: find credential: %w", err)
	}
	return cred, found, nil
}

// CreateCredential inserts a web_auth row.
func (s *Store) CreateCredential(ctx context.Context, c account.Credential) (int64, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "INSERT INTO web_auth (email, salt, hashed_password, user_id) VALUES (?, ?, ?, ?);", &sqlitex.ExecOptions{
		Args: []any{c.Email, c.Salt, c.HashedPassword, int64(c.UserID)},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: create credential: %w", err)
	}
	return int64(conn.Changes()), nil
}

// ReadMaxUserID returns the largest user id, zero for an empty table.
func (s *Store) ReadMaxUserID(ctx context.Context) (uint64, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	var id int64
	err = sqlitex.Execute(conn, "SELECT COALESCE(MAX(id), 0) AS max_id FROM user;", &sqlitex.ExecOptions{
		ResultFunc: func(stmt *sqlite.Stmt) error {
			id = stmt.ColumnInt64(0)
			return nil
		},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: read max user id: %w", err)
	}
	return uint64(id), nil
}

// UpdateLastLogin sets user.last_login.
func (s *Store) UpdateLastLogin(ctx context.Context, userID uint64, at time.Time) (int64, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return 0, err
	}
	defer s.pool.Put(conn)

	err = sqlitex.Execute(conn, "UPDATE user SET last_login = ? WHERE id = ?;", &sqlitex.ExecOptions{
		Args: []any{formatTime(at), int64(userID)},
	})
	if err != nil {
		return 0, fmt.Errorf("sqlitestore: update last login: %w", err)
	}
	return int64(conn.Changes()), nil
}

// LastLogin returns the stored last login time of a user.
func (s *Store) LastLogin(ctx context.Context, userID uint64) (time.Time, bool, error) {
	conn, err := s.take(ctx)
	if err != nil {
		return time.Time{}, false, err
	}
	defer s.pool.Put(conn)

	var (
		text  string
		found bool
	)
	err = sqlitex.Execute(conn, "SELECT last_login FROM user WHERE id = ?;", &sqlitex.ExecOptions{
		Args: []any{int64(userID)},
		ResultFunc: func(stmt *sqlite.Stmt) error {
			text = stmt.ColumnText(0)
			found = true
			return nil
		},
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlitestore: read last login: %w", err)
	}
	if !found {
		return time.Time{}, false, nil
	}
	at, err := time.ParseInLocation(timeLayout, text, time.UTC)
	if err != nil {
		return time.Time{}, false, fmt.Errorf("sqlitestore: parsing last login %q: %w", text, err)
	}
	return at, true, nil
}
