package account

import (
	"context"
	"sync"
	"time"
)

type memoryUser struct {
	lastLogin time.Time
	created   time.Time
}

// MemoryStore is a Store kept in process memory. It is safe for
// concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	users       []memoryUser // index i holds user id i+1
	credentials map[string]Credential
	calls       int
	err         error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{credentials: make(map[string]Credential)}
}

// FailWith makes every later operation return err. A nil err restores
// normal behavior.
func (m *MemoryStore) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns how many operations have been invoked.
func (m *MemoryStore) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

// LastLogin returns the recorded last login of a user.
func (m *MemoryStore) LastLogin(userID uint64) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if userID == 0 || userID > uint64(len(m.users)) {
		return time.Time{}, false
	}
	return m.users[userID-1].lastLogin, true
}

func (m *MemoryStore) enter() error {
	m.calls++
	return m.err
}

func (m *MemoryStore) CreateUser(_ context.Context, lastLogin, created time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return 0, err
	}
	m.users = append(m.users, memoryUser{lastLogin: lastLogin, created: created})
	return 1, nil
}

func (m *MemoryStore) FindCredentialByEmail(_ context.Context, email string) (Credential, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return Credential{}, false, err
	}
	c, ok := m.credentials[email]
	return c, ok, nil
}

func (m *MemoryStore) CreateCredential(_ context.Context, c Credential) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return 0, err
	}
	if _, exists := m.credentials[c.Email]; exists {
		return 0, nil
	}
	m.credentials[c.Email] = c
	return 1, nil
}

func (m *MemoryStore) ReadMaxUserID(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return 0, err
	}
	return uint64(len(m.users)), nil
}

func (m *MemoryStore) UpdateLastLogin(_ context.Context, userID uint64, at time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(); err != nil {
		return 0, err
	}
	if userID == 0 || userID > uint64(len(m.users)) {
		return 0, nil
	}
	m.users[userID-1].lastLogin = at
	return 1, nil
}
