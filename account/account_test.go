package account

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T, opt ...Option) (*Service, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	opt = append([]Option{HasherOption(BcryptHasher{Cost: bcrypt.MinCost})}, opt...)
	return NewService(store, opt...), store
}

func TestCreateAccount_ShortPasswordSkipsStorage(t *testing.T) {
	svc, store := newTestService(t)

	_, result, err := svc.CreateAccount(context.Background(), "a@x.com", "short")
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if result != CreateInvalidPassword {
		t.Errorf("result = %v, want invalid password", result)
	}
	if store.Calls() != 0 {
		t.Errorf("store touched %d times", store.Calls())
	}
}

func TestCreateThenAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, result, err := svc.CreateAccount(ctx, "a@x.com", "longenough1")
	if err != nil || result != CreateSuccess {
		t.Fatalf("CreateAccount = %v, %v", result, err)
	}
	if id == 0 {
		t.Fatal("no user id assigned")
	}

	got, auth, err := svc.Authenticate(ctx, "a@x.com", "longenough1")
	if err != nil || auth != AuthSuccess {
		t.Fatalf("Authenticate = %v, %v", auth, err)
	}
	if got != id {
		t.Errorf("user id = %d, want %d", got, id)
	}

	if _, auth, _ := svc.Authenticate(ctx, "a@x.com", "wrongpass1"); auth != AuthInvalidCredentials {
		t.Errorf("wrong password: result = %v, want invalid credentials", auth)
	}
	if _, auth, _ := svc.Authenticate(ctx, "nobody@x.com", "longenough1"); auth != AuthInvalidCredentials {
		t.Errorf("unknown email: result = %v, want invalid credentials", auth)
	}
	if _, auth, _ := svc.Authenticate(ctx, "a@x.com", "short"); auth != AuthInvalidCredentials {
		t.Errorf("short password: result = %v, want invalid credentials", auth)
	}
}

func TestCreateAccount_Duplicate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	if _, result, _ := svc.CreateAccount(ctx, "a@x.com", "longenough1"); result != CreateSuccess {
		t.Fatalf("first create = %v", result)
	}
	if _, result, _ := svc.CreateAccount(ctx, "a@x.com", "another-pass"); result != CreateAccountAlreadyExists {
		t.Errorf("second create = %v, want already exists", result)
	}
}

func TestCreateAccount_SequentialIDs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	first, _, _ := svc.CreateAccount(ctx, "a@x.com", "longenough1")
	second, _, _ := svc.CreateAccount(ctx, "b@x.com", "longenough2")

	if first != 1 || second != 2 {
		t.Errorf("ids = %d, %d, want 1, 2", first, second)
	}
}

func TestCreateAccount_StoresSaltedHash(t *testing.T) {
	svc, store := newTestService(t, SaltOption(func() (string, error) { return "Ab3z", nil }))
	ctx := context.Background()

	if _, result, _ := svc.CreateAccount(ctx, "a@x.com", "longenough1"); result != CreateSuccess {
		t.Fatalf("create = %v", result)
	}

	cred, ok, err := store.FindCredentialByEmail(ctx, "a@x.com")
	if err != nil || !ok {
		t.Fatalf("credential not stored: %v", err)
	}
	if cred.Salt != "Ab3z" {
		t.Errorf("salt = %q, want Ab3z", cred.Salt)
	}
	if strings.Contains(cred.HashedPassword, "longenough1") {
		t.Error("plaintext password stored")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(cred.HashedPassword), []byte("longenough1Ab3z")); err != nil {
		t.Errorf("hash does not match password+salt: %v", err)
	}
}

func TestCreateAccount_StorageError(t *testing.T) {
	svc, store := newTestService(t)
	boom := errors.New("disk on fire")
	store.FailWith(boom)

	_, result, err := svc.CreateAccount(context.Background(), "a@x.com", "longenough1")
	if result != CreateInternalServerError {
		t.Errorf("result = %v, want internal server error", result)
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want wrapped %v", err, boom)
	}
}

func TestAuthenticate_StorageError(t *testing.T) {
	svc, store := newTestService(t)
	store.FailWith(errors.New("gone"))

	if _, result, err := svc.Authenticate(context.Background(), "a@x.com", "longenough1"); result != AuthInternalServerError || err == nil {
		t.Errorf("Authenticate = %v, %v, want internal server error", result, err)
	}
}

func TestCreateAccount_SecretTooLong(t *testing.T) {
	svc, _ := newTestService(t)

	_, result, err := svc.CreateAccount(context.Background(), "a@x.com", strings.Repeat("p", 80))
	if err != nil {
		t.Fatalf("CreateAccount failed: %v", err)
	}
	if result != CreateInvalidPassword {
		t.Errorf("result = %v, want invalid password", result)
	}
}

func TestAuthenticate_UpdatesLastLogin(t *testing.T) {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	svc, store := newTestService(t, ClockOption(func() time.Time { return now }))
	ctx := context.Background()

	id, _, _ := svc.CreateAccount(ctx, "a@x.com", "longenough1")

	now = now.Add(time.Hour)
	if _, result, _ := svc.Authenticate(ctx, "a@x.com", "longenough1"); result != AuthSuccess {
		t.Fatalf("Authenticate = %v", result)
	}

	last, ok := store.LastLogin(id)
	if !ok || !last.Equal(now) {
		t.Errorf("last login = %v, want %v", last, now)
	}
}

func TestRandomSalt(t *testing.T) {
	for i := 0; i < 50; i++ {
		salt, err := RandomSalt()
		if err != nil {
			t.Fatalf("RandomSalt failed: %v", err)
		}
		if len(salt) != saltLength {
			t.Fatalf("len(salt) = %d, want %d", len(salt), saltLength)
		}
		for _, c := range salt {
			if !strings.ContainsRune(saltAlphabet, c) {
				t.Fatalf("salt %q contains %q", salt, c)
			}
		}
	}
}

func TestBcryptHasher(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := h.Hash("secret-value")
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if ok, err := h.Verify("secret-value", hash); !ok || err != nil {
		t.Errorf("Verify(match) = %v, %v", ok, err)
	}
	if ok, err := h.Verify("other-value", hash); ok || err != nil {
		t.Errorf("Verify(mismatch) = %v, %v", ok, err)
	}
	if _, err := h.Verify("secret-value", "not-a-hash"); err == nil {
		t.Error("Verify with malformed hash should fail")
	}

	long := strings.Repeat("a", 80)
	if _, err := h.Hash(long); !errors.Is(err, ErrSecretTooLong) {
		t.Errorf("Hash(80 bytes) = %v, want ErrSecretTooLong", err)
	}
	prefix, err := h.Hash(long[:72])
	if err != nil {
		t.Fatalf("Hash failed: %v", err)
	}
	if ok, err := h.Verify(long, prefix); ok || err != nil {
		t.Errorf("Verify(over-long) = %v, %v", ok, err)
	}
}

func TestResult_String(t *testing.T) {
	if CreateAccountAlreadyExists.String() != "account already exists" {
		t.Errorf("got %q", CreateAccountAlreadyExists.String())
	}
	if AuthInvalidCredentials.String() != "invalid credentials" {
		t.Errorf("got %q", AuthInvalidCredentials.String())
	}
}
