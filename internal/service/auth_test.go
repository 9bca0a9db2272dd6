package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/faucetdb/usher/internal/model"
)

func TestAuthenticateSuccessSetsLastLogin(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "secret123")
	if alice.LastLogin != nil {
		t.Fatal("new account should have no last_login")
	}

	fixed := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	env.auth.now = func() time.Time { return fixed }

	got, err := env.auth.Authenticate(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if got.ID != alice.ID {
		t.Errorf("got account %d, want %d", got.ID, alice.ID)
	}

	stored, _ := env.store.GetAccount(ctx, alice.ID)
	if stored.LastLogin == nil || !stored.LastLogin.Equal(fixed) {
		t.Errorf("last_login = %v, want %v", stored.LastLogin, fixed)
	}
}

func TestAuthenticateFailures(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "alice", "secret123")
	env.createUser(t, "sleepy", "secret123", func(in *model.NewAccount) {
		inactive := false
		in.IsActive = &inactive
	})

	tests := []struct {
		name     string
		username string
		password string
		want     error
	}{
		{"missing username", "", "secret123", ErrValidation},
		{"missing password", "alice", "", ErrValidation},
		{"wrong password", "alice", "nope", ErrInvalidCredentials},
		{"unknown user", "nobody", "secret123", ErrInvalidCredentials},
		{"inactive account", "sleepy", "secret123", ErrAccountDisabled},
		{"inactive wrong password", "sleepy", "nope", ErrInvalidCredentials},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.auth.Authenticate(context.Background(), tt.username, tt.password)
			if !errors.Is(err, tt.want) {
				t.Errorf("got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestAuthenticateMissingFieldsMessage(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.auth.Authenticate(context.Background(), "", "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %T", err)
	}
	if verr.Error() != "Please provide both username and password" {
		t.Errorf("message = %q", verr.Error())
	}
}

func TestAccountWithoutPasswordCannotLogin(t *testing.T) {
	env := newTestEnv(t)
	env.createUser(t, "nopass", "")

	_, err := env.auth.Authenticate(context.Background(), "nopass", "anything")
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("got %v, want ErrInvalidCredentials", err)
	}
}

func TestIssueTokenIsStable(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.createUser(t, "alice", "secret123")

	first, acct, err := env.auth.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if len(first) != 40 {
		t.Errorf("token length = %d, want 40", len(first))
	}
	if acct.Username != "alice" {
		t.Errorf("account = %q", acct.Username)
	}

	second, _, err := env.auth.Login(ctx, "alice", "secret123")
	if err != nil {
		t.Fatalf("second Login: %v", err)
	}
	if first != second {
		t.Errorf("tokens differ: %s vs %s", first, second)
	}
}

func TestResolveToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "secret123")

	key, err := env.auth.IssueToken(ctx, alice)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	got, err := env.auth.ResolveToken(ctx, key)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if got.ID != alice.ID {
		t.Errorf("resolved account %d, want %d", got.ID, alice.ID)
	}

	if _, err := env.auth.ResolveToken(ctx, "0000"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("unknown key: got %v, want ErrInvalidToken", err)
	}
	if _, err := env.auth.ResolveToken(ctx, ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("empty key: got %v, want ErrInvalidToken", err)
	}
}

func TestResolveTokenSeesRoleChanges(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "secret123")
	key, _ := env.auth.IssueToken(ctx, alice)

	// Warm the cache, then promote outside the service.
	if _, err := env.auth.ResolveToken(ctx, key); err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	alice.IsStaff = true
	if err := env.store.UpdateAccount(ctx, alice); err != nil {
		t.Fatalf("UpdateAccount: %v", err)
	}

	got, err := env.auth.ResolveToken(ctx, key)
	if err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
	if !got.IsStaff {
		t.Error("expected promotion to be visible on the next resolve")
	}
}

func TestSuspendedTokenRejected(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "secret123")
	key, _ := env.auth.IssueToken(ctx, alice)

	if err := env.accounts.Suspend(ctx, alice.ID); err != nil {
		t.Fatalf("Suspend: %v", err)
	}
	if _, err := env.auth.ResolveToken(ctx, key); !errors.Is(err, ErrAccountDisabled) {
		t.Fatalf("got %v, want ErrAccountDisabled", err)
	}

	if err := env.accounts.Unsuspend(ctx, alice.ID); err != nil {
		t.Fatalf("Unsuspend: %v", err)
	}
	if _, err := env.auth.ResolveToken(ctx, key); err != nil {
		t.Fatalf("token should work again after unsuspend: %v", err)
	}
}

func TestRevokeToken(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "secret123")
	key, _ := env.auth.IssueToken(ctx, alice)
	if _, err := env.auth.ResolveToken(ctx, key); err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}

	if err := env.auth.RevokeToken(ctx, alice.ID); err != nil {
		t.Fatalf("RevokeToken: %v", err)
	}
	if _, err := env.auth.ResolveToken(ctx, key); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("revoked key: got %v, want ErrInvalidToken", err)
	}
	if err := env.auth.RevokeToken(ctx, alice.ID); err != nil {
		t.Errorf("second revoke should be a no-op, got %v", err)
	}

	fresh, err := env.auth.IssueToken(ctx, alice)
	if err != nil {
		t.Fatalf("IssueToken after revoke: %v", err)
	}
	if fresh == key {
		t.Error("expected a new key after revocation")
	}
}

func TestResolveTokenWithoutCache(t *testing.T) {
	env := newTestEnv(t)
	WithTokenCacheTTL(0)(env.auth)
	ctx := context.Background()
	alice := env.createUser(t, "alice", "secret123")
	key, _ := env.auth.IssueToken(ctx, alice)

	if _, err := env.auth.ResolveToken(ctx, key); err != nil {
		t.Fatalf("ResolveToken: %v", err)
	}
}

func TestPasswordHasher(t *testing.T) {
	h := NewPasswordHasher(4)
	hash, err := h.Hash("hunter2")
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "hunter2" {
		t.Fatal("hash must not equal the password")
	}
	if !h.Verify(hash, "hunter2") {
		t.Error("expected matching password to verify")
	}
	if h.Verify(hash, "hunter3") {
		t.Error("expected wrong password to fail")
	}
	unusable, err := UnusablePassword()
	if err != nil {
		t.Fatalf("UnusablePassword: %v", err)
	}
	if h.Verify(unusable, "") {
		t.Error("unusable hash must never verify")
	}
	if h.Verify("", "") {
		t.Error("empty hash must never verify")
	}
}
