package service

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"golang.org/x/crypto/bcrypt"

	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/store"
)

type testEnv struct {
	store    *store.Store
	auth     *AuthService
	accounts *AccountService
}

func newTestEnv(t *testing.T, opts ...AccountOption) *testEnv {
	t.Helper()
	st, err := store.New(store.Options{})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	auth := NewAuthService(st, logger, WithHashCost(bcrypt.MinCost))
	return &testEnv{
		store:    st,
		auth:     auth,
		accounts: NewAccountService(st, auth, logger, opts...),
	}
}

func (e *testEnv) createUser(t *testing.T, username, password string, mutate ...func(*model.NewAccount)) *model.Account {
	t.Helper()
	in := model.NewAccount{
		Username: username,
		Email:    username + "@example.com",
		Password: password,
	}
	for _, m := range mutate {
		m(&in)
	}
	a, err := e.accounts.Create(context.Background(), in)
	if err != nil {
		t.Fatalf("Create(%s): %v", username, err)
	}
	return a
}

func superuser(in *model.NewAccount) { in.IsSuperuser = true }

func staff(in *model.NewAccount) { in.IsStaff = true }
