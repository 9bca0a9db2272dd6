package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/store"
)

// DefaultPageSize is the number of accounts per list page.
const DefaultPageSize = 20

// AccountPage is one page of the account listing.
type AccountPage struct {
	Accounts []model.Account
	Count    int64
	Page     int
	NumPages int
}

// HasNext reports whether a page follows this one.
func (p *AccountPage) HasNext() bool { return p.Page < p.NumPages }

// HasPrevious reports whether a page precedes this one.
func (p *AccountPage) HasPrevious() bool { return p.Page > 1 }

// AccountService implements the user administration operations. Callers are
// responsible for checking that the actor is staff.
type AccountService struct {
	store    *store.Store
	auth     *AuthService
	stats    StatsSource
	pageSize int
	logger   *slog.Logger
}

// AccountOption configures an AccountService.
type AccountOption func(*AccountService)

// WithPageSize sets the list page size. Non-positive sizes are ignored.
func WithPageSize(n int) AccountOption {
	return func(s *AccountService) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// WithStatsSource replaces the order statistics backend.
func WithStatsSource(src StatsSource) AccountOption {
	return func(s *AccountService) { s.stats = src }
}

// NewAccountService creates an AccountService. auth supplies the password
// hasher and the token cache.
func NewAccountService(st *store.Store, auth *AuthService, logger *slog.Logger, opts ...AccountOption) *AccountService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AccountService{
		store:    st,
		auth:     auth,
		stats:    NoOrders{},
		pageSize: DefaultPageSize,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PageSize returns the configured list page size.
func (s *AccountService) PageSize() int {
	return s.pageSize
}

// List returns the 1-based page of accounts, newest first. An empty first
// page is valid; any other page past the end is ErrNotFound.
func (s *AccountService) List(ctx context.Context, page int) (*AccountPage, error) {
	if page < 1 {
		return nil, ErrNotFound
	}
	count, err := s.store.CountAccounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count accounts: %w", err)
	}
	numPages := int((count + int64(s.pageSize) - 1) / int64(s.pageSize))
	if numPages == 0 {
		numPages = 1
	}
	if page > numPages {
		return nil, ErrNotFound
	}

	accounts, err := s.store.ListAccounts(ctx, s.pageSize, (page-1)*s.pageSize)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return &AccountPage{
		Accounts: accounts,
		Count:    count,
		Page:     page,
		NumPages: numPages,
	}, nil
}

// Get returns one account.
func (s *AccountService) Get(ctx context.Context, id int64) (*model.Account, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fromStore("get account", err)
	}
	return a, nil
}

// GetByUsername returns the account with the given username.
func (s *AccountService) GetByUsername(ctx context.Context, username string) (*model.Account, error) {
	a, err := s.store.GetAccountByUsername(ctx, username)
	if err != nil {
		return nil, fromStore("get account", err)
	}
	return a, nil
}

// Create adds a new account. Without a password the account gets an
// unusable hash and cannot log in until one is set.
func (s *AccountService) Create(ctx context.Context, in model.NewAccount) (*model.Account, error) {
	if err := asValidationError(newAccountRules(&in)); err != nil {
		return nil, err
	}

	var (
		hash string
		err  error
	)
	if in.Password != "" {
		hash, err = s.auth.Hasher().Hash(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
	} else if hash, err = UnusablePassword(); err != nil {
		return nil, err
	}

	a := &model.Account{
		Username:     in.Username,
		Email:        in.Email,
		FirstName:    in.FirstName,
		LastName:     in.LastName,
		PasswordHash: hash,
		IsActive:     in.IsActive == nil || *in.IsActive,
		IsStaff:      in.IsStaff || in.IsSuperuser,
		IsSuperuser:  in.IsSuperuser,
	}
	if err := s.store.CreateAccount(ctx, a); err != nil {
		return nil, fromStore("create account", err)
	}
	s.logger.Info("account created", "account_id", a.ID, "username", a.Username, "staff", a.IsStaff, "superuser", a.IsSuperuser)
	return a, nil
}

// Update applies patch to an account. A full update (partial == false)
// requires a username. A username already held by another account yields
// ErrConflict and leaves the record unchanged.
func (s *AccountService) Update(ctx context.Context, id int64, patch model.AccountPatch, partial bool) (*model.Account, error) {
	if !partial && patch.Username == nil {
		return nil, &ValidationError{Fields: map[string]string{"username": "cannot be blank"}}
	}

	existing, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fromStore("get account", err)
	}

	updated := *existing
	patch.Apply(&updated)
	if err := asValidationError(accountRules(&updated)); err != nil {
		return nil, err
	}

	if updated.Username != existing.Username {
		other, err := s.store.GetAccountByUsername(ctx, updated.Username)
		switch {
		case err == nil && other.ID != id:
			return nil, ErrConflict
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return nil, fmt.Errorf("check username: %w", err)
		}
	}

	if err := s.store.UpdateAccount(ctx, &updated); err != nil {
		return nil, fromStore("update account", err)
	}
	return &updated, nil
}

// Delete removes an account and its token.
func (s *AccountService) Delete(ctx context.Context, id int64) error {
	s.auth.forgetAccount(ctx, id)
	if err := s.store.DeleteAccount(ctx, id); err != nil {
		return fromStore("delete account", err)
	}
	s.logger.Info("account deleted", "account_id", id)
	return nil
}

// Suspend deactivates an account. Superusers cannot be suspended.
// Suspending an already suspended account succeeds.
func (s *AccountService) Suspend(ctx context.Context, id int64) error {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return fromStore("get account", err)
	}
	if a.IsSuperuser {
		return fmt.Errorf("%w: cannot suspend superuser account", ErrForbidden)
	}
	if err := s.store.SetAccountActive(ctx, id, false); err != nil {
		return fromStore("suspend account", err)
	}
	s.auth.forgetAccount(ctx, id)
	s.logger.Info("account suspended", "account_id", id, "username", a.Username)
	return nil
}

// Unsuspend reactivates an account regardless of its current state.
func (s *AccountService) Unsuspend(ctx context.Context, id int64) error {
	if err := s.store.SetAccountActive(ctx, id, true); err != nil {
		return fromStore("unsuspend account", err)
	}
	s.logger.Info("account unsuspended", "account_id", id)
	return nil
}

// Stats returns order aggregates for an account.
func (s *AccountService) Stats(ctx context.Context, id int64) (*model.UserStats, error) {
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return nil, fromStore("get account", err)
	}
	orders, revenue, err := s.stats.OrderStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("order stats: %w", err)
	}
	return &model.UserStats{
		TotalOrders: orders,
		Revenue:     revenue,
		UserID:      a.ID,
		Username:    a.Username,
	}, nil
}

// EnsureSuperuser creates a superuser with the given credentials unless an
// account with that username already exists. It reports whether an account
// was created.
func (s *AccountService) EnsureSuperuser(ctx context.Context, username, email, password string) (bool, error) {
	if password == "" {
		return false, &ValidationError{Fields: map[string]string{"password": "cannot be blank"}}
	}
	_, err := s.store.GetAccountByUsername(ctx, username)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return false, fmt.Errorf("lookup superuser: %w", err)
	}

	_, err = s.Create(ctx, model.NewAccount{
		Username:    username,
		Email:       email,
		Password:    password,
		IsStaff:     true,
		IsSuperuser: true,
	})
	if errors.Is(err, ErrConflict) {
		// Created concurrently by another process.
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SetPassword replaces an account's password.
func (s *AccountService) SetPassword(ctx context.Context, id int64, password string) error {
	if err := passwordRules(password); err != nil {
		return err
	}
	a, err := s.store.GetAccount(ctx, id)
	if err != nil {
		return fromStore("get account", err)
	}
	hash, err := s.auth.Hasher().Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	a.PasswordHash = hash
	if err := s.store.UpdateAccount(ctx, a); err != nil {
		return fromStore("update account", err)
	}
	return nil
}
