package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/store"
)

const (
	tokenKeyBytes      = 20
	maxTokenAttempts   = 5
	defaultTokenTTL    = time.Minute
	missingCredentials = "Please provide both username and password"
)

// AuthService verifies credentials and manages per-account API tokens.
type AuthService struct {
	store  *store.Store
	hasher *PasswordHasher
	tokens *cache.Cache // token key -> account id
	logger *slog.Logger
	now    func() time.Time
}

// AuthOption configures an AuthService.
type AuthOption func(*AuthService)

// WithHashCost sets the bcrypt cost used for new password hashes.
func WithHashCost(cost int) AuthOption {
	return func(s *AuthService) { s.hasher = NewPasswordHasher(cost) }
}

// WithTokenCacheTTL sets how long a resolved token key stays cached. A
// non-positive ttl disables caching.
func WithTokenCacheTTL(ttl time.Duration) AuthOption {
	return func(s *AuthService) {
		if ttl <= 0 {
			s.tokens = nil
			return
		}
		s.tokens = cache.New(ttl, 2*ttl)
	}
}

// WithClock overrides the time source used for last_login.
func WithClock(now func() time.Time) AuthOption {
	return func(s *AuthService) { s.now = now }
}

// NewAuthService creates an AuthService backed by st.
func NewAuthService(st *store.Store, logger *slog.Logger, opts ...AuthOption) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	s := &AuthService{
		store:  st,
		hasher: NewPasswordHasher(0),
		tokens: cache.New(defaultTokenTTL, 2*defaultTokenTTL),
		logger: logger,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hasher returns the password hasher shared with other services.
func (s *AuthService) Hasher() *PasswordHasher {
	return s.hasher
}

// Authenticate checks a username/password pair. On success the account's
// last_login is set to the current time.
func (s *AuthService) Authenticate(ctx context.Context, username, password string) (*model.Account, error) {
	if username == "" || password == "" {
		return nil, &ValidationError{Message: missingCredentials}
	}

	acct, err := s.store.GetAccountByUsername(ctx, username)
	if errors.Is(err, store.ErrNotFound) {
		s.hasher.burn(password)
		s.logger.Info("login failed", "username", username, "reason", "unknown user")
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("authenticate: %w", err)
	}

	if !s.hasher.Verify(acct.PasswordHash, password) {
		s.logger.Info("login failed", "username", username, "reason", "bad password")
		return nil, ErrInvalidCredentials
	}
	if !acct.IsActive {
		s.logger.Info("login failed", "username", username, "reason", "account disabled")
		return nil, ErrAccountDisabled
	}

	now := s.now().UTC()
	if err := s.store.UpdateLastLogin(ctx, acct.ID, now); err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	acct.LastLogin = &now
	return acct, nil
}

// IssueToken returns the account's token, creating one if it has none.
// Repeated calls return the same key.
func (s *AuthService) IssueToken(ctx context.Context, acct *model.Account) (string, error) {
	for attempt := 0; attempt < maxTokenAttempts; attempt++ {
		existing, err := s.store.GetTokenByAccount(ctx, acct.ID)
		if err == nil {
			return existing.Key, nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("lookup token: %w", err)
		}

		key, err := generateTokenKey()
		if err != nil {
			return "", err
		}
		err = s.store.CreateToken(ctx, &model.Token{Key: key, AccountID: acct.ID})
		if err == nil {
			s.remember(key, acct.ID)
			return key, nil
		}
		if !errors.Is(err, store.ErrConflict) {
			return "", fmt.Errorf("create token: %w", err)
		}
		// Either another request issued this account's token first or the
		// key collided. The next pass re-reads before generating again.
	}
	return "", fmt.Errorf("issue token: no unique key after %d attempts", maxTokenAttempts)
}

// Login authenticates and issues a token in one step.
func (s *AuthService) Login(ctx context.Context, username, password string) (string, *model.Account, error) {
	acct, err := s.Authenticate(ctx, username, password)
	if err != nil {
		return "", nil, err
	}
	key, err := s.IssueToken(ctx, acct)
	if err != nil {
		return "", nil, err
	}
	s.logger.Info("login succeeded", "username", acct.Username, "account_id", acct.ID)
	return key, acct, nil
}

// ResolveToken maps a token key to its account. The account row is always
// re-read so suspensions and role changes apply on the next request.
func (s *AuthService) ResolveToken(ctx context.Context, key string) (*model.Account, error) {
	if key == "" {
		return nil, ErrInvalidToken
	}

	accountID, ok := s.lookup(key)
	if !ok {
		tok, err := s.store.GetToken(ctx, key)
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrInvalidToken
		}
		if err != nil {
			return nil, fmt.Errorf("resolve token: %w", err)
		}
		accountID = tok.AccountID
		s.remember(key, accountID)
	}

	acct, err := s.store.GetAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		s.forget(key)
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("resolve token: %w", err)
	}
	if !acct.IsActive {
		return nil, ErrAccountDisabled
	}
	return acct, nil
}

// RevokeToken deletes the account's token. Revoking an account without a
// token is not an error.
func (s *AuthService) RevokeToken(ctx context.Context, accountID int64) error {
	tok, err := s.store.GetTokenByAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	if err := s.store.DeleteTokenByAccount(ctx, accountID); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	s.forget(tok.Key)
	s.logger.Info("token revoked", "account_id", accountID)
	return nil
}

// forgetAccount drops the cached key of an account, if it has one.
func (s *AuthService) forgetAccount(ctx context.Context, accountID int64) {
	if s.tokens == nil {
		return
	}
	if tok, err := s.store.GetTokenByAccount(ctx, accountID); err == nil {
		s.forget(tok.Key)
	}
}

func (s *AuthService) lookup(key string) (int64, bool) {
	if s.tokens == nil {
		return 0, false
	}
	v, ok := s.tokens.Get(key)
	if !ok {
		return 0, false
	}
	id, ok := v.(int64)
	return id, ok
}

func (s *AuthService) remember(key string, accountID int64) {
	if s.tokens != nil {
		s.tokens.SetDefault(key, accountID)
	}
}

func (s *AuthService) forget(key string) {
	if s.tokens != nil {
		s.tokens.Delete(key)
	}
}

func generateTokenKey() (string, error) {
	b := make([]byte, tokenKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
