package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/faucetdb/usher/internal/model"
)

// Options selects the database backing the store.
type Options struct {
	// Driver is one of DriverSQLite (default), DriverPostgres or DriverMySQL.
	Driver string
	// DSN is the connection string. For SQLite it overrides DataDir.
	DSN string
	// DataDir holds usher.db when Driver is SQLite and DSN is empty. An empty
	// DataDir with an empty DSN opens an in-memory database.
	DataDir string

	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store is the durable credential and token store. It persists accounts and
// their bearer tokens; concurrency control is left to the database.
type Store struct {
	db     *sqlx.DB
	driver string
}

// New opens the database described by opts and applies migrations.
func New(opts Options) (*Store, error) {
	driver := opts.Driver
	if driver == "" {
		driver = DriverSQLite
	}
	sqlDriver, err := sqlDriverName(driver)
	if err != nil {
		return nil, err
	}

	dsn := opts.DSN
	switch driver {
	case DriverSQLite:
		if dsn == "" {
			if opts.DataDir == "" {
				dsn = ":memory:?_journal_mode=WAL"
			} else {
				if err := os.MkdirAll(opts.DataDir, 0755); err != nil {
					return nil, fmt.Errorf("create data dir: %w", err)
				}
				dsn = filepath.Join(opts.DataDir, "usher.db") + "?_journal_mode=WAL&_busy_timeout=5000"
			}
		}
	case DriverMySQL:
		if dsn, err = normalizeMySQLDSN(dsn); err != nil {
			return nil, err
		}
	case DriverPostgres:
		if dsn == "" {
			return nil, errors.New("postgres driver requires a dsn")
		}
	}

	db, err := sqlx.Connect(sqlDriver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driver, err)
	}

	if driver == DriverSQLite {
		db.SetMaxOpenConns(1) // SQLite doesn't support concurrent writes

		// Enable foreign keys (off by default in SQLite).
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	} else {
		if opts.MaxOpenConns > 0 {
			db.SetMaxOpenConns(opts.MaxOpenConns)
		}
		if opts.MaxIdleConns > 0 {
			db.SetMaxIdleConns(opts.MaxIdleConns)
		}
		if opts.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(opts.ConnMaxLifetime)
		}
	}

	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Driver returns the store driver name.
func (s *Store) Driver() string {
	return s.driver
}

// Ping verifies the database connection is alive.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// insert runs an INSERT and returns the generated id. PostgreSQL has no
// LastInsertId, so the id comes back through RETURNING there.
func (s *Store) insert(ctx context.Context, q string, args ...interface{}) (int64, error) {
	if s.driver == DriverPostgres {
		var id int64
		if err := s.db.QueryRowxContext(ctx, s.db.Rebind(q+" RETURNING id"), args...).Scan(&id); err != nil {
			return 0, err
		}
		return id, nil
	}

	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

// execOne runs a statement that must touch exactly one row.
func (s *Store) execOne(ctx context.Context, what, q string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, s.db.Rebind(q), args...)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%s: %w", what, ErrConflict)
		}
		return fmt.Errorf("%s: %w", what, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", what, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ---------------------------------------------------------------------------
// Accounts
// ---------------------------------------------------------------------------

const accountColumns = `id, username, email, first_name, last_name, password_hash,
	is_active, is_staff, is_superuser, last_login, created_at, updated_at`

// CreateAccount inserts a new account. The ID, CreatedAt, and UpdatedAt
// fields are populated after a successful insert.
func (s *Store) CreateAccount(ctx context.Context, a *model.Account) error {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	const q = `INSERT INTO accounts
		(username, email, first_name, last_name, password_hash, is_active, is_staff, is_superuser, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	id, err := s.insert(ctx, q,
		a.Username, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		a.IsActive, a.IsStaff, a.IsSuperuser, a.CreatedAt, a.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert account: %w", ErrConflict)
		}
		return fmt.Errorf("insert account: %w", err)
	}
	a.ID = id
	return nil
}

// GetAccount returns an account by ID.
func (s *Store) GetAccount(ctx context.Context, id int64) (*model.Account, error) {
	var a model.Account
	q := s.db.Rebind("SELECT " + accountColumns + " FROM accounts WHERE id = ?")
	if err := s.db.GetContext(ctx, &a, q, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account: %w", err)
	}
	return &a, nil
}

// GetAccountByUsername returns an account by its unique username.
func (s *Store) GetAccountByUsername(ctx context.Context, username string) (*model.Account, error) {
	var a model.Account
	q := s.db.Rebind("SELECT " + accountColumns + " FROM accounts WHERE username = ?")
	if err := s.db.GetContext(ctx, &a, q, username); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get account by username: %w", err)
	}
	return &a, nil
}

// ListAccounts returns one window of accounts, newest first.
func (s *Store) ListAccounts(ctx context.Context, limit, offset int) ([]model.Account, error) {
	accounts := []model.Account{}
	q := s.db.Rebind("SELECT " + accountColumns +
		" FROM accounts ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?")
	if err := s.db.SelectContext(ctx, &accounts, q, limit, offset); err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

// CountAccounts returns the total number of accounts.
func (s *Store) CountAccounts(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM accounts"); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

// HasAnySuperuser reports whether at least one superuser exists. Used for
// first-run detection.
func (s *Store) HasAnySuperuser(ctx context.Context) (bool, error) {
	var n int64
	q := s.db.Rebind("SELECT COUNT(*) FROM accounts WHERE is_superuser = ?")
	if err := s.db.GetContext(ctx, &n, q, true); err != nil {
		return false, fmt.Errorf("count superusers: %w", err)
	}
	return n > 0, nil
}

// UpdateAccount writes the mutable fields of a. UpdatedAt is refreshed.
func (s *Store) UpdateAccount(ctx context.Context, a *model.Account) error {
	a.UpdatedAt = time.Now().UTC()
	const q = `UPDATE accounts SET
		username = ?, email = ?, first_name = ?, last_name = ?, password_hash = ?,
		is_active = ?, is_staff = ?, is_superuser = ?, updated_at = ?
		WHERE id = ?`
	return s.execOne(ctx, "update account", q,
		a.Username, a.Email, a.FirstName, a.LastName, a.PasswordHash,
		a.IsActive, a.IsStaff, a.IsSuperuser, a.UpdatedAt, a.ID)
}

// SetAccountActive flips is_active for one account.
func (s *Store) SetAccountActive(ctx context.Context, id int64, active bool) error {
	return s.execOne(ctx, "set account active",
		"UPDATE accounts SET is_active = ?, updated_at = ? WHERE id = ?",
		active, time.Now().UTC(), id)
}

// UpdateLastLogin sets last_login for an account.
func (s *Store) UpdateLastLogin(ctx context.Context, id int64, at time.Time) error {
	return s.execOne(ctx, "update last login",
		"UPDATE accounts SET last_login = ? WHERE id = ?", at.UTC(), id)
}

// DeleteAccount removes an account and its token.
func (s *Store) DeleteAccount(ctx context.Context, id int64) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin delete account: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM auth_tokens WHERE account_id = ?"), id); err != nil {
		return fmt.Errorf("delete account token: %w", err)
	}
	result, err := tx.ExecContext(ctx, tx.Rebind("DELETE FROM accounts WHERE id = ?"), id)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete account rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Tokens
// ---------------------------------------------------------------------------

// CreateToken inserts a token. It returns ErrConflict when either the key or
// the account already has a token.
func (s *Store) CreateToken(ctx context.Context, t *model.Token) error {
	t.CreatedAt = time.Now().UTC()
	q := s.db.Rebind("INSERT INTO auth_tokens (token_key, account_id, created_at) VALUES (?, ?, ?)")
	if _, err := s.db.ExecContext(ctx, q, t.Key, t.AccountID, t.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("insert token: %w", ErrConflict)
		}
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// GetToken looks up a token by its key.
func (s *Store) GetToken(ctx context.Context, key string) (*model.Token, error) {
	var t model.Token
	q := s.db.Rebind("SELECT token_key, account_id, created_at FROM auth_tokens WHERE token_key = ?")
	if err := s.db.GetContext(ctx, &t, q, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token: %w", err)
	}
	return &t, nil
}

// GetTokenByAccount returns the token owned by an account.
func (s *Store) GetTokenByAccount(ctx context.Context, accountID int64) (*model.Token, error) {
	var t model.Token
	q := s.db.Rebind("SELECT token_key, account_id, created_at FROM auth_tokens WHERE account_id = ?")
	if err := s.db.GetContext(ctx, &t, q, accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get token by account: %w", err)
	}
	return &t, nil
}

// DeleteTokenByAccount removes the token owned by an account.
func (s *Store) DeleteTokenByAccount(ctx context.Context, accountID int64) error {
	return s.execOne(ctx, "delete token", "DELETE FROM auth_tokens WHERE account_id = ?", accountID)
}
