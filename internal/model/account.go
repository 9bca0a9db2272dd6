package model

import "time"

// Account is a user identity managed by the administration API. Passwords are
// stored as bcrypt hashes and never serialized.
type Account struct {
	ID           int64      `json:"id" db:"id"`
	Username     string     `json:"username" db:"username"`
	Email        string     `json:"email" db:"email"`
	FirstName    string     `json:"first_name" db:"first_name"`
	LastName     string     `json:"last_name" db:"last_name"`
	PasswordHash string     `json:"-" db:"password_hash"` // bcrypt hash, never expose
	IsActive     bool       `json:"is_active" db:"is_active"`
	IsStaff      bool       `json:"is_staff" db:"is_staff"`
	IsSuperuser  bool       `json:"is_superuser" db:"is_superuser"`
	LastLogin    *time.Time `json:"last_login" db:"last_login"`
	CreatedAt    time.Time  `json:"date_joined" db:"created_at"`
	UpdatedAt    time.Time  `json:"-" db:"updated_at"`
}

// Suspended reports whether the account is logically disabled.
func (a *Account) Suspended() bool {
	return !a.IsActive
}

// AccountSummary is the compact user object embedded in login and session
// check responses.
type AccountSummary struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	IsStaff  bool   `json:"is_staff"`
}

// Summary returns the compact form of the account.
func (a *Account) Summary() AccountSummary {
	return AccountSummary{
		ID:       a.ID,
		Username: a.Username,
		Email:    a.Email,
		IsStaff:  a.IsStaff,
	}
}

// AccountPatch is a partial update. Nil fields are left untouched.
type AccountPatch struct {
	Username  *string `json:"username,omitempty"`
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	IsActive  *bool   `json:"is_active,omitempty"`
}

// Apply copies every set field of p onto a.
func (p AccountPatch) Apply(a *Account) {
	if p.Username != nil {
		a.Username = *p.Username
	}
	if p.Email != nil {
		a.Email = *p.Email
	}
	if p.FirstName != nil {
		a.FirstName = *p.FirstName
	}
	if p.LastName != nil {
		a.LastName = *p.LastName
	}
	if p.IsActive != nil {
		a.IsActive = *p.IsActive
	}
}

// NewAccount is the input for creating an account through the API or CLI.
type NewAccount struct {
	Username    string `json:"username"`
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Password    string `json:"password,omitempty"`
	IsActive    *bool  `json:"is_active,omitempty"`
	IsStaff     bool   `json:"is_staff"`
	IsSuperuser bool   `json:"is_superuser"`
}

// UserStats is the per-account aggregate returned by the stats endpoint.
type UserStats struct {
	TotalOrders int64   `json:"total_orders"`
	Revenue     float64 `json:"revenue"`
	UserID      int64   `json:"user_id"`
	Username    string  `json:"username"`
}
