package model

import "time"

// Token is the long-lived opaque bearer credential bound to exactly one
// account. Re-authentication returns the existing token.
type Token struct {
	Key       string    `json:"-" db:"token_key"`
	AccountID int64     `json:"account_id" db:"account_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
