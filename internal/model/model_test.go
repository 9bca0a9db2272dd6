package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }
func boolPtr(b bool) *bool    { return &b }

func TestAccountSuspended(t *testing.T) {
	a := &Account{IsActive: true}
	if a.Suspended() {
		t.Error("active account reported as suspended")
	}
	a.IsActive = false
	if !a.Suspended() {
		t.Error("inactive account should be suspended")
	}
}

func TestAccountJSONHidesPassword(t *testing.T) {
	joined := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	a := Account{
		ID:           7,
		Username:     "alice",
		Email:        "alice@example.com",
		PasswordHash: "$2a$10$secret",
		IsActive:     true,
		CreatedAt:    joined,
		UpdatedAt:    joined,
	}

	b, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	s := string(b)
	if strings.Contains(s, "secret") || strings.Contains(s, "password") {
		t.Errorf("password hash leaked: %s", s)
	}
	if strings.Contains(s, "updated_at") {
		t.Errorf("updated_at should not be serialized: %s", s)
	}

	var m map[string]interface{}
	if err := json.Unmarshal(b, &m); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if m["date_joined"] != "2025-01-15T12:00:00Z" {
		t.Errorf("date_joined = %v", m["date_joined"])
	}
	if v, ok := m["last_login"]; !ok || v != nil {
		t.Errorf("last_login should be present and null, got %v (present=%v)", v, ok)
	}
}

func TestAccountSummary(t *testing.T) {
	a := &Account{ID: 3, Username: "bob", Email: "bob@example.com", IsStaff: true, IsSuperuser: true}
	got := a.Summary()
	want := AccountSummary{ID: 3, Username: "bob", Email: "bob@example.com", IsStaff: true}
	if got != want {
		t.Errorf("Summary() = %+v, want %+v", got, want)
	}
}

func TestAccountPatchApply(t *testing.T) {
	base := Account{
		Username:  "carol",
		Email:     "carol@example.com",
		FirstName: "Carol",
		LastName:  "Smith",
		IsActive:  true,
	}

	tests := []struct {
		name  string
		patch AccountPatch
		check func(t *testing.T, a Account)
	}{
		{
			name:  "empty patch leaves account untouched",
			patch: AccountPatch{},
			check: func(t *testing.T, a Account) {
				if a != base {
					t.Errorf("account changed: %+v", a)
				}
			},
		},
		{
			name:  "single field",
			patch: AccountPatch{Email: strPtr("c@corp.example")},
			check: func(t *testing.T, a Account) {
				if a.Email != "c@corp.example" || a.Username != "carol" || a.FirstName != "Carol" {
					t.Errorf("unexpected result: %+v", a)
				}
			},
		},
		{
			name:  "explicit empty string clears the field",
			patch: AccountPatch{LastName: strPtr("")},
			check: func(t *testing.T, a Account) {
				if a.LastName != "" {
					t.Errorf("LastName = %q, want empty", a.LastName)
				}
			},
		},
		{
			name:  "is_active false",
			patch: AccountPatch{IsActive: boolPtr(false)},
			check: func(t *testing.T, a Account) {
				if a.IsActive {
					t.Error("expected IsActive = false")
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := base
			tt.patch.Apply(&a)
			tt.check(t, a)
		})
	}
}

func TestAccountPatchDecode(t *testing.T) {
	var p AccountPatch
	if err := json.Unmarshal([]byte(`{"first_name":"Dana","is_active":false}`), &p); err != nil {
		t.Fatalf("Unmarshal error: %v", err)
	}
	if p.Username != nil || p.Email != nil || p.LastName != nil {
		t.Errorf("absent fields should stay nil: %+v", p)
	}
	if p.FirstName == nil || *p.FirstName != "Dana" {
		t.Errorf("FirstName = %v", p.FirstName)
	}
	if p.IsActive == nil || *p.IsActive {
		t.Errorf("IsActive = %v", p.IsActive)
	}
}

func TestPageJSONNullLinks(t *testing.T) {
	b, err := json.Marshal(Page{Count: 0, Results: []Account{}})
	if err != nil {
		t.Fatalf("Marshal error: %v", err)
	}
	want := `{"count":0,"next":null,"previous":null,"results":[]}`
	if string(b) != want {
		t.Errorf("got %s, want %s", b, want)
	}
}

func TestSessionResponseOmitsAnonymousUser(t *testing.T) {
	b, _ := json.Marshal(SessionResponse{})
	if string(b) != `{"is_authenticated":false}` {
		t.Errorf("got %s", b)
	}
}

func TestTokenJSONHidesKey(t *testing.T) {
	b, _ := json.Marshal(Token{Key: "abc123", AccountID: 1})
	if strings.Contains(string(b), "abc123") {
		t.Errorf("token key leaked: %s", b)
	}
}
