package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/faucetdb/usher/internal/metrics"
	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/server/middleware"
	"github.com/faucetdb/usher/internal/service"
	"github.com/faucetdb/usher/internal/store"
)

const testPassword = "secret123"

// testEnv holds shared state for handler tests.
type testEnv struct {
	auth     *service.AuthService
	accounts *service.AccountService
	metrics  *metrics.Metrics
	router   chi.Router
}

// newTestEnv mounts the handlers on a bare router. Authentication is the
// lenient middleware only, so tests control access by choosing a token.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	st, err := store.New(store.Options{}) // in-memory SQLite
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	authSvc := service.NewAuthService(st, logger, service.WithHashCost(bcrypt.MinCost))
	accounts := service.NewAccountService(st, authSvc, logger, service.WithPageSize(2))
	m := metrics.New()

	ah := NewAuthHandler(authSvc, m, logger)
	uh := NewUserHandler(accounts, m, logger)

	r := chi.NewRouter()
	r.Use(middleware.Authenticate(authSvc))
	r.Post("/login", ah.Login)
	r.With(middleware.RequireAuth).Post("/logout", ah.Logout)
	r.Get("/check", ah.Check)
	r.Get("/users", uh.List)
	r.Post("/users", uh.Create)
	r.Get("/users/{id}", uh.Get)
	r.Put("/users/{id}", uh.Replace)
	r.Patch("/users/{id}", uh.Patch)
	r.Delete("/users/{id}", uh.Delete)
	r.Post("/users/{id}/suspend", uh.Suspend)
	r.Post("/users/{id}/unsuspend", uh.Unsuspend)
	r.Get("/users/{id}/stats", uh.Stats)

	return &testEnv{auth: authSvc, accounts: accounts, metrics: m, router: r}
}

func (e *testEnv) seedUser(t *testing.T, username string, superuser bool) *model.Account {
	t.Helper()
	a, err := e.accounts.Create(context.Background(), model.NewAccount{
		Username:    username,
		Email:       username + "@example.com",
		Password:    testPassword,
		IsSuperuser: superuser,
	})
	if err != nil {
		t.Fatalf("seedUser(%s): %v", username, err)
	}
	return a
}

// do executes an HTTP request against the test router and returns the recorder.
func (e *testEnv) do(t *testing.T, method, path string, body io.Reader, token string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Token "+token)
	}
	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func toJSON(t *testing.T, v interface{}) *bytes.Buffer {
	t.Helper()
	buf := &bytes.Buffer{}
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		t.Fatalf("toJSON: %v", err)
	}
	return buf
}

func assertStatus(t *testing.T, rr *httptest.ResponseRecorder, want int) {
	t.Helper()
	if rr.Code != want {
		t.Errorf("status = %d, want %d; body = %s", rr.Code, want, rr.Body.String())
	}
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decodeJSON: %v; body = %s", err, rr.Body.String())
	}
}

func errorOf(t *testing.T, rr *httptest.ResponseRecorder) model.ErrorResponse {
	t.Helper()
	var resp model.ErrorResponse
	decodeJSON(t, rr, &resp)
	return resp
}

// ---------------------------------------------------------------------------
// Authentication
// ---------------------------------------------------------------------------

func TestLoginReturnsStableToken(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)

	body := map[string]string{"username": "alice", "password": testPassword}
	rr := env.do(t, "POST", "/login", toJSON(t, body), "")
	assertStatus(t, rr, http.StatusOK)

	var first model.LoginResponse
	decodeJSON(t, rr, &first)
	if len(first.Token) != 40 {
		t.Errorf("token = %q", first.Token)
	}
	want := model.AccountSummary{ID: alice.ID, Username: "alice", Email: "alice@example.com"}
	if first.User != want {
		t.Errorf("user = %+v, want %+v", first.User, want)
	}

	rr = env.do(t, "POST", "/login", toJSON(t, body), "")
	var second model.LoginResponse
	decodeJSON(t, rr, &second)
	if second.Token != first.Token {
		t.Error("repeated login should return the same token")
	}
}

func TestLoginFormEncoded(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", false)

	form := url.Values{"username": {"alice"}, "password": {testPassword}}
	req := httptest.NewRequest("POST", "/login", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, req)
	assertStatus(t, rr, http.StatusOK)
}

func TestLoginErrors(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "alice", false)
	frozen := env.seedUser(t, "frozen", false)
	if err := env.accounts.Suspend(context.Background(), frozen.ID); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		body   map[string]string
		status int
		msg    string
	}{
		{"missing password", map[string]string{"username": "alice"}, http.StatusBadRequest, "Please provide both username and password"},
		{"missing both", map[string]string{}, http.StatusBadRequest, "Please provide both username and password"},
		{"wrong password", map[string]string{"username": "alice", "password": "wrong"}, http.StatusBadRequest, "Invalid credentials"},
		{"unknown user", map[string]string{"username": "ghost", "password": "wrong"}, http.StatusBadRequest, "Invalid credentials"},
		{"disabled", map[string]string{"username": "frozen", "password": testPassword}, http.StatusForbidden, "Account is disabled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", "/login", toJSON(t, tt.body), "")
			assertStatus(t, rr, tt.status)
			if got := errorOf(t, rr).Error; got != tt.msg {
				t.Errorf("message = %q, want %q", got, tt.msg)
			}
		})
	}

	rr := env.do(t, "POST", "/login", strings.NewReader("{not json"), "")
	assertStatus(t, rr, http.StatusBadRequest)
}

func TestCheckSession(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	token, _ := env.auth.IssueToken(context.Background(), alice)

	for _, tok := range []string{"", "bogus"} {
		rr := env.do(t, "GET", "/check", nil, tok)
		assertStatus(t, rr, http.StatusOK)
		var anon map[string]interface{}
		decodeJSON(t, rr, &anon)
		if anon["is_authenticated"] != false {
			t.Errorf("token %q: expected anonymous session, got %v", tok, anon)
		}
		if _, ok := anon["user"]; ok {
			t.Errorf("token %q: anonymous session must not include user", tok)
		}
	}

	rr := env.do(t, "GET", "/check", nil, token)
	var sess model.SessionResponse
	decodeJSON(t, rr, &sess)
	if !sess.IsAuthenticated || sess.User == nil || sess.User.Username != "alice" {
		t.Errorf("unexpected session: %+v", sess)
	}
}

func TestLogoutRevokesToken(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	token, _ := env.auth.IssueToken(context.Background(), alice)

	rr := env.do(t, "POST", "/logout", nil, token)
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, "POST", "/logout", nil, token)
	assertStatus(t, rr, http.StatusUnauthorized)
}

// ---------------------------------------------------------------------------
// Users
// ---------------------------------------------------------------------------

func TestListPageLinks(t *testing.T) {
	env := newTestEnv(t)
	for _, name := range []string{"a", "b", "c"} {
		env.seedUser(t, name, false)
	}

	rr := env.do(t, "GET", "/users", nil, "")
	assertStatus(t, rr, http.StatusOK)
	var p1 model.Page
	decodeJSON(t, rr, &p1)
	if p1.Count != 3 || len(p1.Results) != 2 || p1.Previous != nil {
		t.Fatalf("page 1 = %+v", p1)
	}
	if p1.Next == nil || *p1.Next != "http://example.com/users?page=2" {
		t.Errorf("next = %v", p1.Next)
	}

	rr = env.do(t, "GET", "/users?page=2", nil, "")
	var p2 model.Page
	decodeJSON(t, rr, &p2)
	if len(p2.Results) != 1 || p2.Next != nil {
		t.Fatalf("page 2 = %+v", p2)
	}
	if p2.Previous == nil || *p2.Previous != "http://example.com/users" {
		t.Errorf("previous = %v", p2.Previous)
	}

	for _, q := range []string{"?page=3", "?page=0", "?page=abc"} {
		rr = env.do(t, "GET", "/users"+q, nil, "")
		assertStatus(t, rr, http.StatusNotFound)
		if got := errorOf(t, rr).Error; got != "Invalid page." {
			t.Errorf("%s: message = %q", q, got)
		}
	}
}

func TestListEmptyResultsIsArray(t *testing.T) {
	env := newTestEnv(t)
	rr := env.do(t, "GET", "/users", nil, "")
	assertStatus(t, rr, http.StatusOK)
	if !strings.Contains(rr.Body.String(), `"results":[]`) {
		t.Errorf("expected empty results array, got %s", rr.Body.String())
	}
}

func TestAccountJSONShape(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)

	rr := env.do(t, "GET", "/users/"+itoa(alice.ID), nil, "")
	assertStatus(t, rr, http.StatusOK)
	var raw map[string]interface{}
	decodeJSON(t, rr, &raw)
	for _, key := range []string{"id", "username", "email", "first_name", "last_name", "is_active", "is_staff", "is_superuser", "last_login", "date_joined"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing field %q", key)
		}
	}
	for _, key := range []string{"password", "password_hash", "updated_at"} {
		if _, ok := raw[key]; ok {
			t.Errorf("field %q must not be serialized", key)
		}
	}
}

func TestUserNotFound(t *testing.T) {
	env := newTestEnv(t)
	paths := []struct{ method, path string }{
		{"GET", "/users/999"},
		{"GET", "/users/abc"},
		{"PATCH", "/users/999"},
		{"DELETE", "/users/999"},
		{"POST", "/users/999/suspend"},
		{"POST", "/users/999/unsuspend"},
		{"GET", "/users/999/stats"},
	}
	for _, p := range paths {
		var body io.Reader
		if p.method == "PATCH" {
			body = strings.NewReader(`{}`)
		}
		rr := env.do(t, p.method, p.path, body, "")
		if rr.Code != http.StatusNotFound {
			t.Errorf("%s %s: status = %d, want 404", p.method, p.path, rr.Code)
		}
	}
}

func TestCreateAndUpdate(t *testing.T) {
	env := newTestEnv(t)
	env.seedUser(t, "bob", false)

	rr := env.do(t, "POST", "/users", toJSON(t, map[string]string{"username": "alice", "email": "alice@example.com"}), "")
	assertStatus(t, rr, http.StatusCreated)
	var alice model.Account
	decodeJSON(t, rr, &alice)

	rr = env.do(t, "POST", "/users", toJSON(t, map[string]string{"username": "alice"}), "")
	assertStatus(t, rr, http.StatusConflict)

	rr = env.do(t, "POST", "/users", toJSON(t, map[string]string{"username": "x", "email": "bad"}), "")
	assertStatus(t, rr, http.StatusBadRequest)
	if resp := errorOf(t, rr); resp.Fields["email"] == "" {
		t.Errorf("expected email field error, got %+v", resp)
	}

	path := "/users/" + itoa(alice.ID)
	rr = env.do(t, "PATCH", path, toJSON(t, map[string]string{"first_name": "Alice"}), "")
	assertStatus(t, rr, http.StatusOK)

	rr = env.do(t, "PATCH", path, toJSON(t, map[string]string{"username": "bob"}), "")
	assertStatus(t, rr, http.StatusConflict)

	rr = env.do(t, "PUT", path, toJSON(t, map[string]string{"email": "a@example.com"}), "")
	assertStatus(t, rr, http.StatusBadRequest)

	rr = env.do(t, "PUT", path, toJSON(t, map[string]string{"username": "alice2"}), "")
	assertStatus(t, rr, http.StatusOK)
	var updated model.Account
	decodeJSON(t, rr, &updated)
	if updated.Username != "alice2" || updated.FirstName != "Alice" {
		t.Errorf("unexpected account after PUT: %+v", updated)
	}
}

func TestSuspendFlow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	root := env.seedUser(t, "root", true)

	rr := env.do(t, "POST", "/users/"+itoa(root.ID)+"/suspend", nil, "")
	assertStatus(t, rr, http.StatusForbidden)
	if got := errorOf(t, rr).Error; got != "Cannot suspend superuser account" {
		t.Errorf("message = %q", got)
	}

	rr = env.do(t, "POST", "/users/"+itoa(alice.ID)+"/suspend", nil, "")
	assertStatus(t, rr, http.StatusOK)
	var status model.StatusResponse
	decodeJSON(t, rr, &status)
	if status.Status != "user suspended" {
		t.Errorf("status = %q", status.Status)
	}

	rr = env.do(t, "POST", "/users/"+itoa(alice.ID)+"/unsuspend", nil, "")
	assertStatus(t, rr, http.StatusOK)
	decodeJSON(t, rr, &status)
	if status.Status != "user unsuspended" {
		t.Errorf("status = %q", status.Status)
	}
}

func TestStatsAndDelete(t *testing.T) {
	env := newTestEnv(t)
	alice := env.seedUser(t, "alice", false)
	path := "/users/" + itoa(alice.ID)

	rr := env.do(t, "GET", path+"/stats", nil, "")
	assertStatus(t, rr, http.StatusOK)
	var stats model.UserStats
	decodeJSON(t, rr, &stats)
	if stats != (model.UserStats{UserID: alice.ID, Username: "alice"}) {
		t.Errorf("stats = %+v", stats)
	}

	rr = env.do(t, "DELETE", path, nil, "")
	assertStatus(t, rr, http.StatusNoContent)
	if rr.Body.Len() != 0 {
		t.Errorf("expected empty body, got %q", rr.Body.String())
	}
	rr = env.do(t, "GET", path, nil, "")
	assertStatus(t, rr, http.StatusNotFound)
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func TestStatusForError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", &service.ValidationError{Fields: map[string]string{"email": "bad"}}, 400, "Invalid input."},
		{"validation message", &service.ValidationError{Message: "Please provide both username and password"}, 400, "Please provide both username and password"},
		{"credentials", service.ErrInvalidCredentials, 400, "Invalid credentials"},
		{"disabled", service.ErrAccountDisabled, 403, "Account is disabled"},
		{"token", service.ErrInvalidToken, 401, "Invalid token."},
		{"forbidden", service.ErrForbidden, 403, "You do not have permission to perform this action."},
		{"not found", service.ErrNotFound, 404, "Not found."},
		{"conflict", service.ErrConflict, 409, "A user with that username already exists."},
		{"unexpected", io.ErrUnexpectedEOF, 500, "Internal server error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, msg := statusForError(tt.err)
			if status != tt.status || msg != tt.msg {
				t.Errorf("statusForError = (%d, %q), want (%d, %q)", status, msg, tt.status, tt.msg)
			}
		})
	}
}

func TestPageURLKeepsOtherParams(t *testing.T) {
	req := httptest.NewRequest("GET", "https://api.example.com/api/users/?page=2&ordering=x", nil)
	if got := pageURL(req, 3); got != "https://api.example.com/api/users/?ordering=x&page=3" {
		t.Errorf("pageURL = %q", got)
	}
	if got := pageURL(req, 1); got != "https://api.example.com/api/users/?ordering=x" {
		t.Errorf("pageURL(1) = %q", got)
	}
}

func TestQueryInt(t *testing.T) {
	tests := []struct {
		url    string
		want   int
		wantOK bool
	}{
		{"/test", 1, true},
		{"/test?page=4", 4, true},
		{"/test?page=", 1, true},
		{"/test?page=abc", 0, false},
	}
	for _, tt := range tests {
		got, ok := queryInt(httptest.NewRequest("GET", tt.url, nil), "page", 1)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("queryInt(%s) = (%d, %v), want (%d, %v)", tt.url, got, ok, tt.want, tt.wantOK)
		}
	}
}

func itoa(id int64) string {
	return strconv.FormatInt(id, 10)
}
