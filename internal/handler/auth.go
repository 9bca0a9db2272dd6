package handler

import (
	"errors"
	"log/slog"
	"mime"
	"net/http"

	"github.com/faucetdb/usher/internal/metrics"
	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/server/middleware"
	"github.com/faucetdb/usher/internal/service"
)

// AuthHandler serves login, logout and session checks.
type AuthHandler struct {
	auth    *service.AuthService
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// NewAuthHandler creates a new AuthHandler. m may be nil.
func NewAuthHandler(auth *service.AuthService, m *metrics.Metrics, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, metrics: m, logger: logger}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login exchanges a username and password for the account's API token.
// POST /api/auth/login/
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	req, err := readLogin(r)
	if err != nil {
		h.metrics.Login(metrics.LoginMissing)
		writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	token, acct, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.metrics.Login(loginOutcome(err))
		writeServiceError(w, r, h.logger, err)
		return
	}
	h.metrics.Login(metrics.LoginSuccess)

	writeJSON(w, http.StatusOK, model.LoginResponse{
		Token: token,
		User:  acct.Summary(),
	})
}

// Logout revokes the caller's token.
// POST /api/auth/logout/
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if err := h.auth.RevokeToken(r.Context(), p.Account.ID); err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, model.StatusResponse{Status: "logged out"})
}

// Check reports whether the request carries a valid token. It never fails.
// GET /api/auth/check/
func (h *AuthHandler) Check(w http.ResponseWriter, r *http.Request) {
	p := middleware.GetPrincipal(r.Context())
	if p == nil {
		writeJSON(w, http.StatusOK, model.SessionResponse{IsAuthenticated: false})
		return
	}
	summary := p.Account.Summary()
	writeJSON(w, http.StatusOK, model.SessionResponse{
		IsAuthenticated: true,
		User:            &summary,
	})
}

// readLogin accepts a JSON body or a form-encoded body.
func readLogin(r *http.Request) (loginRequest, error) {
	var req loginRequest
	ct, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	switch ct {
	case "application/x-www-form-urlencoded", "multipart/form-data":
		if err := r.ParseMultipartForm(1 << 20); err != nil && !errors.Is(err, http.ErrNotMultipart) {
			return req, err
		}
		req.Username = r.PostFormValue("username")
		req.Password = r.PostFormValue("password")
		return req, nil
	}
	if r.ContentLength == 0 {
		return req, nil
	}
	err := readJSON(r, &req)
	return req, err
}

func loginOutcome(err error) string {
	switch {
	case errors.Is(err, service.ErrValidation):
		return metrics.LoginMissing
	case errors.Is(err, service.ErrInvalidCredentials):
		return metrics.LoginInvalid
	case errors.Is(err, service.ErrAccountDisabled):
		return metrics.LoginDisabled
	default:
		return metrics.LoginError
	}
}
