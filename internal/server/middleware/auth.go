package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/faucetdb/usher/internal/model"
	"github.com/faucetdb/usher/internal/service"
)

type contextKeyAuth string

const (
	// AuthPrincipalKey is the context key for the authenticated principal.
	AuthPrincipalKey contextKeyAuth = "auth_principal"
	authFailureKey   contextKeyAuth = "auth_failure"
	authErrorKey     contextKeyAuth = "auth_error"
)

// Messages returned for rejected requests.
const (
	MsgNotAuthenticated = "Authentication credentials were not provided."
	MsgInvalidToken     = "Invalid token."
	MsgInactiveAccount  = "User inactive or deleted."
	MsgPermissionDenied = "You do not have permission to perform this action."
)

// TokenResolver maps an API token to its account.
type TokenResolver interface {
	ResolveToken(ctx context.Context, key string) (*model.Account, error)
}

// Principal is the authenticated account making the request.
type Principal struct {
	Account *model.Account
	Token   string
}

// Authenticate resolves the request's token, if any, and attaches a
// Principal to the context. Requests without a usable token continue
// anonymously; RequireAuth decides whether that is acceptable. A lookup
// failure also continues anonymously and RequireAuth turns it into a 500.
//
// Both "Authorization: Token <key>" and "Authorization: Bearer <key>" are
// accepted.
func Authenticate(tokens TokenResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key, present := tokenFromHeader(r.Header.Get("Authorization"))
			if !present {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			acct, err := tokens.ResolveToken(ctx, key)
			switch {
			case err == nil:
				ctx = context.WithValue(ctx, AuthPrincipalKey, &Principal{Account: acct, Token: key})
			case errors.Is(err, service.ErrAccountDisabled):
				ctx = context.WithValue(ctx, authFailureKey, MsgInactiveAccount)
			case errors.Is(err, service.ErrInvalidToken):
				ctx = context.WithValue(ctx, authFailureKey, MsgInvalidToken)
			default:
				ctx = context.WithValue(ctx, authErrorKey, err)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if GetPrincipal(r.Context()) == nil {
			if err, ok := r.Context().Value(authErrorKey).(error); ok {
				slog.ErrorContext(r.Context(), "token lookup failed", "error", err)
				writeAuthError(w, http.StatusInternalServerError, "Internal server error")
				return
			}
			msg := MsgNotAuthenticated
			if reason, ok := r.Context().Value(authFailureKey).(string); ok {
				msg = reason
			}
			w.Header().Set("WWW-Authenticate", "Token")
			writeAuthError(w, http.StatusUnauthorized, msg)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireStaff allows only staff accounts. It must run after RequireAuth.
func RequireStaff(next http.Handler) http.Handler {
	return requireRole(next, func(a *model.Account) bool { return a.IsStaff })
}

// RequireSuperuser allows only superusers. It must run after RequireAuth.
func RequireSuperuser(next http.Handler) http.Handler {
	return requireRole(next, func(a *model.Account) bool { return a.IsSuperuser })
}

func requireRole(next http.Handler, allowed func(*model.Account) bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := GetPrincipal(r.Context())
		if p == nil || !allowed(p.Account) {
			writeAuthError(w, http.StatusForbidden, MsgPermissionDenied)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GetPrincipal extracts the authenticated principal from the context.
// Returns nil for anonymous requests.
func GetPrincipal(ctx context.Context) *Principal {
	if p, ok := ctx.Value(AuthPrincipalKey).(*Principal); ok {
		return p
	}
	return nil
}

// WithPrincipal returns a copy of ctx carrying p.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, AuthPrincipalKey, p)
}

// tokenFromHeader parses an Authorization header. present is false when the
// header does not use the Token or Bearer scheme at all.
func tokenFromHeader(h string) (key string, present bool) {
	scheme, rest, ok := strings.Cut(strings.TrimSpace(h), " ")
	if !ok {
		return "", strings.EqualFold(scheme, "token") || strings.EqualFold(scheme, "bearer")
	}
	if !strings.EqualFold(scheme, "token") && !strings.EqualFold(scheme, "bearer") {
		return "", false
	}
	return strings.TrimSpace(rest), true
}

func writeAuthError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// The handler package depends on this one, so encode here.
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
