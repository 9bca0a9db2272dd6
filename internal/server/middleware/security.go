package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"strings"

	"github.com/faucetdb/usher/internal/config"
)

// AllowedHosts rejects requests whose Host header matches none of the
// patterns with 400. A pattern is an exact host, "*", a leading-dot domain
// (".example.com" matches the domain and all subdomains) or a CIDR range
// matched against IP literal hosts. An empty list allows every host.
func AllowedHosts(patterns []string) func(http.Handler) http.Handler {
	m := newHostMatcher(patterns)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !m.match(r.Host) {
				writeAuthError(w, http.StatusBadRequest, "Invalid Host header")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

type hostMatcher struct {
	any      bool
	exact    map[string]bool
	suffixes []string
	prefixes []netip.Prefix
}

func newHostMatcher(patterns []string) *hostMatcher {
	m := &hostMatcher{exact: make(map[string]bool)}
	if len(patterns) == 0 {
		m.any = true
	}
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		switch {
		case p == "":
		case p == "*":
			m.any = true
		case strings.HasPrefix(p, "."):
			m.suffixes = append(m.suffixes, p)
		case strings.Contains(p, "/"):
			if prefix, err := netip.ParsePrefix(p); err == nil {
				m.prefixes = append(m.prefixes, prefix)
			}
		default:
			m.exact[p] = true
		}
	}
	return m
}

func (m *hostMatcher) match(hostport string) bool {
	if m.any {
		return true
	}
	host := strings.ToLower(hostport)
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	host = strings.TrimSuffix(strings.Trim(host, "[]"), ".")
	if host == "" {
		return false
	}
	if m.exact[host] {
		return true
	}
	for _, s := range m.suffixes {
		if host == s[1:] || strings.HasSuffix(host, s) {
			return true
		}
	}
	if addr, err := netip.ParseAddr(host); err == nil {
		for _, p := range m.prefixes {
			if p.Contains(addr) {
				return true
			}
		}
	}
	return false
}

// SecurityHeaders sets the configured hardening headers on every response.
// Strict-Transport-Security is only sent for requests that arrived over
// HTTPS, directly or through a proxy reporting X-Forwarded-Proto.
func SecurityHeaders(cfg config.SecurityConfig) func(http.Handler) http.Handler {
	var hsts string
	if cfg.HSTSSeconds > 0 {
		hsts = "max-age=" + strconv.Itoa(cfg.HSTSSeconds)
		if cfg.HSTSIncludeSubdomains {
			hsts += "; includeSubDomains"
		}
		if cfg.HSTSPreload {
			hsts += "; preload"
		}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			if hsts != "" && isSecure(r) {
				h.Set("Strict-Transport-Security", hsts)
			}
			if cfg.ContentTypeNosniff {
				h.Set("X-Content-Type-Options", "nosniff")
			}
			if cfg.FrameOptions != "" {
				h.Set("X-Frame-Options", cfg.FrameOptions)
			}
			if cfg.XSSFilter {
				h.Set("X-XSS-Protection", "1; mode=block")
			}
			next.ServeHTTP(w, r)
		})
	}
}

func isSecure(r *http.Request) bool {
	return r.TLS != nil || strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https")
}
