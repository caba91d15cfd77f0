package api

import (
	"context"
	"net"
	"net/http"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"fitdb/pkg/models"
)

type ctxUserKey struct{}
type ctxSessionKey struct{}

// userFromContext returns the authenticated user or nil.
func userFromContext(ctx context.Context) *models.User {
	u, _ := ctx.Value(ctxUserKey{}).(*models.User)
	return u
}

func sessionIDFromContext(ctx context.Context) string {
	s, _ := ctx.Value(ctxSessionKey{}).(string)
	return s
}

// requireSession extracts the bearer token, resolves the session and
// loads the user into the request context. 401 on anything else.
func (s *Server) requireSession(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h := r.Header.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			JSONError(w, http.StatusUnauthorized, "missing bearer token")
			return
		}
		token := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
		sess, err := s.auth.ResolveSession(token)
		if err != nil {
			JSONError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		u, err := s.auth.GetUser(sess.UserID)
		if err != nil {
			JSONError(w, http.StatusUnauthorized, "invalid or expired session")
			return
		}
		ctx := context.WithValue(r.Context(), ctxUserKey{}, u)
		ctx = context.WithValue(ctx, ctxSessionKey{}, token)
		next(w, r.WithContext(ctx))
	}
}

// requireAdmin additionally checks the admin role.
func (s *Server) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return s.requireSession(func(w http.ResponseWriter, r *http.Request) {
		if u := userFromContext(r.Context()); u == nil || u.Role != models.RoleAdmin {
			JSONError(w, http.StatusForbidden, "admin only")
			return
		}
		next(w, r)
	})
}

// ingressPool keeps one token bucket per remote host, guarding the whole
// HTTP surface. This is in-process back-pressure; the persisted sliding
// window on /v1/login is the authoritative limiter.
type ingressPool struct {
	mu    sync.Mutex
	m     map[string]*rate.Limiter
	rps   rate.Limit
	burst int
}

func newIngressPool(rps float64, burst int) *ingressPool {
	if rps <= 0 {
		rps = 50
	}
	if burst <= 0 {
		burst = 100
	}
	return &ingressPool{m: make(map[string]*rate.Limiter), rps: rate.Limit(rps), burst: burst}
}

func (p *ingressPool) get(key string) *rate.Limiter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if l, ok := p.m[key]; ok {
		return l
	}
	l := rate.NewLimiter(p.rps, p.burst)
	p.m[key] = l
	return l
}

func (p *ingressPool) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !p.get(clientAddr(r)).Allow() {
			JSONError(w, http.StatusTooManyRequests, "rate limited")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// clientAddr returns the remote host without the port.
func clientAddr(r *http.Request) string {
	if h, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return h
	}
	return r.RemoteAddr
}
