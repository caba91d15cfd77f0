// Package api exposes the service core over HTTP. Handlers parse
// request bodies into typed service inputs, map error kinds to status
// codes, and resolve the bearer session before any user-scoped call.
package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fitdb/pkg/auth"
	"fitdb/pkg/chat"
	"fitdb/pkg/ratelimit"
)

var mRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Name:    "fitdb_http_request_duration_seconds",
	Help:    "HTTP request latency.",
	Buckets: prometheus.DefBuckets,
}, []string{"code", "method"})

// Server wires the HTTP surface to the injected services.
type Server struct {
	auth    *auth.Service
	chat    *chat.Service
	limiter *ratelimit.Limiter
	ingress *ingressPool
}

// NewServer constructs the HTTP server front. limiter guards /v1/login
// per client address; ingressRPS/ingressBurst configure the per-host
// token bucket over the whole surface.
func NewServer(a *auth.Service, c *chat.Service, l *ratelimit.Limiter, ingressRPS float64, ingressBurst int) *Server {
	return &Server{
		auth:    a,
		chat:    c,
		limiter: l,
		ingress: newIngressPool(ingressRPS, ingressBurst),
	}
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		JSONWrite(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()

	v1.HandleFunc("/users", s.handleSignup).Methods(http.MethodPost)
	v1.HandleFunc("/login", s.handleLogin).Methods(http.MethodPost)
	v1.HandleFunc("/logout", s.requireSession(s.handleLogout)).Methods(http.MethodPost)
	v1.HandleFunc("/me", s.requireSession(s.handleMe)).Methods(http.MethodGet)
	v1.HandleFunc("/me/logins", s.requireSession(s.handleMyLogins)).Methods(http.MethodGet)

	v1.HandleFunc("/conversations", s.requireSession(s.handleCreateConversation)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations", s.requireSession(s.handleListConversations)).Methods(http.MethodGet)
	v1.HandleFunc("/support/conversations", s.requireAdmin(s.handleSupportQueue)).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/messages", s.requireSession(s.handleAddMessage)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/messages", s.requireSession(s.handleGetMessages)).Methods(http.MethodGet)
	v1.HandleFunc("/conversations/{id}/read", s.requireSession(s.handleMarkRead)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/assign", s.requireAdmin(s.handleAssignSupport)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/lock", s.requireSession(s.handleToggleLock)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/hide", s.requireSession(s.handleToggleHide)).Methods(http.MethodPost)
	v1.HandleFunc("/conversations/{id}/messages/{msgID}/reactions", s.requireSession(s.handleAddReaction)).Methods(http.MethodPost)

	var h http.Handler = r
	h = s.ingress.middleware(h)
	h = promhttp.InstrumentHandlerDuration(mRequestDuration, h)
	return h
}
