package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"fitdb/pkg/models"
)

func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Email    string `json:"email"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if in.Username == "" || in.Password == "" {
		JSONError(w, http.StatusBadRequest, "username and password required")
		return
	}
	u, err := s.auth.CreateUser(in.Username, in.Password, in.Email)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusCreated, u.Public())
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	// authoritative per-address sliding window, fail-closed
	ok, err := s.limiter.Allow(clientAddr(r))
	if err != nil {
		writeErr(w, err)
		return
	}
	if !ok {
		JSONError(w, http.StatusTooManyRequests, "rate limited")
		return
	}

	var in struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		JSONError(w, http.StatusBadRequest, "invalid json")
		return
	}
	u, err := s.auth.Authenticate(in.Username, in.Password, clientAddr(r), r.UserAgent())
	if err != nil {
		writeErr(w, err)
		return
	}
	token, err := s.auth.CreateSession(u.ID)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Token string            `json:"token"`
		User  models.PublicUser `json:"user"`
	}{Token: token, User: u.Public()})
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := s.auth.DeleteSession(sessionIDFromContext(r.Context())); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	JSONWrite(w, http.StatusOK, userFromContext(r.Context()).Public())
}

func (s *Server) handleMyLogins(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			limit = n
		}
	}
	stats, err := s.auth.LoginHistory(userFromContext(r.Context()).ID, limit)
	if err != nil {
		writeErr(w, err)
		return
	}
	JSONWrite(w, http.StatusOK, struct {
		Logins []models.LoginStat `json:"logins"`
	}{Logins: stats})
}
