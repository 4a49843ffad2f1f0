package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/couchcryptid/glacier-risk-map/internal/auth"
)

// meResponse is the current session without its token.
type meResponse struct {
	User      auth.User  `json:"user"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// requireAuth rejects requests whose bearer token does not match the current
// session. It is a pass-through when auth is disabled.
func (s *Server) requireAuth(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.auth == nil {
			next(w, r)
			return
		}
		if err := s.auth.Authorize(bearerToken(r)); err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next(w, r)
	})
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) < len(prefix) || !strings.EqualFold(h[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(h[len(prefix):])
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	}
	var req loginRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	session, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		var backendErr *auth.BackendError
		if errors.As(err, &backendErr) && backendErr.StatusCode < http.StatusInternalServerError {
			writeError(w, backendErr.StatusCode, backendErr.Detail)
			return
		}
		s.logger.Error("login failed", "error", err)
		writeError(w, http.StatusBadGateway, "authentication backend unavailable")
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleLogout(w http.ResponseWriter, _ *http.Request) {
	if s.auth != nil {
		s.auth.Logout()
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleMe(w http.ResponseWriter, _ *http.Request) {
	if s.auth == nil {
		writeError(w, http.StatusNotFound, "authentication is disabled")
		return
	}
	session, err := s.auth.Current()
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, meResponse{User: session.User, ExpiresAt: session.ExpiresAt})
}
