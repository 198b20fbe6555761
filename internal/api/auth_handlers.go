package api

import (
	"context"
	"net/http"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/JakeFAU/rayin-translation/internal/auth"
)

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type sessionDTO struct {
	Session *oauth2.Token `json:"session,omitempty"`
	State   auth.State    `json:"state"`
}

type sessionResult struct {
	tok   *oauth2.Token
	state auth.State
}

func (c credentials) validate(signUp bool) (credentials, string) {
	c.Email = strings.TrimSpace(c.Email)
	c.Username = strings.TrimSpace(c.Username)
	switch {
	case c.Email == "" || c.Password == "":
		return c, "email and password are required"
	case signUp && c.Username == "":
		return c, "username is required"
	}
	return c, ""
}

// signIn handles POST /api/auth/signin.
func (s *Server) signIn(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		unavailable(w, "auth")
		return
	}
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, r, err, "sign in")
		return
	}
	in, msg := in.validate(false)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	res, err := auth.WithTimeout(r.Context(), s.opts.AuthTimeout, "Sign in",
		func(ctx context.Context) (sessionResult, error) {
			tok, state, err := s.auth.SignIn(ctx, in.Email, in.Password)
			return sessionResult{tok, state}, err
		})
	if err != nil {
		s.writeErr(w, r, err, "sign in")
		return
	}
	writeJSON(w, http.StatusOK, sessionDTO{Session: res.tok, State: res.state})
}

// signUp handles POST /api/auth/signup. When the provider requires email
// confirmation the response has no session.
func (s *Server) signUp(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		unavailable(w, "auth")
		return
	}
	var in credentials
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, r, err, "sign up")
		return
	}
	in, msg := in.validate(true)
	if msg != "" {
		writeError(w, http.StatusBadRequest, msg)
		return
	}
	res, err := auth.WithTimeout(r.Context(), s.opts.AuthTimeout, "Sign up",
		func(ctx context.Context) (sessionResult, error) {
			tok, state, err := s.auth.SignUp(ctx, in.Email, in.Password, in.Username)
			return sessionResult{tok, state}, err
		})
	if err != nil {
		s.writeErr(w, r, err, "sign up")
		return
	}
	writeJSON(w, http.StatusCreated, sessionDTO{Session: res.tok, State: res.state})
}

// refresh handles POST /api/auth/refresh. A failed refresh answers 401 so the
// client can fall back to signing in again.
func (s *Server) refresh(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		unavailable(w, "auth")
		return
	}
	var in refreshRequest
	if err := decodeJSON(r, &in); err != nil {
		s.writeErr(w, r, err, "refresh session")
		return
	}
	if strings.TrimSpace(in.RefreshToken) == "" {
		writeError(w, http.StatusBadRequest, "refresh_token is required")
		return
	}
	tok := auth.SafeRefresh(r.Context(), s.auth, in.RefreshToken, s.opts.AuthTimeout, s.logger)
	if tok == nil {
		writeError(w, http.StatusUnauthorized, "session expired")
		return
	}
	state, err := s.auth.CheckUser(r.Context(), tok.AccessToken)
	if err != nil {
		s.logger.Warn("refreshed session lookup failed", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, sessionDTO{Session: tok, State: state})
}

// signOut handles POST /api/auth/signout. The local session ends even when
// the provider call fails.
func (s *Server) signOut(w http.ResponseWriter, r *http.Request) {
	if s.auth == nil {
		unavailable(w, "auth")
		return
	}
	token := bearerToken(r)
	_, err := auth.WithTimeout(r.Context(), s.opts.AuthTimeout, "Sign out",
		func(ctx context.Context) (struct{}, error) {
			return struct{}{}, s.auth.SignOut(ctx, token)
		})
	if err != nil {
		s.logger.Warn("provider sign out failed", zap.Error(err))
	}
	w.WriteHeader(http.StatusNoContent)
}

// me handles GET /api/auth/me.
func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, auth.FromContext(r.Context()))
}
