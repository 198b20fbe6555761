// Package auth talks to the GoTrue-compatible auth provider and resolves the
// caller's user, profile and admin flag.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/JakeFAU/rayin-translation/internal/library"
	"github.com/JakeFAU/rayin-translation/internal/retry"
)

const maxErrorBody = 4 << 10

// User is the auth provider's view of an account.
type User struct {
	ID           string         `json:"id"`
	Email        string         `json:"email"`
	Role         string         `json:"role,omitempty"`
	UserMetadata map[string]any `json:"user_metadata,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

// Username returns the username chosen at sign up, if any.
func (u User) Username() string {
	if v, ok := u.UserMetadata["username"].(string); ok {
		return v
	}
	return ""
}

// APIError is a non-2xx response from the auth provider.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("auth provider: %d %s", e.Status, e.Message)
}

// Unwrap maps credential failures to library.ErrUnauthorized.
func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return library.ErrUnauthorized
	case http.StatusBadRequest, http.StatusUnprocessableEntity:
		return library.ErrValidation
	}
	return nil
}

// ClientConfig configures Client.
type ClientConfig struct {
	// URL is the project URL; endpoints live under /auth/v1.
	URL        string
	AnonKey    string
	HTTPClient *http.Client
	Retry      retry.Policy
}

// Client is a minimal GoTrue REST client. Sessions are represented as
// *oauth2.Token values carrying the User under the "user" extra key.
type Client struct {
	base    string
	anonKey string
	http    *http.Client
	policy  retry.Policy
}

// NewClient validates cfg and returns a Client.
func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("auth url is required")
	}
	if _, err := url.Parse(cfg.URL); err != nil {
		return nil, fmt.Errorf("parse auth url: %w", err)
	}
	if cfg.AnonKey == "" {
		return nil, errors.New("auth anon key is required")
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	policy := cfg.Retry
	if policy.MaxAttempts <= 0 {
		policy = retry.DefaultPolicy()
	}
	return &Client{
		base:    strings.TrimRight(cfg.URL, "/") + "/auth/v1",
		anonKey: cfg.AnonKey,
		http:    httpClient,
		policy:  policy,
	}, nil
}

type sessionResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiresAt    int64  `json:"expires_at"`
	User         *User  `json:"user"`
}

func (r sessionResponse) token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken:  r.AccessToken,
		TokenType:    r.TokenType,
		RefreshToken: r.RefreshToken,
	}
	switch {
	case r.ExpiresAt > 0:
		tok.Expiry = time.Unix(r.ExpiresAt, 0)
	case r.ExpiresIn > 0:
		tok.Expiry = time.Now().Add(time.Duration(r.ExpiresIn) * time.Second)
	}
	extra := map[string]any{}
	if r.User != nil {
		extra["user"] = *r.User
	}
	return tok.WithExtra(extra)
}

// SessionUser extracts the user carried by a session token.
func SessionUser(tok *oauth2.Token) (User, bool) {
	if tok == nil {
		return User{}, false
	}
	u, ok := tok.Extra("user").(User)
	return u, ok
}

// SignInWithPassword exchanges credentials for a session.
func (c *Client) SignInWithPassword(ctx context.Context, email, password string) (*oauth2.Token, error) {
	var out sessionResponse
	body := map[string]string{"email": email, "password": password}
	if err := c.do(ctx, http.MethodPost, "/token?grant_type=password", "", body, &out); err != nil {
		return nil, fmt.Errorf("sign in: %w", err)
	}
	return out.token(), nil
}

// RefreshSession exchanges a refresh token for a new session.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*oauth2.Token, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh session: %w", library.ErrUnauthorized)
	}
	var out sessionResponse
	body := map[string]string{"refresh_token": refreshToken}
	if err := c.doOnce(ctx, http.MethodPost, "/token?grant_type=refresh_token", "", body, &out); err != nil {
		return nil, fmt.Errorf("refresh session: %w", err)
	}
	return out.token(), nil
}

// SignUp registers an account with a username in its metadata. The returned
// token is nil when the provider requires email confirmation first.
func (c *Client) SignUp(ctx context.Context, email, password, username string) (*oauth2.Token, User, error) {
	body := map[string]any{
		"email":    email,
		"password": password,
		"data":     map[string]string{"username": username},
	}
	var raw json.RawMessage
	if err := c.doOnce(ctx, http.MethodPost, "/signup", "", body, &raw); err != nil {
		return nil, User{}, fmt.Errorf("sign up: %w", err)
	}
	var session sessionResponse
	if err := json.Unmarshal(raw, &session); err == nil && session.AccessToken != "" {
		tok := session.token()
		u, _ := SessionUser(tok)
		return tok, u, nil
	}
	var user User
	if err := json.Unmarshal(raw, &user); err != nil {
		return nil, User{}, fmt.Errorf("decode sign up response: %w", err)
	}
	return nil, user, nil
}

// SignOut revokes the session behind accessToken.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	if err := c.do(ctx, http.MethodPost, "/logout", accessToken, nil, nil); err != nil {
		return fmt.Errorf("sign out: %w", err)
	}
	return nil
}

// GetUser resolves the user behind accessToken.
func (c *Client) GetUser(ctx context.Context, accessToken string) (User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/user", accessToken, nil, &u); err != nil {
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

// Health checks the auth provider is reachable.
func (c *Client) Health(ctx context.Context) error {
	if err := c.do(ctx, http.MethodGet, "/health", "", nil, nil); err != nil {
		return fmt.Errorf("auth health: %w", err)
	}
	return nil
}

// do sends a request that is safe to repeat, retrying transport failures,
// 429 and 5xx replies.
func (c *Client) do(ctx context.Context, method, path, bearer string, in, out any) error {
	return c.send(ctx, true, method, path, bearer, in, out)
}

// doOnce sends a request with side effects the server may have applied
// before failing. Only transport failures and 429 are retried.
func (c *Client) doOnce(ctx context.Context, method, path, bearer string, in, out any) error {
	return c.send(ctx, false, method, path, bearer, in, out)
}

func (c *Client) send(ctx context.Context, idempotent bool, method, path, bearer string, in, out any) error {
	var payload []byte
	if in != nil {
		var err error
		payload, err = json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	if bearer == "" {
		bearer = c.anonKey
	}
	return retry.Do(ctx, c.policy, func(ctx context.Context) error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, c.base+path, body)
		if err != nil {
			return retry.Permanent(fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("apikey", c.anonKey)
		req.Header.Set("Authorization", "Bearer "+bearer)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			apiErr := &APIError{Status: resp.StatusCode, Message: readErrorMessage(resp.Body)}
			if resp.StatusCode == http.StatusTooManyRequests {
				return apiErr
			}
			if resp.StatusCode < 500 || !idempotent {
				return retry.Permanent(apiErr)
			}
			return apiErr
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}

func readErrorMessage(r io.Reader) string {
	raw, _ := io.ReadAll(io.LimitReader(r, maxErrorBody))
	var body struct {
		Error            string `json:"error"`
		ErrorDescription string `json:"error_description"`
		Msg              string `json:"msg"`
		Message          string `json:"message"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		for _, s := range []string{body.ErrorDescription, body.Msg, body.Message, body.Error} {
			if s != "" {
				return s
			}
		}
	}
	return strings.TrimSpace(string(raw))
}

// TokenSource returns an oauth2.TokenSource that reuses tok until it expires
// and then refreshes it through the client. Rotated refresh tokens are kept.
func (c *Client) TokenSource(ctx context.Context, tok *oauth2.Token) oauth2.TokenSource {
	r := &refresher{ctx: ctx, client: c}
	if tok != nil {
		r.refreshToken = tok.RefreshToken
	}
	return oauth2.ReuseTokenSource(tok, r)
}

type refresher struct {
	ctx          context.Context
	client       *Client
	mu           sync.Mutex
	refreshToken string
}

func (r *refresher) Token() (*oauth2.Token, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tok, err := r.client.RefreshSession(r.ctx, r.refreshToken)
	if err != nil {
		return nil, err
	}
	if tok.RefreshToken != "" {
		r.refreshToken = tok.RefreshToken
	}
	return tok, nil
}
