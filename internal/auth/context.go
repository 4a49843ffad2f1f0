// Package auth holds the single authenticated session of the service. A
// Context is created once at startup, mutated only through Login and Logout,
// and passed explicitly to the handlers that need it.
package auth

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

var (
	// ErrNotAuthenticated is returned when no session exists or the token
	// does not match it.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrTokenExpired is returned once the session token passes its exp claim.
	ErrTokenExpired = errors.New("token expired")
)

// BackendError carries a rejection from the auth backend.
type BackendError struct {
	StatusCode int
	Detail     string
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("auth backend: status %d: %s", e.StatusCode, e.Detail)
}

// User is the profile of the logged-in user.
type User struct {
	Role           string   `json:"role"`
	Name           string   `json:"name"`
	Email          string   `json:"email,omitempty"`
	Phone          string   `json:"phone,omitempty"`
	Latitude       *float64 `json:"latitude,omitempty"`
	Longitude      *float64 `json:"longitude,omitempty"`
	ProfilePicture string   `json:"profile_picture,omitempty"`
}

// Session is the current login.
type Session struct {
	User      User       `json:"user"`
	Token     string     `json:"token"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Context owns the session.
type Context struct {
	baseURL string
	client  *http.Client
	clock   clockwork.Clock
	logger  *slog.Logger

	mu      sync.RWMutex
	session *Session
}

// New creates a Context against the backend at baseURL. A nil clock uses real time.
func New(baseURL string, timeout time.Duration, clock clockwork.Clock, logger *slog.Logger) *Context {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Context{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		clock:   clock,
		logger:  logger,
	}
}

// Login exchanges credentials for a token, loads the user profile, and makes
// the result the current session.
func (c *Context) Login(ctx context.Context, email, password string) (Session, error) {
	token, err := c.requestToken(ctx, email, password)
	if err != nil {
		return Session{}, err
	}

	user, err := c.fetchUser(ctx, token)
	if err != nil {
		c.logger.Warn("fetch user profile failed, using minimal profile", "error", err)
		user = User{Role: "local", Name: "User", Email: email}
	}

	s := Session{User: user, Token: token, ExpiresAt: c.expiry(token)}

	c.mu.Lock()
	c.session = &s
	c.mu.Unlock()

	c.logger.Info("user logged in", "email", email)
	return s, nil
}

// Logout tears down the current session.
func (c *Context) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.logger.Info("user logged out", "email", c.session.User.Email)
	}
	c.session = nil
}

// Current returns the live session. An expired session is torn down.
func (c *Context) Current() (Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.session == nil {
		return Session{}, ErrNotAuthenticated
	}
	if exp := c.session.ExpiresAt; exp != nil && !c.clock.Now().Before(*exp) {
		c.session = nil
		return Session{}, ErrTokenExpired
	}
	return *c.session, nil
}

// Authorize checks a bearer token against the current session.
func (c *Context) Authorize(token string) error {
	s, err := c.Current()
	if err != nil {
		return err
	}
	if token == "" || subtle.ConstantTimeCompare([]byte(token), []byte(s.Token)) != 1 {
		return ErrNotAuthenticated
	}
	return nil
}

func (c *Context) requestToken(ctx context.Context, email, password string) (string, error) {
	form := url.Values{"username": {email}, "password": {password}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/api/v1/auth/login/access-token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read login response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var e struct {
			Detail string `json:"detail"`
		}
		detail := "Login failed"
		if json.Unmarshal(body, &e) == nil && e.Detail != "" {
			detail = e.Detail
		}
		return "", &BackendError{StatusCode: resp.StatusCode, Detail: detail}
	}

	var tok struct {
		AccessToken string `json:"access_token"`
		TokenType   string `json:"token_type"`
	}
	if err := json.Unmarshal(body, &tok); err != nil {
		return "", fmt.Errorf("decode login response: %w", err)
	}
	if tok.AccessToken == "" {
		return "", errors.New("login response has no access_token")
	}
	return tok.AccessToken, nil
}

func (c *Context) fetchUser(ctx context.Context, token string) (User, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/v1/auth/me", nil)
	if err != nil {
		return User{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return User{}, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return User{}, fmt.Errorf("profile request: status %d", resp.StatusCode)
	}

	var me struct {
		Email          string   `json:"email"`
		FullName       string   `json:"full_name"`
		Phone          string   `json:"phone"`
		Latitude       *float64 `json:"latitude"`
		Longitude      *float64 `json:"longitude"`
		ProfilePicture string   `json:"profile_picture"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&me); err != nil {
		return User{}, fmt.Errorf("decode profile: %w", err)
	}

	name := me.FullName
	if name == "" {
		name = me.Email
	}
	return User{
		Role:           "local",
		Name:           name,
		Email:          me.Email,
		Phone:          me.Phone,
		Latitude:       me.Latitude,
		Longitude:      me.Longitude,
		ProfilePicture: me.ProfilePicture,
	}, nil
}

// expiry reads the exp claim without verifying the signature; the backend
// is the verifier. Tokens that are not JWTs never expire locally.
func (c *Context) expiry(token string) *time.Time {
	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	if err != nil {
		c.logger.Debug("token is not a parseable JWT", "error", err)
		return nil
	}
	exp, err := parsed.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return nil
	}
	t := exp.Time.UTC()
	return &t
}
