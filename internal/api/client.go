// Package api talks to the unauthenticated session endpoints (/login, /refresh, /logout).
package api

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/and161185/qty-planner/internal/errs"
	"github.com/and161185/qty-planner/internal/fields"
	"github.com/and161185/qty-planner/internal/model"
	"github.com/golang-jwt/jwt/v5"
)

// Endpoint paths.
const (
	PathLogin   = "/login"
	PathRefresh = "/refresh"
	PathLogout  = "/logout"
)

// Client issues session calls against the configured base URL.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

// LoginResult is a successful /login response.
type LoginResult struct {
	User        model.UserIdentity
	AccessToken string
	ExpiresIn   int // seconds, 0 when unknown
}

// TokenResult is a successful /refresh response.
type TokenResult struct {
	AccessToken string
	ExpiresIn   int
}

// Envelope is the response wrapper used by every endpoint.
type Envelope struct {
	Success bool            `json:"success"`
	Failed  bool            `json:"failed,omitempty"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// OK reports application-level success.
func (e Envelope) OK() bool { return e.Success && !e.Failed }

// NewHTTPClient builds the shared HTTP client used by this package and the gateway.
func NewHTTPClient(timeout time.Duration, insecureTLS bool) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if insecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // dev only
	}
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

// NewClient validates baseURL and returns a client. A nil hc gets a default one.
func NewClient(baseURL string, hc *http.Client) (*Client, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}
	if hc == nil {
		hc = NewHTTPClient(0, false)
	}
	return &Client{baseURL: base, http: hc, now: time.Now}, nil
}

// NormalizeBaseURL checks scheme/host and trims the trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("base URL is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse base URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q", raw)
	}
	return strings.TrimRight(u.String(), "/"), nil
}

// BaseURL returns the normalized base URL.
func (c *Client) BaseURL() string { return c.baseURL }

// Login exchanges credentials for a token and the user profile.
func (c *Client) Login(ctx context.Context, email, password string) (LoginResult, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	env, err := c.call(ctx, http.MethodPost, PathLogin, "", body, "Login failed")
	if err != nil {
		return LoginResult{}, err
	}
	var data fields.Object
	if err := fields.Decode(env.Data, &data); err != nil {
		return LoginResult{}, &errs.RemoteError{Status: http.StatusOK, Message: "Login failed"}
	}
	tok := fields.String(data, "access_token", "token")
	if tok == "" {
		return LoginResult{}, &errs.RemoteError{Status: http.StatusOK, Message: "Login failed"}
	}
	user, _ := data["user"].(map[string]any)
	return LoginResult{
		User:        NormalizeUser(user),
		AccessToken: tok,
		ExpiresIn:   c.expiresIn(data, tok),
	}, nil
}

// Refresh exchanges the current token for a new one.
func (c *Client) Refresh(ctx context.Context, token string) (TokenResult, error) {
	if token == "" {
		return TokenResult{}, errs.ErrNoToken
	}
	env, err := c.call(ctx, http.MethodGet, PathRefresh, token, nil, "Refresh failed")
	if err != nil {
		return TokenResult{}, err
	}
	var data fields.Object
	if err := fields.Decode(env.Data, &data); err != nil {
		return TokenResult{}, &errs.RemoteError{Status: http.StatusOK, Message: "Refresh returned invalid response"}
	}
	tok := fields.String(data, "access_token", "token")
	if tok == "" {
		return TokenResult{}, &errs.RemoteError{Status: http.StatusOK, Message: "Refresh returned invalid response"}
	}
	return TokenResult{AccessToken: tok, ExpiresIn: c.expiresIn(data, tok)}, nil
}

// Logout tells the server the token is no longer used. The response body is ignored.
func (c *Client) Logout(ctx context.Context, token string) error {
	req, err := c.newRequest(ctx, http.MethodPost, PathLogout, token, nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: logout: %v", errs.ErrTransport, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &errs.RemoteError{Status: resp.StatusCode, Message: resp.Status}
	}
	return nil
}

func (c *Client) call(ctx context.Context, method, path, token string, payload []byte, failMsg string) (Envelope, error) {
	req, err := c.newRequest(ctx, method, path, token, payload)
	if err != nil {
		return Envelope{}, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: %s %s: %v", errs.ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return Envelope{}, fmt.Errorf("%w: read %s: %v", errs.ErrTransport, path, err)
	}
	var env Envelope
	decodeErr := json.Unmarshal(raw, &env)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 || decodeErr != nil || !env.OK() {
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = failMsg
		}
		return Envelope{}, &errs.RemoteError{Status: resp.StatusCode, Message: msg}
	}
	return env, nil
}

func (c *Client) newRequest(ctx context.Context, method, path, token string, payload []byte) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req, nil
}

// expiresIn reads expires_in; when absent it falls back to the JWT exp claim, else 0.
func (c *Client) expiresIn(data fields.Object, token string) int {
	if n, ok := fields.Int(data, "expires_in", "expiresIn"); ok && n > 0 {
		return int(n)
	}
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil || claims.ExpiresAt == nil {
		return 0
	}
	left := int(claims.ExpiresAt.Sub(c.now()).Seconds())
	if left <= 0 {
		return 0
	}
	return left
}

// NormalizeUser maps the server's user object onto UserIdentity.
// The id has shipped under several keys over time; this is the only place that knows them.
func NormalizeUser(raw map[string]any) model.UserIdentity {
	if raw == nil {
		return model.UserIdentity{}
	}
	return model.UserIdentity{
		ID:        fields.String(raw, "user_id", "id", "userId", "userID", "uid"),
		FirstName: fields.String(raw, "first_name", "firstName"),
		LastName:  fields.String(raw, "last_name", "lastName"),
		Email:     fields.String(raw, "email", "mail"),
	}
}
