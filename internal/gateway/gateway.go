// Package gateway sends authenticated requests with a bounded refresh-and-retry.
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/and161185/qty-planner/internal/api"
	"github.com/and161185/qty-planner/internal/errs"
)

// Session is what the gateway needs from the session manager.
type Session interface {
	// AccessToken returns the live token and whether it is outside the expiry buffer.
	AccessToken() (string, bool)
	Refresh(ctx context.Context) error
	SignOut(ctx context.Context)
}

// Doer sends a single HTTP request; *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Gateway attaches the bearer token to outbound calls.
type Gateway struct {
	baseURL string
	hc      Doer
	sess    Session
	log     *zap.Logger
}

// New returns a gateway. baseURL must already be normalized (see api.NormalizeBaseURL).
func New(baseURL string, hc Doer, sess Session, log *zap.Logger) *Gateway {
	if hc == nil {
		hc = http.DefaultClient
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{baseURL: strings.TrimRight(baseURL, "/"), hc: hc, sess: sess, log: log}
}

// NewRequest builds a request against the base URL with body JSON-encoded (nil body sends none).
func (g *Gateway) NewRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode %s body: %w", path, err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, rd)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	return req, nil
}

// Do sends req with the live bearer token. A 401 triggers exactly one refresh
// and one retry, whose response is returned whatever its status. If the refresh
// fails the session is signed out before errs.ErrUnauthorized is returned, unless
// req's context ended first.
// Non-401 responses are returned unmodified; the caller closes the body.
func (g *Gateway) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	payload, err := drainBody(req)
	if err != nil {
		return nil, err
	}

	refreshed := false
	token, fresh := g.sess.AccessToken()
	if token != "" && !fresh {
		g.log.Debug("token inside expiry buffer, refreshing before send", zap.String("path", req.URL.Path))
		if err := g.refresh(ctx); err != nil {
			return nil, err
		}
		refreshed = true
		token, _ = g.sess.AccessToken()
	}

	resp, err := g.send(req, payload, token)
	if err != nil || resp.StatusCode != http.StatusUnauthorized {
		return resp, err
	}
	discard(resp)

	if refreshed {
		g.log.Warn("request rejected with a just-refreshed token", zap.String("path", req.URL.Path))
		g.sess.SignOut(ctx)
		return nil, fmt.Errorf("%w: %s rejected after refresh", errs.ErrUnauthorized, req.URL.Path)
	}

	g.log.Debug("401 received, refreshing", zap.String("path", req.URL.Path))
	if err := g.refresh(ctx); err != nil {
		return nil, err
	}
	token, _ = g.sess.AccessToken()
	return g.send(req, payload, token)
}

// DoJSON sends method/path with in as JSON and decodes the response into out (nil skips decoding).
// Non-2xx statuses become *errs.RemoteError carrying the envelope message when present.
func (g *Gateway) DoJSON(ctx context.Context, method, path string, in, out any) error {
	req, err := g.NewRequest(ctx, method, path, in)
	if err != nil {
		return err
	}
	resp, err := g.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("%w: read %s: %v", errs.ErrTransport, path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var env api.Envelope
		_ = json.Unmarshal(raw, &env)
		msg := strings.TrimSpace(env.Message)
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &errs.RemoteError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

func (g *Gateway) refresh(ctx context.Context) error {
	err := g.sess.Refresh(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, errs.ErrSessionChanged) {
		return fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
	}
	// this caller gave up; the shared refresh may still succeed for others
	if ctx.Err() != nil {
		return err
	}
	g.log.Info("refresh failed, signing out", zap.Error(err))
	g.sess.SignOut(ctx)
	return fmt.Errorf("%w: %w", errs.ErrUnauthorized, err)
}

func (g *Gateway) send(orig *http.Request, payload []byte, token string) (*http.Response, error) {
	req := orig.Clone(orig.Context())
	if payload != nil {
		req.Body = io.NopCloser(bytes.NewReader(payload))
		req.ContentLength = int64(len(payload))
		req.GetBody = func() (io.ReadCloser, error) { return io.NopCloser(bytes.NewReader(payload)), nil }
	}
	if req.Header.Get("Content-Type") == "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if req.Header.Get("Accept") == "" {
		req.Header.Set("Accept", "application/json")
	}
	req.Header.Del("Authorization")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %v", errs.ErrTransport, req.Method, req.URL.Path, err)
	}
	return resp, nil
}

func drainBody(req *http.Request) ([]byte, error) {
	if req.Body == nil || req.Body == http.NoBody {
		return nil, nil
	}
	defer req.Body.Close()
	b, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, fmt.Errorf("buffer request body: %w", err)
	}
	return b, nil
}

func discard(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
