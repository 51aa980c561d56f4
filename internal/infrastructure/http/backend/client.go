// Package backend talks to the session-authenticated REST API.
//
// Every call goes through the same chain: CSRF bootstrap for unsafe methods,
// cookie-carried session, status classification into domain errors and a
// global reaction to 401 responses.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/net/publicsuffix"

	"github.com/prontuario/proamp/internal/core/domain"
)

const (
	DefaultTimeout = 10 * time.Second

	// maxBody bounds how much of a response is read.
	maxBody = 1 << 20
)

// Options configures a Client.
type Options struct {
	// BaseURL is the API root; relative endpoint paths resolve against it.
	BaseURL string
	// Timeout applies to every request. Defaults to DefaultTimeout.
	Timeout time.Duration
	// Jar overrides the cookie jar, e.g. to share cookies with another client.
	Jar http.CookieJar
}

// Client is the HTTP transport in front of the backend. It is safe for
// concurrent use once SetUnauthorizedHandler has been called, if at all.
type Client struct {
	base *url.URL
	http *http.Client
	log  zerolog.Logger

	csrf           *csrfState
	onUnauthorized func(context.Context)
}

// NewClient builds a client with its own cookie jar.
func NewClient(opts Options, log zerolog.Logger) (*Client, error) {
	raw := strings.TrimSpace(opts.BaseURL)
	if raw == "" {
		return nil, errors.New("backend: base URL is required")
	}
	if !strings.HasSuffix(raw, "/") {
		raw += "/"
	}
	base, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("backend: parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("backend: unsupported scheme %q", base.Scheme)
	}

	jar := opts.Jar
	if jar == nil {
		jar, err = cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
		if err != nil {
			return nil, fmt.Errorf("backend: cookie jar: %w", err)
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Client{
		base: base,
		http: &http.Client{Jar: jar, Timeout: timeout},
		log:  log,
		csrf: &csrfState{},
	}, nil
}

// SetUnauthorizedHandler registers the reaction to a 401 on any call other
// than login and session verification.
func (c *Client) SetUnauthorizedHandler(fn func(context.Context)) {
	c.onUnauthorized = fn
}

// BaseURL returns a copy of the API root.
func (c *Client) BaseURL() *url.URL {
	u := *c.base
	return &u
}

// Jar returns the cookie jar holding the session.
func (c *Client) Jar() http.CookieJar { return c.http.Jar }

// Do sends a request to path, relative to the base URL, and decodes a
// successful JSON response into out when out is non-nil.
//
// Non-2xx responses come back as domain errors: 401 as ErrSessionExpired
// (after running the unauthorized handler), 403 as ErrForbidden, 400 as
// *domain.ValidationError and anything else as *domain.StatusError.
// Network failures wrap domain.ErrTransport.
func (c *Client) Do(ctx context.Context, method, path string, body, out any) error {
	status, payload, err := c.send(ctx, method, path, body)
	if err != nil {
		return err
	}
	if status == http.StatusUnauthorized {
		c.unauthorized(ctx, path)
		return domain.ErrSessionExpired
	}
	return c.finish(method, path, status, payload, out)
}

// send performs one round trip and returns the status and raw body.
func (c *Client) send(ctx context.Context, method, path string, body any) (int, []byte, error) {
	unsafe := !isSafeMethod(method)
	if unsafe {
		c.ensureCSRF(ctx, false)
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		rd = bytes.NewReader(buf)
	}

	target := c.resolve(path)
	req, err := http.NewRequestWithContext(ctx, method, target.String(), rd)
	if err != nil {
		return 0, nil, fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if unsafe {
		if token := c.csrfToken(); token != "" {
			req.Header.Set(csrfHeader, token)
		}
		req.Header.Set("Referer", c.base.String())
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return 0, nil, fmt.Errorf("%s %s: %w: %w", method, path, domain.ErrTransport, ctxErr)
		}
		return 0, nil, fmt.Errorf("%s %s: %w: %v", method, path, domain.ErrTransport, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return 0, nil, fmt.Errorf("read %s %s: %w: %v", method, path, domain.ErrTransport, err)
	}

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Msg("backend call")
	return resp.StatusCode, payload, nil
}

// finish classifies a non-401 response.
func (c *Client) finish(method, path string, status int, payload []byte, out any) error {
	switch {
	case status >= 200 && status < 300:
		if out == nil || len(bytes.TrimSpace(payload)) == 0 {
			return nil
		}
		if err := json.Unmarshal(payload, out); err != nil {
			return fmt.Errorf("decode %s %s: %w", method, path, err)
		}
		return nil
	case status == http.StatusForbidden:
		return domain.ErrForbidden
	case status == http.StatusBadRequest:
		return parseValidation(payload)
	case status >= 500:
		c.log.Error().
			Str("method", method).
			Str("path", path).
			Int("status", status).
			Msg("backend server error")
	}
	return &domain.StatusError{Code: status, Message: errorMessage(payload)}
}

func (c *Client) unauthorized(ctx context.Context, path string) {
	c.log.Warn().Str("path", path).Msg("backend rejected the session")
	if c.onUnauthorized != nil {
		c.onUnauthorized(ctx)
	}
}

func (c *Client) resolve(path string) *url.URL {
	return c.base.ResolveReference(&url.URL{Path: strings.TrimPrefix(path, "/")})
}

func isSafeMethod(m string) bool {
	switch m {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
