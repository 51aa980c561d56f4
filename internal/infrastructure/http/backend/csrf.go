package backend

import (
	"context"
	"net/http"
	"sync"
)

const (
	csrfCookie = "csrftoken"
	csrfHeader = "X-CSRFToken"
	csrfPath   = "csrf/"
)

// csrfState remembers the token from the last csrf/ response, used when the
// cookie itself is not readable from the jar.
type csrfState struct {
	mu    sync.Mutex
	token string
}

type csrfResponse struct {
	Token string `json:"csrfToken"`
}

// ensureCSRF fetches a token unless a csrftoken cookie is already held.
// force always fetches. Failures are logged and the request goes ahead
// without a token; the backend then answers 403.
func (c *Client) ensureCSRF(ctx context.Context, force bool) {
	if !force && c.cookie(csrfCookie) != "" {
		return
	}

	status, payload, err := c.send(ctx, http.MethodGet, csrfPath, nil)
	if err == nil && status != http.StatusOK {
		err = c.finish(http.MethodGet, csrfPath, status, payload, nil)
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("could not obtain csrf token")
		return
	}

	var out csrfResponse
	if decodeErr := c.finish(http.MethodGet, csrfPath, status, payload, &out); decodeErr != nil {
		c.log.Warn().Err(decodeErr).Msg("could not decode csrf token")
	}
	c.csrf.mu.Lock()
	c.csrf.token = out.Token
	c.csrf.mu.Unlock()
}

// csrfToken prefers the cookie, which the backend may rotate on login.
func (c *Client) csrfToken() string {
	if v := c.cookie(csrfCookie); v != "" {
		return v
	}
	c.csrf.mu.Lock()
	defer c.csrf.mu.Unlock()
	return c.csrf.token
}

func (c *Client) cookie(name string) string {
	for _, ck := range c.http.Jar.Cookies(c.base) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}
