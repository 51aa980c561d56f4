package backend

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

// fakeAPI mimics the backend closely enough to exercise the transport.
type fakeAPI struct {
	mu         sync.Mutex
	csrfCalls  atomic.Int32
	token      string
	seenTokens map[string]string
	routes     map[string]http.HandlerFunc
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{token: "tok-1", seenTokens: map[string]string{}, routes: map[string]http.HandlerFunc{}}
	srv := httptest.NewServer(http.HandlerFunc(f.serve))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) handle(method, path string, h http.HandlerFunc) {
	f.mu.Lock()
	f.routes[method+" "+path] = h
	f.mu.Unlock()
}

func (f *fakeAPI) serve(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/csrf/" {
		f.csrfCalls.Add(1)
		http.SetCookie(w, &http.Cookie{Name: csrfCookie, Value: f.token, Path: "/"})
		writeJSON(w, http.StatusOK, map[string]string{"csrfToken": f.token})
		return
	}

	f.mu.Lock()
	f.seenTokens[r.Method+" "+r.URL.Path] = r.Header.Get(csrfHeader)
	h := f.routes[r.Method+" "+r.URL.Path]
	f.mu.Unlock()
	if h == nil {
		http.NotFound(w, r)
		return
	}
	h(w, r)
}

func (f *fakeAPI) tokenFor(method, path string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seenTokens[method+" "+path]
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestClient(t *testing.T, baseURL string) (*Client, *atomic.Int32) {
	t.Helper()
	c, err := NewClient(Options{BaseURL: baseURL}, zerolog.Nop())
	require.NoError(t, err)
	var hits atomic.Int32
	c.SetUnauthorizedHandler(func(context.Context) { hits.Add(1) })
	return c, &hits
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{}, zerolog.Nop())
	assert.Error(t, err)

	_, err = NewClient(Options{BaseURL: "ftp://example.com"}, zerolog.Nop())
	assert.Error(t, err)

	c, err := NewClient(Options{BaseURL: "http://example.com/api"}, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "http://example.com/api/login/", c.resolve("login/").String())
	assert.Equal(t, DefaultTimeout, c.http.Timeout)
}

func TestClient_Login_FetchesCSRFAndParsesIdentity(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle(http.MethodPost, "/login/", func(w http.ResponseWriter, r *http.Request) {
		var body loginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ana@clinic.test", body.Email)
		assert.True(t, body.RememberMe)
		http.SetCookie(w, &http.Cookie{Name: "sessionid", Value: "s-1", Path: "/"})
		writeJSON(w, http.StatusOK, map[string]any{
			"user_id":              "7",
			"email":                "ana@clinic.test",
			"first_name":           "Ana",
			"last_name":            "Lima",
			"role":                 "health_prof",
			"session_expiry":       "persistent",
			"must_change_password": false,
			"health_profile":       map[string]string{"specialty": "psychology", "council_number": "CRP-1"},
		})
	})
	c, hits := newTestClient(t, srv.URL)

	id, err := c.Login(context.Background(), ports.LoginInput{Email: "ana@clinic.test", Password: "pw", RememberMe: true})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.csrfCalls.Load())
	assert.Equal(t, "tok-1", f.tokenFor(http.MethodPost, "/login/"))
	assert.Equal(t, "7", id.ID)
	assert.Equal(t, domain.RoleProfessional, id.Role)
	assert.Equal(t, domain.ExpiryPersistent, id.SessionExpiry)
	require.NotNil(t, id.HealthProfile)
	assert.Equal(t, "psychology", id.HealthProfile.Specialty)
	assert.Equal(t, "s-1", c.cookie("sessionid"))
	assert.Zero(t, hits.Load())
}

func TestClient_Login_AlwaysRefreshesCSRF(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle(http.MethodPost, "/login/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"user_id": "1", "role": "admin"})
	})
	c, _ := newTestClient(t, srv.URL)

	for i := 0; i < 2; i++ {
		_, err := c.Login(context.Background(), ports.LoginInput{Email: "a@b.c", Password: "pw"})
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), f.csrfCalls.Load())
}

func TestClient_Login_Unauthorized(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle(http.MethodPost, "/login/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
	})
	c, hits := newTestClient(t, srv.URL)

	_, err := c.Login(context.Background(), ports.LoginInput{Email: "a@b.c", Password: "bad"})
	assert.ErrorIs(t, err, domain.ErrInvalidCredentials)
	assert.Zero(t, hits.Load(), "login 401 must not trigger the global handler")
}

func TestClient_CheckSession(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   any
		authed bool
	}{
		{"authenticated", http.StatusOK, map[string]any{"is_authenticated": true, "user_id": 12, "role": "manager"}, true},
		{"explicit false", http.StatusOK, map[string]any{"is_authenticated": false}, false},
		{"unauthorized", http.StatusUnauthorized, map[string]any{"is_authenticated": false}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, srv := newFakeAPI(t)
			f.handle(http.MethodGet, "/check-auth/", func(w http.ResponseWriter, r *http.Request) {
				writeJSON(w, tt.status, tt.body)
			})
			c, hits := newTestClient(t, srv.URL)

			check, err := c.CheckSession(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.authed, check.Authenticated)
			assert.Zero(t, hits.Load())
			assert.Zero(t, f.csrfCalls.Load(), "safe methods need no csrf token")
			if tt.authed {
				require.NotNil(t, check.Fields.ID)
				assert.Equal(t, "12", *check.Fields.ID)
				assert.Nil(t, check.Fields.HealthProfile)
				assert.Nil(t, check.Fields.SessionExpiry)
			}
		})
	}
}

func TestClient_Do_UnauthorizedRunsHandler(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle(http.MethodGet, "/api/auth/users/me/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"detail": "not authenticated"})
	})
	c, hits := newTestClient(t, srv.URL)

	_, err := c.GetProfile(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionExpired)
	assert.Equal(t, int32(1), hits.Load())
}

func TestClient_Do_StatusMapping(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle(http.MethodPatch, "/api/auth/users/me/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]any{"email": []string{"email already in use"}})
	})
	f.handle(http.MethodGet, "/api/auth/users/managerview/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusForbidden, map[string]string{"detail": "forbidden"})
	})
	f.handle(http.MethodPost, "/api/auth/users/set-password/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "boom"})
	})
	c, hits := newTestClient(t, srv.URL)

	email := "taken@clinic.test"
	_, err := c.PatchProfile(context.Background(), ports.ProfilePatch{Email: &email})
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "email already in use", verr.Field("email"))

	_, err = c.HealthProfessionals(context.Background())
	assert.ErrorIs(t, err, domain.ErrForbidden)

	err = c.SetPassword(context.Background(), ports.SetPasswordInput{NewPassword: "a", ConfirmPassword: "a"})
	var serr *domain.StatusError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, http.StatusInternalServerError, serr.Code)
	assert.Equal(t, "boom", serr.Message)

	assert.Zero(t, hits.Load())
}

func TestClient_UnsafeMethodsCarryCSRF(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle(http.MethodPost, "/logout/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "ok"})
	})
	f.handle(http.MethodPatch, "/api/auth/users/me/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"last_name": "Souza"})
	})
	c, _ := newTestClient(t, srv.URL)

	require.NoError(t, c.Logout(context.Background()))
	last := "Souza"
	patch, err := c.PatchProfile(context.Background(), ports.ProfilePatch{LastName: &last})
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.csrfCalls.Load(), "token fetched once, then read from the cookie")
	assert.Equal(t, "tok-1", f.tokenFor(http.MethodPost, "/logout/"))
	assert.Equal(t, "tok-1", f.tokenFor(http.MethodPatch, "/api/auth/users/me/"))
	require.NotNil(t, patch.LastName)
	assert.Equal(t, "Souza", *patch.LastName)
	assert.Nil(t, patch.Email)
}

func TestClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, hits := newTestClient(t, base)
	_, err := c.CheckSession(context.Background())
	assert.True(t, errors.Is(err, domain.ErrTransport), "got %v", err)

	_, err = c.Login(context.Background(), ports.LoginInput{Email: "a@b.c", Password: "pw"})
	assert.ErrorIs(t, err, domain.ErrTransport)
	assert.Zero(t, hits.Load())
}

func TestClient_HealthProfessionals(t *testing.T) {
	f, srv := newFakeAPI(t)
	f.handle(http.MethodGet, "/api/auth/users/managerview/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]any{
			{"id": 3, "email": "a@clinic.test", "role": "health_prof", "first_name": "Ana"},
			{"id": 4, "email": "b@clinic.test", "role": "health_prof", "first_name": "Bia"},
		})
	})
	c, _ := newTestClient(t, srv.URL)

	list, err := c.HealthProfessionals(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "3", list[0].ID)
	assert.Equal(t, "Bia", list[1].FirstName)
}

func TestParseValidation(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		message string
		fields  map[string][]string
	}{
		{"field lists", `{"confirm_password":["passwords do not match"]}`, "", map[string][]string{"confirm_password": {"passwords do not match"}}},
		{"field string", `{"email":"required"}`, "", map[string][]string{"email": {"required"}}},
		{"error key", `{"error":"the current password is incorrect"}`, "the current password is incorrect", nil},
		{"non field", `{"non_field_errors":["bad"]}`, "bad", nil},
		{"not json", `oops`, "oops", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ve := parseValidation([]byte(tt.body))
			assert.Equal(t, tt.message, ve.Message)
			assert.Equal(t, tt.fields, ve.Fields)
		})
	}
}
