package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/prontuario/proamp/internal/api/middleware"
	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

type stubAuthService struct {
	loginFn         func(ctx context.Context, email, password string, rememberMe bool) (*ports.ServerLoginResult, error)
	logoutFn        func(ctx context.Context, token string) error
	authenticateFn  func(ctx context.Context, token string) (*domain.User, *domain.ServerSession, error)
	updateProfileFn func(ctx context.Context, user *domain.User, patch ports.ProfilePatch) (*domain.User, error)
	setPasswordFn   func(ctx context.Context, user *domain.User, in ports.SetPasswordInput) error
	listByRoleFn    func(ctx context.Context, role domain.Role) ([]*domain.User, error)
}

func (s *stubAuthService) Login(ctx context.Context, email, password string, rememberMe bool) (*ports.ServerLoginResult, error) {
	return s.loginFn(ctx, email, password, rememberMe)
}

func (s *stubAuthService) Logout(ctx context.Context, token string) error {
	return s.logoutFn(ctx, token)
}

func (s *stubAuthService) Authenticate(ctx context.Context, token string) (*domain.User, *domain.ServerSession, error) {
	return s.authenticateFn(ctx, token)
}

func (s *stubAuthService) UpdateProfile(ctx context.Context, user *domain.User, patch ports.ProfilePatch) (*domain.User, error) {
	return s.updateProfileFn(ctx, user, patch)
}

func (s *stubAuthService) SetPassword(ctx context.Context, user *domain.User, in ports.SetPasswordInput) error {
	return s.setPasswordFn(ctx, user, in)
}

func (s *stubAuthService) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return s.listByRoleFn(ctx, role)
}

func newJSONContext(e *echo.Echo, method, target, body string) (echo.Context, *httptest.ResponseRecorder) {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func professional() *domain.User {
	return &domain.User{
		ID:            "42",
		Email:         "ana@clinic.test",
		FirstName:     "Ana",
		LastName:      "Souza",
		Role:          domain.RoleProfessional,
		HealthProfile: &domain.HealthProfile{Specialty: "psychology", CouncilNumber: "CRP-06/1234"},
	}
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == middleware.SessionCookie {
			return ck
		}
	}
	return nil
}

func TestAuthHandler_CSRF(t *testing.T) {
	e := echo.New()
	c, rec := newJSONContext(e, http.MethodGet, "/csrf/", "")
	c.Set(CSRFContextKey, "tok-1")

	if err := NewAuthHandler(&stubAuthService{}, CookieOptions{}, zerolog.Nop()).CSRF(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"csrfToken":"tok-1"`) {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestAuthHandler_Login_Persistent(t *testing.T) {
	e := echo.New()
	now := time.Now().UTC()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*ports.ServerLoginResult, error) {
			if email != "ana@clinic.test" || password != "secret" || !rememberMe {
				t.Fatalf("unexpected args: %s %s %v", email, password, rememberMe)
			}
			return &ports.ServerLoginResult{
				User:    professional(),
				Session: &domain.ServerSession{ID: "s", Persistent: true, CreatedAt: now, ExpiresAt: now.Add(30 * 24 * time.Hour)},
				Token:   "signed",
			}, nil
		},
	}
	handler := NewAuthHandler(stub, CookieOptions{Secure: true}, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodPost, "/login/", `{"email":"ana@clinic.test","password":"secret","remember_me":true}`)
	if err := handler.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	ck := sessionCookie(rec)
	if ck == nil || ck.Value != "signed" || !ck.HttpOnly || !ck.Secure {
		t.Fatalf("unexpected session cookie: %+v", ck)
	}
	if ck.MaxAge != int((30 * 24 * time.Hour).Seconds()) {
		t.Fatalf("expected 30 day cookie, got max-age %d", ck.MaxAge)
	}

	var resp map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("invalid json: %v", err)
	}
	if resp["user_id"] != "42" || resp["role"] != "health_prof" || resp["session_expiry"] != "persistent" {
		t.Fatalf("unexpected payload: %+v", resp)
	}
	hp, ok := resp["health_profile"].(map[string]any)
	if !ok || hp["specialty"] != "psychology" {
		t.Fatalf("expected health profile, got %+v", resp["health_profile"])
	}
}

func TestAuthHandler_Login_BrowserSession(t *testing.T) {
	e := echo.New()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*ports.ServerLoginResult, error) {
			u := &domain.User{ID: "1", Email: email, Role: domain.RoleAdmin, MustChangePassword: true}
			return &ports.ServerLoginResult{User: u, Session: &domain.ServerSession{ID: "s"}, Token: "t"}, nil
		},
	}
	handler := NewAuthHandler(stub, CookieOptions{}, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodPost, "/login/", `{"email":"root@clinic.test","password":"x"}`)
	if err := handler.Login(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}

	ck := sessionCookie(rec)
	if ck == nil || ck.MaxAge != 0 || !ck.Expires.IsZero() {
		t.Fatalf("expected a browser-session cookie, got %+v", ck)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"session_expiry":"browser_close"`) || !strings.Contains(body, `"must_change_password":true`) {
		t.Fatalf("unexpected payload: %s", body)
	}
	if strings.Contains(body, "health_profile") {
		t.Fatalf("admin payload must not carry a health profile: %s", body)
	}
}

func TestAuthHandler_Login_InvalidCredentials(t *testing.T) {
	e := echo.New()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*ports.ServerLoginResult, error) {
			return nil, domain.ErrInvalidCredentials
		},
	}
	handler := NewAuthHandler(stub, CookieOptions{}, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodPost, "/login/", `{"email":"a@b.c","password":"bad"}`)
	err := handler.Login(c)
	if !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if sessionCookie(rec) != nil {
		t.Fatalf("no cookie may be set on failure")
	}
}

func TestAuthHandler_Login_InvalidPayload(t *testing.T) {
	e := echo.New()
	stub := &stubAuthService{
		loginFn: func(ctx context.Context, email, password string, rememberMe bool) (*ports.ServerLoginResult, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	handler := NewAuthHandler(stub, CookieOptions{}, zerolog.Nop())

	c, _ := newJSONContext(e, http.MethodPost, "/login/", "{")
	var he *echo.HTTPError
	if err := handler.Login(c); !errors.As(err, &he) || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}

func TestAuthHandler_Logout(t *testing.T) {
	e := echo.New()
	var deleted string
	stub := &stubAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			deleted = token
			return nil
		},
	}
	handler := NewAuthHandler(stub, CookieOptions{}, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodPost, "/logout/", "")
	c.Request().AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: "tok"})
	if err := handler.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if deleted != "tok" {
		t.Fatalf("expected session tok deleted, got %q", deleted)
	}
	if ck := sessionCookie(rec); ck == nil || ck.MaxAge >= 0 {
		t.Fatalf("expected cookie cleared, got %+v", ck)
	}
}

func TestAuthHandler_Logout_WithoutSession(t *testing.T) {
	e := echo.New()
	stub := &stubAuthService{
		logoutFn: func(ctx context.Context, token string) error {
			t.Fatalf("should not be called")
			return nil
		},
	}
	handler := NewAuthHandler(stub, CookieOptions{}, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodPost, "/logout/", "")
	if err := handler.Logout(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuthHandler_CheckAuth(t *testing.T) {
	e := echo.New()
	stub := &stubAuthService{
		authenticateFn: func(ctx context.Context, token string) (*domain.User, *domain.ServerSession, error) {
			if token != "good" {
				return nil, nil, domain.ErrSessionExpired
			}
			return professional(), &domain.ServerSession{ID: "s", Persistent: true}, nil
		},
	}
	handler := NewAuthHandler(stub, CookieOptions{}, zerolog.Nop())

	tests := []struct {
		name   string
		cookie string
		code   int
		want   string
	}{
		{"no cookie", "", http.StatusUnauthorized, `{"is_authenticated":false}`},
		{"dead session", "bad", http.StatusUnauthorized, `{"is_authenticated":false}`},
		{"live session", "good", http.StatusOK, `"is_authenticated":true`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newJSONContext(e, http.MethodGet, "/check-auth/", "")
			if tt.cookie != "" {
				c.Request().AddCookie(&http.Cookie{Name: middleware.SessionCookie, Value: tt.cookie})
			}
			if err := handler.CheckAuth(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tt.code || !strings.Contains(rec.Body.String(), tt.want) {
				t.Fatalf("expected %d %s, got %d %s", tt.code, tt.want, rec.Code, rec.Body.String())
			}
			if tt.code == http.StatusOK && !strings.Contains(rec.Body.String(), `"council_number":"CRP-06/1234"`) {
				t.Fatalf("expected health profile in %s", rec.Body.String())
			}
		})
	}
}
