package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/prontuario/proamp/internal/api/middleware"
	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

func newValidatingEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

func TestUserHandler_Me(t *testing.T) {
	e := newValidatingEcho()
	handler := NewUserHandler(&stubAuthService{}, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodGet, "/api/auth/users/me/", "")
	c.Set(middleware.ContextUser, professional())
	if err := handler.Me(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	want := `{"email":"ana@clinic.test","first_name":"Ana","last_name":"Souza"}`
	if rec.Code != http.StatusOK || strings.TrimSpace(rec.Body.String()) != want {
		t.Fatalf("unexpected response %d %s", rec.Code, rec.Body.String())
	}
}

func TestUserHandler_Me_WithoutSession(t *testing.T) {
	e := newValidatingEcho()
	handler := NewUserHandler(&stubAuthService{}, zerolog.Nop())

	c, _ := newJSONContext(e, http.MethodGet, "/api/auth/users/me/", "")
	if err := handler.Me(c); !errors.Is(err, domain.ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestUserHandler_UpdateMe(t *testing.T) {
	e := newValidatingEcho()
	stub := &stubAuthService{
		updateProfileFn: func(ctx context.Context, user *domain.User, patch ports.ProfilePatch) (*domain.User, error) {
			if patch.Email != nil || patch.FirstName == nil || *patch.FirstName != "Ana Maria" {
				t.Fatalf("unexpected patch: %+v", patch)
			}
			u := *user
			u.FirstName = *patch.FirstName
			return &u, nil
		},
	}
	handler := NewUserHandler(stub, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodPatch, "/api/auth/users/me/", `{"first_name":"Ana Maria","role":"admin"}`)
	c.Set(middleware.ContextUser, professional())
	if err := handler.UpdateMe(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if !strings.Contains(rec.Body.String(), `"first_name":"Ana Maria"`) {
		t.Fatalf("unexpected response %s", rec.Body.String())
	}
}

func TestUserHandler_UpdateMe_InvalidEmail(t *testing.T) {
	e := newValidatingEcho()
	stub := &stubAuthService{
		updateProfileFn: func(ctx context.Context, user *domain.User, patch ports.ProfilePatch) (*domain.User, error) {
			t.Fatalf("should not be called")
			return nil, nil
		},
	}
	handler := NewUserHandler(stub, zerolog.Nop())

	c, _ := newJSONContext(e, http.MethodPatch, "/api/auth/users/me/", `{"email":"not-an-email"}`)
	c.Set(middleware.ContextUser, professional())

	var ve *domain.ValidationError
	if err := handler.UpdateMe(c); !errors.As(err, &ve) || ve.Field("email") == "" {
		t.Fatalf("expected email field error, got %v", err)
	}
}

func TestUserHandler_SetPassword(t *testing.T) {
	e := newValidatingEcho()
	var got ports.SetPasswordInput
	stub := &stubAuthService{
		setPasswordFn: func(ctx context.Context, user *domain.User, in ports.SetPasswordInput) error {
			got = in
			return nil
		},
	}
	handler := NewUserHandler(stub, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodPost, "/api/auth/users/set-password/",
		`{"current_password":"old-secret","new_password":"new-secret","confirm_password":"new-secret"}`)
	c.Set(middleware.ContextUser, professional())
	if err := handler.SetPassword(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if got.CurrentPassword != "old-secret" || got.NewPassword != "new-secret" || got.ConfirmPassword != "new-secret" {
		t.Fatalf("unexpected input: %+v", got)
	}
}

func TestUserHandler_SetPassword_Validation(t *testing.T) {
	e := newValidatingEcho()
	stub := &stubAuthService{
		setPasswordFn: func(ctx context.Context, user *domain.User, in ports.SetPasswordInput) error {
			t.Fatalf("should not be called")
			return nil
		},
	}
	handler := NewUserHandler(stub, zerolog.Nop())

	c, _ := newJSONContext(e, http.MethodPost, "/api/auth/users/set-password/", `{"new_password":"short"}`)
	c.Set(middleware.ContextUser, professional())

	var ve *domain.ValidationError
	if err := handler.SetPassword(c); !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if ve.Field("new_password") == "" || ve.Field("confirm_password") != "this field is required" {
		t.Fatalf("unexpected fields: %+v", ve.Fields)
	}
}

func TestUserHandler_SetPassword_ServiceError(t *testing.T) {
	e := newValidatingEcho()
	want := &domain.ValidationError{Message: "the current password is incorrect"}
	stub := &stubAuthService{
		setPasswordFn: func(ctx context.Context, user *domain.User, in ports.SetPasswordInput) error {
			return want
		},
	}
	handler := NewUserHandler(stub, zerolog.Nop())

	c, _ := newJSONContext(e, http.MethodPost, "/api/auth/users/set-password/",
		`{"current_password":"wrong","new_password":"new-secret","confirm_password":"new-secret"}`)
	c.Set(middleware.ContextUser, professional())
	if err := handler.SetPassword(c); err != want {
		t.Fatalf("expected service error passed through, got %v", err)
	}
}

func TestUserHandler_HealthProfessionals(t *testing.T) {
	e := newValidatingEcho()
	stub := &stubAuthService{
		listByRoleFn: func(ctx context.Context, role domain.Role) ([]*domain.User, error) {
			if role != domain.RoleProfessional {
				t.Fatalf("unexpected role %s", role)
			}
			return []*domain.User{professional()}, nil
		},
	}
	handler := NewUserHandler(stub, zerolog.Nop())

	c, rec := newJSONContext(e, http.MethodGet, "/api/auth/users/managerview/", "")
	if err := handler.HealthProfessionals(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	body := rec.Body.String()
	if !strings.HasPrefix(body, "[") || !strings.Contains(body, `"id":"42"`) || !strings.Contains(body, `"specialty":"psychology"`) {
		t.Fatalf("unexpected response %s", body)
	}
}
