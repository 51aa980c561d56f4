package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

const (
	pathLogin       = "login/"
	pathLogout      = "logout/"
	pathCheckAuth   = "check-auth/"
	pathMe          = "api/auth/users/me/"
	pathSetPassword = "api/auth/users/set-password/"
	pathManagerView = "api/auth/users/managerview/"
)

var _ ports.AuthBackend = (*Client)(nil)

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type setPasswordRequest struct {
	CurrentPassword string `json:"current_password,omitempty"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type profileRequest struct {
	Email     *string `json:"email,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
}

// userID accepts ids sent either as strings or as numbers.
type userID string

func (u *userID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*u = userID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("user id: %w", err)
	}
	*u = userID(n.String())
	return nil
}

// userPayload is the user shape shared by login, check-auth, me and the
// listing endpoints. Pointers tell echoed fields from absent ones.
type userPayload struct {
	UserID             *userID               `json:"user_id"`
	ID                 *userID               `json:"id"`
	Email              *string               `json:"email"`
	FirstName          *string               `json:"first_name"`
	LastName           *string               `json:"last_name"`
	Role               *domain.Role          `json:"role"`
	SessionExpiry      *string               `json:"session_expiry"`
	MustChangePassword *bool                 `json:"must_change_password"`
	HealthProfile      *domain.HealthProfile `json:"health_profile"`
	IsAuthenticated    *bool                 `json:"is_authenticated"`
}

func (p *userPayload) patch() domain.IdentityPatch {
	out := domain.IdentityPatch{
		Email:              p.Email,
		FirstName:          p.FirstName,
		LastName:           p.LastName,
		Role:               p.Role,
		SessionExpiry:      p.SessionExpiry,
		MustChangePassword: p.MustChangePassword,
		HealthProfile:      p.HealthProfile,
	}
	id := p.UserID
	if id == nil {
		id = p.ID
	}
	if id != nil {
		s := string(*id)
		out.ID = &s
	}
	return out
}

// Login posts credentials after refreshing the CSRF token. A 401 means the
// credentials were rejected and does not trigger the unauthorized handler.
func (c *Client) Login(ctx context.Context, in ports.LoginInput) (*domain.Identity, error) {
	c.ensureCSRF(ctx, true)

	req := loginRequest{Email: in.Email, Password: in.Password, RememberMe: in.RememberMe}
	status, payload, err := c.send(ctx, http.MethodPost, pathLogin, req)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return nil, domain.ErrInvalidCredentials
	}

	var out userPayload
	if err := c.finish(http.MethodPost, pathLogin, status, payload, &out); err != nil {
		return nil, err
	}
	return (*domain.Identity)(nil).Merge(out.patch()), nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.Do(ctx, http.MethodPost, pathLogout, nil, nil)
}

// CheckSession asks whether the cookie still names a live session. A 401 is
// the normal negative answer.
func (c *Client) CheckSession(ctx context.Context) (*ports.SessionCheck, error) {
	status, payload, err := c.send(ctx, http.MethodGet, pathCheckAuth, nil)
	if err != nil {
		return nil, err
	}
	if status == http.StatusUnauthorized {
		return &ports.SessionCheck{}, nil
	}

	var out userPayload
	if err := c.finish(http.MethodGet, pathCheckAuth, status, payload, &out); err != nil {
		return nil, err
	}
	authenticated := out.UserID != nil || out.ID != nil
	if out.IsAuthenticated != nil {
		authenticated = *out.IsAuthenticated
	}
	if !authenticated {
		return &ports.SessionCheck{}, nil
	}
	return &ports.SessionCheck{Authenticated: true, Fields: out.patch()}, nil
}

func (c *Client) SetPassword(ctx context.Context, in ports.SetPasswordInput) error {
	req := setPasswordRequest{
		CurrentPassword: in.CurrentPassword,
		NewPassword:     in.NewPassword,
		ConfirmPassword: in.ConfirmPassword,
	}
	return c.Do(ctx, http.MethodPost, pathSetPassword, req, nil)
}

func (c *Client) GetProfile(ctx context.Context) (domain.IdentityPatch, error) {
	var out userPayload
	if err := c.Do(ctx, http.MethodGet, pathMe, nil, &out); err != nil {
		return domain.IdentityPatch{}, err
	}
	return out.patch(), nil
}

func (c *Client) PatchProfile(ctx context.Context, patch ports.ProfilePatch) (domain.IdentityPatch, error) {
	req := profileRequest{Email: patch.Email, FirstName: patch.FirstName, LastName: patch.LastName}
	var out userPayload
	if err := c.Do(ctx, http.MethodPatch, pathMe, req, &out); err != nil {
		return domain.IdentityPatch{}, err
	}
	return out.patch(), nil
}

// HealthProfessionals lists health professionals. Only managers may call it.
func (c *Client) HealthProfessionals(ctx context.Context) ([]*domain.Identity, error) {
	var out []userPayload
	if err := c.Do(ctx, http.MethodGet, pathManagerView, nil, &out); err != nil {
		return nil, err
	}
	list := make([]*domain.Identity, 0, len(out))
	for i := range out {
		list = append(list, (*domain.Identity)(nil).Merge(out[i].patch()))
	}
	return list, nil
}
