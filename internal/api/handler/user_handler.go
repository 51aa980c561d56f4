package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/prontuario/proamp/internal/api/metrics"
	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

// UserHandler serves the endpoints that act on the signed-in user. Every
// route is mounted behind the Session middleware.
type UserHandler struct {
	authService ports.AuthService
	log         zerolog.Logger
}

func NewUserHandler(authService ports.AuthService, log zerolog.Logger) *UserHandler {
	return &UserHandler{authService: authService, log: log}
}

type meResponse struct {
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type profileRequest struct {
	Email     *string `json:"email" validate:"omitempty,email"`
	FirstName *string `json:"first_name" validate:"omitempty,max=150"`
	LastName  *string `json:"last_name" validate:"omitempty,max=150"`
}

type setPasswordRequest struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password" validate:"required,min=8"`
	ConfirmPassword string `json:"confirm_password" validate:"required"`
}

type professionalResponse struct {
	ID                 string                `json:"id"`
	Email              string                `json:"email"`
	FirstName          string                `json:"first_name"`
	LastName           string                `json:"last_name"`
	Role               domain.Role           `json:"role"`
	MustChangePassword bool                  `json:"must_change_password"`
	HealthProfile      *domain.HealthProfile `json:"health_profile,omitempty"`
}

func toMeResponse(u *domain.User) meResponse {
	return meResponse{Email: u.Email, FirstName: u.FirstName, LastName: u.LastName}
}

// Me returns the editable profile fields of the signed-in user.
//
// @Summary      Current user profile
// @Tags         users
// @Produce      json
// @Success      200  {object}  meResponse
// @Failure      401  {object}  map[string]string
// @Router       /api/auth/users/me/ [get]
func (h *UserHandler) Me(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMeResponse(user))
}

// UpdateMe patches the email and names of the signed-in user.
//
// @Summary      Update current user profile
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      profileRequest  true  "Fields to change"
// @Success      200   {object}  meResponse
// @Failure      400   {object}  map[string][]string
// @Failure      401   {object}  map[string]string
// @Router       /api/auth/users/me/ [patch]
func (h *UserHandler) UpdateMe(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req profileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	updated, err := h.authService.UpdateProfile(c.Request().Context(), user, ports.ProfilePatch{
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toMeResponse(updated))
}

// SetPassword changes the password of the signed-in user.
//
// @Summary      Change password
// @Tags         users
// @Accept       json
// @Produce      json
// @Param        body  body      setPasswordRequest  true  "Password change form"
// @Success      200   {object}  messageResponse
// @Failure      400   {object}  map[string][]string
// @Failure      401   {object}  map[string]string
// @Router       /api/auth/users/set-password/ [post]
func (h *UserHandler) SetPassword(c echo.Context) error {
	user, err := ctxUser(c)
	if err != nil {
		return err
	}

	var req setPasswordRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	kind := "voluntary"
	if user.MustChangePassword {
		kind = "forced"
	}
	err = h.authService.SetPassword(c.Request().Context(), user, ports.SetPasswordInput{
		CurrentPassword: req.CurrentPassword,
		NewPassword:     req.NewPassword,
		ConfirmPassword: req.ConfirmPassword,
	})
	if err != nil {
		return err
	}

	metrics.PasswordChangesTotal.WithLabelValues(kind).Inc()
	h.log.Info().Str("user_id", user.ID).Str("kind", kind).Msg("password changed")
	return c.JSON(http.StatusOK, messageResponse{Message: "password updated"})
}

// HealthProfessionals lists every health professional. Managers only.
//
// @Summary      List health professionals
// @Tags         users
// @Produce      json
// @Success      200  {array}   professionalResponse
// @Failure      401  {object}  map[string]string
// @Failure      403  {object}  map[string]string
// @Router       /api/auth/users/managerview/ [get]
func (h *UserHandler) HealthProfessionals(c echo.Context) error {
	users, err := h.authService.ListByRole(c.Request().Context(), domain.RoleProfessional)
	if err != nil {
		return err
	}

	out := make([]professionalResponse, 0, len(users))
	for _, u := range users {
		id := u.Identity("")
		out = append(out, professionalResponse{
			ID:                 id.ID,
			Email:              id.Email,
			FirstName:          id.FirstName,
			LastName:           id.LastName,
			Role:               id.Role,
			MustChangePassword: id.MustChangePassword,
			HealthProfile:      id.HealthProfile,
		})
	}
	return c.JSON(http.StatusOK, out)
}
