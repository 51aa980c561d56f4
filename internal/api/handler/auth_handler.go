package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/prontuario/proamp/internal/api/metrics"
	"github.com/prontuario/proamp/internal/api/middleware"
	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

// CSRFContextKey is where the CSRF middleware stores the request token.
const CSRFContextKey = "csrf"

// CookieOptions controls the attributes of the session cookie.
type CookieOptions struct {
	Secure bool
	Domain string
}

type AuthHandler struct {
	authService ports.AuthService
	cookie      CookieOptions
	log         zerolog.Logger
}

func NewAuthHandler(authService ports.AuthService, cookie CookieOptions, log zerolog.Logger) *AuthHandler {
	return &AuthHandler{authService: authService, cookie: cookie, log: log}
}

type loginRequest struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	RememberMe bool   `json:"remember_me"`
}

type csrfResponse struct {
	Token string `json:"csrfToken"`
}

// userResponse is the identity echoed by login and check-auth.
type userResponse struct {
	UserID             string                `json:"user_id"`
	Email              string                `json:"email"`
	FirstName          string                `json:"first_name"`
	LastName           string                `json:"last_name"`
	Role               domain.Role           `json:"role"`
	SessionExpiry      string                `json:"session_expiry,omitempty"`
	MustChangePassword bool                  `json:"must_change_password"`
	HealthProfile      *domain.HealthProfile `json:"health_profile,omitempty"`
}

type checkAuthResponse struct {
	IsAuthenticated bool `json:"is_authenticated"`
	*userResponse
}

type messageResponse struct {
	Message string `json:"message"`
}

func toUserResponse(u *domain.User, expiry string) *userResponse {
	id := u.Identity(expiry)
	return &userResponse{
		UserID:             id.ID,
		Email:              id.Email,
		FirstName:          id.FirstName,
		LastName:           id.LastName,
		Role:               id.Role,
		SessionExpiry:      id.SessionExpiry,
		MustChangePassword: id.MustChangePassword,
		HealthProfile:      id.HealthProfile,
	}
}

// CSRF hands out the token the client must echo in X-CSRFToken.
//
// @Summary      Obtain a CSRF token
// @Tags         auth
// @Produce      json
// @Success      200  {object}  csrfResponse
// @Router       /csrf/ [get]
func (h *AuthHandler) CSRF(c echo.Context) error {
	token, _ := c.Get(CSRFContextKey).(string)
	return c.JSON(http.StatusOK, csrfResponse{Token: token})
}

// Login authenticates a user and sets the session cookie.
//
// @Summary      Login
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        body  body      loginRequest  true  "Login credentials"
// @Success      200   {object}  userResponse
// @Failure      400   {object}  map[string]string
// @Failure      401   {object}  map[string]string
// @Failure      429   {object}  map[string]string
// @Router       /login/ [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid payload")
	}

	res, err := h.authService.Login(c.Request().Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		metrics.LoginsTotal.WithLabelValues(loginResult(err), "").Inc()
		return err
	}

	c.SetCookie(h.sessionCookie(res.Token, res.Session))
	metrics.LoginsTotal.WithLabelValues("success", res.Session.Expiry()).Inc()
	h.log.Info().
		Str("user_id", res.User.ID).
		Str("role", string(res.User.Role)).
		Str("mode", res.Session.Expiry()).
		Msg("user logged in")

	return c.JSON(http.StatusOK, toUserResponse(res.User, res.Session.Expiry()))
}

// Logout ends the current session. It succeeds without a session too.
//
// @Summary      Logout
// @Tags         auth
// @Produce      json
// @Success      200  {object}  messageResponse
// @Router       /logout/ [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	if ck, err := c.Cookie(middleware.SessionCookie); err == nil && ck.Value != "" {
		if err := h.authService.Logout(c.Request().Context(), ck.Value); err != nil {
			h.log.Warn().Err(err).Msg("could not delete session")
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    "",
		Path:     "/",
		Domain:   h.cookie.Domain,
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	})
	return c.JSON(http.StatusOK, messageResponse{Message: "logged out"})
}

// CheckAuth reports whether the session cookie names a live session.
//
// @Summary      Check the current session
// @Tags         auth
// @Produce      json
// @Success      200  {object}  checkAuthResponse
// @Failure      401  {object}  checkAuthResponse
// @Router       /check-auth/ [get]
func (h *AuthHandler) CheckAuth(c echo.Context) error {
	ck, err := c.Cookie(middleware.SessionCookie)
	if err != nil || ck.Value == "" {
		metrics.SessionChecksTotal.WithLabelValues("anonymous").Inc()
		return c.JSON(http.StatusUnauthorized, checkAuthResponse{})
	}

	user, sess, err := h.authService.Authenticate(c.Request().Context(), ck.Value)
	if err != nil {
		metrics.SessionChecksTotal.WithLabelValues("anonymous").Inc()
		return c.JSON(http.StatusUnauthorized, checkAuthResponse{})
	}

	metrics.SessionChecksTotal.WithLabelValues("authenticated").Inc()
	return c.JSON(http.StatusOK, checkAuthResponse{
		IsAuthenticated: true,
		userResponse:    toUserResponse(user, sess.Expiry()),
	})
}

// sessionCookie builds the cookie for a new session. Non-persistent
// sessions get a browser-session cookie.
func (h *AuthHandler) sessionCookie(token string, sess *domain.ServerSession) *http.Cookie {
	ck := &http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    token,
		Path:     "/",
		Domain:   h.cookie.Domain,
		HttpOnly: true,
		Secure:   h.cookie.Secure,
		SameSite: http.SameSiteLaxMode,
	}
	if sess.Persistent {
		ck.Expires = sess.ExpiresAt
		ck.MaxAge = int(sess.ExpiresAt.Sub(sess.CreatedAt).Seconds())
	}
	return ck
}

func loginResult(err error) string {
	var ve *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.As(err, &ve):
		return "invalid"
	default:
		return "error"
	}
}
