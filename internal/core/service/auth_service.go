package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

const (
	DefaultSessionTTL  = 14 * 24 * time.Hour
	DefaultRememberTTL = 30 * 24 * time.Hour
)

// AuthService implements the server side of the session protocol: login,
// cookie-session resolution, self-service profile and password changes.
type AuthService struct {
	users       ports.UserRepository
	sessions    ports.SessionRepository
	secret      []byte
	sessionTTL  time.Duration
	rememberTTL time.Duration
	log         zerolog.Logger
	now         func() time.Time
}

func NewAuthService(users ports.UserRepository, sessions ports.SessionRepository, secret string, sessionTTL, rememberTTL time.Duration, log zerolog.Logger) *AuthService {
	if sessionTTL <= 0 {
		sessionTTL = DefaultSessionTTL
	}
	if rememberTTL <= 0 {
		rememberTTL = DefaultRememberTTL
	}
	return &AuthService{
		users:       users,
		sessions:    sessions,
		secret:      []byte(secret),
		sessionTTL:  sessionTTL,
		rememberTTL: rememberTTL,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

type sessionClaims struct {
	SessionID string `json:"sid"`
	jwt.RegisteredClaims
}

func (s *AuthService) Login(ctx context.Context, email, password string, rememberMe bool) (*ports.ServerLoginResult, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Message: "email and password are required"}
	}

	user, err := s.users.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrUserNotFound) {
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, domain.ErrInvalidCredentials
	}

	ttl := s.sessionTTL
	if rememberMe {
		ttl = s.rememberTTL
	}
	now := s.now()
	sess := &domain.ServerSession{
		ID:         uuid.NewString(),
		UserID:     user.ID,
		Persistent: rememberMe,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	token, err := s.signSession(sess)
	if err != nil {
		return nil, err
	}
	s.log.Info().Str("user_id", user.ID).Bool("remember_me", rememberMe).Msg("session opened")
	return &ports.ServerLoginResult{User: user, Session: sess, Token: token}, nil
}

// Logout drops the session behind token. Unknown or malformed tokens are
// not an error: the caller is logged out either way.
func (s *AuthService) Logout(ctx context.Context, token string) error {
	claims, err := s.parseSession(token)
	if err != nil {
		return nil
	}
	return s.sessions.Delete(ctx, claims.SessionID)
}

func (s *AuthService) Authenticate(ctx context.Context, token string) (*domain.User, *domain.ServerSession, error) {
	claims, err := s.parseSession(token)
	if err != nil {
		return nil, nil, domain.ErrSessionExpired
	}
	sess, err := s.sessions.Get(ctx, claims.SessionID)
	if err != nil {
		return nil, nil, domain.ErrSessionExpired
	}
	if sess.UserID != claims.Subject || !sess.ExpiresAt.After(s.now()) {
		return nil, nil, domain.ErrSessionExpired
	}
	user, err := s.users.FindByID(ctx, sess.UserID)
	if err != nil {
		return nil, nil, domain.ErrSessionExpired
	}
	return user, sess, nil
}

// UpdateProfile applies the editable fields of patch to user. Email must
// stay non-empty and unique.
func (s *AuthService) UpdateProfile(ctx context.Context, user *domain.User, patch ports.ProfilePatch) (*domain.User, error) {
	next := *user
	if patch.Email != nil {
		email := normalizeEmail(*patch.Email)
		if email == "" {
			return nil, &domain.ValidationError{Fields: map[string][]string{"email": {"this field may not be blank"}}}
		}
		if email != user.Email {
			other, err := s.users.FindByEmail(ctx, email)
			switch {
			case err == nil && other.ID != user.ID:
				return nil, &domain.ValidationError{Fields: map[string][]string{"email": {domain.ErrEmailTaken.Error()}}}
			case err != nil && !errors.Is(err, domain.ErrUserNotFound):
				return nil, err
			}
		}
		next.Email = email
	}
	if patch.FirstName != nil {
		next.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		next.LastName = strings.TrimSpace(*patch.LastName)
	}
	next.UpdatedAt = s.now()

	if err := s.users.Update(ctx, &next); err != nil {
		return nil, err
	}
	return &next, nil
}

// SetPassword changes the password of user. While a forced change is
// pending the current password is not asked for; the flag is cleared on
// success.
func (s *AuthService) SetPassword(ctx context.Context, user *domain.User, in ports.SetPasswordInput) error {
	fields := map[string][]string{}
	if in.NewPassword == "" {
		fields["new_password"] = []string{"this field is required"}
	}
	if in.ConfirmPassword == "" {
		fields["confirm_password"] = []string{"this field is required"}
	}
	if len(fields) == 0 && in.NewPassword != in.ConfirmPassword {
		fields["confirm_password"] = []string{"passwords do not match"}
	}
	if len(fields) > 0 {
		return &domain.ValidationError{Fields: fields}
	}

	if !user.MustChangePassword {
		if in.CurrentPassword == "" {
			return &domain.ValidationError{Message: "the current password is required"}
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)) != nil {
			return &domain.ValidationError{Message: "the current password is incorrect"}
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.NewPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	next := *user
	next.PasswordHash = string(hash)
	next.MustChangePassword = false
	next.UpdatedAt = s.now()
	if err := s.users.Update(ctx, &next); err != nil {
		return err
	}
	s.log.Info().Str("user_id", user.ID).Bool("forced", user.MustChangePassword).Msg("password changed")
	return nil
}

func (s *AuthService) ListByRole(ctx context.Context, role domain.Role) ([]*domain.User, error) {
	return s.users.FindByRole(ctx, role)
}

// EnsureUser creates an account unless one with the same email exists.
// It is used to seed the bootstrap administrator.
func (s *AuthService) EnsureUser(ctx context.Context, email, password string, role domain.Role, mustChange bool) (*domain.User, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" || !role.Known() {
		return nil, domain.ErrInvalidCredentials
	}
	if existing, err := s.users.FindByEmail(ctx, email); err == nil {
		return existing, nil
	} else if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return s.users.Create(ctx, &domain.User{
		Username:           email,
		Email:              email,
		PasswordHash:       string(hash),
		Role:               role,
		MustChangePassword: mustChange,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
}

func (s *AuthService) signSession(sess *domain.ServerSession) (string, error) {
	claims := sessionClaims{
		SessionID: sess.ID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sess.UserID,
			IssuedAt:  jwt.NewNumericDate(sess.CreatedAt),
			ExpiresAt: jwt.NewNumericDate(sess.ExpiresAt),
		},
	}
	t := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return t.SignedString(s.secret)
}

func (s *AuthService) parseSession(token string) (*sessionClaims, error) {
	if token == "" {
		return nil, domain.ErrSessionExpired
	}
	claims := &sessionClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid || claims.SessionID == "" {
		return nil, domain.ErrSessionExpired
	}
	return claims, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
