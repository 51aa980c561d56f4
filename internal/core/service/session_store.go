package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/prontuario/proamp/internal/core/domain"
	"github.com/prontuario/proamp/internal/core/ports"
)

const verifyKey = "check-session"

var errIncompleteIdentity = errors.New("backend returned an identity without id or role")

// SessionStore is the single source of truth for the authenticated identity.
//
// Backend calls run outside the state lock; their results are applied under
// it. Every successful mutation is followed by a write of the current
// identity to the snapshot store. Results of a verification that started
// before a login, logout or forced clear are discarded.
type SessionStore struct {
	backend   ports.AuthBackend
	snapshots ports.SnapshotStore
	log       zerolog.Logger

	mu        sync.RWMutex
	identity  *domain.Identity
	inflight  int
	lastError string
	epoch     uint64

	persistMu sync.Mutex
	verify    singleflight.Group
}

// NewSessionStore returns an empty, unauthenticated store.
func NewSessionStore(backend ports.AuthBackend, snapshots ports.SnapshotStore, log zerolog.Logger) *SessionStore {
	return &SessionStore{backend: backend, snapshots: snapshots, log: log}
}

// Login authenticates against the backend and replaces the identity wholesale.
// On failure LastError is set and the identity is left as it was.
func (s *SessionStore) Login(ctx context.Context, email, password string, rememberMe bool) (*domain.Identity, error) {
	s.begin()
	defer s.end()

	id, err := s.backend.Login(ctx, ports.LoginInput{Email: email, Password: password, RememberMe: rememberMe})
	if err == nil && !id.Valid() {
		err = errIncompleteIdentity
	}
	if err != nil {
		s.mu.Lock()
		s.lastError = loginMessage(err)
		s.mu.Unlock()
		s.log.Warn().Err(err).Str("email", email).Msg("login failed")
		return nil, fmt.Errorf("login: %w", err)
	}

	s.mu.Lock()
	s.identity = id.Clone()
	s.lastError = ""
	s.epoch++
	s.mu.Unlock()

	s.sync(ctx)
	s.log.Info().Str("user_id", id.ID).Str("role", string(id.Role)).Msg("logged in")
	return id.Clone(), nil
}

// Logout asks the backend to end the session and clears local state no
// matter what the backend answers.
func (s *SessionStore) Logout(ctx context.Context) {
	s.begin()
	err := s.backend.Logout(ctx)
	s.end()
	if err != nil {
		s.log.Warn().Err(err).Msg("backend logout failed, clearing local session anyway")
	}

	s.mu.Lock()
	s.identity = nil
	s.lastError = ""
	s.epoch++
	s.mu.Unlock()

	s.sync(ctx)
	s.log.Info().Msg("logged out")
}

// HandleUnauthorized is the global reaction to a 401 on any API call: the
// identity and snapshot are dropped so the next guarded navigation goes to
// login.
func (s *SessionStore) HandleUnauthorized(ctx context.Context) {
	s.mu.Lock()
	wasAuthenticated := s.identity != nil
	s.identity = nil
	s.lastError = domain.MsgSessionExpired
	s.epoch++
	s.mu.Unlock()

	s.sync(context.WithoutCancel(ctx))
	if wasAuthenticated {
		s.log.Warn().Msg("session rejected by backend, cleared")
	}
}

// CheckSessionValidity verifies the session with the backend and reports
// whether the store is authenticated afterwards. Concurrent callers share a
// single backend call.
func (s *SessionStore) CheckSessionValidity(ctx context.Context) bool {
	ch := s.verify.DoChan(verifyKey, func() (any, error) {
		return s.verifySession(context.WithoutCancel(ctx)), nil
	})
	select {
	case res := <-ch:
		return res.Val.(bool)
	case <-ctx.Done():
		return s.IsAuthenticated()
	}
}

func (s *SessionStore) verifySession(ctx context.Context) bool {
	s.begin()
	defer s.end()

	s.mu.RLock()
	epoch := s.epoch
	s.mu.RUnlock()

	check, err := s.backend.CheckSession(ctx)

	s.mu.Lock()
	if s.epoch != epoch {
		ok := s.identity != nil
		s.mu.Unlock()
		s.log.Debug().Msg("discarding session verification overtaken by a newer session change")
		return ok
	}

	var next *domain.Identity
	if err == nil && check != nil && check.Authenticated {
		base := s.identity
		if f := check.Fields.ID; f != nil && base != nil && *f != base.ID {
			base = nil
		}
		next = base.Merge(check.Fields)
		if !next.Valid() {
			next = nil
		}
	}
	s.identity = next
	s.mu.Unlock()

	switch {
	case err != nil:
		s.log.Warn().Err(err).Msg("session verification failed, treating as unauthenticated")
	case next == nil:
		s.log.Info().Msg("backend reports no authenticated session")
	default:
		s.log.Debug().Str("user_id", next.ID).Msg("session verified")
	}

	s.sync(ctx)
	return next != nil
}

// Initialize hydrates the identity from the snapshot, if one exists and the
// store is still empty, then verifies it with the backend in the background.
// The returned channel yields the verification outcome; a negative outcome
// has already retracted the optimistic identity when it is delivered.
func (s *SessionStore) Initialize(ctx context.Context) <-chan bool {
	if s.snapshots != nil && !s.IsAuthenticated() {
		snap, err := s.snapshots.Load(ctx)
		switch {
		case err != nil:
			s.log.Warn().Err(err).Msg("could not load session snapshot")
		case snap.Valid():
			s.mu.Lock()
			if s.identity == nil {
				s.identity = snap.Clone()
				s.log.Debug().Str("user_id", snap.ID).Msg("hydrated identity from snapshot")
			}
			s.mu.Unlock()
		}
	}

	out := make(chan bool, 1)
	bg := context.WithoutCancel(ctx)
	go func() {
		out <- s.CheckSessionValidity(bg)
	}()
	return out
}

// SetPassword changes the password and lifts a pending forced change.
func (s *SessionStore) SetPassword(ctx context.Context, in ports.SetPasswordInput) error {
	s.begin()
	defer s.end()

	if err := s.backend.SetPassword(ctx, in); err != nil {
		s.fail(UserMessage(err, domain.MsgPasswordFailed))
		return fmt.Errorf("set password: %w", err)
	}

	s.mu.Lock()
	if s.identity != nil {
		next := s.identity.Clone()
		next.MustChangePassword = false
		s.identity = next
	}
	s.lastError = ""
	s.mu.Unlock()

	s.sync(ctx)
	return nil
}

// FetchProfile merges the backend's view of the current user into the
// identity.
func (s *SessionStore) FetchProfile(ctx context.Context) (*domain.Identity, error) {
	s.begin()
	defer s.end()

	patch, err := s.backend.GetProfile(ctx)
	if err != nil {
		s.fail(UserMessage(err, domain.MsgProfileFailed))
		return nil, fmt.Errorf("fetch profile: %w", err)
	}
	return s.applyProfile(ctx, patch)
}

// UpdateProfile sends patch to the backend and merges the answer.
// Fields absent from the answer keep their current value.
func (s *SessionStore) UpdateProfile(ctx context.Context, patch ports.ProfilePatch) (*domain.Identity, error) {
	s.begin()
	defer s.end()

	updated, err := s.backend.PatchProfile(ctx, patch)
	if err != nil {
		s.fail(UserMessage(err, domain.MsgProfileFailed))
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return s.applyProfile(ctx, updated)
}

func (s *SessionStore) applyProfile(ctx context.Context, patch domain.IdentityPatch) (*domain.Identity, error) {
	// The profile endpoints never change who is signed in or their role.
	patch.ID, patch.Role = nil, nil

	s.mu.Lock()
	if s.identity == nil {
		s.mu.Unlock()
		return nil, domain.ErrNotAuthenticated
	}
	s.identity = s.identity.Merge(patch)
	s.lastError = ""
	out := s.identity.Clone()
	s.mu.Unlock()

	s.sync(ctx)
	return out, nil
}

// sync writes whatever identity is current to the snapshot store. Holding
// persistMu while reading and writing keeps the snapshot from regressing to
// an older value under concurrent mutations.
func (s *SessionStore) sync(ctx context.Context) {
	if s.snapshots == nil {
		return
	}
	s.persistMu.Lock()
	defer s.persistMu.Unlock()

	if err := s.snapshots.Persist(ctx, s.Identity()); err != nil {
		s.log.Warn().Err(err).Msg("could not persist session snapshot")
	}
}

func (s *SessionStore) fail(msg string) {
	s.mu.Lock()
	s.lastError = msg
	s.mu.Unlock()
}

func (s *SessionStore) begin() {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()
}

func (s *SessionStore) end() {
	s.mu.Lock()
	s.inflight--
	s.mu.Unlock()
}

// ClearError resets LastError.
func (s *SessionStore) ClearError() {
	s.fail("")
}

// State returns a consistent copy of the whole session state.
func (s *SessionStore) State() domain.SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return domain.SessionState{
		Identity:  s.identity.Clone(),
		IsLoading: s.inflight > 0,
		LastError: s.lastError,
	}
}

// Identity returns a copy of the current identity, or nil.
func (s *SessionStore) Identity() *domain.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.identity.Clone()
}

func (s *SessionStore) IsAuthenticated() bool    { return s.State().IsAuthenticated() }
func (s *SessionStore) Role() domain.Role        { return s.State().Role() }
func (s *SessionStore) IsAdmin() bool            { return s.Role() == domain.RoleAdmin }
func (s *SessionStore) IsManager() bool          { return s.Role() == domain.RoleManager }
func (s *SessionStore) IsProfessional() bool     { return s.Role() == domain.RoleProfessional }
func (s *SessionStore) MustChangePassword() bool { return s.State().MustChangePassword() }
func (s *SessionStore) IsLoading() bool          { return s.State().IsLoading }
func (s *SessionStore) LastError() string        { return s.State().LastError }
