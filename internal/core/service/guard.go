package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/prontuario/proamp/internal/core/domain"
)

// Decide is the route-guard verdict for intent given the session state
// after any verification has run. Public routes carry no guard and always
// pass. Otherwise, first match wins:
//
//  1. unauthenticated: guest-only routes pass, everything else goes to
//     login with the attempted path as return target
//  2. pending forced password change: everything but the change route goes there
//  3. no pending change but heading to the change route: role dashboard
//  4. guest-only while authenticated: role dashboard, or unauthorized
//  5. role not among the route's roles: unauthorized
//  6. allow
func Decide(intent domain.NavIntent, st domain.SessionState) domain.Decision {
	req := intent.Capability
	if req.Kind == domain.CapNone {
		return domain.Allow()
	}
	toChange := intent.Name == domain.RouteForcePasswordChange

	if !st.IsAuthenticated() {
		if req.Kind == domain.CapGuestOnly {
			return domain.Allow()
		}
		return domain.RedirectToLogin(intent.FullPath)
	}

	if st.MustChangePassword() {
		if !toChange {
			return domain.RedirectTo(domain.RouteForcePasswordChange)
		}
		return domain.Allow()
	}

	if toChange {
		if dash, ok := domain.DashboardFor(st.Role()); ok {
			return domain.RedirectTo(dash)
		}
		return domain.RedirectTo(domain.RouteLogin)
	}

	if req.Kind == domain.CapGuestOnly {
		if dash, ok := domain.DashboardFor(st.Role()); ok {
			return domain.RedirectTo(dash)
		}
		return domain.RedirectTo(domain.RouteUnauthorized)
	}

	if !req.Permits(st.Role()) {
		return domain.RedirectTo(domain.RouteUnauthorized)
	}
	return domain.Allow()
}

// Session is what the guard engine needs from the session store.
type Session interface {
	Initialize(ctx context.Context) <-chan bool
	CheckSessionValidity(ctx context.Context) bool
	State() domain.SessionState
}

// DecisionHook observes every verdict, e.g. for metrics.
type DecisionHook func(intent domain.NavIntent, d domain.Decision)

// GuardEngine runs the one-time initialization and the step-1 session
// verification around Decide.
type GuardEngine struct {
	session Session
	gate    *InitGate
	log     zerolog.Logger
	hooks   []DecisionHook
}

// NewGuardEngine binds a guard to session. A nil gate gets a fresh one.
func NewGuardEngine(session Session, gate *InitGate, log zerolog.Logger, hooks ...DecisionHook) *GuardEngine {
	if gate == nil {
		gate = NewInitGate()
	}
	return &GuardEngine{session: session, gate: gate, log: log, hooks: hooks}
}

// Navigate decides what the router should do with intent.
//
// The first navigation initializes the session and waits for its backend
// verification; any navigation arriving while that is in flight waits for
// the same result and does not verify again.
func (g *GuardEngine) Navigate(ctx context.Context, intent domain.NavIntent) domain.Decision {
	fresh, err := g.gate.Enter(ctx, func(ctx context.Context) error {
		select {
		case <-g.session.Initialize(ctx):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	if err != nil {
		g.log.Warn().Err(err).Str("route", string(intent.Name)).Msg("session initialization did not complete")
		fresh = false
	}

	if !fresh && intent.Capability.Kind != domain.CapNone && !g.session.State().IsAuthenticated() {
		g.session.CheckSessionValidity(ctx)
	}

	d := Decide(intent, g.session.State())
	g.log.Debug().
		Str("route", string(intent.Name)).
		Str("path", intent.FullPath).
		Str("decision", d.String()).
		Msg("navigation guarded")
	for _, h := range g.hooks {
		h(intent, d)
	}
	return d
}
