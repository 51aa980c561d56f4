// Package queue runs background session work outside the request path.
package queue

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Verifier is the part of the session store the revalidator drives.
type Verifier interface {
	IsAuthenticated() bool
	CheckSessionValidity(ctx context.Context) bool
}

// Revalidator re-checks a live session on an interval and on demand, so a
// session ended elsewhere is noticed without waiting for a navigation.
type Revalidator struct {
	session  Verifier
	interval time.Duration
	trigger  chan struct{}
	log      zerolog.Logger
	onLost   func()
}

// NewRevalidator checks every interval; a non-positive interval disables the
// ticker and leaves only Trigger.
func NewRevalidator(session Verifier, interval time.Duration, log zerolog.Logger) *Revalidator {
	return &Revalidator{
		session:  session,
		interval: interval,
		trigger:  make(chan struct{}, 1),
		log:      log,
	}
}

// OnSessionLost registers a callback run when a check finds the session gone.
// Call before Start.
func (r *Revalidator) OnSessionLost(fn func()) {
	r.onLost = fn
}

// Start launches the worker goroutine. It stops when ctx is cancelled.
func (r *Revalidator) Start(ctx context.Context) {
	go r.run(ctx)
}

// Trigger requests a check as soon as possible. Requests made while one is
// already pending are coalesced.
func (r *Revalidator) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Revalidator) run(ctx context.Context) {
	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
		case <-r.trigger:
		}
		r.check(ctx)
	}
}

func (r *Revalidator) check(ctx context.Context) {
	if !r.session.IsAuthenticated() {
		return
	}
	if r.session.CheckSessionValidity(ctx) {
		r.log.Debug().Msg("session still valid")
		return
	}
	r.log.Info().Msg("session no longer valid")
	if r.onLost != nil {
		r.onLost()
	}
}
