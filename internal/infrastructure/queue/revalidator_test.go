package queue

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

type stubVerifier struct {
	authenticated atomic.Bool
	valid         atomic.Bool
	checks        atomic.Int32
}

func (v *stubVerifier) IsAuthenticated() bool { return v.authenticated.Load() }

func (v *stubVerifier) CheckSessionValidity(context.Context) bool {
	v.checks.Add(1)
	ok := v.valid.Load()
	if !ok {
		v.authenticated.Store(false)
	}
	return ok
}

func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("condition not met in time")
}

func TestRevalidator_Trigger(t *testing.T) {
	v := &stubVerifier{}
	v.authenticated.Store(true)
	v.valid.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRevalidator(v, 0, zerolog.Nop())
	r.Start(ctx)

	r.Trigger()
	eventually(t, func() bool { return v.checks.Load() == 1 })
}

func TestRevalidator_SkipsWhenSignedOut(t *testing.T) {
	v := &stubVerifier{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRevalidator(v, time.Millisecond, zerolog.Nop())
	r.Start(ctx)

	time.Sleep(20 * time.Millisecond)
	if v.checks.Load() != 0 {
		t.Fatalf("expected no checks while signed out, got %d", v.checks.Load())
	}
}

func TestRevalidator_Interval(t *testing.T) {
	v := &stubVerifier{}
	v.authenticated.Store(true)
	v.valid.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRevalidator(v, 2*time.Millisecond, zerolog.Nop())
	r.Start(ctx)

	eventually(t, func() bool { return v.checks.Load() >= 3 })
}

func TestRevalidator_SessionLost(t *testing.T) {
	v := &stubVerifier{}
	v.authenticated.Store(true)

	var lost atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	r := NewRevalidator(v, 0, zerolog.Nop())
	r.OnSessionLost(func() { lost.Add(1) })
	r.Start(ctx)

	r.Trigger()
	eventually(t, func() bool { return lost.Load() == 1 })

	r.Trigger()
	time.Sleep(10 * time.Millisecond)
	if v.checks.Load() != 1 || lost.Load() != 1 {
		t.Fatalf("expected no further checks once signed out: checks=%d lost=%d", v.checks.Load(), lost.Load())
	}
}

func TestRevalidator_StopsOnCancel(t *testing.T) {
	v := &stubVerifier{}
	v.authenticated.Store(true)
	v.valid.Store(true)

	ctx, cancel := context.WithCancel(context.Background())
	r := NewRevalidator(v, 0, zerolog.Nop())
	r.Start(ctx)
	cancel()
	time.Sleep(5 * time.Millisecond)

	r.Trigger()
	time.Sleep(10 * time.Millisecond)
	if v.checks.Load() != 0 {
		t.Fatalf("expected no checks after cancel, got %d", v.checks.Load())
	}
}
