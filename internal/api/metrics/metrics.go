// Package metrics defines the custom Prometheus metrics of the auth server and
// the session client. Metrics register with the default registry on import.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/prontuario/proamp/internal/core/domain"
)

const namespace = "proamp"

// ── Server metrics ────────────────────────────────────────────────────────────

// LoginsTotal counts login attempts.
// Labels:
//   - result: "success", "invalid_credentials", "invalid" or "error"
//   - mode: "persistent" or "browser_close" ("" on failure)
var LoginsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "logins_total",
		Help:      "Total number of login attempts, by result and session mode.",
	},
	[]string{"result", "mode"},
)

// SessionChecksTotal counts check-auth answers.
// Label:
//   - result: "authenticated" or "anonymous"
var SessionChecksTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "session_checks_total",
		Help:      "Total number of session checks, by result.",
	},
	[]string{"result"},
)

// PasswordChangesTotal counts successful password changes.
// Label:
//   - kind: "forced" when the change cleared a pending requirement, else "voluntary"
var PasswordChangesTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "password_changes_total",
		Help:      "Total number of successful password changes.",
	},
	[]string{"kind"},
)

// ── Client metrics ────────────────────────────────────────────────────────────

// GuardDecisionsTotal counts route guard outcomes.
// Labels:
//   - route: the destination route name
//   - decision: "allow" or the redirect target
var GuardDecisionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "guard_decisions_total",
		Help:      "Total number of route guard decisions, by route and outcome.",
	},
	[]string{"route", "decision"},
)

// RecordGuardDecision has the shape of a guard decision hook.
func RecordGuardDecision(intent domain.NavIntent, d domain.Decision) {
	outcome := "allow"
	if !d.Allow {
		outcome = string(d.Redirect)
	}
	GuardDecisionsTotal.WithLabelValues(string(intent.Name), outcome).Inc()
}
