package health

import "time"

// transition is one named predicate of the status state machine. The first
// matching predicate wins; order encodes priority.
type transition struct {
	Name string
	When func(errorRate float64, avgLatency, slow time.Duration) bool
	To   Status
}

// Transitions is the ordered rule table:
// error rate >= 50% -> FAILED, >= 15% -> FAILING, >= 5% or slow -> DEGRADED,
// otherwise HEALTHY.
var Transitions = []transition{
	{
		Name: "error_rate_critical",
		When: func(er float64, _, _ time.Duration) bool { return er >= 0.50 },
		To:   StatusFailed,
	},
	{
		Name: "error_rate_elevated",
		When: func(er float64, _, _ time.Duration) bool { return er >= 0.15 },
		To:   StatusFailing,
	},
	{
		Name: "error_rate_or_latency_degraded",
		When: func(er float64, avg, slow time.Duration) bool {
			return er >= 0.05 || avg > slow
		},
		To: StatusDegraded,
	},
}

// Evaluate derives a status purely from the window aggregates. Replaying the
// same window always yields the same status.
func Evaluate(errorRate float64, avgLatency, slowThreshold time.Duration) Status {
	for _, tr := range Transitions {
		if tr.When(errorRate, avgLatency, slowThreshold) {
			return tr.To
		}
	}
	return StatusHealthy
}
