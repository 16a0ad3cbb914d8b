package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// Metrics provides observability for the acceptance lifecycle.
// Tracks transition outcomes, sweep results and degraded collaborator calls.
type Metrics struct {
	Proposals            prometheus.Counter
	Transitions          *prometheus.CounterVec
	TransitionDuration   *prometheus.HistogramVec
	Comments             prometheus.Counter
	ExpirySweeps         prometheus.Counter
	Expired              prometheus.Counter
	ExpiryFailures       prometheus.Counter
	LinkedActionFailures prometheus.Counter
	StaleBreachReads     prometheus.Counter
}

// New registers the acceptance metrics on reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Proposals: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_proposals_total",
			Help: "Total number of acceptances proposed",
		}),
		Transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "riskaccept_transitions_total",
			Help: "Lifecycle transitions by action and outcome (applied, rejected, error)",
		}, []string{"action", "outcome"}),
		TransitionDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "riskaccept_transition_duration_seconds",
			Help:    "Duration of lifecycle transitions including directory lookups",
			Buckets: latencyBuckets,
		}, []string{"action"}),
		Comments: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_comments_total",
			Help: "Total number of comments added",
		}),
		ExpirySweeps: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_expiry_sweeps_total",
			Help: "Total number of expiry sweeps run",
		}),
		Expired: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_expired_total",
			Help: "Total number of acceptances expired by the sweep",
		}),
		ExpiryFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_expiry_failures_total",
			Help: "Expiry attempts that failed and will be retried next sweep",
		}),
		LinkedActionFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_linked_action_failures_total",
			Help: "Follow-up action requests that failed after an approval",
		}),
		StaleBreachReads: f.NewCounter(prometheus.CounterOpts{
			Name: "riskaccept_stale_breach_total",
			Help: "Breach verdicts served from a stale snapshot because the risk directory was unavailable",
		}),
	}
}

// ObserveTransition records one transition attempt.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveTransition(action, outcome string, start time.Time) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(action, outcome).Inc()
	m.TransitionDuration.WithLabelValues(action).Observe(time.Since(start).Seconds())
}

func (m *Metrics) IncrementProposals() {
	if m == nil {
		return
	}
	m.Proposals.Inc()
}

func (m *Metrics) IncrementComments() {
	if m == nil {
		return
	}
	m.Comments.Inc()
}

// ObserveSweep records the result of one expiry sweep.
func (m *Metrics) ObserveSweep(expired, failed int) {
	if m == nil {
		return
	}
	m.ExpirySweeps.Inc()
	m.Expired.Add(float64(expired))
	m.ExpiryFailures.Add(float64(failed))
}

func (m *Metrics) IncrementLinkedActionFailures() {
	if m == nil {
		return
	}
	m.LinkedActionFailures.Inc()
}

func (m *Metrics) IncrementStaleBreach() {
	if m == nil {
		return
	}
	m.StaleBreachReads.Inc()
}
