package observability

import "github.com/prometheus/client_golang/prometheus"

// Domain metrics. HTTP traffic metrics live in the middleware package.
var (
	// ComplaintsSubmitted counts persisted complaints.
	ComplaintsSubmitted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "complaints_submitted_total",
			Help: "Complaints persisted, by classification and input modality.",
		},
		[]string{"issue_type", "severity", "modality"},
	)

	// Classifications counts classifier answers. outcome is one of
	// ok, fallback (primary failed, keyword rules answered), coerced
	// (upstream value outside the taxonomy was corrected) or empty.
	Classifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifications_total",
			Help: "Classification results by provider and outcome.",
		},
		[]string{"provider", "outcome"},
	)

	// StatusTransitions counts committed status changes.
	StatusTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "status_transitions_total",
			Help: "Committed complaint status transitions.",
		},
		[]string{"from", "to"},
	)

	// Notifications counts delivery attempts per channel.
	Notifications = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_total",
			Help: "Citizen notification attempts by channel and outcome.",
		},
		[]string{"channel", "outcome"},
	)
)

func init() {
	prometheus.MustRegister(ComplaintsSubmitted, Classifications, StatusTransitions, Notifications)
}
