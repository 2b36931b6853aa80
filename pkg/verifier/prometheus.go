package verifier

import "github.com/prometheus/client_golang/prometheus"

// Metrics for the verifier service.
var (
	executionsCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Completed contract executions",
			Name:      "executions_completed",
			Namespace: "attestvm",
		},
	)
	executionsFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Contract executions terminated by an error or out of gas",
			Name:      "executions_failed",
			Namespace: "attestvm",
		},
	)
	proofsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Help:      "Execution proofs generated",
			Name:      "proofs_generated",
			Namespace: "attestvm",
		},
	)
)

func init() {
	prometheus.MustRegister(
		executionsCompleted,
		executionsFailed,
		proofsGenerated,
	)
}
