package routing

import "github.com/prometheus/client_golang/prometheus"

var (
	routingAssignments = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_router_assignments_total",
			Help: "Total conversations assigned to agents, by pipeline.",
		},
		[]string{"pipeline"},
	)
	routingEnqueued = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_router_enqueued_total",
			Help: "Total conversations placed on the waiting queue, by pipeline.",
		},
		[]string{"pipeline"},
	)
	routingConflictRetries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_router_assignment_conflicts_total",
			Help: "Assignment attempts that lost a conditional write and retried.",
		},
	)
	queueWaiting = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lead_router_queue_waiting",
			Help: "Waiting queue entries observed at the last assignment pass, by pipeline.",
		},
		[]string{"pipeline"},
	)
)

func init() {
	prometheus.MustRegister(routingAssignments, routingEnqueued, routingConflictRetries, queueWaiting)
}

func recordAssignment(pipeline string) {
	routingAssignments.WithLabelValues(pipeline).Inc()
}

func recordEnqueue(pipeline string) {
	routingEnqueued.WithLabelValues(pipeline).Inc()
}

func recordConflictRetry() {
	routingConflictRetries.Inc()
}

func observeQueueDepth(pipeline string, depth int) {
	queueWaiting.WithLabelValues(pipeline).Set(float64(depth))
}
