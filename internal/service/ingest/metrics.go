package ingest

import "github.com/prometheus/client_golang/prometheus"

var (
	ingestedMessages = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_router_ingested_messages_total",
			Help: "Inbound provider messages stored by the webhook pipeline.",
		},
	)
	duplicateDeliveries = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_router_duplicate_deliveries_total",
			Help: "Webhook deliveries dropped because the provider message id was already stored.",
		},
	)
	droppedPayloads = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_router_dropped_payloads_total",
			Help: "Webhook deliveries that could not be parsed or processed.",
		},
	)
)

func init() {
	prometheus.MustRegister(ingestedMessages, duplicateDeliveries, droppedPayloads)
}
