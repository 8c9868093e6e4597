package websocket

import "github.com/prometheus/client_golang/prometheus"

var (
	wsConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lead_router_ws_connections",
			Help: "Current number of active websocket connections.",
		},
	)
	wsRooms = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lead_router_ws_rooms",
			Help: "Current number of websocket rooms.",
		},
	)
	wsMessagesDelivered = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "lead_router_ws_messages_delivered_total",
			Help: "Total websocket messages delivered to clients.",
		},
	)
	wsInboundEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_router_ws_inbound_events_total",
			Help: "Typed events received from connected clients.",
		},
		[]string{"event"},
	)
)

func init() {
	prometheus.MustRegister(wsConnections, wsRooms, wsMessagesDelivered, wsInboundEvents)
}

func incConnections() {
	wsConnections.Inc()
}

func decConnections() {
	wsConnections.Dec()
}

func setRooms(count int) {
	wsRooms.Set(float64(count))
}

func addDelivered(count int) {
	wsMessagesDelivered.Add(float64(count))
}

func countInboundEvent(event string) {
	wsInboundEvents.WithLabelValues(event).Inc()
}
