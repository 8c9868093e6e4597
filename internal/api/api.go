package api

import (
	"fmt"
	"net/http"

	"lead-routing-backend/internal/database"
	"lead-routing-backend/internal/queue"
	"lead-routing-backend/internal/service/agent"
	"lead-routing-backend/internal/service/ingest"
	"lead-routing-backend/internal/service/lead"
	"lead-routing-backend/internal/service/message"
	"lead-routing-backend/internal/service/routing"
	"lead-routing-backend/internal/websocket"

	"github.com/prometheus/client_golang/prometheus"
)

type RouteRegistrar func(mux *http.ServeMux, s *APIServer)

// Services bundles the constructed domain services so registrars share a
// single wired instance of each instead of rebuilding them per route group.
type Services struct {
	Leads    *lead.Service
	Routing  *routing.Service
	Messages *message.Service
	Agents   *agent.Service
	Ingest   *ingest.Service
}

type APIServer struct {
	listenAddr          string
	requestQueueManager *queue.RequestQueueManager
	db                  *database.Database
	services            Services
	routeRegistrars     []RouteRegistrar
	handler             *websocket.Handler
	metrics             *metrics
}

func NewAPIServer(listenAddr string, rqm *queue.RequestQueueManager, db *database.Database, handler *websocket.Handler, services Services, registrars ...RouteRegistrar) *APIServer {
	return &APIServer{
		listenAddr:          listenAddr,
		requestQueueManager: rqm,
		db:                  db,
		services:            services,
		handler:             handler,
		routeRegistrars:     registrars,
		metrics:             newMetrics(prometheus.DefaultRegisterer, listenAddr, rqm),
	}
}

func (s *APIServer) Run() {
	mux := http.NewServeMux()

	for _, reg := range s.routeRegistrars {
		reg(mux, s)
	}

	mux.Handle("/metrics", s.metrics.metricsHandler())

	fmt.Printf("Server listening on http://localhost%s\n", s.listenAddr)

	if err := http.ListenAndServe(s.listenAddr, s.metrics.instrument(mux)); err != nil {
		fmt.Printf("server stopped: %v\n", err)
	}
}

func (s *APIServer) Database() *database.Database {
	return s.db
}

func (s *APIServer) Handler() *websocket.Handler {
	return s.handler
}

func (s *APIServer) Services() Services {
	return s.services
}
