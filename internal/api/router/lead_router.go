package router

import (
	"net/http"

	"lead-routing-backend/internal/api"
	"lead-routing-backend/internal/api/endpoints"
	"lead-routing-backend/internal/api/middleware"
)

func LeadRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		leadEndpoints := endpoints.NewLeadEndpoints(s.Services().Leads, s.Services().Routing, prefix)
		mux.HandleFunc(prefix+"/leads", s.MakeHTTPHandleFunc(leadEndpoints.Leads, middleware.ValidateAgentJWT))
		mux.HandleFunc(prefix+"/leads/", s.MakeHTTPHandleFunc(leadEndpoints.Lead, middleware.ValidateAgentJWT))
	}
}
