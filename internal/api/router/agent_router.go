package router

import (
	"net/http"

	"lead-routing-backend/internal/api"
	"lead-routing-backend/internal/api/endpoints"
	"lead-routing-backend/internal/api/middleware"
)

func AgentRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		agentEndpoints := endpoints.NewAgentEndpoints(s.Services().Agents, prefix)
		mux.HandleFunc(prefix+"/agents", s.MakeHTTPHandleFunc(agentEndpoints.Agents))
		mux.HandleFunc(prefix+"/agents/sign-in", s.MakeHTTPHandleFunc(agentEndpoints.SignIn))
		mux.HandleFunc(prefix+"/agents/refresh", s.MakeHTTPHandleFunc(agentEndpoints.Refresh))
		mux.HandleFunc(prefix+"/agents/", s.MakeHTTPHandleFunc(agentEndpoints.Agent, middleware.ValidateAgentJWT))
	}
}
