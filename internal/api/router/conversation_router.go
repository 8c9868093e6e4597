package router

import (
	"net/http"

	"lead-routing-backend/internal/api"
	"lead-routing-backend/internal/api/endpoints"
	"lead-routing-backend/internal/api/middleware"
)

func ConversationRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		convEndpoints := endpoints.NewConversationEndpoints(
			s.Services().Routing,
			s.Services().Messages,
			s.Services().Leads,
			prefix,
		)
		mux.HandleFunc(prefix+"/conversations", s.MakeHTTPHandleFunc(convEndpoints.Conversations, middleware.ValidateAgentJWT))
		mux.HandleFunc(prefix+"/conversations/", s.MakeHTTPHandleFunc(convEndpoints.Conversation, middleware.ValidateAgentJWT))
		mux.HandleFunc(prefix+"/queue", s.MakeHTTPHandleFunc(convEndpoints.Queue, middleware.ValidateAgentJWT))
	}
}
