package router

import (
	"net/http"

	"lead-routing-backend/internal/api"
	"lead-routing-backend/internal/api/endpoints"
	"lead-routing-backend/internal/api/middleware"
)

func WebsocketRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		wsEndpoints := endpoints.NewWebsocketEndpoints(s.Handler(), prefix)
		mux.HandleFunc(prefix+"/ws/events", s.MakeHTTPHandleFunc(wsEndpoints.EventsWebsocket))
		mux.HandleFunc(prefix+"/ws/agent", s.MakeHTTPHandleFunc(wsEndpoints.AgentWebsocket))
		mux.HandleFunc(prefix+"/ws/conversations/", s.MakeHTTPHandleFunc(wsEndpoints.ConversationWebsocket))

		// Room inventory, handy when debugging fan-out.
		mux.HandleFunc(prefix+"/ws/rooms", s.MakeHTTPHandleFunc(func(w http.ResponseWriter, r *http.Request) error {
			s.Handler().GetRooms(w, r)
			return nil
		}, middleware.ValidateAgentJWT))
	}
}
