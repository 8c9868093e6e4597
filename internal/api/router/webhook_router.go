package router

import (
	"net/http"

	"lead-routing-backend/internal/api"
	"lead-routing-backend/internal/api/endpoints"
	"lead-routing-backend/internal/env"
)

func WebhookRoutes(prefix string) api.RouteRegistrar {
	return func(mux *http.ServeMux, s *api.APIServer) {
		webhookEndpoints := endpoints.NewWebhookEndpoints(s.Services().Ingest, env.Get(env.WebhookVerifyToken))
		mux.HandleFunc(prefix+"/webhook", s.MakeHTTPHandleFunc(webhookEndpoints.Webhook))
	}
}
