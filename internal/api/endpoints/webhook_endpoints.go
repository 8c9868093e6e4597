package endpoints

import (
	"fmt"
	"io"
	"net/http"

	"lead-routing-backend/internal/service/ingest"
)

type WebhookEndpoints interface {
	Webhook(http.ResponseWriter, *http.Request) error
}

type webhookEndpoints struct {
	service     *ingest.Service
	verifyToken string
}

func NewWebhookEndpoints(service *ingest.Service, verifyToken string) WebhookEndpoints {
	return &webhookEndpoints{
		service:     service,
		verifyToken: verifyToken,
	}
}

func (h *webhookEndpoints) Webhook(w http.ResponseWriter, r *http.Request) error {
	return MethodHandler(w, r, map[string]func(http.ResponseWriter, *http.Request) error{
		http.MethodGet:  h.handleVerify,
		http.MethodPost: h.handleReceive,
	})
}

// handleVerify answers the provider's subscription handshake. The challenge
// is echoed back verbatim only when the shared verify token matches.
func (h *webhookEndpoints) handleVerify(w http.ResponseWriter, r *http.Request) error {
	token := r.URL.Query().Get("verify_token")
	challenge := r.URL.Query().Get("challenge")

	if h.verifyToken == "" || token != h.verifyToken {
		return &HTTPError{
			StatusCode: http.StatusForbidden,
			Message:    "Verification failed",
			ErrorLog:   fmt.Errorf("webhook verify token mismatch"),
		}
	}

	w.WriteHeader(http.StatusOK)
	_, err := w.Write([]byte(challenge))
	return err
}

// handleReceive always acknowledges with 200. The provider retries on
// non-2xx responses, so processing failures are logged inside the ingest
// pipeline instead of being surfaced here.
func (h *webhookEndpoints) handleReceive(w http.ResponseWriter, r *http.Request) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		body = nil
	}

	h.service.Ingest(r.Context(), body)

	return WriteJSON(w, http.StatusOK, ApiMessageResponse{Message: "ok"})
}
