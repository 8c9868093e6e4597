// Package whatsapp speaks the provider's wire formats: the webhook
// payload shapes the ingestion pipeline consumes and the outbound send
// API the gateway client calls.
package whatsapp

import (
	"encoding/json"
	"errors"
	"strconv"
	"time"
)

var ErrUnrecognizedPayload = errors.New("whatsapp: unrecognized webhook payload")

// webhookPayload mirrors the subset of the provider's webhook body the
// core extracts. Everything else in the payload is ignored.
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value changeValue `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

type changeValue struct {
	Contacts []struct {
		WaID    string `json:"wa_id"`
		Profile struct {
			Name string `json:"name"`
		} `json:"profile"`
	} `json:"contacts"`
	Messages []struct {
		ID        string `json:"id"`
		From      string `json:"from"`
		Type      string `json:"type"`
		Timestamp string `json:"timestamp"`
		Text      struct {
			Body string `json:"body"`
		} `json:"text"`
	} `json:"messages"`
	Statuses []struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"statuses"`
}

// InboundMessage is a provider message reduced to the fields the
// ingestion pipeline needs.
type InboundMessage struct {
	ProviderMessageID string
	From              string
	ProfileName       string
	Type              string
	Body              string
	SentAt            time.Time
}

// StatusUpdate is a delivery/read/failure receipt for a previously
// recorded message, keyed by the provider message id.
type StatusUpdate struct {
	ProviderMessageID string
	Status            string
}

// ParseWebhook decodes a raw webhook body as either an inbound message
// or a status update, in that order of preference. It returns
// ErrUnrecognizedPayload when neither shape is present.
func ParseWebhook(raw []byte) (*InboundMessage, *StatusUpdate, error) {
	var payload webhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, nil, err
	}

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			if msg := extractMessage(change.Value); msg != nil {
				return msg, nil, nil
			}
		}
	}
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			for _, st := range change.Value.Statuses {
				if st.ID == "" || st.Status == "" {
					continue
				}
				return nil, &StatusUpdate{
					ProviderMessageID: st.ID,
					Status:            st.Status,
				}, nil
			}
		}
	}

	return nil, nil, ErrUnrecognizedPayload
}

func extractMessage(value changeValue) *InboundMessage {
	for _, m := range value.Messages {
		if m.ID == "" || m.From == "" {
			continue
		}

		msg := &InboundMessage{
			ProviderMessageID: m.ID,
			From:              m.From,
			Type:              m.Type,
			Body:              m.Text.Body,
		}
		if msg.Type == "" {
			msg.Type = "text"
		}
		if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
			msg.SentAt = time.Unix(secs, 0).UTC()
		}

		for _, contact := range value.Contacts {
			if contact.Profile.Name != "" {
				msg.ProfileName = contact.Profile.Name
				break
			}
		}
		return msg
	}
	return nil
}
