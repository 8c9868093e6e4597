package whatsapp

import "testing"

const inboundPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "1",
		"changes": [{
			"field": "messages",
			"value": {
				"contacts": [{"wa_id": "5511999990000", "profile": {"name": "Maria"}}],
				"messages": [{
					"id": "wamid.ABC",
					"from": "5511999990000",
					"type": "text",
					"timestamp": "1700000000",
					"text": {"body": "hello"}
				}]
			}
		}]
	}]
}`

const statusPayload = `{
	"object": "whatsapp_business_account",
	"entry": [{
		"id": "1",
		"changes": [{
			"field": "messages",
			"value": {
				"statuses": [{"id": "wamid.ABC", "status": "delivered", "timestamp": "1700000100"}]
			}
		}]
	}]
}`

func TestParseWebhookMessage(t *testing.T) {
	msg, status, err := ParseWebhook([]byte(inboundPayload))
	if err != nil {
		t.Fatalf("ParseWebhook error: %v", err)
	}
	if status != nil {
		t.Fatal("expected message, got status update")
	}
	if msg == nil {
		t.Fatal("expected message")
	}
	if msg.ProviderMessageID != "wamid.ABC" {
		t.Fatalf("unexpected provider id %s", msg.ProviderMessageID)
	}
	if msg.From != "5511999990000" {
		t.Fatalf("unexpected sender %s", msg.From)
	}
	if msg.ProfileName != "Maria" {
		t.Fatalf("unexpected profile name %s", msg.ProfileName)
	}
	if msg.Body != "hello" {
		t.Fatalf("unexpected body %s", msg.Body)
	}
	if msg.SentAt.IsZero() {
		t.Fatal("expected parsed timestamp")
	}
}

func TestParseWebhookStatus(t *testing.T) {
	msg, status, err := ParseWebhook([]byte(statusPayload))
	if err != nil {
		t.Fatalf("ParseWebhook error: %v", err)
	}
	if msg != nil {
		t.Fatal("expected status update, got message")
	}
	if status == nil {
		t.Fatal("expected status update")
	}
	if status.ProviderMessageID != "wamid.ABC" || status.Status != "delivered" {
		t.Fatalf("unexpected status update %+v", status)
	}
}

func TestParseWebhookUnrecognized(t *testing.T) {
	if _, _, err := ParseWebhook([]byte(`{"object":"whatsapp_business_account","entry":[]}`)); err != ErrUnrecognizedPayload {
		t.Fatalf("expected ErrUnrecognizedPayload, got %v", err)
	}
	if _, _, err := ParseWebhook([]byte(`not json`)); err == nil {
		t.Fatal("expected decode error")
	}
}
