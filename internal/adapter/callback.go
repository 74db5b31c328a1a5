package adapter

import (
	"fmt"
	"strings"

	"github.com/careloop/reminder-engine/internal/domain"
)

// StatusCallback is the normalized form of an asynchronous provider
// delivery-status callback, decoupling the reconciler from any one
// provider's wire format.
type StatusCallback struct {
	ProviderMessageID string
	Status            domain.LogStatus
	Destination       string
	Raw               map[string]any
}

var (
	messageIDKeys   = []string{"messageId", "message_id", "MessageSid", "sid", "id"}
	statusKeys      = []string{"status", "MessageStatus", "event", "delivery_status"}
	destinationKeys = []string{"to", "To", "destination", "recipient"}
)

// NormalizeCallback extracts {provider_message_id, status, destination} from a
// provider-specific callback payload. A payload without a message id is still
// usable when it names a destination; it fails only when neither is present or
// the status is unrecognizable. Callers still acknowledge the provider.
func NormalizeCallback(payload map[string]any) (StatusCallback, error) {
	messageID := firstString(payload, messageIDKeys)
	destination := firstString(payload, destinationKeys)
	if messageID == "" && destination == "" {
		return StatusCallback{}, fmt.Errorf("callback payload carries neither message id nor destination")
	}

	rawStatus := firstString(payload, statusKeys)
	status, ok := mapProviderStatus(rawStatus)
	if !ok {
		return StatusCallback{}, fmt.Errorf("callback payload carries unknown status %q", rawStatus)
	}

	return StatusCallback{
		ProviderMessageID: messageID,
		Status:            status,
		Destination:       destination,
		Raw:               payload,
	}, nil
}

func mapProviderStatus(raw string) (domain.LogStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "delivered", "delivrd", "read":
		return domain.LogStatusDelivered, true
	case "failed", "undelivered", "undeliverable", "bounced", "rejected", "expired":
		return domain.LogStatusFailed, true
	case "sent", "accepted", "queued", "dispatched":
		return domain.LogStatusSent, true
	default:
		return "", false
	}
}

func firstString(payload map[string]any, keys []string) string {
	for _, key := range keys {
		if raw, ok := payload[key]; ok {
			if value, ok := raw.(string); ok {
				if trimmed := strings.TrimSpace(value); trimmed != "" {
					return trimmed
				}
			}
		}
	}
	return ""
}
