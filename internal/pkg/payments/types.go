package payments

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Webhook event types the processor sends. Only payment events carry work;
// everything else is acknowledged and marked processed as a no-op.
const (
	EventTypePayment        = "payment"
	EventTypePlan           = "plan"
	EventTypeSubscription   = "subscription"
	EventTypeInvoice        = "invoice"
	EventTypePOSIntegration = "point_integration_wh"
)

var payloadValidator = validator.New()

// FlexibleID is an identifier the processor serializes either as a JSON
// string or as a bare number, depending on the event type. Both decode to
// their string form; string ids are not required to be numeric.
type FlexibleID string

func (f *FlexibleID) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "" || s == "null" {
		*f = ""
		return nil
	}
	if s[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*f = FlexibleID(v)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = FlexibleID(n.String())
	return nil
}

func (f FlexibleID) String() string {
	return string(f)
}

// WebhookPayload is the envelope shared by all processor notifications:
// {"type": "payment", "action": "payment.updated", "data": {"id": "123"},
// "live_mode": true}. Nested fields are typed here and validated at the
// boundary instead of being optional-chained through business logic.
type WebhookPayload struct {
	ID          FlexibleID  `json:"id"`
	Type        string      `json:"type" validate:"required"`
	Action      string      `json:"action"`
	LiveMode    bool        `json:"live_mode"`
	DateCreated string      `json:"date_created"`
	UserID      FlexibleID  `json:"user_id"`
	Data        WebhookData `json:"data"`
}

// WebhookData is the nested data object of a notification.
type WebhookData struct {
	ID FlexibleID `json:"id"`
}

// PaymentNotification is the variant of WebhookPayload carrying a
// processable payment reference.
type PaymentNotification struct {
	PaymentID string
	Action    string
	LiveMode  bool
}

// ParseWebhookPayload decodes and validates a raw webhook body.
func ParseWebhookPayload(raw []byte) (*WebhookPayload, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	if err := payloadValidator.Struct(&payload); err != nil {
		return nil, fmt.Errorf("invalid webhook body: %w", err)
	}
	return &payload, nil
}

// PaymentEvent returns the payment variant of the payload, or ok=false for
// event types that require no processing.
func (p *WebhookPayload) PaymentEvent() (*PaymentNotification, bool, error) {
	if !strings.EqualFold(strings.TrimSpace(p.Type), EventTypePayment) {
		return nil, false, nil
	}
	id := strings.TrimSpace(p.Data.ID.String())
	if id == "" {
		return nil, false, errors.New("payment webhook without data.id")
	}
	return &PaymentNotification{
		PaymentID: id,
		Action:    strings.TrimSpace(p.Action),
		LiveMode:  p.LiveMode,
	}, true, nil
}

// ProviderPayment is the authoritative payment object fetched from the
// processor API. Webhook payloads are never trusted for status; this is the
// single source of truth.
type ProviderPayment struct {
	ID                string
	Status            string
	StatusDetail      string
	ExternalReference string
	TransactionAmount float64
	PaymentMethodID   string
	RawJSON           string
}
