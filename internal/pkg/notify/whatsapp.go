package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/StudioLienzo/CanvasShop/app/models"
	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
)

const defaultWhatsAppAPIBaseURL = "https://graph.facebook.com/v19.0"

// WhatsAppNotifier sends order confirmations through the WhatsApp Cloud API.
type WhatsAppNotifier struct {
	AccessToken   string
	PhoneNumberID string
	APIBaseURL    string

	HTTPClient *http.Client
}

// NewWhatsAppNotifierFromEnv builds the notifier from WHATSAPP_ACCESS_TOKEN,
// WHATSAPP_PHONE_NUMBER_ID and WHATSAPP_API_BASE_URL.
func NewWhatsAppNotifierFromEnv() *WhatsAppNotifier {
	return &WhatsAppNotifier{
		AccessToken:   strings.TrimSpace(env.GetEnv("WHATSAPP_ACCESS_TOKEN", "")),
		PhoneNumberID: strings.TrimSpace(env.GetEnv("WHATSAPP_PHONE_NUMBER_ID", "")),
		APIBaseURL:    strings.TrimRight(env.GetEnv("WHATSAPP_API_BASE_URL", defaultWhatsAppAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type whatsAppMessage struct {
	MessagingProduct string           `json:"messaging_product"`
	To               string           `json:"to"`
	Type             string           `json:"type"`
	Text             whatsAppTextBody `json:"text"`
}

type whatsAppTextBody struct {
	Body string `json:"body"`
}

// NotifyOrderPaid sends the paid-order confirmation to the customer's phone.
func (n *WhatsAppNotifier) NotifyOrderPaid(ctx context.Context, order *models.Order) error {
	if n.AccessToken == "" || n.PhoneNumberID == "" {
		return errors.New("whatsapp notifier is not configured")
	}
	phone := strings.TrimSpace(order.CustomerPhone)
	if phone == "" {
		return fmt.Errorf("order %d has no customer phone", order.ID)
	}

	msg := whatsAppMessage{
		MessagingProduct: "whatsapp",
		To:               phone,
		Type:             "text",
		Text: whatsAppTextBody{
			Body: fmt.Sprintf("Hi %s! Your payment was confirmed and order #%d is now being prepared. Thank you for shopping with us.", order.CustomerName, order.ID),
		},
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/%s/messages", n.APIBaseURL, n.PhoneNumberID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+n.AccessToken)
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("whatsapp api request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
		return fmt.Errorf("whatsapp api returned status=%d body=%s", resp.StatusCode, string(body))
	}
	return nil
}
