package payments

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/StudioLienzo/CanvasShop/internal/pkg/env"
)

const defaultAPIBaseURL = "https://api.mercadopago.com"

// ErrPaymentNotFound is returned when the processor API has no payment for
// the requested id.
var ErrPaymentNotFound = errors.New("payment not found at processor")

// Client talks to the payment processor's REST API. All calls use a bounded
// timeout; a timeout is a transient failure, never a definitive outcome.
type Client struct {
	AccessToken string
	APIBaseURL  string

	HTTPClient *http.Client
}

// NewClientFromEnv builds a Client from MP_ACCESS_TOKEN, MP_API_BASE_URL and
// MP_HTTP_TIMEOUT_SECONDS.
func NewClientFromEnv() *Client {
	timeout := 5 * time.Second
	if raw := strings.TrimSpace(env.GetEnv("MP_HTTP_TIMEOUT_SECONDS", "")); raw != "" {
		if secs, err := strconv.Atoi(raw); err == nil && secs > 0 {
			timeout = time.Duration(secs) * time.Second
		}
	}
	return &Client{
		AccessToken: strings.TrimSpace(env.GetEnv("MP_ACCESS_TOKEN", "")),
		APIBaseURL:  strings.TrimRight(env.GetEnv("MP_API_BASE_URL", defaultAPIBaseURL), "/"),
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type providerPaymentResponse struct {
	ID                FlexibleID `json:"id"`
	Status            string     `json:"status"`
	StatusDetail      string     `json:"status_detail"`
	ExternalReference string     `json:"external_reference"`
	TransactionAmount float64    `json:"transaction_amount"`
	PaymentMethodID   string     `json:"payment_method_id"`
}

// FetchPayment loads the authoritative payment object for id from the
// processor API.
func (c *Client) FetchPayment(ctx context.Context, id string) (*ProviderPayment, error) {
	if strings.TrimSpace(c.AccessToken) == "" {
		return nil, errors.New("MP_ACCESS_TOKEN is not configured")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("payment id is required")
	}

	endpoint := fmt.Sprintf("%s/v1/payments/%s", c.APIBaseURL, url.PathEscape(id))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+c.AccessToken)
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("processor api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if resp.StatusCode == http.StatusNotFound {
		return nil, fmt.Errorf("%w: id=%s", ErrPaymentNotFound, id)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("processor api returned status=%d body=%s", resp.StatusCode, string(body))
	}

	var out providerPaymentResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("processor api response decode failed: %w", err)
	}

	return &ProviderPayment{
		ID:                out.ID.String(),
		Status:            strings.ToLower(strings.TrimSpace(out.Status)),
		StatusDetail:      out.StatusDetail,
		ExternalReference: strings.TrimSpace(out.ExternalReference),
		TransactionAmount: out.TransactionAmount,
		PaymentMethodID:   out.PaymentMethodID,
		RawJSON:           string(body),
	}, nil
}
