package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// UsageEvent is a single metered-usage report submitted to the external
// billing provider. CustomerID is the provider's identifier, sourced from
// the tenant's BillingCustomerLink, never invented locally.
type UsageEvent struct {
	CustomerID string `json:"customer_id"`
	Feature    string `json:"feature"`
	Quantity   int64  `json:"quantity"`
	Timestamp  int64  `json:"timestamp"`
}

// MeteringClient talks to the external metered-billing provider.
type MeteringClient interface {
	SubmitUsage(ctx context.Context, event *UsageEvent) error
}

type meteringClient struct {
	apiKey    string
	apiSecret string
	baseURL   string
	http      *http.Client
}

// NewMeteringClient creates a client for the metered-billing API.
func NewMeteringClient(apiKey, apiSecret, baseURL string) MeteringClient {
	return &meteringClient{
		apiKey:    apiKey,
		apiSecret: apiSecret,
		baseURL:   baseURL,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

func (c *meteringClient) SubmitUsage(ctx context.Context, event *UsageEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode usage event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/usage_events", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build usage request: %w", err)
	}
	req.SetBasicAuth(c.apiKey, c.apiSecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("usage event submission failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("usage event rejected by provider: status %d: %s", resp.StatusCode, string(body))
	}
	return nil
}
