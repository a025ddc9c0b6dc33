package services

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMeteringClientSubmitUsage(t *testing.T) {
	var received *UsageEvent
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/v1/usage_events", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "key", user)
		assert.Equal(t, "secret", pass)

		event := &UsageEvent{}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(event))
		received = event
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewMeteringClient("key", "secret", server.URL)
	err := client.SubmitUsage(context.Background(), &UsageEvent{
		CustomerID: "cus_8841",
		Feature:    "report_generation",
		Quantity:   3,
		Timestamp:  1765000000,
	})
	assert.NoError(t, err)
	assert.Equal(t, "cus_8841", received.CustomerID)
	assert.Equal(t, int64(3), received.Quantity)
}

func TestMeteringClientSubmitUsageServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer server.Close()

	client := NewMeteringClient("key", "secret", server.URL)
	err := client.SubmitUsage(context.Background(), &UsageEvent{CustomerID: "cus_8841"})
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "rate limited")
}
