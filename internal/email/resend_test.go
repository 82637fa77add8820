package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/civicsquare/server/internal/config"
	"github.com/resend/resend-go/v2"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func resendService(t *testing.T, apiURL string) *Service {
	t.Helper()
	client := resend.NewClient("test-api-key")
	baseURL, err := url.Parse(apiURL)
	require.NoError(t, err)
	client.BaseURL = baseURL

	return &Service{
		config: config.EmailConfig{
			Enabled:      true,
			Provider:     "resend",
			From:         "no-reply@civicsquare.org",
			ResendAPIKey: "test-api-key",
		},
		resendClient: client,
		logger:       zerolog.Nop(),
	}
}

func TestSendViaResend_Success(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/emails" {
			t.Errorf("expected POST /emails, got %s %s", r.Method, r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			t.Errorf("expected Bearer token, got %q", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		var req resend.SendEmailRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "no-reply@civicsquare.org", req.From)
		require.Equal(t, []string{"ada@example.org"}, req.To)
		require.Contains(t, req.Html, "Confirm")

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "mock-email-id-123"})
	}))
	defer mockServer.Close()

	svc := resendService(t, mockServer.URL)
	err := svc.sendViaResend(context.Background(), "ada@example.org", "Confirm your account", "<p>Confirm here</p>")
	require.NoError(t, err)
}

func TestSendViaResend_RateLimit(t *testing.T) {
	mockServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-RateLimit-Limit", "100")
		w.Header().Set("X-RateLimit-Remaining", "0")
		w.Header().Set("X-RateLimit-Reset", "60")
		w.WriteHeader(http.StatusTooManyRequests)
		_ = json.NewEncoder(w).Encode(map[string]string{"message": "Rate limit exceeded"})
	}))
	defer mockServer.Close()

	svc := resendService(t, mockServer.URL)
	err := svc.sendViaResend(context.Background(), "ada@example.org", "Confirm your account", "<p>Confirm here</p>")
	require.Error(t, err)
	require.Contains(t, err.Error(), "rate limit")
}

func TestSendViaResend_NilClient(t *testing.T) {
	svc := &Service{logger: zerolog.Nop()}
	err := svc.sendViaResend(context.Background(), "ada@example.org", "Subject", "<p>Body</p>")
	require.Error(t, err)
}
