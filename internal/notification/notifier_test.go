package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"backend/internal/config"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDetails() LoanDetails {
	return LoanDetails{
		ApplicationID:          "7b0e8f7e-1111-2222-3333-444455556666",
		FullName:               "Maria Lopez",
		DNI:                    "45678912",
		Phone:                  "+51987654321",
		Email:                  "maria@example.com",
		Address:                "Av. Arequipa 1234, Lima",
		Amount:                 2500,
		EmploymentStatus:       "employed",
		MonthlyIncome:          3200,
		LoanPurpose:            "Capital de trabajo para mi negocio",
		PreferredContactMethod: "whatsapp",
	}
}

func testDispatcher(cfg config.NotificationConfig, resendURL, twilioURL string) *dispatcher {
	return &dispatcher{
		cfg:           cfg,
		client:        &http.Client{Timeout: 5 * time.Second},
		resendURL:     resendURL,
		twilioBaseURL: twilioURL,
	}
}

func TestNotifySendsBothChannels(t *testing.T) {
	resend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer re-key", r.Header.Get("Authorization"))

		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Contains(t, payload["subject"], "Maria Lopez")
		assert.Contains(t, payload["html"], "45678912")

		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email-123"})
	}))
	defer resend.Close()

	var twilioForm string
	twilio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, _, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC123", user)

		body, _ := io.ReadAll(r.Body)
		twilioForm = string(body)
		_, _ = w.Write([]byte(`{"sid":"SM1"}`))
	}))
	defer twilio.Close()

	d := testDispatcher(config.NotificationConfig{
		ResendAPIKey:       "re-key",
		EmailFrom:          "Préstamos <onboarding@resend.dev>",
		EmailTo:            "staff@example.com",
		TwilioAccountSID:   "AC123",
		TwilioAuthToken:    "token",
		TwilioWhatsAppFrom: "whatsapp:+14155238886",
		TwilioWhatsAppTo:   "whatsapp:+51911111111",
	}, resend.URL, twilio.URL)

	result, err := d.NotifyDetailsSubmitted(context.Background(), testDetails())
	require.NoError(t, err)

	assert.Equal(t, "email-123", result.EmailID)
	assert.Equal(t, "sent", result.WhatsAppInfo)
	assert.Contains(t, twilioForm, "whatsapp")
}

func TestNotifyWhatsAppFailureDoesNotFailDispatch(t *testing.T) {
	resend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email-456"})
	}))
	defer resend.Close()

	twilio := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid number"}`, http.StatusBadRequest)
	}))
	defer twilio.Close()

	d := testDispatcher(config.NotificationConfig{
		ResendAPIKey:       "re-key",
		EmailTo:            "staff@example.com",
		TwilioAccountSID:   "AC123",
		TwilioAuthToken:    "token",
		TwilioWhatsAppFrom: "whatsapp:+1",
		TwilioWhatsAppTo:   "whatsapp:+2",
	}, resend.URL, twilio.URL)

	result, err := d.NotifyDetailsSubmitted(context.Background(), testDetails())
	require.NoError(t, err, "WhatsApp failure must not fail the dispatch")

	assert.Equal(t, "email-456", result.EmailID)
	assert.True(t, strings.HasPrefix(result.WhatsAppInfo, "failed:"), "got %q", result.WhatsAppInfo)
}

func TestNotifySkipsWhatsAppWhenUnconfigured(t *testing.T) {
	resend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{"id": "email-789"})
	}))
	defer resend.Close()

	d := testDispatcher(config.NotificationConfig{
		ResendAPIKey: "re-key",
		EmailTo:      "staff@example.com",
	}, resend.URL, "http://twilio.invalid")

	result, err := d.NotifyDetailsSubmitted(context.Background(), testDetails())
	require.NoError(t, err)
	assert.Equal(t, "sent", result.WhatsAppInfo)
}

func TestNotifyEmailFailureFailsDispatch(t *testing.T) {
	resend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"message":"invalid api key"}`, http.StatusUnauthorized)
	}))
	defer resend.Close()

	d := testDispatcher(config.NotificationConfig{
		ResendAPIKey: "bad-key",
		EmailTo:      "staff@example.com",
	}, resend.URL, "http://twilio.invalid")

	_, err := d.NotifyDetailsSubmitted(context.Background(), testDetails())
	require.Error(t, err)
	assert.Equal(t, apperror.KindUpstreamUnavailable, apperror.KindOf(err))
}

func TestNotifyEmailUnconfigured(t *testing.T) {
	d := testDispatcher(config.NotificationConfig{}, "http://resend.invalid", "http://twilio.invalid")

	_, err := d.NotifyDetailsSubmitted(context.Background(), testDetails())
	require.Error(t, err)
	assert.Equal(t, apperror.KindUpstreamUnavailable, apperror.KindOf(err))
}

func TestRenderEmailHTML(t *testing.T) {
	html := renderEmailHTML(testDetails(), "WhatsApp", "https://admin.example.com")

	assert.Contains(t, html, "Maria Lopez")
	assert.Contains(t, html, "S/ 2500.00")
	assert.Contains(t, html, "https://admin.example.com")
	assert.Contains(t, html, "Capital de trabajo")
}
