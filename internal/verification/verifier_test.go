package verification

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/config"
	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const approvedReply = `{
  "isComplete": true,
  "isValid": true,
  "confidence": 92,
  "documentType": "payslip",
  "findings": {"strengths": ["clear scan"], "concerns": [], "missingInformation": []},
  "extractedData": {"name": "Maria Lopez", "idNumber": "45678912", "date": "2025-07-01", "amount": "2500.00"},
  "recommendation": "approve",
  "reason": "Document is complete and legible"
}`

func gatewayReplying(t *testing.T, content string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "google/gemini-2.5-flash", req.Model)
		assert.Len(t, req.Messages, 2)

		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"choices": []map[string]interface{}{
				{"message": map[string]string{"content": content}},
			},
		})
	}))
}

func documentServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("fake-png-bytes"))
	}))
}

func TestVerifyParsesBareJSONReply(t *testing.T) {
	docs := documentServer(t)
	defer docs.Close()
	gateway := gatewayReplying(t, approvedReply)
	defer gateway.Close()

	v := NewGatewayVerifier(config.VerificationConfig{
		GatewayURL: gateway.URL,
		APIKey:     "test-key",
		Model:      "google/gemini-2.5-flash",
	})

	got, err := v.Verify(context.Background(), docs.URL+"/doc.png")
	require.NoError(t, err)

	assert.Equal(t, model.VerificationVerified, got.Status)
	assert.Equal(t, "payslip", got.Result.DocumentType)
	assert.Equal(t, float64(92), got.Result.Confidence)
	require.NotNil(t, got.Result.ExtractedData.Name)
	assert.Equal(t, "Maria Lopez", *got.Result.ExtractedData.Name)
}

func TestVerifyParsesFencedJSONReply(t *testing.T) {
	docs := documentServer(t)
	defer docs.Close()
	gateway := gatewayReplying(t, "```json\n"+approvedReply+"\n```")
	defer gateway.Close()

	v := NewGatewayVerifier(config.VerificationConfig{GatewayURL: gateway.URL, APIKey: "test-key", Model: "google/gemini-2.5-flash"})

	got, err := v.Verify(context.Background(), docs.URL+"/doc.png")
	require.NoError(t, err)
	assert.Equal(t, model.VerificationVerified, got.Status)
	assert.Equal(t, "approve", got.Result.Recommendation)
}

func TestVerifyGarbageReplyFallsBackToReview(t *testing.T) {
	docs := documentServer(t)
	defer docs.Close()
	gateway := gatewayReplying(t, "I could not analyze this document, sorry!")
	defer gateway.Close()

	v := NewGatewayVerifier(config.VerificationConfig{GatewayURL: gateway.URL, APIKey: "test-key", Model: "google/gemini-2.5-flash"})

	got, err := v.Verify(context.Background(), docs.URL+"/doc.pdf")
	require.NoError(t, err, "an unparseable reply must degrade, not fail")

	assert.Equal(t, model.VerificationPending, got.Status)
	assert.Equal(t, "review", got.Result.Recommendation)
	assert.Equal(t, float64(50), got.Result.Confidence)
	assert.NotEmpty(t, got.Result.Findings.Concerns)
}

func TestVerifyGatewayErrorStatuses(t *testing.T) {
	docs := documentServer(t)
	defer docs.Close()

	cases := []struct {
		status int
		kind   apperror.Kind
	}{
		{http.StatusTooManyRequests, apperror.KindRateLimited},
		{http.StatusPaymentRequired, apperror.KindQuotaExceeded},
		{http.StatusInternalServerError, apperror.KindUpstreamUnavailable},
	}

	for _, tc := range cases {
		gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		v := NewGatewayVerifier(config.VerificationConfig{GatewayURL: gateway.URL, APIKey: "test-key", Model: "google/gemini-2.5-flash"})
		_, err := v.Verify(context.Background(), docs.URL+"/doc.png")
		require.Error(t, err)
		assert.Equal(t, tc.kind, apperror.KindOf(err), "status %d", tc.status)

		gateway.Close()
	}
}

func TestVerifyUnfetchableDocument(t *testing.T) {
	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer docs.Close()

	v := NewGatewayVerifier(config.VerificationConfig{GatewayURL: "http://unused.invalid", APIKey: "test-key"})
	_, err := v.Verify(context.Background(), docs.URL+"/missing.pdf")
	require.Error(t, err)
	assert.Equal(t, apperror.KindUpstreamUnavailable, apperror.KindOf(err))
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, model.VerificationVerified, StatusFor(Result{Recommendation: "approve", Confidence: 80}))
	assert.Equal(t, model.VerificationPending, StatusFor(Result{Recommendation: "approve", Confidence: 79}))
	assert.Equal(t, model.VerificationRejected, StatusFor(Result{Recommendation: "reject", Confidence: 95}))
	assert.Equal(t, model.VerificationPending, StatusFor(Result{Recommendation: "review", Confidence: 99}))
	assert.Equal(t, model.VerificationPending, StatusFor(Result{}))
}

func TestMIMETypeFor(t *testing.T) {
	assert.Equal(t, "image/jpeg", MIMETypeFor("https://cdn.example.com/a/b/scan.JPG"))
	assert.Equal(t, "image/jpeg", MIMETypeFor("doc.jpeg"))
	assert.Equal(t, "image/png", MIMETypeFor("doc.png"))
	assert.Equal(t, "application/pdf", MIMETypeFor("doc.pdf"))
	assert.Equal(t, "application/pdf", MIMETypeFor("doc"))
}
