package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"backend/internal/model"
	"backend/internal/notification"
	"backend/internal/service"
	"backend/internal/verification"
	"backend/pkg/apperror"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAppService struct {
	service.ApplicationService

	verifyResult service.VerificationResponse
	verifyErr    error
}

func (s *stubAppService) VerifyDocument(ctx context.Context, applicationID, documentURL string) (service.VerificationResponse, error) {
	if applicationID == "" || documentURL == "" {
		return service.VerificationResponse{}, apperror.Validation("applicationId and documentUrl are required")
	}
	return s.verifyResult, s.verifyErr
}

type stubNotifier struct {
	result notification.DispatchResult
	err    error
}

func (s *stubNotifier) NotifyDetailsSubmitted(ctx context.Context, details notification.LoanDetails) (notification.DispatchResult, error) {
	return s.result, s.err
}

func functionsRouter(appSvc service.ApplicationService, notifier notification.Notifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewFunctionsHandler(appSvc, notifier).RegisterRoutes(router.Group(""))
	return router
}

// Mirrors the wiring in cmd/api/main.go: the function routes are registered
// before the origin-allowlist middleware, so they stay callable from any
// origin even when the rest of the API is locked down.
func TestFunctionRoutesBypassOriginAllowlist(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()

	NewFunctionsHandler(&stubAppService{
		verifyResult: service.VerificationResponse{Status: model.VerificationVerified},
	}, &stubNotifier{}).RegisterRoutes(router.Group(""))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = []string{"http://localhost:5173"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/functions/verify-document", nil)
	req.Header.Set("Origin", "https://frontend.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodPost, "/functions/verify-document",
		strings.NewReader(`{"documentUrl":"https://x/doc.pdf","applicationId":"abc"}`))
	req.Header.Set("Origin", "https://frontend.example.com")
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code, "cross-origin POST must reach the handler")
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerifyDocumentPreflight(t *testing.T) {
	router := functionsRouter(&stubAppService{}, &stubNotifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/functions/verify-document", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestVerifyDocumentSuccessEnvelope(t *testing.T) {
	appSvc := &stubAppService{
		verifyResult: service.VerificationResponse{
			Status: model.VerificationVerified,
			Result: verification.Result{Recommendation: "approve", Confidence: 91, DocumentType: "payslip"},
		},
	}
	router := functionsRouter(appSvc, &stubNotifier{})

	body := `{"documentUrl":"https://storage.example.com/doc.pdf","applicationId":"abc-123"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/verify-document", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))

	var resp struct {
		Success bool                `json:"success"`
		Status  string              `json:"status"`
		Result  verification.Result `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, model.VerificationVerified, resp.Status)
	assert.Equal(t, "approve", resp.Result.Recommendation)
}

func TestVerifyDocumentMissingInput(t *testing.T) {
	router := functionsRouter(&stubAppService{}, &stubNotifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/verify-document", strings.NewReader(`{"documentUrl":""}`))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusInternalServerError, w.Code)

	var resp struct {
		Success bool   `json:"success"`
		Error   string `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
}

func TestVerifyDocumentUpstreamFailure(t *testing.T) {
	appSvc := &stubAppService{verifyErr: apperror.New(apperror.KindRateLimited, "AI gateway rate limit exceeded")}
	router := functionsRouter(appSvc, &stubNotifier{})

	body := `{"documentUrl":"https://x/doc.pdf","applicationId":"abc"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/verify-document", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "rate limit")
}

func TestSendLoanDetailsNotification(t *testing.T) {
	notifier := &stubNotifier{result: notification.DispatchResult{EmailID: "email-1", WhatsAppInfo: "sent"}}
	router := functionsRouter(&stubAppService{}, notifier)

	body := `{"applicationId":"abc","full_name":"Maria Lopez","amount":2500}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/send-loan-details-notification", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success      bool   `json:"success"`
		Email        string `json:"email"`
		WhatsAppInfo string `json:"whatsapp_info"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "email-1", resp.Email)
	assert.Equal(t, "sent", resp.WhatsAppInfo)
}

func TestSendLoanDetailsNotificationFailure(t *testing.T) {
	notifier := &stubNotifier{err: apperror.New(apperror.KindUpstreamUnavailable, "e-mail provider unreachable")}
	router := functionsRouter(&stubAppService{}, notifier)

	body := `{"applicationId":"abc","full_name":"Maria Lopez"}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/functions/send-loan-details-notification", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "unreachable")
}

func TestSendLoanDetailsNotificationPreflight(t *testing.T) {
	router := functionsRouter(&stubAppService{}, &stubNotifier{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/functions/send-loan-details-notification", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
