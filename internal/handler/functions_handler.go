package handler

import (
	"net/http"

	"backend/internal/notification"
	"backend/internal/service"

	"github.com/gin-gonic/gin"
)

// FunctionsHandler exposes the two endpoints the upload widget and the detail
// form call directly from the browser. They keep their own permissive CORS
// and flat JSON envelopes so existing frontend clients keep working.
type FunctionsHandler struct {
	appService service.ApplicationService
	notifier   notification.Notifier
}

func NewFunctionsHandler(appService service.ApplicationService, notifier notification.Notifier) *FunctionsHandler {
	return &FunctionsHandler{appService: appService, notifier: notifier}
}

// RegisterRoutes binds the function endpoints with their preflight handlers
func (h *FunctionsHandler) RegisterRoutes(router *gin.RouterGroup) {
	fns := router.Group("/functions", functionCORS())
	{
		fns.OPTIONS("/verify-document", preflight)
		fns.POST("/verify-document", h.VerifyDocument)
		fns.OPTIONS("/send-loan-details-notification", preflight)
		fns.POST("/send-loan-details-notification", h.SendLoanDetailsNotification)
	}
}

func functionCORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "authorization, x-client-info, apikey, content-type")
		c.Next()
	}
}

func preflight(c *gin.Context) {
	c.Status(http.StatusOK)
}

type verifyDocumentRequest struct {
	DocumentURL   string `json:"documentUrl"`
	ApplicationID string `json:"applicationId"`
}

// VerifyDocument handles POST /functions/verify-document
// @Summary      Verify supporting document
// @Description  Runs the advisory AI document check and stores the annotation on the application
// @Tags         functions
// @Accept       json
// @Produce      json
// @Param        payload  body      verifyDocumentRequest  true  "Document Reference"
// @Success      200      {object}  object
// @Failure      500      {object}  object
// @Router       /functions/verify-document [post]
func (h *FunctionsHandler) VerifyDocument(c *gin.Context) {
	var req verifyDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": "invalid request payload"})
		return
	}

	result, err := h.appService.VerifyDocument(c.Request.Context(), req.ApplicationID, req.DocumentURL)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"success": false, "error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  result.Status,
		"result":  result.Result,
	})
}

// SendLoanDetailsNotification handles POST /functions/send-loan-details-notification
// @Summary      Notify staff of a completed application
// @Description  Sends the staff e-mail and the best-effort WhatsApp message
// @Tags         functions
// @Accept       json
// @Produce      json
// @Param        payload  body      notification.LoanDetails  true  "Submitted Details"
// @Success      200      {object}  object
// @Failure      500      {object}  object
// @Router       /functions/send-loan-details-notification [post]
func (h *FunctionsHandler) SendLoanDetailsNotification(c *gin.Context) {
	var details notification.LoanDetails
	if err := c.ShouldBindJSON(&details); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid request payload"})
		return
	}

	result, err := h.notifier.NotifyDetailsSubmitted(c.Request.Context(), details)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":       true,
		"email":         result.EmailID,
		"whatsapp_info": result.WhatsAppInfo,
	})
}
