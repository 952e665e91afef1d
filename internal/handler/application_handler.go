package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type ApplicationHandler struct {
	appService service.ApplicationService
}

// NewApplicationHandler sets up the routing dependencies for applicant endpoints
func NewApplicationHandler(appService service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{appService: appService}
}

// RegisterRoutes binds the applicant-facing application endpoints
func (h *ApplicationHandler) RegisterRoutes(router *gin.RouterGroup) {
	apps := router.Group("/applications", middleware.RequireRole(model.RoleApplicant))
	{
		apps.POST("", h.Create)
		apps.GET("/mine", h.ListMine)
		apps.GET("/latest", h.Latest)
		apps.GET("/payment-instructions", h.PaymentInstructions)
		apps.PUT("/:id/details", h.SubmitDetails)
	}
}

// actorFrom builds the workflow actor from the values the auth middleware
// stored on the context.
func actorFrom(c *gin.Context) service.Actor {
	userID, _ := c.Get("userID")
	role, _ := c.Get("userRole")
	idStr, _ := userID.(string)
	roleStr, _ := role.(string)
	return service.Actor{UserID: idStr, Role: roleStr}
}

// Create handles POST /applications
// @Summary      Open a loan application
// @Description  Creates an application in awaiting_fee with the requested amount and term
// @Tags         applications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.CreateApplicationRequest  true  "Application Terms"
// @Success      201      {object}  response.Response{data=service.CreateApplicationResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /applications [post]
func (h *ApplicationHandler) Create(c *gin.Context) {
	var req service.CreateApplicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.appService.Create(c.Request.Context(), actorFrom(c), req)
	if err != nil {
		status := apperror.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListMine handles GET /applications/mine
// @Summary      List my applications
// @Description  Lists all applications owned by the authenticated applicant, newest first
// @Tags         applications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=[]service.ApplicationResponse}
// @Router       /applications/mine [get]
func (h *ApplicationHandler) ListMine(c *gin.Context) {
	apps, err := h.appService.ListMine(c.Request.Context(), actorFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch applications"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, apps))
}

// Latest handles GET /applications/latest
// @Summary      Latest application
// @Description  Returns the most recently created application of the authenticated applicant
// @Tags         applications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.ApplicationResponse}
// @Failure      404  {object}  response.Response
// @Router       /applications/latest [get]
func (h *ApplicationHandler) Latest(c *gin.Context) {
	app, err := h.appService.Latest(c.Request.Context(), actorFrom(c))
	if err != nil {
		status := apperror.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// PaymentInstructions handles GET /applications/payment-instructions
// @Summary      Verification fee instructions
// @Description  Returns the fee amount and the WhatsApp contact used to settle it
// @Tags         applications
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.PaymentInstructions}
// @Router       /applications/payment-instructions [get]
func (h *ApplicationHandler) PaymentInstructions(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.appService.PaymentInstructions()))
}

// SubmitDetails handles PUT /applications/:id/details
// @Summary      Submit application details
// @Description  Completes the one-time detail form and moves the application to submitted
// @Tags         applications
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                        true  "Application ID"
// @Param        payload  body      service.SubmitDetailsRequest  true  "Detail Form"
// @Success      200      {object}  response.Response{data=service.SubmitDetailsResponse}
// @Failure      400      {object}  response.Response
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /applications/{id}/details [put]
func (h *ApplicationHandler) SubmitDetails(c *gin.Context) {
	id := c.Param("id")

	var req service.SubmitDetailsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.appService.SubmitDetails(c.Request.Context(), actorFrom(c), id, req)
	if err != nil {
		status := apperror.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
