package handler

import (
	"fmt"
	"net/http"
	"time"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AdminHandler struct {
	adminService service.AdminService
}

// NewAdminHandler sets up the routing dependencies for the review console
func NewAdminHandler(adminService service.AdminService) *AdminHandler {
	return &AdminHandler{adminService: adminService}
}

// RegisterRoutes binds the staff review console endpoints. Staff can see the
// queue and handle the fee steps; approval and rejection are admin-only and
// re-checked in the workflow layer.
func (h *AdminHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/admin/stats", middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.Stats)

	admin := router.Group("/admin/applications")
	{
		admin.GET("", middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.List)
		admin.GET("/export", middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.Export)
		admin.GET("/:id", middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.Get)
		admin.PUT("/:id/confirm-fee", middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.ConfirmFee)
		admin.PUT("/:id/revert-fee", middleware.RequireRole(model.RoleAdmin, model.RoleStaff), h.RevertFee)
		admin.PUT("/:id/approve", middleware.RequireRole(model.RoleAdmin), h.Approve)
		admin.PUT("/:id/reject", middleware.RequireRole(model.RoleAdmin), h.Reject)
	}
}

func filterFrom(c *gin.Context) repository.ApplicationFilter {
	params := pagination.Parse(c)
	return repository.ApplicationFilter{
		Status: c.Query("status"),
		Search: c.Query("search"),
		Page:   params.Page,
		Limit:  params.Limit,
	}
}

// List handles GET /admin/applications
// @Summary      List applications
// @Description  Paginated review queue, filterable by status and free-text search
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "Filter by workflow status"
// @Param        search  query     string  false  "Match name, DNI or e-mail"
// @Param        page    query     int     false  "Page number (default 1)"
// @Param        limit   query     int     false  "Items per page (default 20)"
// @Success      200     {object}  response.Response{data=object}
// @Failure      500     {object}  response.Response
// @Router       /admin/applications [get]
func (h *AdminHandler) List(c *gin.Context) {
	filter := filterFrom(c)

	apps, total, err := h.adminService.List(c.Request.Context(), filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch applications"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"applications": apps,
		"total":        total,
		"page":         filter.Page,
		"limit":        filter.Limit,
	}))
}

// Get handles GET /admin/applications/:id
// @Summary      Get application
// @Description  Full application detail for the review panel
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.AdminApplicationResponse}
// @Failure      404  {object}  response.Response
// @Router       /admin/applications/{id} [get]
func (h *AdminHandler) Get(c *gin.Context) {
	app, err := h.adminService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		status := apperror.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}

// ConfirmFee handles PUT /admin/applications/:id/confirm-fee
// @Summary      Confirm verification fee
// @Description  Records the out-of-band fee payment and unlocks the detail form
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.AdminApplicationResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /admin/applications/{id}/confirm-fee [put]
func (h *AdminHandler) ConfirmFee(c *gin.Context) {
	h.respond(c, func() (service.AdminApplicationResponse, error) {
		return h.adminService.ConfirmFee(c.Request.Context(), actorFrom(c), c.Param("id"))
	})
}

// RevertFee handles PUT /admin/applications/:id/revert-fee
// @Summary      Revert fee confirmation
// @Description  Undoes a mistaken fee confirmation while the form is still unsubmitted
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.AdminApplicationResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /admin/applications/{id}/revert-fee [put]
func (h *AdminHandler) RevertFee(c *gin.Context) {
	h.respond(c, func() (service.AdminApplicationResponse, error) {
		return h.adminService.RevertFee(c.Request.Context(), actorFrom(c), c.Param("id"))
	})
}

// Approve handles PUT /admin/applications/:id/approve
// @Summary      Approve application
// @Description  Moves a submitted application to the approved terminal state
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Application ID"
// @Success      200  {object}  response.Response{data=service.AdminApplicationResponse}
// @Failure      403  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /admin/applications/{id}/approve [put]
func (h *AdminHandler) Approve(c *gin.Context) {
	h.respond(c, func() (service.AdminApplicationResponse, error) {
		return h.adminService.Approve(c.Request.Context(), actorFrom(c), c.Param("id"))
	})
}

// Reject handles PUT /admin/applications/:id/reject
// @Summary      Reject application
// @Description  Moves a submitted application to the rejected terminal state, optionally with a reason
// @Tags         admin
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path      string                            true   "Application ID"
// @Param        payload  body      service.RejectApplicationRequest  false  "Rejection Reason"
// @Success      200      {object}  response.Response{data=service.AdminApplicationResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /admin/applications/{id}/reject [put]
func (h *AdminHandler) Reject(c *gin.Context) {
	// The reason is optional, as is the body itself.
	var req service.RejectApplicationRequest
	_ = c.ShouldBindJSON(&req)

	h.respond(c, func() (service.AdminApplicationResponse, error) {
		return h.adminService.Reject(c.Request.Context(), actorFrom(c), c.Param("id"), req)
	})
}

// Export handles GET /admin/applications/export
// @Summary      Export applications
// @Description  Downloads the filtered applications as a CSV file
// @Tags         admin
// @Produce      text/csv
// @Security     BearerAuth
// @Param        status  query  string  false  "Filter by workflow status"
// @Param        search  query  string  false  "Match name, DNI or e-mail"
// @Success      200
// @Failure      500  {object}  response.Response
// @Router       /admin/applications/export [get]
func (h *AdminHandler) Export(c *gin.Context) {
	data, err := h.adminService.ExportCSV(c.Request.Context(), filterFrom(c))
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to export applications"))
		return
	}

	filename := fmt.Sprintf("applications-%s.csv", time.Now().Format("2006-01-02"))
	c.Header("Content-Disposition", `attachment; filename="`+filename+`"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// Stats handles GET /admin/stats
// @Summary      Pipeline stats
// @Description  Counts of applications per workflow status
// @Tags         admin
// @Produce      json
// @Security     BearerAuth
// @Success      200  {object}  response.Response{data=service.ApplicationStats}
// @Failure      500  {object}  response.Response
// @Router       /admin/stats [get]
func (h *AdminHandler) Stats(c *gin.Context) {
	stats, err := h.adminService.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to compute stats"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, stats))
}

func (h *AdminHandler) respond(c *gin.Context, op func() (service.AdminApplicationResponse, error)) {
	app, err := op()
	if err != nil {
		status := apperror.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, app))
}
