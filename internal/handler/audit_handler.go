package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type AuditHandler struct {
	auditService service.AuditService
}

func NewAuditHandler(auditService service.AuditService) *AuditHandler {
	return &AuditHandler{auditService: auditService}
}

// RegisterRoutes binds the audit trail endpoints (admin only)
func (h *AuditHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/admin/audit-logs", middleware.RequireRole(model.RoleAdmin), h.ListLogs)
}

// ListLogs handles GET /admin/audit-logs
// @Summary      List audit logs
// @Description  Paginated audit trail, newest first
// @Tags         audit
// @Produce      json
// @Security     BearerAuth
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Failure      500    {object}  response.Response
// @Router       /admin/audit-logs [get]
func (h *AuditHandler) ListLogs(c *gin.Context) {
	params := pagination.Parse(c)

	logs, total, err := h.auditService.ListLogs(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "Failed to fetch audit logs"))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"logs":  logs,
		"total": total,
		"page":  params.Page,
		"limit": params.Limit,
	}))
}
