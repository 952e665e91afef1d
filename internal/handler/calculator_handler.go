package handler

import (
	"net/http"

	"backend/internal/config"
	"backend/internal/service"
	"backend/pkg/apperror"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type CalculatorHandler struct {
	calcService service.CalculatorService
	cfg         config.LoanConfig
}

// NewCalculatorHandler sets up the routing dependencies for calculator endpoints
func NewCalculatorHandler(calcService service.CalculatorService, cfg config.LoanConfig) *CalculatorHandler {
	return &CalculatorHandler{calcService: calcService, cfg: cfg}
}

// RegisterRoutes binds the public calculator endpoints. No authentication:
// the calculator drives the marketing page before any account exists.
func (h *CalculatorHandler) RegisterRoutes(router *gin.RouterGroup) {
	calc := router.Group("/calculator")
	{
		calc.GET("/quote", h.Quote)
		calc.POST("/quote", h.Quote)
		calc.GET("/config", h.Config)
	}
}

// Quote handles GET and POST /calculator/quote
// @Summary      Compute a loan quote
// @Description  Computes periodic and total payment for the requested amount, term and payment type
// @Tags         calculator
// @Produce      json
// @Param        amount        query     number  true  "Requested amount"
// @Param        term          query     int     true  "Term in months"
// @Param        payment_type  query     string  true  "monthly-installments or single-payment"
// @Success      200  {object}  response.Response{data=service.QuoteResponse}
// @Failure      400  {object}  response.Response
// @Router       /calculator/quote [get]
func (h *CalculatorHandler) Quote(c *gin.Context) {
	var req service.QuoteRequest
	var err error
	if c.Request.Method == http.MethodGet {
		err = c.ShouldBindQuery(&req)
	} else {
		err = c.ShouldBindJSON(&req)
	}
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	quote, err := h.calcService.Quote(req)
	if err != nil {
		status := apperror.HTTPStatus(err)
		c.JSON(status, response.Error(status, err.Error()))
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, quote))
}

// Config handles GET /calculator/config
// @Summary      Calculator configuration
// @Description  Returns the lending bounds and rate the public calculator renders with
// @Tags         calculator
// @Produce      json
// @Success      200  {object}  response.Response{data=object}
// @Router       /calculator/config [get]
func (h *CalculatorHandler) Config(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"min_amount":       h.cfg.MinAmount,
		"max_amount":       h.cfg.MaxAmount,
		"min_term":         h.cfg.MinTerm,
		"max_term":         h.cfg.MaxTerm,
		"tea":              h.cfg.TEA,
		"verification_fee": h.cfg.VerificationFee,
	}))
}
