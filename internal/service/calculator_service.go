package service

import (
	"math"

	"backend/internal/config"
	"backend/internal/model"
	"backend/pkg/apperror"
)

// QuoteRequest carries the calculator inputs.
type QuoteRequest struct {
	Amount      float64 `json:"amount" form:"amount" binding:"required"`
	Term        int     `json:"term" form:"term" binding:"required"`
	PaymentType string  `json:"payment_type" form:"payment_type" binding:"required"`
}

// QuoteResponse is the advisory figure shown to the applicant. The
// authoritative terms of a real loan are established by staff during review.
type QuoteResponse struct {
	Amount          float64 `json:"amount"`
	Term            int     `json:"term"`
	PaymentType     string  `json:"payment_type"`
	PeriodicPayment float64 `json:"periodic_payment"`
	TotalPayment    float64 `json:"total_payment"`
	TEA             float64 `json:"tea"`          // effective annual rate, percent
	MonthlyRate     float64 `json:"monthly_rate"` // periodic rate, fraction
	TCEM            float64 `json:"tcem"`         // effective cost over the whole term, percent
}

// CalculatorService produces loan quotes from the configured rate.
type CalculatorService interface {
	Quote(req QuoteRequest) (QuoteResponse, error)
}

type calculatorService struct {
	cfg config.LoanConfig
}

func NewCalculatorService(cfg config.LoanConfig) CalculatorService {
	return &calculatorService{cfg: cfg}
}

// Quote computes the periodic and total payment for the requested terms.
// Pure: no side effects, identical inputs yield identical outputs.
func (s *calculatorService) Quote(req QuoteRequest) (QuoteResponse, error) {
	if req.Amount < s.cfg.MinAmount || req.Amount > s.cfg.MaxAmount {
		return QuoteResponse{}, apperror.Validation("amount must be between %.0f and %.0f", s.cfg.MinAmount, s.cfg.MaxAmount)
	}
	if req.Term < s.cfg.MinTerm || req.Term > s.cfg.MaxTerm {
		return QuoteResponse{}, apperror.Validation("term must be between %d and %d months", s.cfg.MinTerm, s.cfg.MaxTerm)
	}
	if req.PaymentType != model.PaymentMonthly && req.PaymentType != model.PaymentSingle {
		return QuoteResponse{}, apperror.Validation("payment_type must be %q or %q", model.PaymentMonthly, model.PaymentSingle)
	}

	// Convert the effective annual rate to its monthly equivalent.
	monthlyRate := math.Pow(1+s.cfg.TEA/100, 1.0/12) - 1

	var periodic, total float64
	n := float64(req.Term)

	switch req.PaymentType {
	case model.PaymentMonthly:
		if monthlyRate == 0 {
			// Annuity formula degenerates at r=0; interest-free split.
			periodic = req.Amount / n
		} else {
			factor := math.Pow(1+monthlyRate, n)
			periodic = req.Amount * (monthlyRate * factor) / (factor - 1)
		}
		total = periodic * n
	case model.PaymentSingle:
		total = req.Amount * math.Pow(1+monthlyRate, n)
		periodic = total // the whole sum is due once
	}

	return QuoteResponse{
		Amount:          req.Amount,
		Term:            req.Term,
		PaymentType:     req.PaymentType,
		PeriodicPayment: periodic,
		TotalPayment:    total,
		TEA:             s.cfg.TEA,
		MonthlyRate:     monthlyRate,
		TCEM:            (total/req.Amount - 1) * 100,
	}, nil
}
