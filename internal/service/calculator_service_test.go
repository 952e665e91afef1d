package service

import (
	"testing"

	"backend/internal/config"
	"backend/internal/model"
	"backend/pkg/apperror"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLoanConfig() config.LoanConfig {
	return config.LoanConfig{
		MinAmount:       500,
		MaxAmount:       5000,
		MinTerm:         1,
		MaxTerm:         12,
		TEA:             45.5,
		VerificationFee: 65,
	}
}

func TestQuoteMonthlyInstallments(t *testing.T) {
	svc := NewCalculatorService(testLoanConfig())

	quote, err := svc.Quote(QuoteRequest{Amount: 2000, Term: 6, PaymentType: model.PaymentMonthly})
	require.NoError(t, err)

	// Known-good figures for S/2000 over 6 months at 45.5% TEA.
	assert.InDelta(t, 371.33, quote.PeriodicPayment, 0.05)
	assert.InDelta(t, 2227.98, quote.TotalPayment, 0.30)
	assert.InDelta(t, 0.031744, quote.MonthlyRate, 0.00001)

	// Total is exactly periodic times term for installments.
	assert.Equal(t, quote.PeriodicPayment*6, quote.TotalPayment)
	assert.Greater(t, quote.TotalPayment, quote.Amount, "interest must make the total exceed the principal")
	assert.Greater(t, quote.TCEM, 0.0)
}

func TestQuoteSinglePayment(t *testing.T) {
	svc := NewCalculatorService(testLoanConfig())

	quote, err := svc.Quote(QuoteRequest{Amount: 2000, Term: 6, PaymentType: model.PaymentSingle})
	require.NoError(t, err)

	// 2000 * 1.455^(6/12)
	assert.InDelta(t, 2412.47, quote.TotalPayment, 0.05)
	assert.Equal(t, quote.TotalPayment, quote.PeriodicPayment, "single payment is due in full once")
}

func TestQuoteIsDeterministic(t *testing.T) {
	svc := NewCalculatorService(testLoanConfig())
	req := QuoteRequest{Amount: 3145.5, Term: 11, PaymentType: model.PaymentMonthly}

	first, err := svc.Quote(req)
	require.NoError(t, err)
	second, err := svc.Quote(req)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical inputs must produce bit-identical quotes")
}

func TestQuotePositivityAcrossRange(t *testing.T) {
	svc := NewCalculatorService(testLoanConfig())

	for _, amount := range []float64{500, 1234.56, 5000} {
		for term := 1; term <= 12; term++ {
			for _, pt := range []string{model.PaymentMonthly, model.PaymentSingle} {
				quote, err := svc.Quote(QuoteRequest{Amount: amount, Term: term, PaymentType: pt})
				require.NoError(t, err)
				assert.Greater(t, quote.PeriodicPayment, 0.0)
				assert.GreaterOrEqual(t, quote.TotalPayment, quote.PeriodicPayment)
				assert.Greater(t, quote.TotalPayment, amount)
			}
		}
	}
}

func TestQuoteZeroRateSplitsEvenly(t *testing.T) {
	cfg := testLoanConfig()
	cfg.TEA = 0
	svc := NewCalculatorService(cfg)

	quote, err := svc.Quote(QuoteRequest{Amount: 1200, Term: 12, PaymentType: model.PaymentMonthly})
	require.NoError(t, err)

	assert.InDelta(t, 100, quote.PeriodicPayment, 1e-9)
	assert.InDelta(t, 1200, quote.TotalPayment, 1e-9)
}

func TestQuoteRejectsOutOfBoundsInputs(t *testing.T) {
	svc := NewCalculatorService(testLoanConfig())

	cases := []struct {
		name string
		req  QuoteRequest
	}{
		{"amount below minimum", QuoteRequest{Amount: 499.99, Term: 6, PaymentType: model.PaymentMonthly}},
		{"amount above maximum", QuoteRequest{Amount: 5000.01, Term: 6, PaymentType: model.PaymentMonthly}},
		{"term below minimum", QuoteRequest{Amount: 1000, Term: 0, PaymentType: model.PaymentMonthly}},
		{"term above maximum", QuoteRequest{Amount: 1000, Term: 13, PaymentType: model.PaymentMonthly}},
		{"unknown payment type", QuoteRequest{Amount: 1000, Term: 6, PaymentType: "weekly"}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Quote(tc.req)
			require.Error(t, err)
			assert.Equal(t, apperror.KindValidation, apperror.KindOf(err))
		})
	}
}
