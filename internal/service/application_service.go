package service

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"backend/internal/config"
	"backend/internal/model"
	"backend/internal/notification"
	"backend/internal/repository"
	"backend/internal/verification"
	"backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Actor identifies who is performing a workflow operation. Handlers build it
// from the verified JWT; services never reach into ambient session state.
type Actor struct {
	UserID string
	Role   string
}

// --- DTOs ---

type CreateApplicationRequest struct {
	Amount      float64 `json:"amount" binding:"required"`
	Term        int     `json:"term" binding:"required"`
	PaymentType string  `json:"payment_type" binding:"required"`
}

// SubmitDetailsRequest is the one-time detail form. The requested amount and
// term are fixed at creation and deliberately absent here.
type SubmitDetailsRequest struct {
	FullName               string  `json:"full_name" binding:"required,min=3,max=100"`
	DNI                    string  `json:"dni" binding:"required,min=8,max=20"`
	Phone                  string  `json:"phone" binding:"required,min=9,max=15"`
	Email                  string  `json:"email" binding:"required,email,max=255"`
	Address                string  `json:"address" binding:"required,min=10,max=200"`
	EmploymentStatus       string  `json:"employment_status" binding:"required,oneof=employed self_employed student unemployed"`
	// A pointer so that "required" still accepts an explicit zero income.
	MonthlyIncome          *float64 `json:"monthly_income" binding:"required,min=0"`
	LoanPurpose            string   `json:"loan_purpose" binding:"required,min=10,max=500"`
	PreferredContactMethod string   `json:"preferred_contact_method" binding:"required,oneof=whatsapp email"`
	SupportingDocumentURL  string   `json:"supporting_document_url"`
}

type VerificationResponse struct {
	Status     string              `json:"status"`
	Result     verification.Result `json:"result"`
	VerifiedAt string              `json:"verified_at"`
}

type ApplicationResponse struct {
	ID                     string                `json:"id"`
	OwnerID                string                `json:"owner_id"`
	Amount                 string                `json:"amount"`
	Term                   int                   `json:"term"`
	PaymentType            string                `json:"payment_type"`
	Status                 string                `json:"status"`
	FullName               string                `json:"full_name,omitempty"`
	DNI                    string                `json:"dni,omitempty"`
	Phone                  string                `json:"phone,omitempty"`
	Email                  string                `json:"email,omitempty"`
	Address                string                `json:"address,omitempty"`
	EmploymentStatus       string                `json:"employment_status,omitempty"`
	MonthlyIncome          string                `json:"monthly_income,omitempty"`
	LoanPurpose            string                `json:"loan_purpose,omitempty"`
	PreferredContactMethod string                `json:"preferred_contact_method,omitempty"`
	SupportingDocumentURL  string                `json:"supporting_document_url,omitempty"`
	Verification           *VerificationResponse `json:"verification,omitempty"`
	RejectionReason        string                `json:"rejection_reason,omitempty"`
	CreatedAt              string                `json:"created_at"`
}

type CreateApplicationResponse struct {
	Application ApplicationResponse `json:"application"`
	Quote       QuoteResponse       `json:"quote"`
}

type SubmitDetailsResponse struct {
	Application  ApplicationResponse   `json:"application"`
	Verification *VerificationResponse `json:"verification,omitempty"`
}

// PaymentInstructions tell the applicant how to settle the verification fee
// out-of-band over WhatsApp.
type PaymentInstructions struct {
	FeeAmount    float64 `json:"fee_amount"`
	Currency     string  `json:"currency"`
	ContactPhone string  `json:"contact_phone"`
}

// --- Interface ---

type ApplicationService interface {
	Create(ctx context.Context, actor Actor, req CreateApplicationRequest) (CreateApplicationResponse, error)
	ListMine(ctx context.Context, actor Actor) ([]ApplicationResponse, error)
	Latest(ctx context.Context, actor Actor) (ApplicationResponse, error)
	SubmitDetails(ctx context.Context, actor Actor, id string, req SubmitDetailsRequest) (SubmitDetailsResponse, error)
	PaymentInstructions() PaymentInstructions
	VerifyDocument(ctx context.Context, applicationID, documentURL string) (VerificationResponse, error)
}

type applicationService struct {
	apps     repository.ApplicationRepository
	audits   repository.AuditRepository
	tx       repository.TransactionManager
	calc     CalculatorService
	verifier verification.DocumentVerifier
	notifier notification.Notifier
	hub      *websocket.Hub
	cfg      config.LoanConfig
}

func NewApplicationService(
	apps repository.ApplicationRepository,
	audits repository.AuditRepository,
	tx repository.TransactionManager,
	calc CalculatorService,
	verifier verification.DocumentVerifier,
	notifier notification.Notifier,
	hub *websocket.Hub,
	cfg config.LoanConfig,
) ApplicationService {
	return &applicationService{
		apps:     apps,
		audits:   audits,
		tx:       tx,
		calc:     calc,
		verifier: verifier,
		notifier: notifier,
		hub:      hub,
		cfg:      cfg,
	}
}

// --- Implementation ---

// Create opens a new application in awaiting_fee for an authenticated
// applicant. The calculator validates the terms and its quote is returned so
// the confirmation screen shows the same figures the applicant accepted.
func (s *applicationService) Create(ctx context.Context, actor Actor, req CreateApplicationRequest) (CreateApplicationResponse, error) {
	if actor.Role != model.RoleApplicant {
		return CreateApplicationResponse{}, apperror.Authorization("only applicants can open a loan application")
	}

	ownerID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return CreateApplicationResponse{}, apperror.Validation("invalid user id")
	}

	quote, err := s.calc.Quote(QuoteRequest{Amount: req.Amount, Term: req.Term, PaymentType: req.PaymentType})
	if err != nil {
		return CreateApplicationResponse{}, err
	}

	// One in-flight application per applicant. A failed lookup must not
	// waive the rule.
	latest, err := s.apps.LatestByOwner(ctx, actor.UserID)
	if err != nil {
		return CreateApplicationResponse{}, err
	}
	if latest != nil && !model.Terminal(latest.Status) {
		return CreateApplicationResponse{}, apperror.Conflict("you already have an application in progress")
	}

	app := &model.LoanApplication{
		OwnerID:     ownerID,
		Amount:      decimal.NewFromFloat(req.Amount),
		Term:        req.Term,
		PaymentType: req.PaymentType,
		Status:      model.StatusAwaitingFee,
	}

	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.apps.Create(txCtx, app); err != nil {
			return err
		}
		return s.audit(txCtx, &ownerID, model.ActionCreateApplication, app.ID.String(), map[string]interface{}{
			"amount":       req.Amount,
			"term":         req.Term,
			"payment_type": req.PaymentType,
		})
	})
	if err != nil {
		return CreateApplicationResponse{}, err
	}

	return CreateApplicationResponse{
		Application: toApplicationResponse(*app),
		Quote:       quote,
	}, nil
}

func (s *applicationService) ListMine(ctx context.Context, actor Actor) ([]ApplicationResponse, error) {
	apps, err := s.apps.ListByOwner(ctx, actor.UserID)
	if err != nil {
		return nil, err
	}

	result := make([]ApplicationResponse, 0, len(apps))
	for _, app := range apps {
		result = append(result, toApplicationResponse(app))
	}
	return result, nil
}

// Latest returns the record driving the applicant dashboard: the most
// recently created application, whatever its state.
func (s *applicationService) Latest(ctx context.Context, actor Actor) (ApplicationResponse, error) {
	app, err := s.apps.LatestByOwner(ctx, actor.UserID)
	if err != nil {
		return ApplicationResponse{}, err
	}
	if app == nil {
		return ApplicationResponse{}, apperror.NotFound("no application found")
	}
	return toApplicationResponse(*app), nil
}

// SubmitDetails completes the detail form. Validation and the status
// transition commit atomically; the advisory document check and the staff
// notification run after the commit and never fail the submission.
func (s *applicationService) SubmitDetails(ctx context.Context, actor Actor, id string, req SubmitDetailsRequest) (SubmitDetailsResponse, error) {
	actorID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return SubmitDetailsResponse{}, apperror.Validation("invalid user id")
	}

	if req.MonthlyIncome == nil {
		return SubmitDetailsResponse{}, apperror.Validation("monthly_income is required")
	}

	var app *model.LoanApplication
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		app, err = s.apps.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return apperror.NotFound("application not found")
		}

		if app.OwnerID != actorID {
			return apperror.Authorization("application belongs to another applicant")
		}
		if err := model.CanTransition(app.Status, model.StatusSubmitted, actor.Role); err != nil {
			return err
		}

		income := decimal.NewFromFloat(*req.MonthlyIncome)
		app.FullName = &req.FullName
		app.DNI = &req.DNI
		app.Phone = &req.Phone
		app.Email = &req.Email
		app.Address = &req.Address
		app.EmploymentStatus = &req.EmploymentStatus
		app.MonthlyIncome = &income
		app.LoanPurpose = &req.LoanPurpose
		app.PreferredContactMethod = &req.PreferredContactMethod
		if req.SupportingDocumentURL != "" {
			app.SupportingDocumentURL = &req.SupportingDocumentURL
		}
		app.Status = model.StatusSubmitted

		if err := s.apps.Save(txCtx, app); err != nil {
			return err
		}
		return s.audit(txCtx, &actorID, model.ActionSubmitDetails, app.ID.String(), map[string]interface{}{
			"full_name":    req.FullName,
			"dni":          req.DNI,
			"has_document": req.SupportingDocumentURL != "",
		})
	})
	if err != nil {
		return SubmitDetailsResponse{}, err
	}

	s.hub.PublishStatus(app.ID.String(), app.Status)

	response := SubmitDetailsResponse{Application: toApplicationResponse(*app)}

	// Everything below is best-effort: the submission already succeeded.
	if req.SupportingDocumentURL != "" {
		if v := s.verifyDocument(ctx, app.ID.String(), req.SupportingDocumentURL); v != nil {
			response.Verification = v
			response.Application.Verification = v
		}
	}
	s.notifyStaff(ctx, *app, req)

	return response, nil
}

func (s *applicationService) PaymentInstructions() PaymentInstructions {
	return PaymentInstructions{
		FeeAmount:    s.cfg.VerificationFee,
		Currency:     "PEN",
		ContactPhone: s.cfg.FeeContactPhone,
	}
}

// VerifyDocument runs the advisory document check and persists its outcome
// as an annotation on the application. It never touches the workflow status.
func (s *applicationService) VerifyDocument(ctx context.Context, applicationID, documentURL string) (VerificationResponse, error) {
	if applicationID == "" || documentURL == "" {
		return VerificationResponse{}, apperror.Validation("applicationId and documentUrl are required")
	}

	verifiedAt := time.Now()

	result, err := s.verifier.Verify(ctx, documentURL)
	if err != nil {
		return VerificationResponse{}, err
	}

	resultJSON, err := json.Marshal(result.Result)
	if err != nil {
		return VerificationResponse{}, err
	}

	if err := s.apps.UpdateVerification(ctx, applicationID, result.Status, string(resultJSON), verifiedAt); err != nil {
		return VerificationResponse{}, err
	}

	if err := s.audit(ctx, nil, model.ActionVerifyDocument, applicationID, map[string]interface{}{
		"status":         result.Status,
		"recommendation": result.Result.Recommendation,
		"confidence":     result.Result.Confidence,
	}); err != nil {
		log.Printf("failed to audit verification for application %s: %v", applicationID, err)
	}

	return VerificationResponse{
		Status:     result.Status,
		Result:     result.Result,
		VerifiedAt: verifiedAt.Format(time.RFC3339),
	}, nil
}

// verifyDocument is the best-effort wrapper used after a detail submission.
// A failed check leaves the annotation at pending so staff review the
// document manually; the error never reaches the applicant.
func (s *applicationService) verifyDocument(ctx context.Context, appID, documentURL string) *VerificationResponse {
	v, err := s.VerifyDocument(ctx, appID, documentURL)
	if err != nil {
		log.Printf("document verification failed for application %s (retryable=%v): %v",
			appID, apperror.Retryable(err), err)
		if persistErr := s.apps.UpdateVerification(ctx, appID, model.VerificationPending, "{}", time.Now()); persistErr != nil {
			log.Printf("failed to record pending verification for application %s: %v", appID, persistErr)
		}
		return nil
	}
	return &v
}

func (s *applicationService) notifyStaff(ctx context.Context, app model.LoanApplication, req SubmitDetailsRequest) {
	amount, _ := app.Amount.Float64()
	_, err := s.notifier.NotifyDetailsSubmitted(ctx, notification.LoanDetails{
		ApplicationID:          app.ID.String(),
		FullName:               req.FullName,
		DNI:                    req.DNI,
		Phone:                  req.Phone,
		Email:                  req.Email,
		Address:                req.Address,
		Amount:                 amount,
		EmploymentStatus:       req.EmploymentStatus,
		MonthlyIncome:          *req.MonthlyIncome,
		LoanPurpose:            req.LoanPurpose,
		PreferredContactMethod: req.PreferredContactMethod,
	})
	if err != nil {
		log.Printf("staff notification failed for application %s, data was saved: %v", app.ID.String(), err)
	}
}

func (s *applicationService) audit(ctx context.Context, userID *uuid.UUID, action, entityID string, details map[string]interface{}) error {
	payload, _ := json.Marshal(details)
	return s.audits.Log(ctx, &model.AuditLog{
		UserID:   userID,
		Action:   action,
		EntityID: entityID,
		Details:  string(payload),
	})
}

// --- Helpers ---

func toApplicationResponse(app model.LoanApplication) ApplicationResponse {
	resp := ApplicationResponse{
		ID:              app.ID.String(),
		OwnerID:         app.OwnerID.String(),
		Amount:          app.Amount.StringFixed(2),
		Term:            app.Term,
		PaymentType:     app.PaymentType,
		Status:          app.Status,
		RejectionReason: app.RejectionReason,
		CreatedAt:       app.CreatedAt.Format(time.RFC3339),
	}

	resp.FullName = strValue(app.FullName)
	resp.DNI = strValue(app.DNI)
	resp.Phone = strValue(app.Phone)
	resp.Email = strValue(app.Email)
	resp.Address = strValue(app.Address)
	resp.EmploymentStatus = strValue(app.EmploymentStatus)
	resp.LoanPurpose = strValue(app.LoanPurpose)
	resp.PreferredContactMethod = strValue(app.PreferredContactMethod)
	resp.SupportingDocumentURL = strValue(app.SupportingDocumentURL)
	if app.MonthlyIncome != nil {
		resp.MonthlyIncome = app.MonthlyIncome.StringFixed(2)
	}

	if app.DocumentVerificationStatus != nil {
		v := &VerificationResponse{Status: *app.DocumentVerificationStatus}
		if app.DocumentVerificationResult != nil {
			_ = json.Unmarshal([]byte(*app.DocumentVerificationResult), &v.Result)
		}
		if app.DocumentVerifiedAt != nil {
			v.VerifiedAt = app.DocumentVerifiedAt.Format(time.RFC3339)
		}
		resp.Verification = v
	}

	return resp
}

func strValue(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
