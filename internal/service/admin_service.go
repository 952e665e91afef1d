package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"strconv"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
	"backend/internal/websocket"
	"backend/pkg/apperror"

	"github.com/google/uuid"
)

// AdminApplicationResponse is the review-console row: the application plus
// who owns it and who decided it.
type AdminApplicationResponse struct {
	ApplicationResponse
	OwnerEmail   string `json:"owner_email,omitempty"`
	DeciderName  string `json:"decider_name,omitempty"`
	DeciderEmail string `json:"decider_email,omitempty"`
	DecidedAt    string `json:"decided_at,omitempty"`
}

type RejectApplicationRequest struct {
	Reason string `json:"reason" binding:"omitempty,max=500"`
}

// ApplicationStats summarizes the pipeline for the console header.
type ApplicationStats struct {
	Total    int64            `json:"total"`
	ByStatus map[string]int64 `json:"by_status"`
}

// AdminService covers the staff review console: listing, the four workflow
// decisions, the CSV export and the pipeline stats.
type AdminService interface {
	List(ctx context.Context, filter repository.ApplicationFilter) ([]AdminApplicationResponse, int64, error)
	Get(ctx context.Context, id string) (AdminApplicationResponse, error)
	ConfirmFee(ctx context.Context, actor Actor, id string) (AdminApplicationResponse, error)
	RevertFee(ctx context.Context, actor Actor, id string) (AdminApplicationResponse, error)
	Approve(ctx context.Context, actor Actor, id string) (AdminApplicationResponse, error)
	Reject(ctx context.Context, actor Actor, id string, req RejectApplicationRequest) (AdminApplicationResponse, error)
	ExportCSV(ctx context.Context, filter repository.ApplicationFilter) ([]byte, error)
	Stats(ctx context.Context) (ApplicationStats, error)
}

type adminService struct {
	apps   repository.ApplicationRepository
	audits repository.AuditRepository
	tx     repository.TransactionManager
	hub    *websocket.Hub
}

func NewAdminService(
	apps repository.ApplicationRepository,
	audits repository.AuditRepository,
	tx repository.TransactionManager,
	hub *websocket.Hub,
) AdminService {
	return &adminService{apps: apps, audits: audits, tx: tx, hub: hub}
}

func (s *adminService) List(ctx context.Context, filter repository.ApplicationFilter) ([]AdminApplicationResponse, int64, error) {
	apps, total, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, 0, err
	}

	result := make([]AdminApplicationResponse, 0, len(apps))
	for _, app := range apps {
		result = append(result, toAdminResponse(app))
	}
	return result, total, nil
}

func (s *adminService) Get(ctx context.Context, id string) (AdminApplicationResponse, error) {
	app, err := s.apps.GetByID(ctx, id)
	if err != nil {
		return AdminApplicationResponse{}, apperror.NotFound("application not found")
	}
	return toAdminResponse(*app), nil
}

// ConfirmFee records the out-of-band fee payment and unlocks the detail form.
func (s *adminService) ConfirmFee(ctx context.Context, actor Actor, id string) (AdminApplicationResponse, error) {
	return s.transition(ctx, actor, id, model.StatusProcessing, model.ActionConfirmFee, "")
}

// RevertFee undoes a mistaken fee confirmation, as long as the applicant has
// not submitted the detail form yet.
func (s *adminService) RevertFee(ctx context.Context, actor Actor, id string) (AdminApplicationResponse, error) {
	return s.transition(ctx, actor, id, model.StatusAwaitingFee, model.ActionRevertFee, "")
}

func (s *adminService) Approve(ctx context.Context, actor Actor, id string) (AdminApplicationResponse, error) {
	return s.transition(ctx, actor, id, model.StatusApproved, model.ActionApproveApplication, "")
}

func (s *adminService) Reject(ctx context.Context, actor Actor, id string, req RejectApplicationRequest) (AdminApplicationResponse, error) {
	return s.transition(ctx, actor, id, model.StatusRejected, model.ActionRejectApplication, req.Reason)
}

// transition moves one application along the workflow graph under a row lock,
// writing the audit entry in the same transaction. The websocket event goes
// out only after the commit.
func (s *adminService) transition(ctx context.Context, actor Actor, id, to, action, reason string) (AdminApplicationResponse, error) {
	actorID, err := uuid.Parse(actor.UserID)
	if err != nil {
		return AdminApplicationResponse{}, apperror.Validation("invalid user id")
	}

	var app *model.LoanApplication
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		app, err = s.apps.GetByIDForUpdate(txCtx, id)
		if err != nil {
			return apperror.NotFound("application not found")
		}

		from := app.Status
		if err := model.CanTransition(from, to, actor.Role); err != nil {
			return err
		}

		app.Status = to
		if model.Terminal(to) {
			now := time.Now()
			app.DecidedBy = &actorID
			app.DecidedAt = &now
			app.RejectionReason = reason
		}

		if err := s.apps.Save(txCtx, app); err != nil {
			return err
		}

		details, _ := json.Marshal(map[string]interface{}{
			"from":   from,
			"to":     to,
			"reason": reason,
		})
		return s.audits.Log(txCtx, &model.AuditLog{
			UserID:   &actorID,
			Action:   action,
			EntityID: app.ID.String(),
			Details:  string(details),
		})
	})
	if err != nil {
		return AdminApplicationResponse{}, err
	}

	s.hub.PublishStatus(app.ID.String(), app.Status)
	return toAdminResponse(*app), nil
}

var exportHeader = []string{
	"id", "created_at", "status", "full_name", "dni", "phone", "email",
	"amount", "term", "payment_type", "employment_status", "monthly_income",
	"loan_purpose", "preferred_contact_method", "document_verification_status",
	"decided_at", "rejection_reason",
}

// ExportCSV renders the filtered applications as a CSV document. Pagination
// in the filter is ignored: an export always covers the full result set.
func (s *adminService) ExportCSV(ctx context.Context, filter repository.ApplicationFilter) ([]byte, error) {
	filter.Page = 1
	filter.Limit = 10000

	apps, _, err := s.apps.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(exportHeader); err != nil {
		return nil, err
	}

	for _, app := range apps {
		income := ""
		if app.MonthlyIncome != nil {
			income = app.MonthlyIncome.StringFixed(2)
		}
		decidedAt := ""
		if app.DecidedAt != nil {
			decidedAt = app.DecidedAt.Format(time.RFC3339)
		}

		record := []string{
			app.ID.String(),
			app.CreatedAt.Format(time.RFC3339),
			app.Status,
			strValue(app.FullName),
			strValue(app.DNI),
			strValue(app.Phone),
			strValue(app.Email),
			app.Amount.StringFixed(2),
			strconv.Itoa(app.Term),
			app.PaymentType,
			strValue(app.EmploymentStatus),
			income,
			strValue(app.LoanPurpose),
			strValue(app.PreferredContactMethod),
			strValue(app.DocumentVerificationStatus),
			decidedAt,
			app.RejectionReason,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *adminService) Stats(ctx context.Context) (ApplicationStats, error) {
	counts, err := s.apps.CountByStatus(ctx)
	if err != nil {
		return ApplicationStats{}, err
	}

	stats := ApplicationStats{ByStatus: counts}
	for _, c := range counts {
		stats.Total += c
	}
	return stats, nil
}

func toAdminResponse(app model.LoanApplication) AdminApplicationResponse {
	resp := AdminApplicationResponse{ApplicationResponse: toApplicationResponse(app)}
	if app.Owner != nil {
		resp.OwnerEmail = app.Owner.Email
	}
	if app.Decider != nil {
		resp.DeciderName = app.Decider.FullName
		resp.DeciderEmail = app.Decider.Email
	}
	if app.DecidedAt != nil {
		resp.DecidedAt = app.DecidedAt.Format(time.RFC3339)
	}
	return resp
}
