package service

import (
	"context"
	"time"

	"backend/internal/model"
	"backend/internal/repository"
)

// AuditLogResponse flattens an audit row for the console.
type AuditLogResponse struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id,omitempty"`
	UserEmail  string `json:"user_email,omitempty"`
	Action     string `json:"action"`
	EntityID   string `json:"entity_id"`
	EntityName string `json:"entity_name,omitempty"`
	Details    string `json:"details"`
	CreatedAt  string `json:"created_at"`
}

// AuditService exposes the read side of the audit trail. Writes happen
// inside the workflow transactions, never through this service.
type AuditService interface {
	ListLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	repo repository.AuditRepository
}

func NewAuditService(repo repository.AuditRepository) AuditService {
	return &auditService{repo: repo}
}

func (s *auditService) ListLogs(ctx context.Context, page, limit int) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.repo.List(ctx, page, limit)
	if err != nil {
		return nil, 0, err
	}

	responses := make([]AuditLogResponse, 0, len(logs))
	for _, entry := range logs {
		responses = append(responses, mapAuditLog(entry))
	}
	return responses, total, nil
}

func mapAuditLog(entry model.AuditLog) AuditLogResponse {
	resp := AuditLogResponse{
		ID:         entry.ID.String(),
		Action:     entry.Action,
		EntityID:   entry.EntityID,
		EntityName: entry.EntityName,
		Details:    entry.Details,
		CreatedAt:  entry.CreatedAt.Format(time.RFC3339),
	}
	if entry.UserID != nil {
		resp.UserID = entry.UserID.String()
	}
	if entry.User != nil {
		resp.UserEmail = entry.User.Email
	}
	return resp
}
