package model

import (
	"time"

	"backend/pkg/apperror"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Status enum constants for the application workflow.
// An application only ever moves forward through the graph below; the one
// backward edge is the admin reversal of a mistaken fee confirmation.
const (
	StatusAwaitingFee = "awaiting_fee" // created, waiting for the verification fee
	StatusProcessing  = "processing"   // fee confirmed by staff, detail form unlocked
	StatusSubmitted   = "submitted"    // detail form completed, under review
	StatusApproved    = "approved"     // terminal
	StatusRejected    = "rejected"     // terminal
)

// PaymentType enum constants
const (
	PaymentMonthly = "monthly-installments"
	PaymentSingle  = "single-payment"
)

// Document verification advisory statuses. These annotate an application and
// never drive the workflow status above — only an admin decision does.
const (
	VerificationPending  = "pending"
	VerificationVerified = "verified"
	VerificationRejected = "rejected"
)

// Employment status values accepted by the detail form.
const (
	EmploymentEmployed     = "employed"
	EmploymentSelfEmployed = "self_employed"
	EmploymentStudent      = "student"
	EmploymentUnemployed   = "unemployed"
)

// Preferred contact methods.
const (
	ContactWhatsApp = "whatsapp"
	ContactEmail    = "email"
)

// LoanApplication is the single record driving the whole product: created at
// intake with amount/term only, enriched once by the detail form, annotated
// once by the automated document check, and moved through the workflow by
// staff. Amount, term and payment type are fixed at creation.
type LoanApplication struct {
	ID          uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID     uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`
	Owner       *User           `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
	Amount      decimal.Decimal `gorm:"type:decimal(18,2);not null" json:"amount"`
	Term        int             `gorm:"not null" json:"term"` // months
	PaymentType string          `gorm:"type:varchar(30);not null" json:"payment_type"`
	Status      string          `gorm:"type:varchar(20);not null;default:'awaiting_fee';index" json:"status"`

	// Detail form fields — null until the form is submitted, immutable after.
	FullName               *string          `gorm:"type:varchar(100)" json:"full_name"`
	DNI                    *string          `gorm:"type:varchar(20)" json:"dni"`
	Phone                  *string          `gorm:"type:varchar(15)" json:"phone"`
	Email                  *string          `gorm:"type:varchar(255)" json:"email"`
	Address                *string          `gorm:"type:varchar(200)" json:"address"`
	EmploymentStatus       *string          `gorm:"type:varchar(20)" json:"employment_status"`
	MonthlyIncome          *decimal.Decimal `gorm:"type:decimal(18,2)" json:"monthly_income"`
	LoanPurpose            *string          `gorm:"type:text" json:"loan_purpose"`
	PreferredContactMethod *string          `gorm:"type:varchar(10)" json:"preferred_contact_method"`

	// SupportingDocumentURL points at the uploaded file in external storage;
	// set at most once, together with the detail form.
	SupportingDocumentURL *string `gorm:"type:text" json:"supporting_document_url"`

	// Advisory verification annotation, written asynchronously after upload.
	DocumentVerificationStatus *string    `gorm:"type:varchar(20)" json:"document_verification_status"`
	DocumentVerificationResult *string    `gorm:"type:jsonb" json:"document_verification_result"`
	DocumentVerifiedAt         *time.Time `json:"document_verified_at"`

	// Workflow bookkeeping.
	DecidedBy       *uuid.UUID `gorm:"type:uuid" json:"decided_by"`
	Decider         *User      `gorm:"foreignKey:DecidedBy" json:"decider,omitempty"`
	DecidedAt       *time.Time `json:"decided_at"`
	RejectionReason string     `gorm:"type:text" json:"rejection_reason"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Terminal reports whether the workflow is finished for this status.
func Terminal(status string) bool {
	return status == StatusApproved || status == StatusRejected
}

// transitions is the closed set of legal status moves and the roles allowed
// to cause each one. Anything not listed here is rejected.
var transitions = map[[2]string][]string{
	{StatusAwaitingFee, StatusProcessing}:  {RoleAdmin, RoleStaff},
	{StatusProcessing, StatusAwaitingFee}:  {RoleAdmin, RoleStaff},
	{StatusProcessing, StatusSubmitted}:    {RoleApplicant},
	{StatusSubmitted, StatusApproved}:      {RoleAdmin},
	{StatusSubmitted, StatusRejected}:      {RoleAdmin},
}

// CanTransition validates a status move for the acting role. It returns an
// authorization error when the edge exists but the role may not take it, and
// a conflict error when the edge does not exist at all, so that callers can
// report 403 vs 409 correctly.
func CanTransition(from, to, role string) error {
	if Terminal(from) {
		return apperror.Conflict("application is already %s and cannot change", from)
	}
	allowed, ok := transitions[[2]string{from, to}]
	if !ok {
		return apperror.Conflict("invalid status transition %s -> %s", from, to)
	}
	for _, r := range allowed {
		if r == role {
			return nil
		}
	}
	return apperror.Authorization("role %s may not move an application from %s to %s", role, from, to)
}
