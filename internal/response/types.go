package response

import (
	"errors"
	"time"
)

// Kind is the resource-kind code for supplier responses, shared with the
// permission table.
const Kind = "supplier_response"

// Status codes are the wire-level contract shared with the permission table;
// they must match stored policy documents exactly.
type Status string

const (
	StatusDraft       Status = "Draft"
	StatusSubmitted   Status = "Submitted"
	StatusUnderReview Status = "Under_Review"
	StatusApproved    Status = "Approved"
	StatusRejected    Status = "Rejected"
	StatusAwarded     Status = "Awarded"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusSubmitted, StatusUnderReview, StatusApproved, StatusRejected, StatusAwarded:
		return true
	default:
		return false
	}
}

// Response is a supplier's proposal against a published RFP. Exactly one
// response per (rfp, supplier) pair may exist.
type Response struct {
	ID              string     `json:"id"`
	RFPID           string     `json:"rfp_id"`
	SupplierID      string     `json:"supplier_id"`
	Status          Status     `json:"status"`
	Proposal        string     `json:"proposal"`
	Price           int64      `json:"price"`
	RejectionReason string     `json:"rejection_reason,omitempty"`
	SubmittedAt     *time.Time `json:"submitted_at,omitempty"`
	ReviewedAt      *time.Time `json:"reviewed_at,omitempty"`
	DecidedAt       *time.Time `json:"decided_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
	DeletedAt       *time.Time `json:"-"`
}

var (
	ErrNotFound     = errors.New("response not found")
	ErrInvalidState = errors.New("invalid response state")
	ErrDuplicate    = errors.New("duplicate response for rfp and supplier")
	ErrInvalidInput = errors.New("invalid input")
)
