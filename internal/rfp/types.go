package rfp

import (
	"errors"
	"time"
)

// Status codes are the wire-level contract shared with the permission table.
// They must match stored policy documents exactly; a casing drift silently
// turns into a permanent deny.
type Status string

const (
	StatusDraft     Status = "Draft"
	StatusPublished Status = "Published"
	StatusClosed    Status = "Closed"
	StatusCancelled Status = "Cancelled"
	StatusAwarded   Status = "Awarded"
)

func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusPublished, StatusClosed, StatusCancelled, StatusAwarded:
		return true
	default:
		return false
	}
}

// Terminal reports whether no further status transitions are defined.
func (s Status) Terminal() bool {
	switch s {
	case StatusClosed, StatusCancelled, StatusAwarded:
		return true
	default:
		return false
	}
}

// Version is an immutable snapshot of the RFP terms. Version numbers are
// strictly increasing from 1 and never reused or reordered.
type Version struct {
	RFPID        string    `json:"rfp_id"`
	Number       int       `json:"number"`
	Description  string    `json:"description"`
	Requirements string    `json:"requirements"`
	BudgetMin    int64     `json:"budget_min"`
	BudgetMax    int64     `json:"budget_max"`
	Deadline     time.Time `json:"deadline"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RFP is a request for proposal owned by a buyer. CurrentVersion always
// references a version belonging to this RFP; versions are frozen once the
// RFP leaves Draft.
type RFP struct {
	ID                string     `json:"id"`
	Title             string     `json:"title"`
	BuyerID           string     `json:"buyer_id"`
	Status            Status     `json:"status"`
	CurrentVersion    int        `json:"current_version"`
	Versions          []Version  `json:"versions,omitempty"`
	AwardedResponseID string     `json:"awarded_response_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
	DeletedAt         *time.Time `json:"-"`
}

// Current returns the version CurrentVersion points at.
func (r RFP) Current() (Version, bool) {
	for _, v := range r.Versions {
		if v.Number == r.CurrentVersion {
			return v, true
		}
	}
	return Version{}, false
}

var (
	ErrNotFound       = errors.New("rfp not found")
	ErrInvalidState   = errors.New("invalid rfp state")
	ErrAlreadyAwarded = errors.New("rfp already awarded")
	ErrInvalidInput   = errors.New("invalid input")
)
