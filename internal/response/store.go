package response

import (
	"context"
	"time"

	"rfphub.org/internal/rfp"
)

// ContentUpdate edits a Draft response in place.
type ContentUpdate struct {
	Proposal *string
	Price    *int64
}

// StatusUpdate carries the side effects of a status move. Nil pointers leave
// fields untouched; ClearDecision wipes the rejection reason and decision
// timestamp on reopen.
type StatusUpdate struct {
	RejectionReason *string
	SetSubmittedAt  bool
	SetReviewedAt   bool
	SetDecidedAt    bool
	ClearDecision   bool
}

// Store describes persistence operations required by the response lifecycle.
// Status writes are compare-and-set: the store refuses with ErrInvalidState
// when the row's status no longer matches from. Reads of a soft-deleted
// response return ErrNotFound. CreateResponse reports ErrDuplicate when a
// live response already exists for the (rfp, supplier) pair.
type Store interface {
	CreateResponse(ctx context.Context, r *Response) error
	GetResponse(ctx context.Context, id string) (Response, error)
	ListResponsesByRFP(ctx context.Context, rfpID string) ([]Response, error)
	ListResponsesBySupplier(ctx context.Context, supplierID string) ([]Response, error)
	UpdateResponseContent(ctx context.Context, id string, upd ContentUpdate, at time.Time) error
	UpdateResponseStatus(ctx context.Context, id string, from, to Status, upd StatusUpdate, at time.Time) error
	DeleteResponse(ctx context.Context, id string, at time.Time) error

	// AwardResponse atomically moves the response Approved -> Awarded and its
	// parent RFP to Awarded, recording the winner on the RFP. The check and
	// both writes must share one transaction under row locks: a plain
	// read-then-write here is a correctness bug, not an acceptable race.
	// Returns the RFP status observed under the lock. Fails with
	// rfp.ErrAlreadyAwarded when a winner is already recorded, and with
	// ErrInvalidState when the response is not Approved, does not belong to
	// the RFP, or the RFP is not Published|Closed.
	AwardResponse(ctx context.Context, rfpID, responseID string, at time.Time) (rfp.Status, error)
}

// RFPSource provides the parent-RFP reads the lifecycle needs.
type RFPSource interface {
	GetRFP(ctx context.Context, id string) (rfp.RFP, error)
}
