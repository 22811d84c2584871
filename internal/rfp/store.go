package rfp

import (
	"context"
	"time"
)

// Kind is the resource-kind code for RFPs, shared with the permission table.
const Kind = "rfp"

// Filter narrows RFP listings. Soft-deleted RFPs are always excluded.
type Filter struct {
	BuyerID string
	Status  Status
}

// VersionUpdate mutates descriptive fields of the current version in place.
// Core terms (budget range, deadline, requirements) are frozen once the RFP
// leaves Draft.
type VersionUpdate struct {
	Description *string
}

// Store describes persistence operations required by the RFP lifecycle.
// Status writes are compare-and-set: the store must refuse with
// ErrInvalidState when the row's status no longer matches from. Reads of a
// soft-deleted RFP return ErrNotFound.
type Store interface {
	CreateRFP(ctx context.Context, r *RFP) error
	GetRFP(ctx context.Context, id string) (RFP, error)
	ListRFPs(ctx context.Context, f Filter) ([]RFP, error)

	// AddVersion assigns the next version number, stores the version and
	// points current_version at it, all in one transaction. Fails with
	// ErrInvalidState unless the RFP is still Draft at commit time.
	AddVersion(ctx context.Context, rfpID string, v *Version) error
	SetCurrentVersion(ctx context.Context, rfpID string, number int, at time.Time) error
	UpdateVersion(ctx context.Context, rfpID string, number int, upd VersionUpdate, at time.Time) error

	UpdateRFPTitle(ctx context.Context, rfpID, title string, at time.Time) error
	UpdateRFPStatus(ctx context.Context, rfpID string, from, to Status, at time.Time) error
	DeleteRFP(ctx context.Context, id string, at time.Time) error
}
