package response

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rfphub.org/internal/audit"
	"rfphub.org/internal/ids"
	"rfphub.org/internal/rfp"
)

// Hook observes a committed transition, mirroring rfp.Hook.
type Hook func(ctx context.Context, entity, id, from, to string)

// Service implements the supplier-response lifecycle over a Store. Callers
// hold a Permit from the authorization gate before invoking any method; the
// service enforces state-machine legality only.
type Service struct {
	store Store
	rfps  RFPSource
	rec   audit.Recorder
	hooks []Hook
	now   func() time.Time
}

type Option func(*Service)

func WithHook(h Hook) Option {
	return func(s *Service) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, rfps RFPSource, rec audit.Recorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("response store is required")
	}
	if rfps == nil {
		return nil, errors.New("rfp source is required")
	}
	s := &Service{
		store: store,
		rfps:  rfps,
		rec:   rec,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) notify(ctx context.Context, entity, id string, from, to string) {
	for _, h := range s.hooks {
		h(ctx, entity, id, from, to)
	}
}

// CreateInput carries a new draft proposal.
type CreateInput struct {
	RFPID    string
	Proposal string
	Price    int64
}

// Create starts a Draft response under a Published RFP. At most one live
// response per (rfp, supplier) pair; the store enforces the uniqueness under
// its own isolation guarantee.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (Response, error) {
	if strings.TrimSpace(in.RFPID) == "" {
		return Response{}, fmt.Errorf("%w: rfp_id is required", ErrInvalidInput)
	}
	if in.Price < 0 {
		return Response{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	parent, err := s.rfps.GetRFP(ctx, in.RFPID)
	if err != nil {
		return Response{}, err
	}
	if parent.Status != rfp.StatusPublished {
		return Response{}, fmt.Errorf("%w: rfp %s is %s, not %s", ErrInvalidState, parent.ID, parent.Status, rfp.StatusPublished)
	}
	now := s.now()
	r := Response{
		ID:         ids.New(),
		RFPID:      in.RFPID,
		SupplierID: actorID,
		Status:     StatusDraft,
		Proposal:   in.Proposal,
		Price:      in.Price,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateResponse(ctx, &r); err != nil {
		return Response{}, err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "response.create",
		TargetKind: Kind,
		TargetID:   r.ID,
		Details:    map[string]string{"rfp_id": in.RFPID, "to": string(StatusDraft)},
	})
	s.notify(ctx, Kind, r.ID, "", string(StatusDraft))
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (Response, error) {
	return s.store.GetResponse(ctx, id)
}

func (s *Service) ListByRFP(ctx context.Context, rfpID string) ([]Response, error) {
	return s.store.ListResponsesByRFP(ctx, rfpID)
}

func (s *Service) ListBySupplier(ctx context.Context, supplierID string) ([]Response, error) {
	return s.store.ListResponsesBySupplier(ctx, supplierID)
}

// Update edits the proposal content. Draft only.
func (s *Service) Update(ctx context.Context, actorID, id string, upd ContentUpdate) (Response, error) {
	r, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return Response{}, err
	}
	if r.Status != StatusDraft {
		return Response{}, fmt.Errorf("%w: content is frozen once %s", ErrInvalidState, r.Status)
	}
	if upd.Price != nil && *upd.Price < 0 {
		return Response{}, fmt.Errorf("%w: price must not be negative", ErrInvalidInput)
	}
	if err := s.store.UpdateResponseContent(ctx, id, upd, s.now()); err != nil {
		return Response{}, err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "response.update",
		TargetKind: Kind,
		TargetID:   id,
	})
	return s.store.GetResponse(ctx, id)
}

// transition performs a CAS status move after validating the edge.
func (s *Service) transition(ctx context.Context, actorID, id string, from, to Status, upd StatusUpdate, action string, details map[string]string) error {
	r, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != from {
		return fmt.Errorf("%w: %s is not allowed from %s", ErrInvalidState, action, r.Status)
	}
	if err := s.store.UpdateResponseStatus(ctx, id, from, to, upd, s.now()); err != nil {
		return err
	}
	if details == nil {
		details = map[string]string{}
	}
	details["from"] = string(from)
	details["to"] = string(to)
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     action,
		TargetKind: Kind,
		TargetID:   id,
		Details:    details,
	})
	s.notify(ctx, Kind, id, string(from), string(to))
	return nil
}

// Submit moves Draft -> Submitted.
func (s *Service) Submit(ctx context.Context, actorID, id string) error {
	return s.transition(ctx, actorID, id, StatusDraft, StatusSubmitted,
		StatusUpdate{SetSubmittedAt: true}, "response.submit", nil)
}

// MoveToReview moves Submitted -> Under_Review.
func (s *Service) MoveToReview(ctx context.Context, actorID, id string) error {
	return s.transition(ctx, actorID, id, StatusSubmitted, StatusUnderReview,
		StatusUpdate{SetReviewedAt: true}, "response.review.start", nil)
}

// Approve moves Under_Review -> Approved.
func (s *Service) Approve(ctx context.Context, actorID, id string) error {
	return s.transition(ctx, actorID, id, StatusUnderReview, StatusApproved,
		StatusUpdate{SetDecidedAt: true}, "response.approve", nil)
}

// Reject moves Under_Review -> Rejected. A non-empty reason is required and
// is kept until a later reopen clears it.
func (s *Service) Reject(ctx context.Context, actorID, id, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return fmt.Errorf("%w: rejection reason is required", ErrInvalidInput)
	}
	return s.transition(ctx, actorID, id, StatusUnderReview, StatusRejected,
		StatusUpdate{RejectionReason: &reason, SetDecidedAt: true},
		"response.reject", map[string]string{"reason": reason})
}

// Reopen moves Rejected -> Draft, clearing the rejection reason and the
// decision timestamp.
func (s *Service) Reopen(ctx context.Context, actorID, id string) error {
	return s.transition(ctx, actorID, id, StatusRejected, StatusDraft,
		StatusUpdate{ClearDecision: true}, "response.reopen", nil)
}

// Award moves the response Approved -> Awarded and its parent RFP to Awarded
// as one atomic unit: the "at most one winner" invariant spans both entities,
// so partial application is never observable. Early precondition reads give
// clean errors; the store re-checks everything under its transaction.
func (s *Service) Award(ctx context.Context, actorID, rfpID, responseID string) error {
	parent, err := s.rfps.GetRFP(ctx, rfpID)
	if err != nil {
		return err
	}
	if parent.AwardedResponseID != "" {
		return rfp.ErrAlreadyAwarded
	}
	if parent.Status != rfp.StatusPublished && parent.Status != rfp.StatusClosed {
		return fmt.Errorf("%w: award is not allowed from %s", rfp.ErrInvalidState, parent.Status)
	}
	r, err := s.store.GetResponse(ctx, responseID)
	if err != nil {
		return err
	}
	if r.RFPID != rfpID {
		return fmt.Errorf("%w: response %s does not belong to rfp %s", ErrInvalidState, responseID, rfpID)
	}
	if r.Status != StatusApproved {
		return fmt.Errorf("%w: award requires %s, response is %s", ErrInvalidState, StatusApproved, r.Status)
	}

	rfpFrom, err := s.store.AwardResponse(ctx, rfpID, responseID, s.now())
	if err != nil {
		return err
	}

	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "rfp.award",
		TargetKind: rfp.Kind,
		TargetID:   rfpID,
		Details:    map[string]string{"from": string(rfpFrom), "to": string(rfp.StatusAwarded), "response_id": responseID},
	})
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "response.award",
		TargetKind: Kind,
		TargetID:   responseID,
		Details:    map[string]string{"from": string(StatusApproved), "to": string(StatusAwarded)},
	})
	s.notify(ctx, rfp.Kind, rfpID, string(rfpFrom), string(rfp.StatusAwarded))
	s.notify(ctx, Kind, responseID, string(StatusApproved), string(StatusAwarded))
	return nil
}

// Delete soft-retires a Draft response.
func (s *Service) Delete(ctx context.Context, actorID, id string) error {
	r, err := s.store.GetResponse(ctx, id)
	if err != nil {
		return err
	}
	if r.Status != StatusDraft {
		return fmt.Errorf("%w: only %s responses may be deleted", ErrInvalidState, StatusDraft)
	}
	if err := s.store.DeleteResponse(ctx, id, s.now()); err != nil {
		return err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "response.delete",
		TargetKind: Kind,
		TargetID:   id,
	})
	return nil
}
