package rfp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"rfphub.org/internal/audit"
	"rfphub.org/internal/ids"
)

// Hook observes a committed transition. Hooks run after the store write
// succeeds; they must not block for long and cannot veto the transition.
type Hook func(ctx context.Context, entity, id, from, to string)

// Service implements the RFP lifecycle over a Store. Every method assumes
// the caller already holds a Permit from the authorization gate for the
// corresponding action; the service enforces state-machine legality only.
type Service struct {
	store Store
	rec   audit.Recorder
	hooks []Hook
	now   func() time.Time
}

// Option configures Service behavior.
type Option func(*Service)

// WithHook registers a post-transition observer.
func WithHook(h Hook) Option {
	return func(s *Service) {
		if h != nil {
			s.hooks = append(s.hooks, h)
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

func NewService(store Store, rec audit.Recorder, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("rfp store is required")
	}
	s := &Service{
		store: store,
		rec:   rec,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Service) notify(ctx context.Context, id string, from, to Status) {
	for _, h := range s.hooks {
		h(ctx, Kind, id, string(from), string(to))
	}
}

// CreateInput carries the initial terms; they become version 1.
type CreateInput struct {
	Title        string
	Description  string
	Requirements string
	BudgetMin    int64
	BudgetMax    int64
	Deadline     time.Time
}

func (in CreateInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidInput)
	}
	if in.BudgetMin < 0 || in.BudgetMax < in.BudgetMin {
		return fmt.Errorf("%w: budget range is inverted", ErrInvalidInput)
	}
	return nil
}

// Create produces a Draft RFP with version 1 as current.
func (s *Service) Create(ctx context.Context, actorID string, in CreateInput) (RFP, error) {
	if err := in.validate(); err != nil {
		return RFP{}, err
	}
	now := s.now()
	r := RFP{
		ID:             ids.New(),
		Title:          strings.TrimSpace(in.Title),
		BuyerID:        actorID,
		Status:         StatusDraft,
		CurrentVersion: 1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	r.Versions = []Version{{
		RFPID:        r.ID,
		Number:       1,
		Description:  in.Description,
		Requirements: in.Requirements,
		BudgetMin:    in.BudgetMin,
		BudgetMax:    in.BudgetMax,
		Deadline:     in.Deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}}
	if err := s.store.CreateRFP(ctx, &r); err != nil {
		return RFP{}, err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "rfp.create",
		TargetKind: Kind,
		TargetID:   r.ID,
		Details:    map[string]string{"to": string(StatusDraft)},
	})
	s.notify(ctx, r.ID, "", StatusDraft)
	return r, nil
}

func (s *Service) Get(ctx context.Context, id string) (RFP, error) {
	return s.store.GetRFP(ctx, id)
}

func (s *Service) List(ctx context.Context, f Filter) ([]RFP, error) {
	return s.store.ListRFPs(ctx, f)
}

// VersionInput carries the terms for a superseding version.
type VersionInput struct {
	Description  string
	Requirements string
	BudgetMin    int64
	BudgetMax    int64
	Deadline     time.Time
}

// CreateVersion appends a new immutable version and points current_version
// at it. Legal while Draft only; version numbers are assigned by the store
// under the same transaction so concurrent calls never collide.
func (s *Service) CreateVersion(ctx context.Context, actorID, rfpID string, in VersionInput) (Version, error) {
	r, err := s.store.GetRFP(ctx, rfpID)
	if err != nil {
		return Version{}, err
	}
	if r.Status != StatusDraft {
		return Version{}, fmt.Errorf("%w: versions are frozen once %s", ErrInvalidState, r.Status)
	}
	if in.BudgetMin < 0 || in.BudgetMax < in.BudgetMin {
		return Version{}, fmt.Errorf("%w: budget range is inverted", ErrInvalidInput)
	}
	now := s.now()
	v := Version{
		RFPID:        rfpID,
		Description:  in.Description,
		Requirements: in.Requirements,
		BudgetMin:    in.BudgetMin,
		BudgetMax:    in.BudgetMax,
		Deadline:     in.Deadline,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.AddVersion(ctx, rfpID, &v); err != nil {
		return Version{}, err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "rfp.version.create",
		TargetKind: Kind,
		TargetID:   rfpID,
		Details:    map[string]string{"version": fmt.Sprintf("%d", v.Number)},
	})
	return v, nil
}

// SwitchVersion points current_version at an existing version. Draft only.
func (s *Service) SwitchVersion(ctx context.Context, actorID, rfpID string, number int) error {
	r, err := s.store.GetRFP(ctx, rfpID)
	if err != nil {
		return err
	}
	if r.Status != StatusDraft {
		return fmt.Errorf("%w: versions are frozen once %s", ErrInvalidState, r.Status)
	}
	if err := s.store.SetCurrentVersion(ctx, rfpID, number, s.now()); err != nil {
		return err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "rfp.version.switch",
		TargetKind: Kind,
		TargetID:   rfpID,
		Details:    map[string]string{"version": fmt.Sprintf("%d", number)},
	})
	return nil
}

// UpdateInput carries an edit. While Draft any field may change and the edit
// lands as a new version. After publish only Title-independent descriptive
// text may change, in place, so published terms stay addressable by the same
// version id.
type UpdateInput struct {
	Title        *string
	Description  *string
	Requirements *string
	BudgetMin    *int64
	BudgetMax    *int64
	Deadline     *time.Time
}

func (in UpdateInput) coreFieldsTouched() bool {
	return in.Requirements != nil || in.BudgetMin != nil || in.BudgetMax != nil || in.Deadline != nil
}

// Update edits the RFP. Draft: superseding version (plus optional title
// change). Any other live status: descriptive-only in-place edit of the
// current version; touching core terms is refused with ErrInvalidState.
func (s *Service) Update(ctx context.Context, actorID, rfpID string, in UpdateInput) (RFP, error) {
	r, err := s.store.GetRFP(ctx, rfpID)
	if err != nil {
		return RFP{}, err
	}
	now := s.now()

	if r.Status == StatusDraft {
		cur, ok := r.Current()
		if !ok {
			return RFP{}, fmt.Errorf("%w: rfp %s has no current version", ErrInvalidState, rfpID)
		}
		next := VersionInput{
			Description:  cur.Description,
			Requirements: cur.Requirements,
			BudgetMin:    cur.BudgetMin,
			BudgetMax:    cur.BudgetMax,
			Deadline:     cur.Deadline,
		}
		if in.Description != nil {
			next.Description = *in.Description
		}
		if in.Requirements != nil {
			next.Requirements = *in.Requirements
		}
		if in.BudgetMin != nil {
			next.BudgetMin = *in.BudgetMin
		}
		if in.BudgetMax != nil {
			next.BudgetMax = *in.BudgetMax
		}
		if in.Deadline != nil {
			next.Deadline = *in.Deadline
		}
		if _, err := s.CreateVersion(ctx, actorID, rfpID, next); err != nil {
			return RFP{}, err
		}
		if in.Title != nil {
			title := strings.TrimSpace(*in.Title)
			if title == "" {
				return RFP{}, fmt.Errorf("%w: title is required", ErrInvalidInput)
			}
			if err := s.store.UpdateRFPTitle(ctx, rfpID, title, now); err != nil {
				return RFP{}, err
			}
		}
		return s.store.GetRFP(ctx, rfpID)
	}

	if in.Title != nil || in.coreFieldsTouched() {
		return RFP{}, fmt.Errorf("%w: only descriptive fields may change after %s", ErrInvalidState, StatusDraft)
	}
	if in.Description == nil {
		return s.store.GetRFP(ctx, rfpID)
	}
	if err := s.store.UpdateVersion(ctx, rfpID, r.CurrentVersion, VersionUpdate{Description: in.Description}, now); err != nil {
		return RFP{}, err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "rfp.update",
		TargetKind: Kind,
		TargetID:   rfpID,
		Details:    map[string]string{"version": fmt.Sprintf("%d", r.CurrentVersion)},
	})
	return s.store.GetRFP(ctx, rfpID)
}

// transition performs a CAS status move after validating the edge.
func (s *Service) transition(ctx context.Context, actorID, rfpID string, allowedFrom []Status, to Status, action string) error {
	r, err := s.store.GetRFP(ctx, rfpID)
	if err != nil {
		return err
	}
	legal := false
	for _, from := range allowedFrom {
		if r.Status == from {
			legal = true
			break
		}
	}
	if !legal {
		return fmt.Errorf("%w: %s is not allowed from %s", ErrInvalidState, action, r.Status)
	}
	if err := s.store.UpdateRFPStatus(ctx, rfpID, r.Status, to, s.now()); err != nil {
		return err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     action,
		TargetKind: Kind,
		TargetID:   rfpID,
		Details:    map[string]string{"from": string(r.Status), "to": string(to)},
	})
	s.notify(ctx, rfpID, r.Status, to)
	return nil
}

// Publish moves Draft -> Published.
func (s *Service) Publish(ctx context.Context, actorID, rfpID string) error {
	return s.transition(ctx, actorID, rfpID, []Status{StatusDraft}, StatusPublished, "rfp.publish")
}

// Close moves Published -> Closed.
func (s *Service) Close(ctx context.Context, actorID, rfpID string) error {
	return s.transition(ctx, actorID, rfpID, []Status{StatusPublished}, StatusClosed, "rfp.close")
}

// Cancel moves Draft|Published -> Cancelled.
func (s *Service) Cancel(ctx context.Context, actorID, rfpID string) error {
	return s.transition(ctx, actorID, rfpID, []Status{StatusDraft, StatusPublished}, StatusCancelled, "rfp.cancel")
}

// Delete soft-retires the RFP. Legal from any status; afterwards the RFP is
// excluded from listings and further transitions report ErrNotFound.
func (s *Service) Delete(ctx context.Context, actorID, rfpID string) error {
	if _, err := s.store.GetRFP(ctx, rfpID); err != nil {
		return err
	}
	if err := s.store.DeleteRFP(ctx, rfpID, s.now()); err != nil {
		return err
	}
	audit.Emit(ctx, s.rec, audit.Entry{
		ActorID:    actorID,
		Action:     "rfp.delete",
		TargetKind: Kind,
		TargetID:   rfpID,
	})
	return nil
}
