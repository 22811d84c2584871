package policy

import (
	"context"
	"errors"
	"testing"
)

type fakeResolver struct {
	owners       map[string]string
	statuses     map[string]string
	parentOwners map[string]string
	calls        int
}

func (f *fakeResolver) GetOwner(ctx context.Context, kind, id string) (string, error) {
	f.calls++
	owner, ok := f.owners[kind+"/"+id]
	if !ok {
		return "", ErrNotFound
	}
	return owner, nil
}

func (f *fakeResolver) GetStatus(ctx context.Context, kind, id string) (string, error) {
	f.calls++
	status, ok := f.statuses[kind+"/"+id]
	if !ok {
		return "", ErrNotFound
	}
	return status, nil
}

func (f *fakeResolver) GetParentRFPOwner(ctx context.Context, responseID string) (string, error) {
	f.calls++
	owner, ok := f.parentOwners[responseID]
	if !ok {
		return "", ErrNotFound
	}
	return owner, nil
}

func newTestGate(t *testing.T, resolver *fakeResolver) *Gate {
	t.Helper()
	g, err := NewGate(resolver)
	if err != nil {
		t.Fatalf("NewGate: %v", err)
	}
	return g
}

func TestDecideRuleLookup(t *testing.T) {
	resolver := &fakeResolver{}
	g := newTestGate(t, resolver)

	cases := []struct {
		name   string
		policy Policy
	}{
		{"missing kind", Policy{}},
		{"missing action", Policy{KindRFP: {}}},
		{"rule not allowed", Policy{KindRFP: {ActionRead: {Allowed: false}}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := g.Decide(context.Background(), Request{
				ActorID: "u1", Policy: tc.policy,
				Kind: KindRFP, Action: ActionRead,
				Ref: &ResourceRef{ID: "r1"},
			})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if d.Allowed || d.Reason != ReasonNotGranted {
				t.Fatalf("expected not_granted, got %+v", d)
			}
		})
	}
	// A coarse rule deny must never touch the resolver.
	if resolver.calls != 0 {
		t.Fatalf("resolver was consulted %d times on rule denies", resolver.calls)
	}
}

func TestDecideScopeOwn(t *testing.T) {
	resolver := &fakeResolver{owners: map[string]string{KindRFP + "/r1": "buyer-1"}}
	g := newTestGate(t, resolver)
	p := Policy{KindRFP: {ActionUpdate: {Allowed: true, Scope: ScopeOwn}}}

	d, err := g.Decide(context.Background(), Request{
		ActorID: "buyer-1", Policy: p, Kind: KindRFP, Action: ActionUpdate,
		Ref: &ResourceRef{ID: "r1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("owner expected permit, got %+v err=%v", d, err)
	}

	d, err = g.Decide(context.Background(), Request{
		ActorID: "buyer-2", Policy: p, Kind: KindRFP, Action: ActionUpdate,
		Ref: &ResourceRef{ID: "r1"},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNotOwner {
		t.Fatalf("non-owner expected not_owner, got %+v", d)
	}

	d, err = g.Decide(context.Background(), Request{
		ActorID: "buyer-1", Policy: p, Kind: KindRFP, Action: ActionUpdate,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNotOwner {
		t.Fatalf("nil ref expected not_owner, got %+v", d)
	}
}

func TestDecideScopePublished(t *testing.T) {
	resolver := &fakeResolver{statuses: map[string]string{
		KindRFP + "/r1": "Published",
		KindRFP + "/r2": "Draft",
	}}
	g := newTestGate(t, resolver)
	p := Policy{KindResponse: {ActionCreate: {Allowed: true, Scope: ScopePublished}}}

	d, err := g.Decide(context.Background(), Request{
		ActorID: "sup-1", Policy: p, Kind: KindResponse, Action: ActionCreate,
		Ref: &ResourceRef{ID: "r1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("published rfp expected permit, got %+v err=%v", d, err)
	}

	d, err = g.Decide(context.Background(), Request{
		ActorID: "sup-1", Policy: p, Kind: KindResponse, Action: ActionCreate,
		Ref: &ResourceRef{ID: "r2"},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNotPublished {
		t.Fatalf("draft rfp expected not_published, got %+v", d)
	}

	// Nested refs carry the RFP in ParentID.
	d, err = g.Decide(context.Background(), Request{
		ActorID: "sup-1", Policy: p, Kind: KindResponse, Action: ActionCreate,
		Ref: &ResourceRef{ID: "resp-9", ParentID: "r1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("parent ref expected permit, got %+v err=%v", d, err)
	}
}

func TestDecideScopeRFPOwner(t *testing.T) {
	resolver := &fakeResolver{parentOwners: map[string]string{"resp-1": "buyer-1"}}
	g := newTestGate(t, resolver)
	p := Policy{KindResponse: {ActionReview: {Allowed: true, Scope: ScopeRFPOwner}}}

	d, err := g.Decide(context.Background(), Request{
		ActorID: "buyer-1", Policy: p, Kind: KindResponse, Action: ActionReview,
		Ref: &ResourceRef{ID: "resp-1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("rfp owner expected permit, got %+v err=%v", d, err)
	}

	d, err = g.Decide(context.Background(), Request{
		ActorID: "buyer-2", Policy: p, Kind: KindResponse, Action: ActionReview,
		Ref: &ResourceRef{ID: "resp-1"},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNotRFPOwner {
		t.Fatalf("other buyer expected not_rfp_owner, got %+v", d)
	}
}

func TestDecideStatusConstraint(t *testing.T) {
	resolver := &fakeResolver{
		owners:   map[string]string{KindResponse + "/resp-1": "sup-1"},
		statuses: map[string]string{KindResponse + "/resp-1": "Submitted"},
	}
	g := newTestGate(t, resolver)
	p := Policy{KindResponse: {ActionUpdate: {
		Allowed: true, Scope: ScopeOwn,
		AllowedResourceStatuses: []string{"Draft"},
	}}}

	d, err := g.Decide(context.Background(), Request{
		ActorID: "sup-1", Policy: p, Kind: KindResponse, Action: ActionUpdate,
		Ref: &ResourceRef{ID: "resp-1"},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonStatusNotAllowed {
		t.Fatalf("submitted response expected status_not_allowed, got %+v", d)
	}

	resolver.statuses[KindResponse+"/resp-1"] = "Draft"
	d, err = g.Decide(context.Background(), Request{
		ActorID: "sup-1", Policy: p, Kind: KindResponse, Action: ActionUpdate,
		Ref: &ResourceRef{ID: "resp-1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("draft response expected permit, got %+v err=%v", d, err)
	}
}

func TestDecideTransitionConstraint(t *testing.T) {
	resolver := &fakeResolver{
		owners:   map[string]string{KindRFP + "/r1": "buyer-1"},
		statuses: map[string]string{KindRFP + "/r1": "Draft"},
	}
	g := newTestGate(t, resolver)
	p := Policy{KindRFP: {ActionUpdateStatus: {
		Allowed: true, Scope: ScopeOwn,
		AllowedTransitions: map[string][]string{
			"Draft":     {"Published", "Cancelled"},
			"Published": {"Closed", "Cancelled"},
		},
	}}}

	cases := []struct {
		name   string
		target string
		want   DenyReason
		permit bool
	}{
		{"missing target", "", ReasonMissingTargetStatus, false},
		{"legal edge", "Published", "", true},
		{"also legal", "Cancelled", "", true},
		{"illegal edge", "Closed", ReasonTransitionNotAllowed, false},
		{"unknown target", "Archived", ReasonTransitionNotAllowed, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			d, err := g.Decide(context.Background(), Request{
				ActorID: "buyer-1", Policy: p, Kind: KindRFP, Action: ActionUpdateStatus,
				Ref: &ResourceRef{ID: "r1"}, TargetStatus: tc.target,
			})
			if err != nil {
				t.Fatalf("Decide: %v", err)
			}
			if d.Allowed != tc.permit {
				t.Fatalf("allowed=%v, want %v (%+v)", d.Allowed, tc.permit, d)
			}
			if !tc.permit && d.Reason != tc.want {
				t.Fatalf("reason=%s, want %s", d.Reason, tc.want)
			}
		})
	}
}

func TestDecideResolverNotFound(t *testing.T) {
	resolver := &fakeResolver{}
	g := newTestGate(t, resolver)
	p := Policy{KindRFP: {ActionRead: {Allowed: true, Scope: ScopeOwn}}}

	_, err := g.Decide(context.Background(), Request{
		ActorID: "u1", Policy: p, Kind: KindRFP, Action: ActionRead,
		Ref: &ResourceRef{ID: "missing"},
	})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDecideDocumentOwnerKind(t *testing.T) {
	resolver := &fakeResolver{owners: map[string]string{
		KindRFP + "/r1":          "buyer-1",
		KindResponse + "/resp-1": "sup-1",
	}}
	g := newTestGate(t, resolver)
	p := Policy{KindDocuments: {
		ActionUploadRFPDocument:      {Allowed: true, Scope: ScopeOwn},
		ActionUploadResponseDocument: {Allowed: true, Scope: ScopeOwn},
	}}

	d, err := g.Decide(context.Background(), Request{
		ActorID: "buyer-1", Policy: p, Kind: KindDocuments, Action: ActionUploadRFPDocument,
		Ref: &ResourceRef{ID: "r1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("rfp document upload expected permit, got %+v err=%v", d, err)
	}

	d, err = g.Decide(context.Background(), Request{
		ActorID: "sup-1", Policy: p, Kind: KindDocuments, Action: ActionUploadResponseDocument,
		Ref: &ResourceRef{ID: "resp-1"},
	})
	if err != nil || !d.Allowed {
		t.Fatalf("response document upload expected permit, got %+v err=%v", d, err)
	}

	d, err = g.Decide(context.Background(), Request{
		ActorID: "buyer-1", Policy: p, Kind: KindDocuments, Action: ActionUploadResponseDocument,
		Ref: &ResourceRef{ID: "resp-1"},
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if d.Allowed || d.Reason != ReasonNotOwner {
		t.Fatalf("buyer uploading to supplier response expected not_owner, got %+v", d)
	}
}
