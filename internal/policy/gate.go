package policy

import (
	"context"
	"errors"
)

// DenyReason is a stable code identifying why a request was refused. Callers
// map reasons to an external "forbidden" error without matching on prose.
type DenyReason string

const (
	ReasonNotGranted           DenyReason = "not_granted"
	ReasonNotOwner             DenyReason = "not_owner"
	ReasonNotPublished         DenyReason = "not_published"
	ReasonNotRFPOwner          DenyReason = "not_rfp_owner"
	ReasonStatusNotAllowed     DenyReason = "status_not_allowed"
	ReasonTransitionNotAllowed DenyReason = "transition_not_allowed"
	ReasonMissingTargetStatus  DenyReason = "missing_target_status"
)

// Decision is the outcome of an authorization check.
type Decision struct {
	Allowed bool
	Reason  DenyReason
}

func Permit() Decision           { return Decision{Allowed: true} }
func Deny(r DenyReason) Decision { return Decision{Reason: r} }

// ErrNotFound is returned by resolvers when the referenced resource does not
// exist (or has been soft-deleted).
var ErrNotFound = errors.New("policy: resource not found")

// ContextResolver fetches the minimal live facts a decision needs. It is
// implemented by the persistence layer; the gate performs reads only.
type ContextResolver interface {
	GetOwner(ctx context.Context, kind, id string) (string, error)
	GetStatus(ctx context.Context, kind, id string) (string, error)
	GetParentRFPOwner(ctx context.Context, responseID string) (string, error)
}

// ResourceRef identifies the resource an action targets. ID is the resource's
// own id. For creation-type and nested actions ID references the parent the
// rule's scope resolves against (e.g. the RFP a response is created under).
type ResourceRef struct {
	ID       string
	ParentID string
}

// Request carries everything Decide needs. Policy is the immutable snapshot
// attached to the actor at authentication time; it is not re-fetched here.
type Request struct {
	ActorID      string
	Policy       Policy
	Kind         string
	Action       string
	Ref          *ResourceRef
	TargetStatus string
}

// Gate is the pure decision function over resolved facts.
type Gate struct {
	resolver ContextResolver
}

func NewGate(resolver ContextResolver) (*Gate, error) {
	if resolver == nil {
		return nil, errors.New("policy: resolver is required")
	}
	return &Gate{resolver: resolver}, nil
}

// Decide evaluates the request against the actor's policy snapshot. Checks
// run cheapest-first and short-circuit: a coarse rule deny never touches the
// resolver. The error return is reserved for resolver failures (including
// ErrNotFound); policy refusals come back as a Deny decision.
func (g *Gate) Decide(ctx context.Context, req Request) (Decision, error) {
	rule, ok := req.Policy.Rule(req.Kind, req.Action)
	if !ok || !rule.Allowed {
		return Deny(ReasonNotGranted), nil
	}

	switch rule.Scope {
	case ScopeOwn:
		if req.Ref == nil {
			return Deny(ReasonNotOwner), nil
		}
		owner, err := g.resolver.GetOwner(ctx, g.ownerKind(req), req.Ref.ID)
		if err != nil {
			return Decision{}, err
		}
		if owner != req.ActorID {
			return Deny(ReasonNotOwner), nil
		}
	case ScopePublished:
		if req.Ref == nil {
			return Deny(ReasonNotPublished), nil
		}
		status, err := g.resolver.GetStatus(ctx, KindRFP, referencedRFP(req.Ref))
		if err != nil {
			return Decision{}, err
		}
		if status != publishedStatus {
			return Deny(ReasonNotPublished), nil
		}
	case ScopeRFPOwner:
		if req.Ref == nil {
			return Deny(ReasonNotRFPOwner), nil
		}
		owner, err := g.resolver.GetParentRFPOwner(ctx, req.Ref.ID)
		if err != nil {
			return Decision{}, err
		}
		if owner != req.ActorID {
			return Deny(ReasonNotRFPOwner), nil
		}
	}

	if len(rule.AllowedResourceStatuses) > 0 {
		if req.Ref == nil {
			return Deny(ReasonStatusNotAllowed), nil
		}
		status, err := g.resolver.GetStatus(ctx, g.ownerKind(req), req.Ref.ID)
		if err != nil {
			return Decision{}, err
		}
		if !rule.statusAllowed(status) {
			return Deny(ReasonStatusNotAllowed), nil
		}
	}

	if len(rule.AllowedTransitions) > 0 {
		if req.TargetStatus == "" {
			return Deny(ReasonMissingTargetStatus), nil
		}
		if req.Ref == nil {
			return Deny(ReasonTransitionNotAllowed), nil
		}
		current, err := g.resolver.GetStatus(ctx, g.ownerKind(req), req.Ref.ID)
		if err != nil {
			return Decision{}, err
		}
		if !rule.transitionAllowed(current, req.TargetStatus) {
			return Deny(ReasonTransitionNotAllowed), nil
		}
	}

	return Permit(), nil
}

// ownerKind selects which entity ownership and status resolve against.
// Document uploads borrow the owner of the parent entity the upload action
// names; everything else resolves against its own kind.
func (g *Gate) ownerKind(req Request) string {
	if req.Kind != KindDocuments {
		return req.Kind
	}
	if req.Action == ActionUploadResponseDocument {
		return KindResponse
	}
	return KindRFP
}

// referencedRFP picks the RFP id a published-scope check resolves. Nested
// refs carry the RFP in ParentID; creation refs carry it directly in ID.
func referencedRFP(ref *ResourceRef) string {
	if ref.ParentID != "" {
		return ref.ParentID
	}
	return ref.ID
}
