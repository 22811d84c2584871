package policy

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"rfphub.org/internal/document"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
)

// Resource kinds the permission table may reference. The codes are owned by
// the lifecycle packages so the policy and lifecycle vocabularies cannot
// drift apart.
const (
	KindRFP       = rfp.Kind
	KindResponse  = response.Kind
	KindDocuments = document.Kind
	KindRoles     = "roles"
)

// Scope qualifies a rule with an ownership or status relationship the
// resource must satisfy.
type Scope string

const (
	ScopeNone      Scope = "none"
	ScopeOwn       Scope = "own"
	ScopePublished Scope = "published"
	ScopeRFPOwner  Scope = "rfp_owner"
)

func validScope(s Scope) bool {
	switch s {
	case ScopeNone, ScopeOwn, ScopePublished, ScopeRFPOwner, "":
		return true
	default:
		return false
	}
}

// Rule is a single flat permission record. The original system stored these
// as loosely-typed nested objects; here they are validated once at load time
// and never re-parsed per request.
type Rule struct {
	Allowed                 bool                `json:"allowed"`
	Scope                   Scope               `json:"scope,omitempty"`
	AllowedResourceStatuses []string            `json:"allowed_resource_statuses,omitempty"`
	AllowedTransitions      map[string][]string `json:"allowed_transitions,omitempty"`
}

// Policy maps resource kind -> action -> rule. A missing entry is a deny.
type Policy map[string]map[string]Rule

var ErrInvalidPolicy = errors.New("invalid policy document")

// Parse decodes and validates a stored policy document.
func Parse(raw []byte) (Policy, error) {
	var p Policy
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks structural soundness: known scopes, non-empty keys,
// non-empty transition target sets.
func (p Policy) Validate() error {
	for kind, actions := range p {
		if strings.TrimSpace(kind) == "" {
			return fmt.Errorf("%w: empty resource kind", ErrInvalidPolicy)
		}
		for action, rule := range actions {
			if strings.TrimSpace(action) == "" {
				return fmt.Errorf("%w: empty action under %q", ErrInvalidPolicy, kind)
			}
			if !validScope(rule.Scope) {
				return fmt.Errorf("%w: unknown scope %q for %s.%s", ErrInvalidPolicy, rule.Scope, kind, action)
			}
			for from, targets := range rule.AllowedTransitions {
				if strings.TrimSpace(from) == "" {
					return fmt.Errorf("%w: empty source status for %s.%s", ErrInvalidPolicy, kind, action)
				}
				if len(targets) == 0 {
					return fmt.Errorf("%w: no targets from %q for %s.%s", ErrInvalidPolicy, from, kind, action)
				}
				for _, target := range targets {
					if strings.TrimSpace(target) == "" {
						return fmt.Errorf("%w: empty target status from %q for %s.%s", ErrInvalidPolicy, from, kind, action)
					}
				}
			}
		}
	}
	return nil
}

// Rule returns the rule for (kind, action) if present.
func (p Policy) Rule(kind, action string) (Rule, bool) {
	actions, ok := p[kind]
	if !ok {
		return Rule{}, false
	}
	rule, ok := actions[action]
	return rule, ok
}

func (r Rule) statusAllowed(status string) bool {
	for _, s := range r.AllowedResourceStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func (r Rule) transitionAllowed(from, to string) bool {
	for _, target := range r.AllowedTransitions[from] {
		if target == to {
			return true
		}
	}
	return false
}
