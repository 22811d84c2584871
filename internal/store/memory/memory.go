// Package memory provides an in-process store used by tests and by cmd/api
// when no database DSN is configured.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"rfphub.org/internal/audit"
	"rfphub.org/internal/auth"
	"rfphub.org/internal/document"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
)

// Store implements the rfp, response, document, auth and audit persistence
// contracts plus the policy context resolver, with in-process concurrency
// safety. All methods hand out copies.
type Store struct {
	mu        sync.RWMutex
	rfps      map[string]*rfp.RFP
	responses map[string]*response.Response
	documents map[string][]document.Document
	users     map[string]*auth.User
	roles     map[string]*auth.Role
	audits    []audit.Entry
}

var (
	_ rfp.Store              = (*Store)(nil)
	_ response.Store         = (*Store)(nil)
	_ document.Store         = (*Store)(nil)
	_ auth.UserStore         = (*Store)(nil)
	_ auth.RoleStore         = (*Store)(nil)
	_ policy.ContextResolver = (*Store)(nil)
	_ audit.Recorder         = (*Store)(nil)
)

// New creates an empty store.
func New() *Store {
	return &Store{
		rfps:      make(map[string]*rfp.RFP),
		responses: make(map[string]*response.Response),
		documents: make(map[string][]document.Document),
		users:     make(map[string]*auth.User),
		roles:     make(map[string]*auth.Role),
	}
}

// SeedBuiltinRoles installs the built-in role -> policy table.
func (s *Store) SeedBuiltinRoles() {
	now := time.Now().UTC()
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, p := range policy.Builtin() {
		s.roles[name] = &auth.Role{Name: name, Policy: p, CreatedAt: now, UpdatedAt: now}
	}
}

func copyRFP(r *rfp.RFP) rfp.RFP {
	out := *r
	out.Versions = make([]rfp.Version, len(r.Versions))
	copy(out.Versions, r.Versions)
	sort.Slice(out.Versions, func(i, j int) bool { return out.Versions[i].Number < out.Versions[j].Number })
	return out
}

// --- rfp.Store ---

func (s *Store) CreateRFP(ctx context.Context, r *rfp.RFP) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := copyRFP(r)
	s.rfps[r.ID] = &stored
	return nil
}

func (s *Store) GetRFP(ctx context.Context, id string) (rfp.RFP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getRFPLocked(id)
}

func (s *Store) getRFPLocked(id string) (rfp.RFP, error) {
	r, ok := s.rfps[id]
	if !ok || r.DeletedAt != nil {
		return rfp.RFP{}, rfp.ErrNotFound
	}
	return copyRFP(r), nil
}

func (s *Store) ListRFPs(ctx context.Context, f rfp.Filter) ([]rfp.RFP, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []rfp.RFP
	for _, r := range s.rfps {
		if r.DeletedAt != nil {
			continue
		}
		if f.BuyerID != "" && r.BuyerID != f.BuyerID {
			continue
		}
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		out = append(out, copyRFP(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) AddVersion(ctx context.Context, rfpID string, v *rfp.Version) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rfps[rfpID]
	if !ok || r.DeletedAt != nil {
		return rfp.ErrNotFound
	}
	if r.Status != rfp.StatusDraft {
		return rfp.ErrInvalidState
	}
	next := 0
	for _, existing := range r.Versions {
		if existing.Number > next {
			next = existing.Number
		}
	}
	v.Number = next + 1
	v.RFPID = rfpID
	r.Versions = append(r.Versions, *v)
	r.CurrentVersion = v.Number
	r.UpdatedAt = v.CreatedAt
	return nil
}

func (s *Store) SetCurrentVersion(ctx context.Context, rfpID string, number int, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rfps[rfpID]
	if !ok || r.DeletedAt != nil {
		return rfp.ErrNotFound
	}
	if r.Status != rfp.StatusDraft {
		return rfp.ErrInvalidState
	}
	for _, v := range r.Versions {
		if v.Number == number {
			r.CurrentVersion = number
			r.UpdatedAt = at
			return nil
		}
	}
	return rfp.ErrNotFound
}

func (s *Store) UpdateVersion(ctx context.Context, rfpID string, number int, upd rfp.VersionUpdate, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rfps[rfpID]
	if !ok || r.DeletedAt != nil {
		return rfp.ErrNotFound
	}
	for i := range r.Versions {
		if r.Versions[i].Number != number {
			continue
		}
		if upd.Description != nil {
			r.Versions[i].Description = *upd.Description
		}
		r.Versions[i].UpdatedAt = at
		r.UpdatedAt = at
		return nil
	}
	return rfp.ErrNotFound
}

func (s *Store) UpdateRFPTitle(ctx context.Context, rfpID, title string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rfps[rfpID]
	if !ok || r.DeletedAt != nil {
		return rfp.ErrNotFound
	}
	r.Title = title
	r.UpdatedAt = at
	return nil
}

func (s *Store) UpdateRFPStatus(ctx context.Context, rfpID string, from, to rfp.Status, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rfps[rfpID]
	if !ok || r.DeletedAt != nil {
		return rfp.ErrNotFound
	}
	if r.Status != from {
		return rfp.ErrInvalidState
	}
	r.Status = to
	r.UpdatedAt = at
	return nil
}

func (s *Store) DeleteRFP(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rfps[id]
	if !ok || r.DeletedAt != nil {
		return rfp.ErrNotFound
	}
	r.DeletedAt = &at
	r.UpdatedAt = at
	return nil
}

// --- response.Store ---

func (s *Store) CreateResponse(ctx context.Context, r *response.Response) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.rfps[r.RFPID]
	if !ok || parent.DeletedAt != nil {
		return rfp.ErrNotFound
	}
	for _, existing := range s.responses {
		if existing.DeletedAt == nil && existing.RFPID == r.RFPID && existing.SupplierID == r.SupplierID {
			return response.ErrDuplicate
		}
	}
	stored := *r
	s.responses[r.ID] = &stored
	return nil
}

func (s *Store) GetResponse(ctx context.Context, id string) (response.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[id]
	if !ok || r.DeletedAt != nil {
		return response.Response{}, response.ErrNotFound
	}
	return *r, nil
}

func (s *Store) ListResponsesByRFP(ctx context.Context, rfpID string) ([]response.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []response.Response
	for _, r := range s.responses {
		if r.DeletedAt == nil && r.RFPID == rfpID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) ListResponsesBySupplier(ctx context.Context, supplierID string) ([]response.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []response.Response
	for _, r := range s.responses {
		if r.DeletedAt == nil && r.SupplierID == supplierID {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *Store) UpdateResponseContent(ctx context.Context, id string, upd response.ContentUpdate, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok || r.DeletedAt != nil {
		return response.ErrNotFound
	}
	if upd.Proposal != nil {
		r.Proposal = *upd.Proposal
	}
	if upd.Price != nil {
		r.Price = *upd.Price
	}
	r.UpdatedAt = at
	return nil
}

func (s *Store) UpdateResponseStatus(ctx context.Context, id string, from, to response.Status, upd response.StatusUpdate, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok || r.DeletedAt != nil {
		return response.ErrNotFound
	}
	if r.Status != from {
		return response.ErrInvalidState
	}
	r.Status = to
	if upd.RejectionReason != nil {
		r.RejectionReason = *upd.RejectionReason
	}
	if upd.SetSubmittedAt {
		t := at
		r.SubmittedAt = &t
	}
	if upd.SetReviewedAt {
		t := at
		r.ReviewedAt = &t
	}
	if upd.SetDecidedAt {
		t := at
		r.DecidedAt = &t
	}
	if upd.ClearDecision {
		r.RejectionReason = ""
		r.DecidedAt = nil
	}
	r.UpdatedAt = at
	return nil
}

func (s *Store) DeleteResponse(ctx context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.responses[id]
	if !ok || r.DeletedAt != nil {
		return response.ErrNotFound
	}
	r.DeletedAt = &at
	r.UpdatedAt = at
	return nil
}

// AwardResponse re-checks the full award invariant under the store lock so
// two concurrent award calls can never both commit.
func (s *Store) AwardResponse(ctx context.Context, rfpID, responseID string, at time.Time) (rfp.Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	parent, ok := s.rfps[rfpID]
	if !ok || parent.DeletedAt != nil {
		return "", rfp.ErrNotFound
	}
	if parent.AwardedResponseID != "" {
		return "", rfp.ErrAlreadyAwarded
	}
	if parent.Status != rfp.StatusPublished && parent.Status != rfp.StatusClosed {
		return "", rfp.ErrInvalidState
	}
	r, ok := s.responses[responseID]
	if !ok || r.DeletedAt != nil {
		return "", response.ErrNotFound
	}
	if r.RFPID != rfpID || r.Status != response.StatusApproved {
		return "", response.ErrInvalidState
	}

	from := parent.Status
	parent.Status = rfp.StatusAwarded
	parent.AwardedResponseID = responseID
	parent.UpdatedAt = at
	r.Status = response.StatusAwarded
	t := at
	r.DecidedAt = &t
	r.UpdatedAt = at
	return from, nil
}

// --- document.Store ---

func (s *Store) CreateDocument(ctx context.Context, d *document.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := d.ParentKind + "/" + d.ParentID
	s.documents[key] = append(s.documents[key], *d)
	return nil
}

func (s *Store) ListDocumentsByParent(ctx context.Context, parentKind, parentID string) ([]document.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	docs := s.documents[parentKind+"/"+parentID]
	out := make([]document.Document, len(docs))
	copy(out, docs)
	return out, nil
}

// --- auth stores ---

func (s *Store) CreateUser(ctx context.Context, u *auth.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	email := strings.ToLower(u.Email)
	for _, existing := range s.users {
		if strings.ToLower(existing.Email) == email {
			return auth.ErrConflict
		}
	}
	stored := *u
	s.users[u.ID] = &stored
	return nil
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (auth.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range s.users {
		if strings.ToLower(u.Email) == email {
			return *u, nil
		}
	}
	return auth.User{}, auth.ErrNotFound
}

func (s *Store) ListRoles(ctx context.Context) ([]auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []auth.Role
	for _, r := range s.roles {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) GetRole(ctx context.Context, name string) (auth.Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return auth.Role{}, auth.ErrNotFound
	}
	return *r, nil
}

func (s *Store) SetRolePolicy(ctx context.Context, name string, p policy.Policy, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	name = strings.ToLower(strings.TrimSpace(name))
	r, ok := s.roles[name]
	if !ok {
		r = &auth.Role{Name: name, CreatedAt: at}
		s.roles[name] = r
	}
	r.Policy = p
	r.UpdatedAt = at
	return nil
}

// --- policy.ContextResolver ---

func (s *Store) GetOwner(ctx context.Context, kind, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case rfp.Kind:
		r, ok := s.rfps[id]
		if !ok || r.DeletedAt != nil {
			return "", policy.ErrNotFound
		}
		return r.BuyerID, nil
	case response.Kind:
		r, ok := s.responses[id]
		if !ok || r.DeletedAt != nil {
			return "", policy.ErrNotFound
		}
		return r.SupplierID, nil
	default:
		return "", policy.ErrNotFound
	}
}

func (s *Store) GetStatus(ctx context.Context, kind, id string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch kind {
	case rfp.Kind:
		r, ok := s.rfps[id]
		if !ok || r.DeletedAt != nil {
			return "", policy.ErrNotFound
		}
		return string(r.Status), nil
	case response.Kind:
		r, ok := s.responses[id]
		if !ok || r.DeletedAt != nil {
			return "", policy.ErrNotFound
		}
		return string(r.Status), nil
	default:
		return "", policy.ErrNotFound
	}
}

func (s *Store) GetParentRFPOwner(ctx context.Context, responseID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.responses[responseID]
	if !ok || r.DeletedAt != nil {
		return "", policy.ErrNotFound
	}
	parent, ok := s.rfps[r.RFPID]
	if !ok || parent.DeletedAt != nil {
		return "", policy.ErrNotFound
	}
	return parent.BuyerID, nil
}

// --- audit.Recorder ---

func (s *Store) Record(ctx context.Context, e audit.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audits = append(s.audits, e)
	return nil
}

// AuditEntries returns a copy of the recorded entries, oldest first.
func (s *Store) AuditEntries() []audit.Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Entry, len(s.audits))
	copy(out, s.audits)
	return out
}
