package httpapi

import (
	"net/http"
	"strings"
	"time"

	"rfphub.org/internal/auth"
	"rfphub.org/internal/document"
	"rfphub.org/internal/obs"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
)

type createRFPRequest struct {
	Title        string    `json:"title"`
	Description  string    `json:"description"`
	Requirements string    `json:"requirements"`
	BudgetMin    int64     `json:"budget_min"`
	BudgetMax    int64     `json:"budget_max"`
	Deadline     time.Time `json:"deadline"`
}

type updateRFPRequest struct {
	Title        *string    `json:"title"`
	Description  *string    `json:"description"`
	Requirements *string    `json:"requirements"`
	BudgetMin    *int64     `json:"budget_min"`
	BudgetMax    *int64     `json:"budget_max"`
	Deadline     *time.Time `json:"deadline"`
}

type createVersionRequest struct {
	Description  string    `json:"description"`
	Requirements string    `json:"requirements"`
	BudgetMin    int64     `json:"budget_min"`
	BudgetMax    int64     `json:"budget_max"`
	Deadline     time.Time `json:"deadline"`
}

type switchVersionRequest struct {
	Number int `json:"number"`
}

type statusChangeRequest struct {
	Target string `json:"target"`
}

type awardRequest struct {
	ResponseID string `json:"response_id"`
}

type registerDocumentRequest struct {
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
}

type createResponseRequest struct {
	Proposal string `json:"proposal"`
	Price    int64  `json:"price"`
}

func (a *API) handleRFPCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createRFP(w, r)
	case http.MethodGet:
		a.listRFPs(w, r)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) createRFP(w http.ResponseWriter, r *http.Request) {
	actor, ok := a.authorize(w, r, rfp.Kind, policy.ActionCreate, nil, "")
	if !ok {
		return
	}
	var req createRFPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.rfps.Create(r.Context(), actor.ID, rfp.CreateInput{
		Title:        req.Title,
		Description:  req.Description,
		Requirements: req.Requirements,
		BudgetMin:    req.BudgetMin,
		BudgetMax:    req.BudgetMax,
		Deadline:     req.Deadline,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/rfps/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}

// listRFPs narrows the listing by the read rule's scope instead of denying:
// own scope lists the actor's RFPs, published scope lists the public ones.
func (a *API) listRFPs(w http.ResponseWriter, r *http.Request) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	rule, granted := actor.Policy.Rule(rfp.Kind, policy.ActionRead)
	if !granted || !rule.Allowed {
		obs.ObserveDecision(rfp.Kind, policy.ActionRead, false, string(policy.ReasonNotGranted))
		writeForbidden(w, r, policy.ReasonNotGranted)
		return
	}
	obs.ObserveDecision(rfp.Kind, policy.ActionRead, true, "")

	f := rfp.Filter{Status: rfp.Status(strings.TrimSpace(r.URL.Query().Get("status")))}
	switch rule.Scope {
	case policy.ScopeOwn:
		f.BuyerID = actor.ID
	case policy.ScopePublished:
		f.Status = rfp.StatusPublished
	}
	items, err := a.rfps.List(r.Context(), f)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleRFPResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/rfps/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.getRFP(w, r, id)
		case http.MethodPatch:
			a.updateRFP(w, r, id)
		case http.MethodDelete:
			a.deleteRFP(w, r, id)
		default:
			methodNotAllowed(w, r, http.MethodGet, http.MethodPatch, http.MethodDelete)
		}
		return
	}
	if len(parts) != 2 {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch parts[1] {
	case "versions":
		a.createRFPVersion(w, r, id)
	case "current_version":
		a.switchRFPVersion(w, r, id)
	case "status":
		a.changeRFPStatus(w, r, id)
	case "award":
		a.awardRFP(w, r, id)
	case "documents":
		a.handleRFPDocuments(w, r, id)
	case "responses":
		a.handleRFPResponses(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getRFP(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.authorize(w, r, rfp.Kind, policy.ActionRead, &policy.ResourceRef{ID: id}, ""); !ok {
		return
	}
	item, err := a.rfps.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) updateRFP(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.authorize(w, r, rfp.Kind, policy.ActionUpdate, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	var req updateRFPRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := a.rfps.Update(r.Context(), actor.ID, id, rfp.UpdateInput{
		Title:        req.Title,
		Description:  req.Description,
		Requirements: req.Requirements,
		BudgetMin:    req.BudgetMin,
		BudgetMax:    req.BudgetMax,
		Deadline:     req.Deadline,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteRFP(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.authorize(w, r, rfp.Kind, policy.ActionDelete, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	if err := a.rfps.Delete(r.Context(), actor.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) createRFPVersion(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.authorize(w, r, rfp.Kind, policy.ActionCreateVersion, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	var req createVersionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	v, err := a.rfps.CreateVersion(r.Context(), actor.ID, id, rfp.VersionInput{
		Description:  req.Description,
		Requirements: req.Requirements,
		BudgetMin:    req.BudgetMin,
		BudgetMax:    req.BudgetMax,
		Deadline:     req.Deadline,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (a *API) switchRFPVersion(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	actor, ok := a.authorize(w, r, rfp.Kind, policy.ActionSwitchVersion, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	var req switchVersionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if req.Number < 1 {
		writeError(w, r, http.StatusBadRequest, "number must be >= 1")
		return
	}
	if err := a.rfps.SwitchVersion(r.Context(), actor.ID, id, req.Number); err != nil {
		handleDomainError(w, r, err)
		return
	}
	item, err := a.rfps.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) changeRFPStatus(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req statusChangeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target := rfp.Status(strings.TrimSpace(req.Target))
	actor, ok := a.authorize(w, r, rfp.Kind, policy.ActionUpdateStatus, &policy.ResourceRef{ID: id}, string(target))
	if !ok {
		return
	}
	var err error
	switch target {
	case rfp.StatusPublished:
		err = a.rfps.Publish(r.Context(), actor.ID, id)
	case rfp.StatusClosed:
		err = a.rfps.Close(r.Context(), actor.ID, id)
	case rfp.StatusCancelled:
		err = a.rfps.Cancel(r.Context(), actor.ID, id)
	default:
		writeError(w, r, http.StatusBadRequest, "target must be one of Published, Closed, Cancelled")
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	item, err := a.rfps.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) awardRFP(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.authorize(w, r, rfp.Kind, policy.ActionAward, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	var req awardRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.ResponseID) == "" {
		writeError(w, r, http.StatusBadRequest, "response_id is required")
		return
	}
	if err := a.responses.Award(r.Context(), actor.ID, id, req.ResponseID); err != nil {
		handleDomainError(w, r, err)
		return
	}
	item, err := a.rfps.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleRFPDocuments(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		// Reading attachments follows from being allowed to read the RFP.
		if _, ok := a.authorize(w, r, rfp.Kind, policy.ActionRead, &policy.ResourceRef{ID: id}, ""); !ok {
			return
		}
		docs, err := a.documents.ListByParent(r.Context(), rfp.Kind, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": docs})
	case http.MethodPost:
		actor, ok := a.authorize(w, r, document.Kind, policy.ActionUploadRFPDocument, &policy.ResourceRef{ID: id}, "")
		if !ok {
			return
		}
		a.registerDocument(w, r, actor, rfp.Kind, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

func (a *API) registerDocument(w http.ResponseWriter, r *http.Request, actor auth.Actor, parentKind, parentID string) {
	var req registerDocumentRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	doc, err := a.documents.Register(r.Context(), actor.ID, document.RegisterInput{
		ParentKind:  parentKind,
		ParentID:    parentID,
		Name:        req.Name,
		ContentType: req.ContentType,
		SizeBytes:   req.SizeBytes,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (a *API) handleRFPResponses(w http.ResponseWriter, r *http.Request, rfpID string) {
	switch r.Method {
	case http.MethodGet:
		a.listRFPResponses(w, r, rfpID)
	case http.MethodPost:
		a.createResponse(w, r, rfpID)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}

// listRFPResponses applies the response read rule's scope as a filter:
// rfp_owner scope requires owning this RFP, own scope narrows to the actor's
// responses.
func (a *API) listRFPResponses(w http.ResponseWriter, r *http.Request, rfpID string) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return
	}
	rule, granted := actor.Policy.Rule(response.Kind, policy.ActionRead)
	if !granted || !rule.Allowed {
		obs.ObserveDecision(response.Kind, policy.ActionRead, false, string(policy.ReasonNotGranted))
		writeForbidden(w, r, policy.ReasonNotGranted)
		return
	}

	ownOnly := false
	switch rule.Scope {
	case policy.ScopeRFPOwner:
		owner, err := a.resolver.GetOwner(r.Context(), rfp.Kind, rfpID)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		if owner != actor.ID {
			obs.ObserveDecision(response.Kind, policy.ActionRead, false, string(policy.ReasonNotRFPOwner))
			writeForbidden(w, r, policy.ReasonNotRFPOwner)
			return
		}
	case policy.ScopeOwn:
		ownOnly = true
	}
	obs.ObserveDecision(response.Kind, policy.ActionRead, true, "")

	items, err := a.responses.ListByRFP(r.Context(), rfpID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if ownOnly {
		filtered := items[:0]
		for _, item := range items {
			if item.SupplierID == actor.ID {
				filtered = append(filtered, item)
			}
		}
		items = filtered
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) createResponse(w http.ResponseWriter, r *http.Request, rfpID string) {
	actor, ok := a.authorize(w, r, response.Kind, policy.ActionCreate, &policy.ResourceRef{ID: rfpID}, "")
	if !ok {
		return
	}
	var req createResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.responses.Create(r.Context(), actor.ID, response.CreateInput{
		RFPID:    rfpID,
		Proposal: req.Proposal,
		Price:    req.Price,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.Header().Set("Location", "/v1/responses/"+created.ID)
	writeJSON(w, http.StatusCreated, created)
}
