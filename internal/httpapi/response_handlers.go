package httpapi

import (
	"net/http"
	"strings"

	"rfphub.org/internal/auth"
	"rfphub.org/internal/document"
	"rfphub.org/internal/obs"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
)

type updateResponseRequest struct {
	Proposal *string `json:"proposal"`
	Price    *int64  `json:"price"`
}

type reviewRequest struct {
	TargetStatus string `json:"target_status"`
	Reason       string `json:"reason"`
}

// handleResponseCollection lists the caller's own responses.
func (a *API) handleResponseCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
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
	obs.ObserveDecision(response.Kind, policy.ActionRead, true, "")

	items, err := a.responses.ListBySupplier(r.Context(), actor.ID)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (a *API) handleResponseResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/responses/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	id := parts[0]

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodGet:
			a.getResponse(w, r, id)
		case http.MethodPatch:
			a.updateResponse(w, r, id)
		case http.MethodDelete:
			a.deleteResponse(w, r, id)
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
	case "submit":
		a.submitResponse(w, r, id)
	case "review":
		a.reviewResponse(w, r, id)
	case "reopen":
		a.reopenResponse(w, r, id)
	case "documents":
		a.handleResponseDocuments(w, r, id)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) getResponse(w http.ResponseWriter, r *http.Request, id string) {
	if _, ok := a.authorize(w, r, response.Kind, policy.ActionRead, &policy.ResourceRef{ID: id}, ""); !ok {
		return
	}
	item, err := a.responses.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) updateResponse(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.authorize(w, r, response.Kind, policy.ActionUpdate, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	var req updateResponseRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	updated, err := a.responses.Update(r.Context(), actor.ID, id, response.ContentUpdate{
		Proposal: req.Proposal,
		Price:    req.Price,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (a *API) deleteResponse(w http.ResponseWriter, r *http.Request, id string) {
	actor, ok := a.authorize(w, r, response.Kind, policy.ActionDelete, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	if err := a.responses.Delete(r.Context(), actor.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) submitResponse(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.authorize(w, r, response.Kind, policy.ActionSubmit, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	if err := a.responses.Submit(r.Context(), actor.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	item, err := a.responses.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// reviewResponse drives the buyer's side of the review machine. The target
// status selects the move; the transition table in the actor's policy decides
// whether the move is granted from the current status.
func (a *API) reviewResponse(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	target := response.Status(strings.TrimSpace(req.TargetStatus))
	actor, ok := a.authorize(w, r, response.Kind, policy.ActionReview, &policy.ResourceRef{ID: id}, string(target))
	if !ok {
		return
	}
	var err error
	switch target {
	case response.StatusUnderReview:
		err = a.responses.MoveToReview(r.Context(), actor.ID, id)
	case response.StatusApproved:
		err = a.responses.Approve(r.Context(), actor.ID, id)
	case response.StatusRejected:
		err = a.responses.Reject(r.Context(), actor.ID, id, req.Reason)
	default:
		writeError(w, r, http.StatusBadRequest, "target_status must be one of Under_Review, Approved, Rejected")
		return
	}
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	item, err := a.responses.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) reopenResponse(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	actor, ok := a.authorize(w, r, response.Kind, policy.ActionReopen, &policy.ResourceRef{ID: id}, "")
	if !ok {
		return
	}
	if err := a.responses.Reopen(r.Context(), actor.ID, id); err != nil {
		handleDomainError(w, r, err)
		return
	}
	item, err := a.responses.Get(r.Context(), id)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

func (a *API) handleResponseDocuments(w http.ResponseWriter, r *http.Request, id string) {
	switch r.Method {
	case http.MethodGet:
		// Reading attachments follows from being allowed to read the response.
		if _, ok := a.authorize(w, r, response.Kind, policy.ActionRead, &policy.ResourceRef{ID: id}, ""); !ok {
			return
		}
		docs, err := a.documents.ListByParent(r.Context(), response.Kind, id)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": docs})
	case http.MethodPost:
		actor, ok := a.authorize(w, r, document.Kind, policy.ActionUploadResponseDocument, &policy.ResourceRef{ID: id}, "")
		if !ok {
			return
		}
		a.registerDocument(w, r, actor, response.Kind, id)
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost)
	}
}
