package policy

import (
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
)

// Action names used across the permission table and the HTTP layer.
const (
	ActionCreate                 = "create"
	ActionRead                   = "read"
	ActionUpdate                 = "update"
	ActionDelete                 = "delete"
	ActionUpdateStatus           = "update_status"
	ActionCreateVersion          = "create_version"
	ActionSwitchVersion          = "switch_version"
	ActionAward                  = "award"
	ActionSubmit                 = "submit"
	ActionReview                 = "review"
	ActionReopen                 = "reopen"
	ActionUploadRFPDocument      = "upload_rfp_document"
	ActionUploadResponseDocument = "upload_response_document"
	ActionManage                 = "manage"
)

// publishedStatus is the RFP status a ScopePublished rule resolves against.
const publishedStatus = string(rfp.StatusPublished)

// Built-in role names seeded at install time.
const (
	RoleAdmin    = "admin"
	RoleBuyer    = "buyer"
	RoleSupplier = "supplier"
)

// AdminPolicy grants every known action without scope constraints. The
// lifecycle machines still refuse illegal transitions.
func AdminPolicy() Policy {
	actions := map[string][]string{
		KindRFP:       {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionUpdateStatus, ActionCreateVersion, ActionSwitchVersion, ActionAward},
		KindResponse:  {ActionCreate, ActionRead, ActionUpdate, ActionDelete, ActionSubmit, ActionReview, ActionReopen},
		KindDocuments: {ActionUploadRFPDocument, ActionUploadResponseDocument, ActionRead},
		KindRoles:     {ActionRead, ActionManage},
	}
	p := Policy{}
	for kind, names := range actions {
		p[kind] = map[string]Rule{}
		for _, a := range names {
			p[kind][a] = Rule{Allowed: true}
		}
	}
	return p
}

// BuyerPolicy covers the RFP-owner side of the workflow.
func BuyerPolicy() Policy {
	return Policy{
		KindRFP: {
			ActionCreate: {Allowed: true},
			ActionRead:   {Allowed: true, Scope: ScopeOwn},
			ActionUpdate: {Allowed: true, Scope: ScopeOwn},
			ActionCreateVersion: {
				Allowed: true, Scope: ScopeOwn,
				AllowedResourceStatuses: []string{string(rfp.StatusDraft)},
			},
			ActionSwitchVersion: {
				Allowed: true, Scope: ScopeOwn,
				AllowedResourceStatuses: []string{string(rfp.StatusDraft)},
			},
			ActionUpdateStatus: {
				Allowed: true, Scope: ScopeOwn,
				AllowedTransitions: map[string][]string{
					string(rfp.StatusDraft):     {string(rfp.StatusPublished), string(rfp.StatusCancelled)},
					string(rfp.StatusPublished): {string(rfp.StatusClosed), string(rfp.StatusCancelled)},
				},
			},
			ActionAward: {
				Allowed: true, Scope: ScopeOwn,
				AllowedResourceStatuses: []string{string(rfp.StatusPublished), string(rfp.StatusClosed)},
			},
			ActionDelete: {Allowed: true, Scope: ScopeOwn},
		},
		KindResponse: {
			ActionRead: {Allowed: true, Scope: ScopeRFPOwner},
			ActionReview: {
				Allowed: true, Scope: ScopeRFPOwner,
				AllowedTransitions: map[string][]string{
					string(response.StatusSubmitted):   {string(response.StatusUnderReview)},
					string(response.StatusUnderReview): {string(response.StatusApproved), string(response.StatusRejected)},
				},
			},
		},
		KindDocuments: {
			ActionUploadRFPDocument: {Allowed: true, Scope: ScopeOwn},
			ActionRead:              {Allowed: true, Scope: ScopeOwn},
		},
	}
}

// SupplierPolicy covers the responding side: published RFPs are readable,
// own responses are editable while Draft and recallable after rejection.
func SupplierPolicy() Policy {
	return Policy{
		KindRFP: {
			ActionRead: {Allowed: true, Scope: ScopePublished},
		},
		KindResponse: {
			ActionCreate: {Allowed: true, Scope: ScopePublished},
			ActionRead:   {Allowed: true, Scope: ScopeOwn},
			ActionUpdate: {
				Allowed: true, Scope: ScopeOwn,
				AllowedResourceStatuses: []string{string(response.StatusDraft)},
			},
			ActionSubmit: {
				Allowed: true, Scope: ScopeOwn,
				AllowedResourceStatuses: []string{string(response.StatusDraft)},
			},
			ActionReopen: {
				Allowed: true, Scope: ScopeOwn,
				AllowedResourceStatuses: []string{string(response.StatusRejected)},
			},
			ActionDelete: {
				Allowed: true, Scope: ScopeOwn,
				AllowedResourceStatuses: []string{string(response.StatusDraft)},
			},
		},
		KindDocuments: {
			ActionUploadResponseDocument: {Allowed: true, Scope: ScopeOwn},
			ActionRead:                   {Allowed: true, Scope: ScopeOwn},
		},
	}
}

// Builtin returns the seeded role -> policy table.
func Builtin() map[string]Policy {
	return map[string]Policy{
		RoleAdmin:    AdminPolicy(),
		RoleBuyer:    BuyerPolicy(),
		RoleSupplier: SupplierPolicy(),
	}
}
