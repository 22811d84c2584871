package httpapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"rfphub.org/internal/policy"
)

func (a *API) handleRolesCollection(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	if _, ok := a.authorize(w, r, policy.KindRoles, policy.ActionRead, nil, ""); !ok {
		return
	}
	roles, err := a.roles.ListRoles(r.Context())
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": roles})
}

func (a *API) handleRoleResource(w http.ResponseWriter, r *http.Request) {
	path := strings.Trim(strings.TrimPrefix(r.URL.Path, "/v1/roles/"), "/")
	if path == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	parts := strings.Split(path, "/")
	name := parts[0]

	if len(parts) == 1 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w, r, http.MethodGet)
			return
		}
		if _, ok := a.authorize(w, r, policy.KindRoles, policy.ActionRead, nil, ""); !ok {
			return
		}
		role, err := a.roles.GetRole(r.Context(), name)
		if err != nil {
			handleDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, role)
		return
	}
	if len(parts) != 2 || parts[1] != "policy" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPut {
		methodNotAllowed(w, r, http.MethodPut)
		return
	}
	a.updateRolePolicy(w, r, name)
}

// updateRolePolicy replaces a role's policy document. The document is
// validated before it is stored; in-flight requests keep their snapshot and
// later requests see the new policy in full.
func (a *API) updateRolePolicy(w http.ResponseWriter, r *http.Request, name string) {
	if _, ok := a.authorize(w, r, policy.KindRoles, policy.ActionManage, nil, ""); !ok {
		return
	}
	var raw json.RawMessage
	if err := decodeJSON(w, r, &raw); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	p, err := policy.Parse(raw)
	if err != nil {
		handleDomainError(w, r, err)
		return
	}
	if err := a.roles.SetRolePolicy(r.Context(), name, p, time.Now().UTC()); err != nil {
		handleDomainError(w, r, err)
		return
	}
	a.audit(r.Context(), "role.policy.update", policy.KindRoles, name, map[string]string{
		"kinds": strings.Join(policyKinds(p), ","),
	})
	w.WriteHeader(http.StatusNoContent)
}

func policyKinds(p policy.Policy) []string {
	kinds := make([]string, 0, len(p))
	for kind := range p {
		kinds = append(kinds, kind)
	}
	return kinds
}
