package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"rfphub.org/internal/auth"
	"rfphub.org/internal/obs"
	"rfphub.org/internal/policy"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "
)

var publicPaths = []string{
	"/v1/auth/token",
	"/metrics",
	"/healthz",
	"/readyz",
	"/v1/info",
	"/",
}

// withAuth authenticates the bearer token and attaches the actor with its
// role's policy snapshot. The snapshot is resolved exactly once here; every
// authorization check for the request runs against it.
func (a *API) withAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodOptions || isPublicPath(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			writeError(w, r, http.StatusUnauthorized, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				writeError(w, r, http.StatusUnauthorized, "invalid token")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		role, err := a.roles.GetRole(r.Context(), claims.Role)
		if err != nil {
			if errors.Is(err, auth.ErrNotFound) {
				writeError(w, r, http.StatusUnauthorized, "unknown role")
				return
			}
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		actor := auth.Actor{ID: claims.Subject, Role: role.Name, Policy: role.Policy}
		next.ServeHTTP(w, r.WithContext(auth.ContextWithActor(r.Context(), actor)))
	})
}

// authorize runs the gate for the given kind/action and writes the refusal
// itself. Returns the actor and true only on a Permit.
func (a *API) authorize(w http.ResponseWriter, r *http.Request, kind, action string, ref *policy.ResourceRef, targetStatus string) (auth.Actor, bool) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "authentication required")
		return auth.Actor{}, false
	}
	decision, err := a.gate.Decide(r.Context(), policy.Request{
		ActorID:      actor.ID,
		Policy:       actor.Policy,
		Kind:         kind,
		Action:       action,
		Ref:          ref,
		TargetStatus: targetStatus,
	})
	if err != nil {
		handleDomainError(w, r, err)
		return auth.Actor{}, false
	}
	obs.ObserveDecision(kind, action, decision.Allowed, string(decision.Reason))
	if !decision.Allowed {
		writeForbidden(w, r, decision.Reason)
		return auth.Actor{}, false
	}
	return actor, true
}

func writeForbidden(w http.ResponseWriter, r *http.Request, reason policy.DenyReason) {
	payload := map[string]any{
		"error":  "forbidden",
		"reason": string(reason),
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, http.StatusForbidden, payload)
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if !strings.HasPrefix(strings.ToLower(header), strings.ToLower(bearer)) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}

func isPublicPath(path string) bool {
	for _, p := range publicPaths {
		if path == p {
			return true
		}
	}
	return false
}
