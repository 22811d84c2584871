// Package httpapi is the HTTP surface: routing, authentication, request
// authorization and the JSON codecs. Domain rules live in the lifecycle
// services; this layer only translates.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"time"

	"rfphub.org/internal/audit"
	"rfphub.org/internal/auth"
	"rfphub.org/internal/document"
	"rfphub.org/internal/obs"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
	"rfphub.org/internal/stream"
)

// ReadyProbe reports whether the backing store is reachable.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// Deps bundles everything the HTTP layer serves.
type Deps struct {
	Gate      *policy.Gate
	Resolver  policy.ContextResolver
	RFPs      *rfp.Service
	Responses *response.Service
	Documents *document.Service
	Users     auth.UserStore
	Roles     auth.RoleStore
	Recorder  audit.Recorder
	Stream    *stream.Stream
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	gate      *policy.Gate
	resolver  policy.ContextResolver
	rfps      *rfp.Service
	responses *response.Service
	documents *document.Service
	users     auth.UserStore
	roles     auth.RoleStore
	rec       audit.Recorder
	stream    *stream.Stream
}

func New(rp ReadyProbe, version string, deps Deps) *API {
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		gate:       deps.Gate,
		resolver:   deps.Resolver,
		rfps:       deps.RFPs,
		responses:  deps.Responses,
		documents:  deps.Documents,
		users:      deps.Users,
		roles:      deps.Roles,
		rec:        deps.Recorder,
		stream:     deps.Stream,
	}

	// health/ready/info
	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)

	// Prometheus metrics
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/auth/token", a.handleAuthToken)

	a.mux.HandleFunc("/v1/rfps", a.handleRFPCollection)
	a.mux.HandleFunc("/v1/rfps/", a.handleRFPResource)
	a.mux.HandleFunc("/v1/responses", a.handleResponseCollection)
	a.mux.HandleFunc("/v1/responses/", a.handleResponseResource)
	a.mux.HandleFunc("/v1/roles", a.handleRolesCollection)
	a.mux.HandleFunc("/v1/roles/", a.handleRoleResource)

	a.mux.HandleFunc("/v1/stream/transitions", a.StreamTransitions)

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a
}

// Handler assembles the middleware chain around the mux.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = RateLimit(h, 50, 25)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = RequestID(h)
	h = Logging(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "rfphub-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.readyProbe.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "rfphub-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

func (a *API) audit(ctx context.Context, action, targetKind, targetID string, details map[string]string) {
	actor, _ := auth.ActorFromContext(ctx)
	audit.Emit(ctx, a.rec, audit.Entry{
		ActorID:    actor.ID,
		Action:     action,
		TargetKind: targetKind,
		TargetID:   targetID,
		Details:    details,
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
