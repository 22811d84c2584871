package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"rfphub.org/internal/auth"
	"rfphub.org/internal/document"
	"rfphub.org/internal/policy"
	"rfphub.org/internal/response"
	"rfphub.org/internal/rfp"
	"rfphub.org/internal/store/memory"
	"rfphub.org/internal/stream"
)

const testPassword = "integration-pw"

type testEnv struct {
	t       *testing.T
	handler http.Handler
	mem     *memory.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	auth.ResetSecretForTests()
	t.Setenv("RFPHUB_AUTH_SECRET", "integration-secret")
	t.Cleanup(auth.ResetSecretForTests)

	mem := memory.New()
	mem.SeedBuiltinRoles()
	now := time.Now().UTC()
	users := []struct{ id, email, role string }{
		{"user-admin", "admin@rfphub.test", "admin"},
		{"user-buyer", "buyer@rfphub.test", "buyer"},
		{"user-buyer-2", "buyer2@rfphub.test", "buyer"},
		{"user-supplier", "supplier@rfphub.test", "supplier"},
	}
	for _, u := range users {
		hash, err := auth.HashPassword(testPassword)
		if err != nil {
			t.Fatalf("HashPassword: %v", err)
		}
		if err := mem.CreateUser(context.Background(), &auth.User{
			ID: u.id, Email: u.email, PasswordHash: hash, Role: u.role,
			Status: auth.UserStatusActive, CreatedAt: now, UpdatedAt: now,
		}); err != nil {
			t.Fatalf("CreateUser %s: %v", u.email, err)
		}
	}

	rfps, err := rfp.NewService(mem, mem)
	if err != nil {
		t.Fatalf("rfp.NewService: %v", err)
	}
	responses, err := response.NewService(mem, mem, mem)
	if err != nil {
		t.Fatalf("response.NewService: %v", err)
	}
	documents, err := document.NewService(mem, mem)
	if err != nil {
		t.Fatalf("document.NewService: %v", err)
	}
	gate, err := policy.NewGate(mem)
	if err != nil {
		t.Fatalf("policy.NewGate: %v", err)
	}

	api := New(ReadyProbe{}, "test", Deps{
		Gate:      gate,
		Resolver:  mem,
		RFPs:      rfps,
		Responses: responses,
		Documents: documents,
		Users:     mem,
		Roles:     mem,
		Recorder:  mem,
		Stream:    stream.New(),
	})
	return &testEnv{t: t, handler: api.Handler(), mem: mem}
}

func (e *testEnv) do(method, path, token string, body any) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			e.t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "192.0.2.10:4000"
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	e.handler.ServeHTTP(rr, req)
	return rr
}

func (e *testEnv) token(email string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email": email, "password": testPassword,
	})
	if rr.Code != http.StatusOK {
		e.t.Fatalf("token for %s: status %d body %s", email, rr.Code, rr.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	decodeBody(e.t, rr, &out)
	return out.Token
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
}

func wantStatus(t *testing.T, rr *httptest.ResponseRecorder, code int) {
	t.Helper()
	if rr.Code != code {
		t.Fatalf("status = %d, want %d, body %s", rr.Code, code, rr.Body.String())
	}
}

func wantForbidden(t *testing.T, rr *httptest.ResponseRecorder, reason string) {
	t.Helper()
	wantStatus(t, rr, http.StatusForbidden)
	var out struct {
		Error  string `json:"error"`
		Reason string `json:"reason"`
	}
	decodeBody(t, rr, &out)
	if out.Error != "forbidden" || out.Reason != reason {
		t.Fatalf("refusal = %+v, want forbidden/%s", out, reason)
	}
}

func createRFPPayload() map[string]any {
	return map[string]any{
		"title":        "Data center refresh",
		"description":  "Replace aging racks",
		"requirements": "Tier III",
		"budget_min":   100_000,
		"budget_max":   500_000,
		"deadline":     time.Now().Add(45 * 24 * time.Hour).Format(time.RFC3339),
	}
}

func (e *testEnv) createPublishedRFP(buyerToken string) string {
	e.t.Helper()
	rr := e.do(http.MethodPost, "/v1/rfps", buyerToken, createRFPPayload())
	wantStatus(e.t, rr, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(e.t, rr, &created)
	rr = e.do(http.MethodPost, "/v1/rfps/"+created.ID+"/status", buyerToken, map[string]string{"target": "Published"})
	wantStatus(e.t, rr, http.StatusOK)
	return created.ID
}

func TestTokenIssuance(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email": "buyer@rfphub.test", "password": "wrong",
	})
	wantStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email": "nobody@rfphub.test", "password": testPassword,
	})
	wantStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(http.MethodPost, "/v1/auth/token", "", map[string]string{
		"email": "buyer@rfphub.test", "password": testPassword,
	})
	wantStatus(t, rr, http.StatusOK)
	var out struct {
		Token string `json:"token"`
		Role  string `json:"role"`
	}
	decodeBody(t, rr, &out)
	if out.Token == "" || out.Role != "buyer" {
		t.Fatalf("unexpected token response: %+v", out)
	}
}

func TestRequestsRequireToken(t *testing.T) {
	env := newTestEnv(t)

	rr := env.do(http.MethodGet, "/v1/rfps", "", nil)
	wantStatus(t, rr, http.StatusUnauthorized)

	rr = env.do(http.MethodGet, "/v1/rfps", "not-a-token", nil)
	wantStatus(t, rr, http.StatusUnauthorized)
}

func TestHealthEndpointsArePublic(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz", "/v1/info"} {
		rr := env.do(http.MethodGet, path, "", nil)
		wantStatus(t, rr, http.StatusOK)
	}
	rr := env.do(http.MethodGet, "/v1/nope", env.token("buyer@rfphub.test"), nil)
	wantStatus(t, rr, http.StatusNotFound)
}

func TestProcurementWorkflow(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")
	supplier := env.token("supplier@rfphub.test")

	rr := env.do(http.MethodPost, "/v1/rfps", buyer, createRFPPayload())
	wantStatus(t, rr, http.StatusCreated)
	var created struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rr, &created)
	if created.Status != "Draft" {
		t.Fatalf("new rfp status = %s", created.Status)
	}

	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/status", buyer, map[string]string{"target": "Published"})
	wantStatus(t, rr, http.StatusOK)

	// Supplier sees the published listing.
	rr = env.do(http.MethodGet, "/v1/rfps", supplier, nil)
	wantStatus(t, rr, http.StatusOK)
	var listing struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	decodeBody(t, rr, &listing)
	if len(listing.Items) != 1 || listing.Items[0].ID != created.ID {
		t.Fatalf("supplier listing = %+v", listing.Items)
	}

	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/responses", supplier, map[string]any{
		"proposal": "Full turnkey build", "price": 420_000,
	})
	wantStatus(t, rr, http.StatusCreated)
	var resp struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	}
	decodeBody(t, rr, &resp)
	if resp.Status != "Draft" {
		t.Fatalf("new response status = %s", resp.Status)
	}

	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/submit", supplier, nil)
	wantStatus(t, rr, http.StatusOK)

	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/review", buyer, map[string]string{"target_status": "Under_Review"})
	wantStatus(t, rr, http.StatusOK)
	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/review", buyer, map[string]string{"target_status": "Approved"})
	wantStatus(t, rr, http.StatusOK)

	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/award", buyer, map[string]string{"response_id": resp.ID})
	wantStatus(t, rr, http.StatusOK)
	var awarded struct {
		Status            string `json:"status"`
		AwardedResponseID string `json:"awarded_response_id"`
	}
	decodeBody(t, rr, &awarded)
	if awarded.Status != "Awarded" || awarded.AwardedResponseID != resp.ID {
		t.Fatalf("award result = %+v", awarded)
	}

	// A second award attempt conflicts.
	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/award", buyer, map[string]string{"response_id": resp.ID})
	wantStatus(t, rr, http.StatusConflict)
}

func TestReviewRejectAndReopen(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")
	supplier := env.token("supplier@rfphub.test")

	rfpID := env.createPublishedRFP(buyer)
	rr := env.do(http.MethodPost, "/v1/rfps/"+rfpID+"/responses", supplier, map[string]any{
		"proposal": "Initial bid", "price": 90_000,
	})
	wantStatus(t, rr, http.StatusCreated)
	var resp struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &resp)

	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/submit", supplier, nil)
	wantStatus(t, rr, http.StatusOK)
	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/review", buyer, map[string]string{"target_status": "Under_Review"})
	wantStatus(t, rr, http.StatusOK)

	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/review", buyer, map[string]string{"target_status": "Rejected"})
	wantStatus(t, rr, http.StatusBadRequest)

	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/review", buyer, map[string]string{
		"target_status": "Rejected", "reason": "over budget",
	})
	wantStatus(t, rr, http.StatusOK)
	var rejected struct {
		Status          string `json:"status"`
		RejectionReason string `json:"rejection_reason"`
	}
	decodeBody(t, rr, &rejected)
	if rejected.Status != "Rejected" || rejected.RejectionReason != "over budget" {
		t.Fatalf("rejection = %+v", rejected)
	}

	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/reopen", supplier, nil)
	wantStatus(t, rr, http.StatusOK)
	var reopened struct {
		Status          string `json:"status"`
		RejectionReason string `json:"rejection_reason"`
	}
	decodeBody(t, rr, &reopened)
	if reopened.Status != "Draft" || reopened.RejectionReason != "" {
		t.Fatalf("reopen = %+v", reopened)
	}
}

func TestScopeRefusals(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")
	otherBuyer := env.token("buyer2@rfphub.test")
	supplier := env.token("supplier@rfphub.test")

	rr := env.do(http.MethodPost, "/v1/rfps", buyer, createRFPPayload())
	wantStatus(t, rr, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &created)

	// Supplier holds no rfp status action at all.
	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/status", supplier, map[string]string{"target": "Published"})
	wantForbidden(t, rr, "not_granted")

	// A different buyer is granted the action but does not own the resource.
	title := "hijacked"
	rr = env.do(http.MethodPatch, "/v1/rfps/"+created.ID, otherBuyer, map[string]any{"title": title})
	wantForbidden(t, rr, "not_owner")

	// A draft is not visible to suppliers.
	rr = env.do(http.MethodGet, "/v1/rfps/"+created.ID, supplier, nil)
	wantForbidden(t, rr, "not_published")
}

func TestDocumentEndpoints(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")
	supplier := env.token("supplier@rfphub.test")

	rfpID := env.createPublishedRFP(buyer)
	rr := env.do(http.MethodPost, "/v1/rfps/"+rfpID+"/documents", buyer, map[string]any{
		"name": "terms.pdf", "content_type": "application/pdf", "size_bytes": 52_000,
	})
	wantStatus(t, rr, http.StatusCreated)

	rr = env.do(http.MethodGet, "/v1/rfps/"+rfpID+"/documents", supplier, nil)
	wantStatus(t, rr, http.StatusOK)
	var docs struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	decodeBody(t, rr, &docs)
	if len(docs.Items) != 1 || docs.Items[0].Name != "terms.pdf" {
		t.Fatalf("document listing = %+v", docs.Items)
	}

	// Suppliers cannot attach to another party's RFP.
	rr = env.do(http.MethodPost, "/v1/rfps/"+rfpID+"/documents", supplier, map[string]any{
		"name": "sneaky.pdf", "content_type": "application/pdf", "size_bytes": 10,
	})
	wantForbidden(t, rr, "not_granted")

	rr = env.do(http.MethodPost, "/v1/rfps/"+rfpID+"/responses", supplier, map[string]any{
		"proposal": "bid", "price": 1000,
	})
	wantStatus(t, rr, http.StatusCreated)
	var resp struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &resp)

	rr = env.do(http.MethodPost, "/v1/responses/"+resp.ID+"/documents", supplier, map[string]any{
		"name": "bid.pdf", "content_type": "application/pdf", "size_bytes": 2048,
	})
	wantStatus(t, rr, http.StatusCreated)

	// The RFP owner reads response attachments through the rfp_owner scope.
	rr = env.do(http.MethodGet, "/v1/responses/"+resp.ID+"/documents", buyer, nil)
	wantStatus(t, rr, http.StatusOK)
}

func TestRoleAdministration(t *testing.T) {
	env := newTestEnv(t)
	admin := env.token("admin@rfphub.test")
	buyer := env.token("buyer@rfphub.test")

	rr := env.do(http.MethodGet, "/v1/roles", admin, nil)
	wantStatus(t, rr, http.StatusOK)
	var listing struct {
		Items []struct {
			Name string `json:"name"`
		} `json:"items"`
	}
	decodeBody(t, rr, &listing)
	if len(listing.Items) != 3 {
		t.Fatalf("role listing = %+v", listing.Items)
	}

	rr = env.do(http.MethodGet, "/v1/roles", buyer, nil)
	wantForbidden(t, rr, "not_granted")

	rr = env.do(http.MethodPut, "/v1/roles/auditor/policy", admin, map[string]any{
		"rfp": map[string]any{
			"read": map[string]any{"allowed": true},
		},
	})
	wantStatus(t, rr, http.StatusNoContent)

	rr = env.do(http.MethodGet, "/v1/roles/auditor", admin, nil)
	wantStatus(t, rr, http.StatusOK)

	rr = env.do(http.MethodPut, "/v1/roles/auditor/policy", admin, map[string]any{
		"rfp": map[string]any{
			"read": map[string]any{"allowed": true, "scope": "galaxy"},
		},
	})
	wantStatus(t, rr, http.StatusBadRequest)

	rr = env.do(http.MethodPut, "/v1/roles/auditor/policy", buyer, map[string]any{})
	wantForbidden(t, rr, "not_granted")
}

func TestVersionEndpoints(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")

	rr := env.do(http.MethodPost, "/v1/rfps", buyer, createRFPPayload())
	wantStatus(t, rr, http.StatusCreated)
	var created struct {
		ID string `json:"id"`
	}
	decodeBody(t, rr, &created)

	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/versions", buyer, map[string]any{
		"description":  "Revised terms",
		"requirements": "Tier IV",
		"budget_min":   120_000,
		"budget_max":   550_000,
		"deadline":     time.Now().Add(60 * 24 * time.Hour).Format(time.RFC3339),
	})
	wantStatus(t, rr, http.StatusCreated)
	var v struct {
		Number int `json:"number"`
	}
	decodeBody(t, rr, &v)
	if v.Number != 2 {
		t.Fatalf("version number = %d, want 2", v.Number)
	}

	rr = env.do(http.MethodPut, "/v1/rfps/"+created.ID+"/current_version", buyer, map[string]int{"number": 1})
	wantStatus(t, rr, http.StatusOK)
	var switched struct {
		CurrentVersion int `json:"current_version"`
	}
	decodeBody(t, rr, &switched)
	if switched.CurrentVersion != 1 {
		t.Fatalf("current version = %d, want 1", switched.CurrentVersion)
	}

	// Versioning ends when the RFP leaves Draft.
	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/status", buyer, map[string]string{"target": "Published"})
	wantStatus(t, rr, http.StatusOK)
	rr = env.do(http.MethodPost, "/v1/rfps/"+created.ID+"/versions", buyer, map[string]any{"description": "late"})
	wantForbidden(t, rr, "status_not_allowed")
}

func TestSupplierResponseListing(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")
	otherBuyer := env.token("buyer2@rfphub.test")
	supplier := env.token("supplier@rfphub.test")

	rfpID := env.createPublishedRFP(buyer)
	rr := env.do(http.MethodPost, "/v1/rfps/"+rfpID+"/responses", supplier, map[string]any{
		"proposal": "bid", "price": 1,
	})
	wantStatus(t, rr, http.StatusCreated)

	// The RFP owner lists all responses to their RFP.
	rr = env.do(http.MethodGet, "/v1/rfps/"+rfpID+"/responses", buyer, nil)
	wantStatus(t, rr, http.StatusOK)
	var items struct {
		Items []struct {
			SupplierID string `json:"supplier_id"`
		} `json:"items"`
	}
	decodeBody(t, rr, &items)
	if len(items.Items) != 1 || items.Items[0].SupplierID != "user-supplier" {
		t.Fatalf("owner listing = %+v", items.Items)
	}

	// A non-owner buyer is refused.
	rr = env.do(http.MethodGet, "/v1/rfps/"+rfpID+"/responses", otherBuyer, nil)
	wantForbidden(t, rr, "not_rfp_owner")

	// The supplier's flat listing shows their own responses.
	rr = env.do(http.MethodGet, "/v1/responses", supplier, nil)
	wantStatus(t, rr, http.StatusOK)
	decodeBody(t, rr, &items)
	if len(items.Items) != 1 {
		t.Fatalf("supplier listing = %+v", items.Items)
	}
}

func TestMalformedBodiesRejected(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")

	req := httptest.NewRequest(http.MethodPost, "/v1/rfps", bytes.NewBufferString(`{"title": "x", "unknown_field": 1}`))
	req.RemoteAddr = "192.0.2.10:4000"
	req.Header.Set("Authorization", "Bearer "+buyer)
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	env.handler.ServeHTTP(rr, req)
	wantStatus(t, rr, http.StatusBadRequest)

	rr = env.do(http.MethodPost, "/v1/rfps", buyer, nil)
	wantStatus(t, rr, http.StatusBadRequest)
}

func TestMethodNotAllowed(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")

	rr := env.do(http.MethodDelete, "/v1/roles", buyer, nil)
	wantStatus(t, rr, http.StatusMethodNotAllowed)
	if allow := rr.Header().Get("Allow"); allow == "" {
		t.Fatal("Allow header missing")
	}

	rr = env.do(http.MethodPut, "/v1/rfps", buyer, nil)
	wantStatus(t, rr, http.StatusMethodNotAllowed)
}

func TestErrorBodiesCarryRequestID(t *testing.T) {
	env := newTestEnv(t)
	buyer := env.token("buyer@rfphub.test")

	rr := env.do(http.MethodGet, fmt.Sprintf("/v1/rfps/%s", "missing-id"), buyer, nil)
	wantStatus(t, rr, http.StatusNotFound)
	var out struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	decodeBody(t, rr, &out)
	if out.RequestID == "" {
		t.Fatal("error body has no request_id")
	}
	if out.RequestID != rr.Header().Get("X-Request-ID") {
		t.Fatalf("body request_id %q != header %q", out.RequestID, rr.Header().Get("X-Request-ID"))
	}
}
