package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"

	"github.com/crewdeck/crewdeck/internal/metrics"
	"github.com/crewdeck/crewdeck/internal/notify"
	"github.com/crewdeck/crewdeck/internal/ratelimit"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/scoped"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

func testRouter() http.Handler {
	return NewRouter(RouterDeps{
		Broker:       notify.NewBroker(),
		LoginLimiter: ratelimit.New(10, time.Minute),
		Metrics:      metrics.New(),
	})
}

func TestHealthCheck(t *testing.T) {
	handler := testRouter()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status=ok, got %q", body["status"])
	}
}

func TestRequestIDMiddleware(t *testing.T) {
	var seen string
	handler := requestIDMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	// Generated when absent.
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if seen == "" || rec.Header().Get("X-Request-ID") != seen {
		t.Fatalf("request id not generated and echoed: %q vs header %q", seen, rec.Header().Get("X-Request-ID"))
	}

	// Preserved when supplied.
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "fixed-id")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if seen != "fixed-id" {
		t.Fatalf("supplied request id not preserved: %q", seen)
	}
}

func TestSecureHeaders(t *testing.T) {
	handler := secureHeaders(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Header().Get("X-Content-Type-Options") != "nosniff" {
		t.Error("missing X-Content-Type-Options header")
	}
	if rec.Header().Get("X-Frame-Options") != "DENY" {
		t.Error("missing X-Frame-Options header")
	}
}

func TestWriteStoreError(t *testing.T) {
	cases := []struct {
		err  error
		code int
	}{
		{scope.ErrUnauthenticated, http.StatusUnauthorized},
		{scoped.ErrForbidden, http.StatusForbidden},
		{scoped.ErrSiteNotFound, http.StatusNotFound},
		{pgx.ErrNoRows, http.StatusNotFound},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		writeStoreError(rec, tc.err, "thing not found")
		if rec.Code != tc.code {
			t.Errorf("writeStoreError(%v) status = %d, want %d", tc.err, rec.Code, tc.code)
		}
		var env errorEnvelope
		if err := json.NewDecoder(rec.Body).Decode(&env); err != nil || env.Error.Code == "" {
			t.Errorf("writeStoreError(%v) body not an error envelope: %v", tc.err, err)
		}
	}
}

func TestAPIRoutesRequireAuth(t *testing.T) {
	handler := testRouter()

	paths := []string{
		"/api/v1/auth/me",
		"/api/v1/me/sites",
		"/api/v1/sites",
		"/api/v1/events",
	}
	for _, path := range paths {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("GET %s without a token = %d, want 401", path, rec.Code)
		}
	}
}

func TestLoginValidation(t *testing.T) {
	h := newAuthHandler(nil)

	// Malformed body.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("malformed body status = %d, want 400", rec.Code)
	}

	// Missing fields.
	req = httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(`{"email":"a@example.com"}`))
	rec = httptest.NewRecorder()
	h.Login(rec, req)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("missing password status = %d, want 422", rec.Code)
	}
}

func TestLoginRateLimited(t *testing.T) {
	handler := NewRouter(RouterDeps{
		Broker:       notify.NewBroker(),
		LoginLimiter: ratelimit.New(1, time.Hour),
		Metrics:      metrics.New(),
	})

	body := `{"email":"a@example.com","password":"x"`
	for i, want := range []int{http.StatusBadRequest, http.StatusTooManyRequests} {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
		req.Header.Set("X-Forwarded-For", "203.0.113.9")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != want {
			t.Fatalf("attempt %d status = %d, want %d", i+1, rec.Code, want)
		}
	}
}

func TestMeSiteRole(t *testing.T) {
	h := newMeHandler(nil)
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	h.now = func() time.Time { return now }

	r := chi.NewRouter()
	r.Get("/me/sites/{siteID}/role", h.SiteRole)

	p := &scope.Principal{
		ID:             "u1",
		OrganizationID: "org1",
		Assignments: []tenant.SiteAssignment{{
			UserID:    "u1",
			SiteID:    "s1",
			Role:      tenant.RoleCrewLead,
			IsActive:  true,
			StartDate: now.AddDate(0, -1, 0),
		}},
	}

	req := httptest.NewRequest(http.MethodGet, "/me/sites/s1/role", nil)
	req = req.WithContext(scope.ContextWithPrincipal(req.Context(), p))
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body["role"] != tenant.RoleCrewLead {
		t.Fatalf("role = %q, want crew-lead", body["role"])
	}

	// No assignment at the site.
	req = httptest.NewRequest(http.MethodGet, "/me/sites/other/role", nil)
	req = req.WithContext(scope.ContextWithPrincipal(req.Context(), p))
	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unassigned site status = %d, want 404", rec.Code)
	}
}

// stubSiteDirectory serves a fixed set of site rows from memory.
type stubSiteDirectory struct {
	sites map[string]*tenant.Site
}

func (s *stubSiteDirectory) AccessibleSites(ctx context.Context, userID string) ([]*tenant.Site, error) {
	return nil, nil
}

func (s *stubSiteDirectory) GetSite(ctx context.Context, id string) (*tenant.Site, error) {
	site, ok := s.sites[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return site, nil
}

func TestMeSiteRoleAdminStaysInOrganization(t *testing.T) {
	h := newMeHandler(&stubSiteDirectory{sites: map[string]*tenant.Site{
		"home":    {ID: "home", OrganizationID: "org1"},
		"foreign": {ID: "foreign", OrganizationID: "org2"},
	}})

	r := chi.NewRouter()
	r.Get("/me/sites/{siteID}/role", h.SiteRole)

	admin := &scope.Principal{ID: "u1", OrganizationID: "org1", Admin: true}

	cases := []struct {
		siteID string
		code   int
	}{
		{"home", http.StatusOK},
		{"foreign", http.StatusNotFound},
		{"missing", http.StatusNotFound},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/me/sites/"+tc.siteID+"/role", nil)
		req = req.WithContext(scope.ContextWithPrincipal(req.Context(), admin))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		if rec.Code != tc.code {
			t.Fatalf("admin role at %q status = %d, want %d", tc.siteID, rec.Code, tc.code)
		}
	}
}

// stubAssignmentStore serves site and assignment rows from memory and counts
// list calls.
type stubAssignmentStore struct {
	sites       map[string]*tenant.Site
	assignments []*tenant.SiteAssignment
	listCalls   int
}

func (s *stubAssignmentStore) GetSite(ctx context.Context, id string) (*tenant.Site, error) {
	site, ok := s.sites[id]
	if !ok {
		return nil, pgx.ErrNoRows
	}
	return site, nil
}

func (s *stubAssignmentStore) GetUser(ctx context.Context, id string) (*tenant.User, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubAssignmentStore) GetAssignment(ctx context.Context, id string) (*tenant.SiteAssignment, error) {
	return nil, pgx.ErrNoRows
}

func (s *stubAssignmentStore) ListAssignmentsBySite(ctx context.Context, siteID string) ([]*tenant.SiteAssignment, error) {
	s.listCalls++
	var out []*tenant.SiteAssignment
	for _, a := range s.assignments {
		if a.SiteID == siteID {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *stubAssignmentStore) ListAssignmentsByUser(ctx context.Context, userID string) ([]*tenant.SiteAssignment, error) {
	return nil, nil
}

func (s *stubAssignmentStore) CreateAssignment(ctx context.Context, in tenant.CreateAssignmentInput) (*tenant.SiteAssignment, error) {
	return nil, errors.New("unexpected create")
}

func (s *stubAssignmentStore) UpdateAssignment(ctx context.Context, id string, in tenant.UpdateAssignmentInput) (*tenant.SiteAssignment, error) {
	return nil, errors.New("unexpected update")
}

func (s *stubAssignmentStore) DeleteAssignment(ctx context.Context, id string) error {
	return errors.New("unexpected delete")
}

func TestAssignmentRoutesConcealForeignSites(t *testing.T) {
	store := &stubAssignmentStore{
		sites: map[string]*tenant.Site{
			"home":    {ID: "home", OrganizationID: "org1"},
			"foreign": {ID: "foreign", OrganizationID: "org2"},
		},
		assignments: []*tenant.SiteAssignment{
			{ID: "a1", UserID: "u2", SiteID: "home", Role: tenant.RoleFieldWorker, IsActive: true},
		},
	}
	h := newAssignmentHandler(store, notify.NewBroker(), nil)

	r := chi.NewRouter()
	r.Get("/sites/{siteID}/assignments", h.ListBySite)
	r.Post("/sites/{siteID}/assignments", h.Create)

	admin := &scope.Principal{ID: "u1", OrganizationID: "org1", Admin: true}
	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		req = req.WithContext(scope.ContextWithPrincipal(req.Context(), admin))
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	// An admin of another organization never confirms the site exists, and
	// the rows are never even queried.
	if rec := do(http.MethodGet, "/sites/foreign/assignments", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign site list status = %d, want 404", rec.Code)
	}
	if store.listCalls != 0 {
		t.Fatalf("foreign site list reached the store %d times", store.listCalls)
	}
	if rec := do(http.MethodPost, "/sites/foreign/assignments",
		`{"user_id":"u2","role":"field-worker","start_date":"2026-05-01T00:00:00Z"}`); rec.Code != http.StatusNotFound {
		t.Fatalf("foreign site create status = %d, want 404", rec.Code)
	}
	if rec := do(http.MethodGet, "/sites/missing/assignments", ""); rec.Code != http.StatusNotFound {
		t.Fatalf("missing site list status = %d, want 404", rec.Code)
	}

	// The same admin still sees rows at their own organization's sites.
	rec := do(http.MethodGet, "/sites/home/assignments", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("own site list status = %d, want 200", rec.Code)
	}
	var body struct {
		Assignments []*tenant.SiteAssignment `json:"assignments"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil || len(body.Assignments) != 1 {
		t.Fatalf("own site list = %+v (err %v), want one row", body.Assignments, err)
	}
}

func TestEventsStream(t *testing.T) {
	broker := notify.NewBroker()
	h := newEventsHandler(broker)

	ctx, cancel := context.WithCancel(context.Background())
	p := &scope.Principal{ID: "u1", OrganizationID: "org1"}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/events", nil)
	req = req.WithContext(scope.ContextWithPrincipal(ctx, p))
	rec := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		h.Stream(rec, req)
		close(done)
	}()

	// Wait for the subscription before publishing.
	deadline := time.After(2 * time.Second)
	for broker.SubscriberCount() == 0 {
		select {
		case <-deadline:
			t.Fatal("stream never subscribed")
		case <-time.After(time.Millisecond):
		}
	}

	broker.Publish(notify.Event{OrganizationID: "org1", Kind: notify.KindSites})
	// Foreign-org events never reach this stream.
	broker.Publish(notify.Event{OrganizationID: "org2", Kind: notify.KindSites})

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("stream did not exit on context cancel")
	}

	body := rec.Body.String()
	if !strings.Contains(body, "event: sites") || !strings.Contains(body, `"organization_id":"org1"`) {
		t.Fatalf("stream body missing event payload: %q", body)
	}
	if strings.Contains(body, `"organization_id":"org2"`) {
		t.Fatal("stream leaked a foreign organization's event")
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}
}

func TestEventsStreamRequiresPrincipal(t *testing.T) {
	h := newEventsHandler(notify.NewBroker())
	rec := httptest.NewRecorder()
	h.Stream(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
