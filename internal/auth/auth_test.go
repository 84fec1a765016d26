package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

// stubDirectory is an in-memory UserDirectory.
type stubDirectory struct {
	users       map[string]*tenant.User // keyed by id
	byEmail     map[string]*tenant.User
	assignments map[string][]*tenant.SiteAssignment
}

func newStubDirectory() *stubDirectory {
	return &stubDirectory{
		users:       make(map[string]*tenant.User),
		byEmail:     make(map[string]*tenant.User),
		assignments: make(map[string][]*tenant.SiteAssignment),
	}
}

func (d *stubDirectory) addUser(id, email, password string, admin bool) *tenant.User {
	hash, _ := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	u := &tenant.User{
		ID:             id,
		OrganizationID: "org1",
		Email:          email,
		PasswordHash:   string(hash),
		Name:           "Test User",
		Admin:          admin,
	}
	d.users[id] = u
	d.byEmail[email] = u
	return u
}

func (d *stubDirectory) GetUserByEmail(_ context.Context, email string) (*tenant.User, error) {
	u, ok := d.byEmail[email]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (d *stubDirectory) GetUser(_ context.Context, id string) (*tenant.User, error) {
	u, ok := d.users[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return u, nil
}

func (d *stubDirectory) InEffectAssignments(_ context.Context, userID string) ([]*tenant.SiteAssignment, error) {
	return d.assignments[userID], nil
}

func newTestService(dir *stubDirectory) *Service {
	return NewService(dir, "test-secret", time.Hour)
}

func TestLoginAndAuthenticate(t *testing.T) {
	dir := newStubDirectory()
	dir.addUser("u1", "a@example.com", "hunter2", false)
	dir.assignments["u1"] = []*tenant.SiteAssignment{{
		UserID:    "u1",
		SiteID:    "s1",
		Role:      tenant.RoleFieldWorker,
		IsActive:  true,
		StartDate: time.Now().AddDate(0, -1, 0),
	}}

	svc := newTestService(dir)

	token, u, err := svc.Login(context.Background(), "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if u.ID != "u1" || token == "" {
		t.Fatalf("unexpected login result: %q, %+v", token, u)
	}

	p, err := svc.Authenticate(context.Background(), token)
	if err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if p.ID != "u1" || p.OrganizationID != "org1" || p.Admin {
		t.Fatalf("unexpected principal: %+v", p)
	}
	if len(p.Assignments) != 1 || p.Assignments[0].SiteID != "s1" {
		t.Fatalf("principal assignments = %+v", p.Assignments)
	}
}

func TestLoginWrongPassword(t *testing.T) {
	dir := newStubDirectory()
	dir.addUser("u1", "a@example.com", "hunter2", false)
	svc := newTestService(dir)

	if _, _, err := svc.Login(context.Background(), "a@example.com", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password = %v, want ErrInvalidCredentials", err)
	}
	// Unknown accounts fail identically.
	if _, _, err := svc.Login(context.Background(), "nobody@example.com", "hunter2"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown account = %v, want ErrInvalidCredentials", err)
	}
}

func TestAuthenticateRejectsGarbage(t *testing.T) {
	dir := newStubDirectory()
	svc := newTestService(dir)

	for _, token := range []string{"", "garbage", "a.b.c"} {
		if _, err := svc.Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Authenticate(%q) = %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestAuthenticateExpiredToken(t *testing.T) {
	dir := newStubDirectory()
	dir.addUser("u1", "a@example.com", "hunter2", false)

	issued := time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)
	svc := newTestService(dir)
	svc.now = func() time.Time { return issued }

	token, _, err := svc.Login(context.Background(), "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	// Two hours later the one-hour token is no longer valid.
	svc.now = func() time.Time { return issued.Add(2 * time.Hour) }
	if _, err := svc.Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expired token = %v, want ErrInvalidToken", err)
	}
}

func TestAuthenticateWrongSecret(t *testing.T) {
	dir := newStubDirectory()
	dir.addUser("u1", "a@example.com", "hunter2", false)

	token, _, err := newTestService(dir).Login(context.Background(), "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	other := NewService(dir, "different-secret", time.Hour)
	if _, err := other.Authenticate(context.Background(), token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("token under wrong secret = %v, want ErrInvalidToken", err)
	}
}

func TestMiddleware(t *testing.T) {
	dir := newStubDirectory()
	dir.addUser("u1", "a@example.com", "hunter2", false)
	svc := newTestService(dir)

	token, _, err := svc.Login(context.Background(), "a@example.com", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var seen *scope.Principal
	handler := Middleware(svc, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = scope.PrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	if seen == nil || seen.ID != "u1" {
		t.Fatalf("principal in context = %+v, want u1", seen)
	}

	// No header at all.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("missing header status = %d, want 401", rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdmin(next)

	// Admin passes.
	req := httptest.NewRequest(http.MethodPost, "/api/v1/sites", nil)
	ctx := scope.ContextWithPrincipal(req.Context(), &scope.Principal{ID: "u1", OrganizationID: "org1", Admin: true})
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(ctx))
	if rr.Code != http.StatusOK {
		t.Fatalf("admin status = %d, want 200", rr.Code)
	}

	// Non-admin is forbidden.
	ctx = scope.ContextWithPrincipal(req.Context(), &scope.Principal{ID: "u2", OrganizationID: "org1"})
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req.WithContext(ctx))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("non-admin status = %d, want 403", rr.Code)
	}

	// No principal at all is unauthorized.
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous status = %d, want 401", rr.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	cases := []struct {
		header string
		want   string
	}{
		{"Bearer abc123", "abc123"},
		{"bearer abc123", "abc123"},
		{"Basic abc123", ""},
		{"Bearer", ""},
		{"", ""},
	}
	for _, tc := range cases {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		if tc.header != "" {
			r.Header.Set("Authorization", tc.header)
		}
		if got := extractBearerToken(r); got != tc.want {
			t.Errorf("extractBearerToken(%q) = %q, want %q", tc.header, got, tc.want)
		}
	}
}
