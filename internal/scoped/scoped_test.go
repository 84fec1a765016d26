package scoped

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crewdeck/crewdeck/internal/policy"
	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

type recordedDecision struct {
	resource string
	action   string
	allowed  bool
}

type stubRecorder struct {
	decisions []recordedDecision
}

func (s *stubRecorder) RecordAuthzDecision(resource string, action string, allowed bool) {
	s.decisions = append(s.decisions, recordedDecision{resource, action, allowed})
}

func TestGuardAllowsAndRecords(t *testing.T) {
	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	p := &scope.Principal{
		ID:             "u1",
		OrganizationID: "org1",
		Assignments: []tenant.SiteAssignment{{
			UserID:    "u1",
			SiteID:    "s1",
			Role:      tenant.RoleFieldWorker,
			IsActive:  true,
			StartDate: now.AddDate(0, -1, 0),
		}},
	}
	rec := &stubRecorder{}

	if err := guard(policy.CrewMembers, policy.ActionRead, p, policy.SiteRef("org1", "s1"), now, rec); err != nil {
		t.Fatalf("guard allowed read returned %v", err)
	}
	if err := guard(policy.CrewMembers, policy.ActionModify, p, policy.SiteRef("org1", "s1"), now, rec); !errors.Is(err, ErrForbidden) {
		t.Fatalf("guard denied modify returned %v, want ErrForbidden", err)
	}

	want := []recordedDecision{
		{"crew_members", "read", true},
		{"crew_members", "modify", false},
	}
	if len(rec.decisions) != len(want) {
		t.Fatalf("recorded %d decisions, want %d", len(rec.decisions), len(want))
	}
	for i, d := range want {
		if rec.decisions[i] != d {
			t.Errorf("decision %d = %+v, want %+v", i, rec.decisions[i], d)
		}
	}
}

func TestGuardNilRecorder(t *testing.T) {
	now := time.Now()
	if err := guard(policy.Tasks, policy.ActionRead, nil, policy.SiteRef("org1", "s1"), now, nil); !errors.Is(err, ErrForbidden) {
		t.Fatalf("nil principal = %v, want ErrForbidden", err)
	}
}

func TestPrincipalFailsClosed(t *testing.T) {
	if _, err := principal(context.Background()); !errors.Is(err, scope.ErrUnauthenticated) {
		t.Fatalf("principal() without context = %v, want ErrUnauthenticated", err)
	}

	want := &scope.Principal{ID: "u1", OrganizationID: "org1"}
	got, err := principal(scope.ContextWithPrincipal(context.Background(), want))
	if err != nil || got != want {
		t.Fatalf("principal() = %+v, %v", got, err)
	}
}
