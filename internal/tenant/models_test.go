package tenant

import (
	"testing"
	"time"
)

func datePtr(t time.Time) *time.Time { return &t }

func TestInEffectDayGranularity(t *testing.T) {
	// 17:30 UTC on the assignment's last day: still in effect until midnight.
	now := time.Date(2026, 4, 10, 17, 30, 0, 0, time.UTC)

	a := SiteAssignment{
		IsActive:  true,
		StartDate: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
		EndDate:   datePtr(time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)),
	}
	if !a.InEffect(now) {
		t.Fatal("assignment ending today should stay in effect for the whole day")
	}

	// The next morning it is gone.
	if a.InEffect(now.AddDate(0, 0, 1)) {
		t.Fatal("assignment should expire the day after its end date")
	}
}

func TestInEffectInactive(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	a := SiteAssignment{
		IsActive:  false,
		StartDate: now.AddDate(0, -1, 0),
	}
	if a.InEffect(now) {
		t.Fatal("deactivated assignment must never be in effect")
	}
}

func TestInEffectNoEndDate(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	a := SiteAssignment{
		IsActive:  true,
		StartDate: now.AddDate(0, -1, 0),
	}
	if !a.InEffect(now) {
		t.Fatal("open-ended active assignment should be in effect")
	}
}

func TestInEffectBeforeStart(t *testing.T) {
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	a := SiteAssignment{
		IsActive:  true,
		StartDate: now.AddDate(0, 0, 3),
	}
	if a.InEffect(now) {
		t.Fatal("assignment should not be in effect before its start date")
	}

	// On the start date itself it counts, regardless of time of day.
	a.StartDate = time.Date(2026, 4, 10, 23, 0, 0, 0, time.UTC)
	if !a.InEffect(now) {
		t.Fatal("assignment starting today should be in effect all day")
	}
}

func TestValidRole(t *testing.T) {
	for _, role := range []string{RoleSiteManager, RoleTechnicalStaff, RoleCrewLead, RoleFieldWorker} {
		if !ValidRole(role) {
			t.Fatalf("%s should be a valid role", role)
		}
	}
	if ValidRole(RoleAdmin) {
		t.Fatal("admin is not an assignable role")
	}
	if ValidRole("foreman") {
		t.Fatal("unknown roles must be rejected")
	}
}
