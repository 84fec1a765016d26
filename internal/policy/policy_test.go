package policy

import (
	"testing"
	"time"

	"github.com/crewdeck/crewdeck/internal/scope"
	"github.com/crewdeck/crewdeck/internal/tenant"
)

var testNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func principal(orgID string, admin bool, assignments ...tenant.SiteAssignment) *scope.Principal {
	return &scope.Principal{
		ID:             "u1",
		OrganizationID: orgID,
		Admin:          admin,
		Assignments:    assignments,
	}
}

func assigned(siteID, role string) tenant.SiteAssignment {
	return tenant.SiteAssignment{
		UserID:    "u1",
		SiteID:    siteID,
		Role:      role,
		IsActive:  true,
		StartDate: testNow.AddDate(0, -1, 0),
	}
}

func TestDenyByDefault(t *testing.T) {
	ref := SiteRef("org1", "site-a")

	if Tasks.CanRead(nil, ref, testNow) {
		t.Fatal("nil principal must be denied")
	}

	// Wrong organization is denied before any clause runs, even for admins.
	other := principal("org2", true)
	for _, action := range []Action{ActionRead, ActionCreate, ActionModify, ActionDelete} {
		if Tasks.Allows(action, other, ref, testNow) {
			t.Fatalf("cross-org %s must be denied", action)
		}
	}

	// A missing organization id on the record denies too.
	if Tasks.CanRead(principal("org1", true), RecordRef{}, testNow) {
		t.Fatal("record without an organization id must be denied")
	}
}

func TestCanonicalShape(t *testing.T) {
	ref := SiteRef("org1", "site-a")

	member := principal("org1", false, assigned("site-a", tenant.RoleFieldWorker))
	manager := principal("org1", false, assigned("site-a", tenant.RoleSiteManager))
	outsider := principal("org1", false, assigned("site-b", tenant.RoleSiteManager))
	admin := principal("org1", true)

	cases := []struct {
		name   string
		p      *scope.Principal
		action Action
		want   bool
	}{
		{"member reads", member, ActionRead, true},
		{"member creates", member, ActionCreate, true},
		{"member cannot modify", member, ActionModify, false},
		{"member cannot delete", member, ActionDelete, false},
		{"manager modifies", manager, ActionModify, true},
		{"manager cannot delete", manager, ActionDelete, false},
		{"outsider sees nothing", outsider, ActionRead, false},
		{"outsider manager cannot modify", outsider, ActionModify, false},
		{"admin reads", admin, ActionRead, true},
		{"admin modifies", admin, ActionModify, true},
		{"admin deletes", admin, ActionDelete, true},
	}
	for _, tc := range cases {
		if got := CrewMembers.Allows(tc.action, tc.p, ref, testNow); got != tc.want {
			t.Errorf("%s: got %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestAssignmentVisibility(t *testing.T) {
	// An assignment row at site-a owned by u1.
	siteA := "site-a"
	ownRow := RecordRef{OrganizationID: "org1", SiteID: &siteA, OwnerUserID: "u1"}
	otherRow := RecordRef{OrganizationID: "org1", SiteID: &siteA, OwnerUserID: "u2"}

	worker := principal("org1", false, assigned("site-a", tenant.RoleFieldWorker))

	if !Assignments.CanRead(worker, ownRow, testNow) {
		t.Fatal("a user must always see their own assignment rows")
	}
	// Plain site membership is not enough for someone else's row.
	if Assignments.CanRead(worker, otherRow, testNow) {
		t.Fatal("a non-manager must not see other users' assignment rows")
	}

	manager := principal("org1", false, assigned("site-a", tenant.RoleCrewLead))
	if !Assignments.CanRead(manager, otherRow, testNow) {
		t.Fatal("a site manager must see every row at their site")
	}
	if Assignments.CanModify(worker, ownRow, testNow) {
		t.Fatal("owning an assignment row does not allow modifying it")
	}
	if !Assignments.CanModify(manager, otherRow, testNow) {
		t.Fatal("managers modify assignment rows at their site")
	}
}

func TestOrgWideTasks(t *testing.T) {
	ref := OrgWideRef("org1")

	member := principal("org1", false, assigned("site-a", tenant.RoleFieldWorker))
	if !Tasks.CanRead(member, ref, testNow) {
		t.Fatal("org-wide tasks are visible to every organization member")
	}
	if Tasks.CanModify(member, ref, testNow) {
		t.Fatal("org-wide tasks are not modifiable by non-admins without a manager role there")
	}

	admin := principal("org1", true)
	if !Tasks.CanModify(admin, ref, testNow) {
		t.Fatal("admins modify org-wide tasks")
	}
}

func TestTimeEntryOwnerModify(t *testing.T) {
	siteA := "site-a"
	own := RecordRef{OrganizationID: "org1", SiteID: &siteA, OwnerUserID: "u1"}
	foreign := RecordRef{OrganizationID: "org1", SiteID: &siteA, OwnerUserID: "u2"}

	worker := principal("org1", false, assigned("site-a", tenant.RoleFieldWorker))

	if !TimeEntries.CanModify(worker, own, testNow) {
		t.Fatal("a user edits their own time entries")
	}
	if TimeEntries.CanModify(worker, foreign, testNow) {
		t.Fatal("a non-manager cannot edit someone else's time entry")
	}
}

func TestActivityIsAppendOnly(t *testing.T) {
	ref := SiteRef("org1", "site-a")
	admin := principal("org1", true)

	if Activity.CanModify(admin, ref, testNow) {
		t.Fatal("activity records are never modifiable, even by admins")
	}
	if !Activity.CanDelete(admin, ref, testNow) {
		t.Fatal("admins may delete activity records")
	}
}

// The organization fallback site is an ordinary site as far as predicates are
// concerned: access to it comes from assignments like anywhere else.
func TestFallbackSiteIsNotSpecial(t *testing.T) {
	ref := SiteRef("org1", "system-site")

	unassigned := principal("org1", false, assigned("site-a", tenant.RoleFieldWorker))
	if CrewMembers.CanRead(unassigned, ref, testNow) {
		t.Fatal("the fallback site grants nothing without an assignment there")
	}

	assignedThere := principal("org1", false, assigned("system-site", tenant.RoleTechnicalStaff))
	if !CrewMembers.CanRead(assignedThere, ref, testNow) {
		t.Fatal("an assignment at the fallback site works like any other")
	}
}

func TestUsersAdminOrOwn(t *testing.T) {
	ownProfile := RecordRef{OrganizationID: "org1", OwnerUserID: "u1"}
	otherProfile := RecordRef{OrganizationID: "org1", OwnerUserID: "u2"}

	member := principal("org1", false)
	if !Users.CanRead(member, ownProfile, testNow) {
		t.Fatal("a user reads their own profile")
	}
	if Users.CanRead(member, otherProfile, testNow) {
		t.Fatal("a user does not read other profiles")
	}
	if !Users.CanRead(principal("org1", true), otherProfile, testNow) {
		t.Fatal("admins read any profile in their organization")
	}
}
