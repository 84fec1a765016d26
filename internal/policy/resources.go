package policy

// The per-resource predicate sets. Each resource carries an organization id
// and (usually) a site id; the system fallback site is an ordinary site and
// gets no special treatment here.
var (
	// Sites: a site row's ref carries its own id as the site column, so
	// non-admins read only sites in their accessible set; admins read every
	// site in the organization. Modifiable by managers of that site,
	// deletable by admins.
	Sites = NewResource("sites")

	// Assignments: the one resource whose visibility is controlled by its
	// own site column. Assigned users see their own rows; managers see rows
	// at their site. General site membership is not enough.
	Assignments = NewResource("site_assignments",
		WithReadClauses(ownRecord, managerAtSite),
		WithModifyClauses(managerAtSite),
	)

	// Crew members, tasks, and time entries follow the canonical shapes.
	// Tasks support a null site id for organization-wide entries (shared
	// calendar holidays and the like).
	CrewMembers = NewResource("crew_members")
	Tasks       = NewResource("tasks")

	// Time entries additionally let a user modify their own entry.
	TimeEntries = NewResource("time_entries",
		WithExtraModifyClause(ownRecord),
	)

	// Activity records are append-only: readable per the canonical shape,
	// never modified, deleted only by admins.
	Activity = NewResource("activity_records",
		WithModifyClauses(),
	)

	// Users: a user may read and update their own profile; everything else
	// is admin-only.
	Users = NewResource("users",
		WithReadClauses(adminOnly, ownRecord),
		WithModifyClauses(adminOnly, ownRecord),
	)
)
