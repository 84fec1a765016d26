package scoped

import "time"

// Crew member trade/status values are free-form; sites, not this layer,
// decide what they mean.

// CrewMember is a worker on a site's roster.
type CrewMember struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	SiteID         string    `json:"site_id"`
	Name           string    `json:"name"`
	Trade          string    `json:"trade"`
	Phone          string    `json:"phone,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateCrewMemberInput holds the caller-supplied crew member fields. The
// tenancy columns are stamped by the store, never taken from the payload.
type CreateCrewMemberInput struct {
	Name  string `json:"name"`
	Trade string `json:"trade"`
	Phone string `json:"phone,omitempty"`
}

// UpdateCrewMemberInput holds optional fields for a partial update.
type UpdateCrewMemberInput struct {
	Name  *string `json:"name,omitempty"`
	Trade *string `json:"trade,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

// Task status values.
const (
	TaskStatusPlanned    = "planned"
	TaskStatusInProgress = "in-progress"
	TaskStatusDone       = "done"
)

// Task is a unit of scheduled work. A nil site id denotes an
// organization-wide entry (shared calendar holidays and the like) visible to
// all organization members.
type Task struct {
	ID             string     `json:"id"`
	OrganizationID string     `json:"organization_id"`
	SiteID         *string    `json:"site_id,omitempty"`
	Title          string     `json:"title"`
	Status         string     `json:"status"`
	DueDate        *time.Time `json:"due_date,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// CreateTaskInput holds the caller-supplied task fields.
type CreateTaskInput struct {
	Title   string     `json:"title"`
	Status  string     `json:"status"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

// UpdateTaskInput holds optional fields for a partial update.
type UpdateTaskInput struct {
	Title   *string    `json:"title,omitempty"`
	Status  *string    `json:"status,omitempty"`
	DueDate *time.Time `json:"due_date,omitempty"`
}

// TimeEntry records hours a user worked at a site on a day.
type TimeEntry struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	SiteID         string    `json:"site_id"`
	UserID         string    `json:"user_id"`
	Day            time.Time `json:"day"`
	Hours          float64   `json:"hours"`
	Notes          string    `json:"notes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// CreateTimeEntryInput holds the caller-supplied time entry fields.
type CreateTimeEntryInput struct {
	Day   time.Time `json:"day"`
	Hours float64   `json:"hours"`
	Notes string    `json:"notes,omitempty"`
}

// UpdateTimeEntryInput holds optional fields for a partial update.
type UpdateTimeEntryInput struct {
	Hours *float64 `json:"hours,omitempty"`
	Notes *string  `json:"notes,omitempty"`
}
