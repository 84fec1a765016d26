package activity

import "time"

// Record is one append-only activity entry: who did what to which record,
// scoped to an organization and usually a site. A null site id marks an
// organization-wide action.
type Record struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	SiteID         *string   `json:"site_id,omitempty"`
	ActorUserID    string    `json:"actor_user_id"`
	Action         string    `json:"action"`
	ResourceType   string    `json:"resource_type"`
	ResourceID     string    `json:"resource_id"`
	OccurredAt     time.Time `json:"occurred_at"`
}
