package activity

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store provides database operations for activity records.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new activity store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// BatchInsert writes a batch of records in one round trip.
func (s *Store) BatchInsert(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, rec := range records {
		id := rec.ID
		if id == "" {
			id = uuid.NewString()
		}
		batch.Queue(
			`INSERT INTO activity_records (id, organization_id, site_id, actor_user_id, action, resource_type, resource_id, occurred_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, rec.OrganizationID, rec.SiteID, rec.ActorUserID,
			rec.Action, rec.ResourceType, rec.ResourceID, rec.OccurredAt,
		)
	}
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for range records {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("inserting activity batch: %w", err)
		}
	}
	return nil
}

// ListBySite returns the most recent records for a site, newest first.
func (s *Store) ListBySite(ctx context.Context, orgID, siteID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, organization_id, site_id, actor_user_id, action, resource_type, resource_id, occurred_at
		 FROM activity_records
		 WHERE organization_id = $1 AND site_id = $2
		 ORDER BY occurred_at DESC
		 LIMIT $3`,
		orgID, siteID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing activity: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.OrganizationID, &rec.SiteID, &rec.ActorUserID,
			&rec.Action, &rec.ResourceType, &rec.ResourceID, &rec.OccurredAt); err != nil {
			return nil, fmt.Errorf("scanning activity record: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
