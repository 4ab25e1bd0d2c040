// Package audit provides the append-only audit log for administrative and
// system actions. Entries are immutable once written.
package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Action types recorded by the engine.
const (
	ActionClubDuplicateLead   = "CLUB_DUPLICATE_LEAD"
	ActionBulkDedupSweep      = "BULK_DEDUP_SWEEP"
	ActionSerialBackfill      = "SERIAL_BACKFILL"
	ActionSerialRenumber      = "SERIAL_RENUMBER"
	ActionAutoUnassign        = "AUTO_UNASSIGN"
	ActionArchiveToMasterdata = "ARCHIVE_TO_MASTERDATA"
)

type Entry struct {
	ID        uuid.UUID
	Action    string
	LeadID    *uuid.UUID
	ActorID   *uuid.UUID // nil for system actions
	Details   json.RawMessage
	CreatedAt time.Time
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Record appends one audit entry. Details may be nil.
func (r *Repository) Record(ctx context.Context, action string, leadID *uuid.UUID, actorID *uuid.UUID, details map[string]any) error {
	var detailsJSON []byte
	if details != nil {
		encoded, err := json.Marshal(details)
		if err != nil {
			return err
		}
		detailsJSON = encoded
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_log (action, lead_id, actor_id, details)
		VALUES ($1, $2, $3, $4)
	`, action, leadID, actorID, detailsJSON)
	return err
}

// ListByAction returns recent entries for one action type, newest first.
func (r *Repository) ListByAction(ctx context.Context, action string, limit int) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, action, lead_id, actor_id, details, created_at
		FROM audit_log
		WHERE action = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, action, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]Entry, 0)
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.ID, &entry.Action, &entry.LeadID, &entry.ActorID, &entry.Details, &entry.CreatedAt); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return entries, nil
}
