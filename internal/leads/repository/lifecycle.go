package repository

import (
	"context"
	"time"

	"leadengine/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListAssignedPage returns assigned leads past the (created_at, id) cursor,
// ordered by creation time with id as tiebreak so timestamp ties cannot fall
// through a page boundary. The sweep walks the whole assigned set in bounded
// pages; a crash mid-sweep just means the next run re-evaluates a few leads,
// which is a no-op for anything already transitioned.
func (r *Repository) ListAssignedPage(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE assigned_to IS NOT NULL
		  AND (created_at > $1 OR (created_at = $1 AND id > $2))
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, after, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0, limit)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return leads, nil
}

type UnassignParams struct {
	LeadID      uuid.UUID
	CommentBody string
	Notify      []NotifyTarget
}

// Unassign clears the lead's assignment and bumps the reassignment count,
// writing the narration comment and any notifications in the same
// transaction. Guarded on assigned_to still being set so a concurrent sweep
// tick cannot double-increment.
func (r *Repository) Unassign(ctx context.Context, p UnassignParams) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	result, err := tx.Exec(ctx, `
		UPDATE leads SET
			assigned_to = NULL,
			assigned_date = NULL,
			reassignment_count = reassignment_count + 1,
			updated_at = now()
		WHERE id = $1 AND assigned_to IS NOT NULL
	`, p.LeadID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}

	if p.CommentBody != "" {
		if err := insertComment(ctx, tx, p.LeadID, nil, p.CommentBody); err != nil {
			return err
		}
	}

	if err := insertOutboxRows(ctx, tx, p.LeadID, p.Notify); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

type ArchiveParams struct {
	Lead        domain.Lead
	CommentBody string
	Notify      []NotifyTarget
}

// Archive copies the lead's contact fields into the unassigned master-data
// pool and deletes the original record with everything it owns. The archive
// comment lands on the master-data row since the lead's own comments die
// with it.
func (r *Repository) Archive(ctx context.Context, p ArchiveParams) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lead := p.Lead
	if _, err := tx.Exec(ctx, `
		INSERT INTO masterdata_leads (
			source_lead_id, mobile_no, email, alt_mobile_no, alt_email,
			name, subject, message, state, district, station, pincode,
			source, agency_name, note
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
	`,
		lead.ID, lead.MobileNo, lead.Email, lead.AltMobileNo, lead.AltEmail,
		lead.Name, lead.Subject, lead.Message, lead.State, lead.District,
		lead.Station, lead.Pincode, lead.Source, lead.AgencyName, p.CommentBody,
	); err != nil {
		return err
	}

	if err := insertOutboxRows(ctx, tx, lead.ID, p.Notify); err != nil {
		return err
	}

	if err := deleteCascade(ctx, tx, lead.ID); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
