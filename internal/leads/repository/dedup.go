package repository

import (
	"context"

	"leadengine/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// ListAll loads the entire lead set in creation order. Only the bulk
// reconciliation job uses this; the grouping pass needs every record's
// identity fields in memory at once.
func (r *Repository) ListAll(ctx context.Context) ([]domain.Lead, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+leadColumns+` FROM leads ORDER BY created_at ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]domain.Lead, 0)
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

// MergeGroupParams describes one canonical merge the reconciliation job
// computed: field updates for the surviving record, the records it absorbs,
// and the narrative to leave behind.
type MergeGroupParams struct {
	CanonicalID uuid.UUID
	Changes     domain.MergeChanges
	AbsorbedIDs []uuid.UUID
	CommentBody string
	// Unassign is always true for bulk merges; kept explicit so the
	// asymmetry with single-lead clubbing stays visible at the call site.
	Unassign bool
	Notify   []NotifyTarget
}

// MergeGroup collapses one duplicate group in a single transaction: the
// canonical record takes the merged fields and loses its assignment, the
// absorbed records' comments are reparented onto it, and the absorbed
// records are deleted with whatever else they own.
func (r *Repository) MergeGroup(ctx context.Context, p MergeGroupParams) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if len(p.Changes) > 0 {
		if err := applyFieldChanges(ctx, tx, p.CanonicalID, p.Changes); err != nil {
			return err
		}
	}

	if p.Unassign {
		if _, err := tx.Exec(ctx, `
			UPDATE leads SET assigned_to = NULL, assigned_date = NULL, updated_at = now()
			WHERE id = $1
		`, p.CanonicalID); err != nil {
			return err
		}
	}

	for _, absorbedID := range p.AbsorbedIDs {
		if err := reparentComments(ctx, tx, absorbedID, p.CanonicalID); err != nil {
			return err
		}
		if err := deleteCascade(ctx, tx, absorbedID); err != nil {
			return err
		}
	}

	if p.CommentBody != "" {
		if err := insertComment(ctx, tx, p.CanonicalID, nil, p.CommentBody); err != nil {
			return err
		}
	}

	if err := insertOutboxRows(ctx, tx, p.CanonicalID, p.Notify); err != nil {
		return err
	}

	return tx.Commit(ctx)
}
