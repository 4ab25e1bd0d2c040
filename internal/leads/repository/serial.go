package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// UnnumberedLead is the slim projection the serial backfill pages over.
type UnnumberedLead struct {
	ID        uuid.UUID
	CreatedAt time.Time
}

// ListUnnumberedPage returns leads without a serial number past the
// (created_at, id) cursor, in creation order. The id tiebreak keeps rows
// sharing a timestamp from being skipped across a page boundary.
func (r *Repository) ListUnnumberedPage(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]UnnumberedLead, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, created_at FROM leads
		WHERE serial_no IS NULL
		  AND (created_at > $1 OR (created_at = $1 AND id > $2))
		ORDER BY created_at ASC, id ASC
		LIMIT $3
	`, after, afterID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	leads := make([]UnnumberedLead, 0, limit)
	for rows.Next() {
		var lead UnnumberedLead
		if err := rows.Scan(&lead.ID, &lead.CreatedAt); err != nil {
			return nil, err
		}
		leads = append(leads, lead)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return leads, nil
}

// AssignSerials reserves a block of serial numbers from the counter and
// stamps them onto the given leads in order, all in one transaction. A lead
// that gained a serial since the page was read is skipped; its reserved
// number is simply left unused. The counter only moves forward, so
// uniqueness holds either way.
func (r *Repository) AssignSerials(ctx context.Context, leadIDs []uuid.UUID) (int, error) {
	if len(leadIDs) == 0 {
		return 0, nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var upper int64
	if err := tx.QueryRow(ctx,
		`UPDATE serial_counter SET value = value + $1 WHERE id = TRUE RETURNING value`,
		len(leadIDs),
	).Scan(&upper); err != nil {
		return 0, err
	}

	next := upper - int64(len(leadIDs)) + 1
	assigned := 0
	for _, id := range leadIDs {
		result, err := tx.Exec(ctx, `
			UPDATE leads SET serial_no = $2, updated_at = now()
			WHERE id = $1 AND serial_no IS NULL
		`, id, next)
		if err != nil {
			return 0, err
		}
		if result.RowsAffected() > 0 {
			next++
			assigned++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return assigned, nil
}

// RenumberAll deterministically rewrites every serial number from 1 in
// creation order, then aligns the counter. Explicitly accepted as expensive;
// administrator-triggered only.
func (r *Repository) RenumberAll(ctx context.Context) (int, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Clear first: the unique constraint would otherwise trip on overlap.
	if _, err := tx.Exec(ctx, `UPDATE leads SET serial_no = NULL`); err != nil {
		return 0, err
	}

	result, err := tx.Exec(ctx, `
		WITH ordered AS (
			SELECT id, ROW_NUMBER() OVER (ORDER BY created_at ASC, id ASC) AS rn
			FROM leads
		)
		UPDATE leads SET serial_no = ordered.rn, updated_at = now()
		FROM ordered
		WHERE leads.id = ordered.id
	`)
	if err != nil {
		return 0, err
	}

	if _, err := tx.Exec(ctx, `
		UPDATE serial_counter SET value = (SELECT COALESCE(MAX(serial_no), 0) FROM leads)
		WHERE id = TRUE
	`); err != nil {
		return 0, err
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

// MaxSerial returns the highest serial number currently assigned.
func (r *Repository) MaxSerial(ctx context.Context) (int64, error) {
	var max int64
	err := r.pool.QueryRow(ctx, `SELECT COALESCE(MAX(serial_no), 0) FROM leads`).Scan(&max)
	return max, err
}
