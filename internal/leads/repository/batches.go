package repository

import (
	"context"
	"errors"

	"leadengine/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// claimBatchSlot returns the active batch's ID after incrementing its count,
// opening a fresh batch when the active one is full. Runs inside the lead
// insert transaction so the count can never drift from membership.
func claimBatchSlot(ctx context.Context, tx pgx.Tx) (uuid.UUID, error) {
	var batchID uuid.UUID
	err := tx.QueryRow(ctx, `
		UPDATE lead_batches SET current_count = current_count + 1
		WHERE id = (
			SELECT id FROM lead_batches
			WHERE current_count < max_size
			ORDER BY created_at DESC
			LIMIT 1
		)
		RETURNING id
	`).Scan(&batchID)
	if err == nil {
		return batchID, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, err
	}

	err = tx.QueryRow(ctx, `
		INSERT INTO lead_batches (current_count, max_size)
		VALUES (1, $1)
		RETURNING id
	`, domain.BatchCapacity).Scan(&batchID)
	return batchID, err
}
