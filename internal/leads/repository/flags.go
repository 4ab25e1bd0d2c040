package repository

import (
	"context"

	"leadengine/platform/apperr"
)

// FlagSerialNumbersAssigned guards the serial backfill, which must complete
// exactly once over the system's lifetime.
const FlagSerialNumbersAssigned = "serialNumbersAssigned"

// AcquireFlag marks a one-time flag as used. The first caller wins; every
// later caller gets a Conflict error. The flag row is created on first use
// and never deleted. xmax = 0 holds only for the inserting statement, which
// makes the acquire atomic without an advisory lock.
func (r *Repository) AcquireFlag(ctx context.Context, key string) error {
	var inserted bool
	err := r.pool.QueryRow(ctx, `
		INSERT INTO system_flags (key, used, used_at)
		VALUES ($1, TRUE, now())
		ON CONFLICT (key) DO UPDATE SET used = TRUE, used_at = COALESCE(system_flags.used_at, now())
		RETURNING (xmax = 0)
	`, key).Scan(&inserted)
	if err != nil {
		return err
	}
	if !inserted {
		return apperr.Conflict("operation already used: " + key)
	}
	return nil
}

// FlagUsed reports whether a one-time flag has been consumed.
func (r *Repository) FlagUsed(ctx context.Context, key string) (bool, error) {
	var used bool
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE((SELECT used FROM system_flags WHERE key = $1), FALSE)`,
		key).Scan(&used)
	return used, err
}
