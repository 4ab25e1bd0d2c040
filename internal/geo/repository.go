// Package geo provides the pincode lookup table used to auto-fill state and
// district during bulk imports.
package geo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("pincode not found")

type Region struct {
	Pincode  string
	State    string
	District string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Lookup(ctx context.Context, pincode string) (Region, error) {
	var region Region
	err := r.pool.QueryRow(ctx, `
		SELECT pincode, state, district FROM pincodes WHERE pincode = $1
	`, pincode).Scan(&region.Pincode, &region.State, &region.District)
	if errors.Is(err, pgx.ErrNoRows) {
		return Region{}, ErrNotFound
	}
	return region, err
}
