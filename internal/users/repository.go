// Package users provides the user directory: role and identity lookups for
// notification targeting and merge-comment attribution.
package users

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("user not found")

const (
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleAgent   = "agent"
)

type User struct {
	ID       uuid.UUID
	Name     string
	Email    string
	MobileNo string
	Role     string
}

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (User, error) {
	var user User
	err := r.pool.QueryRow(ctx, `
		SELECT id, name, email, mobile_no, role FROM users WHERE id = $1
	`, id).Scan(&user.ID, &user.Name, &user.Email, &user.MobileNo, &user.Role)
	if errors.Is(err, pgx.ErrNoRows) {
		return User{}, ErrNotFound
	}
	return user, err
}

// ListByRoles returns all users holding any of the given roles.
func (r *Repository) ListByRoles(ctx context.Context, roles ...string) ([]User, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, name, email, mobile_no, role FROM users WHERE role = ANY($1)
		ORDER BY name ASC
	`, roles)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]User, 0)
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.MobileNo, &user.Role); err != nil {
			return nil, err
		}
		items = append(items, user)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return items, nil
}

// DisplayName returns the user's name, falling back to email, for use in
// machine-generated comments. Unknown users come back as "unknown user" so
// narration never fails a merge.
func (r *Repository) DisplayName(ctx context.Context, id uuid.UUID) string {
	user, err := r.GetByID(ctx, id)
	if err != nil {
		return "unknown user"
	}
	if user.Name != "" {
		return user.Name
	}
	return user.Email
}
