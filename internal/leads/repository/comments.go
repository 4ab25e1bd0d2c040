package repository

import (
	"context"

	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Comment belongs to exactly one lead. Machine-generated comments narrate
// lifecycle events (merges, auto-unassignment); user comments are free notes.
// Comments are never mutated after creation and die with their parent lead.
type Comment struct {
	ID        uuid.UUID
	LeadID    uuid.UUID
	AuthorID  *uuid.UUID // nil for machine comments
	Body      string
	CreatedAt time.Time
}

func insertComment(ctx context.Context, tx pgx.Tx, leadID uuid.UUID, authorID *uuid.UUID, body string) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO lead_comments (lead_id, author_id, body)
		VALUES ($1, $2, $3)
	`, leadID, authorID, body)
	return err
}

// AddComment appends a comment outside any larger transaction.
func (r *Repository) AddComment(ctx context.Context, leadID uuid.UUID, authorID *uuid.UUID, body string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO lead_comments (lead_id, author_id, body)
		VALUES ($1, $2, $3)
	`, leadID, authorID, body)
	return err
}

// ListComments returns a lead's comments in timestamp order.
func (r *Repository) ListComments(ctx context.Context, leadID uuid.UUID) ([]Comment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, lead_id, author_id, body, created_at
		FROM lead_comments
		WHERE lead_id = $1
		ORDER BY created_at ASC
	`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	comments := make([]Comment, 0)
	for rows.Next() {
		var comment Comment
		if err := rows.Scan(&comment.ID, &comment.LeadID, &comment.AuthorID, &comment.Body, &comment.CreatedAt); err != nil {
			return nil, err
		}
		comments = append(comments, comment)
	}

	if rows.Err() != nil {
		return nil, rows.Err()
	}

	return comments, nil
}

func reparentComments(ctx context.Context, tx pgx.Tx, fromLeadID, toLeadID uuid.UUID) error {
	_, err := tx.Exec(ctx,
		`UPDATE lead_comments SET lead_id = $2 WHERE lead_id = $1`,
		fromLeadID, toLeadID)
	return err
}
