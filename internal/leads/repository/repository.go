// Package repository provides pgx-backed storage for leads and their child
// records. Every lookup-then-write sequence that must be atomic runs inside
// an explicit transaction here; services above this package never see a
// half-applied mutation.
package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadengine/internal/leads/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrNotFound = errors.New("lead not found")

const leadColumns = `id, mobile_no, email, alt_mobile_no, alt_email, name, subject, message,
	state, district, station, pincode, source, agency_name, status, heat,
	assigned_to, assigned_date, first_assignment_date, reassignment_count,
	serial_no, last_activity_time, next_followup, batch_id, created_at`

type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (domain.Lead, error) {
	var lead domain.Lead
	var status, heat string
	err := row.Scan(
		&lead.ID, &lead.MobileNo, &lead.Email, &lead.AltMobileNo, &lead.AltEmail,
		&lead.Name, &lead.Subject, &lead.Message,
		&lead.State, &lead.District, &lead.Station, &lead.Pincode, &lead.Source, &lead.AgencyName,
		&status, &heat,
		&lead.AssignedTo, &lead.AssignedDate, &lead.FirstAssignmentDate, &lead.ReassignmentCount,
		&lead.SerialNo, &lead.LastActivityTime, &lead.NextFollowup, &lead.BatchID,
		&lead.CreatedAt,
	)
	if err != nil {
		return domain.Lead{}, err
	}
	lead.Status = domain.Status(status)
	lead.Heat = domain.Heat(heat)
	return lead, nil
}

func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (domain.Lead, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// FindByMobile is the mobile identity index lookup. The canonical number must
// already be normalized. When racing writers have produced duplicates the
// oldest record wins, matching the reconciliation job's canonical choice.
func (r *Repository) FindByMobile(ctx context.Context, mobile string) (domain.Lead, error) {
	if mobile == "" {
		return domain.Lead{}, ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE mobile_no = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, mobile)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// FindByEmail is the email identity index lookup. The placeholder address is
// excluded at the caller; this method also guards against it.
func (r *Repository) FindByEmail(ctx context.Context, email string) (domain.Lead, error) {
	if email == "" || email == domain.PlaceholderEmail {
		return domain.Lead{}, ErrNotFound
	}

	row := r.pool.QueryRow(ctx, `
		SELECT `+leadColumns+` FROM leads
		WHERE email = $1
		ORDER BY created_at ASC
		LIMIT 1
	`, email)
	lead, err := scanLead(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lead{}, ErrNotFound
	}
	return lead, err
}

// NotifyTarget is one outbox notification to write alongside a lead mutation.
type NotifyTarget struct {
	UserID  uuid.UUID
	Kind    string
	Title   string
	Content string
}

type CreateLeadParams struct {
	Data       domain.LeadData
	AssignedTo *uuid.UUID
	// Notify rows are written to the notification outbox in the same
	// transaction as the insert, so a crash cannot lose the fan-out.
	Notify []NotifyTarget
}

// Create inserts a new lead inside one transaction: it takes the next serial
// number from the monotonic counter, attaches the lead to the active batch,
// and writes the outbox notifications. The combination closes the "scan all
// leads for max serial" race from the original design.
func (r *Repository) Create(ctx context.Context, p CreateLeadParams) (domain.Lead, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return domain.Lead{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var serial int64
	if err := tx.QueryRow(ctx,
		`UPDATE serial_counter SET value = value + 1 WHERE id = TRUE RETURNING value`,
	).Scan(&serial); err != nil {
		return domain.Lead{}, err
	}

	batchID, err := claimBatchSlot(ctx, tx)
	if err != nil {
		return domain.Lead{}, err
	}

	email := p.Data.Email
	if email == "" {
		email = domain.PlaceholderEmail
	}

	var assignedDate, firstAssignment *time.Time
	if p.AssignedTo != nil {
		now := time.Now().UTC()
		assignedDate = &now
		firstAssignment = &now
	}

	row := tx.QueryRow(ctx, `
		INSERT INTO leads (
			mobile_no, email, alt_mobile_no, alt_email, name, subject, message,
			state, district, station, pincode, source, agency_name, status, heat,
			assigned_to, assigned_date, first_assignment_date,
			serial_no, last_activity_time, batch_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now(), $20)
		RETURNING `+leadColumns,
		p.Data.MobileNo, email, p.Data.AltMobileNo, p.Data.AltEmail,
		p.Data.Name, p.Data.Subject, p.Data.Message,
		p.Data.State, p.Data.District, p.Data.Station, p.Data.Pincode,
		p.Data.Source, p.Data.AgencyName,
		string(domain.StatusYetToDecide), string(domain.HeatUnset),
		p.AssignedTo, assignedDate, firstAssignment,
		serial, batchID,
	)
	lead, err := scanLead(row)
	if err != nil {
		return domain.Lead{}, err
	}

	if err := insertOutboxRows(ctx, tx, lead.ID, p.Notify); err != nil {
		return domain.Lead{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.Lead{}, err
	}
	return lead, nil
}

// MergeUpdateParams carries the field changes a merge produced, plus the
// narrative child records that belong in the same transaction.
type MergeUpdateParams struct {
	LeadID      uuid.UUID
	Changes     domain.MergeChanges
	CommentBody string // empty means no comment
	Notify      []NotifyTarget
}

// allowed merge columns; anything else in Changes is a programming error.
var mergeColumns = map[string]bool{
	"state": true, "source": true, "station": true, "district": true,
	"pincode": true, "agency_name": true, "alt_mobile_no": true,
	"alt_email": true, "subject": true, "message": true,
}

// ApplyMerge writes the merged field values, refreshes the activity clock,
// and records the machine comment and outbox notifications atomically.
func (r *Repository) ApplyMerge(ctx context.Context, p MergeUpdateParams) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := applyFieldChanges(ctx, tx, p.LeadID, p.Changes); err != nil {
		return err
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

func applyFieldChanges(ctx context.Context, tx pgx.Tx, leadID uuid.UUID, changes domain.MergeChanges) error {
	setClauses := []string{"last_activity_time = now()", "updated_at = now()"}
	args := []any{leadID}
	argIdx := 2

	for column, value := range changes {
		if !mergeColumns[column] {
			return errors.New("merge touched unexpected column: " + column)
		}
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", column, argIdx))
		args = append(args, value)
		argIdx++
	}

	query := "UPDATE leads SET " + strings.Join(setClauses, ", ") + " WHERE id = $1"
	result, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func insertOutboxRows(ctx context.Context, tx pgx.Tx, leadID uuid.UUID, targets []NotifyTarget) error {
	for _, target := range targets {
		payload, err := json.Marshal(map[string]string{
			"leadId":  leadID.String(),
			"userId":  target.UserID.String(),
			"title":   target.Title,
			"content": target.Content,
		})
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO notification_outbox (kind, payload, run_at, status)
			VALUES ($1, $2, now(), 'pending')
		`, target.Kind, payload); err != nil {
			return err
		}
	}
	return nil
}

// TouchActivity refreshes the lead's activity clock; any inbound or outbound
// interaction goes through here.
func (r *Repository) TouchActivity(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE leads SET last_activity_time = now(), updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// deleteCascade removes a lead and everything it owns. This is the single
// place that knows the ownership graph; archive and dedup both go through it.
func deleteCascade(ctx context.Context, tx pgx.Tx, leadID uuid.UUID) error {
	if _, err := tx.Exec(ctx, `DELETE FROM lead_comments WHERE lead_id = $1`, leadID); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `DELETE FROM leads WHERE id = $1`, leadID); err != nil {
		return err
	}
	return nil
}
