// Package lifecycle runs the inactivity sweep: assigned leads that sat idle
// past their threshold are either unassigned (first strike) or archived to
// the master-data pool (second strike). Matured leads are exempt for good.
package lifecycle

import (
	"context"
	"fmt"
	"time"

	"leadengine/internal/audit"
	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"
	"leadengine/internal/notification/outbox"
	"leadengine/platform/logger"

	"github.com/google/uuid"
)

// Store is the slice of the lead repository the sweep drives.
type Store interface {
	ListAssignedPage(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]domain.Lead, error)
	Unassign(ctx context.Context, p repository.UnassignParams) error
	Archive(ctx context.Context, p repository.ArchiveParams) error
}

// AuditLog records lifecycle transitions.
type AuditLog interface {
	Record(ctx context.Context, action string, leadID *uuid.UUID, actorID *uuid.UUID, details map[string]any) error
}

type Sweeper struct {
	store    Store
	audits   AuditLog
	rules    domain.ThresholdRules
	pageSize int
	log      *logger.Logger

	// now is swapped out in tests.
	now func() time.Time
}

func NewSweeper(store Store, audits AuditLog, rules domain.ThresholdRules, pageSize int, log *logger.Logger) *Sweeper {
	if pageSize <= 0 {
		pageSize = 200
	}
	return &Sweeper{
		store:    store,
		audits:   audits,
		rules:    rules,
		pageSize: pageSize,
		log:      log,
		now:      time.Now,
	}
}

// Report summarizes one sweep run.
type Report struct {
	Scanned    int `json:"scanned"`
	Unassigned int `json:"unassigned"`
	Archived   int `json:"archived"`
	Failed     int `json:"failed"`
}

// Run walks every assigned lead in bounded pages and applies the decided
// transition. A failure on one lead is logged and counted, not fatal; the
// lead stays assigned and the next run re-evaluates it.
func (s *Sweeper) Run(ctx context.Context) (Report, error) {
	var report Report
	now := s.now()
	cursor := time.Time{}
	cursorID := uuid.Nil

	for {
		page, err := s.store.ListAssignedPage(ctx, cursor, cursorID, s.pageSize)
		if err != nil {
			return report, err
		}
		if len(page) == 0 {
			break
		}

		for _, lead := range page {
			report.Scanned++

			switch domain.EvaluateSweep(lead, now, s.rules) {
			case domain.SweepUnassign:
				if err := s.unassign(ctx, lead, now); err != nil {
					report.Failed++
					s.log.DatabaseError("sweep unassign", err)
					continue
				}
				report.Unassigned++
			case domain.SweepArchive:
				if err := s.archive(ctx, lead, now); err != nil {
					report.Failed++
					s.log.DatabaseError("sweep archive", err)
					continue
				}
				report.Archived++
			}
		}

		if len(page) < s.pageSize {
			break
		}
		last := page[len(page)-1]
		cursor, cursorID = last.CreatedAt, last.ID
	}

	s.log.JobEvent("lifecycle sweep",
		"scanned", report.Scanned,
		"unassigned", report.Unassigned,
		"archived", report.Archived,
		"failed", report.Failed,
	)

	return report, nil
}

func (s *Sweeper) unassign(ctx context.Context, lead domain.Lead, now time.Time) error {
	days := domain.InactiveDays(lead, now)
	comment := fmt.Sprintf("Lead auto-unassigned after %d days of inactivity", days)

	var notify []repository.NotifyTarget
	if lead.AssignedTo != nil {
		notify = []repository.NotifyTarget{{
			UserID:  *lead.AssignedTo,
			Kind:    outbox.KindLeadUnassigned,
			Title:   "Lead Unassigned",
			Content: fmt.Sprintf("Lead %s was unassigned from you after %d days without activity.", lead.MobileNo, days),
		}}
	}

	if err := s.store.Unassign(ctx, repository.UnassignParams{
		LeadID:      lead.ID,
		CommentBody: comment,
		Notify:      notify,
	}); err != nil {
		return err
	}

	if err := s.audits.Record(ctx, audit.ActionAutoUnassign, &lead.ID, nil, map[string]any{
		"inactiveDays": days,
	}); err != nil {
		s.log.SideEffectError("audit auto_unassign", err)
	}
	return nil
}

func (s *Sweeper) archive(ctx context.Context, lead domain.Lead, now time.Time) error {
	days := domain.InactiveDays(lead, now)
	comment := fmt.Sprintf("Lead archived to master data after %d days of inactivity", days)

	var notify []repository.NotifyTarget
	if lead.AssignedTo != nil {
		notify = []repository.NotifyTarget{{
			UserID:  *lead.AssignedTo,
			Kind:    outbox.KindLeadArchived,
			Title:   "Lead Archived",
			Content: fmt.Sprintf("Lead %s went back to the master-data pool after %d days without activity.", lead.MobileNo, days),
		}}
	}

	leadID := lead.ID
	if err := s.store.Archive(ctx, repository.ArchiveParams{
		Lead:        lead,
		CommentBody: comment,
		Notify:      notify,
	}); err != nil {
		return err
	}

	if err := s.audits.Record(ctx, audit.ActionArchiveToMasterdata, &leadID, nil, map[string]any{
		"inactiveDays":      days,
		"reassignmentCount": lead.ReassignmentCount,
	}); err != nil {
		s.log.SideEffectError("audit archive_to_masterdata", err)
	}
	return nil
}
