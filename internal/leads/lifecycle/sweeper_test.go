package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"
	"leadengine/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	leads       []domain.Lead
	unassigned  []repository.UnassignParams
	archived    []repository.ArchiveParams
	unassignErr error
}

// ListAssignedPage mirrors the SQL contract: (created_at, id) keyset cursor,
// creation order with id tiebreak.
func (f *fakeStore) ListAssignedPage(_ context.Context, after time.Time, afterID uuid.UUID, limit int) ([]domain.Lead, error) {
	sorted := append([]domain.Lead(nil), f.leads...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})

	var page []domain.Lead
	for _, lead := range sorted {
		pastCursor := lead.CreatedAt.After(after) ||
			(lead.CreatedAt.Equal(after) && bytes.Compare(lead.ID[:], afterID[:]) > 0)
		if !pastCursor {
			continue
		}
		page = append(page, lead)
		if len(page) == limit {
			break
		}
	}
	return page, nil
}

func (f *fakeStore) Unassign(_ context.Context, p repository.UnassignParams) error {
	if f.unassignErr != nil {
		return f.unassignErr
	}
	f.unassigned = append(f.unassigned, p)
	return nil
}

func (f *fakeStore) Archive(_ context.Context, p repository.ArchiveParams) error {
	f.archived = append(f.archived, p)
	return nil
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, action string, _ *uuid.UUID, _ *uuid.UUID, _ map[string]any) error {
	f.actions = append(f.actions, action)
	return nil
}

var sweepNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func assignedLead(opts func(*domain.Lead)) domain.Lead {
	agent := uuid.New()
	assigned := sweepNow.Add(-48 * time.Hour)
	lead := domain.Lead{
		ID:           uuid.New(),
		MobileNo:     "919876543210",
		Status:       domain.StatusYetToDecide,
		Heat:         domain.HeatUnset,
		AssignedTo:   &agent,
		AssignedDate: &assigned,
		CreatedAt:    sweepNow.Add(-30 * 24 * time.Hour),
	}
	if opts != nil {
		opts(&lead)
	}
	return lead
}

func newSweeper(store *fakeStore, audits *fakeAudit) *Sweeper {
	s := NewSweeper(store, audits, domain.DefaultThresholdRules(), 50, logger.New("test"))
	s.now = func() time.Time { return sweepNow }
	return s
}

func TestRunUnassignsFirstStrike(t *testing.T) {
	lead := assignedLead(nil) // first assignment, 48h idle, 24h threshold
	store := &fakeStore{leads: []domain.Lead{lead}}
	audits := &fakeAudit{}

	report, err := newSweeper(store, audits).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Unassigned != 1 || report.Archived != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
	if len(store.unassigned) != 1 {
		t.Fatalf("expected one unassign, got %d", len(store.unassigned))
	}
	p := store.unassigned[0]
	if p.CommentBody != "Lead auto-unassigned after 2 days of inactivity" {
		t.Errorf("unexpected comment %q", p.CommentBody)
	}
	if len(p.Notify) != 1 || p.Notify[0].UserID != *lead.AssignedTo {
		t.Errorf("expected notification to previous assignee, got %+v", p.Notify)
	}
	if len(audits.actions) != 1 || audits.actions[0] != "AUTO_UNASSIGN" {
		t.Errorf("expected auto_unassign audit, got %v", audits.actions)
	}
}

func TestRunArchivesSecondStrike(t *testing.T) {
	lead := assignedLead(func(l *domain.Lead) {
		first := sweepNow.Add(-60 * 24 * time.Hour)
		l.FirstAssignmentDate = &first
		l.ReassignmentCount = 1
		idle := sweepNow.Add(-16 * 24 * time.Hour)
		l.LastActivityTime = &idle
	})
	store := &fakeStore{leads: []domain.Lead{lead}}
	audits := &fakeAudit{}

	report, err := newSweeper(store, audits).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Archived != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if audits.actions[0] != "ARCHIVE_TO_MASTERDATA" {
		t.Errorf("expected archive audit, got %v", audits.actions)
	}
}

func TestRunSkipsExemptLeads(t *testing.T) {
	matured := assignedLead(func(l *domain.Lead) { l.Heat = domain.HeatMatured })
	fresh := assignedLead(func(l *domain.Lead) {
		recent := sweepNow.Add(-time.Hour)
		l.LastActivityTime = &recent
	})
	store := &fakeStore{leads: []domain.Lead{matured, fresh}}

	report, err := newSweeper(store, &fakeAudit{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 2 || report.Unassigned != 0 || report.Archived != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestRunScansTiedTimestampsAcrossPages(t *testing.T) {
	created := sweepNow.Add(-30 * 24 * time.Hour)
	first := assignedLead(func(l *domain.Lead) {
		l.Heat = domain.HeatMatured
		l.CreatedAt = created
	})
	second := assignedLead(func(l *domain.Lead) {
		l.Heat = domain.HeatMatured
		l.CreatedAt = created
	})
	store := &fakeStore{leads: []domain.Lead{first, second}}

	s := NewSweeper(store, &fakeAudit{}, domain.DefaultThresholdRules(), 1, logger.New("test"))
	s.now = func() time.Time { return sweepNow }

	report, err := s.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 2 {
		t.Fatalf("lead sharing a created_at at the page boundary was not evaluated: %+v", report)
	}
}

func TestRunCountsFailuresAndContinues(t *testing.T) {
	store := &fakeStore{
		leads:       []domain.Lead{assignedLead(nil)},
		unassignErr: errors.New("deadlock"),
	}

	report, err := newSweeper(store, &fakeAudit{}).Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Failed != 1 || report.Unassigned != 0 {
		t.Fatalf("unexpected report %+v", report)
	}
}

func TestLoadRulesOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	content := "firstAssignment: 48h\nhot: 240h\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	rules, err := LoadRules(path)
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules.FirstAssignment != 48*time.Hour {
		t.Errorf("firstAssignment = %v", rules.FirstAssignment)
	}
	if rules.Hot != 240*time.Hour {
		t.Errorf("hot = %v", rules.Hot)
	}
	if rules.YetToDecide != domain.YetToDecideThreshold {
		t.Errorf("yetToDecide should keep default, got %v", rules.YetToDecide)
	}
}

func TestLoadRulesMissingFileUsesDefaults(t *testing.T) {
	rules, err := LoadRules(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadRules: %v", err)
	}
	if rules != domain.DefaultThresholdRules() {
		t.Errorf("expected defaults, got %+v", rules)
	}
}

func TestLoadRulesRejectsBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("default: soon\n"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadRules(path); err == nil {
		t.Fatal("expected parse error")
	}
}
