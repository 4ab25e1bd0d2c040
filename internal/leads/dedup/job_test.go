package dedup

import (
	"context"
	"strings"
	"testing"
	"time"

	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"
	"leadengine/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	leads  []domain.Lead
	merged []repository.MergeGroupParams
}

func (f *fakeStore) ListAll(context.Context) ([]domain.Lead, error) {
	return f.leads, nil
}

func (f *fakeStore) MergeGroup(_ context.Context, p repository.MergeGroupParams) error {
	f.merged = append(f.merged, p)
	return nil
}

type fakeDirectory struct {
	names map[uuid.UUID]string
}

func (f *fakeDirectory) DisplayName(_ context.Context, id uuid.UUID) string {
	if name, ok := f.names[id]; ok {
		return name
	}
	return "unknown user"
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, action string, _ *uuid.UUID, _ *uuid.UUID, _ map[string]any) error {
	f.actions = append(f.actions, action)
	return nil
}

var t0 = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func lead(created time.Duration, opts func(*domain.Lead)) domain.Lead {
	l := domain.Lead{
		ID:        uuid.New(),
		Status:    domain.StatusYetToDecide,
		CreatedAt: t0.Add(created),
	}
	if opts != nil {
		opts(&l)
	}
	return l
}

func newJob(store *fakeStore, directory *fakeDirectory) (*Job, *fakeAudit) {
	audits := &fakeAudit{}
	if directory == nil {
		directory = &fakeDirectory{}
	}
	return New(store, directory, audits, logger.New("test")), audits
}

func TestRunOldestWins(t *testing.T) {
	oldest := lead(0, func(l *domain.Lead) { l.MobileNo = "919876543210"; l.Subject = "first" })
	newer := lead(time.Hour, func(l *domain.Lead) { l.MobileNo = "919876543210"; l.Subject = "second"; l.State = "Kerala" })
	store := &fakeStore{leads: []domain.Lead{newer, oldest}}
	job, audits := newJob(store, nil)

	report, err := job.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.GroupsProcessed != 1 || report.DeletedCount != 1 {
		t.Fatalf("unexpected report %+v", report)
	}

	p := store.merged[0]
	if p.CanonicalID != oldest.ID {
		t.Errorf("canonical should be the oldest record")
	}
	if len(p.AbsorbedIDs) != 1 || p.AbsorbedIDs[0] != newer.ID {
		t.Errorf("unexpected absorbed set %v", p.AbsorbedIDs)
	}
	if !p.Unassign {
		t.Error("bulk merges must unassign the canonical lead")
	}
	if p.Changes["state"] != "Kerala" {
		t.Errorf("scalar fill missing: %v", p.Changes)
	}
	if p.Changes["subject"] != "first & second" {
		t.Errorf("free-text append missing: %v", p.Changes)
	}
	if len(audits.actions) != 1 || audits.actions[0] != "BULK_DEDUP_SWEEP" {
		t.Errorf("expected sweep audit, got %v", audits.actions)
	}
}

func TestRunEmailBridgesGroups(t *testing.T) {
	a := lead(0, func(l *domain.Lead) { l.MobileNo = "911111111111"; l.Email = "asha@example.com" })
	b := lead(time.Hour, func(l *domain.Lead) { l.MobileNo = "912222222222"; l.Email = "asha@example.com" })
	c := lead(2*time.Hour, func(l *domain.Lead) { l.MobileNo = "912222222222" })
	store := &fakeStore{leads: []domain.Lead{a, b, c}}
	job, _ := newJob(store, nil)

	report, err := job.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.GroupsProcessed != 1 {
		t.Fatalf("expected one bridged group, got %+v", report)
	}
	if got := len(store.merged[0].AbsorbedIDs); got != 2 {
		t.Errorf("expected two absorbed leads, got %d", got)
	}
}

func TestRunIgnoresPlaceholderEmail(t *testing.T) {
	a := lead(0, func(l *domain.Lead) { l.MobileNo = "911111111111"; l.Email = domain.PlaceholderEmail })
	b := lead(time.Hour, func(l *domain.Lead) { l.MobileNo = "912222222222"; l.Email = domain.PlaceholderEmail })
	store := &fakeStore{leads: []domain.Lead{a, b}}
	job, _ := newJob(store, nil)

	report, err := job.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.GroupsProcessed != 0 {
		t.Fatalf("placeholder emails must not group, got %+v", report)
	}
}

func TestRunNarratesPriorAssignees(t *testing.T) {
	agentA, agentB := uuid.New(), uuid.New()
	a := lead(0, func(l *domain.Lead) { l.MobileNo = "911111111111"; l.AssignedTo = &agentA })
	b := lead(time.Hour, func(l *domain.Lead) { l.MobileNo = "911111111111"; l.AssignedTo = &agentB })
	store := &fakeStore{leads: []domain.Lead{a, b}}
	directory := &fakeDirectory{names: map[uuid.UUID]string{agentA: "Asha", agentB: "Binod"}}
	job, _ := newJob(store, directory)

	report, err := job.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.NotificationsSent != 2 {
		t.Errorf("expected both prior assignees notified, got %+v", report)
	}

	comment := store.merged[0].CommentBody
	if !strings.Contains(comment, "Asha") || !strings.Contains(comment, "Binod") {
		t.Errorf("comment should name prior assignees, got %q", comment)
	}
}

func TestRunEmptyDataset(t *testing.T) {
	job, audits := newJob(&fakeStore{}, nil)

	report, err := job.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report != (Report{}) {
		t.Fatalf("expected zero report, got %+v", report)
	}
	if len(audits.actions) != 0 {
		t.Errorf("no audits expected, got %v", audits.actions)
	}
}
