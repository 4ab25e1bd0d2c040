package service

import (
	"context"
	"errors"
	"testing"

	"leadengine/internal/geo"
	"leadengine/internal/leads/domain"
	"leadengine/internal/leads/repository"
	"leadengine/internal/users"
	"leadengine/platform/apperr"
	"leadengine/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	byMobile map[string]domain.Lead
	byEmail  map[string]domain.Lead

	created []repository.CreateLeadParams
	merged  []repository.MergeUpdateParams
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		byMobile: map[string]domain.Lead{},
		byEmail:  map[string]domain.Lead{},
	}
}

func (f *fakeStore) add(lead domain.Lead) {
	if lead.MobileNo != "" {
		f.byMobile[lead.MobileNo] = lead
	}
	if lead.Email != "" {
		f.byEmail[lead.Email] = lead
	}
}

func (f *fakeStore) FindByMobile(_ context.Context, mobile string) (domain.Lead, error) {
	if lead, ok := f.byMobile[mobile]; ok {
		return lead, nil
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (f *fakeStore) FindByEmail(_ context.Context, email string) (domain.Lead, error) {
	if lead, ok := f.byEmail[email]; ok {
		return lead, nil
	}
	return domain.Lead{}, repository.ErrNotFound
}

func (f *fakeStore) Create(_ context.Context, p repository.CreateLeadParams) (domain.Lead, error) {
	f.created = append(f.created, p)
	lead := domain.Lead{ID: uuid.New(), MobileNo: p.Data.MobileNo, Email: p.Data.Email}
	f.add(lead)
	return lead, nil
}

func (f *fakeStore) ApplyMerge(_ context.Context, p repository.MergeUpdateParams) error {
	f.merged = append(f.merged, p)
	return nil
}

type fakeDirectory struct {
	users []users.User
	err   error
}

func (f *fakeDirectory) ListByRoles(context.Context, ...string) ([]users.User, error) {
	return f.users, f.err
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, action string, _ *uuid.UUID, _ *uuid.UUID, _ map[string]any) error {
	f.actions = append(f.actions, action)
	return nil
}

type fakeGeo struct {
	regions map[string]geo.Region
}

func (f *fakeGeo) Lookup(_ context.Context, pincode string) (geo.Region, error) {
	if region, ok := f.regions[pincode]; ok {
		return region, nil
	}
	return geo.Region{}, repository.ErrNotFound
}

func newService(store *fakeStore, directory *fakeDirectory, audits *fakeAudit, geoLookup *fakeGeo) *Service {
	return New(store, directory, audits, geoLookup, nil, logger.New("test"))
}

func TestCreateOrMergeNewLead(t *testing.T) {
	store := newFakeStore()
	admin := users.User{ID: uuid.New(), Role: users.RoleAdmin}
	svc := newService(store, &fakeDirectory{users: []users.User{admin}}, &fakeAudit{}, nil)

	result, err := svc.CreateOrMerge(context.Background(), domain.LeadData{
		MobileNo: "9876543210",
		Name:     "Asha",
		Source:   "website",
	})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected created, got %+v", result)
	}
	if len(store.created) != 1 {
		t.Fatalf("expected one create, got %d", len(store.created))
	}
	if got := store.created[0].Data.MobileNo; got != "919876543210" {
		t.Errorf("mobile not canonicalized: %q", got)
	}
	if len(store.created[0].Notify) != 1 || store.created[0].Notify[0].UserID != admin.ID {
		t.Errorf("expected admin notification target, got %+v", store.created[0].Notify)
	}
}

func TestCreateOrMergeMatchesUnprefixedSubmission(t *testing.T) {
	store := newFakeStore()
	existing := domain.Lead{ID: uuid.New(), MobileNo: "919876543210", Status: domain.StatusYetToDecide}
	store.add(existing)
	audits := &fakeAudit{}
	svc := newService(store, &fakeDirectory{}, audits, nil)

	result, err := svc.CreateOrMerge(context.Background(), domain.LeadData{
		MobileNo: "09876543210",
		Subject:  "pricing",
	})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if !result.Merged || result.LeadID != existing.ID {
		t.Fatalf("expected merge into %s, got %+v", existing.ID, result)
	}
	if len(store.merged) != 1 {
		t.Fatalf("expected one merge, got %d", len(store.merged))
	}
	if store.merged[0].CommentBody != commentPostedAgain {
		t.Errorf("expected posted-again comment, got %q", store.merged[0].CommentBody)
	}
	if len(audits.actions) != 1 || audits.actions[0] != "CLUB_DUPLICATE_LEAD" {
		t.Errorf("expected club audit entry, got %v", audits.actions)
	}
}

func TestCreateOrMergeNoCommentWhenNothingChanged(t *testing.T) {
	store := newFakeStore()
	existing := domain.Lead{
		ID:       uuid.New(),
		MobileNo: "919876543210",
		Subject:  "pricing",
		Status:   domain.StatusYetToDecide,
	}
	store.add(existing)
	svc := newService(store, &fakeDirectory{}, &fakeAudit{}, nil)

	_, err := svc.CreateOrMerge(context.Background(), domain.LeadData{
		MobileNo: "9876543210",
		Subject:  "pricing",
	})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if got := store.merged[0].CommentBody; got != "" {
		t.Errorf("expected no comment for a no-change merge, got %q", got)
	}
}

func TestCreateOrMergeNotifiesAssignee(t *testing.T) {
	store := newFakeStore()
	agent := uuid.New()
	existing := domain.Lead{
		ID:         uuid.New(),
		MobileNo:   "919876543210",
		Status:     domain.StatusRelevant,
		AssignedTo: &agent,
	}
	store.add(existing)
	svc := newService(store, &fakeDirectory{}, &fakeAudit{}, nil)

	_, err := svc.CreateOrMerge(context.Background(), domain.LeadData{
		MobileNo: "9876543210",
		Message:  "call me back",
	})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	notify := store.merged[0].Notify
	if len(notify) != 1 || notify[0].UserID != agent {
		t.Fatalf("expected assignee notification, got %+v", notify)
	}
	if notify[0].Title != titleDuplicateClubbed {
		t.Errorf("unexpected title %q", notify[0].Title)
	}
}

func TestCreateOrMergeDropsTerminalMatch(t *testing.T) {
	store := newFakeStore()
	existing := domain.Lead{ID: uuid.New(), MobileNo: "919876543210", Status: domain.StatusNotRelevant}
	store.add(existing)
	audits := &fakeAudit{}
	svc := newService(store, &fakeDirectory{}, audits, nil)

	result, err := svc.CreateOrMerge(context.Background(), domain.LeadData{MobileNo: "9876543210"})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if !result.Dropped {
		t.Fatalf("expected drop, got %+v", result)
	}
	if len(store.merged) != 0 || len(store.created) != 0 {
		t.Error("terminal match must not write anything")
	}
	if len(audits.actions) != 0 {
		t.Errorf("terminal match must not audit, got %v", audits.actions)
	}
}

func TestCreateOrMergeIgnoresPlaceholderEmail(t *testing.T) {
	store := newFakeStore()
	existing := domain.Lead{ID: uuid.New(), Email: domain.PlaceholderEmail, MobileNo: "911111111111"}
	store.add(existing)
	svc := newService(store, &fakeDirectory{}, &fakeAudit{}, nil)

	result, err := svc.CreateOrMerge(context.Background(), domain.LeadData{
		MobileNo: "9876543210",
		Email:    domain.PlaceholderEmail,
	})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if !result.Created {
		t.Fatalf("placeholder email must not match, got %+v", result)
	}
}

func TestCreateOrMergeEmailFallback(t *testing.T) {
	store := newFakeStore()
	existing := domain.Lead{ID: uuid.New(), MobileNo: "911111111111", Email: "asha@example.com"}
	store.add(existing)
	svc := newService(store, &fakeDirectory{}, &fakeAudit{}, nil)

	result, err := svc.CreateOrMerge(context.Background(), domain.LeadData{
		MobileNo: "9876543210",
		Email:    "Asha@Example.com",
	})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if !result.Merged || result.LeadID != existing.ID {
		t.Fatalf("expected email-index merge, got %+v", result)
	}
}

func TestCreateOrMergeRejectsEmptyIdentity(t *testing.T) {
	svc := newService(newFakeStore(), &fakeDirectory{}, &fakeAudit{}, nil)

	_, err := svc.CreateOrMerge(context.Background(), domain.LeadData{Name: "no contact"})
	if !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCreateOrMergeDirectoryFailureStillCreates(t *testing.T) {
	store := newFakeStore()
	svc := newService(store, &fakeDirectory{err: errors.New("directory down")}, &fakeAudit{}, nil)

	result, err := svc.CreateOrMerge(context.Background(), domain.LeadData{MobileNo: "9876543210"})
	if err != nil {
		t.Fatalf("CreateOrMerge: %v", err)
	}
	if !result.Created {
		t.Fatalf("expected create despite directory failure, got %+v", result)
	}
	if len(store.created[0].Notify) != 0 {
		t.Errorf("expected no notification targets, got %+v", store.created[0].Notify)
	}
}

func TestBulkCreateOrMerge(t *testing.T) {
	store := newFakeStore()
	existing := domain.Lead{ID: uuid.New(), MobileNo: "919876543210", Status: domain.StatusYetToDecide}
	store.add(existing)
	blocked := domain.Lead{ID: uuid.New(), MobileNo: "912222222222", Status: domain.StatusNotRelevant}
	store.add(blocked)
	svc := newService(store, &fakeDirectory{}, &fakeAudit{}, &fakeGeo{regions: map[string]geo.Region{
		"110001": {Pincode: "110001", State: "Delhi", District: "New Delhi"},
	}})

	report, err := svc.BulkCreateOrMerge(context.Background(), []domain.LeadData{
		{MobileNo: "5555555555", Pincode: "110001"},
		{MobileNo: "9876543210", Subject: "again"},
		{MobileNo: "2222222222"},
		{Name: "missing identity"},
	}, nil)
	if err != nil {
		t.Fatalf("BulkCreateOrMerge: %v", err)
	}
	if report.Imported != 1 || report.Merged != 1 || report.Dropped != 1 || report.Rejected != 1 {
		t.Fatalf("unexpected report %+v", report)
	}
	if got := store.created[0].Data.State; got != "Delhi" {
		t.Errorf("pincode auto-fill missing, state=%q", got)
	}
}
