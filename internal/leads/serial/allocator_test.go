package serial

import (
	"bytes"
	"context"
	"sort"
	"testing"
	"time"

	"leadengine/internal/leads/repository"
	"leadengine/platform/apperr"
	"leadengine/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// fakeStore keeps a flat lead set and answers pages the way the SQL does:
// compound (created_at, id) cursor, creation order with id tiebreak.
type fakeStore struct {
	leads       []repository.UnnumberedLead
	numbered    map[uuid.UUID]bool
	flagUsed    bool
	maxSerial   int64
	renumbered  int
	renumberErr error
}

func newFakeStore(leads []repository.UnnumberedLead) *fakeStore {
	sorted := append([]repository.UnnumberedLead(nil), leads...)
	sort.Slice(sorted, func(i, j int) bool {
		if !sorted[i].CreatedAt.Equal(sorted[j].CreatedAt) {
			return sorted[i].CreatedAt.Before(sorted[j].CreatedAt)
		}
		return bytes.Compare(sorted[i].ID[:], sorted[j].ID[:]) < 0
	})
	return &fakeStore{leads: sorted, numbered: make(map[uuid.UUID]bool)}
}

func (f *fakeStore) ListUnnumberedPage(_ context.Context, after time.Time, afterID uuid.UUID, limit int) ([]repository.UnnumberedLead, error) {
	var page []repository.UnnumberedLead
	for _, lead := range f.leads {
		if f.numbered[lead.ID] {
			continue
		}
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

func (f *fakeStore) AssignSerials(_ context.Context, ids []uuid.UUID) (int, error) {
	assigned := 0
	for _, id := range ids {
		if f.numbered[id] {
			continue
		}
		f.numbered[id] = true
		assigned++
	}
	return assigned, nil
}

func (f *fakeStore) RenumberAll(context.Context) (int, error) {
	return f.renumbered, f.renumberErr
}

func (f *fakeStore) MaxSerial(context.Context) (int64, error) { return f.maxSerial, nil }

func (f *fakeStore) FlagUsed(_ context.Context, _ string) (bool, error) {
	return f.flagUsed, nil
}

func (f *fakeStore) AcquireFlag(_ context.Context, key string) error {
	if f.flagUsed {
		return apperr.Conflict("operation already used: " + key)
	}
	f.flagUsed = true
	return nil
}

type fakeAudit struct {
	actions []string
}

func (f *fakeAudit) Record(_ context.Context, action string, _ *uuid.UUID, _ *uuid.UUID, _ map[string]any) error {
	f.actions = append(f.actions, action)
	return nil
}

type fakeLock struct {
	held bool
}

func (f *fakeLock) Acquire(_ context.Context, _ string, _ time.Duration) (bool, error) {
	if f.held {
		return false, nil
	}
	f.held = true
	return true, nil
}

func (f *fakeLock) Release(_ context.Context, _ string) error {
	f.held = false
	return nil
}

func spacedLeads(n int, base time.Time) []repository.UnnumberedLead {
	leads := make([]repository.UnnumberedLead, n)
	for i := range leads {
		leads[i] = repository.UnnumberedLead{ID: uuid.New(), CreatedAt: base.Add(time.Duration(i) * time.Minute)}
	}
	return leads
}

// drainBackfill drives AllocateBatch with the returned cursor pair until
// hasMore goes false, the way an operator script would.
func drainBackfill(t *testing.T, alloc *Allocator, batchSize int) int {
	t.Helper()
	cursor, cursorID := time.Time{}, uuid.Nil
	total := 0
	for i := 0; i < 100; i++ {
		result, err := alloc.AllocateBatch(context.Background(), batchSize, cursor, cursorID, nil)
		if err != nil {
			t.Fatalf("AllocateBatch: %v", err)
		}
		total += result.Processed
		if !result.HasMore {
			return total
		}
		cursor, cursorID = result.NextCursor, result.NextCursorID
	}
	t.Fatal("backfill did not drain within 100 batches")
	return 0
}

func TestAllocateBatchResumable(t *testing.T) {
	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	store := newFakeStore(spacedLeads(5, base))
	audits := &fakeAudit{}
	alloc := NewAllocator(store, audits, &fakeLock{}, logger.New("test"))

	first, err := alloc.AllocateBatch(context.Background(), 3, time.Time{}, uuid.Nil, nil)
	if err != nil {
		t.Fatalf("first batch: %v", err)
	}
	if first.Processed != 3 || !first.HasMore {
		t.Fatalf("unexpected first result %+v", first)
	}
	if store.flagUsed {
		t.Fatal("flag must not be consumed while leads remain")
	}

	second, err := alloc.AllocateBatch(context.Background(), 3, first.NextCursor, first.NextCursorID, nil)
	if err != nil {
		t.Fatalf("second batch: %v", err)
	}
	if second.Processed != 2 || second.HasMore {
		t.Fatalf("unexpected second result %+v", second)
	}
	if !store.flagUsed {
		t.Fatal("flag must be consumed after the final page")
	}

	if _, err := alloc.AllocateBatch(context.Background(), 3, time.Time{}, uuid.Nil, nil); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict on re-run, got %v", err)
	}

	if len(audits.actions) != 2 {
		t.Errorf("expected two audit entries, got %v", audits.actions)
	}
}

func TestAllocateBatchTiedTimestampsExhaustive(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	leads := []repository.UnnumberedLead{
		{ID: uuid.New(), CreatedAt: created},
		{ID: uuid.New(), CreatedAt: created},
		{ID: uuid.New(), CreatedAt: created},
	}
	store := newFakeStore(leads)
	alloc := NewAllocator(store, &fakeAudit{}, &fakeLock{}, logger.New("test"))

	total := drainBackfill(t, alloc, 1)
	if total != len(leads) {
		t.Fatalf("expected %d leads numbered, got %d", len(leads), total)
	}
	for _, lead := range leads {
		if !store.numbered[lead.ID] {
			t.Errorf("lead %s with tied created_at was never numbered", lead.ID)
		}
	}
	if !store.flagUsed {
		t.Fatal("flag must be consumed after the dataset drains")
	}
}

func TestAllocateBatchEmptyDatasetConsumesFlag(t *testing.T) {
	store := newFakeStore(nil)
	alloc := NewAllocator(store, &fakeAudit{}, &fakeLock{}, logger.New("test"))

	result, err := alloc.AllocateBatch(context.Background(), 100, time.Time{}, uuid.Nil, nil)
	if err != nil {
		t.Fatalf("AllocateBatch: %v", err)
	}
	if result.Processed != 0 || result.HasMore {
		t.Fatalf("unexpected result %+v", result)
	}
	if !store.flagUsed {
		t.Fatal("empty dataset should still consume the flag")
	}
}

func TestAllocateBatchConcurrentRunBlocked(t *testing.T) {
	store := newFakeStore(spacedLeads(1, time.Now()))
	lock := &fakeLock{held: true}
	alloc := NewAllocator(store, &fakeAudit{}, lock, logger.New("test"))

	_, err := alloc.AllocateBatch(context.Background(), 10, time.Time{}, uuid.Nil, nil)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("expected conflict while lock is held, got %v", err)
	}
}

func TestRenumberAudits(t *testing.T) {
	store := newFakeStore(nil)
	store.renumbered = 42
	audits := &fakeAudit{}
	alloc := NewAllocator(store, audits, &fakeLock{}, logger.New("test"))

	actor := uuid.New()
	count, err := alloc.Renumber(context.Background(), &actor)
	if err != nil {
		t.Fatalf("Renumber: %v", err)
	}
	if count != 42 {
		t.Errorf("expected 42 renumbered, got %d", count)
	}
	if len(audits.actions) != 1 || audits.actions[0] != "SERIAL_RENUMBER" {
		t.Errorf("expected renumber audit, got %v", audits.actions)
	}
}

func TestSerialDiagnostics(t *testing.T) {
	store := newFakeStore(nil)
	store.maxSerial = 7
	alloc := NewAllocator(store, &fakeAudit{}, &fakeLock{}, logger.New("test"))

	mark, err := alloc.HighWaterMark(context.Background())
	if err != nil || mark != 7 {
		t.Fatalf("high water mark: %d err=%v", mark, err)
	}

	done, err := alloc.BackfillDone(context.Background())
	if err != nil || done {
		t.Fatalf("backfill should not be done yet: done=%v err=%v", done, err)
	}
	store.flagUsed = true
	done, err = alloc.BackfillDone(context.Background())
	if err != nil || !done {
		t.Fatalf("backfill should be done: done=%v err=%v", done, err)
	}
}

func TestRedisLock(t *testing.T) {
	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	lock := NewRedisLock(client)
	ctx := context.Background()

	ok, err := lock.Acquire(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("first acquire: ok=%v err=%v", ok, err)
	}
	ok, err = lock.Acquire(ctx, "k", time.Minute)
	if err != nil || ok {
		t.Fatalf("second acquire should fail: ok=%v err=%v", ok, err)
	}
	if err := lock.Release(ctx, "k"); err != nil {
		t.Fatalf("release: %v", err)
	}
	ok, err = lock.Acquire(ctx, "k", time.Minute)
	if err != nil || !ok {
		t.Fatalf("acquire after release: ok=%v err=%v", ok, err)
	}
}
