// Package serial owns lead serial numbers: the resumable one-time backfill
// of legacy rows and the administrator-triggered full renumber. New leads
// get their serial at insert time from the counter, so this package only
// deals with history.
package serial

import (
	"context"
	"time"

	"leadengine/internal/audit"
	"leadengine/internal/leads/repository"
	"leadengine/platform/apperr"
	"leadengine/platform/logger"

	"github.com/google/uuid"
)

const (
	backfillLockKey = "leadengine:serial:backfill"
	backfillLockTTL = 10 * time.Minute

	defaultBatchSize = 500
	maxBatchSize     = 5000
)

// Store is the slice of the lead repository the allocator drives.
type Store interface {
	ListUnnumberedPage(ctx context.Context, after time.Time, afterID uuid.UUID, limit int) ([]repository.UnnumberedLead, error)
	AssignSerials(ctx context.Context, leadIDs []uuid.UUID) (int, error)
	RenumberAll(ctx context.Context) (int, error)
	MaxSerial(ctx context.Context) (int64, error)
	FlagUsed(ctx context.Context, key string) (bool, error)
	AcquireFlag(ctx context.Context, key string) error
}

// AuditLog records administrative actions.
type AuditLog interface {
	Record(ctx context.Context, action string, leadID *uuid.UUID, actorID *uuid.UUID, details map[string]any) error
}

// Lock is a best-effort advisory lock keeping two operators from running
// the backfill at the same time.
type Lock interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, key string) error
}

type Allocator struct {
	store  Store
	audits AuditLog
	lock   Lock
	log    *logger.Logger
}

func NewAllocator(store Store, audits AuditLog, lock Lock, log *logger.Logger) *Allocator {
	return &Allocator{store: store, audits: audits, lock: lock, log: log}
}

// BackfillResult tells the operator how far one batch got and where to
// resume from. The cursor is the (created_at, id) pair of the last row the
// batch covered; id breaks timestamp ties so no row can straddle a page
// boundary unseen.
type BackfillResult struct {
	Processed    int       `json:"processed"`
	HasMore      bool      `json:"hasMore"`
	NextCursor   time.Time `json:"nextCursor"`
	NextCursorID uuid.UUID `json:"nextCursorID"`
}

// AllocateBatch numbers one page of unnumbered leads in creation order,
// resuming from the (cursor, cursorID) pair. The operation is guarded by a
// one-time system flag: once a batch drains the last unnumbered lead the
// flag is consumed and any later call fails with Conflict. Batches before
// exhaustion may be repeated freely; already numbered rows are skipped.
func (a *Allocator) AllocateBatch(ctx context.Context, batchSize int, cursor time.Time, cursorID uuid.UUID, actorID *uuid.UUID) (BackfillResult, error) {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	if batchSize > maxBatchSize {
		batchSize = maxBatchSize
	}

	used, err := a.store.FlagUsed(ctx, repository.FlagSerialNumbersAssigned)
	if err != nil {
		return BackfillResult{}, err
	}
	if used {
		return BackfillResult{}, apperr.Conflict("serial backfill already completed")
	}

	acquired, err := a.lock.Acquire(ctx, backfillLockKey, backfillLockTTL)
	if err != nil {
		return BackfillResult{}, err
	}
	if !acquired {
		return BackfillResult{}, apperr.Conflict("serial backfill already running")
	}
	defer func() {
		if err := a.lock.Release(context.WithoutCancel(ctx), backfillLockKey); err != nil {
			a.log.SideEffectError("release backfill lock", err)
		}
	}()

	page, err := a.store.ListUnnumberedPage(ctx, cursor, cursorID, batchSize)
	if err != nil {
		return BackfillResult{}, err
	}

	result := BackfillResult{HasMore: len(page) == batchSize}
	if len(page) == 0 {
		if err := a.consumeFlag(ctx); err != nil {
			return BackfillResult{}, err
		}
		return result, nil
	}

	ids := make([]uuid.UUID, len(page))
	for i, lead := range page {
		ids[i] = lead.ID
	}

	assigned, err := a.store.AssignSerials(ctx, ids)
	if err != nil {
		return BackfillResult{}, err
	}
	result.Processed = assigned
	last := page[len(page)-1]
	result.NextCursor = last.CreatedAt
	result.NextCursorID = last.ID

	if !result.HasMore {
		if err := a.consumeFlag(ctx); err != nil {
			return BackfillResult{}, err
		}
	}

	if err := a.audits.Record(ctx, audit.ActionSerialBackfill, nil, actorID, map[string]any{
		"processed": assigned,
		"hasMore":   result.HasMore,
	}); err != nil {
		a.log.SideEffectError("audit serial_backfill", err)
	}

	a.log.JobEvent("serial backfill batch", "processed", assigned, "hasMore", result.HasMore)

	return result, nil
}

// Renumber rewrites every serial number from 1 in creation order. Meant for
// recovery after manual data surgery; everything happens in one transaction
// inside the repository.
func (a *Allocator) Renumber(ctx context.Context, actorID *uuid.UUID) (int, error) {
	renumbered, err := a.store.RenumberAll(ctx)
	if err != nil {
		return 0, err
	}

	if err := a.audits.Record(ctx, audit.ActionSerialRenumber, nil, actorID, map[string]any{
		"renumbered": renumbered,
	}); err != nil {
		a.log.SideEffectError("audit serial_renumber", err)
	}

	return renumbered, nil
}

// HighWaterMark exposes the current highest serial for diagnostics.
func (a *Allocator) HighWaterMark(ctx context.Context) (int64, error) {
	return a.store.MaxSerial(ctx)
}

// BackfillDone reports whether the one-time backfill has completed.
func (a *Allocator) BackfillDone(ctx context.Context) (bool, error) {
	return a.store.FlagUsed(ctx, repository.FlagSerialNumbersAssigned)
}

// consumeFlag records completion of the backfill. Conflict means another
// driver recorded it first; completion stands either way.
func (a *Allocator) consumeFlag(ctx context.Context) error {
	err := a.store.AcquireFlag(ctx, repository.FlagSerialNumbersAssigned)
	if err != nil && apperr.Is(err, apperr.KindConflict) {
		return nil
	}
	return err
}
