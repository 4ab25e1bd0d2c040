package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadengine/internal/notification/outbox"
	"leadengine/platform/config"
	"leadengine/platform/logger"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

// OutboxDispatcher moves committed notification rows onto the task queue.
// The lead repositories write outbox rows inside their own transactions;
// this loop is the only component that turns them into asynq tasks.
type OutboxDispatcher struct {
	client *asynq.Client
	queue  string
	repo   *outbox.Repository
	log    *logger.Logger
}

func NewOutboxDispatcher(cfg config.SchedulerConfig, pool *pgxpool.Pool, log *logger.Logger) (*OutboxDispatcher, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	return &OutboxDispatcher{
		client: asynq.NewClient(opt),
		queue:  queueName(cfg),
		repo:   outbox.New(pool),
		log:    log,
	}, nil
}

func (d *OutboxDispatcher) Close() error {
	if d == nil || d.client == nil {
		return nil
	}
	return d.client.Close()
}

func (d *OutboxDispatcher) Run(ctx context.Context) {
	if d == nil || d.client == nil || d.repo == nil {
		return
	}

	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		records, err := d.repo.ClaimPending(ctx, 50)
		if err != nil {
			d.log.Warn("outbox claim failed", "error", err)
			continue
		}

		d.enqueue(ctx, records)
	}
}

// enqueue pushes claimed records onto the queue. Records that fail to
// enqueue are flipped back to pending so a later claim retries them.
func (d *OutboxDispatcher) enqueue(ctx context.Context, records []outbox.Record) {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(5)

	for _, rec := range records {
		rec := rec
		g.Go(func() error {
			task, err := NewNotificationOutboxDueTask(NotificationOutboxDuePayload{
				OutboxID: rec.ID.String(),
			})
			if err != nil {
				msg := err.Error()
				_ = d.repo.MarkPending(gctx, rec.ID, &msg)
				return nil
			}

			_, err = d.client.EnqueueContext(gctx, task, asynq.ProcessAt(rec.RunAt), asynq.Queue(d.queue))
			if err != nil {
				msg := err.Error()
				_ = d.repo.MarkPending(gctx, rec.ID, &msg)
			}
			return nil
		})
	}
	_ = g.Wait()
}
