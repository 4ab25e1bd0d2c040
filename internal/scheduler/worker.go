package scheduler

import (
	"context"
	"encoding/json"
	"fmt"

	"leadengine/internal/email"
	"leadengine/internal/notification/inapp"
	"leadengine/internal/notification/outbox"
	"leadengine/internal/users"
	"leadengine/internal/whatsapp"
	"leadengine/platform/config"
	"leadengine/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Worker consumes queued tasks. Notification delivery fans out from here:
// the in-app row is the one mandatory channel, mail and WhatsApp are
// best-effort extras.
type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux

	outbox    *outbox.Repository
	inapp     *inapp.Repository
	users     *users.Repository
	mail      *email.Sender
	messenger *whatsapp.Client
	log       *logger.Logger
}

func NewWorker(cfg config.SchedulerConfig, pool *pgxpool.Pool, mail *email.Sender, messenger *whatsapp.Client, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	mux := asynq.NewServeMux()
	w := &Worker{
		server:    server,
		mux:       mux,
		outbox:    outbox.New(pool),
		inapp:     inapp.NewRepository(pool),
		users:     users.New(pool),
		mail:      mail,
		messenger: messenger,
		log:       log,
	}

	mux.HandleFunc(TaskNotificationOutboxDue, w.handleNotificationOutboxDue)

	return w, nil
}

func (w *Worker) handleNotificationOutboxDue(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseNotificationOutboxDuePayload(task)
	if err != nil {
		return err
	}

	outboxID, err := uuid.Parse(payload.OutboxID)
	if err != nil {
		return err
	}

	rec, err := w.outbox.GetByID(ctx, outboxID)
	if err != nil {
		return err
	}
	if rec.Status == outbox.StatusSucceeded {
		return nil
	}

	if err := w.outbox.MarkProcessing(ctx, outboxID); err != nil {
		return err
	}

	var body NotificationPayload
	if err := json.Unmarshal(rec.Payload, &body); err != nil {
		return w.outbox.MarkFailed(ctx, outboxID, "malformed payload: "+err.Error())
	}

	if err := w.deliver(ctx, rec.Kind, body); err != nil {
		msg := err.Error()
		if markErr := w.outbox.MarkPending(ctx, outboxID, &msg); markErr != nil {
			return markErr
		}
		return err
	}

	return w.outbox.MarkSucceeded(ctx, outboxID)
}

func (w *Worker) deliver(ctx context.Context, kind string, body NotificationPayload) error {
	userID, err := uuid.Parse(body.UserID)
	if err != nil {
		return fmt.Errorf("bad user id in payload: %w", err)
	}

	var leadID *uuid.UUID
	if body.LeadID != "" {
		if id, err := uuid.Parse(body.LeadID); err == nil {
			leadID = &id
		}
	}

	if _, err := w.inapp.Create(ctx, inapp.CreateParams{
		UserID:   userID,
		Category: kind,
		Title:    body.Title,
		Content:  body.Content,
		LeadID:   leadID,
	}); err != nil {
		return err
	}

	// Secondary channels never fail the task; the in-app row already landed.
	recipient, err := w.users.GetByID(ctx, userID)
	if err != nil {
		w.log.SideEffectError("load notification recipient", err)
		return nil
	}

	if recipient.Email != "" {
		if err := w.mail.SendNotification(ctx, recipient.Email, body.Title, body.Content); err != nil {
			w.log.SideEffectError("notification mail", err)
		}
	}
	if recipient.MobileNo != "" {
		if err := w.messenger.SendMessage(ctx, recipient.MobileNo, body.Title+"\n"+body.Content); err != nil {
			w.log.SideEffectError("notification whatsapp", err)
		}
	}

	return nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}
