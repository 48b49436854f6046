package integration

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/amitprasad2007/varanasisaree-sub002/jobs"
)

// Notifier fans domain events out through the job queue. Enqueue failures
// are logged, never propagated; a notification must not fail a settlement.
type Notifier struct {
	client *asynq.Client
	logger *slog.Logger
}

// NewNotifier constructs Notifier.
func NewNotifier(client *asynq.Client, logger *slog.Logger) *Notifier {
	return &Notifier{client: client, logger: logger}
}

// Notify enqueues a dispatch task for the event.
func (n *Notifier) Notify(ctx context.Context, event string, payload map[string]any) {
	if n == nil || n.client == nil {
		return
	}
	task, err := jobs.NewNotifyTask(jobs.NotifyPayload{Event: event, Payload: payload})
	if err != nil {
		n.logger.Warn("build notify task", slog.String("event", event), slog.Any("error", err))
		return
	}
	if _, err := n.client.EnqueueContext(ctx, task, asynq.Queue(jobs.QueueDefault)); err != nil {
		n.logger.Warn("enqueue notify task", slog.String("event", event), slog.Any("error", err))
	}
}
