package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeNotify fans a domain event out to its subscribers.
	TaskTypeNotify = "notify:dispatch"
	// TaskTypeRefundEscalation flags refund requests stuck waiting for
	// approval.
	TaskTypeRefundEscalation = "refunds:escalate-overdue"
	// TaskTypeCreditNoteExpiry expires credit notes past their date.
	TaskTypeCreditNoteExpiry = "creditnotes:expire"
)

// NotifyPayload carries one domain event through the queue.
type NotifyPayload struct {
	Event   string         `json:"event"`
	Payload map[string]any `json:"payload"`
}

// NewNotifyTask constructs an Asynq task for an event dispatch.
func NewNotifyTask(payload NotifyPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeNotify, data), nil
}

// NewNotifyHandler processes TaskTypeNotify tasks. Delivery targets (mail,
// webhooks) hang off the event name; unknown events are logged and dropped.
func NewNotifyHandler(logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload NotifyPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		logger.InfoContext(ctx, "dispatch event",
			slog.String("event", payload.Event),
			slog.Any("payload", payload.Payload))
		return nil
	}
}

// NewRefundEscalationTask constructs the periodic escalation sweep task.
func NewRefundEscalationTask() *asynq.Task {
	return asynq.NewTask(TaskTypeRefundEscalation, nil)
}

// NewCreditNoteExpiryTask constructs the periodic credit expiry sweep task.
func NewCreditNoteExpiryTask() *asynq.Task {
	return asynq.NewTask(TaskTypeCreditNoteExpiry, nil)
}

// RefundEscalator is the slice of the refund service the cron needs.
type RefundEscalator interface {
	EscalateOverdue(ctx context.Context) (int, error)
}

// NewRefundEscalationHandler processes TaskTypeRefundEscalation tasks.
func NewRefundEscalationHandler(svc RefundEscalator, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		flagged, err := svc.EscalateOverdue(ctx)
		if err != nil {
			return err
		}
		if flagged > 0 {
			logger.InfoContext(ctx, "escalated overdue refunds", slog.Int("count", flagged))
		}
		return nil
	}
}

// CreditExpirer is the slice of the credit note service the cron needs.
type CreditExpirer interface {
	ExpireDue(ctx context.Context) (int64, error)
}

// NewCreditNoteExpiryHandler processes TaskTypeCreditNoteExpiry tasks.
func NewCreditNoteExpiryHandler(svc CreditExpirer, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		expired, err := svc.ExpireDue(ctx)
		if err != nil {
			return err
		}
		if expired > 0 {
			logger.InfoContext(ctx, "expired credit notes", slog.Int64("count", expired))
		}
		return nil
	}
}
