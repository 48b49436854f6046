package sales

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
	Get(ctx context.Context, id int64) (PurchaseTransaction, error)
	ListStatusLogs(ctx context.Context, txID int64) ([]StatusLog, error)
}

// NotifierPort delivers fire-and-forget events; failures are logged by the
// implementation and never fail the settlement.
type NotifierPort interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns lifecycle transitions for orders and POS sales.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier NotifierPort
	now      func() time.Time
}

// NewService builds Service. now may be nil, defaulting to time.Now.
func NewService(repo RepositoryPort, audit AuditPort, notifier NotifierPort, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, now: now}
}

// ChangeInput describes a single status change.
type ChangeInput struct {
	TransactionID int64
	To            Status
	Note          string
	Meta          map[string]any
	Actor         shared.Actor
}

// ChangeStatus applies one transition with its inventory side effect and
// status log in a single transaction. Illegal transitions leave the
// transaction untouched.
func (s *Service) ChangeStatus(ctx context.Context, input ChangeInput) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return ChangeStatusTx(ctx, tx, input, s.now().UTC())
	})
	if err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor.ID,
			Action:   "sales:status_change",
			Entity:   "purchase_transaction",
			EntityID: strconv.FormatInt(input.TransactionID, 10),
			Meta:     map[string]any{"to": string(input.To), "note": input.Note},
		})
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "transaction.status_changed", map[string]any{
			"transaction_id": input.TransactionID,
			"status":         string(input.To),
		})
	}
	return nil
}

// BulkResult reports the outcome for one item of a bulk status change.
type BulkResult struct {
	TransactionID int64  `json:"transaction_id"`
	OK            bool   `json:"ok"`
	Error         string `json:"error,omitempty"`
}

// BulkChangeStatus applies the single-transition algorithm per item. Each
// item is its own unit of work: a failure mid-batch does not roll back
// already-applied items, and the result list surfaces every outcome.
func (s *Service) BulkChangeStatus(ctx context.Context, ids []int64, to Status, note string, actor shared.Actor) []BulkResult {
	results := make([]BulkResult, 0, len(ids))
	for _, id := range ids {
		err := s.ChangeStatus(ctx, ChangeInput{TransactionID: id, To: to, Note: note, Actor: actor})
		result := BulkResult{TransactionID: id, OK: err == nil}
		if err != nil {
			result.Error = err.Error()
		}
		results = append(results, result)
	}
	return results
}

// ShipmentInput carries carrier assignment details.
type ShipmentInput struct {
	TransactionID int64
	AWB           string
	Courier       string
	Actor         shared.Actor
}

// AssignShipment records the AWB and courier on an order heading out the
// door. Allowed once the order is processing or later; the assignment is
// metadata and does not move the lifecycle.
func (s *Service) AssignShipment(ctx context.Context, input ShipmentInput) error {
	if input.AWB == "" {
		return fmt.Errorf("%w: awb required", ErrShipmentNotAssignable)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		txn, err := tx.GetForUpdate(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		if txn.Kind != KindOrder {
			return ErrShipmentNotAssignable
		}
		switch txn.Status {
		case StatusProcessing, StatusShipped, StatusDelivered:
		default:
			return ErrShipmentNotAssignable
		}
		if err := tx.UpdateShipment(ctx, txn.ID, input.AWB, input.Courier); err != nil {
			return err
		}
		return tx.InsertStatusLog(ctx, StatusLog{
			TransactionID: txn.ID,
			From:          txn.Status,
			To:            txn.Status,
			Note:          "shipment assigned",
			ActorID:       input.Actor.ID,
			Meta:          map[string]any{"awb": input.AWB, "courier": input.Courier},
			At:            s.now().UTC(),
		})
	})
	if err != nil {
		return err
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "shipment.assigned", map[string]any{
			"transaction_id": input.TransactionID,
			"awb":            input.AWB,
			"courier":        input.Courier,
		})
	}
	return nil
}

// Get loads a transaction with its lines.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseTransaction, error) {
	return s.repo.Get(ctx, id)
}

// StatusLogs lists the transition audit trail.
func (s *Service) StatusLogs(ctx context.Context, txID int64) ([]StatusLog, error) {
	return s.repo.ListStatusLogs(ctx, txID)
}

// ChangeStatusTx runs the single-transition algorithm on a caller-held
// transaction: resolve the hook from the table, apply the stock side effect,
// update the status and append the log entry. Checkout and returns reuse it
// so POS completion and the returned flip share one definition.
func ChangeStatusTx(ctx context.Context, tx TxStore, input ChangeInput, at time.Time) error {
	txn, err := tx.GetForUpdate(ctx, input.TransactionID)
	if err != nil {
		return err
	}
	hook, err := Plan(txn.Kind, txn.Status, input.To)
	if err != nil {
		return err
	}
	if movement, ok := hook.Movement(); ok {
		lines, err := tx.ListLines(ctx, txn.ID)
		if err != nil {
			return err
		}
		invLines := make([]inventory.Line, 0, len(lines))
		for _, line := range lines {
			invLines = append(invLines, inventory.Line{UnitID: line.UnitID, Qty: line.Qty})
		}
		if len(invLines) > 0 {
			ref := inventory.Ref{
				Module:  "sales",
				ID:      strconv.FormatInt(txn.ID, 10),
				Note:    fmt.Sprintf("%s -> %s", txn.Status, input.To),
				ActorID: input.Actor.ID,
			}
			if err := inventory.ApplyTx(ctx, tx.Inventory(), movement, invLines, ref); err != nil {
				return err
			}
		}
	}
	if err := tx.UpdateStatus(ctx, txn.ID, input.To); err != nil {
		return err
	}
	return tx.InsertStatusLog(ctx, StatusLog{
		TransactionID: txn.ID,
		From:          txn.Status,
		To:            input.To,
		Note:          input.Note,
		ActorID:       input.Actor.ID,
		Meta:          input.Meta,
		At:            at,
	})
}
