package returns

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/refunds"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// NotifierPort publishes return events without blocking the request.
type NotifierPort interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

// ServiceConfig tunes the return processor.
type ServiceConfig struct {
	// RefundWindowDays bounds how long after the last transaction update a
	// return may still request money back. Zero disables the check.
	RefundWindowDays int
	// Thresholds is the refund approval policy applied to the store-credit
	// request a return creates.
	Thresholds refunds.Thresholds
}

// Service accepts goods back against completed transactions.
type Service struct {
	repo     RepositoryPort
	audit    AuditPort
	notifier NotifierPort
	cfg      ServiceConfig
	logger   *slog.Logger
	now      func() time.Time
}

func NewService(repo RepositoryPort, audit AuditPort, notifier NotifierPort, cfg ServiceConfig, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{repo: repo, audit: audit, notifier: notifier, cfg: cfg, logger: logger, now: now}
}

// ProcessInput describes a return request.
type ProcessInput struct {
	TransactionID int64
	Reason        string
	Lines         []RequestedLine
	Actor         shared.Actor
}

// Result is the outcome of a processed return.
type Result struct {
	Record            ReturnRecord
	RefundRequest     *refunds.RefundRequest
	TransactionStatus sales.Status
}

// Process accepts a return. Requested quantities are clamped to what is
// still returnable per line, the refund is valued at sale-time unit prices,
// stock is restocked and a store-credit refund request is raised. When the
// cumulative refunds cover the whole transaction its status flips to
// returned. All of it commits or rolls back as one transaction.
func (s *Service) Process(ctx context.Context, input ProcessInput) (Result, error) {
	if len(input.Lines) == 0 {
		return Result{}, ErrNothingToReturn
	}
	for _, line := range input.Lines {
		if line.Quantity <= 0 {
			return Result{}, ErrInvalidQuantity
		}
	}

	now := s.now()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		store := tx.Sales()
		txn, err := store.GetForUpdate(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		if !txn.Status.Returnable() {
			return ErrNotReturnable
		}
		if txn.CustomerID == nil {
			return ErrCustomerRequired
		}
		if s.cfg.RefundWindowDays > 0 {
			deadline := txn.UpdatedAt.AddDate(0, 0, s.cfg.RefundWindowDays)
			if now.After(deadline) {
				return ErrWindowClosed
			}
		}

		sold, err := store.ListLines(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		soldByID := make(map[int64]sales.LineItem, len(sold))
		for _, l := range sold {
			soldByID[l.ID] = l
		}
		returned, err := tx.ReturnedQuantities(ctx, input.TransactionID)
		if err != nil {
			return err
		}

		rec := ReturnRecord{
			ID:            uuid.New(),
			TransactionID: input.TransactionID,
			CustomerID:    *txn.CustomerID,
			Reason:        input.Reason,
			ActorID:       input.Actor.ID,
			CreatedAt:     now,
		}
		var restock []inventory.Line
		for _, req := range input.Lines {
			soldLine, ok := soldByID[req.LineItemID]
			if !ok {
				return ErrUnknownLineItem
			}
			remaining := soldLine.Qty - returned[req.LineItemID]
			qty := req.Quantity
			if qty > remaining {
				qty = remaining
			}
			if qty <= 0 {
				continue
			}
			amount := soldLine.UnitPrice.MulQty(qty)
			rec.Lines = append(rec.Lines, ReturnLineItem{
				ReturnID:   rec.ID,
				LineItemID: soldLine.ID,
				UnitID:     soldLine.UnitID,
				Quantity:   qty,
				UnitPrice:  soldLine.UnitPrice,
				Amount:     amount,
			})
			rec.RefundTotal += amount
			restock = append(restock, inventory.Line{UnitID: soldLine.UnitID, Qty: qty})
		}
		if len(rec.Lines) == 0 {
			return ErrNothingToReturn
		}

		if err := tx.InsertReturn(ctx, rec); err != nil {
			return err
		}
		for _, line := range rec.Lines {
			if err := tx.InsertReturnLine(ctx, line); err != nil {
				return err
			}
		}
		if err := inventory.ApplyTx(ctx, tx.Inventory(), inventory.MovementRestock, restock, inventory.Ref{
			Module:  "returns",
			ID:      rec.ID.String(),
			Note:    input.Reason,
			ActorID: input.Actor.ID,
		}); err != nil {
			return err
		}

		refundTx := tx.Refunds()
		if rec.RefundTotal > 0 {
			req, err := refunds.CreateTx(ctx, refundTx, refunds.CreateInput{
				TransactionID: input.TransactionID,
				ReturnID:      &rec.ID,
				Amount:        rec.RefundTotal,
				Method:        refunds.MethodStoreCredit,
				Reason:        input.Reason,
				Actor:         input.Actor,
			}, s.cfg.Thresholds, now)
			if err != nil {
				return err
			}
			result.RefundRequest = &req
		}

		settled, err := refundTx.SumActive(ctx, input.TransactionID)
		if err != nil {
			return err
		}
		result.TransactionStatus = txn.Status
		if settled >= txn.TotalAmount {
			if err := sales.ChangeStatusTx(ctx, store, sales.ChangeInput{
				TransactionID: input.TransactionID,
				To:            sales.StatusReturned,
				Note:          "all goods returned",
				Actor:         input.Actor,
			}, now); err != nil {
				return err
			}
			result.TransactionStatus = sales.StatusReturned
		}

		result.Record = rec
		return nil
	})
	if err != nil {
		return Result{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor.ID,
			Action:   "returns:process",
			Entity:   "return_record",
			EntityID: result.Record.ID.String(),
			Meta: map[string]any{
				"transaction_id": input.TransactionID,
				"refund_total":   result.Record.RefundTotal.String(),
			},
			At: now,
		})
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "return.processed", map[string]any{
			"return_id":      result.Record.ID.String(),
			"transaction_id": input.TransactionID,
			"refund_total":   result.Record.RefundTotal.String(),
		})
	}
	return result, nil
}

// Get loads one return record with its lines.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (ReturnRecord, error) {
	return s.repo.Get(ctx, id)
}

// ListByTransaction returns the return history of a transaction.
func (s *Service) ListByTransaction(ctx context.Context, transactionID int64) ([]ReturnRecord, error) {
	return s.repo.ListByTransaction(ctx, transactionID)
}
