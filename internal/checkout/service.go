package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/creditnote"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// CatalogPort resolves the current selling price of a stock unit.
type CatalogPort interface {
	UnitPrice(ctx context.Context, unitID int64) (shared.Money, error)
}

// IdempotencyPort guards against double submission of the same checkout.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// NotifierPort publishes settlement events without blocking the request.
type NotifierPort interface {
	Notify(ctx context.Context, event string, payload map[string]any)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ServiceConfig groups settlement policy settings.
type ServiceConfig struct {
	// AllowPartialCreditUse permits leaving a credit note partially
	// consumed; when false a store-credit tender must drain whole notes.
	AllowPartialCreditUse bool
}

// Service settles carts into purchase transactions.
type Service struct {
	repo        RepositoryPort
	catalog     CatalogPort
	idempotency IdempotencyPort
	audit       AuditPort
	notifier    NotifierPort
	cfg         ServiceConfig
	logger      *slog.Logger
	now         func() time.Time
}

func NewService(repo RepositoryPort, catalog CatalogPort, idempotency IdempotencyPort, audit AuditPort, notifier NotifierPort, cfg ServiceConfig, logger *slog.Logger, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:        repo,
		catalog:     catalog,
		idempotency: idempotency,
		audit:       audit,
		notifier:    notifier,
		cfg:         cfg,
		logger:      logger,
		now:         now,
	}
}

// Input describes one checkout. Tenders are applied in the order given.
type Input struct {
	Kind           sales.Kind
	CustomerID     *int64
	Lines          []CartLine
	Tenders        []Tender
	IdempotencyKey string
	Actor          shared.Actor
}

// Result is the settled transaction with its payment records.
type Result struct {
	Transaction sales.PurchaseTransaction
	Payments    []PaymentRecord
}

// Checkout prices the cart, creates the transaction and applies the tenders
// in one database transaction. A POS sale is completed immediately, which
// deducts stock; an online order starts pending and reserves stock later
// when fulfilment picks it up. Any failure, including a payment shortfall
// after store credit was drained, rolls everything back.
func (s *Service) Checkout(ctx context.Context, input Input) (Result, error) {
	if err := s.validate(input); err != nil {
		return Result{}, err
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "checkout"); err != nil {
			return Result{}, err
		}
	}

	result, err := s.settle(ctx, input)
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil {
			if derr := s.idempotency.Delete(ctx, input.IdempotencyKey, "checkout"); derr != nil {
				s.logger.Warn("release idempotency key", slog.Any("error", derr))
			}
		}
		return Result{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor.ID,
			Action:   "checkout:settle",
			Entity:   "purchase_transaction",
			EntityID: fmt.Sprintf("%d", result.Transaction.ID),
			Meta: map[string]any{
				"kind":  string(input.Kind),
				"total": result.Transaction.TotalAmount.String(),
			},
			At: s.now(),
		})
	}
	if s.notifier != nil {
		s.notifier.Notify(ctx, "checkout.settled", map[string]any{
			"transaction_id": result.Transaction.ID,
			"code":           result.Transaction.Code,
			"kind":           string(input.Kind),
			"total":          result.Transaction.TotalAmount.String(),
		})
	}
	return result, nil
}

func (s *Service) validate(input Input) error {
	if input.Kind != sales.KindOrder && input.Kind != sales.KindSale {
		return fmt.Errorf("checkout: unknown kind %q", input.Kind)
	}
	if len(input.Lines) == 0 {
		return ErrEmptyCart
	}
	for _, line := range input.Lines {
		if line.Qty <= 0 {
			return ErrInvalidQuantity
		}
	}
	if len(input.Tenders) == 0 {
		return ErrNoTenders
	}
	for _, tender := range input.Tenders {
		if !tender.Method.Valid() || tender.Amount <= 0 {
			return ErrInvalidTender
		}
		if tender.Method == TenderStoreCredit && input.CustomerID == nil {
			return ErrCustomerRequired
		}
	}
	return nil
}

func (s *Service) settle(ctx context.Context, input Input) (Result, error) {
	now := s.now()
	var result Result
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		store := tx.Sales()

		var total shared.Money
		items := make([]sales.LineItem, 0, len(input.Lines))
		for _, line := range input.Lines {
			price, err := s.catalog.UnitPrice(ctx, line.UnitID)
			if err != nil {
				return err
			}
			lineTotal := price.MulQty(line.Qty)
			items = append(items, sales.LineItem{
				UnitID:    line.UnitID,
				Qty:       line.Qty,
				UnitPrice: price,
				LineTotal: lineTotal,
			})
			total += lineTotal
		}

		txn := sales.PurchaseTransaction{
			Code:          generateCode(input.Kind),
			Kind:          input.Kind,
			Status:        sales.InitialStatus(input.Kind),
			PaymentStatus: sales.PaymentUnpaid,
			CustomerID:    input.CustomerID,
			TotalAmount:   total,
			CreatedBy:     input.Actor.ID,
		}
		txnID, err := store.InsertTransaction(ctx, txn)
		if err != nil {
			return err
		}
		txn.ID = txnID
		for i := range items {
			items[i].TransactionID = txnID
			lineID, err := store.InsertLine(ctx, items[i])
			if err != nil {
				return err
			}
			items[i].ID = lineID
		}
		txn.Lines = items

		var paid shared.Money
		var payments []PaymentRecord
		for _, tender := range input.Tenders {
			amount := tender.Amount
			if tender.Method == TenderStoreCredit {
				applied, err := creditnote.ConsumeTx(ctx, tx.Credit(), *input.CustomerID, tender.Amount, creditnote.Ref{
					Module:  "checkout",
					ID:      fmt.Sprintf("%d", txnID),
					ActorID: input.Actor.ID,
				}, s.cfg.AllowPartialCreditUse, now)
				if err != nil {
					return err
				}
				if applied == 0 {
					continue
				}
				amount = applied
			}
			rec := PaymentRecord{
				TransactionID: txnID,
				Method:        tender.Method,
				Amount:        amount,
				At:            now,
			}
			recID, err := tx.InsertPayment(ctx, rec)
			if err != nil {
				return err
			}
			rec.ID = recID
			payments = append(payments, rec)
			paid += amount
		}

		if paid < total {
			return ErrPaymentShortfall
		}
		if paid > total {
			return ErrOverpayment
		}
		if err := store.UpdatePayment(ctx, txnID, paid, sales.PaymentPaid); err != nil {
			return err
		}
		txn.PaidTotal = paid
		txn.PaymentStatus = sales.PaymentPaid

		if input.Kind == sales.KindSale {
			if err := sales.ChangeStatusTx(ctx, store, sales.ChangeInput{
				TransactionID: txnID,
				To:            sales.StatusCompleted,
				Note:          "settled at counter",
				Actor:         input.Actor,
			}, now); err != nil {
				return err
			}
			txn.Status = sales.StatusCompleted
		}

		result = Result{Transaction: txn, Payments: payments}
		return nil
	})
	return result, err
}

func generateCode(kind sales.Kind) string {
	prefix := "ORD"
	if kind == sales.KindSale {
		prefix = "SALE"
	}
	return fmt.Sprintf("%s-%s", prefix, strings.ToUpper(uuid.New().String()[:8]))
}
