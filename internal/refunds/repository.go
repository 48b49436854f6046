package refunds

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/db"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// RepositoryPort is the storage surface the workflow engine depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (RefundRequest, error)
	ListByTransaction(ctx context.Context, transactionID int64) ([]RefundRequest, error)
	ListOverdue(ctx context.Context, level ApprovalLevel, before time.Time) ([]RefundRequest, error)
	ListStuckProcessing(ctx context.Context, before time.Time) ([]RefundRequest, error)
}

// TxRepository is the transaction-scoped storage surface.
type TxRepository interface {
	Insert(ctx context.Context, req RefundRequest) error
	GetForUpdate(ctx context.Context, id uuid.UUID) (RefundRequest, error)
	Update(ctx context.Context, req RefundRequest) error
	// TransactionSummaryForUpdate locks the source transaction row and
	// returns its customer and grand total.
	TransactionSummaryForUpdate(ctx context.Context, transactionID int64) (customerID *int64, total shared.Money, err error)
	// SumActive sums refund amounts for a transaction excluding rejected
	// and cancelled requests.
	SumActive(ctx context.Context, transactionID int64) (shared.Money, error)
}

// Repository is the pgx-backed implementation.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// NewTxRepository wraps an in-flight transaction so other packages can
// create refund requests atomically with their own writes.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepo{tx: tx}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return shared.MapPgError(err)
}

const refundColumns = `id, transaction_id, return_id, customer_id, amount, method, reason, status,
	required_level, notes, credit_note_id, provider_ref,
	requested_at, approved_at, processed_at, completed_at, rejected_at`

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (RefundRequest, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1`, id)
	req, err := scanRefund(row)
	if err == pgx.ErrNoRows {
		return RefundRequest{}, ErrRequestNotFound
	}
	return req, err
}

func (r *Repository) ListByTransaction(ctx context.Context, transactionID int64) ([]RefundRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+refundColumns+`
		FROM refund_requests WHERE transaction_id = $1 ORDER BY requested_at ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list refunds: %w", err)
	}
	defer rows.Close()
	return collectRefunds(rows)
}

func (r *Repository) ListOverdue(ctx context.Context, level ApprovalLevel, before time.Time) ([]RefundRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+refundColumns+`
		FROM refund_requests
		WHERE status = $1 AND required_level = $2 AND requested_at < $3
		ORDER BY requested_at ASC`, StatusPending, level, before)
	if err != nil {
		return nil, fmt.Errorf("list overdue refunds: %w", err)
	}
	defer rows.Close()
	return collectRefunds(rows)
}

// ListStuckProcessing returns requests that entered PROCESSING before the
// cutoff and never received a completion callback.
func (r *Repository) ListStuckProcessing(ctx context.Context, before time.Time) ([]RefundRequest, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+refundColumns+`
		FROM refund_requests
		WHERE status = $1 AND processed_at < $2
		ORDER BY processed_at ASC`, StatusProcessing, before)
	if err != nil {
		return nil, fmt.Errorf("list stuck refunds: %w", err)
	}
	defer rows.Close()
	return collectRefunds(rows)
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Insert(ctx context.Context, req RefundRequest) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO refund_requests
		(id, transaction_id, return_id, customer_id, amount, method, reason, status,
		 required_level, notes, credit_note_id, provider_ref, requested_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		req.ID, req.TransactionID, req.ReturnID, req.CustomerID, int64(req.Amount),
		req.Method, req.Reason, req.Status, req.RequiredLevel, req.Notes,
		req.CreditNoteID, req.ProviderRef, req.RequestedAt)
	if err != nil {
		return fmt.Errorf("insert refund request: %w", err)
	}
	return nil
}

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (RefundRequest, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+refundColumns+` FROM refund_requests WHERE id = $1 FOR UPDATE`, id)
	req, err := scanRefund(row)
	if err == pgx.ErrNoRows {
		return RefundRequest{}, ErrRequestNotFound
	}
	return req, err
}

func (t *txRepo) Update(ctx context.Context, req RefundRequest) error {
	tag, err := t.tx.Exec(ctx, `UPDATE refund_requests SET
		status = $2, notes = $3, credit_note_id = $4, provider_ref = $5,
		approved_at = $6, processed_at = $7, completed_at = $8, rejected_at = $9
		WHERE id = $1`,
		req.ID, req.Status, req.Notes, req.CreditNoteID, req.ProviderRef,
		req.ApprovedAt, req.ProcessedAt, req.CompletedAt, req.RejectedAt)
	if err != nil {
		return fmt.Errorf("update refund request: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRequestNotFound
	}
	return nil
}

func (t *txRepo) TransactionSummaryForUpdate(ctx context.Context, transactionID int64) (*int64, shared.Money, error) {
	var customerID *int64
	var total int64
	err := t.tx.QueryRow(ctx, `SELECT customer_id, total_amount
		FROM purchase_transactions WHERE id = $1 FOR UPDATE`, transactionID).
		Scan(&customerID, &total)
	if err == pgx.ErrNoRows {
		return nil, 0, shared.ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("lock transaction: %w", err)
	}
	return customerID, shared.Money(total), nil
}

func (t *txRepo) SumActive(ctx context.Context, transactionID int64) (shared.Money, error) {
	var sum int64
	err := t.tx.QueryRow(ctx, `SELECT COALESCE(SUM(amount), 0) FROM refund_requests
		WHERE transaction_id = $1 AND status NOT IN ($2, $3)`,
		transactionID, StatusRejected, StatusCancelled).Scan(&sum)
	if err != nil {
		return 0, fmt.Errorf("sum refunds: %w", err)
	}
	return shared.Money(sum), nil
}

func scanRefund(row pgx.Row) (RefundRequest, error) {
	var req RefundRequest
	var amount int64
	err := row.Scan(&req.ID, &req.TransactionID, &req.ReturnID, &req.CustomerID, &amount,
		&req.Method, &req.Reason, &req.Status, &req.RequiredLevel, &req.Notes,
		&req.CreditNoteID, &req.ProviderRef,
		&req.RequestedAt, &req.ApprovedAt, &req.ProcessedAt, &req.CompletedAt, &req.RejectedAt)
	if err != nil {
		return RefundRequest{}, err
	}
	req.Amount = shared.Money(amount)
	return req, nil
}

func collectRefunds(rows pgx.Rows) ([]RefundRequest, error) {
	var out []RefundRequest
	for rows.Next() {
		req, err := scanRefund(rows)
		if err != nil {
			return nil, fmt.Errorf("scan refund request: %w", err)
		}
		out = append(out, req)
	}
	return out, rows.Err()
}
