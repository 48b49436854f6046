package checkout

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/creditnote"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/db"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// RepositoryPort is the storage surface checkout depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	ListPayments(ctx context.Context, transactionID int64) ([]PaymentRecord, error)
}

// TxRepository spans the stores one settlement touches, all on a single
// database transaction.
type TxRepository interface {
	Sales() sales.TxStore
	Credit() creditnote.TxLedger
	InsertPayment(ctx context.Context, rec PaymentRecord) (int64, error)
}

// Repository is the pgx-backed implementation.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error {
	err := db.WithTx(ctx, r.pool, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
	return shared.MapPgError(err)
}

func (r *Repository) ListPayments(ctx context.Context, transactionID int64) ([]PaymentRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, method, amount, at
		FROM payment_records WHERE transaction_id = $1 ORDER BY id ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list payments: %w", err)
	}
	defer rows.Close()
	var out []PaymentRecord
	for rows.Next() {
		var rec PaymentRecord
		var amount int64
		if err := rows.Scan(&rec.ID, &rec.TransactionID, &rec.Method, &amount, &rec.At); err != nil {
			return nil, fmt.Errorf("scan payment: %w", err)
		}
		rec.Amount = shared.Money(amount)
		out = append(out, rec)
	}
	return out, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Sales() sales.TxStore {
	return sales.NewTxStore(t.tx)
}

func (t *txRepo) Credit() creditnote.TxLedger {
	return creditnote.NewTxLedger(t.tx)
}

func (t *txRepo) InsertPayment(ctx context.Context, rec PaymentRecord) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO payment_records (transaction_id, method, amount, at)
		VALUES ($1,$2,$3,$4) RETURNING id`,
		rec.TransactionID, rec.Method, int64(rec.Amount), rec.At).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert payment: %w", err)
	}
	return id, nil
}
