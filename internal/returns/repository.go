package returns

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/platform/db"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/refunds"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// RepositoryPort is the storage surface the return processor depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (ReturnRecord, error)
	ListByTransaction(ctx context.Context, transactionID int64) ([]ReturnRecord, error)
}

// TxRepository spans all the stores a return touches. Everything it exposes
// runs on one database transaction so a failure anywhere rolls back the
// record, the restock, the refund request and the status flip together.
type TxRepository interface {
	Sales() sales.TxStore
	Inventory() inventory.TxRepository
	Refunds() refunds.TxRepository
	InsertReturn(ctx context.Context, rec ReturnRecord) error
	InsertReturnLine(ctx context.Context, line ReturnLineItem) error
	// ReturnedQuantities sums accepted return quantities per line item for
	// the transaction, across all prior return records.
	ReturnedQuantities(ctx context.Context, transactionID int64) (map[int64]int64, error)
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

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (ReturnRecord, error) {
	row := r.pool.QueryRow(ctx, `SELECT id, transaction_id, customer_id, refund_total, reason, actor_id, created_at
		FROM return_records WHERE id = $1`, id)
	rec, err := scanReturn(row)
	if err == pgx.ErrNoRows {
		return ReturnRecord{}, ErrReturnNotFound
	}
	if err != nil {
		return ReturnRecord{}, err
	}
	rec.Lines, err = r.listLines(ctx, rec.ID)
	return rec, err
}

func (r *Repository) ListByTransaction(ctx context.Context, transactionID int64) ([]ReturnRecord, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, customer_id, refund_total, reason, actor_id, created_at
		FROM return_records WHERE transaction_id = $1 ORDER BY created_at ASC`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("list returns: %w", err)
	}
	defer rows.Close()
	var out []ReturnRecord
	for rows.Next() {
		rec, err := scanReturn(rows)
		if err != nil {
			return nil, fmt.Errorf("scan return: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		out[i].Lines, err = r.listLines(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) listLines(ctx context.Context, returnID uuid.UUID) ([]ReturnLineItem, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, return_id, line_item_id, unit_id, quantity, unit_price, amount
		FROM return_line_items WHERE return_id = $1 ORDER BY id ASC`, returnID)
	if err != nil {
		return nil, fmt.Errorf("list return lines: %w", err)
	}
	defer rows.Close()
	var lines []ReturnLineItem
	for rows.Next() {
		var l ReturnLineItem
		var price, amount int64
		if err := rows.Scan(&l.ID, &l.ReturnID, &l.LineItemID, &l.UnitID, &l.Quantity, &price, &amount); err != nil {
			return nil, fmt.Errorf("scan return line: %w", err)
		}
		l.UnitPrice = shared.Money(price)
		l.Amount = shared.Money(amount)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

type txRepo struct {
	tx pgx.Tx
}

func (t *txRepo) Sales() sales.TxStore {
	return sales.NewTxStore(t.tx)
}

func (t *txRepo) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func (t *txRepo) Refunds() refunds.TxRepository {
	return refunds.NewTxRepository(t.tx)
}

func (t *txRepo) InsertReturn(ctx context.Context, rec ReturnRecord) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO return_records
		(id, transaction_id, customer_id, refund_total, reason, actor_id, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		rec.ID, rec.TransactionID, rec.CustomerID, int64(rec.RefundTotal), rec.Reason, rec.ActorID, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert return record: %w", err)
	}
	return nil
}

func (t *txRepo) InsertReturnLine(ctx context.Context, line ReturnLineItem) error {
	_, err := t.tx.Exec(ctx, `INSERT INTO return_line_items
		(return_id, line_item_id, unit_id, quantity, unit_price, amount)
		VALUES ($1,$2,$3,$4,$5,$6)`,
		line.ReturnID, line.LineItemID, line.UnitID, line.Quantity, int64(line.UnitPrice), int64(line.Amount))
	if err != nil {
		return fmt.Errorf("insert return line: %w", err)
	}
	return nil
}

func (t *txRepo) ReturnedQuantities(ctx context.Context, transactionID int64) (map[int64]int64, error) {
	rows, err := t.tx.Query(ctx, `SELECT l.line_item_id, COALESCE(SUM(l.quantity), 0)
		FROM return_line_items l
		JOIN return_records r ON r.id = l.return_id
		WHERE r.transaction_id = $1
		GROUP BY l.line_item_id`, transactionID)
	if err != nil {
		return nil, fmt.Errorf("sum returned quantities: %w", err)
	}
	defer rows.Close()
	out := make(map[int64]int64)
	for rows.Next() {
		var lineID, qty int64
		if err := rows.Scan(&lineID, &qty); err != nil {
			return nil, err
		}
		out[lineID] = qty
	}
	return out, rows.Err()
}

func scanReturn(row pgx.Row) (ReturnRecord, error) {
	var rec ReturnRecord
	var total int64
	err := row.Scan(&rec.ID, &rec.TransactionID, &rec.CustomerID, &total, &rec.Reason, &rec.ActorID, &rec.CreatedAt)
	if err != nil {
		return ReturnRecord{}, err
	}
	rec.RefundTotal = shared.Money(total)
	return rec, nil
}
