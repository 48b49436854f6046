package inventory

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Repository persists stock units and movements in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes transactional operations used by the service and by
// settlement flows that hold their own transaction.
type TxRepository interface {
	GetUnitForUpdate(ctx context.Context, unitID int64) (StockUnit, error)
	UpdateCounts(ctx context.Context, unitID, quantity, reserved int64) error
	InsertMovement(ctx context.Context, m Movement) (int64, error)
}

type txRepository struct {
	tx pgx.Tx
}

// NewTxRepository wraps an open pgx transaction. Used by returns and
// checkout so stock mutations commit atomically with their own rows.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.MapPgError(err)
	}
	if err := fn(ctx, &txRepository{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return shared.MapPgError(err)
	}
	return shared.MapPgError(tx.Commit(ctx))
}

// GetUnit reads a stock unit without locking.
func (r *Repository) GetUnit(ctx context.Context, unitID int64) (StockUnit, error) {
	var unit StockUnit
	err := r.pool.QueryRow(ctx, `SELECT id, product_id, variant_id, quantity, reserved, updated_at FROM stock_units WHERE id=$1`, unitID).
		Scan(&unit.ID, &unit.ProductID, &unit.VariantID, &unit.Quantity, &unit.Reserved, &unit.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockUnit{}, ErrUnitNotFound
		}
		return StockUnit{}, err
	}
	return unit, nil
}

// ListMovements returns ledger entries for a unit, oldest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, unit_id, movement_type, qty, ref_module, ref_id, note, actor_id, posted_at
FROM stock_movements
WHERE unit_id=$1 AND posted_at BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY posted_at ASC, id ASC
LIMIT $4`, filter.UnitID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		var mtype string
		if err := rows.Scan(&m.ID, &m.UnitID, &mtype, &m.Qty, &m.RefModule, &m.RefID, &m.Note, &m.ActorID, &m.PostedAt); err != nil {
			return nil, err
		}
		m.Type = MovementType(mtype)
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func (r *txRepository) GetUnitForUpdate(ctx context.Context, unitID int64) (StockUnit, error) {
	var unit StockUnit
	err := r.tx.QueryRow(ctx, `SELECT id, product_id, variant_id, quantity, reserved, updated_at FROM stock_units WHERE id=$1 FOR UPDATE`, unitID).
		Scan(&unit.ID, &unit.ProductID, &unit.VariantID, &unit.Quantity, &unit.Reserved, &unit.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StockUnit{}, ErrUnitNotFound
		}
		return StockUnit{}, err
	}
	return unit, nil
}

func (r *txRepository) UpdateCounts(ctx context.Context, unitID, quantity, reserved int64) error {
	tag, err := r.tx.Exec(ctx, `UPDATE stock_units SET quantity=$1, reserved=$2, updated_at=NOW() WHERE id=$3`, quantity, reserved, unitID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrUnitNotFound
	}
	return nil
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (unit_id, movement_type, qty, ref_module, ref_id, note, actor_id, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8) RETURNING id`, m.UnitID, string(m.Type), m.Qty, m.RefModule, nullString(m.RefID), m.Note, nullInt(m.ActorID), m.PostedAt).Scan(&id)
	return id, err
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
