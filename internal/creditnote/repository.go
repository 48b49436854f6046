package creditnote

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Repository persists credit notes in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxLedger exposes transactional ledger operations. Checkout settlement
// consumes credit through this on its own transaction.
type TxLedger interface {
	InsertNote(ctx context.Context, note CreditNote) error
	// ListActiveForUpdate locks the customer's active notes in creation
	// order, which both fixes FIFO consumption and gives concurrent
	// redemptions a stable lock order.
	ListActiveForUpdate(ctx context.Context, customerID int64) ([]CreditNote, error)
	UpdateNote(ctx context.Context, id uuid.UUID, remaining shared.Money, status Status) error
	InsertConsumption(ctx context.Context, c Consumption) error
	ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type txLedger struct {
	tx pgx.Tx
}

// NewTxLedger wraps an open pgx transaction.
func NewTxLedger(tx pgx.Tx) TxLedger {
	return &txLedger{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	if r == nil {
		return errors.New("creditnote repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.MapPgError(err)
	}
	if err := fn(ctx, &txLedger{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return shared.MapPgError(err)
	}
	return shared.MapPgError(tx.Commit(ctx))
}

// ListByCustomer returns every note for a customer, oldest first.
func (r *Repository) ListByCustomer(ctx context.Context, customerID int64) ([]CreditNote, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, customer_id, amount, remaining, status, reference, created_at, expires_at
FROM credit_notes WHERE customer_id=$1 ORDER BY created_at ASC, id ASC`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (r *txLedger) InsertNote(ctx context.Context, note CreditNote) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO credit_notes (id, customer_id, amount, remaining, status, reference, created_at, expires_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		note.ID, note.CustomerID, int64(note.Amount), int64(note.Remaining), string(note.Status), note.Reference, note.CreatedAt, note.ExpiresAt)
	return err
}

func (r *txLedger) ListActiveForUpdate(ctx context.Context, customerID int64) ([]CreditNote, error) {
	rows, err := r.tx.Query(ctx, `SELECT id, customer_id, amount, remaining, status, reference, created_at, expires_at
FROM credit_notes
WHERE customer_id=$1 AND status='ACTIVE' AND remaining > 0
ORDER BY created_at ASC, id ASC
FOR UPDATE`, customerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanNotes(rows)
}

func (r *txLedger) UpdateNote(ctx context.Context, id uuid.UUID, remaining shared.Money, status Status) error {
	tag, err := r.tx.Exec(ctx, `UPDATE credit_notes SET remaining=$1, status=$2 WHERE id=$3`, int64(remaining), string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *txLedger) InsertConsumption(ctx context.Context, c Consumption) error {
	_, err := r.tx.Exec(ctx, `INSERT INTO credit_note_consumptions (note_id, amount, ref_module, ref_id, at)
VALUES ($1,$2,$3,$4,$5)`, c.NoteID, int64(c.Amount), c.RefModule, c.RefID, c.At)
	return err
}

func (r *txLedger) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE credit_notes SET status='EXPIRED' WHERE status='ACTIVE' AND expires_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func scanNotes(rows pgx.Rows) ([]CreditNote, error) {
	var notes []CreditNote
	for rows.Next() {
		var n CreditNote
		var amount, remaining int64
		var status string
		if err := rows.Scan(&n.ID, &n.CustomerID, &amount, &remaining, &status, &n.Reference, &n.CreatedAt, &n.ExpiresAt); err != nil {
			return nil, err
		}
		n.Amount = shared.Money(amount)
		n.Remaining = shared.Money(remaining)
		n.Status = Status(status)
		notes = append(notes, n)
	}
	return notes, rows.Err()
}
