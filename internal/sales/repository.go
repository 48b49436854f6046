package sales

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Repository persists purchase transactions in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxStore exposes transactional operations on a purchase transaction.
// Returns and checkout obtain one over their own transaction via NewTxStore
// so status, stock and money commit or roll back together.
type TxStore interface {
	GetForUpdate(ctx context.Context, id int64) (PurchaseTransaction, error)
	ListLines(ctx context.Context, txID int64) ([]LineItem, error)
	UpdateStatus(ctx context.Context, id int64, status Status) error
	UpdateShipment(ctx context.Context, id int64, awb, courier string) error
	UpdatePayment(ctx context.Context, id int64, paid shared.Money, status PaymentStatus) error
	InsertStatusLog(ctx context.Context, log StatusLog) error
	InsertTransaction(ctx context.Context, tx PurchaseTransaction) (int64, error)
	InsertLine(ctx context.Context, line LineItem) (int64, error)
	Inventory() inventory.TxRepository
}

type txStore struct {
	tx pgx.Tx
}

// NewTxStore wraps an open pgx transaction.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return shared.MapPgError(err)
	}
	if err := fn(ctx, &txStore{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return shared.MapPgError(err)
	}
	return shared.MapPgError(tx.Commit(ctx))
}

// Get loads a transaction with its lines, without locking.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseTransaction, error) {
	row := r.pool.QueryRow(ctx, selectTransaction+` WHERE id=$1`, id)
	txn, err := scanTransaction(row)
	if err != nil {
		return PurchaseTransaction{}, err
	}
	lines, err := listLines(ctx, r.pool, id)
	if err != nil {
		return PurchaseTransaction{}, err
	}
	txn.Lines = lines
	return txn, nil
}

// ListStatusLogs returns the transition audit trail, oldest first.
func (r *Repository) ListStatusLogs(ctx context.Context, txID int64) ([]StatusLog, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, transaction_id, status_from, status_to, note, actor_id, meta, at
FROM status_logs WHERE transaction_id=$1 ORDER BY at ASC, id ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var logs []StatusLog
	for rows.Next() {
		var l StatusLog
		var from, to string
		var meta []byte
		if err := rows.Scan(&l.ID, &l.TransactionID, &from, &to, &l.Note, &l.ActorID, &meta, &l.At); err != nil {
			return nil, err
		}
		l.From = Status(from)
		l.To = Status(to)
		if len(meta) > 0 {
			_ = json.Unmarshal(meta, &l.Meta)
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}

const selectTransaction = `SELECT id, code, kind, status, payment_status, customer_id, total_amount, paid_total, awb, courier, created_by, created_at, updated_at
FROM purchase_transactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (PurchaseTransaction, error) {
	var txn PurchaseTransaction
	var kind, status, payStatus string
	var total, paid int64
	err := row.Scan(&txn.ID, &txn.Code, &kind, &status, &payStatus, &txn.CustomerID, &total, &paid, &txn.AWB, &txn.Courier, &txn.CreatedBy, &txn.CreatedAt, &txn.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PurchaseTransaction{}, ErrTransactionNotFound
		}
		return PurchaseTransaction{}, err
	}
	txn.Kind = Kind(kind)
	txn.Status = Status(status)
	txn.PaymentStatus = PaymentStatus(payStatus)
	txn.TotalAmount = shared.Money(total)
	txn.PaidTotal = shared.Money(paid)
	return txn, nil
}

type queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func listLines(ctx context.Context, q queryer, txID int64) ([]LineItem, error) {
	rows, err := q.Query(ctx, `SELECT id, transaction_id, unit_id, qty, unit_price, line_total
FROM line_items WHERE transaction_id=$1 ORDER BY id ASC`, txID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var lines []LineItem
	for rows.Next() {
		var l LineItem
		var price, total int64
		if err := rows.Scan(&l.ID, &l.TransactionID, &l.UnitID, &l.Qty, &price, &total); err != nil {
			return nil, err
		}
		l.UnitPrice = shared.Money(price)
		l.LineTotal = shared.Money(total)
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

func (s *txStore) GetForUpdate(ctx context.Context, id int64) (PurchaseTransaction, error) {
	row := s.tx.QueryRow(ctx, selectTransaction+` WHERE id=$1 FOR UPDATE`, id)
	return scanTransaction(row)
}

func (s *txStore) ListLines(ctx context.Context, txID int64) ([]LineItem, error) {
	return listLines(ctx, s.tx, txID)
}

func (s *txStore) UpdateStatus(ctx context.Context, id int64, status Status) error {
	tag, err := s.tx.Exec(ctx, `UPDATE purchase_transactions SET status=$1, updated_at=NOW() WHERE id=$2`, string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *txStore) UpdateShipment(ctx context.Context, id int64, awb, courier string) error {
	tag, err := s.tx.Exec(ctx, `UPDATE purchase_transactions SET awb=$1, courier=$2, updated_at=NOW() WHERE id=$3`, awb, courier, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *txStore) UpdatePayment(ctx context.Context, id int64, paid shared.Money, status PaymentStatus) error {
	tag, err := s.tx.Exec(ctx, `UPDATE purchase_transactions SET paid_total=$1, payment_status=$2, updated_at=NOW() WHERE id=$3`, int64(paid), string(status), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

func (s *txStore) InsertStatusLog(ctx context.Context, log StatusLog) error {
	meta, err := json.Marshal(log.Meta)
	if err != nil {
		return err
	}
	at := log.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	_, err = s.tx.Exec(ctx, `INSERT INTO status_logs (transaction_id, status_from, status_to, note, actor_id, meta, at)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, log.TransactionID, string(log.From), string(log.To), log.Note, log.ActorID, meta, at)
	return err
}

func (s *txStore) InsertTransaction(ctx context.Context, txn PurchaseTransaction) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO purchase_transactions (code, kind, status, payment_status, customer_id, total_amount, paid_total, created_by, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW(),NOW()) RETURNING id`,
		txn.Code, string(txn.Kind), string(txn.Status), string(txn.PaymentStatus), txn.CustomerID, int64(txn.TotalAmount), int64(txn.PaidTotal), txn.CreatedBy).Scan(&id)
	return id, err
}

func (s *txStore) InsertLine(ctx context.Context, line LineItem) (int64, error) {
	var id int64
	err := s.tx.QueryRow(ctx, `INSERT INTO line_items (transaction_id, unit_id, qty, unit_price, line_total)
VALUES ($1,$2,$3,$4,$5) RETURNING id`, line.TransactionID, line.UnitID, line.Qty, int64(line.UnitPrice), int64(line.LineTotal)).Scan(&id)
	return id, err
}

func (s *txStore) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(s.tx)
}
