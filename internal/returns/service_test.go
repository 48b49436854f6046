package returns

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/refunds"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/sales"
	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// world is an in-memory stand-in for the database. Sub-fakes share its
// state so a single snapshot covers everything a return touches.
type world struct {
	mu           *sync.Mutex
	transactions map[int64]sales.PurchaseTransaction
	lines        map[int64][]sales.LineItem
	statusLogs   []sales.StatusLog
	units        map[int64]inventory.StockUnit
	movements    []inventory.Movement
	refundReqs   map[uuid.UUID]refunds.RefundRequest
	returns      map[uuid.UUID]ReturnRecord
	returnLines  []ReturnLineItem
}

func newWorld() *world {
	return &world{
		mu:           &sync.Mutex{},
		transactions: make(map[int64]sales.PurchaseTransaction),
		lines:        make(map[int64][]sales.LineItem),
		units:        make(map[int64]inventory.StockUnit),
		refundReqs:   make(map[uuid.UUID]refunds.RefundRequest),
		returns:      make(map[uuid.UUID]ReturnRecord),
	}
}

func (w *world) snapshot() *world {
	c := newWorld()
	c.mu = w.mu
	for k, v := range w.transactions {
		c.transactions[k] = v
	}
	for k, v := range w.lines {
		c.lines[k] = append([]sales.LineItem(nil), v...)
	}
	c.statusLogs = append([]sales.StatusLog(nil), w.statusLogs...)
	for k, v := range w.units {
		c.units[k] = v
	}
	c.movements = append([]inventory.Movement(nil), w.movements...)
	for k, v := range w.refundReqs {
		c.refundReqs[k] = v
	}
	for k, v := range w.returns {
		c.returns[k] = v
	}
	c.returnLines = append([]ReturnLineItem(nil), w.returnLines...)
	return c
}

func (w *world) restore(s *world) {
	*w = *s
}

func (w *world) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	// Serialize like the database does with its row locks.
	w.mu.Lock()
	defer w.mu.Unlock()
	saved := w.snapshot()
	if err := fn(ctx, w); err != nil {
		w.restore(saved)
		return err
	}
	return nil
}

func (w *world) Get(ctx context.Context, id uuid.UUID) (ReturnRecord, error) {
	rec, ok := w.returns[id]
	if !ok {
		return ReturnRecord{}, ErrReturnNotFound
	}
	return rec, nil
}

func (w *world) ListByTransaction(ctx context.Context, transactionID int64) ([]ReturnRecord, error) {
	var out []ReturnRecord
	for _, rec := range w.returns {
		if rec.TransactionID == transactionID {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (w *world) Sales() sales.TxStore              { return &salesFake{w} }
func (w *world) Inventory() inventory.TxRepository { return &invFake{w} }
func (w *world) Refunds() refunds.TxRepository     { return &refundsFake{w} }

func (w *world) InsertReturn(ctx context.Context, rec ReturnRecord) error {
	w.returns[rec.ID] = rec
	return nil
}

func (w *world) InsertReturnLine(ctx context.Context, line ReturnLineItem) error {
	w.returnLines = append(w.returnLines, line)
	return nil
}

func (w *world) ReturnedQuantities(ctx context.Context, transactionID int64) (map[int64]int64, error) {
	out := make(map[int64]int64)
	for _, line := range w.returnLines {
		rec, ok := w.returns[line.ReturnID]
		if ok && rec.TransactionID == transactionID {
			out[line.LineItemID] += line.Quantity
		}
	}
	return out, nil
}

type salesFake struct{ w *world }

func (f *salesFake) GetForUpdate(ctx context.Context, id int64) (sales.PurchaseTransaction, error) {
	txn, ok := f.w.transactions[id]
	if !ok {
		return sales.PurchaseTransaction{}, sales.ErrTransactionNotFound
	}
	return txn, nil
}

func (f *salesFake) ListLines(ctx context.Context, txID int64) ([]sales.LineItem, error) {
	return f.w.lines[txID], nil
}

func (f *salesFake) UpdateStatus(ctx context.Context, id int64, status sales.Status) error {
	txn, ok := f.w.transactions[id]
	if !ok {
		return sales.ErrTransactionNotFound
	}
	txn.Status = status
	f.w.transactions[id] = txn
	return nil
}

func (f *salesFake) UpdateShipment(ctx context.Context, id int64, awb, courier string) error {
	return nil
}

func (f *salesFake) UpdatePayment(ctx context.Context, id int64, paid shared.Money, status sales.PaymentStatus) error {
	txn, ok := f.w.transactions[id]
	if !ok {
		return sales.ErrTransactionNotFound
	}
	txn.PaidTotal = paid
	txn.PaymentStatus = status
	f.w.transactions[id] = txn
	return nil
}

func (f *salesFake) InsertStatusLog(ctx context.Context, log sales.StatusLog) error {
	f.w.statusLogs = append(f.w.statusLogs, log)
	return nil
}

func (f *salesFake) InsertTransaction(ctx context.Context, txn sales.PurchaseTransaction) (int64, error) {
	id := int64(len(f.w.transactions) + 1)
	txn.ID = id
	f.w.transactions[id] = txn
	return id, nil
}

func (f *salesFake) InsertLine(ctx context.Context, line sales.LineItem) (int64, error) {
	id := int64(len(f.w.lines[line.TransactionID]) + 1)
	line.ID = id
	f.w.lines[line.TransactionID] = append(f.w.lines[line.TransactionID], line)
	return id, nil
}

func (f *salesFake) Inventory() inventory.TxRepository { return &invFake{f.w} }

type invFake struct{ w *world }

func (f *invFake) GetUnitForUpdate(ctx context.Context, unitID int64) (inventory.StockUnit, error) {
	unit, ok := f.w.units[unitID]
	if !ok {
		return inventory.StockUnit{}, inventory.ErrUnitNotFound
	}
	return unit, nil
}

func (f *invFake) UpdateCounts(ctx context.Context, unitID, quantity, reserved int64) error {
	unit, ok := f.w.units[unitID]
	if !ok {
		return inventory.ErrUnitNotFound
	}
	unit.Quantity = quantity
	unit.Reserved = reserved
	f.w.units[unitID] = unit
	return nil
}

func (f *invFake) InsertMovement(ctx context.Context, m inventory.Movement) (int64, error) {
	f.w.movements = append(f.w.movements, m)
	return int64(len(f.w.movements)), nil
}

type refundsFake struct{ w *world }

func (f *refundsFake) Insert(ctx context.Context, req refunds.RefundRequest) error {
	f.w.refundReqs[req.ID] = req
	return nil
}

func (f *refundsFake) GetForUpdate(ctx context.Context, id uuid.UUID) (refunds.RefundRequest, error) {
	req, ok := f.w.refundReqs[id]
	if !ok {
		return refunds.RefundRequest{}, refunds.ErrRequestNotFound
	}
	return req, nil
}

func (f *refundsFake) Update(ctx context.Context, req refunds.RefundRequest) error {
	f.w.refundReqs[req.ID] = req
	return nil
}

func (f *refundsFake) TransactionSummaryForUpdate(ctx context.Context, transactionID int64) (*int64, shared.Money, error) {
	txn, ok := f.w.transactions[transactionID]
	if !ok {
		return nil, 0, shared.ErrNotFound
	}
	return txn.CustomerID, txn.TotalAmount, nil
}

func (f *refundsFake) SumActive(ctx context.Context, transactionID int64) (shared.Money, error) {
	var sum shared.Money
	for _, req := range f.w.refundReqs {
		if req.TransactionID == transactionID && req.Status != refunds.StatusRejected && req.Status != refunds.StatusCancelled {
			sum += req.Amount
		}
	}
	return sum, nil
}

var testNow = time.Date(2026, 5, 10, 11, 0, 0, 0, time.UTC)

func newTestService(w *world, cfg ServiceConfig) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(w, nil, nil, cfg, logger, func() time.Time { return testNow })
}

// seedSale sets up a completed POS sale of qty x unitPrice against stock
// unit 1, with the stock already deducted.
func seedSale(w *world, customerID int64, qty int64, unitPrice shared.Money, stockLeft int64) {
	cid := customerID
	total := unitPrice.MulQty(qty)
	w.transactions[1] = sales.PurchaseTransaction{
		ID:          1,
		Code:        "SALE-1",
		Kind:        sales.KindSale,
		Status:      sales.StatusCompleted,
		CustomerID:  &cid,
		TotalAmount: total,
		PaidTotal:   total,
		UpdatedAt:   testNow.Add(-24 * time.Hour),
	}
	w.lines[1] = []sales.LineItem{{
		ID:            10,
		TransactionID: 1,
		UnitID:        1,
		Qty:           qty,
		UnitPrice:     unitPrice,
		LineTotal:     total,
	}}
	w.units[1] = inventory.StockUnit{ID: 1, ProductID: 100, Quantity: stockLeft}
}

func TestProcessPartialReturnRestocksAndRaisesRefund(t *testing.T) {
	// Sale of 2 x 50.00; one unit comes back. Stock goes 8 -> 9, a
	// store-credit refund request for 50.00 is raised, and the sale keeps
	// its status because only half the money is claimed.
	w := newWorld()
	seedSale(w, 42, 2, shared.MustParseMoney("50.00"), 8)
	svc := newTestService(w, ServiceConfig{})

	result, err := svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Reason:        "wrong size",
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 1}},
		Actor:         shared.Actor{ID: 7},
	})
	require.NoError(t, err)
	require.Equal(t, shared.MustParseMoney("50.00"), result.Record.RefundTotal)
	require.EqualValues(t, 9, w.units[1].Quantity)
	require.Equal(t, sales.StatusCompleted, result.TransactionStatus)

	require.NotNil(t, result.RefundRequest)
	require.Equal(t, refunds.MethodStoreCredit, result.RefundRequest.Method)
	require.Equal(t, shared.MustParseMoney("50.00"), result.RefundRequest.Amount)
	require.Equal(t, result.Record.ID, *result.RefundRequest.ReturnID)

	require.Len(t, w.movements, 1)
	require.Equal(t, inventory.MovementRestock, w.movements[0].Type)
}

func TestProcessFullReturnFlipsTransaction(t *testing.T) {
	w := newWorld()
	seedSale(w, 42, 2, shared.MustParseMoney("50.00"), 8)
	svc := newTestService(w, ServiceConfig{})

	_, err := svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 1}},
		Actor:         shared.Actor{ID: 7},
	})
	require.NoError(t, err)

	result, err := svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 1}},
		Actor:         shared.Actor{ID: 7},
	})
	require.NoError(t, err)
	require.Equal(t, sales.StatusReturned, result.TransactionStatus)
	require.Equal(t, sales.StatusReturned, w.transactions[1].Status)
	require.EqualValues(t, 10, w.units[1].Quantity)

	// The flip leaves a status log behind.
	last := w.statusLogs[len(w.statusLogs)-1]
	require.Equal(t, sales.StatusCompleted, last.From)
	require.Equal(t, sales.StatusReturned, last.To)
}

func TestProcessClampsToRemainingReturnable(t *testing.T) {
	w := newWorld()
	seedSale(w, 42, 2, shared.MustParseMoney("50.00"), 8)
	svc := newTestService(w, ServiceConfig{})

	// Asking for 5 of a 2-unit line returns only 2.
	result, err := svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 5}},
		Actor:         shared.Actor{ID: 7},
	})
	require.NoError(t, err)
	require.EqualValues(t, 2, result.Record.Lines[0].Quantity)
	require.Equal(t, shared.MustParseMoney("100.00"), result.Record.RefundTotal)
	require.EqualValues(t, 10, w.units[1].Quantity)

	// Everything is back; a second attempt has nothing left.
	_, err = svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 1}},
		Actor:         shared.Actor{ID: 7},
	})
	require.ErrorIs(t, err, ErrNotReturnable)
}

func TestProcessGuards(t *testing.T) {
	w := newWorld()
	seedSale(w, 42, 2, shared.MustParseMoney("50.00"), 8)

	pendingOrder := w.transactions[1]
	pendingOrder.ID = 2
	pendingOrder.Kind = sales.KindOrder
	pendingOrder.Status = sales.StatusPending
	w.transactions[2] = pendingOrder

	anon := w.transactions[1]
	anon.ID = 3
	anon.CustomerID = nil
	w.transactions[3] = anon
	w.lines[3] = []sales.LineItem{{ID: 30, TransactionID: 3, UnitID: 1, Qty: 1, UnitPrice: shared.MustParseMoney("50.00")}}

	svc := newTestService(w, ServiceConfig{})

	_, err := svc.Process(context.Background(), ProcessInput{
		TransactionID: 2,
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrNotReturnable)

	_, err = svc.Process(context.Background(), ProcessInput{
		TransactionID: 3,
		Lines:         []RequestedLine{{LineItemID: 30, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrCustomerRequired)

	_, err = svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 0}},
	})
	require.ErrorIs(t, err, ErrInvalidQuantity)

	_, err = svc.Process(context.Background(), ProcessInput{TransactionID: 1})
	require.ErrorIs(t, err, ErrNothingToReturn)
}

func TestProcessUnknownLineRollsBackEverything(t *testing.T) {
	w := newWorld()
	seedSale(w, 42, 2, shared.MustParseMoney("50.00"), 8)
	svc := newTestService(w, ServiceConfig{})

	_, err := svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Lines: []RequestedLine{
			{LineItemID: 10, Quantity: 1},
			{LineItemID: 99, Quantity: 1},
		},
		Actor: shared.Actor{ID: 7},
	})
	require.ErrorIs(t, err, ErrUnknownLineItem)

	require.EqualValues(t, 8, w.units[1].Quantity)
	require.Empty(t, w.returns)
	require.Empty(t, w.returnLines)
	require.Empty(t, w.refundReqs)
	require.Empty(t, w.movements)
}

func TestProcessRespectsRefundWindow(t *testing.T) {
	w := newWorld()
	seedSale(w, 42, 2, shared.MustParseMoney("50.00"), 8)
	txn := w.transactions[1]
	txn.UpdatedAt = testNow.AddDate(0, 0, -40)
	w.transactions[1] = txn

	svc := newTestService(w, ServiceConfig{RefundWindowDays: 30})
	_, err := svc.Process(context.Background(), ProcessInput{
		TransactionID: 1,
		Lines:         []RequestedLine{{LineItemID: 10, Quantity: 1}},
	})
	require.ErrorIs(t, err, ErrWindowClosed)
}

func TestConcurrentReturnsNeverExceedSoldQuantity(t *testing.T) {
	// Two racing full returns for the same line: exactly one commits, the
	// other finds the transaction already RETURNED, and both goods and
	// money are counted once.
	w := newWorld()
	seedSale(w, 42, 2, shared.MustParseMoney("50.00"), 8)
	svc := newTestService(w, ServiceConfig{})

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Process(context.Background(), ProcessInput{
				TransactionID: 1,
				Reason:        "changed mind",
				Lines:         []RequestedLine{{LineItemID: 10, Quantity: 2}},
				Actor:         shared.Actor{ID: 7},
			})
		}(i)
	}
	wg.Wait()

	var succeeded int
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			require.ErrorIs(t, err, ErrNotReturnable)
		}
	}
	require.Equal(t, 1, succeeded)

	var returned int64
	for _, line := range w.returnLines {
		returned += line.Quantity
	}
	require.EqualValues(t, 2, returned)
	require.EqualValues(t, 10, w.units[1].Quantity)
	require.Len(t, w.refundReqs, 1)
	require.Equal(t, sales.StatusReturned, w.transactions[1].Status)
}
