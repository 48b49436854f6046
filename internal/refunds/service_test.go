package refunds

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

type memoryTransaction struct {
	customerID *int64
	total      shared.Money
}

type memoryRepo struct {
	requests     map[uuid.UUID]RefundRequest
	transactions map[int64]memoryTransaction
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		requests:     make(map[uuid.UUID]RefundRequest),
		transactions: make(map[int64]memoryTransaction),
	}
}

func (m *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	snapshot := make(map[uuid.UUID]RefundRequest, len(m.requests))
	for k, v := range m.requests {
		snapshot[k] = v
	}
	if err := fn(ctx, m); err != nil {
		m.requests = snapshot
		return err
	}
	return nil
}

func (m *memoryRepo) Get(ctx context.Context, id uuid.UUID) (RefundRequest, error) {
	req, ok := m.requests[id]
	if !ok {
		return RefundRequest{}, ErrRequestNotFound
	}
	return req, nil
}

func (m *memoryRepo) ListByTransaction(ctx context.Context, transactionID int64) ([]RefundRequest, error) {
	var out []RefundRequest
	for _, req := range m.requests {
		if req.TransactionID == transactionID {
			out = append(out, req)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].RequestedAt.Before(out[j].RequestedAt) })
	return out, nil
}

func (m *memoryRepo) ListOverdue(ctx context.Context, level ApprovalLevel, before time.Time) ([]RefundRequest, error) {
	var out []RefundRequest
	for _, req := range m.requests {
		if req.Status == StatusPending && req.RequiredLevel == level && req.RequestedAt.Before(before) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListStuckProcessing(ctx context.Context, before time.Time) ([]RefundRequest, error) {
	var out []RefundRequest
	for _, req := range m.requests {
		if req.Status == StatusProcessing && req.ProcessedAt != nil && req.ProcessedAt.Before(before) {
			out = append(out, req)
		}
	}
	return out, nil
}

func (m *memoryRepo) Insert(ctx context.Context, req RefundRequest) error {
	m.requests[req.ID] = req
	return nil
}

func (m *memoryRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (RefundRequest, error) {
	return m.Get(ctx, id)
}

func (m *memoryRepo) Update(ctx context.Context, req RefundRequest) error {
	if _, ok := m.requests[req.ID]; !ok {
		return ErrRequestNotFound
	}
	m.requests[req.ID] = req
	return nil
}

func (m *memoryRepo) TransactionSummaryForUpdate(ctx context.Context, transactionID int64) (*int64, shared.Money, error) {
	tx, ok := m.transactions[transactionID]
	if !ok {
		return nil, 0, shared.ErrNotFound
	}
	return tx.customerID, tx.total, nil
}

func (m *memoryRepo) SumActive(ctx context.Context, transactionID int64) (shared.Money, error) {
	var sum shared.Money
	for _, req := range m.requests {
		if req.TransactionID == transactionID && req.Status != StatusRejected && req.Status != StatusCancelled {
			sum += req.Amount
		}
	}
	return sum, nil
}

type fakeCredit struct {
	issued []shared.Money
	noteID uuid.UUID
	err    error
}

func (f *fakeCredit) IssueCredit(ctx context.Context, customerID int64, amount shared.Money, reference string, actorID int64) (uuid.UUID, error) {
	if f.err != nil {
		return uuid.UUID{}, f.err
	}
	f.issued = append(f.issued, amount)
	if f.noteID == (uuid.UUID{}) {
		f.noteID = uuid.New()
	}
	return f.noteID, nil
}

type fakeProcessor struct {
	result ProcessorResult
	err    error
	calls  int
}

func (f *fakeProcessor) Refund(ctx context.Context, reference string, amount shared.Money) (ProcessorResult, error) {
	f.calls++
	return f.result, f.err
}

type fakeNotifier struct {
	events []string
}

func (f *fakeNotifier) Notify(ctx context.Context, event string, payload map[string]any) {
	f.events = append(f.events, event)
}

var testThresholds = Thresholds{
	AutoApprovalLimit: shared.MustParseMoney("500.00"),
	VendorThreshold:   shared.MustParseMoney("2000.00"),
	AdminThreshold:    shared.MustParseMoney("5000.00"),
}

func newTestService(repo *memoryRepo, credit *fakeCredit, proc *fakeProcessor, notifier *fakeNotifier, now time.Time) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, credit, proc, notifier, nil, nil, testThresholds,
		Escalation{
			VendorTimeout:     48 * time.Hour,
			AdminTimeout:      24 * time.Hour,
			ProcessingTimeout: 72 * time.Hour,
		}, logger)
	svc.now = func() time.Time { return now }
	return svc
}

func seedTransaction(repo *memoryRepo, id int64, customerID int64, total shared.Money) {
	repo.transactions[id] = memoryTransaction{customerID: &customerID, total: total}
}

func TestCreateBelowAutoLimitSettlesImmediately(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("1000.00"))
	credit := &fakeCredit{}
	notifier := &fakeNotifier{}
	svc := newTestService(repo, credit, nil, notifier, time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC))

	out, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("100.00"),
		Method:        MethodStoreCredit,
		Reason:        "damaged item",
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, out.Status)
	require.Equal(t, LevelAuto, out.RequiredLevel)
	require.NotNil(t, out.CreditNoteID)
	require.Equal(t, []shared.Money{shared.MustParseMoney("100.00")}, credit.issued)
	require.Contains(t, notifier.events, "refund.completed")
}

func TestCreateAboveAdminThresholdWaitsForAdmin(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("10000.00"))
	svc := newTestService(repo, &fakeCredit{}, nil, &fakeNotifier{}, time.Now())

	out, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("6000.00"),
		Method:        MethodStoreCredit,
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Status)
	require.Equal(t, LevelAdmin, out.RequiredLevel)
}

func TestCreateRejectsOverRefundableBalance(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("100.00"))
	svc := newTestService(repo, &fakeCredit{}, nil, &fakeNotifier{}, time.Now())

	// First refund takes 80 of the 100 total.
	_, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("80.00"),
		Method:        MethodStoreCredit,
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)

	_, err = svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("30.00"),
		Method:        MethodStoreCredit,
		Actor:         shared.Actor{ID: 9},
	})
	require.ErrorIs(t, err, ErrExceedsRefundable)
	require.Len(t, repo.requests, 1)
}

func TestApproveStoreCreditIssuesNote(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("5000.00"))
	credit := &fakeCredit{}
	svc := newTestService(repo, credit, nil, &fakeNotifier{}, time.Now())

	out, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("1200.00"),
		Method:        MethodStoreCredit,
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Status)
	require.Equal(t, LevelVendor, out.RequiredLevel)

	out, err = svc.Approve(context.Background(), out.ID, "looks fine", shared.Actor{ID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, out.Status)
	require.Equal(t, &credit.noteID, out.CreditNoteID)
	require.Equal(t, []shared.Money{shared.MustParseMoney("1200.00")}, credit.issued)
}

func TestGatewayAsyncCompletesViaCallback(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("5000.00"))
	proc := &fakeProcessor{result: ProcessorResult{Completed: false, ProviderRef: "gw-1"}}
	svc := newTestService(repo, &fakeCredit{}, proc, &fakeNotifier{}, time.Now())

	out, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("900.00"),
		Method:        MethodGateway,
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)
	out, err = svc.Approve(context.Background(), out.ID, "", shared.Actor{ID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, out.Status)
	require.Equal(t, 1, proc.calls)
	require.NotNil(t, out.ProviderRef)
	require.Equal(t, "gw-1", *out.ProviderRef)

	out, err = svc.MarkCompleted(context.Background(), out.ID, "gw-1-final", shared.Actor{ID: 0})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, out.Status)
	require.Equal(t, "gw-1-final", *out.ProviderRef)
}

func TestGatewayFailureStaysProcessing(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("5000.00"))
	proc := &fakeProcessor{err: errors.New("gateway down")}
	svc := newTestService(repo, &fakeCredit{}, proc, &fakeNotifier{}, time.Now())

	out, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("900.00"),
		Method:        MethodGateway,
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)
	_, err = svc.Approve(context.Background(), out.ID, "", shared.Actor{ID: 3})
	require.ErrorIs(t, err, ErrProcessorFailed)

	stored, err := svc.Get(context.Background(), out.ID)
	require.NoError(t, err)
	require.Equal(t, StatusProcessing, stored.Status)
}

func TestRejectRequiresReasonAndStops(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("5000.00"))
	svc := newTestService(repo, &fakeCredit{}, nil, &fakeNotifier{}, time.Now())

	out, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("900.00"),
		Method:        MethodBankTransfer,
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), out.ID, "", shared.Actor{ID: 3})
	require.ErrorIs(t, err, ErrReasonRequired)

	out, err = svc.Reject(context.Background(), out.ID, "duplicate claim", shared.Actor{ID: 3})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, out.Status)
	require.Equal(t, "duplicate claim", out.Notes)

	// A settled request cannot be rejected.
	_, err = svc.Reject(context.Background(), out.ID, "again", shared.Actor{ID: 3})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestCancelOnlyFromPending(t *testing.T) {
	repo := newMemoryRepo()
	seedTransaction(repo, 1, 42, shared.MustParseMoney("5000.00"))
	svc := newTestService(repo, &fakeCredit{}, nil, &fakeNotifier{}, time.Now())

	out, err := svc.Create(context.Background(), CreateInput{
		TransactionID: 1,
		Amount:        shared.MustParseMoney("900.00"),
		Method:        MethodBankTransfer,
		Actor:         shared.Actor{ID: 9},
	})
	require.NoError(t, err)

	out, err = svc.Cancel(context.Background(), out.ID, shared.Actor{ID: 9})
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, out.Status)

	_, err = svc.Cancel(context.Background(), out.ID, shared.Actor{ID: 9})
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestEscalateOverdueFlagsStalePending(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	customer := int64(42)
	repo.transactions[1] = memoryTransaction{customerID: &customer, total: shared.MustParseMoney("10000.00")}

	stale := RefundRequest{
		ID:            uuid.New(),
		TransactionID: 1,
		CustomerID:    customer,
		Amount:        shared.MustParseMoney("1000.00"),
		Method:        MethodBankTransfer,
		Status:        StatusPending,
		RequiredLevel: LevelVendor,
		RequestedAt:   now.Add(-72 * time.Hour),
	}
	fresh := stale
	fresh.ID = uuid.New()
	fresh.RequestedAt = now.Add(-time.Hour)
	repo.requests[stale.ID] = stale
	repo.requests[fresh.ID] = fresh

	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeCredit{}, nil, notifier, now)
	flagged, err := svc.EscalateOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, flagged)
	require.Equal(t, []string{"refund.escalated"}, notifier.events)
}

func TestEscalateOverdueFlagsStalledProcessing(t *testing.T) {
	repo := newMemoryRepo()
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)
	customer := int64(42)
	repo.transactions[1] = memoryTransaction{customerID: &customer, total: shared.MustParseMoney("10000.00")}

	processedAt := now.Add(-96 * time.Hour)
	stalled := RefundRequest{
		ID:            uuid.New(),
		TransactionID: 1,
		CustomerID:    customer,
		Amount:        shared.MustParseMoney("900.00"),
		Method:        MethodGateway,
		Status:        StatusProcessing,
		RequiredLevel: LevelVendor,
		RequestedAt:   now.Add(-100 * time.Hour),
		ProcessedAt:   &processedAt,
	}
	recentAt := now.Add(-time.Hour)
	recent := stalled
	recent.ID = uuid.New()
	recent.ProcessedAt = &recentAt
	repo.requests[stalled.ID] = stalled
	repo.requests[recent.ID] = recent

	notifier := &fakeNotifier{}
	svc := newTestService(repo, &fakeCredit{}, &fakeProcessor{}, notifier, now)
	flagged, err := svc.EscalateOverdue(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, flagged)
	require.Equal(t, []string{"refund.stalled"}, notifier.events)
}

func TestLevelForVendorThresholdMovesBoundary(t *testing.T) {
	amount := shared.MustParseMoney("3000.00")

	wide := testThresholds
	wide.VendorThreshold = shared.MustParseMoney("4000.00")
	require.Equal(t, LevelVendor, wide.LevelFor(amount))

	narrow := testThresholds
	narrow.VendorThreshold = shared.MustParseMoney("2000.00")
	require.Equal(t, LevelAdmin, narrow.LevelFor(amount))

	require.Equal(t, LevelAuto, narrow.LevelFor(shared.MustParseMoney("500.00")))
	require.Equal(t, LevelVendor, narrow.LevelFor(shared.MustParseMoney("1500.00")))
	require.Equal(t, LevelAdmin, narrow.LevelFor(shared.MustParseMoney("6000.00")))
}
