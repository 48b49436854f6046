package creditnote

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

type memoryLedger struct {
	notes        map[uuid.UUID]CreditNote
	consumptions []Consumption
}

func newMemoryLedger() *memoryLedger {
	return &memoryLedger{notes: make(map[uuid.UUID]CreditNote)}
}

func (m *memoryLedger) WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error {
	snapshot := make(map[uuid.UUID]CreditNote, len(m.notes))
	for k, v := range m.notes {
		snapshot[k] = v
	}
	consumed := len(m.consumptions)
	if err := fn(ctx, m); err != nil {
		m.notes = snapshot
		m.consumptions = m.consumptions[:consumed]
		return err
	}
	return nil
}

func (m *memoryLedger) ListByCustomer(ctx context.Context, customerID int64) ([]CreditNote, error) {
	return m.sortedNotes(customerID, false), nil
}

func (m *memoryLedger) InsertNote(ctx context.Context, note CreditNote) error {
	m.notes[note.ID] = note
	return nil
}

func (m *memoryLedger) ListActiveForUpdate(ctx context.Context, customerID int64) ([]CreditNote, error) {
	return m.sortedNotes(customerID, true), nil
}

func (m *memoryLedger) UpdateNote(ctx context.Context, id uuid.UUID, remaining shared.Money, status Status) error {
	note, ok := m.notes[id]
	if !ok {
		return shared.ErrNotFound
	}
	note.Remaining = remaining
	note.Status = status
	m.notes[id] = note
	return nil
}

func (m *memoryLedger) InsertConsumption(ctx context.Context, c Consumption) error {
	m.consumptions = append(m.consumptions, c)
	return nil
}

func (m *memoryLedger) ExpireBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	var n int64
	for id, note := range m.notes {
		if note.Status == StatusActive && note.ExpiresAt.Before(cutoff) {
			note.Status = StatusExpired
			m.notes[id] = note
			n++
		}
	}
	return n, nil
}

func (m *memoryLedger) sortedNotes(customerID int64, activeOnly bool) []CreditNote {
	var out []CreditNote
	for _, note := range m.notes {
		if note.CustomerID != customerID {
			continue
		}
		if activeOnly && (note.Status != StatusActive || note.Remaining <= 0) {
			continue
		}
		out = append(out, note)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func seedNote(ledger *memoryLedger, customerID int64, amount, remaining shared.Money, createdAt time.Time) CreditNote {
	note := CreditNote{
		ID:         uuid.New(),
		CustomerID: customerID,
		Amount:     amount,
		Remaining:  remaining,
		Status:     StatusActive,
		CreatedAt:  createdAt,
		ExpiresAt:  createdAt.AddDate(1, 0, 0),
	}
	ledger.notes[note.ID] = note
	return note
}

func TestIssueCreatesActiveNote(t *testing.T) {
	ledger := newMemoryLedger()
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	svc := NewService(ledger, nil, nil, ServiceConfig{DefaultExpiryMonths: 6, AllowPartialUse: true}, fixedClock(now))

	note, err := svc.Issue(context.Background(), 42, shared.MustParseMoney("50.00"), "refund RFN-1", shared.Actor{ID: 1})
	require.NoError(t, err)
	require.Equal(t, StatusActive, note.Status)
	require.Equal(t, note.Amount, note.Remaining)
	require.Equal(t, now.AddDate(0, 6, 0), note.ExpiresAt)

	_, err = svc.Issue(context.Background(), 0, shared.MustParseMoney("10.00"), "", shared.Actor{})
	require.ErrorIs(t, err, ErrCustomerRequired)
	_, err = svc.Issue(context.Background(), 42, 0, "", shared.Actor{})
	require.ErrorIs(t, err, ErrInvalidAmount)
}

func TestConsumeFIFOOnlyTouchesOldestWhenSufficient(t *testing.T) {
	ledger := newMemoryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := seedNote(ledger, 7, shared.MustParseMoney("30.00"), shared.MustParseMoney("30.00"), base)
	newer := seedNote(ledger, 7, shared.MustParseMoney("100.00"), shared.MustParseMoney("100.00"), base.Add(time.Hour))

	svc := NewService(ledger, nil, nil, ServiceConfig{AllowPartialUse: true}, fixedClock(base.Add(2*time.Hour)))
	applied, err := svc.Consume(context.Background(), 7, shared.MustParseMoney("20.00"), Ref{Module: "checkout", ID: "c-1"})
	require.NoError(t, err)
	require.Equal(t, shared.MustParseMoney("20.00"), applied)

	require.Equal(t, shared.MustParseMoney("10.00"), ledger.notes[older.ID].Remaining)
	require.Equal(t, shared.MustParseMoney("100.00"), ledger.notes[newer.ID].Remaining)
}

func TestConsumeSpansNotesOldestFirst(t *testing.T) {
	// Two active notes, 30 (older) and 100 (newer); consuming 100 exhausts
	// the older note and draws 70 from the newer.
	ledger := newMemoryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	older := seedNote(ledger, 7, shared.MustParseMoney("30.00"), shared.MustParseMoney("30.00"), base)
	newer := seedNote(ledger, 7, shared.MustParseMoney("100.00"), shared.MustParseMoney("100.00"), base.Add(time.Hour))

	svc := NewService(ledger, nil, nil, ServiceConfig{AllowPartialUse: true}, fixedClock(base.Add(2*time.Hour)))
	applied, err := svc.Consume(context.Background(), 7, shared.MustParseMoney("100.00"), Ref{Module: "checkout", ID: "c-2"})
	require.NoError(t, err)
	require.Equal(t, shared.MustParseMoney("100.00"), applied)

	require.Equal(t, StatusUsed, ledger.notes[older.ID].Status)
	require.Equal(t, shared.Money(0), ledger.notes[older.ID].Remaining)
	require.Equal(t, shared.MustParseMoney("30.00"), ledger.notes[newer.ID].Remaining)

	// One consumption event per note touched.
	require.Len(t, ledger.consumptions, 2)
	require.Equal(t, older.ID, ledger.consumptions[0].NoteID)
	require.Equal(t, shared.MustParseMoney("30.00"), ledger.consumptions[0].Amount)
	require.Equal(t, newer.ID, ledger.consumptions[1].NoteID)
	require.Equal(t, shared.MustParseMoney("70.00"), ledger.consumptions[1].Amount)
}

func TestConsumeReturnsShortfall(t *testing.T) {
	ledger := newMemoryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	seedNote(ledger, 7, shared.MustParseMoney("25.00"), shared.MustParseMoney("25.00"), base)

	svc := NewService(ledger, nil, nil, ServiceConfig{AllowPartialUse: true}, fixedClock(base))
	applied, err := svc.Consume(context.Background(), 7, shared.MustParseMoney("40.00"), Ref{Module: "checkout", ID: "c-3"})
	require.NoError(t, err)
	require.Equal(t, shared.MustParseMoney("25.00"), applied)
}

func TestConsumePartialUseDisabled(t *testing.T) {
	ledger := newMemoryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	note := seedNote(ledger, 7, shared.MustParseMoney("30.00"), shared.MustParseMoney("30.00"), base)

	svc := NewService(ledger, nil, nil, ServiceConfig{AllowPartialUse: false}, fixedClock(base))
	_, err := svc.Consume(context.Background(), 7, shared.MustParseMoney("20.00"), Ref{Module: "checkout", ID: "c-4"})
	require.ErrorIs(t, err, ErrPartialUseDisabled)
	// Rolled back.
	require.Equal(t, shared.MustParseMoney("30.00"), ledger.notes[note.ID].Remaining)
}

func TestExpireDue(t *testing.T) {
	ledger := newMemoryLedger()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	old := seedNote(ledger, 7, shared.MustParseMoney("30.00"), shared.MustParseMoney("30.00"), base.AddDate(-2, 0, 0))
	fresh := seedNote(ledger, 7, shared.MustParseMoney("30.00"), shared.MustParseMoney("30.00"), base)

	svc := NewService(ledger, nil, nil, ServiceConfig{}, fixedClock(base))
	expired, err := svc.ExpireDue(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 1, expired)
	require.Equal(t, StatusExpired, ledger.notes[old.ID].Status)
	require.Equal(t, StatusActive, ledger.notes[fresh.ID].Status)
}
