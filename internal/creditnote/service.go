package creditnote

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxLedger) error) error
	ListByCustomer(ctx context.Context, customerID int64) ([]CreditNote, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records domain counters.
type MetricsPort interface {
	CreditConsumed(amountMinor int64)
}

// ServiceConfig groups ledger policy settings.
type ServiceConfig struct {
	DefaultExpiryMonths int
	AllowPartialUse     bool
}

// Service coordinates the store-credit ledger.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
	cfg     ServiceConfig
	now     func() time.Time
}

// NewService builds Service. now may be nil, defaulting to time.Now.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort, cfg ServiceConfig, now func() time.Time) *Service {
	if now == nil {
		now = time.Now
	}
	if cfg.DefaultExpiryMonths <= 0 {
		cfg.DefaultExpiryMonths = 12
	}
	return &Service{repo: repo, audit: audit, metrics: metrics, cfg: cfg, now: now}
}

// Issue creates an active note carrying its full amount.
func (s *Service) Issue(ctx context.Context, customerID int64, amount shared.Money, reference string, actor shared.Actor) (CreditNote, error) {
	if customerID == 0 {
		return CreditNote{}, ErrCustomerRequired
	}
	if amount <= 0 {
		return CreditNote{}, ErrInvalidAmount
	}
	now := s.now().UTC()
	note := CreditNote{
		ID:         uuid.New(),
		CustomerID: customerID,
		Amount:     amount,
		Remaining:  amount,
		Status:     StatusActive,
		Reference:  reference,
		CreatedAt:  now,
		ExpiresAt:  now.AddDate(0, s.cfg.DefaultExpiryMonths, 0),
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		return tx.InsertNote(ctx, note)
	})
	if err != nil {
		return CreditNote{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor.ID,
			Action:   "creditnote:issue",
			Entity:   "credit_note",
			EntityID: note.ID.String(),
			Meta:     map[string]any{"customer_id": customerID, "amount": amount.String(), "reference": reference},
		})
	}
	return note, nil
}

// Consume applies up to requested from the customer's active notes,
// oldest first, and returns the amount actually applied. A shortfall is not
// an error here; the caller covers it with another payment method.
func (s *Service) Consume(ctx context.Context, customerID int64, requested shared.Money, ref Ref) (shared.Money, error) {
	if customerID == 0 {
		return 0, ErrCustomerRequired
	}
	if requested <= 0 {
		return 0, ErrInvalidAmount
	}
	var applied shared.Money
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		var err error
		applied, err = ConsumeTx(ctx, tx, customerID, requested, ref, s.cfg.AllowPartialUse, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	if s.metrics != nil && applied > 0 {
		s.metrics.CreditConsumed(int64(applied))
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  ref.ActorID,
			Action:   "creditnote:consume",
			Entity:   "credit_note",
			EntityID: fmt.Sprintf("%s:%s", ref.Module, ref.ID),
			Meta:     map[string]any{"customer_id": customerID, "requested": requested.String(), "applied": applied.String()},
		})
	}
	return applied, nil
}

// ListByCustomer returns the customer's notes, oldest first.
func (s *Service) ListByCustomer(ctx context.Context, customerID int64) ([]CreditNote, error) {
	if customerID == 0 {
		return nil, ErrCustomerRequired
	}
	return s.repo.ListByCustomer(ctx, customerID)
}

// ExpireDue flips aged-out active notes to expired. Run from the scheduler.
func (s *Service) ExpireDue(ctx context.Context) (int64, error) {
	var expired int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxLedger) error {
		var err error
		expired, err = tx.ExpireBefore(ctx, s.now().UTC())
		return err
	})
	return expired, err
}

// Ref ties a consumption to the settlement that caused it.
type Ref struct {
	Module  string
	ID      string
	ActorID int64
}

// ConsumeTx runs FIFO consumption on a caller-held transaction, persisting
// one consumption event per note touched. Used by Consume and by checkout
// settlement, which must roll credit back together with its payments.
func ConsumeTx(ctx context.Context, tx TxLedger, customerID int64, requested shared.Money, ref Ref, allowPartial bool, at time.Time) (shared.Money, error) {
	notes, err := tx.ListActiveForUpdate(ctx, customerID)
	if err != nil {
		return 0, err
	}
	ptrs := make([]*CreditNote, len(notes))
	for i := range notes {
		ptrs[i] = &notes[i]
	}
	events, applied := consumeFIFO(ptrs, requested)
	if !allowPartial {
		for _, note := range ptrs {
			if note.Status == StatusActive && note.Remaining > 0 && note.Remaining < note.Amount {
				return 0, ErrPartialUseDisabled
			}
		}
	}
	for _, ev := range events {
		ev.RefModule = ref.Module
		ev.RefID = ref.ID
		ev.At = at
		if err := tx.InsertConsumption(ctx, ev); err != nil {
			return 0, err
		}
	}
	for _, note := range ptrs {
		if touched(note, events) {
			if err := tx.UpdateNote(ctx, note.ID, note.Remaining, note.Status); err != nil {
				return 0, err
			}
		}
	}
	return applied, nil
}

func touched(note *CreditNote, events []Consumption) bool {
	for _, ev := range events {
		if ev.NoteID == note.ID {
			return true
		}
	}
	return false
}
