package inventory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetUnit(ctx context.Context, unitID int64) (StockUnit, error)
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort records domain counters.
type MetricsPort interface {
	MovementPosted(mtype string)
}

// Service coordinates stock ledger operations.
type Service struct {
	repo    RepositoryPort
	audit   AuditPort
	metrics MetricsPort
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, metrics MetricsPort) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics}
}

// Reserve places a soft hold on stock for every line.
func (s *Service) Reserve(ctx context.Context, lines []Line, ref Ref) error {
	return s.post(ctx, MovementReserve, lines, ref)
}

// Release lifts soft holds placed by Reserve.
func (s *Service) Release(ctx context.Context, lines []Line, ref Ref) error {
	return s.post(ctx, MovementRelease, lines, ref)
}

// Deduct decrements physical stock; fails with ErrInsufficientStock when a
// line asks for more than available, rolling back every line.
func (s *Service) Deduct(ctx context.Context, lines []Line, ref Ref) error {
	return s.post(ctx, MovementDeduct, lines, ref)
}

// Restock increments physical stock, used by returns.
func (s *Service) Restock(ctx context.Context, lines []Line, ref Ref) error {
	return s.post(ctx, MovementRestock, lines, ref)
}

// GetUnit returns current counters for a unit.
func (s *Service) GetUnit(ctx context.Context, unitID int64) (StockUnit, error) {
	return s.repo.GetUnit(ctx, unitID)
}

// ListMovements lists ledger entries for a unit.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, error) {
	if filter.UnitID == 0 {
		return nil, ErrUnitNotFound
	}
	return s.repo.ListMovements(ctx, filter)
}

func (s *Service) post(ctx context.Context, mtype MovementType, lines []Line, ref Ref) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return ApplyTx(ctx, tx, mtype, lines, ref)
	})
	if err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.MovementPosted(string(mtype))
	}
	if s.audit != nil {
		meta := map[string]any{"ref_module": ref.Module, "ref_id": ref.ID, "lines": len(lines)}
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  ref.ActorID,
			Action:   fmt.Sprintf("inventory:%s", mtype),
			Entity:   "stock_movement",
			EntityID: fmt.Sprintf("%s:%s", ref.Module, ref.ID),
			Meta:     meta,
		})
	}
	return nil
}

// ApplyTx runs the movement algorithm on a caller-held transaction. Lines
// are locked in ascending unit id order so concurrent settlements touching
// overlapping SKUs never deadlock.
func ApplyTx(ctx context.Context, tx TxRepository, mtype MovementType, lines []Line, ref Ref) error {
	if len(lines) == 0 {
		return ErrInvalidQuantity
	}
	sorted := make([]Line, len(lines))
	copy(sorted, lines)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].UnitID < sorted[j].UnitID })

	now := time.Now().UTC()
	for _, line := range sorted {
		if line.Qty <= 0 {
			return ErrInvalidQuantity
		}
		unit, err := tx.GetUnitForUpdate(ctx, line.UnitID)
		if err != nil {
			return err
		}
		if err := apply(&unit, mtype, line.Qty); err != nil {
			return fmt.Errorf("unit %d: %w", line.UnitID, err)
		}
		if err := tx.UpdateCounts(ctx, unit.ID, unit.Quantity, unit.Reserved); err != nil {
			return err
		}
		if _, err := tx.InsertMovement(ctx, Movement{
			UnitID:    line.UnitID,
			Type:      mtype,
			Qty:       line.Qty,
			RefModule: ref.Module,
			RefID:     ref.ID,
			Note:      ref.Note,
			ActorID:   ref.ActorID,
			PostedAt:  now,
		}); err != nil {
			return err
		}
	}
	return nil
}
