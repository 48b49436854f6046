package inventory

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementReserve places a soft hold without touching physical quantity.
	MovementReserve MovementType = "RESERVE"
	// MovementRelease lifts a soft hold.
	MovementRelease MovementType = "RELEASE"
	// MovementDeduct decrements physical quantity.
	MovementDeduct MovementType = "DEDUCT"
	// MovementRestock increments physical quantity.
	MovementRestock MovementType = "RESTOCK"
)

// StockUnit is the per-SKU counter row. A unit maps to a product or a
// product variant; the ledger owns both counters exclusively.
type StockUnit struct {
	ID        int64
	ProductID int64
	VariantID *int64
	Quantity  int64
	Reserved  int64
	UpdatedAt time.Time
}

// Available is the quantity not held by reservations.
func (u StockUnit) Available() int64 {
	return u.Quantity - u.Reserved
}

// Movement is one append-only ledger entry.
type Movement struct {
	ID        int64
	UnitID    int64
	Type      MovementType
	Qty       int64
	RefModule string
	RefID     string
	Note      string
	ActorID   int64
	PostedAt  time.Time
}

// Line pairs a stock unit with a quantity for batch operations.
type Line struct {
	UnitID int64
	Qty    int64
}

// Ref ties a batch of movements back to the operation that caused it.
type Ref struct {
	Module  string
	ID      string
	Note    string
	ActorID int64
}

// MovementFilter filters ledger entries for a unit.
type MovementFilter struct {
	UnitID int64
	From   time.Time
	To     time.Time
	Limit  int
}

// ErrInsufficientStock is returned when a deduct or reserve asks for more
// than physically available.
var ErrInsufficientStock = errors.New("inventory: insufficient stock")

// ErrInvalidQuantity indicates a non-positive quantity.
var ErrInvalidQuantity = errors.New("inventory: quantity must be positive")

// ErrUnitNotFound indicates the stock unit does not exist.
var ErrUnitNotFound = errors.New("inventory: stock unit not found")

// apply mutates the unit counters for a single movement. Counter rules live
// here so the transactional service and its tests share one definition.
func apply(unit *StockUnit, mtype MovementType, qty int64) error {
	if qty <= 0 {
		return ErrInvalidQuantity
	}
	switch mtype {
	case MovementReserve:
		if unit.Available() < qty {
			return ErrInsufficientStock
		}
		unit.Reserved += qty
	case MovementRelease:
		// Releasing more than held lowers the hold to zero; cancelling an
		// order that never reached the reserved phase must not fail.
		unit.Reserved -= qty
		if unit.Reserved < 0 {
			unit.Reserved = 0
		}
	case MovementDeduct:
		if unit.Quantity < qty {
			return ErrInsufficientStock
		}
		unit.Quantity -= qty
		if unit.Reserved > unit.Quantity {
			unit.Reserved = unit.Quantity
		}
	case MovementRestock:
		unit.Quantity += qty
	default:
		return errors.New("inventory: unknown movement type")
	}
	return nil
}
