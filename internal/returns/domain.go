package returns

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// ReturnRecord captures one return event against a purchase transaction.
type ReturnRecord struct {
	ID            uuid.UUID
	TransactionID int64
	CustomerID    int64
	RefundTotal   shared.Money
	Reason        string
	ActorID       int64
	CreatedAt     time.Time
	Lines         []ReturnLineItem
}

// ReturnLineItem records how much of one sold line came back. Quantity is
// the accepted quantity after clamping, Amount its value at the sale-time
// unit price.
type ReturnLineItem struct {
	ID         int64
	ReturnID   uuid.UUID
	LineItemID int64
	UnitID     int64
	Quantity   int64
	UnitPrice  shared.Money
	Amount     shared.Money
}

// RequestedLine is one line of a return request before clamping.
type RequestedLine struct {
	LineItemID int64
	Quantity   int64
}

var (
	// ErrNotReturnable indicates the transaction is not in a status goods
	// can come back from.
	ErrNotReturnable = errors.New("returns: transaction not returnable in current status")
	// ErrCustomerRequired indicates an anonymous transaction; store credit
	// needs an identified customer.
	ErrCustomerRequired = errors.New("returns: customer required")
	// ErrNothingToReturn indicates every requested line clamped to zero.
	ErrNothingToReturn = errors.New("returns: nothing left to return")
	// ErrUnknownLineItem indicates a requested line that is not part of the
	// transaction.
	ErrUnknownLineItem = errors.New("returns: line item not part of transaction")
	// ErrInvalidQuantity indicates a non-positive requested quantity.
	ErrInvalidQuantity = errors.New("returns: quantity must be positive")
	// ErrWindowClosed indicates the return window has elapsed.
	ErrWindowClosed = errors.New("returns: return window closed")
	// ErrReturnNotFound indicates an unknown return record.
	ErrReturnNotFound = errors.New("returns: return not found")
)
