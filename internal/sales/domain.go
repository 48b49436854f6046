package sales

import (
	"errors"
	"time"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Kind separates the two purchase flows: online orders ship later, POS
// sales settle at the counter.
type Kind string

const (
	// KindOrder is an online order with a fulfilment pipeline.
	KindOrder Kind = "ORDER"
	// KindSale is a point-of-sale direct sale.
	KindSale Kind = "SALE"
)

// Status enumerates lifecycle states across both kinds.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusProcessing Status = "PROCESSING"
	StatusShipped    Status = "SHIPPED"
	StatusDelivered  Status = "DELIVERED"
	StatusCancelled  Status = "CANCELLED"
	StatusDraft      Status = "DRAFT"
	StatusCompleted  Status = "COMPLETED"
	StatusReturned   Status = "RETURNED"
)

// PaymentStatus summarises how much of the total has been settled.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
)

// PurchaseTransaction generalises an order and a POS sale. Status is
// mutated only through the transition table; line items are immutable
// after creation.
type PurchaseTransaction struct {
	ID            int64
	Code          string
	Kind          Kind
	Status        Status
	PaymentStatus PaymentStatus
	CustomerID    *int64
	TotalAmount   shared.Money
	PaidTotal     shared.Money
	AWB           *string
	Courier       *string
	CreatedBy     int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
	Lines         []LineItem
}

// LineItem references a stock unit at the price it was sold.
type LineItem struct {
	ID            int64
	TransactionID int64
	UnitID        int64
	Qty           int64
	UnitPrice     shared.Money
	LineTotal     shared.Money
}

// StatusLog is the append-only audit trail of transitions, written in the
// same transaction as the status change it records.
type StatusLog struct {
	ID            int64
	TransactionID int64
	From          Status
	To            Status
	Note          string
	ActorID       int64
	Meta          map[string]any
	At            time.Time
}

// Terminal reports whether no further lifecycle transition leaves s, other
// than the automatic completed-to-returned flip.
func (s Status) Terminal() bool {
	switch s {
	case StatusDelivered, StatusCancelled, StatusReturned:
		return true
	}
	return false
}

// Returnable reports whether goods sold under this status can come back.
func (s Status) Returnable() bool {
	return s == StatusCompleted || s == StatusDelivered
}

var (
	// ErrIllegalTransition indicates the requested status change is not in
	// the transition table for the transaction's kind and current state.
	ErrIllegalTransition = errors.New("sales: illegal status transition")
	// ErrTransactionNotFound indicates an unknown purchase transaction.
	ErrTransactionNotFound = errors.New("sales: transaction not found")
	// ErrShipmentNotAssignable indicates AWB assignment in a state that has
	// no shipment.
	ErrShipmentNotAssignable = errors.New("sales: shipment not assignable in current status")
)
