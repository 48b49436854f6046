package refunds

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Method enumerates refund settlement methods.
type Method string

const (
	MethodStoreCredit  Method = "STORE_CREDIT"
	MethodBankTransfer Method = "BANK_TRANSFER"
	MethodGateway      Method = "EXTERNAL_GATEWAY"
	MethodManual       Method = "MANUAL"
)

// Valid reports whether the method is one of the supported settlements.
func (m Method) Valid() bool {
	switch m {
	case MethodStoreCredit, MethodBankTransfer, MethodGateway, MethodManual:
		return true
	}
	return false
}

// Status enumerates the refund approval workflow states.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusApproved   Status = "APPROVED"
	StatusProcessing Status = "PROCESSING"
	StatusCompleted  Status = "COMPLETED"
	StatusRejected   Status = "REJECTED"
	StatusCancelled  Status = "CANCELLED"
)

// ApprovalLevel is the approver a request waits for, derived from amount
// thresholds at creation time.
type ApprovalLevel string

const (
	LevelAuto   ApprovalLevel = "AUTO"
	LevelVendor ApprovalLevel = "VENDOR"
	LevelAdmin  ApprovalLevel = "ADMIN"
)

// RefundRequest tracks money promised back to a customer. Mutated only by
// the workflow engine; timestamps form an append-only audit trail.
type RefundRequest struct {
	ID            uuid.UUID
	TransactionID int64
	ReturnID      *uuid.UUID
	CustomerID    int64
	Amount        shared.Money
	Method        Method
	Reason        string
	Status        Status
	RequiredLevel ApprovalLevel
	Notes         string
	CreditNoteID  *uuid.UUID
	ProviderRef   *string
	RequestedAt   time.Time
	ApprovedAt    *time.Time
	ProcessedAt   *time.Time
	CompletedAt   *time.Time
	RejectedAt    *time.Time
}

var (
	// ErrInvalidStatus indicates a workflow action not permitted from the
	// request's current status.
	ErrInvalidStatus = errors.New("refunds: action not permitted in current status")
	// ErrReasonRequired indicates a rejection without a reason.
	ErrReasonRequired = errors.New("refunds: rejection reason required")
	// ErrInvalidAmount indicates a non-positive refund amount.
	ErrInvalidAmount = errors.New("refunds: amount must be positive")
	// ErrExceedsRefundable indicates the amount is larger than what the
	// source transaction can still refund.
	ErrExceedsRefundable = errors.New("refunds: amount exceeds refundable balance")
	// ErrRequestNotFound indicates an unknown refund request.
	ErrRequestNotFound = errors.New("refunds: request not found")
	// ErrCustomerRequired indicates a request without an identified customer.
	ErrCustomerRequired = errors.New("refunds: customer required")
	// ErrProcessorFailed indicates the external gateway call failed; the
	// request stays in processing so the promised money is never lost.
	ErrProcessorFailed = errors.New("refunds: external processor failed")
)

// Thresholds configures the approval policy.
type Thresholds struct {
	AutoApprovalLimit shared.Money
	VendorThreshold   shared.Money
	AdminThreshold    shared.Money
}

// LevelFor resolves the approver a given amount needs. Amounts at or under
// the auto limit are approved without review, amounts up to the vendor
// threshold need a vendor, anything above needs an administrator.
func (t Thresholds) LevelFor(amount shared.Money) ApprovalLevel {
	switch {
	case amount <= t.AutoApprovalLimit:
		return LevelAuto
	case t.VendorThreshold > 0 && amount > t.VendorThreshold:
		return LevelAdmin
	case t.AdminThreshold > 0 && amount > t.AdminThreshold:
		return LevelAdmin
	default:
		return LevelVendor
	}
}

// canTransition is the closed workflow table.
func canTransition(from, to Status) bool {
	switch from {
	case StatusPending:
		return to == StatusApproved || to == StatusRejected || to == StatusCancelled
	case StatusApproved:
		return to == StatusProcessing || to == StatusCompleted || to == StatusRejected
	case StatusProcessing:
		return to == StatusCompleted
	}
	return false
}
