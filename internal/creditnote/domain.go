package creditnote

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// Status enumerates credit note lifecycle states.
type Status string

const (
	// StatusActive means the note still carries balance.
	StatusActive Status = "ACTIVE"
	// StatusUsed means the balance reached zero through consumption.
	StatusUsed Status = "USED"
	// StatusExpired means the note aged out before full use.
	StatusExpired Status = "EXPIRED"
)

// CreditNote is a store-credit ledger entry redeemable against purchases.
// Remaining only ever decreases after issuance.
type CreditNote struct {
	ID         uuid.UUID
	CustomerID int64
	Amount     shared.Money
	Remaining  shared.Money
	Status     Status
	Reference  string
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Consumption records one partial application of a note, so a single
// redemption can be traced back to every note it drew from.
type Consumption struct {
	ID        int64
	NoteID    uuid.UUID
	Amount    shared.Money
	RefModule string
	RefID     string
	At        time.Time
}

var (
	// ErrInvalidAmount indicates a non-positive amount.
	ErrInvalidAmount = errors.New("creditnote: amount must be positive")
	// ErrCustomerRequired indicates issuance without a customer.
	ErrCustomerRequired = errors.New("creditnote: customer required")
	// ErrPartialUseDisabled indicates partial redemption is switched off and
	// the requested amount does not exhaust a note exactly.
	ErrPartialUseDisabled = errors.New("creditnote: partial use disabled")
)

// consumeFIFO greedily applies requested against notes ordered oldest-first,
// mutating Remaining/Status in place. Returns the per-note applications and
// the total actually applied, which may fall short of requested. Amounts are
// integer minor units, so a note flips to used exactly at zero.
func consumeFIFO(notes []*CreditNote, requested shared.Money) ([]Consumption, shared.Money) {
	var events []Consumption
	applied := shared.Money(0)
	remaining := requested
	for _, note := range notes {
		if remaining <= 0 {
			break
		}
		if note.Status != StatusActive || note.Remaining <= 0 {
			continue
		}
		take := note.Remaining
		if take > remaining {
			take = remaining
		}
		note.Remaining -= take
		if note.Remaining == 0 {
			note.Status = StatusUsed
		}
		events = append(events, Consumption{NoteID: note.ID, Amount: take})
		applied += take
		remaining -= take
	}
	return events, applied
}
