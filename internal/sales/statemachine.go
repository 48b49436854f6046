package sales

import (
	"fmt"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/inventory"
)

// Hook names the inventory side effect a transition carries. Keeping the
// coupling in the table makes the status/stock contract exhaustively
// testable instead of scattered across call sites.
type Hook string

const (
	// HookNone carries no inventory side effect.
	HookNone Hook = ""
	// HookReserve soft-holds stock for every line item.
	HookReserve Hook = "RESERVE"
	// HookRelease lifts the soft hold for every line item.
	HookRelease Hook = "RELEASE"
	// HookDeduct decrements physical stock for every line item.
	HookDeduct Hook = "DEDUCT"
)

// Movement maps the hook onto the stock ledger operation.
func (h Hook) Movement() (inventory.MovementType, bool) {
	switch h {
	case HookReserve:
		return inventory.MovementReserve, true
	case HookRelease:
		return inventory.MovementRelease, true
	case HookDeduct:
		return inventory.MovementDeduct, true
	}
	return "", false
}

type transitionKey struct {
	kind Kind
	from Status
	to   Status
}

// The closed transition table. Anything absent is illegal.
var transitions = map[transitionKey]Hook{
	// Order flow.
	{KindOrder, StatusPending, StatusProcessing}:   HookReserve,
	{KindOrder, StatusProcessing, StatusShipped}:   HookNone,
	{KindOrder, StatusShipped, StatusDelivered}:    HookNone,
	{KindOrder, StatusPending, StatusCancelled}:    HookRelease,
	{KindOrder, StatusProcessing, StatusCancelled}: HookRelease,
	{KindOrder, StatusDelivered, StatusReturned}:   HookNone,

	// POS sale flow. Deduction is immediate and final at completion;
	// there is no reservation phase at the counter.
	{KindSale, StatusDraft, StatusCompleted}:    HookDeduct,
	{KindSale, StatusCompleted, StatusReturned}: HookNone,
}

// Plan resolves the side-effect hook for a transition, or fails with
// ErrIllegalTransition without touching any state.
func Plan(kind Kind, from, to Status) (Hook, error) {
	hook, ok := transitions[transitionKey{kind: kind, from: from, to: to}]
	if !ok {
		return HookNone, fmt.Errorf("%w: %s %s -> %s", ErrIllegalTransition, kind, from, to)
	}
	return hook, nil
}

// InitialStatus is the state a freshly created transaction starts in.
func InitialStatus(kind Kind) Status {
	if kind == KindSale {
		return StatusDraft
	}
	return StatusPending
}
