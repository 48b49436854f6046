package checkout

import (
	"errors"
	"time"

	"github.com/amitprasad2007/varanasisaree-sub002/internal/shared"
)

// TenderMethod enumerates accepted payment methods.
type TenderMethod string

const (
	TenderCash        TenderMethod = "CASH"
	TenderCard        TenderMethod = "CARD"
	TenderUPI         TenderMethod = "UPI"
	TenderBank        TenderMethod = "BANK"
	TenderStoreCredit TenderMethod = "STORE_CREDIT"
)

// Valid reports whether the method is accepted at checkout.
func (m TenderMethod) Valid() bool {
	switch m {
	case TenderCash, TenderCard, TenderUPI, TenderBank, TenderStoreCredit:
		return true
	}
	return false
}

// Tender is one payment in the order the customer presented it. Order
// matters: store credit is drained when its turn comes, not before.
type Tender struct {
	Method TenderMethod
	Amount shared.Money
}

// CartLine requests a quantity of one stock unit.
type CartLine struct {
	UnitID int64
	Qty    int64
}

// PaymentRecord is one settled tender. Immutable once written; the sum of
// a transaction's records always equals its paid total.
type PaymentRecord struct {
	ID            int64
	TransactionID int64
	Method        TenderMethod
	Amount        shared.Money
	At            time.Time
}

var (
	// ErrEmptyCart indicates a checkout without lines.
	ErrEmptyCart = errors.New("checkout: cart is empty")
	// ErrNoTenders indicates a checkout without payments.
	ErrNoTenders = errors.New("checkout: at least one tender required")
	// ErrInvalidTender indicates an unknown method or non-positive amount.
	ErrInvalidTender = errors.New("checkout: invalid tender")
	// ErrPaymentShortfall indicates the tendered total does not cover the
	// cart. Nothing is committed, including store-credit consumption.
	ErrPaymentShortfall = errors.New("checkout: tendered amount does not cover total")
	// ErrOverpayment indicates the tendered total exceeds the cart.
	ErrOverpayment = errors.New("checkout: tendered amount exceeds total")
	// ErrCustomerRequired indicates a store-credit tender without an
	// identified customer.
	ErrCustomerRequired = errors.New("checkout: customer required for store credit")
	// ErrInvalidQuantity indicates a non-positive line quantity.
	ErrInvalidQuantity = errors.New("checkout: quantity must be positive")
)
