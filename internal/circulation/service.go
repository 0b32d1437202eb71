// internal/circulation/service.go
package circulation

import (
	"context"
	"time"
)

// Trigger names understood by the transition engine.
const (
	TriggerRequest      = "request"
	TriggerCheckout     = "checkout"
	TriggerSelfCheckout = "self_checkout"
	TriggerExtend       = "extend"
	TriggerCheckin      = "checkin"
	TriggerCancel       = "cancel"
)

// LoanStateCreated is the in-memory state of a loan before its first
// transition. The engine owns every other state.
const LoanStateCreated = "CREATED"

// RequestLoanParams are the inputs for requesting a loan on a document.
type RequestLoanParams struct {
	DocumentPID            string
	PatronPID              string
	TransactionLocationPID string
	TransactionUserPID     string
	Delivery               *Delivery
	Extra                  map[string]interface{}
}

// CheckoutParams are the inputs for checking out an item. Force resets
// the item to CAN_CIRCULATE before the checkout, bypassing item-state
// checks; it is a librarian-only override.
type CheckoutParams struct {
	ItemPID                string
	PatronPID              string
	TransactionLocationPID string
	TransactionUserPID     string
	Force                  bool
	Delivery               *Delivery
	Extra                  map[string]interface{}
}

// SelfCheckoutParams are the inputs for an unattended checkout.
type SelfCheckoutParams struct {
	ItemPID                string
	PatronPID              string
	TransactionLocationPID string
	TransactionUserPID     string
	Extra                  map[string]interface{}
}

// DateUpdate holds the optional date fields of an update-dates call.
// Nil means "leave unchanged".
type DateUpdate struct {
	StartDate         *time.Time
	EndDate           *time.Time
	RequestStartDate  *time.Time
	RequestExpireDate *time.Time
}

// Service defines the interface for the circulation service.
type Service interface {
	RequestLoan(ctx context.Context, p RequestLoanParams) (string, *Loan, error)
	CheckoutLoan(ctx context.Context, p CheckoutParams) (string, *Loan, error)
	SelfCheckout(ctx context.Context, p SelfCheckoutParams) (string, *Loan, error)
	ResolveItemByBarcode(ctx context.Context, barcode string) (string, *Item, error)
	ExtendAll(ctx context.Context, patronPID string) (extended []*Loan, notExtended []*Loan, err error)
	UpdateDates(ctx context.Context, loanPID string, upd DateUpdate) (*Loan, error)
}
