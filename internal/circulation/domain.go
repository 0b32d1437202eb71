// internal/circulation/domain.go
package circulation

import (
	"time"

	"github.com/google/uuid"
)

// Item statuses. Only CAN_CIRCULATE items are loanable; the rest block
// checkout unless a librarian forces it.
const (
	ItemStatusCanCirculate     = "CAN_CIRCULATE"
	ItemStatusMissing          = "MISSING"
	ItemStatusInBinding        = "IN_BINDING"
	ItemStatusForReferenceOnly = "FOR_REFERENCE_ONLY"
)

// Circulation restrictions mapped to loan durations by LoanDurationForItem.
const (
	RestrictionNone       = "NO_RESTRICTION"
	RestrictionOneWeek    = "ONE_WEEK"
	RestrictionTwoWeeks   = "TWO_WEEKS"
	RestrictionThreeWeeks = "THREE_WEEKS"
)

// DeliveryMethodSelfCheckout is forced on every self-checkout loan.
const DeliveryMethodSelfCheckout = "SELF-CHECKOUT"

// Delivery describes how a requested item reaches the patron.
type Delivery struct {
	Method string            `json:"method"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// Loan is the record of one patron borrowing one item. It is created by
// the lifecycle manager and mutated only through the transition engine or
// the date editor; terminal loans are retained, never deleted.
type Loan struct {
	ID                     uuid.UUID  `json:"id" db:"id"`
	PID                    string     `json:"pid" db:"pid"`
	PatronPID              string     `json:"patron_pid" db:"patron_pid"`
	ItemPID                string     `json:"item_pid,omitempty" db:"item_pid"`
	DocumentPID            string     `json:"document_pid,omitempty" db:"document_pid"`
	TransactionLocationPID string     `json:"transaction_location_pid" db:"transaction_location_pid"`
	TransactionUserPID     string     `json:"transaction_user_pid" db:"transaction_user_pid"`
	State                  string     `json:"state" db:"state"`
	StartDate              *time.Time `json:"start_date,omitempty" db:"start_date"`
	EndDate                *time.Time `json:"end_date,omitempty" db:"end_date"`
	RequestStartDate       *time.Time `json:"request_start_date,omitempty" db:"request_start_date"`
	RequestExpireDate      *time.Time `json:"request_expire_date,omitempty" db:"request_expire_date"`
	Delivery               *Delivery  `json:"delivery,omitempty" db:"-"`
	ExtensionCount         int        `json:"extension_count" db:"extension_count"`
}

// Copy returns a deep copy of the loan. Transitions mutate the copy they
// are handed, so callers that may retry must work on copies.
func (l *Loan) Copy() *Loan {
	c := *l
	if l.Delivery != nil {
		d := *l.Delivery
		if l.Delivery.Extra != nil {
			d.Extra = make(map[string]string, len(l.Delivery.Extra))
			for k, v := range l.Delivery.Extra {
				d.Extra[k] = v
			}
		}
		c.Delivery = &d
	}
	c.StartDate = copyDate(l.StartDate)
	c.EndDate = copyDate(l.EndDate)
	c.RequestStartDate = copyDate(l.RequestStartDate)
	c.RequestExpireDate = copyDate(l.RequestExpireDate)
	return &c
}

func copyDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := *t
	return &d
}

// ItemCirculation is the circulation sub-state embedded in an item: the
// state of the loan currently attached to it, if any.
type ItemCirculation struct {
	State   string `json:"state,omitempty"`
	LoanPID string `json:"loan_pid,omitempty"`
}

// Item is a physical copy of a document.
type Item struct {
	ID                     uuid.UUID       `json:"id" db:"id"`
	PID                    string          `json:"pid" db:"pid"`
	Barcode                string          `json:"barcode" db:"barcode"`
	DocumentPID            string          `json:"document_pid" db:"document_pid"`
	Status                 string          `json:"status" db:"status"`
	CirculationRestriction string          `json:"circulation_restriction,omitempty" db:"circulation_restriction"`
	Circulation            ItemCirculation `json:"circulation"`
}

// DocumentCirculation aggregates circulation figures for a document.
// Overbooked means more pending requests than loanable items.
type DocumentCirculation struct {
	Overbooked      bool `json:"overbooked"`
	ActiveLoans     int  `json:"active_loans"`
	PendingRequests int  `json:"pending_requests"`
	LoanableItems   int  `json:"loanable_items"`
}

// Document is a catalog title. Read-only from this service's perspective.
type Document struct {
	ID          uuid.UUID           `json:"id" db:"id"`
	PID         string              `json:"pid" db:"pid"`
	Title       string              `json:"title" db:"title"`
	Circulation DocumentCirculation `json:"circulation"`
}

// LoanHit is a read-model search result. The index lags behind record
// commits, so hits carry only identifying fields; callers needing fresh
// data re-fetch by PID.
type LoanHit struct {
	PID         string `json:"pid"`
	State       string `json:"state"`
	PatronPID   string `json:"patron_pid"`
	ItemPID     string `json:"item_pid"`
	DocumentPID string `json:"document_pid"`
}
