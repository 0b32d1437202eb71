// internal/circulation/errors.go
package circulation

import "fmt"

// PatronHasRequestOnDocumentError signals a pending request by the same
// patron on the same document.
type PatronHasRequestOnDocumentError struct {
	PatronPID   string
	DocumentPID string
}

func (e *PatronHasRequestOnDocumentError) Error() string {
	return fmt.Sprintf("patron %s already has a request on document %s", e.PatronPID, e.DocumentPID)
}

// PatronHasLoanOnDocumentError signals an active loan by the same patron
// on the same document.
type PatronHasLoanOnDocumentError struct {
	PatronPID   string
	DocumentPID string
}

func (e *PatronHasLoanOnDocumentError) Error() string {
	return fmt.Sprintf("patron %s already has a loan on document %s", e.PatronPID, e.DocumentPID)
}

// PatronHasLoanOnItemError signals an active loan by the same patron on
// the same item.
type PatronHasLoanOnItemError struct {
	PatronPID string
	ItemPID   string
}

func (e *PatronHasLoanOnItemError) Error() string {
	return fmt.Sprintf("patron %s already has a loan on item %s", e.PatronPID, e.ItemPID)
}

// ItemNotFoundError signals that no item matched the given barcode.
type ItemNotFoundError struct {
	Barcode string
}

func (e *ItemNotFoundError) Error() string {
	return fmt.Sprintf("item with barcode %s not found", e.Barcode)
}

// MultipleItemsBarcodeFoundError signals more than one item matching a
// barcode that must be unique.
type MultipleItemsBarcodeFoundError struct {
	Barcode string
}

func (e *MultipleItemsBarcodeFoundError) Error() string {
	return fmt.Sprintf("multiple items found with barcode %s", e.Barcode)
}

// ItemCannotCirculateError signals an item whose status forbids loans.
type ItemCannotCirculateError struct {
	ItemPID string
	Status  string
}

func (e *ItemCannotCirculateError) Error() string {
	return fmt.Sprintf("item %s cannot circulate (status %s)", e.ItemPID, e.Status)
}

// ItemHasActiveLoanError signals an item already attached to an active
// loan, carrying the conflicting loan PID.
type ItemHasActiveLoanError struct {
	ItemPID string
	LoanPID string
}

func (e *ItemHasActiveLoanError) Error() string {
	return fmt.Sprintf("item %s has an active loan %s", e.ItemPID, e.LoanPID)
}

// DocumentOverbookedError blocks self-checkout of items whose document
// has more outstanding demand than loanable copies.
type DocumentOverbookedError struct {
	DocumentPID string
}

func (e *DocumentOverbookedError) Error() string {
	return fmt.Sprintf("cannot self-checkout the overbooked document %s", e.DocumentPID)
}

// MissingRequiredParameterError signals an absent or invalid required
// parameter, such as a delivery method outside the configured whitelist.
type MissingRequiredParameterError struct {
	Description string
}

func (e *MissingRequiredParameterError) Error() string {
	return e.Description
}

// InvalidParameterError signals a parameter that fails a validation rule
// (future start date, negative date range).
type InvalidParameterError struct {
	Description string
}

func (e *InvalidParameterError) Error() string {
	return e.Description
}

// InvalidDateEditError signals a date mutation that is illegal for the
// loan's current lifecycle phase.
type InvalidDateEditError struct {
	LoanPID     string
	Description string
}

func (e *InvalidDateEditError) Error() string {
	return fmt.Sprintf("loan %s: %s", e.LoanPID, e.Description)
}

// TransitionError is a business-rule rejection reported by the transition
// engine: a missing (state, trigger) pair or a failed guard. Bulk
// extension catches this class per loan; everything else surfaces it.
type TransitionError struct {
	LoanPID string
	State   string
	Trigger string
	Reason  string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("transition %q rejected for loan %s in state %s: %s", e.Trigger, e.LoanPID, e.State, e.Reason)
}
