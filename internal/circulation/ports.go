// internal/circulation/ports.go
package circulation

import (
	"context"

	"github.com/google/uuid"
)

// TriggerContext carries the extra data merged into a transition: the
// target document or item and any caller-supplied keyword data.
type TriggerContext struct {
	DocumentPID string
	ItemPID     string
	// SuppressNotification disables transition side-channel notifications,
	// used by bulk extension.
	SuppressNotification bool
	Extra                map[string]interface{}
}

// Engine is the external transition engine enforcing the legal loan state
// graph. Trigger returns the loan in its new state or a *TransitionError
// when the named transition's guard is not satisfied.
type Engine interface {
	Trigger(ctx context.Context, loan *Loan, trigger string, tc TriggerContext) (*Loan, error)
}

// PIDAllocator mints and resolves persistent identifiers for records.
type PIDAllocator interface {
	Mint(ctx context.Context, recordID uuid.UUID, kind string) (string, error)
	Resolve(ctx context.Context, kind, pid string) (uuid.UUID, error)
}

// RecordStore is the authoritative record persistence layer.
type RecordStore interface {
	GetLoan(ctx context.Context, pid string) (*Loan, error)
	CreateLoan(ctx context.Context, loan *Loan) error
	UpdateLoan(ctx context.Context, loan *Loan) error
	GetItem(ctx context.Context, pid string) (*Item, error)
	UpdateItem(ctx context.Context, item *Item) error
	GetDocument(ctx context.Context, pid string) (*Document, error)
}

// Indexer pushes committed records into the read model. Index writes are
// not transactional with record commits; the read model is eventually
// consistent.
type Indexer interface {
	IndexLoan(ctx context.Context, loan *Loan) error
	IndexItem(ctx context.Context, item *Item) error
}

// LoanQuery filters the loan read model. Empty fields are ignored.
type LoanQuery struct {
	PatronPID   string
	ItemPID     string
	DocumentPID string
	States      []string
}

// SearchIndex is the eventually-consistent read model. Two
// near-simultaneous writers can both observe stale results here; strict
// correctness would need a uniqueness constraint at the persistence
// layer, which is outside this core.
type SearchIndex interface {
	FindLoans(ctx context.Context, q LoanQuery) ([]LoanHit, error)
	FindItemsByBarcode(ctx context.Context, barcode string) ([]*Item, error)
	FindExpiringOrOverdueLoans(ctx context.Context, patronPID string) ([]LoanHit, error)
}

// NotificationSender delivers patron notifications. Callers treat sends
// as fire-and-forget and only log failures.
type NotificationSender interface {
	SendDatesUpdated(ctx context.Context, loan *Loan) error
	SendLoanExtended(ctx context.Context, loan *Loan) error
}
