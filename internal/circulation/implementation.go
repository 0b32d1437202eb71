// internal/circulation/implementation.go
package circulation

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"circulib/internal/config"
)

const loanPIDKind = "loan"

// service implements the Service interface. It orchestrates the loan
// lifecycle: precondition checks against the read model, then a trigger
// on the transition engine that produces the new loan state.
type service struct {
	cfg         *config.Config
	store       RecordStore
	search      SearchIndex
	indexer     Indexer
	engine      Engine
	pids        PIDAllocator
	conflicts   *ConflictDetector
	eligibility *EligibilityChecker
	dates       *DateEditor
	bulk        *BulkExtender
}

// NewService creates a new circulation service instance.
func NewService(
	cfg *config.Config,
	store RecordStore,
	search SearchIndex,
	indexer Indexer,
	engine Engine,
	pids PIDAllocator,
	notifier NotificationSender,
) Service {
	return &service{
		cfg:         cfg,
		store:       store,
		search:      search,
		indexer:     indexer,
		engine:      engine,
		pids:        pids,
		conflicts:   NewConflictDetector(search, cfg),
		eligibility: NewEligibilityChecker(store, indexer, cfg),
		dates:       NewDateEditor(store, indexer, notifier, cfg),
		bulk:        NewBulkExtender(store, search, engine),
	}
}

// RequestLoan creates a new loan and triggers its first transition into
// the REQUEST category. The conflict check reads an eventually-consistent
// index: two near-simultaneous requests can both pass it. Accepted race,
// see the read-model notes in ports.go.
func (s *service) RequestLoan(ctx context.Context, p RequestLoanParams) (string, *Loan, error) {
	hit, category, err := s.conflicts.FindConflict(ctx, p.PatronPID, p.DocumentPID)
	if err != nil {
		return "", nil, err
	}
	if hit != nil {
		if category == ConflictRequest {
			return "", nil, &PatronHasRequestOnDocumentError{PatronPID: p.PatronPID, DocumentPID: p.DocumentPID}
		}
		return "", nil, &PatronHasLoanOnDocumentError{PatronPID: p.PatronPID, DocumentPID: p.DocumentPID}
	}

	if err := s.validateDelivery(p.Delivery); err != nil {
		return "", nil, err
	}

	loan, err := s.newLoan(ctx, p.PatronPID, p.TransactionLocationPID, p.TransactionUserPID, p.Delivery)
	if err != nil {
		return "", nil, err
	}

	result, err := s.engine.Trigger(ctx, loan, TriggerRequest, TriggerContext{
		DocumentPID: p.DocumentPID,
		Extra:       p.Extra,
	})
	if err != nil {
		return "", nil, err
	}
	return loan.PID, result, nil
}

// CheckoutLoan checks an item out to a patron, reusing the patron's
// pending request on the item's document when one exists. With force set,
// the item status is reset to CAN_CIRCULATE first; that reset commits
// independently of the loan transaction, so a crash in between leaves the
// item circulable with no loan attached.
func (s *service) CheckoutLoan(ctx context.Context, p CheckoutParams) (string, *Loan, error) {
	hasLoan, err := s.conflicts.HasActiveLoan(ctx, p.PatronPID, p.ItemPID)
	if err != nil {
		return "", nil, err
	}
	if hasLoan {
		return "", nil, &PatronHasLoanOnItemError{PatronPID: p.PatronPID, ItemPID: p.ItemPID}
	}

	if p.Delivery != nil {
		if err := s.validateDelivery(p.Delivery); err != nil {
			return "", nil, err
		}
	}

	if p.Force {
		if err := setItemCanCirculate(ctx, s.store, s.indexer, p.ItemPID); err != nil {
			return "", nil, fmt.Errorf("failed to force item %s to circulate: %w", p.ItemPID, err)
		}
	}

	item, err := s.store.GetItem(ctx, p.ItemPID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get item %s: %w", p.ItemPID, err)
	}

	return s.checkout(ctx, item, p.PatronPID, p.TransactionLocationPID, p.TransactionUserPID, TriggerCheckout, p.Delivery, p.Extra)
}

// SelfCheckout performs an unattended checkout: the item must pass the
// eligibility rules, and delivery is always SELF-CHECKOUT.
func (s *service) SelfCheckout(ctx context.Context, p SelfCheckoutParams) (string, *Loan, error) {
	item, err := s.store.GetItem(ctx, p.ItemPID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get item %s: %w", p.ItemPID, err)
	}
	item, err = s.eligibility.EnsureEligible(ctx, item)
	if err != nil {
		return "", nil, err
	}

	delivery := &Delivery{Method: DeliveryMethodSelfCheckout}
	return s.checkout(ctx, item, p.PatronPID, p.TransactionLocationPID, p.TransactionUserPID, TriggerSelfCheckout, delivery, p.Extra)
}

// checkout is the shared reuse-or-create flow behind CheckoutLoan and
// SelfCheckout.
func (s *service) checkout(ctx context.Context, item *Item, patronPID, locationPID, userPID, trigger string, delivery *Delivery, extra map[string]interface{}) (string, *Loan, error) {
	var loan *Loan

	hits, err := s.search.FindLoans(ctx, LoanQuery{
		PatronPID:   patronPID,
		DocumentPID: item.DocumentPID,
		States:      s.cfg.RequestStates,
	})
	if err != nil {
		return "", nil, fmt.Errorf("failed to search requests for patron %s on document %s: %w", patronPID, item.DocumentPID, err)
	}

	if len(hits) > 0 {
		// Reuse the pending request instead of creating a second loan
		// row; only its transaction fields change.
		loan, err = s.store.GetLoan(ctx, hits[0].PID)
		if err != nil {
			return "", nil, fmt.Errorf("failed to get loan %s: %w", hits[0].PID, err)
		}
		loan.TransactionLocationPID = locationPID
		loan.TransactionUserPID = userPID
		if delivery != nil {
			loan.Delivery = delivery
		}
	} else {
		loan, err = s.newLoan(ctx, patronPID, locationPID, userPID, delivery)
		if err != nil {
			return "", nil, err
		}
	}

	result, err := s.engine.Trigger(ctx, loan, trigger, TriggerContext{
		ItemPID: item.PID,
		Extra:   extra,
	})
	if err != nil {
		return "", nil, err
	}
	return loan.PID, result, nil
}

// ResolveItemByBarcode looks up exactly one item by barcode and runs the
// self-checkout eligibility rules on it.
func (s *service) ResolveItemByBarcode(ctx context.Context, barcode string) (string, *Item, error) {
	hits, err := s.search.FindItemsByBarcode(ctx, barcode)
	if err != nil {
		return "", nil, fmt.Errorf("failed to search items by barcode %s: %w", barcode, err)
	}
	if len(hits) == 0 {
		return "", nil, &ItemNotFoundError{Barcode: barcode}
	}
	if len(hits) > 1 {
		return "", nil, &MultipleItemsBarcodeFoundError{Barcode: barcode}
	}

	item, err := s.store.GetItem(ctx, hits[0].PID)
	if err != nil {
		return "", nil, fmt.Errorf("failed to get item %s: %w", hits[0].PID, err)
	}
	item, err = s.eligibility.EnsureEligible(ctx, item)
	if err != nil {
		return "", nil, err
	}
	return item.PID, item, nil
}

// ExtendAll extends every expiring or overdue loan of the patron with
// per-loan failure isolation.
func (s *service) ExtendAll(ctx context.Context, patronPID string) ([]*Loan, []*Loan, error) {
	return s.bulk.ExtendAll(ctx, patronPID)
}

// UpdateDates edits the dates of a loan according to its lifecycle phase.
func (s *service) UpdateDates(ctx context.Context, loanPID string, upd DateUpdate) (*Loan, error) {
	loan, err := s.store.GetLoan(ctx, loanPID)
	if err != nil {
		return nil, fmt.Errorf("failed to get loan %s: %w", loanPID, err)
	}
	return s.dates.UpdateDates(ctx, loan, upd)
}

// newLoan mints a PID and persists a fresh loan carrying only its
// transaction fields; the first trigger fills in the rest.
func (s *service) newLoan(ctx context.Context, patronPID, locationPID, userPID string, delivery *Delivery) (*Loan, error) {
	recordID := uuid.New()
	pid, err := s.pids.Mint(ctx, recordID, loanPIDKind)
	if err != nil {
		return nil, fmt.Errorf("failed to mint loan pid: %w", err)
	}
	loan := &Loan{
		ID:                     recordID,
		PID:                    pid,
		PatronPID:              patronPID,
		TransactionLocationPID: locationPID,
		TransactionUserPID:     userPID,
		State:                  LoanStateCreated,
		Delivery:               delivery,
	}
	if err := s.store.CreateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to create loan %s: %w", pid, err)
	}
	return loan, nil
}

// validateDelivery enforces the configured delivery-method whitelist.
// With no methods configured, anything goes.
func (s *service) validateDelivery(delivery *Delivery) error {
	if len(s.cfg.DeliveryMethods) == 0 {
		return nil
	}
	if delivery == nil {
		return &MissingRequiredParameterError{Description: "a valid 'delivery' is required on loan request"}
	}
	if _, ok := s.cfg.DeliveryMethods[delivery.Method]; !ok {
		return &MissingRequiredParameterError{Description: "a valid 'delivery' is required on loan request"}
	}
	return nil
}
