// internal/transitions/engine.go
package transitions

import (
	"context"
	"fmt"
	"log"
	"time"

	"circulib/internal/circulation"
	"circulib/internal/config"
)

// Loan states owned by the engine. CREATED exists only in memory before
// the first trigger.
const (
	StatePending      = "PENDING"
	StateItemOnLoan   = "ITEM_ON_LOAN"
	StateItemReturned = "ITEM_RETURNED"
	StateCancelled    = "CANCELLED"
)

// TransitionRecorder appends an audit entry for every applied transition.
type TransitionRecorder interface {
	RecordTransition(ctx context.Context, loanPID, trigger, fromState, toState string) error
}

type transitionKey struct {
	state   string
	trigger string
}

type transitionFunc func(ctx context.Context, loan *circulation.Loan, tc circulation.TriggerContext) error

// Engine enforces the legal loan state graph: a table keyed by
// (state, trigger) maps to a transition with its guards. Unknown pairs
// and failed guards reject with *circulation.TransitionError.
type Engine struct {
	store    circulation.RecordStore
	indexer  circulation.Indexer
	notifier circulation.NotificationSender
	audit    TransitionRecorder
	cfg      *config.Config
	now      func() time.Time
	table    map[transitionKey]transitionFunc
}

// NewEngine creates the transition engine. audit may be nil.
func NewEngine(
	store circulation.RecordStore,
	indexer circulation.Indexer,
	notifier circulation.NotificationSender,
	audit TransitionRecorder,
	cfg *config.Config,
) *Engine {
	e := &Engine{
		store:    store,
		indexer:  indexer,
		notifier: notifier,
		audit:    audit,
		cfg:      cfg,
		now:      time.Now,
	}
	e.table = map[transitionKey]transitionFunc{
		{circulation.LoanStateCreated, circulation.TriggerRequest}:      e.request,
		{circulation.LoanStateCreated, circulation.TriggerCheckout}:     e.checkout,
		{circulation.LoanStateCreated, circulation.TriggerSelfCheckout}: e.checkout,
		{StatePending, circulation.TriggerCheckout}:                     e.checkout,
		{StatePending, circulation.TriggerSelfCheckout}:                 e.checkout,
		{StatePending, circulation.TriggerCancel}:                       e.cancel,
		{StateItemOnLoan, circulation.TriggerExtend}:                    e.extend,
		{StateItemOnLoan, circulation.TriggerCheckin}:                   e.checkin,
	}
	return e
}

// Trigger applies the named transition to the loan, persists the result
// and re-indexes it. The loan is mutated in place and also returned.
func (e *Engine) Trigger(ctx context.Context, loan *circulation.Loan, trigger string, tc circulation.TriggerContext) (*circulation.Loan, error) {
	fn, ok := e.table[transitionKey{state: loan.State, trigger: trigger}]
	if !ok {
		return nil, &circulation.TransitionError{
			LoanPID: loan.PID,
			State:   loan.State,
			Trigger: trigger,
			Reason:  "no such transition from the current state",
		}
	}

	fromState := loan.State
	if err := fn(ctx, loan, tc); err != nil {
		return nil, err
	}

	if err := e.store.UpdateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to persist loan %s after %s: %w", loan.PID, trigger, err)
	}
	if err := e.indexer.IndexLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to index loan %s after %s: %w", loan.PID, trigger, err)
	}

	if e.audit != nil {
		if err := e.audit.RecordTransition(ctx, loan.PID, trigger, fromState, loan.State); err != nil {
			log.Printf("failed to record transition %s for loan %s: %v", trigger, loan.PID, err)
		}
	}

	return loan, nil
}

// request moves a fresh loan into PENDING and stamps its request window.
func (e *Engine) request(_ context.Context, loan *circulation.Loan, tc circulation.TriggerContext) error {
	if tc.DocumentPID == "" {
		return &circulation.TransitionError{
			LoanPID: loan.PID,
			State:   loan.State,
			Trigger: circulation.TriggerRequest,
			Reason:  "a document is required to request a loan",
		}
	}
	loan.DocumentPID = tc.DocumentPID

	start := dateOnly(e.now())
	expire := start.Add(e.cfg.RequestExpireAfter)
	loan.RequestStartDate = &start
	loan.RequestExpireDate = &expire
	loan.State = StatePending
	return nil
}

// checkout moves a loan onto an item. Guards: the item must be able to
// circulate and must not already carry an active loan. On success the
// item's embedded circulation sub-state points back at this loan.
func (e *Engine) checkout(ctx context.Context, loan *circulation.Loan, tc circulation.TriggerContext) error {
	if tc.ItemPID == "" {
		return &circulation.TransitionError{
			LoanPID: loan.PID,
			State:   loan.State,
			Trigger: circulation.TriggerCheckout,
			Reason:  "an item is required to checkout a loan",
		}
	}

	item, err := e.store.GetItem(ctx, tc.ItemPID)
	if err != nil {
		return fmt.Errorf("failed to get item %s: %w", tc.ItemPID, err)
	}
	if item.Status != circulation.ItemStatusCanCirculate {
		return &circulation.TransitionError{
			LoanPID: loan.PID,
			State:   loan.State,
			Trigger: circulation.TriggerCheckout,
			Reason:  fmt.Sprintf("item %s cannot circulate (status %s)", item.PID, item.Status),
		}
	}
	if item.Circulation.State != "" && e.cfg.IsActiveState(item.Circulation.State) && item.Circulation.LoanPID != loan.PID {
		return &circulation.TransitionError{
			LoanPID: loan.PID,
			State:   loan.State,
			Trigger: circulation.TriggerCheckout,
			Reason:  fmt.Sprintf("item %s is already on loan %s", item.PID, item.Circulation.LoanPID),
		}
	}

	loan.ItemPID = item.PID
	loan.DocumentPID = item.DocumentPID

	start := dateOnly(e.now())
	end := start.Add(circulation.LoanDurationForItem(item))
	loan.StartDate = &start
	loan.EndDate = &end
	loan.State = StateItemOnLoan

	item.Circulation = circulation.ItemCirculation{State: StateItemOnLoan, LoanPID: loan.PID}
	if err := e.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to update item %s: %w", item.PID, err)
	}
	if err := e.indexer.IndexItem(ctx, item); err != nil {
		return fmt.Errorf("failed to index item %s: %w", item.PID, err)
	}
	return nil
}

// extend pushes the due date out by one loan duration. Guard: the
// configured extension limit.
func (e *Engine) extend(ctx context.Context, loan *circulation.Loan, tc circulation.TriggerContext) error {
	if loan.ExtensionCount >= e.cfg.MaxExtensions {
		return &circulation.TransitionError{
			LoanPID: loan.PID,
			State:   loan.State,
			Trigger: circulation.TriggerExtend,
			Reason:  fmt.Sprintf("extension limit of %d reached", e.cfg.MaxExtensions),
		}
	}

	item, err := e.store.GetItem(ctx, loan.ItemPID)
	if err != nil {
		return fmt.Errorf("failed to get item %s: %w", loan.ItemPID, err)
	}
	if loan.EndDate == nil {
		return &circulation.TransitionError{
			LoanPID: loan.PID,
			State:   loan.State,
			Trigger: circulation.TriggerExtend,
			Reason:  "loan has no end date",
		}
	}

	end := loan.EndDate.Add(circulation.LoanDurationForItem(item))
	loan.EndDate = &end
	loan.ExtensionCount++

	if !tc.SuppressNotification {
		if err := e.notifier.SendLoanExtended(ctx, loan); err != nil {
			log.Printf("failed to send loan-extended notification for loan %s: %v", loan.PID, err)
		}
	}
	return nil
}

// checkin returns the item and completes the loan.
func (e *Engine) checkin(ctx context.Context, loan *circulation.Loan, _ circulation.TriggerContext) error {
	item, err := e.store.GetItem(ctx, loan.ItemPID)
	if err != nil {
		return fmt.Errorf("failed to get item %s: %w", loan.ItemPID, err)
	}

	end := dateOnly(e.now())
	loan.EndDate = &end
	loan.State = StateItemReturned

	item.Circulation = circulation.ItemCirculation{}
	if err := e.store.UpdateItem(ctx, item); err != nil {
		return fmt.Errorf("failed to update item %s: %w", item.PID, err)
	}
	if err := e.indexer.IndexItem(ctx, item); err != nil {
		return fmt.Errorf("failed to index item %s: %w", item.PID, err)
	}
	return nil
}

// cancel drops a pending request.
func (e *Engine) cancel(_ context.Context, loan *circulation.Loan, _ circulation.TriggerContext) error {
	loan.State = StateCancelled
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
