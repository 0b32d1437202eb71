// internal/circulation/dates.go
package circulation

import (
	"context"
	"fmt"
	"log"
	"time"

	"circulib/internal/config"
)

// DateEditor mutates a loan's temporal fields according to its current
// lifecycle phase. Request dates are editable only before checkout;
// start/end dates only once checked out or completed.
type DateEditor struct {
	store    RecordStore
	indexer  Indexer
	notifier NotificationSender
	cfg      *config.Config
	now      func() time.Time
}

func NewDateEditor(store RecordStore, indexer Indexer, notifier NotificationSender, cfg *config.Config) *DateEditor {
	return &DateEditor{
		store:    store,
		indexer:  indexer,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

// UpdateDates applies the given date changes to the loan, enforcing the
// phase and ordering rules, then persists and re-indexes it. A strictly
// ACTIVE loan additionally gets a dates-updated notification; completed
// loans do not.
func (e *DateEditor) UpdateDates(ctx context.Context, loan *Loan, upd DateUpdate) (*Loan, error) {
	isActive := e.cfg.IsActiveState(loan.State)
	isCompleted := e.cfg.IsCompletedState(loan.State)

	if isActive || isCompleted {
		if err := e.applyLoanDates(loan, upd); err != nil {
			return nil, err
		}
	} else { // pending or cancelled
		if err := e.applyRequestDates(loan, upd); err != nil {
			return nil, err
		}
	}

	if err := e.store.UpdateLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to persist loan %s: %w", loan.PID, err)
	}
	if err := e.indexer.IndexLoan(ctx, loan); err != nil {
		return nil, fmt.Errorf("failed to index loan %s: %w", loan.PID, err)
	}

	if isActive {
		if err := e.notifier.SendDatesUpdated(ctx, loan); err != nil {
			log.Printf("failed to send dates-updated notification for loan %s: %v", loan.PID, err)
		}
	}

	return loan, nil
}

func (e *DateEditor) applyLoanDates(loan *Loan, upd DateUpdate) error {
	if upd.RequestStartDate != nil || upd.RequestExpireDate != nil {
		return &InvalidDateEditError{
			LoanPID:     loan.PID,
			Description: "cannot modify request dates of an active or completed loan",
		}
	}
	if upd.StartDate != nil {
		// The future check applies to completed loans too; intentional,
		// matching the product rule for the whole category.
		today := dateOnly(e.now())
		if dateOnly(*upd.StartDate).After(today) {
			return &InvalidParameterError{Description: "start date cannot be in the future for active loans"}
		}
		loan.StartDate = upd.StartDate
	}
	if upd.EndDate != nil {
		loan.EndDate = upd.EndDate
	}
	if loan.StartDate != nil && loan.EndDate != nil && dateOnly(*loan.EndDate).Before(dateOnly(*loan.StartDate)) {
		return &InvalidParameterError{Description: "negative date range"}
	}
	return nil
}

func (e *DateEditor) applyRequestDates(loan *Loan, upd DateUpdate) error {
	if upd.StartDate != nil || upd.EndDate != nil {
		return &InvalidDateEditError{
			LoanPID:     loan.PID,
			Description: "cannot modify dates of a pending or cancelled loan",
		}
	}
	if upd.RequestStartDate != nil {
		loan.RequestStartDate = upd.RequestStartDate
	}
	if upd.RequestExpireDate != nil {
		loan.RequestExpireDate = upd.RequestExpireDate
	}
	if loan.RequestStartDate != nil && loan.RequestExpireDate != nil &&
		dateOnly(*loan.RequestExpireDate).Before(dateOnly(*loan.RequestStartDate)) {
		return &InvalidParameterError{Description: "negative date range"}
	}
	return nil
}

// dateOnly truncates a timestamp to its calendar date. Loan dates have
// day granularity.
func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
