// internal/circulation/bulk.go
package circulation

import (
	"context"
	"errors"
	"fmt"
)

// BulkExtender extends every eligible loan of a patron, isolating
// per-loan failures: one rejected extension never stops the rest.
type BulkExtender struct {
	store  RecordStore
	search SearchIndex
	engine Engine
}

func NewBulkExtender(store RecordStore, search SearchIndex, engine Engine) *BulkExtender {
	return &BulkExtender{store: store, search: search, engine: engine}
}

// ExtendAll fetches the patron's expiring or overdue loans and triggers
// an extension for each, sequentially. Loans the engine rejects (for
// example at the extension limit) are re-fetched clean and returned in
// notExtended; everything else lands in extended. Only transition
// rejections are isolated — infrastructure errors propagate.
func (b *BulkExtender) ExtendAll(ctx context.Context, patronPID string) (extended, notExtended []*Loan, err error) {
	hits, err := b.search.FindExpiringOrOverdueLoans(ctx, patronPID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to find expiring or overdue loans for patron %s: %w", patronPID, err)
	}

	for _, hit := range hits {
		loan, err := b.store.GetLoan(ctx, hit.PID)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get loan %s: %w", hit.PID, err)
		}

		result, err := b.engine.Trigger(ctx, loan, TriggerExtend, TriggerContext{
			ItemPID:              loan.ItemPID,
			SuppressNotification: true,
		})
		if err != nil {
			var te *TransitionError
			if !errors.As(err, &te) {
				return nil, nil, err
			}
			// The failed attempt may have mutated the in-memory loan;
			// discard it and re-fetch a clean copy.
			clean, err := b.store.GetLoan(ctx, hit.PID)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to re-fetch loan %s: %w", hit.PID, err)
			}
			notExtended = append(notExtended, clean)
			continue
		}
		extended = append(extended, result)
	}

	return extended, notExtended, nil
}
