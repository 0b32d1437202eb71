// internal/circulation/selfcheckout.go
package circulation

import (
	"context"
	"fmt"

	"circulib/internal/config"
)

// EligibilityChecker implements the self-checkout rules: unattended
// checkouts get no librarian judgement, so the item and its document must
// pass stricter checks than a desk checkout.
type EligibilityChecker struct {
	store   RecordStore
	indexer Indexer
	cfg     *config.Config
}

func NewEligibilityChecker(store RecordStore, indexer Indexer, cfg *config.Config) *EligibilityChecker {
	return &EligibilityChecker{store: store, indexer: indexer, cfg: cfg}
}

// EnsureEligible returns the item if it may be loaned via self-checkout,
// or the error explaining why not. An item reported MISSING gets exactly
// one recovery attempt: the patron holding it at a station proves it is
// not missing, so it is reset to CAN_CIRCULATE and re-fetched. That heal
// is the only side effect.
func (c *EligibilityChecker) EnsureEligible(ctx context.Context, item *Item) (*Item, error) {
	if item.Status == ItemStatusMissing {
		if err := setItemCanCirculate(ctx, c.store, c.indexer, item.PID); err != nil {
			return nil, fmt.Errorf("failed to recover missing item %s: %w", item.PID, err)
		}
		refreshed, err := c.store.GetItem(ctx, item.PID)
		if err != nil {
			return nil, fmt.Errorf("failed to re-fetch item %s after recovery: %w", item.PID, err)
		}
		item = refreshed
	}

	if item.Status != ItemStatusCanCirculate {
		return nil, &ItemCannotCirculateError{ItemPID: item.PID, Status: item.Status}
	}

	if item.Circulation.State != "" && c.cfg.IsActiveState(item.Circulation.State) {
		return nil, &ItemHasActiveLoanError{ItemPID: item.PID, LoanPID: item.Circulation.LoanPID}
	}

	document, err := c.store.GetDocument(ctx, item.DocumentPID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s for item %s: %w", item.DocumentPID, item.PID, err)
	}
	if document.Circulation.Overbooked {
		return nil, &DocumentOverbookedError{DocumentPID: item.DocumentPID}
	}

	return item, nil
}

// setItemCanCirculate resets the item status to CAN_CIRCULATE, committing
// and re-indexing immediately. The write is independent from any loan
// transaction that follows it.
func setItemCanCirculate(ctx context.Context, store RecordStore, indexer Indexer, itemPID string) error {
	item, err := store.GetItem(ctx, itemPID)
	if err != nil {
		return err
	}
	if item.Status == ItemStatusCanCirculate {
		return nil
	}
	item.Status = ItemStatusCanCirculate
	if err := store.UpdateItem(ctx, item); err != nil {
		return err
	}
	return indexer.IndexItem(ctx, item)
}
