// internal/circulation/conflicts.go
package circulation

import (
	"context"
	"fmt"

	"circulib/internal/config"
)

// ConflictCategory classifies which state-category set a conflicting loan
// belongs to.
type ConflictCategory string

const (
	ConflictRequest ConflictCategory = "REQUEST"
	ConflictActive  ConflictCategory = "ACTIVE"
)

// ConflictDetector checks the read model for in-flight loans or requests
// before a new one is created. Purely a precondition check, no side
// effects. The read model is eventually consistent, so this is
// best-effort: a write not yet indexed is invisible here.
type ConflictDetector struct {
	search SearchIndex
	cfg    *config.Config
}

func NewConflictDetector(search SearchIndex, cfg *config.Config) *ConflictDetector {
	return &ConflictDetector{search: search, cfg: cfg}
}

// FindConflict returns the first loan held by the patron on the document
// whose state is in the REQUEST or ACTIVE category, together with the
// category it belongs to. A nil hit means no conflict.
func (d *ConflictDetector) FindConflict(ctx context.Context, patronPID, documentPID string) (*LoanHit, ConflictCategory, error) {
	hits, err := d.search.FindLoans(ctx, LoanQuery{
		PatronPID:   patronPID,
		DocumentPID: documentPID,
		States:      d.cfg.ConflictStates(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to search loans for patron %s on document %s: %w", patronPID, documentPID, err)
	}
	if len(hits) == 0 {
		return nil, "", nil
	}
	hit := hits[0]
	if d.cfg.IsRequestState(hit.State) {
		return &hit, ConflictRequest, nil
	}
	return &hit, ConflictActive, nil
}

// HasActiveLoan reports whether the patron already holds an ACTIVE loan
// on the given item.
func (d *ConflictDetector) HasActiveLoan(ctx context.Context, patronPID, itemPID string) (bool, error) {
	hits, err := d.search.FindLoans(ctx, LoanQuery{
		PatronPID: patronPID,
		ItemPID:   itemPID,
		States:    d.cfg.ActiveStates,
	})
	if err != nil {
		return false, fmt.Errorf("failed to search loans for patron %s on item %s: %w", patronPID, itemPID, err)
	}
	return len(hits) > 0, nil
}
