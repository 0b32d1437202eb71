// internal/search/postgres.go
package search

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"circulib/internal/circulation"
	"circulib/internal/config"
)

// expiringWindow is how far ahead of its end date a loan counts as
// expiring soon for bulk extension.
const expiringWindow = 7 * 24 * time.Hour

// Index is the read model: denormalized loan_index and item_index tables
// written by the indexer after record commits and queried by the finders.
// Index writes are not part of the record transaction, so reads here can
// lag behind recent writes.
type Index struct {
	db     *sqlx.DB
	cfg    *config.Config
	tracer trace.Tracer
	now    func() time.Time
}

// NewIndex creates the read model over an open database handle.
func NewIndex(db *sqlx.DB, cfg *config.Config) *Index {
	return &Index{
		db:     db,
		cfg:    cfg,
		tracer: otel.Tracer("circulib/search"),
		now:    time.Now,
	}
}

// IndexLoan upserts a loan into the read model.
func (i *Index) IndexLoan(ctx context.Context, loan *circulation.Loan) error {
	ctx, span := i.tracer.Start(ctx, "search.index_loan",
		trace.WithAttributes(
			attribute.String("loan.pid", loan.PID),
			attribute.String("loan.state", loan.State),
		),
	)
	defer span.End()

	var endDate interface{}
	if loan.EndDate != nil {
		endDate = *loan.EndDate
	}
	_, err := i.db.ExecContext(ctx, `
		INSERT INTO loan_index (pid, state, patron_pid, item_pid, document_pid, end_date, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (pid) DO UPDATE
		SET state = EXCLUDED.state,
		    patron_pid = EXCLUDED.patron_pid,
		    item_pid = EXCLUDED.item_pid,
		    document_pid = EXCLUDED.document_pid,
		    end_date = EXCLUDED.end_date,
		    indexed_at = EXCLUDED.indexed_at
	`, loan.PID, loan.State, loan.PatronPID, loan.ItemPID, loan.DocumentPID, endDate)
	if err != nil {
		return fmt.Errorf("failed to index loan %s: %w", loan.PID, err)
	}
	return nil
}

// IndexItem upserts an item into the read model.
func (i *Index) IndexItem(ctx context.Context, item *circulation.Item) error {
	ctx, span := i.tracer.Start(ctx, "search.index_item",
		trace.WithAttributes(attribute.String("item.pid", item.PID)),
	)
	defer span.End()

	_, err := i.db.ExecContext(ctx, `
		INSERT INTO item_index (pid, barcode, document_pid, status, indexed_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (pid) DO UPDATE
		SET barcode = EXCLUDED.barcode,
		    document_pid = EXCLUDED.document_pid,
		    status = EXCLUDED.status,
		    indexed_at = EXCLUDED.indexed_at
	`, item.PID, item.Barcode, item.DocumentPID, item.Status)
	if err != nil {
		return fmt.Errorf("failed to index item %s: %w", item.PID, err)
	}
	return nil
}

type loanHitRow struct {
	PID         string `db:"pid"`
	State       string `db:"state"`
	PatronPID   string `db:"patron_pid"`
	ItemPID     string `db:"item_pid"`
	DocumentPID string `db:"document_pid"`
}

// FindLoans searches the loan read model. Empty query fields are ignored.
func (i *Index) FindLoans(ctx context.Context, q circulation.LoanQuery) ([]circulation.LoanHit, error) {
	ctx, span := i.tracer.Start(ctx, "search.find_loans",
		trace.WithAttributes(attribute.String("query.patron_pid", q.PatronPID)),
	)
	defer span.End()

	where := []string{"1=1"}
	args := []interface{}{}
	n := 0
	add := func(clause string, arg interface{}) {
		n++
		where = append(where, fmt.Sprintf(clause, n))
		args = append(args, arg)
	}

	if q.PatronPID != "" {
		add("patron_pid = $%d", q.PatronPID)
	}
	if q.ItemPID != "" {
		add("item_pid = $%d", q.ItemPID)
	}
	if q.DocumentPID != "" {
		add("document_pid = $%d", q.DocumentPID)
	}
	if len(q.States) > 0 {
		add("state = ANY($%d)", pq.StringArray(q.States))
	}

	query := `
		SELECT pid, state, patron_pid, COALESCE(item_pid, '') AS item_pid,
		       COALESCE(document_pid, '') AS document_pid
		FROM loan_index
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY indexed_at ASC
	`
	var rows []loanHitRow
	if err := i.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to search loans: %w", err)
	}

	hits := make([]circulation.LoanHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, circulation.LoanHit(r))
	}
	span.SetAttributes(attribute.Int("hits.total", len(hits)))
	return hits, nil
}

// FindItemsByBarcode returns all indexed items carrying the barcode.
// Barcodes should be unique; callers treat more than one hit as an error.
func (i *Index) FindItemsByBarcode(ctx context.Context, barcode string) ([]*circulation.Item, error) {
	ctx, span := i.tracer.Start(ctx, "search.find_items_by_barcode",
		trace.WithAttributes(attribute.String("item.barcode", barcode)),
	)
	defer span.End()

	type itemHitRow struct {
		PID         string `db:"pid"`
		Barcode     string `db:"barcode"`
		DocumentPID string `db:"document_pid"`
		Status      string `db:"status"`
	}
	var rows []itemHitRow
	err := i.db.SelectContext(ctx, &rows, `
		SELECT pid, barcode, document_pid, status
		FROM item_index
		WHERE barcode = $1
	`, barcode)
	if err != nil {
		return nil, fmt.Errorf("failed to search items by barcode %s: %w", barcode, err)
	}

	items := make([]*circulation.Item, 0, len(rows))
	for _, r := range rows {
		items = append(items, &circulation.Item{
			PID:         r.PID,
			Barcode:     r.Barcode,
			DocumentPID: r.DocumentPID,
			Status:      r.Status,
		})
	}
	span.SetAttributes(attribute.Int("hits.total", len(items)))
	return items, nil
}

// FindExpiringOrOverdueLoans returns the patron's ACTIVE loans that are
// already overdue or due within the expiring window.
func (i *Index) FindExpiringOrOverdueLoans(ctx context.Context, patronPID string) ([]circulation.LoanHit, error) {
	ctx, span := i.tracer.Start(ctx, "search.find_expiring_loans",
		trace.WithAttributes(attribute.String("query.patron_pid", patronPID)),
	)
	defer span.End()

	var rows []loanHitRow
	err := i.db.SelectContext(ctx, &rows, `
		SELECT pid, state, patron_pid, COALESCE(item_pid, '') AS item_pid,
		       COALESCE(document_pid, '') AS document_pid
		FROM loan_index
		WHERE patron_pid = $1
		  AND state = ANY($2)
		  AND end_date IS NOT NULL
		  AND end_date <= $3
		ORDER BY end_date ASC
	`, patronPID, pq.StringArray(i.cfg.ActiveStates), i.now().Add(expiringWindow))
	if err != nil {
		return nil, fmt.Errorf("failed to search expiring loans for patron %s: %w", patronPID, err)
	}

	hits := make([]circulation.LoanHit, 0, len(rows))
	for _, r := range rows {
		hits = append(hits, circulation.LoanHit(r))
	}
	span.SetAttributes(attribute.Int("hits.total", len(hits)))
	return hits, nil
}
