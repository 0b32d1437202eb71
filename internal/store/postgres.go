// internal/store/postgres.go
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"circulib/internal/circulation"
)

// Postgres is the authoritative record store for loans, items and
// documents, backed by sqlx over lib/pq.
type Postgres struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

// NewPostgres creates a record store on top of an open database handle.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{
		db:     db,
		tracer: otel.Tracer("circulib/store"),
	}
}

type loanRow struct {
	ID                     string         `db:"id"`
	PID                    string         `db:"pid"`
	PatronPID              string         `db:"patron_pid"`
	ItemPID                sql.NullString `db:"item_pid"`
	DocumentPID            sql.NullString `db:"document_pid"`
	TransactionLocationPID string         `db:"transaction_location_pid"`
	TransactionUserPID     string         `db:"transaction_user_pid"`
	State                  string         `db:"state"`
	StartDate              sql.NullTime   `db:"start_date"`
	EndDate                sql.NullTime   `db:"end_date"`
	RequestStartDate       sql.NullTime   `db:"request_start_date"`
	RequestExpireDate      sql.NullTime   `db:"request_expire_date"`
	Delivery               []byte         `db:"delivery"`
	ExtensionCount         int            `db:"extension_count"`
}

func (r *loanRow) toLoan() (*circulation.Loan, error) {
	loan := &circulation.Loan{
		PID:                    r.PID,
		PatronPID:              r.PatronPID,
		ItemPID:                r.ItemPID.String,
		DocumentPID:            r.DocumentPID.String,
		TransactionLocationPID: r.TransactionLocationPID,
		TransactionUserPID:     r.TransactionUserPID,
		State:                  r.State,
		StartDate:              nullableTime(r.StartDate),
		EndDate:                nullableTime(r.EndDate),
		RequestStartDate:       nullableTime(r.RequestStartDate),
		RequestExpireDate:      nullableTime(r.RequestExpireDate),
		ExtensionCount:         r.ExtensionCount,
	}
	if err := loan.ID.UnmarshalText([]byte(r.ID)); err != nil {
		return nil, fmt.Errorf("invalid loan record id %q: %w", r.ID, err)
	}
	if len(r.Delivery) > 0 {
		var d circulation.Delivery
		if err := json.Unmarshal(r.Delivery, &d); err != nil {
			return nil, fmt.Errorf("failed to decode delivery of loan %s: %w", r.PID, err)
		}
		loan.Delivery = &d
	}
	return loan, nil
}

// GetLoan fetches a loan record by its PID.
func (p *Postgres) GetLoan(ctx context.Context, pid string) (*circulation.Loan, error) {
	ctx, span := p.tracer.Start(ctx, "store.get_loan",
		trace.WithAttributes(attribute.String("loan.pid", pid)),
	)
	defer span.End()

	var row loanRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, pid, patron_pid, item_pid, document_pid,
		       transaction_location_pid, transaction_user_pid, state,
		       start_date, end_date, request_start_date, request_expire_date,
		       delivery, extension_count
		FROM loans
		WHERE pid = $1
	`, pid)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("loan %s not found", pid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get loan %s: %w", pid, err)
	}
	return row.toLoan()
}

// CreateLoan inserts a freshly minted loan record.
func (p *Postgres) CreateLoan(ctx context.Context, loan *circulation.Loan) error {
	ctx, span := p.tracer.Start(ctx, "store.create_loan",
		trace.WithAttributes(
			attribute.String("loan.pid", loan.PID),
			attribute.String("loan.patron_pid", loan.PatronPID),
		),
	)
	defer span.End()

	delivery, err := marshalDelivery(loan.Delivery)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO loans (id, pid, patron_pid, item_pid, document_pid,
		                   transaction_location_pid, transaction_user_pid, state,
		                   start_date, end_date, request_start_date, request_expire_date,
		                   delivery, extension_count, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
	`,
		loan.ID.String(), loan.PID, loan.PatronPID,
		nullString(loan.ItemPID), nullString(loan.DocumentPID),
		loan.TransactionLocationPID, loan.TransactionUserPID, loan.State,
		timeOrNil(loan.StartDate), timeOrNil(loan.EndDate),
		timeOrNil(loan.RequestStartDate), timeOrNil(loan.RequestExpireDate),
		delivery, loan.ExtensionCount,
	)
	if err != nil {
		return fmt.Errorf("failed to insert loan %s: %w", loan.PID, err)
	}
	return nil
}

// UpdateLoan persists the current state of a loan record.
func (p *Postgres) UpdateLoan(ctx context.Context, loan *circulation.Loan) error {
	ctx, span := p.tracer.Start(ctx, "store.update_loan",
		trace.WithAttributes(
			attribute.String("loan.pid", loan.PID),
			attribute.String("loan.state", loan.State),
		),
	)
	defer span.End()

	delivery, err := marshalDelivery(loan.Delivery)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `
		UPDATE loans
		SET patron_pid = $1, item_pid = $2, document_pid = $3,
		    transaction_location_pid = $4, transaction_user_pid = $5, state = $6,
		    start_date = $7, end_date = $8, request_start_date = $9,
		    request_expire_date = $10, delivery = $11, extension_count = $12,
		    updated_at = NOW()
		WHERE pid = $13
	`,
		loan.PatronPID, nullString(loan.ItemPID), nullString(loan.DocumentPID),
		loan.TransactionLocationPID, loan.TransactionUserPID, loan.State,
		timeOrNil(loan.StartDate), timeOrNil(loan.EndDate),
		timeOrNil(loan.RequestStartDate), timeOrNil(loan.RequestExpireDate),
		delivery, loan.ExtensionCount, loan.PID,
	)
	if err != nil {
		return fmt.Errorf("failed to update loan %s: %w", loan.PID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("loan %s not found", loan.PID)
	}
	return nil
}

type itemRow struct {
	ID                     string         `db:"id"`
	PID                    string         `db:"pid"`
	Barcode                string         `db:"barcode"`
	DocumentPID            string         `db:"document_pid"`
	Status                 string         `db:"status"`
	CirculationRestriction sql.NullString `db:"circulation_restriction"`
	CirculationState       sql.NullString `db:"circulation_state"`
	CirculationLoanPID     sql.NullString `db:"circulation_loan_pid"`
}

func (r *itemRow) toItem() (*circulation.Item, error) {
	item := &circulation.Item{
		PID:                    r.PID,
		Barcode:                r.Barcode,
		DocumentPID:            r.DocumentPID,
		Status:                 r.Status,
		CirculationRestriction: r.CirculationRestriction.String,
		Circulation: circulation.ItemCirculation{
			State:   r.CirculationState.String,
			LoanPID: r.CirculationLoanPID.String,
		},
	}
	if err := item.ID.UnmarshalText([]byte(r.ID)); err != nil {
		return nil, fmt.Errorf("invalid item record id %q: %w", r.ID, err)
	}
	return item, nil
}

// GetItem fetches an item record by its PID.
func (p *Postgres) GetItem(ctx context.Context, pid string) (*circulation.Item, error) {
	ctx, span := p.tracer.Start(ctx, "store.get_item",
		trace.WithAttributes(attribute.String("item.pid", pid)),
	)
	defer span.End()

	var row itemRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, pid, barcode, document_pid, status,
		       circulation_restriction, circulation_state, circulation_loan_pid
		FROM items
		WHERE pid = $1
	`, pid)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("item %s not found", pid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", pid, err)
	}
	return row.toItem()
}

// UpdateItem persists an item's status and circulation sub-state.
func (p *Postgres) UpdateItem(ctx context.Context, item *circulation.Item) error {
	ctx, span := p.tracer.Start(ctx, "store.update_item",
		trace.WithAttributes(
			attribute.String("item.pid", item.PID),
			attribute.String("item.status", item.Status),
		),
	)
	defer span.End()

	res, err := p.db.ExecContext(ctx, `
		UPDATE items
		SET status = $1, circulation_state = $2, circulation_loan_pid = $3,
		    updated_at = NOW()
		WHERE pid = $4
	`,
		item.Status, nullString(item.Circulation.State),
		nullString(item.Circulation.LoanPID), item.PID,
	)
	if err != nil {
		return fmt.Errorf("failed to update item %s: %w", item.PID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("item %s not found", item.PID)
	}
	return nil
}

type documentRow struct {
	ID              string `db:"id"`
	PID             string `db:"pid"`
	Title           string `db:"title"`
	Overbooked      bool   `db:"overbooked"`
	ActiveLoans     int    `db:"active_loans"`
	PendingRequests int    `db:"pending_requests"`
	LoanableItems   int    `db:"loanable_items"`
}

// GetDocument fetches a document record by its PID. Documents are
// read-only from the circulation service's perspective.
func (p *Postgres) GetDocument(ctx context.Context, pid string) (*circulation.Document, error) {
	ctx, span := p.tracer.Start(ctx, "store.get_document",
		trace.WithAttributes(attribute.String("document.pid", pid)),
	)
	defer span.End()

	var row documentRow
	err := p.db.GetContext(ctx, &row, `
		SELECT id, pid, title, overbooked, active_loans, pending_requests, loanable_items
		FROM documents
		WHERE pid = $1
	`, pid)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("document %s not found", pid)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get document %s: %w", pid, err)
	}

	doc := &circulation.Document{
		PID:   row.PID,
		Title: row.Title,
		Circulation: circulation.DocumentCirculation{
			Overbooked:      row.Overbooked,
			ActiveLoans:     row.ActiveLoans,
			PendingRequests: row.PendingRequests,
			LoanableItems:   row.LoanableItems,
		},
	}
	if err := doc.ID.UnmarshalText([]byte(row.ID)); err != nil {
		return nil, fmt.Errorf("invalid document record id %q: %w", row.ID, err)
	}
	return doc, nil
}

func marshalDelivery(d *circulation.Delivery) ([]byte, error) {
	if d == nil {
		return nil, nil
	}
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to encode delivery: %w", err)
	}
	return data, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullableTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func timeOrNil(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
