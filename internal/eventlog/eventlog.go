// internal/eventlog/eventlog.go
package eventlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrConcurrentTransition means two transitions for the same loan raced
// on the same sequence number.
var ErrConcurrentTransition = errors.New("concurrent transition: sequence conflict")

// Entry is one applied loan transition.
type Entry struct {
	ID        int64     `db:"id"`
	LoanPID   string    `db:"loan_pid"`
	Seq       int       `db:"seq"`
	Trigger   string    `db:"trigger_name"`
	FromState string    `db:"from_state"`
	ToState   string    `db:"to_state"`
	CreatedAt time.Time `db:"created_at"`
}

// Log is an append-only audit trail of loan transitions, one row per
// applied trigger, sequenced per loan.
type Log struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewLog(db *sqlx.DB) *Log {
	return &Log{
		db:     db,
		tracer: otel.Tracer("circulib/eventlog"),
	}
}

// RecordTransition appends the transition to the loan's audit trail.
func (l *Log) RecordTransition(ctx context.Context, loanPID, trigger, fromState, toState string) error {
	ctx, span := l.tracer.Start(ctx, "eventlog.record",
		trace.WithAttributes(
			attribute.String("loan.pid", loanPID),
			attribute.String("transition.trigger", trigger),
			attribute.String("transition.from", fromState),
			attribute.String("transition.to", toState),
		),
	)
	defer span.End()

	tx, err := l.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	var seq int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0)
		FROM loan_events
		WHERE loan_pid = $1
	`, loanPID).Scan(&seq)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("query current sequence: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO loan_events (loan_pid, seq, trigger_name, from_state, to_state, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, loanPID, seq+1, trigger, fromState, toState, time.Now().UTC())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return ErrConcurrentTransition
		}
		return fmt.Errorf("insert transition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}

	span.SetAttributes(attribute.Int("transition.seq", seq+1))
	return nil
}

// History returns the loan's transitions in order of application.
func (l *Log) History(ctx context.Context, loanPID string) ([]Entry, error) {
	ctx, span := l.tracer.Start(ctx, "eventlog.history",
		trace.WithAttributes(attribute.String("loan.pid", loanPID)),
	)
	defer span.End()

	var entries []Entry
	err := l.db.SelectContext(ctx, &entries, `
		SELECT id, loan_pid, seq, trigger_name, from_state, to_state, created_at
		FROM loan_events
		WHERE loan_pid = $1
		ORDER BY seq ASC
	`, loanPID)
	if err != nil {
		return nil, fmt.Errorf("query transition history: %w", err)
	}

	span.SetAttributes(attribute.Int("entries.loaded", len(entries)))
	return entries, nil
}
