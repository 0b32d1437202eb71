// internal/store/pids.go
package store

import (
	"context"
	"database/sql"
	"encoding/base32"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// pidEncoding is a Crockford-style base32 alphabet: no padding, no
// easily-confused characters, safe to read over the phone at a desk.
var pidEncoding = base32.NewEncoding("0123456789abcdefghjkmnpqrstvwxyz").WithPadding(base32.NoPadding)

// PIDProvider mints and resolves persistent identifiers. PIDs are short
// human-readable strings derived from the record UUID and registered in
// the pids table, one row per (kind, pid).
type PIDProvider struct {
	db     *sqlx.DB
	tracer trace.Tracer
}

func NewPIDProvider(db *sqlx.DB) *PIDProvider {
	return &PIDProvider{
		db:     db,
		tracer: otel.Tracer("circulib/pids"),
	}
}

// Mint registers a new PID for the record and returns it.
func (p *PIDProvider) Mint(ctx context.Context, recordID uuid.UUID, kind string) (string, error) {
	ctx, span := p.tracer.Start(ctx, "pids.mint",
		trace.WithAttributes(
			attribute.String("pid.kind", kind),
			attribute.String("record.id", recordID.String()),
		),
	)
	defer span.End()

	pid := EncodePID(recordID)
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO pids (pid_kind, pid_value, record_id, created_at)
		VALUES ($1, $2, $3, NOW())
	`, kind, pid, recordID.String())
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return "", fmt.Errorf("pid %s/%s already registered", kind, pid)
		}
		return "", fmt.Errorf("failed to mint pid %s/%s: %w", kind, pid, err)
	}

	span.SetAttributes(attribute.String("pid.value", pid))
	return pid, nil
}

// Resolve returns the record UUID registered under the given PID.
func (p *PIDProvider) Resolve(ctx context.Context, kind, pid string) (uuid.UUID, error) {
	ctx, span := p.tracer.Start(ctx, "pids.resolve",
		trace.WithAttributes(
			attribute.String("pid.kind", kind),
			attribute.String("pid.value", pid),
		),
	)
	defer span.End()

	var recordID string
	err := p.db.GetContext(ctx, &recordID, `
		SELECT record_id FROM pids WHERE pid_kind = $1 AND pid_value = $2
	`, kind, pid)
	if err == sql.ErrNoRows {
		return uuid.Nil, fmt.Errorf("pid %s/%s not found", kind, pid)
	}
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to resolve pid %s/%s: %w", kind, pid, err)
	}
	return uuid.Parse(recordID)
}

// EncodePID derives the printable PID from a record UUID: the first ten
// base32 characters split into two groups, e.g. "a1b2c-3d4e5".
func EncodePID(recordID uuid.UUID) string {
	encoded := pidEncoding.EncodeToString(recordID[:])[:10]
	return encoded[:5] + "-" + encoded[5:]
}
