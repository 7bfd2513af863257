package records

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/partsplit-prereg/internal/registration"
)

var recordsTracer = otel.Tracer("partsplit.internal.storage.records")

// DB is the subset of pgxpool.Pool the store uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// Lister returns stored registrations, newest first.
type Lister interface {
	List(ctx context.Context, filter ListFilter) ([]registration.Record, error)
}

// ListFilter narrows admin listings.
type ListFilter struct {
	Kind   registration.Kind
	Limit  int
	Offset int
}

// PostgresStore stores registrations in the registrations table.
type PostgresStore struct {
	db DB
}

// NewPostgresStore initializes a store backed by a pgx pool (or anything with the same Exec/Query).
func NewPostgresStore(db DB) *PostgresStore {
	if db == nil {
		panic("records: pgx pool required")
	}
	return &PostgresStore{db: db}
}

// Insert writes one registration row.
func (s *PostgresStore) Insert(ctx context.Context, rec registration.Record) error {
	ctx, span := recordsTracer.Start(ctx, "records.postgres.insert")
	defer span.End()
	span.SetAttributes(attribute.String("registration.kind", string(rec.Kind)))

	createdAt := rec.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	query := `
		INSERT INTO registrations (id, type, email, phone, image_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := s.db.Exec(ctx, query,
		rec.ID,
		string(rec.Kind),
		nullable(rec.Email),
		nullable(rec.Phone),
		nullable(rec.ImageURL),
		createdAt,
	); err != nil {
		span.RecordError(err)
		return fmt.Errorf("records: insert failed: %w", err)
	}
	return nil
}

// List returns registrations newest first.
func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]registration.Record, error) {
	if filter.Limit <= 0 || filter.Limit > 500 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	query := `
		SELECT id::text, type, COALESCE(email, ''), COALESCE(phone, ''), COALESCE(image_url, ''), created_at
		FROM registrations
		WHERE ($1 = '' OR type = $1)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`
	rows, err := s.db.Query(ctx, query, string(filter.Kind), filter.Limit, filter.Offset)
	if err != nil {
		return nil, fmt.Errorf("records: list failed: %w", err)
	}
	defer rows.Close()

	var out []registration.Record
	for rows.Next() {
		var (
			rec  registration.Record
			kind string
		)
		if err := rows.Scan(&rec.ID, &kind, &rec.Email, &rec.Phone, &rec.ImageURL, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("records: scan failed: %w", err)
		}
		rec.Kind = registration.Kind(kind)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

var (
	_ registration.RecordStore = (*PostgresStore)(nil)
	_ Lister                   = (*PostgresStore)(nil)
)
