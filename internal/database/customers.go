package database

// customers.go adapts the generated queries to core.Repository and
// core.CustomerLister on top of a pgx pool.

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/JonMunkholm/custupload/internal/core"
)

// uniqueViolation is the Postgres SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// CustomerRepository stores customers in Postgres.
type CustomerRepository struct {
	db DBTX
}

// NewCustomerRepository creates a repository backed by db (a pool or a tx).
func NewCustomerRepository(db DBTX) *CustomerRepository {
	return &CustomerRepository{db: db}
}

func (r *CustomerRepository) FindByNaturalKey(ctx context.Context, key string) (core.Customer, error) {
	row, err := New(r.db).GetCustomerByNaturalKey(ctx, key)
	if errors.Is(err, pgx.ErrNoRows) {
		return core.Customer{}, core.ErrNotFound
	}
	if err != nil {
		return core.Customer{}, fmt.Errorf("get customer %q: %w", key, err)
	}
	return toCore(row), nil
}

func (r *CustomerRepository) Create(ctx context.Context, c *core.Customer) error {
	id := uuid.New()
	row, err := New(r.db).InsertCustomer(ctx, InsertCustomerParams{
		ID:          pgtype.UUID{Bytes: id, Valid: true},
		NaturalKey:  c.NaturalKey,
		ExternalRef: toText(c.ExternalRef),
		Email:       toText(c.Email),
		Name:        c.Name,
		Phone:       toText(c.Phone),
		Company:     toText(c.Company),
	})
	if errors.Is(err, pgx.ErrNoRows) || isUniqueViolation(err) {
		// ON CONFLICT DO NOTHING returned no row
		return core.ErrDuplicateKey
	}
	if err != nil {
		return fmt.Errorf("insert customer %q: %w", c.NaturalKey, err)
	}

	c.ID = id
	c.Version = row.Version
	c.CreatedAt = row.CreatedAt.Time
	c.UpdatedAt = row.UpdatedAt.Time
	return nil
}

func (r *CustomerRepository) Update(ctx context.Context, c *core.Customer, expectedVersion int64) error {
	row, err := New(r.db).UpdateCustomerIfVersion(ctx, UpdateCustomerIfVersionParams{
		NaturalKey:  c.NaturalKey,
		Version:     expectedVersion,
		ExternalRef: toText(c.ExternalRef),
		Email:       toText(c.Email),
		Name:        c.Name,
		Phone:       toText(c.Phone),
		Company:     toText(c.Company),
	})
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ErrStaleVersion
	}
	if err != nil {
		return fmt.Errorf("update customer %q: %w", c.NaturalKey, err)
	}

	c.Version = row.Version
	c.UpdatedAt = row.UpdatedAt.Time
	return nil
}

func (r *CustomerRepository) ListCustomers(ctx context.Context, limit, offset int) ([]core.Customer, error) {
	rows, err := New(r.db).ListCustomers(ctx, ListCustomersParams{
		Limit:  int32(limit),
		Offset: int32(offset),
	})
	if err != nil {
		return nil, err
	}
	out := make([]core.Customer, len(rows))
	for i, row := range rows {
		out[i] = toCore(row)
	}
	return out, nil
}

func (r *CustomerRepository) CountCustomers(ctx context.Context) (int64, error) {
	return New(r.db).CountCustomers(ctx)
}

func toCore(row Customer) core.Customer {
	return core.Customer{
		ID:         uuid.UUID(row.ID.Bytes),
		NaturalKey: row.NaturalKey,
		Profile: core.Profile{
			ExternalRef: row.ExternalRef.String,
			Email:       row.Email.String,
			Name:        row.Name,
			Phone:       row.Phone.String,
			Company:     row.Company.String,
		},
		Version:   row.Version,
		CreatedAt: row.CreatedAt.Time,
		UpdatedAt: row.UpdatedAt.Time,
	}
}

// toText maps "" to NULL.
func toText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
