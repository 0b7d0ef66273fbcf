package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"

	"github.com/marlonbarreto-git/warranty-checkout/internal/model"
)

// OrdersSchema creates the table PostgresOrders writes to.
const OrdersSchema = `
CREATE TABLE IF NOT EXISTS warranty_orders (
	token            TEXT PRIMARY KEY,
	registration     TEXT NOT NULL,
	warranty_type    TEXT NOT NULL,
	months           INTEGER NOT NULL,
	max_claim        BIGINT NOT NULL,
	amount           BIGINT NOT NULL,
	currency         TEXT NOT NULL,
	requested_method TEXT NOT NULL,
	charged_method   TEXT NOT NULL,
	fallback_reason  TEXT NOT NULL DEFAULT '',
	provider_ref     TEXT NOT NULL DEFAULT '',
	customer_name    TEXT NOT NULL,
	customer_email   TEXT NOT NULL,
	created_at       TIMESTAMPTZ NOT NULL
)`

const insertOrder = `
	INSERT INTO warranty_orders (token, registration, warranty_type, months, max_claim, amount, currency,
		requested_method, charged_method, fallback_reason, provider_ref, customer_name, customer_email, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	ON CONFLICT (token) DO NOTHING
`

// PostgresOrders implements Orders using PostgreSQL.
type PostgresOrders struct {
	db *sql.DB
}

func NewPostgresOrders(db *sql.DB) *PostgresOrders {
	return &PostgresOrders{db: db}
}

// OpenPostgres connects with lib/pq and makes sure the orders table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresOrders, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	if _, err := db.ExecContext(ctx, OrdersSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create orders table: %w", err)
	}
	return NewPostgresOrders(db), nil
}

// Close closes the underlying pool.
func (s *PostgresOrders) Close() error {
	return s.db.Close()
}

func (s *PostgresOrders) Create(ctx context.Context, o model.Order) (bool, error) {
	res, err := s.db.ExecContext(ctx, insertOrder,
		o.Token, o.Registration, string(o.WarrantyType), o.Months, o.MaxClaim, o.Amount, o.Currency,
		string(o.RequestedMethod), string(o.ChargedMethod), string(o.FallbackReason), o.ProviderRef,
		o.CustomerName, o.CustomerEmail, o.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to persist order: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read insert result: %w", err)
	}
	return n == 1, nil
}
