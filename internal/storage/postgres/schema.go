// Package postgres persists orders, addresses and the transition journal
// through database/sql and lib/pq.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const uniqueViolation = "23505"

// Open connects to Postgres and waits for it to accept connections.
func Open(ctx context.Context, dsn string, attempts int, logger *logrus.Logger) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	for i := 0; ; i++ {
		err = db.PingContext(ctx)
		if err == nil {
			logger.Info("Database connection established")
			return db, nil
		}
		if i+1 >= attempts {
			db.Close()
			return nil, err
		}
		logger.WithError(err).Info("Waiting for database...")
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

// CreateTables creates the schema when it does not exist yet.
func CreateTables(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS orders (
			id VARCHAR(255) PRIMARY KEY,
			customer_id VARCHAR(255) NOT NULL,
			total_amount NUMERIC NOT NULL,
			status VARCHAR(50) NOT NULL,
			shipment_id VARCHAR(255),
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ,
			version INTEGER NOT NULL DEFAULT 1
		)`,
		`CREATE TABLE IF NOT EXISTS order_items (
			id VARCHAR(255) PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
			position INTEGER NOT NULL,
			product_id VARCHAR(255) NOT NULL,
			product_variant_id VARCHAR(255),
			quantity INTEGER NOT NULL,
			unit_price NUMERIC NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS addresses (
			id VARCHAR(255) PRIMARY KEY,
			customer_id VARCHAR(255) NOT NULL,
			street VARCHAR(255) NOT NULL,
			city VARCHAR(255) NOT NULL,
			state VARCHAR(255) NOT NULL,
			postal_code VARCHAR(64) NOT NULL,
			country VARCHAR(255) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ
		)`,
		`CREATE TABLE IF NOT EXISTS order_transitions (
			id VARCHAR(255) PRIMARY KEY,
			order_id VARCHAR(255) NOT NULL,
			from_status VARCHAR(50) NOT NULL,
			to_status VARCHAR(50) NOT NULL,
			state VARCHAR(20) NOT NULL,
			error TEXT,
			started_at TIMESTAMPTZ NOT NULL,
			finished_at TIMESTAMPTZ
		)`,
		// Money columns are unscaled so a stored order reads back with the
		// exact prices its total was computed from.
		`ALTER TABLE orders ALTER COLUMN total_amount TYPE NUMERIC`,
		`ALTER TABLE order_items ALTER COLUMN unit_price TYPE NUMERIC`,
		`CREATE INDEX IF NOT EXISTS idx_orders_customer_id ON orders(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_items_order_id ON order_items(order_id)`,
		`CREATE INDEX IF NOT EXISTS idx_addresses_customer_id ON addresses(customer_id)`,
		`CREATE INDEX IF NOT EXISTS idx_order_transitions_state ON order_transitions(state)`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return err
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == uniqueViolation
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
