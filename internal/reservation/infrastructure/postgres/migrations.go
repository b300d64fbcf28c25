package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrations = []string{
	`CREATE TABLE IF NOT EXISTS equipment (
		id TEXT PRIMARY KEY,
		product_id TEXT NOT NULL,
		warehouse_id TEXT NOT NULL,
		name TEXT NOT NULL DEFAULT '',
		available_quantity INT NOT NULL CHECK (available_quantity >= 0),
		reserved_quantity INT NOT NULL DEFAULT 0 CHECK (reserved_quantity >= 0),
		pending_reservation_count INT NOT NULL DEFAULT 0 CHECK (pending_reservation_count >= 0),
		version BIGINT NOT NULL DEFAULT 0,
		is_active BOOLEAN NOT NULL DEFAULT TRUE,
		is_rental_available BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS equipment_product_warehouse_idx
		ON equipment (product_id, warehouse_id)`,
	`CREATE TABLE IF NOT EXISTS reservations (
		id TEXT PRIMARY KEY,
		equipment_id TEXT NOT NULL REFERENCES equipment (id),
		product_id TEXT NOT NULL,
		customer_id TEXT NOT NULL,
		quantity INT NOT NULL CHECK (quantity > 0),
		status TEXT NOT NULL,
		reason_code TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL,
		expires_at TIMESTAMPTZ NOT NULL,
		confirmed_at TIMESTAMPTZ,
		cancelled_at TIMESTAMPTZ,
		warned_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS reservations_customer_idx ON reservations (customer_id)`,
	`CREATE INDEX IF NOT EXISTS reservations_equipment_idx ON reservations (equipment_id)`,
	`CREATE INDEX IF NOT EXISTS reservations_expiry_idx
		ON reservations (expires_at) WHERE status = 'PENDING'`,
	`CREATE TABLE IF NOT EXISTS outbox (
		id BIGSERIAL PRIMARY KEY,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		type TEXT NOT NULL,
		payload JSONB NOT NULL,
		headers JSONB,
		traceparent TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		relay_id TEXT,
		lease_until TIMESTAMPTZ,
		retry_count INT NOT NULL DEFAULT 0,
		last_error TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS outbox_pending_idx ON outbox (id) WHERE status = 'pending'`,
}

// Migrate applies the schema. Statements are idempotent so startup can run
// this unconditionally.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
