package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"

	"github.com/skishop/reservation-service/internal/reservation/domain"
)

// Repository persists equipment ledgers and reservations. Ledger mutations
// are conditional on the row version; the version check at the store is the
// sole arbiter between concurrent writers, including writers in other
// processes. State-changing writes insert the outbox row in the same
// transaction.
type Repository struct {
	log  *slog.Logger
	pool *pgxpool.Pool
}

func NewRepository(log *slog.Logger, pool *pgxpool.Pool) *Repository {
	return &Repository{log: log, pool: pool}
}

const equipmentCols = `id, product_id, warehouse_id, name, available_quantity, reserved_quantity,
	pending_reservation_count, version, is_active, is_rental_available, created_at, updated_at`

func (r *Repository) GetEquipment(ctx context.Context, equipmentID string) (domain.Equipment, error) {
	return r.scanEquipment(r.pool.QueryRow(ctx,
		`SELECT `+equipmentCols+` FROM equipment WHERE id=$1`, equipmentID))
}

func (r *Repository) GetEquipmentByProduct(ctx context.Context, productID string) (domain.Equipment, error) {
	return r.scanEquipment(r.pool.QueryRow(ctx,
		`SELECT `+equipmentCols+` FROM equipment WHERE product_id=$1 ORDER BY warehouse_id LIMIT 1`, productID))
}

func (r *Repository) scanEquipment(row pgx.Row) (domain.Equipment, error) {
	var e domain.Equipment
	err := row.Scan(&e.ID, &e.ProductID, &e.WarehouseID, &e.Name, &e.Available, &e.Reserved,
		&e.Pending, &e.Version, &e.Active, &e.RentalAvailable, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Equipment{}, domain.ErrEquipmentNotFound
	}
	if err != nil {
		return domain.Equipment{}, fmt.Errorf("get equipment: %w", err)
	}
	return e, nil
}

// InsertEquipment registers a new ledger row. Equipment creation itself
// belongs to the catalog pipeline; this exists for bootstrap and tests.
func (r *Repository) InsertEquipment(ctx context.Context, e domain.Equipment) error {
	_, err := r.pool.Exec(ctx, `INSERT INTO equipment
		(id, product_id, warehouse_id, name, available_quantity, reserved_quantity,
		 pending_reservation_count, version, is_active, is_rental_available, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,now(),now())
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ProductID, e.WarehouseID, e.Name, e.Available, e.Reserved,
		e.Pending, e.Version, e.Active, e.RentalAvailable)
	return err
}

const reservationCols = `id, equipment_id, product_id, customer_id, quantity, status, reason_code,
	created_at, expires_at, confirmed_at, cancelled_at, warned_at`

func (r *Repository) GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reservationCols+` FROM reservations WHERE id=$1`, reservationID)
	res, err := scanReservation(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return res, err
}

func (r *Repository) ListByCustomer(ctx context.Context, customerID string) ([]domain.Reservation, error) {
	return r.list(ctx, `SELECT `+reservationCols+` FROM reservations WHERE customer_id=$1 ORDER BY created_at DESC`, customerID)
}

func (r *Repository) ListByEquipment(ctx context.Context, equipmentID string) ([]domain.Reservation, error) {
	return r.list(ctx, `SELECT `+reservationCols+` FROM reservations WHERE equipment_id=$1 ORDER BY created_at DESC`, equipmentID)
}

func (r *Repository) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	return r.list(ctx, `SELECT `+reservationCols+` FROM reservations
		WHERE status=$1 AND expires_at < $2 ORDER BY expires_at LIMIT $3`,
		domain.StatusPending, now, limit)
}

func (r *Repository) ListExpiring(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Reservation, error) {
	return r.list(ctx, `SELECT `+reservationCols+` FROM reservations
		WHERE status=$1 AND warned_at IS NULL AND expires_at >= $2 AND expires_at < $3
		ORDER BY expires_at LIMIT $4`,
		domain.StatusPending, now, now.Add(window), limit)
}

func (r *Repository) list(ctx context.Context, query string, args ...any) ([]domain.Reservation, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Reservation
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

func scanReservation(row pgx.Row) (domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(&res.ID, &res.EquipmentID, &res.ProductID, &res.CustomerID, &res.Quantity,
		&res.Status, &res.ReasonCode, &res.CreatedAt, &res.ExpiresAt,
		&res.ConfirmedAt, &res.CancelledAt, &res.WarnedAt)
	return res, err
}

func (r *Repository) CreateWithLedger(ctx context.Context, res domain.Reservation, led domain.Ledger, expectedVersion int64, eventType string, payload []byte) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ok, err := writeLedger(ctx, tx, res.EquipmentID, led, expectedVersion)
	if err != nil || !ok {
		return ok, err
	}

	_, err = tx.Exec(ctx, `INSERT INTO reservations
		(id, equipment_id, product_id, customer_id, quantity, status, reason_code, created_at, expires_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		res.ID, res.EquipmentID, res.ProductID, res.CustomerID, res.Quantity,
		res.Status, res.ReasonCode, res.CreatedAt, res.ExpiresAt)
	if err != nil {
		return false, err
	}
	if err := insertOutbox(ctx, tx, res.ID, eventType, payload); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) TransitionWithLedger(ctx context.Context, res domain.Reservation, from domain.Status, fromExpiry time.Time, led domain.Ledger, expectedVersion int64, eventType string, payload []byte) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	// Status and expiry guards first: a reservation terminated by another
	// writer must not release its units a second time, and a transition
	// decided against an expiry that has since been extended must not land.
	ct, err := tx.Exec(ctx, `UPDATE reservations
		SET status=$1, reason_code=$2, confirmed_at=$3, cancelled_at=$4
		WHERE id=$5 AND status=$6 AND expires_at=$7`,
		res.Status, res.ReasonCode, res.ConfirmedAt, res.CancelledAt, res.ID, from, fromExpiry)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}

	ok, err := writeLedger(ctx, tx, res.EquipmentID, led, expectedVersion)
	if err != nil || !ok {
		return ok, err
	}
	if err := insertOutbox(ctx, tx, res.ID, eventType, payload); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

func (r *Repository) UpdateExpiry(ctx context.Context, res domain.Reservation, from domain.Status, fromExpiry time.Time) (bool, error) {
	// The expiry guard makes concurrent extends serialize: the loser retries
	// off a fresh read instead of overwriting the winner.
	ct, err := r.pool.Exec(ctx, `UPDATE reservations SET expires_at=$1 WHERE id=$2 AND status=$3 AND expires_at=$4`,
		res.ExpiresAt, res.ID, from, fromExpiry)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func (r *Repository) MarkWarned(ctx context.Context, reservationID string, warnedAt time.Time, eventType string, payload []byte) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	ct, err := tx.Exec(ctx, `UPDATE reservations SET warned_at=$1
		WHERE id=$2 AND status=$3 AND warned_at IS NULL`,
		warnedAt, reservationID, domain.StatusPending)
	if err != nil {
		return false, err
	}
	if ct.RowsAffected() == 0 {
		return false, nil
	}
	if err := insertOutbox(ctx, tx, reservationID, eventType, payload); err != nil {
		return false, err
	}
	return true, tx.Commit(ctx)
}

// writeLedger is the conditional ledger write: counters land only when the
// row version still matches what the engine read.
func writeLedger(ctx context.Context, tx pgx.Tx, equipmentID string, led domain.Ledger, expectedVersion int64) (bool, error) {
	ct, err := tx.Exec(ctx, `UPDATE equipment
		SET available_quantity=$1, reserved_quantity=$2, pending_reservation_count=$3,
			version=version+1, updated_at=now()
		WHERE id=$4 AND version=$5`,
		led.Available, led.Reserved, led.Pending, equipmentID, expectedVersion)
	if err != nil {
		return false, err
	}
	return ct.RowsAffected() > 0, nil
}

func insertOutbox(ctx context.Context, tx pgx.Tx, aggregateID, eventType string, payload []byte) error {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	_, err := tx.Exec(ctx, `INSERT INTO outbox (aggregate_type, aggregate_id, type, payload, traceparent, status)
		VALUES ($1,$2,$3,$4,$5,'pending')`,
		"reservation", aggregateID, eventType, payload, carrier["traceparent"])
	return err
}
