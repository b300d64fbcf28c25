package application

import (
	"context"
	"time"

	"github.com/skishop/reservation-service/internal/reservation/domain"
)

// Repository is the transactional store adapter. Ledger rows carry a version
// column; every conditional write reports (false, nil) when the expected
// version or status no longer matches, and the engine re-reads and retries.
// Writes that change state also insert the outbox row in the same
// transaction.
type Repository interface {
	GetEquipment(ctx context.Context, equipmentID string) (domain.Equipment, error)
	GetEquipmentByProduct(ctx context.Context, productID string) (domain.Equipment, error)
	GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error)
	ListByCustomer(ctx context.Context, customerID string) ([]domain.Reservation, error)
	ListByEquipment(ctx context.Context, equipmentID string) ([]domain.Reservation, error)

	// ListOverdue returns PENDING reservations whose expiry has passed, oldest
	// first, bounded by limit.
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error)
	// ListExpiring returns un-warned PENDING reservations expiring within the
	// window, bounded by limit.
	ListExpiring(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Reservation, error)

	// CreateWithLedger persists the new PENDING reservation together with the
	// moved ledger counters, guarded by expectedVersion.
	CreateWithLedger(ctx context.Context, res domain.Reservation, led domain.Ledger, expectedVersion int64, eventType string, payload []byte) (bool, error)
	// TransitionWithLedger applies a status transition guarded by the status
	// and expiry the engine read, and a ledger write guarded by
	// expectedVersion, atomically. The expiry guard keeps a transition
	// computed from a stale read (an extend landing under a sweep, say) from
	// ever being applied.
	TransitionWithLedger(ctx context.Context, res domain.Reservation, from domain.Status, fromExpiry time.Time, led domain.Ledger, expectedVersion int64, eventType string, payload []byte) (bool, error)
	// UpdateExpiry rewrites expires_at while the reservation still has the
	// given status and expiry. No ledger or outbox involvement.
	UpdateExpiry(ctx context.Context, res domain.Reservation, from domain.Status, fromExpiry time.Time) (bool, error)
	// MarkWarned stamps warned_at and queues the expiring-warning event while
	// the reservation is still PENDING.
	MarkWarned(ctx context.Context, reservationID string, warnedAt time.Time, eventType string, payload []byte) (bool, error)
}

// IdempotencyStore guards createReservation against naive client retries.
// Claim registers reservationID under key; when the key was already claimed
// it returns the prior reservation id instead.
type IdempotencyStore interface {
	Claim(ctx context.Context, key, reservationID string) (existing string, claimed bool, err error)
	Release(ctx context.Context, key string) error
}
