package domain

import (
	"fmt"
	"time"
)

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusConfirmed Status = "CONFIRMED"
	StatusCancelled Status = "CANCELLED"
	StatusExpired   Status = "EXPIRED"
)

// Terminal reports whether no further lifecycle transition is legal.
func (s Status) Terminal() bool {
	return s == StatusCancelled || s == StatusExpired
}

const ReasonTimeout = "reservation_timeout"

// Reservation is a time-boxed claim on a quantity of one equipment's stock.
// Quantity is fixed at creation; the owning ledger's reserved counter is the
// sum of quantities over its non-terminal reservations.
type Reservation struct {
	ID          string
	EquipmentID string
	ProductID   string
	CustomerID  string
	Quantity    int
	Status      Status
	ReasonCode  string
	CreatedAt   time.Time
	ExpiresAt   time.Time
	ConfirmedAt *time.Time
	CancelledAt *time.Time
	WarnedAt    *time.Time
}

func NewReservation(id string, eq Equipment, customerID string, qty int, ttl time.Duration) Reservation {
	now := time.Now().UTC()
	return Reservation{
		ID:          id,
		EquipmentID: eq.ID,
		ProductID:   eq.ProductID,
		CustomerID:  customerID,
		Quantity:    qty,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

// Confirm moves PENDING to CONFIRMED. Confirming twice is a conflict, not a
// silent success, so caller bugs surface.
func (r Reservation) Confirm(now time.Time) (Reservation, error) {
	if r.Status != StatusPending {
		return Reservation{}, fmt.Errorf("%w: confirm from %s", ErrInvalidStateTransition, r.Status)
	}
	r.Status = StatusConfirmed
	r.ConfirmedAt = &now
	return r, nil
}

// Cancel moves any non-terminal reservation to CANCELLED.
func (r Reservation) Cancel(now time.Time, reason string) (Reservation, error) {
	if r.Status.Terminal() {
		return Reservation{}, fmt.Errorf("%w: cancel from %s", ErrInvalidStateTransition, r.Status)
	}
	r.Status = StatusCancelled
	r.CancelledAt = &now
	r.ReasonCode = reason
	return r, nil
}

// Expire moves an overdue PENDING reservation to EXPIRED.
func (r Reservation) Expire(now time.Time) (Reservation, error) {
	if r.Status != StatusPending {
		return Reservation{}, fmt.Errorf("%w: expire from %s", ErrInvalidStateTransition, r.Status)
	}
	if now.Before(r.ExpiresAt) {
		return Reservation{}, fmt.Errorf("%w: not yet overdue", ErrInvalidStateTransition)
	}
	r.Status = StatusExpired
	r.CancelledAt = &now
	r.ReasonCode = ReasonTimeout
	return r, nil
}

// Extend pushes ExpiresAt forward while PENDING, capped at maxLifetime from
// creation.
func (r Reservation) Extend(additional, maxLifetime time.Duration) (Reservation, error) {
	if r.Status != StatusPending {
		return Reservation{}, fmt.Errorf("%w: extend from %s", ErrInvalidStateTransition, r.Status)
	}
	if additional <= 0 {
		return Reservation{}, fmt.Errorf("%w: extension must be positive", ErrInvalidRequest)
	}
	next := r.ExpiresAt.Add(additional)
	if next.After(r.CreatedAt.Add(maxLifetime)) {
		return Reservation{}, fmt.Errorf("%w: extension exceeds maximum reservation lifetime", ErrInvalidRequest)
	}
	r.ExpiresAt = next
	return r, nil
}

// HoldsStock reports whether this reservation currently counts against the
// ledger's reserved quantity.
func (r Reservation) HoldsStock() bool {
	return !r.Status.Terminal()
}
