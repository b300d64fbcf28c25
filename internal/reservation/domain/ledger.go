package domain

import "fmt"

// Ledger is the per-equipment stock counter set plus its optimistic-locking
// version. Operations are pure: they return the moved state and never touch
// a store. The caller persists the result with a conditional write on Version.
type Ledger struct {
	Available int
	Reserved  int
	Pending   int
	Version   int64
}

// TryReserve moves qty units from available to reserved and counts them as
// pending. Units are conserved: Available+Reserved is identical before and
// after.
func (l Ledger) TryReserve(qty int) (Ledger, error) {
	if qty <= 0 {
		return Ledger{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidRequest, qty)
	}
	if qty > l.Available {
		return Ledger{}, fmt.Errorf("%w: requested %d, available %d", ErrInsufficientStock, qty, l.Available)
	}
	l.Available -= qty
	l.Reserved += qty
	l.Pending += qty
	return l, nil
}

// TryRelease moves qty units back from reserved to available. pendingToo is
// set when the released reservation was still PENDING, so the denormalized
// pending counter drops with it.
func (l Ledger) TryRelease(qty int, pendingToo bool) (Ledger, error) {
	if qty <= 0 {
		return Ledger{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidRequest, qty)
	}
	if qty > l.Reserved {
		return Ledger{}, fmt.Errorf("%w: requested %d, reserved %d", ErrInvalidRelease, qty, l.Reserved)
	}
	l.Available += qty
	l.Reserved -= qty
	if pendingToo {
		l.Pending -= qty
		if l.Pending < 0 {
			l.Pending = 0
		}
	}
	return l, nil
}

// ConfirmPending records that qty units left the PENDING pool. Available and
// Reserved are untouched: a confirmed reservation still holds its units. The
// pending counter is denormalized bookkeeping, so drift clamps at zero rather
// than failing the confirm.
func (l Ledger) ConfirmPending(qty int) (Ledger, error) {
	if qty <= 0 {
		return Ledger{}, fmt.Errorf("%w: quantity must be positive, got %d", ErrInvalidRequest, qty)
	}
	l.Pending -= qty
	if l.Pending < 0 {
		l.Pending = 0
	}
	return l, nil
}

// HasAvailable reports whether qty units can currently be promised.
func (l Ledger) HasAvailable(qty int) bool {
	return qty > 0 && qty <= l.Available
}
