package domain

import "time"

// Equipment is one rentable item's ledger row for a single warehouse.
// Counters are mutated only through the reservation engine's
// conditional-write path; Version is the optimistic-concurrency token.
type Equipment struct {
	ID              string
	ProductID       string
	WarehouseID     string
	Name            string
	Available       int
	Reserved        int
	Pending         int
	Version         int64
	Active          bool
	RentalAvailable bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (e Equipment) Ledger() Ledger {
	return Ledger{Available: e.Available, Reserved: e.Reserved, Pending: e.Pending, Version: e.Version}
}

// Rentable is the precondition for creating reservations. Deactivated
// equipment keeps serving reads and releases but accepts no new holds.
func (e Equipment) Rentable() bool {
	return e.Active && e.RentalAvailable
}
