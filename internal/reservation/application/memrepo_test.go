package application

import (
	"context"
	"sync"
	"time"

	"github.com/skishop/reservation-service/internal/reservation/domain"
)

// memRepo emulates the store adapter: conditional writes succeed only when
// the expected version and status still match, exactly like the SQL
// implementation. Reads and writes interleave freely between the engine's
// read and write steps, so version conflicts happen for real under
// concurrent tests.
type memRepo struct {
	mu           sync.Mutex
	equipment    map[string]domain.Equipment
	reservations map[string]domain.Reservation
	events       []memEvent

	// forcedConflicts makes the next n conditional writes report a version
	// mismatch without touching state.
	forcedConflicts int
}

type memEvent struct {
	reservationID string
	eventType     string
}

func newMemRepo() *memRepo {
	return &memRepo{
		equipment:    make(map[string]domain.Equipment),
		reservations: make(map[string]domain.Reservation),
	}
}

func (m *memRepo) addEquipment(e domain.Equipment) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.equipment[e.ID] = e
}

func (m *memRepo) addReservation(r domain.Reservation) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
}

func (m *memRepo) getEquipment(id string) domain.Equipment {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.equipment[id]
}

func (m *memRepo) getReservation(id string) domain.Reservation {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.reservations[id]
}

func (m *memRepo) eventTypes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.events))
	for _, ev := range m.events {
		out = append(out, ev.eventType)
	}
	return out
}

func (m *memRepo) GetEquipment(ctx context.Context, equipmentID string) (domain.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.equipment[equipmentID]
	if !ok {
		return domain.Equipment{}, domain.ErrEquipmentNotFound
	}
	return e, nil
}

func (m *memRepo) GetEquipmentByProduct(ctx context.Context, productID string) (domain.Equipment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.equipment {
		if e.ProductID == productID {
			return e, nil
		}
	}
	return domain.Equipment{}, domain.ErrEquipmentNotFound
}

func (m *memRepo) GetReservation(ctx context.Context, reservationID string) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[reservationID]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return r, nil
}

func (m *memRepo) ListByCustomer(ctx context.Context, customerID string) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.CustomerID == customerID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) ListByEquipment(ctx context.Context, equipmentID string) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.EquipmentID == equipmentID {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) ListOverdue(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.Status == domain.StatusPending && r.ExpiresAt.Before(now) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) ListExpiring(ctx context.Context, now time.Time, window time.Duration, limit int) ([]domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Reservation
	for _, r := range m.reservations {
		if r.Status == domain.StatusPending && r.WarnedAt == nil &&
			!r.ExpiresAt.Before(now) && r.ExpiresAt.Before(now.Add(window)) && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (m *memRepo) CreateWithLedger(ctx context.Context, res domain.Reservation, led domain.Ledger, expectedVersion int64, eventType string, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedConflicts > 0 {
		m.forcedConflicts--
		return false, nil
	}
	eq, ok := m.equipment[res.EquipmentID]
	if !ok || eq.Version != expectedVersion {
		return false, nil
	}
	m.applyLedger(eq, led)
	m.reservations[res.ID] = res
	m.events = append(m.events, memEvent{reservationID: res.ID, eventType: eventType})
	return true, nil
}

func (m *memRepo) TransitionWithLedger(ctx context.Context, res domain.Reservation, from domain.Status, fromExpiry time.Time, led domain.Ledger, expectedVersion int64, eventType string, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.forcedConflicts > 0 {
		m.forcedConflicts--
		return false, nil
	}
	prev, ok := m.reservations[res.ID]
	if !ok || prev.Status != from || !prev.ExpiresAt.Equal(fromExpiry) {
		return false, nil
	}
	eq, ok := m.equipment[res.EquipmentID]
	if !ok || eq.Version != expectedVersion {
		return false, nil
	}
	m.applyLedger(eq, led)
	m.reservations[res.ID] = res
	m.events = append(m.events, memEvent{reservationID: res.ID, eventType: eventType})
	return true, nil
}

func (m *memRepo) UpdateExpiry(ctx context.Context, res domain.Reservation, from domain.Status, fromExpiry time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.reservations[res.ID]
	if !ok || prev.Status != from || !prev.ExpiresAt.Equal(fromExpiry) {
		return false, nil
	}
	prev.ExpiresAt = res.ExpiresAt
	m.reservations[res.ID] = prev
	return true, nil
}

func (m *memRepo) MarkWarned(ctx context.Context, reservationID string, warnedAt time.Time, eventType string, payload []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.reservations[reservationID]
	if !ok || prev.Status != domain.StatusPending || prev.WarnedAt != nil {
		return false, nil
	}
	prev.WarnedAt = &warnedAt
	m.reservations[reservationID] = prev
	m.events = append(m.events, memEvent{reservationID: reservationID, eventType: eventType})
	return true, nil
}

func (m *memRepo) applyLedger(eq domain.Equipment, led domain.Ledger) {
	eq.Available = led.Available
	eq.Reserved = led.Reserved
	eq.Pending = led.Pending
	eq.Version++
	m.equipment[eq.ID] = eq
}

// memIdem is an in-memory IdempotencyStore.
type memIdem struct {
	mu   sync.Mutex
	keys map[string]string
}

func newMemIdem() *memIdem {
	return &memIdem{keys: make(map[string]string)}
}

func (m *memIdem) Claim(ctx context.Context, key, reservationID string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.keys[key]; ok {
		return existing, false, nil
	}
	m.keys[key] = reservationID
	return reservationID, true, nil
}

func (m *memIdem) Release(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	return nil
}
