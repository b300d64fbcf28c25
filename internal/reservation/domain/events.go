package domain

import "time"

// Lifecycle event types published to the bus. Delivery is at-least-once via
// the transactional outbox; downstream consumers are expected to be
// idempotent.
const (
	EventReservationCreated         = "ReservationCreated"
	EventReservationConfirmed       = "ReservationConfirmed"
	EventReservationCancelled       = "ReservationCancelled"
	EventReservationExpired         = "ReservationExpired"
	EventReservationExpiringWarning = "ReservationExpiringWarning"
)

type ReservationEvent struct {
	ReservationID string    `json:"reservation_id"`
	EquipmentID   string    `json:"equipment_id"`
	ProductID     string    `json:"product_id"`
	CustomerID    string    `json:"customer_id"`
	Quantity      int       `json:"quantity"`
	Status        Status    `json:"status"`
	ReasonCode    string    `json:"reason_code,omitempty"`
	ExpiresAt     time.Time `json:"expires_at,omitempty"`
	OccurredAt    time.Time `json:"occurred_at"`
}

func NewReservationEvent(r Reservation) ReservationEvent {
	return ReservationEvent{
		ReservationID: r.ID,
		EquipmentID:   r.EquipmentID,
		ProductID:     r.ProductID,
		CustomerID:    r.CustomerID,
		Quantity:      r.Quantity,
		Status:        r.Status,
		ReasonCode:    r.ReasonCode,
		ExpiresAt:     r.ExpiresAt,
		OccurredAt:    time.Now().UTC(),
	}
}
