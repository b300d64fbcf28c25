package domain

import "errors"

// Error kinds exposed by the reservation engine. The transport layer maps
// these to protocol status codes; only ErrConcurrentUpdateConflict-class
// version mismatches are retried internally.
var (
	ErrInvalidRequest           = errors.New("invalid request")
	ErrNotFound                 = errors.New("reservation not found")
	ErrEquipmentNotFound        = errors.New("equipment not found")
	ErrEquipmentUnavailable     = errors.New("equipment unavailable for rental")
	ErrInsufficientStock        = errors.New("insufficient stock")
	ErrInvalidStateTransition   = errors.New("invalid reservation state transition")
	ErrInvalidRelease           = errors.New("release exceeds reserved quantity")
	ErrConcurrentUpdateConflict = errors.New("concurrent update conflict")
)
