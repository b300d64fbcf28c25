package application

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/skishop/reservation-service/internal/reservation/domain"
)

type Config struct {
	DefaultTTL   time.Duration
	MaxLifetime  time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
}

func DefaultConfig() Config {
	return Config{
		DefaultTTL:   30 * time.Minute,
		MaxLifetime:  2 * time.Hour,
		MaxRetries:   5,
		RetryBackoff: 25 * time.Millisecond,
	}
}

// Engine brokers the reservation lifecycle against the store's optimistic
// version check. Only store-level version or status races are retried here;
// every other failure propagates to the caller immediately.
type Engine struct {
	log  *slog.Logger
	repo Repository
	idem IdempotencyStore
	cfg  Config
}

func NewEngine(log *slog.Logger, repo Repository, idem IdempotencyStore, cfg Config) *Engine {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = DefaultConfig().DefaultTTL
	}
	if cfg.MaxLifetime <= 0 {
		cfg.MaxLifetime = DefaultConfig().MaxLifetime
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultConfig().RetryBackoff
	}
	return &Engine{log: log, repo: repo, idem: idem, cfg: cfg}
}

type CreateParams struct {
	EquipmentID    string
	ProductID      string
	CustomerID     string
	Quantity       int
	TTL            time.Duration
	IdempotencyKey string
}

func (e *Engine) Create(ctx context.Context, p CreateParams) (domain.Reservation, error) {
	if p.Quantity <= 0 {
		return domain.Reservation{}, fmt.Errorf("%w: quantity must be positive", domain.ErrInvalidRequest)
	}
	if p.EquipmentID == "" && p.ProductID == "" {
		return domain.Reservation{}, fmt.Errorf("%w: equipment or product id required", domain.ErrInvalidRequest)
	}
	if p.CustomerID == "" {
		return domain.Reservation{}, fmt.Errorf("%w: customer id required", domain.ErrInvalidRequest)
	}
	ttl := p.TTL
	if ttl <= 0 {
		ttl = e.cfg.DefaultTTL
	}
	if ttl > e.cfg.MaxLifetime {
		return domain.Reservation{}, fmt.Errorf("%w: ttl exceeds maximum reservation lifetime", domain.ErrInvalidRequest)
	}

	id := uuid.NewString()
	if p.IdempotencyKey != "" && e.idem != nil {
		existing, claimed, err := e.idem.Claim(ctx, p.IdempotencyKey, id)
		if err != nil {
			// The key store is an optimization, not the source of truth.
			e.log.Error("idempotency claim failed", "key", p.IdempotencyKey, "err", err)
		} else if !claimed {
			return e.repo.GetReservation(ctx, existing)
		}
	}

	res, err := e.createWithRetry(ctx, p, id, ttl)
	if err != nil && p.IdempotencyKey != "" && e.idem != nil {
		if relErr := e.idem.Release(ctx, p.IdempotencyKey); relErr != nil {
			e.log.Error("idempotency release failed", "key", p.IdempotencyKey, "err", relErr)
		}
	}
	return res, err
}

func (e *Engine) createWithRetry(ctx context.Context, p CreateParams, id string, ttl time.Duration) (domain.Reservation, error) {
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return domain.Reservation{}, err
		}

		eq, err := e.loadEquipment(ctx, p)
		if err != nil {
			return domain.Reservation{}, err
		}
		if !eq.Rentable() {
			return domain.Reservation{}, fmt.Errorf("%w: equipment %s", domain.ErrEquipmentUnavailable, eq.ID)
		}
		if !eq.Ledger().HasAvailable(p.Quantity) {
			// Insufficient stock is reported off a fresh read, never stale.
			return domain.Reservation{}, fmt.Errorf("%w: requested %d, available %d", domain.ErrInsufficientStock, p.Quantity, eq.Ledger().Available)
		}
		led, err := eq.Ledger().TryReserve(p.Quantity)
		if err != nil {
			return domain.Reservation{}, err
		}

		res := domain.NewReservation(id, eq, p.CustomerID, p.Quantity, ttl)
		payload, err := json.Marshal(domain.NewReservationEvent(res))
		if err != nil {
			return domain.Reservation{}, err
		}
		ok, err := e.repo.CreateWithLedger(ctx, res, led, eq.Version, domain.EventReservationCreated, payload)
		if err != nil {
			return domain.Reservation{}, err
		}
		if ok {
			e.log.Info("reservation created", "reservation_id", res.ID, "equipment_id", eq.ID, "quantity", p.Quantity)
			return res, nil
		}
		e.log.Info("ledger version conflict on create, retrying", "equipment_id", eq.ID, "attempt", attempt+1)
	}
	return domain.Reservation{}, domain.ErrConcurrentUpdateConflict
}

func (e *Engine) Confirm(ctx context.Context, reservationID string) (domain.Reservation, error) {
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return domain.Reservation{}, err
		}

		res, err := e.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return domain.Reservation{}, err
		}
		next, err := res.Confirm(time.Now().UTC())
		if err != nil {
			return domain.Reservation{}, err
		}
		eq, err := e.repo.GetEquipment(ctx, res.EquipmentID)
		if err != nil {
			return domain.Reservation{}, err
		}
		led, err := eq.Ledger().ConfirmPending(res.Quantity)
		if err != nil {
			return domain.Reservation{}, err
		}
		payload, err := json.Marshal(domain.NewReservationEvent(next))
		if err != nil {
			return domain.Reservation{}, err
		}
		ok, err := e.repo.TransitionWithLedger(ctx, next, domain.StatusPending, res.ExpiresAt, led, eq.Version, domain.EventReservationConfirmed, payload)
		if err != nil {
			return domain.Reservation{}, err
		}
		if ok {
			e.log.Info("reservation confirmed", "reservation_id", res.ID)
			return next, nil
		}
	}
	return domain.Reservation{}, domain.ErrConcurrentUpdateConflict
}

func (e *Engine) Cancel(ctx context.Context, reservationID, reason string) (domain.Reservation, error) {
	return e.release(ctx, reservationID, func(r domain.Reservation, now time.Time) (domain.Reservation, error) {
		return r.Cancel(now, reason)
	}, domain.EventReservationCancelled)
}

// Expire is the sweeper's release path. It only succeeds for a PENDING
// reservation whose expiry has passed.
func (e *Engine) Expire(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return e.release(ctx, reservationID, func(r domain.Reservation, now time.Time) (domain.Reservation, error) {
		return r.Expire(now)
	}, domain.EventReservationExpired)
}

// release is the shared cancel/expire path: compute the lifecycle transition,
// give the held units back to the ledger, and persist both guarded by status
// and version. Releases happen exactly once because the status guard fails
// for any reservation another writer already terminated.
func (e *Engine) release(ctx context.Context, reservationID string, transition func(domain.Reservation, time.Time) (domain.Reservation, error), eventType string) (domain.Reservation, error) {
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return domain.Reservation{}, err
		}

		res, err := e.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return domain.Reservation{}, err
		}
		next, err := transition(res, time.Now().UTC())
		if err != nil {
			return domain.Reservation{}, err
		}
		eq, err := e.repo.GetEquipment(ctx, res.EquipmentID)
		if err != nil {
			return domain.Reservation{}, err
		}
		wasPending := res.Status == domain.StatusPending
		led, err := eq.Ledger().TryRelease(res.Quantity, wasPending)
		if err != nil {
			return domain.Reservation{}, err
		}
		payload, err := json.Marshal(domain.NewReservationEvent(next))
		if err != nil {
			return domain.Reservation{}, err
		}
		// Guarding on the expiry read above means an extend that commits
		// between this read and the write voids the transition instead of
		// losing to it. The retry then re-reads and re-evaluates.
		ok, err := e.repo.TransitionWithLedger(ctx, next, res.Status, res.ExpiresAt, led, eq.Version, eventType, payload)
		if err != nil {
			return domain.Reservation{}, err
		}
		if ok {
			e.log.Info("reservation released", "reservation_id", res.ID, "status", next.Status, "reason", next.ReasonCode)
			return next, nil
		}
	}
	return domain.Reservation{}, domain.ErrConcurrentUpdateConflict
}

func (e *Engine) Extend(ctx context.Context, reservationID string, additional time.Duration) (domain.Reservation, error) {
	if additional <= 0 {
		return domain.Reservation{}, fmt.Errorf("%w: extension must be positive", domain.ErrInvalidRequest)
	}
	for attempt := 0; attempt < e.cfg.MaxRetries; attempt++ {
		if err := e.backoff(ctx, attempt); err != nil {
			return domain.Reservation{}, err
		}

		res, err := e.repo.GetReservation(ctx, reservationID)
		if err != nil {
			return domain.Reservation{}, err
		}
		next, err := res.Extend(additional, e.cfg.MaxLifetime)
		if err != nil {
			return domain.Reservation{}, err
		}
		ok, err := e.repo.UpdateExpiry(ctx, next, domain.StatusPending, res.ExpiresAt)
		if err != nil {
			return domain.Reservation{}, err
		}
		if ok {
			e.log.Info("reservation extended", "reservation_id", res.ID, "expires_at", next.ExpiresAt)
			return next, nil
		}
	}
	return domain.Reservation{}, domain.ErrConcurrentUpdateConflict
}

func (e *Engine) Get(ctx context.Context, reservationID string) (domain.Reservation, error) {
	return e.repo.GetReservation(ctx, reservationID)
}

func (e *Engine) ListByCustomer(ctx context.Context, customerID string) ([]domain.Reservation, error) {
	return e.repo.ListByCustomer(ctx, customerID)
}

func (e *Engine) ListByEquipment(ctx context.Context, equipmentID string) ([]domain.Reservation, error) {
	return e.repo.ListByEquipment(ctx, equipmentID)
}

func (e *Engine) Availability(ctx context.Context, equipmentID string) (domain.Equipment, error) {
	return e.repo.GetEquipment(ctx, equipmentID)
}

func (e *Engine) loadEquipment(ctx context.Context, p CreateParams) (domain.Equipment, error) {
	if p.EquipmentID != "" {
		return e.repo.GetEquipment(ctx, p.EquipmentID)
	}
	return e.repo.GetEquipmentByProduct(ctx, p.ProductID)
}

// backoff sleeps before retry attempts, honoring caller cancellation. The
// first attempt runs immediately.
func (e *Engine) backoff(ctx context.Context, attempt int) error {
	if attempt == 0 {
		return nil
	}
	t := time.NewTimer(time.Duration(attempt) * e.cfg.RetryBackoff)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
