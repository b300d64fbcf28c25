package application

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/skishop/reservation-service/internal/reservation/domain"
)

type SweeperConfig struct {
	Interval     time.Duration
	WarnInterval time.Duration
	WarnWindow   time.Duration
	BatchSize    int
}

func DefaultSweeperConfig() SweeperConfig {
	return SweeperConfig{
		Interval:     60 * time.Second,
		WarnInterval: 5 * time.Minute,
		WarnWindow:   5 * time.Minute,
		BatchSize:    100,
	}
}

// Sweeper expires overdue PENDING reservations on a timer, reclaiming their
// held stock through the same release path as explicit cancellation. It holds
// no state of its own: anything a tick cannot finish is picked up by the next
// one, and the status guard in the store keeps double release impossible.
type Sweeper struct {
	log    *slog.Logger
	engine *Engine
	repo   Repository
	cfg    SweeperConfig
}

func NewSweeper(log *slog.Logger, engine *Engine, repo Repository, cfg SweeperConfig) *Sweeper {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSweeperConfig().Interval
	}
	if cfg.WarnInterval <= 0 {
		cfg.WarnInterval = DefaultSweeperConfig().WarnInterval
	}
	if cfg.WarnWindow <= 0 {
		cfg.WarnWindow = DefaultSweeperConfig().WarnWindow
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSweeperConfig().BatchSize
	}
	return &Sweeper{log: log, engine: engine, repo: repo, cfg: cfg}
}

func (s *Sweeper) Run(ctx context.Context) error {
	sweep := time.NewTicker(s.cfg.Interval)
	defer sweep.Stop()
	warn := time.NewTicker(s.cfg.WarnInterval)
	defer warn.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("sweeper stopping")
			return nil
		case <-sweep.C:
			s.SweepOnce(ctx)
		case <-warn.C:
			s.WarnOnce(ctx)
		}
	}
}

// SweepOnce expires one bounded batch of overdue reservations. A failure on
// one reservation is isolated: it is logged and the sweep moves on.
func (s *Sweeper) SweepOnce(ctx context.Context) int {
	now := time.Now().UTC()
	overdue, err := s.repo.ListOverdue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("sweep list failed", "err", err)
		return 0
	}
	expired := 0
	for _, res := range overdue {
		if ctx.Err() != nil {
			return expired
		}
		if _, err := s.engine.Expire(ctx, res.ID); err != nil {
			// Lost the race to a concurrent confirm, cancel, or extend.
			if errors.Is(err, domain.ErrInvalidStateTransition) {
				continue
			}
			s.log.Error("expire failed", "reservation_id", res.ID, "err", err)
			continue
		}
		expired++
	}
	if expired > 0 {
		s.log.Info("sweep complete", "expired", expired, "overdue", len(overdue))
	}
	return expired
}

// WarnOnce emits ReservationExpiringWarning for PENDING reservations close to
// expiry. No lifecycle state changes; the warned stamp only prevents repeats.
func (s *Sweeper) WarnOnce(ctx context.Context) int {
	now := time.Now().UTC()
	expiring, err := s.repo.ListExpiring(ctx, now, s.cfg.WarnWindow, s.cfg.BatchSize)
	if err != nil {
		s.log.Error("warn list failed", "err", err)
		return 0
	}
	warned := 0
	for _, res := range expiring {
		if ctx.Err() != nil {
			return warned
		}
		payload, err := json.Marshal(domain.NewReservationEvent(res))
		if err != nil {
			s.log.Error("warn payload failed", "reservation_id", res.ID, "err", err)
			continue
		}
		ok, err := s.repo.MarkWarned(ctx, res.ID, now, domain.EventReservationExpiringWarning, payload)
		if err != nil {
			s.log.Error("warn mark failed", "reservation_id", res.ID, "err", err)
			continue
		}
		if ok {
			warned++
		}
	}
	if warned > 0 {
		s.log.Info("expiry warnings queued", "warned", warned)
	}
	return warned
}
