package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"homeworkpoints/internal/config"
	"homeworkpoints/internal/models"
	"homeworkpoints/internal/repository"
)

// minuteTolerance widens the firing window so a coarse tick cadence still
// guarantees at least one hit inside the configured minute.
const minuteTolerance = 5

// AutoSettleService is the time-window trigger over Settle. Firing is
// at-least-once (several ticks can land in one window); the effect is
// at-most-once because of the last-settled-month marker plus the settlement
// race guard inside Settle itself.
type AutoSettleService struct {
	Repo       repository.Repository
	Settlement *SettlementService
	Logger     *zap.Logger

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time

	mu        sync.Mutex
	running   bool
	lastCheck time.Time
}

type AutoSettleStatus struct {
	IsRunning        bool       `json:"is_running"`
	LastCheckTime    *time.Time `json:"last_check_time"`
	LastSettledMonth *string    `json:"last_settled_month"`
}

type AutoSettleConfigInput struct {
	Enabled    bool `json:"enabled"`
	DayOfMonth int  `json:"day_of_month"`
	Hour       int  `json:"hour"`
	Minute     int  `json:"minute"`
}

func (s *AutoSettleService) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// EnsureDefaultConfig seeds the singleton config row from file defaults on
// first boot. An existing row is left untouched; the DB is authoritative.
func (s *AutoSettleService) EnsureDefaultConfig(ctx context.Context, defaults config.AutoSettleConfig) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	existing, err := s.Repo.GetAutoSettlementConfig(ctx)
	if err != nil {
		return err
	}
	if existing != nil {
		return nil
	}
	item := &models.AutoSettlementConfig{
		ID:         models.AutoSettlementConfigID,
		Enabled:    defaults.Enabled,
		DayOfMonth: defaults.DayOfMonth,
		Hour:       defaults.Hour,
		Minute:     defaults.Minute,
		UpdatedAt:  s.now(),
	}
	if err := validateAutoSettleRanges(item.DayOfMonth, item.Hour, item.Minute); err != nil {
		return err
	}
	return s.Repo.SaveAutoSettlementConfig(ctx, item)
}

// Tick is one scheduler evaluation. The config row is re-read on every tick
// so admin edits take effect without restart.
func (s *AutoSettleService) Tick(ctx context.Context) error {
	if s == nil || s.Repo == nil || s.Settlement == nil {
		return nil
	}
	now := s.now()
	s.mu.Lock()
	s.running = true
	s.lastCheck = now
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	cfg, err := s.Repo.GetAutoSettlementConfig(ctx)
	if err != nil {
		return err
	}
	if cfg == nil || !cfg.Enabled {
		return nil
	}
	if !inWindow(now, cfg.DayOfMonth, cfg.Hour, cfg.Minute) {
		return nil
	}

	targetMonth := PreviousMonthOf(now)
	if cfg.LastSettledMonth != nil && *cfg.LastSettledMonth == targetMonth {
		return nil
	}

	pool, err := s.Repo.GetMonthlyPrizePool(ctx, targetMonth)
	if err != nil {
		return err
	}
	if pool != nil && pool.IsSettled {
		// Settled manually outside the scheduler; resynchronize the marker.
		if err := s.Repo.UpdateLastSettledMonth(ctx, targetMonth); err != nil {
			return err
		}
		if s.Logger != nil {
			s.Logger.Info("auto settle marker resynced", zap.String("target_month", targetMonth))
		}
		return nil
	}

	result, err := s.Settlement.Settle(ctx, targetMonth)
	if err != nil {
		if errors.Is(err, ErrAlreadySettled) {
			// Lost the race to a concurrent settle; the month is done either way.
			return s.Repo.UpdateLastSettledMonth(ctx, targetMonth)
		}
		return err
	}
	if err := s.Repo.UpdateLastSettledMonth(ctx, targetMonth); err != nil {
		return err
	}
	if s.Logger != nil {
		s.Logger.Info("auto settle fired",
			zap.String("target_month", targetMonth),
			zap.String("distributed", result.Distributed.String()),
			zap.String("next_carry_over", result.NextCarryOver.String()),
		)
	}
	return nil
}

// inWindow requires an exact day and hour match; the minute only needs to be
// within the tolerance so the window cannot leak into the wrong hour.
func inWindow(now time.Time, dayOfMonth, hour, minute int) bool {
	if now.Day() != dayOfMonth || now.Hour() != hour {
		return false
	}
	diff := now.Minute() - minute
	if diff < 0 {
		diff = -diff
	}
	return diff <= minuteTolerance
}

func (s *AutoSettleService) Status(ctx context.Context) (*AutoSettleStatus, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	cfg, err := s.Repo.GetAutoSettlementConfig(ctx)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	status := &AutoSettleStatus{IsRunning: s.running}
	if !s.lastCheck.IsZero() {
		t := s.lastCheck
		status.LastCheckTime = &t
	}
	s.mu.Unlock()
	if cfg != nil {
		status.LastSettledMonth = cfg.LastSettledMonth
	}
	return status, nil
}

func (s *AutoSettleService) GetConfig(ctx context.Context) (*models.AutoSettlementConfig, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	cfg, err := s.Repo.GetAutoSettlementConfig(ctx)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		return nil, fmt.Errorf("%w: auto settlement config", ErrNotFound)
	}
	return cfg, nil
}

// UpdateConfig applies an admin edit, preserving LastSettledMonth.
func (s *AutoSettleService) UpdateConfig(ctx context.Context, input AutoSettleConfigInput) (*models.AutoSettlementConfig, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if err := validateAutoSettleRanges(input.DayOfMonth, input.Hour, input.Minute); err != nil {
		return nil, err
	}
	existing, err := s.Repo.GetAutoSettlementConfig(ctx)
	if err != nil {
		return nil, err
	}
	item := &models.AutoSettlementConfig{
		ID:         models.AutoSettlementConfigID,
		Enabled:    input.Enabled,
		DayOfMonth: input.DayOfMonth,
		Hour:       input.Hour,
		Minute:     input.Minute,
		UpdatedAt:  s.now(),
	}
	if existing != nil {
		item.LastSettledMonth = existing.LastSettledMonth
	}
	if err := s.Repo.SaveAutoSettlementConfig(ctx, item); err != nil {
		return nil, err
	}
	return s.Repo.GetAutoSettlementConfig(ctx)
}

// Day is capped at 28 so the window exists in every month.
func validateAutoSettleRanges(dayOfMonth, hour, minute int) error {
	if dayOfMonth < 1 || dayOfMonth > 28 {
		return fmt.Errorf("%w: day_of_month must be 1..28, got %d", ErrValidation, dayOfMonth)
	}
	if hour < 0 || hour > 23 {
		return fmt.Errorf("%w: hour must be 0..23, got %d", ErrValidation, hour)
	}
	if minute < 0 || minute > 59 {
		return fmt.Errorf("%w: minute must be 0..59, got %d", ErrValidation, minute)
	}
	return nil
}
