package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"homeworkpoints/internal/cache"
	"homeworkpoints/internal/models"
	"homeworkpoints/internal/repository"
)

// SettlementService owns all writes to MonthlyPrizePool and, via the rebuild
// path, UserMonthlyPoints. Manual admin settlement and the auto trigger both
// call Settle; the conditional pool update inside the transaction is the only
// race guard either path needs.
type SettlementService struct {
	Repo     repository.Repository
	Points   *PointsService
	Cache    *cache.LeaderboardCache
	Logger   *zap.Logger
	BasePool decimal.Decimal

	// Now is overridable in tests; nil means time.Now.
	Now func() time.Time
}

type UserReward struct {
	Nickname string          `json:"nickname"`
	Points   decimal.Decimal `json:"points"`
	Reward   decimal.Decimal `json:"reward"`
}

type SettlementResult struct {
	YearMonth     string          `json:"year_month"`
	TotalPool     decimal.Decimal `json:"total_pool"`
	TotalPoints   decimal.Decimal `json:"total_points"`
	Distributed   decimal.Decimal `json:"distributed"`
	NextCarryOver decimal.Decimal `json:"next_carry_over"`
	SettledAt     time.Time       `json:"settled_at"`
	Rewards       []UserReward    `json:"rewards"`
}

func (s *SettlementService) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

// GetOrCreatePool lazily materializes the month's pool row. Carry-over is
// seeded from the previous month only once it is settled; an unsettled or
// missing previous month contributes zero. Racing creates converge through
// the store's on-conflict-do-nothing insert plus re-read.
func (s *SettlementService) GetOrCreatePool(ctx context.Context, yearMonth string) (*models.MonthlyPrizePool, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if err := ValidateYearMonth(yearMonth); err != nil {
		return nil, err
	}
	pool, err := s.Repo.GetMonthlyPrizePool(ctx, yearMonth)
	if err != nil {
		return nil, err
	}
	if pool != nil {
		return pool, nil
	}

	prevMonth, err := PreviousMonth(yearMonth)
	if err != nil {
		return nil, err
	}
	carryOver := decimal.Zero
	prev, err := s.Repo.GetMonthlyPrizePool(ctx, prevMonth)
	if err != nil {
		return nil, err
	}
	if prev != nil && prev.IsSettled {
		carryOver = prev.NextCarryOver
	}

	item := &models.MonthlyPrizePool{
		YearMonth: yearMonth,
		BasePool:  s.BasePool,
		CarryOver: carryOver,
	}
	if err := s.Repo.CreateMonthlyPrizePool(ctx, item); err != nil {
		return nil, err
	}
	pool, err = s.Repo.GetMonthlyPrizePool(ctx, yearMonth)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: prize pool for %s", ErrNotFound, yearMonth)
	}
	return pool, nil
}

// computeDistribution applies the payout rule to the month's aggregate rows.
// Below the pool everyone is paid 1:1 and the remainder carries over; at or
// above the pool the payout is proportional and the pool is exhausted.
// Either way distributed + nextCarryOver == totalPool. Per-user rewards are
// rounded half-away-from-zero to 2 digits at this presentation boundary;
// the pool totals stay exact.
func computeDistribution(rows []models.UserMonthlyPoints, totalPool decimal.Decimal) (rewards []UserReward, totalPoints, distributed, nextCarryOver decimal.Decimal) {
	totalPoints = decimal.Zero
	for _, row := range rows {
		totalPoints = totalPoints.Add(row.Points)
	}

	rewards = make([]UserReward, 0, len(rows))
	if totalPoints.LessThan(totalPool) {
		for _, row := range rows {
			rewards = append(rewards, UserReward{
				Nickname: row.Nickname,
				Points:   row.Points,
				Reward:   row.Points.Round(2),
			})
		}
		return rewards, totalPoints, totalPoints, totalPool.Sub(totalPoints)
	}

	for _, row := range rows {
		reward := decimal.Zero
		if totalPoints.IsPositive() {
			reward = row.Points.Mul(totalPool).Div(totalPoints).Round(2)
		}
		rewards = append(rewards, UserReward{
			Nickname: row.Nickname,
			Points:   row.Points,
			Reward:   reward,
		})
	}
	return rewards, totalPoints, totalPool, decimal.Zero
}

// Settle freezes the month: snapshots totals, computes the distribution and
// flips is_settled under a conditional update. A concurrent settle that loses
// the race gets ErrAlreadySettled and leaves no trace.
func (s *SettlementService) Settle(ctx context.Context, yearMonth string) (*SettlementResult, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	pool, err := s.GetOrCreatePool(ctx, yearMonth)
	if err != nil {
		return nil, err
	}
	if pool.IsSettled {
		return nil, fmt.Errorf("%w: %s", ErrAlreadySettled, yearMonth)
	}

	settledAt := s.now()
	totalPool := pool.TotalPool()
	nextMonth, err := NextMonth(yearMonth)
	if err != nil {
		return nil, err
	}
	var result *SettlementResult
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		rows, err := s.Repo.ListUserMonthlyPointsTx(ctx, tx, yearMonth)
		if err != nil {
			return err
		}
		rewards, totalPoints, distributed, nextCarryOver := computeDistribution(rows, totalPool)

		affected, err := s.Repo.MarkPoolSettledTx(ctx, tx, yearMonth, repository.SettleOutcome{
			TotalPoints:   totalPoints,
			Distributed:   distributed,
			NextCarryOver: nextCarryOver,
			SettledAt:     settledAt,
		})
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrAlreadySettled, yearMonth)
		}

		rewardsJSON, err := json.Marshal(rewards)
		if err != nil {
			return err
		}
		log := &models.SettlementLog{
			YearMonth:     yearMonth,
			Action:        models.SettlementActionSettle,
			OperationID:   uuid.NewString(),
			TotalPool:     totalPool,
			TotalPoints:   totalPoints,
			Distributed:   distributed,
			NextCarryOver: nextCarryOver,
			Rewards:       datatypes.JSON(rewardsJSON),
			CreatedAt:     settledAt,
		}
		if err := s.Repo.InsertSettlementLogTx(ctx, tx, log); err != nil {
			return err
		}

		// The next month's pool may already exist (leaderboard reads create it
		// lazily all month long); push the carry-over into it so the seeding
		// rule holds regardless of creation order. Zero rows means it will be
		// seeded at lazy create instead.
		if _, err := s.Repo.SetPoolCarryOverTx(ctx, tx, nextMonth, nextCarryOver); err != nil {
			return err
		}

		result = &SettlementResult{
			YearMonth:     yearMonth,
			TotalPool:     totalPool,
			TotalPoints:   totalPoints,
			Distributed:   distributed,
			NextCarryOver: nextCarryOver,
			SettledAt:     settledAt,
			Rewards:       rewards,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Invalidate(ctx, yearMonth)
	s.Cache.Invalidate(ctx, nextMonth)
	if s.Logger != nil {
		s.Logger.Info("month settled",
			zap.String("year_month", yearMonth),
			zap.String("total_pool", result.TotalPool.String()),
			zap.String("total_points", result.TotalPoints.String()),
			zap.String("distributed", result.Distributed.String()),
			zap.String("next_carry_over", result.NextCarryOver.String()),
			zap.Int("users", len(result.Rewards)),
		)
	}
	return result, nil
}

// Cancel reverses a settlement: the pool is reset and the aggregate rebuilt
// from the ledger, both in one transaction. The ledger is untouched, which is
// what makes the rebuild exact regardless of prior aggregate state.
func (s *SettlementService) Cancel(ctx context.Context, yearMonth string) (*RebuildSummary, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if err := ValidateYearMonth(yearMonth); err != nil {
		return nil, err
	}
	pool, err := s.Repo.GetMonthlyPrizePool(ctx, yearMonth)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: prize pool for %s", ErrNotFound, yearMonth)
	}
	if !pool.IsSettled {
		return nil, fmt.Errorf("%w: %s", ErrNotSettled, yearMonth)
	}

	canceledAt := s.now()
	nextMonth, err := NextMonth(yearMonth)
	if err != nil {
		return nil, err
	}
	var summary *RebuildSummary
	err = s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		affected, err := s.Repo.ResetPoolTx(ctx, tx, yearMonth)
		if err != nil {
			return err
		}
		if affected == 0 {
			return fmt.Errorf("%w: %s", ErrNotSettled, yearMonth)
		}

		// Take back any carry-over already seeded or propagated into the next
		// month; an unsettled previous month contributes zero. A settled next
		// month keeps its frozen value.
		if _, err := s.Repo.SetPoolCarryOverTx(ctx, tx, nextMonth, decimal.Zero); err != nil {
			return err
		}

		summary, err = s.Points.RebuildFromLedgerTx(ctx, tx, yearMonth)
		if err != nil {
			return err
		}

		log := &models.SettlementLog{
			YearMonth:   yearMonth,
			Action:      models.SettlementActionCancel,
			OperationID: uuid.NewString(),
			TotalPool:   pool.TotalPool(),
			TotalPoints: summary.TotalPoints,
			CreatedAt:   canceledAt,
		}
		return s.Repo.InsertSettlementLogTx(ctx, tx, log)
	})
	if err != nil {
		return nil, err
	}

	s.Cache.Invalidate(ctx, yearMonth)
	s.Cache.Invalidate(ctx, nextMonth)
	if s.Logger != nil {
		s.Logger.Info("settlement canceled",
			zap.String("year_month", yearMonth),
			zap.Int("users", summary.Users),
			zap.Int("entries", summary.Entries),
			zap.String("total_points", summary.TotalPoints.String()),
		)
	}
	return summary, nil
}

// GetSettlementResult re-serves the frozen reward breakdown of a settled
// month from the audit log.
func (s *SettlementService) GetSettlementResult(ctx context.Context, yearMonth string) (*SettlementResult, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if err := ValidateYearMonth(yearMonth); err != nil {
		return nil, err
	}
	pool, err := s.Repo.GetMonthlyPrizePool(ctx, yearMonth)
	if err != nil {
		return nil, err
	}
	if pool == nil {
		return nil, fmt.Errorf("%w: prize pool for %s", ErrNotFound, yearMonth)
	}
	if !pool.IsSettled || pool.SettledAt == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotSettled, yearMonth)
	}
	log, err := s.Repo.GetLatestSettlementLog(ctx, yearMonth, models.SettlementActionSettle)
	if err != nil {
		return nil, err
	}
	if log == nil {
		return nil, fmt.Errorf("%w: settlement log for %s", ErrNotFound, yearMonth)
	}

	var rewards []UserReward
	if len(log.Rewards) > 0 {
		if err := json.Unmarshal(log.Rewards, &rewards); err != nil {
			return nil, err
		}
	}
	return &SettlementResult{
		YearMonth:     yearMonth,
		TotalPool:     log.TotalPool,
		TotalPoints:   log.TotalPoints,
		Distributed:   log.Distributed,
		NextCarryOver: log.NextCarryOver,
		SettledAt:     *pool.SettledAt,
		Rewards:       rewards,
	}, nil
}

func (s *SettlementService) ListPools(ctx context.Context, params repository.ListPoolsParams) ([]models.MonthlyPrizePool, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	return s.Repo.ListMonthlyPrizePools(ctx, params)
}
