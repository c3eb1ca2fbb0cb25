package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"homeworkpoints/internal/cache"
	"homeworkpoints/internal/models"
	"homeworkpoints/internal/repository"
)

// PointsService keeps the monthly aggregate consistent with the ledger.
// The point value itself is computed upstream by the submission-approval
// flow; this service only records it.
type PointsService struct {
	Repo   repository.Repository
	Cache  *cache.LeaderboardCache
	Logger *zap.Logger
}

type RecordPointsInput struct {
	Nickname  string          `json:"nickname"`
	StageID   string          `json:"stage_id"`
	TeamCount int             `json:"team_count"`
	Points    decimal.Decimal `json:"points"`
	IsHalved  bool            `json:"is_halved"`
	YearMonth string          `json:"year_month"`
}

// RebuildSummary reports what a ledger rebuild re-derived.
type RebuildSummary struct {
	YearMonth   string          `json:"year_month"`
	Users       int             `json:"users"`
	Entries     int             `json:"entries"`
	TotalPoints decimal.Decimal `json:"total_points"`
}

// RecordPoints appends a ledger entry and upserts the aggregate row in one
// transaction, so the conservation invariant holds on every exit path.
func (s *PointsService) RecordPoints(ctx context.Context, input RecordPointsInput) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	input.Nickname = strings.TrimSpace(input.Nickname)
	if input.Nickname == "" {
		return fmt.Errorf("%w: nickname is required", ErrValidation)
	}
	if err := ValidateYearMonth(input.YearMonth); err != nil {
		return err
	}
	if !input.Points.IsPositive() {
		return fmt.Errorf("%w: points must be positive, got %s", ErrValidation, input.Points.String())
	}
	if input.TeamCount <= 0 {
		input.TeamCount = 1
	}

	now := time.Now().UTC()
	err := s.Repo.InTx(ctx, func(tx *gorm.DB) error {
		entry := &models.PointsHistoryEntry{
			Nickname:  input.Nickname,
			StageID:   strings.TrimSpace(input.StageID),
			TeamCount: input.TeamCount,
			Points:    input.Points,
			IsHalved:  input.IsHalved,
			YearMonth: input.YearMonth,
			CreatedAt: now,
		}
		if err := s.Repo.InsertPointsHistoryTx(ctx, tx, entry); err != nil {
			return err
		}
		return s.Repo.AddUserMonthlyPointsTx(ctx, tx, input.Nickname, input.YearMonth, input.Points, now)
	})
	if err != nil {
		return err
	}

	s.Cache.Invalidate(ctx, input.YearMonth)
	if s.Logger != nil {
		s.Logger.Info("points recorded",
			zap.String("nickname", input.Nickname),
			zap.String("year_month", input.YearMonth),
			zap.String("points", input.Points.String()),
			zap.Bool("is_halved", input.IsHalved),
		)
	}
	return nil
}

// RebuildFromLedgerTx drops the month's aggregate rows and re-derives them
// from the ledger inside the caller's transaction. Each rebuilt row takes
// updated_at from the user's latest ledger entry, so the tie-break order is a
// pure function of the ledger too.
func (s *PointsService) RebuildFromLedgerTx(ctx context.Context, tx *gorm.DB, yearMonth string) (*RebuildSummary, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if _, err := s.Repo.DeleteUserMonthlyPointsTx(ctx, tx, yearMonth); err != nil {
		return nil, err
	}
	totals, err := s.Repo.ListLedgerTotalsTx(ctx, tx, yearMonth)
	if err != nil {
		return nil, err
	}

	summary := &RebuildSummary{YearMonth: yearMonth, TotalPoints: decimal.Zero}
	rows := make([]models.UserMonthlyPoints, 0, len(totals))
	for _, total := range totals {
		rows = append(rows, models.UserMonthlyPoints{
			Nickname:      total.Nickname,
			YearMonth:     yearMonth,
			Points:        total.Points,
			HomeworkCount: total.Entries,
			CreatedAt:     total.LastAwardedAt,
			UpdatedAt:     total.LastAwardedAt,
		})
		summary.Users++
		summary.Entries += total.Entries
		summary.TotalPoints = summary.TotalPoints.Add(total.Points)
	}
	if err := s.Repo.InsertUserMonthlyPointsTx(ctx, tx, rows); err != nil {
		return nil, err
	}
	return summary, nil
}

// ListHistory is the paginated ledger read for admin observability.
func (s *PointsService) ListHistory(ctx context.Context, params repository.ListPointsHistoryParams) ([]models.PointsHistoryEntry, int64, error) {
	if s == nil || s.Repo == nil {
		return nil, 0, nil
	}
	if params.YearMonth != nil {
		if err := ValidateYearMonth(*params.YearMonth); err != nil {
			return nil, 0, err
		}
	}
	items, err := s.Repo.ListPointsHistory(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountPointsHistory(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}
