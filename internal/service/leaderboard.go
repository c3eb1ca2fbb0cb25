package service

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"homeworkpoints/internal/cache"
	"homeworkpoints/internal/repository"
)

// LeaderboardService serves read-only rank projections over the monthly
// aggregate. It never writes; the estimated reward column is a live preview
// of what Settle would pay against current totals.
type LeaderboardService struct {
	Repo       repository.Repository
	Settlement *SettlementService
	Cache      *cache.LeaderboardCache
	Logger     *zap.Logger
}

type LeaderboardRow struct {
	Rank            int             `json:"rank"`
	Nickname        string          `json:"nickname"`
	Points          decimal.Decimal `json:"points"`
	HomeworkCount   int             `json:"homework_count"`
	EstimatedReward decimal.Decimal `json:"estimated_reward"`
}

type Leaderboard struct {
	YearMonth   string           `json:"year_month"`
	TotalPool   decimal.Decimal  `json:"total_pool"`
	TotalPoints decimal.Decimal  `json:"total_points"`
	IsSettled   bool             `json:"is_settled"`
	Rows        []LeaderboardRow `json:"rows"`
}

type AllTimeRow struct {
	Rank          int             `json:"rank"`
	Nickname      string          `json:"nickname"`
	Points        decimal.Decimal `json:"points"`
	HomeworkCount int             `json:"homework_count"`
	Months        int             `json:"months"`
}

// GetLeaderboard returns the month's ranking, points descending with ties
// broken by earlier updated_at (the storage layer orders rows; rank is
// strictly the 1-based position, so equal points still get distinct ranks).
func (s *LeaderboardService) GetLeaderboard(ctx context.Context, yearMonth string) (*Leaderboard, error) {
	if s == nil || s.Repo == nil {
		return nil, nil
	}
	if err := ValidateYearMonth(yearMonth); err != nil {
		return nil, err
	}

	if payload := s.Cache.Get(ctx, yearMonth); payload != nil {
		var board Leaderboard
		if err := json.Unmarshal(payload, &board); err == nil {
			return &board, nil
		}
	}

	pool, err := s.Settlement.GetOrCreatePool(ctx, yearMonth)
	if err != nil {
		return nil, err
	}
	rows, err := s.Repo.ListUserMonthlyPoints(ctx, yearMonth)
	if err != nil {
		return nil, err
	}

	rewards, totalPoints, _, _ := computeDistribution(rows, pool.TotalPool())
	board := &Leaderboard{
		YearMonth:   yearMonth,
		TotalPool:   pool.TotalPool(),
		TotalPoints: totalPoints,
		IsSettled:   pool.IsSettled,
		Rows:        make([]LeaderboardRow, 0, len(rows)),
	}
	for i, row := range rows {
		board.Rows = append(board.Rows, LeaderboardRow{
			Rank:            i + 1,
			Nickname:        row.Nickname,
			Points:          row.Points,
			HomeworkCount:   row.HomeworkCount,
			EstimatedReward: rewards[i].Reward,
		})
	}

	if payload, err := json.Marshal(board); err == nil {
		s.Cache.Set(ctx, yearMonth, payload)
	}
	return board, nil
}

// GetAllTimeRanking groups the aggregate by nickname across every month,
// with optional substring search and page/limit pagination. Callers pass
// normalized page/limit (both >= 1) so ranks and pagination meta agree.
func (s *LeaderboardService) GetAllTimeRanking(ctx context.Context, search string, page, limit int) ([]AllTimeRow, int64, error) {
	if s == nil || s.Repo == nil {
		return nil, 0, nil
	}
	params := repository.AllTimeParams{
		Limit:  limit,
		Offset: (page - 1) * limit,
	}
	if v := strings.TrimSpace(search); v != "" {
		params.Search = &v
	}

	totals, err := s.Repo.ListAllTimeTotals(ctx, params)
	if err != nil {
		return nil, 0, err
	}
	total, err := s.Repo.CountAllTimeTotals(ctx, params)
	if err != nil {
		return nil, 0, err
	}

	rows := make([]AllTimeRow, 0, len(totals))
	for i, t := range totals {
		rows = append(rows, AllTimeRow{
			Rank:          params.Offset + i + 1,
			Nickname:      t.Nickname,
			Points:        t.Points,
			HomeworkCount: t.HomeworkCount,
			Months:        t.Months,
		})
	}
	return rows, total, nil
}
