package service

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"homeworkpoints/internal/models"
	"homeworkpoints/internal/repository"
)

// stubRepo is a test-only in-memory implementation of repository.Repository.
// InTx runs the callback against a nil handle; the Tx methods ignore it.
type stubRepo struct {
	ledger     []models.PointsHistoryEntry
	aggregates []models.UserMonthlyPoints
	pools      map[string]*models.MonthlyPrizePool
	logs       []models.SettlementLog
	autoConfig *models.AutoSettlementConfig
	nextID     uint64
}

func newStubRepo() *stubRepo {
	return &stubRepo{pools: map[string]*models.MonthlyPrizePool{}}
}

func (s *stubRepo) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

func (s *stubRepo) InsertPointsHistoryTx(ctx context.Context, tx *gorm.DB, item *models.PointsHistoryEntry) error {
	s.nextID++
	item.ID = s.nextID
	s.ledger = append(s.ledger, *item)
	return nil
}

func (s *stubRepo) ListPointsHistory(ctx context.Context, params repository.ListPointsHistoryParams) ([]models.PointsHistoryEntry, error) {
	var out []models.PointsHistoryEntry
	for _, e := range s.ledger {
		if params.YearMonth != nil && e.YearMonth != *params.YearMonth {
			continue
		}
		if params.Nickname != nil && e.Nickname != *params.Nickname {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (s *stubRepo) CountPointsHistory(ctx context.Context, params repository.ListPointsHistoryParams) (int64, error) {
	items, _ := s.ListPointsHistory(ctx, params)
	return int64(len(items)), nil
}

func (s *stubRepo) ListLedgerTotalsTx(ctx context.Context, tx *gorm.DB, yearMonth string) ([]repository.LedgerTotal, error) {
	byNick := map[string]*repository.LedgerTotal{}
	var order []string
	for _, e := range s.ledger {
		if e.YearMonth != yearMonth {
			continue
		}
		total, ok := byNick[e.Nickname]
		if !ok {
			total = &repository.LedgerTotal{Nickname: e.Nickname, Points: decimal.Zero}
			byNick[e.Nickname] = total
			order = append(order, e.Nickname)
		}
		total.Points = total.Points.Add(e.Points)
		total.Entries++
		if e.CreatedAt.After(total.LastAwardedAt) {
			total.LastAwardedAt = e.CreatedAt
		}
	}
	sort.Strings(order)
	out := make([]repository.LedgerTotal, 0, len(order))
	for _, nick := range order {
		out = append(out, *byNick[nick])
	}
	return out, nil
}

func (s *stubRepo) AddUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, nickname, yearMonth string, points decimal.Decimal, awardedAt time.Time) error {
	for i := range s.aggregates {
		if s.aggregates[i].Nickname == nickname && s.aggregates[i].YearMonth == yearMonth {
			s.aggregates[i].Points = s.aggregates[i].Points.Add(points)
			s.aggregates[i].HomeworkCount++
			s.aggregates[i].UpdatedAt = awardedAt
			return nil
		}
	}
	s.nextID++
	s.aggregates = append(s.aggregates, models.UserMonthlyPoints{
		ID:            s.nextID,
		Nickname:      nickname,
		YearMonth:     yearMonth,
		Points:        points,
		HomeworkCount: 1,
		CreatedAt:     awardedAt,
		UpdatedAt:     awardedAt,
	})
	return nil
}

func (s *stubRepo) ListUserMonthlyPoints(ctx context.Context, yearMonth string) ([]models.UserMonthlyPoints, error) {
	return s.ListUserMonthlyPointsTx(ctx, nil, yearMonth)
}

func (s *stubRepo) ListUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, yearMonth string) ([]models.UserMonthlyPoints, error) {
	var out []models.UserMonthlyPoints
	for _, row := range s.aggregates {
		if row.YearMonth == yearMonth {
			out = append(out, row)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Points.Equal(out[j].Points) {
			return out[i].Points.GreaterThan(out[j].Points)
		}
		return out[i].UpdatedAt.Before(out[j].UpdatedAt)
	})
	return out, nil
}

func (s *stubRepo) DeleteUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, yearMonth string) (int64, error) {
	var kept []models.UserMonthlyPoints
	var deleted int64
	for _, row := range s.aggregates {
		if row.YearMonth == yearMonth {
			deleted++
			continue
		}
		kept = append(kept, row)
	}
	s.aggregates = kept
	return deleted, nil
}

func (s *stubRepo) InsertUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, rows []models.UserMonthlyPoints) error {
	for _, row := range rows {
		s.nextID++
		row.ID = s.nextID
		s.aggregates = append(s.aggregates, row)
	}
	return nil
}

func (s *stubRepo) ListAllTimeTotals(ctx context.Context, params repository.AllTimeParams) ([]repository.AllTimeTotal, error) {
	byNick := map[string]*repository.AllTimeTotal{}
	var order []string
	for _, row := range s.aggregates {
		if params.Search != nil && !strings.Contains(strings.ToLower(row.Nickname), strings.ToLower(*params.Search)) {
			continue
		}
		total, ok := byNick[row.Nickname]
		if !ok {
			total = &repository.AllTimeTotal{Nickname: row.Nickname, Points: decimal.Zero}
			byNick[row.Nickname] = total
			order = append(order, row.Nickname)
		}
		total.Points = total.Points.Add(row.Points)
		total.HomeworkCount += row.HomeworkCount
		total.Months++
	}
	out := make([]repository.AllTimeTotal, 0, len(order))
	for _, nick := range order {
		out = append(out, *byNick[nick])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Points.Equal(out[j].Points) {
			return out[i].Points.GreaterThan(out[j].Points)
		}
		return out[i].Nickname < out[j].Nickname
	})
	if params.Offset >= len(out) {
		return nil, nil
	}
	out = out[params.Offset:]
	if params.Limit > 0 && params.Limit < len(out) {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *stubRepo) CountAllTimeTotals(ctx context.Context, params repository.AllTimeParams) (int64, error) {
	seen := map[string]struct{}{}
	for _, row := range s.aggregates {
		if params.Search != nil && !strings.Contains(strings.ToLower(row.Nickname), strings.ToLower(*params.Search)) {
			continue
		}
		seen[row.Nickname] = struct{}{}
	}
	return int64(len(seen)), nil
}

func (s *stubRepo) GetMonthlyPrizePool(ctx context.Context, yearMonth string) (*models.MonthlyPrizePool, error) {
	pool, ok := s.pools[yearMonth]
	if !ok {
		return nil, nil
	}
	clone := *pool
	return &clone, nil
}

func (s *stubRepo) CreateMonthlyPrizePool(ctx context.Context, item *models.MonthlyPrizePool) error {
	if _, ok := s.pools[item.YearMonth]; ok {
		return nil
	}
	s.nextID++
	clone := *item
	clone.ID = s.nextID
	s.pools[item.YearMonth] = &clone
	return nil
}

func (s *stubRepo) ListMonthlyPrizePools(ctx context.Context, params repository.ListPoolsParams) ([]models.MonthlyPrizePool, error) {
	var out []models.MonthlyPrizePool
	for _, pool := range s.pools {
		if params.IsSettled != nil && pool.IsSettled != *params.IsSettled {
			continue
		}
		out = append(out, *pool)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].YearMonth > out[j].YearMonth })
	return out, nil
}

func (s *stubRepo) MarkPoolSettledTx(ctx context.Context, tx *gorm.DB, yearMonth string, outcome repository.SettleOutcome) (int64, error) {
	pool, ok := s.pools[yearMonth]
	if !ok || pool.IsSettled {
		return 0, nil
	}
	settledAt := outcome.SettledAt
	pool.TotalPoints = outcome.TotalPoints
	pool.Distributed = outcome.Distributed
	pool.NextCarryOver = outcome.NextCarryOver
	pool.IsSettled = true
	pool.SettledAt = &settledAt
	return 1, nil
}

func (s *stubRepo) ResetPoolTx(ctx context.Context, tx *gorm.DB, yearMonth string) (int64, error) {
	pool, ok := s.pools[yearMonth]
	if !ok || !pool.IsSettled {
		return 0, nil
	}
	pool.TotalPoints = decimal.Zero
	pool.Distributed = decimal.Zero
	pool.NextCarryOver = decimal.Zero
	pool.IsSettled = false
	pool.SettledAt = nil
	return 1, nil
}

func (s *stubRepo) SetPoolCarryOverTx(ctx context.Context, tx *gorm.DB, yearMonth string, carryOver decimal.Decimal) (int64, error) {
	pool, ok := s.pools[yearMonth]
	if !ok || pool.IsSettled {
		return 0, nil
	}
	pool.CarryOver = carryOver
	return 1, nil
}

func (s *stubRepo) InsertSettlementLogTx(ctx context.Context, tx *gorm.DB, item *models.SettlementLog) error {
	s.nextID++
	item.ID = s.nextID
	s.logs = append(s.logs, *item)
	return nil
}

func (s *stubRepo) GetLatestSettlementLog(ctx context.Context, yearMonth, action string) (*models.SettlementLog, error) {
	for i := len(s.logs) - 1; i >= 0; i-- {
		if s.logs[i].YearMonth != yearMonth {
			continue
		}
		if action != "" && s.logs[i].Action != action {
			continue
		}
		clone := s.logs[i]
		return &clone, nil
	}
	return nil, nil
}

func (s *stubRepo) GetAutoSettlementConfig(ctx context.Context) (*models.AutoSettlementConfig, error) {
	if s.autoConfig == nil {
		return nil, nil
	}
	clone := *s.autoConfig
	return &clone, nil
}

func (s *stubRepo) SaveAutoSettlementConfig(ctx context.Context, item *models.AutoSettlementConfig) error {
	clone := *item
	s.autoConfig = &clone
	return nil
}

func (s *stubRepo) UpdateLastSettledMonth(ctx context.Context, yearMonth string) error {
	if s.autoConfig == nil {
		return nil
	}
	month := yearMonth
	s.autoConfig.LastSettledMonth = &month
	return nil
}
