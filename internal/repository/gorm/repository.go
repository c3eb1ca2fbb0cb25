package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"homeworkpoints/internal/models"
	"homeworkpoints/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// conn returns the transaction handle when inside InTx, else the root handle.
func (s *Store) conn(ctx context.Context, tx *gorm.DB) *gorm.DB {
	if tx != nil {
		return tx
	}
	return s.db.WithContext(ctx)
}

// --- Ledger -----------------------------------------------------------------

func (s *Store) InsertPointsHistoryTx(ctx context.Context, tx *gorm.DB, item *models.PointsHistoryEntry) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Create(item).Error
}

func (s *Store) ListPointsHistory(ctx context.Context, params repository.ListPointsHistoryParams) ([]models.PointsHistoryEntry, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyPointsHistoryFilters(s.db.WithContext(ctx).Model(&models.PointsHistoryEntry{}), params)
	query = applyOrder(query, params.OrderBy, params.Asc, "created_at")
	limit := normalizeLimit(params.Limit, 100)
	offset := normalizeOffset(params.Offset)
	var items []models.PointsHistoryEntry
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) CountPointsHistory(ctx context.Context, params repository.ListPointsHistoryParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := applyPointsHistoryFilters(s.db.WithContext(ctx).Model(&models.PointsHistoryEntry{}), params)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func applyPointsHistoryFilters(query *gorm.DB, params repository.ListPointsHistoryParams) *gorm.DB {
	if params.YearMonth != nil && strings.TrimSpace(*params.YearMonth) != "" {
		query = query.Where("year_month = ?", strings.TrimSpace(*params.YearMonth))
	}
	if params.Nickname != nil && strings.TrimSpace(*params.Nickname) != "" {
		query = query.Where("nickname = ?", strings.TrimSpace(*params.Nickname))
	}
	return query
}

func (s *Store) ListLedgerTotalsTx(ctx context.Context, tx *gorm.DB, yearMonth string) ([]repository.LedgerTotal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var totals []repository.LedgerTotal
	err := s.conn(ctx, tx).
		Table("points_history").
		Select(`
			nickname,
			COALESCE(SUM(points), 0) AS points,
			COUNT(*) AS entries,
			MAX(created_at) AS last_awarded_at
		`).
		Where("year_month = ?", yearMonth).
		Group("nickname").
		Order("nickname asc").
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

// --- Monthly aggregate ------------------------------------------------------

func (s *Store) AddUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, nickname, yearMonth string, points decimal.Decimal, awardedAt time.Time) error {
	if s == nil || s.db == nil {
		return nil
	}
	row := &models.UserMonthlyPoints{
		Nickname:      nickname,
		YearMonth:     yearMonth,
		Points:        points,
		HomeworkCount: 1,
		CreatedAt:     awardedAt,
		UpdatedAt:     awardedAt,
	}
	return s.conn(ctx, tx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "nickname"}, {Name: "year_month"}},
		DoUpdates: clause.Assignments(map[string]any{
			"points":         gorm.Expr("user_monthly_points.points + ?", points),
			"homework_count": gorm.Expr("user_monthly_points.homework_count + 1"),
			"updated_at":     awardedAt,
		}),
	}).Create(row).Error
}

func (s *Store) ListUserMonthlyPoints(ctx context.Context, yearMonth string) ([]models.UserMonthlyPoints, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return s.listUserMonthlyPoints(s.db.WithContext(ctx), yearMonth)
}

func (s *Store) ListUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, yearMonth string) ([]models.UserMonthlyPoints, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	return s.listUserMonthlyPoints(s.conn(ctx, tx), yearMonth)
}

// Sorted points desc, updated_at asc: the leaderboard tie-break order.
func (s *Store) listUserMonthlyPoints(conn *gorm.DB, yearMonth string) ([]models.UserMonthlyPoints, error) {
	var items []models.UserMonthlyPoints
	err := conn.
		Model(&models.UserMonthlyPoints{}).
		Where("year_month = ?", yearMonth).
		Order("points desc").
		Order("updated_at asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) DeleteUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, yearMonth string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.conn(ctx, tx).
		Where("year_month = ?", yearMonth).
		Delete(&models.UserMonthlyPoints{})
	return res.RowsAffected, res.Error
}

func (s *Store) InsertUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, rows []models.UserMonthlyPoints) error {
	if s == nil || s.db == nil || len(rows) == 0 {
		return nil
	}
	return s.conn(ctx, tx).Create(&rows).Error
}

func (s *Store) ListAllTimeTotals(ctx context.Context, params repository.AllTimeParams) ([]repository.AllTimeTotal, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := applyAllTimeSearch(s.allTimeBase(ctx), params)
	limit := normalizeLimit(params.Limit, 50)
	offset := normalizeOffset(params.Offset)
	var totals []repository.AllTimeTotal
	err := query.
		Order("points desc").
		Order("nickname asc").
		Limit(limit).
		Offset(offset).
		Scan(&totals).Error
	if err != nil {
		return nil, err
	}
	return totals, nil
}

func (s *Store) CountAllTimeTotals(ctx context.Context, params repository.AllTimeParams) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	query := s.db.WithContext(ctx).Model(&models.UserMonthlyPoints{})
	if params.Search != nil && strings.TrimSpace(*params.Search) != "" {
		query = query.Where("nickname ILIKE ?", "%"+strings.TrimSpace(*params.Search)+"%")
	}
	var total int64
	if err := query.Distinct("nickname").Count(&total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func (s *Store) allTimeBase(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("user_monthly_points").
		Select(`
			nickname,
			COALESCE(SUM(points), 0) AS points,
			COALESCE(SUM(homework_count), 0) AS homework_count,
			COUNT(*) AS months
		`).
		Group("nickname")
}

func applyAllTimeSearch(query *gorm.DB, params repository.AllTimeParams) *gorm.DB {
	if params.Search != nil && strings.TrimSpace(*params.Search) != "" {
		query = query.Where("nickname ILIKE ?", "%"+strings.TrimSpace(*params.Search)+"%")
	}
	return query
}

// --- Prize pools ------------------------------------------------------------

func (s *Store) GetMonthlyPrizePool(ctx context.Context, yearMonth string) (*models.MonthlyPrizePool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.MonthlyPrizePool
	err := s.db.WithContext(ctx).
		Where("year_month = ?", yearMonth).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// CreateMonthlyPrizePool is a no-op when the row already exists, so racing
// lazy creates converge on one row; callers re-read after creating.
func (s *Store) CreateMonthlyPrizePool(ctx context.Context, item *models.MonthlyPrizePool) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "year_month"}},
		DoNothing: true,
	}).Create(item).Error
}

func (s *Store) ListMonthlyPrizePools(ctx context.Context, params repository.ListPoolsParams) ([]models.MonthlyPrizePool, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.MonthlyPrizePool{})
	if params.IsSettled != nil {
		query = query.Where("is_settled = ?", *params.IsSettled)
	}
	query = applyOrder(query, params.OrderBy, params.Asc, "year_month")
	limit := normalizeLimit(params.Limit, 24)
	offset := normalizeOffset(params.Offset)
	var items []models.MonthlyPrizePool
	if err := query.Limit(limit).Offset(offset).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// MarkPoolSettledTx is the settlement race guard: the update only matches
// when is_settled is still false, and the caller treats zero rows affected
// as a lost race.
func (s *Store) MarkPoolSettledTx(ctx context.Context, tx *gorm.DB, yearMonth string, outcome repository.SettleOutcome) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.conn(ctx, tx).
		Model(&models.MonthlyPrizePool{}).
		Where("year_month = ?", yearMonth).
		Where("is_settled = ?", false).
		Updates(map[string]any{
			"total_points":    outcome.TotalPoints,
			"distributed":     outcome.Distributed,
			"next_carry_over": outcome.NextCarryOver,
			"is_settled":      true,
			"settled_at":      outcome.SettledAt,
		})
	return res.RowsAffected, res.Error
}

// ResetPoolTx is the cancellation counterpart: only matches a settled pool.
func (s *Store) ResetPoolTx(ctx context.Context, tx *gorm.DB, yearMonth string) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.conn(ctx, tx).
		Model(&models.MonthlyPrizePool{}).
		Where("year_month = ?", yearMonth).
		Where("is_settled = ?", true).
		Updates(map[string]any{
			"total_points":    decimal.Zero,
			"distributed":     decimal.Zero,
			"next_carry_over": decimal.Zero,
			"is_settled":      false,
			"settled_at":      nil,
		})
	return res.RowsAffected, res.Error
}

// SetPoolCarryOverTx only matches an unsettled pool; a settled month's
// carry-over is frozen history.
func (s *Store) SetPoolCarryOverTx(ctx context.Context, tx *gorm.DB, yearMonth string, carryOver decimal.Decimal) (int64, error) {
	if s == nil || s.db == nil {
		return 0, nil
	}
	res := s.conn(ctx, tx).
		Model(&models.MonthlyPrizePool{}).
		Where("year_month = ?", yearMonth).
		Where("is_settled = ?", false).
		Update("carry_over", carryOver)
	return res.RowsAffected, res.Error
}

// --- Settlement audit log ---------------------------------------------------

func (s *Store) InsertSettlementLogTx(ctx context.Context, tx *gorm.DB, item *models.SettlementLog) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.conn(ctx, tx).Create(item).Error
}

func (s *Store) GetLatestSettlementLog(ctx context.Context, yearMonth, action string) (*models.SettlementLog, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).
		Model(&models.SettlementLog{}).
		Where("year_month = ?", yearMonth)
	if strings.TrimSpace(action) != "" {
		query = query.Where("action = ?", strings.TrimSpace(action))
	}
	var item models.SettlementLog
	err := query.Order("created_at desc").Order("id desc").First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- Auto-settlement config -------------------------------------------------

func (s *Store) GetAutoSettlementConfig(ctx context.Context) (*models.AutoSettlementConfig, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.AutoSettlementConfig
	err := s.db.WithContext(ctx).
		Where("id = ?", models.AutoSettlementConfigID).
		First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) SaveAutoSettlementConfig(ctx context.Context, item *models.AutoSettlementConfig) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.ID = models.AutoSettlementConfigID
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"enabled",
			"day_of_month",
			"hour",
			"minute",
			"last_settled_month",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) UpdateLastSettledMonth(ctx context.Context, yearMonth string) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).
		Model(&models.AutoSettlementConfig{}).
		Where("id = ?", models.AutoSettlementConfigID).
		Updates(map[string]any{
			"last_settled_month": yearMonth,
			"updated_at":         time.Now().UTC(),
		}).Error
}

// --- Query helpers ----------------------------------------------------------

func applyOrder(query *gorm.DB, orderBy string, asc *bool, fallback string) *gorm.DB {
	column := strings.TrimSpace(orderBy)
	if column == "" {
		column = fallback
	}
	direction := "desc"
	if asc != nil && *asc {
		direction = "asc"
	}
	return query.Order(column + " " + direction)
}

func normalizeLimit(limit, fallback int) int {
	if limit <= 0 {
		return fallback
	}
	if limit > 500 {
		return 500
	}
	return limit
}

func normalizeOffset(offset int) int {
	if offset < 0 {
		return 0
	}
	return offset
}
