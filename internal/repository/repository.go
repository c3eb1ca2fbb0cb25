package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"homeworkpoints/internal/models"
)

// Repository is the storage surface of the settlement engine. Methods with a
// Tx suffix take the transaction handle from InTx so that a ledger append and
// its aggregate upsert, or a pool reset and its aggregate rebuild, commit or
// roll back together.
type Repository interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error

	// Ledger (append-only).
	InsertPointsHistoryTx(ctx context.Context, tx *gorm.DB, item *models.PointsHistoryEntry) error
	ListPointsHistory(ctx context.Context, params ListPointsHistoryParams) ([]models.PointsHistoryEntry, error)
	CountPointsHistory(ctx context.Context, params ListPointsHistoryParams) (int64, error)
	ListLedgerTotalsTx(ctx context.Context, tx *gorm.DB, yearMonth string) ([]LedgerTotal, error)

	// Monthly aggregate.
	AddUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, nickname, yearMonth string, points decimal.Decimal, awardedAt time.Time) error
	ListUserMonthlyPoints(ctx context.Context, yearMonth string) ([]models.UserMonthlyPoints, error)
	ListUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, yearMonth string) ([]models.UserMonthlyPoints, error)
	DeleteUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, yearMonth string) (int64, error)
	InsertUserMonthlyPointsTx(ctx context.Context, tx *gorm.DB, rows []models.UserMonthlyPoints) error
	ListAllTimeTotals(ctx context.Context, params AllTimeParams) ([]AllTimeTotal, error)
	CountAllTimeTotals(ctx context.Context, params AllTimeParams) (int64, error)

	// Prize pools.
	GetMonthlyPrizePool(ctx context.Context, yearMonth string) (*models.MonthlyPrizePool, error)
	CreateMonthlyPrizePool(ctx context.Context, item *models.MonthlyPrizePool) error
	ListMonthlyPrizePools(ctx context.Context, params ListPoolsParams) ([]models.MonthlyPrizePool, error)
	MarkPoolSettledTx(ctx context.Context, tx *gorm.DB, yearMonth string, outcome SettleOutcome) (int64, error)
	ResetPoolTx(ctx context.Context, tx *gorm.DB, yearMonth string) (int64, error)
	SetPoolCarryOverTx(ctx context.Context, tx *gorm.DB, yearMonth string, carryOver decimal.Decimal) (int64, error)

	// Settlement audit log.
	InsertSettlementLogTx(ctx context.Context, tx *gorm.DB, item *models.SettlementLog) error
	GetLatestSettlementLog(ctx context.Context, yearMonth, action string) (*models.SettlementLog, error)

	// Auto-settlement singleton config.
	GetAutoSettlementConfig(ctx context.Context) (*models.AutoSettlementConfig, error)
	SaveAutoSettlementConfig(ctx context.Context, item *models.AutoSettlementConfig) error
	UpdateLastSettledMonth(ctx context.Context, yearMonth string) error
}

// LedgerTotal is one nickname's grouped ledger sum for a month.
// LastAwardedAt carries MAX(created_at) so a rebuilt aggregate row keeps the
// tie-break position the incremental path produced.
type LedgerTotal struct {
	Nickname      string
	Points        decimal.Decimal
	Entries       int
	LastAwardedAt time.Time
}

// SettleOutcome is the pool snapshot written by a successful settlement.
type SettleOutcome struct {
	TotalPoints   decimal.Decimal
	Distributed   decimal.Decimal
	NextCarryOver decimal.Decimal
	SettledAt     time.Time
}

type ListPointsHistoryParams struct {
	Limit     int
	Offset    int
	YearMonth *string
	Nickname  *string
	OrderBy   string
	Asc       *bool
}

type AllTimeParams struct {
	Limit  int
	Offset int
	Search *string
}

// AllTimeTotal is one nickname's aggregate across every recorded month.
type AllTimeTotal struct {
	Nickname      string
	Points        decimal.Decimal
	HomeworkCount int
	Months        int
}

type ListPoolsParams struct {
	Limit     int
	Offset    int
	IsSettled *bool
	OrderBy   string
	Asc       *bool
}
