package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserMonthlyPoints is the materialized per-user, per-month sum over the
// ledger. It is a cache, never authoritative: while a month is unsettled,
// sum(points) here must equal the ledger sum for the month, and the row set
// is rebuilt wholesale from the ledger on settlement reversal.
//
// UpdatedAt doubles as the leaderboard tie-break (earlier wins), so writes
// must keep it equal to the latest contributing ledger entry time.
type UserMonthlyPoints struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Nickname  string `gorm:"type:varchar(64);not null;uniqueIndex:idx_user_month,priority:1"`
	YearMonth string `gorm:"type:varchar(7);not null;uniqueIndex:idx_user_month,priority:2;index"`

	Points        decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	HomeworkCount int             `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;not null;index"`
}

func (UserMonthlyPoints) TableName() string {
	return "user_monthly_points"
}
