package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MonthlyPrizePool is the per-month pool state. Created lazily on first
// access; CarryOver is seeded from the previous month's NextCarryOver only
// when that month is settled. TotalPoints/Distributed/NextCarryOver are
// snapshots written by settlement and zeroed by cancellation.
type MonthlyPrizePool struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	YearMonth string `gorm:"type:varchar(7);not null;uniqueIndex"`

	BasePool  decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	CarryOver decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`

	TotalPoints   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	Distributed   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	NextCarryOver decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`

	IsSettled bool       `gorm:"not null;default:false;index"`
	SettledAt *time.Time `gorm:"type:timestamptz"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (MonthlyPrizePool) TableName() string {
	return "monthly_prize_pools"
}

// TotalPool is the amount available for distribution this month.
func (p MonthlyPrizePool) TotalPool() decimal.Decimal {
	return p.BasePool.Add(p.CarryOver)
}
