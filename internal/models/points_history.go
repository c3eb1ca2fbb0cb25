package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PointsHistoryEntry is the append-only ledger of point awards. It is the
// source of truth: every aggregate in the system must be reconstructable
// from these rows. The engine never updates or deletes them.
type PointsHistoryEntry struct {
	ID        uint64 `gorm:"primaryKey;autoIncrement"`
	Nickname  string `gorm:"type:varchar(64);not null;index:idx_points_history_month,priority:2"`
	StageID   string `gorm:"type:varchar(32);not null;index"`
	TeamCount int    `gorm:"not null;default:1"`

	Points   decimal.Decimal `gorm:"type:numeric(20,2);not null"`
	IsHalved bool            `gorm:"not null;default:false"`

	YearMonth string    `gorm:"type:varchar(7);not null;index:idx_points_history_month,priority:1"`
	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (PointsHistoryEntry) TableName() string {
	return "points_history"
}
