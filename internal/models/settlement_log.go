package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

const (
	SettlementActionSettle = "settle"
	SettlementActionCancel = "cancel"
)

// SettlementLog is the audit trail of settle/cancel actions. For a settle it
// freezes the per-user reward breakdown as JSON so the result can be
// re-served after the fact without recomputation.
type SettlementLog struct {
	ID          uint64 `gorm:"primaryKey;autoIncrement"`
	YearMonth   string `gorm:"type:varchar(7);not null;index"`
	Action      string `gorm:"type:varchar(16);not null"`
	OperationID string `gorm:"type:varchar(36);not null;uniqueIndex"`

	TotalPool     decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	TotalPoints   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	Distributed   decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`
	NextCarryOver decimal.Decimal `gorm:"type:numeric(20,2);not null;default:0"`

	Rewards datatypes.JSON `gorm:"type:jsonb"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime;index"`
}

func (SettlementLog) TableName() string {
	return "settlement_logs"
}
