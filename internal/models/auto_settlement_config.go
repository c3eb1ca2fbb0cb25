package models

import "time"

// AutoSettlementConfigID pins the singleton row.
const AutoSettlementConfigID uint64 = 1

// AutoSettlementConfig is the process-wide auto-trigger configuration.
// A single row (id=1) is seeded on boot from file defaults and mutated only
// by admin edits and by the scheduler advancing LastSettledMonth.
type AutoSettlementConfig struct {
	ID uint64 `gorm:"primaryKey"`

	Enabled    bool `gorm:"not null;default:false"`
	DayOfMonth int  `gorm:"not null;default:1"`
	Hour       int  `gorm:"not null;default:2"`
	Minute     int  `gorm:"not null;default:0"`

	LastSettledMonth *string `gorm:"type:varchar(7)"`

	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime"`
}

func (AutoSettlementConfig) TableName() string {
	return "auto_settlement_config"
}
