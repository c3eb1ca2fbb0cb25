package db

import (
	"homeworkpoints/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.PointsHistoryEntry{},
		&models.UserMonthlyPoints{},
		&models.MonthlyPrizePool{},
		&models.SettlementLog{},
		&models.AutoSettlementConfig{},
	)
}
