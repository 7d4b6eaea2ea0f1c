/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"fmt"

	"github.com/friendsincode/tokencast/internal/models"
	"gorm.io/gorm"
)

// Migrate applies database schema migrations using GORM auto-migrate.
func Migrate(database *gorm.DB) error {
	if err := database.AutoMigrate(
		&models.Show{},
		&models.Segment{},
		&models.CommunityInteraction{},
	); err != nil {
		return err
	}

	if err := applySingleLiveShowGuard(database); err != nil {
		return err
	}

	return nil
}

// applySingleLiveShowGuard enforces at most one live show at the storage layer
// on backends that support partial indexes.
func applySingleLiveShowGuard(database *gorm.DB) error {
	switch database.Dialector.Name() {
	case "postgres", "sqlite":
	default:
		return nil
	}

	stmt := `CREATE UNIQUE INDEX IF NOT EXISTS idx_shows_single_live ON shows (status) WHERE status = 'live'`
	if err := database.Exec(stmt).Error; err != nil {
		return fmt.Errorf("apply single live show guard: %w", err)
	}
	return nil
}
