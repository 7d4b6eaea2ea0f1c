/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package db

import (
	"errors"
	"time"

	"github.com/friendsincode/tokencast/internal/telemetry"
	"gorm.io/gorm"
)

const startTimeKey = "telemetry:start_time"

// RegisterCallbacks records query latency and errors for every CRUD operation.
func RegisterCallbacks(database *gorm.DB) error {
	cb := database.Callback()
	steps := []func() error{
		func() error { return cb.Query().Before("gorm:query").Register("telemetry:before_query", markStart) },
		func() error { return cb.Query().After("gorm:query").Register("telemetry:after_query", observe("query")) },
		func() error { return cb.Create().Before("gorm:create").Register("telemetry:before_create", markStart) },
		func() error { return cb.Create().After("gorm:create").Register("telemetry:after_create", observe("create")) },
		func() error { return cb.Update().Before("gorm:update").Register("telemetry:before_update", markStart) },
		func() error { return cb.Update().After("gorm:update").Register("telemetry:after_update", observe("update")) },
		func() error { return cb.Delete().Before("gorm:delete").Register("telemetry:before_delete", markStart) },
		func() error { return cb.Delete().After("gorm:delete").Register("telemetry:after_delete", observe("delete")) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	return nil
}

func markStart(tx *gorm.DB) {
	tx.InstanceSet(startTimeKey, time.Now())
}

func observe(operation string) func(*gorm.DB) {
	return func(tx *gorm.DB) {
		v, ok := tx.InstanceGet(startTimeKey)
		if !ok {
			return
		}
		started, ok := v.(time.Time)
		if !ok {
			return
		}

		table := tx.Statement.Table
		if table == "" {
			table = "unknown"
		}
		telemetry.DatabaseQueryDuration.WithLabelValues(operation, table).Observe(time.Since(started).Seconds())

		if tx.Error != nil && !errors.Is(tx.Error, gorm.ErrRecordNotFound) {
			telemetry.DatabaseErrorsTotal.WithLabelValues(operation, table).Inc()
		}
	}
}

// UpdateConnectionMetrics samples the connection pool.
func UpdateConnectionMetrics(database *gorm.DB) {
	sqlDB, err := database.DB()
	if err != nil {
		return
	}
	telemetry.DatabaseConnectionsActive.Set(float64(sqlDB.Stats().OpenConnections))
}
