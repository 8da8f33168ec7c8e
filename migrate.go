package main

import (
	"context"
	"fmt"
	"rallysphere/internal/database"
	"rallysphere/internal/database/migrations"
	"rallysphere/internal/logger"
	"strconv"
	"time"

	"github.com/uptrace/bun"
)

// runMigrations applies the -migrate command: "up", "down", "reset" or a
// target version number.
func runMigrations(bunDB *bun.DB, command string, logger *logger.Logger) error {
	runner := migrations.NewRunner(bunDB, logger)
	defer func() {
		if err := runner.Close(); err != nil {
			logger.Warn("MIGRATE", err.Error())
		}
	}()

	switch command {
	case "up":
		logger.Info("MIGRATE", "Applying pending migrations...")
		return runner.MigrateUp()
	case "down":
		logger.Info("MIGRATE", "Rolling back all migrations...")
		return runner.MigrateDown()
	case "reset":
		logger.Info("MIGRATE", "Dropping and recreating schema...")
		if err := runner.MigrateDown(); err != nil {
			return err
		}
		return runner.MigrateUp()
	}

	version, err := strconv.ParseUint(command, 10, 32)
	if err != nil {
		return fmt.Errorf("unknown migrate command %q", command)
	}
	logger.Info("MIGRATE", fmt.Sprintf("Migrating to version %d...", version))
	return runner.MigrateTo(uint(version))
}

func seedDemoData(ctx context.Context, bunDB *bun.DB, logger *logger.Logger) error {
	logger.Info("SEED", "Seeding sample data...")
	if err := database.Seed(ctx, bunDB, time.Now().UTC()); err != nil {
		return err
	}
	logger.Info("SEED", "✅ Done.")
	return nil
}
