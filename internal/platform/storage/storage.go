package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"command-deck-server-go/internal/models"
	"command-deck-server-go/internal/platform/storage/migrations"
)

// Global database instance shared by the services.
var db *gorm.DB

// InitDatabase opens the SQLite database and brings the schema up to date.
// Safe to call more than once; subsequent calls are no-ops.
func InitDatabase(path string) error {
	if db != nil {
		return nil
	}

	if path == "" {
		path = filepath.Join("./data", "commanddeck.db")
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	var err error
	db, err = gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// AutoMigrate keeps dev databases current; the migration manager owns
	// the canonical schema history.
	if err := db.AutoMigrate(
		&models.User{},
		&models.AuthSession{},
		&models.Account{},
		&models.Sandbox{},
		&models.Interaction{},
		&models.AgentPlan{},
		&models.DomainEvent{},
	); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}

	migrationManager := NewMigrationManager(db)
	migrationManager.AddMigration(&migrations.Migration001Initial{})
	migrationManager.AddMigration(&migrations.Migration002QuotaIndexes{})

	if err := migrationManager.RunMigrations(); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// GetDB returns the global database instance.
func GetDB() *gorm.DB {
	if db == nil {
		panic("database not initialized, call InitDatabase() first")
	}
	return db
}

// CloseDatabase releases the underlying connection. Used by tests and
// shutdown paths.
func CloseDatabase() error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	db = nil
	return sqlDB.Close()
}
