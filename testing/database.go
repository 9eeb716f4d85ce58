// Package testing provides test utilities and database setup for the notification service
package testing

import (
	"fmt"
	"os"
	"path/filepath"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/darzihub/darzi-notify/repository"
)

// TestDB represents a test database instance backed by a temp sqlite file.
type TestDB struct {
	DB   *gorm.DB
	path string
}

// SetupTestDB creates a fresh sqlite database in a temp directory and runs
// the real migrations against it, partial unique index included.
func SetupTestDB() (*TestDB, error) {
	dir, err := os.MkdirTemp("", "darzi-notify-test-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	path := filepath.Join(dir, "test.db")

	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?_foreign_keys=on", path)), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open test database: %w", err)
	}
	if err := repository.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate test database: %w", err)
	}
	return &TestDB{DB: db, path: path}, nil
}

// Cleanup closes the connection and removes the database file.
func (t *TestDB) Cleanup() error {
	sqlDB, err := t.DB.DB()
	if err == nil {
		_ = sqlDB.Close()
	}
	return os.RemoveAll(filepath.Dir(t.path))
}

// TestWithDB runs fn against a fresh database and always cleans up.
func TestWithDB(fn func(db *gorm.DB) error) error {
	testDB, err := SetupTestDB()
	if err != nil {
		return err
	}
	defer func() { _ = testDB.Cleanup() }()
	return fn(testDB.DB)
}
