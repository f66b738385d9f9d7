package database

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dividis/backend/internal/docstore"
	"github.com/dividis/backend/internal/users"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var errMissingPath = errors.New("database path is required")

// sqlitePragmas are appended to every DSN.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"journal_mode(WAL)",
	"foreign_keys(1)",
}

func schemaModels() []any {
	return []any{&docstore.Document{}, &users.Identity{}, &migrationRecord{}}
}

// OpenSQLite opens the document database at path, creates the document and
// identity tables and applies pending named migrations.
func OpenSQLite(path string, logger *zap.Logger) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errMissingPath
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	db, err := gorm.Open(sqlite.Open(sqliteDSN(path)), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("sqlite handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(schemaModels()...); err != nil {
		return nil, fmt.Errorf("migrate schema: %w", err)
	}
	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	logger.Info("document database ready",
		zap.String("path", path),
		zap.Int("models", len(schemaModels())))
	return db, nil
}

func sqliteDSN(path string) string {
	separator := "?"
	if strings.Contains(path, "?") {
		separator = "&"
	}
	var builder strings.Builder
	builder.WriteString(path)
	for _, pragma := range sqlitePragmas {
		builder.WriteString(separator)
		builder.WriteString("_pragma=")
		builder.WriteString(pragma)
		separator = "&"
	}
	return builder.String()
}
