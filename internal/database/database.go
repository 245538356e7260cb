package database

import (
	"fmt"
	"strings"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/edits"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/export"
	sqlite "github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Open connects to the database named by dsn and performs schema migrations.
// DSNs starting with postgres:// or postgresql://, or containing host=, select PostgreSQL; anything else is a SQLite path.
func Open(dsn string, logger *zap.Logger) (*gorm.DB, error) {
	db, err := Connect(dsn)
	if err != nil {
		return nil, err
	}

	if err := db.AutoMigrate(Models()...); err != nil {
		return nil, err
	}

	if err := applyMigrations(db, logger); err != nil {
		return nil, err
	}

	if logger != nil {
		logger.Info("database initialized", zap.String("dialect", db.Dialector.Name()))
	}

	return db, nil
}

// Connect opens the database without touching its schema.
func Connect(dsn string) (*gorm.DB, error) {
	trimmed := strings.TrimSpace(dsn)
	if trimmed == "" {
		return nil, fmt.Errorf("database dsn is required")
	}

	config := &gorm.Config{TranslateError: true}
	if IsPostgres(trimmed) {
		return gorm.Open(postgres.Open(trimmed), config)
	}

	db, err := gorm.Open(sqlite.Open(trimmed), config)
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return db, nil
}

// IsPostgres reports whether dsn addresses a PostgreSQL server.
func IsPostgres(dsn string) bool {
	lowered := strings.ToLower(strings.TrimSpace(dsn))
	return strings.HasPrefix(lowered, "postgres://") ||
		strings.HasPrefix(lowered, "postgresql://") ||
		strings.Contains(lowered, "host=")
}

// Models lists every table managed by the application schema.
func Models() []interface{} {
	models := make([]interface{}, 0, 40)
	models = append(models, catalog.Models()...)
	models = append(models, edits.Models()...)
	models = append(models, export.Models()...)
	models = append(models, &migrationRecord{})
	return models
}
