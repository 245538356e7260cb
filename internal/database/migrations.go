package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/discograph/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/discograph/backend/internal/export"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationSeedMediumFormats      = "2026-03-02_seed_medium_formats"
	migrationSeedReplicationControl = "2026-03-02_seed_replication_control"
)

// SchemaSequence is the schema version recorded in replication_control and in exports.
const SchemaSequence = 29

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationSeedMediumFormats, apply: seedMediumFormats},
		{name: migrationSeedReplicationControl, apply: seedReplicationControl},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

var defaultMediumFormats = []catalog.MediumFormat{
	{Name: "CD", HasDiscIDs: true},
	{Name: "Enhanced CD", HasDiscIDs: true},
	{Name: "HDCD", HasDiscIDs: true},
	{Name: "CD-R", HasDiscIDs: true},
	{Name: "SACD", HasDiscIDs: false},
	{Name: "DVD-Audio", HasDiscIDs: false},
	{Name: "Vinyl", HasDiscIDs: false},
	{Name: "Cassette", HasDiscIDs: false},
	{Name: "Digital Media", HasDiscIDs: false},
}

func seedMediumFormats(db *gorm.DB) error {
	for _, format := range defaultMediumFormats {
		record := format
		if err := db.Where("name = ?", record.Name).FirstOrCreate(&record).Error; err != nil {
			return err
		}
	}
	return nil
}

func seedReplicationControl(db *gorm.DB) error {
	control := export.ReplicationControl{ID: 1, CurrentSchemaSequence: SchemaSequence}
	return db.Where("id = ?", control.ID).FirstOrCreate(&control).Error
}
