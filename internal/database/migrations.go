package database

import (
	"context"
	"errors"
	"time"

	"github.com/dividis/backend/internal/declarations"
	"github.com/dividis/backend/internal/docstore"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const migrationWrapSinglePartitions = "2025-06-01_wrap_single_declaration_partitions"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB, *zap.Logger) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationWrapSinglePartitions, apply: wrapSinglePartitions},
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
		if err := migration.apply(db, logger); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		logger.Info("database migration applied", zap.String("migration", migration.name))
	}
	return nil
}

// wrapSinglePartitions rewrites public partitions that hold one declaration
// as the document body into the {declaraciones: [...]} shape.
func wrapSinglePartitions(db *gorm.DB, logger *zap.Logger) error {
	store, err := docstore.NewService(docstore.ServiceConfig{Database: db, Logger: logger})
	if err != nil {
		return err
	}
	ctx := context.Background()
	snapshots, err := store.List(ctx, docstore.CollectionPublicDeclarations)
	if err != nil {
		return err
	}
	for _, snapshot := range snapshots {
		shape, err := declarations.ResolvePartition(snapshot)
		if err != nil {
			return err
		}
		if _, isSingle := shape.(declarations.SinglePartition); !isSingle {
			continue
		}
		data, err := docstore.Encode(map[string]any{"declaraciones": shape.Declarations()})
		if err != nil {
			return err
		}
		if err := store.Set(ctx, snapshot.Ref, data, docstore.SetOptions{}); err != nil {
			return err
		}
	}
	return nil
}
