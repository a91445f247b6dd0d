package db

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ContractLand/terra-bridge-contracts/internal/config"
	"github.com/ContractLand/terra-bridge-contracts/internal/metrics"
	"github.com/ContractLand/terra-bridge-contracts/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// auditModels are the tables owned by the audit trail.
var auditModels = []interface{}{
	&models.BridgeEvent{},
	&models.Transfer{},
	&models.SignedMessage{},
	&models.CollectedMessage{},
}

// Open connects to the audit database and migrates its schema.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database DSN is required")
	}
	if cfg.Driver != "" && cfg.Driver != "postgres" {
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}

	log.Printf("Connecting to audit database")
	db, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		SkipDefaultTransaction:                   true,
		PrepareStmt:                              true,
		CreateBatchSize:                          1000,
		Logger:                                   logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return nil, fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)

	metrics.DBConnectionStatus.Set(1)
	log.Println("✅ Database connected successfully")

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func Migrate(db *gorm.DB) error {
	log.Println("🚀 Starting database schema migration with GORM AutoMigrate...")
	if err := db.AutoMigrate(auditModels...); err != nil {
		return fmt.Errorf("AutoMigrate failed: %w", err)
	}
	log.Println("✅ Database schema migrated successfully")
	return nil
}

// Ping checks the connection and updates the connection gauge.
func Ping(ctx context.Context, db *gorm.DB) error {
	start := time.Now()
	defer func() {
		metrics.DBQueryDuration.WithLabelValues("ping").Observe(time.Since(start).Seconds())
	}()

	sqlDB, err := db.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		metrics.DBConnectionStatus.Set(0)
		return err
	}
	metrics.DBConnectionStatus.Set(1)
	return nil
}

func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
