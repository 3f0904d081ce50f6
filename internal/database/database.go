package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"clinicsync/internal/config"
	"clinicsync/internal/models"

	_ "github.com/mattn/go-sqlite3" // sqlite3 driver
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// DB is one side of the synchronization: the clinic's local sqlite file or
// the shared cloud postgres database. Both expose the same queue and record
// operations.
type DB struct {
	orm    *gorm.DB
	sqlDB  *sql.DB
	side   models.Side
	logger *zerolog.Logger
}

// OpenLocal opens the on-premise sqlite store.
func OpenLocal(cfg config.LocalDBConfig, logger *zerolog.Logger) (*DB, error) {
	db, err := OpenSQLite(cfg.Path, models.SideLocal, logger)
	if err != nil {
		return nil, err
	}
	if cfg.Debug {
		db.orm.Logger = db.orm.Logger.LogMode(gormlogInfo)
	}
	return db, nil
}

// OpenSQLite opens a sqlite file as the given side. Tests use it for both sides.
func OpenSQLite(path string, side models.Side, logger *zerolog.Logger) (*DB, error) {
	// Создаем директорию для БД, если её нет
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	sqlDB, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// sqlite допускает одного писателя
	sqlDB.SetMaxOpenConns(1)

	orm, err := gorm.Open(sqlite.New(sqlite.Config{DriverName: "sqlite3", DSN: path, Conn: sqlDB}), gormConfig(logger))
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to open gorm: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logger.Info().Str("side", string(side)).Str("path", path).Msg("sqlite store opened")
	return &DB{orm: orm, sqlDB: sqlDB, side: side, logger: logger}, nil
}

// OpenCloud connects to the multi-tenant postgres store.
func OpenCloud(cfg config.CloudDBConfig, logger *zerolog.Logger) (*DB, error) {
	orm, err := gorm.Open(postgres.Open(cfg.ConnString()), gormConfig(logger))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to cloud database: %w", err)
	}
	if cfg.Debug {
		orm.Logger = orm.Logger.LogMode(gormlogInfo)
	}

	sqlDB, err := orm.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	maxConns := cfg.MaxConnections
	if maxConns <= 0 {
		maxConns = 10
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns / 2)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping cloud database: %w", err)
	}

	logger.Info().Str("side", string(models.SideCloud)).Str("host", cfg.Host).Msg("postgres store opened")
	return &DB{orm: orm, sqlDB: sqlDB, side: models.SideCloud, logger: logger}, nil
}

func gormConfig(logger *zerolog.Logger) *gorm.Config {
	return &gorm.Config{
		Logger: newGormLogger(logger),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Migrate creates the queue table and every synced entity table.
func (db *DB) Migrate(ctx context.Context) error {
	if err := db.orm.WithContext(ctx).AutoMigrate(models.AllEntities()...); err != nil {
		return fmt.Errorf("migrate %s store: %w", db.side, err)
	}
	return nil
}

func (db *DB) Side() models.Side {
	return db.side
}

func (db *DB) PingContext(ctx context.Context) error {
	return db.sqlDB.PingContext(ctx)
}

func (db *DB) Close() error {
	return db.sqlDB.Close()
}

// Gorm returns the underlying handle for callers that write business rows
// together with their queue items.
func (db *DB) Gorm() *gorm.DB {
	return db.orm
}
