package db

import (
	"fmt"
	"time"

	"github.com/kasuganosora/guildbank/config"
	dbmysql "github.com/kasuganosora/guildbank/db/mysql"
	dbpostgres "github.com/kasuganosora/guildbank/db/postgres"
	dbsqlite "github.com/kasuganosora/guildbank/db/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	ModeSQLite   = "sqlite"
	ModeMySQL    = "mysql"
	ModePostgres = "postgres"
)

// Open returns a *gorm.DB for the configured database mode. Driver errors
// are translated, so duplicate keys surface as gorm.ErrDuplicatedKey.
func Open(cfg config.DatabaseConfig) (*gorm.DB, error) {
	var (
		dialector gorm.Dialector
		maxOpen   = cfg.MaxOpen
	)
	switch cfg.Mode {
	case ModeSQLite:
		dialector = dbsqlite.Dialector(cfg.SQLitePath)
		// SQLite serialises writers; one connection avoids SQLITE_BUSY
		// between the persistence worker and readers.
		maxOpen = 1
	case ModeMySQL:
		dialector = dbmysql.Dialector(cfg.MySQLDSN)
	case ModePostgres:
		dialector = dbpostgres.Dialector(cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("db: unknown mode %q", cfg.Mode)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("db: open %s: %w", cfg.Mode, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	if maxOpen > 0 {
		sqlDB.SetMaxOpenConns(maxOpen)
	}
	if cfg.MaxIdle > 0 {
		sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	}
	if cfg.MaxLife > 0 {
		sqlDB.SetConnMaxLifetime(cfg.MaxLife)
	}
	return db, nil
}
