package store

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/luca-patrignani/tair-protocol/config"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// slowQuery is the duration after which gorm reports a statement.
const slowQuery = 200 * time.Millisecond

// slogWriter routes gorm's log lines to a slog.Logger.
type slogWriter struct {
	log *slog.Logger
}

func (w slogWriter) Printf(format string, args ...any) {
	w.log.Warn("database", "msg", fmt.Sprintf(format, args...))
}

// Open connects to the database named by cfg. A nil DB and no error are
// returned when persistence is disabled.
func Open(cfg config.Config, log *slog.Logger) (*gorm.DB, error) {
	if cfg.DBDialect == "" || cfg.DBDsn == "" {
		return nil, nil
	}
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	gormLog := logger.New(slogWriter{log: log}, logger.Config{
		SlowThreshold:             slowQuery,
		LogLevel:                  logger.Warn,
		IgnoreRecordNotFoundError: true,
	})

	var dialector gorm.Dialector
	switch cfg.DBDialect {
	case config.DatabaseSchemePostgres:
		dialector = postgres.Open(cfg.DBDsn)
	default:
		return nil, fmt.Errorf("database dialect %q not supported", cfg.DBDialect)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: gormLog})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", cfg.DBDialect, err)
	}
	return db, nil
}

// Migrate creates or updates the event and round tables. It is a no-op on a
// nil DB.
func Migrate(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	if err := db.AutoMigrate(&EventRecord{}, &RoundRecord{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}
