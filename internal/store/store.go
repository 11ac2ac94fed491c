// Package store persists users, agent personalities, conversations and
// messages in SQLite through gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/capitalize-ai/roundtable/internal/model"
	"github.com/capitalize-ai/roundtable/pkg/logger"
)

// ErrNotFound is returned when a referenced row does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the gorm-backed persistence service.
type Store struct {
	db     *gorm.DB
	logger *logger.Logger
}

// Open connects to the SQLite database at dsn, applies pragmas and migrates
// the schema.
func Open(dsn string, log *logger.Logger) (*Store, error) {
	gormLog := gormlogger.New(
		zap.NewStdLog(log.Logger),
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  gormlogger.Warn,
			IgnoreRecordNotFoundError: true,
		},
	)

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:  gormLog,
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("access sql handle: %w", err)
	}
	// SQLite serialises writers; one connection avoids SQLITE_BUSY between
	// concurrent orchestration runs.
	sqlDB.SetMaxOpenConns(1)

	ctx := context.Background()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", dsn, err)
	}
	if err := db.Exec("PRAGMA journal_mode=WAL").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", dsn, err)
	}
	if err := db.Exec("PRAGMA busy_timeout=5000").Error; err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", dsn, err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.AgentPersonality{},
		&model.Conversation{},
		&model.Message{},
	); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate schema: %w", err)
	}

	return &Store{db: db, logger: log}, nil
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// notFound maps gorm's sentinel onto ErrNotFound.
func notFound(err error, what, id string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %s: %w", what, id, ErrNotFound)
	}
	return fmt.Errorf("failed to load %s %s: %w", what, id, err)
}
