package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// Store is the canonical relational store: the system of record for
// messages, reactions and link previews, and the only place durable
// identity (numeric keys, uniqueness) is enforced.
type Store struct {
	db *gorm.DB
}

func Open(dsn string) (*Store, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing gorm handle (used by tests and tools).
func NewWithDB(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Migrate creates or updates the schema.
func (s *Store) Migrate() error {
	return s.db.AutoMigrate(
		&Application{},
		&User{},
		&Channel{},
		&LinkPreview{},
		&Message{},
		&Reaction{},
	)
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// MasterToken resolves an application's signing secret; satisfies
// auth.AppResolver.
func (s *Store) MasterToken(ctx context.Context, appUUID string) (string, error) {
	var app Application
	err := s.db.WithContext(ctx).Where("uuid = ?", appUUID).First(&app).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return app.MasterToken, nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
