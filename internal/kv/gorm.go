package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"lenstracker-reminders/internal/model"
)

var keyColumn = clause.Column{Name: "key"}

// GormStore keeps entries in a single kv_entries table. It works on any
// dialect gorm supports; Postgres and SQLite are wired in internal/db.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore creates a store on an already migrated database.
func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Get(ctx context.Context, key string) (string, error) {
	var entry model.KVEntry
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: keyColumn, Value: key}).
		Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get %q: %w", key, err)
	}
	return entry.Value, nil
}

func (s *GormStore) Put(ctx context.Context, key, value string) error {
	now := time.Now().UTC()
	entry := model.KVEntry{Key: key, Value: value, CreatedAt: now, UpdatedAt: now}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{keyColumn},
		DoUpdates: clause.AssignmentColumns([]string{"value", "updated_at"}),
	}).Create(&entry).Error
	if err != nil {
		return fmt.Errorf("failed to put %q: %w", key, err)
	}
	return nil
}

func (s *GormStore) Delete(ctx context.Context, key string) error {
	err := s.db.WithContext(ctx).
		Where(clause.Eq{Column: keyColumn, Value: key}).
		Delete(&model.KVEntry{}).Error
	if err != nil {
		return fmt.Errorf("failed to delete %q: %w", key, err)
	}
	return nil
}

func (s *GormStore) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := s.db.WithContext(ctx).
		Model(&model.KVEntry{}).
		Where(`"key" LIKE ? ESCAPE '\'`, escapeLike(prefix)+"%").
		Pluck("key", &keys).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %q: %w", prefix, err)
	}
	return keys, nil
}

// escapeLike quotes LIKE wildcards so the prefix matches literally.
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
