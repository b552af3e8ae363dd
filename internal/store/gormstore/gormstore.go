// Package gormstore keeps JSON blobs in a single sqlite table so one
// database file can hold settings, state snapshots and the ledger.
package gormstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type blobModel struct {
	Key       string `gorm:"column:key;primaryKey"`
	Data      []byte `gorm:"column:data"`
	UpdatedAt int64  `gorm:"column:updated_at"`
}

func (blobModel) TableName() string { return "json_blobs" }

type Store struct {
	db *gorm.DB
}

// New opens (creating if needed) the sqlite database at path.
func New(path string) (*Store, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("gorm store: db path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("gorm store: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&cache=shared", path)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&blobModel{}); err != nil {
		return nil, fmt.Errorf("gorm store: migrate: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(2)
	sqlDB.SetMaxIdleConns(2)
	return &Store{db: db}, nil
}

func (s *Store) LoadJSON(key string, target any) (bool, error) {
	raw, ok, err := s.LoadRaw(key)
	if err != nil || !ok {
		return ok, err
	}
	if err := json.Unmarshal(raw, target); err != nil {
		return true, fmt.Errorf("gorm store: decode %s: %w", key, err)
	}
	return true, nil
}

func (s *Store) LoadRaw(key string) ([]byte, bool, error) {
	var m blobModel
	err := s.db.Where("key = ?", key).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("gorm store: load %s: %w", key, err)
	}
	return m.Data, true, nil
}

func (s *Store) SaveJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("gorm store: encode %s: %w", key, err)
	}
	m := blobModel{Key: key, Data: data, UpdatedAt: time.Now().UnixMilli()}
	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&m).Error
}

func (s *Store) Delete(key string) error {
	return s.db.Where("key = ?", key).Delete(&blobModel{}).Error
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
