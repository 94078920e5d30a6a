// Package store persists plate readings with gorm.
package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"platelog/models"
	"platelog/pkg/textutil"
)

// ErrNotFound is returned when a reading does not exist.
var ErrNotFound = errors.New("reading not found")

// Open connects to Postgres and, when autoMigrate is set, migrates the schema.
// Migration failures are logged and ignored so a read-only role still works.
func Open(dsn string, autoMigrate bool, logger *slog.Logger) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New("DB_DSN is not set")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect postgres database: %w", err)
	}
	if autoMigrate {
		if err := db.AutoMigrate(&models.Reading{}); err != nil {
			logger.Warn("migration warning (readings)", "error", err)
		}
	}
	return db, nil
}

// Readings is the reading repository.
type Readings struct {
	db *gorm.DB
}

func NewReadings(db *gorm.DB) *Readings {
	return &Readings{db: db}
}

// Record inserts a reading.
func (s *Readings) Record(ctx context.Context, r *models.Reading) error {
	r.Fit()
	return s.db.WithContext(ctx).Create(r).Error
}

// List returns the most recent readings first.
func (s *Readings) List(ctx context.Context, limit int) ([]models.Reading, error) {
	var items []models.Reading
	err := s.db.WithContext(ctx).Order("id desc").Limit(limit).Find(&items).Error
	return items, err
}

// Get returns one reading by id.
func (s *Readings) Get(ctx context.Context, id uint) (*models.Reading, error) {
	var r models.Reading
	if err := s.db.WithContext(ctx).First(&r, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

// Between returns readings created in [start, end), oldest first.
func (s *Readings) Between(ctx context.Context, start, end time.Time) ([]models.Reading, error) {
	var items []models.Reading
	err := s.db.WithContext(ctx).Where("created_at >= ? AND created_at < ?", start, end).Order("id").Find(&items).Error
	return items, err
}

// Undetected returns the oldest readings whose plate was not recognized.
func (s *Readings) Undetected(ctx context.Context, limit int) ([]models.Reading, error) {
	var items []models.Reading
	err := s.db.WithContext(ctx).Where("detected = ?", false).Order("id asc").Limit(limit).Find(&items).Error
	return items, err
}

// UpdatePlate stores a new recognition result for a reading.
func (s *Readings) UpdatePlate(ctx context.Context, id uint, plate string, detected bool) error {
	res := s.db.WithContext(ctx).Model(&models.Reading{}).Where("id = ?", id).
		Updates(map[string]any{"plate_number": textutil.Clip(plate, models.MaxPlateNumberLen), "detected": detected})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
