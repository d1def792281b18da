package infrastructure

import (
	"errors"
	"fmt"

	"github.com/yourusername/axolutly-go/internal/domain"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// filterColumns are the session columns FindAll may filter on
var filterColumns = map[string]bool{
	"state":    true,
	"platform": true,
	"url":      true,
}

// SQLiteRepository implements SessionRepository and CookieRepository using SQLite
type SQLiteRepository struct {
	db *gorm.DB
}

// NewSQLiteRepository creates a new SQLite repository
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	db, err := gorm.Open(sqlite.Open(dbPath), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.AutoMigrate(&domain.SessionRecord{}, &domain.CookieRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return &SQLiteRepository{db: db}, nil
}

// Create creates a new session record
func (r *SQLiteRepository) Create(record *domain.SessionRecord) error {
	return r.db.Create(record).Error
}

// Update updates an existing session record
func (r *SQLiteRepository) Update(record *domain.SessionRecord) error {
	return r.db.Save(record).Error
}

// FindByID finds a session record by ID. Returns nil if not found.
func (r *SQLiteRepository) FindByID(id string) (*domain.SessionRecord, error) {
	var record domain.SessionRecord
	err := r.db.First(&record, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// FindAll finds session records, newest first. Supported filters are
// state, platform, url and limit.
func (r *SQLiteRepository) FindAll(filters map[string]interface{}) ([]*domain.SessionRecord, error) {
	var records []*domain.SessionRecord
	query := r.db

	for key, value := range filters {
		if key == "limit" {
			continue
		}
		if !filterColumns[key] {
			return nil, fmt.Errorf("unsupported filter: %s", key)
		}
		query = query.Where(fmt.Sprintf("%s = ?", key), value)
	}
	if limit, ok := filters["limit"].(int); ok && limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Order("created_at DESC").Find(&records).Error
	return records, err
}

// GetStats returns session statistics
func (r *SQLiteRepository) GetStats() (*domain.SessionStats, error) {
	stats := &domain.SessionStats{}

	if err := r.db.Model(&domain.SessionRecord{}).Count(&stats.Total).Error; err != nil {
		return nil, err
	}

	stateCounts := []struct {
		State domain.SessionState
		Count int64
	}{}

	if err := r.db.Model(&domain.SessionRecord{}).
		Select("state, count(*) as count").
		Group("state").
		Scan(&stateCounts).Error; err != nil {
		return nil, err
	}

	for _, sc := range stateCounts {
		switch sc.State {
		case domain.StateFinished:
			stats.Finished = sc.Count
		case domain.StateFailed:
			stats.Failed = sc.Count
		case domain.StateCancelled:
			stats.Cancelled = sc.Count
		default:
			stats.Active += sc.Count
		}
	}

	return stats, nil
}

// SaveCookies creates or replaces the cookie record of a domain
func (r *SQLiteRepository) SaveCookies(record *domain.CookieRecord) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "domain"}},
		DoUpdates: clause.AssignmentColumns([]string{"blob", "cookie_count", "created_at"}),
	}).Create(record).Error
}

// FindCookies returns the cookie record of a domain. Returns nil if not found.
func (r *SQLiteRepository) FindCookies(domainName string) (*domain.CookieRecord, error) {
	var record domain.CookieRecord
	err := r.db.Where("domain = ?", domainName).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &record, nil
}

// DeleteCookies removes the cookie record of a domain
func (r *SQLiteRepository) DeleteCookies(domainName string) error {
	return r.db.Delete(&domain.CookieRecord{}, "domain = ?", domainName).Error
}

// AllCookies returns every cookie record
func (r *SQLiteRepository) AllCookies() ([]*domain.CookieRecord, error) {
	var records []*domain.CookieRecord
	err := r.db.Order("domain ASC").Find(&records).Error
	return records, err
}

// Close closes the database connection
func (r *SQLiteRepository) Close() error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
