package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"media-dispatcher/pkg/models"
)

var _ models.Storage = &SQLite{}

// SQLite implements the Storage interface using SQLite
type SQLite struct {
	db *gorm.DB
}

// NewSQLite creates a new SQLite storage
func NewSQLite(path string) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("error creating database directory: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}

	if err := db.AutoMigrate(
		&models.User{},
		&models.RequestLog{},
	); err != nil {
		return nil, fmt.Errorf("error migrating database: %w", err)
	}

	return &SQLite{db: db}, nil
}

// RegisterUser inserts the user unless it already exists. Existing rows keep their join time.
func (s *SQLite) RegisterUser(user *models.User) (bool, error) {
	if user.JoinedAt.IsZero() {
		user.JoinedAt = time.Now()
	}

	result := s.db.Clauses(clause.OnConflict{DoNothing: true}).Create(user)
	if result.Error != nil {
		return false, fmt.Errorf("error registering user %d: %w", user.UserID, result.Error)
	}
	return result.RowsAffected > 0, nil
}

// GetUser retrieves a user
func (s *SQLite) GetUser(id models.UserID) (*models.User, error) {
	var user models.User
	if err := s.db.Where("user_id = ?", id).First(&user).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &user, nil
}

// ListUsers lists users ordered by join time
func (s *SQLite) ListUsers(limit, offset int) ([]*models.User, error) {
	var users []*models.User
	query := s.db.Order("joined_at ASC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	if err := query.Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// SaveRequestLog records a processed request
func (s *SQLite) SaveRequestLog(entry *models.RequestLog) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	return s.db.Create(entry).Error
}

// ListRequestLogs lists request log entries, newest first
func (s *SQLite) ListRequestLogs(filter models.RequestFilter) ([]*models.RequestLog, error) {
	var entries []*models.RequestLog
	query := s.db.Model(&models.RequestLog{})

	if filter.UserID != nil {
		query = query.Where("user_id = ?", *filter.UserID)
	}

	if filter.Platform != nil {
		query = query.Where("platform = ?", *filter.Platform)
	}

	if filter.State != nil {
		query = query.Where("state = ?", *filter.State)
	}

	if filter.StartDate != nil {
		query = query.Where("created_at >= ?", *filter.StartDate)
	}

	if filter.EndDate != nil {
		query = query.Where("created_at <= ?", *filter.EndDate)
	}

	query = query.Order("created_at DESC")

	if filter.Limit > 0 {
		query = query.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		query = query.Offset(filter.Offset)
	}

	if err := query.Find(&entries).Error; err != nil {
		return nil, err
	}
	return entries, nil
}

// GetStats returns user and request statistics relative to now
func (s *SQLite) GetStats(now time.Time) (*models.Stats, error) {
	stats := &models.Stats{
		RequestsByState: make(map[models.OutcomeState]int64),
	}

	if err := s.db.Model(&models.User{}).Count(&stats.TotalUsers).Error; err != nil {
		return nil, fmt.Errorf("error counting users: %w", err)
	}

	if err := s.db.Model(&models.User{}).
		Where("joined_at > ?", now.Add(-24*time.Hour)).
		Count(&stats.NewUsers24h).Error; err != nil {
		return nil, fmt.Errorf("error counting new users: %w", err)
	}

	var rows []struct {
		State models.OutcomeState
		Count int64
	}
	if err := s.db.Model(&models.RequestLog{}).
		Select("state, COUNT(*) AS count").
		Group("state").
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("error counting requests: %w", err)
	}

	for _, row := range rows {
		stats.RequestsByState[row.State] = row.Count
		stats.TotalRequests += row.Count
	}

	if stats.TotalRequests > 0 {
		stats.SuccessRate = float64(stats.RequestsByState[models.StateSucceeded]) / float64(stats.TotalRequests) * 100
	}

	return stats, nil
}

// CleanupOldLogs removes request log entries older than the given age
func (s *SQLite) CleanupOldLogs(olderThan time.Duration) (int64, error) {
	cutoff := time.Now().Add(-olderThan)
	result := s.db.Where("created_at < ?", cutoff).Delete(&models.RequestLog{})
	return result.RowsAffected, result.Error
}

// Close closes the database connection
func (s *SQLite) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
