package models

import (
	"context"
	"time"
)

// Strategy fetches media for a classified target into outputDir.
// It returns the path of a file or of a directory holding several files.
type Strategy interface {
	Fetch(ctx context.Context, target, outputDir string) (string, error)
}

// StrategyFunc adapts a function to Strategy
type StrategyFunc func(ctx context.Context, target, outputDir string) (string, error)

// Fetch calls f
func (f StrategyFunc) Fetch(ctx context.Context, target, outputDir string) (string, error) {
	return f(ctx, target, outputDir)
}

// Expander resolves a short link to its final URL
type Expander interface {
	Expand(ctx context.Context, shortURL string) (string, error)
}

// Storage defines the interface for storage implementations
type Storage interface {
	// RegisterUser stores the user on first contact. It reports whether the user was new.
	RegisterUser(user *User) (bool, error)

	// GetUser retrieves a user, nil if not found
	GetUser(id UserID) (*User, error)

	// ListUsers lists users ordered by join time
	ListUsers(limit, offset int) ([]*User, error)

	// SaveRequestLog records a processed request
	SaveRequestLog(entry *RequestLog) error

	// ListRequestLogs lists request log entries
	ListRequestLogs(filter RequestFilter) ([]*RequestLog, error)

	// GetStats returns usage statistics relative to now
	GetStats(now time.Time) (*Stats, error)

	// Close closes the storage connection
	Close() error
}

// RequestFilter defines filters for listing request logs
type RequestFilter struct {
	UserID    *UserID
	Platform  *Platform
	State     *OutcomeState
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}
