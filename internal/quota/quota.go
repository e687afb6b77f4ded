package quota

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"media-dispatcher/pkg/models"
)

// Default quota settings
const (
	DefaultLimit  = 5
	DefaultWindow = 60 * time.Second
)

// Tracker admits or rejects requests per user within a sliding window
type Tracker interface {
	// Admit records now for user and returns true when the user has capacity.
	// A rejected call leaves the user's state unchanged.
	Admit(ctx context.Context, user models.UserID, now time.Time) (bool, error)

	// Usage reports the retained count for user and when the oldest entry leaves the window
	Usage(ctx context.Context, user models.UserID, now time.Time) (Usage, error)
}

// Usage is a snapshot of one user's window
type Usage struct {
	Count   int       `json:"count"`
	Limit   int       `json:"limit"`
	ResetAt time.Time `json:"reset_at"`
}

// Remaining returns how many requests the user may still make
func (u Usage) Remaining() int {
	if u.Count >= u.Limit {
		return 0
	}
	return u.Limit - u.Count
}

// Settings configure a tracker
type Settings struct {
	Limit  int
	Window time.Duration
}

func (s Settings) withDefaults() Settings {
	if s.Limit <= 0 {
		s.Limit = DefaultLimit
	}
	if s.Window <= 0 {
		s.Window = DefaultWindow
	}
	return s
}

// ledger holds the admitted timestamps of one user in ascending order
type ledger struct {
	mu    sync.Mutex
	times []time.Time
}

// purge drops entries with now - t >= window
func (l *ledger) purge(now time.Time, window time.Duration) {
	i := 0
	for i < len(l.times) && now.Sub(l.times[i]) >= window {
		i++
	}
	if i > 0 {
		l.times = append(l.times[:0], l.times[i:]...)
	}
}

// MemoryTracker keeps quota state in process memory
type MemoryTracker struct {
	settings Settings
	ledgers  map[models.UserID]*ledger
	mu       sync.RWMutex
	logger   zerolog.Logger
}

// NewMemoryTracker creates an in-memory tracker
func NewMemoryTracker(settings Settings) *MemoryTracker {
	return &MemoryTracker{
		settings: settings.withDefaults(),
		ledgers:  make(map[models.UserID]*ledger),
		logger:   zerolog.New(os.Stdout).With().Timestamp().Str("component", "quota").Logger(),
	}
}

// getLedger gets or creates the ledger for a user
func (t *MemoryTracker) getLedger(user models.UserID) *ledger {
	t.mu.RLock()
	l, exists := t.ledgers[user]
	t.mu.RUnlock()
	if exists {
		return l
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if l, exists = t.ledgers[user]; !exists {
		l = &ledger{}
		t.ledgers[user] = l
	}
	return l
}

// Admit implements Tracker
func (t *MemoryTracker) Admit(ctx context.Context, user models.UserID, now time.Time) (bool, error) {
	l := t.getLedger(user)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.purge(now, t.settings.Window)
	if len(l.times) < t.settings.Limit {
		l.times = append(l.times, now)
		return true, nil
	}

	t.logger.Debug().Int64("user_id", int64(user)).Int("count", len(l.times)).Msg("Quota exceeded")
	return false, nil
}

// Usage implements Tracker
func (t *MemoryTracker) Usage(ctx context.Context, user models.UserID, now time.Time) (Usage, error) {
	l := t.getLedger(user)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.purge(now, t.settings.Window)
	u := Usage{Count: len(l.times), Limit: t.settings.Limit, ResetAt: now}
	if len(l.times) > 0 {
		u.ResetAt = l.times[0].Add(t.settings.Window)
	}
	return u, nil
}

// Users returns the number of users with a ledger
func (t *MemoryTracker) Users() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.ledgers)
}

// Options select and configure a backend
type Options struct {
	Backend       string
	Limit         int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	KeyPrefix     string
}

// New creates the tracker named by opts.Backend ("memory" or "redis")
func New(ctx context.Context, opts Options) (Tracker, error) {
	settings := Settings{Limit: opts.Limit, Window: opts.Window}

	switch opts.Backend {
	case "", "memory":
		return NewMemoryTracker(settings), nil
	case "redis":
		tracker, err := DialRedis(ctx, opts.RedisAddr, opts.RedisPassword, opts.KeyPrefix, settings)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis quota tracker: %w", err)
		}
		return tracker, nil
	default:
		return nil, fmt.Errorf("unknown quota backend: %s", opts.Backend)
	}
}
