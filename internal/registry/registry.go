package registry

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"media-dispatcher/internal/platform"
	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

// Key identifies a strategy slot
type Key struct {
	Platform models.Platform
	Kind     models.ResourceKind
}

// Registry maps (platform, kind) pairs to retrieval strategies. It performs no I/O.
type Registry struct {
	strategies map[Key]models.Strategy
	mu         sync.RWMutex
	logger     zerolog.Logger
}

// NewRegistry creates a new empty registry
func NewRegistry() *Registry {
	return &Registry{
		strategies: make(map[Key]models.Strategy),
		logger:     zerolog.New(os.Stdout).With().Timestamp().Str("component", "registry").Logger(),
	}
}

// Register registers a strategy for one platform and kind, replacing any previous one
func (r *Registry) Register(platform models.Platform, kind models.ResourceKind, strategy models.Strategy) error {
	if strategy == nil {
		return fmt.Errorf("strategy cannot be nil")
	}
	if platform == "" || platform == models.PlatformUnsupported {
		return fmt.Errorf("cannot register strategy for platform %q", platform)
	}
	if kind == "" {
		kind = models.KindUnknown
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies[Key{Platform: platform, Kind: kind}] = strategy
	return nil
}

// RegisterDefaultPlatforms registers the built-in strategies for every enabled platform
func (r *Registry) RegisterDefaultPlatforms(config *models.Config) error {
	return r.RegisterPlatforms(config, platform.NewHTTPClient(config))
}

// RegisterPlatforms registers the built-in strategies using client for HTTP based ones
func (r *Registry) RegisterPlatforms(config *models.Config, client *utils.HTTPClient) error {
	if config.Platforms.Instagram.Enabled {
		post := platform.NewInstagramPostStrategy(config)
		stories, highlights := platform.NewInstagramStoryStrategies(config)

		for kind, strategy := range map[models.ResourceKind]models.Strategy{
			models.KindPost:       post,
			models.KindReel:       post,
			models.KindStories:    stories,
			models.KindHighlights: highlights,
		} {
			if err := r.Register(models.PlatformInstagram, kind, strategy); err != nil {
				return fmt.Errorf("error registering Instagram %s strategy: %w", kind, err)
			}
		}
	}

	ytdlpPlatforms := []struct {
		platform models.Platform
		config   models.PlatformConfig
	}{
		{models.PlatformYouTube, config.Platforms.YouTube},
		{models.PlatformTikTok, config.Platforms.TikTok},
		{models.PlatformFacebook, config.Platforms.Facebook},
	}
	for _, p := range ytdlpPlatforms {
		if !p.config.Enabled {
			continue
		}
		strategy := platform.NewYtdlpStrategy(config, p.platform, p.config)
		if err := r.Register(p.platform, models.KindUnknown, strategy); err != nil {
			return fmt.Errorf("error registering %s strategy: %w", p.platform, err)
		}
	}

	if config.Platforms.Pinterest.Enabled {
		if err := r.Register(models.PlatformPinterest, models.KindUnknown, platform.NewPinterestStrategy(config, client)); err != nil {
			return fmt.Errorf("error registering Pinterest strategy: %w", err)
		}
	}

	r.logger.Info().Int("strategies", r.Count()).Msg("Registered platform strategies")
	return nil
}

// Resolve returns the strategy for platform and kind
func (r *Registry) Resolve(platform models.Platform, kind models.ResourceKind) (models.Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	strategy, exists := r.strategies[Key{Platform: platform, Kind: kind}]
	return strategy, exists
}

// ListPlatforms returns every platform with at least one strategy, sorted
func (r *Registry) ListPlatforms() []models.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[models.Platform]bool)
	var platforms []models.Platform
	for key := range r.strategies {
		if !seen[key.Platform] {
			seen[key.Platform] = true
			platforms = append(platforms, key.Platform)
		}
	}
	sort.Slice(platforms, func(i, j int) bool { return platforms[i] < platforms[j] })
	return platforms
}

// IsSupported checks if a platform and kind pair has a strategy
func (r *Registry) IsSupported(platform models.Platform, kind models.ResourceKind) bool {
	_, exists := r.Resolve(platform, kind)
	return exists
}

// Count returns the number of registered strategies
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.strategies)
}

// Clear removes all registered strategies
func (r *Registry) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.strategies = make(map[Key]models.Strategy)
}

// PlatformInfo contains information about a registered platform
type PlatformInfo struct {
	Name        models.Platform       `json:"name"`
	Kinds       []models.ResourceKind `json:"kinds"`
	Description string                `json:"description"`
}

// GetPlatformInfo returns information about all registered platforms
func (r *Registry) GetPlatformInfo() []PlatformInfo {
	r.mu.RLock()
	kinds := make(map[models.Platform][]models.ResourceKind)
	for key := range r.strategies {
		kinds[key.Platform] = append(kinds[key.Platform], key.Kind)
	}
	r.mu.RUnlock()

	var info []PlatformInfo
	for _, p := range r.ListPlatforms() {
		k := kinds[p]
		sort.Slice(k, func(i, j int) bool { return k[i] < k[j] })

		platformInfo := PlatformInfo{Name: p, Kinds: k}
		switch p {
		case models.PlatformInstagram:
			platformInfo.Description = "Instagram posts, reels, stories and highlights"
		case models.PlatformYouTube:
			platformInfo.Description = "YouTube videos via yt-dlp"
		case models.PlatformTikTok:
			platformInfo.Description = "TikTok videos via yt-dlp"
		case models.PlatformFacebook:
			platformInfo.Description = "Facebook videos via yt-dlp"
		case models.PlatformPinterest:
			platformInfo.Description = "Pinterest images and videos"
		default:
			platformInfo.Description = "Custom platform"
		}

		info = append(info, platformInfo)
	}

	return info
}
