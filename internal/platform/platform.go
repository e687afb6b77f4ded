package platform

import (
	"time"

	"media-dispatcher/internal/platform/instagram"
	"media-dispatcher/internal/platform/pinterest"
	"media-dispatcher/internal/platform/ytdlp"
	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

// TikTok rejects requests without a browser user agent and referer
const (
	tiktokUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/114.0.0.0 Safari/537.36"
	tiktokReferer   = "https://www.tiktok.com/"
)

// ProxyURL returns the configured proxy as a URL, or "" when disabled
func ProxyURL(config *models.Config) string {
	if !config.Proxy.Enabled {
		return ""
	}
	p := config.Proxy
	return utils.ProxyURL(p.Type, p.Host, p.Port, p.Username, p.Password)
}

// NewHTTPClient creates the shared client used by the expander and scraping strategies
func NewHTTPClient(config *models.Config) *utils.HTTPClient {
	return utils.NewHTTPClient(utils.ClientConfig{
		Timeout:         60 * time.Second,
		MaxIdleConns:    50,
		IdleConnTimeout: 90 * time.Second,
		ProxyURL:        ProxyURL(config),
	})
}

// NewYtdlpStrategy creates a yt-dlp strategy for a platform section
func NewYtdlpStrategy(config *models.Config, platform models.Platform, pc models.PlatformConfig) models.Strategy {
	c := ytdlp.Config{
		BinaryPath: config.Download.YtdlpPath,
		Proxy:      ProxyURL(config),
		UserAgent:  pc.UserAgent,
		Referer:    pc.Referer,
		Cookie:     pc.Cookie,
	}

	if platform == models.PlatformTikTok {
		if c.UserAgent == "" {
			c.UserAgent = tiktokUserAgent
		}
		if c.Referer == "" {
			c.Referer = tiktokReferer
		}
	}

	return ytdlp.NewStrategy(c, nil)
}

// NewInstagramPostStrategy creates the yt-dlp strategy used for Instagram posts and reels
func NewInstagramPostStrategy(config *models.Config) models.Strategy {
	return ytdlp.NewStrategy(ytdlp.Config{
		BinaryPath: config.Download.YtdlpPath,
		Proxy:      ProxyURL(config),
		UserAgent:  config.Platforms.Instagram.UserAgent,
	}, nil)
}

// NewInstagramStoryStrategies creates the stories and highlights strategies
func NewInstagramStoryStrategies(config *models.Config) (models.Strategy, models.Strategy) {
	c := instagram.Config{
		BinaryPath: config.Download.InstaloaderPath,
		Username:   config.Platforms.Instagram.Username,
		Password:   config.Platforms.Instagram.Password,
		UserAgent:  config.Platforms.Instagram.UserAgent,
	}
	return instagram.NewStoriesStrategy(c, nil), instagram.NewHighlightsStrategy(c, nil)
}

// NewPinterestStrategy creates the Pinterest strategy
func NewPinterestStrategy(config *models.Config, client *utils.HTTPClient) models.Strategy {
	return pinterest.NewStrategy(config.Platforms.Pinterest.ResolverURL, client)
}
