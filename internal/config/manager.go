package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/viper"

	"media-dispatcher/pkg/models"
)

// EnvPrefix prefixes every environment override, e.g. MD_QUOTA_LIMIT
const EnvPrefix = "MD"

// Manager manages application configuration
type Manager struct {
	config *models.Config
	viper  *viper.Viper
	out    io.Writer
	logger zerolog.Logger
}

// NewManager creates a new configuration manager
func NewManager() *Manager {
	return &Manager{
		config: &models.Config{},
		viper:  viper.New(),
		out:    os.Stdout,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "config").Logger(),
	}
}

// Load loads configuration from file and environment. A missing config file is
// created with defaults inside configPath, or ./config when configPath is empty.
func (m *Manager) Load(configPath string) (*models.Config, error) {
	// .env is optional
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		m.logger.Warn().Err(err).Msg("Failed to load .env file")
	}

	m.setDefaults()

	m.viper.SetConfigName("config")
	m.viper.SetConfigType("yaml")

	if configPath != "" {
		m.viper.AddConfigPath(configPath)
	} else {
		m.viper.AddConfigPath(".")
		m.viper.AddConfigPath("./config")
		m.viper.AddConfigPath("$HOME/.media-dispatcher")
		m.viper.AddConfigPath("/etc/media-dispatcher")
	}

	m.viper.SetEnvPrefix(EnvPrefix)
	m.viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	m.viper.AutomaticEnv()

	if err := m.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		dir := configPath
		if dir == "" {
			dir = "./config"
		}
		if err := m.createDefaultConfig(dir); err != nil {
			m.logger.Warn().Msgf("Failed to create default config: %v", err)
		}
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := Validate(m.config); err != nil {
		return nil, err
	}

	if err := m.ensureDirectories(); err != nil {
		return nil, fmt.Errorf("error ensuring directories: %w", err)
	}

	m.configureLogger()

	return m.config, nil
}

// Save saves configuration to file
func (m *Manager) Save(configPath string) error {
	configFile := filepath.Join(configPath, "config.yaml")
	if err := m.viper.WriteConfigAs(configFile); err != nil {
		return fmt.Errorf("error saving config: %w", err)
	}

	return nil
}

// GetConfig returns the current configuration
func (m *Manager) GetConfig() *models.Config {
	return m.config
}

// UpdateConfig updates specific configuration values
func (m *Manager) UpdateConfig(updates map[string]interface{}) error {
	for key, value := range updates {
		m.viper.Set(key, value)
	}

	if err := m.viper.Unmarshal(m.config); err != nil {
		return err
	}
	return Validate(m.config)
}

// AllSettings returns the merged settings, used by `config show`
func (m *Manager) AllSettings() map[string]interface{} {
	return m.viper.AllSettings()
}

// Validate rejects settings the dispatcher cannot run with
func Validate(cfg *models.Config) error {
	if cfg.Quota.Limit <= 0 {
		return fmt.Errorf("quota.limit must be positive, got %d", cfg.Quota.Limit)
	}
	if cfg.Quota.WindowSeconds <= 0 {
		return fmt.Errorf("quota.window_seconds must be positive, got %d", cfg.Quota.WindowSeconds)
	}
	if cfg.Download.MaxFileSizeBytes <= 0 {
		return fmt.Errorf("download.max_file_size_bytes must be positive, got %d", cfg.Download.MaxFileSizeBytes)
	}
	if cfg.Download.StrategyTimeout <= 0 {
		return fmt.Errorf("download.strategy_timeout must be positive, got %d", cfg.Download.StrategyTimeout)
	}
	switch cfg.Quota.Backend {
	case "", "memory", "redis":
	default:
		return fmt.Errorf("unknown quota backend %q", cfg.Quota.Backend)
	}
	return nil
}

// setDefaults sets default configuration values
func (m *Manager) setDefaults() {
	// Server defaults
	m.viper.SetDefault("server.host", "0.0.0.0")
	m.viper.SetDefault("server.port", 8080)
	m.viper.SetDefault("server.read_timeout", 30)
	m.viper.SetDefault("server.write_timeout", 330)

	// Download defaults
	m.viper.SetDefault("download.save_path", "./downloads")
	m.viper.SetDefault("download.max_file_size_bytes", 50*1024*1024)
	m.viper.SetDefault("download.strategy_timeout", 300)
	m.viper.SetDefault("download.ytdlp_path", "yt-dlp")
	m.viper.SetDefault("download.instaloader_path", "instaloader")

	// Quota defaults
	m.viper.SetDefault("quota.backend", "memory")
	m.viper.SetDefault("quota.limit", 5)
	m.viper.SetDefault("quota.window_seconds", 60)
	m.viper.SetDefault("quota.redis_addr", "localhost:6379")
	m.viper.SetDefault("quota.redis_password", "")
	m.viper.SetDefault("quota.key_prefix", "quota:")

	m.viper.SetDefault("classifier.short_link_hosts", []string{"pin.it"})

	// Database defaults
	m.viper.SetDefault("database.type", "sqlite")
	m.viper.SetDefault("database.path", "./data/media-dispatcher.db")
	m.viper.SetDefault("database.max_conns", 10)

	// Log defaults
	m.viper.SetDefault("log.level", "info")
	m.viper.SetDefault("log.format", "text")
	m.viper.SetDefault("log.output", "stdout")

	m.viper.SetDefault("proxy.enabled", false)
	m.viper.SetDefault("proxy.type", "http")
	m.viper.SetDefault("proxy.host", "")
	m.viper.SetDefault("proxy.port", 0)
	m.viper.SetDefault("proxy.username", "")
	m.viper.SetDefault("proxy.password", "")

	// Platform defaults
	m.viper.SetDefault("platforms.instagram.enabled", true)
	m.viper.SetDefault("platforms.instagram.username", "")
	m.viper.SetDefault("platforms.instagram.password", "")
	m.viper.SetDefault("platforms.youtube.enabled", true)
	m.viper.SetDefault("platforms.tiktok.enabled", true)
	m.viper.SetDefault("platforms.facebook.enabled", true)
	m.viper.SetDefault("platforms.pinterest.enabled", true)
	m.viper.SetDefault("platforms.pinterest.resolver_url", "https://www.expertsphp.com/download.php")

	// Auth defaults
	m.viper.SetDefault("auth.enabled", false)
	m.viper.SetDefault("auth.jwt_secret", "change-this-secret")
	m.viper.SetDefault("auth.token_expiry", 24)

	// Rate limit defaults
	m.viper.SetDefault("rate_limit.enabled", true)
	m.viper.SetDefault("rate_limit.requests_per_second", 10)
	m.viper.SetDefault("rate_limit.burst", 30)
	m.viper.SetDefault("rate_limit.max_concurrent", 100)
	m.viper.SetDefault("rate_limit.whitelisted_ips", []string{"127.0.0.1", "::1"})
}

// createDefaultConfig creates a default configuration file
func (m *Manager) createDefaultConfig(configDir string) error {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	configFile := filepath.Join(configDir, "config.yaml")

	defaultConfig := `# Media Dispatcher Configuration

server:
  host: 0.0.0.0
  port: 8080
  read_timeout: 30
  write_timeout: 330

download:
  save_path: ./downloads
  max_file_size_bytes: 52428800  # 50MB
  strategy_timeout: 300
  ytdlp_path: yt-dlp
  instaloader_path: instaloader

quota:
  backend: memory  # memory or redis
  limit: 5
  window_seconds: 60
  redis_addr: localhost:6379
  redis_password: ""
  key_prefix: "quota:"

classifier:
  short_link_hosts:
    - pin.it

database:
  type: sqlite
  path: ./data/media-dispatcher.db
  max_conns: 10

log:
  level: info
  format: text
  output: stdout

proxy:
  enabled: false
  type: http
  host: ""
  port: 0
  username: ""
  password: ""

platforms:
  instagram:
    enabled: true
    username: ""
    password: ""

  youtube:
    enabled: true
    cookie: ""

  tiktok:
    enabled: true
    cookie: ""

  facebook:
    enabled: true
    cookie: ""

  pinterest:
    enabled: true
    resolver_url: "https://www.expertsphp.com/download.php"

auth:
  enabled: false
  jwt_secret: "change-this-secret"
  token_expiry: 24

rate_limit:
  enabled: true
  requests_per_second: 10
  burst: 30
  max_concurrent: 100
  whitelisted_ips:
    - "127.0.0.1"
    - "::1"
`

	if err := os.WriteFile(configFile, []byte(defaultConfig), 0644); err != nil {
		return fmt.Errorf("error writing default config: %w", err)
	}

	m.logger.Info().Msgf("Created default config file at: %s", configFile)
	return nil
}

// ensureDirectories ensures all required directories exist
func (m *Manager) ensureDirectories() error {
	dirs := []string{
		m.config.Download.SavePath,
		filepath.Dir(m.config.Database.Path),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("error creating directory %s: %w", dir, err)
		}
	}

	return nil
}

// configureLogger configures the logger based on settings
func (m *Manager) configureLogger() {
	level, err := zerolog.ParseLevel(m.config.Log.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if m.config.Log.Format != "json" {
		m.out = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	if m.config.Log.Output != "" && m.config.Log.Output != "stdout" {
		if err := os.MkdirAll(filepath.Dir(m.config.Log.Output), 0755); err == nil {
			file, err := os.OpenFile(m.config.Log.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
			if err == nil {
				m.out = file
			}
		}
	}

	m.logger = m.Logger("config")
}

// GetLogger returns the logger instance
func (m *Manager) GetLogger() zerolog.Logger {
	return m.logger
}

// Logger returns a logger for the named component that follows the configured format
func (m *Manager) Logger(component string) zerolog.Logger {
	return zerolog.New(m.out).With().Timestamp().Str("component", component).Logger()
}
