package models

import (
	"time"
)

// UserID identifies the requester. It is only used as a map key.
type UserID int64

// Platform represents the source platform of a link
type Platform string

const (
	PlatformInstagram   Platform = "instagram"
	PlatformYouTube     Platform = "youtube"
	PlatformTikTok      Platform = "tiktok"
	PlatformFacebook    Platform = "facebook"
	PlatformPinterest   Platform = "pinterest"
	PlatformUnsupported Platform = "unsupported"
)

// ResourceKind narrows a platform link. Only Instagram uses anything but KindUnknown.
type ResourceKind string

const (
	KindPost       ResourceKind = "post"
	KindReel       ResourceKind = "reel"
	KindStories    ResourceKind = "stories"
	KindHighlights ResourceKind = "highlights"
	KindUnknown    ResourceKind = "unknown"
)

// MediaKind represents the type of a delivered artifact
type MediaKind string

const (
	MediaKindVideo MediaKind = "video"
	MediaKindImage MediaKind = "image"
	MediaKindBatch MediaKind = "batch"
)

// OutcomeState is the terminal state of a request
type OutcomeState string

const (
	StateSucceeded   OutcomeState = "succeeded"
	StateFailed      OutcomeState = "failed"
	StateRejected    OutcomeState = "rejected"
	StateUnsupported OutcomeState = "unsupported"
)

// Message is an inbound request from a transport
type Message struct {
	UserID UserID `json:"user_id"`
	Text   string `json:"text"`
}

// ClassifiedRequest is the result of classifying a message text
type ClassifiedRequest struct {
	OriginalURL string       `json:"original_url"`
	ResolvedURL string       `json:"resolved_url"`
	Platform    Platform     `json:"platform"`
	Kind        ResourceKind `json:"kind"`
	// Target is the username for stories and highlights, the resolved URL otherwise.
	Target string `json:"target"`
}

// Outcome is the tagged result of one request
type Outcome struct {
	RequestID    string       `json:"request_id,omitempty"`
	State        OutcomeState `json:"state"`
	Platform     Platform     `json:"platform,omitempty"`
	Kind         ResourceKind `json:"kind,omitempty"`
	ArtifactPath string       `json:"artifact_path,omitempty"`
	MediaKind    MediaKind    `json:"media_kind,omitempty"`
	Items        []string     `json:"items,omitempty"`
	Size         int64        `json:"size,omitempty"`
	Failure      *Failure     `json:"failure,omitempty"`
}

// Succeeded reports whether the outcome carries a deliverable artifact
func (o Outcome) Succeeded() bool {
	return o.State == StateSucceeded
}

// Reason returns the failure text, or an empty string for a successful outcome
func (o Outcome) Reason() string {
	if o.Failure == nil {
		return ""
	}
	return o.Failure.Reason()
}

// FailedOutcome builds an outcome for the given failure, picking the state from its kind
func FailedOutcome(f *Failure) Outcome {
	state := StateFailed
	switch f.Kind {
	case FailureQuotaExceeded:
		state = StateRejected
	case FailureUnsupportedPlatform:
		state = StateUnsupported
	}
	return Outcome{State: state, Failure: f}
}

// Config represents the application configuration
type Config struct {
	Server struct {
		Host         string `mapstructure:"host" yaml:"host"`
		Port         int    `mapstructure:"port" yaml:"port"`
		ReadTimeout  int    `mapstructure:"read_timeout" yaml:"read_timeout"`
		WriteTimeout int    `mapstructure:"write_timeout" yaml:"write_timeout"`
	} `mapstructure:"server" yaml:"server"`

	Download struct {
		SavePath         string `mapstructure:"save_path" yaml:"save_path"`
		MaxFileSizeBytes int64  `mapstructure:"max_file_size_bytes" yaml:"max_file_size_bytes"`
		StrategyTimeout  int    `mapstructure:"strategy_timeout" yaml:"strategy_timeout"`
		YtdlpPath        string `mapstructure:"ytdlp_path" yaml:"ytdlp_path"`
		InstaloaderPath  string `mapstructure:"instaloader_path" yaml:"instaloader_path"`
	} `mapstructure:"download" yaml:"download"`

	Quota struct {
		Backend       string `mapstructure:"backend" yaml:"backend"`
		Limit         int    `mapstructure:"limit" yaml:"limit"`
		WindowSeconds int    `mapstructure:"window_seconds" yaml:"window_seconds"`
		RedisAddr     string `mapstructure:"redis_addr" yaml:"redis_addr"`
		RedisPassword string `mapstructure:"redis_password" yaml:"redis_password"`
		KeyPrefix     string `mapstructure:"key_prefix" yaml:"key_prefix"`
	} `mapstructure:"quota" yaml:"quota"`

	Classifier struct {
		ShortLinkHosts []string `mapstructure:"short_link_hosts" yaml:"short_link_hosts"`
	} `mapstructure:"classifier" yaml:"classifier"`

	Database struct {
		Type     string `mapstructure:"type" yaml:"type"`
		Path     string `mapstructure:"path" yaml:"path"`
		MaxConns int    `mapstructure:"max_conns" yaml:"max_conns"`
	} `mapstructure:"database" yaml:"database"`

	Log struct {
		Level  string `mapstructure:"level" yaml:"level"`
		Format string `mapstructure:"format" yaml:"format"`
		Output string `mapstructure:"output" yaml:"output"`
	} `mapstructure:"log" yaml:"log"`

	Proxy struct {
		Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
		Type     string `mapstructure:"type" yaml:"type"`
		Host     string `mapstructure:"host" yaml:"host"`
		Port     int    `mapstructure:"port" yaml:"port"`
		Username string `mapstructure:"username" yaml:"username"`
		Password string `mapstructure:"password" yaml:"password"`
	} `mapstructure:"proxy" yaml:"proxy"`

	Platforms struct {
		Instagram struct {
			Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
			Username  string `mapstructure:"username" yaml:"username"`
			Password  string `mapstructure:"password" yaml:"password"`
			UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
		} `mapstructure:"instagram" yaml:"instagram"`

		YouTube   PlatformConfig `mapstructure:"youtube" yaml:"youtube"`
		TikTok    PlatformConfig `mapstructure:"tiktok" yaml:"tiktok"`
		Facebook  PlatformConfig `mapstructure:"facebook" yaml:"facebook"`
		Pinterest struct {
			Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
			ResolverURL string `mapstructure:"resolver_url" yaml:"resolver_url"`
		} `mapstructure:"pinterest" yaml:"pinterest"`
	} `mapstructure:"platforms" yaml:"platforms"`

	Auth struct {
		Enabled     bool   `mapstructure:"enabled" yaml:"enabled"`
		JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret"`
		TokenExpiry int    `mapstructure:"token_expiry" yaml:"token_expiry"`
	} `mapstructure:"auth" yaml:"auth"`

	RateLimit struct {
		Enabled           bool     `mapstructure:"enabled" yaml:"enabled"`
		RequestsPerSecond int      `mapstructure:"requests_per_second" yaml:"requests_per_second"`
		Burst             int      `mapstructure:"burst" yaml:"burst"`
		MaxConcurrent     int      `mapstructure:"max_concurrent" yaml:"max_concurrent"`
		WhitelistedIPs    []string `mapstructure:"whitelisted_ips" yaml:"whitelisted_ips"`
	} `mapstructure:"rate_limit" yaml:"rate_limit"`
}

// PlatformConfig holds the settings shared by the yt-dlp backed platforms
type PlatformConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	Cookie    string `mapstructure:"cookie" yaml:"cookie"`
	UserAgent string `mapstructure:"user_agent" yaml:"user_agent"`
	Referer   string `mapstructure:"referer" yaml:"referer"`
}

// User is a registered chat user
type User struct {
	UserID    UserID    `json:"user_id" gorm:"primaryKey;autoIncrement:false"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	JoinedAt  time.Time `json:"joined_at" gorm:"index"`
}

// RequestLog is one processed request
type RequestLog struct {
	ID          string       `json:"id" gorm:"primaryKey"`
	UserID      UserID       `json:"user_id" gorm:"index"`
	URL         string       `json:"url"`
	Platform    Platform     `json:"platform" gorm:"index"`
	Kind        ResourceKind `json:"kind"`
	State       OutcomeState `json:"state" gorm:"index"`
	FailureKind FailureKind  `json:"failure_kind"`
	Detail      string       `json:"detail"`
	MediaKind   MediaKind    `json:"media_kind"`
	FileSize    int64        `json:"file_size"`
	DurationMs  int64        `json:"duration_ms"`
	CreatedAt   time.Time    `json:"created_at" gorm:"index"`
}

// Stats represents usage statistics
type Stats struct {
	TotalUsers      int64                  `json:"total_users"`
	NewUsers24h     int64                  `json:"new_users_24h"`
	TotalRequests   int64                  `json:"total_requests"`
	RequestsByState map[OutcomeState]int64 `json:"requests_by_state"`
	SuccessRate     float64                `json:"success_rate"`
}
