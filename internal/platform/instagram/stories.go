package instagram

import (
	"context"
	"fmt"
	"os"
	"regexp"

	"github.com/rs/zerolog"

	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

var _ models.Strategy = &StoriesStrategy{}

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9._]{1,30}$`)

// Config configures the instaloader backed strategies
type Config struct {
	BinaryPath string
	Username   string
	Password   string
	UserAgent  string
}

// StoriesStrategy downloads the stories or highlights of a user with instaloader.
// The result is the output directory holding one file per item.
type StoriesStrategy struct {
	kind   models.ResourceKind
	config Config
	runner utils.CommandRunner
	logger zerolog.Logger
}

// NewStoriesStrategy creates a strategy for stories
func NewStoriesStrategy(config Config, runner utils.CommandRunner) *StoriesStrategy {
	return newStrategy(models.KindStories, config, runner)
}

// NewHighlightsStrategy creates a strategy for highlights
func NewHighlightsStrategy(config Config, runner utils.CommandRunner) *StoriesStrategy {
	return newStrategy(models.KindHighlights, config, runner)
}

func newStrategy(kind models.ResourceKind, config Config, runner utils.CommandRunner) *StoriesStrategy {
	if config.BinaryPath == "" {
		config.BinaryPath = "instaloader"
	}
	if runner == nil {
		runner = utils.ExecRunner{}
	}

	return &StoriesStrategy{
		kind:   kind,
		config: config,
		runner: runner,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "instaloader").Logger(),
	}
}

// Args builds the instaloader command line for username
func (s *StoriesStrategy) Args(username, outputDir string) []string {
	var args []string
	if s.config.Username != "" {
		args = append(args, "--login", s.config.Username)
		if s.config.Password != "" {
			args = append(args, "--password", s.config.Password)
		}
	}
	if s.config.UserAgent != "" {
		args = append(args, "--user-agent", s.config.UserAgent)
	}

	if s.kind == models.KindHighlights {
		args = append(args, "--highlights")
	} else {
		args = append(args, "--stories")
	}

	return append(args,
		"--no-posts",
		"--no-profile-pic",
		"--no-captions",
		"--no-metadata-json",
		"--quiet",
		"--dirname-pattern", outputDir,
		"--", username,
	)
}

// Fetch implements models.Strategy
func (s *StoriesStrategy) Fetch(ctx context.Context, target, outputDir string) (string, error) {
	if !usernamePattern.MatchString(target) {
		return "", fmt.Errorf("invalid instagram username: %q", target)
	}

	s.logger.Info().Str("user", target).Str("kind", string(s.kind)).Msg("Starting instaloader download")

	if _, err := s.runner.Run(ctx, s.config.BinaryPath, s.Args(target, outputDir)...); err != nil {
		return "", fmt.Errorf("instaloader %s download failed: %w", s.kind, err)
	}

	return outputDir, nil
}
