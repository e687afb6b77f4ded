package ytdlp

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"

	"media-dispatcher/internal/utils"
	"media-dispatcher/pkg/models"
)

var _ models.Strategy = &Strategy{}

// Config configures a yt-dlp strategy
type Config struct {
	BinaryPath string
	Format     string
	Proxy      string
	UserAgent  string
	Referer    string
	Cookie     string
	// CookieFile is passed as --cookies when set
	CookieFile string
}

// Strategy downloads a single media file with the yt-dlp binary
type Strategy struct {
	config Config
	runner utils.CommandRunner
	logger zerolog.Logger
}

// NewStrategy creates a yt-dlp strategy. A nil runner executes the real binary.
func NewStrategy(config Config, runner utils.CommandRunner) *Strategy {
	if config.BinaryPath == "" {
		config.BinaryPath = "yt-dlp"
	}
	if config.Format == "" {
		config.Format = "best"
	}
	if runner == nil {
		runner = utils.ExecRunner{}
	}

	return &Strategy{
		config: config,
		runner: runner,
		logger: zerolog.New(os.Stdout).With().Timestamp().Str("component", "ytdlp").Logger(),
	}
}

// Args builds the yt-dlp command line for url
func (s *Strategy) Args(url, outputDir string) []string {
	args := []string{
		"-f", s.config.Format,
		"-o", filepath.Join(outputDir, "%(title).150B.%(ext)s"),
		"--no-playlist",
		"--no-progress",
		"--no-warnings",
		"--print", "after_move:filepath",
	}

	if s.config.UserAgent != "" {
		args = append(args, "--add-header", "User-Agent:"+s.config.UserAgent)
	}
	if s.config.Referer != "" {
		args = append(args, "--add-header", "Referer:"+s.config.Referer)
	}
	if s.config.Cookie != "" {
		args = append(args, "--add-header", "Cookie:"+s.config.Cookie)
	}
	if s.config.CookieFile != "" {
		args = append(args, "--cookies", s.config.CookieFile)
	}
	if s.config.Proxy != "" {
		args = append(args, "--proxy", s.config.Proxy)
	}

	return append(args, "--", url)
}

// Fetch implements models.Strategy
func (s *Strategy) Fetch(ctx context.Context, target, outputDir string) (string, error) {
	s.logger.Info().Str("url", target).Str("dir", outputDir).Msg("Starting yt-dlp download")

	out, err := s.runner.Run(ctx, s.config.BinaryPath, s.Args(target, outputDir)...)
	if err != nil {
		return "", fmt.Errorf("yt-dlp download failed: %w", err)
	}

	path := lastNonEmptyLine(out)
	if path == "" {
		return "", fmt.Errorf("yt-dlp reported no output file")
	}

	s.logger.Debug().Str("path", path).Msg("yt-dlp download finished")
	return path, nil
}

func lastNonEmptyLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}
