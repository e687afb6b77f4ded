package dispatch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"media-dispatcher/pkg/models"
)

// Defaults for the orchestrator
const (
	DefaultMaxFileSize     int64 = 50 * 1024 * 1024
	DefaultStrategyTimeout       = 5 * time.Minute
)

// Resolver looks up the strategy for a classified request
type Resolver interface {
	Resolve(platform models.Platform, kind models.ResourceKind) (models.Strategy, bool)
}

// Options configure an orchestrator
type Options struct {
	MaxFileSize     int64
	StrategyTimeout time.Duration
}

// Orchestrator runs strategies and validates what they produce
type Orchestrator struct {
	resolver    Resolver
	maxFileSize int64
	timeout     time.Duration
	logger      zerolog.Logger
}

// fetchResult carries the strategy result out of its goroutine
type fetchResult struct {
	path string
	err  error
}

// NewOrchestrator creates a new orchestrator
func NewOrchestrator(resolver Resolver, opts Options) *Orchestrator {
	if opts.MaxFileSize <= 0 {
		opts.MaxFileSize = DefaultMaxFileSize
	}
	if opts.StrategyTimeout <= 0 {
		opts.StrategyTimeout = DefaultStrategyTimeout
	}

	return &Orchestrator{
		resolver:    resolver,
		maxFileSize: opts.MaxFileSize,
		timeout:     opts.StrategyTimeout,
		logger:      zerolog.New(os.Stdout).With().Timestamp().Str("component", "dispatch").Logger(),
	}
}

// MaxFileSize returns the size bound for delivered files
func (o *Orchestrator) MaxFileSize() int64 {
	return o.maxFileSize
}

// Run fetches the media for req into outputDir and returns a terminal outcome.
// It never deletes what a strategy produced.
func (o *Orchestrator) Run(ctx context.Context, req models.ClassifiedRequest, outputDir string) models.Outcome {
	outcome := o.run(ctx, req, outputDir)
	outcome.Platform = req.Platform
	outcome.Kind = req.Kind
	return outcome
}

func (o *Orchestrator) run(ctx context.Context, req models.ClassifiedRequest, outputDir string) models.Outcome {
	strategy, ok := o.resolver.Resolve(req.Platform, req.Kind)
	if !ok {
		return models.FailedOutcome(models.NewFailure(models.FailureUnsupportedPlatform,
			"no strategy for %s/%s", req.Platform, req.Kind))
	}

	path, err := o.fetch(ctx, strategy, req.Target, outputDir)
	if err != nil {
		var failure *models.Failure
		if !errors.As(err, &failure) {
			failure = models.NewFailure(models.FailureExtractor, "%v", err)
		}
		o.logger.Warn().
			Str("platform", string(req.Platform)).
			Str("kind", string(req.Kind)).
			Str("failure", string(failure.Kind)).
			Err(err).
			Msg("Strategy failed")
		return models.FailedOutcome(failure)
	}

	return o.inspect(path)
}

// fetch runs the strategy in its own goroutine bounded by the strategy timeout
func (o *Orchestrator) fetch(ctx context.Context, strategy models.Strategy, target, outputDir string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	done := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fetchResult{err: fmt.Errorf("strategy panicked: %v", r)}
			}
		}()
		path, err := strategy.Fetch(ctx, target, outputDir)
		done <- fetchResult{path: path, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && errors.Is(res.err, context.DeadlineExceeded) {
			return "", models.NewFailure(models.FailureTimeout, "strategy exceeded %s", o.timeout)
		}
		return res.path, res.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return "", models.NewFailure(models.FailureTimeout, "strategy exceeded %s", o.timeout)
		}
		return "", fmt.Errorf("request canceled: %w", ctx.Err())
	}
}

// inspect validates the produced path and picks the media kind
func (o *Orchestrator) inspect(path string) models.Outcome {
	if path == "" {
		return models.FailedOutcome(models.NewFailure(models.FailureArtifactMissing, "strategy returned no path"))
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.FailedOutcome(models.NewFailure(models.FailureArtifactMissing, "%s: %v", path, err))
	}

	if info.IsDir() {
		return o.inspectBatch(path)
	}

	if !info.Mode().IsRegular() {
		return models.FailedOutcome(models.NewFailure(models.FailureArtifactMissing, "%s is not a regular file", path))
	}

	if info.Size() > o.maxFileSize {
		o.logger.Warn().Str("path", path).Int64("size", info.Size()).Msg("Artifact exceeds size limit, left on disk")
		return models.FailedOutcome(models.NewFailure(models.FailureArtifactTooLarge,
			"%d bytes exceeds %d", info.Size(), o.maxFileSize))
	}

	return models.Outcome{
		State:        models.StateSucceeded,
		ArtifactPath: path,
		MediaKind:    MediaKindOf(path),
		Size:         info.Size(),
	}
}

// inspectBatch lists the deliverable files of a directory result
func (o *Orchestrator) inspectBatch(dir string) models.Outcome {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return models.FailedOutcome(models.NewFailure(models.FailureArtifactMissing, "%s: %v", dir, err))
	}

	var (
		items   []string
		total   int64
		skipped int
	)
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.Size() > o.maxFileSize {
			skipped++
			continue
		}
		items = append(items, filepath.Join(dir, entry.Name()))
		total += info.Size()
	}
	sort.Strings(items)

	if skipped > 0 {
		o.logger.Warn().Str("dir", dir).Int("skipped", skipped).Msg("Skipped oversized batch items, left on disk")
	}

	if len(items) == 0 {
		if skipped > 0 {
			return models.FailedOutcome(models.NewFailure(models.FailureArtifactTooLarge,
				"all %d items exceed %d bytes", skipped, o.maxFileSize))
		}
		return models.FailedOutcome(models.NewFailure(models.FailureArtifactMissing, "%s holds no files", dir))
	}

	return models.Outcome{
		State:        models.StateSucceeded,
		ArtifactPath: dir,
		MediaKind:    models.MediaKindBatch,
		Items:        items,
		Size:         total,
	}
}

// MediaKindOf infers the media kind of a single file from its extension
func MediaKindOf(path string) models.MediaKind {
	if strings.EqualFold(filepath.Ext(path), ".mp4") {
		return models.MediaKindVideo
	}
	return models.MediaKindImage
}

// Release deletes the delivered files of an outcome. Only the listed batch
// items are removed, so skipped oversized files stay on disk. The enclosing
// directory is removed as well when it is left empty.
func Release(outcome models.Outcome) error {
	if !outcome.Succeeded() || outcome.ArtifactPath == "" {
		return fmt.Errorf("outcome has no deliverable artifact")
	}

	if outcome.MediaKind == models.MediaKindBatch {
		for _, item := range outcome.Items {
			if err := os.Remove(item); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("failed to remove batch item %s: %w", item, err)
			}
		}
		// fails harmlessly when skipped items remain
		os.Remove(outcome.ArtifactPath)
		return nil
	}

	if err := os.Remove(outcome.ArtifactPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove artifact %s: %w", outcome.ArtifactPath, err)
	}

	// fails harmlessly when other files remain
	os.Remove(filepath.Dir(outcome.ArtifactPath))
	return nil
}
