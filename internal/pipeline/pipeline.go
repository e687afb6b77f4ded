package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"media-dispatcher/internal/quota"
	"media-dispatcher/pkg/models"
)

// Classifier turns message text into a classified request
type Classifier interface {
	Classify(ctx context.Context, raw string) (models.ClassifiedRequest, error)
}

// Runner fetches the media for a classified request
type Runner interface {
	Run(ctx context.Context, req models.ClassifiedRequest, outputDir string) models.Outcome
}

// Recorder receives metrics for every handled message
type Recorder interface {
	RecordAdmission(admitted bool)
	RecordDispatchStart()
	RecordDispatchEnd()
	RecordOutcome(outcome models.Outcome, duration time.Duration)
	RecordStorageOperation(operation string, err error, duration time.Duration)
}

// quotaUnavailable prefixes the failure detail of requests refused because the
// quota ledger could not be read, telling them apart from extractor errors.
const quotaUnavailable = "quota backend unavailable"

// Options configure a pipeline. Storage and Recorder are optional.
type Options struct {
	SavePath string
	Storage  models.Storage
	Recorder Recorder
	Now      func() time.Time
}

// Pipeline takes one inbound message to a terminal outcome
type Pipeline struct {
	tracker    quota.Tracker
	classifier Classifier
	runner     Runner
	storage    models.Storage
	recorder   Recorder
	savePath   string
	now        func() time.Time
	logger     zerolog.Logger
}

// New creates a pipeline
func New(tracker quota.Tracker, classifier Classifier, runner Runner, opts Options) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SavePath == "" {
		opts.SavePath = "./downloads"
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	return &Pipeline{
		tracker:    tracker,
		classifier: classifier,
		runner:     runner,
		storage:    opts.Storage,
		recorder:   opts.Recorder,
		savePath:   opts.SavePath,
		now:        opts.Now,
		logger:     zerolog.New(os.Stdout).With().Timestamp().Str("component", "pipeline").Logger(),
	}
}

// Handle admits, classifies and dispatches one message. It always returns a
// terminal outcome; a quota slot is spent on admission whatever happens after.
func (p *Pipeline) Handle(ctx context.Context, msg models.Message) models.Outcome {
	start := p.now()
	requestID := uuid.NewString()

	outcome, req := p.handle(ctx, msg, requestID, start)
	outcome.RequestID = requestID

	p.finish(msg, req, outcome, start)
	return outcome
}

func (p *Pipeline) handle(ctx context.Context, msg models.Message, requestID string, start time.Time) (models.Outcome, models.ClassifiedRequest) {
	req := models.ClassifiedRequest{
		OriginalURL: msg.Text,
		ResolvedURL: msg.Text,
		Platform:    models.PlatformUnsupported,
		Kind:        models.KindUnknown,
	}

	admitted, err := p.tracker.Admit(ctx, msg.UserID, start)
	if err != nil {
		// Fail closed when the ledger is unreachable
		p.logger.Error().Err(err).Int64("user", int64(msg.UserID)).Str("stage", "admission").Msg("Quota check failed")
		return models.FailedOutcome(models.NewFailure(models.FailureExtractor, "%s: %v", quotaUnavailable, err)), req
	}
	p.recorder.RecordAdmission(admitted)
	if !admitted {
		return models.FailedOutcome(models.NewFailure(models.FailureQuotaExceeded, "user %d", msg.UserID)), req
	}

	classified, err := p.classifier.Classify(ctx, msg.Text)
	if err != nil {
		var failure *models.Failure
		if !errors.As(err, &failure) {
			failure = models.NewFailure(models.FailureExtractor, "%v", err)
		}
		outcome := models.FailedOutcome(failure)
		outcome.Platform = classified.Platform
		outcome.Kind = classified.Kind
		return outcome, classified
	}
	req = classified

	if req.Platform == models.PlatformUnsupported {
		outcome := models.FailedOutcome(models.NewFailure(models.FailureUnsupportedPlatform, "%s", req.OriginalURL))
		outcome.Platform = req.Platform
		outcome.Kind = req.Kind
		return outcome, req
	}

	outputDir := p.OutputDir(msg.UserID, requestID)
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		outcome := models.FailedOutcome(models.NewFailure(models.FailureExtractor, "creating output directory: %v", err))
		outcome.Platform = req.Platform
		outcome.Kind = req.Kind
		return outcome, req
	}

	p.recorder.RecordDispatchStart()
	outcome := p.runner.Run(ctx, req, outputDir)
	p.recorder.RecordDispatchEnd()

	if !outcome.Succeeded() {
		// No-op unless the strategy left the directory empty
		os.Remove(outputDir)
	}

	return outcome, req
}

// OutputDir returns the directory a request's artifact is written to
func (p *Pipeline) OutputDir(user models.UserID, requestID string) string {
	return filepath.Join(p.savePath, strconv.FormatInt(int64(user), 10), requestID)
}

// finish logs the terminal state and stores the request log entry
func (p *Pipeline) finish(msg models.Message, req models.ClassifiedRequest, outcome models.Outcome, start time.Time) {
	duration := p.now().Sub(start)
	p.recorder.RecordOutcome(outcome, duration)

	event := p.logger.Info()
	if outcome.State == models.StateFailed {
		event = p.logger.Warn()
	}
	event = event.
		Str("request_id", outcome.RequestID).
		Int64("user", int64(msg.UserID)).
		Str("platform", string(outcome.Platform)).
		Str("state", string(outcome.State)).
		Dur("duration", duration)
	if outcome.Failure != nil {
		event = event.Str("failure", string(outcome.Failure.Kind)).Str("detail", outcome.Failure.Detail)
	}
	event.Msg("Request finished")

	if p.storage == nil {
		return
	}

	entry := &models.RequestLog{
		ID:         outcome.RequestID,
		UserID:     msg.UserID,
		URL:        req.OriginalURL,
		Platform:   outcome.Platform,
		Kind:       outcome.Kind,
		State:      outcome.State,
		MediaKind:  outcome.MediaKind,
		FileSize:   outcome.Size,
		DurationMs: duration.Milliseconds(),
		CreatedAt:  start,
	}
	if outcome.Failure != nil {
		entry.FailureKind = outcome.Failure.Kind
		entry.Detail = outcome.Failure.Detail
	}

	saveStart := time.Now()
	err := p.storage.SaveRequestLog(entry)
	p.recorder.RecordStorageOperation("save_request_log", err, time.Since(saveStart))
	if err != nil {
		p.logger.Error().Err(err).Str("request_id", outcome.RequestID).Msg("Failed to save request log")
	}
}

type nopRecorder struct{}

func (nopRecorder) RecordAdmission(bool)                                {}
func (nopRecorder) RecordDispatchStart()                                {}
func (nopRecorder) RecordDispatchEnd()                                  {}
func (nopRecorder) RecordOutcome(models.Outcome, time.Duration)         {}
func (nopRecorder) RecordStorageOperation(string, error, time.Duration) {}
