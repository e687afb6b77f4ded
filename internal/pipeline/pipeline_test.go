package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"media-dispatcher/internal/classifier"
	"media-dispatcher/internal/dispatch"
	"media-dispatcher/internal/quota"
	"media-dispatcher/internal/registry"
	"media-dispatcher/pkg/models"
)

// fakeClock advances by step on every reading
type fakeClock struct {
	mu   sync.Mutex
	now  time.Time
	step time.Duration
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now
	c.now = c.now.Add(c.step)
	return now
}

type fakeExpander struct {
	links map[string]string
}

func (e *fakeExpander) Expand(ctx context.Context, shortURL string) (string, error) {
	if resolved, ok := e.links[shortURL]; ok {
		return resolved, nil
	}
	return "", errors.New("no redirect")
}

type countingClassifier struct {
	inner *classifier.Classifier
	calls int32
}

func (c *countingClassifier) Classify(ctx context.Context, raw string) (models.ClassifiedRequest, error) {
	atomic.AddInt32(&c.calls, 1)
	return c.inner.Classify(ctx, raw)
}

type countingResolver struct {
	inner *registry.Registry
	calls int32
}

func (r *countingResolver) Resolve(platform models.Platform, kind models.ResourceKind) (models.Strategy, bool) {
	atomic.AddInt32(&r.calls, 1)
	return r.inner.Resolve(platform, kind)
}

type memoryStorage struct {
	mu   sync.Mutex
	logs []*models.RequestLog
	fail bool
}

func (s *memoryStorage) RegisterUser(*models.User) (bool, error)     { return true, nil }
func (s *memoryStorage) GetUser(models.UserID) (*models.User, error) { return nil, nil }
func (s *memoryStorage) ListUsers(int, int) ([]*models.User, error)  { return nil, nil }
func (s *memoryStorage) ListRequestLogs(models.RequestFilter) ([]*models.RequestLog, error) {
	return nil, nil
}
func (s *memoryStorage) GetStats(time.Time) (*models.Stats, error) { return &models.Stats{}, nil }
func (s *memoryStorage) Close() error                              { return nil }

func (s *memoryStorage) SaveRequestLog(entry *models.RequestLog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail {
		return errors.New("disk full")
	}
	s.logs = append(s.logs, entry)
	return nil
}

type fixture struct {
	pipeline   *Pipeline
	tracker    *quota.MemoryTracker
	classifier *countingClassifier
	resolver   *countingResolver
	storage    *memoryStorage
	clock      *fakeClock
	savePath   string
	fetches    int32
}

var epoch = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

// newFixture wires the real classifier, registry and orchestrator around fake strategies
func newFixture(t *testing.T, strategy models.StrategyFunc) *fixture {
	t.Helper()

	f := &fixture{
		tracker:  quota.NewMemoryTracker(quota.Settings{Limit: 5, Window: time.Minute}),
		storage:  &memoryStorage{},
		savePath: t.TempDir(),
	}

	counted := models.StrategyFunc(func(ctx context.Context, target, outputDir string) (string, error) {
		atomic.AddInt32(&f.fetches, 1)
		return strategy(ctx, target, outputDir)
	})

	reg := registry.NewRegistry()
	for _, p := range []models.Platform{models.PlatformYouTube, models.PlatformTikTok, models.PlatformPinterest} {
		if err := reg.Register(p, models.KindUnknown, counted); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	for _, k := range []models.ResourceKind{models.KindPost, models.KindReel, models.KindStories, models.KindHighlights} {
		if err := reg.Register(models.PlatformInstagram, k, counted); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	f.resolver = &countingResolver{inner: reg}
	f.classifier = &countingClassifier{inner: classifier.New(&fakeExpander{links: map[string]string{
		"https://pin.it/good": "https://www.pinterest.com/pin/42/",
	}}, nil)}

	f.clock = &fakeClock{now: epoch, step: time.Second}
	orchestrator := dispatch.NewOrchestrator(f.resolver, dispatch.Options{
		MaxFileSize:     50 * 1024 * 1024,
		StrategyTimeout: time.Second,
	})

	f.pipeline = New(f.tracker, f.classifier, orchestrator, Options{
		SavePath: f.savePath,
		Storage:  f.storage,
		Now:      f.clock.Now,
	})
	return f
}

// writeFile runs inside strategy goroutines, so it reports with Errorf
func writeFile(t *testing.T, path string, size int64) {
	file, err := os.Create(path)
	if err != nil {
		t.Errorf("Create failed: %v", err)
		return
	}
	defer file.Close()
	if err := file.Truncate(size); err != nil {
		t.Errorf("Truncate failed: %v", err)
	}
}

func videoStrategy(t *testing.T, size int64) models.StrategyFunc {
	return func(ctx context.Context, target, outputDir string) (string, error) {
		path := filepath.Join(outputDir, "clip.mp4")
		writeFile(t, path, size)
		return path, nil
	}
}

func TestHandleYouTubeSuccess(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 10*1024*1024))

	outcome := f.pipeline.Handle(context.Background(), models.Message{UserID: 1, Text: "https://www.youtube.com/watch?v=abc123"})

	if !outcome.Succeeded() {
		t.Fatalf("Expected success, got %s (%v)", outcome.State, outcome.Failure)
	}
	if outcome.MediaKind != models.MediaKindVideo {
		t.Errorf("Expected video, got %s", outcome.MediaKind)
	}
	if outcome.Platform != models.PlatformYouTube {
		t.Errorf("Expected youtube, got %s", outcome.Platform)
	}
	if outcome.Size != 10*1024*1024 {
		t.Errorf("Expected 10 MB, got %d", outcome.Size)
	}
	if outcome.RequestID == "" {
		t.Errorf("Expected a request id")
	}

	wantDir := f.pipeline.OutputDir(1, outcome.RequestID)
	if filepath.Dir(outcome.ArtifactPath) != wantDir {
		t.Errorf("Expected artifact in %s, got %s", wantDir, outcome.ArtifactPath)
	}
	if !strings.HasPrefix(outcome.ArtifactPath, f.savePath) {
		t.Errorf("Expected artifact under %s, got %s", f.savePath, outcome.ArtifactPath)
	}

	if len(f.storage.logs) != 1 {
		t.Fatalf("Expected 1 request log, got %d", len(f.storage.logs))
	}
	entry := f.storage.logs[0]
	if entry.ID != outcome.RequestID || entry.State != models.StateSucceeded || entry.UserID != 1 {
		t.Errorf("Unexpected request log %+v", entry)
	}
}

func TestHandleQuotaExceeded(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 1024))
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		outcome := f.pipeline.Handle(ctx, models.Message{UserID: 2, Text: "https://youtu.be/abc"})
		if !outcome.Succeeded() {
			t.Fatalf("Request %d: expected success, got %s", i, outcome.State)
		}
	}

	outcome := f.pipeline.Handle(ctx, models.Message{UserID: 2, Text: "https://youtu.be/abc"})
	if outcome.State != models.StateRejected {
		t.Errorf("Expected rejected, got %s", outcome.State)
	}
	if !errors.Is(outcome.Failure, models.ErrQuotaExceeded) {
		t.Errorf("Expected quota exceeded, got %v", outcome.Failure)
	}
	if got := atomic.LoadInt32(&f.classifier.calls); got != 5 {
		t.Errorf("Expected classifier to run 5 times, got %d", got)
	}

	other := f.pipeline.Handle(ctx, models.Message{UserID: 3, Text: "https://youtu.be/abc"})
	if !other.Succeeded() {
		t.Errorf("Expected other user to be admitted, got %s", other.State)
	}
}

func TestHandleLinkExpansionFailure(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 1024))

	outcome := f.pipeline.Handle(context.Background(), models.Message{UserID: 4, Text: "https://pin.it/abcd"})

	if outcome.State != models.StateFailed {
		t.Errorf("Expected failed, got %s", outcome.State)
	}
	if !errors.Is(outcome.Failure, models.ErrLinkExpansion) {
		t.Errorf("Expected link expansion failure, got %v", outcome.Failure)
	}
	if got := atomic.LoadInt32(&f.resolver.calls); got != 0 {
		t.Errorf("Expected no strategy lookup, got %d", got)
	}
}

func TestHandleShortLinkSuccess(t *testing.T) {
	var target string
	f := newFixture(t, func(ctx context.Context, tgt, outputDir string) (string, error) {
		target = tgt
		path := filepath.Join(outputDir, "pinterest_image.jpg")
		writeFile(t, path, 10)
		return path, nil
	})

	outcome := f.pipeline.Handle(context.Background(), models.Message{UserID: 4, Text: "https://pin.it/good"})

	if !outcome.Succeeded() {
		t.Fatalf("Expected success, got %s (%v)", outcome.State, outcome.Failure)
	}
	if outcome.Platform != models.PlatformPinterest || outcome.MediaKind != models.MediaKindImage {
		t.Errorf("Expected pinterest image, got %s %s", outcome.Platform, outcome.MediaKind)
	}
	if target != "https://www.pinterest.com/pin/42/" {
		t.Errorf("Expected strategy to receive the resolved URL, got %s", target)
	}
}

func TestHandleMalformedHighlights(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 1024))

	outcome := f.pipeline.Handle(context.Background(), models.Message{UserID: 5, Text: "https://instagram.com/highlights/"})

	if !errors.Is(outcome.Failure, models.ErrMalformedTarget) {
		t.Errorf("Expected malformed target, got %v", outcome.Failure)
	}
	if got := atomic.LoadInt32(&f.fetches); got != 0 {
		t.Errorf("Expected no fetch, got %d", got)
	}
}

func TestHandleUnsupported(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 1024))

	outcome := f.pipeline.Handle(context.Background(), models.Message{UserID: 6, Text: "https://example.com/video"})

	if outcome.State != models.StateUnsupported {
		t.Errorf("Expected unsupported, got %s", outcome.State)
	}
	if got := atomic.LoadInt32(&f.resolver.calls); got != 0 {
		t.Errorf("Expected no strategy lookup, got %d", got)
	}

	entries, err := os.ReadDir(f.savePath)
	if err != nil {
		t.Fatalf("ReadDir failed: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("Expected no output directories, got %d", len(entries))
	}
}

func TestHandleExtractorFailure(t *testing.T) {
	f := newFixture(t, func(ctx context.Context, target, outputDir string) (string, error) {
		return "", errors.New("connection reset by peer")
	})
	ctx := context.Background()

	outcome := f.pipeline.Handle(ctx, models.Message{UserID: 7, Text: "https://www.youtube.com/watch?v=abc123"})

	if outcome.State != models.StateFailed {
		t.Errorf("Expected failed, got %s", outcome.State)
	}
	if !errors.Is(outcome.Failure, models.ErrExtractor) {
		t.Errorf("Expected extractor failure, got %v", outcome.Failure)
	}
	if !strings.Contains(outcome.Reason(), "connection reset") {
		t.Errorf("Expected reason to carry the error, got %q", outcome.Reason())
	}

	usage, err := f.tracker.Usage(ctx, 7, epoch.Add(5*time.Second))
	if err != nil {
		t.Fatalf("Usage failed: %v", err)
	}
	if usage.Count != 1 {
		t.Errorf("Expected quota slot to stay spent, got %d", usage.Count)
	}

	if _, err := os.Stat(f.pipeline.OutputDir(7, outcome.RequestID)); !os.IsNotExist(err) {
		t.Errorf("Expected empty output directory to be removed")
	}
}

type brokenTracker struct{}

func (brokenTracker) Admit(context.Context, models.UserID, time.Time) (bool, error) {
	return false, errors.New("connection refused")
}

func (brokenTracker) Usage(context.Context, models.UserID, time.Time) (quota.Usage, error) {
	return quota.Usage{}, errors.New("connection refused")
}

func TestHandleQuotaBackendFailure(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 1024))
	f.pipeline.tracker = brokenTracker{}

	outcome := f.pipeline.Handle(context.Background(), models.Message{UserID: 9, Text: "https://youtu.be/abc"})

	if outcome.State != models.StateFailed {
		t.Errorf("Expected failed, got %s", outcome.State)
	}
	if !strings.HasPrefix(outcome.Failure.Detail, "quota backend unavailable: connection refused") {
		t.Errorf("Unexpected detail %q", outcome.Failure.Detail)
	}
	if got := atomic.LoadInt32(&f.classifier.calls); got != 0 {
		t.Errorf("Expected no classification, got %d", got)
	}
	if len(f.storage.logs) != 1 || !strings.HasPrefix(f.storage.logs[0].Detail, "quota backend unavailable") {
		t.Errorf("Expected the request log to name the quota backend, got %+v", f.storage.logs)
	}
}

func TestHandleStorageFailureKeepsOutcome(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 1024))
	f.storage.fail = true

	outcome := f.pipeline.Handle(context.Background(), models.Message{UserID: 8, Text: "https://youtu.be/abc"})

	if !outcome.Succeeded() {
		t.Errorf("Expected success despite storage failure, got %s", outcome.State)
	}
}

func TestHandleConcurrentUsers(t *testing.T) {
	f := newFixture(t, videoStrategy(t, 1024))
	f.clock.step = 0
	ctx := context.Background()

	var wg sync.WaitGroup
	var succeeded, rejected int32
	for user := 1; user <= 4; user++ {
		for i := 0; i < 8; i++ {
			wg.Add(1)
			go func(user models.UserID) {
				defer wg.Done()
				outcome := f.pipeline.Handle(ctx, models.Message{UserID: user, Text: "https://youtu.be/abc"})
				switch outcome.State {
				case models.StateSucceeded:
					atomic.AddInt32(&succeeded, 1)
				case models.StateRejected:
					atomic.AddInt32(&rejected, 1)
				}
			}(models.UserID(user))
		}
	}
	wg.Wait()

	if succeeded != 20 || rejected != 12 {
		t.Errorf("Expected 20 succeeded and 12 rejected, got %d and %d", succeeded, rejected)
	}
}
