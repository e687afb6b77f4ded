package instagram

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type MockRunner struct {
	args  []string
	calls int
	err   error
}

func (m *MockRunner) Run(ctx context.Context, name string, args ...string) (string, error) {
	m.calls++
	m.args = args
	return "", m.err
}

func TestStoriesFetch(t *testing.T) {
	runner := &MockRunner{}
	s := NewStoriesStrategy(Config{Username: "bot", Password: "secret"}, runner)

	dir, err := s.Fetch(context.Background(), "some.user", "/data/1/abc")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if dir != "/data/1/abc" {
		t.Errorf("Expected output dir, got %s", dir)
	}

	args := strings.Join(runner.args, " ")
	for _, expected := range []string{"--login bot", "--password secret", "--stories", "--dirname-pattern /data/1/abc", "-- some.user"} {
		if !strings.Contains(args, expected) {
			t.Errorf("Expected args to contain %q, got %s", expected, args)
		}
	}
	if strings.Contains(args, "--highlights") {
		t.Errorf("Stories strategy must not request highlights")
	}
}

func TestHighlightsArgs(t *testing.T) {
	s := NewHighlightsStrategy(Config{}, &MockRunner{})
	args := strings.Join(s.Args("someone", "/out"), " ")

	if !strings.Contains(args, "--highlights") {
		t.Errorf("Expected --highlights, got %s", args)
	}
	if strings.Contains(args, "--login") {
		t.Errorf("Expected anonymous run without login, got %s", args)
	}
}

func TestFetchRejectsBadUsername(t *testing.T) {
	runner := &MockRunner{}
	s := NewStoriesStrategy(Config{}, runner)

	for _, name := range []string{"", "-rm", "a/b", strings.Repeat("x", 31)} {
		if _, err := s.Fetch(context.Background(), name, "/out"); err == nil {
			t.Errorf("Expected error for username %q", name)
		}
	}
	if runner.calls != 0 {
		t.Errorf("Expected runner not to be called, got %d calls", runner.calls)
	}
}

func TestFetchRunnerError(t *testing.T) {
	s := NewStoriesStrategy(Config{}, &MockRunner{err: errors.New("login required")})

	if _, err := s.Fetch(context.Background(), "someone", "/out"); err == nil {
		t.Errorf("Expected error from runner")
	}
}
