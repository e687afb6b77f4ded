package quota

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"media-dispatcher/pkg/models"
)

var base = time.Date(2024, time.June, 23, 10, 15, 30, 0, time.UTC)

func TestMemoryTrackerAdmit(t *testing.T) {
	tracker := NewMemoryTracker(Settings{})
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		ok, err := tracker.Admit(ctx, 42, base.Add(time.Duration(i)*time.Second))
		if err != nil {
			t.Fatalf("Admit returned error: %v", err)
		}
		if !ok {
			t.Errorf("Expected request %d to be admitted", i+1)
		}
	}

	ok, _ := tracker.Admit(ctx, 42, base.Add(10*time.Second))
	if ok {
		t.Errorf("Expected sixth request within the window to be rejected")
	}

	// the first entry leaves the window exactly 60s after it was admitted
	ok, _ = tracker.Admit(ctx, 42, base.Add(60*time.Second))
	if !ok {
		t.Errorf("Expected request at window boundary to be admitted")
	}
}

func TestMemoryTrackerRejectionDoesNotMutate(t *testing.T) {
	tracker := NewMemoryTracker(Settings{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	tracker.Admit(ctx, 1, base)
	tracker.Admit(ctx, 1, base.Add(time.Second))

	for i := 0; i < 10; i++ {
		if ok, _ := tracker.Admit(ctx, 1, base.Add(30*time.Second)); ok {
			t.Fatalf("Expected rejection while window is full")
		}
	}

	usage, _ := tracker.Usage(ctx, 1, base.Add(30*time.Second))
	if usage.Count != 2 {
		t.Errorf("Expected count 2 after rejections, got %d", usage.Count)
	}
	if !usage.ResetAt.Equal(base.Add(time.Minute)) {
		t.Errorf("Expected reset at %v, got %v", base.Add(time.Minute), usage.ResetAt)
	}
	if usage.Remaining() != 0 {
		t.Errorf("Expected no remaining requests, got %d", usage.Remaining())
	}

	// one slot frees when the first entry expires
	if ok, _ := tracker.Admit(ctx, 1, base.Add(time.Minute)); !ok {
		t.Errorf("Expected admission after the oldest entry expired")
	}
	if ok, _ := tracker.Admit(ctx, 1, base.Add(time.Minute)); ok {
		t.Errorf("Expected rejection while the second entry is still retained")
	}
}

func TestMemoryTrackerUsersAreIndependent(t *testing.T) {
	tracker := NewMemoryTracker(Settings{Limit: 1, Window: time.Minute})
	ctx := context.Background()

	if ok, _ := tracker.Admit(ctx, 1, base); !ok {
		t.Errorf("Expected user 1 to be admitted")
	}
	if ok, _ := tracker.Admit(ctx, 2, base); !ok {
		t.Errorf("Expected user 2 to be admitted")
	}
	if tracker.Users() != 2 {
		t.Errorf("Expected 2 tracked users, got %d", tracker.Users())
	}
}

func TestMemoryTrackerConcurrentSameUser(t *testing.T) {
	tracker := NewMemoryTracker(Settings{Limit: 5, Window: time.Minute})
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := tracker.Admit(ctx, 7, base); ok {
				mu.Lock()
				admitted++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if admitted != 5 {
		t.Errorf("Expected exactly 5 admissions, got %d", admitted)
	}
}

// TestMemoryTrackerWindowProperty checks that every admitted request saw fewer than
// limit admissions in the preceding window, against a brute force model.
func TestMemoryTrackerWindowProperty(t *testing.T) {
	const limit = 5
	window := time.Minute
	rng := rand.New(rand.NewSource(1))
	tracker := NewMemoryTracker(Settings{Limit: limit, Window: window})
	ctx := context.Background()

	var admittedAt []time.Time
	now := base
	for i := 0; i < 2000; i++ {
		now = now.Add(time.Duration(rng.Intn(20000)) * time.Millisecond)
		user := models.UserID(rng.Intn(3))

		ok, err := tracker.Admit(ctx, user, now)
		if err != nil {
			t.Fatalf("Admit returned error: %v", err)
		}
		if user != 0 {
			continue
		}

		inWindow := 0
		for _, at := range admittedAt {
			if now.Sub(at) < window {
				inWindow++
			}
		}
		expected := inWindow < limit
		if ok != expected {
			t.Fatalf("Step %d: expected admit=%v with %d in window, got %v", i, expected, inWindow, ok)
		}
		if ok {
			admittedAt = append(admittedAt, now)
		}
	}
}

func TestNewBackend(t *testing.T) {
	tracker, err := New(context.Background(), Options{Backend: "memory"})
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if _, ok := tracker.(*MemoryTracker); !ok {
		t.Errorf("Expected *MemoryTracker, got %T", tracker)
	}

	if _, err := New(context.Background(), Options{Backend: "etcd"}); err == nil {
		t.Errorf("Expected error for unknown backend")
	}
}
