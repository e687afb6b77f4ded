package monitor

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"media-dispatcher/pkg/models"
)

// value sums the samples of a gathered metric whose labels include every given pair
func value(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
	metrics:
		for _, metric := range mf.GetMetric() {
			for key, want := range labels {
				found := false
				for _, pair := range metric.GetLabel() {
					if pair.GetName() == key && pair.GetValue() == want {
						found = true
					}
				}
				if !found {
					continue metrics
				}
			}
			if metric.GetCounter() != nil {
				total += metric.GetCounter().GetValue()
			}
			if metric.GetGauge() != nil {
				total += metric.GetGauge().GetValue()
			}
		}
	}
	return total
}

func TestRecordOutcome(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMonitor(reg)

	m.RecordOutcome(models.Outcome{
		State:     models.StateSucceeded,
		Platform:  models.PlatformYouTube,
		MediaKind: models.MediaKindVideo,
		Size:      1024,
	}, time.Second)

	failed := models.FailedOutcome(models.ErrTimeout)
	failed.Platform = models.PlatformYouTube
	m.RecordOutcome(failed, 2*time.Second)

	if got := value(t, reg, "media_dispatcher_requests_total", map[string]string{"platform": "youtube", "state": "succeeded"}); got != 1 {
		t.Errorf("Expected 1 succeeded request, got %v", got)
	}
	if got := value(t, reg, "media_dispatcher_failures_total", map[string]string{"platform": "youtube", "kind": "timeout"}); got != 1 {
		t.Errorf("Expected 1 timeout failure, got %v", got)
	}
}

func TestRecordAdmission(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMonitor(reg)

	m.RecordAdmission(true)
	m.RecordAdmission(true)
	m.RecordAdmission(false)

	if got := value(t, reg, "media_dispatcher_quota_decisions_total", map[string]string{"result": "admitted"}); got != 2 {
		t.Errorf("Expected 2 admissions, got %v", got)
	}
	if got := value(t, reg, "media_dispatcher_quota_decisions_total", map[string]string{"result": "rejected"}); got != 1 {
		t.Errorf("Expected 1 rejection, got %v", got)
	}
}

func TestActiveRequests(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMonitor(reg)

	m.RecordDispatchStart()
	m.RecordDispatchStart()
	m.RecordDispatchEnd()

	if got := value(t, reg, "media_dispatcher_active_requests", nil); got != 1 {
		t.Errorf("Expected 1 active request, got %v", got)
	}
}

func TestRecordCleanupAndStorage(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMonitor(reg)

	m.RecordCleanup(nil)
	m.RecordCleanup(errors.New("busy"))
	m.RecordStorageOperation("save_request_log", nil, time.Millisecond)

	if got := value(t, reg, "media_dispatcher_delivery_cleanups_total", map[string]string{"status": "error"}); got != 1 {
		t.Errorf("Expected 1 failed cleanup, got %v", got)
	}
	if got := value(t, reg, "media_dispatcher_storage_operations_total", map[string]string{"operation": "save_request_log", "status": "success"}); got != 1 {
		t.Errorf("Expected 1 storage operation, got %v", got)
	}
}

func TestStartStop(t *testing.T) {
	m := NewMonitor(prometheus.NewRegistry())
	m.Start()
	m.Stop()
	m.Stop()

	health := m.HealthCheck()
	if _, ok := health["goroutines"]; !ok {
		t.Errorf("Expected goroutines in health check")
	}
}
