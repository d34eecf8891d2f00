package resource

import (
	"sync"
	"testing"

	"github.com/weft-dsl/weft/pkg/models"
)

func TestTracker_TurnLimit(t *testing.T) {
	tracker := NewTracker(3, 0)

	for i := 0; i < 3; i++ {
		if err := tracker.IncrementTurn(); err != nil {
			t.Fatalf("IncrementTurn() %d error: %v", i+1, err)
		}
	}

	err := tracker.IncrementTurn()
	if err == nil {
		t.Fatal("IncrementTurn() beyond limit succeeded")
	}
	re, ok := models.AsResourceExhausted(err)
	if !ok {
		t.Fatalf("error = %T, want *models.ResourceExhausted", err)
	}
	if re.Resource != "turns" {
		t.Errorf("Resource = %q, want turns", re.Resource)
	}
	if re.Metrics.Turns.Used != 3 || re.Metrics.Turns.Limit != 3 {
		t.Errorf("metrics = %+v, want used=3 limit=3", re.Metrics.Turns)
	}

	// No over-limit state is ever observable.
	if snap := tracker.Snapshot(); snap.Turns.Used != 3 {
		t.Errorf("Used after rejection = %d, want 3", snap.Turns.Used)
	}
}

func TestTracker_ContextLimitAndPeak(t *testing.T) {
	tracker := NewTracker(0, 100)

	if err := tracker.AddContextUsage(60); err != nil {
		t.Fatalf("AddContextUsage(60) error: %v", err)
	}
	if err := tracker.AddContextUsage(30); err != nil {
		t.Fatalf("AddContextUsage(30) error: %v", err)
	}

	err := tracker.AddContextUsage(20)
	if err == nil {
		t.Fatal("AddContextUsage() beyond limit succeeded")
	}
	re, ok := models.AsResourceExhausted(err)
	if !ok {
		t.Fatalf("error = %T, want *models.ResourceExhausted", err)
	}
	if re.Resource != "context" {
		t.Errorf("Resource = %q, want context", re.Resource)
	}

	snap := tracker.Snapshot()
	if snap.Context.Used != 90 {
		t.Errorf("Used = %d, want 90", snap.Context.Used)
	}
	if snap.Context.Peak != 60 {
		t.Errorf("Peak = %d, want 60", snap.Context.Peak)
	}
}

func TestTracker_WarningFiresOnce(t *testing.T) {
	tracker := NewTracker(10, 0)

	var mu sync.Mutex
	var warnings []string
	tracker.SetWarnFunc(func(resource string, _ models.ResourceMetrics) {
		mu.Lock()
		defer mu.Unlock()
		warnings = append(warnings, resource)
	})

	for i := 0; i < 10; i++ {
		if err := tracker.IncrementTurn(); err != nil {
			t.Fatalf("IncrementTurn() error: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(warnings) != 1 {
		t.Fatalf("got %d warnings, want exactly 1", len(warnings))
	}
	if warnings[0] != "turns" {
		t.Errorf("warning resource = %q, want turns", warnings[0])
	}
}

func TestTracker_UnlimitedWhenZero(t *testing.T) {
	tracker := NewTracker(0, 0)
	for i := 0; i < 1000; i++ {
		if err := tracker.IncrementTurn(); err != nil {
			t.Fatalf("IncrementTurn() error with no limit: %v", err)
		}
	}
	if err := tracker.AddContextUsage(1 << 20); err != nil {
		t.Fatalf("AddContextUsage() error with no limit: %v", err)
	}
}

func TestTracker_ConcurrentIncrements(t *testing.T) {
	tracker := NewTracker(100, 0)

	var wg sync.WaitGroup
	errs := make(chan error, 200)
	for i := 0; i < 200; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- tracker.IncrementTurn()
		}()
	}
	wg.Wait()
	close(errs)

	var ok, rejected int
	for err := range errs {
		if err == nil {
			ok++
		} else {
			rejected++
		}
	}
	if ok != 100 || rejected != 100 {
		t.Errorf("ok=%d rejected=%d, want 100/100", ok, rejected)
	}
	if snap := tracker.Snapshot(); snap.Turns.Used != 100 {
		t.Errorf("Used = %d, want 100", snap.Turns.Used)
	}
}

func TestTracker_SessionID(t *testing.T) {
	a := NewTracker(1, 1)
	b := NewTracker(1, 1)
	if a.SessionID() == "" {
		t.Error("empty session ID")
	}
	if a.SessionID() == b.SessionID() {
		t.Error("session IDs should differ")
	}
}
