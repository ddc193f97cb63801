package antiraid

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestRaidJoinCounter(t *testing.T) {
	tracker := NewTracker()
	now := time.Unix(0, 0)
	window := 5 * time.Second

	if count := tracker.RecordJoin("g1", now, window); count != 1 {
		t.Fatalf("expected 1, got %d", count)
	}
	tracker.RecordJoin("g1", now.Add(1*time.Second), window)
	tracker.RecordJoin("g1", now.Add(2*time.Second), window)
	if count := tracker.RecordJoin("g1", now.Add(3*time.Second), window); count != 4 {
		t.Fatalf("expected 4, got %d", count)
	}
	if count := tracker.RecordJoin("g1", now.Add(7*time.Second), window); count != 2 {
		t.Fatalf("expected 2, got %d", count)
	}
	if count := tracker.Count("g2", now, window); count != 0 {
		t.Fatalf("expected other guild untouched, got %d", count)
	}
}

func TestRaidResetRequiresFreshBurst(t *testing.T) {
	tracker := NewTracker()
	now := time.Unix(0, 0)
	window := 10 * time.Minute
	threshold := 3

	for i := 0; i < threshold; i++ {
		tracker.RecordJoin("g1", now.Add(time.Duration(i)*time.Second), window)
	}
	if !tracker.ResetIfAtLeast("g1", threshold) {
		t.Fatalf("expected reset at threshold")
	}
	if count := tracker.Count("g1", now.Add(5*time.Second), window); count != 0 {
		t.Fatalf("expected empty window after reset, got %d", count)
	}

	for i := 0; i < threshold-1; i++ {
		if count := tracker.RecordJoin("g1", now.Add(time.Duration(10+i)*time.Second), window); count >= threshold {
			t.Fatalf("join %d after reset reached threshold", i+1)
		}
	}
	if count := tracker.RecordJoin("g1", now.Add(20*time.Second), window); count != threshold {
		t.Fatalf("expected a fresh full burst to reach %d, got %d", threshold, count)
	}
}

func TestResetIfAtLeastHasOneWinner(t *testing.T) {
	tracker := NewTracker()
	now := time.Unix(0, 0)
	for i := 0; i < 10; i++ {
		tracker.RecordJoin("g1", now, time.Minute)
	}

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if tracker.ResetIfAtLeast("g1", 10) {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()
	if wins.Load() != 1 {
		t.Fatalf("expected one winner, got %d", wins.Load())
	}
}
