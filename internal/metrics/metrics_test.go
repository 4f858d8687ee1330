package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestSink_TotalsMatchPerProviderSums(t *testing.T) {
	s := New()
	s.RecordAttempt("a")
	s.RecordAttempt("a")
	s.RecordAttempt("b")
	s.RecordSuccess("a", time.Millisecond)
	s.RecordFailure("b", "timeout")

	snap := s.Snapshot()
	var sumAttempts, sumSuccesses, sumFailures int
	for _, pc := range snap.PerProvider {
		sumAttempts += pc.Attempts
		sumSuccesses += pc.Successes
		sumFailures += pc.Failures
	}
	if sumAttempts != snap.TotalAttempts {
		t.Errorf("sum of per-provider attempts = %d, want %d", sumAttempts, snap.TotalAttempts)
	}
	if sumSuccesses != snap.TotalSuccesses {
		t.Errorf("sum of per-provider successes = %d, want %d", sumSuccesses, snap.TotalSuccesses)
	}
	if sumFailures != snap.TotalFailures {
		t.Errorf("sum of per-provider failures = %d, want %d", sumFailures, snap.TotalFailures)
	}
}

func TestSink_ErrorCounts(t *testing.T) {
	s := New()
	s.RecordFailure("a", "timeout")
	s.RecordFailure("a", "timeout")
	s.RecordFailure("a", "rate_limited")
	snap := s.Snapshot()
	if snap.ErrorCounts["timeout"] != 2 {
		t.Errorf("timeout count = %d, want 2", snap.ErrorCounts["timeout"])
	}
	if snap.ErrorCounts["rate_limited"] != 1 {
		t.Errorf("rate_limited count = %d, want 1", snap.ErrorCounts["rate_limited"])
	}
}

func TestSink_RecentSwitchesCapped(t *testing.T) {
	s := New()
	for i := 0; i < 15; i++ {
		s.RecordSwitch("a", "b", "rate_limited")
	}
	snap := s.Snapshot()
	if len(snap.RecentSwitches) != maxRecentSwitches {
		t.Errorf("recent switches = %d, want %d", len(snap.RecentSwitches), maxRecentSwitches)
	}
	if snap.TotalSwitches != 15 {
		t.Errorf("total switches = %d, want 15", snap.TotalSwitches)
	}
}

func TestSink_Reset(t *testing.T) {
	s := New()
	s.RecordAttempt("a")
	s.RecordSuccess("a", time.Millisecond)
	s.Reset()
	snap := s.Snapshot()
	if snap.TotalAttempts != 0 || snap.TotalSuccesses != 0 || len(snap.PerProvider) != 0 {
		t.Error("Reset should clear all counters")
	}
}

func TestSink_ConcurrentAccess(t *testing.T) {
	s := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.RecordAttempt("a")
			s.RecordSuccess("a", time.Microsecond)
		}()
	}
	wg.Wait()
	snap := s.Snapshot()
	if snap.TotalAttempts != 50 || snap.TotalSuccesses != 50 {
		t.Errorf("attempts=%d successes=%d, want 50/50", snap.TotalAttempts, snap.TotalSuccesses)
	}
}
