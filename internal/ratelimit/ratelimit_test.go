package ratelimit

import (
	"testing"
	"time"
)

func TestTracker_MarkLimitedWithExplicitResetAt(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	cur := base
	tr := New(Config{}).withClock(func() time.Time { return cur })

	tr.MarkLimited(base.Add(time.Minute), 0)
	if !tr.Limited() {
		t.Fatal("should be limited immediately after MarkLimited")
	}

	cur = base.Add(59 * time.Second)
	if !tr.Limited() {
		t.Fatal("should still be limited just before reset time")
	}

	cur = base.Add(time.Minute)
	if tr.Limited() {
		t.Fatal("should auto-clear once now reaches the reset time")
	}
}

func TestTracker_MarkLimitedWithResetIn(t *testing.T) {
	base := time.Now()
	cur := base
	tr := New(Config{}).withClock(func() time.Time { return cur })

	tr.MarkLimited(time.Time{}, 30*time.Second)
	cur = base.Add(31 * time.Second)
	if tr.Limited() {
		t.Fatal("should clear after resetIn elapses")
	}
}

func TestTracker_MarkLimitedDefaultDuration(t *testing.T) {
	base := time.Now()
	cur := base
	tr := New(Config{DefaultResetAfter: 10 * time.Second}).withClock(func() time.Time { return cur })

	tr.MarkLimited(time.Time{}, 0)
	cur = base.Add(5 * time.Second)
	if !tr.Limited() {
		t.Fatal("should still be limited before default duration elapses")
	}
	cur = base.Add(11 * time.Second)
	if tr.Limited() {
		t.Fatal("should clear after default duration elapses")
	}
}

func TestTracker_ClearLimit(t *testing.T) {
	tr := New(Config{})
	tr.MarkLimited(time.Now().Add(time.Hour), 0)
	tr.ClearLimit()
	if tr.Limited() {
		t.Fatal("ClearLimit should clear the state")
	}
}

func TestTracker_LimitCount(t *testing.T) {
	tr := New(Config{})
	tr.MarkLimited(time.Now().Add(time.Minute), 0)
	tr.MarkLimited(time.Now().Add(time.Minute), 0)
	if tr.LimitCount() != 2 {
		t.Fatalf("LimitCount = %d, want 2", tr.LimitCount())
	}
}

func TestTracker_TimeUntilReset(t *testing.T) {
	tr := New(Config{})
	if tr.TimeUntilReset() != 0 {
		t.Fatal("unlimited tracker should report zero time until reset")
	}
	tr.MarkLimited(time.Now().Add(time.Minute), 0)
	if d := tr.TimeUntilReset(); d <= 0 || d > time.Minute {
		t.Fatalf("TimeUntilReset = %v, want roughly a minute", d)
	}
}

func TestTracker_Reset(t *testing.T) {
	tr := New(Config{})
	tr.MarkLimited(time.Now().Add(time.Minute), 0)
	tr.Reset()
	if tr.Limited() || tr.LimitCount() != 0 {
		t.Fatal("Reset should clear both the limit and the counter")
	}
}

func TestRegistry_LazyInit(t *testing.T) {
	r := NewRegistry(Config{})
	a1 := r.Get("a")
	a2 := r.Get("a")
	if a1 != a2 {
		t.Fatal("Get should return the same tracker for the same provider")
	}
}

func TestRegistry_ResetAll(t *testing.T) {
	r := NewRegistry(Config{})
	r.Get("a").MarkLimited(time.Now().Add(time.Minute), 0)
	r.Get("b").MarkLimited(time.Now().Add(time.Minute), 0)
	r.ResetAll()
	if r.Get("a").Limited() || r.Get("b").Limited() {
		t.Fatal("ResetAll should clear every tracker")
	}
}
