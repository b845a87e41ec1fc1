package schedule

import (
	"testing"
	"time"
)

func TestResolveConflicts_EmptySet(t *testing.T) {
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	if got := ResolveConflicts(at, nil); !got.Equal(at) {
		t.Errorf("got %v, want unchanged %v", got, at)
	}
}

func TestResolveConflicts_ExactCollision(t *testing.T) {
	// Two requests resolving to 10:00:00: the second lands on 10:01:00.
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	got := ResolveConflicts(at, []time.Time{at})
	want := at.Add(time.Minute)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveConflicts_Idempotent(t *testing.T) {
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	existing := []time.Time{at.Add(-2 * time.Minute), at.Add(5 * time.Minute)}
	if got := ResolveConflicts(at, existing); !got.Equal(at) {
		t.Errorf("conflict-free candidate changed: got %v, want %v", got, at)
	}
}

func TestResolveConflicts_ChainOfCollisions(t *testing.T) {
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	existing := []time.Time{
		base,
		base.Add(time.Minute),
		base.Add(2 * time.Minute),
	}
	got := ResolveConflicts(base, existing)
	want := base.Add(3 * time.Minute)
	if !got.Equal(want) {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestResolveConflicts_MinGapHoldsPairwise(t *testing.T) {
	base := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	var scheduled []time.Time
	// All candidates collide on the same instant; resolve them one by one.
	for i := 0; i < 10; i++ {
		at := ResolveConflicts(base, scheduled)
		scheduled = append(scheduled, at)
	}

	for i := range scheduled {
		for j := i + 1; j < len(scheduled); j++ {
			d := scheduled[i].Sub(scheduled[j])
			if d < 0 {
				d = -d
			}
			if d < MinGap {
				t.Fatalf("instants %v and %v are %v apart, want >= %v",
					scheduled[i], scheduled[j], d, MinGap)
			}
		}
	}
}

func TestResolveConflicts_NearMiss(t *testing.T) {
	at := time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)
	// 59 seconds away is inside the gap; 60 is not.
	got := ResolveConflicts(at, []time.Time{at.Add(59 * time.Second)})
	if got.Equal(at) {
		t.Error("candidate 59s from an existing instant should move")
	}

	got = ResolveConflicts(at, []time.Time{at.Add(60 * time.Second)})
	if !got.Equal(at) {
		t.Errorf("candidate exactly MinGap away should be accepted, got %v", got)
	}
}
