package models

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

// TestPreviousDuration verifies that only the last session counts and that
// malformed history disables the countdown instead of failing.
func TestPreviousDuration(t *testing.T) {
	tests := []struct {
		name     string
		sessions []Session
		want     int
	}{
		{"empty", nil, 0},
		{"single", []Session{{TimeUnderLoad: 120}}, 120},
		{"last wins", []Session{{TimeUnderLoad: 90}, {TimeUnderLoad: 125}}, 125},
		{"negative", []Session{{TimeUnderLoad: 60}, {TimeUnderLoad: -4}}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PreviousDuration(tt.sessions); got != tt.want {
				t.Errorf("PreviousDuration() = %d, want %d", got, tt.want)
			}
		})
	}
}

// TestMergeSessionsDedup verifies that sessions present on both sides are kept
// once and the result is ordered by timestamp.
func TestMergeSessionsDedup(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	a := Session{ID: uuid.New(), TimeUnderLoad: 60, Timestamp: base}
	b := Session{ID: uuid.New(), TimeUnderLoad: 70, Timestamp: base.Add(time.Minute)}
	c := Session{ID: uuid.New(), TimeUnderLoad: 80, Timestamp: base.Add(2 * time.Minute)}

	merged := MergeSessions([]Session{a, c}, []Session{a, b, c})
	if len(merged) != 3 {
		t.Fatalf("len = %d, want 3", len(merged))
	}
	for i, want := range []Session{a, b, c} {
		if merged[i].ID != want.ID {
			t.Errorf("merged[%d] = %v, want %v", i, merged[i].ID, want.ID)
		}
	}
}

// TestMergeSessionsIdempotent verifies merging a history with itself changes nothing.
func TestMergeSessionsIdempotent(t *testing.T) {
	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	list := []Session{
		{ID: uuid.New(), TimeUnderLoad: 60, Timestamp: base},
		{ID: uuid.New(), TimeUnderLoad: 70, Timestamp: base.Add(time.Second)},
	}
	merged := MergeSessions(list, list)
	if len(merged) != len(list) {
		t.Fatalf("len = %d, want %d", len(merged), len(list))
	}
}

// TestNormalizeExerciseName verifies trimming and blank rejection.
func TestNormalizeExerciseName(t *testing.T) {
	got, err := NormalizeExerciseName("  Leg Press ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "Leg Press" {
		t.Errorf("got %q, want %q", got, "Leg Press")
	}
	for _, in := range []string{"", "   ", "\t\n"} {
		if _, err := NormalizeExerciseName(in); err == nil {
			t.Errorf("NormalizeExerciseName(%q) expected error", in)
		}
	}
}

// TestCloneDoesNotShareSessions verifies appending to a clone leaves the original intact.
func TestCloneDoesNotShareSessions(t *testing.T) {
	orig := Exercise{Name: "Rowing", Sessions: make([]Session, 1, 4)}
	c := orig.Clone()
	c.AppendSession(Session{TimeUnderLoad: 30, Timestamp: time.Now()})
	c.Sessions[0].Weight = 99
	if orig.Sessions[0].Weight != 0 {
		t.Error("clone shares backing array with original")
	}
}

// TestTimerSettingsValidate verifies only allowed thresholds pass.
func TestTimerSettingsValidate(t *testing.T) {
	if err := DefaultTimerSettings().Validate(); err != nil {
		t.Errorf("default settings invalid: %v", err)
	}
	if err := (TimerSettings{CountdownThresholdSeconds: 7}).Validate(); err == nil {
		t.Error("expected error for threshold 7")
	}
	if err := (TimerSettings{CountdownThresholdSeconds: 0}).Validate(); err == nil {
		t.Error("expected error for threshold 0")
	}
}
