package models

import (
	"fmt"
	"slices"
)

// AllowedThresholds lists the countdown thresholds a user may pick, in seconds.
var AllowedThresholds = []int{3, 5, 10, 15, 20, 30}

// TimerSettings configures countdown cues for every exercise.
type TimerSettings struct {
	SoundEnabled              bool `json:"sound_enabled"`
	CountdownThresholdSeconds int  `json:"countdown_threshold_seconds"`
}

// DefaultTimerSettings is used when nothing has been persisted yet or the
// persisted record is unreadable.
func DefaultTimerSettings() TimerSettings {
	return TimerSettings{SoundEnabled: true, CountdownThresholdSeconds: 10}
}

// Validate reports whether the threshold is one of AllowedThresholds.
func (s TimerSettings) Validate() error {
	if !slices.Contains(AllowedThresholds, s.CountdownThresholdSeconds) {
		return fmt.Errorf("countdown threshold %d not in %v", s.CountdownThresholdSeconds, AllowedThresholds)
	}
	return nil
}
