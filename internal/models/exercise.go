package models

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Session is one completed set: the weight used and how long it was held.
type Session struct {
	ID            uuid.UUID `json:"id"`
	Weight        float64   `json:"weight"`
	TimeUnderLoad int       `json:"time_under_load"`
	Timestamp     time.Time `json:"timestamp"`
}

// Exercise is a named movement with its session history in completion order.
type Exercise struct {
	Name        string    `json:"name"`
	Sessions    []Session `json:"sessions"`
	LastUpdated time.Time `json:"last_updated"`
}

// NewExercise creates an exercise with an empty history.
func NewExercise(name string, now time.Time) Exercise {
	return Exercise{Name: name, Sessions: []Session{}, LastUpdated: now}
}

// Clone returns a copy whose session slice is not shared with e.
func (e Exercise) Clone() Exercise {
	c := e
	c.Sessions = slices.Clone(e.Sessions)
	if c.Sessions == nil {
		c.Sessions = []Session{}
	}
	return c
}

// AppendSession adds s to the end of the history and bumps LastUpdated.
func (e *Exercise) AppendSession(s Session) {
	e.Sessions = append(e.Sessions, s)
	e.LastUpdated = s.Timestamp
}

// PreviousDuration returns the time under load of the most recent session.
// Missing or malformed history yields 0, which disables countdown cues.
func PreviousDuration(sessions []Session) int {
	if len(sessions) == 0 {
		return 0
	}
	last := sessions[len(sessions)-1].TimeUnderLoad
	if last < 0 {
		return 0
	}
	return last
}

// MergeSessions unions two histories by session ID. Order is by timestamp,
// with ties kept in first-seen order.
func MergeSessions(a, b []Session) []Session {
	seen := make(map[uuid.UUID]bool, len(a)+len(b))
	merged := make([]Session, 0, len(a)+len(b))
	for _, list := range [][]Session{a, b} {
		for _, s := range list {
			if s.ID != uuid.Nil {
				if seen[s.ID] {
					continue
				}
				seen[s.ID] = true
			}
			merged = append(merged, s)
		}
	}
	slices.SortStableFunc(merged, func(x, y Session) int {
		return x.Timestamp.Compare(y.Timestamp)
	})
	return merged
}

// NormalizeExerciseName trims name and rejects blank input.
func NormalizeExerciseName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("exercise name must not be empty")
	}
	return trimmed, nil
}
