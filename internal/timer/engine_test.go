package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/claude/tulog/internal/audio"
	"github.com/claude/tulog/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixedSettings struct {
	mu sync.Mutex
	s  models.TimerSettings
}

func (f *fixedSettings) TimerSettings() models.TimerSettings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.s
}

func (f *fixedSettings) set(s models.TimerSettings) {
	f.mu.Lock()
	f.s = s
	f.mu.Unlock()
}

func newEngine(threshold int, sound bool) (*Engine, *audio.Recorder, *fixedSettings) {
	rec := &audio.Recorder{}
	settings := &fixedSettings{s: models.TimerSettings{SoundEnabled: sound, CountdownThresholdSeconds: threshold}}
	e := New(rec, settings)
	e.now = func() time.Time { return time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC) }
	return e, rec, settings
}

func TestElapsedEqualsTickCount(t *testing.T) {
	for _, n := range []int{0, 1, 2, 59, 300} {
		e, _, _ := newEngine(10, true)
		require.True(t, e.Start("Plank", 0))
		for range n {
			e.Tick()
		}
		res, ok := e.Stop()
		require.True(t, ok)
		assert.Equal(t, n, res.Elapsed, "ticks=%d", n)
		assert.Equal(t, "Plank", res.Exercise)
	}
}

func TestStartEmptyNameIsNoop(t *testing.T) {
	e, _, _ := newEngine(10, true)
	assert.False(t, e.Start("", 50))
	assert.Equal(t, StateIdle, e.Status().State)
}

func TestStopWhenIdle(t *testing.T) {
	e, _, _ := newEngine(10, true)
	_, ok := e.Stop()
	assert.False(t, ok)
	_, ok = e.Cancel()
	assert.False(t, ok)
}

func TestTickWhenIdleHasNoEffect(t *testing.T) {
	e, rec, _ := newEngine(10, true)
	res := e.Tick()
	assert.False(t, res.Advanced)

	e.Start("Squat", 5)
	e.Tick()
	_, _ = e.Stop()
	res = e.Tick()
	assert.False(t, res.Advanced, "tick after stop must be ignored")
	assert.Equal(t, 0, e.Status().Elapsed)
	assert.Equal(t, 1, rec.Plays())
}

func TestSwitchingExerciseResetsElapsed(t *testing.T) {
	e, _, _ := newEngine(10, true)
	e.Start("A", 0)
	for range 7 {
		e.Tick()
	}
	e.Start("B", 0)
	st := e.Status()
	assert.Equal(t, "B", st.Exercise)
	assert.Equal(t, 0, st.Elapsed)
	e.Tick()
	res, _ := e.Stop()
	assert.Equal(t, 1, res.Elapsed)
}

func TestShouldCueBoundaries(t *testing.T) {
	const threshold = 10
	assert.True(t, ShouldCue(threshold, threshold))
	assert.True(t, ShouldCue(1, threshold))
	assert.False(t, ShouldCue(threshold+1, threshold))
	assert.False(t, ShouldCue(0, threshold))
	assert.False(t, ShouldCue(-3, threshold))
}

// Leg Press: previous 120s, threshold 10. Cues fire for elapsed 110..119 only.
func TestLegPressCountdown(t *testing.T) {
	e, rec, _ := newEngine(10, true)
	e.Start("Leg Press", 120)

	for range 109 {
		e.Tick()
	}
	assert.Equal(t, 0, rec.Plays(), "remaining=11 must not cue")

	res := e.Tick()
	assert.Equal(t, 110, res.Elapsed)
	assert.Equal(t, 10, res.Remaining)
	assert.True(t, res.Cued)

	for range 9 {
		assert.True(t, e.Tick().Cued)
	}
	res = e.Tick()
	assert.Equal(t, 120, res.Elapsed)
	assert.False(t, res.Cued, "remaining=0 must not cue")

	for range 5 {
		assert.False(t, e.Tick().Cued)
	}
	assert.Equal(t, 10, rec.Plays())
	assert.Equal(t, 10, e.Status().Cues)

	out, ok := e.Stop()
	require.True(t, ok)
	assert.Equal(t, 125, out.Elapsed)
}

func TestSoundDisabledNeverCues(t *testing.T) {
	e, rec, _ := newEngine(10, false)
	e.Start("Row", 5)
	for range 10 {
		e.Tick()
	}
	assert.Equal(t, 0, rec.Plays())
}

func TestSettingsReadAtTickTime(t *testing.T) {
	e, rec, settings := newEngine(3, true)
	e.Start("Curl", 20)
	for range 10 {
		e.Tick() // remaining 10..19: outside threshold 3
	}
	assert.Equal(t, 0, rec.Plays())

	settings.set(models.TimerSettings{SoundEnabled: true, CountdownThresholdSeconds: 15})
	assert.True(t, e.Tick().Cued, "new threshold applies to the running set")
}

func TestNoPreviousRecordNeverCues(t *testing.T) {
	e, rec, _ := newEngine(30, true)
	e.Start("New", 0)
	for range 40 {
		e.Tick()
	}
	assert.Equal(t, 0, rec.Plays())

	e.Start("Bad", -5)
	assert.Equal(t, 0, e.Status().PreviousDuration)
}

func TestRename(t *testing.T) {
	e, _, _ := newEngine(10, true)
	e.Start("Bench", 0)
	e.Tick()
	e.Rename("Bench", "Bench Press")
	assert.Equal(t, "Bench Press", e.Armed())
	assert.Equal(t, 1, e.Status().Elapsed)
}
