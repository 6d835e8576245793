package timer

import (
	"sync"
	"time"

	"github.com/claude/tulog/internal/audio"
	"github.com/claude/tulog/internal/models"
)

// State is the engine's run state.
type State int

const (
	StateIdle State = iota
	StateRunning
)

// String returns the lowercase state name used in API payloads.
func (s State) String() string {
	if s == StateRunning {
		return "running"
	}
	return "idle"
}

// SettingsSource supplies the current timer settings. It is consulted on
// every tick, so changes apply to a run already in progress.
type SettingsSource interface {
	TimerSettings() models.TimerSettings
}

// Armed describes the single exercise currently being timed.
type Armed struct {
	Exercise         string
	PreviousDuration int
	StartedAt        time.Time
}

// Result is a finished run, ready to become a Session.
type Result struct {
	Exercise  string
	Elapsed   int
	StoppedAt time.Time
}

// TickResult describes what one tick did.
type TickResult struct {
	Advanced  bool
	Elapsed   int
	Remaining int
	Cued      bool
}

// Status is a point-in-time view of the engine.
type Status struct {
	State            State
	Exercise         string
	Elapsed          int
	PreviousDuration int
	Remaining        int
	Cues             int
	StartedAt        time.Time
}

// Engine is a stopwatch state machine for one exercise at a time.
type Engine struct {
	mu       sync.Mutex
	state    State
	armed    Armed
	elapsed  int
	cues     int
	cue      audio.Cue
	settings SettingsSource
	now      func() time.Time
}

// New creates an idle Engine.
func New(cue audio.Cue, settings SettingsSource) *Engine {
	if cue == nil {
		cue = audio.Nop{}
	}
	return &Engine{cue: cue, settings: settings, now: time.Now}
}

// Start begins timing exercise with the given previous duration. Any run in
// progress is discarded. Empty names are ignored. Reports whether a run started.
func (e *Engine) Start(exercise string, previousDuration int) bool {
	if exercise == "" {
		return false
	}
	if previousDuration < 0 {
		previousDuration = 0
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.state = StateRunning
	e.elapsed = 0
	e.cues = 0
	e.armed = Armed{
		Exercise:         exercise,
		PreviousDuration: previousDuration,
		StartedAt:        e.now(),
	}
	return true
}

// Stop ends the current run and returns it. ok is false when idle.
func (e *Engine) Stop() (res Result, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return Result{}, false
	}
	res = Result{
		Exercise:  e.armed.Exercise,
		Elapsed:   e.elapsed,
		StoppedAt: e.now(),
	}
	e.resetLocked()
	return res, true
}

// Cancel ends the current run without producing a result and returns what
// was armed. ok is false when idle.
func (e *Engine) Cancel() (armed Armed, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return Armed{}, false
	}
	armed = e.armed
	e.resetLocked()
	return armed, true
}

// Tick advances a running engine by one second and plays a cue when the
// run is within the countdown threshold of the previous duration.
// Ticks while idle are ignored.
func (e *Engine) Tick() TickResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return TickResult{}
	}

	e.elapsed++
	remaining := e.armed.PreviousDuration - e.elapsed
	res := TickResult{Advanced: true, Elapsed: e.elapsed, Remaining: remaining}

	settings := models.DefaultTimerSettings()
	if e.settings != nil {
		settings = e.settings.TimerSettings()
	}
	if settings.SoundEnabled && ShouldCue(remaining, settings.CountdownThresholdSeconds) {
		e.cues++
		res.Cued = true
		e.cue.Play()
	}
	return res
}

// Status returns a snapshot of the engine.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	st := Status{State: e.state}
	if e.state == StateRunning {
		st.Exercise = e.armed.Exercise
		st.Elapsed = e.elapsed
		st.PreviousDuration = e.armed.PreviousDuration
		st.Remaining = e.armed.PreviousDuration - e.elapsed
		st.Cues = e.cues
		st.StartedAt = e.armed.StartedAt
	}
	return st
}

// Armed returns the exercise being timed, or "" when idle.
func (e *Engine) Armed() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateRunning {
		return ""
	}
	return e.armed.Exercise
}

// Rename retargets a running engine from one exercise name to another
// without touching elapsed.
func (e *Engine) Rename(from, to string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateRunning && e.armed.Exercise == from {
		e.armed.Exercise = to
	}
}

func (e *Engine) resetLocked() {
	e.state = StateIdle
	e.elapsed = 0
	e.cues = 0
	e.armed = Armed{}
}

// ShouldCue reports whether a tick with the given remaining seconds fires a
// cue: strictly above zero and at most threshold.
func ShouldCue(remaining, threshold int) bool {
	return remaining > 0 && remaining <= threshold
}
