package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/claude/tulog/internal/audio"
	"github.com/claude/tulog/internal/clock"
	trackerr "github.com/claude/tulog/internal/errors"
	"github.com/claude/tulog/internal/models"
	"github.com/claude/tulog/internal/retry"
	"github.com/claude/tulog/internal/timer"
	"github.com/google/uuid"
)

// Action is what a start/stop press did.
type Action string

const (
	ActionStarted   Action = "started"
	ActionSwitched  Action = "switched"
	ActionStopped   Action = "stopped"
	ActionCancelled Action = "cancelled"
)

// Outcome describes the result of OnStartStop.
type Outcome struct {
	Action   Action `json:"action"`
	Exercise string `json:"exercise"`
	// Discarded names the exercise whose run was dropped by a switch.
	Discarded string          `json:"discarded,omitempty"`
	Session   *models.Session `json:"session,omitempty"`
	// Synced is false when a recorded session is still waiting to be persisted.
	Synced bool `json:"synced"`
}

// ArmedTimer is the single timing slot of a table. The zero value is empty.
type ArmedTimer struct {
	Exercise         string
	PreviousDuration int
	StartedAt        time.Time

	// gen identifies the clock schedule armed for this run.
	gen uint64
}

// Empty reports whether no exercise is armed.
func (a ArmedTimer) Empty() bool { return a.Exercise == "" }

// Warning is a non-blocking sync failure kept for display.
type Warning struct {
	Exercise string    `json:"exercise"`
	Op       string    `json:"op"`
	Message  string    `json:"message"`
	At       time.Time `json:"at"`
}

// Row is one exercise as displayed in the table.
type Row struct {
	Name             string           `json:"name"`
	Sessions         []models.Session `json:"sessions"`
	LastUpdated      time.Time        `json:"last_updated"`
	WeightInput      string           `json:"weight_input"`
	PreviousDuration int              `json:"previous_duration"`
	Running          bool             `json:"running"`
	Pending          bool             `json:"pending"`
}

type pendingOp int

const (
	opUpsert pendingOp = iota + 1
	opRemove
)

func (op pendingOp) String() string {
	if op == opRemove {
		return "remove"
	}
	return "upsert"
}

// Options configures a Table.
type Options struct {
	Log    *slog.Logger
	Policy retry.Policy
	Cue    audio.Cue
	// Clock returns a fresh tick source for each table. Defaults to a
	// one-second clock.Ticker.
	Clock func() clock.Source
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Log == nil {
		o.Log = slog.Default()
	}
	if o.Policy.Attempts == 0 {
		o.Policy = retry.DefaultPolicy()
	}
	if o.Cue == nil {
		o.Cue = audio.Nop{}
	}
	if o.Clock == nil {
		o.Clock = func() clock.Source { return clock.NewTicker(time.Second) }
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Table is the exercise table for one owner: the exercise list, raw weight
// inputs, the armed timer slot and the sync state of each row. All state
// transitions go through its methods; store I/O happens outside the lock.
type Table struct {
	mu        sync.Mutex
	exercises map[string]*models.Exercise
	weights   map[string]string
	armed     ArmedTimer
	armGen    uint64
	pending   map[string]pendingOp
	warnings  []Warning

	owner    int
	store    Store
	engine   *timer.Engine
	clock    clock.Source
	settings *Settings
	policy   retry.Policy
	log      *slog.Logger
	now      func() time.Time
}

// NewTable creates an empty table for owner. Call Load to read persisted state.
func NewTable(owner int, store Store, opts Options) *Table {
	opts = opts.withDefaults()
	log := opts.Log.With("owner", owner)
	settings := newSettings(owner, store, opts.Policy, log)
	return &Table{
		exercises: make(map[string]*models.Exercise),
		weights:   make(map[string]string),
		pending:   make(map[string]pendingOp),
		owner:     owner,
		store:     store,
		engine:    timer.New(opts.Cue, settings),
		clock:     opts.Clock(),
		settings:  settings,
		policy:    opts.Policy,
		log:       log,
		now:       opts.Now,
	}
}

// Settings returns the live settings holder of this table.
func (t *Table) Settings() *Settings { return t.settings }

// Load reads settings and exercises from the store, replacing in-memory
// rows. Weight inputs for exercises that still exist are kept. Unsynced
// local changes win over the stored rows: pending sessions are merged in,
// pending creations are kept and pending deletes stay deleted.
func (t *Table) Load(ctx context.Context) error {
	if err := t.settings.Load(ctx); err != nil {
		t.log.Warn("using default timer settings", "error", err)
	}

	var list []models.Exercise
	err := retry.Do(ctx, t.policy, func(ctx context.Context) error {
		var err error
		list, err = t.store.ListAll(ctx, t.owner)
		return err
	})
	if err != nil {
		return fmt.Errorf("loading exercises: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	loaded := make(map[string]*models.Exercise, len(list))
	for _, ex := range list {
		op, pending := t.pending[ex.Name]
		if pending && op == opRemove {
			continue
		}
		c := ex.Clone()
		if cur, ok := t.exercises[ex.Name]; ok && pending && op == opUpsert {
			c.Sessions = models.MergeSessions(c.Sessions, cur.Sessions)
		}
		loaded[ex.Name] = &c
	}
	// Rows created locally but not yet persisted survive a reload.
	for name, op := range t.pending {
		if _, ok := loaded[name]; !ok && op == opUpsert {
			if cur, ok := t.exercises[name]; ok {
				c := cur.Clone()
				loaded[name] = &c
			}
		}
	}
	t.exercises = loaded
	for name := range t.weights {
		if _, ok := loaded[name]; !ok {
			delete(t.weights, name)
		}
	}
	if !t.armed.Empty() {
		if _, ok := loaded[t.armed.Exercise]; !ok {
			t.cancelLocked()
		}
	}
	t.log.Info("exercise table loaded", "exercises", len(loaded))
	return nil
}

// OnStartStop toggles the timer for name. Idle starts it; running on the
// same exercise stops it and records a session; running on another exercise
// discards that run and starts this one.
func (t *Table) OnStartStop(ctx context.Context, name string) (Outcome, error) {
	t.mu.Lock()
	ex, ok := t.exercises[name]
	if !ok {
		t.mu.Unlock()
		return Outcome{}, trackerr.NewNotFound(name)
	}

	if t.armed.Exercise == name {
		res, _ := t.engine.Stop()
		t.armed = ArmedTimer{}
		t.clock.Disarm()

		if res.Elapsed <= 0 {
			t.mu.Unlock()
			t.log.Debug("zero-length run cancelled", "exercise", name)
			return Outcome{Action: ActionCancelled, Exercise: name, Synced: true}, nil
		}

		session := models.Session{
			ID:            uuid.New(),
			Weight:        weightOrZero(t.weights[name]),
			TimeUnderLoad: res.Elapsed,
			Timestamp:     res.StoppedAt,
		}
		ex.AppendSession(session)
		t.pending[name] = opUpsert
		t.mu.Unlock()

		t.log.Info("session recorded", "exercise", name, "time_under_load", session.TimeUnderLoad, "weight", session.Weight)
		synced := t.commit(ctx, name)
		return Outcome{Action: ActionStopped, Exercise: name, Session: &session, Synced: synced}, nil
	}

	out := Outcome{Action: ActionStarted, Exercise: name, Synced: true}
	if !t.armed.Empty() {
		out.Action = ActionSwitched
		out.Discarded = t.armed.Exercise
		t.cancelLocked()
	}
	t.startLocked(ex)
	t.mu.Unlock()

	t.log.Debug("timer started", "exercise", name, "discarded", out.Discarded)
	return out, nil
}

// OnWeightChange stores the raw weight input for name. An empty value unsets
// it; anything else must be a non-negative number.
func (t *Table) OnWeightChange(name, raw string) error {
	raw = strings.TrimSpace(raw)
	if raw != "" {
		if _, err := parseWeight(raw); err != nil {
			return err
		}
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.exercises[name]; !ok {
		return trackerr.NewNotFound(name)
	}
	if raw == "" {
		delete(t.weights, name)
		return nil
	}
	t.weights[name] = raw
	return nil
}

// OnAddExercise creates an exercise with an empty history. Names are
// trimmed; blank names and exact duplicates are rejected.
func (t *Table) OnAddExercise(ctx context.Context, name string) (models.Exercise, error) {
	name, err := models.NormalizeExerciseName(name)
	if err != nil {
		return models.Exercise{}, trackerr.NewInvalidRequest(err.Error())
	}

	t.mu.Lock()
	if _, exists := t.exercises[name]; exists {
		t.mu.Unlock()
		return models.Exercise{}, trackerr.NewNameAlreadyExists(name)
	}
	staleRemove := t.pending[name] == opRemove
	ex := models.NewExercise(name, t.now())
	t.exercises[name] = &ex
	t.pending[name] = opUpsert
	created := ex.Clone()
	t.mu.Unlock()

	if staleRemove {
		// A previous delete of this name never reached the store.
		if err := t.syncRemove(ctx, name); err != nil {
			t.warn(name, opRemove, err)
		}
	}
	t.commit(ctx, name)
	return created, nil
}

// OnDeleteExercise discards an armed run for name, then removes the
// exercise and its sessions. Unknown names are a no-op.
func (t *Table) OnDeleteExercise(ctx context.Context, name string) error {
	t.mu.Lock()
	if _, ok := t.exercises[name]; !ok {
		t.mu.Unlock()
		return nil
	}
	if t.armed.Exercise == name {
		t.cancelLocked()
	}
	delete(t.exercises, name)
	delete(t.weights, name)
	t.pending[name] = opRemove
	t.mu.Unlock()

	if err := t.syncRemove(ctx, name); err != nil {
		t.warn(name, opRemove, err)
		return nil
	}
	t.markSynced(name, opRemove)
	return nil
}

// OnRenameExercise moves an exercise, its weight input and an armed run to a
// new name.
func (t *Table) OnRenameExercise(ctx context.Context, from, to string) error {
	to, err := models.NormalizeExerciseName(to)
	if err != nil {
		return trackerr.NewInvalidRequest(err.Error())
	}

	t.mu.Lock()
	ex, ok := t.exercises[from]
	if !ok {
		t.mu.Unlock()
		return trackerr.NewNotFound(from)
	}
	if from == to {
		t.mu.Unlock()
		return nil
	}
	if _, exists := t.exercises[to]; exists {
		t.mu.Unlock()
		return trackerr.NewNameAlreadyExists(to)
	}

	delete(t.exercises, from)
	ex.Name = to
	ex.LastUpdated = t.now()
	t.exercises[to] = ex
	if w, ok := t.weights[from]; ok {
		t.weights[to] = w
		delete(t.weights, from)
	}
	if t.armed.Exercise == from {
		t.armed.Exercise = to
		t.engine.Rename(from, to)
	}
	t.pending[to] = opUpsert
	t.pending[from] = opRemove
	t.mu.Unlock()

	// Write the new name before dropping the old so a failure never loses history.
	if !t.commit(ctx, to) {
		return nil
	}
	if err := t.syncRemove(ctx, from); err != nil {
		t.warn(from, opRemove, err)
		return nil
	}
	t.markSynced(from, opRemove)
	return nil
}

// Resync retries every write left pending by exhausted retries. It returns
// the number of rows still pending.
func (t *Table) Resync(ctx context.Context) int {
	t.mu.Lock()
	work := make(map[string]pendingOp, len(t.pending))
	for name, op := range t.pending {
		work[name] = op
	}
	t.mu.Unlock()

	for name, op := range work {
		if op == opRemove {
			if err := t.syncRemove(ctx, name); err != nil {
				t.warn(name, opRemove, err)
				continue
			}
			t.markSynced(name, opRemove)
			continue
		}
		t.commit(ctx, name)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// Close cancels any run in progress and stops the tick schedule.
func (t *Table) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cancelLocked()
	t.clock.Disarm()
}

// Status returns a snapshot of the timer.
func (t *Table) Status() timer.Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.engine.Status()
}

// TimerView is the timer status as served to clients.
type TimerView struct {
	State            string     `json:"state"`
	Exercise         string     `json:"exercise,omitempty"`
	Elapsed          int        `json:"elapsed"`
	PreviousDuration int        `json:"previous_duration"`
	Remaining        int        `json:"remaining"`
	Cues             int        `json:"cues"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
}

// TimerView returns Status in its JSON form.
func (t *Table) TimerView() TimerView {
	st := t.Status()
	v := TimerView{
		State:            st.State.String(),
		Exercise:         st.Exercise,
		Elapsed:          st.Elapsed,
		PreviousDuration: st.PreviousDuration,
		Remaining:        st.Remaining,
		Cues:             st.Cues,
	}
	if !st.StartedAt.IsZero() {
		started := st.StartedAt
		v.StartedAt = &started
	}
	return v
}

// Armed returns the armed slot.
func (t *Table) Armed() ArmedTimer {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.armed
}

// Exercise returns a copy of one exercise.
func (t *Table) Exercise(name string) (models.Exercise, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	ex, ok := t.exercises[name]
	if !ok {
		return models.Exercise{}, false
	}
	return ex.Clone(), true
}

// View returns every row ordered by name.
func (t *Table) View() []Row {
	t.mu.Lock()
	defer t.mu.Unlock()

	rows := make([]Row, 0, len(t.exercises))
	for name := range t.exercises {
		rows = append(rows, t.rowLocked(name))
	}
	slices.SortFunc(rows, func(a, b Row) int { return strings.Compare(a.Name, b.Name) })
	return rows
}

// Row returns the display row for one exercise.
func (t *Table) Row(name string) (Row, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.exercises[name]; !ok {
		return Row{}, false
	}
	return t.rowLocked(name), true
}

func (t *Table) rowLocked(name string) Row {
	c := t.exercises[name].Clone()
	return Row{
		Name:             name,
		Sessions:         c.Sessions,
		LastUpdated:      c.LastUpdated,
		WeightInput:      t.weights[name],
		PreviousDuration: models.PreviousDuration(c.Sessions),
		Running:          t.armed.Exercise == name,
		Pending:          t.pending[name] == opUpsert,
	}
}

// Warnings returns outstanding sync warnings, oldest first.
func (t *Table) Warnings() []Warning {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.warnings)
}

// tick is armed on the clock with the generation of the run it belongs to.
// It holds no other state and re-reads the armed slot on every call. A tick
// from a retired schedule that was already waiting on the lock when a stop,
// switch or restart landed carries a stale generation and does nothing.
func (t *Table) tick(gen uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.armed.Empty() || t.armed.gen != gen {
		return
	}
	t.engine.Tick()
}

func (t *Table) startLocked(ex *models.Exercise) {
	prev := models.PreviousDuration(ex.Sessions)
	t.engine.Start(ex.Name, prev)
	t.armGen++
	gen := t.armGen
	t.armed = ArmedTimer{Exercise: ex.Name, PreviousDuration: prev, StartedAt: t.now(), gen: gen}
	t.clock.Arm(func() { t.tick(gen) })
}

func (t *Table) cancelLocked() {
	if t.armed.Empty() {
		return
	}
	t.engine.Cancel()
	t.armed = ArmedTimer{}
	t.clock.Disarm()
}

// commit persists the in-memory exercise. Each attempt re-fetches the stored
// record and merges sessions by ID so a concurrent writer's sessions are kept.
// It reports whether the write landed.
func (t *Table) commit(ctx context.Context, name string) bool {
	var written models.Exercise
	gone := false
	err := retry.Do(ctx, t.policy, func(ctx context.Context) error {
		t.mu.Lock()
		ex, ok := t.exercises[name]
		if !ok {
			t.mu.Unlock()
			gone = true
			return nil
		}
		snapshot := ex.Clone()
		t.mu.Unlock()

		stored, found, err := t.store.Get(ctx, t.owner, name)
		if err != nil {
			return err
		}
		if found {
			snapshot.Sessions = models.MergeSessions(stored.Sessions, snapshot.Sessions)
		}
		if err := t.store.Upsert(ctx, t.owner, snapshot); err != nil {
			return err
		}
		written = snapshot
		return nil
	})
	if err != nil {
		t.warn(name, opUpsert, err)
		return false
	}
	if gone {
		return true
	}

	t.mu.Lock()
	if ex, ok := t.exercises[name]; ok {
		ex.Sessions = models.MergeSessions(ex.Sessions, written.Sessions)
	}
	t.mu.Unlock()
	t.markSynced(name, opUpsert)
	return true
}

func (t *Table) syncRemove(ctx context.Context, name string) error {
	return retry.Do(ctx, t.policy, func(ctx context.Context) error {
		return t.store.Remove(ctx, t.owner, name)
	})
}

// markSynced clears the pending flag and warnings for name, unless a newer
// operation of a different kind has replaced it in the meantime.
func (t *Table) markSynced(name string, op pendingOp) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.pending[name] == op {
		delete(t.pending, name)
	}
	t.warnings = slices.DeleteFunc(t.warnings, func(w Warning) bool { return w.Exercise == name })
}

func (t *Table) warn(name string, op pendingOp, err error) {
	t.log.Warn("sync failed, will retry later", "exercise", name, "op", op.String(), "error", err)

	t.mu.Lock()
	defer t.mu.Unlock()
	t.warnings = slices.DeleteFunc(t.warnings, func(w Warning) bool {
		return w.Exercise == name && w.Op == op.String()
	})
	t.warnings = append(t.warnings, Warning{
		Exercise: name,
		Op:       op.String(),
		Message:  err.Error(),
		At:       t.now(),
	})
}

func parseWeight(raw string) (float64, error) {
	w, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(w) || math.IsInf(w, 0) {
		return 0, trackerr.NewInvalidRequest(fmt.Sprintf("weight %q is not a number", raw))
	}
	if w < 0 {
		return 0, trackerr.NewInvalidRequest(fmt.Sprintf("weight %q must not be negative", raw))
	}
	return w, nil
}

// weightOrZero resolves a stored raw input at stop time. Unset means 0.
func weightOrZero(raw string) float64 {
	if raw == "" {
		return 0
	}
	w, err := parseWeight(raw)
	if err != nil {
		return 0
	}
	return w
}
