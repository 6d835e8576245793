package audio

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sync"

	trackerr "github.com/claude/tulog/internal/errors"
)

// Cue plays a short alert. Play must return immediately and never fail
// from the caller's point of view.
type Cue interface {
	Play()
}

// Command plays a sound file through an external player (paplay, afplay, ...).
// Every Play spawns its own process so cues overlap instead of cutting each other off.
type Command struct {
	name string
	args []string
	log  *slog.Logger
	wg   sync.WaitGroup
}

// NewCommand creates a Command cue that runs `name args... file`.
func NewCommand(name, file string, log *slog.Logger, args ...string) *Command {
	return &Command{
		name: name,
		args: append(args, file),
		log:  log,
	}
}

// Play starts the player in the background.
func (c *Command) Play() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		if err := c.run(); err != nil {
			c.log.Warn("cue failed", "error", trackerr.NewAudioPlaybackFailed(err))
		}
	}()
}

// Wait blocks until every started cue has finished.
func (c *Command) Wait() {
	c.wg.Wait()
}

func (c *Command) run() error {
	if _, err := os.Stat(c.args[len(c.args)-1]); err != nil {
		return fmt.Errorf("cue asset: %w", err)
	}
	cmd := exec.Command(c.name, c.args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("%s: %w (stderr: %s)", c.name, err, stderr.String())
	}
	return nil
}

// Bell writes the terminal BEL character.
type Bell struct {
	mu  sync.Mutex
	out io.Writer
	log *slog.Logger
}

// NewBell creates a Bell writing to out.
func NewBell(out io.Writer, log *slog.Logger) *Bell {
	return &Bell{out: out, log: log}
}

// Play rings the bell.
func (b *Bell) Play() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, err := b.out.Write([]byte{'\a'}); err != nil {
		b.log.Warn("cue failed", "error", trackerr.NewAudioPlaybackFailed(err))
	}
}

// Nop discards cues.
type Nop struct{}

// Play does nothing.
func (Nop) Play() {}

// Recorder counts cues. Used by tests and by clients that poll for cue events.
type Recorder struct {
	mu    sync.Mutex
	plays int
}

// Play records one cue.
func (r *Recorder) Play() {
	r.mu.Lock()
	r.plays++
	r.mu.Unlock()
}

// Plays returns the number of cues recorded so far.
func (r *Recorder) Plays() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.plays
}
