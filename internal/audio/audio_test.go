package audio

import (
	"bytes"
	"errors"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
)

// TestCommandMissingAssetDoesNotPanic verifies a missing sound file is logged, not raised.
func TestCommandMissingAssetDoesNotPanic(t *testing.T) {
	var logBuf bytes.Buffer
	log := slog.New(slog.NewTextHandler(&logBuf, nil))
	cue := NewCommand("true", filepath.Join(t.TempDir(), "missing.wav"), log)

	cue.Play()
	cue.Play()
	cue.Wait()

	if !bytes.Contains(logBuf.Bytes(), []byte("AUDIO_PLAYBACK_FAILED")) {
		t.Errorf("expected playback failure to be logged, got %q", logBuf.String())
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("closed") }

// TestBellSwallowsWriteErrors verifies a broken terminal never surfaces to the caller.
func TestBellSwallowsWriteErrors(t *testing.T) {
	var logBuf bytes.Buffer
	b := NewBell(failingWriter{}, slog.New(slog.NewTextHandler(&logBuf, nil)))
	b.Play()
	if logBuf.Len() == 0 {
		t.Error("expected failure to be logged")
	}
}

// TestBellWritesBEL verifies each Play writes one BEL.
func TestBellWritesBEL(t *testing.T) {
	var out bytes.Buffer
	b := NewBell(&out, slog.Default())
	b.Play()
	b.Play()
	if out.String() != "\a\a" {
		t.Errorf("out = %q, want two BELs", out.String())
	}
}

// TestRecorderConcurrent verifies overlapping Play calls are all counted.
func TestRecorderConcurrent(t *testing.T) {
	var r Recorder
	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.Play()
		}()
	}
	wg.Wait()
	if r.Plays() != 50 {
		t.Errorf("plays = %d, want 50", r.Plays())
	}
}
