package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/claude/tulog/internal/tracker"
	"github.com/spf13/cobra"
)

const sessionHelp = `commands:
  start <name>             start timing (discards a run on another exercise)
  stop [name]              stop and record the running set
  t <name>                 start/stop toggle
  weight <value> <name>    set the weight used for the next set ("clear" unsets)
  add <name>               add an exercise
  rm <name>                delete an exercise and its history
  mv <old> => <new>        rename an exercise
  ls                       list exercises
  status                   show the running timer
  history <name>           show recorded sets
  sound on|off             toggle countdown cues
  threshold <seconds>      cue this many seconds before the previous duration
  sync                     retry unsynced writes
  reload                   re-read exercises saved by other clients
  quit                     leave the session`

var errQuit = errors.New("quit")

func newSessionCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "session",
		Short: "Interactive workout session with the live timer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			s := &session{table: a.table, out: cmd.OutOrStdout()}
			printTable(s.out, a.table.View())
			_, _ = fmt.Fprintln(s.out, `type "help" for commands`)
			return s.run(cmd.Context(), cmd.InOrStdin())
		},
	}
}

// session is the line-oriented front end of one exercise table.
type session struct {
	table *tracker.Table
	out   io.Writer
}

func (s *session) run(ctx context.Context, in io.Reader) error {
	scanner := bufio.NewScanner(in)
	s.prompt()
	for scanner.Scan() {
		err := s.exec(ctx, scanner.Text())
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintf(s.out, "error: %v\n", err)
		}
		s.prompt()
	}
	return scanner.Err()
}

func (s *session) prompt() {
	if armed := s.table.Armed(); !armed.Empty() {
		_, _ = fmt.Fprintf(s.out, "[%s] > ", armed.Exercise)
		return
	}
	_, _ = fmt.Fprint(s.out, "> ")
}

// exec runs one command line.
func (s *session) exec(ctx context.Context, line string) error {
	verb, rest, _ := strings.Cut(strings.TrimSpace(line), " ")
	rest = strings.TrimSpace(rest)

	switch strings.ToLower(verb) {
	case "":
		return nil
	case "help", "?":
		_, _ = fmt.Fprintln(s.out, sessionHelp)
	case "quit", "exit", "q":
		return errQuit
	case "ls", "list":
		printTable(s.out, s.table.View())
	case "status":
		s.printStatus()
	case "t", "toggle":
		return s.toggle(ctx, rest)
	case "start":
		if rest != "" && s.table.Armed().Exercise == rest {
			_, _ = fmt.Fprintf(s.out, "%s is already running\n", rest)
			return nil
		}
		return s.toggle(ctx, rest)
	case "stop":
		armed := s.table.Armed()
		if armed.Empty() {
			return errors.New("nothing is running")
		}
		if rest != "" && rest != armed.Exercise {
			return fmt.Errorf("%s is not running (%s is)", rest, armed.Exercise)
		}
		return s.toggle(ctx, armed.Exercise)
	case "weight", "w":
		value, name, ok := strings.Cut(rest, " ")
		if !ok {
			return errors.New("usage: weight <value> <name>")
		}
		if value == "clear" {
			value = ""
		}
		return s.table.OnWeightChange(strings.TrimSpace(name), value)
	case "add":
		ex, err := s.table.OnAddExercise(ctx, rest)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(s.out, "added %s\n", ex.Name)
	case "rm", "delete":
		if err := s.table.OnDeleteExercise(ctx, rest); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(s.out, "removed %s\n", rest)
	case "mv", "rename":
		from, to, ok := strings.Cut(rest, "=>")
		if !ok {
			return errors.New("usage: mv <old> => <new>")
		}
		return s.table.OnRenameExercise(ctx, strings.TrimSpace(from), to)
	case "history":
		row, ok := s.table.Row(rest)
		if !ok {
			return fmt.Errorf("no exercise named %q", rest)
		}
		printHistory(s.out, row)
	case "sound":
		enabled, err := parseOnOff(rest)
		if err != nil {
			return err
		}
		if err := s.table.Settings().SetSoundEnabled(ctx, enabled); err != nil {
			return err
		}
		printSettings(s.out, s.table.Settings())
	case "threshold":
		n, err := strconv.Atoi(rest)
		if err != nil {
			return fmt.Errorf("threshold must be a number of seconds: %w", err)
		}
		if err := s.table.Settings().SetThreshold(ctx, n); err != nil {
			return err
		}
		printSettings(s.out, s.table.Settings())
	case "sync":
		pending := s.table.Resync(ctx)
		_, _ = fmt.Fprintf(s.out, "%d exercise(s) still unsynced\n", pending)
		for _, w := range s.table.Warnings() {
			_, _ = fmt.Fprintf(s.out, "  %s %s: %s\n", w.Op, w.Exercise, w.Message)
		}
	case "reload":
		if err := s.table.Load(ctx); err != nil {
			return err
		}
		printTable(s.out, s.table.View())
	default:
		return fmt.Errorf("unknown command %q (try help)", verb)
	}
	return nil
}

func (s *session) toggle(ctx context.Context, name string) error {
	out, err := s.table.OnStartStop(ctx, name)
	if err != nil {
		return err
	}

	switch out.Action {
	case tracker.ActionStarted, tracker.ActionSwitched:
		if out.Discarded != "" {
			_, _ = fmt.Fprintf(s.out, "discarded %s\n", out.Discarded)
		}
		st := s.table.Status()
		if st.PreviousDuration > 0 {
			_, _ = fmt.Fprintf(s.out, "started %s, previous set %s\n", out.Exercise, formatSeconds(st.PreviousDuration))
		} else {
			_, _ = fmt.Fprintf(s.out, "started %s\n", out.Exercise)
		}
	case tracker.ActionStopped:
		_, _ = fmt.Fprintf(s.out, "recorded %s: %s for %s\n", out.Exercise,
			strconv.FormatFloat(out.Session.Weight, 'f', -1, 64), formatSeconds(out.Session.TimeUnderLoad))
		if !out.Synced {
			_, _ = fmt.Fprintln(s.out, "not saved yet; run sync to retry")
		}
	case tracker.ActionCancelled:
		_, _ = fmt.Fprintf(s.out, "cancelled %s, nothing recorded\n", out.Exercise)
	}
	return nil
}

func (s *session) printStatus() {
	st := s.table.TimerView()
	if st.State != "running" {
		_, _ = fmt.Fprintln(s.out, "idle")
		return
	}
	_, _ = fmt.Fprintf(s.out, "%s: %s elapsed", st.Exercise, formatSeconds(st.Elapsed))
	if st.PreviousDuration > 0 {
		if st.Remaining > 0 {
			_, _ = fmt.Fprintf(s.out, ", %s to beat %s", formatSeconds(st.Remaining), formatSeconds(st.PreviousDuration))
		} else {
			_, _ = fmt.Fprintf(s.out, ", past previous %s", formatSeconds(st.PreviousDuration))
		}
	}
	_, _ = fmt.Fprintln(s.out)
}
