package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/claude/tulog/internal/audio"
	"github.com/claude/tulog/internal/config"
	"github.com/claude/tulog/internal/localstore"
	"github.com/claude/tulog/internal/tracker"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

// localOwner owns every exercise in a local store.
const localOwner = 1

func main() {
	if err := newRootCmd().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type options struct {
	dir          string
	audioCommand string
	audioFile    string
	verbose      bool
}

func newRootCmd() *cobra.Command {
	opts := &options{}

	root := &cobra.Command{
		Use:           "tulog-cli",
		Short:         "Time-under-load timer and exercise log",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.PersistentFlags().StringVar(&opts.dir, "dir", "", "local store directory (default from TULOG_SQLITE_DIR or ./data)")
	root.PersistentFlags().StringVar(&opts.audioCommand, "audio-command", "", "player for countdown cues, e.g. paplay (default: terminal bell)")
	root.PersistentFlags().StringVar(&opts.audioFile, "audio-file", "", "sound file passed to --audio-command")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log debug output to stderr")

	root.AddCommand(newSessionCmd(opts))
	root.AddCommand(newListCmd(opts))
	root.AddCommand(newHistoryCmd(opts))
	root.AddCommand(newAddCmd(opts))
	root.AddCommand(newRemoveCmd(opts))
	root.AddCommand(newRenameCmd(opts))
	root.AddCommand(newSettingsCmd(opts))
	root.AddCommand(newMCPCmd(opts))
	return root
}

func (o *options) logger() *slog.Logger {
	level := slog.LevelWarn
	if o.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// app is an open local store with the owner's table loaded.
type app struct {
	table *tracker.Table
	store *localstore.Store
	cue   audio.Cue
}

func (a *app) Close() {
	a.table.Close()
	if c, ok := a.cue.(*audio.Command); ok {
		c.Wait()
	}
	a.store.Close()
}

func (o *options) open(ctx context.Context, out io.Writer) (*app, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return nil, err
	}
	dir := cfg.Storage.SQLiteDir
	if o.dir != "" {
		dir = o.dir
	}
	command, file := cfg.Audio.Command, cfg.Audio.File
	if o.audioCommand != "" {
		command = o.audioCommand
	}
	if o.audioFile != "" {
		file = o.audioFile
	}

	log := o.logger()
	store, err := localstore.Open(dir, log)
	if err != nil {
		return nil, err
	}

	var cue audio.Cue = audio.NewBell(out, log)
	if command != "" && file != "" {
		cue = audio.NewCommand(command, file, log)
	}

	table := tracker.NewTable(localOwner, store, tracker.Options{
		Log:    log,
		Policy: cfg.Retry.Policy(),
		Cue:    cue,
	})
	if err := table.Load(ctx); err != nil {
		table.Close()
		store.Close()
		return nil, err
	}
	return &app{table: table, store: store, cue: cue}, nil
}

func newListCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List exercises with their previous set",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			printTable(cmd.OutOrStdout(), a.table.View())
			return nil
		},
	}
}

func newHistoryCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history <name>",
		Short: "Show every recorded set of one exercise",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			name := strings.Join(args, " ")
			row, ok := a.table.Row(name)
			if !ok {
				return fmt.Errorf("no exercise named %q", name)
			}
			printHistory(cmd.OutOrStdout(), row)
			return nil
		},
	}
}

func newAddCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "add <name>",
		Short: "Add an exercise",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			ex, err := a.table.OnAddExercise(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "added %s\n", ex.Name)
			return nil
		},
	}
}

func newRemoveCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <name>",
		Aliases: []string{"remove"},
		Short:   "Delete an exercise and its history",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			name := strings.Join(args, " ")
			if err := a.table.OnDeleteExercise(cmd.Context(), name); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", name)
			return nil
		},
	}
}

func newRenameCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "mv <old> <new>",
		Short: "Rename an exercise, keeping its history",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.table.OnRenameExercise(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "renamed %s to %s\n", args[0], strings.TrimSpace(args[1]))
			return nil
		},
	}
}

func newSettingsCmd(opts *options) *cobra.Command {
	var sound string
	var threshold int

	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Show or change countdown cue settings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := opts.open(cmd.Context(), cmd.OutOrStdout())
			if err != nil {
				return err
			}
			defer a.Close()

			settings := a.table.Settings()
			if cmd.Flags().Changed("sound") {
				enabled, err := parseOnOff(sound)
				if err != nil {
					return err
				}
				if err := settings.SetSoundEnabled(cmd.Context(), enabled); err != nil {
					return err
				}
			}
			if cmd.Flags().Changed("threshold") {
				if err := settings.SetThreshold(cmd.Context(), threshold); err != nil {
					return err
				}
			}
			printSettings(cmd.OutOrStdout(), settings)
			return nil
		},
	}
	cmd.Flags().StringVar(&sound, "sound", "", "countdown cues: on|off")
	cmd.Flags().IntVar(&threshold, "threshold", 0, "seconds before the previous duration at which cues start")
	return cmd
}

func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "on", "true", "yes":
		return true, nil
	case "off", "false", "no":
		return false, nil
	}
	return false, fmt.Errorf("expected on or off, got %q", s)
}

func printTable(out io.Writer, rows []tracker.Row) {
	if len(rows) == 0 {
		_, _ = fmt.Fprintln(out, "no exercises")
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "EXERCISE\tSETS\tPREVIOUS\tWEIGHT\tSTATE")
	for _, r := range rows {
		state := ""
		switch {
		case r.Running:
			state = "running"
		case r.Pending:
			state = "unsynced"
		}
		_, _ = fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Name, len(r.Sessions), formatSeconds(r.PreviousDuration), r.WeightInput, state)
	}
	_ = tw.Flush()
}

func printHistory(out io.Writer, row tracker.Row) {
	if len(row.Sessions) == 0 {
		_, _ = fmt.Fprintf(out, "%s has no sets yet\n", row.Name)
		return
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "WHEN\tWEIGHT\tTIME UNDER LOAD")
	for _, s := range row.Sessions {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\n", s.Timestamp.Local().Format("2006-01-02 15:04"), strconv.FormatFloat(s.Weight, 'f', -1, 64), formatSeconds(s.TimeUnderLoad))
	}
	_ = tw.Flush()
}

func printSettings(out io.Writer, s *tracker.Settings) {
	cur := s.TimerSettings()
	sound := "off"
	if cur.SoundEnabled {
		sound = "on"
	}
	_, _ = fmt.Fprintf(out, "sound: %s\nthreshold: %ds\n", sound, cur.CountdownThresholdSeconds)
}

func formatSeconds(n int) string {
	if n <= 0 {
		return "-"
	}
	if n < 60 {
		return fmt.Sprintf("%ds", n)
	}
	return fmt.Sprintf("%dm%02ds", n/60, n%60)
}
