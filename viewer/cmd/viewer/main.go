// Command viewer marks the parts of a lecture a learner was not attending to.
// It reads subtitle cues and flags every cue that overlaps an unfocused
// range of the learner's latest session.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/focustrack/focustrack/pkg/intervals"
	"github.com/focustrack/focustrack/pkg/types"
	"github.com/focustrack/focustrack/viewer/internal/cues"
	"github.com/focustrack/focustrack/viewer/internal/source"
)

type globalFlags struct {
	server    string
	apiKeyEnv string
	header    string
	timeout   time.Duration
	learner   string
	classID   int64
	courseID  int64
	jsonOut   bool
	verbose   bool
}

func main() {
	var g globalFlags

	rootCmd := &cobra.Command{
		Use:   "viewer",
		Short: "Inspect focus sessions against lecture timelines",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelWarn
			if g.verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		SilenceUsage: true,
	}
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&g.server, "server", "http://localhost:8080", "focustrack-server HTTP address")
	pf.StringVar(&g.apiKeyEnv, "api-key-env", "FOCUSTRACK_API_KEY", "environment variable holding the API key")
	pf.StringVar(&g.header, "api-key-header", "x-api-key", "header carrying the API key")
	pf.DurationVar(&g.timeout, "timeout", 10*time.Second, "request timeout")
	pf.StringVar(&g.learner, "learner", "", "learner id")
	pf.Int64Var(&g.classID, "class", 0, "class id")
	pf.Int64Var(&g.courseID, "course", 0, "course id")
	pf.BoolVar(&g.jsonOut, "json", false, "print JSON instead of a table")
	pf.BoolVar(&g.verbose, "verbose", false, "log debug output to stderr")

	cuesCmd := &cobra.Command{
		Use:   "cues",
		Short: "Flag subtitle cues that overlap unfocused ranges",
		Long:  "Parse a WebVTT or SRT file and flag every cue that overlaps an unfocused range of the learner's latest session.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			file, _ := cmd.Flags().GetString("file")
			f, err := os.Open(file)
			if err != nil {
				return fmt.Errorf("open cues: %w", err)
			}
			defer f.Close()

			cs, err := cues.Parse(f)
			if err != nil {
				return err
			}
			set, err := latestMerged(cmd.Context(), g)
			if err != nil {
				return err
			}
			return printCues(cmd.OutOrStdout(), cs, intervals.Classify(cues.Ranges(cs), set), g.jsonOut)
		},
	}
	cuesCmd.Flags().String("file", "", "WebVTT or SRT file")
	cuesCmd.MarkFlagRequired("file") //nolint:errcheck

	latestCmd := &cobra.Command{
		Use:   "latest",
		Short: "Print the merged unfocused ranges of the latest session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := latestMerged(cmd.Context(), g)
			if err != nil {
				return err
			}
			return printRanges(cmd.OutOrStdout(), set, g.jsonOut)
		},
	}

	sessionsCmd := &cobra.Command{
		Use:   "sessions",
		Short: "List the learner's recent sessions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			limit, _ := cmd.Flags().GetInt("limit")
			subject, c, err := setup(g)
			if err != nil {
				return err
			}
			ss, err := c.Sessions(cmd.Context(), subject, limit)
			if err != nil {
				return err
			}
			return printSessions(cmd.OutOrStdout(), ss, g.jsonOut)
		},
	}
	sessionsCmd.Flags().Int("limit", 10, "maximum number of sessions")

	rootCmd.AddCommand(cuesCmd, latestCmd, sessionsCmd)

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func setup(g globalFlags) (types.SubjectRef, *source.Client, error) {
	subject := types.SubjectRef{Learner: g.learner, ClassID: g.classID, CourseID: g.courseID}
	if err := subject.Validate(); err != nil {
		return subject, nil, fmt.Errorf("%w (set --learner, --class and --course)", err)
	}
	c, err := source.New(source.Options{
		BaseURL: g.server,
		Header:  g.header,
		Key:     os.Getenv(g.apiKeyEnv),
		Timeout: g.timeout,
	})
	return subject, c, err
}

// latestMerged fails only on bad flags. An unreachable server or a malformed
// report reads as no prior session.
func latestMerged(ctx context.Context, g globalFlags) (intervals.MergedSet, error) {
	subject, c, err := setup(g)
	if err != nil {
		return nil, err
	}
	return intervals.LatestMerged(ctx, c, subject), nil
}

type cueRow struct {
	cues.Cue
	Unfocused bool `json:"unfocused"`
}

func printCues(w io.Writer, cs []cues.Cue, flags []bool, asJSON bool) error {
	rows := make([]cueRow, len(cs))
	for i, c := range cs {
		rows[i] = cueRow{Cue: c, Unfocused: flags[i]}
	}
	if asJSON {
		return json.NewEncoder(w).Encode(rows)
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSTART\tEND\tUNFOCUSED\tTEXT")
	for i, r := range rows {
		mark := ""
		if r.Unfocused {
			mark = "yes"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", i+1, clock(r.Start), clock(r.End), mark, firstLine(r.Text))
	}
	return tw.Flush()
}

func printRanges(w io.Writer, set intervals.MergedSet, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(set)
	}
	if len(set) == 0 {
		fmt.Fprintln(w, "no unfocused ranges")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "START\tEND\tLENGTH")
	for _, r := range set {
		fmt.Fprintf(tw, "%s\t%s\t%s\n", clock(r.Start), clock(r.End), time.Duration(r.End-r.Start)*time.Millisecond)
	}
	return tw.Flush()
}

func printSessions(w io.Writer, ss []source.Session, asJSON bool) error {
	if asJSON {
		return json.NewEncoder(w).Encode(ss)
	}
	if len(ss) == 0 {
		fmt.Fprintln(w, "no sessions")
		return nil
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SESSION\tSTARTED\tDURATION\tINTERVALS\tUNFOCUSED")
	for _, s := range ss {
		started := "-"
		if s.StartedAtMs > 0 {
			started = time.UnixMilli(s.StartedAtMs).UTC().Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%ds\t%d\t%ds\n", s.SessionID, started, s.TotalDurationSec, len(s.Intervals), s.UnfocusedSec)
	}
	return tw.Flush()
}

// clock formats session-relative milliseconds as HH:MM:SS.mmm.
func clock(ms int64) string {
	d := time.Duration(ms) * time.Millisecond
	return fmt.Sprintf("%02d:%02d:%02d.%03d", int(d.Hours()), int(d.Minutes())%60, int(d.Seconds())%60, ms%1000)
}

func firstLine(s string) string {
	for i, r := range s {
		if r == '\n' {
			return s[:i] + " …"
		}
	}
	return s
}
