package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/jobcan-tools/jobcan-di/internal/dierr"
	"github.com/jobcan-tools/jobcan-di/internal/integrator"
	"github.com/jobcan-tools/jobcan-di/internal/status"
	"github.com/jobcan-tools/jobcan-di/internal/timeparsing"
)

var (
	runLoop         bool
	runPause        time.Duration
	runAppliedAfter string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Fetch basic data, request outlines and request details",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		var options []integrator.Option
		if runAppliedAfter != "" {
			at, err := timeparsing.ParseExpression(runAppliedAfter, time.Now())
			if err != nil {
				return fmt.Errorf("--applied-after: %w", err)
			}
			options = append(options, integrator.WithAppliedAfter(timeparsing.FormatStamp(at)))
		}
		// Progress lines only make sense on an interactive terminal;
		// piped output gets the final summary alone.
		if !jsonOutput && term.IsTerminal(int(os.Stdout.Fd())) {
			options = append(options, integrator.WithProgressCallback(printProgress))
		}

		var warnings int
		fatal := integrator.WithIntegrator(cmd.Context(), appDir, options,
			func(i *integrator.Integrator) *dierr.Fatal {
				defer func() { warnings = len(i.Warnings()) }()
				if runLoop {
					return i.RunLoop(cmd.Context(), runPause)
				}
				return i.Run(cmd.Context())
			})
		if fatal != nil {
			return fatal
		}

		if jsonOutput {
			outputJSON(map[string]any{"completed": true, "warnings": warnings})
		} else if warnings > 0 {
			fmt.Printf("completed with %d warning(s); see the log for details\n", warnings)
		} else {
			fmt.Println("completed")
		}
		return nil
	},
}

var lastProgress string

// printProgress writes one line per stage transition, skipping the
// repeats caused by per-item persists.
func printProgress(s *status.Status) {
	line := fmt.Sprintf("%s %s", s.Outline, s.Detail)
	if line == lastProgress {
		return
	}
	lastProgress = line
	fmt.Println(line)
}

func init() {
	runCmd.Flags().BoolVar(&runLoop, "loop", false, "keep running, pausing between passes")
	runCmd.Flags().DurationVar(&runPause, "pause", 5*time.Minute, "pause between passes with --loop")
	runCmd.Flags().StringVar(&runAppliedAfter, "applied-after", "",
		`list requests applied after this time ("2024/05/01 00:00:00", "-2w", "yesterday")`)
	rootCmd.AddCommand(runCmd)
}
