// Command jobcan-di harvests workflow records from the Jobcan API into
// a local SQLite database and runs declarative CSV/pipeline imports
// against the same schema.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jobcan-tools/jobcan-di/internal/telemetry"
)

var (
	appDir     string
	jsonOutput bool
)

var rootCmd = &cobra.Command{
	Use:   "jobcan-di",
	Short: "Resumable Jobcan workflow data integrator",
	Long: `jobcan-di harvests users, groups, positions, projects, companies,
fix journals, forms and full request documents from the Jobcan workflow
API into SQLite, resuming interrupted runs from the persisted status.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		return telemetry.Init(cmd.Context(), "jobcan-di", Version)
	},
	PersistentPostRun: func(*cobra.Command, []string) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		telemetry.Shutdown(ctx)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&appDir, "app-dir", defaultAppDir(),
		"application directory holding config/, temp/ and the database")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "machine-readable output")
}

// defaultAppDir honors JOBCANDI_DIR so wrapper scripts can route
// multiple instances.
func defaultAppDir() string {
	if dir := os.Getenv("JOBCANDI_DIR"); dir != "" {
		return dir
	}
	return "."
}

func outputJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
