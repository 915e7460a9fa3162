package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jobcan-tools/jobcan-di/internal/appdir"
	"github.com/jobcan-tools/jobcan-di/internal/csvimport"
)

const csvImportConfigName = "csv_import.yaml"

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import locally held exports",
}

var importCSVCmd = &cobra.Command{
	Use:   "csv <dir>",
	Short: "Import request CSV export groups through their bound pipelines",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		configDir := appdir.New(appDir).ConfigDir()
		cfg, warn := csvimport.LoadConfig(filepath.Join(configDir, csvImportConfigName))
		if warn != nil {
			return warn
		}

		im, err := csvimport.New(cfg, configDir)
		if err != nil {
			return err
		}
		warnings, fatal := im.Import(cmd.Context(), args[0])
		if fatal != nil {
			return fatal
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w.Error())
		}
		if jsonOutput {
			outputJSON(map[string]any{"warnings": len(warnings)})
		} else {
			fmt.Printf("done, %d warning(s)\n", len(warnings))
		}
		return nil
	},
}

func init() {
	importCmd.AddCommand(importCSVCmd)
	rootCmd.AddCommand(importCmd)
}
