package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jobcan-tools/jobcan-di/internal/loader"
	"github.com/jobcan-tools/jobcan-di/internal/pipeline"
	"github.com/jobcan-tools/jobcan-di/internal/sqlschema"
)

var pipelineCmd = &cobra.Command{
	Use:   "pipeline",
	Short: "Run declarative ETL pipeline documents",
}

var pipelineRunCmd = &cobra.Command{
	Use:   "run <file.toml>",
	Short: "Execute a TOML pipeline document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(args[0])
		if err != nil {
			return err
		}
		def, err := pipeline.ParseDocument(data)
		if err != nil {
			return err
		}
		// A relative SQLite target is anchored at the document.
		if def.TableDefinition.Dialect == sqlschema.DialectSQLite &&
			def.TableDefinition.Path != "" && !filepath.IsAbs(def.TableDefinition.Path) {
			def.TableDefinition.Path = filepath.Join(filepath.Dir(args[0]), def.TableDefinition.Path)
		}

		warnings, fatal := loader.RunDocument(cmd.Context(), def)
		if fatal != nil {
			return fatal
		}
		for _, w := range warnings {
			fmt.Fprintf(os.Stderr, "warning: %s\n", w.Error())
		}
		if jsonOutput {
			outputJSON(map[string]any{"profiles": len(def.Link.Profiles()), "warnings": len(warnings)})
		} else {
			fmt.Printf("ran %d profile(s), %d warning(s)\n", len(def.Link.Profiles()), len(warnings))
		}
		return nil
	},
}

func init() {
	pipelineCmd.AddCommand(pipelineRunCmd)
	rootCmd.AddCommand(pipelineCmd)
}
