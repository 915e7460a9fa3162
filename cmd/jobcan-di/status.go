package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jobcan-tools/jobcan-di/internal/appdir"
	"github.com/jobcan-tools/jobcan-di/internal/status"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the persisted progress of the last run",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		dir := appdir.New(appDir)
		st, warn := status.NewFile(dir.StatusFile()).Load()
		if warn != nil {
			return warn
		}

		if jsonOutput {
			outputJSON(st)
			return nil
		}

		fmt.Printf("progress:      %s %s\n", st.Outline, st.Detail)
		if len(st.Specifics) > 0 {
			fmt.Printf("in sub-stage:  %d item(s)\n", len(st.Specifics))
		}
		if st.LastError != nil {
			fmt.Printf("last error:    %s\n", st.LastError.Error())
		}
		printFailures("fetch failures", &st.FetchFailure)
		printFailures("store failures", &st.DBSaveFailure)

		if len(st.FormAPILastAccess) > 0 {
			forms := make([]int, 0, len(st.FormAPILastAccess))
			for id := range st.FormAPILastAccess {
				forms = append(forms, id)
			}
			sort.Ints(forms)
			fmt.Println("form last access:")
			for _, id := range forms {
				fmt.Printf("  form %d: %s\n", id, st.FormAPILastAccess[id])
			}
		}
		return nil
	},
}

func printFailures(label string, rec *status.FailureRecord) {
	if rec.IsEmpty() {
		return
	}
	fmt.Printf("%s:\n", label)
	for apiType, keys := range rec.BasicData {
		fmt.Printf("  %s: %d item(s)\n", apiType, len(keys))
	}
	for apiType, dirty := range rec.Dirty {
		if dirty {
			fmt.Printf("  %s: incomplete, will refetch\n", apiType)
		}
	}
	for formID, ids := range rec.RequestDetail {
		fmt.Printf("  form %d: %d request(s)\n", formID, len(ids))
	}
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
