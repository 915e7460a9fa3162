package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jobcan-tools/jobcan-di/internal/appdir"
	"github.com/jobcan-tools/jobcan-di/internal/config"
	"github.com/jobcan-tools/jobcan-di/internal/jobcan"
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Check the configuration and the API token",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dir := appdir.New(appDir)
		opts, warn := config.Load(dir.ConfigFile())
		if warn != nil {
			fmt.Printf("config: %s (defaults apply)\n", warn.Error())
		}
		for _, issue := range opts.Validate() {
			fmt.Printf("config: %s\n", issue)
		}

		token, fatal := opts.ResolveToken()
		if fatal != nil {
			return fatal
		}
		if fatal := jobcan.NewClient(token).VerifyToken(cmd.Context()); fatal != nil {
			return fatal
		}

		if jsonOutput {
			outputJSON(map[string]any{"token": "valid"})
		} else {
			fmt.Println("token: valid")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(verifyCmd)
}
