package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pergolab/pergola/internal/cli"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Submit one run of the pipeline",
	Long:  `Loads the pipeline definition, submits a run with the given initial context, and prints the report.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if !cmd.Flags().Changed("file") && len(args) > 0 {
			file = args[0]
		}
		contextJSON, _ := cmd.Flags().GetString("context")
		concurrency, _ := cmd.Flags().GetInt("concurrency")
		timeout, _ := cmd.Flags().GetDuration("timeout")
		jsonMode, _ := cmd.Flags().GetBool("json")
		debug, _ := cmd.Flags().GetBool("debug")

		os.Exit(cli.ExecuteRun(cli.RunOptions{
			File:        file,
			Context:     contextJSON,
			Concurrency: concurrency,
			Timeout:     timeout,
			JSON:        jsonMode,
			Debug:       debug,
		}))
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("context", "c", "", "Initial state as a JSON object")
	runCmd.Flags().Int("concurrency", 0, "Max items executing at once (0 uses the document's setting)")
	runCmd.Flags().Duration("timeout", 0, "Overall run deadline (0 means none)")
	runCmd.Flags().Bool("json", false, "Print the raw report as JSON")
	runCmd.Flags().Bool("debug", false, "Enable debug logging")
}
