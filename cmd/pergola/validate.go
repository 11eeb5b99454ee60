package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pergolab/pergola/internal/cli"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check the pipeline definition for consistency",
	Long:  `Loads the definition and reports structural problems: unknown capabilities, missing fan-out/fan-in, cycles, or unreachable nodes.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if !cmd.Flags().Changed("file") && len(args) > 0 {
			file = args[0]
		}
		os.Exit(cli.ExecuteValidate(file))
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
