package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pergolab/pergola/internal/cli"
)

// graphCmd represents the graph command
var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Export the pipeline visualization",
	Long:  `Outputs a Mermaid diagram (graph TD) of the pipeline's nodes and edges.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		if !cmd.Flags().Changed("file") && len(args) > 0 {
			file = args[0]
		}
		os.Exit(cli.ExecuteGraph(file))
	},
}

func init() {
	rootCmd.AddCommand(graphCmd)
}
