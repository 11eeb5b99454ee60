package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pergola",
	Short: "Pergola is a fan-out/fan-in pipeline engine",
	Long:  `Pergola runs deterministic pipelines: a fixed sequence of stages with one concurrent batch section, bounded workers, and ordered aggregation.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("file", "f", "pipeline.yaml", "Pipeline definition file")
}
