package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/pergolab/pergola/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  `Exposes the pipeline over a JSON API: POST /runs submits a run, GET /runs/{id} fetches archived reports, /metrics exposes Prometheus metrics.`,
	Run: func(cmd *cobra.Command, args []string) {
		file, _ := cmd.Flags().GetString("file")
		addr, _ := cmd.Flags().GetString("addr")
		redisAddr, _ := cmd.Flags().GetString("redis")
		redisDB, _ := cmd.Flags().GetInt("redis-db")
		ttl, _ := cmd.Flags().GetDuration("report-ttl")
		debug, _ := cmd.Flags().GetBool("debug")

		os.Exit(cli.ExecuteServe(cli.ServeOptions{
			File:      file,
			Addr:      addr,
			RedisAddr: redisAddr,
			RedisDB:   redisDB,
			ReportTTL: ttl,
			Debug:     debug,
		}))
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", ":8080", "Listen address")
	serveCmd.Flags().String("redis", "", "Redis address for the report archive (empty keeps reports in memory)")
	serveCmd.Flags().Int("redis-db", 0, "Redis database number")
	serveCmd.Flags().Duration("report-ttl", 0, "Expiration for archived reports (0 keeps them forever)")
	serveCmd.Flags().Bool("debug", false, "Enable debug logging")
}
