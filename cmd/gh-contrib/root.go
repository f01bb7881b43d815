package main

import (
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	logLevel   string
	prettyLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "gh-contrib",
	Short: "Collect contributors across a GitHub organization",
	Long: `gh-contrib lists the repositories of a GitHub organization, skips forks
and empty repositories, and fetches the contributors of the rest with a
pool of concurrent workers. Every collection is cached under the cache
directory and replayed from disk on later runs.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to a TOML config file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().BoolVar(&prettyLogs, "pretty", false, "human-readable console logs")
}
