package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// version is stamped at release time via -ldflags "-X main.version=...".
var version = "dev"

var (
	configPath string
	serverURL  string
	rootCmd    = &cobra.Command{
		Use:   "octapulse",
		Short: "OctaPulse - Batch fish measurement engine",
		Long: `OctaPulse analyzes aquaculture pen photos in batches. It measures
fish against a calibration grid, aggregates population statistics,
and serves results over an HTTP API with live progress feeds.`,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file path")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "analysis server URL (default from config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
