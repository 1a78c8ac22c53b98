// Package main provides the entry point for the offlineproxy gateway.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var (
	// Version はビルド時に設定される
	Version = ""

	configFile     string
	envKeyReplacer = strings.NewReplacer("-", "_")

	rootCmd = &cobra.Command{
		Use:   "offlineproxy",
		Short: "Offline-first caching gateway for a static site",
		Long: "offlineproxy pre-caches a site's core assets, serves same-origin GET requests\n" +
			"cache-first and keeps a bounded runtime cache for large on-demand assets.",
		SilenceUsage: true,
		Args:         cobra.NoArgs,
		RunE:         runServe,
	}
)

func init() {
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version

	registerFlags(rootCmd)
	rootCmd.AddCommand(serveCmd, installCmd, cachesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
