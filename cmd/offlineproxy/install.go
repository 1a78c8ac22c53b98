package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Pre-cache the manifest's core assets and remove stale caches, then exit",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		worker, err := a.register(cmd.Context())
		if err != nil {
			return err
		}

		m := worker.Manifest()
		fmt.Fprintf(cmd.OutOrStdout(), "installed %s (%d core assets) into %s\n",
			m.Version, len(m.CoreAssets), m.CoreCacheName())
		return nil
	},
}
