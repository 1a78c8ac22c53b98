package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"offlineproxy/internal/domain"
	"offlineproxy/internal/interface/repository/cache"
)

var cachesCmd = &cobra.Command{
	Use:   "caches",
	Short: "Inspect and manage the named caches",
}

var cachesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List caches with their entry counts and sizes",
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

		summaries, err := cache.Summarize(cmd.Context(), a.storage)
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "NAME\tENTRIES\tSIZE\tNEWEST")
		for _, s := range summaries {
			newest := "-"
			if !s.Newest.IsZero() {
				newest = humanize.Time(s.Newest)
			}
			fmt.Fprintf(tw, "%s\t%d\t%s\t%s\n", s.Name, s.Entries, s.Size, newest)
		}
		return tw.Flush()
	},
}

var cachesDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a named cache and all of its entries",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		a, err := newApp(cmd.Context(), cfg)
		if err != nil {
			return err
		}
		defer a.Close()

		deleted, err := a.storage.Delete(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !deleted {
			return fmt.Errorf("%w: %s", domain.ErrCacheNotFound, args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
		return nil
	},
}

func init() {
	cachesCmd.AddCommand(cachesListCmd, cachesDeleteCmd)
}
