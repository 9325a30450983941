package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nycdata/tripsync/internal/remote"
	"github.com/nycdata/tripsync/internal/sync"
)

var zonesCmd = &cobra.Command{
	Use:   "zones",
	Short: "Mirror the taxi-zone lookup table and shapefile archive",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		showHeader()

		zs := sync.NewZoneSyncer(remote.NewHTTPClient(), cfg.ZonesDataDir(), slog.Default())
		summary, err := zs.Run(cmd.Context(), cfg.ZoneURLs)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d zone files failed", summary.Failed)
		}
		return nil
	},
}
