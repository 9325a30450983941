package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/remote"
	"github.com/nycdata/tripsync/internal/sync"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Mirror trip-record files that are missing or stale locally",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := resolveConfig()
		if err != nil {
			return err
		}
		cmd.SilenceUsage = true
		showHeader()

		client := remote.NewHTTPClient()
		source, err := newSource(cmd, cfg, client)
		if err != nil {
			return err
		}

		criteria := dataset.Criteria{
			RecordType: cfg.RecordType,
			Year:       cfg.Year,
			Months:     cfg.Months,
		}
		slog.Info("starting sync",
			"source", cfg.Source,
			"record_type", cfg.RecordType,
			"year", cfg.Year,
			"months", cfg.Months,
			"data_dir", cfg.TripsDataDir(),
		)

		syncer := sync.NewSyncer(source, cfg.TripsDataDir(), cfg.Workers, slog.Default())
		summary, err := syncer.Run(cmd.Context(), criteria)
		if err != nil {
			return err
		}
		if summary.Failed > 0 {
			return fmt.Errorf("%d of %d fragments failed", summary.Failed, len(summary.Outcomes))
		}
		return nil
	},
}
