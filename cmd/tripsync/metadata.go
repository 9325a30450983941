package main

import (
	"log/slog"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/metadata"
	"github.com/nycdata/tripsync/internal/remote"
)

var metadataCmd = &cobra.Command{
	Use:   "metadata",
	Short: "Harvest per-file metadata into a CSV artifact, without downloading payloads",
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
		discovered, err := source.Discover(cmd.Context(), criteria)
		if err != nil {
			return err
		}
		var selected []dataset.Fragment
		for _, f := range discovered {
			if criteria.Allows(f) {
				selected = append(selected, f)
			}
		}

		// the public site rate-limits aggressive clients, so footer reads over
		// HTTP stay sequential
		workers := cfg.Workers
		if workers <= 0 {
			workers = runtime.NumCPU()
		}
		if cfg.Backend() == dataset.BackendWeb {
			workers = 1
		}

		harvester := metadata.NewHarvester(source, metadata.HarvestConfig{
			S3BaseURL:         cfg.S3BaseURL(),
			CloudFrontBaseURL: cfg.CloudFrontBaseURL,
			Workers:           workers,
		}, slog.Default())

		rows, err := harvester.Harvest(cmd.Context(), selected)
		if err != nil {
			return err
		}

		name := metadata.FileName(time.Now(), cfg.Backend(), cfg.RecordType, cfg.Year)
		path := filepath.Join(cfg.MetadataDir(), name)
		if err := metadata.WriteFile(path, rows); err != nil {
			return err
		}
		slog.Info("metadata artifact written", "path", path, "rows", len(rows))
		return nil
	},
}
