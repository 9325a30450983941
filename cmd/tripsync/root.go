package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/imroc/req/v3"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/nycdata/tripsync/internal/config"
	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/remote"
	"github.com/nycdata/tripsync/internal/version"
)

var rootCmd = &cobra.Command{
	Use:     "tripsync",
	Short:   "Mirror the NYC TLC trip-record dataset",
	Version: version.Detailed(),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadConfig(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().SortFlags = false
	rootCmd.PersistentFlags().StringP("source", "s", "web", "Dataset source (s3 or web)")
	rootCmd.PersistentFlags().StringP("record-type", "t", "yellow", "Record type (fhv, fhvhv, green, yellow)")
	rootCmd.PersistentFlags().IntP("year", "y", time.Now().Year(), "Dataset year")
	rootCmd.PersistentFlags().IntSliceP("months", "m", config.AllMonths, "Months to select")
	rootCmd.PersistentFlags().StringP("data-dir", "d", "data", "Local mirror directory")
	rootCmd.PersistentFlags().Int("workers", 0, "Worker count (0 = number of CPUs)")
	rootCmd.PersistentFlags().StringP("config", "c", "", "Config file")

	rootCmd.AddCommand(syncCmd, metadataCmd, zonesCmd)
}

func loadConfig(cmd *cobra.Command) error {
	// AWS credentials may live in a local .env, like the rest of the tooling
	// around this dataset expects.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Debug("no .env loaded", "error", err)
	}

	if cmd.Flags().Lookup("config").Changed {
		path, _ := cmd.Flags().GetString("config")
		viper.SetConfigFile(path)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("config read %q: %w", viper.ConfigFileUsed(), err)
		}
	}

	viper.BindPFlag("source", cmd.Flags().Lookup("source"))           //nolint:errcheck
	viper.BindPFlag("record_type", cmd.Flags().Lookup("record-type")) //nolint:errcheck
	viper.BindPFlag("year", cmd.Flags().Lookup("year"))               //nolint:errcheck
	viper.BindPFlag("months", cmd.Flags().Lookup("months"))           //nolint:errcheck
	viper.BindPFlag("data_dir", cmd.Flags().Lookup("data-dir"))       //nolint:errcheck
	viper.BindPFlag("workers", cmd.Flags().Lookup("workers"))         //nolint:errcheck

	viper.SetEnvPrefix("TRIPSYNC")
	viper.AutomaticEnv()

	return nil
}

// resolveConfig assembles and validates the invocation config from defaults,
// config file, env and flags.
func resolveConfig() (config.Config, error) {
	now := time.Now()
	cfg := config.Default(now)

	cfg.Source = viper.GetString("source")
	cfg.RecordType = viper.GetString("record_type")
	cfg.Year = viper.GetInt("year")
	if months := viper.GetIntSlice("months"); len(months) > 0 {
		cfg.Months = months
	}
	cfg.DataDir = viper.GetString("data_dir")
	cfg.Workers = viper.GetInt("workers")

	if v := viper.GetString("s3_bucket"); v != "" {
		cfg.S3Bucket = v
	}
	if v := viper.GetString("s3_prefix"); v != "" {
		cfg.S3Prefix = v
	}
	if v := viper.GetString("s3_region"); v != "" {
		cfg.S3Region = v
	}
	cfg.S3Endpoint = viper.GetString("s3_endpoint")
	cfg.AWSAccessKey = os.Getenv("AWS_ACCESS_KEY_ID")
	cfg.AWSSecretKey = os.Getenv("AWS_SECRET_ACCESS_KEY")

	if v := viper.GetString("page_url"); v != "" {
		cfg.PageURL = v
	}
	if v := viper.GetString("cloudfront_base_url"); v != "" {
		cfg.CloudFrontBaseURL = v
	}
	if v := viper.GetString("link_selector"); v != "" {
		cfg.LinkSelector = v
	}
	if urls := viper.GetStringSlice("zone_urls"); len(urls) > 0 {
		cfg.ZoneURLs = urls
	}

	if err := cfg.Validate(now); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// newSource builds the backend the config selects.
func newSource(cmd *cobra.Command, cfg config.Config, client *req.Client) (remote.Source, error) {
	switch cfg.Backend() {
	case dataset.BackendS3:
		return remote.NewS3Source(cmd.Context(), remote.S3Config{
			Bucket:    cfg.S3Bucket,
			Prefix:    cfg.S3Prefix,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.AWSAccessKey,
			SecretKey: cfg.AWSSecretKey,
			ChunkSize: cfg.ChunkSize,
			Timeout:   cfg.Timeout,
		}, slog.Default())
	case dataset.BackendWeb:
		return remote.NewWebSource(client, remote.WebConfig{
			PageURL:      cfg.PageURL,
			BaseURL:      cfg.CloudFrontBaseURL,
			LinkSelector: cfg.LinkSelector,
		}, slog.Default()), nil
	default:
		return nil, fmt.Errorf("unknown source %q", cfg.Source)
	}
}

func showHeader() {
	color.New(color.FgHiCyan, color.Bold).Printf("%s %s\n", version.AppName, version.Short())
}
