// Package config holds the resolved tripsync configuration and its defaults.
package config

import (
	"fmt"
	"path/filepath"
	"slices"
	"time"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/remote"
	"github.com/nycdata/tripsync/internal/utils"
)

// Dataset defaults. The bucket is the TLC's public one; the CloudFront
// distribution serves the same objects over HTTPS.
const (
	DefaultS3Bucket          = "nyc-tlc"
	DefaultS3Prefix          = "trip data/"
	DefaultS3Region          = "us-east-1"
	DefaultCloudFrontBaseURL = "https://d37ci6vzurychx.cloudfront.net/trip-data"
	DefaultPageURL           = "https://www.nyc.gov/site/tlc/about/tlc-trip-record-data.page"
	DefaultRequestTimeout    = 30 * time.Second

	// FirstYear is the earliest year the TLC publishes trip records for.
	FirstYear = 2009
)

// DefaultZoneURLs are the auxiliary taxi-zone artifacts.
var DefaultZoneURLs = []string{
	"https://d37ci6vzurychx.cloudfront.net/misc/taxi_zone_lookup.csv",
	"https://d37ci6vzurychx.cloudfront.net/misc/taxi_zones.zip",
}

// AllMonths is the full month selection, the default when none are given.
var AllMonths = []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12}

// Config is the fully resolved invocation configuration. It is assembled by
// the CLI (flags, env, optional config file) and validated once; the core
// packages receive it by value.
type Config struct {
	// Source selects the backend: "s3" or "web".
	Source string `mapstructure:"source"`

	// Selection.
	RecordType string `mapstructure:"record_type"`
	Year       int    `mapstructure:"year"`
	Months     []int  `mapstructure:"months"`

	// Local mirror layout.
	DataDir string `mapstructure:"data_dir"`

	// Transfer tuning.
	Workers   int   `mapstructure:"workers"`
	ChunkSize int64 `mapstructure:"chunk_size"`

	// S3 backend.
	S3Bucket     string `mapstructure:"s3_bucket"`
	S3Prefix     string `mapstructure:"s3_prefix"`
	S3Region     string `mapstructure:"s3_region"`
	S3Endpoint   string `mapstructure:"s3_endpoint"`
	AWSAccessKey string `mapstructure:"aws_access_key_id"`
	AWSSecretKey string `mapstructure:"aws_secret_access_key"`

	// Web backend.
	PageURL           string `mapstructure:"page_url"`
	CloudFrontBaseURL string `mapstructure:"cloudfront_base_url"`
	LinkSelector      string `mapstructure:"link_selector"`

	// Zones supplement.
	ZoneURLs []string `mapstructure:"zone_urls"`

	Timeout time.Duration `mapstructure:"timeout"`
}

// Default returns a Config with every dataset default filled in, selecting
// the current year and all months.
func Default(now time.Time) Config {
	return Config{
		Source:            string(dataset.BackendWeb),
		RecordType:        dataset.RecordTypeYellow,
		Year:              now.Year(),
		Months:            slices.Clone(AllMonths),
		DataDir:           "data",
		ChunkSize:         remote.DefaultChunkSize,
		S3Bucket:          DefaultS3Bucket,
		S3Prefix:          DefaultS3Prefix,
		S3Region:          DefaultS3Region,
		PageURL:           DefaultPageURL,
		CloudFrontBaseURL: DefaultCloudFrontBaseURL,
		LinkSelector:      remote.DefaultLinkSelector,
		ZoneURLs:          slices.Clone(DefaultZoneURLs),
		Timeout:           DefaultRequestTimeout,
	}
}

// TripsDataDir is where fragment payloads land.
func (c Config) TripsDataDir() string { return filepath.Join(c.DataDir, "trips-data") }

// MetadataDir is where harvested CSV artifacts land.
func (c Config) MetadataDir() string { return filepath.Join(c.DataDir, "trips-metadata") }

// ZonesDataDir is where the taxi-zone files land.
func (c Config) ZonesDataDir() string { return filepath.Join(c.DataDir, "zones-data") }

// S3BaseURL is the canonical s3:// base for the configured bucket/prefix.
func (c Config) S3BaseURL() string {
	prefix := c.S3Prefix
	for len(prefix) > 0 && prefix[len(prefix)-1] == '/' {
		prefix = prefix[:len(prefix)-1]
	}
	if prefix == "" {
		return "s3://" + c.S3Bucket
	}
	return fmt.Sprintf("s3://%s/%s", c.S3Bucket, prefix)
}

// Backend returns the selected source as a dataset backend.
func (c Config) Backend() dataset.Backend { return dataset.Backend(c.Source) }

// Validate checks the selection against what the dataset can contain and
// normalizes the data dir. now anchors the upper year bound.
func (c *Config) Validate(now time.Time) error {
	switch dataset.Backend(c.Source) {
	case dataset.BackendS3, dataset.BackendWeb:
	default:
		return fmt.Errorf("config: unknown source %q (want s3 or web)", c.Source)
	}

	if !slices.Contains(dataset.RecordTypes, c.RecordType) {
		return fmt.Errorf("config: unknown record type %q (want one of %v)", c.RecordType, dataset.RecordTypes)
	}

	if c.Year < FirstYear || c.Year > now.Year() {
		return fmt.Errorf("config: year %d out of range %d..%d", c.Year, FirstYear, now.Year())
	}

	if len(c.Months) == 0 {
		return fmt.Errorf("config: no months selected")
	}
	for _, m := range c.Months {
		if m < 1 || m > 12 {
			return fmt.Errorf("config: month %d out of range 1..12", m)
		}
	}

	if c.DataDir == "" {
		return fmt.Errorf("config: data dir is required")
	}
	dir, err := utils.ResolvePath(c.DataDir)
	if err != nil {
		return fmt.Errorf("config: resolve data dir: %w", err)
	}
	c.DataDir = dir

	if c.ChunkSize <= 0 {
		c.ChunkSize = remote.DefaultChunkSize
	}
	return nil
}
