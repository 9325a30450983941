// Package metadata harvests per-fragment dataset metadata (size, schema, row
// counts, timestamps) without downloading payloads, and persists it as CSV.
package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/sync/errgroup"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/remote"
)

// Row is one harvested fragment, mirroring the CSV artifact's columns.
type Row struct {
	FileName         string
	S3URL            string
	CloudFrontURL    string
	RecordType       string
	Year             int
	Month            int
	ModificationTime string
	NumRows          int64
	NumColumns       int
	ColumnNames      []string
	SizeBytes        int64
	Source           dataset.Backend
}

func (r Row) SizeMBs() float64 { return float64(r.SizeBytes) / (1 << 20) }
func (r Row) SizeGBs() float64 { return float64(r.SizeBytes) / (1 << 30) }

// HarvestConfig carries the URL bases used to render a fragment's canonical
// locations, independent of which backend served the metadata.
type HarvestConfig struct {
	// S3BaseURL is the bucket+prefix base, e.g. "s3://nyc-tlc/trip data".
	S3BaseURL string
	// CloudFrontBaseURL is the CDN base the payloads are public under.
	CloudFrontBaseURL string
	// Workers bounds the concurrent footer reads.
	Workers int
}

// Harvester reads parquet footers over ranged requests and assembles rows.
type Harvester struct {
	source remote.Source
	cfg    HarvestConfig
	log    *slog.Logger
}

func NewHarvester(source remote.Source, cfg HarvestConfig, log *slog.Logger) *Harvester {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Harvester{source: source, cfg: cfg, log: log}
}

// Harvest produces one row per fragment. A fragment whose footer or metadata
// cannot be read is logged and dropped; it never aborts the run. Rows come
// back ordered by (year, month, file name).
func (h *Harvester) Harvest(ctx context.Context, fragments []dataset.Fragment) ([]Row, error) {
	rows := make([]*Row, len(fragments))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(h.cfg.Workers)
	for i, f := range fragments {
		g.Go(func() error {
			row, err := h.harvestOne(gctx, f)
			if err != nil {
				h.log.Error("fragment metadata harvest failed", "file", f.FileName(), "error", err)
				return nil
			}
			rows[i] = row
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r != nil {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Year != out[j].Year {
			return out[i].Year < out[j].Year
		}
		if out[i].Month != out[j].Month {
			return out[i].Month < out[j].Month
		}
		return out[i].FileName < out[j].FileName
	})

	h.log.Info("metadata harvest finished", "fragments", len(fragments), "rows", len(out))
	return out, nil
}

func (h *Harvester) harvestOne(ctx context.Context, f dataset.Fragment) (*Row, error) {
	info, err := h.source.Info(ctx, f)
	if err != nil {
		return nil, err
	}

	ra, size, err := h.source.OpenRange(ctx, f)
	if err != nil {
		return nil, err
	}

	pf, err := parquet.OpenFile(ra, size,
		parquet.SkipPageIndex(true),
		parquet.SkipBloomFilters(true),
	)
	if err != nil {
		return nil, fmt.Errorf("metadata: read parquet footer %q: %w", f.FileName(), err)
	}

	fields := pf.Schema().Fields()
	names := make([]string, len(fields))
	for i, field := range fields {
		names[i] = field.Name()
	}

	row := &Row{
		FileName:      f.FileName(),
		S3URL:         joinBase(h.cfg.S3BaseURL, f.FileName()),
		CloudFrontURL: joinBase(h.cfg.CloudFrontBaseURL, f.FileName()),
		RecordType:    f.RecordType,
		Year:          f.Year,
		Month:         f.Month,
		NumRows:       pf.NumRows(),
		NumColumns:    len(fields),
		ColumnNames:   names,
		SizeBytes:     size,
		Source:        h.source.Backend(),
	}
	if !info.ModifiedAt.IsZero() {
		row.ModificationTime = info.ModifiedAt.UTC().Format("2006-01-02 15:04:05")
	}
	return row, nil
}

func joinBase(base, name string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/" + name
}
