package metadata

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/probe"
	"github.com/nycdata/tripsync/internal/remote"
)

type trip struct {
	PickupZone  int64   `parquet:"pickup_zone"`
	DropoffZone int64   `parquet:"dropoff_zone"`
	FareAmount  float64 `parquet:"fare_amount"`
}

func buildParquet(t *testing.T, n int) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := parquet.NewGenericWriter[trip](&buf)
	rows := make([]trip, n)
	for i := range rows {
		rows[i] = trip{PickupZone: int64(i), DropoffZone: int64(i + 1), FareAmount: 12.5}
	}
	_, err := w.Write(rows)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// footerSource serves fragments from in-memory parquet blobs.
type footerSource struct {
	blobs map[string][]byte
	mods  map[string]time.Time
}

func (s *footerSource) Backend() dataset.Backend { return dataset.BackendWeb }

func (s *footerSource) Discover(context.Context, dataset.Criteria) ([]dataset.Fragment, error) {
	return nil, nil
}

func (s *footerSource) Info(_ context.Context, f dataset.Fragment) (*probe.RemoteFileInfo, error) {
	blob, ok := s.blobs[f.Path]
	if !ok {
		return nil, &probe.NotFoundError{URL: f.Path}
	}
	return &probe.RemoteFileInfo{
		Size:       int64(len(blob)),
		SizeKnown:  true,
		ModifiedAt: s.mods[f.Path],
	}, nil
}

func (s *footerSource) Download(context.Context, dataset.Fragment, string) error { return nil }

func (s *footerSource) OpenRange(_ context.Context, f dataset.Fragment) (io.ReaderAt, int64, error) {
	blob, ok := s.blobs[f.Path]
	if !ok {
		return nil, 0, &probe.NotFoundError{URL: f.Path}
	}
	return bytes.NewReader(blob), int64(len(blob)), nil
}

var _ remote.Source = (*footerSource)(nil)

func TestHarvest_ReadsFooter(t *testing.T) {
	blob := buildParquet(t, 42)
	modified := time.Date(2023, 2, 15, 9, 30, 0, 0, time.UTC)
	src := &footerSource{
		blobs: map[string][]byte{"yellow_tripdata_2023-01.parquet": blob},
		mods:  map[string]time.Time{"yellow_tripdata_2023-01.parquet": modified},
	}

	frag, err := dataset.NewFragment("yellow_tripdata_2023-01.parquet", dataset.BackendWeb)
	require.NoError(t, err)

	h := NewHarvester(src, HarvestConfig{
		S3BaseURL:         "s3://nyc-tlc/trip data",
		CloudFrontBaseURL: "https://d37ci6vzurychx.cloudfront.net/trip-data",
	}, nil)

	rows, err := h.Harvest(context.Background(), []dataset.Fragment{frag})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	row := rows[0]
	assert.Equal(t, "yellow_tripdata_2023-01.parquet", row.FileName)
	assert.Equal(t, "s3://nyc-tlc/trip data/yellow_tripdata_2023-01.parquet", row.S3URL)
	assert.Equal(t, "https://d37ci6vzurychx.cloudfront.net/trip-data/yellow_tripdata_2023-01.parquet", row.CloudFrontURL)
	assert.Equal(t, "yellow", row.RecordType)
	assert.Equal(t, 2023, row.Year)
	assert.Equal(t, 1, row.Month)
	assert.Equal(t, int64(42), row.NumRows)
	assert.Equal(t, 3, row.NumColumns)
	assert.Equal(t, []string{"pickup_zone", "dropoff_zone", "fare_amount"}, row.ColumnNames)
	assert.Equal(t, int64(len(blob)), row.SizeBytes)
	assert.Equal(t, "2023-02-15 09:30:00", row.ModificationTime)
	assert.Equal(t, dataset.BackendWeb, row.Source)
}

func TestHarvest_DropsFailedFragments(t *testing.T) {
	blob := buildParquet(t, 5)
	src := &footerSource{
		blobs: map[string][]byte{"yellow_tripdata_2023-02.parquet": blob},
		mods:  map[string]time.Time{},
	}

	good, err := dataset.NewFragment("yellow_tripdata_2023-02.parquet", dataset.BackendWeb)
	require.NoError(t, err)
	gone, err := dataset.NewFragment("yellow_tripdata_2023-01.parquet", dataset.BackendWeb)
	require.NoError(t, err)

	h := NewHarvester(src, HarvestConfig{Workers: 2}, nil)
	rows, err := h.Harvest(context.Background(), []dataset.Fragment{gone, good})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0].Month)
}

func TestHarvest_OrdersRows(t *testing.T) {
	blob := buildParquet(t, 1)
	src := &footerSource{
		blobs: map[string][]byte{
			"yellow_tripdata_2023-03.parquet": blob,
			"yellow_tripdata_2023-01.parquet": blob,
			"yellow_tripdata_2023-02.parquet": blob,
		},
		mods: map[string]time.Time{},
	}

	var frags []dataset.Fragment
	for _, name := range []string{
		"yellow_tripdata_2023-03.parquet",
		"yellow_tripdata_2023-01.parquet",
		"yellow_tripdata_2023-02.parquet",
	} {
		f, err := dataset.NewFragment(name, dataset.BackendWeb)
		require.NoError(t, err)
		frags = append(frags, f)
	}

	h := NewHarvester(src, HarvestConfig{Workers: 3}, nil)
	rows, err := h.Harvest(context.Background(), frags)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{rows[0].Month, rows[1].Month, rows[2].Month})
}

func TestWriteCSV(t *testing.T) {
	rows := []Row{{
		FileName:         "yellow_tripdata_2023-01.parquet",
		S3URL:            "s3://nyc-tlc/trip data/yellow_tripdata_2023-01.parquet",
		CloudFrontURL:    "https://cdn.example.com/trip-data/yellow_tripdata_2023-01.parquet",
		RecordType:       "yellow",
		Year:             2023,
		Month:            1,
		ModificationTime: "2023-02-15 09:30:00",
		NumRows:          42,
		NumColumns:       2,
		ColumnNames:      []string{"a", "b"},
		SizeBytes:        2 << 20,
		Source:           dataset.BackendS3,
	}}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, rows))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, strings.Join(Header, ","), lines[0])
	assert.Contains(t, lines[1], "yellow_tripdata_2023-01.parquet")
	assert.Contains(t, lines[1], "a|b")
	assert.Contains(t, lines[1], "2.00") // 2 MiB
	assert.Contains(t, lines[1], ",s3")
}

func TestArtifactFileName(t *testing.T) {
	date := time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t,
		"2023-06-01_web_yellow_tripmetadata_2023.csv",
		FileName(date, dataset.BackendWeb, "yellow", 2023),
	)
}
