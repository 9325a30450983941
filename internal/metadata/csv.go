package metadata

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/utils"
)

// Header is the column order of the CSV artifact.
var Header = []string{
	"file_name",
	"file_s3_url",
	"file_cloudfront_url",
	"file_record_type",
	"file_year",
	"file_month",
	"file_modification_time",
	"file_num_rows",
	"file_num_columns",
	"file_column_names",
	"file_size_bytes",
	"file_size_mbs",
	"file_size_gbs",
	"file_metadata_source",
}

// FileName renders the artifact name for one (source, recordType, year)
// harvest, stamped with the harvest date.
func FileName(date time.Time, source dataset.Backend, recordType string, year int) string {
	return fmt.Sprintf("%s_%s_%s_tripmetadata_%d.csv",
		date.Format("2006-01-02"), source, recordType, year)
}

// WriteCSV renders rows with the fixed header.
func WriteCSV(w io.Writer, rows []Row) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		record := []string{
			r.FileName,
			r.S3URL,
			r.CloudFrontURL,
			r.RecordType,
			strconv.Itoa(r.Year),
			strconv.Itoa(r.Month),
			r.ModificationTime,
			strconv.FormatInt(r.NumRows, 10),
			strconv.Itoa(r.NumColumns),
			strings.Join(r.ColumnNames, "|"),
			strconv.FormatInt(r.SizeBytes, 10),
			strconv.FormatFloat(r.SizeMBs(), 'f', 2, 64),
			strconv.FormatFloat(r.SizeGBs(), 'f', 2, 64),
			string(r.Source),
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteFile persists rows at path, creating parent directories.
func WriteFile(path string, rows []Row) error {
	if err := utils.EnsureParent(path); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteCSV(f, rows); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
