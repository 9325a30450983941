// Package dataset models the trip-record dataset: fragments (remote files),
// the filename grammar that encodes their identity, and selection criteria.
package dataset

import (
	"fmt"
	"path"
	"regexp"
	"slices"
	"strconv"
)

// Backend identifies where a fragment lives.
type Backend string

const (
	BackendS3  Backend = "s3"
	BackendWeb Backend = "web"
)

// Record types published by the TLC.
const (
	RecordTypeFHV    = "fhv"
	RecordTypeFHVHV  = "fhvhv"
	RecordTypeGreen  = "green"
	RecordTypeYellow = "yellow"
)

var RecordTypes = []string{RecordTypeFHV, RecordTypeFHVHV, RecordTypeGreen, RecordTypeYellow}

// ParseError means a fragment's filename does not decompose into the
// record-type/year/month grammar. Terminal for that fragment only.
type ParseError struct {
	Name   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("dataset: cannot parse %q: %s", e.Name, e.Reason)
}

// Fragment is a single remote file of the dataset with its identity parsed
// from the filename.
type Fragment struct {
	// Path is the backend-relative identifier: an object key for S3, a full
	// URL for the web backend.
	Path       string
	Backend    Backend
	RecordType string
	Year       int
	Month      int
}

// FileName returns the last path segment of the fragment.
func (f Fragment) FileName() string {
	return path.Base(f.Path)
}

func (f Fragment) String() string {
	return fmt.Sprintf("%s:%s", f.Backend, f.Path)
}

// Filenames look like "yellow_tripdata_2023-01.parquet"; tokens are
// separated by underscores, dots or dashes.
var tokenSep = regexp.MustCompile(`[_.-]`)

// NewFragment parses the basename of p into a Fragment, or returns a
// ParseError when the name does not follow the grammar.
func NewFragment(p string, backend Backend) (Fragment, error) {
	recordType, year, month, err := ParseFileName(path.Base(p))
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{
		Path:       p,
		Backend:    backend,
		RecordType: recordType,
		Year:       year,
		Month:      month,
	}, nil
}

// ParseFileName decomposes "{type}_tripdata_{year}-{month}.{ext}" into its
// identity tokens. The extension is optional; year must be a 4-digit number
// and month must be in 1..12.
func ParseFileName(name string) (recordType string, year, month int, err error) {
	parts := tokenSep.Split(name, -1)
	if len(parts) < 4 {
		return "", 0, 0, &ParseError{Name: name, Reason: "expected {type}_tripdata_{year}-{month}"}
	}
	if parts[0] == "" {
		return "", 0, 0, &ParseError{Name: name, Reason: "empty record type"}
	}
	if parts[1] != "tripdata" {
		return "", 0, 0, &ParseError{Name: name, Reason: "missing tripdata marker"}
	}
	if len(parts[2]) != 4 {
		return "", 0, 0, &ParseError{Name: name, Reason: "year is not 4 digits"}
	}
	year, yerr := strconv.Atoi(parts[2])
	if yerr != nil {
		return "", 0, 0, &ParseError{Name: name, Reason: "year is not a number"}
	}
	month, merr := strconv.Atoi(parts[3])
	if merr != nil {
		return "", 0, 0, &ParseError{Name: name, Reason: "month is not a number"}
	}
	if month < 1 || month > 12 {
		return "", 0, 0, &ParseError{Name: name, Reason: "month out of range"}
	}
	return parts[0], year, month, nil
}

// Criteria is the user's selection: one record type, one year, a set of
// months. It carries no state beyond the values themselves.
type Criteria struct {
	RecordType string
	Year       int
	Months     []int
}

// Allows reports whether the fragment matches the criteria. Pure predicate:
// record type, year and month must all match; an empty month set matches
// nothing.
func (c Criteria) Allows(f Fragment) bool {
	return f.RecordType == c.RecordType &&
		f.Year == c.Year &&
		slices.Contains(c.Months, f.Month)
}
