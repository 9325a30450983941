// Package remote enumerates dataset fragments on a backend (S3 bucket or the
// public dataset website) and serves their metadata and content.
package remote

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/imroc/req/v3"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/probe"
	"github.com/nycdata/tripsync/internal/utils"
	"github.com/nycdata/tripsync/internal/version"
)

// DefaultChunkSize is the transfer chunk size for backend downloads.
const DefaultChunkSize int64 = 1 << 20 // 1 MiB

var UserAgent = fmt.Sprintf("TripSync/%s (%s; %s; %s)", version.Version, version.Revision, runtime.GOOS, runtime.GOARCH)

// DiscoveryError means a backend's enumeration call failed outright.
// Fatal for the whole invocation: there is nothing to iterate.
type DiscoveryError struct {
	Backend dataset.Backend
	Err     error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("remote: %s discovery failed: %v", e.Backend, e.Err)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Source is one dataset backend. Implementations must be safe for use by
// multiple goroutines once Discover has returned.
type Source interface {
	Backend() dataset.Backend

	// Discover enumerates candidate fragments for the criteria.
	// Ordering is not guaranteed and must not be relied upon.
	Discover(ctx context.Context, criteria dataset.Criteria) ([]dataset.Fragment, error)

	// Info returns authoritative metadata for a fragment.
	Info(ctx context.Context, f dataset.Fragment) (*probe.RemoteFileInfo, error)

	// Download copies the fragment payload to dest, writing through a temp
	// file in the destination directory and renaming into place.
	Download(ctx context.Context, f dataset.Fragment, dest string) error

	// OpenRange exposes the fragment for random-access reads (parquet
	// footers) without downloading the payload.
	OpenRange(ctx context.Context, f dataset.Fragment) (io.ReaderAt, int64, error)
}

// NewHTTPClient returns the HTTP client used for probing, scraping and web
// downloads, with some common values set.
func NewHTTPClient() *req.Client {
	return req.C().
		SetCommonRetryCount(2).
		SetCommonRetryFixedInterval(1 * time.Second).
		SetUserAgent(UserAgent)
}

// DownloadURL fetches url into dest through a temp file next to dest, so a
// torn transfer never leaves a half-written destination behind.
func DownloadURL(ctx context.Context, client *req.Client, url, dest string) error {
	if err := utils.EnsureParent(dest); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".tripsync-*")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath) // no-op once renamed

	resp, err := client.R().
		SetContext(ctx).
		DisableAutoReadResponse().
		SetOutputFile(tmpPath).
		Get(url)
	if err != nil {
		return fmt.Errorf("download %q: %w", url, err)
	}
	if resp.IsErrorState() {
		// the error body ends up in the temp file, which we discard anyway
		return fmt.Errorf("download %q: unexpected status %s", url, resp.Status)
	}

	return os.Rename(tmpPath, dest)
}
