package sync

import (
	"context"
	"log/slog"
	"net/url"
	"path"
	"path/filepath"

	"github.com/imroc/req/v3"

	"github.com/nycdata/tripsync/internal/probe"
	"github.com/nycdata/tripsync/internal/remote"
	"github.com/nycdata/tripsync/internal/utils"
)

// ZoneSyncer mirrors the auxiliary taxi-zone files (lookup table and
// shapefile archive). These are plain URLs outside the fragment grammar, so
// they get the same freshness treatment keyed on the URL basename.
type ZoneSyncer struct {
	client  *req.Client
	prober  *probe.Prober
	dataDir string
	log     *slog.Logger
}

func NewZoneSyncer(client *req.Client, dataDir string, log *slog.Logger) *ZoneSyncer {
	if log == nil {
		log = slog.Default()
	}
	return &ZoneSyncer{
		client:  client,
		prober:  probe.New(client, log),
		dataDir: dataDir,
		log:     log,
	}
}

// LocalPath is where a zone URL's payload lives in the mirror.
func (z *ZoneSyncer) LocalPath(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	return filepath.Join(z.dataDir, path.Base(u.Path)), nil
}

// Run brings each zone URL current, sequentially; the set is tiny.
func (z *ZoneSyncer) Run(ctx context.Context, urls []string) (*Summary, error) {
	if err := utils.EnsureDir(z.dataDir); err != nil {
		return nil, err
	}

	summary := &Summary{}
	for _, u := range urls {
		outcome, size := z.syncOne(ctx, u)
		summary.add(outcome, size)
		if err := ctx.Err(); err != nil {
			return summary, err
		}
	}

	z.log.Info("zones sync finished",
		"downloaded", summary.Downloaded,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
	return summary, nil
}

func (z *ZoneSyncer) syncOne(ctx context.Context, rawURL string) (Outcome, int64) {
	dest, err := z.LocalPath(rawURL)
	if err != nil {
		return Outcome{Status: StatusFailed, Err: err}, 0
	}

	info, err := z.prober.Probe(ctx, rawURL)
	if err != nil {
		z.log.Error("zone file probe failed", "url", rawURL, "error", err)
		return Outcome{Status: StatusFailed, Err: err}, 0
	}

	localMod, localExists := utils.FileModTime(dest)
	decision := Decide(localExists, localMod, info)
	if decision == DecisionSkip {
		z.log.Debug("zone file up to date", "file", filepath.Base(dest))
		return Outcome{Status: StatusSkipped}, 0
	}

	if err := remote.DownloadURL(ctx, z.client, rawURL, dest); err != nil {
		z.log.Error("zone file transfer failed", "url", rawURL, "error", err)
		return Outcome{Status: StatusFailed, Err: err}, 0
	}

	status := StatusDownloaded
	if decision == DecisionUpdate {
		status = StatusUpdated
	}
	z.log.Info("zone file transferred", "file", filepath.Base(dest), "action", decision.String())
	return Outcome{Status: status}, max(info.Size, 0)
}
