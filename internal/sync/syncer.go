// Package sync drives the discover -> filter -> transfer pipeline that keeps
// a local dataset mirror current with a remote backend.
package sync

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	sg "sync"

	"github.com/dustin/go-humanize"

	"github.com/nycdata/tripsync/internal/dataset"
	"github.com/nycdata/tripsync/internal/remote"
	"github.com/nycdata/tripsync/internal/utils"
)

// Status classifies what happened to one fragment during a sync run.
type Status string

const (
	StatusSkipped    Status = "skipped"
	StatusDownloaded Status = "downloaded"
	StatusUpdated    Status = "updated"
	StatusFailed     Status = "failed"
)

// Outcome is the per-fragment sync result. A failed fragment carries the
// error; it never aborts the run.
type Outcome struct {
	Fragment dataset.Fragment
	Status   Status
	Err      error
}

// TransferError wraps a failure while moving one fragment's payload.
type TransferError struct {
	Fragment dataset.Fragment
	Err      error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("sync: transfer %s: %v", e.Fragment.FileName(), e.Err)
}

func (e *TransferError) Unwrap() error { return e.Err }

// Summary aggregates a finished run.
type Summary struct {
	Outcomes   []Outcome
	Downloaded int
	Updated    int
	Skipped    int
	Failed     int
	Bytes      int64
}

func (s *Summary) add(o Outcome, size int64) {
	s.Outcomes = append(s.Outcomes, o)
	switch o.Status {
	case StatusDownloaded:
		s.Downloaded++
		s.Bytes += size
	case StatusUpdated:
		s.Updated++
		s.Bytes += size
	case StatusSkipped:
		s.Skipped++
	case StatusFailed:
		s.Failed++
	}
}

// Syncer mirrors remote fragments into a local directory.
type Syncer struct {
	source  remote.Source
	dataDir string
	workers int
	log     *slog.Logger
}

func NewSyncer(source remote.Source, dataDir string, workers int, log *slog.Logger) *Syncer {
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Syncer{source: source, dataDir: dataDir, workers: workers, log: log}
}

// LocalPath is where a fragment's payload lives in the mirror.
func (s *Syncer) LocalPath(f dataset.Fragment) string {
	return filepath.Join(s.dataDir, f.FileName())
}

// Run discovers fragments on the backend, keeps the ones the criteria allow,
// and brings each one current. Fragment failures are isolated into their
// outcomes; only discovery errors abort the run.
func (s *Syncer) Run(ctx context.Context, criteria dataset.Criteria) (*Summary, error) {
	discovered, err := s.source.Discover(ctx, criteria)
	if err != nil {
		return nil, err
	}

	var selected []dataset.Fragment
	for _, f := range discovered {
		if criteria.Allows(f) {
			selected = append(selected, f)
		}
	}
	s.log.Info("fragments selected",
		"backend", s.source.Backend(),
		"discovered", len(discovered),
		"selected", len(selected),
	)

	if err := utils.EnsureDir(s.dataDir); err != nil {
		return nil, err
	}

	type result struct {
		outcome Outcome
		size    int64
	}

	jobs := make(chan dataset.Fragment)
	results := make(chan result, len(selected))

	var wg sg.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for f := range jobs {
				outcome, size := s.syncOne(ctx, f)
				results <- result{outcome: outcome, size: size}
			}
		}()
	}

feed:
	for _, f := range selected {
		select {
		case jobs <- f:
		case <-ctx.Done():
			break feed
		}
	}
	close(jobs)
	wg.Wait()
	close(results)

	summary := &Summary{}
	for r := range results {
		summary.add(r.outcome, r.size)
	}
	if err := ctx.Err(); err != nil {
		return summary, err
	}

	s.log.Info("sync finished",
		"downloaded", summary.Downloaded,
		"updated", summary.Updated,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
		"transferred", humanize.Bytes(uint64(summary.Bytes)),
	)
	return summary, nil
}

func (s *Syncer) syncOne(ctx context.Context, f dataset.Fragment) (Outcome, int64) {
	dest := s.LocalPath(f)

	info, err := s.source.Info(ctx, f)
	if err != nil {
		s.log.Error("fragment metadata failed", "file", f.FileName(), "error", err)
		return Outcome{Fragment: f, Status: StatusFailed, Err: err}, 0
	}

	localMod, localExists := utils.FileModTime(dest)
	decision := Decide(localExists, localMod, info)

	switch decision {
	case DecisionSkip:
		s.log.Debug("fragment up to date", "file", f.FileName())
		return Outcome{Fragment: f, Status: StatusSkipped}, 0
	case DecisionCreate, DecisionUpdate:
		if err := s.source.Download(ctx, f, dest); err != nil {
			terr := &TransferError{Fragment: f, Err: err}
			s.log.Error("fragment transfer failed", "file", f.FileName(), "error", err)
			return Outcome{Fragment: f, Status: StatusFailed, Err: terr}, 0
		}
		status := StatusDownloaded
		if decision == DecisionUpdate {
			status = StatusUpdated
		}
		s.log.Info("fragment transferred",
			"file", f.FileName(),
			"action", decision.String(),
			"size", humanize.Bytes(uint64(max(info.Size, 0))),
		)
		return Outcome{Fragment: f, Status: status}, max(info.Size, 0)
	}
	return Outcome{Fragment: f, Status: StatusSkipped}, 0
}
