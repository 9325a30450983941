package sync

import (
	"time"

	"github.com/nycdata/tripsync/internal/probe"
)

// Decision is the per-fragment freshness verdict.
type Decision int

const (
	DecisionSkip Decision = iota
	DecisionCreate
	DecisionUpdate
)

func (d Decision) String() string {
	switch d {
	case DecisionCreate:
		return "create"
	case DecisionUpdate:
		return "update"
	default:
		return "skip"
	}
}

// Decide applies the freshness rule: a missing local file is created; an
// existing one is updated only when both timestamps are known and the remote
// is strictly newer. Unknown freshness on either side means skip, never a
// refetch.
func Decide(localExists bool, localMod time.Time, remote *probe.RemoteFileInfo) Decision {
	if !localExists {
		return DecisionCreate
	}
	if remote == nil || remote.ModifiedAt.IsZero() || localMod.IsZero() {
		return DecisionSkip
	}
	if remote.ModifiedAt.After(localMod) {
		return DecisionUpdate
	}
	return DecisionSkip
}
