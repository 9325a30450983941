package sync

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/nycdata/tripsync/internal/probe"
)

func TestDecide(t *testing.T) {
	older := time.Date(2023, 1, 10, 0, 0, 0, 0, time.UTC)
	newer := older.Add(48 * time.Hour)

	tests := []struct {
		name        string
		localExists bool
		localMod    time.Time
		remote      *probe.RemoteFileInfo
		want        Decision
	}{
		{
			name:   "missing local is created",
			remote: &probe.RemoteFileInfo{ModifiedAt: older},
			want:   DecisionCreate,
		},
		{
			name:        "remote newer is updated",
			localExists: true,
			localMod:    older,
			remote:      &probe.RemoteFileInfo{ModifiedAt: newer},
			want:        DecisionUpdate,
		},
		{
			name:        "remote older is skipped",
			localExists: true,
			localMod:    newer,
			remote:      &probe.RemoteFileInfo{ModifiedAt: older},
			want:        DecisionSkip,
		},
		{
			name:        "equal timestamps are skipped",
			localExists: true,
			localMod:    older,
			remote:      &probe.RemoteFileInfo{ModifiedAt: older},
			want:        DecisionSkip,
		},
		{
			name:        "unknown remote timestamp never refetches",
			localExists: true,
			localMod:    older,
			remote:      &probe.RemoteFileInfo{},
			want:        DecisionSkip,
		},
		{
			name:        "nil remote info is skipped",
			localExists: true,
			localMod:    older,
			want:        DecisionSkip,
		},
		{
			name:        "unknown local timestamp never refetches",
			localExists: true,
			remote:      &probe.RemoteFileInfo{ModifiedAt: newer},
			want:        DecisionSkip,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Decide(tc.localExists, tc.localMod, tc.remote))
		})
	}
}

func TestDecisionString(t *testing.T) {
	assert.Equal(t, "create", DecisionCreate.String())
	assert.Equal(t, "update", DecisionUpdate.String())
	assert.Equal(t, "skip", DecisionSkip.String())
}
