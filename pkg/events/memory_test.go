package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/models"
)

func TestMemoryStoreSyncEvents(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.AddSyncEvent(ctx, "eosdist1", models.SyncCauseDrift, "job", 4))
	require.NoError(t, s.AddSyncEvent(ctx, "eosdist1", models.SyncCauseRefresh, "admin", 5))

	got, err := s.ListSyncEvents(ctx, "eosdist1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SyncCauseDrift, got[0].Cause)
	assert.Equal(t, int64(5), got[1].JobID)

	require.NoError(t, s.RemoveSyncEvents(ctx, "eosdist1"))

	got, err = s.ListSyncEvents(ctx, "eosdist1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryStoreProgress(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewMemoryStore()

	_, err := s.GetProgress(ctx, 1)
	require.ErrorIs(t, err, ErrProgressNotFound)

	hosts := []string{"eosaccess"}
	require.NoError(t, s.PublishProgress(ctx, 1, hosts))
	hosts[0] = "mutated"

	p, err := s.GetProgress(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"eosaccess"}, p.FinishedDevices)
}
