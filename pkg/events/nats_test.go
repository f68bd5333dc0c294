package events

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
)

func runJetStreamServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	srv, err := server.NewServer(opts)
	require.NoError(t, err)

	go srv.Start()

	if !srv.ReadyForConnections(10 * time.Second) {
		srv.Shutdown()
		t.Fatalf("embedded NATS server not ready for connections")
	}

	t.Cleanup(srv.Shutdown)

	return srv
}

func newTestNatsStore(t *testing.T) *NatsStore {
	t.Helper()

	srv := runJetStreamServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := NewNatsStore(ctx, &models.NATSConfig{URL: srv.ClientURL(), Bucket: "netsync-test"}, logger.NewTestLogger())
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func TestNewNatsStoreValidation(t *testing.T) {
	t.Parallel()

	_, err := NewNatsStore(context.Background(), nil, logger.NewTestLogger())
	require.ErrorIs(t, err, errMissingURL)

	_, err = NewNatsStore(context.Background(), &models.NATSConfig{URL: "nats://127.0.0.1:4222"}, logger.NewTestLogger())
	require.ErrorIs(t, err, errMissingBucket)
}

func TestNatsStoreSyncEvents(t *testing.T) {
	s := newTestNatsStore(t)
	ctx := context.Background()

	got, err := s.ListSyncEvents(ctx, "eosaccess")
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.AddSyncEvent(ctx, "eosaccess", models.SyncCauseRefresh, "admin", 7))
	require.NoError(t, s.AddSyncEvent(ctx, "eosaccess", models.SyncCauseDrift, "job", 8))

	got, err = s.ListSyncEvents(ctx, "eosaccess")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, models.SyncCauseRefresh, got[0].Cause)
	assert.Equal(t, "job", got[1].By)

	require.NoError(t, s.RemoveSyncEvents(ctx, "eosaccess"))
	require.NoError(t, s.RemoveSyncEvents(ctx, "eosaccess"))

	got, err = s.ListSyncEvents(ctx, "eosaccess")
	require.NoError(t, err)
	assert.Empty(t, got)

	// A removed key can be written again.
	require.NoError(t, s.AddSyncEvent(ctx, "eosaccess", models.SyncCauseLinknetUpdate, "admin", 9))

	got, err = s.ListSyncEvents(ctx, "eosaccess")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestNatsStoreConcurrentAppends(t *testing.T) {
	s := newTestNatsStore(t)
	ctx := context.Background()

	var wg sync.WaitGroup

	for i := 0; i < 3; i++ {
		wg.Add(1)

		go func(id int64) {
			defer wg.Done()

			assert.NoError(t, s.AddSyncEvent(ctx, "eosdist1", models.SyncCauseRefresh, "admin", id))
		}(int64(i))
	}

	wg.Wait()

	got, err := s.ListSyncEvents(ctx, "eosdist1")
	require.NoError(t, err)
	assert.Len(t, got, 3)
}

func TestNatsStoreProgress(t *testing.T) {
	s := newTestNatsStore(t)
	ctx := context.Background()

	_, err := s.GetProgress(ctx, 3)
	require.ErrorIs(t, err, ErrProgressNotFound)

	require.NoError(t, s.PublishProgress(ctx, 3, []string{"eosaccess"}))
	require.NoError(t, s.PublishProgress(ctx, 3, []string{"eosaccess", "eosdist1"}))

	p, err := s.GetProgress(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, int64(3), p.JobID)
	assert.Equal(t, []string{"eosaccess", "eosdist1"}, p.FinishedDevices)
}
