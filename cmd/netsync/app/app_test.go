package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/transport/sshcli"
)

func TestOpenStore(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		cfg     models.StoreConfig
		wantErr bool
	}{
		{name: "memory", cfg: models.StoreConfig{Driver: models.StoreDriverMemory}},
		{name: "sqlite", cfg: models.StoreConfig{Driver: models.StoreDriverSQLite, SQLitePath: filepath.Join(t.TempDir(), "netsync.db")}},
		{name: "unknown", cfg: models.StoreConfig{Driver: "mongo"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			st, err := openStore(context.Background(), &tt.cfg, logger.NewTestLogger())
			if tt.wantErr {
				require.ErrorIs(t, err, errUnknownStoreDriver)
				return
			}

			require.NoError(t, err)
			require.NoError(t, st.Close())
		})
	}
}

func TestOpenMessagingWithoutNATS(t *testing.T) {
	t.Parallel()

	es, reg, closeFn, err := openMessaging(context.Background(), nil, logger.NewTestLogger())
	require.NoError(t, err)
	assert.NotNil(t, es)
	assert.NotNil(t, reg)

	closeFn()
}

func TestNewTransportsRegistersEveryPlatform(t *testing.T) {
	t.Parallel()

	cfg := &models.SSHConfig{Username: "netsync", Password: "secret", InsecureSkipHostKeyCheck: true}

	reg, err := newTransports(cfg, logger.NewTestLogger())
	require.NoError(t, err)

	for _, p := range sshcli.Platforms(cfg) {
		_, err := reg.For(&models.Device{Hostname: "sw1", Platform: p})
		assert.NoError(t, err, p)
	}
}
