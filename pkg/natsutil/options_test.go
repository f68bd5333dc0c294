package natsutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nkeys"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/models"
)

func apply(t *testing.T, opts []nats.Option) nats.Options {
	t.Helper()

	var o nats.Options

	for _, opt := range opts {
		require.NoError(t, opt(&o))
	}

	return o
}

func TestConnectOptionsDefaults(t *testing.T) {
	t.Parallel()

	opts, err := ConnectOptions(&models.NATSConfig{URL: "nats://localhost:4222"}, nats.MaxReconnects(3))
	require.NoError(t, err)

	o := apply(t, opts)
	assert.Equal(t, clientName, o.Name)
	assert.Equal(t, 3, o.MaxReconnect)
	assert.Nil(t, o.TLSConfig)
}

func TestConnectOptionsNKeySeed(t *testing.T) {
	t.Parallel()

	kp, err := nkeys.CreateUser()
	require.NoError(t, err)

	seed, err := kp.Seed()
	require.NoError(t, err)

	pub, err := kp.PublicKey()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "user.nk")
	require.NoError(t, os.WriteFile(path, append(seed, '\n'), 0o600))

	opts, err := ConnectOptions(&models.NATSConfig{NKeySeedFile: path})
	require.NoError(t, err)

	o := apply(t, opts)
	assert.Equal(t, pub, o.Nkey)
	require.NotNil(t, o.SignatureCB)

	sig, err := o.SignatureCB([]byte("nonce"))
	require.NoError(t, err)
	require.NoError(t, kp.Verify([]byte("nonce"), sig))
}

func TestConnectOptionsErrors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	badSeed := filepath.Join(dir, "bad.nk")
	require.NoError(t, os.WriteFile(badSeed, []byte("not-a-seed"), 0o600))

	tests := []struct {
		name    string
		cfg     models.NATSConfig
		wantErr error
	}{
		{
			name:    "creds and nkey",
			cfg:     models.NATSConfig{CredsFile: "a.creds", NKeySeedFile: "a.nk"},
			wantErr: ErrConflictingAuth,
		},
		{name: "missing seed file", cfg: models.NATSConfig{NKeySeedFile: filepath.Join(dir, "missing.nk")}},
		{name: "bad seed", cfg: models.NATSConfig{NKeySeedFile: badSeed}},
		{
			name:    "incomplete tls",
			cfg:     models.NATSConfig{TLS: &models.NATSTLSConfig{CertFile: "c.pem"}},
			wantErr: errIncompleteTLS,
		},
		{
			name: "missing certificate",
			cfg: models.NATSConfig{TLS: &models.NATSTLSConfig{
				CertFile: filepath.Join(dir, "c.pem"), KeyFile: filepath.Join(dir, "k.pem"), CAFile: filepath.Join(dir, "ca.pem"),
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := ConnectOptions(&tt.cfg)
			require.Error(t, err)

			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
