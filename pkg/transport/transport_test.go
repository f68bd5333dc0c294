package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/netsync/pkg/models"
)

func TestRegistryDispatchesByPlatform(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	eos := NewMockTransport(ctrl)
	fallback := NewMockTransport(ctrl)

	r := NewRegistry()
	r.Register("eos", eos)

	ctx := context.Background()
	arista := &models.Device{Hostname: "eosaccess", Platform: "eos"}
	junos := &models.Device{Hostname: "junos1", Platform: "junos"}

	eos.EXPECT().GetRunningConfig(ctx, arista).Return("hostname eosaccess\n", nil)
	eos.EXPECT().Commit(ctx, arista, 5*time.Minute, "netsync").Return(nil)

	cfg, err := r.GetRunningConfig(ctx, arista)
	require.NoError(t, err)
	assert.Equal(t, "hostname eosaccess\n", cfg)
	require.NoError(t, r.Commit(ctx, arista, 5*time.Minute, "netsync"))

	_, err = r.LoadCandidate(ctx, junos, "", true)
	require.ErrorIs(t, err, ErrUnsupportedPlatform)

	r.SetDefault(fallback)
	fallback.EXPECT().Discard(ctx, junos).Return(nil)
	require.NoError(t, r.Discard(ctx, junos))
}

func TestLineDiff(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		running   string
		candidate string
		want      string
	}{
		{
			name:      "identical",
			running:   "hostname a\ninterface Ethernet1\n",
			candidate: "hostname a\ninterface Ethernet1\n",
			want:      "",
		},
		{
			name:      "trailing newline ignored",
			running:   "hostname a\n",
			candidate: "hostname a",
			want:      "",
		},
		{
			name:      "addition",
			running:   "interface Ethernet1\n!\n",
			candidate: "interface Ethernet1\n  description test\n!\n",
			want:      "+  description test\n",
		},
		{
			name:      "change",
			running:   "vlan 10\n  name old\n",
			candidate: "vlan 10\n  name new\n",
			want:      "-  name old\n+  name new\n",
		},
		{
			name:      "from empty",
			running:   "",
			candidate: "hostname a\n",
			want:      "+hostname a\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			assert.Equal(t, tt.want, LineDiff(tt.running, tt.candidate))
		})
	}
}
