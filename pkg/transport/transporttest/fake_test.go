package transporttest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/transport"
)

func TestFleetCommitConfirm(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fleet := NewFleet()
	d := fleet.Add("eosaccess", "hostname eosaccess\n")
	dev := &models.Device{Hostname: "eosaccess"}

	diff, err := fleet.LoadCandidate(ctx, dev, "hostname eosaccess\nvlan 10\n", true)
	require.NoError(t, err)
	assert.Equal(t, "+vlan 10\n", diff)

	require.NoError(t, fleet.Commit(ctx, dev, time.Hour, "netsync"))
	assert.True(t, d.Pending())
	assert.Equal(t, "hostname eosaccess\nvlan 10\n", d.Running())

	require.NoError(t, fleet.ConfirmCommit(ctx, dev))
	assert.False(t, d.Pending())
	require.ErrorIs(t, fleet.ConfirmCommit(ctx, dev), transport.ErrNothingToConfirm)

	diff, err = fleet.LoadCandidate(ctx, dev, "hostname eosaccess\nvlan 10\n", true)
	require.NoError(t, err)
	assert.Empty(t, diff)
	require.NoError(t, fleet.Discard(ctx, dev))
	require.ErrorIs(t, fleet.Commit(ctx, dev, 0, ""), transport.ErrNoCandidate)
}

func TestFleetRevertsUnconfirmedCommit(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fleet := NewFleet()
	d := fleet.Add("eosdist1", "hostname eosdist1\n")
	dev := &models.Device{Hostname: "eosdist1"}

	_, err := fleet.LoadCandidate(ctx, dev, "router bgp 65000\n", false)
	require.NoError(t, err)
	require.NoError(t, fleet.Commit(ctx, dev, 20*time.Millisecond, ""))
	assert.Equal(t, "hostname eosdist1\nrouter bgp 65000\n", d.Running())

	require.Eventually(t, func() bool { return d.Reverts() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, "hostname eosdist1\n", d.Running())
	assert.False(t, d.Pending())
}

func TestFleetFailureInjection(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	fleet := NewFleet()
	d := fleet.Add("eosaccess", "")
	boom := errors.New("session closed")

	d.FailOn(OpLoad, boom)

	_, err := fleet.LoadCandidate(ctx, &models.Device{Hostname: "eosaccess"}, "x", true)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, d.CallCount(OpLoad))

	d.FailOn(OpLoad, nil)

	_, err = fleet.LoadCandidate(ctx, &models.Device{Hostname: "eosaccess"}, "x", true)
	require.NoError(t, err)

	_, err = fleet.GetRunningConfig(ctx, &models.Device{Hostname: "missing"})
	require.ErrorIs(t, err, transport.ErrUnreachable)
}
