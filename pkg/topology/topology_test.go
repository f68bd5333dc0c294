package topology

import (
	"context"
	"net/netip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/netsync/pkg/logger"
	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/neighbors"
	"github.com/carverauto/netsync/pkg/notify"
	"github.com/carverauto/netsync/pkg/settings"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/store/storetest"
)

const testSettings = `
roles:
  dist:
    interfaces:
      - name: Ethernet1
        ifclass: fabric
      - name: Ethernet2
        ifclass: downlink
      - name: Ethernet3
        ifclass: downlink
        redundant_link: false
  core:
    interfaces:
      - name: Ethernet1
        ifclass: fabric
devices:
  eoscore1:
    interfaces:
      - name: Ethernet2
        ifclass: fabric
`

type fixture struct {
	store    *store.MemoryStore
	resolver *Resolver
	devices  map[string]*models.Device
}

func newFixture(t *testing.T, notifier notify.Notifier) *fixture {
	t.Helper()

	sp, err := settings.NewProvider(strings.NewReader(testSettings), logger.NewTestLogger())
	require.NoError(t, err)

	s := store.NewMemoryStore()
	f := &fixture{store: s, devices: map[string]*models.Device{}}

	for _, d := range []struct {
		host  string
		typ   models.DeviceType
		state models.DeviceState
	}{
		{"eosaccess", models.DeviceTypeUnknown, models.DeviceStateInit},
		{"eosaccess2", models.DeviceTypeAccess, models.DeviceStateManaged},
		{"eosdist1", models.DeviceTypeDist, models.DeviceStateManaged},
		{"eosdist2", models.DeviceTypeDist, models.DeviceStateManaged},
		{"eoscore1", models.DeviceTypeCore, models.DeviceStateManaged},
		{"eosbooting", models.DeviceTypeUnknown, models.DeviceStateDHCPBoot},
	} {
		f.devices[d.host] = storetest.SeedDevice(t, s, d.host, d.typ, d.state)
	}

	f.resolver, err = NewResolver(s, sp, notifier, "10.198.0.0/16", logger.NewTestLogger())
	require.NoError(t, err)

	return f
}

func nbr(host, port string) []neighbors.Neighbor {
	return []neighbors.Neighbor{{Hostname: host, Port: port}}
}

func TestResolveLinksAccessUplinks(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()

	data := neighbors.Data{
		"Ethernet1": nbr("eosdist1", "Ethernet2"),
		"Ethernet2": nbr("eosdist2", "Ethernet2"),
	}

	records, err := f.resolver.ResolveLinks(ctx, f.devices["eosaccess"], models.DeviceTypeAccess, data, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, records, 2)

	for _, r := range records {
		assert.Equal(t, "eosaccess", r.DeviceAHostname)
		assert.True(t, r.RedundantLink)
		assert.Empty(t, r.IPv4Network)
	}

	assert.Equal(t, "eosdist1", records[0].DeviceBHostname)
	assert.Equal(t, "eosdist2", records[1].DeviceBHostname)

	before, err := f.store.ListLinknets(ctx, 0)
	require.NoError(t, err)
	require.Len(t, before, 2)

	// A second pass over the same cabling keeps the stored links.
	_, err = f.resolver.ResolveLinks(ctx, f.devices["eosaccess"], models.DeviceTypeAccess, data, ResolveOptions{})
	require.NoError(t, err)

	after, err := f.store.ListLinknets(ctx, 0)
	require.NoError(t, err)
	assert.ElementsMatch(t, before, after)
}

func TestResolveLinksValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		local         string
		role          models.DeviceType
		data          neighbors.Data
		wantRecords   int
		wantRedundant bool
		wantIfErr     bool
	}{
		{
			name:        "non redundant downlink",
			local:       "eosaccess",
			role:        models.DeviceTypeAccess,
			data:        neighbors.Data{"Ethernet1": nbr("eosdist1", "Ethernet3")},
			wantRecords: 1,
		},
		{
			name:      "access on fabric port",
			local:     "eosaccess",
			role:      models.DeviceTypeAccess,
			data:      neighbors.Data{"Ethernet1": nbr("eosdist1", "Ethernet1")},
			wantIfErr: true,
		},
		{
			name:      "undeclared dist port",
			local:     "eosaccess",
			role:      models.DeviceTypeAccess,
			data:      neighbors.Data{"Ethernet1": nbr("eosdist1", "Ethernet48")},
			wantIfErr: true,
		},
		{
			name:      "fabric link on downlink port",
			local:     "eosdist1",
			role:      models.DeviceTypeDist,
			data:      neighbors.Data{"Ethernet2": nbr("eoscore1", "Ethernet1")},
			wantIfErr: true,
		},
		{
			name:  "unknown and booting neighbors are skipped",
			local: "eosaccess",
			role:  models.DeviceTypeAccess,
			data: neighbors.Data{
				"Ethernet1": nbr("not-in-db", "Ethernet1"),
				"Ethernet2": nbr("eosbooting", "Ethernet1"),
			},
		},
		{
			name:      "access peer interface missing",
			local:     "eosaccess",
			role:      models.DeviceTypeAccess,
			data:      neighbors.Data{"Ethernet3": nbr("eosaccess2", "Ethernet9")},
			wantIfErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil)

			records, err := f.resolver.ResolveLinks(context.Background(), f.devices[tt.local], tt.role, tt.data, ResolveOptions{})
			if tt.wantIfErr {
				var ifErr *InterfaceError
				require.ErrorAs(t, err, &ifErr)

				return
			}

			require.NoError(t, err)
			require.Len(t, records, tt.wantRecords)

			for _, r := range records {
				assert.Equal(t, tt.wantRedundant, r.RedundantLink)
			}
		})
	}
}

func TestResolveLinksAccessToAccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		iface         *models.Interface
		wantRedundant bool
		wantErr       bool
	}{
		{
			name:          "mlag peer",
			iface:         &models.Interface{Name: "Ethernet9", ConfigType: models.IfConfigMLAGPeer},
			wantRedundant: true,
		},
		{
			name: "downlink without redundancy",
			iface: &models.Interface{
				Name:       "Ethernet9",
				ConfigType: models.IfConfigAccessDownlink,
				Data:       map[string]any{models.IfDataRedundantLink: false},
			},
		},
		{
			name:    "wrong config type",
			iface:   &models.Interface{Name: "Ethernet9", ConfigType: models.IfConfigAccessAuto},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil)
			ctx := context.Background()

			tt.iface.DeviceID = f.devices["eosaccess2"].ID
			require.NoError(t, f.store.UpsertInterface(ctx, tt.iface))

			records, err := f.resolver.ResolveLinks(ctx, f.devices["eosaccess"], models.DeviceTypeAccess,
				neighbors.Data{"Ethernet3": nbr("eosaccess2", "Ethernet9")}, ResolveOptions{})
			if tt.wantErr {
				var ifErr *InterfaceError
				require.ErrorAs(t, err, &ifErr)

				return
			}

			require.NoError(t, err)
			require.Len(t, records, 1)
			assert.Equal(t, tt.wantRedundant, records[0].RedundantLink)
		})
	}
}

func TestResolveLinksFabricAllocation(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	notifier := notify.NewMockNotifier(ctrl)
	notifier.EXPECT().OnIPAllocated(gomock.Any(), "eosdist1", netip.MustParsePrefix("10.198.0.0/31")).Return(nil)
	notifier.EXPECT().OnIPAllocated(gomock.Any(), "eosdist2", netip.MustParsePrefix("10.198.0.2/31")).Return(nil)

	f := newFixture(t, notifier)
	ctx := context.Background()

	records, err := f.resolver.ResolveLinks(ctx, f.devices["eosdist1"], models.DeviceTypeDist,
		neighbors.Data{"Ethernet1": nbr("eoscore1", "Ethernet1")}, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.198.0.0/31", records[0].IPv4Network)
	assert.Equal(t, "10.198.0.0", records[0].DeviceAIP)
	assert.Equal(t, "10.198.0.1", records[0].DeviceBIP)

	records, err = f.resolver.ResolveLinks(ctx, f.devices["eosdist2"], models.DeviceTypeDist,
		neighbors.Data{"Ethernet1": nbr("eoscore1", "Ethernet2")}, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.198.0.2/31", records[0].IPv4Network)

	// Seen from the core the first link keeps its orientation.
	records, err = f.resolver.ResolveLinks(ctx, f.devices["eoscore1"], models.DeviceTypeCore,
		neighbors.Data{"Ethernet1": nbr("eosdist1", "Ethernet1")}, ResolveOptions{})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "eosdist1", records[0].DeviceAHostname)
	assert.Equal(t, "eoscore1", records[0].DeviceBHostname)
}

func TestResolveLinksReplacesChangedNeighbor(t *testing.T) {
	t.Parallel()

	f := newFixture(t, nil)
	ctx := context.Background()
	access := f.devices["eosaccess"]

	_, err := f.resolver.ResolveLinks(ctx, access, models.DeviceTypeAccess,
		neighbors.Data{"Ethernet1": nbr("eosdist1", "Ethernet2")}, ResolveOptions{})
	require.NoError(t, err)

	_, err = f.resolver.ResolveLinks(ctx, access, models.DeviceTypeAccess,
		neighbors.Data{"Ethernet1": nbr("eosdist2", "Ethernet2")}, ResolveOptions{})
	require.NoError(t, err)

	links, err := f.store.ListLinknets(ctx, access.ID)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, f.devices["eosdist2"].ID, links[0].DeviceBID)

	dist1Links, err := f.store.ListLinknets(ctx, f.devices["eosdist1"].ID)
	require.NoError(t, err)
	assert.Empty(t, dist1Links)
}

func TestResolveLinksDryRun(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	notifier := notify.NewMockNotifier(ctrl)

	f := newFixture(t, notifier)
	ctx := context.Background()

	records, err := f.resolver.ResolveLinks(ctx, f.devices["eosdist1"], models.DeviceTypeDist,
		neighbors.Data{"Ethernet1": nbr("eoscore1", "Ethernet1")}, ResolveOptions{DryRun: true})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "10.198.0.0/31", records[0].IPv4Network)

	links, err := f.store.ListLinknets(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, links)
}

func TestResolveLinksDistinctSubnetsInOneCall(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		dryRun    bool
		wantLinks int
	}{
		{name: "dry run", dryRun: true, wantLinks: 0},
		{name: "live", dryRun: false, wantLinks: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, nil)
			ctx := context.Background()

			records, err := f.resolver.ResolveLinks(ctx, f.devices["eoscore1"], models.DeviceTypeCore, neighbors.Data{
				"Ethernet1": nbr("eosdist1", "Ethernet1"),
				"Ethernet2": nbr("eosdist2", "Ethernet1"),
			}, ResolveOptions{DryRun: tt.dryRun})
			require.NoError(t, err)
			require.Len(t, records, 2)

			networks := []string{records[0].IPv4Network, records[1].IPv4Network}
			assert.ElementsMatch(t, []string{"10.198.0.0/31", "10.198.0.2/31"}, networks)

			links, err := f.store.ListLinknets(ctx, 0)
			require.NoError(t, err)
			assert.Len(t, links, tt.wantLinks)
		})
	}
}

func TestSubnetAllocator(t *testing.T) {
	t.Parallel()

	a, err := NewSubnetAllocator("10.198.0.0/30")
	require.NoError(t, err)

	p, err := a.Next(nil)
	require.NoError(t, err)
	assert.Equal(t, "10.198.0.0/31", p.String())

	p, err = a.Next(map[string]struct{}{"10.198.0.0/31": {}})
	require.NoError(t, err)
	assert.Equal(t, "10.198.0.2/31", p.String())

	first, second := Endpoints(p)
	assert.Equal(t, "10.198.0.2", first.String())
	assert.Equal(t, "10.198.0.3", second.String())

	_, err = a.Next(map[string]struct{}{"10.198.0.0/31": {}, "10.198.0.2/31": {}})
	require.ErrorIs(t, err, ErrNoFreeLinknet)

	for _, bad := range []string{"nope", "2001:db8::/64", "10.0.0.1/32"} {
		_, err := NewSubnetAllocator(bad)
		require.ErrorIs(t, err, errInvalidPool, bad)
	}
}
