package topology

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/netsync/pkg/models"
	"github.com/carverauto/netsync/pkg/store"
	"github.com/carverauto/netsync/pkg/store/storetest"
)

func uplink(b string, redundant bool) models.LinkRecord {
	return models.LinkRecord{
		DeviceAHostname: "eosaccess",
		DeviceAPort:     "Ethernet1",
		DeviceBHostname: b,
		DeviceBPort:     "Ethernet2",
		RedundantLink:   redundant,
	}
}

func TestVerifyUplinks(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		role       models.DeviceType
		links      []models.LinkRecord
		opts       UplinkOptions
		noDomain   bool
		want       []string
		wantInit   bool
		wantNbrErr bool
	}{
		{
			name:  "redundant pair",
			role:  models.DeviceTypeAccess,
			links: []models.LinkRecord{uplink("eosdist1", true), uplink("eosdist2", true)},
			want:  []string{"eosdist1", "eosdist2"},
		},
		{
			name:  "single non redundant",
			role:  models.DeviceTypeAccess,
			links: []models.LinkRecord{uplink("eosdist1", false)},
			want:  []string{"eosdist1"},
		},
		{
			name:     "single redundant",
			role:     models.DeviceTypeAccess,
			links:    []models.LinkRecord{uplink("eosdist1", true)},
			wantInit: true,
		},
		{
			name:     "mixed redundancy",
			role:     models.DeviceTypeAccess,
			links:    []models.LinkRecord{uplink("eosdist1", true), uplink("eosdist2", false)},
			wantInit: true,
		},
		{
			name:     "no uplinks",
			role:     models.DeviceTypeAccess,
			wantInit: true,
		},
		{
			name:     "no shared mgmtdomain",
			role:     models.DeviceTypeAccess,
			links:    []models.LinkRecord{uplink("eosdist1", true), uplink("eosdist2", true)},
			noDomain: true,
			wantInit: true,
		},
		{
			name:     "self link",
			role:     models.DeviceTypeAccess,
			links:    []models.LinkRecord{uplink("eosaccess", false)},
			wantInit: true,
		},
		{
			name:       "neighbor missing",
			role:       models.DeviceTypeAccess,
			links:      []models.LinkRecord{uplink("ghost", false)},
			wantNbrErr: true,
		},
		{
			name:  "mlag peer ignored",
			role:  models.DeviceTypeAccess,
			links: []models.LinkRecord{uplink("eosdist1", false), uplink("eosaccess2", true)},
			opts:  UplinkOptions{MLAGPeer: "eosaccess2"},
			want:  []string{"eosdist1"},
		},
		{
			name:  "expected neighbors match",
			role:  models.DeviceTypeAccess,
			links: []models.LinkRecord{uplink("eosdist2", true), uplink("eosdist1", true)},
			opts:  UplinkOptions{ExpectedNeighbors: []string{"eosdist1", "eosdist2"}},
			want:  []string{"eosdist2", "eosdist1"},
		},
		{
			name:     "expected neighbors differ",
			role:     models.DeviceTypeAccess,
			links:    []models.LinkRecord{uplink("eosdist1", false)},
			opts:     UplinkOptions{ExpectedNeighbors: []string{"eosdist1", "eosdist2"}},
			wantInit: true,
		},
		{
			name:  "dist has no uplink rules",
			role:  models.DeviceTypeDist,
			links: []models.LinkRecord{uplink("eosdist1", true)},
			want:  []string{"eosdist1"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			s := store.NewMemoryStore()

			access := storetest.SeedDevice(t, s, "eosaccess", models.DeviceTypeUnknown, models.DeviceStateInit)
			storetest.SeedDevice(t, s, "eosaccess2", models.DeviceTypeAccess, models.DeviceStateManaged)
			d1 := storetest.SeedDevice(t, s, "eosdist1", models.DeviceTypeDist, models.DeviceStateManaged)
			d2 := storetest.SeedDevice(t, s, "eosdist2", models.DeviceTypeDist, models.DeviceStateManaged)

			if !tt.noDomain {
				_, err := s.CreateMgmtDomain(ctx, &models.MgmtDomain{DeviceAID: d1.ID, DeviceBID: d2.ID, IPv4Gateway: "10.0.6.1/24", VLAN: 600})
				require.NoError(t, err)
			}

			got, err := VerifyUplinks(ctx, s, access, tt.role, tt.links, tt.opts)

			switch {
			case tt.wantInit:
				var initErr *InitVerificationError
				require.ErrorAs(t, err, &initErr)
				assert.Equal(t, "eosaccess", initErr.Hostname)
			case tt.wantNbrErr:
				var nbrErr *NeighborError
				require.ErrorAs(t, err, &nbrErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestVerifyUplinksRejectsForeignLink(t *testing.T) {
	t.Parallel()

	s := store.NewMemoryStore()
	dev := storetest.SeedDevice(t, s, "eosaccess", models.DeviceTypeAccess, models.DeviceStateInit)

	_, err := VerifyUplinks(context.Background(), s, dev, models.DeviceTypeAccess, []models.LinkRecord{
		{DeviceAHostname: "x", DeviceBHostname: "y"},
	}, UplinkOptions{})
	require.ErrorIs(t, err, errNotOnLink)
}
