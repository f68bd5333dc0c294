package hashutil

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const runningConfig = "hostname eosaccess\n!\ninterface Ethernet1\n   description uplink\n"

func TestConfigFingerprint(t *testing.T) {
	t.Parallel()

	sum := sha256.Sum256([]byte(runningConfig))
	require.Equal(t, hex.EncodeToString(sum[:]), ConfigFingerprint(runningConfig))
	require.NotEqual(t, ConfigFingerprint(runningConfig), ConfigFingerprint(runningConfig+" "))
}

func TestMatchesFingerprint(t *testing.T) {
	t.Parallel()

	fp := ConfigFingerprint(runningConfig)

	require.True(t, MatchesFingerprint(fp, runningConfig))
	require.True(t, MatchesFingerprint(strings.ToUpper(fp), runningConfig))
	require.False(t, MatchesFingerprint(fp, runningConfig+"vlan 10\n"))
	require.False(t, MatchesFingerprint("", runningConfig))
}

func TestDecodeSHA256String(t *testing.T) {
	t.Parallel()

	sum := sha256.Sum256([]byte(runningConfig))

	cases := []struct {
		name    string
		input   string
		wantErr error
	}{
		{name: "hex lowercase", input: hex.EncodeToString(sum[:])},
		{name: "hex uppercase", input: strings.ToUpper(hex.EncodeToString(sum[:]))},
		{name: "base64 standard", input: base64.StdEncoding.EncodeToString(sum[:])},
		{name: "base64 url", input: base64.URLEncoding.EncodeToString(sum[:])},
		{name: "empty", input: "  ", wantErr: ErrEmptyChecksum},
		{name: "short hex", input: "abcd", wantErr: ErrUnsupportedEncoding},
		{name: "garbage", input: "not*valid*digest", wantErr: ErrUnsupportedEncoding},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			decoded, err := DecodeSHA256String(tc.input)
			if tc.wantErr != nil {
				require.ErrorIs(t, err, tc.wantErr)
				return
			}

			require.NoError(t, err)
			require.Equal(t, sum[:], decoded)
		})
	}
}
