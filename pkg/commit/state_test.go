package commit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateNext(t *testing.T) {
	t.Parallel()

	tests := []struct {
		from    State
		ev      Event
		want    State
		wantErr bool
	}{
		{from: StateGenerated, ev: EventDiffed, want: StateDiffed},
		{from: StateGenerated, ev: EventFail, want: StateFailed},
		{from: StateGenerated, ev: EventCommit, wantErr: true},
		{from: StateDiffed, ev: EventDiscard, want: StateDiscarded},
		{from: StateDiffed, ev: EventCommit, want: StateCommitted},
		{from: StateDiffed, ev: EventCommitWithTimer, want: StatePendingConfirm},
		{from: StateDiffed, ev: EventConfirm, wantErr: true},
		{from: StatePendingConfirm, ev: EventConfirm, want: StateCommitted},
		{from: StatePendingConfirm, ev: EventFail, want: StateFailed},
		{from: StatePendingConfirm, ev: EventDiscard, wantErr: true},
		{from: StateCommitted, ev: EventFail, wantErr: true},
		{from: StateDiscarded, ev: EventCommit, wantErr: true},
		{from: StateFailed, ev: EventConfirm, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			t.Parallel()

			got, err := tt.from.Next(tt.ev)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidTransition)
				assert.Equal(t, tt.from, got)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseMode(t *testing.T) {
	t.Parallel()

	for v, want := range map[int]Mode{0: ModePlain, 1: ModeAutoConfirm, 2: ModeTwoPhase} {
		got, err := ParseMode(v)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	for _, v := range []int{-1, 3, 42} {
		_, err := ParseMode(v)
		require.ErrorIs(t, err, ErrInvalidMode)
	}

	assert.False(t, ModePlain.UsesTimer())
	assert.True(t, ModeTwoPhase.UsesTimer())
}
