package gvcid

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
)

func sa(ft types.FrameType, spi uint16, vcid, mapid uint8, state types.SAState) *types.SecurityAssociation {
	r := types.New(ft, types.DefaultDefaults())
	r.SPI = spi
	r.SCID = 44
	r.VCID = vcid
	r.MAPID = mapid
	r.State = state
	r.EKID = "k"
	r.ECS = types.HexBytes{0x01}
	r.ECSLen = 1
	return r
}

func seed(t *testing.T, ft types.FrameType, sas ...*types.SecurityAssociation) store.Store {
	t.Helper()
	st := store.NewMemory(ft)
	for _, r := range sas {
		require.NoError(t, st.Insert(context.Background(), r))
	}
	return st
}

func TestConflicts(t *testing.T) {
	tests := []struct {
		name string
		ft   types.FrameType
		have []*types.SecurityAssociation
		cand *types.SecurityAssociation
		want []uint16
	}{
		{
			name: "same gvcid operational",
			ft:   types.FrameTypeTC,
			have: []*types.SecurityAssociation{sa(types.FrameTypeTC, 8, 1, 0, types.SAStateOperational)},
			cand: sa(types.FrameTypeTC, 9, 1, 0, types.SAStateKeyed),
			want: []uint16{8},
		},
		{
			name: "same gvcid but keyed",
			ft:   types.FrameTypeTC,
			have: []*types.SecurityAssociation{sa(types.FrameTypeTC, 8, 1, 0, types.SAStateKeyed)},
			cand: sa(types.FrameTypeTC, 9, 1, 0, types.SAStateKeyed),
		},
		{
			name: "different vcid",
			ft:   types.FrameTypeTC,
			have: []*types.SecurityAssociation{sa(types.FrameTypeTC, 8, 2, 0, types.SAStateOperational)},
			cand: sa(types.FrameTypeTC, 9, 1, 0, types.SAStateKeyed),
		},
		{
			name: "tc mapid separates channels",
			ft:   types.FrameTypeTC,
			have: []*types.SecurityAssociation{sa(types.FrameTypeTC, 8, 1, 3, types.SAStateOperational)},
			cand: sa(types.FrameTypeTC, 9, 1, 0, types.SAStateKeyed),
		},
		{
			name: "tm ignores mapid",
			ft:   types.FrameTypeTM,
			have: []*types.SecurityAssociation{sa(types.FrameTypeTM, 8, 1, 3, types.SAStateOperational)},
			cand: sa(types.FrameTypeTM, 9, 1, 0, types.SAStateKeyed),
			want: []uint16{8},
		},
		{
			name: "candidate itself is not a conflict",
			ft:   types.FrameTypeTC,
			have: []*types.SecurityAssociation{sa(types.FrameTypeTC, 9, 1, 0, types.SAStateOperational)},
			cand: sa(types.FrameTypeTC, 9, 1, 0, types.SAStateOperational),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewResolver(seed(t, tt.ft, tt.have...))
			got, err := r.Conflicts(context.Background(), tt.cand)
			require.NoError(t, err)

			var spis []uint16
			for _, c := range got {
				spis = append(spis, c.SPI)
			}
			assert.Equal(t, tt.want, spis)
		})
	}
}

func TestCheckStart(t *testing.T) {
	ctx := context.Background()

	t.Run("conflict without force", func(t *testing.T) {
		st := seed(t, types.FrameTypeTC, sa(types.FrameTypeTC, 8, 1, 0, types.SAStateOperational))
		r := NewResolver(st)

		_, err := r.CheckStart(ctx, sa(types.FrameTypeTC, 9, 1, 0, types.SAStateKeyed), false)
		var ce *ConflictError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, uint16(8), ce.Holder)
		assert.Equal(t, uint16(9), ce.Candidate)
		assert.Contains(t, err.Error(), "SPI 8")

		held, err := st.Get(ctx, 44, 8)
		require.NoError(t, err)
		assert.Equal(t, types.SAStateOperational, held.State)
	})

	t.Run("force stops the holder", func(t *testing.T) {
		st := seed(t, types.FrameTypeTC, sa(types.FrameTypeTC, 8, 1, 0, types.SAStateOperational))
		r := NewResolver(st)

		stopped, err := r.CheckStart(ctx, sa(types.FrameTypeTC, 9, 1, 0, types.SAStateKeyed), true)
		require.NoError(t, err)
		require.Len(t, stopped, 1)
		assert.Equal(t, uint16(8), stopped[0].SPI)

		held, err := st.Get(ctx, 44, 8)
		require.NoError(t, err)
		assert.Equal(t, types.SAStateKeyed, held.State)
	})

	t.Run("no conflict", func(t *testing.T) {
		r := NewResolver(seed(t, types.FrameTypeAOS))
		stopped, err := r.CheckStart(ctx, sa(types.FrameTypeAOS, 1, 1, 0, types.SAStateKeyed), false)
		require.NoError(t, err)
		assert.Empty(t, stopped)
	})
}
