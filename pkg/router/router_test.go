package router

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sambigeara/sadb/internal/testutil"
	"github.com/sambigeara/sadb/pkg/lifecycle"
	"github.com/sambigeara/sadb/pkg/store"
	"github.com/sambigeara/sadb/pkg/types"
	"github.com/sambigeara/sadb/pkg/validation"
)

func newRouter(t *testing.T) *Router {
	t.Helper()
	r, err := New(store.NewMemorySet())
	require.NoError(t, err)
	return r
}

func TestListAllFansOutInTypeOrder(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)

	for _, ft := range []types.FrameType{types.FrameTypeAOS, types.FrameTypeTM, types.FrameTypeTC} {
		_, err := r.Create(ctx, ft, testutil.Channel(ft, 1, 1, 1), lifecycle.CreateOptions{})
		require.NoError(t, err)
	}
	_, err := r.Create(ctx, types.FrameTypeTC, testutil.Keyed(types.FrameTypeTC, 1, 2, 2), lifecycle.CreateOptions{})
	require.NoError(t, err)
	_, err = r.Start(ctx, types.FrameTypeTC, 1, 2, false)
	require.NoError(t, err)

	all, err := r.List(ctx, types.FrameTypeAll, store.Filter{})
	require.NoError(t, err)
	var got []types.FrameType
	for _, sa := range all {
		got = append(got, sa.Type)
	}
	assert.Equal(t, []types.FrameType{types.FrameTypeTC, types.FrameTypeTC, types.FrameTypeTM, types.FrameTypeAOS}, got)

	active, err := r.List(ctx, types.FrameTypeAll, store.Filter{State: store.StateActive})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, uint16(2), active[0].SPI)

	tm, err := r.List(ctx, types.FrameTypeTM, store.Filter{})
	require.NoError(t, err)
	require.Len(t, tm, 1)
	assert.Equal(t, types.FrameTypeTM, tm[0].Type)
}

func TestSameIdentityAcrossTypes(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)

	for _, ft := range types.FrameTypes {
		_, err := r.Create(ctx, ft, testutil.Channel(ft, 44, 20, 1), lifecycle.CreateOptions{})
		require.NoError(t, err, "identity is unique per frame type only")
	}
}

func TestAllRejectedForMutations(t *testing.T) {
	ctx := context.Background()
	r := newRouter(t)
	all := types.FrameTypeAll

	calls := map[string]func() error{
		"get": func() error { _, err := r.Get(ctx, all, 1, 1); return err },
		"create": func() error {
			_, err := r.Create(ctx, all, testutil.Channel(types.FrameTypeTC, 1, 1, 1), lifecycle.CreateOptions{})
			return err
		},
		"update": func() error { _, err := r.Update(ctx, all, 1, 1, types.Params{}); return err },
		"key":    func() error { _, err := r.Key(ctx, all, 1, 1, testutil.EncryptionKey("k")); return err },
		"start":  func() error { _, err := r.Start(ctx, all, 1, 1, true); return err },
		"stop":   func() error { _, err := r.Stop(ctx, all, 1, 1); return err },
		"expire": func() error { _, err := r.Expire(ctx, all, 1, 1); return err },
		"delete": func() error { _, err := r.Delete(ctx, all, 1, 1); return err },
	}
	for name, call := range calls {
		t.Run(name, func(t *testing.T) {
			err := call()
			require.Error(t, err)
			assert.True(t, validation.IsValidation(err))
			assert.Equal(t, lifecycle.KindValidation, lifecycle.KindOf(err))
		})
	}

	_, err := r.List(ctx, types.FrameTypeUnspecified, store.Filter{})
	require.Error(t, err)
}
