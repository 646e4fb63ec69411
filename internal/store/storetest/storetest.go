// Package storetest holds the behavior every advantage.Store must share.
package storetest

import (
	"context"
	"testing"

	"github.com/jamestaylor0685/wfrp-group-advantage/internal/advantage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises store against the common contract. Each subtest uses its own
// session ID so a shared backing database is fine.
func Run(t *testing.T, store advantage.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("unset session reads as zero and hidden", func(t *testing.T) {
		for _, kind := range advantage.Kinds {
			v, err := store.Get(ctx, "empty", kind)
			require.NoError(t, err)
			assert.Equal(t, 0, v)
		}
		shown, err := store.Visibility(ctx, "empty")
		require.NoError(t, err)
		assert.False(t, shown)
	})

	t.Run("set then get", func(t *testing.T) {
		for _, kind := range advantage.Kinds {
			for _, v := range []int{0, 1, 5, 12, 3} {
				require.NoError(t, store.Set(ctx, "set-get", kind, v))
				got, err := store.Get(ctx, "set-get", kind)
				require.NoError(t, err)
				assert.Equal(t, v, got, "kind=%s", kind)
			}
		}
	})

	t.Run("kinds are independent", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "independent", advantage.Allies, 4))
		require.NoError(t, store.Set(ctx, "independent", advantage.Adversaries, 9))

		allies, err := store.Get(ctx, "independent", advantage.Allies)
		require.NoError(t, err)
		adversaries, err := store.Get(ctx, "independent", advantage.Adversaries)
		require.NoError(t, err)
		assert.Equal(t, 4, allies)
		assert.Equal(t, 9, adversaries)
	})

	t.Run("sessions are isolated", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "iso-a", advantage.Allies, 7))
		require.NoError(t, store.SetVisibility(ctx, "iso-a", true))

		v, err := store.Get(ctx, "iso-b", advantage.Allies)
		require.NoError(t, err)
		assert.Equal(t, 0, v)
		shown, err := store.Visibility(ctx, "iso-b")
		require.NoError(t, err)
		assert.False(t, shown)
	})

	t.Run("negative values rejected", func(t *testing.T) {
		require.NoError(t, store.Set(ctx, "negative", advantage.Allies, 2))
		err := store.Set(ctx, "negative", advantage.Allies, -1)
		require.ErrorIs(t, err, advantage.ErrNegativeResult)

		v, err := store.Get(ctx, "negative", advantage.Allies)
		require.NoError(t, err)
		assert.Equal(t, 2, v)
	})

	t.Run("unknown kind rejected", func(t *testing.T) {
		_, err := store.Get(ctx, "unknown", advantage.Kind("foes"))
		assert.ErrorIs(t, err, advantage.ErrUnknownKind)
		err = store.Set(ctx, "unknown", advantage.Kind("foes"), 1)
		assert.ErrorIs(t, err, advantage.ErrUnknownKind)
	})

	t.Run("visibility round trip", func(t *testing.T) {
		require.NoError(t, store.SetVisibility(ctx, "visibility", true))
		shown, err := store.Visibility(ctx, "visibility")
		require.NoError(t, err)
		assert.True(t, shown)

		require.NoError(t, store.SetVisibility(ctx, "visibility", false))
		shown, err = store.Visibility(ctx, "visibility")
		require.NoError(t, err)
		assert.False(t, shown)
	})

	t.Run("reset all", func(t *testing.T) {
		for _, prior := range []struct {
			allies, adversaries int
			shown               bool
		}{
			{0, 0, false},
			{3, 8, true},
			{1, 0, true},
		} {
			require.NoError(t, store.Set(ctx, "reset", advantage.Allies, prior.allies))
			require.NoError(t, store.Set(ctx, "reset", advantage.Adversaries, prior.adversaries))
			require.NoError(t, store.SetVisibility(ctx, "reset", prior.shown))

			require.NoError(t, store.ResetAll(ctx, "reset"))

			for _, kind := range advantage.Kinds {
				v, err := store.Get(ctx, "reset", kind)
				require.NoError(t, err)
				assert.Equal(t, 0, v)
			}
			shown, err := store.Visibility(ctx, "reset")
			require.NoError(t, err)
			assert.False(t, shown)
		}
	})

	t.Run("reset of unknown session", func(t *testing.T) {
		require.NoError(t, store.ResetAll(ctx, "never-seen"))
		v, err := store.Get(ctx, "never-seen", advantage.Allies)
		require.NoError(t, err)
		assert.Equal(t, 0, v)
	})

	t.Run("canceled context", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		assert.Error(t, store.Set(canceled, "canceled", advantage.Allies, 1))
	})
}
