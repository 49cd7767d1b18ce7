package matchmaking

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryGuard(t *testing.T) {
	ctx := context.Background()
	guard := NewMemoryGuard()

	t.Run("first reservation wins", func(t *testing.T) {
		reserved, err := guard.Reserve(ctx, "player-1", "session-1")
		require.NoError(t, err)
		assert.Equal(t, "session-1", reserved)

		reserved, err = guard.Reserve(ctx, "player-1", "session-2")
		require.NoError(t, err)
		assert.Equal(t, "session-1", reserved)
	})

	t.Run("reassign moves a matching reservation", func(t *testing.T) {
		require.NoError(t, guard.Reassign(ctx, "player-1", "session-1", "session-9"))
		reserved, err := guard.Lookup(ctx, "player-1")
		require.NoError(t, err)
		assert.Equal(t, "session-9", reserved)

		// Mismatched fromID is a no-op.
		require.NoError(t, guard.Reassign(ctx, "player-1", "session-1", "session-5"))
		reserved, err = guard.Lookup(ctx, "player-1")
		require.NoError(t, err)
		assert.Equal(t, "session-9", reserved)
	})

	t.Run("release is idempotent", func(t *testing.T) {
		require.NoError(t, guard.Release(ctx, "player-1", "session-9"))
		require.NoError(t, guard.Release(ctx, "player-1", "session-9"))
		reserved, err := guard.Lookup(ctx, "player-1")
		require.NoError(t, err)
		assert.Empty(t, reserved)
	})

	t.Run("release of a stale reservation is a no-op", func(t *testing.T) {
		_, err := guard.Reserve(ctx, "player-2", "session-3")
		require.NoError(t, err)
		require.NoError(t, guard.Release(ctx, "player-2", "session-other"))
		reserved, err := guard.Lookup(ctx, "player-2")
		require.NoError(t, err)
		assert.Equal(t, "session-3", reserved)
	})
}
