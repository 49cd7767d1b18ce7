package workers

import (
	"context"
	"testing"
	"time"

	"github.com/cbodonnell/hotdice/pkg/bus"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/matchmaking"
	"github.com/cbodonnell/hotdice/pkg/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSession(id string, phase gametypes.Phase) *gametypes.Session {
	return &gametypes.Session{
		ID:       id,
		Phase:    phase,
		Host:     gametypes.PlayerSlot{PlayerID: "host-1"},
		Opponent: gametypes.PlayerSlot{PlayerID: "opponent-1"},
		Version:  1,
	}
}

func TestSweepWorker_AbandonsIdleSessions(t *testing.T) {
	ctx := context.Background()
	repository := repositories.NewMemoryRepository()
	syncBus := bus.NewMemoryBus()
	guard := matchmaking.NewMemoryGuard()

	require.NoError(t, repository.InsertSession(ctx, testSession("s1", gametypes.PhaseGameplay)))
	_, err := guard.Reserve(ctx, "host-1", "s1")
	require.NoError(t, err)
	_, err = guard.Reserve(ctx, "opponent-1", "s1")
	require.NoError(t, err)

	worker := NewSweepWorker(NewSweepWorkerOptions{
		Repository:        repository,
		SyncBus:           syncBus,
		Guard:             guard,
		IdleTimeout:       time.Millisecond,
		FinishedRetention: time.Hour,
	})

	time.Sleep(5 * time.Millisecond)
	worker.Sweep(ctx)

	session, err := repository.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, gametypes.PhaseGameOver, session.Phase)
	assert.Equal(t, gametypes.GameOverReasonAbandoned, session.GameOverReason)
	assert.Empty(t, session.Winner)

	reserved, err := guard.Lookup(ctx, "host-1")
	require.NoError(t, err)
	assert.Empty(t, reserved)
}

func TestSweepWorker_DeletesFinishedSessions(t *testing.T) {
	ctx := context.Background()
	repository := repositories.NewMemoryRepository()
	guard := matchmaking.NewMemoryGuard()

	require.NoError(t, repository.InsertSession(ctx, testSession("s1", gametypes.PhaseGameOver)))
	_, err := guard.Reserve(ctx, "host-1", "s1")
	require.NoError(t, err)

	worker := NewSweepWorker(NewSweepWorkerOptions{
		Repository:        repository,
		SyncBus:           bus.NewMemoryBus(),
		Guard:             guard,
		IdleTimeout:       time.Hour,
		FinishedRetention: time.Millisecond,
	})

	time.Sleep(5 * time.Millisecond)
	worker.Sweep(ctx)

	_, err = repository.GetSession(ctx, "s1")
	assert.True(t, repositories.IsNotFound(err))

	reserved, err := guard.Lookup(ctx, "host-1")
	require.NoError(t, err)
	assert.Empty(t, reserved)
}

func TestSweepWorker_LeavesActiveSessionsAlone(t *testing.T) {
	ctx := context.Background()
	repository := repositories.NewMemoryRepository()

	require.NoError(t, repository.InsertSession(ctx, testSession("s1", gametypes.PhaseGameplay)))

	worker := NewSweepWorker(NewSweepWorkerOptions{
		Repository: repository,
		SyncBus:    bus.NewMemoryBus(),
		Guard:      matchmaking.NewMemoryGuard(),
	})
	worker.Sweep(ctx)

	session, err := repository.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, gametypes.PhaseGameplay, session.Phase)
}

func TestSweepWorker_ClearsStuckRolls(t *testing.T) {
	ctx := context.Background()
	repository := repositories.NewMemoryRepository()
	syncBus := bus.NewMemoryBus()

	stuck := testSession("s1", gametypes.PhaseGameplay)
	stuck.Host.TurnActive = true
	stuck.TurnScore = 12
	stuck.Dice = gametypes.Dice{
		DiceOne:   4,
		RollPhase: gametypes.RollPhaseDice1,
		IsRolling: true,
	}
	require.NoError(t, repository.InsertSession(ctx, stuck))

	worker := NewSweepWorker(NewSweepWorkerOptions{
		Repository:      repository,
		SyncBus:         syncBus,
		Guard:           matchmaking.NewMemoryGuard(),
		RollGracePeriod: time.Millisecond,
	})

	time.Sleep(5 * time.Millisecond)
	worker.Sweep(ctx)

	session, err := repository.GetSession(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, gametypes.PhaseGameplay, session.Phase)
	assert.False(t, session.Dice.IsRolling)
	assert.Equal(t, gametypes.RollPhaseIdle, session.Dice.RollPhase)
	// The turn survives, only the in-flight roll is discarded.
	assert.True(t, session.Host.TurnActive)
	assert.Equal(t, 12, session.TurnScore)
}

func TestSweepWorker_DropsAliasWithTombstone(t *testing.T) {
	ctx := context.Background()
	repository := repositories.NewMemoryRepository()
	aliases := matchmaking.NewAliasTable()

	tombstone := testSession("prov-1", gametypes.PhaseGameplay)
	tombstone.RedirectTo = "auth-1"
	require.NoError(t, repository.InsertSession(ctx, tombstone))
	aliases.CompletePromotion("prov-1", "auth-1")
	require.Equal(t, "auth-1", aliases.Resolve("prov-1"))

	worker := NewSweepWorker(NewSweepWorkerOptions{
		Repository:        repository,
		SyncBus:           bus.NewMemoryBus(),
		Guard:             matchmaking.NewMemoryGuard(),
		Aliases:           aliases,
		FinishedRetention: time.Millisecond,
	})

	time.Sleep(5 * time.Millisecond)
	worker.Sweep(ctx)

	_, err := repository.GetSession(ctx, "prov-1")
	assert.True(t, repositories.IsNotFound(err))
	assert.Equal(t, "prov-1", aliases.Resolve("prov-1"))
}
