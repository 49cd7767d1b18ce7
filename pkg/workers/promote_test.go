package workers

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/hotdice/pkg/bus"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/matchmaking"
	"github.com/cbodonnell/hotdice/pkg/repositories"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingReplayer struct {
	lock    sync.Mutex
	actions []gametypes.TurnAction
}

func (r *recordingReplayer) Submit(ctx context.Context, action gametypes.TurnAction) error {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.actions = append(r.actions, action)
	return nil
}

type stubAuthoritativeClient struct {
	sessionID string
}

func (c *stubAuthoritativeClient) CreateOrFind(ctx context.Context, gameMode string, matchType gametypes.MatchType, players [2]gametypes.Profile) (string, error) {
	return c.sessionID, nil
}

func TestPromotionWorker_PromotesQueuedSessions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repository := repositories.NewMemoryRepository()
	aliases := matchmaking.NewAliasTable()
	promoteChan := make(chan matchmaking.PromoteRequest, 10)
	factory := matchmaking.NewFactory(matchmaking.NewFactoryOptions{
		Repository:    repository,
		SyncBus:       bus.NewMemoryBus(),
		Guard:         matchmaking.NewMemoryGuard(),
		Authoritative: &stubAuthoritativeClient{sessionID: "auth-1"},
		Aliases:       aliases,
		PromoteChan:   promoteChan,
	})

	handle, err := factory.CreateSession(ctx, matchmaking.CreateSessionParams{
		GameMode:  gametypes.GameModeClassic,
		MatchType: gametypes.MatchTypeCasual,
		Host:      gametypes.Profile{PlayerID: "host-1"},
		Opponent:  gametypes.Profile{PlayerID: "opponent-1"},
	})
	require.NoError(t, err)

	worker := NewPromotionWorker(NewPromotionWorkerOptions{
		Factory:      factory,
		Replayer:     &recordingReplayer{},
		PromoteQueue: promoteChan,
	})
	go worker.Start(ctx)

	assert.Eventually(t, func() bool {
		return aliases.Resolve(handle.SessionID) == "auth-1"
	}, time.Second, 10*time.Millisecond)

	promoted, err := repository.GetSession(ctx, "auth-1")
	require.NoError(t, err)
	assert.False(t, promoted.IsOptimistic)
}
