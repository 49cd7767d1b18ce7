package bot

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cbodonnell/hotdice/pkg/bus"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func botSession(phase gametypes.Phase) *gametypes.Session {
	return &gametypes.Session{
		ID:             "s1",
		Phase:          phase,
		RoundObjective: gametypes.ClassicRoundObjective,
		Host:           gametypes.PlayerSlot{PlayerID: "host-1"},
		Opponent:       gametypes.PlayerSlot{PlayerID: "bot-1", IsBot: true},
	}
}

func TestThresholdStrategy_Decide(t *testing.T) {
	strategy := NewThresholdStrategy(20)

	t.Run("rolls below the threshold", func(t *testing.T) {
		s := botSession(gametypes.PhaseGameplay)
		s.Opponent.TurnActive = true
		s.TurnScore = 10

		kind, _ := strategy.Decide(s, "bot-1")
		assert.Equal(t, gametypes.TurnActionRoll, kind)
	})

	t.Run("banks at the threshold", func(t *testing.T) {
		s := botSession(gametypes.PhaseGameplay)
		s.Opponent.TurnActive = true
		s.TurnScore = 20

		kind, _ := strategy.Decide(s, "bot-1")
		assert.Equal(t, gametypes.TurnActionBank, kind)
	})

	t.Run("waits when it is not its turn", func(t *testing.T) {
		s := botSession(gametypes.PhaseGameplay)
		s.Host.TurnActive = true

		kind, _ := strategy.Decide(s, "bot-1")
		assert.Empty(t, kind)
	})

	t.Run("waits while the dice are mid-roll", func(t *testing.T) {
		s := botSession(gametypes.PhaseGameplay)
		s.Opponent.TurnActive = true
		s.Dice.IsRolling = true

		kind, _ := strategy.Decide(s, "bot-1")
		assert.Empty(t, kind)
	})

	t.Run("chooses odd or even when it is the chooser", func(t *testing.T) {
		s := botSession(gametypes.PhaseTurnDecider)
		s.TurnDecider.ChooserIndex = 2

		kind, choice := strategy.Decide(s, "bot-1")
		assert.Equal(t, gametypes.TurnActionChoice, kind)
		assert.Contains(t, []string{gametypes.DeciderChoiceOdd, gametypes.DeciderChoiceEven}, choice)
	})

	t.Run("waits when the other player is the chooser", func(t *testing.T) {
		s := botSession(gametypes.PhaseTurnDecider)
		s.TurnDecider.ChooserIndex = 1

		kind, _ := strategy.Decide(s, "bot-1")
		assert.Empty(t, kind)
	})

	t.Run("does nothing after game over", func(t *testing.T) {
		s := botSession(gametypes.PhaseGameOver)

		kind, _ := strategy.Decide(s, "bot-1")
		assert.Empty(t, kind)
	})
}

// fakeActor feeds a scripted event stream and records submissions.
type fakeActor struct {
	lock    sync.Mutex
	events  chan bus.Event
	actions []gametypes.TurnAction
}

func newFakeActor() *fakeActor {
	return &fakeActor{events: make(chan bus.Event, 16)}
}

func (a *fakeActor) Submit(ctx context.Context, action gametypes.TurnAction) error {
	a.lock.Lock()
	defer a.lock.Unlock()
	a.actions = append(a.actions, action)
	return nil
}

func (a *fakeActor) Subscribe(ctx context.Context, sessionID string) (<-chan bus.Event, func(), error) {
	return a.events, func() {}, nil
}

func (a *fakeActor) submitted() []gametypes.TurnAction {
	a.lock.Lock()
	defer a.lock.Unlock()
	return append([]gametypes.TurnAction(nil), a.actions...)
}

func snapshotEvent(session *gametypes.Session) bus.Event {
	return bus.Event{
		Type:      bus.EventTypeSnapshot,
		SessionID: session.ID,
		Snapshot:  session,
	}
}

func TestRunner_ActsOnPromotedSession(t *testing.T) {
	actor := newFakeActor()
	runner := NewRunner(NewRunnerOptions{
		Actor:      actor,
		Strategy:   NewThresholdStrategy(20),
		ThinkDelay: time.Millisecond,
	})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	runner.Spawn(ctx, "prov-1", "bot-1")

	provisional := botSession(gametypes.PhaseGameplay)
	provisional.ID = "prov-1"
	provisional.Version = 5
	provisional.Opponent.TurnActive = true
	actor.events <- snapshotEvent(provisional)

	require.Eventually(t, func() bool {
		return len(actor.submitted()) == 1
	}, time.Second, time.Millisecond)

	// Promotion restarts the version sequence below the provisional
	// session's. The bot must still act on the new id.
	actor.events <- bus.Event{
		Type:       bus.EventTypeRedirect,
		SessionID:  "prov-1",
		RedirectTo: "auth-1",
	}
	promoted := botSession(gametypes.PhaseGameplay)
	promoted.ID = "auth-1"
	promoted.Version = 2
	promoted.Opponent.TurnActive = true
	actor.events <- snapshotEvent(promoted)

	require.Eventually(t, func() bool {
		return len(actor.submitted()) == 2
	}, time.Second, time.Millisecond)

	actions := actor.submitted()
	assert.Equal(t, "prov-1", actions[0].SessionID)
	assert.Equal(t, "auth-1", actions[1].SessionID)
	assert.Equal(t, gametypes.TurnActionRoll, actions[1].Kind)
	close(actor.events)
}
