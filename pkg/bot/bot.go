package bot

import (
	"context"
	"math/rand"
	"time"

	"github.com/cbodonnell/hotdice/pkg/bus"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/google/uuid"
)

const (
	DefaultThinkDelay = 1 * time.Second
	// DefaultBankThreshold is the turn score at which the default
	// strategy banks instead of rolling again.
	DefaultBankThreshold = 20
)

// Actor is the slice of the match service a bot needs to play.
type Actor interface {
	Submit(ctx context.Context, action gametypes.TurnAction) error
	Subscribe(ctx context.Context, sessionID string) (<-chan bus.Event, func(), error)
}

// Strategy decides the bot's next action for a snapshot where it is the
// bot's move. Returning an empty kind means wait.
type Strategy interface {
	Decide(session *gametypes.Session, botID string) (gametypes.TurnActionKind, string)
}

// ThresholdStrategy rolls until the turn score reaches a fixed
// threshold, then banks.
type ThresholdStrategy struct {
	BankThreshold int
}

func NewThresholdStrategy(bankThreshold int) *ThresholdStrategy {
	if bankThreshold <= 0 {
		bankThreshold = DefaultBankThreshold
	}
	return &ThresholdStrategy{BankThreshold: bankThreshold}
}

func (s *ThresholdStrategy) Decide(session *gametypes.Session, botID string) (gametypes.TurnActionKind, string) {
	switch session.Phase {
	case gametypes.PhaseTurnDecider:
		chooser := session.Chooser()
		if chooser == nil || chooser.PlayerID != botID {
			return "", ""
		}
		if rand.Intn(2) == 0 {
			return gametypes.TurnActionChoice, gametypes.DeciderChoiceOdd
		}
		return gametypes.TurnActionChoice, gametypes.DeciderChoiceEven
	case gametypes.PhaseGameplay:
		player, ok := session.PlayerByID(botID)
		if !ok || !player.TurnActive || session.Dice.IsRolling {
			return "", ""
		}
		if session.TurnScore >= s.BankThreshold {
			return gametypes.TurnActionBank, ""
		}
		return gametypes.TurnActionRoll, ""
	}
	return "", ""
}

// Runner plays bot turns by subscribing to session snapshots and
// submitting turn actions like any other client.
type Runner struct {
	actor      Actor
	strategy   Strategy
	thinkDelay time.Duration
}

type NewRunnerOptions struct {
	Actor    Actor
	Strategy Strategy
	// ThinkDelay defaults to DefaultThinkDelay when zero.
	ThinkDelay time.Duration
}

func NewRunner(opts NewRunnerOptions) *Runner {
	thinkDelay := opts.ThinkDelay
	if thinkDelay == 0 {
		thinkDelay = DefaultThinkDelay
	}
	strategy := opts.Strategy
	if strategy == nil {
		strategy = NewThresholdStrategy(0)
	}
	return &Runner{
		actor:      opts.Actor,
		strategy:   strategy,
		thinkDelay: thinkDelay,
	}
}

// Spawn starts a goroutine that plays the bot's side of the session
// until the session ends or the context is cancelled.
func (r *Runner) Spawn(ctx context.Context, sessionID string, botID string) {
	go func() {
		if err := r.play(ctx, sessionID, botID); err != nil {
			log.Error("Bot %s stopped playing session %s: %v", botID, sessionID, err)
		}
	}()
}

func (r *Runner) play(ctx context.Context, sessionID string, botID string) error {
	events, cancel, err := r.actor.Subscribe(ctx, sessionID)
	if err != nil {
		return err
	}
	defer cancel()

	// Acting is gated on the snapshot version so one turn never
	// produces two submissions. The gate is keyed to the session id: a
	// promoted session restarts its version sequence.
	var actedSessionID string
	var actedVersion int64 = -1
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-events:
			if !ok {
				return nil
			}
			if event.Type == bus.EventTypeAborted {
				return nil
			}
			session := event.Snapshot
			if session == nil {
				continue
			}
			if session.IsTerminal() {
				return nil
			}
			if session.ID != actedSessionID {
				actedSessionID = session.ID
				actedVersion = -1
			}
			if session.Version <= actedVersion {
				continue
			}

			kind, choice := r.strategy.Decide(session, botID)
			if kind == "" {
				continue
			}
			actedVersion = session.Version

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(r.thinkDelay):
			}

			action := gametypes.TurnAction{
				SessionID: session.ID,
				PlayerID:  botID,
				Kind:      kind,
				Choice:    choice,
				Nonce:     uuid.New().String(),
			}
			if err := r.actor.Submit(ctx, action); err != nil {
				log.Warn("Bot %s failed to submit %s action: %v", botID, kind, err)
			}
		}
	}
}
