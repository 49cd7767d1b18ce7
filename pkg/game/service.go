package game

import (
	"context"
	"fmt"

	"github.com/cbodonnell/hotdice/pkg/bus"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/matchmaking"
	"github.com/cbodonnell/hotdice/pkg/repositories"
)

const (
	// DefaultWriteAttempts bounds the conditional-write retry loop for
	// one turn action before a conflict is surfaced to the caller.
	DefaultWriteAttempts = 3
)

// BotSpawner starts an automated opponent for a session.
type BotSpawner interface {
	Spawn(ctx context.Context, sessionID string, botID string)
}

// MatchService is the single entry point for session mutation. Clients
// never write the session document directly: every mutation is a turn
// action validated by the state machine and committed with a
// conditional write.
type MatchService struct {
	repository    repositories.Repository
	syncBus       bus.Bus
	guard         matchmaking.SessionGuard
	factory       *matchmaking.Factory
	aliases       *matchmaking.AliasTable
	roller        Roller
	bots          BotSpawner
	writeAttempts int
}

type NewMatchServiceOptions struct {
	Repository    repositories.Repository
	SyncBus       bus.Bus
	Guard         matchmaking.SessionGuard
	Factory       *matchmaking.Factory
	Aliases       *matchmaking.AliasTable
	Roller        Roller
	// WriteAttempts defaults to DefaultWriteAttempts when zero.
	WriteAttempts int
}

func NewMatchService(opts NewMatchServiceOptions) *MatchService {
	writeAttempts := opts.WriteAttempts
	if writeAttempts == 0 {
		writeAttempts = DefaultWriteAttempts
	}
	return &MatchService{
		repository:    opts.Repository,
		syncBus:       opts.SyncBus,
		guard:         opts.Guard,
		factory:       opts.Factory,
		aliases:       opts.Aliases,
		roller:        opts.Roller,
		writeAttempts: writeAttempts,
	}
}

// SetBotSpawner wires the automated opponent runner. The runner needs
// the service to play, so it cannot be passed at construction.
func (s *MatchService) SetBotSpawner(bots BotSpawner) {
	s.bots = bots
}

// CreateSession finds or creates a session for the two players. It
// returns synchronously; any authoritative upgrade happens behind the
// handle.
func (s *MatchService) CreateSession(ctx context.Context, params matchmaking.CreateSessionParams) (*matchmaking.SessionHandle, error) {
	handle, err := s.factory.CreateSession(ctx, params)
	if err != nil {
		return nil, err
	}
	if params.Opponent.IsBot && !handle.Existing && s.bots != nil {
		// The bot outlives the create request.
		s.bots.Spawn(context.Background(), handle.SessionID, params.Opponent.PlayerID)
	}
	return handle, nil
}

// SubmitTurnDeciderChoice records the chooser's odd/even prediction.
// The decider die is rolled server-side.
func (s *MatchService) SubmitTurnDeciderChoice(ctx context.Context, sessionID, playerID, choice, nonce string) error {
	return s.Submit(ctx, gametypes.TurnAction{
		SessionID: sessionID,
		PlayerID:  playerID,
		Kind:      gametypes.TurnActionChoice,
		Choice:    choice,
		Nonce:     nonce,
	})
}

// RollDice rolls both dice server-side for the acting player.
func (s *MatchService) RollDice(ctx context.Context, sessionID, playerID, nonce string) error {
	return s.Submit(ctx, gametypes.TurnAction{
		SessionID: sessionID,
		PlayerID:  playerID,
		Kind:      gametypes.TurnActionRoll,
		Nonce:     nonce,
	})
}

// BankScore banks the accumulated turn score.
func (s *MatchService) BankScore(ctx context.Context, sessionID, playerID, nonce string) error {
	return s.Submit(ctx, gametypes.TurnAction{
		SessionID: sessionID,
		PlayerID:  playerID,
		Kind:      gametypes.TurnActionBank,
		Nonce:     nonce,
	})
}

// LeaveSession forfeits the match for the leaving player.
func (s *MatchService) LeaveSession(ctx context.Context, sessionID, playerID string) error {
	return s.Submit(ctx, gametypes.TurnAction{
		SessionID: sessionID,
		PlayerID:  playerID,
		Kind:      gametypes.TurnActionLeave,
	})
}

// Submit validates and applies one turn action. Actions that land in a
// promotion window are buffered and replayed against the promoted id;
// duplicate submissions are absorbed as no-ops.
func (s *MatchService) Submit(ctx context.Context, action gametypes.TurnAction) error {
	action.SessionID = s.aliases.Resolve(action.SessionID)
	if s.aliases.BufferAction(action.SessionID, action) {
		log.Debug("Buffered %s action for session %s during promotion", action.Kind, action.SessionID)
		return nil
	}

	var err error
	switch action.Kind {
	case gametypes.TurnActionChoice:
		err = s.applyDeciderChoice(ctx, action)
	case gametypes.TurnActionRoll:
		err = s.applyRoll(ctx, action)
	case gametypes.TurnActionBank:
		err = s.applyBank(ctx, action)
	case gametypes.TurnActionLeave:
		err = s.applyLeave(ctx, action)
	default:
		return &ErrInvalidTurnAction{Reason: fmt.Sprintf("unknown action kind %q", action.Kind)}
	}

	if IsDuplicateAction(err) {
		log.Debug("Ignoring duplicate %s action for session %s", action.Kind, action.SessionID)
		return nil
	}
	return err
}

func (s *MatchService) applyDeciderChoice(ctx context.Context, action gametypes.TurnAction) error {
	die := s.roller.Roll()
	_, err := s.mutate(ctx, action.SessionID, func(session *gametypes.Session) error {
		return ApplyDeciderChoice(session, action.PlayerID, action.Choice, die, action.Nonce)
	})
	return err
}

// applyRoll commits a roll as two writes: the first reveals die one and
// marks the session mid-roll, the second reveals die two and scores.
// Subscribers observe both, which is what drives the client dice
// animation.
func (s *MatchService) applyRoll(ctx context.Context, action gametypes.TurnAction) error {
	dieOne := s.roller.Roll()
	dieTwo := s.roller.Roll()

	session, err := s.mutate(ctx, action.SessionID, func(session *gametypes.Session) error {
		return BeginRoll(session, action.PlayerID, dieOne, action.Nonce)
	})
	if err != nil {
		return err
	}

	session, err = s.mutate(ctx, session.ID, func(session *gametypes.Session) error {
		return CompleteRoll(session, action.PlayerID, dieTwo)
	})
	if err != nil {
		return err
	}

	s.releaseIfTerminal(ctx, session)
	return nil
}

func (s *MatchService) applyBank(ctx context.Context, action gametypes.TurnAction) error {
	session, err := s.mutate(ctx, action.SessionID, func(session *gametypes.Session) error {
		return ApplyBank(session, action.PlayerID, action.Nonce)
	})
	if err != nil {
		return err
	}

	s.releaseIfTerminal(ctx, session)
	return nil
}

func (s *MatchService) applyLeave(ctx context.Context, action gametypes.TurnAction) error {
	session, err := s.mutate(ctx, action.SessionID, func(session *gametypes.Session) error {
		return ApplyForfeit(session, action.PlayerID)
	})
	if err != nil {
		return err
	}

	s.releaseIfTerminal(ctx, session)
	return nil
}

// Subscribe registers a snapshot stream for a session, delivering the
// current snapshot first. The cancel function is idempotent.
func (s *MatchService) Subscribe(ctx context.Context, sessionID string) (<-chan bus.Event, func(), error) {
	sessionID = s.aliases.Resolve(sessionID)
	session, err := s.repository.GetSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}
	if session.RedirectTo != "" {
		sessionID = session.RedirectTo
		session, err = s.repository.GetSession(ctx, sessionID)
		if err != nil {
			return nil, nil, err
		}
	}

	ch, cancel := s.syncBus.Subscribe(ctx, sessionID, session)
	return ch, cancel, nil
}

// MatchStatus is the result of a checkUserInMatch lookup.
type MatchStatus struct {
	InMatch   bool   `json:"inMatch"`
	SessionID string `json:"sessionId,omitempty"`
	GameMode  string `json:"gameMode,omitempty"`
}

// CheckUserInMatch reports whether the player currently holds an active
// session reservation, cleaning up reservations left behind by
// completed sessions.
func (s *MatchService) CheckUserInMatch(ctx context.Context, playerID string) (*MatchStatus, error) {
	reserved, err := s.guard.Lookup(ctx, playerID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up reservation: %v", err)
	}
	if reserved == "" {
		return &MatchStatus{}, nil
	}

	sessionID := s.aliases.Resolve(reserved)
	session, err := s.repository.GetSession(ctx, sessionID)
	if err != nil {
		if repositories.IsNotFound(err) {
			s.releaseQuietly(ctx, playerID, reserved)
			return &MatchStatus{}, nil
		}
		return nil, err
	}
	if session.RedirectTo != "" {
		sessionID = session.RedirectTo
		session, err = s.repository.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
	}
	if session.IsTerminal() {
		s.releaseQuietly(ctx, playerID, reserved)
		return &MatchStatus{}, nil
	}

	return &MatchStatus{
		InMatch:   true,
		SessionID: sessionID,
		GameMode:  session.GameMode,
	}, nil
}

// mutate runs the load, apply, conditional write loop for one
// transition. It follows promotion redirects and retries version
// conflicts up to the configured bound.
func (s *MatchService) mutate(ctx context.Context, sessionID string, fn func(*gametypes.Session) error) (*gametypes.Session, error) {
	for attempt := 0; attempt < s.writeAttempts; attempt++ {
		session, err := s.repository.GetSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if session.RedirectTo != "" {
			// Stale provisional id: follow the promoted session.
			sessionID = session.RedirectTo
			continue
		}

		next := session.Copy()
		if err := fn(next); err != nil {
			return nil, err
		}

		if err := s.repository.UpdateSession(ctx, next); err != nil {
			if repositories.IsConflict(err) {
				continue
			}
			return nil, err
		}

		s.syncBus.PublishSnapshot(next)
		return next, nil
	}

	return nil, &ErrWriteConflict{}
}

func (s *MatchService) releaseIfTerminal(ctx context.Context, session *gametypes.Session) {
	if !session.IsTerminal() {
		return
	}
	for _, player := range []gametypes.PlayerSlot{session.Host, session.Opponent} {
		if player.IsBot {
			continue
		}
		s.releaseQuietly(ctx, player.PlayerID, session.ID)
	}
}

func (s *MatchService) releaseQuietly(ctx context.Context, playerID, sessionID string) {
	if err := s.guard.Release(ctx, playerID, sessionID); err != nil {
		log.Error("Failed to release reservation for player %s: %v", playerID, err)
	}
}
