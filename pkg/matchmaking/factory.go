package matchmaking

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/cbodonnell/hotdice/pkg/bus"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/repositories"
	"github.com/google/uuid"
)

const (
	// PromotionWriteAttempts bounds the conditional writes used to
	// tombstone a provisional session during promotion.
	PromotionWriteAttempts = 5
)

// Factory implements the optimistic session strategy: it materializes a
// provisional session synchronously so the caller can proceed, while a
// background worker races the authoritative matchmaking backend to
// promote it. Authoritative failure is permanent fallback, never an
// error the player sees.
type Factory struct {
	repository    repositories.Repository
	syncBus       bus.Bus
	guard         SessionGuard
	authoritative AuthoritativeClient
	aliases       *AliasTable
	promoteChan   chan<- PromoteRequest
}

type NewFactoryOptions struct {
	Repository    repositories.Repository
	SyncBus       bus.Bus
	Guard         SessionGuard
	Authoritative AuthoritativeClient
	Aliases       *AliasTable
	PromoteChan   chan<- PromoteRequest
}

func NewFactory(opts NewFactoryOptions) *Factory {
	return &Factory{
		repository:    opts.Repository,
		syncBus:       opts.SyncBus,
		guard:         opts.Guard,
		authoritative: opts.Authoritative,
		aliases:       opts.Aliases,
		promoteChan:   opts.PromoteChan,
	}
}

type CreateSessionParams struct {
	GameMode  string
	MatchType gametypes.MatchType
	Host      gametypes.Profile
	Opponent  gametypes.Profile
}

// SessionHandle is what a match request returns. Existing marks the
// duplicate-request case where the host was already reserved for a
// session and is redirected to it.
type SessionHandle struct {
	SessionID    string
	IsOptimistic bool
	Existing     bool
}

// PromoteRequest is handed to the promotion worker after a provisional
// session is created.
type PromoteRequest struct {
	ProvisionalID string
	GameMode      string
	MatchType     gametypes.MatchType
	Players       [2]gametypes.Profile
}

// PromoteResult describes a finished promotion attempt.
type PromoteResult struct {
	// AuthoritativeID is empty when the session stayed optimistic.
	AuthoritativeID string
	// Replay holds actions buffered during the promotion window. The
	// caller replays them against the authoritative id.
	Replay []gametypes.TurnAction
	// Aborted marks a promotion conflict: the provisional session was
	// gone or terminal by the time the authoritative one arrived.
	Aborted bool
}

// CreateSession returns synchronously with a usable handle. The
// provisional session is written before returning; the authoritative
// upgrade happens in the background.
func (f *Factory) CreateSession(ctx context.Context, params CreateSessionParams) (*SessionHandle, error) {
	provisionalID := uuid.NewString()

	reserved, err := f.guard.Reserve(ctx, params.Host.PlayerID, provisionalID)
	if err != nil {
		return nil, fmt.Errorf("failed to reserve host: %v", err)
	}
	if reserved != provisionalID {
		// Duplicate match request: redirect to the session the host is
		// already in.
		return &SessionHandle{SessionID: reserved, Existing: true}, nil
	}

	if !params.Opponent.IsBot {
		opponentReserved, err := f.guard.Reserve(ctx, params.Opponent.PlayerID, provisionalID)
		if err != nil {
			f.releaseQuietly(ctx, params.Host.PlayerID, provisionalID)
			return nil, fmt.Errorf("failed to reserve opponent: %v", err)
		}
		if opponentReserved != provisionalID {
			f.releaseQuietly(ctx, params.Host.PlayerID, provisionalID)
			return nil, &ErrAlreadyInMatch{PlayerID: params.Opponent.PlayerID, SessionID: opponentReserved}
		}
	}

	session := newSession(provisionalID, params)
	if err := f.repository.InsertSession(ctx, session); err != nil {
		f.releaseQuietly(ctx, params.Host.PlayerID, provisionalID)
		if !params.Opponent.IsBot {
			f.releaseQuietly(ctx, params.Opponent.PlayerID, provisionalID)
		}
		return nil, fmt.Errorf("failed to insert session: %v", err)
	}
	f.syncBus.PublishSnapshot(session)

	select {
	case f.promoteChan <- PromoteRequest{
		ProvisionalID: provisionalID,
		GameMode:      params.GameMode,
		MatchType:     params.MatchType,
		Players:       [2]gametypes.Profile{params.Host, params.Opponent},
	}:
	default:
		log.Warn("Promotion queue is full, session %s stays optimistic", provisionalID)
	}

	return &SessionHandle{SessionID: provisionalID, IsOptimistic: true}, nil
}

// Promote runs one promotion attempt. It is called by the promotion
// worker, never by the request path.
func (f *Factory) Promote(ctx context.Context, req PromoteRequest) (*PromoteResult, error) {
	authoritativeID, err := f.authoritative.CreateOrFind(ctx, req.GameMode, req.MatchType, req.Players)
	if err != nil {
		if IsAuthoritativeUnavailable(err) {
			log.Info("Session %s stays on the optimistic path: %v", req.ProvisionalID, err)
			return &PromoteResult{}, nil
		}
		return nil, fmt.Errorf("failed to reach matchmaking backend: %v", err)
	}
	if authoritativeID == req.ProvisionalID {
		return &PromoteResult{}, nil
	}

	// From here on, actions against the provisional id are buffered for
	// replay so none is lost across the id swap.
	f.aliases.BeginPromotion(req.ProvisionalID)

	session, err := f.repository.GetSession(ctx, req.ProvisionalID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return f.abortPromotion(ctx, req), nil
		}
		f.aliases.CancelPromotion(req.ProvisionalID)
		return nil, fmt.Errorf("failed to load provisional session: %v", err)
	}
	if session.IsTerminal() {
		return f.abortPromotion(ctx, req), nil
	}

	promoted := session.Copy()
	promoted.ID = authoritativeID
	promoted.IsOptimistic = false
	promoted.RedirectTo = ""
	promoted.Version = 1
	if err := f.repository.InsertSession(ctx, promoted); err != nil {
		f.aliases.CancelPromotion(req.ProvisionalID)
		return nil, fmt.Errorf("failed to insert promoted session: %v", err)
	}

	// Tombstone the provisional document. A conditional-write conflict
	// here means gameplay advanced during the copy: carry the newer
	// state over and retry.
	for attempt := 0; ; attempt++ {
		session.RedirectTo = authoritativeID
		err := f.repository.UpdateSession(ctx, session)
		if err == nil {
			break
		}
		if !repositories.IsConflict(err) || attempt >= PromotionWriteAttempts {
			f.aliases.CancelPromotion(req.ProvisionalID)
			return nil, fmt.Errorf("failed to tombstone provisional session: %v", err)
		}
		session, err = f.repository.GetSession(ctx, req.ProvisionalID)
		if err != nil {
			f.aliases.CancelPromotion(req.ProvisionalID)
			return nil, fmt.Errorf("failed to reload provisional session: %v", err)
		}
		if session.IsTerminal() {
			f.repository.DeleteSession(ctx, authoritativeID)
			return f.abortPromotion(ctx, req), nil
		}
		refreshed := session.Copy()
		refreshed.ID = authoritativeID
		refreshed.IsOptimistic = false
		refreshed.RedirectTo = ""
		refreshed.Version = promoted.Version
		if err := f.repository.UpdateSession(ctx, refreshed); err != nil {
			f.aliases.CancelPromotion(req.ProvisionalID)
			return nil, fmt.Errorf("failed to refresh promoted session: %v", err)
		}
		promoted = refreshed
	}

	for _, player := range req.Players {
		if player.IsBot {
			continue
		}
		if err := f.guard.Reassign(ctx, player.PlayerID, req.ProvisionalID, authoritativeID); err != nil {
			log.Error("Failed to reassign reservation for player %s: %v", player.PlayerID, err)
		}
	}

	replay := f.aliases.CompletePromotion(req.ProvisionalID, authoritativeID)
	f.syncBus.PublishRedirect(req.ProvisionalID, authoritativeID, promoted)
	log.Info("Promoted session %s to %s", req.ProvisionalID, authoritativeID)

	return &PromoteResult{AuthoritativeID: authoritativeID, Replay: replay}, nil
}

func (f *Factory) abortPromotion(ctx context.Context, req PromoteRequest) *PromoteResult {
	f.aliases.CancelPromotion(req.ProvisionalID)
	f.syncBus.PublishAborted(req.ProvisionalID, (&ErrPromotionConflict{}).Error())
	for _, player := range req.Players {
		if player.IsBot {
			continue
		}
		f.releaseQuietly(ctx, player.PlayerID, req.ProvisionalID)
	}
	return &PromoteResult{Aborted: true}
}

func (f *Factory) releaseQuietly(ctx context.Context, playerID, sessionID string) {
	if err := f.guard.Release(ctx, playerID, sessionID); err != nil {
		log.Error("Failed to release reservation for player %s: %v", playerID, err)
	}
}

func newSession(id string, params CreateSessionParams) *gametypes.Session {
	return &gametypes.Session{
		ID:             id,
		Phase:          gametypes.PhaseTurnDecider,
		GameMode:       params.GameMode,
		MatchType:      params.MatchType,
		RoundObjective: gametypes.ObjectiveForMode(params.GameMode),
		Host: gametypes.PlayerSlot{
			PlayerID:    params.Host.PlayerID,
			DisplayName: params.Host.DisplayName,
			IsBot:       params.Host.IsBot,
		},
		Opponent: gametypes.PlayerSlot{
			PlayerID:    params.Opponent.PlayerID,
			DisplayName: params.Opponent.DisplayName,
			IsBot:       params.Opponent.IsBot,
		},
		Dice: gametypes.Dice{
			RollPhase: gametypes.RollPhaseIdle,
		},
		TurnDecider: gametypes.TurnDecider{
			ChooserIndex: 1 + rand.Intn(2),
		},
		IsOptimistic: true,
		Version:      1,
		UpdatedAt:    time.Now().UnixMilli(),
	}
}
