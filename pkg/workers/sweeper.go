package workers

import (
	"context"
	"time"

	"github.com/cbodonnell/hotdice/pkg/bus"
	"github.com/cbodonnell/hotdice/pkg/game"
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/matchmaking"
	"github.com/cbodonnell/hotdice/pkg/repositories"
)

const (
	DefaultSweepInterval = 1 * time.Minute
	// DefaultIdleTimeout is how long a live session may go without a
	// write before it is abandoned.
	DefaultIdleTimeout = 10 * time.Minute
	// DefaultFinishedRetention is how long finished sessions are kept
	// around for late subscribers before deletion.
	DefaultFinishedRetention = 5 * time.Minute
	// DefaultRollGracePeriod is how long a session may sit mid-roll
	// before the sweeper clears the rolling flag. A roll normally
	// completes within one request.
	DefaultRollGracePeriod = 30 * time.Second

	sweepBatchSize = 100
)

// SweepWorker reclaims sessions nobody is playing anymore: live
// sessions past the idle timeout are abandoned, finished sessions past
// retention are deleted and sessions stuck mid-roll past the grace
// period are unstuck. Reservations are released with the session.
type SweepWorker struct {
	repository        repositories.Repository
	syncBus           bus.Bus
	guard             matchmaking.SessionGuard
	aliases           *matchmaking.AliasTable
	interval          time.Duration
	idleTimeout       time.Duration
	finishedRetention time.Duration
	rollGracePeriod   time.Duration
}

type NewSweepWorkerOptions struct {
	Repository repositories.Repository
	SyncBus    bus.Bus
	Guard      matchmaking.SessionGuard
	// Aliases is optional. When set, deleting a tombstoned session also
	// drops its alias entry.
	Aliases *matchmaking.AliasTable
	// Interval, IdleTimeout, FinishedRetention and RollGracePeriod
	// default to the package constants when zero.
	Interval          time.Duration
	IdleTimeout       time.Duration
	FinishedRetention time.Duration
	RollGracePeriod   time.Duration
}

func NewSweepWorker(opts NewSweepWorkerOptions) *SweepWorker {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultSweepInterval
	}
	idleTimeout := opts.IdleTimeout
	if idleTimeout == 0 {
		idleTimeout = DefaultIdleTimeout
	}
	finishedRetention := opts.FinishedRetention
	if finishedRetention == 0 {
		finishedRetention = DefaultFinishedRetention
	}
	rollGracePeriod := opts.RollGracePeriod
	if rollGracePeriod == 0 {
		rollGracePeriod = DefaultRollGracePeriod
	}
	return &SweepWorker{
		repository:        opts.Repository,
		syncBus:           opts.SyncBus,
		guard:             opts.Guard,
		aliases:           opts.Aliases,
		interval:          interval,
		idleTimeout:       idleTimeout,
		finishedRetention: finishedRetention,
		rollGracePeriod:   rollGracePeriod,
	}
}

// Start sweeps on the configured interval until the context is
// cancelled.
func (w *SweepWorker) Start(ctx context.Context) {
	log.Info("Sweep worker started")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("Sweep worker stopped")
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep runs one reclamation pass.
func (w *SweepWorker) Sweep(ctx context.Context) {
	now := time.Now()
	cutoff := w.idleTimeout
	if w.finishedRetention < cutoff {
		cutoff = w.finishedRetention
	}
	if w.rollGracePeriod < cutoff {
		cutoff = w.rollGracePeriod
	}
	sessions, err := w.repository.ListIdleSessions(ctx, now.Add(-cutoff).UnixMilli(), sweepBatchSize)
	if err != nil {
		log.Error("Failed to list idle sessions: %v", err)
		return
	}

	for _, session := range sessions {
		idleFor := time.Duration(now.UnixMilli()-session.UpdatedAt) * time.Millisecond
		if session.IsTerminal() || session.RedirectTo != "" {
			if idleFor < w.finishedRetention {
				continue
			}
			w.remove(ctx, session)
			continue
		}
		if idleFor < w.idleTimeout {
			if session.Dice.IsRolling && idleFor >= w.rollGracePeriod {
				w.clearStuckRoll(ctx, session)
			}
			continue
		}
		w.abandon(ctx, session)
	}
}

// clearStuckRoll unsticks a session whose second roll write never
// landed, so the players can keep playing instead of waiting out the
// idle timeout.
func (w *SweepWorker) clearStuckRoll(ctx context.Context, session *gametypes.Session) {
	next := session.Copy()
	if err := game.ClearStuckRoll(next); err != nil {
		return
	}
	if err := w.repository.UpdateSession(ctx, next); err != nil {
		if repositories.IsConflict(err) {
			// Someone played after we listed it, leave it be.
			return
		}
		log.Error("Failed to clear stuck roll on session %s: %v", session.ID, err)
		return
	}
	log.Info("Cleared stuck roll on session %s", session.ID)
	w.syncBus.PublishSnapshot(next)
}

func (w *SweepWorker) abandon(ctx context.Context, session *gametypes.Session) {
	next := session.Copy()
	if err := game.ApplyAbandon(next); err != nil {
		log.Error("Failed to abandon session %s: %v", session.ID, err)
		return
	}
	if err := w.repository.UpdateSession(ctx, next); err != nil {
		if repositories.IsConflict(err) {
			// Someone played after we listed it, leave it be.
			return
		}
		log.Error("Failed to abandon session %s: %v", session.ID, err)
		return
	}
	log.Info("Abandoned idle session %s", session.ID)
	w.syncBus.PublishSnapshot(next)
	w.releaseReservations(ctx, next)
}

func (w *SweepWorker) remove(ctx context.Context, session *gametypes.Session) {
	w.releaseReservations(ctx, session)
	if err := w.repository.DeleteSession(ctx, session.ID); err != nil && !repositories.IsNotFound(err) {
		log.Error("Failed to delete session %s: %v", session.ID, err)
		return
	}
	if session.RedirectTo != "" && w.aliases != nil {
		// The tombstone is gone, nothing can submit against the old id
		// anymore.
		w.aliases.Drop(session.ID)
	}
	log.Debug("Deleted finished session %s", session.ID)
}

func (w *SweepWorker) releaseReservations(ctx context.Context, session *gametypes.Session) {
	for _, player := range []gametypes.PlayerSlot{session.Host, session.Opponent} {
		if player.IsBot {
			continue
		}
		if err := w.guard.Release(ctx, player.PlayerID, session.ID); err != nil {
			log.Error("Failed to release reservation for player %s: %v", player.PlayerID, err)
		}
	}
}
