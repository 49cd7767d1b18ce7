package workers

import (
	"context"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/log"
	"github.com/cbodonnell/hotdice/pkg/matchmaking"
)

// ActionReplayer applies turn actions that were buffered while a
// session was being promoted. MatchService satisfies this.
type ActionReplayer interface {
	Submit(ctx context.Context, action gametypes.TurnAction) error
}

// PromotionWorker drains promotion requests produced by the session
// factory and upgrades provisional sessions to authoritative ones.
type PromotionWorker struct {
	factory      *matchmaking.Factory
	replayer     ActionReplayer
	promoteQueue <-chan matchmaking.PromoteRequest
}

type NewPromotionWorkerOptions struct {
	Factory      *matchmaking.Factory
	Replayer     ActionReplayer
	PromoteQueue <-chan matchmaking.PromoteRequest
}

func NewPromotionWorker(opts NewPromotionWorkerOptions) *PromotionWorker {
	return &PromotionWorker{
		factory:      opts.Factory,
		replayer:     opts.Replayer,
		promoteQueue: opts.PromoteQueue,
	}
}

// Start processes promotion requests until the context is cancelled.
func (w *PromotionWorker) Start(ctx context.Context) {
	log.Info("Promotion worker started")
	for {
		select {
		case <-ctx.Done():
			log.Info("Promotion worker stopped")
			return
		case request := <-w.promoteQueue:
			w.promote(ctx, request)
		}
	}
}

func (w *PromotionWorker) promote(ctx context.Context, request matchmaking.PromoteRequest) {
	result, err := w.factory.Promote(ctx, request)
	if err != nil {
		log.Error("Failed to promote session %s: %v", request.ProvisionalID, err)
		return
	}
	if result.Aborted {
		log.Warn("Promotion of session %s aborted", request.ProvisionalID)
		return
	}
	if result.AuthoritativeID == "" {
		// Authoritative backend unavailable, session stays optimistic.
		return
	}

	log.Info("Promoted session %s to %s", request.ProvisionalID, result.AuthoritativeID)
	for _, action := range result.Replay {
		action.SessionID = result.AuthoritativeID
		if err := w.replayer.Submit(ctx, action); err != nil {
			log.Error("Failed to replay %s action on session %s: %v", action.Kind, result.AuthoritativeID, err)
		}
	}
}
