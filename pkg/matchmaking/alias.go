package matchmaking

import (
	"sync"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/queue"
)

const (
	// aliasBufferSize bounds the turn actions buffered per session
	// during a promotion window. The window lasts a handful of writes,
	// so this never fills in practice.
	aliasBufferSize = 64
)

// AliasTable maps promoted provisional session ids to their
// authoritative ids, and buffers turn actions that arrive during the
// short promotion window so they can be replayed against the new id
// exactly once.
type AliasTable struct {
	lock    sync.Mutex
	aliases map[string]string
	pending map[string]queue.Queue
}

func NewAliasTable() *AliasTable {
	return &AliasTable{
		aliases: make(map[string]string),
		pending: make(map[string]queue.Queue),
	}
}

// Resolve follows the alias chain and returns the canonical session id.
func (t *AliasTable) Resolve(sessionID string) string {
	t.lock.Lock()
	defer t.lock.Unlock()

	for {
		next, ok := t.aliases[sessionID]
		if !ok {
			return sessionID
		}
		sessionID = next
	}
}

// BeginPromotion opens the promotion window for a provisional id.
// Actions submitted against it are buffered until CompletePromotion or
// CancelPromotion closes the window.
func (t *AliasTable) BeginPromotion(provisionalID string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	if _, ok := t.pending[provisionalID]; !ok {
		t.pending[provisionalID] = queue.NewMemoryQueue(aliasBufferSize)
	}
}

// BufferAction buffers an action if its session is inside a promotion
// window. It reports whether the action was taken.
func (t *AliasTable) BufferAction(sessionID string, action gametypes.TurnAction) bool {
	t.lock.Lock()
	defer t.lock.Unlock()

	q, ok := t.pending[sessionID]
	if !ok {
		return false
	}
	if err := q.Enqueue(action); err != nil {
		// buffer full: let the caller apply it directly
		return false
	}
	return true
}

// Drop removes the alias entry for a promoted id. Called once the
// tombstoned provisional document is deleted, when nothing can resolve
// through the old id anymore.
func (t *AliasTable) Drop(sessionID string) {
	t.lock.Lock()
	defer t.lock.Unlock()

	delete(t.aliases, sessionID)
}

// CompletePromotion records the alias and closes the window, returning
// the actions buffered while it was open.
func (t *AliasTable) CompletePromotion(provisionalID, authoritativeID string) []gametypes.TurnAction {
	t.lock.Lock()
	defer t.lock.Unlock()

	t.aliases[provisionalID] = authoritativeID
	return t.drainLocked(provisionalID)
}

// CancelPromotion closes the window without recording an alias and
// returns anything buffered so the caller can apply or discard it.
func (t *AliasTable) CancelPromotion(provisionalID string) []gametypes.TurnAction {
	t.lock.Lock()
	defer t.lock.Unlock()

	return t.drainLocked(provisionalID)
}

func (t *AliasTable) drainLocked(provisionalID string) []gametypes.TurnAction {
	q, ok := t.pending[provisionalID]
	if !ok {
		return nil
	}
	delete(t.pending, provisionalID)

	items, _ := q.ReadAllMessages()
	actions := make([]gametypes.TurnAction, 0, len(items))
	for _, item := range items {
		if action, ok := item.(gametypes.TurnAction); ok {
			actions = append(actions, action)
		}
	}
	return actions
}
