package bus

import (
	"context"
	"sync"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/cbodonnell/hotdice/pkg/log"
)

const (
	// SubscriberBufferSize is the per-subscriber event buffer. A
	// subscriber that falls this far behind loses intermediate
	// snapshots but keeps version-monotonic ordering.
	SubscriberBufferSize = 64
)

type subscriber struct {
	id          uint64
	sessionID   string
	ch          chan Event
	lastVersion int64
	closed      bool
}

// MemoryBus is an in-process Bus. Sessions are fully independent:
// ordering is only guaranteed within one session.
type MemoryBus struct {
	lock     sync.Mutex
	nextID   uint64
	sessions map[string]map[uint64]*subscriber
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		sessions: make(map[string]map[uint64]*subscriber),
	}
}

func (b *MemoryBus) Subscribe(ctx context.Context, sessionID string, initial *gametypes.Session) (<-chan Event, func()) {
	b.lock.Lock()
	defer b.lock.Unlock()

	b.nextID++
	sub := &subscriber{
		id:        b.nextID,
		sessionID: sessionID,
		ch:        make(chan Event, SubscriberBufferSize),
	}
	if b.sessions[sessionID] == nil {
		b.sessions[sessionID] = make(map[uint64]*subscriber)
	}
	b.sessions[sessionID][sub.id] = sub

	if initial != nil {
		b.deliverLocked(sub, Event{
			Type:      EventTypeSnapshot,
			SessionID: sessionID,
			Snapshot:  initial.Copy(),
		})
	}

	cancel := func() {
		b.lock.Lock()
		defer b.lock.Unlock()
		b.removeLocked(sub)
	}

	if ctx != nil && ctx.Done() != nil {
		go func() {
			<-ctx.Done()
			cancel()
		}()
	}

	return sub.ch, cancel
}

func (b *MemoryBus) PublishSnapshot(session *gametypes.Session) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, sub := range b.sessions[session.ID] {
		b.deliverLocked(sub, Event{
			Type:      EventTypeSnapshot,
			SessionID: session.ID,
			Snapshot:  session.Copy(),
		})
	}
}

func (b *MemoryBus) PublishRedirect(fromID, toID string, snapshot *gametypes.Session) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, sub := range b.sessions[fromID] {
		b.deliverLocked(sub, Event{
			Type:       EventTypeRedirect,
			SessionID:  fromID,
			RedirectTo: toID,
		})
		if sub.closed {
			continue
		}

		// Move the subscriber onto the promoted session so the stream
		// continues without a visible discontinuity.
		delete(b.sessions[fromID], sub.id)
		sub.sessionID = toID
		sub.lastVersion = 0
		if b.sessions[toID] == nil {
			b.sessions[toID] = make(map[uint64]*subscriber)
		}
		b.sessions[toID][sub.id] = sub

		if snapshot != nil {
			b.deliverLocked(sub, Event{
				Type:      EventTypeSnapshot,
				SessionID: toID,
				Snapshot:  snapshot.Copy(),
			})
		}
	}
	delete(b.sessions, fromID)
}

func (b *MemoryBus) PublishAborted(sessionID, reason string) {
	b.lock.Lock()
	defer b.lock.Unlock()

	for _, sub := range b.sessions[sessionID] {
		b.deliverLocked(sub, Event{
			Type:      EventTypeAborted,
			SessionID: sessionID,
			Reason:    reason,
		})
	}
}

// deliverLocked sends an event to a subscriber, dropping stale snapshots
// so every subscriber observes a monotonically increasing version
// sequence regardless of publish interleaving. A subscriber too slow to
// take a redirect or aborted event is closed instead: losing a control
// event would leave its stream silently out of sync, closing makes the
// client resubscribe.
func (b *MemoryBus) deliverLocked(sub *subscriber, event Event) {
	if sub.closed {
		return
	}
	if event.Type == EventTypeSnapshot {
		if event.Snapshot.Version <= sub.lastVersion {
			return
		}
		sub.lastVersion = event.Snapshot.Version
	}
	select {
	case sub.ch <- event:
	default:
		if event.Type == EventTypeSnapshot {
			log.Warn("Dropping snapshot for slow subscriber of session %s", sub.sessionID)
			return
		}
		log.Warn("Closing slow subscriber of session %s on %s event", sub.sessionID, event.Type)
		b.removeLocked(sub)
	}
}

func (b *MemoryBus) removeLocked(sub *subscriber) {
	if sub.closed {
		return
	}
	sub.closed = true
	if subs, ok := b.sessions[sub.sessionID]; ok {
		delete(subs, sub.id)
		if len(subs) == 0 {
			delete(b.sessions, sub.sessionID)
		}
	}
	close(sub.ch)
}
