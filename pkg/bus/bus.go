package bus

import (
	"context"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
)

// EventType identifies a session sync event.
type EventType string

const (
	// EventTypeSnapshot carries a full session snapshot after an
	// accepted mutation (and once on subscribe).
	EventTypeSnapshot EventType = "snapshot"
	// EventTypeRedirect tells subscribers of a provisional session to
	// follow the promoted authoritative session id.
	EventTypeRedirect EventType = "redirect"
	// EventTypeAborted tells subscribers the session was torn down
	// without completing (e.g. a promotion conflict).
	EventTypeAborted EventType = "aborted"
)

// Event is delivered to session subscribers.
type Event struct {
	Type      EventType          `json:"type"`
	SessionID string             `json:"sessionId"`
	Snapshot  *gametypes.Session `json:"snapshot,omitempty"`
	// RedirectTo is set for redirect events.
	RedirectTo string `json:"redirectTo,omitempty"`
	// Reason is set for aborted events.
	Reason string `json:"reason,omitempty"`
}

// Bus delivers session-state deltas to subscribed clients. All
// subscribers of one session observe snapshots in the same
// (version-monotonic) order. Implementations must be thread-safe.
type Bus interface {
	// Subscribe registers a subscriber for a session. If initial is
	// non-nil it is delivered as the first snapshot. The returned
	// cancel function is idempotent and does not affect other
	// subscribers.
	Subscribe(ctx context.Context, sessionID string, initial *gametypes.Session) (<-chan Event, func())
	// PublishSnapshot fans a snapshot out to the session's subscribers.
	PublishSnapshot(session *gametypes.Session)
	// PublishRedirect notifies subscribers of fromID to follow toID and
	// moves them onto the new session's channel.
	PublishRedirect(fromID, toID string, snapshot *gametypes.Session)
	// PublishAborted notifies subscribers the session was torn down.
	PublishAborted(sessionID, reason string)
}
