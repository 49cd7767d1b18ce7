package matchmaking

import (
	"context"
	"sync"
)

// SessionGuard maintains the per-player index of "currently in an active
// session". It is what prevents the double-matchmaking race where a
// retrying client creates two sessions. Implementations must be
// thread-safe.
type SessionGuard interface {
	// Reserve atomically records playerID as being in sessionID if the
	// player has no reservation. It returns the session the player is
	// reserved for after the call: the new sessionID if the
	// reservation was taken, or the pre-existing one if not.
	Reserve(ctx context.Context, playerID, sessionID string) (string, error)
	// Reassign moves a reservation from one session id to another
	// (promotion). It is a no-op if the player is not reserved for
	// fromID.
	Reassign(ctx context.Context, playerID, fromID, toID string) error
	// Release clears the reservation if it still points at sessionID.
	// Releasing twice, or releasing a reservation that has moved on,
	// is a no-op, not an error.
	Release(ctx context.Context, playerID, sessionID string) error
	// Lookup returns the session the player is reserved for, or "".
	Lookup(ctx context.Context, playerID string) (string, error)
}

// MemoryGuard is an in-process SessionGuard.
type MemoryGuard struct {
	lock         sync.Mutex
	reservations map[string]string
}

func NewMemoryGuard() *MemoryGuard {
	return &MemoryGuard{
		reservations: make(map[string]string),
	}
}

func (g *MemoryGuard) Reserve(ctx context.Context, playerID, sessionID string) (string, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	if existing, ok := g.reservations[playerID]; ok {
		return existing, nil
	}
	g.reservations[playerID] = sessionID
	return sessionID, nil
}

func (g *MemoryGuard) Reassign(ctx context.Context, playerID, fromID, toID string) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.reservations[playerID] == fromID {
		g.reservations[playerID] = toID
	}
	return nil
}

func (g *MemoryGuard) Release(ctx context.Context, playerID, sessionID string) error {
	g.lock.Lock()
	defer g.lock.Unlock()

	if g.reservations[playerID] == sessionID {
		delete(g.reservations, playerID)
	}
	return nil
}

func (g *MemoryGuard) Lookup(ctx context.Context, playerID string) (string, error) {
	g.lock.Lock()
	defer g.lock.Unlock()

	return g.reservations[playerID], nil
}
