package matchmaking

import "fmt"

// ErrAlreadyInMatch is returned when a player already holds an active
// session reservation. The caller is expected to redirect to SessionID
// rather than treat this as fatal.
type ErrAlreadyInMatch struct {
	PlayerID  string
	SessionID string
}

func (e *ErrAlreadyInMatch) Error() string {
	return fmt.Sprintf("player %s is already in session %s", e.PlayerID, e.SessionID)
}

func IsAlreadyInMatch(err error) bool {
	_, ok := err.(*ErrAlreadyInMatch)
	return ok
}

// ErrAuthoritativeUnavailable wraps a matchmaking backend failure or
// timeout. It is always recovered by staying on the optimistic path and
// never surfaced to the user.
type ErrAuthoritativeUnavailable struct {
	Err error
}

func (e *ErrAuthoritativeUnavailable) Error() string {
	return fmt.Sprintf("authoritative matchmaking unavailable: %v", e.Err)
}

func IsAuthoritativeUnavailable(err error) bool {
	_, ok := err.(*ErrAuthoritativeUnavailable)
	return ok
}

// ErrPromotionConflict is returned when the authoritative session was
// created but the provisional session was concurrently abandoned.
type ErrPromotionConflict struct {
}

func (e *ErrPromotionConflict) Error() string {
	return "session was abandoned during promotion"
}

func IsPromotionConflict(err error) bool {
	_, ok := err.(*ErrPromotionConflict)
	return ok
}
