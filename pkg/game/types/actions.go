package types

// TurnActionKind identifies a validated mutation request against a session.
type TurnActionKind string

const (
	TurnActionRoll   TurnActionKind = "roll"
	TurnActionBank   TurnActionKind = "bank"
	TurnActionChoice TurnActionKind = "choice"
	TurnActionLeave  TurnActionKind = "leave"
)

// TurnAction is a player-submitted mutation request. Nonce makes
// resubmissions idempotent; for choice actions Choice carries the
// odd/even prediction.
type TurnAction struct {
	SessionID string         `json:"sessionId"`
	PlayerID  string         `json:"playerId"`
	Kind      TurnActionKind `json:"kind"`
	Choice    string         `json:"choice,omitempty"`
	Nonce     string         `json:"nonce,omitempty"`
}

// Profile is the minimal player identity attached to a session at
// creation time.
type Profile struct {
	PlayerID    string `json:"playerId"`
	DisplayName string `json:"displayName"`
	IsBot       bool   `json:"isBot"`
}
