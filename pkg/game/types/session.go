package types

// Phase is the lifecycle phase of a session. Phases only advance forward.
type Phase string

const (
	PhaseTurnDecider Phase = "turnDecider"
	PhaseGameplay    Phase = "gameplay"
	PhaseGameOver    Phase = "gameOver"
)

// RollPhase tracks which die of the current roll has been revealed.
type RollPhase string

const (
	RollPhaseIdle  RollPhase = "idle"
	RollPhaseDice1 RollPhase = "dice1"
	RollPhaseDice2 RollPhase = "dice2"
)

type MatchType string

const (
	MatchTypeCasual MatchType = "casual"
	MatchTypeRanked MatchType = "ranked"
)

// Game modes and their round objectives.
const (
	GameModeClassic = "classic"
	GameModeSprint  = "sprint"

	ClassicRoundObjective = 100
	SprintRoundObjective  = 50
)

// ObjectiveForMode returns the round objective for a game mode.
// Unknown modes fall back to the classic objective.
func ObjectiveForMode(mode string) int {
	switch mode {
	case GameModeSprint:
		return SprintRoundObjective
	default:
		return ClassicRoundObjective
	}
}

// Turn decider choices.
const (
	DeciderChoiceOdd  = "odd"
	DeciderChoiceEven = "even"
)

// Outcome reasons attached to a session after a roll resolves.
const (
	OutcomeTurnOver = "TURN OVER"
	OutcomeBusted   = "BUSTED"
)

// Game over reasons.
const (
	GameOverReasonObjective = "objective"
	GameOverReasonForfeit   = "forfeit"
	GameOverReasonAbandoned = "abandoned"
	GameOverReasonAborted   = "aborted"
)

// MatchStats are per-player counters maintained across a single session.
type MatchStats struct {
	Banks            int `json:"banks"`
	Doubles          int `json:"doubles"`
	BiggestTurnScore int `json:"biggestTurnScore"`
	LastDiceSum      int `json:"lastDiceSum"`
}

// PlayerSlot is one of the two fixed player slots in a session.
type PlayerSlot struct {
	PlayerID    string     `json:"playerId"`
	DisplayName string     `json:"displayName"`
	Score       int        `json:"score"`
	TurnActive  bool       `json:"turnActive"`
	IsBot       bool       `json:"isBot"`
	Stats       MatchStats `json:"matchStats"`
	// LastNonce is the nonce of the last turn action applied for this
	// player. A resubmission carrying the same nonce is a no-op.
	LastNonce string `json:"lastNonce"`
}

// Dice is the shared dice state for the current roll.
type Dice struct {
	DiceOne   int       `json:"diceOne"`
	DiceTwo   int       `json:"diceTwo"`
	RollPhase RollPhase `json:"rollPhase"`
	IsRolling bool      `json:"isRolling"`
}

// TurnDecider is only meaningful while the session phase is turnDecider.
// ChooserIndex 1 is the host slot, 2 the opponent slot.
type TurnDecider struct {
	ChooserIndex int    `json:"chooserIndex"`
	Choice       string `json:"choice"`
	DieValue     int    `json:"dieValue"`
}

// Session is the central match document. It is the de facto wire schema:
// subscribers receive full copies of it as snapshots. All mutation goes
// through the match state machine and is committed with a conditional
// write keyed on Version.
type Session struct {
	ID             string      `json:"id"`
	Phase          Phase       `json:"phase"`
	GameMode       string      `json:"gameMode"`
	MatchType      MatchType   `json:"matchType"`
	RoundObjective int         `json:"roundObjective"`
	Host           PlayerSlot  `json:"host"`
	Opponent       PlayerSlot  `json:"opponent"`
	Dice           Dice        `json:"dice"`
	TurnScore      int         `json:"turnScore"`
	TurnDecider    TurnDecider `json:"turnDecider"`
	// LastOutcome describes how the most recent roll resolved.
	LastOutcome    string `json:"lastOutcome"`
	Winner         string `json:"winner"`
	GameOverReason string `json:"gameOverReason"`
	// IsOptimistic marks a provisional session created ahead of the
	// authoritative matchmaking backend.
	IsOptimistic bool `json:"isOptimistic"`
	// RedirectTo is set on a provisional document once it has been
	// promoted. Writes against a redirected document are rejected and
	// callers follow the new id.
	RedirectTo string `json:"redirectTo,omitempty"`
	// Version is the concurrency token for conditional writes.
	Version   int64 `json:"version"`
	UpdatedAt int64 `json:"updatedAt"`
}

// Copy returns a deep copy of the session.
func (s *Session) Copy() *Session {
	copy := *s
	return &copy
}

// PlayerByID returns the slot for the given player id.
func (s *Session) PlayerByID(playerID string) (*PlayerSlot, bool) {
	if s.Host.PlayerID == playerID {
		return &s.Host, true
	}
	if s.Opponent.PlayerID == playerID {
		return &s.Opponent, true
	}
	return nil, false
}

// OtherPlayer returns the slot opposite to the given player id.
func (s *Session) OtherPlayer(playerID string) *PlayerSlot {
	if s.Host.PlayerID == playerID {
		return &s.Opponent
	}
	return &s.Host
}

// ActivePlayer returns the slot that currently holds the turn, or nil if
// no player does (e.g. outside of gameplay).
func (s *Session) ActivePlayer() *PlayerSlot {
	if s.Host.TurnActive {
		return &s.Host
	}
	if s.Opponent.TurnActive {
		return &s.Opponent
	}
	return nil
}

// Chooser returns the slot that picks odd or even during the turn decider.
func (s *Session) Chooser() *PlayerSlot {
	if s.TurnDecider.ChooserIndex == 2 {
		return &s.Opponent
	}
	return &s.Host
}

// IsTerminal reports whether the session has reached its final phase.
func (s *Session) IsTerminal() bool {
	return s.Phase == PhaseGameOver
}
