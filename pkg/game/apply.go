package game

import (
	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
)

// The functions in this file are the match state machine: pure
// transitions over a session document. They mutate the passed copy and
// never touch storage; MatchService owns the load, apply, conditional
// write loop around them.

// SnakeEyesBonus is awarded for a double-1 roll without ending the turn.
const SnakeEyesBonus = 20

// ValidateTurnAction applies the checks shared by every turn action:
// membership, phase, turn ownership and the per-action nonce guard.
func ValidateTurnAction(s *gametypes.Session, playerID string, kind gametypes.TurnActionKind, nonce string) error {
	player, ok := s.PlayerByID(playerID)
	if !ok {
		return &ErrInvalidTurnAction{Reason: "player is not part of this session"}
	}
	if s.RedirectTo != "" {
		return &ErrInvalidTurnAction{Reason: "session has been promoted"}
	}
	if nonce != "" && nonce == player.LastNonce {
		return &ErrDuplicateAction{}
	}

	switch kind {
	case gametypes.TurnActionChoice:
		if s.Phase != gametypes.PhaseTurnDecider {
			return &ErrInvalidTurnAction{Reason: "turn decider is over"}
		}
		if s.Chooser().PlayerID != playerID {
			return &ErrInvalidTurnAction{Reason: "player is not the chooser"}
		}
		if s.TurnDecider.Choice != "" {
			return &ErrInvalidTurnAction{Reason: "choice already made"}
		}
	case gametypes.TurnActionRoll, gametypes.TurnActionBank:
		if s.Phase != gametypes.PhaseGameplay {
			return &ErrInvalidTurnAction{Reason: "session is not in gameplay"}
		}
		if !player.TurnActive {
			return &ErrInvalidTurnAction{Reason: "not your turn"}
		}
		if s.Dice.IsRolling {
			return &ErrInvalidTurnAction{Reason: "a roll is in progress"}
		}
		if kind == gametypes.TurnActionBank && s.TurnScore <= 0 {
			return &ErrInvalidTurnAction{Reason: "nothing to bank"}
		}
	case gametypes.TurnActionLeave:
		if s.Phase == gametypes.PhaseGameOver {
			return &ErrInvalidTurnAction{Reason: "session is already over"}
		}
	default:
		return &ErrInvalidTurnAction{Reason: "unknown action"}
	}

	return nil
}

// ApplyDeciderChoice records the chooser's odd/even prediction against a
// server-rolled die and transitions the session into gameplay. A correct
// prediction gives the chooser the first turn, an incorrect one flips it
// to the other player.
func ApplyDeciderChoice(s *gametypes.Session, playerID, choice string, die int, nonce string) error {
	if err := ValidateTurnAction(s, playerID, gametypes.TurnActionChoice, nonce); err != nil {
		return err
	}
	if choice != gametypes.DeciderChoiceOdd && choice != gametypes.DeciderChoiceEven {
		return &ErrInvalidTurnAction{Reason: "choice must be odd or even"}
	}

	s.TurnDecider.Choice = choice
	s.TurnDecider.DieValue = die

	correct := (die%2 == 1) == (choice == gametypes.DeciderChoiceOdd)
	chooser := s.Chooser()
	first := chooser
	if !correct {
		first = s.OtherPlayer(chooser.PlayerID)
	}

	s.Phase = gametypes.PhaseGameplay
	s.Host.TurnActive = s.Host.PlayerID == first.PlayerID
	s.Opponent.TurnActive = s.Opponent.PlayerID == first.PlayerID
	s.TurnScore = 0
	s.Dice = gametypes.Dice{RollPhase: gametypes.RollPhaseIdle}

	chooser.LastNonce = nonce
	return nil
}

// BeginRoll reveals the first die and marks the session mid-roll. The
// second die is committed separately so subscribers observe the same
// two-step reveal the dice state encodes.
func BeginRoll(s *gametypes.Session, playerID string, dieOne int, nonce string) error {
	if err := ValidateTurnAction(s, playerID, gametypes.TurnActionRoll, nonce); err != nil {
		return err
	}

	player, _ := s.PlayerByID(playerID)
	s.Dice.DiceOne = dieOne
	s.Dice.DiceTwo = 0
	s.Dice.RollPhase = gametypes.RollPhaseDice1
	s.Dice.IsRolling = true
	s.LastOutcome = ""
	player.LastNonce = nonce
	return nil
}

// CompleteRoll reveals the second die and scores the roll:
//   - a single 1 clears the turn score and passes the turn
//   - double 6 clears the player's cumulative score and passes the turn
//   - double 1 awards the snake-eyes bonus and keeps the turn
//   - anything else accumulates the dice sum and keeps the turn
//
// Reaching the round objective finalizes the session immediately;
// banking is not required to win.
func CompleteRoll(s *gametypes.Session, playerID string, dieTwo int) error {
	player, ok := s.PlayerByID(playerID)
	if !ok {
		return &ErrInvalidTurnAction{Reason: "player is not part of this session"}
	}
	if s.Phase != gametypes.PhaseGameplay || !s.Dice.IsRolling || !player.TurnActive {
		return &ErrInvalidTurnAction{Reason: "no roll in progress"}
	}

	s.Dice.DiceTwo = dieTwo
	s.Dice.RollPhase = gametypes.RollPhaseDice2
	s.Dice.IsRolling = false

	d1, d2 := s.Dice.DiceOne, s.Dice.DiceTwo
	player.Stats.LastDiceSum = d1 + d2
	if d1 == d2 {
		player.Stats.Doubles++
	}

	switch {
	case d1 == 1 && d2 == 1:
		s.TurnScore += SnakeEyesBonus
	case d1 == 6 && d2 == 6:
		player.Score = 0
		s.TurnScore = 0
		s.LastOutcome = gametypes.OutcomeBusted
		passTurn(s)
		return nil
	case d1 == 1 || d2 == 1:
		s.TurnScore = 0
		s.LastOutcome = gametypes.OutcomeTurnOver
		passTurn(s)
		return nil
	default:
		s.TurnScore += d1 + d2
	}

	if s.TurnScore > player.Stats.BiggestTurnScore {
		player.Stats.BiggestTurnScore = s.TurnScore
	}

	if player.Score+s.TurnScore >= s.RoundObjective {
		player.Score += s.TurnScore
		s.TurnScore = 0
		finalize(s, player.PlayerID, gametypes.GameOverReasonObjective)
	}

	return nil
}

// ApplyBank banks the accumulated turn score and passes the turn. The
// win condition is re-checked identically to the roll path.
func ApplyBank(s *gametypes.Session, playerID, nonce string) error {
	if err := ValidateTurnAction(s, playerID, gametypes.TurnActionBank, nonce); err != nil {
		return err
	}

	player, _ := s.PlayerByID(playerID)
	player.Score += s.TurnScore
	player.Stats.Banks++
	s.TurnScore = 0
	player.LastNonce = nonce

	if player.Score >= s.RoundObjective {
		finalize(s, player.PlayerID, gametypes.GameOverReasonObjective)
		return nil
	}

	passTurn(s)
	return nil
}

// ApplyForfeit ends the session because a player left. The remaining
// player wins.
func ApplyForfeit(s *gametypes.Session, leaverID string) error {
	if err := ValidateTurnAction(s, leaverID, gametypes.TurnActionLeave, ""); err != nil {
		return err
	}

	finalize(s, s.OtherPlayer(leaverID).PlayerID, gametypes.GameOverReasonForfeit)
	return nil
}

// ClearStuckRoll resets a session left mid-roll, e.g. when the write
// revealing the second die never landed. The in-flight roll is
// discarded; the turn and its score are untouched.
func ClearStuckRoll(s *gametypes.Session) error {
	if s.Phase != gametypes.PhaseGameplay || !s.Dice.IsRolling {
		return &ErrInvalidTurnAction{Reason: "no roll in progress"}
	}
	s.Dice = gametypes.Dice{RollPhase: gametypes.RollPhaseIdle}
	s.LastOutcome = ""
	return nil
}

// ApplyAbandon ends a session nobody is playing anymore. There is no
// winner.
func ApplyAbandon(s *gametypes.Session) error {
	if s.Phase == gametypes.PhaseGameOver {
		return &ErrInvalidTurnAction{Reason: "session is already over"}
	}
	finalize(s, "", gametypes.GameOverReasonAbandoned)
	return nil
}

func passTurn(s *gametypes.Session) {
	s.Host.TurnActive = !s.Host.TurnActive
	s.Opponent.TurnActive = !s.Opponent.TurnActive
}

func finalize(s *gametypes.Session, winnerID, reason string) {
	s.Phase = gametypes.PhaseGameOver
	s.Winner = winnerID
	s.GameOverReason = reason
	s.Host.TurnActive = false
	s.Opponent.TurnActive = false
	s.Dice.IsRolling = false
}
