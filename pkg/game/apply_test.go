package game

import (
	"testing"

	gametypes "github.com/cbodonnell/hotdice/pkg/game/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gameplaySession() *gametypes.Session {
	return &gametypes.Session{
		ID:             "session-1",
		Phase:          gametypes.PhaseGameplay,
		GameMode:       gametypes.GameModeClassic,
		MatchType:      gametypes.MatchTypeCasual,
		RoundObjective: gametypes.ClassicRoundObjective,
		Host: gametypes.PlayerSlot{
			PlayerID:    "host-1",
			DisplayName: "Host",
			TurnActive:  true,
		},
		Opponent: gametypes.PlayerSlot{
			PlayerID:    "opponent-1",
			DisplayName: "Opponent",
		},
		Dice:    gametypes.Dice{RollPhase: gametypes.RollPhaseIdle},
		Version: 1,
	}
}

func deciderSession(chooserIndex int) *gametypes.Session {
	s := gameplaySession()
	s.Phase = gametypes.PhaseTurnDecider
	s.Host.TurnActive = false
	s.TurnDecider = gametypes.TurnDecider{ChooserIndex: chooserIndex}
	return s
}

func rollBoth(t *testing.T, s *gametypes.Session, playerID string, d1, d2 int, nonce string) error {
	t.Helper()
	if err := BeginRoll(s, playerID, d1, nonce); err != nil {
		return err
	}
	return CompleteRoll(s, playerID, d2)
}

func TestCompleteRoll_Scoring(t *testing.T) {
	tests := []struct {
		name            string
		turnScore       int
		hostScore       int
		dice            [2]int
		wantTurnScore   int
		wantHostScore   int
		wantOutcome     string
		wantHostActive  bool
		wantPhase       gametypes.Phase
		wantWinner      string
	}{
		{
			name:           "normal roll accumulates the dice sum",
			turnScore:      10,
			dice:           [2]int{3, 5},
			wantTurnScore:  18,
			wantHostActive: true,
			wantPhase:      gametypes.PhaseGameplay,
		},
		{
			name:           "single one ends the turn and clears the turn score",
			turnScore:      15,
			dice:           [2]int{1, 4},
			wantTurnScore:  0,
			wantOutcome:    gametypes.OutcomeTurnOver,
			wantHostActive: false,
			wantPhase:      gametypes.PhaseGameplay,
		},
		{
			name:           "double six busts the cumulative score",
			turnScore:      15,
			hostScore:      40,
			dice:           [2]int{6, 6},
			wantTurnScore:  0,
			wantHostScore:  0,
			wantOutcome:    gametypes.OutcomeBusted,
			wantHostActive: false,
			wantPhase:      gametypes.PhaseGameplay,
		},
		{
			name:           "double one awards the bonus and keeps the turn",
			turnScore:      5,
			dice:           [2]int{1, 1},
			wantTurnScore:  25,
			wantHostActive: true,
			wantPhase:      gametypes.PhaseGameplay,
		},
		{
			name:          "reaching the objective wins without banking",
			hostScore:     92,
			dice:          [2]int{4, 4},
			wantTurnScore: 0,
			wantHostScore: 100,
			wantPhase:     gametypes.PhaseGameOver,
			wantWinner:    "host-1",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := gameplaySession()
			s.TurnScore = tt.turnScore
			s.Host.Score = tt.hostScore

			err := rollBoth(t, s, "host-1", tt.dice[0], tt.dice[1], "nonce-1")
			require.NoError(t, err)

			assert.Equal(t, tt.wantTurnScore, s.TurnScore)
			assert.Equal(t, tt.wantHostScore, s.Host.Score)
			assert.Equal(t, tt.wantOutcome, s.LastOutcome)
			assert.Equal(t, tt.wantHostActive, s.Host.TurnActive)
			assert.Equal(t, tt.wantPhase, s.Phase)
			assert.Equal(t, tt.wantWinner, s.Winner)
			assert.False(t, s.Dice.IsRolling)
			assert.Equal(t, gametypes.RollPhaseDice2, s.Dice.RollPhase)
			if tt.wantPhase == gametypes.PhaseGameOver {
				assert.Equal(t, gametypes.GameOverReasonObjective, s.GameOverReason)
				assert.False(t, s.Opponent.TurnActive)
			}
		})
	}
}

func TestCompleteRoll_Stats(t *testing.T) {
	s := gameplaySession()

	require.NoError(t, rollBoth(t, s, "host-1", 3, 5, "n1"))
	assert.Equal(t, 8, s.Host.Stats.LastDiceSum)
	assert.Equal(t, 8, s.Host.Stats.BiggestTurnScore)
	assert.Equal(t, 0, s.Host.Stats.Doubles)

	require.NoError(t, rollBoth(t, s, "host-1", 4, 4, "n2"))
	assert.Equal(t, 1, s.Host.Stats.Doubles)
	assert.Equal(t, 16, s.Host.Stats.BiggestTurnScore)
}

func TestBeginRoll_TwoStepReveal(t *testing.T) {
	s := gameplaySession()

	require.NoError(t, BeginRoll(s, "host-1", 3, "n1"))
	assert.True(t, s.Dice.IsRolling)
	assert.Equal(t, gametypes.RollPhaseDice1, s.Dice.RollPhase)
	assert.Equal(t, 3, s.Dice.DiceOne)
	assert.Equal(t, 0, s.Dice.DiceTwo)

	// A second roll while the first is still revealing is rejected.
	err := BeginRoll(s, "host-1", 4, "n2")
	assert.True(t, IsInvalidTurnAction(err))
}

func TestApplyDeciderChoice(t *testing.T) {
	tests := []struct {
		name           string
		chooserIndex   int
		choice         string
		die            int
		wantHostActive bool
	}{
		{
			name:           "host predicts odd correctly and starts",
			chooserIndex:   1,
			choice:         gametypes.DeciderChoiceOdd,
			die:            3,
			wantHostActive: true,
		},
		{
			name:           "host predicts odd incorrectly and opponent starts",
			chooserIndex:   1,
			choice:         gametypes.DeciderChoiceOdd,
			die:            4,
			wantHostActive: false,
		},
		{
			name:           "opponent predicts even correctly and starts",
			chooserIndex:   2,
			choice:         gametypes.DeciderChoiceEven,
			die:            6,
			wantHostActive: false,
		},
		{
			name:           "opponent predicts even incorrectly and host starts",
			chooserIndex:   2,
			choice:         gametypes.DeciderChoiceEven,
			die:            1,
			wantHostActive: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := deciderSession(tt.chooserIndex)
			chooserID := s.Chooser().PlayerID

			err := ApplyDeciderChoice(s, chooserID, tt.choice, tt.die, "n1")
			require.NoError(t, err)

			assert.Equal(t, gametypes.PhaseGameplay, s.Phase)
			assert.Equal(t, tt.wantHostActive, s.Host.TurnActive)
			assert.Equal(t, !tt.wantHostActive, s.Opponent.TurnActive)
			assert.Equal(t, tt.choice, s.TurnDecider.Choice)
			assert.Equal(t, tt.die, s.TurnDecider.DieValue)
		})
	}
}

func TestApplyDeciderChoice_Validation(t *testing.T) {
	t.Run("only the chooser may choose", func(t *testing.T) {
		s := deciderSession(1)
		err := ApplyDeciderChoice(s, "opponent-1", gametypes.DeciderChoiceOdd, 3, "n1")
		assert.True(t, IsInvalidTurnAction(err))
	})

	t.Run("choice must be odd or even", func(t *testing.T) {
		s := deciderSession(1)
		err := ApplyDeciderChoice(s, "host-1", "seven", 3, "n1")
		assert.True(t, IsInvalidTurnAction(err))
	})

	t.Run("rejected once gameplay has started", func(t *testing.T) {
		s := gameplaySession()
		err := ApplyDeciderChoice(s, "host-1", gametypes.DeciderChoiceOdd, 3, "n1")
		assert.True(t, IsInvalidTurnAction(err))
	})
}

func TestApplyBank(t *testing.T) {
	t.Run("banks the turn score and passes the turn", func(t *testing.T) {
		s := gameplaySession()
		s.TurnScore = 18

		require.NoError(t, ApplyBank(s, "host-1", "n1"))
		assert.Equal(t, 18, s.Host.Score)
		assert.Equal(t, 0, s.TurnScore)
		assert.False(t, s.Host.TurnActive)
		assert.True(t, s.Opponent.TurnActive)
		assert.Equal(t, 1, s.Host.Stats.Banks)
	})

	t.Run("banking to the objective wins", func(t *testing.T) {
		s := gameplaySession()
		s.Host.Score = 90
		s.TurnScore = 12

		require.NoError(t, ApplyBank(s, "host-1", "n1"))
		assert.Equal(t, gametypes.PhaseGameOver, s.Phase)
		assert.Equal(t, "host-1", s.Winner)
		assert.Equal(t, gametypes.GameOverReasonObjective, s.GameOverReason)
	})

	t.Run("nothing to bank", func(t *testing.T) {
		s := gameplaySession()
		err := ApplyBank(s, "host-1", "n1")
		assert.True(t, IsInvalidTurnAction(err))
	})

	t.Run("not your turn", func(t *testing.T) {
		s := gameplaySession()
		s.TurnScore = 10
		err := ApplyBank(s, "opponent-1", "n1")
		assert.True(t, IsInvalidTurnAction(err))
	})
}

func TestValidateTurnAction_NonceGuard(t *testing.T) {
	s := gameplaySession()
	require.NoError(t, rollBoth(t, s, "host-1", 2, 3, "n1"))

	// Resubmitting the same nonce is a duplicate, a fresh nonce is not.
	err := BeginRoll(s, "host-1", 4, "n1")
	assert.True(t, IsDuplicateAction(err))
	assert.NoError(t, BeginRoll(s, "host-1", 4, "n2"))
}

func TestValidateTurnAction_Membership(t *testing.T) {
	s := gameplaySession()
	err := BeginRoll(s, "stranger", 3, "n1")
	assert.True(t, IsInvalidTurnAction(err))
}

func TestValidateTurnAction_PromotedSession(t *testing.T) {
	s := gameplaySession()
	s.RedirectTo = "session-2"
	err := BeginRoll(s, "host-1", 3, "n1")
	assert.True(t, IsInvalidTurnAction(err))
}

func TestApplyForfeit(t *testing.T) {
	s := gameplaySession()
	require.NoError(t, ApplyForfeit(s, "host-1"))
	assert.Equal(t, gametypes.PhaseGameOver, s.Phase)
	assert.Equal(t, "opponent-1", s.Winner)
	assert.Equal(t, gametypes.GameOverReasonForfeit, s.GameOverReason)

	err := ApplyForfeit(s, "opponent-1")
	assert.True(t, IsInvalidTurnAction(err))
}

func TestApplyAbandon(t *testing.T) {
	s := gameplaySession()
	require.NoError(t, ApplyAbandon(s))
	assert.Equal(t, gametypes.PhaseGameOver, s.Phase)
	assert.Empty(t, s.Winner)
	assert.Equal(t, gametypes.GameOverReasonAbandoned, s.GameOverReason)
}

func TestClearStuckRoll(t *testing.T) {
	s := gameplaySession()
	s.TurnScore = 9
	require.NoError(t, BeginRoll(s, "host-1", 4, "n1"))
	require.True(t, s.Dice.IsRolling)

	require.NoError(t, ClearStuckRoll(s))
	assert.False(t, s.Dice.IsRolling)
	assert.Equal(t, gametypes.RollPhaseIdle, s.Dice.RollPhase)
	assert.True(t, s.Host.TurnActive)
	assert.Equal(t, 9, s.TurnScore)

	// The player can roll again once the flag is cleared.
	require.NoError(t, BeginRoll(s, "host-1", 3, "n2"))

	idle := gameplaySession()
	err := ClearStuckRoll(idle)
	assert.True(t, IsInvalidTurnAction(err))
}
