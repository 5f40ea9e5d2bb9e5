package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
)

func TestEvaluateRound_OnlyFirstTiedHolderScores(t *testing.T) {
	s := newRoom(t, "A", "B", "C")
	s.Phase = PhaseSelecting
	s.Players["a"].Card = cardWith(card.StatHP, 50)
	s.Players["b"].Card = cardWith(card.StatHP, 80)
	s.Players["c"].Card = cardWith(card.StatHP, 80)

	res, err := EvaluateRound(s, card.StatHP)
	require.NoError(t, err)

	assert.Equal(t, []string{"b", "c"}, res.RoundWinners)
	assert.Equal(t, 80, res.Value)
	assert.Equal(t, 0, s.Players["a"].Score)
	assert.Equal(t, 1, s.Players["b"].Score)
	assert.Equal(t, 0, s.Players["c"].Score)
	assert.Equal(t, card.StatHP, s.LastSelectedStat)
	assert.Equal(t, PhaseRevealed, s.Phase)
	assert.False(t, res.GameEnded)
	require.Len(t, res.Players, 3)
	assert.True(t, res.Players[0].IsCreator)
}

func TestEvaluateRound_ReadsNamedStats(t *testing.T) {
	s := newRoom(t, "A", "B")
	s.Players["a"].Card = cardWith(card.StatSpeed, 10)
	s.Players["b"].Card = cardWith(card.StatSpeed, 90)

	res, err := EvaluateRound(s, card.StatSpeed)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.RoundWinners)
}

func TestEvaluateRound_InvalidStat(t *testing.T) {
	s := newRoom(t, "A", "B")
	s.Players["a"].Card = cardWith(card.StatHP, 10)

	_, err := EvaluateRound(s, "luck")
	assert.ErrorIs(t, err, ErrInvalidStat)

	empty := newRoom(t, "A")
	_, err = EvaluateRound(empty, card.StatHP)
	assert.ErrorIs(t, err, ErrInvalidStat)
	assert.Equal(t, 0, empty.Players["a"].Score)
	assert.Empty(t, empty.LastSelectedStat)
}

func TestEvaluateRound_WinnersAreAppendedOnceAndLeaveThePool(t *testing.T) {
	s := newRoom(t, "A", "B", "C", "D")
	s.Settings = Settings{RoundsToWin: 1, MaxWinners: 2}
	for _, id := range s.Order {
		s.Players[id].Card = cardWith(card.StatHP, 10)
	}
	s.Players["b"].Card = cardWith(card.StatHP, 99)

	res, err := EvaluateRound(s, card.StatHP)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, res.Winners)

	// b is now out of the pool even with the best card.
	res, err = EvaluateRound(s, card.StatHP)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c", "d"}, res.RoundWinners)
	assert.Equal(t, []string{"b", "a"}, res.Winners)
	assert.Equal(t, 1, s.Players["b"].Score)
	assert.True(t, res.GameEnded)
}

func TestEvaluateRound_GameEndReleasesNames(t *testing.T) {
	s := newRoom(t, "A", "B")
	s.Settings = Settings{RoundsToWin: 1, MaxWinners: 1}
	s.Players["a"].Card = cardWith(card.StatAttack, 5)
	s.Players["b"].Card = cardWith(card.StatAttack, 6)

	res, err := EvaluateRound(s, card.StatAttack)
	require.NoError(t, err)

	assert.True(t, res.GameEnded)
	assert.Equal(t, PhaseEnded, s.Phase)
	assert.Equal(t, 0, s.ReservedNames.Cardinality())
	assert.Len(t, s.Players, 2)
}

func TestEvaluateRound_TieBreakPoolDoesNotScore(t *testing.T) {
	s := newRoom(t, "A", "B", "C")
	s.InTieBreaker = true
	s.TieBreakPlayers.Append("a", "c")
	s.Players["a"].Card = cardWith(card.StatHP, 40)
	s.Players["b"].Card = cardWith(card.StatHP, 100)
	s.Players["c"].Card = cardWith(card.StatHP, 60)

	res, err := EvaluateRound(s, card.StatHP)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, res.RoundWinners)
	for _, p := range s.Players {
		assert.Zero(t, p.Score, p.ID)
	}
}

func TestPlanAndApplyRound(t *testing.T) {
	s := newRoom(t, "A", "B", "C")
	s.Winners = []string{"b"}
	s.CurrentPicker = "a"

	plan, err := PlanRound(s)
	require.NoError(t, err)
	assert.Equal(t, "c", plan.Picker)
	assert.Equal(t, []string{"a", "c"}, plan.Participants)
	assert.Equal(t, "a", s.CurrentPicker, "planning must not mutate")

	cards := map[string]card.Card{
		"a": *cardWith(card.StatHP, 1),
		"c": *cardWith(card.StatHP, 2),
	}
	rs := ApplyRound(s, plan, cards)

	assert.Equal(t, 1, rs.Round)
	assert.Equal(t, 2, s.CurrentRound)
	assert.Equal(t, "c", rs.Picker)
	assert.Equal(t, PhaseSelecting, s.Phase)
	assert.Nil(t, s.Players["b"].Card)
	assert.Equal(t, 2, s.Players["c"].Card.HP)
	require.Len(t, rs.Players, 3)
	assert.True(t, rs.Players[1].IsWinner)
	assert.True(t, rs.Players[2].IsPicker)
	assert.False(t, rs.GameEnded)
}

func TestPlanRound_TieBreakKeepsPicker(t *testing.T) {
	s := newRoom(t, "A", "B", "C")
	s.CurrentPicker = "a"
	s.InTieBreaker = true
	s.TieBreakPlayers.Append("c", "b")

	plan, err := PlanRound(s)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, plan.Participants)

	rs := ApplyRound(s, plan, map[string]card.Card{"b": {HP: 1}, "c": {HP: 2}})
	assert.Equal(t, "a", rs.Picker)
	assert.Equal(t, []string{"b", "c"}, rs.TieBreakPlayers)
	assert.Nil(t, s.Players["a"].Card)
}

func TestPlanRound_NoActivePlayers(t *testing.T) {
	s := newRoom(t, "A")
	s.Winners = []string{"a"}

	_, err := PlanRound(s)
	assert.ErrorIs(t, err, ErrNoActivePlayers)
}

func TestResetGame(t *testing.T) {
	s := newRoom(t, "A", "B")
	s.CurrentRound = 7
	s.Winners = []string{"a"}
	s.Players["a"].Score = 3
	s.Players["a"].Card = cardWith(card.StatHP, 3)
	s.Phase = PhaseEnded
	s.ClearAllNames()

	ResetGame(s, false)
	assert.Equal(t, 1, s.CurrentRound)
	assert.Empty(t, s.Winners)
	assert.Zero(t, s.Players["a"].Score)
	assert.NotNil(t, s.Players["a"].Card)
	assert.Equal(t, PhaseWaiting, s.Phase)
	assert.Equal(t, 2, s.ReservedNames.Cardinality())

	ResetGame(s, true)
	assert.Nil(t, s.Players["a"].Card)
}
