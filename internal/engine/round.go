package engine

import (
	"fmt"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
)

// EvaluateRound compares stat across the evaluation pool. Only the first
// holder of the best value in join order scores; ties do not all score.
func EvaluateRound(s *State, stat string) (RoundResult, error) {
	if !card.IsStat(stat) {
		return RoundResult{}, fmt.Errorf("%w: %q", ErrInvalidStat, stat)
	}

	best := 0
	var roundWinners []string
	for _, id := range s.evaluationPool() {
		p := s.Players[id]
		if p.Card == nil {
			continue
		}
		v, ok := p.Card.Value(stat)
		if !ok {
			continue
		}
		switch {
		case len(roundWinners) == 0 || v > best:
			best = v
			roundWinners = []string{id}
		case v == best:
			roundWinners = append(roundWinners, id)
		}
	}
	if len(roundWinners) == 0 {
		return RoundResult{}, fmt.Errorf("%w: no cards to compare", ErrInvalidStat)
	}

	if !s.InTieBreaker {
		scored := s.Players[roundWinners[0]]
		scored.Score++
		if scored.Score >= s.Settings.RoundsToWin && !s.IsWinner(scored.ID) {
			s.Winners = append(s.Winners, scored.ID)
		}
	}

	s.LastSelectedStat = stat
	ended := s.GameOver()
	if ended {
		s.Phase = PhaseEnded
		s.ClearAllNames()
	} else {
		s.Phase = PhaseRevealed
	}

	return RoundResult{
		Stat:         stat,
		Value:        best,
		RoundWinners: roundWinners,
		Winners:      append([]string{}, s.Winners...),
		Players:      s.roundPlayers(),
		GameEnded:    ended,
	}, nil
}

func (s *State) evaluationPool() []string {
	if !s.InTieBreaker {
		return s.ActivePlayers()
	}
	pool := make([]string, 0, s.TieBreakPlayers.Cardinality())
	for _, id := range s.Order {
		if s.TieBreakPlayers.Contains(id) {
			pool = append(pool, id)
		}
	}
	return pool
}

// RoundPlan is the outcome of the synchronous half of round advancement:
// who draws and who picks. Nothing is applied until cards are in hand.
type RoundPlan struct {
	TieBreak     bool
	Picker       string
	Participants []string
}

func PlanRound(s *State) (RoundPlan, error) {
	plan := RoundPlan{TieBreak: s.InTieBreaker}
	if s.InTieBreaker {
		plan.Participants = s.evaluationPool()
	} else {
		plan.Picker = NextPicker(s)
		plan.Participants = s.ActivePlayers()
	}
	if len(plan.Participants) == 0 {
		return plan, ErrNoActivePlayers
	}
	return plan, nil
}

// ApplyRound installs freshly drawn cards and opens stat selection.
func ApplyRound(s *State, plan RoundPlan, cards map[string]card.Card) RoundState {
	if !plan.TieBreak {
		s.CurrentPicker = plan.Picker
	}
	for _, id := range plan.Participants {
		p := s.Players[id]
		c, ok := cards[id]
		if p == nil || !ok {
			continue
		}
		p.Card = &c
	}

	round := s.CurrentRound
	s.CurrentRound++
	if s.GameOver() {
		s.Phase = PhaseEnded
	} else {
		s.Phase = PhaseSelecting
	}
	return s.roundState(round)
}

// ResetGame prepares a fresh game on the same roster. Rematches keep the
// cards on the table until the next draw replaces them.
func ResetGame(s *State, zeroCards bool) {
	s.CurrentRound = 1
	s.Winners = nil
	s.InTieBreaker = false
	s.TieBreakPlayers.Clear()
	s.LastSelectedStat = ""
	s.Phase = PhaseWaiting
	for _, p := range s.Players {
		p.Score = 0
		if zeroCards {
			p.Card = nil
		}
	}
	s.ReserveRosterNames()
}
