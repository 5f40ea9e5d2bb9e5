package engine

import "github.com/DoyleJ11/stat-clash-backend/internal/card"

// RoundPlayer is a player as shown in a round-complete broadcast.
type RoundPlayer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Card      *card.Card `json:"card,omitempty"`
	Score     int        `json:"score"`
	IsPicker  bool       `json:"isPicker"`
	IsCreator bool       `json:"isCreator"`
}

// RoundStartPlayer is a player as shown in a round-started broadcast.
type RoundStartPlayer struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Card      *card.Card `json:"card,omitempty"`
	Score     int        `json:"score"`
	IsPicker  bool       `json:"isPicker"`
	IsCreator bool       `json:"isCreator"`
	IsWinner  bool       `json:"isWinner"`
}

type RosterPlayer struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Score     int    `json:"score"`
	IsCreator bool   `json:"isCreator"`
}

type RoundResult struct {
	Stat         string        `json:"stat"`
	Value        int           `json:"value"`
	RoundWinners []string      `json:"roundWinners"`
	Winners      []string      `json:"winners"`
	Players      []RoundPlayer `json:"players"`
	GameEnded    bool          `json:"gameEnded"`
}

type RoundState struct {
	Round           int                `json:"round"`
	Picker          string             `json:"picker"`
	InTieBreaker    bool               `json:"inTieBreaker"`
	TieBreakPlayers []string           `json:"tieBreakPlayers,omitempty"`
	Players         []RoundStartPlayer `json:"players"`
	Winners         []string           `json:"winners"`
	GameEnded       bool               `json:"gameEnded"`
}

// RoomView is the roster-level projection sent on membership changes.
type RoomView struct {
	Code         string         `json:"code"`
	Phase        Phase          `json:"phase"`
	Settings     Settings       `json:"settings"`
	Creator      string         `json:"creator"`
	CurrentRound int            `json:"currentRound"`
	Picker       string         `json:"picker,omitempty"`
	Winners      []string       `json:"winners"`
	Players      []RosterPlayer `json:"players"`
}

func (s *State) View() RoomView {
	players := make([]RosterPlayer, 0, len(s.Order))
	for _, id := range s.Order {
		p := s.Players[id]
		players = append(players, RosterPlayer{
			ID:        p.ID,
			Name:      p.Name,
			Score:     p.Score,
			IsCreator: p.IsCreator,
		})
	}
	return RoomView{
		Code:         s.Code,
		Phase:        s.Phase,
		Settings:     s.Settings,
		Creator:      s.Creator,
		CurrentRound: s.CurrentRound,
		Picker:       s.CurrentPicker,
		Winners:      append([]string{}, s.Winners...),
		Players:      players,
	}
}

// CurrentRoundState re-projects the round in play, for players who arrive
// mid-game. ok is false before the first deal.
func (s *State) CurrentRoundState() (RoundState, bool) {
	if s.Phase == PhaseWaiting {
		return RoundState{}, false
	}
	return s.roundState(s.CurrentRound - 1), true
}

// EndedResult reports a game that finished without a round being
// evaluated, e.g. because departures left too few players.
func (s *State) EndedResult() RoundResult {
	return RoundResult{
		Stat:         s.LastSelectedStat,
		RoundWinners: []string{},
		Winners:      append([]string{}, s.Winners...),
		Players:      s.roundPlayers(),
		GameEnded:    s.Phase == PhaseEnded,
	}
}

func (s *State) roundPlayers() []RoundPlayer {
	out := make([]RoundPlayer, 0, len(s.Order))
	for _, id := range s.Order {
		p := s.Players[id]
		out = append(out, RoundPlayer{
			ID:        p.ID,
			Name:      p.Name,
			Card:      p.Card,
			Score:     p.Score,
			IsPicker:  p.ID == s.CurrentPicker,
			IsCreator: p.IsCreator,
		})
	}
	return out
}

func (s *State) roundState(round int) RoundState {
	players := make([]RoundStartPlayer, 0, len(s.Order))
	for _, id := range s.Order {
		p := s.Players[id]
		players = append(players, RoundStartPlayer{
			ID:        p.ID,
			Name:      p.Name,
			Card:      p.Card,
			Score:     p.Score,
			IsPicker:  p.ID == s.CurrentPicker,
			IsCreator: p.IsCreator,
			IsWinner:  s.IsWinner(p.ID),
		})
	}

	var tie []string
	if s.InTieBreaker {
		tie = s.evaluationPool()
	}
	return RoundState{
		Round:           round,
		Picker:          s.CurrentPicker,
		InTieBreaker:    s.InTieBreaker,
		TieBreakPlayers: tie,
		Players:         players,
		Winners:         append([]string{}, s.Winners...),
		GameEnded:       s.GameOver(),
	}
}
