package engine

// RequireCreator reports ErrNotAuthorized unless id holds the creator flag.
func RequireCreator(s *State, id string) error {
	if id == "" || id != s.Creator {
		return ErrNotAuthorized
	}
	return nil
}

// TransferCreator moves the creator flag to another live member.
func TransferCreator(s *State, from, to string, isLive func(string) bool) error {
	if err := RequireCreator(s, from); err != nil {
		return err
	}
	if from == to || s.Players[to] == nil || !isLive(to) {
		return ErrInvalidTarget
	}
	s.setCreator(to)
	return nil
}

// AssignNewCreator promotes the first remaining player when the room has no
// valid creator. Returns the new creator and whether anything changed.
func AssignNewCreator(s *State) (string, bool) {
	if len(s.Order) == 0 {
		return "", false
	}
	if s.Creator != "" && s.Players[s.Creator] != nil {
		return "", false
	}
	s.setCreator(s.Order[0])
	return s.Creator, true
}

type Departure struct {
	Player     *Player
	NewCreator string
	NewPicker  string
	// GameEnded is set when the departure itself finished the game.
	GameEnded bool
}

// Depart removes id the way a voluntary leave does: reservation released,
// creator reassigned, and a stalled picker replaced mid-round. A game left
// with enough winners, or with nobody still playing, ends here.
func Depart(s *State, id string) (Departure, bool) {
	wasPlaying := s.InProgress()
	p, ok := s.RemovePlayer(id)
	if !ok {
		return Departure{}, false
	}
	d := Departure{Player: p}
	if p.IsCreator {
		d.NewCreator, _ = AssignNewCreator(s)
	}

	if wasPlaying && len(s.Players) > 0 && (s.GameOver() || len(s.ActivePlayers()) == 0) {
		s.Phase = PhaseEnded
		s.ClearAllNames()
		d.GameEnded = true
		return d, true
	}
	if s.Phase == PhaseSelecting && s.CurrentPicker == id {
		s.CurrentPicker = NextPicker(s)
		d.NewPicker = s.CurrentPicker
	}
	return d, true
}

// Kick removes target on behalf of the creator.
func Kick(s *State, requester, target string) (Departure, error) {
	if err := RequireCreator(s, requester); err != nil {
		return Departure{}, err
	}
	if requester == target || s.Players[target] == nil {
		return Departure{}, ErrInvalidTarget
	}
	d, _ := Depart(s, target)
	return d, nil
}
