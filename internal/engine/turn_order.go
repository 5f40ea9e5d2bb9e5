package engine

import "slices"

// NextPicker returns the active player after the current picker in join
// order, wrapping around. Winners are skipped. Empty when nobody is active.
func NextPicker(s *State) string {
	active := s.ActivePlayers()
	if len(active) == 0 {
		return ""
	}
	if s.CurrentPicker == "" || s.IsWinner(s.CurrentPicker) {
		return active[0]
	}
	i := slices.Index(active, s.CurrentPicker)
	if i < 0 {
		return active[0]
	}
	return active[(i+1)%len(active)]
}
