package engine

import (
	"slices"
)

type JoinOutcome int

const (
	JoinAdded JoinOutcome = iota
	JoinReconnected
)

// ResolveJoin admits id under name. A name held by a live session is a
// conflict; a name held by a stale session is taken over in place, keeping
// score, card, creator flag and turn position.
func ResolveJoin(s *State, id, name string, isLive func(string) bool) (JoinOutcome, *Player, error) {
	if _, ok := s.Players[id]; ok {
		return JoinAdded, nil, ErrAlreadyInRoom
	}
	if _, err := NormalizeName(name); err != nil {
		return JoinAdded, nil, err
	}

	existing, found := s.FindByName(name)
	if !found {
		p, err := s.AddPlayer(id, name, false)
		return JoinAdded, p, err
	}
	if isLive(existing) {
		return JoinAdded, nil, ErrNameConflict
	}
	return JoinReconnected, s.swapSession(existing, id), nil
}

func (s *State) swapSession(oldID, newID string) *Player {
	old := s.Players[oldID]
	key := nameKey(old.Name)

	s.ReservedNames.Remove(key)
	delete(s.Players, oldID)

	p := &Player{
		ID:        newID,
		Name:      old.Name,
		Score:     old.Score,
		Card:      old.Card,
		IsCreator: old.IsCreator,
	}
	s.Players[newID] = p
	s.Order[slices.Index(s.Order, oldID)] = newID
	s.ReservedNames.Add(key)

	if s.Creator == oldID {
		s.Creator = newID
	}
	if s.CurrentPicker == oldID {
		s.CurrentPicker = newID
	}
	if i := slices.Index(s.Winners, oldID); i >= 0 {
		s.Winners[i] = newID
	}
	if s.TieBreakPlayers.Contains(oldID) {
		s.TieBreakPlayers.Remove(oldID)
		s.TieBreakPlayers.Add(newID)
	}
	return p
}
