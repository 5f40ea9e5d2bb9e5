package engine

import (
	"slices"
)

// AddPlayer reserves name and appends a new player to the roster.
func (s *State) AddPlayer(id, name string, isCreator bool) (*Player, error) {
	name, err := NormalizeName(name)
	if err != nil {
		return nil, err
	}
	if _, ok := s.Players[id]; ok {
		return nil, ErrAlreadyInRoom
	}
	key := nameKey(name)
	if s.ReservedNames.Contains(key) {
		return nil, ErrNameConflict
	}

	s.ReservedNames.Add(key)
	p := &Player{ID: id, Name: name}
	s.Players[id] = p
	s.Order = append(s.Order, id)

	if isCreator {
		s.setCreator(id)
	}
	s.reclamp()
	return p, nil
}

// RemovePlayer releases the player's name and drops them from the roster,
// winners and tie-break pool. Creator reassignment is left to the caller.
func (s *State) RemovePlayer(id string) (*Player, bool) {
	p, ok := s.Players[id]
	if !ok {
		return nil, false
	}

	s.ReservedNames.Remove(nameKey(p.Name))
	delete(s.Players, id)
	s.Order = slices.DeleteFunc(s.Order, func(o string) bool { return o == id })
	s.Winners = slices.DeleteFunc(s.Winners, func(w string) bool { return w == id })
	s.TieBreakPlayers.Remove(id)
	if s.Creator == id {
		s.Creator = ""
	}
	s.reclamp()
	return p, true
}

// ClearAllNames releases every reservation while keeping the roster.
func (s *State) ClearAllNames() {
	s.ReservedNames.Clear()
}

// ReserveRosterNames reserves the name of every current roster member.
func (s *State) ReserveRosterNames() {
	for _, p := range s.Players {
		s.ReservedNames.Add(nameKey(p.Name))
	}
}

// FindByName looks up a roster member by case-insensitive name.
func (s *State) FindByName(name string) (string, bool) {
	key := nameKey(name)
	for _, id := range s.Order {
		if nameKey(s.Players[id].Name) == key {
			return id, true
		}
	}
	return "", false
}

func (s *State) setCreator(id string) {
	for _, p := range s.Players {
		p.IsCreator = p.ID == id
	}
	s.Creator = id
}

func (s *State) reclamp() {
	s.Settings = ClampSettings(s.Requested, len(s.Players))
}
