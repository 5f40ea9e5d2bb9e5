package engine

import (
	"strings"
	"unicode/utf8"

	mapset "github.com/deckarep/golang-set/v2"
)

const MaxNameLength = 24

var DefaultSettings = Settings{RoundsToWin: 3, MaxWinners: 1}

func NewState(code string, requested Settings) *State {
	s := &State{
		Code:            code,
		Phase:           PhaseWaiting,
		Players:         map[string]*Player{},
		Requested:       requested,
		CurrentRound:    1,
		TieBreakPlayers: mapset.NewThreadUnsafeSet[string](),
		ReservedNames:   mapset.NewThreadUnsafeSet[string](),
	}
	s.Settings = ClampSettings(requested, 0)
	return s
}

// NormalizeName trims a display name and checks its length.
func NormalizeName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || utf8.RuneCountInString(name) > MaxNameLength {
		return "", ErrInvalidName
	}
	return name, nil
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
