package engine

import (
	"errors"
	"slices"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
)

var ErrRoomNotFound = errors.New("room not found")
var ErrNameConflict = errors.New("name already taken, choose a different name")
var ErrInvalidName = errors.New("invalid player name")
var ErrAlreadyInRoom = errors.New("already in room")
// ErrNotAuthorized marks creator-only requests from other players. Callers
// drop these without answering.
var ErrNotAuthorized = errors.New("not authorized")
var ErrInvalidTarget = errors.New("target is not a connected player in this room")
var ErrNotYourTurn = errors.New("not your turn")
var ErrInvalidStat = errors.New("invalid stat")
var ErrInvalidSettings = errors.New("invalid settings")
var ErrNoActivePlayers = errors.New("no active players")

type Phase string

const (
	PhaseWaiting   Phase = "waiting"
	PhaseSelecting Phase = "selecting"
	PhaseRevealed  Phase = "revealed"
	PhaseEnded     Phase = "ended"
)

type Player struct {
	ID        string
	Name      string
	Score     int
	Card      *card.Card
	IsCreator bool
}

type Settings struct {
	RoundsToWin int `json:"roundsToWin"`
	MaxWinners  int `json:"maxWinners"`
}

// State is one room. It is not safe for concurrent use; the owning lobby
// serializes every access.
type State struct {
	Code  string
	Phase Phase

	// Order is join order; Players holds the same keys.
	Order   []string
	Players map[string]*Player

	// Settings is the effective configuration, Requested what the creator
	// asked for before roster clamping.
	Settings  Settings
	Requested Settings

	CurrentRound     int
	CurrentPicker    string
	Winners          []string
	Creator          string
	InTieBreaker     bool
	TieBreakPlayers  mapset.Set[string]
	LastSelectedStat string
	ReservedNames    mapset.Set[string]
}

// Clone returns a copy that shares nothing mutable with s. Cards are
// immutable and shared.
func (s *State) Clone() *State {
	c := *s
	c.Order = slices.Clone(s.Order)
	c.Winners = slices.Clone(s.Winners)
	c.Players = make(map[string]*Player, len(s.Players))
	for id, p := range s.Players {
		cp := *p
		c.Players[id] = &cp
	}
	c.TieBreakPlayers = s.TieBreakPlayers.Clone()
	c.ReservedNames = s.ReservedNames.Clone()
	return &c
}

func (s *State) IsWinner(id string) bool {
	return slices.Contains(s.Winners, id)
}

// ActivePlayers returns roster members that are not winners, in join order.
func (s *State) ActivePlayers() []string {
	active := make([]string, 0, len(s.Order))
	for _, id := range s.Order {
		if !s.IsWinner(id) {
			active = append(active, id)
		}
	}
	return active
}

// GameOver reports whether enough winners exist to end the game.
func (s *State) GameOver() bool {
	return len(s.Winners) > 0 && len(s.Winners) >= s.Settings.MaxWinners
}

func (s *State) InProgress() bool {
	return s.Phase == PhaseSelecting || s.Phase == PhaseRevealed
}
