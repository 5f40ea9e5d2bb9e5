package types

import (
	"errors"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
	"github.com/DoyleJ11/stat-clash-backend/internal/engine"
)

// Client -> server events.
const (
	EvtCreateRoom      = "create-room"
	EvtJoinRoom        = "join-room"
	EvtUpdateSettings  = "update-settings"
	EvtTransferCreator = "transfer-creator"
	EvtStartGame       = "start-game"
	EvtSelectStat      = "select-stat"
	EvtRematch         = "rematch"
	EvtLeaveRoom       = "leave-room"
	EvtKickPlayer      = "kick-player"
)

// Server -> client events.
const (
	EvtSession            = "session"
	EvtRoomCreated        = "room-created"
	EvtRoomJoined         = "room-joined"
	EvtPlayerJoined       = "player-joined"
	EvtPlayerReconnected  = "player-reconnected"
	EvtRoundStarted       = "round-started"
	EvtRoundComplete      = "round-complete"
	EvtGameReset          = "game-reset"
	EvtPlayerLeft         = "player-left"
	EvtPlayerKicked       = "player-kicked"
	EvtKicked             = "kicked"
	EvtCreatorTransferred = "creator-transferred"
	EvtSettingsUpdated    = "settings-updated"
	EvtError              = "error"
)

// ErrBadRequest marks client messages that could not be understood.
var ErrBadRequest = errors.New("bad request")

type ClientMessage struct {
	Event      string                `json:"event"`
	RoomCode   string                `json:"roomCode,omitempty"`
	PlayerName string                `json:"playerName,omitempty"`
	Settings   *engine.SettingsPatch `json:"settings,omitempty"`
	TargetID   string                `json:"targetId,omitempty"`
	StatName   string                `json:"statName,omitempty"`
}

type ServerMessage struct {
	Event string `json:"event"`
	Room  string `json:"room,omitempty"`
	Data  any    `json:"data,omitempty"`
}

type Session struct {
	ID string `json:"id"`
}

type RoomCreated struct {
	Room engine.RoomView `json:"room"`
	You  string          `json:"you"`
}

// RoomJoined is sent only to the joining session. Round is set when a game
// is already underway.
type RoomJoined struct {
	Room        engine.RoomView    `json:"room"`
	You         string             `json:"you"`
	Reconnected bool               `json:"reconnected"`
	Round       *engine.RoundState `json:"round,omitempty"`
}

// PlayerEvent covers joins, reconnects, leaves and kicks.
type PlayerEvent struct {
	Room       engine.RoomView `json:"room"`
	PlayerID   string          `json:"playerId"`
	Name       string          `json:"name"`
	Reason     string          `json:"reason,omitempty"`
	NewCreator string          `json:"newCreator,omitempty"`
	NewPicker  string          `json:"newPicker,omitempty"`
	GameEnded  bool            `json:"gameEnded,omitempty"`
}

type CreatorTransferred struct {
	Room engine.RoomView `json:"room"`
	From string          `json:"from"`
	To   string          `json:"to"`
}

type RoomUpdate struct {
	Room engine.RoomView `json:"room"`
}

type Kicked struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewError classifies err into a client-facing error payload.
func NewError(err error) ErrorPayload {
	return ErrorPayload{Code: ErrorCode(err), Message: err.Error()}
}

func ErrorCode(err error) string {
	switch {
	case errors.Is(err, engine.ErrRoomNotFound):
		return "RoomNotFound"
	case errors.Is(err, engine.ErrNameConflict):
		return "NameConflict"
	case errors.Is(err, engine.ErrInvalidName):
		return "InvalidName"
	case errors.Is(err, engine.ErrAlreadyInRoom):
		return "AlreadyInRoom"
	case errors.Is(err, engine.ErrNotAuthorized):
		return "NotAuthorized"
	case errors.Is(err, engine.ErrInvalidTarget):
		return "InvalidTarget"
	case errors.Is(err, engine.ErrNotYourTurn):
		return "NotYourTurn"
	case errors.Is(err, engine.ErrInvalidStat):
		return "InvalidStat"
	case errors.Is(err, engine.ErrInvalidSettings):
		return "InvalidSettings"
	case errors.Is(err, engine.ErrNoActivePlayers):
		return "NoActivePlayers"
	case errors.Is(err, ErrBadRequest):
		return "BadRequest"
	case errors.Is(err, card.ErrUnavailable):
		return "CardProviderUnavailable"
	default:
		return "Internal"
	}
}
