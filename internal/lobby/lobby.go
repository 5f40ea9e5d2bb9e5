package lobby

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
	"github.com/DoyleJ11/stat-clash-backend/internal/engine"
	"github.com/DoyleJ11/stat-clash-backend/internal/types"
)

// maxAdvanceAttempts bounds timer-driven retries when cards cannot be drawn.
const maxAdvanceAttempts = 3

// Transport delivers messages to sessions and reports whether a session is
// still connected.
type Transport interface {
	Send(sessionID string, msg types.ServerMessage)
	IsLive(sessionID string) bool
}

type Config struct {
	Transport    Transport
	Cards        card.Provider
	Log          *zap.Logger
	RoundDelay   time.Duration
	FetchTimeout time.Duration
	// OnEmpty runs on the lobby goroutine once the last player is gone.
	OnEmpty func(code string, l *Lobby)
}

type Msg interface{ isLobbyMsg() }

type Join struct {
	SessionID string
	Name      string
}

type Leave struct {
	SessionID string
	Reason    string
}

type UpdateSettings struct {
	SessionID string
	Patch     engine.SettingsPatch
}

type TransferCreator struct {
	SessionID string
	TargetID  string
}

type StartGame struct{ SessionID string }

type SelectStat struct {
	SessionID string
	Stat      string
}

type Rematch struct{ SessionID string }

type Kick struct {
	SessionID string
	TargetID  string
}

type GetState struct {
	Reply chan View
}

type Shutdown struct{}

type timerFired struct {
	gen     int
	attempt int
}

func (Join) isLobbyMsg()            {}
func (Leave) isLobbyMsg()           {}
func (UpdateSettings) isLobbyMsg()  {}
func (TransferCreator) isLobbyMsg() {}
func (StartGame) isLobbyMsg()       {}
func (SelectStat) isLobbyMsg()      {}
func (Rematch) isLobbyMsg()         {}
func (Kick) isLobbyMsg()            {}
func (GetState) isLobbyMsg()        {}
func (Shutdown) isLobbyMsg()        {}
func (timerFired) isLobbyMsg()      {}

// View is a read-only copy of the room taken on the lobby goroutine.
type View struct {
	Room          engine.RoomView
	ReservedNames []string
	TimerArmed    bool
}

// Lobby owns one room. Every message is handled to completion on a single
// goroutine, including the card draws of round advancement, so no two
// operations on the same room ever interleave.
type Lobby struct {
	code  string
	inbox chan Msg
	state *engine.State
	cfg   Config
	log   *zap.Logger

	timer    *time.Timer
	timerGen int

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	// mu guards closed. Send holds it shared while queueing so the final
	// drain sees every message that made it into the inbox.
	mu     sync.RWMutex
	closed bool
}

// NewLobby creates the room with its creator as sole player and starts the
// lobby goroutine. The creator is greeted with room-created.
func NewLobby(parent context.Context, code string, requested engine.Settings, creatorID, creatorName string, cfg Config) (*Lobby, error) {
	state := engine.NewState(code, requested)
	if _, err := state.AddPlayer(creatorID, creatorName, true); err != nil {
		return nil, err
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}

	ctx, cancel := context.WithCancel(parent)
	l := &Lobby{
		code:   code,
		inbox:  make(chan Msg, 64),
		state:  state,
		cfg:    cfg,
		log:    cfg.Log.With(zap.String("room", code)),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}

	go l.loop(creatorID)
	return l, nil
}

func (l *Lobby) Code() string { return l.code }

// Send queues m for the lobby goroutine. It reports false once the lobby has
// shut down.
func (l *Lobby) Send(m Msg) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed || l.ctx.Err() != nil {
		return false
	}
	select {
	case <-l.ctx.Done():
		return false
	case l.inbox <- m:
		return true
	}
}

// Snapshot asks the lobby goroutine for a View of the room.
func (l *Lobby) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if !l.Send(GetState{Reply: reply}) {
		return View{}, engine.ErrRoomNotFound
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.done:
		return View{}, engine.ErrRoomNotFound
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Done is closed when the lobby goroutine has exited.
func (l *Lobby) Done() <-chan struct{} { return l.done }

func (l *Lobby) loop(creatorID string) {
	defer close(l.done)

	l.send(creatorID, types.EvtRoomCreated, types.RoomCreated{Room: l.state.View(), You: creatorID})
	l.log.Info("room created", zap.String("creator", creatorID))

	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Join:
				l.handleJoin(msg)
			case Leave:
				l.handleLeave(msg)
			case UpdateSettings:
				l.handleUpdateSettings(msg)
			case TransferCreator:
				l.handleTransfer(msg)
			case StartGame:
				l.handleRestart(msg.SessionID, true)
			case Rematch:
				l.handleRestart(msg.SessionID, false)
			case SelectStat:
				l.handleSelectStat(msg)
			case Kick:
				l.handleKick(msg)
			case timerFired:
				l.handleTimer(msg)
			case GetState:
				msg.Reply <- l.view()
			case Shutdown:
				l.shutdown()
				return
			}

			if len(l.state.Players) == 0 {
				l.log.Info("room empty, closing")
				l.shutdown()
				if l.cfg.OnEmpty != nil {
					l.cfg.OnEmpty(l.code, l)
				}
				return
			}
		}
	}
}

func (l *Lobby) view() View {
	return View{
		Room:          l.state.View(),
		ReservedNames: l.state.ReservedNames.ToSlice(),
		TimerArmed:    l.timer != nil,
	}
}

// shutdown stops the room and answers whatever is still queued: requests
// from sessions get RoomNotFound, state queries get a last snapshot.
func (l *Lobby) shutdown() {
	l.cancelTimer()
	l.cancel()

	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()

	gone := fmt.Errorf("%w: %s", engine.ErrRoomNotFound, l.code)
	for {
		select {
		case m := <-l.inbox:
			if id := sessionOf(m); id != "" {
				l.reject(id, gone)
			} else if q, ok := m.(GetState); ok {
				q.Reply <- l.view()
			}
		default:
			return
		}
	}
}

// sessionOf returns the requesting session of m, or "" for messages nobody
// waits on.
func sessionOf(m Msg) string {
	switch msg := m.(type) {
	case Join:
		return msg.SessionID
	case UpdateSettings:
		return msg.SessionID
	case TransferCreator:
		return msg.SessionID
	case StartGame:
		return msg.SessionID
	case SelectStat:
		return msg.SessionID
	case Rematch:
		return msg.SessionID
	case Kick:
		return msg.SessionID
	}
	return ""
}

func (l *Lobby) handleJoin(msg Join) {
	outcome, p, err := engine.ResolveJoin(l.state, msg.SessionID, msg.Name, l.cfg.Transport.IsLive)
	if err != nil {
		l.reject(msg.SessionID, err)
		return
	}

	view := l.state.View()
	joined := types.RoomJoined{Room: view, You: p.ID, Reconnected: outcome == engine.JoinReconnected}
	if rs, ok := l.state.CurrentRoundState(); ok {
		joined.Round = &rs
	}
	l.send(p.ID, types.EvtRoomJoined, joined)

	evt := types.EvtPlayerJoined
	if joined.Reconnected {
		evt = types.EvtPlayerReconnected
		l.log.Info("player reconnected", zap.String("session", p.ID), zap.String("name", p.Name))
	} else {
		l.log.Info("player joined", zap.String("session", p.ID), zap.String("name", p.Name))
	}
	l.broadcastExcept(p.ID, evt, types.PlayerEvent{Room: view, PlayerID: p.ID, Name: p.Name})
}

func (l *Lobby) handleLeave(msg Leave) {
	d, ok := engine.Depart(l.state, msg.SessionID)
	if !ok {
		return
	}
	l.log.Info("player left",
		zap.String("session", msg.SessionID),
		zap.String("reason", msg.Reason),
		zap.String("new_creator", d.NewCreator),
	)
	l.broadcast(types.EvtPlayerLeft, types.PlayerEvent{
		Room:       l.state.View(),
		PlayerID:   d.Player.ID,
		Name:       d.Player.Name,
		Reason:     msg.Reason,
		NewCreator: d.NewCreator,
		NewPicker:  d.NewPicker,
		GameEnded:  d.GameEnded,
	})
	l.endIfDeparted(d)
}

// endIfDeparted closes out a game that a departure just finished.
func (l *Lobby) endIfDeparted(d engine.Departure) {
	if !d.GameEnded {
		return
	}
	l.cancelTimer()
	l.log.Info("game ended by departure", zap.Strings("winners", l.state.Winners))
	l.broadcast(types.EvtRoundComplete, l.state.EndedResult())
}

// denied reports whether err refused the request. Requests from players
// without the creator role are dropped silently.
func (l *Lobby) denied(sessionID string, err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, engine.ErrNotAuthorized):
		l.log.Debug("creator-only request ignored", zap.String("session", sessionID))
	default:
		l.reject(sessionID, err)
	}
	return true
}

func (l *Lobby) handleKick(msg Kick) {
	d, err := engine.Kick(l.state, msg.SessionID, msg.TargetID)
	if l.denied(msg.SessionID, err) {
		return
	}
	l.log.Info("player kicked", zap.String("by", msg.SessionID), zap.String("session", msg.TargetID))

	l.send(d.Player.ID, types.EvtKicked, types.Kicked{
		Code:    l.code,
		Message: "You have been removed from the room by its creator.",
	})
	l.broadcast(types.EvtPlayerKicked, types.PlayerEvent{
		Room:       l.state.View(),
		PlayerID:   d.Player.ID,
		Name:       d.Player.Name,
		Reason:     "kicked",
		NewCreator: d.NewCreator,
		NewPicker:  d.NewPicker,
		GameEnded:  d.GameEnded,
	})
	l.endIfDeparted(d)
}

func (l *Lobby) handleTransfer(msg TransferCreator) {
	err := engine.TransferCreator(l.state, msg.SessionID, msg.TargetID, l.cfg.Transport.IsLive)
	if l.denied(msg.SessionID, err) {
		return
	}
	l.log.Info("creator transferred", zap.String("from", msg.SessionID), zap.String("to", msg.TargetID))
	l.broadcast(types.EvtCreatorTransferred, types.CreatorTransferred{
		Room: l.state.View(),
		From: msg.SessionID,
		To:   msg.TargetID,
	})
}

func (l *Lobby) handleUpdateSettings(msg UpdateSettings) {
	if l.denied(msg.SessionID, engine.RequireCreator(l.state, msg.SessionID)) {
		return
	}
	settings, err := engine.UpdateSettings(l.state, msg.Patch)
	if err != nil {
		l.reject(msg.SessionID, fmt.Errorf("%w: game in progress", err))
		return
	}
	l.log.Debug("settings updated",
		zap.Int("rounds_to_win", settings.RoundsToWin),
		zap.Int("max_winners", settings.MaxWinners),
	)
	l.broadcast(types.EvtSettingsUpdated, types.RoomUpdate{Room: l.state.View()})
}

// handleRestart runs start-game (zeroCards) and rematch. The reset and the
// first deal are built on a copy that only replaces the room on success.
func (l *Lobby) handleRestart(requester string, zeroCards bool) {
	if l.denied(requester, engine.RequireCreator(l.state, requester)) {
		return
	}

	next := l.state.Clone()
	engine.ResetGame(next, zeroCards)
	rs, err := l.deal(next)
	if err != nil {
		l.log.Warn("game start failed", zap.Error(err))
		l.reject(requester, err)
		return
	}

	l.cancelTimer()
	l.state = next
	l.log.Info("game started", zap.Bool("rematch", !zeroCards), zap.String("picker", rs.Picker))

	if !zeroCards {
		l.broadcast(types.EvtGameReset, types.RoomUpdate{Room: l.state.View()})
	}
	l.broadcast(types.EvtRoundStarted, rs)
}

func (l *Lobby) handleSelectStat(msg SelectStat) {
	if l.state.Phase != engine.PhaseSelecting || msg.SessionID != l.state.CurrentPicker {
		l.reject(msg.SessionID, engine.ErrNotYourTurn)
		return
	}

	res, err := engine.EvaluateRound(l.state, msg.Stat)
	if err != nil {
		l.reject(msg.SessionID, err)
		return
	}
	l.log.Info("round complete",
		zap.String("stat", res.Stat),
		zap.Strings("round_winners", res.RoundWinners),
		zap.Bool("game_ended", res.GameEnded),
	)
	l.broadcast(types.EvtRoundComplete, res)

	if !res.GameEnded {
		l.armTimer(1)
	}
}

func (l *Lobby) handleTimer(msg timerFired) {
	if msg.gen != l.timerGen || l.state.Phase != engine.PhaseRevealed {
		l.log.Debug("stale round timer dropped", zap.Int("gen", msg.gen))
		return
	}
	l.timer = nil

	next := l.state.Clone()
	rs, err := l.deal(next)
	if err != nil {
		if msg.attempt < maxAdvanceAttempts {
			l.log.Warn("next round failed, retrying", zap.Int("attempt", msg.attempt), zap.Error(err))
			l.armTimer(msg.attempt + 1)
			return
		}
		l.log.Error("next round failed", zap.Error(err))
		l.broadcast(types.EvtError, types.NewError(err))
		return
	}

	l.state = next
	l.broadcast(types.EvtRoundStarted, rs)
}

// deal plans the next round on s, draws every participant's card
// concurrently and applies them in one step. s is untouched on error.
func (l *Lobby) deal(s *engine.State) (engine.RoundState, error) {
	plan, err := engine.PlanRound(s)
	if err != nil {
		return engine.RoundState{}, err
	}
	cards, err := l.draw(plan.Participants)
	if err != nil {
		return engine.RoundState{}, err
	}
	return engine.ApplyRound(s, plan, cards), nil
}

func (l *Lobby) draw(ids []string) (map[string]card.Card, error) {
	ctx := l.ctx
	if l.cfg.FetchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.cfg.FetchTimeout)
		defer cancel()
	}

	drawn := make([]card.Card, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i := range ids {
		i := i
		g.Go(func() error {
			c, err := l.cfg.Cards.Fetch(gctx)
			if err != nil {
				return err
			}
			drawn[i] = c
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", card.ErrUnavailable, err)
	}

	out := make(map[string]card.Card, len(ids))
	for i, id := range ids {
		out[id] = drawn[i]
	}
	return out, nil
}

func (l *Lobby) armTimer(attempt int) {
	l.cancelTimer()
	gen := l.timerGen
	l.timer = time.AfterFunc(l.cfg.RoundDelay, func() {
		l.Send(timerFired{gen: gen, attempt: attempt})
	})
}

func (l *Lobby) cancelTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	l.timerGen++
}

func (l *Lobby) reject(sessionID string, err error) {
	l.log.Debug("request rejected", zap.String("session", sessionID), zap.Error(err))
	l.send(sessionID, types.EvtError, types.NewError(err))
}

func (l *Lobby) send(sessionID, event string, data any) {
	l.cfg.Transport.Send(sessionID, types.ServerMessage{Event: event, Room: l.code, Data: data})
}

func (l *Lobby) broadcast(event string, data any) {
	l.broadcastExcept("", event, data)
}

func (l *Lobby) broadcastExcept(skip, event string, data any) {
	msg := types.ServerMessage{Event: event, Room: l.code, Data: data}
	for _, id := range l.state.Order {
		if id == skip {
			continue
		}
		l.cfg.Transport.Send(id, msg)
	}
}
