package hub

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"

	"go.uber.org/zap"

	"github.com/DoyleJ11/stat-clash-backend/internal/engine"
	"github.com/DoyleJ11/stat-clash-backend/internal/lobby"
)

const (
	codeLength  = 6
	codeCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// GenerateCode returns a random room code.
func GenerateCode() (string, error) {
	code := make([]byte, codeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(codeCharset))))
		if err != nil {
			return "", err
		}
		code[i] = codeCharset[num.Int64()]
	}
	return string(code), nil
}

type Config struct {
	// Lobby is the template every room is started with. OnEmpty is owned by
	// the hub and overwritten.
	Lobby    lobby.Config
	Defaults engine.Settings
	Log      *zap.Logger
	NewCode  func() (string, error)
}

type HubMsg interface{ isHubMsg() }

type Created struct {
	Lobby *lobby.Lobby
	Err   error
}

type CreateRoom struct {
	SessionID  string
	PlayerName string
	Settings   *engine.SettingsPatch
	Reply      chan Created
}

type GetRoom struct {
	Code  string
	Reply chan *lobby.Lobby
}

// RemoveRoom drops Code from the registry if it still maps to Lobby.
type RemoveRoom struct {
	Code  string
	Lobby *lobby.Lobby
}

type Disconnect struct {
	SessionID string
	Reason    string
}

type CountRooms struct {
	Reply chan int
}

type ShutdownHub struct{}

func (CreateRoom) isHubMsg()  {}
func (GetRoom) isHubMsg()     {}
func (RemoveRoom) isHubMsg()  {}
func (Disconnect) isHubMsg()  {}
func (CountRooms) isHubMsg()  {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox chan HubMsg
	rooms map[string]*lobby.Lobby
	cfg   Config
	log   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewHub(parent context.Context, cfg Config) *Hub {
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.NewCode == nil {
		cfg.NewCode = GenerateCode
	}
	if cfg.Defaults == (engine.Settings{}) {
		cfg.Defaults = engine.DefaultSettings
	}
	if cfg.Lobby.Log == nil {
		cfg.Lobby.Log = cfg.Log
	}

	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:  make(chan HubMsg, 64),
		rooms:  make(map[string]*lobby.Lobby),
		cfg:    cfg,
		log:    cfg.Log,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

// Done is closed once the hub goroutine has exited.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) send(ctx context.Context, m HubMsg) error {
	if h.ctx.Err() != nil {
		return fmt.Errorf("hub stopped: %w", h.ctx.Err())
	}
	select {
	case <-h.ctx.Done():
		return fmt.Errorf("hub stopped: %w", h.ctx.Err())
	case <-ctx.Done():
		return ctx.Err()
	case h.inbox <- m:
		return nil
	}
}

// Create registers a new room with sessionID as its creator.
func (h *Hub) Create(ctx context.Context, sessionID, name string, patch *engine.SettingsPatch) (*lobby.Lobby, error) {
	reply := make(chan Created, 1)
	if err := h.send(ctx, CreateRoom{SessionID: sessionID, PlayerName: name, Settings: patch, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case res := <-reply:
		return res.Lobby, res.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Lookup finds a room by code, ignoring case.
func (h *Hub) Lookup(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	if err := h.send(ctx, GetRoom{Code: code, Reply: reply}); err != nil {
		return nil, err
	}
	select {
	case lb := <-reply:
		if lb == nil {
			return nil, fmt.Errorf("%w: %s", engine.ErrRoomNotFound, code)
		}
		return lb, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (h *Hub) Count(ctx context.Context) (int, error) {
	reply := make(chan int, 1)
	if err := h.send(ctx, CountRooms{Reply: reply}); err != nil {
		return 0, err
	}
	select {
	case n := <-reply:
		return n, nil
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Disconnect removes sessionID from whichever rooms it belongs to.
func (h *Hub) Disconnect(ctx context.Context, sessionID, reason string) error {
	return h.send(ctx, Disconnect{SessionID: sessionID, Reason: reason})
}

// Shutdown stops every room and waits for their goroutines, or for ctx.
func (h *Hub) Shutdown(ctx context.Context) error {
	if err := h.send(ctx, ShutdownHub{}); err != nil && h.ctx.Err() == nil {
		return err
	}
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (h *Hub) loop() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateRoom:
				lb, err := h.createRoom(msg)
				msg.Reply <- Created{Lobby: lb, Err: err}

			case GetRoom:
				msg.Reply <- h.rooms[strings.ToUpper(msg.Code)] // May be nil

			case RemoveRoom:
				if lb, ok := h.rooms[msg.Code]; ok && lb == msg.Lobby {
					delete(h.rooms, msg.Code)
					h.log.Info("room removed", zap.String("room", msg.Code), zap.Int("rooms", len(h.rooms)))
				}

			case Disconnect:
				leave := lobby.Leave{SessionID: msg.SessionID, Reason: msg.Reason}
				for _, lb := range h.rooms {
					go lb.Send(leave)
				}

			case CountRooms:
				msg.Reply <- len(h.rooms)

			case ShutdownHub:
				h.shutdown()
				return
			}
		}
	}
}

func (h *Hub) createRoom(msg CreateRoom) (*lobby.Lobby, error) {
	code, err := h.uniqueCode()
	if err != nil {
		return nil, err
	}

	settings := h.cfg.Defaults
	if p := msg.Settings; p != nil {
		if p.RoundsToWin != nil {
			settings.RoundsToWin = *p.RoundsToWin
		}
		if p.MaxWinners != nil {
			settings.MaxWinners = *p.MaxWinners
		}
	}

	cfg := h.cfg.Lobby
	cfg.OnEmpty = func(code string, l *lobby.Lobby) {
		_ = h.send(context.Background(), RemoveRoom{Code: code, Lobby: l})
	}
	lb, err := lobby.NewLobby(h.ctx, code, settings, msg.SessionID, msg.PlayerName, cfg)
	if err != nil {
		return nil, err
	}
	h.rooms[code] = lb
	h.log.Info("room registered", zap.String("room", code), zap.Int("rooms", len(h.rooms)))
	return lb, nil
}

func (h *Hub) uniqueCode() (string, error) {
	for {
		code, err := h.cfg.NewCode()
		if err != nil {
			return "", fmt.Errorf("generate room code: %w", err)
		}
		if _, taken := h.rooms[code]; !taken {
			return code, nil
		}
		h.log.Debug("collision on code, regenerating", zap.String("room", code))
	}
}

// shutdown cancels the shared context every lobby derives from, then waits
// for each of them to exit.
func (h *Hub) shutdown() {
	h.cancel()
	for code, lb := range h.rooms {
		<-lb.Done()
		delete(h.rooms, code)
	}
	h.log.Info("hub stopped")
}
