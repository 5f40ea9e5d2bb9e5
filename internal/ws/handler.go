package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/DoyleJ11/stat-clash-backend/internal/engine"
	"github.com/DoyleJ11/stat-clash-backend/internal/hub"
	"github.com/DoyleJ11/stat-clash-backend/internal/lobby"
	"github.com/DoyleJ11/stat-clash-backend/internal/types"
)

const (
	outboxSize   = 32
	writeTimeout = 5 * time.Second
	pingInterval = 30 * time.Second
)

type Options struct {
	// DisconnectGrace delays the leave that follows a dropped connection so
	// the player can rejoin under the same name and keep their seat.
	DisconnectGrace time.Duration
	AllowedOrigins  []string
}

type session struct {
	id  string
	out chan types.ServerMessage
}

// Gateway tracks websocket sessions. It is the lobby.Transport of every
// room: messages for sessions that are gone are dropped.
type Gateway struct {
	opts Options
	log  *zap.Logger

	mu       sync.RWMutex
	sessions map[string]*session
}

var _ lobby.Transport = (*Gateway)(nil)

func NewGateway(log *zap.Logger, opts Options) *Gateway {
	if log == nil {
		log = zap.NewNop()
	}
	return &Gateway{
		opts:     opts,
		log:      log,
		sessions: make(map[string]*session),
	}
}

// Send queues msg for sessionID. A session whose outbox is full is dropped.
func (g *Gateway) Send(sessionID string, msg types.ServerMessage) {
	g.mu.Lock()
	defer g.mu.Unlock()

	s, ok := g.sessions[sessionID]
	if !ok {
		return
	}
	select {
	case s.out <- msg:
	default:
		g.log.Warn("outbox full, dropping session", zap.String("session", sessionID))
		delete(g.sessions, sessionID)
		close(s.out)
	}
}

func (g *Gateway) IsLive(sessionID string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.sessions[sessionID]
	return ok
}

// Sessions reports how many connections are open.
func (g *Gateway) Sessions() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.sessions)
}

func (g *Gateway) register() *session {
	s := &session{id: uuid.NewString(), out: make(chan types.ServerMessage, outboxSize)}
	g.mu.Lock()
	g.sessions[s.id] = s
	g.mu.Unlock()
	return s
}

func (g *Gateway) unregister(s *session) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.sessions[s.id] == s {
		delete(g.sessions, s.id)
		close(s.out)
	}
}

func (g *Gateway) Handler(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: g.opts.AllowedOrigins,
		})
		if err != nil {
			g.log.Debug("websocket accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		s := g.register()
		log := g.log.With(zap.String("session", s.id))
		log.Debug("session opened", zap.String("remote", r.RemoteAddr))
		defer g.disconnect(h, s, log)

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		go g.writeLoop(ctx, cancel, conn, s, log)

		g.Send(s.id, types.ServerMessage{Event: types.EvtSession, Data: types.Session{ID: s.id}})

		// Reader loop
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				switch websocket.CloseStatus(err) {
				case websocket.StatusNormalClosure, websocket.StatusGoingAway:
					log.Debug("session closed")
				default:
					log.Debug("read failed", zap.Error(err))
				}
				return
			}

			var cm types.ClientMessage
			if err := json.Unmarshal(data, &cm); err != nil {
				g.reject(s.id, "", fmt.Errorf("%w: %v", types.ErrBadRequest, err))
				continue
			}
			g.dispatch(ctx, h, s.id, cm)
		}
	}
}

func (g *Gateway) writeLoop(ctx context.Context, cancel context.CancelFunc, conn *websocket.Conn, s *session, log *zap.Logger) {
	defer cancel()
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case msg, ok := <-s.out:
			if !ok {
				_ = conn.Close(websocket.StatusPolicyViolation, "too slow")
				return
			}
			wctx, wcancel := context.WithTimeout(ctx, writeTimeout)
			err := wsjson.Write(wctx, conn, msg)
			wcancel()
			if err != nil {
				log.Debug("write failed", zap.Error(err))
				return
			}

		case <-ping.C:
			pctx, pcancel := context.WithTimeout(ctx, writeTimeout)
			err := conn.Ping(pctx)
			pcancel()
			if err != nil {
				log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

// disconnect marks the session gone at once and removes it from its rooms
// after the grace period.
func (g *Gateway) disconnect(h *hub.Hub, s *session, log *zap.Logger) {
	g.unregister(s)

	leave := func() {
		ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
		defer cancel()
		if err := h.Disconnect(ctx, s.id, "disconnected"); err != nil {
			log.Debug("disconnect not delivered", zap.Error(err))
		}
	}
	if g.opts.DisconnectGrace <= 0 {
		leave()
		return
	}
	time.AfterFunc(g.opts.DisconnectGrace, leave)
}

func (g *Gateway) dispatch(ctx context.Context, h *hub.Hub, sessionID string, cm types.ClientMessage) {
	if cm.Event == types.EvtCreateRoom {
		if _, err := h.Create(ctx, sessionID, cm.PlayerName, cm.Settings); err != nil {
			g.reject(sessionID, "", err)
		}
		return
	}

	msg, ok := toLobbyMsg(sessionID, cm)
	if !ok {
		g.reject(sessionID, cm.RoomCode, fmt.Errorf("%w: unknown event %q", types.ErrBadRequest, cm.Event))
		return
	}
	lb, err := h.Lookup(ctx, cm.RoomCode)
	if err != nil {
		g.reject(sessionID, cm.RoomCode, err)
		return
	}
	if !lb.Send(msg) {
		g.reject(sessionID, cm.RoomCode, fmt.Errorf("%w: %s", engine.ErrRoomNotFound, cm.RoomCode))
	}
}

func (g *Gateway) reject(sessionID, room string, err error) {
	g.Send(sessionID, types.ServerMessage{Event: types.EvtError, Room: room, Data: types.NewError(err)})
}

func toLobbyMsg(sessionID string, m types.ClientMessage) (lobby.Msg, bool) {
	switch m.Event {
	case types.EvtJoinRoom:
		return lobby.Join{SessionID: sessionID, Name: m.PlayerName}, true
	case types.EvtUpdateSettings:
		var patch engine.SettingsPatch
		if m.Settings != nil {
			patch = *m.Settings
		}
		return lobby.UpdateSettings{SessionID: sessionID, Patch: patch}, true
	case types.EvtTransferCreator:
		return lobby.TransferCreator{SessionID: sessionID, TargetID: m.TargetID}, true
	case types.EvtStartGame:
		return lobby.StartGame{SessionID: sessionID}, true
	case types.EvtSelectStat:
		return lobby.SelectStat{SessionID: sessionID, Stat: m.StatName}, true
	case types.EvtRematch:
		return lobby.Rematch{SessionID: sessionID}, true
	case types.EvtLeaveRoom:
		return lobby.Leave{SessionID: sessionID, Reason: "left"}, true
	case types.EvtKickPlayer:
		return lobby.Kick{SessionID: sessionID, TargetID: m.TargetID}, true
	default:
		return nil, false
	}
}
