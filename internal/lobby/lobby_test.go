package lobby

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
	"github.com/DoyleJ11/stat-clash-backend/internal/engine"
	"github.com/DoyleJ11/stat-clash-backend/internal/types"
)

type fakeTransport struct {
	mu   sync.Mutex
	live map[string]bool
	out  map[string]chan types.ServerMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		live: map[string]bool{},
		out:  map[string]chan types.ServerMessage{},
	}
}

func (f *fakeTransport) outbox(id string) chan types.ServerMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.out[id]
	if !ok {
		ch = make(chan types.ServerMessage, 256)
		f.out[id] = ch
	}
	return ch
}

func (f *fakeTransport) Send(id string, msg types.ServerMessage) { f.outbox(id) <- msg }

func (f *fakeTransport) IsLive(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.live[id]
}

func (f *fakeTransport) setLive(id string, live bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.live[id] = live
}

type fakeCards struct {
	mu    sync.Mutex
	card  card.Card
	err   error
	gate  chan struct{}
	calls int
}

func (f *fakeCards) Fetch(ctx context.Context) (card.Card, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return card.Card{}, ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.card, f.err
}

func (f *fakeCards) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type harness struct {
	lobby *Lobby
	tr    *fakeTransport
	cards *fakeCards
	empty chan string
}

// newHarness starts a lobby created by session "a" named Alice.
func newHarness(t *testing.T, settings engine.Settings, roundDelay time.Duration) *harness {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		tr:    newFakeTransport(),
		cards: &fakeCards{card: card.Builtin()[0]},
		empty: make(chan string, 1),
	}
	h.tr.setLive("a", true)

	l, err := NewLobby(ctx, "ROOM01", settings, "a", "Alice", Config{
		Transport:    h.tr,
		Cards:        h.cards,
		Log:          zaptest.NewLogger(t),
		RoundDelay:   roundDelay,
		FetchTimeout: time.Second,
		OnEmpty:      func(code string, _ *Lobby) { h.empty <- code },
	})
	if err != nil {
		cancel()
		t.Fatalf("NewLobby: %v", err)
	}
	h.lobby = l
	t.Cleanup(func() {
		cancel()
		<-l.Done()
	})

	recvEvent(t, h.tr, "a", types.EvtRoomCreated)
	return h
}

func (h *harness) join(t *testing.T, id, name string) {
	t.Helper()
	h.tr.setLive(id, true)
	require.True(t, h.lobby.Send(Join{SessionID: id, Name: name}))
	recvEvent(t, h.tr, id, types.EvtRoomJoined)
}

func (h *harness) view(t *testing.T) View {
	t.Helper()
	reply := make(chan View, 1)
	require.True(t, h.lobby.Send(GetState{Reply: reply}))
	select {
	case v := <-reply:
		return v
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for view")
		return View{}
	}
}

func score(v View, id string) int {
	for _, p := range v.Room.Players {
		if p.ID == id {
			return p.Score
		}
	}
	return -1
}

// recvEvent reads id's messages until one carries event.
func recvEvent(t *testing.T, f *fakeTransport, id, event string) types.ServerMessage {
	t.Helper()
	ch := f.outbox(id)
	deadline := time.After(2 * time.Second)
	for {
		select {
		case msg := <-ch:
			if msg.Event == event {
				return msg
			}
		case <-deadline:
			t.Fatalf("%s: timed out waiting for %q", id, event)
			return types.ServerMessage{}
		}
	}
}

func recvNothing(t *testing.T, f *fakeTransport, id string, within time.Duration) {
	t.Helper()
	select {
	case msg := <-f.outbox(id):
		t.Fatalf("%s: expected no message within %v, got %+v", id, within, msg)
	case <-time.After(within):
	}
}

func errorCode(t *testing.T, msg types.ServerMessage) string {
	t.Helper()
	payload, ok := msg.Data.(types.ErrorPayload)
	require.True(t, ok, "error payload: %T", msg.Data)
	return payload.Code
}

func TestLobby_JoinBroadcastsToOthers(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)

	h.join(t, "b", "Bob")
	msg := recvEvent(t, h.tr, "a", types.EvtPlayerJoined)
	evt := msg.Data.(types.PlayerEvent)
	assert.Equal(t, "b", evt.PlayerID)
	assert.Len(t, evt.Room.Players, 2)
	assert.Equal(t, "ROOM01", msg.Room)
}

func TestLobby_NameConflictOnlyReachesRequester(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.tr.setLive("x", true)

	h.lobby.Send(Join{SessionID: "x", Name: "ALICE"})
	assert.Equal(t, "NameConflict", errorCode(t, recvEvent(t, h.tr, "x", types.EvtError)))

	assert.Len(t, h.view(t).Room.Players, 1)
	recvNothing(t, h.tr, "a", 50*time.Millisecond)
}

func TestLobby_ReconnectTakesOverStaleSession(t *testing.T) {
	h := newHarness(t, engine.Settings{RoundsToWin: 5, MaxWinners: 1}, time.Hour)
	h.join(t, "b", "Bob")
	h.lobby.Send(StartGame{SessionID: "a"})
	recvEvent(t, h.tr, "b", types.EvtRoundStarted)
	h.lobby.Send(SelectStat{SessionID: "a", Stat: card.StatHP})
	recvEvent(t, h.tr, "b", types.EvtRoundComplete)

	h.tr.setLive("a", false)
	h.tr.setLive("a2", true)
	h.lobby.Send(Join{SessionID: "a2", Name: "alice"})

	joined := recvEvent(t, h.tr, "a2", types.EvtRoomJoined).Data.(types.RoomJoined)
	assert.True(t, joined.Reconnected)
	require.NotNil(t, joined.Round)
	assert.Equal(t, "a2", joined.Room.Creator)

	evt := recvEvent(t, h.tr, "b", types.EvtPlayerReconnected).Data.(types.PlayerEvent)
	assert.Equal(t, "a2", evt.PlayerID)

	v := h.view(t)
	assert.Equal(t, 1, score(v, "a2"))
	assert.Equal(t, -1, score(v, "a"))
	assert.ElementsMatch(t, []string{"alice", "bob"}, v.ReservedNames)
}

func TestLobby_FullRoundAndTimerAdvance(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, 20*time.Millisecond)
	h.join(t, "b", "Bob")

	h.lobby.Send(StartGame{SessionID: "a"})
	rs := recvEvent(t, h.tr, "b", types.EvtRoundStarted).Data.(engine.RoundState)
	assert.Equal(t, 1, rs.Round)
	assert.Equal(t, "a", rs.Picker)
	for _, p := range rs.Players {
		require.NotNil(t, p.Card, p.ID)
	}

	h.lobby.Send(SelectStat{SessionID: "b", Stat: card.StatHP})
	assert.Equal(t, "NotYourTurn", errorCode(t, recvEvent(t, h.tr, "b", types.EvtError)))

	h.lobby.Send(SelectStat{SessionID: "a", Stat: card.StatHP})
	res := recvEvent(t, h.tr, "b", types.EvtRoundComplete).Data.(engine.RoundResult)
	assert.Equal(t, []string{"a", "b"}, res.RoundWinners, "identical cards tie")
	assert.False(t, res.GameEnded)

	next := recvEvent(t, h.tr, "b", types.EvtRoundStarted).Data.(engine.RoundState)
	assert.Equal(t, 2, next.Round)
	assert.Equal(t, "b", next.Picker)

	v := h.view(t)
	assert.Equal(t, 1, score(v, "a"))
	assert.Equal(t, 0, score(v, "b"))
}

func TestLobby_SecondSelectStatBeforeNextRoundIsRejected(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.join(t, "b", "Bob")
	h.lobby.Send(StartGame{SessionID: "a"})
	recvEvent(t, h.tr, "a", types.EvtRoundStarted)

	h.lobby.Send(SelectStat{SessionID: "a", Stat: card.StatHP})
	h.lobby.Send(SelectStat{SessionID: "a", Stat: card.StatAttack})

	recvEvent(t, h.tr, "a", types.EvtRoundComplete)
	assert.Equal(t, "NotYourTurn", errorCode(t, recvEvent(t, h.tr, "a", types.EvtError)))

	v := h.view(t)
	assert.Equal(t, 1, score(v, "a"))
	assert.Equal(t, engine.PhaseRevealed, v.Room.Phase)
	assert.True(t, v.TimerArmed)
}

func TestLobby_CardFailureLeavesRoomUntouched(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.join(t, "b", "Bob")
	h.cards.setErr(errors.New("upstream down"))

	h.lobby.Send(StartGame{SessionID: "a"})
	assert.Equal(t, "CardProviderUnavailable", errorCode(t, recvEvent(t, h.tr, "a", types.EvtError)))

	v := h.view(t)
	assert.Equal(t, engine.PhaseWaiting, v.Room.Phase)
	assert.Equal(t, 1, v.Room.CurrentRound)
	assert.Empty(t, v.Room.Picker)
	recvNothing(t, h.tr, "b", 50*time.Millisecond)
}

func TestLobby_LeaveDuringDrawWaitsForTheDeal(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.join(t, "b", "Bob")
	h.join(t, "c", "Carol")
	h.cards.gate = make(chan struct{})

	h.lobby.Send(StartGame{SessionID: "a"})
	h.lobby.Send(Leave{SessionID: "b", Reason: "left"})
	time.Sleep(20 * time.Millisecond)
	close(h.cards.gate)

	rs := recvEvent(t, h.tr, "a", types.EvtRoundStarted).Data.(engine.RoundState)
	assert.Len(t, rs.Players, 3)
	left := recvEvent(t, h.tr, "a", types.EvtPlayerLeft).Data.(types.PlayerEvent)
	assert.Equal(t, "b", left.PlayerID)
	assert.Len(t, left.Room.Players, 2)
}

func TestLobby_NonCreatorRequestsAreSilent(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.join(t, "b", "Bob")
	recvEvent(t, h.tr, "a", types.EvtPlayerJoined)
	rounds := 9

	h.lobby.Send(StartGame{SessionID: "b"})
	h.lobby.Send(Rematch{SessionID: "b"})
	h.lobby.Send(Kick{SessionID: "b", TargetID: "a"})
	h.lobby.Send(TransferCreator{SessionID: "b", TargetID: "b"})
	h.lobby.Send(UpdateSettings{SessionID: "b", Patch: engine.SettingsPatch{RoundsToWin: &rounds}})

	v := h.view(t)
	assert.Equal(t, "a", v.Room.Creator)
	assert.Len(t, v.Room.Players, 2)
	assert.Equal(t, engine.PhaseWaiting, v.Room.Phase)
	assert.Equal(t, engine.DefaultSettings.RoundsToWin, v.Room.Settings.RoundsToWin)
	recvNothing(t, h.tr, "a", 50*time.Millisecond)
	recvNothing(t, h.tr, "b", 50*time.Millisecond)
}

func TestLobby_SettingsUpdateByCreator(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.join(t, "b", "Bob")
	rounds, winners := 7, 3

	h.lobby.Send(UpdateSettings{SessionID: "a", Patch: engine.SettingsPatch{RoundsToWin: &rounds, MaxWinners: &winners}})
	upd := recvEvent(t, h.tr, "b", types.EvtSettingsUpdated).Data.(types.RoomUpdate)
	assert.Equal(t, engine.Settings{RoundsToWin: 7, MaxWinners: 1}, upd.Room.Settings)

	h.join(t, "c", "Carol")
	h.join(t, "d", "Dave")
	assert.Equal(t, 3, h.view(t).Room.Settings.MaxWinners)
}

func TestLobby_KickTransferAndCreatorReassignment(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.join(t, "b", "Bob")
	h.join(t, "c", "Carol")

	h.lobby.Send(Kick{SessionID: "a", TargetID: "b"})
	recvEvent(t, h.tr, "b", types.EvtKicked)
	kicked := recvEvent(t, h.tr, "c", types.EvtPlayerKicked).Data.(types.PlayerEvent)
	assert.Equal(t, "b", kicked.PlayerID)

	h.lobby.Send(TransferCreator{SessionID: "a", TargetID: "c"})
	tr := recvEvent(t, h.tr, "a", types.EvtCreatorTransferred).Data.(types.CreatorTransferred)
	assert.Equal(t, "c", tr.To)

	h.lobby.Send(TransferCreator{SessionID: "c", TargetID: "a"})
	recvEvent(t, h.tr, "c", types.EvtCreatorTransferred)

	h.lobby.Send(Leave{SessionID: "a", Reason: "left"})
	left := recvEvent(t, h.tr, "c", types.EvtPlayerLeft).Data.(types.PlayerEvent)
	assert.Equal(t, "c", left.NewCreator)
	assert.Equal(t, "c", h.view(t).Room.Creator)
}

func TestLobby_EmptyRoomShutsDown(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)

	h.lobby.Send(Leave{SessionID: "a", Reason: "disconnected"})

	select {
	case code := <-h.empty:
		assert.Equal(t, "ROOM01", code)
	case <-time.After(time.Second):
		t.Fatalf("OnEmpty was not called")
	}
	<-h.lobby.Done()
	assert.False(t, h.lobby.Send(Join{SessionID: "z", Name: "Zed"}))
}

func TestLobby_QueuedRequestsAnsweredWhenRoomCloses(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.cards.gate = make(chan struct{})
	h.tr.setLive("b", true)

	// The deal holds the loop, so everything below queues behind it.
	require.True(t, h.lobby.Send(StartGame{SessionID: "a"}))
	require.True(t, h.lobby.Send(Leave{SessionID: "a", Reason: "left"}))
	require.True(t, h.lobby.Send(Join{SessionID: "b", Name: "Bob"}))
	reply := make(chan View, 1)
	require.True(t, h.lobby.Send(GetState{Reply: reply}))
	close(h.cards.gate)

	msg := recvEvent(t, h.tr, "b", types.EvtError)
	assert.Equal(t, "RoomNotFound", errorCode(t, msg))

	select {
	case v := <-reply:
		assert.Empty(t, v.Room.Players)
	case <-time.After(time.Second):
		t.Fatalf("queued state query was never answered")
	}
	<-h.lobby.Done()
	assert.Equal(t, "ROOM01", <-h.empty)
	assert.False(t, h.lobby.Send(Join{SessionID: "c", Name: "Carol"}))
}

func TestLobby_DeparturesEndTheGame(t *testing.T) {
	h := newHarness(t, engine.Settings{RoundsToWin: 1, MaxWinners: 3}, time.Hour)
	h.join(t, "b", "Bob")
	h.join(t, "c", "Carol")
	h.join(t, "d", "Dave")

	h.lobby.Send(StartGame{SessionID: "a"})
	rs := recvEvent(t, h.tr, "b", types.EvtRoundStarted).Data.(engine.RoundState)
	h.lobby.Send(SelectStat{SessionID: rs.Picker, Stat: card.StatHP})
	res := recvEvent(t, h.tr, "b", types.EvtRoundComplete).Data.(engine.RoundResult)
	require.False(t, res.GameEnded)
	require.Equal(t, []string{"a"}, res.Winners)
	require.True(t, h.view(t).TimerArmed)

	h.lobby.Send(Leave{SessionID: "c", Reason: "left"})
	left := recvEvent(t, h.tr, "b", types.EvtPlayerLeft).Data.(types.PlayerEvent)
	assert.False(t, left.GameEnded)

	h.lobby.Send(Leave{SessionID: "d", Reason: "disconnected"})
	left = recvEvent(t, h.tr, "b", types.EvtPlayerLeft).Data.(types.PlayerEvent)
	assert.True(t, left.GameEnded)
	ended := recvEvent(t, h.tr, "b", types.EvtRoundComplete).Data.(engine.RoundResult)
	assert.True(t, ended.GameEnded)
	assert.Equal(t, []string{"a"}, ended.Winners)
	assert.Len(t, ended.Players, 2)

	v := h.view(t)
	assert.Equal(t, engine.PhaseEnded, v.Room.Phase)
	assert.False(t, v.TimerArmed)
	assert.Empty(t, v.ReservedNames)
}

func TestLobby_TransferToDisconnectedPlayerIsRejected(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, time.Hour)
	h.join(t, "b", "Bob")
	h.tr.setLive("b", false)

	h.lobby.Send(TransferCreator{SessionID: "a", TargetID: "b"})
	msg := recvEvent(t, h.tr, "a", types.EvtError)
	assert.Equal(t, "InvalidTarget", errorCode(t, msg))
	assert.Equal(t, "a", h.view(t).Room.Creator)

	h.lobby.Send(Kick{SessionID: "a", TargetID: "ghost"})
	msg = recvEvent(t, h.tr, "a", types.EvtError)
	assert.Equal(t, "InvalidTarget", errorCode(t, msg))
}

func TestLobby_GameEndReleasesNamesAndStopsRounds(t *testing.T) {
	h := newHarness(t, engine.Settings{RoundsToWin: 1, MaxWinners: 1}, 10*time.Millisecond)
	h.join(t, "b", "Bob")
	h.lobby.Send(StartGame{SessionID: "a"})
	recvEvent(t, h.tr, "b", types.EvtRoundStarted)

	h.lobby.Send(SelectStat{SessionID: "a", Stat: card.StatDefense})
	res := recvEvent(t, h.tr, "b", types.EvtRoundComplete).Data.(engine.RoundResult)
	assert.True(t, res.GameEnded)
	assert.Equal(t, []string{"a"}, res.Winners)

	v := h.view(t)
	assert.Equal(t, engine.PhaseEnded, v.Room.Phase)
	assert.Empty(t, v.ReservedNames)
	assert.False(t, v.TimerArmed)
	recvNothing(t, h.tr, "b", 50*time.Millisecond)

	h.lobby.Send(Rematch{SessionID: "a"})
	reset := recvEvent(t, h.tr, "b", types.EvtGameReset).Data.(types.RoomUpdate)
	assert.Empty(t, reset.Room.Winners)
	rs := recvEvent(t, h.tr, "b", types.EvtRoundStarted).Data.(engine.RoundState)
	assert.Equal(t, 1, rs.Round)
	assert.False(t, rs.GameEnded)
	assert.Len(t, h.view(t).ReservedNames, 2)
}

func TestLobby_ShutdownStopsTimer(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, 100*time.Millisecond)
	h.join(t, "b", "Bob")
	h.lobby.Send(StartGame{SessionID: "a"})
	recvEvent(t, h.tr, "b", types.EvtRoundStarted)
	h.lobby.Send(SelectStat{SessionID: "a", Stat: card.StatHP})
	recvEvent(t, h.tr, "b", types.EvtRoundComplete)

	h.lobby.Send(Shutdown{})
	<-h.lobby.Done()
	recvNothing(t, h.tr, "b", 200*time.Millisecond)
}

func TestLobby_TimerRetriesThenReportsError(t *testing.T) {
	h := newHarness(t, engine.DefaultSettings, 5*time.Millisecond)
	h.join(t, "b", "Bob")
	h.lobby.Send(StartGame{SessionID: "a"})
	recvEvent(t, h.tr, "b", types.EvtRoundStarted)

	h.cards.setErr(errors.New("upstream down"))
	h.lobby.Send(SelectStat{SessionID: "a", Stat: card.StatHP})
	recvEvent(t, h.tr, "b", types.EvtRoundComplete)

	assert.Equal(t, "CardProviderUnavailable", errorCode(t, recvEvent(t, h.tr, "b", types.EvtError)))
	v := h.view(t)
	assert.Equal(t, engine.PhaseRevealed, v.Room.Phase)
	assert.Equal(t, 2, v.Room.CurrentRound)
}
