package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/skip2/go-qrcode"
	"go.uber.org/zap"

	"github.com/DoyleJ11/stat-clash-backend/internal/engine"
	"github.com/DoyleJ11/stat-clash-backend/internal/hub"
	"github.com/DoyleJ11/stat-clash-backend/internal/lobby"
)

const (
	qrSize        = 320
	lookupTimeout = 2 * time.Second
)

// RoomInfo is the public summary of a room, enough for a join page.
type RoomInfo struct {
	Code     string          `json:"code"`
	Phase    engine.Phase    `json:"phase"`
	Players  int             `json:"players"`
	Settings engine.Settings `json:"settings"`
	Round    int             `json:"round"`
}

type Health struct {
	Status   string `json:"status"`
	Rooms    int    `json:"rooms"`
	Sessions int    `json:"sessions"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func Healthz(h *hub.Hub, sessions func() int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
		defer cancel()

		rooms, err := h.Count(ctx)
		if err != nil {
			writeJSON(w, http.StatusServiceUnavailable, Health{Status: "unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, Health{Status: "ok", Rooms: rooms, Sessions: sessions()})
	}
}

// lookup resolves the {code} URL param, answering 404 itself when the room
// does not exist.
func lookup(h *hub.Hub, w http.ResponseWriter, r *http.Request) (*lobby.Lobby, bool) {
	ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
	defer cancel()

	lb, err := h.Lookup(ctx, chi.URLParam(r, "code"))
	switch {
	case errors.Is(err, engine.ErrRoomNotFound):
		http.Error(w, "room not found", http.StatusNotFound)
		return nil, false
	case err != nil:
		http.Error(w, "lookup failed", http.StatusServiceUnavailable)
		return nil, false
	}
	return lb, true
}

func GetRoom(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, ok := lookup(h, w, r)
		if !ok {
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), lookupTimeout)
		defer cancel()
		v, err := lb.Snapshot(ctx)
		if err != nil {
			http.Error(w, "room not found", http.StatusNotFound)
			return
		}

		writeJSON(w, http.StatusOK, RoomInfo{
			Code:     v.Room.Code,
			Phase:    v.Room.Phase,
			Players:  len(v.Room.Players),
			Settings: v.Room.Settings,
			Round:    v.Room.CurrentRound,
		})
	}
}

// RoomQR renders a PNG QR code pointing at the join URL of a room.
func RoomQR(h *hub.Hub, publicURL string, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		lb, ok := lookup(h, w, r)
		if !ok {
			return
		}

		link := JoinURL(baseURL(r, publicURL), lb.Code())
		png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
		if err != nil {
			log.Error("qr generation failed", zap.String("room", lb.Code()), zap.Error(err))
			http.Error(w, "qr generation failed", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write(png)
	}
}

// JoinURL is the link players follow to join code.
func JoinURL(base, code string) string {
	return strings.TrimRight(base, "/") + "/?room=" + url.QueryEscape(code)
}

// baseURL prefers the configured public URL and otherwise derives one from
// the request, respecting X-Forwarded-Proto.
func baseURL(r *http.Request, publicURL string) string {
	if publicURL != "" {
		return publicURL
	}
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host
}
