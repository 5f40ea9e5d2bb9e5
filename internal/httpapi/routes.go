package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/DoyleJ11/stat-clash-backend/internal/hub"
	"github.com/DoyleJ11/stat-clash-backend/internal/ws"
)

type Options struct {
	PublicURL string
	Log       *zap.Logger
}

func SetupRoutes(h *hub.Hub, gw *ws.Gateway, opts Options) http.Handler {
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}

	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	// Public routes
	r.Get("/healthz", Healthz(h, gw.Sessions))
	r.Get("/ws", gw.Handler(h))
	r.Get("/rooms/{code}", GetRoom(h))
	r.Get("/rooms/{code}/qr", RoomQR(h, opts.PublicURL, opts.Log))
	return r
}
