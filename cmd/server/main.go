package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
	"github.com/DoyleJ11/stat-clash-backend/internal/httpapi"
	"github.com/DoyleJ11/stat-clash-backend/internal/hub"
	"github.com/DoyleJ11/stat-clash-backend/internal/lobby"
	"github.com/DoyleJ11/stat-clash-backend/internal/ws"
)

const shutdownTimeout = 10 * time.Second

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	cfg := &Config{}
	if err := newCmd(cfg, serve).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "stat-clash:", err)
		os.Exit(1)
	}
}

func newLogger(cfg *Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.logLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid --log-level: %w", err)
	}

	zcfg := zap.NewProductionConfig()
	if cfg.logFormat == "console" {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}

func noClose() error { return nil }

// openCards returns the configured card provider and a func releasing
// whatever it holds open.
func openCards(ctx context.Context, cfg *Config, log *zap.Logger) (card.Provider, func() error, error) {
	switch cfg.cardSource {
	case sourcePostgres:
		catalog, err := card.OpenCatalog(ctx, cfg.databaseURL, log)
		if err != nil {
			return nil, nil, err
		}
		return catalog, catalog.Close, nil
	case sourceBuiltin:
		return card.NewDeck(card.Builtin()), noClose, nil
	default:
		return card.NewPokeAPI(cfg.pokeAPIURL, cfg.pokeAPIMaxID, log), noClose, nil
	}
}

func serve(cmd *cobra.Command, cfg *Config) (err error) {
	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cards, closeCards, err := openCards(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("open card source %s: %w", cfg.cardSource, err)
	}
	defer func() { err = multierr.Append(err, closeCards()) }()

	gw := ws.NewGateway(log.Named("ws"), ws.Options{
		DisconnectGrace: cfg.disconnectGrace,
		AllowedOrigins:  cfg.allowedOrigins,
	})
	h := hub.NewHub(context.Background(), hub.Config{
		Lobby: lobby.Config{
			Transport:    gw,
			Cards:        cards,
			Log:          log.Named("lobby"),
			RoundDelay:   cfg.roundDelay,
			FetchTimeout: cfg.fetchTimeout,
		},
		Defaults: cfg.defaults(),
		Log:      log.Named("hub"),
	})

	srv := &http.Server{
		Addr:              cfg.addr(),
		Handler:           httpapi.SetupRoutes(h, gw, httpapi.Options{PublicURL: cfg.publicURL, Log: log.Named("http")}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		log.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("card_source", cfg.cardSource),
		)
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		if !errors.Is(err, http.ErrServerClosed) {
			return multierr.Append(err, h.Shutdown(context.Background()))
		}
		return nil
	case <-ctx.Done():
		log.Info("shutting down")
	}

	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return multierr.Combine(
		srv.Shutdown(sctx),
		h.Shutdown(sctx),
	)
}
