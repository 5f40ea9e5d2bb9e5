package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/DoyleJ11/stat-clash-backend/internal/card"
	"github.com/DoyleJ11/stat-clash-backend/internal/engine"
)

const (
	sourcePokeAPI  = "pokeapi"
	sourcePostgres = "postgres"
	sourceBuiltin  = "builtin"
)

type Config struct {
	bind            string
	port            int
	logLevel        string
	logFormat       string
	roundDelay      time.Duration
	fetchTimeout    time.Duration
	disconnectGrace time.Duration
	cardSource      string
	pokeAPIURL      string
	pokeAPIMaxID    int
	databaseURL     string
	publicURL       string
	allowedOrigins  []string
	roundsToWin     int
	maxWinners      int
}

func (c *Config) validate() error {
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	switch c.logFormat {
	case "json", "console":
	default:
		return fmt.Errorf("invalid log format %q (want json or console)", c.logFormat)
	}
	switch c.cardSource {
	case sourcePokeAPI:
		if c.pokeAPIMaxID < 1 {
			return fmt.Errorf("invalid --pokeapi-max-id: %d", c.pokeAPIMaxID)
		}
	case sourcePostgres:
		if c.databaseURL == "" {
			return errors.New("--database-url is required when --card-source=postgres")
		}
	case sourceBuiltin:
	default:
		return fmt.Errorf("invalid card source %q (want pokeapi, postgres or builtin)", c.cardSource)
	}
	if c.roundDelay < 0 || c.disconnectGrace < 0 {
		return errors.New("durations must not be negative")
	}
	if c.fetchTimeout <= 0 {
		return fmt.Errorf("invalid --fetch-timeout: %s", c.fetchTimeout)
	}
	if c.roundsToWin < 1 || c.roundsToWin > engine.MaxRoundsToWin {
		return fmt.Errorf("invalid --rounds-to-win (must be between 1-%d inclusive): %d", engine.MaxRoundsToWin, c.roundsToWin)
	}
	if c.maxWinners < 1 {
		return fmt.Errorf("invalid --max-winners: %d", c.maxWinners)
	}
	return nil
}

func (c *Config) addr() string {
	return fmt.Sprintf("%s:%d", c.bind, c.port)
}

func (c *Config) defaults() engine.Settings {
	return engine.Settings{RoundsToWin: c.roundsToWin, MaxWinners: c.maxWinners}
}

func newCmd(cfg *Config, run func(cmd *cobra.Command, cfg *Config) error) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("STATCLASH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "stat-clash",
		Short:         "Real-time rooms for a compare-the-stat card game.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return run(cmd, cfg)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: STATCLASH_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: STATCLASH_PORT)")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "minimum log level (env: STATCLASH_LOG_LEVEL)")
	fs.StringVar(&cfg.logFormat, "log-format", "json", "log encoding, json or console (env: STATCLASH_LOG_FORMAT)")
	fs.DurationVar(&cfg.roundDelay, "round-delay", 3*time.Second, "pause between a revealed round and the next deal (env: STATCLASH_ROUND_DELAY)")
	fs.DurationVar(&cfg.fetchTimeout, "fetch-timeout", 5*time.Second, "time allowed to draw a round's cards (env: STATCLASH_FETCH_TIMEOUT)")
	fs.DurationVar(&cfg.disconnectGrace, "disconnect-grace", 10*time.Second, "time a dropped player keeps their seat (env: STATCLASH_DISCONNECT_GRACE)")
	fs.StringVar(&cfg.cardSource, "card-source", sourcePokeAPI, "where cards come from: pokeapi, postgres or builtin (env: STATCLASH_CARD_SOURCE)")
	fs.StringVar(&cfg.pokeAPIURL, "pokeapi-url", card.DefaultPokeAPIURL, "PokeAPI base URL (env: STATCLASH_POKEAPI_URL)")
	fs.IntVar(&cfg.pokeAPIMaxID, "pokeapi-max-id", card.DefaultMaxID, "highest pokemon id to draw (env: STATCLASH_POKEAPI_MAX_ID)")
	fs.StringVar(&cfg.databaseURL, "database-url", "", "postgres DSN for the card catalog (env: STATCLASH_DATABASE_URL)")
	fs.StringVar(&cfg.publicURL, "public-url", "", "base URL used in join links and QR codes (env: STATCLASH_PUBLIC_URL)")
	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", nil, "extra websocket origin patterns (env: STATCLASH_ALLOWED_ORIGINS)")
	fs.IntVar(&cfg.roundsToWin, "rounds-to-win", engine.DefaultSettings.RoundsToWin, "default points needed to win (env: STATCLASH_ROUNDS_TO_WIN)")
	fs.IntVar(&cfg.maxWinners, "max-winners", engine.DefaultSettings.MaxWinners, "default number of winners that ends a game (env: STATCLASH_MAX_WINNERS)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})

	return cmd
}
