package main

import (
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/roomcast/roomcast/internal/chat"
	"github.com/roomcast/roomcast/internal/server"
)

const shutdownTimeout = 5 * time.Second

var rootCmd = &cobra.Command{
	Use:   "roomcast",
	Short: "Real-time multi-room chat server with live presence",
	RunE:  runServer,
}

var (
	flagPort           string
	flagOrigins        []string
	flagMaxMessageSize int64
	flagDebug          bool
)

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&flagPort, "port", "", "listen address, e.g. :3500 (overrides SERVER_PORT)")
	flags.StringSliceVar(&flagOrigins, "allowed-origins", nil, "allowed WebSocket origins, * for any (overrides ALLOWED_ORIGINS)")
	flags.Int64Var(&flagMaxMessageSize, "max-message-size", 0, "maximum inbound frame size in bytes (overrides MAX_MESSAGE_SIZE)")
	flags.BoolVar(&flagDebug, "debug", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("execute root command")
	}
}

func runServer(cmd *cobra.Command, args []string) error {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if flagDebug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})

	cfg := server.NewConfigFromEnv()
	if flagPort != "" {
		cfg.Port = flagPort
	}
	if len(flagOrigins) > 0 {
		cfg.AllowedOrigins = flagOrigins
	}
	if flagMaxMessageSize > 0 {
		cfg.MaxMessageSize = flagMaxMessageSize
	}
	server.SetConfig(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	coordinator := chat.NewCoordinator(log.Logger)
	hub := server.NewHub(coordinator, log.Logger)
	go hub.Run()

	httpServer := server.CreateServer(cfg.Port, server.NewRouter(hub))

	errCh := make(chan error, 1)
	go func() {
		if err := server.StartServer(httpServer); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	if err := server.ShutdownServer(httpServer, shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("http shutdown incomplete")
	}
	if err := hub.Shutdown(shutdownTimeout); err != nil {
		log.Warn().Err(err).Msg("hub shutdown incomplete")
	}

	log.Info().Msg("shutdown complete")
	return nil
}
