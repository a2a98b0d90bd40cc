package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/deepgram/parley/internal/config"
	"github.com/deepgram/parley/internal/logger"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	logger.Init()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "parley",
		Short:   "Chat client and development backend",
		Version: version,
		Long: `parley talks to a chat backend over a streaming websocket or plain
HTTP requests, keeps the conversation on disk between runs, and can serve a
development backend to talk to.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "YAML configuration file (overrides PARLEY_CONFIG)")
	root.PersistentFlags().String("mode", "", "transport mode: websocket or http (overrides CHAT_MODE)")

	root.AddCommand(newChatCmd(), newHistoryCmd(), newClearCmd(), newServeCmd())
	return root
}

// loadConfig applies the persistent flags on top of the file and environment.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		if err := os.Setenv("PARLEY_CONFIG", path); err != nil {
			return nil, err
		}
	}

	cfg, err := config.Load()
	if err != nil {
		log.Error().Str("component", logger.APP).Err(err).Msg("Failed to load configuration")
		return nil, err
	}

	if mode, _ := cmd.Flags().GetString("mode"); mode != "" {
		cfg.Chat.Mode = mode
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}
