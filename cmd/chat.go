package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/logger"
	"github.com/deepgram/parley/internal/services"
	"github.com/deepgram/parley/internal/services/chat"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const replHelp = `Commands:
  /mode websocket|http  switch transport
  /history              show the recent conversation
  /clear                forget the conversation and start a new session
  /quit                 exit`

func newChatCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "chat [message]",
		Short: "Chat interactively, or send one message and print the reply",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			printer := newPrinter(cmd.OutOrStdout(), cmd.ErrOrStderr())
			svc, err := services.InitializeServices(ctx, cfg, printer.listener())
			if err != nil {
				return err
			}
			defer func() {
				if err := svc.Close(context.WithoutCancel(ctx)); err != nil {
					log.Warn().Str("component", logger.APP).Err(err).Msg("Failed to close services")
				}
			}()

			if len(args) == 1 {
				_, err := svc.GetCoordinator().Send(ctx, args[0])
				return err
			}
			return runREPL(ctx, svc, cmd.InOrStdin(), printer)
		},
	}
}

func runREPL(ctx context.Context, svc *services.Services, in io.Reader, p *printer) error {
	coord := svc.GetCoordinator()
	p.info("Connected to parley (%s). Type /help for commands.", coord.Mode())

	if msgs := svc.GetTranscript(); len(msgs) > 0 {
		p.info("%s", models.Summary(msgs, 4, 120))
	}

	scanner := bufio.NewScanner(in)
	for {
		p.prompt()
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "/quit" || line == "/exit":
			return nil
		case line == "/help":
			p.info("%s", replHelp)
		case line == "/history":
			msgs := svc.GetTranscript()
			if len(msgs) == 0 {
				p.info("No messages yet.")
				continue
			}
			p.info("%s", models.Summary(msgs, len(msgs), 0))
		case line == "/clear":
			coord.Clear(ctx)
			p.info("Conversation cleared.")
		case strings.HasPrefix(line, "/mode"):
			switch strings.TrimSpace(strings.TrimPrefix(line, "/mode")) {
			case "websocket", "ws":
				coord.SetMode(chat.ModeStreaming)
			case "http":
				coord.SetMode(chat.ModeRequest)
			default:
				p.info("Usage: /mode websocket|http")
				continue
			}
			p.info("Mode: %s", coord.Mode())
		default:
			if _, err := coord.Send(ctx, line); err != nil && ctx.Err() != nil {
				return nil
			}
		}
	}
}

// printer renders coordinator events on the terminal. Streamed fragments are
// written as they arrive; a reply that was not streamed is written whole.
type printer struct {
	out    io.Writer
	errOut io.Writer

	mu       sync.Mutex
	streamed bool
}

func newPrinter(out, errOut io.Writer) *printer {
	return &printer{out: out, errOut: errOut}
}

func (p *printer) listener() chat.Listener {
	return chat.ListenerFuncs{
		AssistantDelta: func(fragment string) {
			p.mu.Lock()
			defer p.mu.Unlock()
			p.streamed = true
			fmt.Fprint(p.out, fragment)
		},
		AssistantMessageCommitted: func(msg models.Message) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if !p.streamed {
				fmt.Fprint(p.out, msg.Content)
			}
			fmt.Fprintln(p.out)
			p.streamed = false
		},
		Error: func(reason string) {
			p.mu.Lock()
			defer p.mu.Unlock()
			if p.streamed {
				fmt.Fprintln(p.out)
			}
			p.streamed = false
			fmt.Fprintf(p.errOut, "error: %s\n", reason)
		},
		ConnectionStateChanged: func(state models.ConnectionState) {
			log.Debug().Str("component", logger.APP).Str("state", state.String()).Msg("Connection state changed")
		},
	}
}

func (p *printer) prompt() {
	fmt.Fprint(p.out, "> ")
}

func (p *printer) info(format string, args ...any) {
	fmt.Fprintf(p.errOut, format+"\n", args...)
}
