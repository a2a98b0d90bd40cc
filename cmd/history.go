package main

import (
	"context"
	"fmt"

	"github.com/deepgram/parley/internal/domain/chat/models"
	"github.com/deepgram/parley/internal/services"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print the stored conversation",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			last, _ := cmd.Flags().GetInt("last")
			width, _ := cmd.Flags().GetInt("width")
			onlyReply, _ := cmd.Flags().GetBool("reply")

			svc, err := services.InitializeServices(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer svc.Close(context.WithoutCancel(cmd.Context()))

			msgs := svc.GetTranscript()
			out := cmd.OutOrStdout()

			if onlyReply {
				msg, ok := models.LastAssistant(msgs)
				if !ok {
					return fmt.Errorf("no assistant reply yet")
				}
				fmt.Fprintln(out, msg.Content)
				return nil
			}

			if len(msgs) == 0 {
				fmt.Fprintln(out, "No messages yet.")
				return nil
			}
			if last <= 0 {
				last = len(msgs)
			}
			fmt.Fprintln(out, models.Summary(msgs, last, width))
			return nil
		},
	}

	cmd.Flags().IntP("last", "n", 0, "show only the last n messages")
	cmd.Flags().Int("width", 0, "truncate each message to this many characters")
	cmd.Flags().Bool("reply", false, "print only the latest assistant reply")
	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Forget the stored conversation and session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			svc, err := services.InitializeServices(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer svc.Close(context.WithoutCancel(cmd.Context()))

			svc.GetCoordinator().Clear(cmd.Context())
			fmt.Fprintln(cmd.OutOrStdout(), "Conversation cleared.")
			return nil
		},
	}
}
