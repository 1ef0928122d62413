package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/nomirelay/nomirelay/internal/config"
	"github.com/nomirelay/nomirelay/internal/nomi"
	"github.com/nomirelay/nomirelay/internal/relay"
)

func sendCmd() *cobra.Command {
	var raw bool
	cmd := &cobra.Command{
		Use:   "send [message]",
		Short: "Send one message to the configured Nomi and print the reply",
		Long:  "Sends a message to the Nomi with the same length bound the relay applies, bypassing Discord. Useful to check credentials and the Nomi's responses.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			setupLogging()
			cfg, err := config.Load(resolveConfigPath())
			if err != nil {
				return err
			}
			if err := cfg.ValidateAgent(); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			if timeout, err := cfg.Agent.RequestTimeout(); err != nil {
				return err
			} else if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			client := nomi.NewClient(cfg.Agent.APIKey, nomi.WithBaseURL(cfg.Agent.BaseURL))
			agent, err := nomi.FromUUID(ctx, client, cfg.Agent.ID)
			if err != nil {
				return err
			}

			text := strings.Join(args, " ")
			if !raw {
				text = relay.Bound(text, cfg.Agent.MessageLimit())
			}
			reply, err := agent.SendMessage(ctx, text)
			if err != nil {
				return fmt.Errorf("send to %s: %w", agent.Nomi().Name, err)
			}
			fmt.Println(reply)
			return nil
		},
	}
	cmd.Flags().BoolVar(&raw, "raw", false, "send the message without applying the length bound")
	return cmd
}
