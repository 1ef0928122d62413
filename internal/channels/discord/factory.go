package discord

import (
	"fmt"

	"github.com/nomirelay/nomirelay/internal/config"
	"github.com/nomirelay/nomirelay/internal/relay"
)

// FromConfig creates a Discord channel relaying to agent using the bot token,
// message limit and agent timeout from cfg.
func FromConfig(cfg *config.Config, agent relay.Agent) (*Channel, error) {
	if cfg.Discord.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	timeout, err := cfg.Agent.RequestTimeout()
	if err != nil {
		return nil, err
	}
	return New(Options{
		Token:     cfg.Discord.Token,
		Agent:     agent,
		MaxLength: cfg.Agent.MessageLimit(),
		Timeout:   timeout,
	})
}
