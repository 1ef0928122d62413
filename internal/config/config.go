package config

import (
	"fmt"
	"time"
)

// Config is the root configuration for the relay.
type Config struct {
	Agent     AgentConfig     `json:"agent"`
	Discord   DiscordConfig   `json:"discord"`
	Telemetry TelemetryConfig `json:"telemetry,omitempty"`
}

// AgentConfig configures the Nomi the relay talks to.
type AgentConfig struct {
	APIKey           string `json:"api_key,omitempty"`            // secret, usually from NOMI_API_KEY
	ID               string `json:"id,omitempty"`                 // Nomi UUID
	BaseURL          string `json:"base_url,omitempty"`           // default https://api.nomi.ai/v1
	Tier             string `json:"tier,omitempty"`               // "free" lowers the message limit to 400
	MaxMessageLength int    `json:"max_message_length,omitempty"` // overrides the tier limit when > 0
	Timeout          string `json:"timeout,omitempty"`            // Go duration; empty = no timeout
}

// DiscordConfig configures the Discord bot session.
type DiscordConfig struct {
	Token string `json:"token,omitempty"` // secret, usually from DISCORD_BOT_TOKEN
}

// TelemetryConfig configures OpenTelemetry export for relay traces.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`      // enable OTLP export (default false)
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317" or "https://otel.example.com:4318"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // plaintext connection, for local collectors
	ServiceName string            `json:"service_name,omitempty"` // default "nomirelay"
	Headers     map[string]string `json:"headers,omitempty"`      // extra headers (e.g. auth tokens for cloud backends)
}

// Tier names.
const (
	TierFree = "free"
	TierPaid = "paid"
)

// Message limits per tier.
const (
	DefaultMaxMessageLength  = 600
	FreeTierMaxMessageLength = 400

	// MinMessageLength is the smallest explicit limit accepted: it must leave
	// room for text in front of the 44-rune cutoff marker.
	MinMessageLength = 45
)

// MessageLimit returns the agent's inbound message limit in runes.
func (a AgentConfig) MessageLimit() int {
	if a.MaxMessageLength > 0 {
		return a.MaxMessageLength
	}
	if a.Tier == TierFree {
		return FreeTierMaxMessageLength
	}
	return DefaultMaxMessageLength
}

// RequestTimeout parses Timeout. Zero means the agent call is unbounded.
func (a AgentConfig) RequestTimeout() (time.Duration, error) {
	if a.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(a.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid agent.timeout %q: %w", a.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid agent.timeout %q: must not be negative", a.Timeout)
	}
	return d, nil
}
