package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/titanous/json5"
)

// Environment variables that carry the required secrets.
const (
	EnvAPIKey       = "NOMI_API_KEY"
	EnvNomiID       = "NOMI_ID"
	EnvDiscordToken = "DISCORD_BOT_TOKEN"
)

// MissingError reports a required setting that is absent.
type MissingError struct {
	Name string // environment variable name
}

func (e *MissingError) Error() string {
	return e.Name + " not found in the environment"
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Agent: AgentConfig{
			Tier: TierPaid,
		},
		Telemetry: TelemetryConfig{
			Protocol:    "grpc",
			ServiceName: "nomirelay",
		},
	}
}

// Load reads config from a JSON5 file, then overlays env vars. A missing file
// is not an error; the relay can run from the environment alone.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := json5.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config: %w", err)
			}
		case !os.IsNotExist(err):
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	envStr(EnvAPIKey, &c.Agent.APIKey)
	envStr(EnvNomiID, &c.Agent.ID)
	envStr(EnvDiscordToken, &c.Discord.Token)
	envStr("NOMI_BASE_URL", &c.Agent.BaseURL)
	envStr("NOMIRELAY_TIER", &c.Agent.Tier)
	envStr("NOMIRELAY_AGENT_TIMEOUT", &c.Agent.Timeout)
	if v := os.Getenv("NOMIRELAY_MAX_MESSAGE_LENGTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n != 0 {
			c.Agent.MaxMessageLength = n
		}
	}

	// Telemetry
	envStr("NOMIRELAY_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("NOMIRELAY_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("NOMIRELAY_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("NOMIRELAY_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("NOMIRELAY_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// Validate checks that every required secret is present, in the order
// NOMI_API_KEY, NOMI_ID, DISCORD_BOT_TOKEN. The error is a *MissingError.
func (c *Config) Validate() error {
	switch {
	case c.Agent.APIKey == "":
		return &MissingError{Name: EnvAPIKey}
	case c.Agent.ID == "":
		return &MissingError{Name: EnvNomiID}
	case c.Discord.Token == "":
		return &MissingError{Name: EnvDiscordToken}
	}
	if _, err := c.Agent.RequestTimeout(); err != nil {
		return err
	}
	if err := c.Agent.validateMaxLength(); err != nil {
		return err
	}
	return nil
}

func (a AgentConfig) validateMaxLength() error {
	if a.MaxMessageLength != 0 && a.MaxMessageLength < MinMessageLength {
		return fmt.Errorf("invalid agent.max_message_length %d: must be at least %d", a.MaxMessageLength, MinMessageLength)
	}
	return nil
}

// ValidateAgent checks only the settings needed to reach the Nomi API.
func (c *Config) ValidateAgent() error {
	switch {
	case c.Agent.APIKey == "":
		return &MissingError{Name: EnvAPIKey}
	case c.Agent.ID == "":
		return &MissingError{Name: EnvNomiID}
	}
	return c.Agent.validateMaxLength()
}

const secretMask = "***"

// MaskedCopy returns a deep copy of the config with all secret fields masked.
func (c *Config) MaskedCopy() *Config {
	data, err := json.Marshal(c)
	if err != nil {
		return &Config{}
	}
	cp := Default()
	if err := json.Unmarshal(data, cp); err != nil {
		return &Config{}
	}

	maskNonEmpty(&cp.Agent.APIKey)
	maskNonEmpty(&cp.Discord.Token)
	for k := range cp.Telemetry.Headers {
		cp.Telemetry.Headers[k] = secretMask
	}
	return cp
}

func maskNonEmpty(s *string) {
	if *s != "" {
		*s = secretMask
	}
}
