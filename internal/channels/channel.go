// Package channels provides the channel abstraction for chat platforms the
// relay listens on.
package channels

import (
	"context"
	"unicode/utf8"
)

// Channel defines the interface a chat platform adapter must satisfy.
type Channel interface {
	// Name returns the channel identifier (e.g., "discord").
	Name() string

	// Start connects to the platform and begins delivering events.
	// Should be non-blocking after setup.
	Start(ctx context.Context) error

	// Stop gracefully shuts down the channel.
	Stop(ctx context.Context) error

	// IsRunning returns whether the channel is actively processing messages.
	IsRunning() bool
}

// BaseChannel provides shared functionality for channel implementations.
// Channel implementations should embed this struct.
type BaseChannel struct {
	name    string
	running bool
}

// NewBaseChannel creates a new BaseChannel with the given name.
func NewBaseChannel(name string) *BaseChannel {
	return &BaseChannel{name: name}
}

// Name returns the channel name.
func (c *BaseChannel) Name() string { return c.name }

// IsRunning returns whether the channel is running.
func (c *BaseChannel) IsRunning() bool { return c.running }

// SetRunning updates the running state.
func (c *BaseChannel) SetRunning(running bool) { c.running = running }

// Truncate shortens a string to maxLen runes, appending "..." if truncated.
// Used for log previews.
func Truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	return string([]rune(s)[:maxLen]) + "..."
}
