package relay

import (
	"context"
	"strings"
)

// User is a chat platform identity as seen by the relay.
type User struct {
	ID       string
	Username string
	Nick     string // server-specific nickname, empty outside guilds
}

// DisplayName prefers the server nickname and falls back to the username.
func (u User) DisplayName() string {
	if u.Nick != "" {
		return u.Nick
	}
	return u.Username
}

// Event is one inbound chat message.
type Event struct {
	Author    User
	Content   string
	Mentions  []User
	ChannelID string
	GuildID   string // empty for direct messages
}

// IsDM reports whether the event arrived outside a guild.
func (e Event) IsDM() bool { return e.GuildID == "" }

// Mentioned reports whether userID is in the event's mention set.
func (e Event) Mentioned(userID string) bool {
	for _, u := range e.Mentions {
		if u.ID == userID {
			return true
		}
	}
	return false
}

// Agent is the remote conversational agent the relay talks to.
type Agent interface {
	SendMessage(ctx context.Context, text string) (string, error)
}

// Sender posts text into a chat channel.
type Sender interface {
	Send(ctx context.Context, channelID, content string) error
}

// TypingSender is implemented by senders that can show a typing indicator
// while the agent is working.
type TypingSender interface {
	Sender
	Typing(ctx context.Context, channelID string) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, channelID, content string) error

func (f SenderFunc) Send(ctx context.Context, channelID, content string) error {
	return f(ctx, channelID, content)
}

// Resolver maps a plain-text name to a platform identity.
type Resolver interface {
	Resolve(name string) (User, bool)
}

// GuildResolver matches names against a guild's member list by username or
// nickname, ignoring case.
type GuildResolver struct {
	Members []User
}

func (r GuildResolver) Resolve(name string) (User, bool) {
	for _, m := range r.Members {
		if strings.EqualFold(m.Username, name) || (m.Nick != "" && strings.EqualFold(m.Nick, name)) {
			return m, true
		}
	}
	return User{}, false
}

// UserCacheResolver matches names against the users the bot has seen, by
// username only, ignoring case. Used for direct messages.
type UserCacheResolver struct {
	Users []User
}

func (r UserCacheResolver) Resolve(name string) (User, bool) {
	for _, u := range r.Users {
		if strings.EqualFold(u.Username, name) {
			return u, true
		}
	}
	return User{}, false
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(name string) (User, bool)

func (f ResolverFunc) Resolve(name string) (User, bool) { return f(name) }
