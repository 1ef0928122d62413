package discord

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nomirelay/nomirelay/internal/channels"
	"github.com/nomirelay/nomirelay/internal/relay"
)

const (
	// memberFetchLimit is the page size Discord allows for guild member listing.
	memberFetchLimit = 1000
	// maxMemberPages caps a single member listing.
	maxMemberPages = 25
)

// restClient is the subset of the Discord REST API the channel uses.
type restClient interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelTyping(channelID string, options ...discordgo.RequestOption) error
	GuildMembers(guildID, after string, limit int, options ...discordgo.RequestOption) ([]*discordgo.Member, error)
}

// Options configures a Channel.
type Options struct {
	Token     string
	Agent     relay.Agent
	MaxLength int           // agent message limit in runes
	Timeout   time.Duration // per-event deadline for the agent round trip; 0 = none
}

// Channel connects to Discord via the Bot API using gateway events and relays
// mentions of the bot to the agent.
type Channel struct {
	*channels.BaseChannel
	session   *discordgo.Session
	rest      restClient
	state     *discordgo.State
	agent     relay.Agent
	maxLength int
	timeout   time.Duration
	handler   *relay.Handler
	botUserID string // populated on start
	remove    func()
}

// New creates a new Discord channel.
func New(opts Options) (*Channel, error) {
	if opts.Token == "" {
		return nil, fmt.Errorf("discord token is required")
	}
	if opts.Agent == nil {
		return nil, fmt.Errorf("discord: agent is required")
	}

	session, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("create discord session: %w", err)
	}

	// Guilds populates the state cache, GuildMembers the member lists used
	// to resolve @name in replies.
	session.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsDirectMessages |
		discordgo.IntentsMessageContent

	return &Channel{
		BaseChannel: channels.NewBaseChannel("discord"),
		session:     session,
		rest:        session,
		state:       session.State,
		agent:       opts.Agent,
		maxLength:   opts.MaxLength,
		timeout:     opts.Timeout,
	}, nil
}

// Start resolves the bot identity, opens the gateway connection and begins
// receiving events.
func (c *Channel) Start(_ context.Context) error {
	slog.Info("starting discord bot")

	user, err := c.session.User("@me")
	if err != nil {
		return fmt.Errorf("fetch discord bot identity: %w", err)
	}

	handler, err := relay.New(relay.Options{
		Agent:        c.agent,
		BotUserID:    user.ID,
		MaxLength:    c.maxLength,
		AgentTimeout: c.timeout,
	})
	if err != nil {
		return err
	}
	c.handler = handler
	c.botUserID = user.ID

	c.remove = c.session.AddHandler(c.onMessageCreate)

	if err := c.session.Open(); err != nil {
		c.remove()
		return fmt.Errorf("open discord session: %w", err)
	}

	c.SetRunning(true)
	slog.Info("discord bot connected", "username", user.Username, "id", user.ID)
	return nil
}

// Stop closes the Discord gateway connection.
func (c *Channel) Stop(_ context.Context) error {
	slog.Info("stopping discord bot")
	c.SetRunning(false)
	if c.remove != nil {
		c.remove()
	}
	return c.session.Close()
}

// BotUserID returns the bot's Discord user ID once started.
func (c *Channel) BotUserID() string { return c.botUserID }

// Send posts content to a Discord channel as a single message.
func (c *Channel) Send(ctx context.Context, channelID, content string) error {
	if channelID == "" {
		return fmt.Errorf("empty chat ID for discord send")
	}
	if _, err := c.rest.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		return fmt.Errorf("send discord message: %w", err)
	}
	return nil
}

// Typing shows the typing indicator in a channel.
func (c *Channel) Typing(ctx context.Context, channelID string) error {
	return c.rest.ChannelTyping(channelID, discordgo.WithContext(ctx))
}

func (c *Channel) onMessageCreate(_ *discordgo.Session, m *discordgo.MessageCreate) {
	c.handleMessage(context.Background(), m.Message)
}

// handleMessage converts an incoming Discord message and runs the relay
// pipeline for it.
func (c *Channel) handleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.Author == nil || c.handler == nil {
		return
	}

	ev := toEvent(c.state, m)
	if !c.handler.Qualifies(ev) {
		return
	}

	slog.Debug("discord message received",
		"sender_id", ev.Author.ID,
		"channel_id", ev.ChannelID,
		"is_dm", ev.IsDM(),
		"preview", channels.Truncate(ev.Content, 50),
	)

	resolver := c.resolverFor(ctx, ev)
	if _, err := c.handler.Handle(ctx, ev, resolver, c); err != nil {
		slog.Warn("discord reply failed", "channel_id", ev.ChannelID, "error", err)
		return
	}
	slog.Debug("discord reply sent", "channel_id", ev.ChannelID)
}

// resolverFor picks guild member lookup inside a server and the known-user
// cache in direct messages.
func (c *Channel) resolverFor(ctx context.Context, ev relay.Event) relay.Resolver {
	if ev.IsDM() {
		return relay.UserCacheResolver{Users: knownUsers(c.state)}
	}
	return &guildResolver{ctx: ctx, c: c, guildID: ev.GuildID}
}

// guildResolver resolves names against the guild members in the state cache.
// Large guilds only carry part of their member list in state, so a miss
// triggers one full REST listing per event, which is cached into state.
type guildResolver struct {
	ctx     context.Context
	c       *Channel
	guildID string
	loaded  bool
	fetched bool
	members relay.GuildResolver
}

func (r *guildResolver) Resolve(name string) (relay.User, bool) {
	if !r.loaded {
		r.members.Members = stateGuildMembers(r.c.state, r.guildID)
		r.loaded = true
	}
	if u, ok := r.members.Resolve(name); ok {
		return u, true
	}
	if r.fetched {
		return relay.User{}, false
	}
	r.fetched = true

	fetched, err := r.c.fetchGuildMembers(r.ctx, r.guildID)
	if err != nil {
		slog.Debug("discord guild member fetch failed", "guild_id", r.guildID, "error", err)
		return relay.User{}, false
	}
	if len(fetched) == 0 {
		return relay.User{}, false
	}
	r.members.Members = fetched
	return r.members.Resolve(name)
}

// fetchGuildMembers lists every member of a guild over REST, page by page,
// and caches them into the state.
func (c *Channel) fetchGuildMembers(ctx context.Context, guildID string) ([]relay.User, error) {
	var (
		members []relay.User
		after   string
	)
	for page := 0; page < maxMemberPages; page++ {
		batch, err := c.rest.GuildMembers(guildID, after, memberFetchLimit, discordgo.WithContext(ctx))
		if err != nil {
			return members, err
		}
		for _, mem := range batch {
			if mem == nil || mem.User == nil {
				continue
			}
			mem.GuildID = guildID
			if c.state != nil {
				_ = c.state.MemberAdd(mem)
			}
			members = append(members, toUser(mem.User, mem.Nick))
			after = mem.User.ID
		}
		if len(batch) < memberFetchLimit {
			break
		}
	}
	return members, nil
}
