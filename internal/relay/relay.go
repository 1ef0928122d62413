// Package relay forwards chat mentions to a conversational agent and posts
// the agent's reply back into the originating channel.
package relay

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/nomirelay/nomirelay/internal/relay"

// Options configures a Handler.
type Options struct {
	Agent        Agent
	BotUserID    string
	MaxLength    int           // agent message limit in runes; DefaultMaxLength when 0
	AgentTimeout time.Duration // deadline for the agent round trip only; 0 = none
	Tracer       trace.Tracer  // global tracer when nil
}

// Handler runs the relay pipeline for one inbound event at a time. It holds
// no mutable state and is safe for concurrent use.
type Handler struct {
	agent        Agent
	botUserID    string
	maxLength    int
	agentTimeout time.Duration
	tracer       trace.Tracer
}

// New creates a Handler. Agent and BotUserID are required.
func New(opts Options) (*Handler, error) {
	if opts.Agent == nil {
		return nil, fmt.Errorf("relay: agent is required")
	}
	if opts.BotUserID == "" {
		return nil, fmt.Errorf("relay: bot user ID is required")
	}
	maxLength := opts.MaxLength
	if maxLength == 0 {
		maxLength = DefaultMaxLength
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = otel.Tracer(tracerName)
	}
	return &Handler{
		agent:        opts.Agent,
		botUserID:    opts.BotUserID,
		maxLength:    maxLength,
		agentTimeout: opts.AgentTimeout,
		tracer:       tracer,
	}, nil
}

// BotUserID returns the identity the handler ignores and listens for.
func (h *Handler) BotUserID() string { return h.botUserID }

// Qualifies reports whether ev should be relayed: not authored by the bot and
// mentioning it.
func (h *Handler) Qualifies(ev Event) bool {
	if ev.Author.ID == h.botUserID {
		return false
	}
	return ev.Mentioned(h.botUserID)
}

// Prepare builds the bounded agent request for ev.
func (h *Handler) Prepare(ev Event) string {
	content := ReplaceMentions(ev.Content, ev.Mentions)
	return Bound(ComposeMessage(ev.Author, content), h.maxLength)
}

// Handle relays ev to the agent and sends the reply through out. Agent
// failures become the reply text. It returns whether a reply was sent; the
// error is only non-nil when sending failed.
func (h *Handler) Handle(ctx context.Context, ev Event, resolver Resolver, out Sender) (bool, error) {
	if !h.Qualifies(ev) {
		return false, nil
	}

	ctx, span := h.tracer.Start(ctx, "relay.handle", trace.WithAttributes(
		attribute.String("channel_id", ev.ChannelID),
		attribute.String("guild_id", ev.GuildID),
		attribute.Bool("is_dm", ev.IsDM()),
	))
	defer span.End()

	if ts, ok := out.(TypingSender); ok {
		if err := ts.Typing(ctx, ev.ChannelID); err != nil {
			slog.Debug("relay: typing indicator failed", "channel_id", ev.ChannelID, "error", err)
		}
	}

	request := h.Prepare(ev)

	reply, err := h.callAgent(ctx, request)
	if err != nil {
		span.SetAttributes(attribute.Bool("agent_error", true))
		reply = ErrorReply(err)
	}

	reply = LinkMentions(reply, resolver)

	if err := out.Send(ctx, ev.ChannelID, reply); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "send failed")
		return false, fmt.Errorf("send reply to %s: %w", ev.ChannelID, err)
	}
	return true, nil
}

// callAgent runs the agent round trip under the agent timeout. The deadline
// does not carry over to the reply send.
func (h *Handler) callAgent(ctx context.Context, request string) (string, error) {
	if h.agentTimeout <= 0 {
		return h.agent.SendMessage(ctx, request)
	}
	agentCtx, cancel := context.WithTimeout(ctx, h.agentTimeout)
	defer cancel()
	return h.agent.SendMessage(agentCtx, request)
}
