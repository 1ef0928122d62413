package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/nomirelay/nomirelay/internal/config"
	"github.com/nomirelay/nomirelay/internal/relay"
)

const (
	botID   = "100"
	guildID = "g1"
)

var (
	botUser   = &discordgo.User{ID: botID, Username: "nomi", Bot: true}
	aliceUser = &discordgo.User{ID: "123", Username: "alice"}
	bobUser   = &discordgo.User{ID: "456", Username: "bob"}
)

type fakeREST struct {
	sent        []string
	sentTo      []string
	sendCtxErrs []error // request context error seen at each send
	typing      int
	members     []*discordgo.Member
	pages       map[string][]*discordgo.Member // keyed by "after"; overrides members
	afters      []string
	memberCalls int
	sendErr     error
}

// requestContext applies options the way discordgo does and returns the
// resulting request context.
func requestContext(options []discordgo.RequestOption) context.Context {
	req, _ := http.NewRequest(http.MethodPost, "https://discord.invalid", nil)
	cfg := &discordgo.RequestConfig{Request: req}
	for _, opt := range options {
		opt(cfg)
	}
	return cfg.Request.Context()
}

func (f *fakeREST) ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.sendCtxErrs = append(f.sendCtxErrs, requestContext(options).Err())
	if f.sendErr != nil {
		return nil, f.sendErr
	}
	f.sentTo = append(f.sentTo, channelID)
	f.sent = append(f.sent, content)
	return &discordgo.Message{ChannelID: channelID, Content: content}, nil
}

func (f *fakeREST) ChannelTyping(string, ...discordgo.RequestOption) error {
	f.typing++
	return nil
}

func (f *fakeREST) GuildMembers(_ string, after string, _ int, _ ...discordgo.RequestOption) ([]*discordgo.Member, error) {
	f.memberCalls++
	f.afters = append(f.afters, after)
	if f.pages != nil {
		return f.pages[after], nil
	}
	return f.members, nil
}

type fakeAgent struct {
	reply string
	err   error
	got   []string
}

func (a *fakeAgent) SendMessage(_ context.Context, text string) (string, error) {
	a.got = append(a.got, text)
	return a.reply, a.err
}

func newState(t *testing.T, members ...*discordgo.Member) *discordgo.State {
	t.Helper()
	st := discordgo.NewState()
	if err := st.GuildAdd(&discordgo.Guild{ID: guildID, Members: members}); err != nil {
		t.Fatalf("GuildAdd: %v", err)
	}
	return st
}

type blockingAgent struct{}

func (blockingAgent) SendMessage(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func newTestChannel(t *testing.T, st *discordgo.State, rest *fakeREST, agent relay.Agent) *Channel {
	t.Helper()
	return newTestChannelWithOptions(t, st, rest, relay.Options{Agent: agent})
}

func newTestChannelWithOptions(t *testing.T, st *discordgo.State, rest *fakeREST, opts relay.Options) *Channel {
	t.Helper()
	opts.BotUserID = botID
	h, err := relay.New(opts)
	if err != nil {
		t.Fatal(err)
	}
	return &Channel{rest: rest, state: st, agent: opts.Agent, handler: h, botUserID: botID}
}

func TestToEvent_GuildNicknames(t *testing.T) {
	st := newState(t,
		&discordgo.Member{GuildID: guildID, User: botUser},
		&discordgo.Member{GuildID: guildID, User: bobUser, Nick: "Bobby"},
	)
	msg := &discordgo.Message{
		Author:    aliceUser,
		Member:    &discordgo.Member{Nick: "Ali"},
		Content:   "<@100> meet <@456>",
		Mentions:  []*discordgo.User{botUser, bobUser},
		ChannelID: "c1",
		GuildID:   guildID,
	}

	ev := toEvent(st, msg)
	if ev.Author.Nick != "Ali" || ev.Author.Username != "alice" {
		t.Errorf("author = %+v", ev.Author)
	}
	if len(ev.Mentions) != 2 || ev.Mentions[1].Nick != "Bobby" {
		t.Errorf("mentions = %+v", ev.Mentions)
	}
	if ev.IsDM() {
		t.Error("guild message reported as DM")
	}
	if got := relay.ReplaceMentions(ev.Content, ev.Mentions); got != "nomi meet Bobby" {
		t.Errorf("rewritten = %q", got)
	}
}

func TestToEvent_DirectMessage(t *testing.T) {
	msg := &discordgo.Message{
		Author:    aliceUser,
		Content:   "<@100> hi",
		Mentions:  []*discordgo.User{botUser},
		ChannelID: "dm1",
	}
	ev := toEvent(discordgo.NewState(), msg)
	if !ev.IsDM() || ev.Author.Nick != "" {
		t.Errorf("ev = %+v", ev)
	}
}

func TestKnownUsers(t *testing.T) {
	st := newState(t,
		&discordgo.Member{GuildID: guildID, User: aliceUser, Nick: "Ali"},
		&discordgo.Member{GuildID: guildID, User: bobUser},
	)
	if err := st.ChannelAdd(&discordgo.Channel{
		ID:         "dm1",
		Type:       discordgo.ChannelTypeDM,
		Recipients: []*discordgo.User{aliceUser, {ID: "789", Username: "carol"}},
	}); err != nil {
		t.Fatalf("ChannelAdd: %v", err)
	}

	users := knownUsers(st)
	if len(users) != 3 {
		t.Fatalf("expected 3 unique users, got %+v", users)
	}
	for _, u := range users {
		if u.Nick != "" {
			t.Errorf("known users should not carry nicknames: %+v", u)
		}
	}
}

func TestGuildResolver_StateHitSkipsREST(t *testing.T) {
	st := newState(t, &discordgo.Member{GuildID: guildID, User: bobUser, Nick: "Bobby"})
	rest := &fakeREST{}
	c := newTestChannel(t, st, rest, &fakeAgent{})

	r := c.resolverFor(context.Background(), relay.Event{GuildID: guildID})
	u, ok := r.Resolve("bobby")
	if !ok || u.ID != bobUser.ID {
		t.Fatalf("Resolve(bobby) = %+v, %v", u, ok)
	}
	if rest.memberCalls != 0 {
		t.Errorf("expected no REST calls, got %d", rest.memberCalls)
	}
}

func TestGuildResolver_FetchesOnMiss(t *testing.T) {
	// Partial member list in state, as for large guilds.
	st := newState(t,
		&discordgo.Member{GuildID: guildID, User: botUser},
		&discordgo.Member{GuildID: guildID, User: bobUser},
	)
	rest := &fakeREST{members: []*discordgo.Member{
		{User: botUser},
		{User: bobUser},
		{User: aliceUser, Nick: "Ali"},
	}}
	c := newTestChannel(t, st, rest, &fakeAgent{})

	r := c.resolverFor(context.Background(), relay.Event{GuildID: guildID})
	if got := relay.LinkMentions("hi @alice and @ghost", r); got != "hi <@123> and @ghost" {
		t.Errorf("linked = %q", got)
	}
	if rest.memberCalls != 1 {
		t.Errorf("expected one REST listing per event, got %d", rest.memberCalls)
	}
	if mem, err := st.Member(guildID, aliceUser.ID); err != nil || mem.Nick != "Ali" {
		t.Errorf("fetched member not cached: %+v, %v", mem, err)
	}
}

func TestFetchGuildMembers_Paginates(t *testing.T) {
	first := make([]*discordgo.Member, memberFetchLimit)
	for i := range first {
		first[i] = &discordgo.Member{User: &discordgo.User{ID: fmt.Sprintf("u%d", i), Username: fmt.Sprintf("user%d", i)}}
	}
	last := first[len(first)-1].User.ID
	rest := &fakeREST{pages: map[string][]*discordgo.Member{
		"":   first,
		last: {{User: aliceUser}},
	}}
	c := newTestChannel(t, newState(t), rest, &fakeAgent{})

	members, err := c.fetchGuildMembers(context.Background(), guildID)
	if err != nil {
		t.Fatalf("fetchGuildMembers: %v", err)
	}
	if len(members) != memberFetchLimit+1 {
		t.Errorf("got %d members, want %d", len(members), memberFetchLimit+1)
	}
	if len(rest.afters) != 2 || rest.afters[0] != "" || rest.afters[1] != last {
		t.Errorf("pages requested after %q", rest.afters)
	}
}

func TestHandleMessage_GuildReply(t *testing.T) {
	st := newState(t,
		&discordgo.Member{GuildID: guildID, User: botUser},
		&discordgo.Member{GuildID: guildID, User: aliceUser},
	)
	rest := &fakeREST{}
	agent := &fakeAgent{reply: "Hello @alice, how are you?"}
	c := newTestChannel(t, st, rest, agent)

	c.handleMessage(context.Background(), &discordgo.Message{
		Author:    aliceUser,
		Content:   "<@100> hello",
		Mentions:  []*discordgo.User{botUser},
		ChannelID: "c1",
		GuildID:   guildID,
	})

	if len(agent.got) != 1 || agent.got[0] != "*You receive a message from alice on Discord* nomi hello" {
		t.Fatalf("agent got %q", agent.got)
	}
	if len(rest.sent) != 1 || rest.sent[0] != "Hello <@123>, how are you?" || rest.sentTo[0] != "c1" {
		t.Errorf("sent %q to %q", rest.sent, rest.sentTo)
	}
	if rest.typing != 1 {
		t.Errorf("typing = %d", rest.typing)
	}
}

func TestHandleMessage_IgnoredEvents(t *testing.T) {
	tests := []struct {
		name string
		msg  *discordgo.Message
	}{
		{"own message", &discordgo.Message{Author: botUser, Content: "<@100>", Mentions: []*discordgo.User{botUser}, ChannelID: "c1"}},
		{"not mentioned", &discordgo.Message{Author: aliceUser, Content: "hi", ChannelID: "c1"}},
		{"no author", &discordgo.Message{Content: "<@100>", Mentions: []*discordgo.User{botUser}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rest := &fakeREST{}
			agent := &fakeAgent{reply: "x"}
			c := newTestChannel(t, discordgo.NewState(), rest, agent)
			c.handleMessage(context.Background(), tt.msg)
			if len(agent.got) != 0 || len(rest.sent) != 0 || rest.typing != 0 {
				t.Errorf("expected no side effects: agent=%d sent=%d typing=%d", len(agent.got), len(rest.sent), rest.typing)
			}
		})
	}
}

func TestHandleMessage_AgentError(t *testing.T) {
	rest := &fakeREST{}
	agent := &fakeAgent{err: errors.New("timeout")}
	c := newTestChannel(t, discordgo.NewState(), rest, agent)

	c.handleMessage(context.Background(), &discordgo.Message{
		Author:    aliceUser,
		Content:   "<@100> you there?",
		Mentions:  []*discordgo.User{botUser},
		ChannelID: "dm1",
	})
	if len(rest.sent) != 1 || rest.sent[0] != "❌ ERROR ❌\ntimeout" {
		t.Errorf("sent = %q", rest.sent)
	}
}

func TestSend(t *testing.T) {
	rest := &fakeREST{}
	c := &Channel{rest: rest}
	if err := c.Send(context.Background(), "", "x"); err == nil {
		t.Error("expected error for empty channel ID")
	}
	rest.sendErr = errors.New("missing access")
	if err := c.Send(context.Background(), "c1", "x"); err == nil {
		t.Error("expected send error")
	}
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default()
	if _, err := FromConfig(cfg, &fakeAgent{}); err == nil {
		t.Error("expected error without token")
	}

	cfg.Discord.Token = "token"
	cfg.Agent.Tier = config.TierFree
	cfg.Agent.Timeout = "45s"
	ch, err := FromConfig(cfg, &fakeAgent{})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if ch.maxLength != config.FreeTierMaxMessageLength {
		t.Errorf("maxLength = %d", ch.maxLength)
	}
	if ch.timeout.Seconds() != 45 {
		t.Errorf("timeout = %v", ch.timeout)
	}
	if ch.Name() != "discord" {
		t.Errorf("name = %q", ch.Name())
	}
}

func TestHandleMessage_AgentTimeoutStillReplies(t *testing.T) {
	rest := &fakeREST{}
	c := newTestChannelWithOptions(t, discordgo.NewState(), rest, relay.Options{
		Agent:        blockingAgent{},
		AgentTimeout: 20 * time.Millisecond,
	})

	c.handleMessage(context.Background(), &discordgo.Message{
		Author:    aliceUser,
		Content:   "<@100> still there?",
		Mentions:  []*discordgo.User{botUser},
		ChannelID: "dm1",
	})
	if len(rest.sent) != 1 || rest.sent[0] != relay.ErrorReply(context.DeadlineExceeded) {
		t.Fatalf("sent = %q", rest.sent)
	}
	if rest.sendCtxErrs[0] != nil {
		t.Errorf("reply sent with expired context: %v", rest.sendCtxErrs[0])
	}
}
