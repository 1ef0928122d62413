package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/nomirelay/nomirelay/internal/relay"
)

func toUser(u *discordgo.User, nick string) relay.User {
	return relay.User{ID: u.ID, Username: u.Username, Nick: nick}
}

// toEvent converts a Discord message into a relay event. Nicknames come from
// the message's member payload for the author and from the state cache for
// mentioned users.
func toEvent(state *discordgo.State, m *discordgo.Message) relay.Event {
	authorNick := ""
	if m.Member != nil {
		authorNick = m.Member.Nick
	}
	if authorNick == "" && m.GuildID != "" {
		authorNick = stateNick(state, m.GuildID, m.Author.ID)
	}

	ev := relay.Event{
		Author:    toUser(m.Author, authorNick),
		Content:   m.Content,
		ChannelID: m.ChannelID,
		GuildID:   m.GuildID,
	}
	for _, u := range m.Mentions {
		if u == nil {
			continue
		}
		nick := ""
		if m.GuildID != "" {
			nick = stateNick(state, m.GuildID, u.ID)
		}
		ev.Mentions = append(ev.Mentions, toUser(u, nick))
	}
	return ev
}

func stateNick(state *discordgo.State, guildID, userID string) string {
	if state == nil {
		return ""
	}
	mem, err := state.Member(guildID, userID)
	if err != nil || mem == nil {
		return ""
	}
	return mem.Nick
}

// stateGuildMembers lists the cached members of a guild.
func stateGuildMembers(state *discordgo.State, guildID string) []relay.User {
	if state == nil {
		return nil
	}
	g, err := state.Guild(guildID)
	if err != nil || g == nil {
		return nil
	}

	state.RLock()
	defer state.RUnlock()

	members := make([]relay.User, 0, len(g.Members))
	for _, mem := range g.Members {
		if mem == nil || mem.User == nil {
			continue
		}
		members = append(members, toUser(mem.User, mem.Nick))
	}
	return members
}

// knownUsers lists every user the bot has seen: members of cached guilds and
// recipients of open direct-message channels. Nicknames are not carried.
func knownUsers(state *discordgo.State) []relay.User {
	if state == nil {
		return nil
	}

	state.RLock()
	defer state.RUnlock()

	seen := make(map[string]bool)
	var users []relay.User
	add := func(u *discordgo.User) {
		if u == nil || seen[u.ID] {
			return
		}
		seen[u.ID] = true
		users = append(users, toUser(u, ""))
	}

	for _, g := range state.Guilds {
		for _, mem := range g.Members {
			if mem != nil {
				add(mem.User)
			}
		}
	}
	for _, ch := range state.PrivateChannels {
		for _, u := range ch.Recipients {
			add(u)
		}
	}
	return users
}
