package relay

import (
	"errors"
	"regexp"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"
)

const (
	// MessagePrefix is prepended to every message relayed to the agent.
	MessagePrefix = "*You receive a message from %s on Discord* "

	// CutoffSuffix marks a message that was trimmed to fit the agent's limit.
	CutoffSuffix = "... (the message is longer, but was cut off)"

	// ErrorMarker heads the reply posted when the agent call fails.
	ErrorMarker = "❌ ERROR ❌\n"

	// DefaultMaxLength is the agent's message limit for paid accounts.
	DefaultMaxLength = 600

	// FreeTierMaxLength is the agent's message limit for free accounts.
	FreeTierMaxLength = 400
)

// plainMention matches "@name" in agent replies.
var plainMention = regexp.MustCompile(`@([\p{L}\p{N}_]+)`)

// Trim bounds s to maxLen runes. When s is longer it is cut at maxLen and then
// back to the last whitespace so no word is split; if the cut window holds no
// whitespace the hard cut is kept. The bool reports whether s was trimmed.
func Trim(s string, maxLen int) (string, bool) {
	if utf8.RuneCountInString(s) <= maxLen {
		return s, false
	}
	if maxLen <= 0 {
		return "", true
	}

	cut := string([]rune(s)[:maxLen])
	// Whitespace at index 0 leaves an empty result, not the hard cut.
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i != -1 {
		cut = cut[:i]
	}
	return cut, true
}

// Bound trims s so that s plus CutoffSuffix never exceeds maxLen runes and
// appends the suffix when anything was dropped. A limit with no room for the
// suffix trims without it.
func Bound(s string, maxLen int) string {
	limit := maxLen - utf8.RuneCountInString(CutoffSuffix)
	if limit <= 0 {
		trimmed, _ := Trim(s, maxLen)
		return trimmed
	}
	trimmed, did := Trim(s, limit)
	if !did {
		// Fits the reduced limit, so it also fits maxLen.
		return s
	}
	return trimmed + CutoffSuffix
}

// MentionToken renders the platform mention token for a user ID.
func MentionToken(id string) string {
	return "<@" + id + ">"
}

// ReplaceMentions substitutes each mentioned user's token in content with
// their display name. Users are applied in order over the evolving text.
func ReplaceMentions(content string, mentions []User) string {
	for _, u := range mentions {
		if u.ID == "" {
			continue
		}
		name := u.DisplayName()
		content = strings.ReplaceAll(content, MentionToken(u.ID), name)
		// Nickname form emitted by older clients.
		content = strings.ReplaceAll(content, "<@!"+u.ID+">", name)
	}
	return content
}

// ComposeMessage builds the text sent to the agent for a message by author.
func ComposeMessage(author User, content string) string {
	return strings.Replace(MessagePrefix, "%s", author.Username, 1) + content
}

// LinkMentions rewrites plain "@name" references in reply into platform
// mention tokens for names the resolver knows. Unknown names are left as is.
// Longer names are replaced first so a short name that prefixes a longer one
// does not split it.
func LinkMentions(reply string, resolver Resolver) string {
	if resolver == nil {
		return reply
	}
	matches := plainMention.FindAllStringSubmatch(reply, -1)
	if len(matches) == 0 {
		return reply
	}

	seen := make(map[string]bool, len(matches))
	names := make([]string, 0, len(matches))
	for _, m := range matches {
		if !seen[m[1]] {
			seen[m[1]] = true
			names = append(names, m[1])
		}
	}
	sort.SliceStable(names, func(i, j int) bool {
		return len(names[i]) > len(names[j])
	})

	for _, name := range names {
		u, ok := resolver.Resolve(name)
		if !ok {
			continue
		}
		reply = strings.ReplaceAll(reply, "@"+name, MentionToken(u.ID))
	}
	return reply
}

// ErrorReply renders an agent failure as the visible reply.
func ErrorReply(err error) string {
	if err == nil {
		err = errors.New("unknown error")
	}
	return ErrorMarker + err.Error()
}
