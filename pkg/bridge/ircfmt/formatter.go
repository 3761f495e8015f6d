// Copyright 2024-2026 Aiku AI

// Package ircfmt converts Slack message markup to plain IRC text and derives
// IRC-side identity data (nicknames, avatar URLs) from Slack display names.
package ircfmt

import (
	"crypto/md5"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kenshaw/emoji"
)

// Lookup resolves Slack ids referenced inside message tokens to their
// IRC-side representation.
type Lookup interface {
	// ChannelName returns the display name for a Slack channel id.
	ChannelName(id string) (string, bool)
	// MentionNick returns the IRC nickname that represents a Slack user id.
	MentionNick(userID string) (string, bool)
}

const gravatarURL = "http://www.gravatar.com/avatar/%x?s=48&r=any&default=identicon"

// nickChars are the symbols IRC allows in nicknames besides alphanumerics.
const nickChars = "_-\\[]{}^`|"

var (
	newlineReplacer = strings.NewReplacer("\n", " ", "\r", " ")

	broadcastReplacer = strings.NewReplacer(
		"<!channel>", "@channel",
		"<!everyone>", "@everyone",
		"<!here>", "@here",
	)

	entityReplacer = strings.NewReplacer("&lt;", "<", "&gt;", ">", "&amp;", "&")

	channelRe = regexp.MustCompile(`<#(C\w+)\|?(\w+)?>`)
	userRe    = regexp.MustCompile(`<@(U\w+)\|?(\w+)?>`)
	varRe     = regexp.MustCompile(`<!(\w+)\|?(\w+)?>`)
	// bareRe matches link wrappers without a label, e.g. <http://x>. The
	// leading character class excludes variable tokens, already-resolved
	// tokens never reach it.
	bareRe  = regexp.MustCompile(`<([^!|>][^|>]*)>`)
	labelRe = regexp.MustCompile(`<[^>]+?\|([^>]+?)>`)
)

// Format rewrites a Slack message so IRC users can read it: newlines become
// spaces, reference tokens resolve to names, emoji aliases become glyphs and
// HTML entities are decoded.
func Format(text string, lookup Lookup) string {
	text = newlineReplacer.Replace(text)
	text = broadcastReplacer.Replace(text)

	text = channelRe.ReplaceAllStringFunc(text, func(match string) string {
		m := channelRe.FindStringSubmatch(match)
		id, label := m[1], m[2]
		if label != "" {
			return "#" + label
		}
		if name, ok := lookup.ChannelName(id); ok {
			return "#" + name
		}
		return "#" + id
	})

	text = userRe.ReplaceAllStringFunc(text, func(match string) string {
		m := userRe.FindStringSubmatch(match)
		id, label := m[1], m[2]
		if label != "" {
			return label
		}
		if nick, ok := lookup.MentionNick(id); ok {
			return nick
		}
		return "unknown"
	})

	// Variables reduce to their readable label; the link-unwrap pass below
	// then removes the brackets.
	text = varRe.ReplaceAllStringFunc(text, func(match string) string {
		m := varRe.FindStringSubmatch(match)
		name, label := m[1], m[2]
		if label != "" {
			return "<" + label + ">"
		}
		return "<" + name + ">"
	})

	text = bareRe.ReplaceAllString(text, "$1")
	text = emoji.ReplaceAliases(text)
	text = labelRe.ReplaceAllString(text, "$1")
	return entityReplacer.Replace(text)
}

// SanitizeNick strips a Slack display name down to the characters IRC allows
// in a nickname. Slack permits periods and arbitrary punctuation; IRC does
// not, so everything outside alphanumerics and nickChars is dropped.
func SanitizeNick(nick string) string {
	var b strings.Builder
	b.Grow(len(nick))
	for _, r := range nick {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune(nickChars, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// AvatarURL derives a gravatar URL for an IRC nickname on the assumption
// that <nick>@<domain> is a representative address. This is a display
// heuristic, not a verified identity image.
func AvatarURL(nick, domain string) string {
	return fmt.Sprintf(gravatarURL, md5.Sum([]byte(nick+"@"+domain)))
}
