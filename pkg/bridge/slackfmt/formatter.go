// Copyright 2024-2026 Aiku AI

// Package slackfmt converts IRC message text to Slack markup.
package slackfmt

import (
	"regexp"
	"strings"
)

var (
	// colorRe matches mIRC color control sequences (0x03 plus optional
	// foreground,background digits), which Slack cannot display.
	colorRe = regexp.MustCompile(`\x03(?:\d{1,2}(?:,\d{1,2})?)?`)

	// broadcastRe defuses broadcast tokens typed on IRC so they don't ping
	// an entire Slack workspace.
	broadcastRe = regexp.MustCompile(`<!(everyone|channel|here)>`)

	tokenRe = regexp.MustCompile(`\S+`)
)

// Formatter rewrites IRC text for Slack. It recognizes mirrored-participant
// nicknames by the configured suffix and turns them back into Slack mentions.
type Formatter struct {
	suffix string
}

// NewFormatter returns a Formatter for the given participant nick suffix
// (e.g. "-slack").
func NewFormatter(suffix string) *Formatter {
	return &Formatter{suffix: suffix}
}

// Format strips IRC color codes and rewrites any whole token of the form
// <name><suffix> into a Slack mention <@name>, but only when isKnownName
// reports that name as a mirrored participant's origin name. The whole-token
// requirement keeps "no-more-slack" from turning into a mention of "no-more"
// plus a stray suffix.
func (f *Formatter) Format(text string, isKnownName func(string) bool) string {
	text = colorRe.ReplaceAllString(text, "")
	text = tokenRe.ReplaceAllStringFunc(text, func(token string) string {
		name := strings.TrimSuffix(token, f.suffix)
		if name == token || name == "" {
			return token
		}
		if isKnownName(name) {
			return "<@" + name + ">"
		}
		return token
	})
	return broadcastRe.ReplaceAllString(text, "<! $1>")
}
