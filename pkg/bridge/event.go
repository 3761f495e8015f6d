// Copyright 2024-2026 Aiku AI

package bridge

import (
	"strconv"
	"strings"
	"time"
)

// Event kinds produced by the hub feed. These mirror the Slack RTM event
// type strings so the resolver logic reads like the protocol documentation.
const (
	EventMessage        = "message"
	EventTeamJoin       = "team_join"
	EventPresenceChange = "presence_change"
	EventMemberJoined   = "member_joined_channel"
	EventMemberLeft     = "member_left_channel"
)

// Message subtypes that IRC already displays natively (the session joining
// or leaving the channel), so mirroring them would duplicate output.
const (
	subtypeChannelJoin  = "channel_join"
	subtypeChannelLeave = "channel_leave"
	subtypeChannelTopic = "channel_topic"
	subtypeGroupTopic   = "group_topic"
	subtypeMeMessage    = "me_message"
)

// presence values carried by presence_change events.
const (
	presenceAway   = "away"
	presenceActive = "active"
)

// HubUser is a Slack workspace member as seen in the startup snapshot or a
// team_join event.
type HubUser struct {
	ID       string
	Name     string
	RealName string
	IsBot    bool
	Deleted  bool
}

// HubChannel is a Slack channel as returned by the channel snapshot.
type HubChannel struct {
	ID         string
	Name       string
	Topic      string
	NumMembers int
}

// HubFile describes a file attachment shared on the hub.
type HubFile struct {
	Name       string
	Filetype   string
	Mimetype   string
	URLPrivate string
	Thumb1024  string
}

// HubEvent is one normalized event from the hub feed. It is ephemeral:
// produced by a feed poll, queued by timestamp, consumed exactly once by the
// resolver (twice for deferred private messages, flagged by Deferred).
type HubEvent struct {
	Kind      string
	SubType   string
	UserID    string
	ChannelID string
	Text      string
	Topic     string
	Presence  string
	Bot       bool
	User      *HubUser
	Files     []HubFile
	Timestamp time.Time

	// Deferred marks a private message that has been through the
	// deferred-authentication backlog once already.
	Deferred bool

	// seq is the queue insertion order, used to break timestamp ties.
	seq uint64
}

// parseHubTimestamp parses a Slack "seconds.fraction" timestamp string.
func parseHubTimestamp(ts string) (time.Time, bool) {
	if ts == "" {
		return time.Time{}, false
	}
	secPart, fracPart, _ := strings.Cut(ts, ".")
	sec, err := strconv.ParseInt(secPart, 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	var nsec int64
	if fracPart != "" {
		if len(fracPart) > 9 {
			fracPart = fracPart[:9]
		}
		frac, err := strconv.ParseInt(fracPart, 10, 64)
		if err != nil {
			return time.Time{}, false
		}
		for i := len(fracPart); i < 9; i++ {
			frac *= 10
		}
		nsec = frac
	}
	return time.Unix(sec, nsec), true
}
