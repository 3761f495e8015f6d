// Copyright 2024-2026 Aiku AI

package bridge

import (
	"fmt"
	"strings"
	"time"

	"github.com/aiku/slack-irc-bridge/pkg/bridge/ircfmt"
)

const (
	startupAway  = "Default away for startup."
	inactiveAway = "Slack user inactive."
)

func (s *ControlSession) relayEvents() RelayEvents {
	return RelayEvents{
		Connected:    s.onConnected,
		Message:      s.onMessage,
		Action:       s.onAction,
		TopicChanged: s.onTopicChanged,
		NickChanged:  s.onNickChanged,
		UserLeft:     s.onUserGone,
		UserKicked:   s.onUserGone,
		UserQuit:     s.onUserQuit,
		WhoisAccount: s.mgr.auth.Verify,
		WhoisEnd:     s.onWhoisEnd,
	}
}

func (s *ControlSession) onConnected() {
	if pw := s.mgr.cfg.Relay.NickServPassword; pw != "" {
		s.conn.Privmsg("NickServ", "IDENTIFY "+pw)
	}
	for _, name := range s.mgr.dir.ChannelNames() {
		s.conn.Join("#" + name)
	}
	s.markReady()
}

func (s *ControlSession) onMessage(sender, target, text string) {
	if !strings.HasPrefix(target, "#") {
		return
	}
	s.mgr.mirrorToHub(sender, target, text)
}

func (s *ControlSession) onAction(sender, target, text string) {
	if !strings.HasPrefix(target, "#") {
		return
	}
	s.mgr.mirrorToHub(sender, target, "_"+text+"_")
}

// onTopicChanged pushes an IRC-side topic change to the hub, unless the
// change came from a mirrored session (the hub already has it) or matches
// the directory (it is the echo of a hub-side change the bridge applied).
func (s *ControlSession) onTopicChanged(sender, channel, topic string) {
	if strings.HasSuffix(sender, s.mgr.cfg.Relay.NickSuffix) {
		return
	}
	name := strings.TrimPrefix(channel, "#")
	id, ok := s.mgr.dir.ChannelIDByName(name)
	if !ok {
		return
	}
	if info, ok := s.mgr.dir.Channel(id); ok && info.Topic == topic {
		return
	}
	if err := s.mgr.hub.SetChannelTopic(s.mgr.ctx, id, topic); err != nil {
		s.log.Err(err).Str("channel", name).Msg("Failed to sync topic to hub")
		return
	}
	s.mgr.dir.SetTopic(id, topic)
}

// A nickname change invalidates any verified identity attached to either
// nick: the old nick no longer points at the verified user, and the new
// nick has not been verified under that name.
func (s *ControlSession) onNickChanged(oldNick, newNick string) {
	s.mgr.auth.Deauthenticate(oldNick)
	s.mgr.auth.Deauthenticate(newNick)
}

func (s *ControlSession) onUserGone(nick, _ string) {
	s.mgr.auth.Deauthenticate(nick)
}

func (s *ControlSession) onUserQuit(nick string) {
	s.mgr.auth.Deauthenticate(nick)
}

// onWhoisEnd completes a deferred delivery: whatever verification replies
// arrived before end-of-WHOIS decided the recipient's state, and the
// backlog is flushed through the resolver exactly once either way.
func (s *ControlSession) onWhoisEnd(nick string) {
	backlog := s.mgr.auth.Flush(nick)
	for _, ev := range backlog {
		s.mgr.resolver.Resolve(s.mgr.ctx, ev)
	}
}

func (s *UserSession) relayEvents() RelayEvents {
	return RelayEvents{
		Connected:   s.onConnected,
		Message:     s.onMessage,
		NickChanged: s.onNickChanged,
	}
}

func (s *UserSession) onConnected() {
	current := s.conn.CurrentNick()
	if current == s.intendedNick {
		s.identify()
	} else {
		s.log.Info().Str("current", current).Msg("Intended nick taken, will retry")
		s.scheduleReclaim()
	}
	for _, name := range s.joinedChannels() {
		s.conn.Join("#" + name)
	}
	s.conn.Away(startupAway)
	s.mu.Lock()
	s.away = true
	s.mu.Unlock()
	s.markReady()
}

// identify authenticates the current nick with NickServ: identify if the
// nick is registered, and group it under the bridge's account if it is not.
func (s *UserSession) identify() {
	pw := s.mgr.cfg.Relay.NickServPassword
	if pw == "" {
		return
	}
	s.conn.Privmsg("NickServ", "IDENTIFY "+pw)
	s.conn.Privmsg("NickServ", fmt.Sprintf("GROUP %s %s", s.mgr.cfg.Relay.Nickname, pw))
}

// onNickChanged catches the session being renamed away from its intended
// nickname, whether by a services enforcer or a ghost collision.
func (s *UserSession) onNickChanged(oldNick, newNick string) {
	if oldNick != s.intendedNick && newNick != s.intendedNick {
		return
	}
	if s.conn.CurrentNick() != s.intendedNick {
		s.scheduleReclaim()
	}
}

func (s *UserSession) scheduleReclaim() {
	s.mu.Lock()
	if s.reclaiming {
		s.mu.Unlock()
		return
	}
	s.reclaiming = true
	s.mu.Unlock()
	time.AfterFunc(s.mgr.cfg.Relay.NickRetryDelay, s.reclaimNick)
}

// reclaimNick retries the intended nickname until it sticks, typically
// after a ghost of a previous bridge run times out server-side.
func (s *UserSession) reclaimNick() {
	if s.mgr.ctx.Err() != nil {
		s.mu.Lock()
		s.reclaiming = false
		s.mu.Unlock()
		return
	}
	if s.conn.CurrentNick() == s.intendedNick {
		// The connect-time identification applied to the old nick, so
		// services would enforce-rename us again without a fresh one.
		s.identify()
		s.mu.Lock()
		s.reclaiming = false
		s.mu.Unlock()
		return
	}
	s.conn.Nick(s.intendedNick)
	time.AfterFunc(s.mgr.cfg.Relay.NickRetryDelay, s.reclaimNick)
}

// onMessage forwards private messages sent to this mirrored nick into the
// participant's hub direct-message channel as "sender: text".
func (s *UserSession) onMessage(sender, target, text string) {
	if strings.HasPrefix(target, "#") {
		return
	}
	if strings.HasSuffix(sender, s.mgr.cfg.Relay.NickSuffix) {
		return
	}
	dmID, err := s.dmChannelID(s.mgr.ctx)
	if err != nil {
		s.log.Err(err).Str("sender", sender).Msg("Failed to open hub DM channel")
		return
	}
	formatted := s.mgr.slackFmt.Format(text, s.mgr.dir.HasOriginName)
	s.mgr.postToHub(dmID, sender, fmt.Sprintf("%s: %s", sender, formatted))
}

// mirrorToHub relays an IRC channel message to the matching hub channel,
// impersonating the IRC sender by display name and gravatar. Messages from
// mirrored sessions are dropped to break the echo loop.
func (m *SessionManager) mirrorToHub(sender, channel, text string) {
	if strings.HasSuffix(sender, m.cfg.Relay.NickSuffix) {
		return
	}
	name := strings.TrimPrefix(channel, "#")
	id, ok := m.dir.ChannelIDByName(name)
	if !ok {
		m.log.Debug().Str("channel", name).Msg("Dropping message for unmapped relay channel")
		return
	}
	formatted := m.slackFmt.Format(text, m.dir.HasOriginName)
	m.postToHub(id, sender, formatted)
}

func (m *SessionManager) postToHub(channelID, sender, text string) {
	avatar := ircfmt.AvatarURL(sender, m.cfg.Avatar.Domain)
	if err := m.hub.PostMessage(m.ctx, channelID, text, sender, avatar); err != nil {
		m.log.Err(err).Str("channel_id", channelID).Str("sender", sender).
			Msg("Failed to post relay message to hub")
	}
}
