// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"

	"github.com/aiku/slack-irc-bridge/pkg/bridge/ircfmt"
)

const (
	dmUsageHint = "Please message an IRC user with [username]: [message]"

	undeliverableTmpl = "Error: %s is either not online or not authenticated" +
		" with NickServ. Message(s) were not delivered."
)

// dmRecipientRe splits "nick: message" direct messages addressed through
// the bridge.
var dmRecipientRe = regexp.MustCompile(`^([^:]+):`)

// Resolver turns drained hub events into relay-side effects. It is
// stateless apart from the manager's shared structures, so a deferred event
// can be resolved again after the auth protocol completes.
type Resolver struct {
	mgr *SessionManager
	log zerolog.Logger
}

func newResolver(mgr *SessionManager) *Resolver {
	return &Resolver{mgr: mgr, log: mgr.log.With().Str("component", "resolver").Logger()}
}

func (r *Resolver) Resolve(ctx context.Context, ev *HubEvent) {
	if ev == nil || ev.Kind == "" {
		return
	}
	if ev.Kind == EventTeamJoin {
		if ev.User != nil {
			go r.mgr.SpawnParticipant(ctx, *ev.User)
		}
		return
	}
	if ev.Bot || ev.UserID == "" {
		return
	}
	p, ok := r.mgr.dir.Participant(ev.UserID)
	if !ok {
		r.log.Debug().Str("hub_user", ev.UserID).Str("kind", ev.Kind).
			Msg("Dropping event for unmirrored hub user")
		return
	}

	switch ev.Kind {
	case EventPresenceChange:
		switch ev.Presence {
		case presenceAway:
			p.SetAway(inactiveAway)
		case presenceActive:
			p.SetBack()
		}
	case EventMemberJoined:
		if info, ok := r.mgr.dir.Channel(ev.ChannelID); ok {
			r.mgr.dir.AddMember(ev.ChannelID, ev.UserID)
			p.JoinChannel(info.Name)
		}
	case EventMemberLeft:
		if info, ok := r.mgr.dir.Channel(ev.ChannelID); ok {
			r.mgr.dir.RemoveMember(ev.ChannelID, ev.UserID)
			p.LeaveChannel(info.Name)
		}
	case EventMessage:
		r.resolveMessage(ctx, ev, p)
	}
}

func (r *Resolver) resolveMessage(ctx context.Context, ev *HubEvent, p *UserSession) {
	if ev.ChannelID == "" {
		return
	}
	if strings.HasPrefix(ev.ChannelID, r.mgr.cfg.Hub.DMPrefix) {
		r.resolveDirect(ctx, ev, p)
		return
	}
	info, ok := r.mgr.dir.Channel(ev.ChannelID)
	if !ok {
		r.log.Debug().Str("channel_id", ev.ChannelID).
			Msg("Dropping message for unmapped hub channel")
		return
	}

	switch ev.SubType {
	case subtypeChannelJoin, subtypeChannelLeave:
		// Already handled via membership events; relaying these would
		// duplicate the join/part the mirrored session performs itself.
		return
	case subtypeChannelTopic, subtypeGroupTopic:
		r.mgr.dir.SetTopic(ev.ChannelID, ev.Topic)
		return
	}

	target := "#" + info.Name
	text := ircfmt.Format(ev.Text, r.mgr.dir)
	if ev.SubType == subtypeMeMessage {
		if text != "" {
			p.SendAction(target, text)
		}
		return
	}
	for _, f := range ev.Files {
		file := f
		go r.mgr.files.Relay(ctx, file, p, target)
	}
	if text != "" {
		p.SendMessage(target, text)
	}
}

// resolveDirect handles a hub direct message to the bridge: "nick: text"
// sends text to nick on the relay network, once the recipient's identity
// has been verified through the deferred-auth protocol.
func (r *Resolver) resolveDirect(ctx context.Context, ev *HubEvent, p *UserSession) {
	p.NoteDM(ev.ChannelID)

	m := dmRecipientRe.FindStringSubmatch(ev.Text)
	if m == nil {
		r.mgr.postToHub(ev.ChannelID, r.mgr.cfg.Relay.Nickname, dmUsageHint)
		return
	}
	rcpt := m[1]

	known, authenticated := r.mgr.auth.Status(rcpt)
	if known && ev.Deferred {
		if !authenticated {
			r.mgr.postToHub(ev.ChannelID, r.mgr.cfg.Relay.Nickname,
				fmt.Sprintf(undeliverableTmpl, rcpt))
			return
		}
		text := strings.TrimSpace(strings.TrimPrefix(ev.Text, m[0]))
		p.SendMessage(rcpt, ircfmt.Format(text, r.mgr.dir))
		return
	}

	// First sight of this recipient for this delivery: park the event and
	// ask the identity service. End-of-WHOIS flushes it back through here.
	ev.Deferred = true
	r.mgr.auth.Defer(rcpt, ev)
	r.mgr.dir.Control().Whois(rcpt)
}
