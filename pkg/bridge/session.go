// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Session is one relay-network connection owned by the session manager.
// There are two concrete implementations: the ControlSession representing
// the bridge itself, and one UserSession per mirrored hub participant.
type Session interface {
	// Nick returns the session's current relay nickname.
	Nick() string
	// Ready is closed once the session has completed its first successful
	// registration on the relay network.
	Ready() <-chan struct{}
}

// ControlSession is the bridge's own presence on the relay network. It joins
// every mirrored channel, posts system notices, handles IRC-side traffic
// that has no per-participant owner (channel messages, topic changes) and
// runs the identity-verification queries for the deferred-auth protocol.
type ControlSession struct {
	mgr   *SessionManager
	log   zerolog.Logger
	conn  RelayConn
	nick  string
	ready chan struct{}
	once  sync.Once
}

func newControlSession(mgr *SessionManager) *ControlSession {
	nick := mgr.cfg.Relay.Nickname
	s := &ControlSession{
		mgr:   mgr,
		log:   mgr.log.With().Str("session", "control").Str("nick", nick).Logger(),
		nick:  nick,
		ready: make(chan struct{}),
	}
	s.conn = mgr.dialer.NewConn(nick, s.log)
	return s
}

// start connects the control session and blocks until it is registered or
// ctx is cancelled.
func (s *ControlSession) start(ctx context.Context) error {
	if err := s.conn.Start(ctx, s.relayEvents()); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		return nil
	}
}

func (s *ControlSession) Nick() string { return s.nick }

func (s *ControlSession) Ready() <-chan struct{} { return s.ready }

// Whois issues an identity-verification query for an IRC nickname.
func (s *ControlSession) Whois(nick string) { s.conn.Whois(nick) }

func (s *ControlSession) markReady() {
	s.once.Do(func() { close(s.ready) })
}

// UserSession is one hub participant mirrored onto the relay network with
// its own connection and nickname. Sessions are spawned from the startup
// snapshot or a team_join event and persist for the process lifetime.
type UserSession struct {
	mgr          *SessionManager
	log          zerolog.Logger
	conn         RelayConn
	userID       string
	originName   string
	realName     string
	intendedNick string
	ready        chan struct{}
	once         sync.Once

	mu         sync.Mutex
	channels   map[string]struct{}
	dmID       string
	away       bool
	reclaiming bool
}

func newUserSession(mgr *SessionManager, user HubUser) *UserSession {
	nick := mgr.deriveNick(user.Name)
	s := &UserSession{
		mgr:          mgr,
		userID:       user.ID,
		originName:   user.Name,
		realName:     user.RealName,
		intendedNick: nick,
		ready:        make(chan struct{}),
		channels:     make(map[string]struct{}),
	}
	s.log = mgr.log.With().Str("session", "participant").
		Str("hub_user", user.ID).Str("nick", nick).Logger()
	for _, name := range mgr.dir.ChannelsForMember(user.ID) {
		s.channels[name] = struct{}{}
	}
	s.conn = mgr.dialer.NewConn(nick, s.log)
	return s
}

// start connects the session and blocks until it is registered or ctx is
// cancelled.
func (s *UserSession) start(ctx context.Context) error {
	if err := s.conn.Start(ctx, s.relayEvents()); err != nil {
		return err
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.ready:
		return nil
	}
}

func (s *UserSession) Nick() string { return s.conn.CurrentNick() }

func (s *UserSession) Ready() <-chan struct{} { return s.ready }

// UserID returns the mirrored hub user's id.
func (s *UserSession) UserID() string { return s.userID }

// OriginName returns the hub display name this session mirrors.
func (s *UserSession) OriginName() string { return s.originName }

// RelayNick returns the nickname this session is meant to hold (sanitized
// display name plus suffix), which is also what mentions resolve to.
func (s *UserSession) RelayNick() string { return s.intendedNick }

func (s *UserSession) markReady() {
	s.once.Do(func() { close(s.ready) })
}

// JoinChannel joins the relay channel with the given display name.
func (s *UserSession) JoinChannel(name string) {
	s.mu.Lock()
	s.channels[name] = struct{}{}
	s.mu.Unlock()
	s.conn.Join("#" + name)
}

// LeaveChannel parts the relay channel with the given display name.
func (s *UserSession) LeaveChannel(name string) {
	s.mu.Lock()
	delete(s.channels, name)
	s.mu.Unlock()
	s.conn.Part("#" + name)
}

// SetAway marks the session away on the relay network.
func (s *UserSession) SetAway(reason string) {
	s.mu.Lock()
	s.away = true
	s.mu.Unlock()
	s.conn.Away(reason)
}

// SetBack clears the session's away state.
func (s *UserSession) SetBack() {
	s.mu.Lock()
	s.away = false
	s.mu.Unlock()
	s.conn.Back()
}

// SendMessage emits an already-formatted message to a relay target (channel
// with '#', or a nickname for private messages).
func (s *UserSession) SendMessage(target, text string) {
	s.conn.Privmsg(target, text)
}

// SendAction emits an already-formatted CTCP action to a relay target.
func (s *UserSession) SendAction(target, text string) {
	s.conn.Action(target, text)
}

// NoteDM records the hub direct-message channel id for this participant the
// first time one is seen on the feed.
func (s *UserSession) NoteDM(channelID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dmID == "" {
		s.dmID = channelID
	}
}

// dmChannelID returns the hub DM channel for this participant, opening one
// via the hub API on first use.
func (s *UserSession) dmChannelID(ctx context.Context) (string, error) {
	s.mu.Lock()
	id := s.dmID
	s.mu.Unlock()
	if id != "" {
		return id, nil
	}
	id, err := s.mgr.hub.OpenDirectMessage(ctx, s.userID)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	if s.dmID == "" {
		s.dmID = id
	}
	id = s.dmID
	s.mu.Unlock()
	return id, nil
}

// joinedChannels returns a snapshot of the channel names the session has
// joined.
func (s *UserSession) joinedChannels() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.channels))
	for name := range s.channels {
		out = append(out, name)
	}
	return out
}

var (
	_ Session = (*ControlSession)(nil)
	_ Session = (*UserSession)(nil)
)
