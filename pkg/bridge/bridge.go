// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/aiku/slack-irc-bridge/pkg/bridge/ircfmt"
	"github.com/aiku/slack-irc-bridge/pkg/bridge/slackfmt"
)

// SessionManager owns the whole bridge: the identity directory built from
// the startup snapshot, the control session, one mirrored session per hub
// participant, the event ingestor and the stateless resolver.
type SessionManager struct {
	cfg      *Config
	log      zerolog.Logger
	hub      HubClient
	feed     HubFeed
	dialer   RelayDialer
	dir      *Directory
	auth     *AuthTable
	slackFmt *slackfmt.Formatter
	files    *FileRelay
	resolver *Resolver
	ingestor *Ingestor
	ctx      context.Context

	spawnMu sync.Mutex
	pending map[string]struct{}
}

// NewSessionManager wires the bridge together. hub and feed are usually the
// same SlackHub; tests pass fakes.
func NewSessionManager(cfg *Config, hub HubClient, feed HubFeed, dialer RelayDialer, log zerolog.Logger) *SessionManager {
	m := &SessionManager{
		cfg:      cfg,
		log:      log.With().Str("component", "manager").Logger(),
		hub:      hub,
		feed:     feed,
		dialer:   dialer,
		dir:      NewDirectory(),
		auth:     NewAuthTable(),
		slackFmt: slackfmt.NewFormatter(cfg.Relay.NickSuffix),
		files:    NewFileRelay(cfg.FileHost.URL, cfg.Hub.Token, log),
		pending:  make(map[string]struct{}),
	}
	m.resolver = newResolver(m)
	m.ingestor = NewIngestor(feed, m.resolver, cfg.Hub.PollInterval, cfg.Hub.DrainInterval,
		NewReconnectBackoff, log)
	return m
}

// Directory exposes the identity directory, mainly for tests and status
// inspection.
func (m *SessionManager) Directory() *Directory { return m.dir }

// Start bootstraps the bridge: snapshot, control session, one session per
// participant, then the event feed. It returns once every startup session
// is registered; a snapshot failure is fatal because the bridge cannot
// route anything without the identity directory.
func (m *SessionManager) Start(ctx context.Context) error {
	m.ctx = ctx

	users, err := m.loadSnapshot(ctx)
	if err != nil {
		return fmt.Errorf("load hub snapshot: %w", err)
	}

	control := newControlSession(m)
	m.dir.SetControl(m.cfg.Hub.SelfUserID, control)
	if err := control.start(ctx); err != nil {
		return fmt.Errorf("start control session: %w", err)
	}
	m.log.Info().Str("nick", control.Nick()).Msg("Control session registered")

	var wg sync.WaitGroup
	for _, user := range users {
		wg.Add(1)
		go func(u HubUser) {
			defer wg.Done()
			m.SpawnParticipant(ctx, u)
		}(user)
	}
	wg.Wait()
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Info().Int("participants", len(m.dir.Participants())).
		Msg("Participant sessions registered")

	if err := m.connectFeed(ctx); err != nil {
		return err
	}
	go m.ingestor.Run(ctx)
	return nil
}

// loadSnapshot fills the directory from the hub's channel and user lists
// and returns the participants to mirror.
func (m *SessionManager) loadSnapshot(ctx context.Context) ([]HubUser, error) {
	channels, err := m.hub.ListChannels(ctx)
	if err != nil {
		return nil, fmt.Errorf("list channels: %w", err)
	}
	for _, ch := range channels {
		var members []string
		if ch.NumMembers > 0 {
			members, err = m.hub.ListChannelMembers(ctx, ch.ID)
			if err != nil {
				m.log.Warn().Err(err).Str("channel", ch.Name).
					Msg("Failed to list channel members, starting with none")
				members = nil
			}
		}
		m.dir.AddChannel(ch.ID, ch.Name, ch.Topic, members)
	}

	all, err := m.hub.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	users := make([]HubUser, 0, len(all))
	for _, u := range all {
		if mirrorable(u) {
			users = append(users, u)
		}
	}
	m.log.Info().Int("channels", len(channels)).Int("users", len(users)).
		Msg("Hub snapshot loaded")
	return users, nil
}

func (m *SessionManager) connectFeed(ctx context.Context) error {
	bo := NewReconnectBackoff()
	for {
		err := m.feed.Connect(ctx)
		if err == nil {
			return nil
		}
		m.log.Warn().Err(err).Msg("Hub feed connect failed")
		if !sleepCtx(ctx, bo.NextBackOff()) {
			return ctx.Err()
		}
	}
}

// SpawnParticipant creates and registers the mirrored session for a hub
// user if none exists. It is idempotent and safe to call concurrently; it
// blocks until the session has registered on the relay network.
func (m *SessionManager) SpawnParticipant(ctx context.Context, user HubUser) {
	if !mirrorable(user) {
		return
	}
	m.spawnMu.Lock()
	if _, ok := m.dir.Participant(user.ID); ok {
		m.spawnMu.Unlock()
		return
	}
	if _, ok := m.pending[user.ID]; ok {
		m.spawnMu.Unlock()
		return
	}
	m.pending[user.ID] = struct{}{}
	m.spawnMu.Unlock()

	s := newUserSession(m, user)
	err := s.start(ctx)

	m.spawnMu.Lock()
	delete(m.pending, user.ID)
	if err == nil {
		m.dir.AddParticipant(user.ID, s)
	}
	m.spawnMu.Unlock()

	if err != nil {
		m.log.Err(err).Str("hub_user", user.ID).Msg("Failed to start participant session")
		return
	}
	m.log.Debug().Str("hub_user", user.ID).Str("nick", s.RelayNick()).
		Msg("Participant session registered")
}

func (m *SessionManager) deriveNick(name string) string {
	return ircfmt.SanitizeNick(name) + m.cfg.Relay.NickSuffix
}

// mirrorable reports whether a hub user gets a relay session. Bots,
// deactivated accounts and the hub's own built-in bot do not.
func mirrorable(u HubUser) bool {
	return !u.IsBot && !u.Deleted && !strings.EqualFold(u.Name, "slackbot") && u.Name != ""
}
