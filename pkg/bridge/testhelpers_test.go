// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// fakeConn is an in-memory RelayConn that records every outbound call and
// simulates instant registration.
type fakeConn struct {
	mu      sync.Mutex
	nick    string
	ev      RelayEvents
	started bool

	joins    []string
	parts    []string
	privmsgs []string // "target|text"
	actions  []string // "target|text"
	aways    []string
	backs    int
	whois    []string
	nicks    []string
	quits    int
}

func (c *fakeConn) Start(ctx context.Context, ev RelayEvents) error {
	c.mu.Lock()
	c.ev = ev
	c.started = true
	c.mu.Unlock()
	if ev.Connected != nil {
		ev.Connected()
	}
	return nil
}

func (c *fakeConn) record(list *[]string, v string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	*list = append(*list, v)
}

func (c *fakeConn) Join(channel string) { c.record(&c.joins, channel) }
func (c *fakeConn) Part(channel string) { c.record(&c.parts, channel) }

func (c *fakeConn) Privmsg(target, text string) {
	c.record(&c.privmsgs, target+"|"+text)
}

func (c *fakeConn) Action(target, text string) {
	c.record(&c.actions, target+"|"+text)
}

func (c *fakeConn) Away(reason string) { c.record(&c.aways, reason) }

func (c *fakeConn) Back() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.backs++
}

func (c *fakeConn) Whois(nick string) { c.record(&c.whois, nick) }
func (c *fakeConn) Nick(nick string)  { c.record(&c.nicks, nick) }

func (c *fakeConn) CurrentNick() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nick
}

func (c *fakeConn) Quit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.quits++
}

func (c *fakeConn) snapshot(list *[]string) []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(*list))
	copy(out, *list)
	return out
}

func (c *fakeConn) events() RelayEvents {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ev
}

// fakeDialer hands out fakeConns and remembers them by nickname.
type fakeDialer struct {
	mu    sync.Mutex
	conns map[string]*fakeConn
}

func newFakeDialer() *fakeDialer {
	return &fakeDialer{conns: make(map[string]*fakeConn)}
}

func (d *fakeDialer) NewConn(nick string, log zerolog.Logger) RelayConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := &fakeConn{nick: nick}
	d.conns[nick] = c
	return c
}

func (d *fakeDialer) conn(nick string) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[nick]
}

type hubPost struct {
	channelID   string
	text        string
	displayName string
	avatarURL   string
}

// fakeHub is an in-memory HubClient + HubFeed.
type fakeHub struct {
	mu       sync.Mutex
	channels []HubChannel
	members  map[string][]string
	users    []HubUser

	listChannelsErr error
	listUsersErr    error

	posts   []hubPost
	topics  []string // "channelID|topic"
	dmIDs   map[string]string
	batches [][]*HubEvent
	pollErr error

	connects int
}

func newFakeHub() *fakeHub {
	return &fakeHub{
		members: make(map[string][]string),
		dmIDs:   make(map[string]string),
	}
}

func (h *fakeHub) ListChannels(ctx context.Context) ([]HubChannel, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.channels, h.listChannelsErr
}

func (h *fakeHub) ListChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.members[channelID], nil
}

func (h *fakeHub) ListUsers(ctx context.Context) ([]HubUser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.users, h.listUsersErr
}

func (h *fakeHub) PostMessage(ctx context.Context, channelID, text, displayName, avatarURL string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.posts = append(h.posts, hubPost{channelID, text, displayName, avatarURL})
	return nil
}

func (h *fakeHub) SetChannelTopic(ctx context.Context, channelID, topic string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.topics = append(h.topics, channelID+"|"+topic)
	return nil
}

func (h *fakeHub) OpenDirectMessage(ctx context.Context, userID string) (string, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id, ok := h.dmIDs[userID]
	if !ok {
		id = fmt.Sprintf("D%03d", len(h.dmIDs)+1)
		h.dmIDs[userID] = id
	}
	return id, nil
}

func (h *fakeHub) Connect(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.connects++
	return nil
}

func (h *fakeHub) Poll(ctx context.Context) ([]*HubEvent, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.batches) == 0 {
		return nil, h.pollErr
	}
	batch := h.batches[0]
	h.batches = h.batches[1:]
	return batch, h.pollErr
}

func (h *fakeHub) allPosts() []hubPost {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]hubPost, len(h.posts))
	copy(out, h.posts)
	return out
}

func (h *fakeHub) allTopics() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.topics))
	copy(out, h.topics)
	return out
}

var (
	_ HubClient = (*fakeHub)(nil)
	_ HubFeed   = (*fakeHub)(nil)
	_ RelayConn = (*fakeConn)(nil)
)

func testConfig() *Config {
	cfg := &Config{}
	cfg.Relay.Host = "irc.test"
	cfg.Hub.Token = "xoxb-test"
	cfg.Hub.SelfUserID = "U0BRIDGE"
	if err := cfg.PostProcess(); err != nil {
		panic(err)
	}
	// Keep nick reclaim timers out of unit tests.
	cfg.Relay.NickRetryDelay = time.Hour
	return cfg
}

// newTestManager builds a manager around fakes with the snapshot already
// applied: one control session and one mirrored participant per user.
func newTestManager(t *testing.T, hub *fakeHub) (*SessionManager, *fakeDialer) {
	t.Helper()
	dialer := newFakeDialer()
	m := NewSessionManager(testConfig(), hub, hub, dialer, zerolog.Nop())
	m.ctx = context.Background()

	control := newControlSession(m)
	m.dir.SetControl(m.cfg.Hub.SelfUserID, control)
	if err := control.conn.Start(m.ctx, control.relayEvents()); err != nil {
		t.Fatalf("start control session: %v", err)
	}
	return m, dialer
}

// addParticipant mirrors one hub user onto a fake connection.
func addParticipant(t *testing.T, m *SessionManager, id, name string) *UserSession {
	t.Helper()
	s := newUserSession(m, HubUser{ID: id, Name: name})
	if err := s.conn.Start(m.ctx, s.relayEvents()); err != nil {
		t.Fatalf("start participant session: %v", err)
	}
	m.dir.AddParticipant(id, s)
	return s
}
