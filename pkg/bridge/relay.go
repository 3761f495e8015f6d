// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"crypto/tls"
	stdlog "log"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	ircevent "github.com/thoj/go-ircevent"
)

// RelayEvents is the set of asynchronous callbacks a relay connection
// delivers to its owning session. Nil fields are ignored.
type RelayEvents struct {
	// Connected fires after registration completes, on the initial connect
	// and after every reconnect.
	Connected func()
	// Message fires for a PRIVMSG. sender is the nickname only, target is a
	// channel (with '#') or this connection's own nickname.
	Message func(sender, target, text string)
	// Action fires for a CTCP ACTION.
	Action func(sender, target, text string)
	// TopicChanged fires when a channel topic changes.
	TopicChanged func(sender, channel, topic string)
	// NickChanged fires when any user (including this connection) changes
	// nickname.
	NickChanged func(oldNick, newNick string)
	// UserLeft, UserKicked and UserQuit fire when a user leaves the network's
	// view of a channel.
	UserLeft   func(nick, channel string)
	UserKicked func(nick, channel string)
	UserQuit   func(nick string)
	// WhoisAccount fires on the identity service's logged-in-as reply.
	WhoisAccount func(nick, account string)
	// WhoisEnd fires on the end-of-WHOIS reply.
	WhoisEnd func(nick string)
	// Disconnected fires when the connection drops; reconnection is already
	// underway when it is delivered.
	Disconnected func(err error)
}

// RelayConn is one live connection to the relay network. Implementations
// must keep the connection alive (reconnecting with backoff) until the
// context passed to Start is cancelled.
type RelayConn interface {
	// Start connects and begins delivering events. It retries until the
	// first connection succeeds or ctx is cancelled.
	Start(ctx context.Context, ev RelayEvents) error
	Join(channel string)
	Part(channel string)
	Privmsg(target, text string)
	Action(target, text string)
	Away(reason string)
	Back()
	Whois(nick string)
	Nick(nick string)
	CurrentNick() string
	Quit()
}

// RelayDialer creates relay connections. The IRC implementation is
// ircDialer; tests substitute fakes.
type RelayDialer interface {
	NewConn(nick string, log zerolog.Logger) RelayConn
}

// RelaySettings is the relay-network endpoint configuration shared by every
// connection the bridge opens.
type RelaySettings struct {
	Host string
	Port int
	TLS  bool
}

// ircDialer builds IRC connections with a shared reconnect policy.
type ircDialer struct {
	settings   RelaySettings
	newBackoff func() backoff.BackOff
}

// NewIRCDialer returns a RelayDialer speaking the IRC protocol. newBackoff
// supplies a fresh jittered exponential backoff per connection attempt
// sequence, so simultaneous reconnects don't storm the server in lockstep.
func NewIRCDialer(settings RelaySettings, newBackoff func() backoff.BackOff) RelayDialer {
	return &ircDialer{settings: settings, newBackoff: newBackoff}
}

func (d *ircDialer) NewConn(nick string, log zerolog.Logger) RelayConn {
	return &ircConn{
		dialer: d,
		nick:   nick,
		log:    log.With().Str("component", "irc").Str("nick", nick).Logger(),
	}
}

// ircConn adapts go-ircevent's callback surface to RelayEvents and owns the
// reconnect loop for one connection.
type ircConn struct {
	dialer *ircDialer
	nick   string
	log    zerolog.Logger
	conn   *ircevent.Connection
}

func (c *ircConn) Start(ctx context.Context, ev RelayEvents) error {
	irccon := ircevent.IRC(c.nick, c.nick)
	irccon.UseTLS = c.dialer.settings.TLS
	if c.dialer.settings.TLS {
		irccon.TLSConfig = &tls.Config{ServerName: c.dialer.settings.Host}
	}
	irccon.QuitMessage = "bridge shutting down"
	irccon.Log = stdlog.New(c.log, "", 0)

	if ev.Connected != nil {
		irccon.AddCallback("001", func(*ircevent.Event) { ev.Connected() })
	}
	if ev.Message != nil {
		irccon.AddCallback("PRIVMSG", func(e *ircevent.Event) {
			ev.Message(e.Nick, e.Arguments[0], e.Message())
		})
	}
	if ev.Action != nil {
		irccon.AddCallback("CTCP_ACTION", func(e *ircevent.Event) {
			ev.Action(e.Nick, e.Arguments[0], e.Message())
		})
	}
	if ev.TopicChanged != nil {
		irccon.AddCallback("TOPIC", func(e *ircevent.Event) {
			ev.TopicChanged(e.Nick, e.Arguments[0], e.Message())
		})
	}
	if ev.NickChanged != nil {
		irccon.AddCallback("NICK", func(e *ircevent.Event) {
			ev.NickChanged(e.Nick, e.Message())
		})
	}
	if ev.UserLeft != nil {
		irccon.AddCallback("PART", func(e *ircevent.Event) {
			ev.UserLeft(e.Nick, e.Arguments[0])
		})
	}
	if ev.UserKicked != nil {
		irccon.AddCallback("KICK", func(e *ircevent.Event) {
			if len(e.Arguments) >= 2 {
				ev.UserKicked(e.Arguments[1], e.Arguments[0])
			}
		})
	}
	if ev.UserQuit != nil {
		irccon.AddCallback("QUIT", func(e *ircevent.Event) { ev.UserQuit(e.Nick) })
	}
	if ev.WhoisAccount != nil {
		// RPL_WHOISACCOUNT: [querier, nick, account, "is logged in as"]
		irccon.AddCallback("330", func(e *ircevent.Event) {
			if len(e.Arguments) >= 3 {
				ev.WhoisAccount(e.Arguments[1], e.Arguments[2])
			}
		})
	}
	if ev.WhoisEnd != nil {
		// RPL_ENDOFWHOIS: [querier, nick, "End of /WHOIS list."]
		irccon.AddCallback("318", func(e *ircevent.Event) {
			if len(e.Arguments) >= 2 {
				ev.WhoisEnd(e.Arguments[1])
			}
		})
	}

	c.conn = irccon
	addr := net.JoinHostPort(c.dialer.settings.Host, strconv.Itoa(c.dialer.settings.Port))

	bo := c.dialer.newBackoff()
	for {
		err := irccon.Connect(addr)
		if err == nil {
			break
		}
		c.log.Warn().Err(err).Str("addr", addr).Msg("Relay connect failed")
		if !sleepCtx(ctx, bo.NextBackOff()) {
			return ctx.Err()
		}
	}
	c.log.Info().Str("addr", addr).Msg("Relay connection established")

	go c.monitor(ctx, ev, addr)
	return nil
}

// monitor watches for connection loss and reconnects with a fresh backoff
// per outage. Connection loss is logged, never fatal to the process.
func (c *ircConn) monitor(ctx context.Context, ev RelayEvents, addr string) {
	for {
		select {
		case <-ctx.Done():
			c.conn.Quit()
			return
		case err := <-c.conn.ErrorChan():
			c.log.Warn().Err(err).Str("addr", addr).Msg("Relay connection lost")
			if ev.Disconnected != nil {
				ev.Disconnected(err)
			}
			bo := c.dialer.newBackoff()
			for {
				if !sleepCtx(ctx, bo.NextBackOff()) {
					return
				}
				if err := c.conn.Reconnect(); err == nil {
					c.log.Info().Str("addr", addr).Msg("Relay reconnected")
					break
				} else {
					c.log.Warn().Err(err).Msg("Relay reconnect failed")
				}
			}
		}
	}
}

func (c *ircConn) Join(channel string)         { c.conn.Join(channel) }
func (c *ircConn) Part(channel string)         { c.conn.Part(channel) }
func (c *ircConn) Privmsg(target, text string) { c.conn.Privmsg(target, text) }
func (c *ircConn) Action(target, text string)  { c.conn.Action(target, text) }
func (c *ircConn) Whois(nick string)           { c.conn.Whois(nick) }
func (c *ircConn) Nick(nick string)            { c.conn.Nick(nick) }
func (c *ircConn) CurrentNick() string         { return c.conn.GetNick() }
func (c *ircConn) Quit()                       { c.conn.Quit() }

func (c *ircConn) Away(reason string) { c.conn.SendRawf("AWAY :%s", reason) }
func (c *ircConn) Back()              { c.conn.SendRaw("AWAY") }

// NewReconnectBackoff is the shared reconnect policy: jittered exponential
// backoff from one second up to a minute, never giving up. Every session and
// the hub feed use a fresh instance per outage.
func NewReconnectBackoff() backoff.BackOff {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = time.Second
	bo.MaxInterval = time.Minute
	bo.MaxElapsedTime = 0
	return bo
}
