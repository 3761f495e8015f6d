// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/slack-go/slack"
)

// HubClient is the request/response surface of the hub service. Every call
// reports failure as an error; the two snapshot calls (ListChannels,
// ListUsers) are startup-critical and their failure is fatal to process
// start.
type HubClient interface {
	ListChannels(ctx context.Context) ([]HubChannel, error)
	ListChannelMembers(ctx context.Context, channelID string) ([]string, error)
	ListUsers(ctx context.Context) ([]HubUser, error)
	PostMessage(ctx context.Context, channelID, text, displayName, avatarURL string) error
	SetChannelTopic(ctx context.Context, channelID, topic string) error
	OpenDirectMessage(ctx context.Context, userID string) (string, error)
}

// HubFeed is the hub's polled event feed. Poll returns whatever events are
// currently available without blocking; a non-nil error means the feed needs
// a reconnect, but any events returned alongside it are still valid.
type HubFeed interface {
	Connect(ctx context.Context) error
	Poll(ctx context.Context) ([]*HubEvent, error)
}

var errFeedClosed = errors.New("hub feed event stream closed")

// SlackHub implements HubClient and HubFeed against the Slack Web API and
// RTM feed.
type SlackHub struct {
	log zerolog.Logger
	api *slack.Client
	rtm *slack.RTM
}

// NewSlackHub returns a hub client authenticated with the given token.
func NewSlackHub(token string, log zerolog.Logger) *SlackHub {
	return &SlackHub{
		log: log.With().Str("component", "slack").Logger(),
		api: slack.New(token),
	}
}

const pageLimit = 500

func (h *SlackHub) ListChannels(ctx context.Context) ([]HubChannel, error) {
	var out []HubChannel
	params := &slack.GetConversationsParameters{
		Limit:           pageLimit,
		ExcludeArchived: true,
	}
	for {
		channels, next, err := h.api.GetConversationsContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to list channels: %w", err)
		}
		for _, ch := range channels {
			out = append(out, HubChannel{
				ID:         ch.ID,
				Name:       ch.Name,
				Topic:      ch.Topic.Value,
				NumMembers: ch.NumMembers,
			})
		}
		if next == "" {
			return out, nil
		}
		params.Cursor = next
	}
}

func (h *SlackHub) ListChannelMembers(ctx context.Context, channelID string) ([]string, error) {
	var out []string
	params := &slack.GetUsersInConversationParameters{
		ChannelID: channelID,
		Limit:     pageLimit,
	}
	for {
		members, next, err := h.api.GetUsersInConversationContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to list members of %s: %w", channelID, err)
		}
		out = append(out, members...)
		if next == "" {
			return out, nil
		}
		params.Cursor = next
	}
}

func (h *SlackHub) ListUsers(ctx context.Context) ([]HubUser, error) {
	users, err := h.api.GetUsersContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	out := make([]HubUser, 0, len(users))
	for _, u := range users {
		out = append(out, HubUser{
			ID:       u.ID,
			Name:     u.Name,
			RealName: u.RealName,
			IsBot:    u.IsBot,
			Deleted:  u.Deleted,
		})
	}
	return out, nil
}

// PostMessage posts to a channel under an arbitrary display name and avatar,
// which is how mirrored IRC users appear as themselves on the hub.
func (h *SlackHub) PostMessage(ctx context.Context, channelID, text, displayName, avatarURL string) error {
	_, _, err := h.api.PostMessageContext(ctx, channelID,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAsUser(false),
		slack.MsgOptionUsername(displayName),
		slack.MsgOptionIconURL(avatarURL),
	)
	if err != nil {
		return fmt.Errorf("failed to post to %s: %w", channelID, err)
	}
	return nil
}

func (h *SlackHub) SetChannelTopic(ctx context.Context, channelID, topic string) error {
	if _, err := h.api.SetTopicOfConversationContext(ctx, channelID, topic); err != nil {
		return fmt.Errorf("failed to set topic of %s: %w", channelID, err)
	}
	return nil
}

func (h *SlackHub) OpenDirectMessage(ctx context.Context, userID string) (string, error) {
	ch, _, _, err := h.api.OpenConversationContext(ctx, &slack.OpenConversationParameters{
		Users:    []string{userID},
		ReturnIM: true,
	})
	if err != nil {
		return "", fmt.Errorf("failed to open DM with %s: %w", userID, err)
	}
	return ch.ID, nil
}

// Connect (re)establishes the RTM event feed.
func (h *SlackHub) Connect(ctx context.Context) error {
	if h.rtm != nil {
		_ = h.rtm.Disconnect()
	}
	h.rtm = h.api.NewRTM()
	go h.rtm.ManageConnection()
	h.log.Info().Msg("Hub event feed connected")
	return ctx.Err()
}

// Poll drains the events currently buffered on the feed without blocking.
// Transport-level events surface as an error so the ingestor reconnects;
// real events read before the failure are still returned.
func (h *SlackHub) Poll(ctx context.Context) ([]*HubEvent, error) {
	var batch []*HubEvent
	for {
		select {
		case <-ctx.Done():
			return batch, ctx.Err()
		case raw, ok := <-h.rtm.IncomingEvents:
			if !ok {
				return batch, errFeedClosed
			}
			ev, err := h.convertEvent(raw)
			if err != nil {
				return batch, err
			}
			if ev != nil {
				batch = append(batch, ev)
			}
		default:
			return batch, nil
		}
	}
}

// convertEvent normalizes one RTM event. Unrecognized event types yield
// (nil, nil) and are dropped here rather than queued.
func (h *SlackHub) convertEvent(raw slack.RTMEvent) (*HubEvent, error) {
	switch data := raw.Data.(type) {
	case *slack.MessageEvent:
		ev := &HubEvent{
			Kind:      EventMessage,
			SubType:   data.SubType,
			UserID:    data.User,
			ChannelID: data.Channel,
			Text:      data.Text,
			Topic:     data.Topic,
			Bot:       data.BotID != "",
		}
		if ts, ok := parseHubTimestamp(data.Timestamp); ok {
			ev.Timestamp = ts
		}
		for _, f := range data.Files {
			ev.Files = append(ev.Files, HubFile{
				Name:       f.Name,
				Filetype:   f.Filetype,
				Mimetype:   f.Mimetype,
				URLPrivate: f.URLPrivate,
				Thumb1024:  f.Thumb1024,
			})
		}
		return ev, nil
	case *slack.PresenceChangeEvent:
		return &HubEvent{
			Kind:     EventPresenceChange,
			UserID:   data.User,
			Presence: data.Presence,
		}, nil
	case *slack.TeamJoinEvent:
		return &HubEvent{
			Kind:   EventTeamJoin,
			UserID: data.User.ID,
			Bot:    data.User.IsBot,
			User: &HubUser{
				ID:       data.User.ID,
				Name:     data.User.Name,
				RealName: data.User.RealName,
				IsBot:    data.User.IsBot,
				Deleted:  data.User.Deleted,
			},
		}, nil
	case *slack.MemberJoinedChannelEvent:
		return &HubEvent{Kind: EventMemberJoined, UserID: data.User, ChannelID: data.Channel}, nil
	case *slack.MemberLeftChannelEvent:
		return &HubEvent{Kind: EventMemberLeft, UserID: data.User, ChannelID: data.Channel}, nil
	case *slack.ConnectionErrorEvent:
		return nil, fmt.Errorf("hub feed connection error: %w", data.ErrorObj)
	case *slack.InvalidAuthEvent:
		return nil, errors.New("hub feed rejected credentials")
	case *slack.RTMError:
		return nil, fmt.Errorf("hub feed error: %s", data.Error())
	default:
		return nil, nil
	}
}

var (
	_ HubClient = (*SlackHub)(nil)
	_ HubFeed   = (*SlackHub)(nil)
)
