// Copyright 2024-2026 Aiku AI

package bridge

import "sync"

// ChannelInfo is the directory's view of one mirrored hub channel.
type ChannelInfo struct {
	ID      string
	Name    string
	Topic   string
	Members map[string]struct{}
}

// Directory is the shared identity mapping between the hub and the relay
// network: channels by id, the inverse name index, spawned participant
// sessions by hub user id, and the control session. It is populated from the
// startup snapshot and mutated incrementally by membership and lifecycle
// events. Sessions, the resolver and the ingestion loops all read it
// concurrently, so every access goes through the mutex.
type Directory struct {
	mu              sync.RWMutex
	channels        map[string]*ChannelInfo
	channelIDByName map[string]string
	participants    map[string]*UserSession
	control         *ControlSession
	selfID          string
}

// NewDirectory returns an empty directory.
func NewDirectory() *Directory {
	return &Directory{
		channels:        make(map[string]*ChannelInfo),
		channelIDByName: make(map[string]string),
		participants:    make(map[string]*UserSession),
	}
}

// AddChannel registers a channel and its member set.
func (d *Directory) AddChannel(id, name, topic string, members []string) {
	memberSet := make(map[string]struct{}, len(members))
	for _, m := range members {
		memberSet[m] = struct{}{}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels[id] = &ChannelInfo{ID: id, Name: name, Topic: topic, Members: memberSet}
	d.channelIDByName[name] = id
}

// Channel returns a snapshot of the channel with the given hub id.
func (d *Directory) Channel(id string) (ChannelInfo, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	if !ok {
		return ChannelInfo{}, false
	}
	return ChannelInfo{ID: ch.ID, Name: ch.Name, Topic: ch.Topic}, true
}

// ChannelIDByName returns the hub channel id for a display name (the
// channel name without the leading '#').
func (d *Directory) ChannelIDByName(name string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.channelIDByName[name]
	return id, ok
}

// ChannelNames returns the display names of every known channel.
func (d *Directory) ChannelNames() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	names := make([]string, 0, len(d.channels))
	for _, ch := range d.channels {
		names = append(names, ch.Name)
	}
	return names
}

// ChannelsForMember returns the display names of every channel the given hub
// user is a member of.
func (d *Directory) ChannelsForMember(userID string) []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var names []string
	for _, ch := range d.channels {
		if _, ok := ch.Members[userID]; ok {
			names = append(names, ch.Name)
		}
	}
	return names
}

// SetTopic records the hub's current topic for a channel. It is called both
// when the hub reports a topic change and after the bridge pushes an IRC-side
// topic change to the hub, so the stored value always tracks the hub's
// last-known topic.
func (d *Directory) SetTopic(id, topic string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[id]; ok {
		ch.Topic = topic
	}
}

// AddMember adds a hub user to a channel's member set.
func (d *Directory) AddMember(channelID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channelID]; ok {
		ch.Members[userID] = struct{}{}
	}
}

// RemoveMember removes a hub user from a channel's member set.
func (d *Directory) RemoveMember(channelID, userID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.channels[channelID]; ok {
		delete(ch.Members, userID)
	}
}

// AddParticipant registers a connected per-participant session. Sessions are
// only removed at process shutdown.
func (d *Directory) AddParticipant(userID string, s *UserSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.participants[userID] = s
}

// Participant returns the session mirroring the given hub user.
func (d *Directory) Participant(userID string) (*UserSession, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	s, ok := d.participants[userID]
	return s, ok
}

// Participants returns every registered per-participant session.
func (d *Directory) Participants() []*UserSession {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]*UserSession, 0, len(d.participants))
	for _, s := range d.participants {
		out = append(out, s)
	}
	return out
}

// HasOriginName reports whether any participant's hub display name matches
// name exactly (case-sensitive). Used when rewriting IRC mentions of
// mirrored nicknames back into hub mention tokens.
func (d *Directory) HasOriginName(name string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, s := range d.participants {
		if s.OriginName() == name {
			return true
		}
	}
	return false
}

// SetControl registers the control session under the bridge's hub self id.
func (d *Directory) SetControl(selfID string, s *ControlSession) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selfID = selfID
	d.control = s
}

// Control returns the control session handle.
func (d *Directory) Control() *ControlSession {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.control
}

// ChannelName implements ircfmt.Lookup.
func (d *Directory) ChannelName(id string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	ch, ok := d.channels[id]
	if !ok {
		return "", false
	}
	return ch.Name, true
}

// MentionNick implements ircfmt.Lookup: mentioned hub users resolve to their
// mirrored relay nickname, and the bridge's own id resolves to the control
// session's nickname.
func (d *Directory) MentionNick(userID string) (string, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if s, ok := d.participants[userID]; ok {
		return s.RelayNick(), true
	}
	if d.control != nil && d.selfID != "" && userID == d.selfID {
		return d.control.Nick(), true
	}
	return "", false
}
