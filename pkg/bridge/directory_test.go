// Copyright 2024-2026 Aiku AI

package bridge

import (
	"sort"
	"testing"
)

func TestDirectoryChannels(t *testing.T) {
	t.Parallel()
	d := NewDirectory()
	d.AddChannel("C1", "lounge", "hello", []string{"U1", "U2"})
	d.AddChannel("C2", "ops", "", []string{"U2"})

	if id, ok := d.ChannelIDByName("lounge"); !ok || id != "C1" {
		t.Errorf("ChannelIDByName: got %q, %v", id, ok)
	}
	if name, ok := d.ChannelName("C2"); !ok || name != "ops" {
		t.Errorf("ChannelName: got %q, %v", name, ok)
	}

	names := d.ChannelsForMember("U2")
	sort.Strings(names)
	if len(names) != 2 || names[0] != "lounge" || names[1] != "ops" {
		t.Errorf("ChannelsForMember(U2): got %v", names)
	}

	d.RemoveMember("C1", "U2")
	if names := d.ChannelsForMember("U2"); len(names) != 1 || names[0] != "ops" {
		t.Errorf("after RemoveMember: got %v", names)
	}
	d.AddMember("C1", "U3")
	if names := d.ChannelsForMember("U3"); len(names) != 1 || names[0] != "lounge" {
		t.Errorf("after AddMember: got %v", names)
	}

	d.SetTopic("C1", "changed")
	if info, _ := d.Channel("C1"); info.Topic != "changed" {
		t.Errorf("SetTopic: got %q", info.Topic)
	}
}

func TestDirectoryMentionNick(t *testing.T) {
	t.Parallel()
	m, _, _, _ := resolverFixture(t)

	if nick, ok := m.dir.MentionNick("U1"); !ok || nick != "ann-slack" {
		t.Errorf("participant mention: got %q, %v", nick, ok)
	}
	if nick, ok := m.dir.MentionNick(m.cfg.Hub.SelfUserID); !ok || nick != m.cfg.Relay.Nickname {
		t.Errorf("self mention: got %q, %v", nick, ok)
	}
	if _, ok := m.dir.MentionNick("U404"); ok {
		t.Error("unknown ids must not resolve")
	}
}

func TestDirectoryHasOriginName(t *testing.T) {
	t.Parallel()
	m, _, _, _ := resolverFixture(t)

	if !m.dir.HasOriginName("ann") {
		t.Error("ann is a mirrored origin name")
	}
	if m.dir.HasOriginName("Ann") {
		t.Error("origin name matching is case-sensitive")
	}
	if m.dir.HasOriginName("ann-slack") {
		t.Error("relay nicks are not origin names")
	}
}
