// Copyright 2024-2026 Aiku AI

package bridge

import (
	"context"
	"sync"
	"testing"

	"github.com/rs/zerolog"
)

func TestStartBuildsDirectoryAndSessions(t *testing.T) {
	t.Parallel()
	hub := newFakeHub()
	hub.channels = []HubChannel{
		{ID: "C1", Name: "lounge", Topic: "chatter", NumMembers: 2},
		{ID: "C2", Name: "empty", NumMembers: 0},
	}
	hub.members["C1"] = []string{"U1", "U2"}
	hub.users = []HubUser{
		{ID: "U1", Name: "ann"},
		{ID: "U2", Name: "bob.smith"},
		{ID: "U3", Name: "deploybot", IsBot: true},
		{ID: "U4", Name: "gone", Deleted: true},
		{ID: "U5", Name: "slackbot"},
	}

	dialer := newFakeDialer()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewSessionManager(testConfig(), hub, hub, dialer, zerolog.Nop())
	if err := m.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if got := len(m.dir.Participants()); got != 2 {
		t.Fatalf("participants: got %d, want 2 (bots, deleted and slackbot excluded)", got)
	}

	ann, ok := m.dir.Participant("U1")
	if !ok {
		t.Fatal("ann should be mirrored")
	}
	if ann.RelayNick() != "ann-slack" {
		t.Errorf("ann nick: got %q, want ann-slack", ann.RelayNick())
	}
	annConn := dialer.conn("ann-slack")
	joins := annConn.snapshot(&annConn.joins)
	if len(joins) != 1 || joins[0] != "#lounge" {
		t.Errorf("ann joins: got %v, want [#lounge]", joins)
	}

	bob, _ := m.dir.Participant("U2")
	if bob == nil || bob.RelayNick() != "bobsmith-slack" {
		t.Errorf("display names should be sanitized into nicks, got %v", bob)
	}

	if info, ok := m.dir.Channel("C1"); !ok || info.Topic != "chatter" {
		t.Errorf("channel snapshot: got %+v", info)
	}
	if _, ok := m.dir.ChannelIDByName("empty"); !ok {
		t.Error("member-less channels still belong in the directory")
	}

	hub.mu.Lock()
	connects := hub.connects
	hub.mu.Unlock()
	if connects == 0 {
		t.Error("Start should connect the event feed")
	}
}

func TestStartFailsWithoutSnapshot(t *testing.T) {
	t.Parallel()
	hub := newFakeHub()
	hub.listChannelsErr = errFeedClosed

	m := NewSessionManager(testConfig(), hub, hub, newFakeDialer(), zerolog.Nop())
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start must fail when the channel snapshot cannot be fetched")
	}

	hub = newFakeHub()
	hub.listUsersErr = errFeedClosed
	m = NewSessionManager(testConfig(), hub, hub, newFakeDialer(), zerolog.Nop())
	if err := m.Start(context.Background()); err == nil {
		t.Fatal("Start must fail when the user snapshot cannot be fetched")
	}
}

func TestSpawnParticipantIdempotent(t *testing.T) {
	t.Parallel()
	m, _, _, _ := resolverFixture(t)

	user := HubUser{ID: "U7", Name: "carol"}
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.SpawnParticipant(context.Background(), user)
		}()
	}
	wg.Wait()

	count := 0
	for _, p := range m.dir.Participants() {
		if p.UserID() == "U7" {
			count++
		}
	}
	if count != 1 {
		t.Fatalf("spawned %d sessions for one user", count)
	}
}

func TestSpawnParticipantSkipsNonMirrorable(t *testing.T) {
	t.Parallel()
	m, _, _, _ := resolverFixture(t)

	m.SpawnParticipant(context.Background(), HubUser{ID: "U8", Name: "hook", IsBot: true})
	m.SpawnParticipant(context.Background(), HubUser{ID: "U9", Name: "left", Deleted: true})
	m.SpawnParticipant(context.Background(), HubUser{ID: "U10", Name: "Slackbot"})

	for _, id := range []string{"U8", "U9", "U10"} {
		if _, ok := m.dir.Participant(id); ok {
			t.Errorf("user %s must not be mirrored", id)
		}
	}
}
