// Copyright 2024-2026 Aiku AI

package bridge

import "sync"

// recipient tracks the identity-verification state of one IRC nickname that
// hub users have tried to message privately.
type recipient struct {
	authenticated bool
	backlog       []*HubEvent
}

// AuthTable is the deferred-authentication state machine. The relay protocol
// has no notion of "logged in as", so a private message to an IRC nickname is
// held here until a WHOIS round-trip confirms the nickname is authenticated
// with the identity service under the same name.
//
// There is deliberately no timeout: a WHOIS that never completes leaves its
// backlog pending until the nickname disconnects or renames, which clears the
// record. Records are bounded by the relay server's population.
type AuthTable struct {
	mu         sync.Mutex
	recipients map[string]*recipient
}

// NewAuthTable returns an empty table.
func NewAuthTable() *AuthTable {
	return &AuthTable{recipients: make(map[string]*recipient)}
}

// Status reports whether a record exists for nick and whether it is
// currently marked authenticated.
func (t *AuthTable) Status(nick string) (known, authenticated bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.recipients[nick]
	if !ok {
		return false, false
	}
	return true, r.authenticated
}

// Defer appends a message to nick's backlog, creating the record if needed.
// The authenticated flag is reset so every deferral forces a fresh WHOIS
// verification; stale confirmation is never trusted.
func (t *AuthTable) Defer(nick string, ev *HubEvent) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.recipients[nick]
	if !ok {
		r = &recipient{}
		t.recipients[nick] = r
	}
	r.authenticated = false
	r.backlog = append(r.backlog, ev)
}

// Verify records the result of a WHOIS logged-in-as reply: the nickname is
// authenticated only if it is logged in under its own name.
func (t *AuthTable) Verify(currentNick, accountName string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if r, ok := t.recipients[currentNick]; ok {
		r.authenticated = currentNick == accountName
	}
}

// Flush snapshots nick's backlog and clears it, returning the messages in
// original arrival order. Called on the end-of-WHOIS signal; each returned
// message gets exactly one redelivery attempt regardless of outcome. The
// snapshot avoids mutating the backlog while the caller iterates it.
func (t *AuthTable) Flush(nick string) []*HubEvent {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.recipients[nick]
	if !ok || len(r.backlog) == 0 {
		return nil
	}
	out := r.backlog
	r.backlog = nil
	return out
}

// Deauthenticate drops nick's record entirely. Called when the nickname
// quits, parts, is kicked or renames; the next private message to it will
// re-verify from scratch.
func (t *AuthTable) Deauthenticate(nick string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.recipients, nick)
}
