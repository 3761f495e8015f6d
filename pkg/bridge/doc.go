// Copyright 2024-2026 Aiku AI

// Package bridge implements a Slack-IRC bridging engine: every Slack
// workspace member appears on an IRC network under their own nickname, and
// IRC traffic is posted back to Slack under the IRC sender's name.
//
// # Core Types
//
// [SessionManager] owns the bridge lifecycle. At startup it takes a full
// snapshot of the Slack workspace (channels, memberships, users), builds the
// [Directory], and opens one IRC connection per mirrored user plus a single
// [ControlSession] for the bridge itself.
//
// [Ingestor] polls the Slack event feed and drains a timestamp-ordered
// queue into the [Resolver], which is stateless: a drained event either
// produces relay-side effects immediately or is parked in the [AuthTable]
// and re-resolved later.
//
// [AuthTable] implements deferred delivery of Slack-to-IRC private
// messages: the first message to an IRC recipient triggers a WHOIS, and the
// backlog is flushed once end-of-WHOIS decides whether the recipient is
// identified with NickServ.
//
// # Echo Prevention
//
// Mirrored IRC sessions carry a configurable nickname suffix. Every
// IRC-to-Slack path drops senders bearing the suffix, and Slack-side topic
// updates are recorded in the directory so their IRC echoes compare equal
// and are not pushed back.
//
// # Sub-packages
//
//   - ircfmt converts Slack message markup to plain IRC text.
//   - slackfmt converts IRC text to Slack markup.
package bridge
