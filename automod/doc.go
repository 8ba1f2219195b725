// Automated moderation for chat guilds: message filters feeding an escalating punishment table.
//
// Every inbound message is evaluated against the guild's settings. A message tripping any filter counts as one
// violation for its author; the author's violation count is looked up in the guild's punishment table, and the
// resulting action (warn, mute, kick, ban) is handed to an enforcement dispatcher. Violation state lives in an
// in-process ledger, optionally backed by a durable store.
//
// The engine itself is in `automod/engine`; this package re-exports the common types. See `cmd/automodd` for a
// Discord bot daemon built on it.
package automod
