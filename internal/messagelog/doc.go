// Package messagelog holds the received-message history shown to the user.
//
// Records are kept newest-first: every accepted message is prepended, so
// the slice order is the display order. Ordering reflects arrival as seen
// by the session manager, never any broker-assigned sequence.
//
// # Formatting
//
// Payloads that parse as JSON are re-indented with two spaces. Anything
// else is stored verbatim. Payloads that are not valid UTF-8 are rejected
// with ErrPayloadDecode; callers log and drop them.
//
// # Bounds
//
// A Log created with a positive limit evicts its oldest record when full.
// A limit of 0 keeps every message for the lifetime of the process.
//
// Thread Safety: All methods are safe for concurrent use.
package messagelog
