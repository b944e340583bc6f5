// Package audit keeps a persistent history of what happened to the broker
// session: connects, failures, disconnects, subscription outcomes and
// changes to saved profiles.
//
// Entries come from two places. A Journal subscribes to the event bridge
// and turns session events into entries; the API records the actions it
// performs on profiles. Received messages are never journaled.
//
// The table is capped: the Journal prunes the oldest entries once the
// configured maximum is exceeded.
package audit
