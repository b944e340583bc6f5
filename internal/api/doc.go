// Package api implements the HTTP REST API and WebSocket stream for MQTT Desk.
//
// This package provides:
//   - REST endpoints for the session (connect, disconnect, last will)
//   - Subscribe, unsubscribe and publish on the live session
//   - Read and clear access to the message log
//   - CRUD for saved connection profiles
//   - The persistent connection history (GET /audit)
//   - Health and runtime metrics
//   - A WebSocket stream carrying every session event
//   - Middleware stack (request ID, logging, recovery, CORS, body limit)
//
// # Architecture
//
// The server is a thin presentation layer over the session manager. Every
// mutating request is forwarded to the manager and answered as soon as the
// manager accepts it; outcomes that arrive later (CONNACK, SUBACK, inbound
// messages) reach clients through the WebSocket stream, which subscribes to
// the event bridge once per connection.
//
// # Security
//
// When api.auth.secret is set, every route except /health requires an HS256
// bearer token. Browsers cannot set headers on WebSocket upgrades, so /ws
// accepts a single-use ticket from POST /auth/ws-ticket instead. With no
// secret the API is open, which suits a desktop bound to 127.0.0.1.
package api
