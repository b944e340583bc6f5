// Package mqtt adapts paho.mqtt.golang to the session.Transport contract.
//
// The adapter owns everything below the session state machine: broker URL
// construction, credentials, the last will, keepalive and socket I/O. It
// never blocks its caller on the network. Connect, Disconnect, Subscribe,
// Unsubscribe and Publish dispatch a paho token and report completion
// through the session.Handlers registered with SetHandlers.
//
// # Attempts
//
// Every Connect builds a fresh paho client and starts a new generation.
// Callbacks raised by an older client are dropped, so a slow CONNACK or
// connection-lost notice from a superseded attempt cannot disturb the
// current session.
//
// # Message delivery
//
// Subscriptions are registered without per-topic callbacks; inbound
// messages reach the client's default publish handler and are forwarded
// to Handlers.OnMessage only between StartLoop and StopLoop.
//
// # Security Considerations
//
//   - Credentials are sent only when both username and password are set
//   - TLS is out of scope; the broker URL always uses tcp://
//
// # Usage
//
//	transport := mqtt.NewTransport(mqtt.OptionsFromConfig(cfg.Broker))
//	transport.SetLogger(log)
//	manager := session.New(sessionCfg, transport, bridge)
//
// # Testing
//
// Unit tests drive the adapter through a fake paho client. Tests against a
// real broker run when MQTTDESK_TEST_BROKER is set:
//
//	MQTTDESK_TEST_BROKER=127.0.0.1:1883 go test ./internal/infrastructure/mqtt/...
package mqtt
