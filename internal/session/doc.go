// Package session implements the MQTT session core: connection state,
// last will, subscriptions and the manager that drives them.
//
// The Manager sits between a user-facing surface (HTTP API, WebSocket) and a
// Transport (the paho adapter in production). It validates every request
// against the current Status, forwards valid ones to the transport and turns
// the transport's asynchronous callbacks into ordered state transitions:
//
//	Idle ──Connect──▶ Connecting ──CONNACK 0──▶ Connected
//	                      │                         │
//	                      │ refused / timeout        │ Disconnect
//	                      ▼                         ▼
//	                   Failed               Disconnecting ──▶ Disconnected
//
// Every change is reported to a Notifier in the order it happened.
//
// Usage:
//
//	mgr := session.New(cfg, transport, bridge)
//	mgr.SetLogger(log)
//	mgr.Start(ctx)
//	defer mgr.Close()
//
//	if err := mgr.Connect(session.ConnectParams{Host: "localhost", Port: "1883"}); err != nil {
//	    return err
//	}
package session
