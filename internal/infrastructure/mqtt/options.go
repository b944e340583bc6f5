package mqtt

import (
	"fmt"
	"net"
	"strconv"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/nerrad567/mqttdesk/internal/infrastructure/config"
	"github.com/nerrad567/mqttdesk/internal/session"
)

// Connection constants.
const (
	// defaultConnectTimeout bounds the TCP dial and CONNACK wait inside paho.
	defaultConnectTimeout = 10 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 250 // milliseconds

	// defaultMaxReconnectInterval caps paho's reconnect backoff.
	defaultMaxReconnectInterval = 30 * time.Second

	// clientIDPrefix prefixes generated client identifiers.
	clientIDPrefix = "mqttdesk-"
)

// Options holds the transport settings that do not change between attempts.
type Options struct {
	// ClientID identifies the session to the broker.
	ClientID string

	// AutoReconnect lets paho re-establish a lost connection.
	AutoReconnect bool

	// CleanSession asks the broker to discard session state on connect.
	CleanSession bool

	// ConnectTimeout bounds the dial and CONNACK wait. Zero uses the default.
	ConnectTimeout time.Duration

	// DisconnectQuiesce is the graceful disconnect window in milliseconds.
	// Zero uses the default.
	DisconnectQuiesce uint
}

// OptionsFromConfig builds Options from the broker section of the config.
// An empty client ID is replaced by a generated "mqttdesk-<uuid>".
func OptionsFromConfig(cfg config.BrokerConfig) Options {
	return Options{
		ClientID:      cfg.ClientID,
		AutoReconnect: cfg.AutoReconnect,
		CleanSession:  cfg.CleanSession,
	}.withDefaults()
}

func (o Options) withDefaults() Options {
	if o.ClientID == "" {
		o.ClientID = GenerateClientID()
	}
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = defaultConnectTimeout
	}
	if o.DisconnectQuiesce == 0 {
		o.DisconnectQuiesce = defaultDisconnectQuiesce
	}
	return o
}

// GenerateClientID returns a unique client identifier.
func GenerateClientID() string {
	return clientIDPrefix + uuid.NewString()
}

// brokerURL formats the tcp:// URL for host and port.
// IPv6 literals are bracketed.
func brokerURL(host string, port int) string {
	return "tcp://" + net.JoinHostPort(host, strconv.Itoa(port))
}

// attempt carries the per-Connect settings.
type attempt struct {
	host      string
	port      int
	keepAlive time.Duration
	username  string
	password  string
	will      *session.LastWill
}

// buildClientOptions creates paho options for one connection attempt.
//
// This configures:
//   - Broker URL (tcp://host:port)
//   - Client ID and clean session mode
//   - Authentication credentials (only when both username and password are set)
//   - Last will (if one is pending)
//   - Keepalive and connect timeout
//   - Auto-reconnect (no connect retry: a failed first attempt is reported)
func buildClientOptions(o Options, a attempt) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	opts.AddBroker(brokerURL(a.host, a.port))
	opts.SetClientID(o.ClientID)
	opts.SetCleanSession(o.CleanSession)

	if a.username != "" && a.password != "" {
		opts.SetUsername(a.username)
		opts.SetPassword(a.password)
	}

	if a.will != nil {
		opts.SetBinaryWill(a.will.Topic, []byte(a.will.Payload), a.will.QoS, a.will.Retain)
	}

	opts.SetKeepAlive(a.keepAlive)
	opts.SetPingTimeout(pingTimeout(a.keepAlive))
	opts.SetConnectTimeout(o.ConnectTimeout)

	opts.SetConnectRetry(false)
	opts.SetAutoReconnect(o.AutoReconnect)
	opts.SetMaxReconnectInterval(defaultMaxReconnectInterval)

	// Inbound messages are handed over in arrival order.
	opts.SetOrderMatters(true)

	return opts
}

// pingTimeout keeps paho's ping timeout below the keepalive interval.
func pingTimeout(keepAlive time.Duration) time.Duration {
	const fallback = 10 * time.Second
	if keepAlive <= 0 || keepAlive/2 >= fallback {
		return fallback
	}
	return keepAlive / 2
}

// String describes the options for logging. The password is never included.
func (a attempt) String() string {
	return fmt.Sprintf("%s (user=%q will=%t)", brokerURL(a.host, a.port), a.username, a.will != nil)
}
