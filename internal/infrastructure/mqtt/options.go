package mqtt

import (
	"crypto/tls"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/dabrowsk/upcast/internal/infrastructure/config"
)

const (
	// defaultConnectTimeout bounds the initial broker handshake.
	defaultConnectTimeout = 10 * time.Second

	// defaultPublishTimeout bounds one publish acknowledgment.
	defaultPublishTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is how long Close waits for in-flight
	// messages, in milliseconds.
	defaultDisconnectQuiesce = 1000

	// defaultKeepAlive is the PINGREQ interval.
	defaultKeepAlive = 60 * time.Second

	// maxQoS is the highest QoS level MQTT defines.
	maxQoS = 2
)

// statusPayload is the JSON body published on upcast/system/status,
// both as the online announcement and as the broker-delivered LWT.
type statusPayload struct {
	Status    string `json:"status"`
	ClientID  string `json:"client_id"`
	Reason    string `json:"reason,omitempty"`
	Timestamp string `json:"timestamp"`
}

func (p statusPayload) encode() string {
	p.Timestamp = time.Now().UTC().Format(time.RFC3339)
	data, _ := json.Marshal(p) //nolint:errcheck // Fixed struct cannot fail to marshal
	return string(data)
}

// buildClientOptions translates the mqtt config section into paho
// options: broker URL (tcp or ssl), client identity, optional
// credentials, clean session, and auto-reconnect with the configured
// backoff window. TLS connections require at least TLS 1.2.
func buildClientOptions(cfg config.MQTTConfig) *pahomqtt.ClientOptions {
	scheme := "tcp"
	if cfg.Broker.TLS {
		scheme = "ssl"
	}

	opts := pahomqtt.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Broker.Host, cfg.Broker.Port)).
		SetClientID(cfg.Broker.ClientID).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(time.Duration(cfg.Reconnect.InitialDelay) * time.Second).
		SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second).
		SetConnectTimeout(defaultConnectTimeout).
		SetKeepAlive(defaultKeepAlive)

	if cfg.Auth.Username != "" {
		opts.SetUsername(cfg.Auth.Username)
		opts.SetPassword(cfg.Auth.Password)
	}

	if cfg.Broker.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	return opts
}

// configureLWT registers the Last Will so consumers see an offline
// status when upcast drops off the broker without a clean disconnect.
// Retained at QoS 1: late subscribers still learn the last state.
func configureLWT(opts *pahomqtt.ClientOptions, clientID string) {
	will := statusPayload{
		Status:   "offline",
		ClientID: clientID,
		Reason:   "unexpected_disconnect",
	}
	opts.SetWill(Topics{}.SystemStatus(), will.encode(), 1, true)
}

// buildOnlinePayload is the status body published after a successful
// connect or reconnect.
func buildOnlinePayload(clientID string) string {
	return statusPayload{Status: "online", ClientID: clientID}.encode()
}

// buildOfflinePayload is the status body published during a graceful
// shutdown, before the disconnect.
func buildOfflinePayload(clientID string) string {
	return statusPayload{
		Status:   "offline",
		ClientID: clientID,
		Reason:   "graceful_shutdown",
	}.encode()
}
