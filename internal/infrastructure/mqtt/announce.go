package mqtt

import (
	"encoding/json"
	"time"

	"github.com/dabrowsk/upcast/internal/discovery"
	"github.com/dabrowsk/upcast/internal/upnp"
)

// Announcer publishes discovery lifecycle events to the broker.
//
// It implements discovery.Notifier so it can be handed straight to the
// discovery engine. Publish failures are logged and dropped; a flaky
// broker must never stall a scan.
type Announcer struct {
	client *Client
	qos    byte
}

// NewAnnouncer creates an Announcer backed by the given client.
// Events are published at the client's configured QoS.
func NewAnnouncer(client *Client) *Announcer {
	return &Announcer{
		client: client,
		qos:    byte(client.cfg.QoS),
	}
}

// scanStartedPayload is the JSON body published on scan start.
type scanStartedPayload struct {
	ScanID    string    `json:"scan_id"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

// deviceDiscoveredPayload is the JSON body published per device.
type deviceDiscoveredPayload struct {
	ScanID    string       `json:"scan_id"`
	Device    *upnp.Device `json:"device"`
	Timestamp time.Time    `json:"timestamp"`
}

// ScanStarted announces a new discovery run.
func (a *Announcer) ScanStarted(scanID, mode string) {
	a.publish(Topics{}.ScanStarted(), scanStartedPayload{
		ScanID:    scanID,
		Mode:      mode,
		Timestamp: time.Now().UTC(),
	}, false)
}

// DeviceDiscovered announces a single discovered device on its per-IP
// topic. Retained so late subscribers see the last known description.
func (a *Announcer) DeviceDiscovered(scanID string, dev *upnp.Device) {
	if dev == nil || dev.IP == "" {
		return
	}
	a.publish(Topics{}.DeviceDiscovered(dev.IP), deviceDiscoveredPayload{
		ScanID:    scanID,
		Device:    dev,
		Timestamp: time.Now().UTC(),
	}, true)
}

// ScanCompleted announces a finished run with its summary. Retained so
// the last scan result is always available on the topic.
func (a *Announcer) ScanCompleted(s discovery.Summary) {
	a.publish(Topics{}.ScanCompleted(), s, true)
}

// publish marshals and publishes a payload, logging failures through
// the client's logger.
func (a *Announcer) publish(topic string, payload any, retained bool) {
	data, err := json.Marshal(payload)
	if err != nil {
		if logger := a.client.getLogger(); logger != nil {
			logger.Error("failed to encode announcement", "topic", topic, "error", err)
		}
		return
	}

	if err := a.client.Publish(topic, data, a.qos, retained); err != nil {
		if logger := a.client.getLogger(); logger != nil {
			logger.Warn("failed to publish announcement", "topic", topic, "error", err)
		}
	}
}
