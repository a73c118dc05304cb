package mqtt

import "fmt"

// Topic prefixes for upcast announcements.
//
// Scheme: upcast/{category}/... with device topics keyed by IP, the
// same key the device cache uses.
const (
	// TopicPrefix is the base for all upcast topics.
	TopicPrefix = "upcast"

	// TopicPrefixDiscovery is the base for discovery lifecycle topics.
	TopicPrefixDiscovery = "upcast/discovery"

	// TopicPrefixDevice is the base for per-device topics.
	TopicPrefixDevice = "upcast/device"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "upcast/system"
)

// Topics provides builders for upcast MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	topic := topics.DeviceDiscovered("192.168.1.42")
//	// Returns: "upcast/device/192.168.1.42/discovered"
type Topics struct{}

// ScanStarted returns the topic announcing a scan start.
//
// Example: upcast/discovery/scan/started
func (Topics) ScanStarted() string {
	return fmt.Sprintf("%s/scan/started", TopicPrefixDiscovery)
}

// ScanCompleted returns the topic announcing a finished scan with its
// summary payload.
//
// Example: upcast/discovery/scan/completed
func (Topics) ScanCompleted() string {
	return fmt.Sprintf("%s/scan/completed", TopicPrefixDiscovery)
}

// DeviceDiscovered returns the per-device discovery topic.
//
// Example: upcast/device/192.168.1.42/discovered
func (Topics) DeviceDiscovered(ip string) string {
	return fmt.Sprintf("%s/%s/discovered", TopicPrefixDevice, ip)
}

// ControlResult returns the per-device control outcome topic.
//
// Example: upcast/device/192.168.1.42/control
func (Topics) ControlResult(ip string) string {
	return fmt.Sprintf("%s/%s/control", TopicPrefixDevice, ip)
}

// SystemStatus returns the system status topic used for the online
// payload and the LWT.
//
// Example: upcast/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}
