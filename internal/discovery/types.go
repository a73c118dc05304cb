package discovery

import (
	"time"

	"github.com/dabrowsk/upcast/internal/upnp"
)

// SSDPResponse is one raw M-SEARCH response, before any description fetch.
type SSDPResponse struct {
	// Location is the device description URL from the LOCATION header.
	Location string `json:"location"`

	// Server is the SERVER header (vendor/OS banner).
	Server string `json:"server,omitempty"`

	// ST is the search target the device answered for.
	ST string `json:"st,omitempty"`

	// USN is the unique service name (usually "uuid:<udn>::<st>").
	USN string `json:"usn,omitempty"`

	// Addr is the responder's IP address.
	Addr string `json:"addr"`
}

// Options control a discovery run. Zero values fall back to the
// defaults below.
type Options struct {
	// Timeout is the response collection window (SSDP) or the overall
	// probe deadline (network scan).
	Timeout time.Duration

	// MaxDevices stops collection early once this many devices have
	// been found. 0 means unlimited.
	MaxDevices int

	// Concurrency bounds the number of in-flight description fetches
	// or host probes.
	Concurrency int

	// SearchTargets are the SSDP ST values to search for. Defaults to
	// root devices plus the standard media device/service types.
	SearchTargets []string
}

// Default option values.
const (
	DefaultTimeout     = 5 * time.Second
	DefaultConcurrency = 32
	probeTimeout       = 2 * time.Second
)

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if len(o.SearchTargets) == 0 {
		o.SearchTargets = DefaultSearchTargets()
	}
	return o
}

// DefaultSearchTargets returns the ST values searched when the caller
// does not specify any: root devices plus the media renderer/server
// types most speakers and TVs answer to.
func DefaultSearchTargets() []string {
	return []string{
		"upnp:rootdevice",
		"urn:schemas-upnp-org:device:MediaRenderer:1",
		"urn:schemas-upnp-org:device:MediaServer:1",
		"urn:schemas-upnp-org:service:AVTransport:1",
	}
}

// Summary describes a completed discovery run.
type Summary struct {
	ScanID   string        `json:"scan_id"`
	Mode     string        `json:"mode"` // "ssdp" or "scan"
	Network  string        `json:"network,omitempty"`
	Devices  int           `json:"devices"`
	Duration time.Duration `json:"duration"`
	Started  time.Time     `json:"started"`
}

// Notifier receives discovery lifecycle events. Implementations must be
// safe for concurrent use; DeviceDiscovered is called from probe
// goroutines as devices are found.
type Notifier interface {
	ScanStarted(scanID, mode string)
	DeviceDiscovered(scanID string, dev *upnp.Device)
	ScanCompleted(s Summary)
}

// NopNotifier is a Notifier that discards all events.
type NopNotifier struct{}

func (NopNotifier) ScanStarted(string, string)            {}
func (NopNotifier) DeviceDiscovered(string, *upnp.Device) {}
func (NopNotifier) ScanCompleted(Summary)                 {}

// MultiNotifier fans every event out to each wrapped notifier in order.
// Nil entries are skipped, so optional consumers can be passed directly.
func MultiNotifier(notifiers ...Notifier) Notifier {
	out := make(multiNotifier, 0, len(notifiers))
	for _, n := range notifiers {
		if n != nil {
			out = append(out, n)
		}
	}
	return out
}

type multiNotifier []Notifier

func (m multiNotifier) ScanStarted(scanID, mode string) {
	for _, n := range m {
		n.ScanStarted(scanID, mode)
	}
}

func (m multiNotifier) DeviceDiscovered(scanID string, dev *upnp.Device) {
	for _, n := range m {
		n.DeviceDiscovered(scanID, dev)
	}
}

func (m multiNotifier) ScanCompleted(s Summary) {
	for _, n := range m {
		n.ScanCompleted(s)
	}
}
