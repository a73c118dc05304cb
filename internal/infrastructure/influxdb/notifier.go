package influxdb

import (
	"github.com/dabrowsk/upcast/internal/discovery"
	"github.com/dabrowsk/upcast/internal/upnp"
)

// ScanRecorder adapts a Client to discovery.Notifier, recording one
// point per completed scan. Start and per-device events carry no
// duration data worth a point of their own.
type ScanRecorder struct {
	client *Client
}

// NewScanRecorder wraps a connected client.
func NewScanRecorder(client *Client) *ScanRecorder {
	return &ScanRecorder{client: client}
}

// ScanStarted is a no-op; only completed scans are recorded.
func (r *ScanRecorder) ScanStarted(string, string) {}

// DeviceDiscovered is a no-op; device counts come with the summary.
func (r *ScanRecorder) DeviceDiscovered(string, *upnp.Device) {}

// ScanCompleted writes the scan summary point.
func (r *ScanRecorder) ScanCompleted(s discovery.Summary) {
	r.client.WriteScanSummary(s)
}
