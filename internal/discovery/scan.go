package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dabrowsk/upcast/internal/upnp"
)

// maxScanHosts caps CIDR enumeration. A /16 is 65534 hosts; anything
// wider is almost certainly a typo rather than a home network.
const maxScanHosts = 65534

// descriptionPorts are the ports media devices commonly serve their
// description documents on: plain HTTP, Sonos, Roku ECP, generic alt
// HTTP, the UPnP ephemeral default, and Samsung WAM.
var descriptionPorts = []int{80, 1400, 8060, 8080, 49152, 55001}

// descriptionPaths are the description document paths probed on each
// candidate port, most common first.
var descriptionPaths = []string{
	"/description.xml",
	"/rootDesc.xml",
	"/device_description.xml",
	"/setup.xml",
	"/dmr.xml",
	"/",
}

// ScanNetwork enumerates the IPv4 hosts of the given CIDR range and
// probes each one for a reachable device-description endpoint, parsing
// the description of every responder. One goroutine per in-flight host,
// bounded by opts.Concurrency; hosts that time out are dropped without
// affecting their siblings.
func (e *Engine) ScanNetwork(ctx context.Context, network string, opts Options) ([]*upnp.Device, error) {
	opts = opts.withDefaults()

	hosts, err := enumerateHosts(network)
	if err != nil {
		return nil, err
	}

	scanID := uuid.NewString()
	started := time.Now()
	e.notifier.ScanStarted(scanID, "scan")
	e.logger.Info("network scan started", "scan_id", scanID, "network", network, "hosts", len(hosts))

	// Each probe gets its own short deadline; the run as a whole is
	// bounded by the caller's timeout. Callers scanning wide ranges
	// are expected to size the timeout accordingly.
	runCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	sem := make(chan struct{}, opts.Concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	byUDN := make(map[string]*upnp.Device)
	var devices []*upnp.Device

	for _, host := range hosts {
		if runCtx.Err() != nil {
			break
		}
		mu.Lock()
		full := opts.MaxDevices > 0 && len(devices) >= opts.MaxDevices
		mu.Unlock()
		if full {
			break
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(host string) {
			defer wg.Done()
			defer func() { <-sem }()

			dev := e.probeHost(runCtx, host)
			if dev == nil {
				return
			}

			key := dev.UDN
			if key == "" {
				key = dev.Location
			}

			mu.Lock()
			if _, dup := byUDN[key]; dup {
				mu.Unlock()
				return
			}
			byUDN[key] = dev
			devices = append(devices, dev)
			mu.Unlock()
			e.notifier.DeviceDiscovered(scanID, dev)
		}(host)
	}
	wg.Wait()

	e.notifier.ScanCompleted(Summary{
		ScanID:   scanID,
		Mode:     "scan",
		Network:  network,
		Devices:  len(devices),
		Duration: time.Since(started),
		Started:  started,
	})
	e.logger.Info("network scan complete",
		"scan_id", scanID,
		"network", network,
		"devices", len(devices),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return devices, nil
}

// probeHost tries the candidate description endpoints on one host and
// parses the first description that responds. Returns nil when the host
// has no reachable description endpoint.
func (e *Engine) probeHost(ctx context.Context, host string) *upnp.Device {
	for _, port := range descriptionPorts {
		// Cheap reachability check before spending HTTP round-trips.
		addr := net.JoinHostPort(host, fmt.Sprintf("%d", port))
		conn, err := net.DialTimeout("tcp", addr, probeTimeout)
		if err != nil {
			continue
		}
		_ = conn.Close() //nolint:errcheck // Probe connection

		for _, path := range descriptionPaths {
			if ctx.Err() != nil {
				return nil
			}
			location := fmt.Sprintf("http://%s%s", addr, path)
			probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
			dev, err := upnp.FetchDeviceDescription(probeCtx, e.httpClient, location)
			cancel()
			if err != nil {
				continue
			}
			e.logger.Debug("description endpoint found", "location", location)
			return dev
		}
	}
	return nil
}

// ProbeHost probes a single known host outside of a scan run, for
// on-demand interactive use.
func (e *Engine) ProbeHost(ctx context.Context, host string) (*upnp.Device, error) {
	dev := e.probeHost(ctx, host)
	if dev == nil {
		return nil, fmt.Errorf("discovery: no description endpoint on %s", host)
	}
	return dev, nil
}

// SetHTTPClient replaces the description-fetch client. Used by tests
// and by stealth mode, which wraps the transport.
func (e *Engine) SetHTTPClient(c *http.Client) {
	if c != nil {
		e.httpClient = c
	}
}

// enumerateHosts expands an IPv4 CIDR into its host addresses,
// excluding the network and broadcast addresses.
func enumerateHosts(network string) ([]string, error) {
	_, ipnet, err := net.ParseCIDR(network)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %w", ErrInvalidNetwork, network, err)
	}
	ip := ipnet.IP.To4()
	if ip == nil {
		return nil, fmt.Errorf("%w: %q is not IPv4", ErrInvalidNetwork, network)
	}

	ones, bits := ipnet.Mask.Size()
	total := 1 << (bits - ones)
	if total-2 > maxScanHosts {
		return nil, fmt.Errorf("%w: %q has %d hosts (max %d)", ErrNetworkTooLarge, network, total-2, maxScanHosts)
	}

	var hosts []string
	cur := make(net.IP, len(ip))
	copy(cur, ip)
	for i := 0; i < total; i++ {
		// Skip network (first) and broadcast (last) addresses for
		// ranges wider than /31.
		if total > 2 && (i == 0 || i == total-1) {
			incIP(cur)
			continue
		}
		hosts = append(hosts, cur.String())
		incIP(cur)
	}
	return hosts, nil
}

// incIP increments an IPv4 address in place.
func incIP(ip net.IP) {
	for i := len(ip) - 1; i >= 0; i-- {
		ip[i]++
		if ip[i] != 0 {
			break
		}
	}
}
