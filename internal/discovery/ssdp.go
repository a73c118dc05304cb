package discovery

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dabrowsk/upcast/internal/upnp"
)

// SSDP wire constants. The multicast group and datagram format are
// fixed by the UPnP architecture.
const (
	ssdpMulticastAddr = "239.255.255.250:1900"
	ssdpReadBufSize   = 4096
	ssdpMX            = 3 // seconds devices may delay their response
)

// Logger is the logging interface used by the Engine, satisfied by
// logging.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Engine discovers devices via SSDP multicast search and network
// scanning, and orchestrates description parsing for everything found.
type Engine struct {
	httpClient *http.Client
	logger     Logger
	notifier   Notifier
}

// New creates a discovery engine. The HTTP client is used for
// description fetches; pass nil to use a client with the probe timeout.
func New(httpClient *http.Client) *Engine {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: probeTimeout}
	}
	return &Engine{
		httpClient: httpClient,
		logger:     noopLogger{},
		notifier:   NopNotifier{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetNotifier sets the event notifier for the engine.
func (e *Engine) SetNotifier(n Notifier) {
	if n == nil {
		n = NopNotifier{}
	}
	e.notifier = n
}

// SearchSSDP sends M-SEARCH datagrams and collects raw responses until
// the timeout window closes or MaxDevices responses with distinct
// locations have arrived. No description fetches are performed.
func (e *Engine) SearchSSDP(ctx context.Context, opts Options) ([]SSDPResponse, error) {
	opts = opts.withDefaults()

	conn, err := net.ListenPacket("udp4", ":0")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}
	defer conn.Close() //nolint:errcheck // Best effort close

	dst, err := net.ResolveUDPAddr("udp4", ssdpMulticastAddr)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSocket, err)
	}

	for _, st := range opts.SearchTargets {
		msg := buildMSearch(st)
		if _, err := conn.WriteTo([]byte(msg), dst); err != nil {
			e.logger.Warn("ssdp m-search send failed", "st", st, "error", err)
		}
	}

	deadline := time.Now().Add(opts.Timeout)
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(deadline) {
		deadline = ctxDeadline
	}

	seen := make(map[string]struct{})
	var responses []SSDPResponse
	buf := make([]byte, ssdpReadBufSize)

	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			break
		}
		_ = conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)) //nolint:errcheck // Read below surfaces failures
		n, addr, err := conn.ReadFrom(buf)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			e.logger.Debug("ssdp read error", "error", err)
			continue
		}

		resp, ok := parseSSDPResponse(string(buf[:n]), addr)
		if !ok {
			continue
		}
		if _, dup := seen[resp.Location]; dup {
			continue
		}
		seen[resp.Location] = struct{}{}
		responses = append(responses, resp)
		e.logger.Debug("ssdp response", "location", resp.Location, "server", resp.Server)

		if opts.MaxDevices > 0 && len(responses) >= opts.MaxDevices {
			break
		}
	}

	return responses, nil
}

// Discover runs an SSDP search and fetches+parses the description of
// every responder, concurrently and bounded by opts.Concurrency.
// Devices are deduplicated by UDN; responders whose description cannot
// be fetched or parsed within the window are dropped silently.
func (e *Engine) Discover(ctx context.Context, opts Options) ([]*upnp.Device, error) {
	opts = opts.withDefaults()
	scanID := uuid.NewString()
	started := time.Now()
	e.notifier.ScanStarted(scanID, "ssdp")

	responses, err := e.SearchSSDP(ctx, opts)
	if err != nil {
		return nil, err
	}

	devices := e.fetchDescriptions(ctx, scanID, responses, opts.Concurrency)

	e.notifier.ScanCompleted(Summary{
		ScanID:   scanID,
		Mode:     "ssdp",
		Devices:  len(devices),
		Duration: time.Since(started),
		Started:  started,
	})
	e.logger.Info("ssdp discovery complete",
		"scan_id", scanID,
		"responses", len(responses),
		"devices", len(devices),
		"duration_ms", time.Since(started).Milliseconds(),
	)
	return devices, nil
}

// fetchDescriptions fans out one description fetch per SSDP response
// and deduplicates the parsed devices by UDN. Each fetch failure is
// isolated: it drops that responder only.
func (e *Engine) fetchDescriptions(ctx context.Context, scanID string, responses []SSDPResponse, concurrency int) []*upnp.Device {
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	byUDN := make(map[string]*upnp.Device)
	var devices []*upnp.Device

	for _, resp := range responses {
		wg.Add(1)
		sem <- struct{}{}
		go func(resp SSDPResponse) {
			defer wg.Done()
			defer func() { <-sem }()

			dev, err := upnp.FetchDeviceDescription(ctx, e.httpClient, resp.Location)
			if err != nil {
				e.logger.Debug("description fetch failed", "location", resp.Location, "error", err)
				return
			}
			dev.ServerHeader = resp.Server
			if dev.IP == "" {
				dev.IP = resp.Addr
			}

			key := dev.UDN
			if key == "" {
				key = resp.Location
			}

			mu.Lock()
			if _, dup := byUDN[key]; !dup {
				byUDN[key] = dev
				devices = append(devices, dev)
				mu.Unlock()
				e.notifier.DeviceDiscovered(scanID, dev)
				return
			}
			mu.Unlock()
		}(resp)
	}
	wg.Wait()

	return devices
}

// buildMSearch renders one M-SEARCH datagram for a search target.
func buildMSearch(st string) string {
	return "M-SEARCH * HTTP/1.1\r\n" +
		"HOST: " + ssdpMulticastAddr + "\r\n" +
		"MAN: \"ssdp:discover\"\r\n" +
		fmt.Sprintf("MX: %d\r\n", ssdpMX) +
		"ST: " + st + "\r\n\r\n"
}

// parseSSDPResponse parses one response datagram. Only HTTP 200
// responses with a LOCATION header are usable.
func parseSSDPResponse(raw string, addr net.Addr) (SSDPResponse, bool) {
	if !strings.HasPrefix(raw, "HTTP/1.1 200") {
		return SSDPResponse{}, false
	}

	resp := SSDPResponse{}
	if udp, ok := addr.(*net.UDPAddr); ok {
		resp.Addr = udp.IP.String()
	}

	for _, line := range strings.Split(raw, "\r\n")[1:] {
		colon := strings.IndexByte(line, ':')
		if colon < 0 {
			continue
		}
		value := strings.TrimSpace(line[colon+1:])
		switch strings.ToLower(strings.TrimSpace(line[:colon])) {
		case "location":
			resp.Location = value
		case "server":
			resp.Server = value
		case "st":
			resp.ST = value
		case "usn":
			resp.USN = value
		}
	}

	if resp.Location == "" {
		return SSDPResponse{}, false
	}
	return resp, true
}
