package upnp

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/dabrowsk/upcast/internal/xmlutil"
)

// maxDescriptionSize caps how much of a description document is read.
// Device descriptions are a few KB; anything larger is broken firmware
// or a deliberately hostile endpoint.
const maxDescriptionSize = 1 << 20 // 1MB

// defaultFetchTimeout applies when the caller's context carries no deadline.
const defaultFetchTimeout = 10 * time.Second

// FetchDeviceDescription retrieves and parses the device description at
// the given location URL. The returned Device has IP and Port populated
// from the location.
func FetchDeviceDescription(ctx context.Context, client *http.Client, location string) (*Device, error) {
	if location == "" {
		return nil, ErrEmptyLocation
	}
	body, err := fetch(ctx, client, location)
	if err != nil {
		return nil, err
	}
	return ParseDeviceDescription(body, location)
}

// ParseDeviceDescription parses a device-description document.
//
// Optional fields that are missing or malformed default to empty strings;
// a missing root <device> element is a hard parse error. Embedded devices
// are collected recursively and their services become part of the device's
// flattened service set.
func ParseDeviceDescription(raw []byte, location string) (*Device, error) {
	root, err := xmlutil.ParseWithFallbacks(raw)
	if err != nil {
		return nil, fmt.Errorf("parsing description: %w", err)
	}

	devNode := root.Find("device")
	if devNode == nil {
		return nil, ErrNoDeviceElement
	}

	d := &Device{
		Location:     location,
		FriendlyName: devNode.ChildText("friendlyName"),
		Manufacturer: devNode.ChildText("manufacturer"),
		ModelName:    devNode.ChildText("modelName"),
		ModelNumber:  devNode.ChildText("modelNumber"),
		SerialNumber: devNode.ChildText("serialNumber"),
		DeviceType:   devNode.ChildText("deviceType"),
		UDN:          devNode.ChildText("UDN"),
		Services:     parseServiceList(devNode),
	}

	if location != "" {
		host, port, tls := splitLocation(location)
		d.IP = host
		d.Port = port
		d.UseTLS = tls
	}

	d.EmbeddedDevices = parseDeviceList(devNode)

	return d, nil
}

// parseServiceList extracts the <serviceList><service> entries that are
// direct to this device node (not ones belonging to embedded devices).
func parseServiceList(devNode *xmlutil.Node) []Service {
	list := devNode.Child("serviceList")
	if list == nil {
		return nil
	}
	var services []Service
	for _, sn := range list.Children {
		if sn.Name != "service" {
			continue
		}
		svc := Service{
			ServiceType: sn.ChildText("serviceType"),
			ServiceID:   sn.ChildText("serviceId"),
			ControlURL:  sn.ChildText("controlURL"),
			EventSubURL: sn.ChildText("eventSubURL"),
			SCPDURL:     sn.ChildText("SCPDURL"),
		}
		// A service with neither a type nor a control endpoint carries
		// no usable information.
		if svc.ServiceType == "" && svc.ControlURL == "" {
			continue
		}
		services = append(services, svc)
	}
	return services
}

// parseDeviceList recursively collects <deviceList><device> entries.
func parseDeviceList(devNode *xmlutil.Node) []EmbeddedDevice {
	list := devNode.Child("deviceList")
	if list == nil {
		return nil
	}
	var embedded []EmbeddedDevice
	for _, dn := range list.Children {
		if dn.Name != "device" {
			continue
		}
		embedded = append(embedded, EmbeddedDevice{
			DeviceType:   dn.ChildText("deviceType"),
			FriendlyName: dn.ChildText("friendlyName"),
			UDN:          dn.ChildText("UDN"),
			Services:     parseServiceList(dn),
			Embedded:     parseDeviceList(dn),
		})
	}
	return embedded
}

// splitLocation extracts host, port and TLS use from a description URL.
// Defaults follow the scheme when no explicit port is present.
func splitLocation(location string) (host string, port int, useTLS bool) {
	u, err := url.Parse(location)
	if err != nil {
		return "", 0, false
	}
	useTLS = u.Scheme == "https"
	host = u.Hostname()
	port = 80
	if useTLS {
		port = 443
	}
	if p := u.Port(); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			port = n
		}
	}
	return host, port, useTLS
}

// ResolveURL resolves a possibly-relative device URL (controlURL, SCPDURL)
// against the device's base address.
func ResolveURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return ref
	}
	b, err := url.Parse(base)
	if err != nil {
		return ref
	}
	r, err := url.Parse(ref)
	if err != nil {
		return ref
	}
	return b.ResolveReference(r).String()
}

// BaseURL returns the scheme://host:port prefix for a device.
func (d *Device) BaseURL() string {
	scheme := "http"
	if d.UseTLS {
		scheme = "https"
	}
	return fmt.Sprintf("%s://%s", scheme, net.JoinHostPort(d.IP, strconv.Itoa(d.Port)))
}

// fetch retrieves a document body with a bounded read.
func fetch(ctx context.Context, client *http.Client, rawurl string) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, defaultFetchTimeout)
		defer cancel()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close() //nolint:errcheck // Best effort close on read path

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d from %s", ErrFetchFailed, resp.StatusCode, rawurl)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDescriptionSize))
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrFetchFailed, err)
	}
	return body, nil
}
