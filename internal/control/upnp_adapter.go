package control

import (
	"context"
	"fmt"
	"strconv"
)

// Service type URNs used by the AVTransport and RenderingControl
// actions.
const (
	avTransportType      = "urn:schemas-upnp-org:service:AVTransport:1"
	renderingControlType = "urn:schemas-upnp-org:service:RenderingControl:1"
)

// didlLiteTemplate wraps a bare media URI in minimal DIDL-Lite metadata
// for renderers that refuse an empty CurrentURIMetaData.
const didlLiteTemplate = `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" ` +
	`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">` +
	`<item id="0" parentID="-1" restricted="1"><dc:title>upcast stream</dc:title>` +
	`<upnp:class>object.item.audioItem.musicTrack</upnp:class>` +
	`<res protocolInfo="http-get:*:*:*">%s</res></item></DIDL-Lite>`

// UPnPAdapter drives renderers over AVTransport and RenderingControl.
type UPnPAdapter struct {
	soap *SOAPClient
}

// NewUPnPAdapter creates the UPnP adapter over a SOAP client.
func NewUPnPAdapter(soap *SOAPClient) *UPnPAdapter {
	return &UPnPAdapter{soap: soap}
}

func (a *UPnPAdapter) Protocol() string { return ProtocolUPnP }

// avTransport issues one AVTransport action with InstanceID 0.
func (a *UPnPAdapter) avTransport(ctx context.Context, t Target, action string, args map[string]string) error {
	controlURL, err := t.ControlURL(ServiceAVTransport)
	if err != nil {
		return fmt.Errorf("%w: %s for %s", ErrNoControlURL, ServiceAVTransport, action)
	}
	merged := map[string]string{"InstanceID": "0"}
	for k, v := range args {
		merged[k] = v
	}
	_, _, err = a.soap.Send(ctx, t.IP, t.Port, controlURL, avTransportType, action, merged, t.UseTLS)
	return err
}

// rendering issues one RenderingControl action with InstanceID 0 on the
// Master channel.
func (a *UPnPAdapter) rendering(ctx context.Context, t Target, action string, args map[string]string) error {
	controlURL, err := t.ControlURL(ServiceRendering)
	if err != nil {
		return fmt.Errorf("%w: %s for %s", ErrNoControlURL, ServiceRendering, action)
	}
	merged := map[string]string{"InstanceID": "0", "Channel": "Master"}
	for k, v := range args {
		merged[k] = v
	}
	_, _, err = a.soap.Send(ctx, t.IP, t.Port, controlURL, renderingControlType, action, merged, t.UseTLS)
	return err
}

func (a *UPnPAdapter) Play(ctx context.Context, t Target) error {
	return a.avTransport(ctx, t, "Play", map[string]string{"Speed": "1"})
}

func (a *UPnPAdapter) Pause(ctx context.Context, t Target) error {
	return a.avTransport(ctx, t, "Pause", nil)
}

func (a *UPnPAdapter) Stop(ctx context.Context, t Target) error {
	return a.avTransport(ctx, t, "Stop", nil)
}

func (a *UPnPAdapter) Next(ctx context.Context, t Target) error {
	return a.avTransport(ctx, t, "Next", nil)
}

func (a *UPnPAdapter) Previous(ctx context.Context, t Target) error {
	return a.avTransport(ctx, t, "Previous", nil)
}

func (a *UPnPAdapter) SetVolume(ctx context.Context, t Target, level int) error {
	return a.rendering(ctx, t, "SetVolume", map[string]string{
		"DesiredVolume": strconv.Itoa(level),
	})
}

func (a *UPnPAdapter) Mute(ctx context.Context, t Target, muted bool) error {
	val := "0"
	if muted {
		val = "1"
	}
	return a.rendering(ctx, t, "SetMute", map[string]string{"DesiredMute": val})
}

// Seek targets an absolute track position in HH:MM:SS form.
func (a *UPnPAdapter) Seek(ctx context.Context, t Target, position string) error {
	return a.avTransport(ctx, t, "Seek", map[string]string{
		"Unit":   "REL_TIME",
		"Target": position,
	})
}

// SetURI loads a media URI into the transport. Empty metadata is
// replaced with minimal DIDL-Lite, which several renderer firmwares
// require before they accept Play.
func (a *UPnPAdapter) SetURI(ctx context.Context, t Target, uri, metadata string) error {
	if metadata == "" {
		metadata = fmt.Sprintf(didlLiteTemplate, uri)
	}
	return a.avTransport(ctx, t, "SetAVTransportURI", map[string]string{
		"CurrentURI":         uri,
		"CurrentURIMetaData": metadata,
	})
}
