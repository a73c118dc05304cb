package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/dabrowsk/upcast/internal/xmlutil"
)

// wamDefaultPort is the fixed Samsung Wireless Audio Multiroom port.
const wamDefaultPort = 55001

// WAMAdapter drives Samsung wireless speakers and soundbars over the
// WAM API: GETs to /UIC with an XML command URL-encoded into the cmd
// query parameter.
type WAMAdapter struct {
	httpClient *http.Client
	stealth    *Stealth
}

// NewWAMAdapter creates the Samsung WAM adapter. Stealth may be nil.
func NewWAMAdapter(client *http.Client, stealth *Stealth) *WAMAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &WAMAdapter{httpClient: client, stealth: stealth}
}

func (a *WAMAdapter) Protocol() string { return ProtocolSamsungWAM }

// send issues one WAM command and checks the device's XML response for
// an error result.
func (a *WAMAdapter) send(ctx context.Context, t Target, action, command string) error {
	port := t.Port
	if port == 0 {
		port = wamDefaultPort
	}
	endpoint := fmt.Sprintf("http://%s/UIC?cmd=%s",
		net.JoinHostPort(t.IP, strconv.Itoa(port)), url.QueryEscape(command))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building WAM command %s: %w", action, err)
	}
	if err := a.stealth.Apply(ctx, req); err != nil {
		return &TransportError{Op: action, Host: t.IP, Err: err}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: action, Host: t.IP, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return &TransportError{Op: action, Host: t.IP, Err: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProtocolFault{
			Action:      action,
			Description: http.StatusText(resp.StatusCode),
			HTTPStatus:  resp.StatusCode,
		}
	}

	// WAM reports failures inside a 200 response:
	// <UIC><result>ng</result>...</UIC>
	if root, perr := xmlutil.ParseWithFallbacks(raw); perr == nil {
		if result := root.Find("result"); result != nil && strings.EqualFold(strings.TrimSpace(result.Text), "ng") {
			return &ProtocolFault{
				Action:      action,
				Description: "device rejected command",
				HTTPStatus:  resp.StatusCode,
			}
		}
	}
	return nil
}

// playbackControl issues a SetPlaybackControl command.
func (a *WAMAdapter) playbackControl(ctx context.Context, t Target, action, state string) error {
	cmd := fmt.Sprintf(`<name>SetPlaybackControl</name><p type="str" name="playbackcontrol" val="%s"/>`, state)
	return a.send(ctx, t, action, cmd)
}

func (a *WAMAdapter) Play(ctx context.Context, t Target) error {
	return a.playbackControl(ctx, t, "Play", "play")
}

func (a *WAMAdapter) Pause(ctx context.Context, t Target) error {
	return a.playbackControl(ctx, t, "Pause", "pause")
}

func (a *WAMAdapter) Stop(ctx context.Context, t Target) error {
	return a.playbackControl(ctx, t, "Stop", "stop")
}

func (a *WAMAdapter) Next(ctx context.Context, t Target) error {
	return a.send(ctx, t, "Next", `<name>SetTrickMode</name><p type="str" name="trickmode" val="next"/>`)
}

func (a *WAMAdapter) Previous(ctx context.Context, t Target) error {
	return a.send(ctx, t, "Previous", `<name>SetTrickMode</name><p type="str" name="trickmode" val="previous"/>`)
}

func (a *WAMAdapter) SetVolume(ctx context.Context, t Target, level int) error {
	cmd := fmt.Sprintf(`<name>SetVolume</name><p type="dec" name="volume" val="%d"/>`, level)
	return a.send(ctx, t, "SetVolume", cmd)
}

func (a *WAMAdapter) Mute(ctx context.Context, t Target, muted bool) error {
	val := "off"
	if muted {
		val = "on"
	}
	cmd := fmt.Sprintf(`<name>SetMute</name><p type="str" name="mute" val="%s"/>`, val)
	return a.send(ctx, t, "Mute", cmd)
}

func (a *WAMAdapter) Seek(context.Context, Target, string) error { return ErrNotSupported }

func (a *WAMAdapter) SetURI(context.Context, Target, string, string) error {
	return ErrNotSupported
}
