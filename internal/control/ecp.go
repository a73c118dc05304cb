package control

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
)

// ecpDefaultPort is the fixed Roku External Control Protocol port.
const ecpDefaultPort = 8060

// ECPAdapter drives Roku devices over the External Control Protocol:
// bare POSTs to /keypress/<key> on port 8060. ECP is a remote-control
// surface, so transport commands map to key presses and anything
// without a key reports not-supported.
type ECPAdapter struct {
	httpClient *http.Client
	stealth    *Stealth
}

// NewECPAdapter creates the ECP adapter. Stealth may be nil.
func NewECPAdapter(client *http.Client, stealth *Stealth) *ECPAdapter {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &ECPAdapter{httpClient: client, stealth: stealth}
}

func (a *ECPAdapter) Protocol() string { return ProtocolECP }

// keypress POSTs one ECP key press.
func (a *ECPAdapter) keypress(ctx context.Context, t Target, key string) error {
	port := t.Port
	if port == 0 {
		port = ecpDefaultPort
	}
	endpoint := fmt.Sprintf("http://%s/keypress/%s", net.JoinHostPort(t.IP, strconv.Itoa(port)), key)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("building keypress %s: %w", key, err)
	}
	if err := a.stealth.Apply(ctx, req); err != nil {
		return &TransportError{Op: key, Host: t.IP, Err: err}
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return &TransportError{Op: key, Host: t.IP, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096)) //nolint:errcheck // drain for connection reuse

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &ProtocolFault{
			Action:      key,
			Description: http.StatusText(resp.StatusCode),
			HTTPStatus:  resp.StatusCode,
		}
	}
	return nil
}

// Play and Pause share the Play key; Roku exposes a single toggle.
func (a *ECPAdapter) Play(ctx context.Context, t Target) error {
	return a.keypress(ctx, t, "Play")
}

func (a *ECPAdapter) Pause(ctx context.Context, t Target) error {
	return a.keypress(ctx, t, "Play")
}

// Stop returns to the home screen, the closest ECP has to a stop.
func (a *ECPAdapter) Stop(ctx context.Context, t Target) error {
	return a.keypress(ctx, t, "Home")
}

func (a *ECPAdapter) Mute(ctx context.Context, t Target, _ bool) error {
	return a.keypress(ctx, t, "VolumeMute")
}

func (a *ECPAdapter) Next(context.Context, Target) error     { return ErrNotSupported }
func (a *ECPAdapter) Previous(context.Context, Target) error { return ErrNotSupported }

func (a *ECPAdapter) SetVolume(context.Context, Target, int) error { return ErrNotSupported }

func (a *ECPAdapter) Seek(context.Context, Target, string) error { return ErrNotSupported }

func (a *ECPAdapter) SetURI(context.Context, Target, string, string) error {
	return ErrNotSupported
}
