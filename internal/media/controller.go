package media

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dabrowsk/upcast/internal/control"
	"github.com/dabrowsk/upcast/internal/profile"
	"github.com/dabrowsk/upcast/internal/upnp"
)

// Result statuses. Capability gaps are reported as distinct statuses so
// callers can treat them as expected outcomes.
const (
	StatusSuccess        = "success"
	StatusError          = "error"
	StatusNotSupported   = "not_supported"
	StatusNotImplemented = "not_implemented"
)

// Action names accepted by Do and Batch.
const (
	ActionPlay      = "play"
	ActionPause     = "pause"
	ActionStop      = "stop"
	ActionNext      = "next"
	ActionPrevious  = "previous"
	ActionSetVolume = "set_volume"
	ActionMute      = "mute"
	ActionSeek      = "seek"
	ActionSetURI    = "set_uri"
)

// Args carries the optional parameters of an action.
type Args struct {
	Volume   int    `json:"volume"`
	Muted    bool   `json:"muted"`
	Position string `json:"position"`
	URI      string `json:"uri"`
	Metadata string `json:"metadata"`
}

// Result is the normalized outcome of one control call.
type Result struct {
	Status   string `json:"status"`
	Action   string `json:"action"`
	Protocol string `json:"protocol,omitempty"`
	Device   string `json:"device,omitempty"`
	Message  string `json:"message,omitempty"`
}

// Logger is the logging interface used by the controller, satisfied by
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

// Controller resolves profiles and dispatches media commands.
type Controller struct {
	store    *profile.Store
	registry *control.Registry
	logger   Logger
}

// NewController wires the profile store to the protocol registry.
func NewController(store *profile.Store, registry *control.Registry) *Controller {
	return &Controller{
		store:    store,
		registry: registry,
		logger:   noopLogger{},
	}
}

// SetLogger sets the logger for the controller.
func (c *Controller) SetLogger(logger Logger) {
	c.logger = logger
}

// Do executes one action against one device and normalizes the outcome.
// The returned error is non-nil only for caller mistakes (unknown
// action, invalid argument); device and transport failures are folded
// into the Result.
func (c *Controller) Do(ctx context.Context, dev *upnp.Device, action string, args Args) (Result, error) {
	if err := validate(action, args); err != nil {
		return Result{}, err
	}

	res := Result{Action: action, Device: dev.IP}

	info, err := c.store.ControlInfo(dev)
	if err != nil {
		res.Status = StatusError
		res.Message = err.Error()
		return res, nil
	}
	res.Protocol = info.Protocol

	adapter, ok := c.registry.Adapter(info.Protocol)
	if !ok {
		res.Status = StatusNotImplemented
		res.Message = fmt.Sprintf("no adapter for protocol %q", info.Protocol)
		return res, nil
	}

	target := control.Target{
		IP:          dev.IP,
		Port:        info.Port,
		UseTLS:      dev.UseTLS,
		ControlURLs: info.ControlURLs,
	}
	c.normalize(&res, c.dispatch(ctx, adapter, target, action, args))
	return res, nil
}

// dispatch maps an action name to the adapter method.
func (c *Controller) dispatch(ctx context.Context, a control.Adapter, t control.Target, action string, args Args) error {
	switch action {
	case ActionPlay:
		return a.Play(ctx, t)
	case ActionPause:
		return a.Pause(ctx, t)
	case ActionStop:
		return a.Stop(ctx, t)
	case ActionNext:
		return a.Next(ctx, t)
	case ActionPrevious:
		return a.Previous(ctx, t)
	case ActionSetVolume:
		return a.SetVolume(ctx, t, args.Volume)
	case ActionMute:
		return a.Mute(ctx, t, args.Muted)
	case ActionSeek:
		return a.Seek(ctx, t, args.Position)
	case ActionSetURI:
		return a.SetURI(ctx, t, args.URI, args.Metadata)
	default:
		// validate rejects unknown actions before dispatch.
		return ErrUnknownAction
	}
}

// normalize folds an adapter error into the result shape.
func (c *Controller) normalize(res *Result, err error) {
	switch {
	case err == nil:
		res.Status = StatusSuccess
	case errors.Is(err, control.ErrNotSupported):
		res.Status = StatusNotSupported
		res.Message = fmt.Sprintf("%s is not supported over %s", res.Action, res.Protocol)
	case errors.Is(err, control.ErrNotImplemented):
		res.Status = StatusNotImplemented
		res.Message = err.Error()
	default:
		res.Status = StatusError
		res.Message = err.Error()
		c.logger.Warn("control call failed",
			"device", res.Device, "action", res.Action, "protocol", res.Protocol, "error", err)
	}
}

// validate rejects bad input before any network traffic.
func validate(action string, args Args) error {
	switch action {
	case ActionPlay, ActionPause, ActionStop, ActionNext, ActionPrevious, ActionMute:
		return nil
	case ActionSetVolume:
		if args.Volume < 0 || args.Volume > 100 {
			return &ValidationError{
				Field:   "volume",
				Message: fmt.Sprintf("level %d outside 0-100", args.Volume),
			}
		}
		return nil
	case ActionSeek:
		if args.Position == "" {
			return &ValidationError{Field: "position", Message: "required for seek"}
		}
		return nil
	case ActionSetURI:
		if args.URI == "" {
			return &ValidationError{Field: "uri", Message: "required for set_uri"}
		}
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, action)
	}
}

// Play starts or resumes playback.
func (c *Controller) Play(ctx context.Context, dev *upnp.Device) (Result, error) {
	return c.Do(ctx, dev, ActionPlay, Args{})
}

// Pause pauses playback.
func (c *Controller) Pause(ctx context.Context, dev *upnp.Device) (Result, error) {
	return c.Do(ctx, dev, ActionPause, Args{})
}

// Stop halts playback.
func (c *Controller) Stop(ctx context.Context, dev *upnp.Device) (Result, error) {
	return c.Do(ctx, dev, ActionStop, Args{})
}

// SetVolume sets the absolute volume level, 0 to 100.
func (c *Controller) SetVolume(ctx context.Context, dev *upnp.Device, level int) (Result, error) {
	return c.Do(ctx, dev, ActionSetVolume, Args{Volume: level})
}

// Seek jumps to an absolute track position in HH:MM:SS form.
func (c *Controller) Seek(ctx context.Context, dev *upnp.Device, position string) (Result, error) {
	return c.Do(ctx, dev, ActionSeek, Args{Position: position})
}

// SetURI loads a media URI, optionally with DIDL-Lite metadata.
func (c *Controller) SetURI(ctx context.Context, dev *upnp.Device, uri, metadata string) (Result, error) {
	return c.Do(ctx, dev, ActionSetURI, Args{URI: uri, Metadata: metadata})
}

// Batch executes one action against many devices concurrently, keyed by
// device IP. Each device gets its own dispatch and timeout; a failure
// or hang on one never affects the others. Validation failures reject
// the whole batch before any network call.
func (c *Controller) Batch(ctx context.Context, devices []*upnp.Device, action string, args Args) (map[string]Result, error) {
	if err := validate(action, args); err != nil {
		return nil, err
	}

	results := make(map[string]Result, len(devices))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, dev := range devices {
		wg.Add(1)
		go func(dev *upnp.Device) {
			defer wg.Done()
			res, err := c.Do(ctx, dev, action, args)
			if err != nil {
				res = Result{Status: StatusError, Action: action, Device: dev.IP, Message: err.Error()}
			}
			mu.Lock()
			results[dev.IP] = res
			mu.Unlock()
		}(dev)
	}
	wg.Wait()
	return results, nil
}
