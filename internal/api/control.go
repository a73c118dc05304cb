package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dabrowsk/upcast/internal/cache"
	"github.com/dabrowsk/upcast/internal/infrastructure/mqtt"
	"github.com/dabrowsk/upcast/internal/media"
	"github.com/dabrowsk/upcast/internal/upnp"
)

// simpleActions are the actions dispatchable via POST /devices/{ip}/{action}
// without a request body. "unmute" is sugar for mute with muted=false.
var simpleActions = map[string]struct {
	action string
	args   media.Args
}{
	"play":     {media.ActionPlay, media.Args{}},
	"pause":    {media.ActionPause, media.Args{}},
	"stop":     {media.ActionStop, media.Args{}},
	"next":     {media.ActionNext, media.Args{}},
	"previous": {media.ActionPrevious, media.Args{}},
	"mute":     {media.ActionMute, media.Args{Muted: true}},
	"unmute":   {media.ActionMute, media.Args{Muted: false}},
}

// handleDeviceAction dispatches a parameterless media command.
//
// POST /api/v1/devices/{ip}/{action}
func (s *Server) handleDeviceAction(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "action")
	entry, ok := simpleActions[name]
	if !ok {
		writeBadRequest(w, "unknown action: "+name)
		return
	}
	s.runControl(w, r, entry.action, entry.args)
}

// volumeRequest is the body of POST /devices/{ip}/volume.
type volumeRequest struct {
	Level int `json:"level"`
}

// handleSetVolume sets the absolute volume level.
//
// POST /api/v1/devices/{ip}/volume {"level": 0-100}
func (s *Server) handleSetVolume(w http.ResponseWriter, r *http.Request) {
	var req volumeRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	s.runControl(w, r, media.ActionSetVolume, media.Args{Volume: req.Level})
}

// seekRequest is the body of POST /devices/{ip}/seek.
type seekRequest struct {
	Position string `json:"position"`
}

// handleSeek jumps to an absolute track position.
//
// POST /api/v1/devices/{ip}/seek {"position": "HH:MM:SS"}
func (s *Server) handleSeek(w http.ResponseWriter, r *http.Request) {
	var req seekRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	s.runControl(w, r, media.ActionSeek, media.Args{Position: req.Position})
}

// mediaRequest is the body of POST /devices/{ip}/media.
type mediaRequest struct {
	URI      string `json:"uri"`
	Metadata string `json:"metadata"`
}

// handleSetMedia loads a media URI for playback.
//
// POST /api/v1/devices/{ip}/media {"uri": "...", "metadata": "..."}
func (s *Server) handleSetMedia(w http.ResponseWriter, r *http.Request) {
	var req mediaRequest
	if err := decodeBody(r, &req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	s.runControl(w, r, media.ActionSetURI, media.Args{URI: req.URI, Metadata: req.Metadata})
}

// runControl executes one action against the {ip} device and writes the
// normalized result. Validation failures map to 400; everything else is
// reported inside the result body.
func (s *Server) runControl(w http.ResponseWriter, r *http.Request, action string, args media.Args) {
	rec, ok := s.deviceRecord(w, r)
	if !ok {
		return
	}

	started := time.Now()
	res, err := s.media.Do(r.Context(), rec.Device, action, args)
	if err != nil {
		var verr *media.ValidationError
		if errors.As(err, &verr) || errors.Is(err, media.ErrUnknownAction) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("control dispatch failed", "ip", rec.IP, "action", action, "error", err)
		writeInternalError(w, "control dispatch failed")
		return
	}

	s.reportControl(res, time.Since(started))
	writeJSON(w, http.StatusOK, res)
}

// batchRequest is the body of POST /api/v1/control/batch.
type batchRequest struct {
	Targets  []string `json:"ips"`
	Action   string   `json:"action"`
	Volume   int      `json:"volume"`
	Muted    bool     `json:"muted"`
	Position string   `json:"position"`
	URI      string   `json:"uri"`
	Metadata string   `json:"metadata"`
}

// handleBatchControl executes one action against many cached devices.
// Devices missing from the cache get an error result; they never block
// the rest of the batch.
//
// POST /api/v1/control/batch {"ips": [...], "action": "stop", ...}
func (s *Server) handleBatchControl(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body: "+err.Error())
		return
	}
	if len(req.Targets) == 0 {
		writeBadRequest(w, "ips must name at least one device")
		return
	}
	if req.Action == "" {
		writeBadRequest(w, "action is required")
		return
	}

	args := media.Args{
		Volume:   req.Volume,
		Muted:    req.Muted,
		Position: req.Position,
		URI:      req.URI,
		Metadata: req.Metadata,
	}

	results := make(map[string]media.Result, len(req.Targets))
	var devices []*upnp.Device
	for _, ip := range req.Targets {
		rec, err := s.cache.Get(r.Context(), ip)
		if err != nil {
			msg := "device lookup failed"
			if errors.Is(err, cache.ErrNotFound) {
				msg = "not in device cache"
			}
			results[ip] = media.Result{
				Status:  media.StatusError,
				Action:  req.Action,
				Device:  ip,
				Message: msg,
			}
			continue
		}
		devices = append(devices, rec.Device)
	}

	started := time.Now()
	batch, err := s.media.Batch(r.Context(), devices, req.Action, args)
	if err != nil {
		var verr *media.ValidationError
		if errors.As(err, &verr) || errors.Is(err, media.ErrUnknownAction) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("batch control failed", "action", req.Action, "error", err)
		writeInternalError(w, "batch control failed")
		return
	}
	elapsed := time.Since(started)

	for ip, res := range batch {
		results[ip] = res
		s.reportControl(res, elapsed)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"action":  req.Action,
		"results": results,
	})
}

// reportControl fans a control outcome out to the WebSocket hub, the MQTT
// broker, and the telemetry writer. All three are best effort.
func (s *Server) reportControl(res media.Result, elapsed time.Duration) {
	if s.hub != nil {
		s.hub.Broadcast(ChannelControlResult, res)
	}
	if s.mqtt != nil && s.mqtt.IsConnected() {
		if payload, err := json.Marshal(res); err == nil {
			topic := mqtt.Topics{}.ControlResult(res.Device)
			if err := s.mqtt.Publish(topic, payload, 1, false); err != nil {
				s.logger.Debug("control result publish failed", "ip", res.Device, "error", err)
			}
		}
	}
	if s.telemetry != nil {
		s.telemetry.WriteControlResult(res.Device, res.Action, res.Protocol, res.Status, elapsed)
	}
}
