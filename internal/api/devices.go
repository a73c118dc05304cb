package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/dabrowsk/upcast/internal/cache"
	"github.com/dabrowsk/upcast/internal/profile"
	"github.com/dabrowsk/upcast/internal/upnp"
)

// handleListDevices returns the cached devices, newest first.
//
// GET /api/v1/devices?max_age_hours=N
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	var maxAge time.Duration
	if v := r.URL.Query().Get("max_age_hours"); v != "" {
		hours, err := strconv.Atoi(v)
		if err != nil || hours < 1 {
			writeBadRequest(w, "max_age_hours must be a positive integer")
			return
		}
		maxAge = time.Duration(hours) * time.Hour
	}

	records, err := s.cache.List(r.Context(), maxAge)
	if err != nil {
		s.logger.Error("device list failed", "error", err)
		writeInternalError(w, "listing devices failed")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"devices": records,
	})
}

// handleGetDevice returns one cached device by IP.
//
// GET /api/v1/devices/{ip}
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.deviceRecord(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// handleClearDevices empties the device cache.
//
// DELETE /api/v1/devices
func (s *Server) handleClearDevices(w http.ResponseWriter, r *http.Request) {
	if err := s.cache.Clear(r.Context()); err != nil {
		s.logger.Error("cache clear failed", "error", err)
		writeInternalError(w, "clearing cache failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
}

// handleCleanupDevices removes expired cache records.
//
// POST /api/v1/devices/cleanup
func (s *Server) handleCleanupDevices(w http.ResponseWriter, r *http.Request) {
	removed, err := s.cache.CleanupExpired(r.Context())
	if err != nil {
		s.logger.Error("cache cleanup failed", "error", err)
		writeInternalError(w, "cleanup failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"removed": removed})
}

// handleControlInfo resolves the control surface for one cached device.
//
// GET /api/v1/devices/{ip}/control-info
func (s *Server) handleControlInfo(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.deviceRecord(w, r)
	if !ok {
		return
	}

	info, err := s.store.ControlInfo(rec.Device)
	if err != nil {
		if errors.Is(err, profile.ErrNoMatch) || errors.Is(err, profile.ErrNoProtocol) {
			writeNotFound(w, err.Error())
			return
		}
		s.logger.Error("control info resolution failed", "ip", rec.IP, "error", err)
		writeInternalError(w, "control info resolution failed")
		return
	}

	writeJSON(w, http.StatusOK, info)
}

// handleGenerateProfile builds a profile document from a cached device,
// fetching the SCPD of every service that declares one.
//
// POST /api/v1/devices/{ip}/generate-profile
func (s *Server) handleGenerateProfile(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.deviceRecord(w, r)
	if !ok {
		return
	}
	dev := rec.Device

	// Fetched concurrently: a device with several dead SCPD endpoints
	// must not serialize timeouts past the response write deadline.
	scpds := upnp.FetchAllSCPDs(r.Context(), s.httpClient, dev, s.discCfg.Concurrency)

	p, err := profile.Generate(dev, scpds)
	if err != nil {
		writeBadRequest(w, "profile generation failed: "+err.Error())
		return
	}

	encoded, err := profile.Encode(p)
	if err != nil {
		s.logger.Error("profile encoding failed", "ip", rec.IP, "error", err)
		writeInternalError(w, "profile encoding failed")
		return
	}

	// Loaded immediately so the device is controllable without a restart.
	if err := s.store.Add(p); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	w.Write(encoded) //nolint:errcheck // Best-effort write to response
}

// deviceRecord loads the cached record for the {ip} route parameter,
// writing the error response itself when the device is unknown.
func (s *Server) deviceRecord(w http.ResponseWriter, r *http.Request) (*cache.Record, bool) {
	ip := chi.URLParam(r, "ip")
	if ip == "" {
		writeBadRequest(w, "device IP is required")
		return nil, false
	}

	rec, err := s.cache.Get(r.Context(), ip)
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			writeNotFound(w, "no cached device at "+ip+"; run discovery first")
			return nil, false
		}
		s.logger.Error("device lookup failed", "ip", ip, "error", err)
		writeInternalError(w, "device lookup failed")
		return nil, false
	}
	return rec, true
}

// decodeBody decodes a JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
