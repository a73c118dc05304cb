package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/dabrowsk/upcast/internal/discovery"
	"github.com/dabrowsk/upcast/internal/upnp"
)

// discoverRequest is the body of POST /api/v1/discover.
type discoverRequest struct {
	// Mode selects the discovery method: "ssdp" (default) or "scan".
	Mode string `json:"mode"`

	// Network is the CIDR for scan mode. Falls back to the configured
	// default network.
	Network string `json:"network"`

	// Timeout overrides the configured collection window, in seconds.
	Timeout int `json:"timeout"`

	// MaxDevices stops collection early. 0 means unlimited.
	MaxDevices int `json:"max_devices"`
}

// discoverResponse is the body returned by POST /api/v1/discover.
type discoverResponse struct {
	Mode    string         `json:"mode"`
	Network string         `json:"network,omitempty"`
	Count   int            `json:"count"`
	Devices []*upnp.Device `json:"devices"`
}

// handleDiscover runs a discovery pass and caches every device found.
//
// POST /api/v1/discover
func (s *Server) handleDiscover(w http.ResponseWriter, r *http.Request) {
	req := discoverRequest{Mode: "ssdp"}
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeBadRequest(w, "invalid JSON body: "+err.Error())
			return
		}
	}
	if req.Mode == "" {
		req.Mode = "ssdp"
	}

	opts := discovery.Options{
		Timeout:       time.Duration(s.discCfg.Timeout) * time.Second,
		Concurrency:   s.discCfg.Concurrency,
		MaxDevices:    s.discCfg.MaxDevices,
		SearchTargets: s.discCfg.SearchTargets,
	}
	if req.Timeout > 0 {
		opts.Timeout = time.Duration(req.Timeout) * time.Second
	}
	if req.MaxDevices > 0 {
		opts.MaxDevices = req.MaxDevices
	}

	var (
		devices []*upnp.Device
		err     error
		network string
	)

	switch req.Mode {
	case "ssdp":
		devices, err = s.engine.Discover(r.Context(), opts)
	case "scan":
		network = req.Network
		if network == "" {
			network = s.discCfg.Network
		}
		if network == "" {
			writeBadRequest(w, "scan mode requires a network (CIDR)")
			return
		}
		devices, err = s.engine.ScanNetwork(r.Context(), network, opts)
	default:
		writeBadRequest(w, "mode must be \"ssdp\" or \"scan\"")
		return
	}

	if err != nil {
		if errors.Is(err, discovery.ErrInvalidNetwork) || errors.Is(err, discovery.ErrNetworkTooLarge) {
			writeBadRequest(w, err.Error())
			return
		}
		s.logger.Error("discovery run failed", "mode", req.Mode, "error", err)
		writeInternalError(w, "discovery failed: "+err.Error())
		return
	}

	// Cache every device found; a cache write failure doesn't fail the run.
	for _, dev := range devices {
		if err := s.cache.Upsert(r.Context(), dev.IP, dev.Port, dev); err != nil {
			s.logger.Warn("device cache write failed", "ip", dev.IP, "error", err)
		}
	}

	// Remember the last scanned network so clients can offer it as the
	// default next time.
	if network != "" {
		if err := s.cache.SetMetadata(r.Context(), "last_network", network); err != nil {
			s.logger.Warn("metadata write failed", "key", "last_network", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, discoverResponse{
		Mode:    req.Mode,
		Network: network,
		Count:   len(devices),
		Devices: devices,
	})
}
