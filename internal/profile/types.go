package profile

import (
	"encoding/json"
	"fmt"

	"github.com/dabrowsk/upcast/internal/upnp"
)

// Match criteria field names. Each maps to one device field; "services"
// matches against the serviceType of every service in the device's
// flattened service set.
const (
	MatchManufacturer = "manufacturer"
	MatchDeviceType   = "deviceType"
	MatchModelName    = "modelName"
	MatchServerHeader = "server_header"
	MatchFriendlyName = "friendlyName"
	MatchServices     = "services"
)

// KnownProtocols are the protocol block ids a profile document may
// declare, in control precedence order: when a profile declares several
// blocks (some purely for documentation), the first one present in this
// list is authoritative.
var KnownProtocols = []string{
	"cast",
	"ecp",
	"samsung_wam",
	"heos_api",
	"musiccast_api",
	"soundtouch_api",
	"denon_api",
	"onkyo_api",
	"pioneer_api",
	"squeezebox_api",
	"plex_api",
	"jsonrpc_api",
	"http_api",
	"openwebnet",
	"bluesound_api",
	"upnp",
	"generic",
}

// ProtocolConfig is one per-protocol control block inside a profile.
type ProtocolConfig struct {
	// Port is the protocol's default control port. A device-supplied
	// port always overrides it.
	Port int `json:"port,omitempty"`

	// ControlURLs maps short service names (avtransport, rendering) to
	// control URL templates or paths.
	ControlURLs map[string]string `json:"control_urls,omitempty"`

	// Capabilities lists the operations this protocol supports on this
	// device family (play, stop, set_volume, ...).
	Capabilities []string `json:"capabilities,omitempty"`

	// SCPD optionally embeds the action inventories captured when the
	// profile was generated from a live device.
	SCPD map[string]*upnp.SCPDDocument `json:"scpd,omitempty"`

	// Notes is free-form documentation.
	Notes string `json:"notes,omitempty"`
}

// Profile is one declarative device profile.
//
// The JSON wire format puts protocol blocks at the document top level
// next to "name" and "match":
//
//	{
//	  "name": "sonos",
//	  "match": {"manufacturer": ["Sonos"]},
//	  "upnp": {"port": 1400, "control_urls": {...}},
//	  "notes": "..."
//	}
type Profile struct {
	Name      string                     `json:"name"`
	Match     map[string][]string        `json:"match"`
	Notes     string                     `json:"notes,omitempty"`
	Protocols map[string]*ProtocolConfig `json:"-"`
}

// profileEnvelope is the static half of the wire format.
type profileEnvelope struct {
	Name  string              `json:"name"`
	Match map[string][]string `json:"match"`
	Notes string              `json:"notes,omitempty"`
}

// UnmarshalJSON decodes the wire format, collecting any top-level key
// that names a known protocol into Protocols.
func (p *Profile) UnmarshalJSON(data []byte) error {
	var env profileEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	p.Name = env.Name
	p.Match = env.Match
	p.Notes = env.Notes
	p.Protocols = make(map[string]*ProtocolConfig)

	for _, proto := range KnownProtocols {
		blob, ok := raw[proto]
		if !ok {
			continue
		}
		var cfg ProtocolConfig
		if err := json.Unmarshal(blob, &cfg); err != nil {
			return fmt.Errorf("protocol block %q: %w", proto, err)
		}
		p.Protocols[proto] = &cfg
	}
	return nil
}

// MarshalJSON encodes the wire format with protocol blocks at the top
// level. Used by profile generation.
func (p *Profile) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, len(p.Protocols)+3)
	out["name"] = p.Name
	out["match"] = p.Match
	if p.Notes != "" {
		out["notes"] = p.Notes
	}
	for proto, cfg := range p.Protocols {
		out[proto] = cfg
	}
	return json.Marshal(out)
}

// Validate checks the structural invariants of a loaded profile:
// a name and at least one protocol block.
func (p *Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("%w: missing name", ErrInvalidProfile)
	}
	if len(p.Protocols) == 0 {
		return fmt.Errorf("%w: profile %q declares no protocol block", ErrInvalidProfile, p.Name)
	}
	return nil
}

// ControlInfo is the resolved control surface for one device: which
// profile matched, which protocol is authoritative, and where the
// control endpoints live. It is computed fresh from a Device and its
// matched profile, never cached.
type ControlInfo struct {
	ProfileName  string            `json:"profile_name"`
	Protocol     string            `json:"protocol"`
	Port         int               `json:"port"`
	ControlURLs  map[string]string `json:"control_urls"`
	Capabilities []string          `json:"capabilities,omitempty"`
}
