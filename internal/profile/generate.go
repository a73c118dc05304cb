package profile

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dabrowsk/upcast/internal/upnp"
)

// Generate builds a profile document from a live device and the SCPD
// inventories fetched for its services. The result matches on the
// device's manufacturer and model so it also covers siblings of the
// same family, and embeds the captured action inventories so control
// capabilities survive without re-fetching SCPDs.
func Generate(dev *upnp.Device, scpds map[string]*upnp.SCPDDocument) (*Profile, error) {
	if dev == nil {
		return nil, fmt.Errorf("%w: nil device", ErrInvalidProfile)
	}

	match := make(map[string][]string)
	if dev.Manufacturer != "" {
		match[MatchManufacturer] = []string{dev.Manufacturer}
	}
	if dev.ModelName != "" {
		match[MatchModelName] = []string{dev.ModelName}
	}
	if len(match) == 0 && dev.FriendlyName != "" {
		match[MatchFriendlyName] = []string{dev.FriendlyName}
	}

	cfg := &ProtocolConfig{
		Port:        dev.Port,
		ControlURLs: make(map[string]string),
	}
	capSet := make(map[string]struct{})
	for _, svc := range dev.AllServices() {
		name := shortServiceName(svc.ServiceType)
		if name == "" || svc.ControlURL == "" {
			continue
		}
		cfg.ControlURLs[name] = svc.ControlURL
		for _, c := range capabilitiesForService(name, scpds[svc.ServiceType]) {
			capSet[c] = struct{}{}
		}
	}
	if len(scpds) > 0 {
		cfg.SCPD = scpds
	}
	for c := range capSet {
		cfg.Capabilities = append(cfg.Capabilities, c)
	}
	sort.Strings(cfg.Capabilities)

	p := &Profile{
		Name:      generatedName(dev),
		Match:     match,
		Notes:     fmt.Sprintf("generated from %s at %s", dev.FriendlyName, dev.IP),
		Protocols: map[string]*ProtocolConfig{"upnp": cfg},
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// Encode renders a profile in the on-disk wire format.
func Encode(p *Profile) ([]byte, error) {
	return json.MarshalIndent(p, "", "  ")
}

// capabilitiesForService maps captured SCPD actions to façade
// capability names. Without an SCPD the service name alone implies the
// baseline set.
func capabilitiesForService(service string, scpd *upnp.SCPDDocument) []string {
	if scpd == nil || !scpd.ParsingSuccess {
		switch service {
		case "avtransport":
			return []string{"play", "pause", "stop", "set_uri"}
		case "rendering":
			return []string{"set_volume", "mute"}
		}
		return nil
	}

	var caps []string
	add := func(action, capability string) {
		if _, ok := scpd.Actions[action]; ok {
			caps = append(caps, capability)
		}
	}
	switch service {
	case "avtransport":
		add("Play", "play")
		add("Pause", "pause")
		add("Stop", "stop")
		add("Next", "next")
		add("Previous", "previous")
		add("Seek", "seek")
		add("SetAVTransportURI", "set_uri")
	case "rendering":
		add("SetVolume", "set_volume")
		add("SetMute", "mute")
	}
	return caps
}

// generatedName derives a stable profile name from the device identity.
func generatedName(dev *upnp.Device) string {
	base := dev.Manufacturer
	if base == "" {
		base = dev.FriendlyName
	}
	if dev.ModelName != "" {
		base += " " + dev.ModelName
	}
	if base == "" {
		base = "device " + dev.IP
	}
	slug := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			return r
		case r >= 'A' && r <= 'Z':
			return r + ('a' - 'A')
		default:
			return '_'
		}
	}, base)
	return strings.Trim(slug, "_")
}
