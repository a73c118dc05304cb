package profile

import (
	"strings"

	"github.com/dabrowsk/upcast/internal/upnp"
)

// Score computes the normalised match score of a profile against a
// device, always in [0,1].
//
// Each match field declared on the profile counts as one check; a check
// passes when any of its patterns is a case-insensitive substring of
// the device's corresponding field (for "services", of any serviceType
// in the flattened service set). The score is passed checks divided by
// declared checks. A profile declaring no match fields scores 0.
func Score(dev *upnp.Device, p *Profile) float64 {
	if dev == nil || p == nil || len(p.Match) == 0 {
		return 0
	}

	checks := 0
	matched := 0
	for field, patterns := range p.Match {
		checks++
		if matchField(dev, field, patterns) {
			matched++
		}
	}
	return float64(matched) / float64(checks)
}

func matchField(dev *upnp.Device, field string, patterns []string) bool {
	var value string
	switch field {
	case MatchManufacturer:
		value = dev.Manufacturer
	case MatchDeviceType:
		value = dev.DeviceType
	case MatchModelName:
		value = dev.ModelName
	case MatchServerHeader:
		value = dev.ServerHeader
	case MatchFriendlyName:
		value = dev.FriendlyName
	case MatchServices:
		for _, svc := range dev.AllServices() {
			if anySubstring(svc.ServiceType, patterns) {
				return true
			}
		}
		return false
	default:
		// Unknown fields count as a failed check rather than an error
		// so an old binary keeps working against newer profile files.
		return false
	}
	return anySubstring(value, patterns)
}

func anySubstring(value string, patterns []string) bool {
	if value == "" {
		return false
	}
	lower := strings.ToLower(value)
	for _, pat := range patterns {
		if pat == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(pat)) {
			return true
		}
	}
	return false
}

// Best returns the highest-scoring profile for the device above the
// store's minimum threshold. Ties are broken by load order. Profiles
// that declare no match fields are never candidates; they are reachable
// only by explicit name.
func (s *Store) Best(dev *upnp.Device) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *Profile
	bestScore := 0.0
	for _, p := range s.profiles {
		if len(p.Match) == 0 {
			continue
		}
		score := Score(dev, p)
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if best == nil || bestScore < s.minScore {
		return nil, false
	}
	return best, true
}

// ByName returns the profile with the given name, if loaded.
func (s *Store) ByName(name string) (*Profile, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.profiles {
		if p.Name == name {
			return p, true
		}
	}
	return nil, false
}

// PrimaryProtocol resolves which of a profile's protocol blocks is
// authoritative for control. Profiles may carry extra blocks purely as
// documentation; the first block present in KnownProtocols precedence
// order wins.
func PrimaryProtocol(p *Profile) (string, error) {
	if p == nil || len(p.Protocols) == 0 {
		return "", ErrNoProtocol
	}
	for _, proto := range KnownProtocols {
		if _, ok := p.Protocols[proto]; ok {
			return proto, nil
		}
	}
	return "", ErrNoProtocol
}

// ControlURLs returns the control URL map declared by the given
// protocol block, or nil when the block or map is absent.
func ControlURLs(p *Profile, protocol string) map[string]string {
	if p == nil {
		return nil
	}
	cfg, ok := p.Protocols[protocol]
	if !ok {
		return nil
	}
	return cfg.ControlURLs
}

// DefaultPort returns the profile's default port for the protocol, or 0
// when none is declared.
func DefaultPort(p *Profile, protocol string) int {
	if p == nil {
		return 0
	}
	cfg, ok := p.Protocols[protocol]
	if !ok {
		return 0
	}
	return cfg.Port
}

// ControlInfo resolves the full control surface for a device: the best
// matching profile, its authoritative protocol, the control port
// (device-supplied port overrides the profile default), and the control
// URLs. For the upnp protocol the URLs come from the device's own
// service list, keyed by short service name, so they always reflect
// what the device actually advertised; profile-declared URLs fill any
// service the device did not list.
func (s *Store) ControlInfo(dev *upnp.Device) (*ControlInfo, error) {
	p, ok := s.Best(dev)
	if !ok {
		return nil, ErrNoMatch
	}
	proto, err := PrimaryProtocol(p)
	if err != nil {
		return nil, err
	}

	cfg := p.Protocols[proto]
	port := cfg.Port
	if dev.Port != 0 {
		port = dev.Port
	}

	urls := make(map[string]string)
	for name, u := range cfg.ControlURLs {
		urls[name] = u
	}
	if proto == "upnp" {
		for _, svc := range dev.AllServices() {
			if svc.ControlURL == "" {
				continue
			}
			if name := shortServiceName(svc.ServiceType); name != "" {
				urls[name] = svc.ControlURL
			}
		}
	}

	return &ControlInfo{
		ProfileName:  p.Name,
		Protocol:     proto,
		Port:         port,
		ControlURLs:  urls,
		Capabilities: cfg.Capabilities,
	}, nil
}

// shortServiceName maps a UPnP serviceType URN to the key used in
// control URL maps.
func shortServiceName(serviceType string) string {
	lower := strings.ToLower(serviceType)
	switch {
	case strings.Contains(lower, "avtransport"):
		return "avtransport"
	case strings.Contains(lower, "renderingcontrol"):
		return "rendering"
	case strings.Contains(lower, "connectionmanager"):
		return "connection_manager"
	case strings.Contains(lower, "contentdirectory"):
		return "content_directory"
	default:
		// urn:schemas-upnp-org:service:Foo:1 -> foo
		parts := strings.Split(serviceType, ":")
		if len(parts) >= 2 {
			return strings.ToLower(parts[len(parts)-2])
		}
		return ""
	}
}
