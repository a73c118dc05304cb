package profile

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/dabrowsk/upcast/internal/upnp"
)

func sonosDevice() *upnp.Device {
	return &upnp.Device{
		IP:           "192.168.1.42",
		Port:         1400,
		FriendlyName: "Living Room",
		Manufacturer: "Sonos, Inc.",
		ModelName:    "Sonos Play:5",
		DeviceType:   "urn:schemas-upnp-org:device:ZonePlayer:1",
		ServerHeader: "Linux UPnP/1.0 Sonos/70.4 (ZPS12)",
		UDN:          "uuid:RINCON_000E58AABBCC01400",
		Services: []upnp.Service{
			{
				ServiceType: "urn:schemas-upnp-org:service:AVTransport:1",
				ControlURL:  "/MediaRenderer/AVTransport/Control",
			},
			{
				ServiceType: "urn:schemas-upnp-org:service:RenderingControl:1",
				ControlURL:  "/MediaRenderer/RenderingControl/Control",
			},
		},
	}
}

func TestScoreBounds(t *testing.T) {
	dev := sonosDevice()

	tests := []struct {
		name  string
		match map[string][]string
		want  float64
	}{
		{
			name: "all fields match",
			match: map[string][]string{
				MatchManufacturer: {"sonos"},
				MatchModelName:    {"Play:5"},
				MatchServices:     {"AVTransport"},
			},
			want: 1,
		},
		{
			name: "no field matches",
			match: map[string][]string{
				MatchManufacturer: {"Yamaha"},
				MatchModelName:    {"MusicCast"},
			},
			want: 0,
		},
		{
			name: "half match",
			match: map[string][]string{
				MatchManufacturer: {"Sonos"},
				MatchServerHeader: {"Roku"},
			},
			want: 0.5,
		},
		{
			name:  "zero declared fields",
			match: map[string][]string{},
			want:  0,
		},
		{
			name: "unknown field counts as failed check",
			match: map[string][]string{
				MatchManufacturer: {"Sonos"},
				"bogus_field":     {"x"},
			},
			want: 0.5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Profile{Name: "t", Match: tt.match}
			got := Score(dev, p)
			if got != tt.want {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
			if got < 0 || got > 1 {
				t.Errorf("Score() = %v, outside [0,1]", got)
			}
		})
	}
}

func TestScoreServicesField(t *testing.T) {
	dev := sonosDevice()
	p := &Profile{Name: "svc", Match: map[string][]string{
		MatchServices: {"RenderingControl"},
	}}
	if got := Score(dev, p); got != 1 {
		t.Errorf("Score() = %v, want 1", got)
	}

	p.Match[MatchServices] = []string{"ContentDirectory"}
	if got := Score(dev, p); got != 0 {
		t.Errorf("Score() = %v, want 0", got)
	}
}

func TestBestThresholdAndTieBreak(t *testing.T) {
	s := NewStore()
	s.profiles = []*Profile{
		{Name: "first", Match: map[string][]string{
			MatchManufacturer: {"Sonos"},
			MatchModelName:    {"nope"},
		}},
		{Name: "second", Match: map[string][]string{
			MatchManufacturer: {"nope"},
			MatchModelName:    {"Play:5"},
		}},
		{Name: "catchall", Match: map[string][]string{}},
	}

	// Both real candidates score 0.5; first-loaded order wins.
	p, ok := s.Best(sonosDevice())
	if !ok {
		t.Fatal("Best() found nothing")
	}
	if p.Name != "first" {
		t.Errorf("Best() = %q, want first (tie broken by load order)", p.Name)
	}

	// A device matching nothing stays below the threshold.
	if _, ok := s.Best(&upnp.Device{Manufacturer: "Acme"}); ok {
		t.Error("Best() matched a device no profile covers")
	}
}

func TestBestSkipsZeroMatchProfiles(t *testing.T) {
	s := NewStore()
	s.profiles = []*Profile{
		{Name: "unmatched", Match: nil},
	}
	if _, ok := s.Best(sonosDevice()); ok {
		t.Error("profile without match fields must not be selectable")
	}
	// Still reachable by name.
	if _, ok := s.ByName("unmatched"); !ok {
		t.Error("ByName() should find match-less profiles")
	}
}

func TestPrimaryProtocolPrecedence(t *testing.T) {
	p := &Profile{
		Name: "multi",
		Protocols: map[string]*ProtocolConfig{
			"upnp":    {Port: 1400},
			"generic": {},
			"ecp":     {Port: 8060},
		},
	}
	proto, err := PrimaryProtocol(p)
	if err != nil {
		t.Fatalf("PrimaryProtocol() error = %v", err)
	}
	if proto != "ecp" {
		t.Errorf("PrimaryProtocol() = %q, want ecp", proto)
	}

	delete(p.Protocols, "ecp")
	proto, _ = PrimaryProtocol(p)
	if proto != "upnp" {
		t.Errorf("PrimaryProtocol() = %q, want upnp", proto)
	}

	if _, err := PrimaryProtocol(&Profile{Name: "empty"}); err == nil {
		t.Error("PrimaryProtocol() on empty profile should fail")
	}
}

func TestControlInfoUPnP(t *testing.T) {
	s := NewStore()
	s.profiles = []*Profile{{
		Name:  "sonos",
		Match: map[string][]string{MatchManufacturer: {"Sonos"}},
		Protocols: map[string]*ProtocolConfig{
			"upnp": {Port: 1400},
		},
	}}

	dev := sonosDevice()
	info, err := s.ControlInfo(dev)
	if err != nil {
		t.Fatalf("ControlInfo() error = %v", err)
	}

	if info.Protocol != "upnp" {
		t.Errorf("Protocol = %q, want upnp", info.Protocol)
	}
	if info.ProfileName != "sonos" {
		t.Errorf("ProfileName = %q, want sonos", info.ProfileName)
	}
	if info.Port != 1400 {
		t.Errorf("Port = %d, want 1400 (device port)", info.Port)
	}
	if got := info.ControlURLs["avtransport"]; got != "/MediaRenderer/AVTransport/Control" {
		t.Errorf("avtransport URL = %q", got)
	}
	if got := info.ControlURLs["rendering"]; got != "/MediaRenderer/RenderingControl/Control" {
		t.Errorf("rendering URL = %q", got)
	}
}

func TestControlInfoDevicePortOverridesProfile(t *testing.T) {
	s := NewStore()
	s.profiles = []*Profile{{
		Name:  "roku",
		Match: map[string][]string{MatchServerHeader: {"Roku"}},
		Protocols: map[string]*ProtocolConfig{
			"ecp": {Port: 8060, Capabilities: []string{"play", "pause"}},
		},
	}}

	dev := &upnp.Device{IP: "192.168.1.50", ServerHeader: "Roku/9.1 UPnP/1.0"}
	info, err := s.ControlInfo(dev)
	if err != nil {
		t.Fatalf("ControlInfo() error = %v", err)
	}
	if info.Port != 8060 {
		t.Errorf("Port = %d, want profile default 8060", info.Port)
	}

	dev.Port = 8061
	info, _ = s.ControlInfo(dev)
	if info.Port != 8061 {
		t.Errorf("Port = %d, want device-supplied 8061", info.Port)
	}
}

func TestControlInfoNoMatch(t *testing.T) {
	s := NewStore()
	if _, err := s.ControlInfo(&upnp.Device{Manufacturer: "Acme"}); err != ErrNoMatch {
		t.Errorf("error = %v, want ErrNoMatch", err)
	}
}

func TestLoadIsolatesMalformedFiles(t *testing.T) {
	dir := t.TempDir()

	good := `{"name": "sonos", "match": {"manufacturer": ["Sonos"]}, "upnp": {"port": 1400}}`
	alsoGood := `{"name": "roku", "match": {"server_header": ["Roku"]}, "ecp": {"port": 8060}}`
	writeFile(t, dir, "a_sonos.json", good)
	writeFile(t, dir, "b_broken.json", `{"name": "broken", "upnp": `)
	writeFile(t, dir, "c_no_protocol.json", `{"name": "empty", "match": {"manufacturer": ["X"]}}`)
	writeFile(t, dir, "d_roku.json", alsoGood)
	writeFile(t, dir, "ignored.txt", "not json")

	s := NewStore()
	if err := s.Load([]string{dir}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Count() != 2 {
		t.Fatalf("Count() = %d, want 2 (malformed files skipped)", s.Count())
	}

	profiles := s.Profiles()
	if profiles[0].Name != "sonos" || profiles[1].Name != "roku" {
		t.Errorf("load order = %q, %q", profiles[0].Name, profiles[1].Name)
	}
	if profiles[0].Protocols["upnp"].Port != 1400 {
		t.Errorf("upnp port = %d", profiles[0].Protocols["upnp"].Port)
	}
}

func TestLoadReplacesPreviousSet(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "one.json", `{"name": "one", "match": {"manufacturer": ["A"]}, "upnp": {}}`)

	s := NewStore()
	if err := s.Load([]string{dir}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("Count() = %d", s.Count())
	}

	if err := os.Remove(filepath.Join(dir, "one.json")); err != nil {
		t.Fatal(err)
	}
	writeFile(t, dir, "two.json", `{"name": "two", "match": {"manufacturer": ["B"]}, "upnp": {}}`)

	if err := s.Load([]string{dir}); err != nil {
		t.Fatalf("reload error = %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("Count() after reload = %d", s.Count())
	}
	if s.Profiles()[0].Name != "two" {
		t.Errorf("reload kept stale profile: %q", s.Profiles()[0].Name)
	}
}

func TestProfileWireFormatRoundTrip(t *testing.T) {
	p := &Profile{
		Name:  "samsung_soundbar",
		Match: map[string][]string{MatchManufacturer: {"Samsung"}},
		Notes: "WAM soundbars",
		Protocols: map[string]*ProtocolConfig{
			"samsung_wam": {Port: 55001, Capabilities: []string{"play", "set_volume"}},
			"upnp":        {Port: 9197},
		},
	}

	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	var back Profile
	if err := back.UnmarshalJSON(data); err != nil {
		t.Fatalf("UnmarshalJSON() error = %v", err)
	}
	if back.Name != p.Name || back.Notes != p.Notes {
		t.Errorf("envelope fields lost: %+v", back)
	}
	if len(back.Protocols) != 2 {
		t.Fatalf("Protocols = %d, want 2", len(back.Protocols))
	}
	if back.Protocols["samsung_wam"].Port != 55001 {
		t.Errorf("samsung_wam port = %d", back.Protocols["samsung_wam"].Port)
	}
	proto, _ := PrimaryProtocol(&back)
	if proto != "samsung_wam" {
		t.Errorf("PrimaryProtocol = %q, want samsung_wam", proto)
	}
}

func TestGenerate(t *testing.T) {
	dev := sonosDevice()
	scpds := map[string]*upnp.SCPDDocument{
		"urn:schemas-upnp-org:service:AVTransport:1": {
			ServiceType:    "urn:schemas-upnp-org:service:AVTransport:1",
			ParsingSuccess: true,
			Actions: map[string]*upnp.SOAPAction{
				"Play": {Name: "Play"},
				"Stop": {Name: "Stop"},
				"Seek": {Name: "Seek"},
			},
		},
	}

	p, err := Generate(dev, scpds)
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if p.Name != "sonos__inc__sonos_play_5" {
		t.Errorf("Name = %q", p.Name)
	}
	if got := p.Match[MatchManufacturer]; len(got) != 1 || got[0] != "Sonos, Inc." {
		t.Errorf("Match manufacturer = %v", got)
	}

	cfg := p.Protocols["upnp"]
	if cfg == nil {
		t.Fatal("generated profile missing upnp block")
	}
	if cfg.Port != 1400 {
		t.Errorf("Port = %d", cfg.Port)
	}
	if cfg.ControlURLs["avtransport"] != "/MediaRenderer/AVTransport/Control" {
		t.Errorf("avtransport URL = %q", cfg.ControlURLs["avtransport"])
	}

	// Capabilities follow the captured SCPD for AVTransport and fall
	// back to the baseline for RenderingControl (no SCPD captured).
	want := map[string]bool{"play": true, "stop": true, "seek": true, "set_volume": true, "mute": true}
	for _, c := range cfg.Capabilities {
		if !want[c] {
			t.Errorf("unexpected capability %q", c)
		}
		delete(want, c)
	}
	for c := range want {
		t.Errorf("missing capability %q", c)
	}

	// The generated document must survive its own loader.
	data, err := Encode(p)
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}
	path := filepath.Join(t.TempDir(), "gen.json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
	s := NewStore()
	if err := s.Load([]string{path}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if s.Count() != 1 {
		t.Fatalf("Count() = %d", s.Count())
	}
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}
