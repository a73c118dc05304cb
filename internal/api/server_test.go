package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/dabrowsk/upcast/internal/cache"
	"github.com/dabrowsk/upcast/internal/control"
	"github.com/dabrowsk/upcast/internal/discovery"
	"github.com/dabrowsk/upcast/internal/infrastructure/config"
	"github.com/dabrowsk/upcast/internal/infrastructure/logging"
	"github.com/dabrowsk/upcast/internal/media"
	"github.com/dabrowsk/upcast/internal/profile"
	"github.com/dabrowsk/upcast/internal/upnp"
)

// fakeCache is an in-memory cache.Repository for handler tests.
type fakeCache struct {
	mu       sync.Mutex
	records  map[string]*cache.Record
	metadata map[string]string
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		records:  make(map[string]*cache.Record),
		metadata: make(map[string]string),
	}
}

func (f *fakeCache) Upsert(_ context.Context, ip string, port int, dev *upnp.Device) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[ip] = &cache.Record{IP: ip, Port: port, Device: dev, LastSeen: time.Now()}
	return nil
}

func (f *fakeCache) Get(_ context.Context, ip string) (*cache.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ip]
	if !ok {
		return nil, cache.ErrNotFound
	}
	return rec, nil
}

func (f *fakeCache) List(_ context.Context, _ time.Duration) ([]cache.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]cache.Record, 0, len(f.records))
	for _, rec := range f.records {
		out = append(out, *rec)
	}
	return out, nil
}

func (f *fakeCache) CleanupExpired(_ context.Context) (int64, error) { return 0, nil }

func (f *fakeCache) Clear(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records = make(map[string]*cache.Record)
	return nil
}

func (f *fakeCache) SetMetadata(_ context.Context, key, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.metadata[key] = value
	return nil
}

func (f *fakeCache) GetMetadata(_ context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.metadata[key]
	if !ok {
		return "", cache.ErrNotFound
	}
	return v, nil
}

// sonosProfile declares a upnp protocol block matching Sonos devices.
func sonosProfile(t *testing.T) *profile.Profile {
	t.Helper()
	raw := `{
		"name": "sonos",
		"match": {"manufacturer": ["Sonos"]},
		"upnp": {
			"port": 1400,
			"control_urls": {
				"avtransport": "/MediaRenderer/AVTransport/Control",
				"rendering": "/MediaRenderer/RenderingControl/Control"
			},
			"capabilities": ["play", "pause", "stop", "set_volume"]
		}
	}`
	var p profile.Profile
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		t.Fatalf("profile fixture: %v", err)
	}
	return &p
}

func sonosDevice(ip string, port int) *upnp.Device {
	return &upnp.Device{
		IP:           ip,
		Port:         port,
		FriendlyName: "Living Room",
		Manufacturer: "Sonos, Inc.",
		ModelName:    "Play:5",
		DeviceType:   "urn:schemas-upnp-org:device:ZonePlayer:1",
		UDN:          "uuid:RINCON_TEST",
		Services: []upnp.Service{
			{
				ServiceType: "urn:schemas-upnp-org:service:AVTransport:1",
				ControlURL:  "/MediaRenderer/AVTransport/Control",
				SCPDURL:     "/xml/AVTransport1.xml",
			},
			{
				ServiceType: "urn:schemas-upnp-org:service:RenderingControl:1",
				ControlURL:  "/MediaRenderer/RenderingControl/Control",
			},
		},
	}
}

// testEnv bundles the server under test with its backing fakes.
type testEnv struct {
	server *Server
	cache  *fakeCache
	store  *profile.Store
	http   *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := profile.NewStore()
	if err := store.Add(sonosProfile(t)); err != nil {
		t.Fatalf("store.Add() error = %v", err)
	}

	fc := newFakeCache()
	logger := logging.New(config.LoggingConfig{Level: "error"}, "test")

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: 0},
		WS:     config.WebSocketConfig{MaxMessageSize: 8192, PingInterval: 30, PongTimeout: 10},
		Discovery: config.DiscoveryConfig{
			Timeout:     1,
			Concurrency: 4,
		},
		Logger:  logger,
		Engine:  discovery.New(nil),
		Cache:   fc,
		Store:   store,
		Media:   media.NewController(store, control.NewRegistry(nil, nil)),
		Version: "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(ts.Close)

	return &testEnv{server: srv, cache: fc, store: store, http: ts}
}

// doJSON issues a request with an optional JSON body and decodes the
// JSON response into out (if non-nil).
func (e *testEnv) doJSON(t *testing.T, method, path string, body any, out any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.http.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode response: %v", err)
		}
	}
	return resp
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	var body map[string]any
	resp := env.doJSON(t, http.MethodGet, "/api/v1/health", nil, &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v, want ok", body["status"])
	}
	if resp.Header.Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestDiscoverInvalidMode(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/discover", map[string]string{"mode": "telepathy"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDiscoverScanRejectsBadNetwork(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name    string
		network string
	}{
		{"not a CIDR", "sausages"},
		{"too wide", "10.0.0.0/8"},
		{"missing", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.doJSON(t, http.MethodPost, "/api/v1/discover",
				map[string]string{"mode": "scan", "network": tt.network}, nil)
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
		})
	}
}

func TestListDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.cache.Upsert(ctx, "192.168.1.42", 1400, sonosDevice("192.168.1.42", 1400)) //nolint:errcheck // Fake cannot fail
	env.cache.Upsert(ctx, "192.168.1.43", 1400, sonosDevice("192.168.1.43", 1400)) //nolint:errcheck // Fake cannot fail

	var body struct {
		Count   int            `json:"count"`
		Devices []cache.Record `json:"devices"`
	}
	resp := env.doJSON(t, http.MethodGet, "/api/v1/devices", nil, &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Count != 2 {
		t.Errorf("count = %d, want 2", body.Count)
	}
}

func TestListDevicesRejectsBadMaxAge(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodGet, "/api/v1/devices?max_age_hours=banana", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestGetDeviceNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodGet, "/api/v1/devices/10.0.0.99", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestClearDevices(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.cache.Upsert(ctx, "192.168.1.42", 1400, sonosDevice("192.168.1.42", 1400)) //nolint:errcheck // Fake cannot fail

	resp := env.doJSON(t, http.MethodDelete, "/api/v1/devices", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if len(env.cache.records) != 0 {
		t.Errorf("cache has %d records after clear, want 0", len(env.cache.records))
	}
}

func TestControlInfo(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.cache.Upsert(ctx, "192.168.1.42", 1400, sonosDevice("192.168.1.42", 1400)) //nolint:errcheck // Fake cannot fail

	var info profile.ControlInfo
	resp := env.doJSON(t, http.MethodGet, "/api/v1/devices/192.168.1.42/control-info", nil, &info)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if info.Protocol != "upnp" {
		t.Errorf("protocol = %q, want upnp", info.Protocol)
	}
	if info.ProfileName != "sonos" {
		t.Errorf("profile = %q, want sonos", info.ProfileName)
	}
	if got := info.ControlURLs["avtransport"]; got != "/MediaRenderer/AVTransport/Control" {
		t.Errorf("avtransport URL = %q", got)
	}
}

func TestControlInfoNoProfileMatch(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	unknown := &upnp.Device{IP: "192.168.1.99", Port: 80, Manufacturer: "Obscure Ltd"}
	env.cache.Upsert(ctx, "192.168.1.99", 80, unknown) //nolint:errcheck // Fake cannot fail

	resp := env.doJSON(t, http.MethodGet, "/api/v1/devices/192.168.1.99/control-info", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestDeviceActionUnknown(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.cache.Upsert(ctx, "192.168.1.42", 1400, sonosDevice("192.168.1.42", 1400)) //nolint:errcheck // Fake cannot fail

	resp := env.doJSON(t, http.MethodPost, "/api/v1/devices/192.168.1.42/frobnicate", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestSetVolumeOutOfRange(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.cache.Upsert(ctx, "192.168.1.42", 1400, sonosDevice("192.168.1.42", 1400)) //nolint:errcheck // Fake cannot fail

	resp := env.doJSON(t, http.MethodPost, "/api/v1/devices/192.168.1.42/volume",
		map[string]int{"level": 250}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

// soapOK answers every SOAP POST with an empty success envelope.
func soapOK(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "text/xml; charset=\"utf-8\"")
		fmt.Fprint(w, `<?xml version="1.0"?>
<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/">
  <s:Body><u:PlayResponse xmlns:u="urn:schemas-upnp-org:service:AVTransport:1"/></s:Body>
</s:Envelope>`)
	}))
	t.Cleanup(ts.Close)
	return ts
}

func TestDeviceActionSuccess(t *testing.T) {
	env := newTestEnv(t)
	soap := soapOK(t)

	u, err := url.Parse(soap.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("test server port: %v", err)
	}

	ip := u.Hostname()
	dev := sonosDevice(ip, port)
	env.cache.Upsert(context.Background(), ip, port, dev) //nolint:errcheck // Fake cannot fail

	var res media.Result
	resp := env.doJSON(t, http.MethodPost, "/api/v1/devices/"+ip+"/play", nil, &res)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if res.Status != media.StatusSuccess {
		t.Errorf("result status = %q, want success (message: %s)", res.Status, res.Message)
	}
	if res.Protocol != "upnp" {
		t.Errorf("protocol = %q, want upnp", res.Protocol)
	}
}

func TestBatchControl(t *testing.T) {
	env := newTestEnv(t)
	soap := soapOK(t)

	u, _ := url.Parse(soap.URL)                //nolint:errcheck // httptest URLs always parse
	port, _ := strconv.Atoi(u.Port())          //nolint:errcheck // httptest ports are numeric
	ip := u.Hostname()
	env.cache.Upsert(context.Background(), ip, port, sonosDevice(ip, port)) //nolint:errcheck // Fake cannot fail

	var body struct {
		Action  string                  `json:"action"`
		Results map[string]media.Result `json:"results"`
	}
	resp := env.doJSON(t, http.MethodPost, "/api/v1/control/batch", map[string]any{
		"ips":    []string{ip, "10.0.0.99"},
		"action": "stop",
	}, &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if len(body.Results) != 2 {
		t.Fatalf("results = %d entries, want 2", len(body.Results))
	}
	if body.Results[ip].Status != media.StatusSuccess {
		t.Errorf("cached device status = %q, want success", body.Results[ip].Status)
	}
	if body.Results["10.0.0.99"].Status != media.StatusError {
		t.Errorf("missing device status = %q, want error", body.Results["10.0.0.99"].Status)
	}
}

func TestBatchControlRejectsEmptyTargets(t *testing.T) {
	env := newTestEnv(t)

	resp := env.doJSON(t, http.MethodPost, "/api/v1/control/batch",
		map[string]any{"ips": []string{}, "action": "stop"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestListProfiles(t *testing.T) {
	env := newTestEnv(t)

	var body struct {
		Count    int              `json:"count"`
		Profiles []profileSummary `json:"profiles"`
	}
	resp := env.doJSON(t, http.MethodGet, "/api/v1/profiles", nil, &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Count != 1 || body.Profiles[0].Name != "sonos" {
		t.Errorf("profiles = %+v, want single sonos entry", body.Profiles)
	}
	if len(body.Profiles[0].Protocols) != 1 || body.Profiles[0].Protocols[0] != "upnp" {
		t.Errorf("protocols = %v, want [upnp]", body.Profiles[0].Protocols)
	}
}

func TestReloadProfiles(t *testing.T) {
	env := newTestEnv(t)

	dir := t.TempDir()
	doc := `{"name": "roku", "match": {"manufacturer": ["Roku"]}, "ecp": {"port": 8060}}`
	if err := os.WriteFile(filepath.Join(dir, "roku.json"), []byte(doc), 0o600); err != nil {
		t.Fatalf("write profile: %v", err)
	}
	env.server.profCfg.Paths = []string{dir}

	var body struct {
		Status string `json:"status"`
		Count  int    `json:"count"`
	}
	resp := env.doJSON(t, http.MethodPost, "/api/v1/profiles/reload", nil, &body)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if body.Count != 1 {
		t.Errorf("count = %d, want 1 (reload replaces the set)", body.Count)
	}
	if _, ok := env.store.ByName("roku"); !ok {
		t.Error("roku profile not loaded after reload")
	}
}

func TestHubAvailableBeforeStart(t *testing.T) {
	// The notifier chain is wired between New and Start; the hub must
	// already exist at that point.
	env := newTestEnv(t)
	if env.server.Hub() == nil {
		t.Fatal("Hub() = nil after New(), want hub constructed eagerly")
	}
}

func TestHubBroadcastRespectsSubscriptions(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(config.WebSocketConfig{}, logger)

	subscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{ChannelScanStarted: {}},
	}
	unsubscribed := &WSClient{
		hub:           hub,
		send:          make(chan []byte, 4),
		subscriptions: map[string]struct{}{},
	}
	hub.Register(subscribed)
	hub.Register(unsubscribed)

	hub.ScanStarted("scan-1", "ssdp")

	select {
	case data := <-subscribed.send:
		var msg WSMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			t.Fatalf("broadcast payload: %v", err)
		}
		if msg.Type != WSTypeEvent || msg.EventType != ChannelScanStarted {
			t.Errorf("message = %+v, want scan.started event", msg)
		}
	default:
		t.Fatal("subscribed client received nothing")
	}

	select {
	case <-unsubscribed.send:
		t.Fatal("unsubscribed client received a broadcast")
	default:
	}
}

func TestHubNotifierEvents(t *testing.T) {
	logger := logging.New(config.LoggingConfig{Level: "error"}, "test")
	hub := NewHub(config.WebSocketConfig{}, logger)

	client := &WSClient{
		hub:  hub,
		send: make(chan []byte, 8),
		subscriptions: map[string]struct{}{
			ChannelDeviceDiscovered: {},
			ChannelScanCompleted:    {},
		},
	}
	hub.Register(client)

	hub.DeviceDiscovered("scan-1", sonosDevice("192.168.1.42", 1400))
	hub.ScanCompleted(discovery.Summary{ScanID: "scan-1", Mode: "ssdp", Devices: 1})

	got := make([]string, 0, 2)
	for i := 0; i < 2; i++ {
		select {
		case data := <-client.send:
			var msg WSMessage
			if err := json.Unmarshal(data, &msg); err != nil {
				t.Fatalf("broadcast payload: %v", err)
			}
			got = append(got, msg.EventType)
		default:
			t.Fatalf("expected 2 events, got %d", i)
		}
	}

	want := strings.Join([]string{ChannelDeviceDiscovered, ChannelScanCompleted}, ",")
	if strings.Join(got, ",") != want {
		t.Errorf("events = %v, want [%s]", got, want)
	}
}
