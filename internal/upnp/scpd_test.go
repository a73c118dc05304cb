package upnp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"sync/atomic"
	"testing"
	"time"
)

const avTransportSCPD = `<?xml version="1.0"?>
<scpd xmlns="urn:schemas-upnp-org:service-1-0">
  <specVersion><major>1</major><minor>0</minor></specVersion>
  <actionList>
    <action>
      <name>Play</name>
      <argumentList>
        <argument>
          <name>InstanceID</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable>
        </argument>
        <argument>
          <name>Speed</name>
          <direction>in</direction>
          <relatedStateVariable>TransportPlaySpeed</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
    <action>
      <name>GetTransportInfo</name>
      <argumentList>
        <argument>
          <name>InstanceID</name>
          <direction>in</direction>
          <relatedStateVariable>A_ARG_TYPE_InstanceID</relatedStateVariable>
        </argument>
        <argument>
          <name>CurrentTransportState</name>
          <direction>out</direction>
          <relatedStateVariable>TransportState</relatedStateVariable>
        </argument>
      </argumentList>
    </action>
  </actionList>
  <serviceStateTable>
    <stateVariable sendEvents="no">
      <name>A_ARG_TYPE_InstanceID</name>
      <dataType>ui4</dataType>
      <defaultValue>0</defaultValue>
      <allowedValueRange><minimum>0</minimum><maximum>255</maximum><step>1</step></allowedValueRange>
    </stateVariable>
    <stateVariable sendEvents="no">
      <name>TransportPlaySpeed</name>
      <dataType>string</dataType>
      <allowedValueList><allowedValue>1</allowedValue></allowedValueList>
      <defaultValue>1</defaultValue>
    </stateVariable>
    <stateVariable sendEvents="yes">
      <name>TransportState</name>
      <dataType>string</dataType>
      <allowedValueList>
        <allowedValue>STOPPED</allowedValue>
        <allowedValue>PLAYING</allowedValue>
        <allowedValue>PAUSED_PLAYBACK</allowedValue>
      </allowedValueList>
    </stateVariable>
  </serviceStateTable>
</scpd>`

func TestParseSCPD(t *testing.T) {
	doc := ParseSCPD([]byte(avTransportSCPD), "urn:schemas-upnp-org:service:AVTransport:1", "/xml/AVTransport1.xml")

	if !doc.ParsingSuccess {
		t.Fatalf("ParsingSuccess = false, errors: %v", doc.ParsingErrors)
	}
	if len(doc.ParsingErrors) != 0 {
		t.Errorf("ParsingErrors = %v, want none", doc.ParsingErrors)
	}
	if doc.SpecVersion.Major != 1 || doc.SpecVersion.Minor != 0 {
		t.Errorf("SpecVersion = %+v, want 1.0", doc.SpecVersion)
	}
	if len(doc.Actions) != 2 {
		t.Fatalf("actions = %d, want 2", len(doc.Actions))
	}
	if len(doc.StateVariables) != 3 {
		t.Fatalf("state variables = %d, want 3", len(doc.StateVariables))
	}

	play := doc.Actions["Play"]
	if play == nil {
		t.Fatal("Play action missing")
	}
	if len(play.ArgumentsIn) != 2 || len(play.ArgumentsOut) != 0 {
		t.Fatalf("Play arguments in/out = %d/%d, want 2/0", len(play.ArgumentsIn), len(play.ArgumentsOut))
	}
	// Argument order preserved as declared.
	if play.ArgumentsIn[0].Name != "InstanceID" || play.ArgumentsIn[1].Name != "Speed" {
		t.Errorf("argument order = %q, %q", play.ArgumentsIn[0].Name, play.ArgumentsIn[1].Name)
	}
}

func TestParseSCPDArgumentResolution(t *testing.T) {
	doc := ParseSCPD([]byte(avTransportSCPD), "urn:x", "/scpd.xml")

	instance := doc.Actions["Play"].ArgumentsIn[0]
	if instance.DataType != "ui4" {
		t.Errorf("InstanceID dataType = %q, want ui4", instance.DataType)
	}
	if instance.DefaultValue != "0" || instance.Minimum != "0" || instance.Maximum != "255" {
		t.Errorf("InstanceID constraints = default %q min %q max %q", instance.DefaultValue, instance.Minimum, instance.Maximum)
	}

	state := doc.Actions["GetTransportInfo"].ArgumentsOut[0]
	if state.DataType != "string" {
		t.Errorf("CurrentTransportState dataType = %q, want string", state.DataType)
	}
	if len(state.AllowedValues) != 3 {
		t.Errorf("allowed values = %v, want 3 entries", state.AllowedValues)
	}

	if !doc.StateVariables["TransportState"].SendEvents {
		t.Error("TransportState sendEvents = false, want true")
	}
	if doc.StateVariables["A_ARG_TYPE_InstanceID"].SendEvents {
		t.Error("A_ARG_TYPE_InstanceID sendEvents = true, want false")
	}
}

func TestParseSCPDActionDescriptions(t *testing.T) {
	doc := ParseSCPD([]byte(avTransportSCPD), "urn:x", "/scpd.xml")

	if got := doc.Actions["Play"].Description; got != "Play(InstanceID, Speed)" {
		t.Errorf("Play description = %q, want %q", got, "Play(InstanceID, Speed)")
	}
	want := "GetTransportInfo(InstanceID) returns CurrentTransportState"
	if got := doc.Actions["GetTransportInfo"].Description; got != want {
		t.Errorf("GetTransportInfo description = %q, want %q", got, want)
	}

	bare := ParseSCPD([]byte(`<scpd><actionList><action><name>Stop</name></action></actionList></scpd>`), "urn:x", "/scpd.xml")
	if got := bare.Actions["Stop"].Description; got != "Stop()" {
		t.Errorf("Stop description = %q, want %q", got, "Stop()")
	}
}

func TestParseSCPDMalformedActionIsolated(t *testing.T) {
	doc := ParseSCPD([]byte(`<scpd>
  <actionList>
    <action><name>Stop</name></action>
    <action><description>no name here</description></action>
    <action><name>Pause</name></action>
  </actionList>
</scpd>`), "urn:x", "/scpd.xml")

	if !doc.ParsingSuccess {
		t.Fatal("ParsingSuccess = false; document-level parse did succeed")
	}
	if len(doc.Actions) != 2 {
		t.Errorf("actions = %d, want 2 (malformed one skipped)", len(doc.Actions))
	}
	if _, ok := doc.Actions["Stop"]; !ok {
		t.Error("valid Stop action missing")
	}
	if _, ok := doc.Actions["Pause"]; !ok {
		t.Error("valid Pause action missing")
	}
	if len(doc.ParsingErrors) == 0 {
		t.Error("ParsingErrors empty, want the malformed action recorded")
	}
}

func TestParseSCPDBrokenArgumentKeepsAction(t *testing.T) {
	doc := ParseSCPD([]byte(`<scpd><actionList>
    <action>
      <name>SetVolume</name>
      <argumentList>
        <argument><direction>in</direction></argument>
        <argument><name>DesiredVolume</name><direction>in</direction></argument>
      </argumentList>
    </action>
  </actionList></scpd>`), "urn:x", "/scpd.xml")

	action := doc.Actions["SetVolume"]
	if action == nil {
		t.Fatal("SetVolume action missing")
	}
	if len(action.ArgumentsIn) != 1 {
		t.Errorf("arguments = %d, want 1 (nameless argument skipped)", len(action.ArgumentsIn))
	}
}

func TestParseSCPDUnparseableDocument(t *testing.T) {
	doc := ParseSCPD([]byte("totally not xml"), "urn:x", "/scpd.xml")
	if doc.ParsingSuccess {
		t.Error("ParsingSuccess = true for garbage input")
	}
	if len(doc.ParsingErrors) == 0 {
		t.Error("ParsingErrors empty for garbage input")
	}
	if len(doc.Actions) != 0 {
		t.Errorf("actions = %d, want 0", len(doc.Actions))
	}
}

func TestFetchSCPD(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/xml/AVTransport1.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(avTransportSCPD)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	doc := FetchSCPD(context.Background(), srv.Client(), srv.URL, "/xml/AVTransport1.xml", "urn:schemas-upnp-org:service:AVTransport:1")
	if !doc.ParsingSuccess {
		t.Fatalf("ParsingSuccess = false, errors: %v", doc.ParsingErrors)
	}
	if len(doc.Actions) != 2 {
		t.Errorf("actions = %d, want 2", len(doc.Actions))
	}

	missing := FetchSCPD(context.Background(), srv.Client(), srv.URL, "/xml/missing.xml", "urn:x")
	if missing.ParsingSuccess {
		t.Error("ParsingSuccess = true for 404 SCPD endpoint")
	}
	if len(missing.ParsingErrors) == 0 {
		t.Error("fetch failure not recorded in ParsingErrors")
	}
}

func TestFetchAllSCPDs(t *testing.T) {
	var inflight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cur := inflight.Add(1)
		defer inflight.Add(-1)
		for {
			old := peak.Load()
			if cur <= old || peak.CompareAndSwap(old, cur) {
				break
			}
		}
		time.Sleep(50 * time.Millisecond)
		if r.URL.Path == "/xml/missing.xml" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Write([]byte(avTransportSCPD)) //nolint:errcheck // test server
	}))
	defer srv.Close()

	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatalf("parse test server URL: %v", err)
	}
	port, _ := strconv.Atoi(u.Port()) //nolint:errcheck // httptest always has a port

	dev := &Device{
		IP:   u.Hostname(),
		Port: port,
		Services: []Service{
			{ServiceType: "urn:schemas-upnp-org:service:AVTransport:1", SCPDURL: "/xml/AVTransport1.xml"},
			{ServiceType: "urn:schemas-upnp-org:service:RenderingControl:1", SCPDURL: "/xml/RenderingControl1.xml"},
			{ServiceType: "urn:x:dead", SCPDURL: "/xml/missing.xml"},
			{ServiceType: "urn:x:no-scpd"},
		},
	}

	docs := FetchAllSCPDs(context.Background(), srv.Client(), dev, 4)

	if len(docs) != 3 {
		t.Fatalf("documents = %d, want 3 (service without an SCPD URL skipped)", len(docs))
	}
	for _, st := range []string{
		"urn:schemas-upnp-org:service:AVTransport:1",
		"urn:schemas-upnp-org:service:RenderingControl:1",
	} {
		doc := docs[st]
		if doc == nil || !doc.ParsingSuccess {
			t.Errorf("%s: ParsingSuccess = false, want true", st)
		}
	}
	dead := docs["urn:x:dead"]
	if dead == nil {
		t.Fatal("dead endpoint missing from result map; failures must stay isolated per service")
	}
	if dead.ParsingSuccess || len(dead.ParsingErrors) == 0 {
		t.Errorf("dead endpoint: success=%v errors=%v, want recorded fetch failure", dead.ParsingSuccess, dead.ParsingErrors)
	}

	if peak.Load() < 2 {
		t.Errorf("peak concurrent fetches = %d, want at least 2", peak.Load())
	}
}

func TestSCPDActionNames(t *testing.T) {
	doc := ParseSCPD([]byte(avTransportSCPD), "urn:x", "/scpd.xml")
	names := doc.ActionNames()
	if len(names) != 2 || names[0] != "GetTransportInfo" || names[1] != "Play" {
		t.Errorf("ActionNames() = %v, want sorted [GetTransportInfo Play]", names)
	}
}
