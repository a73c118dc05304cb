package upnp

import (
	"sort"
	"strings"
)

// Service is one controllable service on a device. The serviceType URN
// plus the controlURL together identify a unique control endpoint.
type Service struct {
	ServiceType string `json:"service_type"`
	ServiceID   string `json:"service_id"`
	ControlURL  string `json:"control_url"`
	EventSubURL string `json:"event_sub_url,omitempty"`
	SCPDURL     string `json:"scpd_url,omitempty"`
}

// EmbeddedDevice is a sub-device declared in a description's <deviceList>.
// Multi-service speakers commonly nest their media services one or two
// levels down; the parser keeps the nesting for display but flattens the
// services onto the root Device for matching and control.
type EmbeddedDevice struct {
	DeviceType   string           `json:"device_type"`
	FriendlyName string           `json:"friendly_name"`
	UDN          string           `json:"udn"`
	Services     []Service        `json:"services,omitempty"`
	Embedded     []EmbeddedDevice `json:"embedded,omitempty"`
}

// Device is a parsed UPnP device description.
//
// IP is always non-empty for a Device produced by this package; Services
// may be empty. EmbeddedDevices hold the original nesting, while
// AllServices returns the effective flattened service set.
type Device struct {
	IP           string `json:"ip"`
	Port         int    `json:"port"`
	UseTLS       bool   `json:"use_tls,omitempty"`
	Location     string `json:"location,omitempty"`
	FriendlyName string `json:"friendly_name"`
	Manufacturer string `json:"manufacturer"`
	ModelName    string `json:"model_name"`
	ModelNumber  string `json:"model_number,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	DeviceType   string `json:"device_type"`
	UDN          string `json:"udn"`

	// ServerHeader is the SSDP SERVER header observed during discovery,
	// if the device was found via SSDP. Description parsing leaves it empty.
	ServerHeader string `json:"server_header,omitempty"`

	Services        []Service        `json:"services"`
	EmbeddedDevices []EmbeddedDevice `json:"embedded_devices,omitempty"`
}

// AllServices returns the device's services plus the services of every
// embedded device, in declaration order. Matching and control always
// operate on this flattened set.
func (d *Device) AllServices() []Service {
	out := make([]Service, 0, len(d.Services))
	out = append(out, d.Services...)
	var walk func(devs []EmbeddedDevice)
	walk = func(devs []EmbeddedDevice) {
		for _, ed := range devs {
			out = append(out, ed.Services...)
			walk(ed.Embedded)
		}
	}
	walk(d.EmbeddedDevices)
	return out
}

// FindService returns the first service in the flattened set whose
// serviceType contains the given substring (case-sensitive URN fragment,
// e.g. "AVTransport"). Returns nil if no service matches.
func (d *Device) FindService(typeFragment string) *Service {
	for _, s := range d.AllServices() {
		if strings.Contains(strings.ToLower(s.ServiceType), strings.ToLower(typeFragment)) {
			svc := s
			return &svc
		}
	}
	return nil
}

// SpecVersion is the UPnP architecture version declared by an SCPD.
type SpecVersion struct {
	Major int `json:"major"`
	Minor int `json:"minor"`
}

// ActionArgument is one argument of a SOAP action. The DataType,
// AllowedValues, DefaultValue, Minimum and Maximum fields are resolved
// from the referenced state variable in a single post-parse pass.
type ActionArgument struct {
	Name                 string   `json:"name"`
	Direction            string   `json:"direction"` // "in" or "out"
	RelatedStateVariable string   `json:"related_state_variable,omitempty"`
	DataType             string   `json:"data_type,omitempty"`
	AllowedValues        []string `json:"allowed_values,omitempty"`
	DefaultValue         string   `json:"default_value,omitempty"`
	Minimum              string   `json:"minimum,omitempty"`
	Maximum              string   `json:"maximum,omitempty"`
}

// SOAPAction is one invocable action with its declared arguments.
// Argument order is preserved as declared in the document.
type SOAPAction struct {
	Name         string           `json:"name"`
	Description  string           `json:"description,omitempty"`
	ArgumentsIn  []ActionArgument `json:"arguments_in,omitempty"`
	ArgumentsOut []ActionArgument `json:"arguments_out,omitempty"`
}

// StateVariable is one entry of a service's state table.
type StateVariable struct {
	Name          string   `json:"name"`
	DataType      string   `json:"data_type"`
	SendEvents    bool     `json:"send_events"`
	AllowedValues []string `json:"allowed_values,omitempty"`
	DefaultValue  string   `json:"default_value,omitempty"`
	Minimum       string   `json:"minimum,omitempty"`
	Maximum       string   `json:"maximum,omitempty"`
	Step          string   `json:"step,omitempty"`
}

// SCPDDocument is a fully parsed Service Control Point Description.
//
// ParsingSuccess reports whether the document-level fetch and XML parse
// succeeded; it is independent of individual action or state-variable
// failures, which are recorded in ParsingErrors. The document is
// immutable once parsed.
type SCPDDocument struct {
	ServiceType    string                    `json:"service_type"`
	SCPDURL        string                    `json:"scpd_url"`
	SpecVersion    SpecVersion               `json:"spec_version"`
	Actions        map[string]*SOAPAction    `json:"actions"`
	StateVariables map[string]*StateVariable `json:"state_variables"`
	ParsingSuccess bool                      `json:"parsing_success"`
	ParsingErrors  []string                  `json:"parsing_errors,omitempty"`
}

// ActionNames returns the sorted list of action names, for display and
// capability summaries.
func (d *SCPDDocument) ActionNames() []string {
	names := make([]string, 0, len(d.Actions))
	for name := range d.Actions {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
