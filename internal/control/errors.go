package control

import (
	"errors"
	"fmt"
)

// Sentinel errors for capability gaps. Callers treat both as expected
// outcomes rather than failures.
var (
	// ErrNotSupported is returned when a protocol cannot express the
	// requested operation at all (seek over ECP, for example).
	ErrNotSupported = errors.New("control: operation not supported")

	// ErrNotImplemented is returned by stub adapters for protocols this
	// engine declares but does not speak.
	ErrNotImplemented = errors.New("control: protocol not implemented")

	// ErrNoControlURL is returned when the resolved control info lacks
	// the service URL an operation needs.
	ErrNoControlURL = errors.New("control: missing control URL")
)

// TransportError wraps a network-level failure: connection refused,
// timeout, DNS. The device never saw or never answered the request.
type TransportError struct {
	Op   string
	Host string
	Err  error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("control: %s %s: %v", e.Op, e.Host, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ProtocolFault is a device-reported failure: a SOAP fault or a vendor
// error payload carried on an otherwise delivered response.
type ProtocolFault struct {
	Action      string
	Code        int
	Description string
	HTTPStatus  int
}

func (e *ProtocolFault) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("control: %s failed: %d %s", e.Action, e.Code, e.Description)
	}
	return fmt.Sprintf("control: %s failed: %s", e.Action, e.Description)
}

// upnpErrorDescriptions maps UPnP error codes to their standard
// meanings, including the AVTransport 7xx range.
var upnpErrorDescriptions = map[int]string{
	401: "Invalid Action",
	402: "Invalid Args",
	501: "Action Failed",
	600: "Argument Value Invalid",
	601: "Argument Value Out of Range",
	602: "Optional Action Not Implemented",
	603: "Out of Memory",
	604: "Human Intervention Required",
	605: "String Argument Too Long",
	701: "Transition Not Available",
	702: "No Contents",
	703: "Read Error",
	704: "Format Not Supported For Playback",
	705: "Transport Is Locked",
	706: "Write Error",
	707: "Media Protected Or Not Writable",
	708: "Format Not Supported For Recording",
	709: "Media Full",
	710: "Seek Mode Not Supported",
	711: "Illegal Seek Target",
	712: "Play Mode Not Supported",
	713: "Record Quality Not Supported",
	714: "Illegal MIME Type",
	715: "Content Busy",
	716: "Resource Not Found",
	717: "Play Speed Not Supported",
	718: "Invalid InstanceID",
}

// DescribeUPnPError returns the standard description for a UPnP error
// code, or a generic label for unknown codes.
func DescribeUPnPError(code int) string {
	if desc, ok := upnpErrorDescriptions[code]; ok {
		return desc
	}
	return "Unknown Error"
}
