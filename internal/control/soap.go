package control

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/dabrowsk/upcast/internal/xmlutil"
)

// maxSOAPResponseSize bounds how much of a control response is read.
const maxSOAPResponseSize = 256 * 1024

// SOAPClient issues UPnP control actions as SOAP 1.1 requests.
type SOAPClient struct {
	httpClient *http.Client
	stealth    *Stealth
}

// NewSOAPClient wraps an HTTP client for SOAP dispatch. Stealth may be
// nil.
func NewSOAPClient(client *http.Client, stealth *Stealth) *SOAPClient {
	if client == nil {
		client = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &SOAPClient{httpClient: client, stealth: stealth}
}

// BuildEnvelope renders a SOAP 1.1 envelope invoking action on
// serviceType. Arguments are emitted in sorted name order so envelopes
// are deterministic.
func BuildEnvelope(serviceType, action string, args map[string]string) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="utf-8"?>`)
	b.WriteString(`<s:Envelope xmlns:s="http://schemas.xmlsoap.org/soap/envelope/" `)
	b.WriteString(`s:encodingStyle="http://schemas.xmlsoap.org/soap/encoding/">`)
	b.WriteString(`<s:Body>`)
	fmt.Fprintf(&b, `<u:%s xmlns:u="%s">`, action, serviceType)

	names := make([]string, 0, len(args))
	for name := range args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		b.WriteString("<" + name + ">")
		xml.EscapeText(&b, []byte(args[name])) //nolint:errcheck // strings.Builder never fails
		b.WriteString("</" + name + ">")
	}

	fmt.Fprintf(&b, `</u:%s>`, action)
	b.WriteString(`</s:Body></s:Envelope>`)
	return b.String()
}

// Send POSTs a SOAP action to the device and returns the HTTP status
// and response body. Device-reported SOAP faults are surfaced as a
// ProtocolFault even when the HTTP status is 200, since some firmware
// answers faults with a success status.
func (c *SOAPClient) Send(ctx context.Context, host string, port int, controlURL, serviceType, action string, args map[string]string, useTLS bool) (int, string, error) {
	scheme := "http"
	if useTLS {
		scheme = "https"
	}
	endpoint := fmt.Sprintf("%s://%s%s", scheme, net.JoinHostPort(host, strconv.Itoa(port)), controlURL)
	if strings.HasPrefix(controlURL, "http://") || strings.HasPrefix(controlURL, "https://") {
		endpoint = controlURL
	}

	envelope := BuildEnvelope(serviceType, action, args)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBufferString(envelope))
	if err != nil {
		return 0, "", fmt.Errorf("building request for %s: %w", action, err)
	}
	req.Header.Set("Content-Type", `text/xml; charset="utf-8"`)
	req.Header.Set("SOAPAction", fmt.Sprintf("%q", serviceType+"#"+action))
	req.Header.Set("Connection", "close")
	if err := c.stealth.Apply(ctx, req); err != nil {
		return 0, "", &TransportError{Op: action, Host: host, Err: err}
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, "", &TransportError{Op: action, Host: host, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxSOAPResponseSize))
	if err != nil {
		return resp.StatusCode, "", &TransportError{Op: action, Host: host, Err: err}
	}
	body := string(raw)

	if fault := parseFault(raw, action, resp.StatusCode); fault != nil {
		return resp.StatusCode, body, fault
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return resp.StatusCode, body, &ProtocolFault{
			Action:      action,
			Description: http.StatusText(resp.StatusCode),
			HTTPStatus:  resp.StatusCode,
		}
	}
	return resp.StatusCode, body, nil
}

// parseFault extracts an embedded SOAP fault from a response body, or
// returns nil when the body carries none.
func parseFault(raw []byte, action string, httpStatus int) *ProtocolFault {
	if !bytes.Contains(raw, []byte("Fault")) {
		return nil
	}
	root, err := xmlutil.ParseWithFallbacks(raw)
	if err != nil {
		return nil
	}
	fault := root.Find("Fault")
	if fault == nil {
		return nil
	}

	pf := &ProtocolFault{Action: action, HTTPStatus: httpStatus}
	if code := fault.Find("errorCode"); code != nil {
		if n, err := strconv.Atoi(strings.TrimSpace(code.Text)); err == nil {
			pf.Code = n
		}
	}
	if desc := fault.Find("errorDescription"); desc != nil && strings.TrimSpace(desc.Text) != "" {
		pf.Description = strings.TrimSpace(desc.Text)
	} else if pf.Code != 0 {
		pf.Description = DescribeUPnPError(pf.Code)
	} else if fs := fault.Find("faultstring"); fs != nil {
		pf.Description = strings.TrimSpace(fs.Text)
	}
	return pf
}
