package upnp

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"sync"

	"github.com/dabrowsk/upcast/internal/xmlutil"
)

// FetchSCPD retrieves and parses the SCPD document for one service.
// The scpdURL may be relative; it is resolved against baseURL.
//
// A failed fetch or an unparseable document yields a document with
// ParsingSuccess=false and the failure recorded in ParsingErrors, not an
// error return: callers iterate services and a dead SCPD endpoint on one
// service must not look different from a device-level failure.
func FetchSCPD(ctx context.Context, client *http.Client, baseURL, scpdURL, serviceType string) *SCPDDocument {
	doc := newSCPDDocument(serviceType, scpdURL)

	resolved := ResolveURL(baseURL, scpdURL)
	if resolved == "" {
		doc.ParsingErrors = append(doc.ParsingErrors, "no SCPD URL declared")
		return doc
	}

	body, err := fetch(ctx, client, resolved)
	if err != nil {
		doc.ParsingErrors = append(doc.ParsingErrors, fmt.Sprintf("fetch: %v", err))
		return doc
	}

	return parseSCPDInto(doc, body)
}

// ParseSCPD parses a raw SCPD document for the given service.
func ParseSCPD(raw []byte, serviceType, scpdURL string) *SCPDDocument {
	return parseSCPDInto(newSCPDDocument(serviceType, scpdURL), raw)
}

// FetchAllSCPDs fetches the SCPD of every flattened service that
// declares one, running one concurrent fetch+parse per service bounded
// by concurrency. The result is keyed by serviceType.
//
// A device with several dead SCPD endpoints costs one fetch timeout,
// not one per service. Failure isolation follows FetchSCPD: a dead
// endpoint yields a document with ParsingSuccess=false, never an
// absent key.
func FetchAllSCPDs(ctx context.Context, client *http.Client, dev *Device, concurrency int) map[string]*SCPDDocument {
	if concurrency < 1 {
		concurrency = 1
	}

	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	docs := make(map[string]*SCPDDocument)

	base := dev.BaseURL()
	for _, svc := range dev.AllServices() {
		if svc.SCPDURL == "" {
			continue
		}
		wg.Add(1)
		sem <- struct{}{}
		go func(svc Service) {
			defer wg.Done()
			defer func() { <-sem }()

			doc := FetchSCPD(ctx, client, base, svc.SCPDURL, svc.ServiceType)
			mu.Lock()
			docs[svc.ServiceType] = doc
			mu.Unlock()
		}(svc)
	}
	wg.Wait()

	return docs
}

func newSCPDDocument(serviceType, scpdURL string) *SCPDDocument {
	return &SCPDDocument{
		ServiceType:    serviceType,
		SCPDURL:        scpdURL,
		Actions:        make(map[string]*SOAPAction),
		StateVariables: make(map[string]*StateVariable),
	}
}

// parseSCPDInto populates a document from raw XML. Per-action and
// per-state-variable failures are isolated: they are appended to
// ParsingErrors and parsing continues with the remaining entries.
// ParsingSuccess reflects only the document-level XML parse.
func parseSCPDInto(doc *SCPDDocument, raw []byte) *SCPDDocument {
	root, err := xmlutil.ParseWithFallbacks(raw)
	if err != nil {
		doc.ParsingErrors = append(doc.ParsingErrors, fmt.Sprintf("document parse: %v", err))
		return doc
	}
	doc.ParsingSuccess = true

	if sv := root.Child("specVersion"); sv != nil {
		doc.SpecVersion.Major, _ = strconv.Atoi(sv.ChildText("major")) //nolint:errcheck // Missing version reads as 0
		doc.SpecVersion.Minor, _ = strconv.Atoi(sv.ChildText("minor")) //nolint:errcheck // Missing version reads as 0
	}

	// State variables first: actions reference them during resolution.
	if table := root.Find("serviceStateTable"); table != nil {
		for _, vn := range table.Children {
			if vn.Name != "stateVariable" {
				continue
			}
			sv, err := parseStateVariable(vn)
			if err != nil {
				doc.ParsingErrors = append(doc.ParsingErrors, fmt.Sprintf("stateVariable: %v", err))
				continue
			}
			doc.StateVariables[sv.Name] = sv
		}
	}

	if list := root.Find("actionList"); list != nil {
		for _, an := range list.Children {
			if an.Name != "action" {
				continue
			}
			action, err := parseAction(an)
			if err != nil {
				doc.ParsingErrors = append(doc.ParsingErrors, fmt.Sprintf("action: %v", err))
				continue
			}
			doc.Actions[action.Name] = action
		}
	}

	resolveArguments(doc)
	return doc
}

// parseAction parses a single <action> entry. An action without a name
// is malformed and rejected; broken individual arguments are skipped.
func parseAction(an *xmlutil.Node) (*SOAPAction, error) {
	name := an.ChildText("name")
	if name == "" {
		return nil, fmt.Errorf("missing name")
	}

	action := &SOAPAction{Name: name}

	args := an.Child("argumentList")
	if args == nil {
		action.Description = describeAction(action)
		return action, nil
	}
	for _, argn := range args.Children {
		if argn.Name != "argument" {
			continue
		}
		arg := ActionArgument{
			Name:                 argn.ChildText("name"),
			Direction:            strings.ToLower(argn.ChildText("direction")),
			RelatedStateVariable: argn.ChildText("relatedStateVariable"),
		}
		if arg.Name == "" {
			// Skip the broken argument, keep the action.
			continue
		}
		switch arg.Direction {
		case "out":
			action.ArgumentsOut = append(action.ArgumentsOut, arg)
		default:
			// Unknown or missing direction is treated as input; devices
			// occasionally omit the element entirely.
			arg.Direction = "in"
			action.ArgumentsIn = append(action.ArgumentsIn, arg)
		}
	}
	action.Description = describeAction(action)
	return action, nil
}

// describeAction renders a signature summary for display and generated
// profiles, e.g. "SetVolume(InstanceID, Channel, DesiredVolume)" or
// "GetVolume(InstanceID, Channel) returns CurrentVolume".
func describeAction(a *SOAPAction) string {
	names := func(args []ActionArgument) string {
		parts := make([]string, len(args))
		for i, arg := range args {
			parts[i] = arg.Name
		}
		return strings.Join(parts, ", ")
	}
	desc := a.Name + "(" + names(a.ArgumentsIn) + ")"
	if len(a.ArgumentsOut) > 0 {
		desc += " returns " + names(a.ArgumentsOut)
	}
	return desc
}

// parseStateVariable parses a single <stateVariable> entry.
func parseStateVariable(vn *xmlutil.Node) (*StateVariable, error) {
	name := vn.ChildText("name")
	if name == "" {
		return nil, fmt.Errorf("missing name")
	}

	sv := &StateVariable{
		Name:         name,
		DataType:     vn.ChildText("dataType"),
		SendEvents:   !strings.EqualFold(vn.Attr("sendEvents"), "no"),
		DefaultValue: vn.ChildText("defaultValue"),
	}

	if avl := vn.Child("allowedValueList"); avl != nil {
		for _, av := range avl.Children {
			if av.Name == "allowedValue" {
				sv.AllowedValues = append(sv.AllowedValues, strings.TrimSpace(av.Text))
			}
		}
	}

	if avr := vn.Child("allowedValueRange"); avr != nil {
		sv.Minimum = avr.ChildText("minimum")
		sv.Maximum = avr.ChildText("maximum")
		sv.Step = avr.ChildText("step")
	}

	return sv, nil
}

// resolveArguments copies each referenced state variable's type and
// constraints onto the arguments that declare it. This happens exactly
// once, after the whole document has parsed, so forward references in
// the document order are handled.
func resolveArguments(doc *SCPDDocument) {
	resolve := func(args []ActionArgument) {
		for i := range args {
			sv, ok := doc.StateVariables[args[i].RelatedStateVariable]
			if !ok {
				continue
			}
			args[i].DataType = sv.DataType
			args[i].AllowedValues = sv.AllowedValues
			args[i].DefaultValue = sv.DefaultValue
			args[i].Minimum = sv.Minimum
			args[i].Maximum = sv.Maximum
		}
	}
	for _, action := range doc.Actions {
		resolve(action.ArgumentsIn)
		resolve(action.ArgumentsOut)
	}
}
