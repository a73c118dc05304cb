package xmlutil

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"
	"unicode/utf8"
)

// Sanitize removes byte sequences that commonly break XML decoders in
// device-generated documents: ASCII control characters (other than tab,
// newline and carriage return), invalid UTF-8 sequences, and any garbage
// before the first '<'.
func Sanitize(raw []byte) []byte {
	// Drop everything before the first '<'. Some firmware prepends a BOM,
	// whitespace or stray HTTP framing to the document body.
	if i := bytes.IndexByte(raw, '<'); i > 0 {
		raw = raw[i:]
	}

	out := make([]byte, 0, len(raw))
	for i := 0; i < len(raw); {
		r, size := utf8.DecodeRune(raw[i:])
		if r == utf8.RuneError && size == 1 {
			i++
			continue
		}
		if r < 0x20 && r != '\t' && r != '\n' && r != '\r' {
			i += size
			continue
		}
		out = append(out, raw[i:i+size]...)
		i += size
	}
	return out
}

// StripNamespaces removes namespace declarations and tag prefixes so that
// element lookups can use plain local names. It rewrites "<ns:tag>" to
// "<tag>" and drops xmlns attributes; character data is left untouched.
func StripNamespaces(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inTag := false
	var quote byte // non-zero while inside a quoted attribute value
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
			b.WriteByte(c)
		case c == '<':
			inTag = true
			b.WriteByte(c)
			// Strip the prefix from the element name itself.
			j := i + 1
			if j < len(s) && (s[j] == '/' || s[j] == '?') {
				b.WriteByte(s[j])
				j++
			}
			name := j
			for name < len(s) && s[name] != '>' && s[name] != ' ' && s[name] != '\t' && s[name] != '\r' && s[name] != '\n' && s[name] != '/' {
				name++
			}
			tag := s[j:name]
			if colon := strings.IndexByte(tag, ':'); colon >= 0 {
				tag = tag[colon+1:]
			}
			b.WriteString(tag)
			i = name - 1
		case c == '>':
			inTag = false
			b.WriteByte(c)
		case inTag && (c == '"' || c == '\''):
			// Quoted attribute value: taken verbatim, so a '>' or the
			// text "xmlns" inside it cannot derail the scan.
			quote = c
			b.WriteByte(c)
		case inTag && c == 'x' && strings.HasPrefix(s[i:], "xmlns"):
			// Skip the whole xmlns or xmlns:prefix attribute.
			j := i + len("xmlns")
			if j < len(s) && s[j] == ':' {
				for j < len(s) && s[j] != '=' {
					j++
				}
			}
			// Skip ="value"
			for j < len(s) && s[j] != '"' && s[j] != '\'' {
				j++
			}
			if j < len(s) {
				quote := s[j]
				j++
				for j < len(s) && s[j] != quote {
					j++
				}
			}
			i = j
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// Parse performs a single strict parse of the document and returns the
// root element. Most callers want ParseWithFallbacks instead.
func Parse(raw []byte) (*Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyDocument
	}
	root, err := decode(raw, true)
	if err != nil {
		return nil, &ParseError{Stage: "strict", Err: err}
	}
	if root == nil {
		return nil, ErrNoRoot
	}
	return root, nil
}

// ParseWithFallbacks parses a device-supplied XML document, degrading
// gracefully through three stages: strict parse, lenient parse of the
// sanitised document, then partial extraction of whatever decoded before
// the first fatal error. It returns the first structurally valid tree.
//
// Firmware reliably ships non-conformant XML; requiring strict parsing
// here would reject real devices on the network.
func ParseWithFallbacks(raw []byte) (*Node, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, ErrEmptyDocument
	}

	// Stage 1: strict.
	if root, err := decode(raw, true); err == nil && root != nil {
		return root, nil
	}

	// Stage 2: lenient parse of the cleaned document.
	cleaned := []byte(StripNamespaces(string(Sanitize(raw))))
	var lenientErr error
	if root, err := decode(cleaned, false); err == nil && root != nil {
		return root, nil
	} else {
		lenientErr = err
	}

	// Stage 3: keep whatever decoded before the failure.
	if root := decodePartial(cleaned); root != nil {
		return root, nil
	}

	if lenientErr != nil {
		return nil, &ParseError{Stage: "lenient", Err: lenientErr}
	}
	return nil, ErrNoRoot
}

// decode runs the xml.Decoder token loop and builds a Node tree.
// Local names are used throughout, which drops namespace prefixes that
// survived sanitisation.
func decode(raw []byte, strict bool) (*Node, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = strict
	if !strict {
		dec.AutoClose = xml.HTMLAutoClose
	}
	// Accept documents that declare unusual charsets; device XML is
	// almost always ASCII-compatible regardless of the declaration.
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) == 0 {
				// Multiple top-level elements: keep the first as root,
				// parse-but-discard the rest to stay balanced.
				if root == nil {
					root = n
				}
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.Text = strings.TrimSpace(top.Text)
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	if len(stack) != 0 {
		// Unclosed elements: tolerate in lenient mode, reject in strict.
		if strict {
			return nil, io.ErrUnexpectedEOF
		}
		for _, n := range stack {
			n.Text = strings.TrimSpace(n.Text)
		}
	}
	return root, nil
}

// decodePartial scans tokens until the first fatal decoder error and
// returns the tree built so far, or nil if not even a root element was
// recovered. Used as the last-resort stage for truncated documents.
func decodePartial(raw []byte) *Node {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.CharsetReader = func(_ string, input io.Reader) (io.Reader, error) {
		return input, nil
	}

	var root *Node
	var stack []*Node

	for {
		tok, err := dec.Token()
		if err != nil {
			break // EOF or fatal error: keep what we have
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &Node{Name: t.Name.Local}
			if len(t.Attr) > 0 {
				n.Attrs = make(map[string]string, len(t.Attr))
				for _, a := range t.Attr {
					n.Attrs[a.Name.Local] = a.Value
				}
			}
			if len(stack) == 0 {
				if root == nil {
					root = n
				}
			} else {
				parent := stack[len(stack)-1]
				parent.Children = append(parent.Children, n)
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				top := stack[len(stack)-1]
				top.Text = strings.TrimSpace(top.Text)
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].Text += string(t)
			}
		}
	}

	for _, n := range stack {
		n.Text = strings.TrimSpace(n.Text)
	}
	return root
}
