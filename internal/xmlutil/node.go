package xmlutil

import "strings"

// Node is a single element in a parsed XML tree.
//
// Names are always local names: namespace prefixes are removed during
// parsing so lookups can use the plain tag name regardless of how the
// device declared (or failed to declare) its namespaces.
type Node struct {
	// Name is the local element name without any namespace prefix.
	Name string

	// Attrs holds the element's attributes keyed by local attribute name.
	Attrs map[string]string

	// Text is the concatenated, trimmed character data of the element.
	Text string

	// Children are the element's child elements in document order.
	Children []*Node
}

// Find returns the first descendant element with the given local name,
// searching depth-first. Returns nil if no such element exists.
func (n *Node) Find(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	for _, c := range n.Children {
		if found := c.Find(name); found != nil {
			return found
		}
	}
	return nil
}

// FindAll returns all descendant elements with the given local name
// in document order.
func (n *Node) FindAll(name string) []*Node {
	if n == nil {
		return nil
	}
	var out []*Node
	for _, c := range n.Children {
		if c.Name == name {
			out = append(out, c)
		}
		out = append(out, c.FindAll(name)...)
	}
	return out
}

// Child returns the first direct child with the given local name,
// or nil if the element has no such child.
func (n *Node) Child(name string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if c.Name == name {
			return c
		}
	}
	return nil
}

// ChildText returns the trimmed text of the first direct child with the
// given local name, or "" if the child is absent. Missing optional fields
// in device XML therefore read as empty strings rather than errors.
func (n *Node) ChildText(name string) string {
	c := n.Child(name)
	if c == nil {
		return ""
	}
	return strings.TrimSpace(c.Text)
}

// Attr returns the value of the named attribute, or "" if absent.
func (n *Node) Attr(name string) string {
	if n == nil {
		return ""
	}
	return n.Attrs[name]
}
