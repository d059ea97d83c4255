// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

// Package element implements a small generic XML element tree.
//
// Elements carry their resolved namespace instead of a prefix, so a tree can
// be moved between documents without any knowledge of the declarations that
// were in scope when it was parsed.
// The stream codec produces one tree per stanza.
package element // import "github.com/witnet/xmpp-rs-sub000/element"

import (
	"encoding/xml"
	"io"
	"strings"
)

// Attr is a single attribute.
// Prefixed attributes keep their prefix in the name (eg. "xml:lang").
type Attr struct {
	Name  string
	Value string
}

// Node is a child of an element: either an *Element or a Text.
type Node interface {
	node()
}

// Text is a character data node.
type Text string

func (Text) node() {}

// Element is an XML element with a resolved namespace, an ordered list of
// attributes, and an ordered list of child nodes.
type Element struct {
	name      string
	namespace string
	attrs     []Attr
	children  []Node
}

func (*Element) node() {}

// New creates an element with the given local name, namespace, and
// attributes.
func New(name, namespace string, attrs ...Attr) *Element {
	e := &Element{
		name:      name,
		namespace: namespace,
	}
	for _, a := range attrs {
		e.SetAttr(a.Name, a.Value)
	}
	return e
}

// Name returns the local name of the element.
func (e *Element) Name() string {
	return e.name
}

// Namespace returns the resolved namespace of the element.
func (e *Element) Namespace() string {
	return e.namespace
}

// Is reports whether the element has the given name and namespace.
func (e *Element) Is(name, namespace string) bool {
	return e != nil && e.name == name && e.namespace == namespace
}

// Attr returns the value of the named attribute or the empty string if it is
// not present.
func (e *Element) Attr(key string) string {
	v, _ := e.LookupAttr(key)
	return v
}

// LookupAttr is like Attr but also reports whether the attribute was present.
func (e *Element) LookupAttr(key string) (string, bool) {
	for _, a := range e.attrs {
		if a.Name == key {
			return a.Value, true
		}
	}
	return "", false
}

// SetAttr sets the named attribute, replacing any existing value and keeping
// its position.
// It returns the element so that calls can be chained.
func (e *Element) SetAttr(key, value string) *Element {
	for i, a := range e.attrs {
		if a.Name == key {
			e.attrs[i].Value = value
			return e
		}
	}
	e.attrs = append(e.attrs, Attr{Name: key, Value: value})
	return e
}

// Attrs returns a copy of the attributes in document order.
func (e *Element) Attrs() []Attr {
	attrs := make([]Attr, len(e.attrs))
	copy(attrs, e.attrs)
	return attrs
}

// Nodes returns the child nodes (elements and text) in document order.
// The returned slice must not be modified.
func (e *Element) Nodes() []Node {
	return e.children
}

// Children returns the child elements in document order, skipping text.
func (e *Element) Children() []*Element {
	var children []*Element
	for _, n := range e.children {
		if c, ok := n.(*Element); ok {
			children = append(children, c)
		}
	}
	return children
}

// Child returns the first child element with the given name and namespace or
// nil if there is none.
func (e *Element) Child(name, namespace string) *Element {
	for _, n := range e.children {
		if c, ok := n.(*Element); ok && c.Is(name, namespace) {
			return c
		}
	}
	return nil
}

// AppendChild adds c as the last child of e and returns c.
func (e *Element) AppendChild(c *Element) *Element {
	e.children = append(e.children, c)
	return c
}

// AppendText adds character data as the last child of e.
// If the last child is already text the two are merged, so a tree built from
// text that arrived in several pieces is identical to one built from a single
// piece.
func (e *Element) AppendText(s string) {
	if s == "" {
		return
	}
	if l := len(e.children); l > 0 {
		if t, ok := e.children[l-1].(Text); ok {
			e.children[l-1] = t + Text(s)
			return
		}
	}
	e.children = append(e.children, Text(s))
}

// Text returns the concatenation of the element's direct text children.
func (e *Element) Text() string {
	var b strings.Builder
	for _, n := range e.children {
		if t, ok := n.(Text); ok {
			b.WriteString(string(t))
		}
	}
	return b.String()
}

// Equal reports whether two trees have the same names, namespaces, attribute
// sets, and ordered children.
// Whitespace-only text nodes are ignored.
func (e *Element) Equal(o *Element) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.name != o.name || e.namespace != o.namespace || len(e.attrs) != len(o.attrs) {
		return false
	}
	for _, a := range e.attrs {
		v, ok := o.LookupAttr(a.Name)
		if !ok || v != a.Value {
			return false
		}
	}
	ec, oc := significant(e.children), significant(o.children)
	if len(ec) != len(oc) {
		return false
	}
	for i := range ec {
		switch n := ec[i].(type) {
		case Text:
			t, ok := oc[i].(Text)
			if !ok || t != n {
				return false
			}
		case *Element:
			c, ok := oc[i].(*Element)
			if !ok || !n.Equal(c) {
				return false
			}
		}
	}
	return true
}

func significant(nodes []Node) []Node {
	out := make([]Node, 0, len(nodes))
	for _, n := range nodes {
		if t, ok := n.(Text); ok && strings.TrimSpace(string(t)) == "" {
			continue
		}
		out = append(out, n)
	}
	return out
}

// AppendXML appends the serialized element to dst and returns the extended
// buffer.
// A default namespace declaration is written on the element itself and on
// every descendant whose namespace differs from its parent's.
func (e *Element) AppendXML(dst []byte) []byte {
	return e.appendXML(dst, "")
}

func (e *Element) appendXML(dst []byte, parentNS string) []byte {
	dst = append(dst, '<')
	dst = append(dst, e.name...)
	if e.namespace != parentNS {
		dst = append(dst, ` xmlns="`...)
		dst = AppendEscaped(dst, e.namespace)
		dst = append(dst, '"')
	}
	for _, a := range e.attrs {
		dst = append(dst, ' ')
		dst = append(dst, a.Name...)
		dst = append(dst, `="`...)
		dst = AppendEscaped(dst, a.Value)
		dst = append(dst, '"')
	}
	if len(e.children) == 0 {
		return append(dst, "/>"...)
	}
	dst = append(dst, '>')
	for _, n := range e.children {
		switch n := n.(type) {
		case *Element:
			dst = n.appendXML(dst, e.namespace)
		case Text:
			dst = AppendEscaped(dst, string(n))
		}
	}
	dst = append(dst, "</"...)
	dst = append(dst, e.name...)
	return append(dst, '>')
}

// WriteTo serializes the element to w.
func (e *Element) WriteTo(w io.Writer) (int64, error) {
	n, err := w.Write(e.AppendXML(nil))
	return int64(n), err
}

// String returns the serialized element.
func (e *Element) String() string {
	return string(e.AppendXML(nil))
}

// MarshalXML satisfies the xml.Marshaler interface.
// The start element is ignored.
func (e *Element) MarshalXML(enc *xml.Encoder, _ xml.StartElement) error {
	_, err := e.WriteXML(enc)
	if err != nil {
		return err
	}
	return enc.Flush()
}
