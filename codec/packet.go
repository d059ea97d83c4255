// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"github.com/witnet/xmpp-rs-sub000/element"
)

// Packet is anything that can be sent or received on an XML stream.
// It is always one of StreamStart, Stanza, Text, or StreamEnd.
type Packet interface {
	packet()
}

// StreamStart is the opening tag of the stream root.
// Attributes are kept in document order under their qualified names,
// including namespace declarations such as "xmlns" and "xmlns:stream".
type StreamStart struct {
	Attrs []element.Attr
}

// Attr returns the value of the named attribute or the empty string.
func (s StreamStart) Attr(name string) string {
	v, _ := s.LookupAttr(name)
	return v
}

// LookupAttr is like Attr but also reports whether the attribute was present.
func (s StreamStart) LookupAttr(name string) (string, bool) {
	for _, a := range s.Attrs {
		if a.Name == name {
			return a.Value, true
		}
	}
	return "", false
}

// Stanza is a complete top-level element (a stanza or a nonza).
type Stanza struct {
	*element.Element
}

// Text is character data found between top-level elements, usually
// whitespace keepalives.
type Text string

// StreamEnd is the closing tag of the stream root.
type StreamEnd struct{}

func (StreamStart) packet() {}
func (Stanza) packet()      {}
func (Text) packet()        {}
func (StreamEnd) packet()   {}
