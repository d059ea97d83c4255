// Copyright 2020 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package stream

import (
	"github.com/witnet/xmpp-rs-sub000/codec"
	"github.com/witnet/xmpp-rs-sub000/element"
	"github.com/witnet/xmpp-rs-sub000/jid"
)

// Info contains metadata extracted from a stream header.
type Info struct {
	To      jid.JID
	From    jid.JID
	ID      string
	Version Version
	Lang    string

	// XMLNS is the default content namespace, for example "jabber:client".
	XMLNS string

	// StreamNS is the namespace bound to the "stream" prefix.
	StreamNS string
}

// FromStreamStart sets the values of i from a decoded stream header.
// Attributes that are missing are left empty; a malformed to or from address or
// version is an error.
func (i *Info) FromStreamStart(start codec.StreamStart) error {
	var err error
	for _, a := range start.Attrs {
		switch a.Name {
		case "xmlns":
			i.XMLNS = a.Value
		case "xmlns:stream":
			i.StreamNS = a.Value
		case "id":
			i.ID = a.Value
		case "xml:lang":
			i.Lang = a.Value
		case "to":
			i.To, err = jid.Parse(a.Value)
		case "from":
			i.From, err = jid.Parse(a.Value)
		case "version":
			i.Version, err = ParseVersion(a.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StreamStart returns a header for a new stream with the given content
// namespace, addressed to the domain of the To address.
// The From address, ID and language are included when set.
func (i Info) StreamStart() codec.StreamStart {
	v := i.Version
	if v == (Version{}) {
		v = DefaultVersion
	}
	attrs := codec.StreamStart{}
	add := func(name, value string) {
		if value != "" {
			attrs.Attrs = append(attrs.Attrs, element.Attr{Name: name, Value: value})
		}
	}
	add("xmlns", i.XMLNS)
	add("xmlns:stream", NS)
	add("to", i.To.String())
	add("from", i.From.String())
	add("id", i.ID)
	add("version", v.String())
	add("xml:lang", i.Lang)
	return attrs
}
