// Copyright 2024 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"errors"
	"fmt"
	"slices"

	"github.com/witnet/xmpp-rs-sub000/element"
)

// ErrNilStanza is returned when encoding a Stanza that holds no element.
var ErrNilStanza = errors.New("codec: cannot encode nil stanza")

// Encode appends the serialized packet to dst and returns the extended buffer.
// At least MaxStanzaSize bytes of spare capacity are reserved in dst before
// writing.
func (c *Codec) Encode(dst []byte, p Packet) ([]byte, error) {
	return Append(dst, p)
}

// Append is like Encode but does not need a codec since encoding is
// stateless.
func Append(dst []byte, p Packet) ([]byte, error) {
	if cap(dst)-len(dst) < MaxStanzaSize {
		dst = slices.Grow(dst, MaxStanzaSize)
	}

	switch p := p.(type) {
	case StreamStart:
		dst = append(dst, "<stream:stream"...)
		for _, a := range p.Attrs {
			dst = append(dst, ' ')
			dst = append(dst, a.Name...)
			dst = append(dst, `="`...)
			dst = element.AppendEscaped(dst, a.Value)
			dst = append(dst, '"')
		}
		return append(dst, '>'), nil
	case Stanza:
		if p.Element == nil {
			return dst, ErrNilStanza
		}
		return p.AppendXML(dst), nil
	case Text:
		return element.AppendEscaped(dst, string(p)), nil
	case StreamEnd:
		return append(dst, "</stream:stream>"...), nil
	}
	return dst, fmt.Errorf("codec: unknown packet type %T", p)
}
