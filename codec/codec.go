// Copyright 2017 The Mellium Contributors.
// Use of this source code is governed by the BSD 2-clause
// license that can be found in the LICENSE file.

package codec

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/witnet/xmpp-rs-sub000/element"
)

// MaxStanzaSize is the spare capacity reserved in the destination buffer
// before each packet is encoded.
const MaxStanzaSize = 1 << 16

// A Codec decodes chunks of a stream into packets and encodes packets into
// bytes.
// A Codec holds the parsing state of exactly one stream and must not be used
// from multiple goroutines.
// A new Codec must be used after every stream restart.
type Codec struct {
	// Element stack (open but unclosed elements, outermost first) and the
	// parallel stack of namespace frames.
	stack []*element.Element
	scope element.Scope

	// Bytes received but not yet turned into packets: a truncated token or a
	// truncated UTF-8 sequence.
	buf []byte
}

// New returns a codec ready to decode a fresh stream.
func New() *Codec {
	return &Codec{}
}

// Depth returns the number of open elements, including the stream root.
func (c *Codec) Depth() int {
	return len(c.stack)
}

// Buffered returns the number of bytes held back for the next call to Decode.
func (c *Codec) Buffered() int {
	return len(c.buf)
}

// Decode consumes a chunk of the stream and returns any packets that were
// completed by it.
// Data that cannot be parsed yet, such as a tag or codepoint cut in half by the
// end of the chunk, is kept and prepended to the next chunk.
//
// If an error is returned, the packets decoded before the error are returned
// along with it and the codec must not be used again.
func (c *Codec) Decode(chunk []byte) ([]Packet, error) {
	c.buf = append(c.buf, chunk...)
	return c.decodeBuffered(false)
}

// DecodeEOF is called once the transport has no more data.
// It flushes any buffered character data and always ends with a StreamEnd.
// A truncated tag or codepoint left in the buffer is a parse error.
func (c *Codec) DecodeEOF() ([]Packet, error) {
	pkts, err := c.decodeBuffered(true)
	if err != nil {
		return pkts, err
	}
	if len(c.buf) > 0 {
		return pkts, &ParserError{Kind: Parse, Err: io.ErrUnexpectedEOF}
	}
	return append(pkts, StreamEnd{}), nil
}

func (c *Codec) decodeBuffered(final bool) ([]Packet, error) {
	data := c.buf
	if n := validPrefix(data); n < len(data) {
		// A codepoint split across chunks leaves at most 3 bytes of an
		// incomplete sequence at the end.
		if final || n < len(data)-3 {
			return nil, &ParserError{
				Kind:   Utf8,
				Offset: int64(n),
				Err:    fmt.Errorf("invalid UTF-8 sequence % x", data[n:min(n+4, len(data))]),
			}
		}
		data = data[:n]
	}

	pkts, consumed, err := c.decode(data, final)
	c.buf = append(c.buf[:0], c.buf[consumed:]...)
	return pkts, err
}

// decode tokenizes data and returns the packets along with the number of bytes
// that were fully consumed.
func (c *Codec) decode(data []byte, final bool) ([]Packet, int, error) {
	d := xml.NewDecoder(bytes.NewReader(data))
	var (
		pkts []Packet
		done int64
	)
	for {
		tok, err := d.RawToken()
		switch {
		case err == io.EOF:
			return pkts, int(done), nil
		case err != nil && !final && isTruncated(err):
			return pkts, int(done), nil
		case err != nil:
			return pkts, int(done), c.syntaxError(data, done, err)
		}

		end := d.InputOffset()
		switch t := tok.(type) {
		case xml.StartElement:
			pkts, err = c.start(pkts, t)
		case xml.EndElement:
			pkts, err = c.end(pkts, t)
		case xml.CharData:
			// Character data running up to the end of the input may continue in
			// the next chunk.
			if !final && end == int64(len(data)) {
				return pkts, int(done), nil
			}
			pkts = c.text(pkts, string(t))
		}
		if err != nil {
			return pkts, int(done), &ParserError{Kind: Parse, Offset: done, Err: err}
		}
		done = end
	}
}

func (c *Codec) start(pkts []Packet, t xml.StartElement) ([]Packet, error) {
	el, err := c.scope.Push(t)
	if err != nil {
		return pkts, err
	}
	// Any element opened at depth 0 is a stream root, even <message/>.
	if len(c.stack) == 0 {
		attrs := make([]element.Attr, 0, len(t.Attr))
		for _, a := range t.Attr {
			attrs = append(attrs, element.Attr{Name: element.QualifiedName(a.Name), Value: a.Value})
		}
		pkts = append(pkts, StreamStart{Attrs: attrs})
	}
	c.stack = append(c.stack, el)
	return pkts, nil
}

func (c *Codec) end(pkts []Packet, t xml.EndElement) ([]Packet, error) {
	if err := c.scope.Pop(t.Name); err != nil {
		return pkts, err
	}
	el := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	switch len(c.stack) {
	case 0:
		pkts = append(pkts, StreamEnd{})
	case 1:
		pkts = append(pkts, Stanza{Element: el})
	default:
		c.stack[len(c.stack)-1].AppendChild(el)
	}
	return pkts, nil
}

func (c *Codec) text(pkts []Packet, s string) []Packet {
	if len(c.stack) <= 1 {
		return append(pkts, Text(s))
	}
	c.stack[len(c.stack)-1].AppendText(s)
	return pkts
}

func (c *Codec) syntaxError(data []byte, offset int64, err error) error {
	rest := bytes.TrimLeft(data[offset:], " \t\r\n")
	if bytes.HasPrefix(rest, []byte("<>")) || bytes.HasPrefix(rest, []byte("</>")) {
		return &ParserError{Kind: ShortTag, Offset: offset}
	}
	return &ParserError{Kind: Parse, Offset: offset, Err: err}
}

// isTruncated reports whether the tokenizer failed only because the input ran
// out in the middle of a token.
func isTruncated(err error) bool {
	var synErr *xml.SyntaxError
	if errors.As(err, &synErr) {
		return strings.HasPrefix(synErr.Msg, "unexpected EOF")
	}
	return errors.Is(err, io.ErrUnexpectedEOF)
}

// validPrefix returns the length of the longest prefix of b that is valid
// UTF-8.
func validPrefix(b []byte) int {
	if utf8.Valid(b) {
		return len(b)
	}
	i := 0
	for i < len(b) {
		if b[i] < utf8.RuneSelf {
			i++
			continue
		}
		r, size := utf8.DecodeRune(b[i:])
		if r == utf8.RuneError && size == 1 {
			return i
		}
		i += size
	}
	return i
}
